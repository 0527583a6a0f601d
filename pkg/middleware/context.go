package middleware

import (
	"context"
	"time"

	"github.com/iota-uz/taskpulse/pkg/constants"
)

func contextWithStart(ctx context.Context, start time.Time) context.Context {
	return context.WithValue(ctx, constants.RequestStart, start)
}
