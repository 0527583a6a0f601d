package constants

import "github.com/go-playground/validator/v10"

type contextKey string

const (
	LoggerKey    contextKey = "logger"
	RequestStart contextKey = "request-start"
	RequestIDKey contextKey = "request-id"
)

var Validate = validator.New(validator.WithRequiredStructEnabled())

const DateLayout = "2006-01-02"
