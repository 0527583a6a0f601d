package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

const storePrefix = "taskpulse:ratelimit"

func NewMemoryStore() limiter.Store {
	return memory.NewStoreWithOptions(limiter.StoreOptions{
		Prefix:          storePrefix,
		CleanUpInterval: time.Minute,
	})
}

func NewRedisStore(redisURL string) (limiter.Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return sredis.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix:   storePrefix,
		MaxRetry: 3,
	})
}

// Limiter gates outbound calls per key. A nil *Limiter allows everything.
type Limiter struct {
	l *limiter.Limiter
}

func New(store limiter.Store, perSecond int) *Limiter {
	if store == nil || perSecond <= 0 {
		return nil
	}
	return &Limiter{
		l: limiter.New(store, limiter.Rate{Period: time.Second, Limit: int64(perSecond)}),
	}
}

// Allow reports whether one more call for key fits in the current window.
func (r *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	if r == nil {
		return true, nil
	}
	res, err := r.l.Get(ctx, key)
	if err != nil {
		return false, err
	}
	return !res.Reached, nil
}
