package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/taskpulse/modules/taskanalytics/infrastructure/fixture"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/infrastructure/taskapi"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/services"
	"github.com/iota-uz/taskpulse/pkg/configuration"
	"github.com/iota-uz/taskpulse/pkg/ratelimit"
)

var envFiles = []string{".env", ".env.local"}

// runtimeEnv is everything a subcommand needs to talk to the task service.
type runtimeEnv struct {
	conf   *configuration.Configuration
	logger *logrus.Logger
	api    services.TaskAPI
	viewer int64
	now    func() time.Time
}

func (r *runtimeEnv) close() {
	r.conf.Unload()
}

func (r *runtimeEnv) engine(publisher services.EventPublisher) *services.Engine {
	return services.NewEngine(r.api, publisher, services.EngineOptions{
		AdminSentinel: r.conf.AdminSentinelEmpID,
		ViewerID:      r.viewer,
		Scheduler: services.SchedulerOptions{
			PollInterval:   r.conf.Polling.Interval,
			FetchTimeout:   r.conf.Polling.FetchTimeout,
			MaxConcurrency: r.conf.Polling.MaxConcurrency,
		},
		Logger: r.logger.WithField("component", "engine"),
		Now:    r.now,
	})
}

// loadedEngine builds an engine and performs the initial bulk load.
func (r *runtimeEnv) loadedEngine(ctx context.Context, publisher services.EventPublisher) (*services.Engine, error) {
	e := r.engine(publisher)
	loadCtx, cancel := context.WithTimeout(ctx, r.conf.TaskAPI.Timeout)
	defer cancel()
	if err := e.Load(loadCtx); err != nil {
		e.Close()
		return nil, withCode(exitLoad, err)
	}
	return e, nil
}

func openRuntime(g *globalFlags) (*runtimeEnv, error) {
	conf, err := configuration.Load(envFiles)
	if err != nil {
		return nil, withCode(exitConfig, err)
	}
	r := &runtimeEnv{conf: conf, logger: conf.Logger(), viewer: conf.ViewerID, now: time.Now}
	if g.viewer != 0 {
		r.viewer = g.viewer
	}

	if at := strings.TrimSpace(g.at); at != "" {
		if g.fixture == "" {
			conf.Unload()
			return nil, withCode(exitConfig, errors.New("--at requires --fixture"))
		}
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			conf.Unload()
			return nil, withCode(exitConfig, fmt.Errorf("invalid --at: %w", err))
		}
		r.now = func() time.Time { return t }
	}

	if g.fixture != "" {
		src, err := fixture.Load(g.fixture, fixture.Options{ViewerID: r.viewer, Now: r.now})
		if err != nil {
			conf.Unload()
			return nil, withCode(exitConfig, err)
		}
		r.api = src
		return r, nil
	}

	client, err := newClient(conf)
	if err != nil {
		conf.Unload()
		return nil, withCode(exitConfig, err)
	}
	r.api = client
	return r, nil
}

func newClient(conf *configuration.Configuration) (*taskapi.Client, error) {
	var limiter *ratelimit.Limiter
	switch {
	case !conf.RateLimit.Enabled:
	case conf.RateLimit.Storage == "redis":
		store, err := ratelimit.NewRedisStore(conf.RateLimit.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("rate limit store: %w", err)
		}
		limiter = ratelimit.New(store, conf.RateLimit.RPS)
	default:
		limiter = ratelimit.New(ratelimit.NewMemoryStore(), conf.RateLimit.RPS)
	}
	return taskapi.New(taskapi.Options{
		BaseURL:         conf.TaskAPI.URL,
		Token:           conf.TaskAPI.Token,
		Timeout:         conf.TaskAPI.Timeout,
		RequestIDHeader: conf.RequestIDHeader,
		Limiter:         limiter,
		Logger:          conf.Logger().WithField("component", "taskapi"),
	})
}

func serviceExitCode(err error) error {
	switch {
	case err == nil:
		return nil
	case services.IsConflict(err):
		return withCode(exitConflict, err)
	case services.IsNotFound(err):
		return withCode(exitNotFound, err)
	case services.IsLoadFailed(err):
		return withCode(exitLoad, err)
	default:
		return err
	}
}
