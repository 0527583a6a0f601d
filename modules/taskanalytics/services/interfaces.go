package services

import (
	"context"

	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/roster"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/task"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/timer"
)

// Implementations map remote failures onto the ServiceError codes:
// 404 NotFound, 409 Conflict, 400/422 Validation, everything else Transient.

type RosterSource interface {
	ListRoster(ctx context.Context) ([]roster.Person, error)
	ListManagers(ctx context.Context) ([]roster.Person, error)
}

type TaskSource interface {
	ListTasks(ctx context.Context, filter task.Filter) ([]task.Task, error)
	GetTaskStats(ctx context.Context) (task.Stats, error)
	UpdateTask(ctx context.Context, id int64, patch task.Patch) (task.Task, error)
}

type DurationSource interface {
	GetTaskDuration(ctx context.Context, taskID int64) (timer.Duration, error)
}

type TimerSource interface {
	ListTimers(ctx context.Context, taskID int64) ([]timer.Interval, error)
	StartTimer(ctx context.Context, taskID int64) (timer.Interval, error)
	StopTimer(ctx context.Context, intervalID int64) (timer.Interval, error)
}

type TaskAPI interface {
	RosterSource
	TaskSource
	DurationSource
	TimerSource
}

// EventPublisher is satisfied by eventbus.EventBus.
type EventPublisher interface {
	Publish(args ...interface{})
}

type nopPublisher struct{}

func (nopPublisher) Publish(...interface{}) {}
