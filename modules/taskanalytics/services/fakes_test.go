package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/roster"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/task"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/timer"
)

type fakeAPI struct {
	mu sync.Mutex

	persons  []roster.Person
	managers []roster.Person
	tasks    []task.Task
	stats    task.Stats
	timers   map[int64][]timer.Interval

	rosterErr error
	tasksErr  error
	listErr   map[int64]error

	durationFn func(ctx context.Context, taskID int64) (timer.Duration, error)
	listFn     func(ctx context.Context, taskID int64) ([]timer.Interval, error)
	startFn    func(ctx context.Context, taskID int64) (timer.Interval, error)
	stopFn     func(ctx context.Context, intervalID int64) (timer.Interval, error)
	updateFn   func(ctx context.Context, id int64, patch task.Patch) (task.Task, error)

	durationCalls atomic.Int64
	listCalls     atomic.Int64
	startCalls    atomic.Int64
	stopCalls     atomic.Int64
	updateCalls   atomic.Int64
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		timers:  make(map[int64][]timer.Interval),
		listErr: make(map[int64]error),
	}
}

func (f *fakeAPI) ListRoster(ctx context.Context) ([]roster.Person, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rosterErr != nil {
		return nil, f.rosterErr
	}
	return append([]roster.Person(nil), f.persons...), nil
}

func (f *fakeAPI) ListManagers(ctx context.Context) ([]roster.Person, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rosterErr != nil {
		return nil, f.rosterErr
	}
	if f.managers != nil {
		return append([]roster.Person(nil), f.managers...), nil
	}
	return roster.Managers(f.persons), nil
}

func (f *fakeAPI) ListTasks(ctx context.Context, filter task.Filter) ([]task.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tasksErr != nil {
		return nil, f.tasksErr
	}
	return append([]task.Task(nil), f.tasks...), nil
}

func (f *fakeAPI) GetTaskStats(ctx context.Context) (task.Stats, error) {
	return f.stats, nil
}

func (f *fakeAPI) UpdateTask(ctx context.Context, id int64, patch task.Patch) (task.Task, error) {
	f.updateCalls.Add(1)
	if f.updateFn != nil {
		return f.updateFn(ctx, id, patch)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, t := range f.tasks {
		if t.ID == id {
			f.tasks[i] = t.Apply(patch)
			return f.tasks[i], nil
		}
	}
	return task.Task{}, NotFoundError("task not found", nil)
}

func (f *fakeAPI) GetTaskDuration(ctx context.Context, taskID int64) (timer.Duration, error) {
	f.durationCalls.Add(1)
	if f.durationFn != nil {
		return f.durationFn(ctx, taskID)
	}
	return timer.Duration{AssignedSeconds: float64(taskID), WorkingSeconds: float64(taskID) / 2}, nil
}

func (f *fakeAPI) ListTimers(ctx context.Context, taskID int64) ([]timer.Interval, error) {
	f.listCalls.Add(1)
	if f.listFn != nil {
		return f.listFn(ctx, taskID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.listErr[taskID]; err != nil {
		return nil, err
	}
	return append([]timer.Interval(nil), f.timers[taskID]...), nil
}

func (f *fakeAPI) StartTimer(ctx context.Context, taskID int64) (timer.Interval, error) {
	f.startCalls.Add(1)
	if f.startFn != nil {
		return f.startFn(ctx, taskID)
	}
	return timer.Interval{ID: 1000 + taskID, TaskID: taskID, StartTime: time.Now()}, nil
}

func (f *fakeAPI) StopTimer(ctx context.Context, intervalID int64) (timer.Interval, error) {
	f.stopCalls.Add(1)
	if f.stopFn != nil {
		return f.stopFn(ctx, intervalID)
	}
	end := time.Now()
	return timer.Interval{ID: intervalID, EndTime: &end}, nil
}

func (f *fakeAPI) setListErr(taskID int64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr[taskID] = err
}

type stubPublisher struct {
	mu     sync.Mutex
	events []any
}

func (p *stubPublisher) Publish(args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, args...)
}

func (p *stubPublisher) snapshot() []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]any(nil), p.events...)
}

func eventsOf[T any](p *stubPublisher) []T {
	var out []T
	for _, e := range p.snapshot() {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}
