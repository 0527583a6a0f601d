package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/events"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/roster"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/task"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/timer"
	"github.com/iota-uz/taskpulse/pkg/logging"
)

type EngineOptions struct {
	AdminSentinel string
	// ViewerID is the user on whose behalf timers are started and stopped.
	ViewerID  int64
	Scheduler SchedulerOptions

	Logger *logrus.Entry
	Now    func() time.Time
}

func (o *EngineOptions) setDefaults() {
	if o.Logger == nil {
		o.Logger = logging.Nop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Scheduler.Logger == nil {
		o.Scheduler.Logger = o.Logger
	}
	if o.Scheduler.Now == nil {
		o.Scheduler.Now = o.Now
	}
}

type DelayedTask struct {
	Task task.Task
	Days int
}

// Engine holds immutable roster and task snapshots and derives the manager
// hierarchy from them. Snapshots are replaced wholesale, never mutated.
type Engine struct {
	api       TaskAPI
	publisher EventPublisher
	opts      EngineOptions

	guard     *TimerGuard
	scheduler *DurationScheduler

	mu        sync.RWMutex
	persons   []roster.Person
	managers  []roster.Person
	tasks     []task.Task
	hierarchy []ManagerNode
	loadedAt  time.Time
}

func NewEngine(api TaskAPI, publisher EventPublisher, opts EngineOptions) *Engine {
	opts.setDefaults()
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &Engine{
		api:       api,
		publisher: publisher,
		opts:      opts,
		guard: NewTimerGuard(api, GuardOptions{
			ViewerID: opts.ViewerID,
			Logger:   opts.Logger,
		}),
		scheduler: NewDurationScheduler(api, publisher, opts.Scheduler),
	}
}

// Start binds live duration polling to ctx.
func (e *Engine) Start(ctx context.Context) {
	e.scheduler.Start(ctx)
}

func (e *Engine) Close() {
	e.scheduler.Close()
}

func (e *Engine) Scheduler() *DurationScheduler { return e.scheduler }
func (e *Engine) Guard() *TimerGuard            { return e.guard }
func (e *Engine) ViewerID() int64               { return e.opts.ViewerID }

// Load performs the initial bulk load. Any failure is reported as a LoadError.
func (e *Engine) Load(ctx context.Context) error {
	persons, managers, tasks, err := e.fetch(ctx)
	if err != nil {
		return LoadError(err)
	}
	e.replace(ctx, persons, managers, tasks)
	return nil
}

// Refresh re-fetches everything. On failure the previous snapshot stays in place.
func (e *Engine) Refresh(ctx context.Context) error {
	persons, managers, tasks, err := e.fetch(ctx)
	if err != nil {
		e.opts.Logger.WithError(err).Warn("engine: refresh failed, keeping previous snapshot")
		return LoadError(err)
	}
	e.replace(ctx, persons, managers, tasks)
	return nil
}

func (e *Engine) fetch(ctx context.Context) ([]roster.Person, []roster.Person, []task.Task, error) {
	var (
		persons  []roster.Person
		managers []roster.Person
		tasks    []task.Task
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		persons, err = e.api.ListRoster(gctx)
		if err != nil {
			return fmt.Errorf("list roster: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		managers, err = e.api.ListManagers(gctx)
		if err != nil {
			return fmt.Errorf("list managers: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		tasks, err = e.api.ListTasks(gctx, task.Filter{})
		if err != nil {
			return fmt.Errorf("list tasks: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}
	return persons, managers, tasks, nil
}

func (e *Engine) replace(ctx context.Context, persons, managers []roster.Person, tasks []task.Task) {
	e.mu.Lock()
	e.persons = persons
	e.managers = managers
	e.tasks = tasks
	e.loadedAt = e.opts.Now()
	evt := e.rebuildLocked()
	e.mu.Unlock()

	e.guard.Observe(ctx, tasks)
	e.scheduler.SyncTasks(tasks)
	e.publisher.Publish(evt)
}

// OnTasksChanged swaps in a new task snapshot and recomputes the rollups.
func (e *Engine) OnTasksChanged(ctx context.Context, tasks []task.Task) {
	e.mu.Lock()
	e.tasks = tasks
	evt := e.rebuildLocked()
	e.mu.Unlock()

	e.guard.Observe(ctx, tasks)
	e.scheduler.SyncTasks(tasks)
	e.publisher.Publish(evt)
}

// OnRosterChanged swaps in a new roster. A nil managers list is derived from persons.
func (e *Engine) OnRosterChanged(persons, managers []roster.Person) {
	if managers == nil {
		managers = roster.Managers(persons)
	}
	e.mu.Lock()
	e.persons = persons
	e.managers = managers
	evt := e.rebuildLocked()
	e.mu.Unlock()

	e.publisher.Publish(evt)
}

func (e *Engine) rebuildLocked() *events.HierarchyRebuiltEvent {
	now := e.opts.Now()
	nodes := BuildHierarchy(e.persons, e.managers, HierarchyOptions{AdminSentinel: e.opts.AdminSentinel})
	e.hierarchy = AggregateAll(nodes, e.tasks, now)
	engineRebuilds.Inc()
	return &events.HierarchyRebuiltEvent{Roots: len(e.hierarchy), Tasks: len(e.tasks), RebuiltAt: now}
}

func (e *Engine) GetHierarchy() []ManagerNode {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]ManagerNode(nil), e.hierarchy...)
}

func (e *Engine) Persons() []roster.Person {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.persons
}

func (e *Engine) Tasks() []task.Task {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tasks
}

func (e *Engine) Task(id int64) (task.Task, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, t := range e.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return task.Task{}, false
}

func (e *Engine) LoadedAt() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loadedAt
}

func (e *Engine) GetDuration(taskID int64) (DurationEntry, bool) {
	return e.scheduler.Get(taskID)
}

func (e *Engine) IsDelayed(t task.Task) bool {
	return IsDelayed(t, e.opts.Now())
}

func (e *Engine) DelayDays(t task.Task) int {
	return DelayDays(t, e.opts.Now())
}

// DelayedTasks lists overdue tasks, most overdue first.
func (e *Engine) DelayedTasks() []DelayedTask {
	now := e.opts.Now()
	tasks := e.Tasks()
	out := make([]DelayedTask, 0, len(tasks))
	for _, t := range tasks {
		if days := DelayDays(t, now); days > 0 {
			out = append(out, DelayedTask{Task: t, Days: days})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Days != out[j].Days {
			return out[i].Days > out[j].Days
		}
		return out[i].Task.ID < out[j].Task.ID
	})
	return out
}

func (e *Engine) CanStartTimer(taskID, viewerID int64) bool {
	return e.guard.CanStart(taskID, viewerID)
}

func (e *Engine) SetVisible(tasks []task.Task) {
	e.scheduler.SetVisible(tasks)
}

// SetVisibleIDs resolves ids against the task snapshot. Unknown ids are polled
// as active tasks until the remote side reports them missing.
func (e *Engine) SetVisibleIDs(ids []int64) {
	e.mu.RLock()
	byID := make(map[int64]task.Task, len(e.tasks))
	for _, t := range e.tasks {
		byID[t.ID] = t
	}
	e.mu.RUnlock()

	visible := make([]task.Task, 0, len(ids))
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			visible = append(visible, t)
			continue
		}
		visible = append(visible, task.Task{ID: id})
	}
	e.scheduler.SetVisible(visible)
}

func (e *Engine) Stats(ctx context.Context) (task.Stats, error) {
	return e.api.GetTaskStats(ctx)
}

// StartTimer starts a timer for the viewer. A start the guard rejects never
// reaches the network; a remote conflict re-syncs the guard before returning.
func (e *Engine) StartTimer(ctx context.Context, taskID int64) (timer.Interval, error) {
	viewer := e.opts.ViewerID
	if !e.guard.CanStart(taskID, viewer) {
		if iv, ok := e.guard.Open(taskID, viewer); ok {
			recordTimerRejection("running")
			return timer.Interval{}, ConflictError(fmt.Sprintf("timer %d is already running for task %d", iv.ID, taskID), nil)
		}
		recordTimerRejection("terminal")
		return timer.Interval{}, ValidationError("task is already completed", map[string]string{"task_id": "is completed"})
	}

	iv, err := e.api.StartTimer(ctx, taskID)
	if err != nil {
		if IsConflict(err) {
			recordTimerRejection("remote_conflict")
			if rerr := e.guard.Reconcile(ctx, taskID); rerr != nil {
				e.opts.Logger.WithError(rerr).WithField("task_id", taskID).Warn("engine: reconcile after conflict failed")
			}
		}
		return timer.Interval{}, err
	}
	if iv.TaskID == 0 {
		iv.TaskID = taskID
	}
	if iv.UserID == 0 {
		iv.UserID = viewer
	}
	if err := e.guard.OnStarted(iv); err != nil {
		return timer.Interval{}, err
	}
	e.publisher.Publish(&events.TimerStartedEvent{TaskID: taskID, ViewerID: viewer, IntervalID: iv.ID})
	return iv, nil
}

// StopTimer stops the viewer's open timer. A remote NotFound means the interval
// is already gone; the local entry is cleared and no error is returned.
func (e *Engine) StopTimer(ctx context.Context, taskID int64) (timer.Interval, error) {
	viewer := e.opts.ViewerID
	iv, ok := e.guard.Open(taskID, viewer)
	if !ok {
		recordTimerRejection("not_running")
		return timer.Interval{}, NotFoundError(fmt.Sprintf("no running timer for task %d", taskID), nil)
	}

	stopped, err := e.api.StopTimer(ctx, iv.ID)
	if err != nil && !IsNotFound(err) {
		return timer.Interval{}, err
	}
	if err != nil {
		e.opts.Logger.WithField("interval_id", iv.ID).Info("engine: interval already closed remotely")
		stopped = iv
	}
	if _, err := e.guard.OnStopped(taskID, viewer); err != nil && !IsNotFound(err) {
		return timer.Interval{}, err
	}
	e.publisher.Publish(&events.TimerStoppedEvent{TaskID: taskID, ViewerID: viewer, IntervalID: iv.ID})
	return stopped, nil
}

// UpdateTask validates the patch locally, applies it remotely and recomputes.
func (e *Engine) UpdateTask(ctx context.Context, id int64, patch task.Patch) (task.Task, error) {
	if err := ValidatePatch(patch); err != nil {
		return task.Task{}, err
	}
	updated, err := e.api.UpdateTask(ctx, id, patch)
	if err != nil {
		return task.Task{}, err
	}

	e.mu.Lock()
	next := make([]task.Task, 0, len(e.tasks)+1)
	found := false
	for _, t := range e.tasks {
		if t.ID == id {
			t = updated
			found = true
		}
		next = append(next, t)
	}
	if !found {
		next = append(next, updated)
	}
	e.tasks = next
	evt := e.rebuildLocked()
	e.mu.Unlock()

	e.guard.Observe(ctx, next)
	e.scheduler.SyncTasks(next)
	e.publisher.Publish(evt)
	return updated, nil
}

func (e *Engine) ValidateDraft(d task.Draft) error {
	return ValidateDraft(d, e.Tasks())
}
