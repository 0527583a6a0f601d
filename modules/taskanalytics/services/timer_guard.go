package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/task"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/timer"
	"github.com/iota-uz/taskpulse/pkg/logging"
)

type pairKey struct {
	taskID   int64
	viewerID int64
}

type GuardOptions struct {
	// ViewerID is the user whose open intervals are seeded from the timer list.
	ViewerID int64
	Logger   *logrus.Entry
}

// TimerGuard tracks open timer intervals per (task, viewer) so redundant start
// and stop requests are rejected locally. The server stays authoritative.
type TimerGuard struct {
	timers TimerSource
	opts   GuardOptions

	mu     sync.RWMutex
	open   map[pairKey]timer.Interval
	tasks  map[int64]task.Task
	seeded map[int64]bool
	// rev counts local starts and stops per pair. A timer list fetched before
	// the latest change must not overwrite it.
	rev map[pairKey]uint64
}

func NewTimerGuard(timers TimerSource, opts GuardOptions) *TimerGuard {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &TimerGuard{
		timers: timers,
		opts:   opts,
		open:   make(map[pairKey]timer.Interval),
		tasks:  make(map[int64]task.Task),
		seeded: make(map[int64]bool),
		rev:    make(map[pairKey]uint64),
	}
}

func (g *TimerGuard) ViewerID() int64 {
	return g.opts.ViewerID
}

// CanStart is true when no open interval is tracked for the pair and the task
// is not terminal. For a task the guard has not seen only the first check applies.
func (g *TimerGuard) CanStart(taskID, viewerID int64) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.open[pairKey{taskID, viewerID}]; ok {
		return false
	}
	if t, ok := g.tasks[taskID]; ok && t.IsTerminal() {
		return false
	}
	return true
}

func (g *TimerGuard) Open(taskID, viewerID int64) (timer.Interval, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	iv, ok := g.open[pairKey{taskID, viewerID}]
	return iv, ok
}

func (g *TimerGuard) OnStarted(iv timer.Interval) error {
	key := pairKey{iv.TaskID, iv.UserID}
	g.mu.Lock()
	defer g.mu.Unlock()
	if existing, ok := g.open[key]; ok {
		return ConflictError(
			fmt.Sprintf("timer %d is already running for task %d", existing.ID, iv.TaskID), nil)
	}
	g.open[key] = iv
	g.rev[key]++
	return nil
}

func (g *TimerGuard) OnStopped(taskID, viewerID int64) (timer.Interval, error) {
	key := pairKey{taskID, viewerID}
	g.mu.Lock()
	defer g.mu.Unlock()
	iv, ok := g.open[key]
	if !ok {
		return timer.Interval{}, NotFoundError(fmt.Sprintf("no running timer for task %d", taskID), nil)
	}
	delete(g.open, key)
	g.rev[key]++
	return iv, nil
}

// Observe replaces the task snapshot. Tasks seen for the first time are seeded
// from the timer list; a failed seed is retried on the next call. Tasks that
// disappeared are forgotten together with their open intervals.
func (g *TimerGuard) Observe(ctx context.Context, tasks []task.Task) {
	next := make(map[int64]task.Task, len(tasks))
	for _, t := range tasks {
		next[t.ID] = t
	}

	g.mu.Lock()
	g.tasks = next
	for key := range g.open {
		if _, ok := next[key.taskID]; !ok {
			delete(g.open, key)
		}
	}
	for key := range g.rev {
		if _, ok := next[key.taskID]; !ok {
			delete(g.rev, key)
		}
	}
	for id := range g.seeded {
		if _, ok := next[id]; !ok {
			delete(g.seeded, id)
		}
	}
	pending := make([]int64, 0, len(next))
	for _, t := range tasks {
		if !g.seeded[t.ID] {
			pending = append(pending, t.ID)
		}
	}
	g.mu.Unlock()

	for _, id := range pending {
		if err := g.seed(ctx, id); err != nil {
			g.opts.Logger.WithError(err).WithField("task_id", id).Warn("timer guard: seeding from timer list failed")
		}
	}
}

// Reconcile re-reads the timer list for one task and replaces the viewer's entry,
// unless a local start or stop happened while the list was in flight.
func (g *TimerGuard) Reconcile(ctx context.Context, taskID int64) error {
	return g.seed(ctx, taskID)
}

func (g *TimerGuard) seed(ctx context.Context, taskID int64) error {
	viewer := g.opts.ViewerID
	key := pairKey{taskID, viewer}

	g.mu.RLock()
	rev := g.rev[key]
	g.mu.RUnlock()

	intervals, err := g.timers.ListTimers(ctx, taskID)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.rev[key] != rev {
		g.seeded[taskID] = true
		return nil
	}
	delete(g.open, key)
	for _, iv := range intervals {
		if iv.IsOpen() && iv.UserID == viewer {
			g.open[key] = iv
			break
		}
	}
	g.seeded[taskID] = true
	return nil
}
