package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/events"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/roster"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/task"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/timer"
)

var engineNow = time.Date(2025, 6, 20, 9, 0, 0, 0, time.UTC)

func seededAPI() *fakeAPI {
	api := newFakeAPI()
	due := engineNow.AddDate(0, 0, -5)
	api.persons = []roster.Person{
		manager(1, "M1", ""),
		employee(2, "E1", "M1"),
	}
	api.tasks = []task.Task{
		{ID: 10, Title: "Ship release", AssignedToID: 2, Status: task.StatusDone, PercentComplete: 100},
		{ID: 11, Title: "Write docs", AssignedToID: 2, Status: task.StatusTodo, DueDate: &due},
		{ID: 12, Title: "Fix bug", AssignedToID: 2, Status: task.StatusInProgress},
	}
	return api
}

func newTestEngine(t *testing.T, api *fakeAPI, pub *stubPublisher) *Engine {
	t.Helper()
	e := NewEngine(api, pub, EngineOptions{
		ViewerID:  2,
		Now:       func() time.Time { return engineNow },
		Scheduler: SchedulerOptions{PollInterval: 5 * time.Millisecond},
	})
	t.Cleanup(e.Close)
	return e
}

func TestEngine_LoadBuildsRollups(t *testing.T) {
	pub := &stubPublisher{}
	e := newTestEngine(t, seededAPI(), pub)

	require.NoError(t, e.Load(context.Background()))

	nodes := e.GetHierarchy()
	require.Len(t, nodes, 1)
	require.Equal(t, Rollup{Total: 3, Pending: 2, Completed: 1, Delayed: 1, Performance: 33}, nodes[0].Stats)
	require.Len(t, eventsOf[*events.HierarchyRebuiltEvent](pub), 1)

	delayed := e.DelayedTasks()
	require.Len(t, delayed, 1)
	require.Equal(t, int64(11), delayed[0].Task.ID)
	require.Equal(t, 5, delayed[0].Days)
	require.True(t, e.IsDelayed(delayed[0].Task))
}

func TestEngine_LoadFailureIsPageLevel(t *testing.T) {
	api := seededAPI()
	api.tasksErr = TransientError("unavailable", errors.New("connection reset"))
	e := newTestEngine(t, api, &stubPublisher{})

	err := e.Load(context.Background())
	require.True(t, IsLoadFailed(err))
	require.True(t, IsTransient(err), "the cause stays reachable")
	require.Empty(t, e.GetHierarchy())
}

func TestEngine_RefreshKeepsSnapshotOnFailure(t *testing.T) {
	api := seededAPI()
	e := newTestEngine(t, api, &stubPublisher{})
	require.NoError(t, e.Load(context.Background()))

	api.mu.Lock()
	api.rosterErr = errors.New("boom")
	api.mu.Unlock()

	require.Error(t, e.Refresh(context.Background()))
	require.Len(t, e.GetHierarchy(), 1)
	require.Len(t, e.Tasks(), 3)
}

func TestEngine_OnRosterChangedRebuilds(t *testing.T) {
	e := newTestEngine(t, seededAPI(), &stubPublisher{})
	require.NoError(t, e.Load(context.Background()))

	e.OnRosterChanged([]roster.Person{
		manager(1, "M1", ""),
		manager(3, "M2", ""),
		employee(2, "E1", "M2"),
	}, nil)

	nodes := e.GetHierarchy()
	require.Len(t, nodes, 2)
	require.Equal(t, 0, nodes[0].Stats.Total)
	require.Equal(t, 3, nodes[1].Stats.Total)
}

func TestEngine_OnTasksChangedRecomputes(t *testing.T) {
	e := newTestEngine(t, seededAPI(), &stubPublisher{})
	require.NoError(t, e.Load(context.Background()))

	e.OnTasksChanged(context.Background(), []task.Task{
		{ID: 10, AssignedToID: 2, Status: task.StatusDone, PercentComplete: 100},
		{ID: 12, AssignedToID: 2, Status: task.StatusDone, PercentComplete: 100},
	})

	require.Equal(t, Rollup{Total: 2, Completed: 2, Performance: 100}, e.GetHierarchy()[0].Stats)
	require.False(t, e.CanStartTimer(10, 2))
}

func TestEngine_DoubleStartRejectedWithoutNetwork(t *testing.T) {
	api := seededAPI()
	pub := &stubPublisher{}
	e := newTestEngine(t, api, pub)
	require.NoError(t, e.Load(context.Background()))

	iv, err := e.StartTimer(context.Background(), 12)
	require.NoError(t, err)
	require.Equal(t, int64(2), iv.UserID)
	require.False(t, e.CanStartTimer(12, 2))

	_, err = e.StartTimer(context.Background(), 12)
	require.True(t, IsConflict(err))
	require.Equal(t, int64(1), api.startCalls.Load(), "the second start never reaches the network")
	require.Len(t, eventsOf[*events.TimerStartedEvent](pub), 1)
}

func TestEngine_StartOnTerminalTaskIsRejected(t *testing.T) {
	api := seededAPI()
	e := newTestEngine(t, api, &stubPublisher{})
	require.NoError(t, e.Load(context.Background()))

	_, err := e.StartTimer(context.Background(), 10)
	require.True(t, IsValidation(err))
	require.Zero(t, api.startCalls.Load())
}

func TestEngine_RemoteConflictReconcilesGuard(t *testing.T) {
	api := seededAPI()
	e := newTestEngine(t, api, &stubPublisher{})
	require.NoError(t, e.Load(context.Background()))

	api.mu.Lock()
	api.timers[12] = []timer.Interval{{ID: 77, TaskID: 12, UserID: 2, StartTime: engineNow}}
	api.mu.Unlock()
	api.startFn = func(ctx context.Context, taskID int64) (timer.Interval, error) {
		return timer.Interval{}, ConflictError("open interval exists", nil)
	}

	_, err := e.StartTimer(context.Background(), 12)
	require.True(t, IsConflict(err))

	iv, ok := e.Guard().Open(12, 2)
	require.True(t, ok)
	require.Equal(t, int64(77), iv.ID)
}

func TestEngine_StopTimer(t *testing.T) {
	api := seededAPI()
	pub := &stubPublisher{}
	e := newTestEngine(t, api, pub)
	require.NoError(t, e.Load(context.Background()))

	_, err := e.StopTimer(context.Background(), 12)
	require.True(t, IsNotFound(err))
	require.Zero(t, api.stopCalls.Load())

	started, err := e.StartTimer(context.Background(), 12)
	require.NoError(t, err)

	stopped, err := e.StopTimer(context.Background(), 12)
	require.NoError(t, err)
	require.Equal(t, started.ID, stopped.ID)
	require.True(t, e.CanStartTimer(12, 2))
	require.Len(t, eventsOf[*events.TimerStoppedEvent](pub), 1)
}

func TestEngine_StopTimerRemoteNotFoundIsSoft(t *testing.T) {
	api := seededAPI()
	e := newTestEngine(t, api, &stubPublisher{})
	require.NoError(t, e.Load(context.Background()))
	_, err := e.StartTimer(context.Background(), 12)
	require.NoError(t, err)

	api.stopFn = func(ctx context.Context, intervalID int64) (timer.Interval, error) {
		return timer.Interval{}, NotFoundError("interval not open", nil)
	}

	_, err = e.StopTimer(context.Background(), 12)
	require.NoError(t, err)
	require.True(t, e.CanStartTimer(12, 2))
}

func TestEngine_StopTimerTransientKeepsEntry(t *testing.T) {
	api := seededAPI()
	e := newTestEngine(t, api, &stubPublisher{})
	require.NoError(t, e.Load(context.Background()))
	_, err := e.StartTimer(context.Background(), 12)
	require.NoError(t, err)

	api.stopFn = func(ctx context.Context, intervalID int64) (timer.Interval, error) {
		return timer.Interval{}, TransientError("unavailable", nil)
	}

	_, err = e.StopTimer(context.Background(), 12)
	require.True(t, IsTransient(err))
	require.False(t, e.CanStartTimer(12, 2))
}

func TestEngine_UpdateTask(t *testing.T) {
	api := seededAPI()
	e := newTestEngine(t, api, &stubPublisher{})
	require.NoError(t, e.Load(context.Background()))

	over := 120
	_, err := e.UpdateTask(context.Background(), 12, task.Patch{PercentComplete: &over})
	require.True(t, IsValidation(err))
	require.Zero(t, api.updateCalls.Load())

	done := task.StatusDone
	full := 100
	updated, err := e.UpdateTask(context.Background(), 12, task.Patch{Status: &done, PercentComplete: &full})
	require.NoError(t, err)
	require.True(t, updated.IsTerminal())

	require.Equal(t, 2, e.GetHierarchy()[0].Stats.Completed)
	require.False(t, e.CanStartTimer(12, 2))
}

func TestEngine_UpdateTaskKeepsConcurrentRefresh(t *testing.T) {
	api := seededAPI()
	e := newTestEngine(t, api, &stubPublisher{})
	require.NoError(t, e.Load(context.Background()))

	api.updateFn = func(ctx context.Context, id int64, patch task.Patch) (task.Task, error) {
		e.OnTasksChanged(ctx, []task.Task{
			{ID: 10, AssignedToID: 2, Status: task.StatusDone, PercentComplete: 100},
			{ID: 13, AssignedToID: 2, Status: task.StatusTodo},
		})
		return task.Task{ID: id, AssignedToID: 2, Status: *patch.Status, PercentComplete: *patch.PercentComplete}, nil
	}

	done := task.StatusDone
	full := 100
	_, err := e.UpdateTask(context.Background(), 12, task.Patch{Status: &done, PercentComplete: &full})
	require.NoError(t, err)

	ids := make([]int64, 0, 3)
	for _, tk := range e.Tasks() {
		ids = append(ids, tk.ID)
	}
	require.ElementsMatch(t, []int64{10, 13, 12}, ids, "the refreshed snapshot is kept and the patched task is added")
	require.Equal(t, Rollup{Total: 3, Pending: 1, Completed: 2, Performance: 67}, e.GetHierarchy()[0].Stats)
}

func TestEngine_ValidateDraftAgainstSnapshot(t *testing.T) {
	e := newTestEngine(t, seededAPI(), &stubPublisher{})
	require.NoError(t, e.Load(context.Background()))

	require.True(t, IsValidation(e.ValidateDraft(task.Draft{Title: "fix BUG", AssignedToID: 2})))
	require.NoError(t, e.ValidateDraft(task.Draft{Title: "Fix another bug", AssignedToID: 2}))
}

func TestEngine_VisibleTasksArePolled(t *testing.T) {
	api := seededAPI()
	e := newTestEngine(t, api, &stubPublisher{})
	require.NoError(t, e.Load(context.Background()))
	e.Start(context.Background())

	e.SetVisibleIDs([]int64{10, 12, 99})
	require.Equal(t, StatePolling, e.Scheduler().State())
	require.Eventually(t, func() bool {
		_, ok12 := e.GetDuration(12)
		_, ok99 := e.GetDuration(99)
		return ok12 && ok99
	}, time.Second, 5*time.Millisecond)

	entry, _ := e.GetDuration(99)
	require.Equal(t, float64(99), entry.AssignedSeconds)
}
