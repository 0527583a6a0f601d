package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/events"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/task"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/timer"
	"github.com/iota-uz/taskpulse/pkg/logging"
)

type SchedulerState string

const (
	StateIdle    SchedulerState = "idle"
	StatePolling SchedulerState = "polling"
)

const (
	PurgeHidden   = "hidden"
	PurgeNotFound = "not_found"
)

// DurationEntry is the cached duration of one visible task. Seq is the tick
// that produced it; results of older ticks never overwrite it.
type DurationEntry struct {
	TaskID          int64
	AssignedSeconds float64
	WorkingSeconds  float64
	LastFetchedAt   time.Time
	Seq             uint64
}

func (e DurationEntry) Snapshot() events.DurationSnapshot {
	return events.DurationSnapshot{
		TaskID:          e.TaskID,
		AssignedSeconds: e.AssignedSeconds,
		WorkingSeconds:  e.WorkingSeconds,
		LastFetchedAt:   e.LastFetchedAt,
	}
}

type SchedulerOptions struct {
	PollInterval   time.Duration
	FetchTimeout   time.Duration
	MaxConcurrency int

	Logger *logrus.Entry
	Now    func() time.Time
}

func (o *SchedulerOptions) setDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 10 * time.Second
	}
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = 8
	}
	if o.Logger == nil {
		o.Logger = logging.Nop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type visibleTask struct {
	task task.Task
	// since is the last tick sequence issued before the task became visible.
	since uint64
	order int
}

// DurationScheduler keeps a duration entry per visible task and polls while at
// least one visible task is not terminal. It is Idle otherwise.
type DurationScheduler struct {
	source    DurationSource
	publisher EventPublisher
	opts      SchedulerOptions

	mu      sync.Mutex
	state   SchedulerState
	visible map[int64]visibleTask
	entries map[int64]DurationEntry
	// inFlight holds the task ids with a fetch outstanding.
	inFlight map[int64]struct{}
	seq      uint64
	host    context.Context
	cancel  context.CancelFunc
	gen     uint64
	closed  bool

	loops sync.WaitGroup
}

func NewDurationScheduler(source DurationSource, publisher EventPublisher, opts SchedulerOptions) *DurationScheduler {
	opts.setDefaults()
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &DurationScheduler{
		source:    source,
		publisher: publisher,
		opts:      opts,
		state:     StateIdle,
		visible:   make(map[int64]visibleTask),
		entries:   make(map[int64]DurationEntry),
		inFlight:  make(map[int64]struct{}),
	}
}

// Start binds the scheduler to the hosting context. Polling only runs between
// Start and the cancellation of hostCtx or Close.
func (s *DurationScheduler) Start(hostCtx context.Context) {
	var evts []any
	s.mu.Lock()
	if !s.closed {
		s.host = hostCtx
		evts = s.reconcileLocked()
	}
	s.mu.Unlock()
	s.publish(evts)
}

// SetVisible replaces the visible task set. Entries of tasks that are no longer
// visible are purged; an empty set stops polling right away.
func (s *DurationScheduler) SetVisible(tasks []task.Task) {
	var evts []any
	s.mu.Lock()
	next := make(map[int64]visibleTask, len(tasks))
	for _, t := range tasks {
		if prev, ok := next[t.ID]; ok {
			prev.task = t
			next[t.ID] = prev
			continue
		}
		vt := visibleTask{task: t, since: s.seq, order: len(next)}
		if cur, ok := s.visible[t.ID]; ok {
			vt.since = cur.since
		}
		next[t.ID] = vt
	}
	for id := range s.entries {
		if _, ok := next[id]; !ok {
			delete(s.entries, id)
			evts = append(evts, &events.DurationPurgedEvent{TaskID: id, Reason: PurgeHidden})
		}
	}
	s.visible = next
	evts = append(evts, s.reconcileLocked()...)
	s.mu.Unlock()
	s.publish(evts)
}

// SyncTasks refreshes the task data of already visible tasks without changing
// which tasks are visible.
func (s *DurationScheduler) SyncTasks(tasks []task.Task) {
	var evts []any
	s.mu.Lock()
	for _, t := range tasks {
		if vt, ok := s.visible[t.ID]; ok {
			vt.task = t
			s.visible[t.ID] = vt
		}
	}
	if s.hasActiveLocked() {
		evts = s.reconcileLocked()
	}
	s.mu.Unlock()
	s.publish(evts)
}

func (s *DurationScheduler) Get(taskID int64) (DurationEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[taskID]
	return e, ok
}

func (s *DurationScheduler) Entries() []DurationEntry {
	s.mu.Lock()
	out := make([]DurationEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out
}

func (s *DurationScheduler) State() SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *DurationScheduler) VisibleIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pollIDsLocked()
}

// Close stops polling and waits for the loop to exit. The scheduler never
// polls again afterwards.
func (s *DurationScheduler) Close() {
	s.mu.Lock()
	s.closed = true
	evts := s.stopLocked()
	s.mu.Unlock()
	s.loops.Wait()
	s.publish(evts)
}

// tick fetches the duration of every visible task once. Tasks whose previous
// fetch is still outstanding are skipped. Responses are applied only when they
// are newer than the cached entry.
func (s *DurationScheduler) tick(ctx context.Context) {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	candidates := s.pollIDsLocked()
	ids := candidates[:0]
	for _, id := range candidates {
		if _, busy := s.inFlight[id]; busy {
			recordFetch("in_flight")
			continue
		}
		s.inFlight[id] = struct{}{}
		ids = append(ids, id)
	}
	s.mu.Unlock()

	if len(ids) == 0 {
		return
	}

	var (
		g       errgroup.Group
		evtMu   sync.Mutex
		updated []events.DurationSnapshot
		purged  []any
	)
	g.SetLimit(s.opts.MaxConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			defer s.release(id)
			fetchCtx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
			d, err := s.source.GetTaskDuration(fetchCtx, id)
			cancel()

			switch {
			case err == nil:
				entry, ok := s.apply(seq, id, d)
				if !ok {
					recordFetch("stale")
					return nil
				}
				recordFetch("success")
				evtMu.Lock()
				updated = append(updated, entry.Snapshot())
				evtMu.Unlock()
			case IsNotFound(err):
				recordFetch("not_found")
				if s.purge(id) {
					evtMu.Lock()
					purged = append(purged, &events.DurationPurgedEvent{TaskID: id, Reason: PurgeNotFound})
					evtMu.Unlock()
				}
			case ctx.Err() != nil && errors.Is(err, ctx.Err()):
				recordFetch("cancelled")
			default:
				recordFetch("error")
				s.opts.Logger.WithError(err).WithFields(logrus.Fields{
					"task_id": id,
					"seq":     seq,
				}).Warn("duration scheduler: fetch failed, keeping cached entry")
			}
			return nil
		})
	}
	_ = g.Wait()

	evts := purged
	if len(updated) > 0 {
		sort.Slice(updated, func(i, j int) bool { return updated[i].TaskID < updated[j].TaskID })
		evts = append(evts, &events.DurationsRefreshedEvent{Seq: seq, Entries: updated})
	}
	s.publish(evts)
}

func (s *DurationScheduler) release(taskID int64) {
	s.mu.Lock()
	delete(s.inFlight, taskID)
	s.mu.Unlock()
}

func (s *DurationScheduler) apply(seq uint64, taskID int64, d timer.Duration) (DurationEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return DurationEntry{}, false
	}
	vt, ok := s.visible[taskID]
	if !ok || seq <= vt.since {
		return DurationEntry{}, false
	}
	if cur, ok := s.entries[taskID]; ok && seq <= cur.Seq {
		return DurationEntry{}, false
	}
	entry := DurationEntry{
		TaskID:          taskID,
		AssignedSeconds: d.AssignedSeconds,
		WorkingSeconds:  d.WorkingSeconds,
		LastFetchedAt:   s.opts.Now(),
		Seq:             seq,
	}
	s.entries[taskID] = entry
	return entry, true
}

// purge drops a task that no longer exists from both the cache and the polled set.
func (s *DurationScheduler) purge(taskID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, visible := s.visible[taskID]
	_, cached := s.entries[taskID]
	delete(s.visible, taskID)
	delete(s.entries, taskID)
	recordSchedulerState(s.state, len(s.visible))
	return visible || cached
}

func (s *DurationScheduler) run(ctx context.Context, gen uint64) {
	defer s.loops.Done()

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		s.tick(ctx)
		if s.settle(gen) {
			return
		}
		select {
		case <-ctx.Done():
			s.publish(s.exit(gen))
			return
		case <-ticker.C:
		}
	}
}

// settle moves the scheduler to Idle after a tick that left no active task.
// It reports whether the loop for gen must exit.
func (s *DurationScheduler) settle(gen uint64) bool {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return true
	}
	if s.hasActiveLocked() {
		s.mu.Unlock()
		return false
	}
	evts := s.stopLocked()
	s.mu.Unlock()
	s.publish(evts)
	return true
}

func (s *DurationScheduler) exit(gen uint64) []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return nil
	}
	return s.stopLocked()
}

func (s *DurationScheduler) reconcileLocked() []any {
	if !s.hasActiveLocked() {
		if len(s.visible) == 0 {
			return s.stopLocked()
		}
		recordSchedulerState(s.state, len(s.visible))
		return nil
	}
	if s.state == StatePolling || s.closed || s.host == nil || s.host.Err() != nil {
		recordSchedulerState(s.state, len(s.visible))
		return nil
	}

	s.gen++
	ctx, cancel := context.WithCancel(s.host)
	s.cancel = cancel
	s.loops.Add(1)
	go s.run(ctx, s.gen)

	return s.transitionLocked(StatePolling)
}

func (s *DurationScheduler) stopLocked() []any {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
	return s.transitionLocked(StateIdle)
}

func (s *DurationScheduler) transitionLocked(to SchedulerState) []any {
	from := s.state
	s.state = to
	recordSchedulerState(to, len(s.visible))
	if from == to {
		return nil
	}
	s.opts.Logger.WithFields(logrus.Fields{"from": from, "to": to}).Debug("duration scheduler: state changed")
	return []any{&events.SchedulerStateChangedEvent{From: string(from), To: string(to)}}
}

func (s *DurationScheduler) hasActiveLocked() bool {
	for _, vt := range s.visible {
		if !vt.task.IsTerminal() {
			return true
		}
	}
	return false
}

func (s *DurationScheduler) pollIDsLocked() []int64 {
	ids := make([]int64, 0, len(s.visible))
	for id := range s.visible {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return s.visible[ids[i]].order < s.visible[ids[j]].order
	})
	return ids
}

func (s *DurationScheduler) publish(evts []any) {
	for _, e := range evts {
		s.publisher.Publish(e)
	}
}
