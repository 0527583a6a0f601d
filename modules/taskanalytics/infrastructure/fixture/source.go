package fixture

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"gopkg.in/yaml.v3"

	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/roster"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/task"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/timer"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/services"
	"github.com/iota-uz/taskpulse/pkg/constants"
)

// document is the fixture file layout. Managers lists person ids; when it is
// empty every person with role Manager is used.
type document struct {
	Persons   []roster.Person       `yaml:"persons"`
	Managers  []int64               `yaml:"managers"`
	Tasks     []taskDoc             `yaml:"tasks"`
	Durations map[int64]durationDoc `yaml:"durations"`
	Timers    []intervalDoc         `yaml:"timers"`
}

type taskDoc struct {
	ID              int64  `yaml:"id"`
	Title           string `yaml:"title"`
	Status          string `yaml:"status"`
	PercentComplete int    `yaml:"percent_complete"`
	Priority        string `yaml:"priority"`
	AssignedToID    int64  `yaml:"assigned_to_id"`
	AssignedByID    int64  `yaml:"assigned_by_id"`
	StartDate       string `yaml:"start_date"`
	DueDate         string `yaml:"due_date"`
	ProjectID       *int64 `yaml:"project_id"`
}

type durationDoc struct {
	Assigned float64 `yaml:"assigned"`
	Working  float64 `yaml:"working"`
}

type intervalDoc struct {
	ID        int64  `yaml:"id"`
	TaskID    int64  `yaml:"task_id"`
	UserID    int64  `yaml:"user_id"`
	StartTime string `yaml:"start_time"`
	EndTime   string `yaml:"end_time"`
}

type Options struct {
	// ViewerID owns the timers started through this source.
	ViewerID int64
	Now      func() time.Time
}

// Source serves a roster, tasks and timers from memory. Timer mutations keep
// at most one open interval per task and user.
type Source struct {
	opts Options

	mu        sync.Mutex
	persons   []roster.Person
	managers  []roster.Person
	tasks     []task.Task
	durations map[int64]timer.Duration
	intervals []timer.Interval
	nextID    int64
}

var _ services.TaskAPI = (*Source)(nil)

func Load(path string, opts Options) (*Source, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read fixture")
	}
	return Parse(b, opts)
}

func Parse(b []byte, opts Options) (*Source, error) {
	var doc document
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, errors.Wrap(err, "parse fixture")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Source{
		opts:      opts,
		persons:   doc.Persons,
		durations: make(map[int64]timer.Duration, len(doc.Durations)),
	}

	if len(doc.Managers) == 0 {
		s.managers = roster.Managers(doc.Persons)
	} else {
		byID := roster.IndexByID(doc.Persons)
		for _, id := range doc.Managers {
			p, ok := byID[id]
			if !ok {
				return nil, errors.Errorf("fixture: manager %d is not in persons", id)
			}
			s.managers = append(s.managers, p)
		}
	}

	for _, td := range doc.Tasks {
		t, err := td.toDomain()
		if err != nil {
			return nil, err
		}
		s.tasks = append(s.tasks, t)
	}
	for id, d := range doc.Durations {
		s.durations[id] = timer.Duration{AssignedSeconds: d.Assigned, WorkingSeconds: d.Working}
	}
	for _, d := range doc.Timers {
		iv, err := d.toDomain()
		if err != nil {
			return nil, err
		}
		s.intervals = append(s.intervals, iv)
		if iv.ID > s.nextID {
			s.nextID = iv.ID
		}
	}
	return s, nil
}

func (d taskDoc) toDomain() (task.Task, error) {
	status := task.Status(strings.TrimSpace(d.Status))
	if status == "" {
		status = task.StatusTodo
	}
	if !status.Valid() {
		return task.Task{}, errors.Errorf("fixture: task %d has unknown status %q", d.ID, d.Status)
	}
	start, err := parseTime(d.StartDate)
	if err != nil {
		return task.Task{}, errors.Wrapf(err, "fixture: task %d start_date", d.ID)
	}
	due, err := parseTime(d.DueDate)
	if err != nil {
		return task.Task{}, errors.Wrapf(err, "fixture: task %d due_date", d.ID)
	}
	return task.Task{
		ID:              d.ID,
		Title:           d.Title,
		Status:          status,
		PercentComplete: d.PercentComplete,
		Priority:        d.Priority,
		AssignedToID:    d.AssignedToID,
		AssignedByID:    d.AssignedByID,
		StartDate:       start,
		DueDate:         due,
		ProjectID:       d.ProjectID,
	}, nil
}

func (d intervalDoc) toDomain() (timer.Interval, error) {
	start, err := parseTime(d.StartTime)
	if err != nil || start == nil {
		return timer.Interval{}, errors.Errorf("fixture: timer %d start_time: %q", d.ID, d.StartTime)
	}
	end, err := parseTime(d.EndTime)
	if err != nil {
		return timer.Interval{}, errors.Wrapf(err, "fixture: timer %d end_time", d.ID)
	}
	return timer.Interval{ID: d.ID, TaskID: d.TaskID, UserID: d.UserID, StartTime: *start, EndTime: end}, nil
}

func parseTime(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{constants.DateLayout, time.RFC3339} {
		if ts, err := time.Parse(layout, s); err == nil {
			return &ts, nil
		}
	}
	return nil, errors.Errorf("unsupported time %q", s)
}

func (s *Source) ListRoster(ctx context.Context) ([]roster.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]roster.Person(nil), s.persons...), nil
}

func (s *Source) ListManagers(ctx context.Context) ([]roster.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]roster.Person(nil), s.managers...), nil
}

func (s *Source) ListTasks(ctx context.Context, filter task.Filter) ([]task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]task.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if filter.AssignedToID != nil && t.AssignedToID != *filter.AssignedToID {
			continue
		}
		if filter.ProjectID != nil && (t.ProjectID == nil || *t.ProjectID != *filter.ProjectID) {
			continue
		}
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Source) GetTaskStats(ctx context.Context) (task.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.opts.Now()
	var st task.Stats
	for _, t := range s.tasks {
		st.Total++
		switch t.Status {
		case task.StatusTodo:
			st.Todo++
		case task.StatusInProgress:
			st.InProgress++
		case task.StatusBlocked:
			st.Blocked++
		}
		if t.IsCompleted() {
			st.Completed++
		}
		if services.IsDelayed(t, now) {
			st.Delayed++
		}
	}
	return st, nil
}

func (s *Source) UpdateTask(ctx context.Context, id int64, patch task.Patch) (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.indexLocked(id)
	if !ok {
		return task.Task{}, services.NotFoundError(fmt.Sprintf("task %d not found", id), nil)
	}
	s.tasks[i] = s.tasks[i].Apply(patch)
	return s.tasks[i], nil
}

// DeleteTask removes a task; later duration and timer calls for it report NotFound.
func (s *Source) DeleteTask(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.indexLocked(id)
	if !ok {
		return false
	}
	s.tasks = append(s.tasks[:i:i], s.tasks[i+1:]...)
	return true
}

// GetTaskDuration returns the recorded figures when the fixture has them and
// derives them from the intervals otherwise.
func (s *Source) GetTaskDuration(ctx context.Context, taskID int64) (timer.Duration, error) {
	if err := ctx.Err(); err != nil {
		return timer.Duration{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.indexLocked(taskID)
	if !ok {
		return timer.Duration{}, services.NotFoundError(fmt.Sprintf("task %d not found", taskID), nil)
	}
	if d, ok := s.durations[taskID]; ok {
		return d, nil
	}

	now := s.opts.Now()
	var working time.Duration
	earliest := time.Time{}
	for _, iv := range s.intervals {
		if iv.TaskID != taskID {
			continue
		}
		end := now
		if iv.EndTime != nil {
			end = *iv.EndTime
		}
		working += end.Sub(iv.StartTime)
		if earliest.IsZero() || iv.StartTime.Before(earliest) {
			earliest = iv.StartTime
		}
	}
	var assigned time.Duration
	if start := s.tasks[i].StartDate; start != nil {
		assigned = now.Sub(*start)
	} else if !earliest.IsZero() {
		assigned = now.Sub(earliest)
	}
	return timer.Duration{AssignedSeconds: assigned.Seconds(), WorkingSeconds: working.Seconds()}, nil
}

func (s *Source) ListTimers(ctx context.Context, taskID int64) ([]timer.Interval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.indexLocked(taskID); !ok {
		return nil, services.NotFoundError(fmt.Sprintf("task %d not found", taskID), nil)
	}
	out := make([]timer.Interval, 0, 2)
	for _, iv := range s.intervals {
		if iv.TaskID == taskID {
			out = append(out, iv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (s *Source) StartTimer(ctx context.Context, taskID int64) (timer.Interval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.indexLocked(taskID); !ok {
		return timer.Interval{}, services.NotFoundError(fmt.Sprintf("task %d not found", taskID), nil)
	}
	for _, iv := range s.intervals {
		if iv.TaskID == taskID && iv.UserID == s.opts.ViewerID && iv.IsOpen() {
			return timer.Interval{}, services.ConflictError(fmt.Sprintf("timer %d is already running", iv.ID), nil)
		}
	}
	s.nextID++
	iv := timer.Interval{ID: s.nextID, TaskID: taskID, UserID: s.opts.ViewerID, StartTime: s.opts.Now()}
	s.intervals = append(s.intervals, iv)
	return iv, nil
}

func (s *Source) StopTimer(ctx context.Context, intervalID int64) (timer.Interval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, iv := range s.intervals {
		if iv.ID != intervalID || !iv.IsOpen() {
			continue
		}
		end := s.opts.Now()
		s.intervals[i].EndTime = &end
		return s.intervals[i], nil
	}
	return timer.Interval{}, services.NotFoundError(fmt.Sprintf("timer %d is not running", intervalID), nil)
}

func (s *Source) indexLocked(id int64) (int, bool) {
	for i, t := range s.tasks {
		if t.ID == id {
			return i, true
		}
	}
	return 0, false
}
