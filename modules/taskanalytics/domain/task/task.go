package task

import (
	"strings"
	"time"
)

type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in-progress"
	StatusBlocked    Status = "blocked"
	StatusReview     Status = "review"
	StatusDone       Status = "done"
)

func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusBlocked, StatusReview, StatusDone:
		return true
	default:
		return false
	}
}

func (s Status) Pending() bool {
	return s == StatusTodo || s == StatusInProgress
}

type Task struct {
	ID              int64
	Title           string
	Status          Status
	PercentComplete int
	Priority        string
	AssignedToID    int64
	AssignedByID    int64
	StartDate       *time.Time
	DueDate         *time.Time
	ProjectID       *int64
}

// IsTerminal is true for finished work: done and fully complete.
// Terminal tasks are never delayed and never accept a new timer.
func (t Task) IsTerminal() bool {
	return t.Status == StatusDone && t.PercentComplete == 100
}

func (t Task) IsCompleted() bool {
	return t.IsTerminal()
}

// Apply returns a copy with the patch applied.
func (t Task) Apply(p Patch) Task {
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.PercentComplete != nil {
		t.PercentComplete = *p.PercentComplete
	}
	return t
}

// Patch is a partial update for status and progress.
type Patch struct {
	Status          *Status `json:"status,omitempty" validate:"omitempty,oneof=todo in-progress blocked review done"`
	PercentComplete *int    `json:"percent_complete,omitempty" validate:"omitempty,gte=0,lte=100"`
}

func (p Patch) Empty() bool {
	return p.Status == nil && p.PercentComplete == nil
}

// Draft is a task about to be created.
type Draft struct {
	Title        string     `json:"title" validate:"required"`
	Priority     string     `json:"priority"`
	AssignedToID int64      `json:"assigned_to_id" validate:"required"`
	AssignedByID int64      `json:"assigned_by_id"`
	StartDate    *time.Time `json:"start_date"`
	DueDate      *time.Time `json:"due_date"`
	ProjectID    *int64     `json:"project_id"`
}

func (d *Draft) Normalize() {
	d.Title = strings.TrimSpace(d.Title)
	d.Priority = strings.TrimSpace(d.Priority)
}

type Filter struct {
	AssignedToID *int64
	ProjectID    *int64
	Status       *Status
}

// Stats mirrors the remote task stats summary.
type Stats struct {
	Total      int `json:"total"`
	Todo       int `json:"todo"`
	InProgress int `json:"in_progress"`
	Blocked    int `json:"blocked"`
	Delayed    int `json:"delayed"`
	Completed  int `json:"completed"`
}

func IDs(tasks []Task) []int64 {
	out := make([]int64, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}
