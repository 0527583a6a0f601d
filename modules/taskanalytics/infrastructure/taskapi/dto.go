package taskapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/roster"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/task"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/timer"
	"github.com/iota-uz/taskpulse/pkg/constants"
)

// apiDate accepts null, "", YYYY-MM-DD and RFC3339 timestamps.
type apiDate struct {
	t *time.Time
}

func (d *apiDate) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		d.t = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date: %w", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		d.t = nil
		return nil
	}
	for _, layout := range []string{constants.DateLayout, time.RFC3339Nano} {
		if ts, err := time.Parse(layout, s); err == nil {
			d.t = &ts
			return nil
		}
	}
	return fmt.Errorf("date: unsupported format %q", s)
}

func (d apiDate) MarshalJSON() ([]byte, error) {
	if d.t == nil {
		return []byte("null"), nil
	}
	return json.Marshal(d.t.Format(constants.DateLayout))
}

type personDTO struct {
	ID         int64   `json:"id"`
	EmpID      string  `json:"empid"`
	Name       string  `json:"name"`
	Role       string  `json:"role"`
	ReportToID *string `json:"report_to_id"`
}

func (p personDTO) toDomain() roster.Person {
	out := roster.Person{
		ID:    p.ID,
		EmpID: strings.TrimSpace(p.EmpID),
		Name:  p.Name,
		Role:  roster.Role(p.Role),
	}
	if p.ReportToID != nil {
		out.ReportToID = strings.TrimSpace(*p.ReportToID)
	}
	return out
}

type taskDTO struct {
	ID              int64   `json:"id"`
	Title           string  `json:"title"`
	Status          string  `json:"status"`
	PercentComplete int     `json:"percent_complete"`
	Priority        string  `json:"priority"`
	AssignedToID    int64   `json:"assigned_to_id"`
	AssignedByID    int64   `json:"assigned_by_id"`
	StartDate       apiDate `json:"start_date"`
	DueDate         apiDate `json:"due_date"`
	ProjectID       *int64  `json:"project_id"`
}

func (t taskDTO) toDomain() task.Task {
	return task.Task{
		ID:              t.ID,
		Title:           t.Title,
		Status:          task.Status(t.Status),
		PercentComplete: t.PercentComplete,
		Priority:        t.Priority,
		AssignedToID:    t.AssignedToID,
		AssignedByID:    t.AssignedByID,
		StartDate:       t.StartDate.t,
		DueDate:         t.DueDate.t,
		ProjectID:       t.ProjectID,
	}
}

type statsDTO struct {
	Total      int `json:"total"`
	Todo       int `json:"todo"`
	InProgress int `json:"in_progress"`
	Blocked    int `json:"blocked"`
	Delayed    int `json:"delayed"`
	Completed  int `json:"completed"`
}

func (s statsDTO) toDomain() task.Stats {
	return task.Stats(s)
}

type durationDTO struct {
	AssignedSeconds float64 `json:"assigned_duration_seconds"`
	WorkingSeconds  float64 `json:"working_duration_seconds"`
}

type intervalDTO struct {
	ID        int64      `json:"id"`
	TaskID    int64      `json:"task_id"`
	UserID    int64      `json:"user_id"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
}

func (i intervalDTO) toDomain() timer.Interval {
	return timer.Interval{
		ID:        i.ID,
		TaskID:    i.TaskID,
		UserID:    i.UserID,
		StartTime: i.StartTime,
		EndTime:   i.EndTime,
	}
}

type patchDTO struct {
	Status          *string `json:"status,omitempty"`
	PercentComplete *int    `json:"percent_complete,omitempty"`
}

func patchFromDomain(p task.Patch) patchDTO {
	out := patchDTO{PercentComplete: p.PercentComplete}
	if p.Status != nil {
		s := string(*p.Status)
		out.Status = &s
	}
	return out
}

func mapSlice[T any, R any](in []T, fn func(T) R) []R {
	out := make([]R, 0, len(in))
	for _, v := range in {
		out = append(out, fn(v))
	}
	return out
}
