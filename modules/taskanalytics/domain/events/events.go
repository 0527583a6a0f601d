package events

import "time"

type HierarchyRebuiltEvent struct {
	Roots     int
	Tasks     int
	RebuiltAt time.Time
}

type DurationSnapshot struct {
	TaskID          int64     `json:"task_id"`
	AssignedSeconds float64   `json:"assigned_duration_seconds"`
	WorkingSeconds  float64   `json:"working_duration_seconds"`
	LastFetchedAt   time.Time `json:"last_fetched_at"`
}

type DurationsRefreshedEvent struct {
	Seq     uint64
	Entries []DurationSnapshot
}

type DurationPurgedEvent struct {
	TaskID int64
	Reason string
}

type SchedulerStateChangedEvent struct {
	From string
	To   string
}

type TimerStartedEvent struct {
	TaskID     int64
	ViewerID   int64
	IntervalID int64
}

type TimerStoppedEvent struct {
	TaskID     int64
	ViewerID   int64
	IntervalID int64
}
