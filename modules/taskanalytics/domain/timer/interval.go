package timer

import "time"

// Interval is one timing session on a task. EndTime is nil while it is open.
type Interval struct {
	ID        int64
	TaskID    int64
	UserID    int64
	StartTime time.Time
	EndTime   *time.Time
}

func (i Interval) IsOpen() bool {
	return i.EndTime == nil
}

// Duration holds the remote duration figures for a task, in seconds.
type Duration struct {
	AssignedSeconds float64
	WorkingSeconds  float64
}
