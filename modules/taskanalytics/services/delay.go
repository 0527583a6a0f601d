package services

import (
	"time"

	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/task"
)

const day = 24 * time.Hour

// IsDelayed reports whether the task is past its due date as of now.
func IsDelayed(t task.Task, now time.Time) bool {
	return DelayDays(t, now) > 0
}

// DelayDays returns the number of whole calendar days between the due date and now,
// clamped at zero. Tasks without a due date or with status done are never delayed.
func DelayDays(t task.Task, now time.Time) int {
	if t.DueDate == nil || t.Status == task.StatusDone {
		return 0
	}
	due := civilDate(*t.DueDate, t.DueDate.Location())
	today := civilDate(now, now.Location())
	days := int(today.Sub(due) / day)
	if days < 0 {
		return 0
	}
	return days
}

// civilDate drops the time of day, keeping the Y-M-D as seen in loc, as a UTC midnight.
func civilDate(ts time.Time, loc *time.Location) time.Time {
	y, m, d := ts.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
