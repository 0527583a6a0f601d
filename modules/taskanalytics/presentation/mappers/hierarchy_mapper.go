package mappers

import (
	"time"

	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/events"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/roster"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/task"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/presentation/viewmodels"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/services"
	"github.com/iota-uz/taskpulse/pkg/constants"
)

func PersonToViewModel(p roster.Person) viewmodels.Person {
	return viewmodels.Person{ID: p.ID, EmpID: p.EmpID, Name: p.Name, Role: string(p.Role)}
}

func TaskToViewModel(t task.Task, now time.Time) viewmodels.Task {
	vm := viewmodels.Task{
		ID:              t.ID,
		Title:           t.Title,
		Status:          string(t.Status),
		PercentComplete: t.PercentComplete,
		Priority:        t.Priority,
		AssignedToID:    t.AssignedToID,
		DelayDays:       services.DelayDays(t, now),
	}
	vm.Delayed = vm.DelayDays > 0
	if t.DueDate != nil {
		vm.DueDate = t.DueDate.Format(constants.DateLayout)
	}
	return vm
}

func ManagerNodesToViewModels(nodes []services.ManagerNode, now time.Time) []viewmodels.ManagerNode {
	out := make([]viewmodels.ManagerNode, 0, len(nodes))
	for _, n := range nodes {
		vm := viewmodels.ManagerNode{
			Manager:   PersonToViewModel(n.Manager),
			Employees: make([]viewmodels.Person, 0, len(n.Employees)),
			Tasks:     make([]viewmodels.Task, 0, len(n.Tasks)),
			Stats:     viewmodels.Rollup(n.Stats),
		}
		for _, e := range n.Employees {
			vm.Employees = append(vm.Employees, PersonToViewModel(e))
		}
		for _, t := range n.Tasks {
			vm.Tasks = append(vm.Tasks, TaskToViewModel(t, now))
		}
		out = append(out, vm)
	}
	return out
}

func DurationToViewModel(e services.DurationEntry) viewmodels.Duration {
	return SnapshotToViewModel(e.Snapshot())
}

func SnapshotToViewModel(s events.DurationSnapshot) viewmodels.Duration {
	return viewmodels.Duration{
		TaskID:          s.TaskID,
		AssignedSeconds: s.AssignedSeconds,
		WorkingSeconds:  s.WorkingSeconds,
		LastFetchedAt:   s.LastFetchedAt.UTC().Format(time.RFC3339),
	}
}

func DurationsToViewModel(state services.SchedulerState, entries []services.DurationEntry) viewmodels.Durations {
	out := viewmodels.Durations{State: string(state), Entries: make([]viewmodels.Duration, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, DurationToViewModel(e))
	}
	return out
}
