package mappers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/roster"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/task"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/services"
)

func TestManagerNodesToViewModels(t *testing.T) {
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	due := time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC)
	nodes := []services.ManagerNode{{
		Manager:   roster.Person{ID: 1, EmpID: "M1", Name: "Mira", Role: roster.RoleManager},
		Employees: []roster.Person{{ID: 2, EmpID: "E1", Name: "Eli", Role: roster.RoleEmployee, ReportToID: "M1"}},
		Tasks:     []task.Task{{ID: 9, Title: "Audit", Status: task.StatusTodo, AssignedToID: 2, DueDate: &due}},
		Stats:     services.Rollup{Total: 1, Pending: 1, Delayed: 1},
	}}

	got := ManagerNodesToViewModels(nodes, now)

	require.Len(t, got, 1)
	require.Equal(t, "Manager", got[0].Manager.Role)
	require.Equal(t, "E1", got[0].Employees[0].EmpID)
	require.Equal(t, "2025-03-07", got[0].Tasks[0].DueDate)
	require.True(t, got[0].Tasks[0].Delayed)
	require.Equal(t, 3, got[0].Tasks[0].DelayDays)
	require.Equal(t, 1, got[0].Stats.Delayed)
}

func TestDurationsToViewModel(t *testing.T) {
	at := time.Date(2025, 3, 10, 8, 0, 0, 0, time.FixedZone("UTC+5", 5*3600))
	vm := DurationsToViewModel(services.StatePolling, []services.DurationEntry{
		{TaskID: 3, AssignedSeconds: 60, WorkingSeconds: 30, LastFetchedAt: at, Seq: 4},
	})

	require.Equal(t, "polling", vm.State)
	require.Len(t, vm.Entries, 1)
	require.Equal(t, "2025-03-10T03:00:00Z", vm.Entries[0].LastFetchedAt)
}
