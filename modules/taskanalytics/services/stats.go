package services

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/roster"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/task"
)

type Rollup struct {
	Total       int `json:"total"`
	Pending     int `json:"pending"`
	Completed   int `json:"completed"`
	Delayed     int `json:"delayed"`
	Performance int `json:"performance"`
}

var hundred = decimal.NewFromInt(100)

// Performance is the completed share of total as a whole percentage, 0 when total is 0.
func Performance(completed, total int) int {
	if total <= 0 || completed <= 0 {
		return 0
	}
	if completed >= total {
		return 100
	}
	pct := decimal.NewFromInt(int64(completed)).
		Mul(hundred).
		Div(decimal.NewFromInt(int64(total))).
		Round(0)
	return int(pct.IntPart())
}

// Aggregate attaches the subtree rollup to node. Only tasks assigned to subtree
// members with role Employee count; tasks of sub-managers are left out.
func Aggregate(node ManagerNode, allTasks []task.Task, now time.Time) ManagerNode {
	members := make(map[int64]struct{}, len(node.Employees))
	for _, e := range node.Employees {
		if e.Role == roster.RoleEmployee {
			members[e.ID] = struct{}{}
		}
	}

	relevant := make([]task.Task, 0, len(allTasks))
	var stats Rollup
	for _, t := range allTasks {
		if _, ok := members[t.AssignedToID]; !ok {
			continue
		}
		relevant = append(relevant, t)
		if t.Status.Pending() {
			stats.Pending++
		}
		if t.IsCompleted() {
			stats.Completed++
		}
		if IsDelayed(t, now) {
			stats.Delayed++
		}
	}
	stats.Total = len(relevant)
	stats.Performance = Performance(stats.Completed, stats.Total)

	node.Tasks = relevant
	node.Stats = stats
	return node
}

func AggregateAll(nodes []ManagerNode, allTasks []task.Task, now time.Time) []ManagerNode {
	out := make([]ManagerNode, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, Aggregate(n, allTasks, now))
	}
	return out
}
