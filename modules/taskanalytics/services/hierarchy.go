package services

import (
	"strings"

	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/roster"
	"github.com/iota-uz/taskpulse/modules/taskanalytics/domain/task"
)

const DefaultAdminSentinel = "ADMIN"

type HierarchyOptions struct {
	// AdminSentinel is the report_to_id value that marks a manager as top-level.
	AdminSentinel string
}

func (o *HierarchyOptions) setDefaults() {
	if strings.TrimSpace(o.AdminSentinel) == "" {
		o.AdminSentinel = DefaultAdminSentinel
	}
}

// ManagerNode is one root manager with its flattened subtree.
type ManagerNode struct {
	Manager   roster.Person
	Employees []roster.Person
	Tasks     []task.Task
	Stats     Rollup
}

// BuildHierarchy groups the roster into one subtree per root manager.
// It never fails: cyclic report_to_id chains terminate and orphans are left out.
func BuildHierarchy(all, managers []roster.Person, opts HierarchyOptions) []ManagerNode {
	opts.setDefaults()

	reportsTo := make(map[string][]roster.Person, len(all))
	for _, p := range all {
		ref := strings.TrimSpace(p.ReportToID)
		if ref == "" {
			continue
		}
		reportsTo[ref] = append(reportsTo[ref], p)
	}

	roots := make([]roster.Person, 0, len(managers))
	for _, m := range managers {
		if !m.HasSuperior(opts.AdminSentinel) {
			roots = append(roots, m)
		}
	}
	if len(roots) == 0 {
		roots = dropNestedRoots(reportsTo, managers)
	}

	collected := make(map[int64]struct{}, len(all))
	listed := make(map[int64]struct{}, len(roots))
	out := make([]ManagerNode, 0, len(roots))
	for _, root := range roots {
		if _, ok := collected[root.ID]; ok {
			continue
		}
		if _, ok := listed[root.ID]; ok {
			continue
		}
		listed[root.ID] = struct{}{}

		visited := map[int64]struct{}{root.ID: {}}
		employees := make([]roster.Person, 0, 8)
		collectSubordinates(reportsTo, root.EmpID, visited, &employees)
		for _, e := range employees {
			collected[e.ID] = struct{}{}
		}

		out = append(out, ManagerNode{Manager: root, Employees: employees})
	}
	return out
}

// collectSubordinates walks direct reports depth-first, threading one visited
// set through the whole walk so reconverging branches and cycles stop.
func collectSubordinates(reportsTo map[string][]roster.Person, empID string, visited map[int64]struct{}, out *[]roster.Person) {
	empID = strings.TrimSpace(empID)
	if empID == "" {
		return
	}
	for _, p := range reportsTo[empID] {
		if _, ok := visited[p.ID]; ok {
			continue
		}
		visited[p.ID] = struct{}{}
		*out = append(*out, p)
		if p.IsManager() {
			collectSubordinates(reportsTo, p.EmpID, visited, out)
		}
	}
}

// dropNestedRoots removes every candidate reachable from another candidate that
// it cannot reach back, so a nested manager is only counted under its ancestor
// whatever the input order. Candidates on a shared cycle are all kept; the
// first of them collects the others.
func dropNestedRoots(reportsTo map[string][]roster.Person, candidates []roster.Person) []roster.Person {
	reach := make([]map[int64]struct{}, len(candidates))
	for i, c := range candidates {
		visited := map[int64]struct{}{c.ID: {}}
		var sub []roster.Person
		collectSubordinates(reportsTo, c.EmpID, visited, &sub)
		reach[i] = visited
	}

	out := make([]roster.Person, 0, len(candidates))
	for i, c := range candidates {
		nested := false
		for j, other := range candidates {
			if i == j || other.ID == c.ID {
				continue
			}
			_, reached := reach[j][c.ID]
			_, reachesBack := reach[i][other.ID]
			if reached && !reachesBack {
				nested = true
				break
			}
		}
		if !nested {
			out = append(out, c)
		}
	}
	return out
}
