// Package graph builds a validated dependency DAG over a project's tasks.
// It is a pure view over a snapshot: building never mutates task records.
package graph

import (
	"fmt"
	"sort"

	"github.com/HANSKMIEL/Optura/internal/task"
)

// Graph is a directed acyclic graph of tasks, indexed by id. Adjacency is
// kept as id slices rather than pointers so algorithms walk indices.
type Graph struct {
	Tasks  map[string]*task.Task
	Adj    map[string][]string // prerequisite -> dependents
	RevAdj map[string][]string // task -> its prerequisites
	Roots  []string            // tasks with no prerequisites
	Leaves []string            // tasks nothing depends on
}

// CycleError reports a dependency cycle. Path holds the ids along the
// cycle in forward order.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %v", e.Path)
}

// DanglingReferenceError reports an edge naming a task that is not part
// of the project.
type DanglingReferenceError struct {
	TaskID string
	Edge   task.Edge
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("dependency edge (%s -> %s) references unknown task %s",
		e.Edge.TaskID, e.Edge.PrerequisiteID, e.TaskID)
}

// Build constructs a Graph from a snapshot. It fails with
// *DanglingReferenceError if an edge names an unknown task and with
// *CycleError if the dependency relation is not acyclic.
func Build(snap *task.Snapshot) (*Graph, error) {
	g := &Graph{
		Tasks:  make(map[string]*task.Task, len(snap.Tasks)),
		Adj:    make(map[string][]string),
		RevAdj: make(map[string][]string),
	}

	for _, t := range snap.Tasks {
		g.Tasks[t.ID] = t
	}

	// Dedupe edges; reject references outside the project.
	edgeSet := make(map[task.Edge]bool, len(snap.Edges))
	for _, e := range snap.Edges {
		if _, ok := g.Tasks[e.TaskID]; !ok {
			return nil, &DanglingReferenceError{TaskID: e.TaskID, Edge: e}
		}
		if _, ok := g.Tasks[e.PrerequisiteID]; !ok {
			return nil, &DanglingReferenceError{TaskID: e.PrerequisiteID, Edge: e}
		}
		if e.TaskID == e.PrerequisiteID {
			return nil, &CycleError{Path: []string{e.TaskID, e.TaskID}}
		}
		if edgeSet[e] {
			continue
		}
		edgeSet[e] = true
		g.Adj[e.PrerequisiteID] = append(g.Adj[e.PrerequisiteID], e.TaskID)
		g.RevAdj[e.TaskID] = append(g.RevAdj[e.TaskID], e.PrerequisiteID)
	}

	// Sort adjacency lists for deterministic traversal.
	for k := range g.Adj {
		sort.Strings(g.Adj[k])
	}
	for k := range g.RevAdj {
		sort.Strings(g.RevAdj[k])
	}

	for id := range g.Tasks {
		if len(g.RevAdj[id]) == 0 {
			g.Roots = append(g.Roots, id)
		}
		if len(g.Adj[id]) == 0 {
			g.Leaves = append(g.Leaves, id)
		}
	}
	sort.Strings(g.Roots)
	sort.Strings(g.Leaves)

	if cycle := g.detectCycle(); cycle != nil {
		return nil, &CycleError{Path: cycle}
	}

	return g, nil
}

// detectCycle returns the cycle path if one exists, or nil.
// DFS with coloring: white (unvisited), gray (in progress), black (done).
func (g *Graph) detectCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make(map[string]int, len(g.Tasks))
	parent := make(map[string]string)

	var dfs func(node string) []string
	dfs = func(node string) []string {
		color[node] = gray
		for _, next := range g.Adj[node] {
			if color[next] == gray {
				cycle := []string{next, node}
				cur := node
				for cur != next {
					cur = parent[cur]
					cycle = append(cycle, cur)
				}
				for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
					cycle[i], cycle[j] = cycle[j], cycle[i]
				}
				return cycle
			}
			if color[next] == white {
				parent[next] = node
				if cycle := dfs(next); cycle != nil {
					return cycle
				}
			}
		}
		color[node] = black
		return nil
	}

	for _, id := range g.SortedIDs() {
		if color[id] == white {
			if cycle := dfs(id); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// TaskCount returns the number of tasks in the graph.
func (g *Graph) TaskCount() int {
	return len(g.Tasks)
}

// SortedIDs returns all task ids in ascending order.
func (g *Graph) SortedIDs() []string {
	ids := make([]string, 0, len(g.Tasks))
	for id := range g.Tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Prerequisites returns the prerequisite ids of a task (sorted).
func (g *Graph) Prerequisites(id string) []string {
	return g.RevAdj[id]
}

// Dependents returns the ids of tasks that depend on id (sorted).
func (g *Graph) Dependents(id string) []string {
	return g.Adj[id]
}

// DependenciesSatisfied reports whether every prerequisite of id is
// completed. A task with no prerequisites is trivially satisfied.
func (g *Graph) DependenciesSatisfied(id string) bool {
	for _, pre := range g.RevAdj[id] {
		if t, ok := g.Tasks[pre]; !ok || t.Status != task.StatusCompleted {
			return false
		}
	}
	return true
}

// UnsatisfiedPrerequisites returns the prerequisites of id that are not
// yet completed, in id order.
func (g *Graph) UnsatisfiedPrerequisites(id string) []string {
	var open []string
	for _, pre := range g.RevAdj[id] {
		if t, ok := g.Tasks[pre]; !ok || t.Status != task.StatusCompleted {
			open = append(open, pre)
		}
	}
	return open
}
