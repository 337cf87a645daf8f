// Package cpm computes the critical (longest-duration) path through a
// task dependency graph.
package cpm

import (
	"fmt"
	"sort"

	"github.com/HANSKMIEL/Optura/internal/graph"
)

// Result holds the complete critical path analysis for one graph.
type Result struct {
	// Finish maps task id to its longest finish time: the task's own
	// duration plus the longest chain of prerequisites before it.
	Finish map[string]float64
	// Pred maps task id to the prerequisite chosen on its longest chain
	// ("" for chain starts). Ties resolve to the lowest prerequisite id.
	Pred map[string]string
	// Path is the critical path in execution order.
	Path []string
	// TotalHours is the finish time of the last task on the path.
	TotalHours float64
	// TopoOrder is the topological order used for the passes.
	TopoOrder []string
}

// Analyze runs the forward longest-finish pass over g. Tasks without an
// estimate contribute 0 hours. Ties are broken by lowest task id at every
// comparison, so repeated runs on identical input return the same path.
// An empty graph yields an empty path and zero total.
func Analyze(g *graph.Graph) (*Result, error) {
	order, err := topoSort(g)
	if err != nil {
		return nil, err
	}

	r := &Result{
		Finish:    make(map[string]float64, len(order)),
		Pred:      make(map[string]string, len(order)),
		TopoOrder: order,
	}

	for _, id := range order {
		best := 0.0
		bestPred := ""
		if prereqs := g.Prerequisites(id); len(prereqs) > 0 {
			// Prerequisites are visited in ascending id order, and only a
			// strictly greater finish replaces the pick, so ties resolve
			// to the lowest prerequisite id.
			bestPred = prereqs[0]
			best = r.Finish[bestPred]
			for _, pre := range prereqs[1:] {
				if r.Finish[pre] > best {
					best = r.Finish[pre]
					bestPred = pre
				}
			}
		}
		r.Pred[id] = bestPred
		r.Finish[id] = best + g.Tasks[id].Hours()
	}

	// Global maximum finish; ties break to the lowest id.
	endID := ""
	for _, id := range order {
		switch {
		case endID == "":
			endID = id
		case r.Finish[id] > r.Finish[endID]:
			endID = id
		case r.Finish[id] == r.Finish[endID] && id < endID:
			endID = id
		}
	}
	if endID == "" {
		return r, nil
	}
	r.TotalHours = r.Finish[endID]

	// Walk predecessor pointers back to a root, then reverse.
	for id := endID; id != ""; id = r.Pred[id] {
		r.Path = append(r.Path, id)
	}
	for i, j := 0, len(r.Path)-1; i < j; i, j = i+1, j-1 {
		r.Path[i], r.Path[j] = r.Path[j], r.Path[i]
	}

	return r, nil
}

// topoSort performs Kahn's algorithm. Ready tasks are processed in
// ascending id order so the result is stable.
func topoSort(g *graph.Graph) ([]string, error) {
	inDegree := make(map[string]int, g.TaskCount())
	for id := range g.Tasks {
		inDegree[id] = len(g.Prerequisites(id))
	}

	var queue []string
	for id := range g.Tasks {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	var order []string
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		var newReady []string
		for _, succ := range g.Dependents(node) {
			inDegree[succ]--
			if inDegree[succ] == 0 {
				newReady = append(newReady, succ)
			}
		}
		sort.Strings(newReady)
		queue = append(queue, newReady...)
	}

	if len(order) != g.TaskCount() {
		return nil, fmt.Errorf("topological sort failed: graph has a cycle (%d of %d tasks sorted)",
			len(order), g.TaskCount())
	}

	return order, nil
}
