package engine

import (
	"context"
	"errors"
	"sort"

	"github.com/HANSKMIEL/Optura/internal/audit"
	"github.com/HANSKMIEL/Optura/internal/cpm"
	"github.com/HANSKMIEL/Optura/internal/store"
)

// OrderChange records one task's move during reprioritisation.
type OrderChange struct {
	TaskID   string `json:"task_id"`
	Name     string `json:"name"`
	OldOrder int    `json:"old_order"`
	NewOrder int    `json:"new_order"`
}

// ReprioritizeResult reports the recomputed presentation order.
type ReprioritizeResult struct {
	ProjectID string `json:"project_id"`
	// UpdatedOrder lists every task with its (possibly unchanged) order.
	UpdatedOrder []OrderChange `json:"updated_order"`
	// Changes lists only the tasks whose order moved.
	Changes    []OrderChange `json:"changes"`
	TotalTasks int           `json:"total_tasks"`
}

// Reprioritize recomputes the order field for every task of a project:
// critical-path tasks take the lowest values in path sequence, the rest
// follow by descending longest-finish time, ties by id. Only order is
// written; status never changes here.
func (e *Engine) Reprioritize(ctx context.Context, projectID, actor string) (*ReprioritizeResult, error) {
	g, err := e.buildGraph(ctx, projectID)
	if err != nil {
		return nil, err
	}
	r, err := cpm.Analyze(g)
	if err != nil {
		return nil, err
	}

	onPath := make(map[string]bool, len(r.Path))
	ranked := make([]string, 0, g.TaskCount())
	for _, id := range r.Path {
		onPath[id] = true
		ranked = append(ranked, id)
	}

	rest := make([]string, 0, g.TaskCount()-len(ranked))
	for _, id := range g.SortedIDs() {
		if !onPath[id] {
			rest = append(rest, id)
		}
	}
	sort.SliceStable(rest, func(i, j int) bool {
		fi, fj := r.Finish[rest[i]], r.Finish[rest[j]]
		if fi != fj {
			return fi > fj
		}
		return rest[i] < rest[j]
	})
	ranked = append(ranked, rest...)

	result := &ReprioritizeResult{ProjectID: projectID, TotalTasks: len(ranked)}
	for newOrder, id := range ranked {
		t := g.Tasks[id]
		change := OrderChange{
			TaskID:   id,
			Name:     t.Name,
			OldOrder: t.Order,
			NewOrder: newOrder,
		}
		result.UpdatedOrder = append(result.UpdatedOrder, change)
		if t.Order == newOrder {
			continue
		}

		if err := e.writeOrder(ctx, id, newOrder); err != nil {
			return nil, err
		}
		result.Changes = append(result.Changes, change)
	}

	if len(result.Changes) > 0 {
		e.record(ctx, audit.Event{
			ProjectID: projectID,
			Action:    "tasks_reprioritized",
			Actor:     actor,
			Details: map[string]any{
				"change_count": len(result.Changes),
				"total_tasks":  result.TotalTasks,
			},
		})
	}
	return result, nil
}

// writeOrder updates a single task's order with the usual version
// discipline. The fresh read keeps concurrent transitions intact: only
// the order field is rewritten.
func (e *Engine) writeOrder(ctx context.Context, taskID string, order int) error {
	attempts := 0
	for {
		attempts++
		t, err := e.repo.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if t.Order == order {
			return nil
		}
		t.Order = order
		err = e.repo.UpdateTask(ctx, t)
		if errors.Is(err, store.ErrVersionConflict) {
			if attempts > e.cfg.MaxRetries {
				return &ConcurrentModificationError{TaskID: taskID, Attempts: attempts}
			}
			continue
		}
		return err
	}
}
