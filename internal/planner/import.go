package planner

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/HANSKMIEL/Optura/internal/audit"
	"github.com/HANSKMIEL/Optura/internal/engine"
	"github.com/HANSKMIEL/Optura/internal/task"
)

// Apply materialises a plan into a project: one task per proposal (the
// proposal body becomes the task's spec document, so confidence routing
// fires on creation) and one dependency edge per depends_on reference.
// Returns plan key -> created task id.
func Apply(ctx context.Context, eng *engine.Engine, sink audit.Sink, projectID string, plan *Plan, actor string) (map[string]string, error) {
	ids := make(map[string]string, len(plan.Tasks))

	for _, pt := range plan.Tasks {
		spec, err := specDocument(pt)
		if err != nil {
			return nil, err
		}
		estimate := pt.EstimateHours
		confidence := pt.ConfidenceScore
		created, err := eng.CreateTask(ctx, projectID, engine.CreateTaskParams{
			Name:            pt.Name,
			EstimateHours:   &estimate,
			ConfidenceScore: &confidence,
			Spec:            spec,
			Actor:           actor,
		})
		if err != nil {
			return nil, fmt.Errorf("create task for plan key %q: %w", pt.Key, err)
		}
		ids[pt.Key] = created.ID
	}

	for _, pt := range plan.Tasks {
		for _, dep := range pt.DependsOn {
			edge := task.Edge{TaskID: ids[pt.Key], PrerequisiteID: ids[dep]}
			if err := eng.AddDependency(ctx, projectID, edge, actor); err != nil {
				return nil, fmt.Errorf("add dependency %s -> %s: %w", pt.Key, dep, err)
			}
		}
	}

	if sink != nil {
		_ = sink.Record(ctx, audit.Event{
			ProjectID: projectID,
			Action:    "plan_generated",
			Actor:     actor,
			Details: map[string]any{
				"task_count": len(plan.Tasks),
				"summary":    plan.Summary,
			},
		})
	}
	return ids, nil
}

// specDocument turns a proposal into the task's spec payload. The engine
// only reads confidence_score; the rest rides along for humans.
func specDocument(pt ProposedTask) (task.Document, error) {
	doc, err := json.Marshal(map[string]any{
		"source":           "planner",
		"description":      pt.Description,
		"confidence_score": pt.ConfidenceScore,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal spec for %q: %w", pt.Key, err)
	}
	return task.Document(doc), nil
}
