// Package engine is the task orchestration core: it builds dependency
// graphs, answers planning queries over them, and guards every task
// status mutation behind the lifecycle rules.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/HANSKMIEL/Optura/internal/audit"
	"github.com/HANSKMIEL/Optura/internal/cpm"
	"github.com/HANSKMIEL/Optura/internal/graph"
	"github.com/HANSKMIEL/Optura/internal/store"
	"github.com/HANSKMIEL/Optura/internal/task"
)

// Config tunes the guardrails.
type Config struct {
	// ConfidenceThreshold: a confidence score below this forces
	// requires_approval. Default 0.5.
	ConfidenceThreshold float64
	// ApproveFromPending permits approval before tests have run
	// (spec-first sign-off). Default false: test-before-approval.
	ApproveFromPending bool
	// MaxRetries bounds optimistic-concurrency retries per mutation.
	// Default 3.
	MaxRetries int
}

// DefaultConfig returns the standard guardrail configuration.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.5,
		MaxRetries:          3,
	}
}

// Engine orchestrates a project's tasks over a Repository. Queries read
// a snapshot and are pure; mutations go through the state machine with a
// version check on write.
type Engine struct {
	repo    store.Repository
	sink    audit.Sink
	cfg     Config
	machine *machine
	now     func() time.Time
}

// New creates an Engine. A nil sink discards audit events.
func New(repo store.Repository, sink audit.Sink, cfg Config) *Engine {
	if cfg.ConfidenceThreshold == 0 {
		cfg.ConfidenceThreshold = 0.5
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if sink == nil {
		sink = audit.MultiSink{}
	}
	now := func() time.Time { return time.Now().UTC() }
	return &Engine{
		repo: repo,
		sink: sink,
		cfg:  cfg,
		machine: &machine{
			threshold:          cfg.ConfidenceThreshold,
			approveFromPending: cfg.ApproveFromPending,
			now:                now,
		},
		now: now,
	}
}

func (e *Engine) buildGraph(ctx context.Context, projectID string) (*graph.Graph, error) {
	snap, err := e.repo.Snapshot(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return graph.Build(snap)
}

// GraphNode is one task in the dependency-graph view.
type GraphNode struct {
	ID               string      `json:"id"`
	Name             string      `json:"name"`
	Status           task.Status `json:"status"`
	EstimateHours    float64     `json:"estimate_hours"`
	RequiresApproval bool        `json:"requires_approval"`
	Order            int         `json:"order"`
}

// GraphEdge is a dependency edge in the view, prerequisite first.
type GraphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// GraphView is the dependency graph as exposed to front ends.
type GraphView struct {
	ProjectID string      `json:"project_id"`
	Nodes     []GraphNode `json:"nodes"`
	Edges     []GraphEdge `json:"edges"`
}

// BuildDependencyGraph validates and returns the project's dependency
// graph. Structural errors (cycle, dangling reference) are surfaced,
// never repaired.
func (e *Engine) BuildDependencyGraph(ctx context.Context, projectID string) (*GraphView, error) {
	g, err := e.buildGraph(ctx, projectID)
	if err != nil {
		return nil, err
	}

	view := &GraphView{ProjectID: projectID}
	for _, id := range g.SortedIDs() {
		t := g.Tasks[id]
		view.Nodes = append(view.Nodes, GraphNode{
			ID:               t.ID,
			Name:             t.Name,
			Status:           t.Status,
			EstimateHours:    t.Hours(),
			RequiresApproval: t.RequiresApproval,
			Order:            t.Order,
		})
		for _, dep := range g.Dependents(id) {
			view.Edges = append(view.Edges, GraphEdge{From: id, To: dep})
		}
	}
	return view, nil
}

// PathStep is one task along the critical path.
type PathStep struct {
	TaskID        string  `json:"task_id"`
	Name          string  `json:"name"`
	EstimateHours float64 `json:"estimate_hours"`
}

// CriticalPathResult is the longest-duration chain through the project.
type CriticalPathResult struct {
	ProjectID    string     `json:"project_id"`
	CriticalPath []PathStep `json:"critical_path"`
	TotalHours   float64    `json:"total_hours"`
}

// CriticalPath computes the critical path. Deterministic: identical
// snapshots always produce the same path.
func (e *Engine) CriticalPath(ctx context.Context, projectID string) (*CriticalPathResult, error) {
	g, err := e.buildGraph(ctx, projectID)
	if err != nil {
		return nil, err
	}
	r, err := cpm.Analyze(g)
	if err != nil {
		return nil, err
	}

	out := &CriticalPathResult{ProjectID: projectID, TotalHours: r.TotalHours}
	for _, id := range r.Path {
		t := g.Tasks[id]
		out.CriticalPath = append(out.CriticalPath, PathStep{
			TaskID:        t.ID,
			Name:          t.Name,
			EstimateHours: t.Hours(),
		})
	}
	return out, nil
}

// NextActions partitions the project's tasks into actionable,
// needs-approval, blocked and done.
func (e *Engine) NextActions(ctx context.Context, projectID string) (*NextActions, error) {
	g, err := e.buildGraph(ctx, projectID)
	if err != nil {
		return nil, err
	}
	na := partition(g)
	na.ProjectID = projectID
	return na, nil
}

// Summary aggregates per-status counts, progress and hours.
func (e *Engine) Summary(ctx context.Context, projectID string) (*StatusSummary, error) {
	snap, err := e.repo.Snapshot(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return summarize(snap), nil
}

// CreateTaskParams are the caller-settable fields of a new task.
type CreateTaskParams struct {
	Name             string
	EstimateHours    *float64
	ConfidenceScore  *float64
	RequiresApproval bool
	Spec             task.Document
	Actor            string
}

// CreateTask creates a pending task, applying confidence routing before
// the record is first persisted.
func (e *Engine) CreateTask(ctx context.Context, projectID string, p CreateTaskParams) (*task.Task, error) {
	t := task.New(uuid.NewString(), projectID, p.Name)
	if p.EstimateHours != nil {
		if *p.EstimateHours < 0 {
			return nil, fmt.Errorf("estimate_hours must be non-negative, got %v", *p.EstimateHours)
		}
		t.EstimateHours = *p.EstimateHours
	}
	t.RequiresApproval = p.RequiresApproval
	t.Spec = p.Spec
	if p.ConfidenceScore != nil {
		if *p.ConfidenceScore < 0 || *p.ConfidenceScore > 1 {
			return nil, fmt.Errorf("confidence_score must be in [0,1], got %v", *p.ConfidenceScore)
		}
		e.machine.routeConfidence(t, *p.ConfidenceScore)
	} else if score := t.Spec.Field("confidence_score"); score.Exists() {
		if score.Float() < 0 || score.Float() > 1 {
			return nil, fmt.Errorf("spec confidence_score must be in [0,1], got %v", score.Float())
		}
		e.machine.routeConfidence(t, score.Float())
	}

	if err := e.repo.CreateTask(ctx, t); err != nil {
		return nil, err
	}
	e.record(ctx, audit.Event{
		ProjectID: projectID,
		TaskID:    t.ID,
		Action:    "task_created",
		Actor:     p.Actor,
		Details:   map[string]any{"name": t.Name},
	})
	return t, nil
}

// AddDependency records a prerequisite edge. The store validates and
// inserts atomically, so concurrent adds cannot race a cycle past the
// check; an edge that would close a cycle fails with *graph.CycleError.
func (e *Engine) AddDependency(ctx context.Context, projectID string, edge task.Edge, actor string) error {
	if err := e.repo.AddEdge(ctx, projectID, edge); err != nil {
		if errors.Is(err, store.ErrDuplicateEdge) {
			return nil // idempotent
		}
		return err
	}
	e.record(ctx, audit.Event{
		ProjectID: projectID,
		TaskID:    edge.TaskID,
		Action:    "dependency_added",
		Actor:     actor,
		Details:   map[string]any{"prerequisite_id": edge.PrerequisiteID},
	})
	// A new prerequisite may invalidate a previously startable task.
	e.reconcileBlocked(ctx, projectID)
	return nil
}

// RemoveDependency deletes a prerequisite edge. Structural errors are
// never repaired automatically; this is the manual repair path.
func (e *Engine) RemoveDependency(ctx context.Context, projectID string, edge task.Edge, actor string) error {
	if err := e.repo.RemoveEdge(ctx, projectID, edge); err != nil {
		return err
	}
	e.record(ctx, audit.Event{
		ProjectID: projectID,
		TaskID:    edge.TaskID,
		Action:    "dependency_removed",
		Actor:     actor,
		Details:   map[string]any{"prerequisite_id": edge.PrerequisiteID},
	})
	// Dropping a prerequisite may free a previously blocked task.
	e.reconcileBlocked(ctx, projectID)
	return nil
}

// Transition runs one guarded lifecycle action against a task. The
// read-modify-write is retried on version conflicts up to the configured
// bound, then surfaced as ConcurrentModificationError. Guard failures are
// returned immediately and never change the task.
func (e *Engine) Transition(ctx context.Context, taskID string, req TransitionRequest) (*task.Task, error) {
	if !KnownAction(req.Action) {
		return nil, &InvalidTransitionError{TaskID: taskID, Action: req.Action}
	}

	var updated *task.Task
	attempts := 0
	for {
		attempts++
		t, err := e.repo.GetTask(ctx, taskID)
		if err != nil {
			return nil, err
		}

		deps := func() (bool, []string) { return true, nil }
		if req.Action == ActionStart {
			g, err := e.buildGraph(ctx, t.ProjectID)
			if err != nil {
				return nil, err
			}
			deps = func() (bool, []string) {
				missing := g.UnsatisfiedPrerequisites(taskID)
				return len(missing) == 0, missing
			}
		}

		if err := e.machine.apply(t, req, deps); err != nil {
			return nil, err
		}

		err = e.repo.UpdateTask(ctx, t)
		if errors.Is(err, store.ErrVersionConflict) {
			if attempts > e.cfg.MaxRetries {
				return nil, &ConcurrentModificationError{TaskID: taskID, Attempts: attempts}
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		updated = t
		break
	}

	e.record(ctx, audit.Event{
		ProjectID: updated.ProjectID,
		TaskID:    updated.ID,
		Action:    "task_" + string(req.Action),
		Actor:     req.Actor,
		Details:   transitionDetails(updated, req),
	})

	// Completion and rejection change what downstream tasks can do;
	// refresh the derived blocked markers.
	if req.Action == ActionComplete || req.Action == ActionReject {
		e.reconcileBlocked(ctx, updated.ProjectID)
	}
	return updated, nil
}

func transitionDetails(t *task.Task, req TransitionRequest) map[string]any {
	details := map[string]any{"status": string(t.Status)}
	switch req.Action {
	case ActionReject:
		details["reason"] = req.Reason
	case ActionApprove:
		details["approved_by"] = t.ApprovedBy
	case ActionRunTests:
		details["result"] = task.ParseTestResult(t.TestResults).Status
	}
	return details
}

// SetConfidence records a task's confidence score and re-evaluates the
// approval requirement. Routing only ever adds the requirement.
func (e *Engine) SetConfidence(ctx context.Context, taskID string, score float64, actor string) (*task.Task, error) {
	if score < 0 || score > 1 {
		return nil, fmt.Errorf("confidence_score must be in [0,1], got %v", score)
	}
	attempts := 0
	for {
		attempts++
		t, err := e.repo.GetTask(ctx, taskID)
		if err != nil {
			return nil, err
		}
		e.machine.routeConfidence(t, score)

		err = e.repo.UpdateTask(ctx, t)
		if errors.Is(err, store.ErrVersionConflict) {
			if attempts > e.cfg.MaxRetries {
				return nil, &ConcurrentModificationError{TaskID: taskID, Attempts: attempts}
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		e.record(ctx, audit.Event{
			ProjectID: t.ProjectID,
			TaskID:    t.ID,
			Action:    "confidence_scored",
			Actor:     actor,
			Details: map[string]any{
				"confidence_score":  score,
				"requires_approval": t.RequiresApproval,
			},
		})
		return t, nil
	}
}

// reconcileBlocked derives the blocked status: pending tasks with
// incomplete prerequisites become blocked, blocked tasks whose
// prerequisites completed return to pending. Best-effort; a conflicting
// write loses the race and the next reconcile catches up.
func (e *Engine) reconcileBlocked(ctx context.Context, projectID string) {
	g, err := e.buildGraph(ctx, projectID)
	if err != nil {
		return
	}
	for _, id := range g.SortedIDs() {
		t := g.Tasks[id]
		satisfied := g.DependenciesSatisfied(id)
		switch {
		case t.Status == task.StatusPending && !satisfied:
			t.Status = task.StatusBlocked
		case t.Status == task.StatusBlocked && satisfied:
			t.Status = task.StatusPending
		default:
			continue
		}
		if err := e.repo.UpdateTask(ctx, t); err != nil {
			continue
		}
		e.record(ctx, audit.Event{
			ProjectID: projectID,
			TaskID:    t.ID,
			Action:    "task_" + string(t.Status),
			Actor:     "orchestrator",
			Details:   map[string]any{"derived": true},
		})
	}
}

// record emits an audit event; audit failures never fail the mutation
// they describe.
func (e *Engine) record(ctx context.Context, ev audit.Event) {
	_ = e.sink.Record(ctx, ev)
}
