// Package store persists projects, tasks, dependency edges and audit
// events. The engine talks to the Repository interface only; SQLite and
// in-memory implementations are provided.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/HANSKMIEL/Optura/internal/task"
)

var (
	// ErrNotFound is returned when a project or task does not exist.
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict is returned when a write carries a stale task
	// version. The caller re-reads and retries.
	ErrVersionConflict = errors.New("version conflict")
	// ErrDuplicateEdge is returned when a dependency edge already exists.
	ErrDuplicateEdge = errors.New("dependency edge already exists")
	// ErrSelfDependency is returned when a task is made to depend on itself.
	ErrSelfDependency = errors.New("task cannot depend on itself")
)

// Project is the aggregation boundary for tasks and edges.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Goal      string    `json:"goal,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository supplies task snapshots and accepts versioned writes. All
// writes are atomic with respect to other mutators of the same task:
// UpdateTask succeeds only when the stored version matches the version
// the caller read.
type Repository interface {
	CreateProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, projectID string) (*Project, error)
	ListProjects(ctx context.Context) ([]*Project, error)

	// Snapshot returns a project's tasks and edges at a point in time.
	// The returned records are copies; mutating them does not affect the
	// store.
	Snapshot(ctx context.Context, projectID string) (*task.Snapshot, error)

	GetTask(ctx context.Context, taskID string) (*task.Task, error)
	CreateTask(ctx context.Context, t *task.Task) error

	// UpdateTask persists t if t.Version matches the stored version,
	// then increments it. Returns ErrVersionConflict on a stale write.
	UpdateTask(ctx context.Context, t *task.Task) error

	// AddEdge records a dependency edge. Both tasks must exist in the
	// project; self-loops and duplicates are rejected, and an edge that
	// would create a cycle fails with *graph.CycleError. The validation
	// and the insert are atomic with respect to concurrent adds, so the
	// stored edge set is a DAG after every call.
	AddEdge(ctx context.Context, projectID string, e task.Edge) error
	RemoveEdge(ctx context.Context, projectID string, e task.Edge) error
}
