package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/HANSKMIEL/Optura/internal/graph"
	"github.com/HANSKMIEL/Optura/internal/task"
)

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	goal       TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id                TEXT PRIMARY KEY,
	project_id        TEXT NOT NULL REFERENCES projects(id),
	name              TEXT NOT NULL,
	status            TEXT NOT NULL,
	estimate_hours    REAL,
	confidence_score  REAL,
	requires_approval INTEGER NOT NULL DEFAULT 0,
	spec              TEXT,
	test_results      TEXT,
	approved_by       TEXT NOT NULL DEFAULT '',
	approved_at       TIMESTAMP,
	rejection_reason  TEXT NOT NULL DEFAULT '',
	task_order        INTEGER NOT NULL DEFAULT 0,
	version           INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id);

CREATE TABLE IF NOT EXISTS task_dependencies (
	task_id         TEXT NOT NULL REFERENCES tasks(id),
	prerequisite_id TEXT NOT NULL REFERENCES tasks(id),
	PRIMARY KEY (task_id, prerequisite_id)
);

CREATE TABLE IF NOT EXISTS audit_log (
	id         TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	task_id    TEXT NOT NULL DEFAULT '',
	action     TEXT NOT NULL,
	actor      TEXT NOT NULL,
	details    TEXT NOT NULL DEFAULT '{}',
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_project ON audit_log(project_id);
`

// SQLite is a Repository backed by a SQLite database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies
// the schema.
func OpenSQLite(path string) (*SQLite, error) {
	// _txlock=immediate serializes writing transactions at BEGIN, so
	// AddEdge's validate-and-insert sees a settled edge set.
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) CreateProject(ctx context.Context, p *Project) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, goal, created_at) VALUES (?, ?, ?, ?)`,
		p.ID, p.Name, p.Goal, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("create project %s: %w", p.ID, err)
	}
	return nil
}

func (s *SQLite) GetProject(ctx context.Context, projectID string) (*Project, error) {
	p := &Project{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, goal, created_at FROM projects WHERE id = ?`, projectID).
		Scan(&p.ID, &p.Name, &p.Goal, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", projectID, err)
	}
	return p, nil
}

func (s *SQLite) ListProjects(ctx context.Context) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, goal, created_at FROM projects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []*Project
	for rows.Next() {
		p := &Project{}
		if err := rows.Scan(&p.ID, &p.Name, &p.Goal, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const taskColumns = `id, project_id, name, status, estimate_hours, confidence_score,
	requires_approval, spec, test_results, approved_by, approved_at,
	rejection_reason, task_order, version`

func scanTask(scan func(...any) error) (*task.Task, error) {
	t := &task.Task{}
	var (
		estimate   sql.NullFloat64
		confidence sql.NullFloat64
		spec       sql.NullString
		results    sql.NullString
		approvedAt sql.NullTime
	)
	err := scan(&t.ID, &t.ProjectID, &t.Name, &t.Status, &estimate, &confidence,
		&t.RequiresApproval, &spec, &results, &t.ApprovedBy, &approvedAt,
		&t.RejectionReason, &t.Order, &t.Version)
	if err != nil {
		return nil, err
	}
	t.EstimateHours = -1
	if estimate.Valid {
		t.EstimateHours = estimate.Float64
	}
	t.ConfidenceScore = -1
	if confidence.Valid {
		t.ConfidenceScore = confidence.Float64
	}
	if spec.Valid && spec.String != "" {
		t.Spec = task.Document(spec.String)
	}
	if results.Valid && results.String != "" {
		t.TestResults = task.Document(results.String)
	}
	if approvedAt.Valid {
		at := approvedAt.Time
		t.ApprovedAt = &at
	}
	return t, nil
}

func taskArgs(t *task.Task) []any {
	var (
		estimate   any
		confidence any
		spec       any
		results    any
		approvedAt any
	)
	if t.HasEstimate() {
		estimate = t.EstimateHours
	}
	if t.HasConfidence() {
		confidence = t.ConfidenceScore
	}
	if len(t.Spec) > 0 {
		spec = string(t.Spec)
	}
	if len(t.TestResults) > 0 {
		results = string(t.TestResults)
	}
	if t.ApprovedAt != nil {
		approvedAt = *t.ApprovedAt
	}
	return []any{t.ID, t.ProjectID, t.Name, t.Status, estimate, confidence,
		t.RequiresApproval, spec, results, t.ApprovedBy, approvedAt,
		t.RejectionReason, t.Order, t.Version}
}

func (s *SQLite) Snapshot(ctx context.Context, projectID string) (*task.Snapshot, error) {
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE project_id = ? ORDER BY id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("snapshot tasks: %w", err)
	}
	defer rows.Close()

	snap := &task.Snapshot{ProjectID: projectID}
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		snap.Tasks = append(snap.Tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	edgeRows, err := s.db.QueryContext(ctx,
		`SELECT d.task_id, d.prerequisite_id FROM task_dependencies d
		 JOIN tasks t ON t.id = d.task_id WHERE t.project_id = ?
		 ORDER BY d.task_id, d.prerequisite_id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("snapshot edges: %w", err)
	}
	defer edgeRows.Close()

	for edgeRows.Next() {
		var e task.Edge
		if err := edgeRows.Scan(&e.TaskID, &e.PrerequisiteID); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		snap.Edges = append(snap.Edges, e)
	}
	return snap, edgeRows.Err()
}

func (s *SQLite) GetTask(ctx context.Context, taskID string) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, taskID)
	t, err := scanTask(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", taskID, err)
	}
	return t, nil
}

func (s *SQLite) CreateTask(ctx context.Context, t *task.Task) error {
	if _, err := s.GetProject(ctx, t.ProjectID); err != nil {
		return err
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", 14), ", ")
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES (`+placeholders+`)`,
		taskArgs(t)...)
	if err != nil {
		return fmt.Errorf("create task %s: %w", t.ID, err)
	}
	return nil
}

// UpdateTask writes t only when the stored version matches t.Version.
// The guarded UPDATE makes read-modify-write safe across processes.
func (s *SQLite) UpdateTask(ctx context.Context, t *task.Task) error {
	args := taskArgs(t)[2:] // skip id, project_id
	args = append(args[:len(args)-1], t.Version+1, t.ID, t.Version)
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET name = ?, status = ?, estimate_hours = ?,
			confidence_score = ?, requires_approval = ?, spec = ?,
			test_results = ?, approved_by = ?, approved_at = ?,
			rejection_reason = ?, task_order = ?, version = ?
		 WHERE id = ? AND version = ?`, args...)
	if err != nil {
		return fmt.Errorf("update task %s: %w", t.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update task %s: %w", t.ID, err)
	}
	if n == 0 {
		if _, getErr := s.GetTask(ctx, t.ID); getErr != nil {
			return getErr
		}
		return fmt.Errorf("task %s: stale write at version %d: %w",
			t.ID, t.Version, ErrVersionConflict)
	}
	t.Version++
	return nil
}

// AddEdge validates and inserts inside one write transaction. Writers
// serialize at BEGIN, so the cycle check always runs against the edge
// set the insert will join.
func (s *SQLite) AddEdge(ctx context.Context, projectID string, e task.Edge) error {
	if e.TaskID == e.PrerequisiteID {
		return fmt.Errorf("edge (%s -> %s): %w", e.TaskID, e.PrerequisiteID, ErrSelfDependency)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("add edge: %w", err)
	}
	defer tx.Rollback()

	for _, id := range []string{e.TaskID, e.PrerequisiteID} {
		var pid string
		err := tx.QueryRowContext(ctx,
			`SELECT project_id FROM tasks WHERE id = ?`, id).Scan(&pid)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("add edge: %w", err)
		}
		if pid != projectID {
			return fmt.Errorf("task %s: not in project %s: %w", id, projectID, ErrNotFound)
		}
	}

	candidate, err := edgeCandidate(ctx, tx, projectID, e)
	if err != nil {
		return err
	}
	if _, err := graph.Build(candidate); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO task_dependencies (task_id, prerequisite_id) VALUES (?, ?)`,
		e.TaskID, e.PrerequisiteID)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("edge (%s -> %s): %w", e.TaskID, e.PrerequisiteID, ErrDuplicateEdge)
		}
		return fmt.Errorf("add edge: %w", err)
	}
	return tx.Commit()
}

// edgeCandidate assembles the project's task ids and edges plus the new
// edge, read within the caller's transaction. Stub task records suffice:
// only ids matter for the structural checks.
func edgeCandidate(ctx context.Context, tx *sql.Tx, projectID string, e task.Edge) (*task.Snapshot, error) {
	candidate := &task.Snapshot{ProjectID: projectID}

	taskRows, err := tx.QueryContext(ctx,
		`SELECT id FROM tasks WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, fmt.Errorf("add edge: %w", err)
	}
	for taskRows.Next() {
		var id string
		if err := taskRows.Scan(&id); err != nil {
			taskRows.Close()
			return nil, fmt.Errorf("scan task id: %w", err)
		}
		candidate.Tasks = append(candidate.Tasks, task.New(id, projectID, ""))
	}
	if err := taskRows.Err(); err != nil {
		return nil, err
	}
	taskRows.Close()

	edgeRows, err := tx.QueryContext(ctx,
		`SELECT d.task_id, d.prerequisite_id FROM task_dependencies d
		 JOIN tasks t ON t.id = d.task_id WHERE t.project_id = ?`, projectID)
	if err != nil {
		return nil, fmt.Errorf("add edge: %w", err)
	}
	defer edgeRows.Close()
	for edgeRows.Next() {
		var cur task.Edge
		if err := edgeRows.Scan(&cur.TaskID, &cur.PrerequisiteID); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		if cur == e {
			return nil, fmt.Errorf("edge (%s -> %s): %w", e.TaskID, e.PrerequisiteID, ErrDuplicateEdge)
		}
		candidate.Edges = append(candidate.Edges, cur)
	}
	if err := edgeRows.Err(); err != nil {
		return nil, err
	}

	candidate.Edges = append(candidate.Edges, e)
	return candidate, nil
}

func (s *SQLite) RemoveEdge(ctx context.Context, projectID string, e task.Edge) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM task_dependencies WHERE task_id = ? AND prerequisite_id = ?`,
		e.TaskID, e.PrerequisiteID)
	if err != nil {
		return fmt.Errorf("remove edge: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("edge (%s -> %s): %w", e.TaskID, e.PrerequisiteID, ErrNotFound)
	}
	return nil
}
