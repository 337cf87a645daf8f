package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/HANSKMIEL/Optura/internal/graph"
	"github.com/HANSKMIEL/Optura/internal/task"
)

// Memory is an in-process Repository. It backs tests and ephemeral runs
// and enforces the same version discipline as the SQLite store.
type Memory struct {
	mu       sync.RWMutex
	projects map[string]*Project
	tasks    map[string]*task.Task
	edges    map[string][]task.Edge // project id -> edges
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{
		projects: make(map[string]*Project),
		tasks:    make(map[string]*task.Task),
		edges:    make(map[string][]task.Edge),
	}
}

func (m *Memory) CreateProject(_ context.Context, p *Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[p.ID]; ok {
		return fmt.Errorf("project %s: already exists", p.ID)
	}
	cp := *p
	m.projects[p.ID] = &cp
	return nil
}

func (m *Memory) GetProject(_ context.Context, projectID string) (*Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[projectID]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) ListProjects(_ context.Context) ([]*Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Project, 0, len(m.projects))
	for _, p := range m.projects {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Snapshot(_ context.Context, projectID string) (*task.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.projects[projectID]; !ok {
		return nil, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}

	snap := &task.Snapshot{ProjectID: projectID}
	for _, t := range m.tasks {
		if t.ProjectID == projectID {
			snap.Tasks = append(snap.Tasks, t.Clone())
		}
	}
	sort.Slice(snap.Tasks, func(i, j int) bool { return snap.Tasks[i].ID < snap.Tasks[j].ID })
	snap.Edges = append(snap.Edges, m.edges[projectID]...)
	return snap, nil
}

func (m *Memory) GetTask(_ context.Context, taskID string) (*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	return t.Clone(), nil
}

func (m *Memory) CreateTask(_ context.Context, t *task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[t.ProjectID]; !ok {
		return fmt.Errorf("project %s: %w", t.ProjectID, ErrNotFound)
	}
	if _, ok := m.tasks[t.ID]; ok {
		return fmt.Errorf("task %s: already exists", t.ID)
	}
	m.tasks[t.ID] = t.Clone()
	return nil
}

func (m *Memory) UpdateTask(_ context.Context, t *task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.tasks[t.ID]
	if !ok {
		return fmt.Errorf("task %s: %w", t.ID, ErrNotFound)
	}
	if cur.Version != t.Version {
		return fmt.Errorf("task %s: stored version %d, write carried %d: %w",
			t.ID, cur.Version, t.Version, ErrVersionConflict)
	}
	next := t.Clone()
	next.Version++
	m.tasks[t.ID] = next
	t.Version = next.Version
	return nil
}

func (m *Memory) AddEdge(_ context.Context, projectID string, e task.Edge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.TaskID == e.PrerequisiteID {
		return fmt.Errorf("edge (%s -> %s): %w", e.TaskID, e.PrerequisiteID, ErrSelfDependency)
	}
	for _, id := range []string{e.TaskID, e.PrerequisiteID} {
		t, ok := m.tasks[id]
		if !ok || t.ProjectID != projectID {
			return fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
	}
	for _, existing := range m.edges[projectID] {
		if existing == e {
			return fmt.Errorf("edge (%s -> %s): %w", e.TaskID, e.PrerequisiteID, ErrDuplicateEdge)
		}
	}

	// Validate-and-insert is atomic: the candidate graph is checked under
	// the same lock that guards the write, so concurrent adds cannot
	// race a cycle into the store.
	candidate := &task.Snapshot{ProjectID: projectID}
	for _, t := range m.tasks {
		if t.ProjectID == projectID {
			candidate.Tasks = append(candidate.Tasks, t)
		}
	}
	candidate.Edges = append(append([]task.Edge(nil), m.edges[projectID]...), e)
	if _, err := graph.Build(candidate); err != nil {
		return err
	}

	m.edges[projectID] = append(m.edges[projectID], e)
	return nil
}

func (m *Memory) RemoveEdge(_ context.Context, projectID string, e task.Edge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	edges := m.edges[projectID]
	for i, existing := range edges {
		if existing == e {
			m.edges[projectID] = append(edges[:i], edges[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("edge (%s -> %s): %w", e.TaskID, e.PrerequisiteID, ErrNotFound)
}
