package cpm

import (
	"reflect"
	"testing"

	"github.com/HANSKMIEL/Optura/internal/graph"
	"github.com/HANSKMIEL/Optura/internal/task"
)

func buildGraph(t *testing.T, hours map[string]float64, edges []task.Edge) *graph.Graph {
	t.Helper()
	snap := &task.Snapshot{ProjectID: "p1"}
	for id, h := range hours {
		tk := task.New(id, "p1", "Task "+id)
		tk.EstimateHours = h
		snap.Tasks = append(snap.Tasks, tk)
	}
	snap.Edges = edges
	g, err := graph.Build(snap)
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	return g
}

func TestAnalyze_ChainWithParallelBranch(t *testing.T) {
	// a(2) -> b(3) -> c(4), plus a -> d(1)
	g := buildGraph(t,
		map[string]float64{"a": 2, "b": 3, "c": 4, "d": 1},
		[]task.Edge{
			{TaskID: "b", PrerequisiteID: "a"},
			{TaskID: "c", PrerequisiteID: "b"},
			{TaskID: "d", PrerequisiteID: "a"},
		})

	r, err := Analyze(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(r.Path, want) {
		t.Errorf("expected path %v, got %v", want, r.Path)
	}
	if r.TotalHours != 9 {
		t.Errorf("expected total 9, got %v", r.TotalHours)
	}
}

func TestAnalyze_Empty(t *testing.T) {
	g := buildGraph(t, nil, nil)
	r, err := Analyze(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Path) != 0 || r.TotalHours != 0 {
		t.Errorf("expected empty path and 0 total, got %v / %v", r.Path, r.TotalHours)
	}
}

func TestAnalyze_Diamond(t *testing.T) {
	// a(1) splits to b(5) and c(2), both reconverge at d(1).
	g := buildGraph(t,
		map[string]float64{"a": 1, "b": 5, "c": 2, "d": 1},
		[]task.Edge{
			{TaskID: "b", PrerequisiteID: "a"},
			{TaskID: "c", PrerequisiteID: "a"},
			{TaskID: "d", PrerequisiteID: "b"},
			{TaskID: "d", PrerequisiteID: "c"},
		})

	r, err := Analyze(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []string{"a", "b", "d"}; !reflect.DeepEqual(r.Path, want) {
		t.Errorf("expected path through the longer branch %v, got %v", want, r.Path)
	}
	if r.TotalHours != 7 {
		t.Errorf("expected total 7, got %v", r.TotalHours)
	}
}

func TestAnalyze_TieBreaksToLowestID(t *testing.T) {
	// Two parallel chains both totaling 5 hours; the path through the
	// lexicographically lower ids must win, every time.
	g := buildGraph(t,
		map[string]float64{"a1": 2, "a2": 3, "b1": 2, "b2": 3},
		[]task.Edge{
			{TaskID: "a2", PrerequisiteID: "a1"},
			{TaskID: "b2", PrerequisiteID: "b1"},
		})

	want := []string{"a1", "a2"}
	for i := 0; i < 10; i++ {
		r, err := Analyze(g)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(r.Path, want) {
			t.Fatalf("run %d: expected %v, got %v", i, want, r.Path)
		}
		if r.TotalHours != 5 {
			t.Fatalf("run %d: expected total 5, got %v", i, r.TotalHours)
		}
	}
}

func TestAnalyze_PredecessorTieBreaksToLowestID(t *testing.T) {
	// c has two prerequisites that finish at the same time; the path
	// must come through the lower id (a).
	g := buildGraph(t,
		map[string]float64{"a": 3, "b": 3, "c": 1},
		[]task.Edge{
			{TaskID: "c", PrerequisiteID: "a"},
			{TaskID: "c", PrerequisiteID: "b"},
		})

	r, err := Analyze(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []string{"a", "c"}; !reflect.DeepEqual(r.Path, want) {
		t.Errorf("expected %v, got %v", want, r.Path)
	}
}

func TestAnalyze_DisconnectedComponents(t *testing.T) {
	// Component 1: x(2) -> y(2). Component 2: m(10). The global maximum
	// lives in the second component.
	g := buildGraph(t,
		map[string]float64{"x": 2, "y": 2, "m": 10},
		[]task.Edge{{TaskID: "y", PrerequisiteID: "x"}})

	r, err := Analyze(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []string{"m"}; !reflect.DeepEqual(r.Path, want) {
		t.Errorf("expected global maximum path %v, got %v", want, r.Path)
	}
	if r.TotalHours != 10 {
		t.Errorf("expected total 10, got %v", r.TotalHours)
	}
}

func TestAnalyze_MissingEstimateCountsAsZero(t *testing.T) {
	g := buildGraph(t,
		map[string]float64{"a": -1, "b": 4}, // a has no estimate
		[]task.Edge{{TaskID: "b", PrerequisiteID: "a"}})

	r, err := Analyze(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.TotalHours != 4 {
		t.Errorf("expected total 4 (unknown estimate counts as 0), got %v", r.TotalHours)
	}
	if want := []string{"a", "b"}; !reflect.DeepEqual(r.Path, want) {
		t.Errorf("expected %v, got %v", want, r.Path)
	}
}

func TestAnalyze_FinishValues(t *testing.T) {
	g := buildGraph(t,
		map[string]float64{"a": 2, "b": 3, "c": 4, "d": 1},
		[]task.Edge{
			{TaskID: "b", PrerequisiteID: "a"},
			{TaskID: "c", PrerequisiteID: "b"},
			{TaskID: "d", PrerequisiteID: "a"},
		})

	r, err := Analyze(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]float64{"a": 2, "b": 5, "c": 9, "d": 3}
	for id, f := range want {
		if r.Finish[id] != f {
			t.Errorf("finish[%s]: expected %v, got %v", id, f, r.Finish[id])
		}
	}
}
