package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/HANSKMIEL/Optura/internal/task"
)

func newMachine() *machine {
	return &machine{
		threshold: 0.5,
		now:       func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func reviewTask(id string) *task.Task {
	t := task.New(id, "p1", "Task "+id)
	t.Status = task.StatusReview
	t.Spec = task.Document(`{"description":"do the thing"}`)
	return t
}

func passingResults() task.Document {
	return task.Document(`{"status":"pass","message":"12 passed"}`)
}

func TestApprove_WithoutSpec(t *testing.T) {
	m := newMachine()
	tk := task.New("t1", "p1", "no spec yet")
	tk.Status = task.StatusReview

	err := m.apply(tk, TransitionRequest{Action: ActionApprove, Actor: "alice"}, nil)
	var specErr *SpecMissingError
	if !errors.As(err, &specErr) {
		t.Fatalf("expected SpecMissingError, got %v", err)
	}
	if tk.Status != task.StatusReview {
		t.Errorf("status must not change on a rejected transition, got %s", tk.Status)
	}
}

func TestApprove_WrongStatus(t *testing.T) {
	m := newMachine()
	tk := task.New("t1", "p1", "x")
	tk.Spec = task.Document(`{"a":1}`)
	tk.Status = task.StatusInProgress

	err := m.apply(tk, TransitionRequest{Action: ActionApprove, Actor: "alice"}, nil)
	var invErr *InvalidTransitionError
	if !errors.As(err, &invErr) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if invErr.From != task.StatusInProgress || invErr.Action != ActionApprove {
		t.Errorf("error should carry current status and action, got %+v", invErr)
	}
}

func TestApprove_EmptyApprover(t *testing.T) {
	m := newMachine()
	tk := reviewTask("t1")

	err := m.apply(tk, TransitionRequest{Action: ActionApprove}, nil)
	if !errors.Is(err, ErrEmptyApprover) {
		t.Fatalf("expected ErrEmptyApprover, got %v", err)
	}
}

func TestApprove_FromPendingRequiresPolicy(t *testing.T) {
	tk := task.New("t1", "p1", "x")
	tk.Spec = task.Document(`{"a":1}`)

	m := newMachine()
	err := m.apply(tk, TransitionRequest{Action: ActionApprove, Actor: "alice"}, nil)
	var invErr *InvalidTransitionError
	if !errors.As(err, &invErr) {
		t.Fatalf("default policy is test-before-approval, expected InvalidTransitionError, got %v", err)
	}

	m.approveFromPending = true
	if err := m.apply(tk, TransitionRequest{Action: ActionApprove, Actor: "alice"}, nil); err != nil {
		t.Fatalf("approve from pending should pass with the policy enabled: %v", err)
	}
	if tk.Status != task.StatusApproved || tk.ApprovedBy != "alice" || tk.ApprovedAt == nil {
		t.Errorf("approval fields not set: %+v", tk)
	}
}

func TestComplete_WithoutTests(t *testing.T) {
	m := newMachine()
	tk := reviewTask("t1")

	err := m.apply(tk, TransitionRequest{Action: ActionComplete}, nil)
	var gateErr *TestGateError
	if !errors.As(err, &gateErr) {
		t.Fatalf("expected TestGateError, got %v", err)
	}
}

func TestComplete_WithFailedTests(t *testing.T) {
	m := newMachine()
	tk := reviewTask("t1")
	tk.TestResults = task.Document(`{"status":"fail","message":"2 failed"}`)

	err := m.apply(tk, TransitionRequest{Action: ActionComplete}, nil)
	var gateErr *TestGateError
	if !errors.As(err, &gateErr) {
		t.Fatalf("expected TestGateError for failed tests, got %v", err)
	}
}

func TestComplete_ApprovalGate(t *testing.T) {
	m := newMachine()
	tk := reviewTask("t1")
	tk.RequiresApproval = true
	tk.TestResults = passingResults()

	// Passing tests are not enough while approval is outstanding.
	err := m.apply(tk, TransitionRequest{Action: ActionComplete}, nil)
	var appErr *ApprovalRequiredError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected ApprovalRequiredError, got %v", err)
	}

	if err := m.apply(tk, TransitionRequest{Action: ActionApprove, Actor: "bob"}, nil); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := m.apply(tk, TransitionRequest{Action: ActionComplete}, nil); err != nil {
		t.Fatalf("complete after approval: %v", err)
	}
	if tk.Status != task.StatusCompleted {
		t.Errorf("expected completed, got %s", tk.Status)
	}
}

func TestComplete_NoApprovalNeeded(t *testing.T) {
	m := newMachine()
	tk := reviewTask("t1")
	tk.TestResults = passingResults()

	if err := m.apply(tk, TransitionRequest{Action: ActionComplete}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tk.Status != task.StatusCompleted {
		t.Errorf("expected completed, got %s", tk.Status)
	}
}

func TestRunTests_RequiresSpec(t *testing.T) {
	m := newMachine()
	tk := task.New("t1", "p1", "x")

	err := m.apply(tk, TransitionRequest{Action: ActionRunTests, TestResults: passingResults()}, nil)
	var specErr *SpecMissingError
	if !errors.As(err, &specErr) {
		t.Fatalf("expected SpecMissingError, got %v", err)
	}
	if tk.HasTestResults() {
		t.Error("test results must not be recorded when the spec gate fails")
	}
}

func TestRunTests_FailureRoutesToReview(t *testing.T) {
	m := newMachine()
	tk := task.New("t1", "p1", "x")
	tk.Spec = task.Document(`{"a":1}`)
	tk.Status = task.StatusInProgress

	req := TransitionRequest{
		Action:      ActionRunTests,
		TestResults: task.Document(`{"status":"error","message":"boom"}`),
	}
	if err := m.apply(tk, req, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tk.Status != task.StatusReview {
		t.Errorf("fail/error result should land in review, got %s", tk.Status)
	}
}

func TestRunTests_PassOnGatedTaskRoutesToReview(t *testing.T) {
	m := newMachine()
	tk := task.New("t1", "p1", "x")
	tk.Spec = task.Document(`{"a":1}`)
	tk.Status = task.StatusInProgress
	tk.RequiresApproval = true

	if err := m.apply(tk, TransitionRequest{Action: ActionRunTests, TestResults: passingResults()}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tk.Status != task.StatusReview {
		t.Errorf("gated task with passing tests awaits sign-off in review, got %s", tk.Status)
	}
}

func TestRunTests_PassOnUngatedTaskKeepsStatus(t *testing.T) {
	m := newMachine()
	tk := task.New("t1", "p1", "x")
	tk.Spec = task.Document(`{"a":1}`)
	tk.Status = task.StatusInProgress

	if err := m.apply(tk, TransitionRequest{Action: ActionRunTests, TestResults: passingResults()}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tk.Status != task.StatusInProgress {
		t.Errorf("ungated pass should not move status, got %s", tk.Status)
	}
}

func TestReject(t *testing.T) {
	m := newMachine()
	tk := reviewTask("t1")
	tk.Status = task.StatusApproved
	tk.ApprovedBy = "alice"
	at := time.Now()
	tk.ApprovedAt = &at

	req := TransitionRequest{Action: ActionReject, Actor: "bob", Reason: "spec is stale"}
	if err := m.apply(tk, req, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tk.Status != task.StatusPending {
		t.Errorf("expected pending after reject, got %s", tk.Status)
	}
	if tk.ApprovedBy != "" || tk.ApprovedAt != nil {
		t.Error("reject must clear the prior approval")
	}
	if tk.RejectionReason != "spec is stale" {
		t.Errorf("expected reason recorded, got %q", tk.RejectionReason)
	}

	err := m.apply(tk, TransitionRequest{Action: ActionReject}, nil)
	var invErr *InvalidTransitionError
	if !errors.As(err, &invErr) {
		t.Fatalf("reject from pending should fail, got %v", err)
	}
}

func TestStart(t *testing.T) {
	m := newMachine()
	tk := task.New("t1", "p1", "x")

	blocked := func() (bool, []string) { return false, []string{"t0"} }
	err := m.apply(tk, TransitionRequest{Action: ActionStart}, blocked)
	var depsErr *DependenciesUnsatisfiedError
	if !errors.As(err, &depsErr) {
		t.Fatalf("expected DependenciesUnsatisfiedError, got %v", err)
	}
	if len(depsErr.Missing) != 1 || depsErr.Missing[0] != "t0" {
		t.Errorf("error should name the missing prerequisites, got %v", depsErr.Missing)
	}

	clear := func() (bool, []string) { return true, nil }
	if err := m.apply(tk, TransitionRequest{Action: ActionStart}, clear); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tk.Status != task.StatusInProgress {
		t.Errorf("expected in_progress, got %s", tk.Status)
	}
}

func TestTerminalStatusRejectsEverything(t *testing.T) {
	m := newMachine()
	for _, status := range []task.Status{task.StatusCompleted, task.StatusFailed} {
		tk := reviewTask("t1")
		tk.Status = status
		tk.TestResults = passingResults()

		for _, action := range Actions {
			err := m.apply(tk, TransitionRequest{Action: action, Actor: "a"}, func() (bool, []string) { return true, nil })
			var invErr *InvalidTransitionError
			if !errors.As(err, &invErr) {
				t.Errorf("%s from %s: expected InvalidTransitionError, got %v", action, status, err)
			}
		}
	}
}

func TestAttachSpec_Statuses(t *testing.T) {
	m := newMachine()
	spec := task.Document(`{"description":"d"}`)

	for _, status := range []task.Status{task.StatusPending, task.StatusReview} {
		tk := task.New("t1", "p1", "x")
		tk.Status = status
		if err := m.apply(tk, TransitionRequest{Action: ActionAttachSpec, Spec: spec}, nil); err != nil {
			t.Errorf("attach_spec from %s: %v", status, err)
		}
		if tk.Status != status {
			t.Errorf("attach_spec must not change status, got %s", tk.Status)
		}
	}

	tk := task.New("t1", "p1", "x")
	tk.Status = task.StatusInProgress
	err := m.apply(tk, TransitionRequest{Action: ActionAttachSpec, Spec: spec}, nil)
	var invErr *InvalidTransitionError
	if !errors.As(err, &invErr) {
		t.Errorf("attach_spec from in_progress should fail, got %v", err)
	}
}

func TestAttachSpec_RejectsOutOfRangeConfidence(t *testing.T) {
	m := newMachine()
	for _, raw := range []string{
		`{"description":"d","confidence_score":-0.3}`,
		`{"description":"d","confidence_score":1.3}`,
	} {
		tk := task.New("t1", "p1", "x")
		err := m.apply(tk, TransitionRequest{Action: ActionAttachSpec, Spec: task.Document(raw)}, nil)
		if err == nil {
			t.Errorf("%s: out-of-range score must be rejected", raw)
		}
		if tk.HasSpec() || tk.HasConfidence() {
			t.Errorf("%s: a rejected spec must not be recorded: %+v", raw, tk)
		}
	}
}

func TestConfidenceRouting(t *testing.T) {
	m := newMachine()
	tk := task.New("t1", "p1", "x")

	m.routeConfidence(tk, 0.3)
	if !tk.RequiresApproval {
		t.Fatal("score below threshold must force requires_approval")
	}

	// A later, higher score must not lift the requirement.
	m.routeConfidence(tk, 0.9)
	if !tk.RequiresApproval {
		t.Error("requires_approval must never be cleared by confidence alone")
	}
	if tk.ConfidenceScore != 0.9 {
		t.Errorf("score should still update, got %v", tk.ConfidenceScore)
	}
}

func TestAttachSpec_EmbeddedConfidence(t *testing.T) {
	m := newMachine()
	tk := task.New("t1", "p1", "x")

	spec := task.Document(`{"description":"d","confidence_score":0.2}`)
	if err := m.apply(tk, TransitionRequest{Action: ActionAttachSpec, Spec: spec}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tk.RequiresApproval {
		t.Error("low embedded confidence must force the approval gate")
	}
}
