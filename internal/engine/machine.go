package engine

import (
	"fmt"
	"time"

	"github.com/HANSKMIEL/Optura/internal/task"
)

// Action names the lifecycle transitions a caller may request.
type Action string

const (
	ActionAttachSpec Action = "attach_spec"
	ActionRunTests   Action = "run_tests"
	ActionApprove    Action = "approve"
	ActionReject     Action = "reject"
	ActionComplete   Action = "complete"
	ActionStart      Action = "start"
)

// Actions lists every caller-invokable action. mark_blocked is derived by
// reconciliation and is deliberately absent.
var Actions = []Action{
	ActionAttachSpec, ActionRunTests, ActionApprove,
	ActionReject, ActionComplete, ActionStart,
}

// KnownAction reports whether a is a caller-invokable action.
func KnownAction(a Action) bool {
	for _, known := range Actions {
		if a == known {
			return true
		}
	}
	return false
}

// TransitionRequest carries an action and its payload.
type TransitionRequest struct {
	Action Action
	Actor  string

	// Spec is the document for attach_spec.
	Spec task.Document
	// TestResults is the executor's result document for run_tests.
	TestResults task.Document
	// Reason is the rejection reason for reject.
	Reason string
}

// machine applies the guardrail rules. It mutates the given copy of the
// task; persistence and retries happen in the engine around it.
type machine struct {
	threshold          float64 // confidence below this forces approval
	approveFromPending bool    // permit sign-off before tests have run
	now                func() time.Time
}

// depsCheck answers whether every prerequisite of the task is completed.
// Supplied by the engine from a freshly built graph; actions that do not
// consult dependencies never call it.
type depsCheck func() (satisfied bool, missing []string)

// apply runs one transition against t. On a guard failure the returned
// error names the violated rule and t is left untouched by the caller
// (the engine discards the copy).
func (m *machine) apply(t *task.Task, req TransitionRequest, deps depsCheck) error {
	if t.Status.Terminal() {
		return &InvalidTransitionError{TaskID: t.ID, From: t.Status, Action: req.Action}
	}

	switch req.Action {
	case ActionAttachSpec:
		return m.attachSpec(t, req)
	case ActionRunTests:
		return m.runTests(t, req)
	case ActionApprove:
		return m.approve(t, req)
	case ActionReject:
		return m.reject(t, req)
	case ActionComplete:
		return m.complete(t)
	case ActionStart:
		return m.start(t, deps)
	default:
		return &InvalidTransitionError{TaskID: t.ID, From: t.Status, Action: req.Action}
	}
}

// attachSpec binds a spec document. Allowed while the task is still being
// shaped (pending) or has bounced back for rework (review). Status is
// unchanged. A confidence_score carried inside the spec re-routes the
// approval requirement.
func (m *machine) attachSpec(t *task.Task, req TransitionRequest) error {
	if t.Status != task.StatusPending && t.Status != task.StatusReview {
		return &InvalidTransitionError{TaskID: t.ID, From: t.Status, Action: ActionAttachSpec}
	}
	if score := req.Spec.Field("confidence_score"); score.Exists() {
		if score.Float() < 0 || score.Float() > 1 {
			return fmt.Errorf("task %s: spec confidence_score must be in [0,1], got %v",
				t.ID, score.Float())
		}
		t.Spec = req.Spec
		m.routeConfidence(t, score.Float())
		return nil
	}
	t.Spec = req.Spec
	return nil
}

// runTests stores the executor's result. A fail/error result sends the
// task to review for rework; a passing result moves an approval-gated
// task to review so a human can sign off, and otherwise leaves status
// alone (the task is immediately completable).
func (m *machine) runTests(t *task.Task, req TransitionRequest) error {
	if !t.HasSpec() {
		return &SpecMissingError{TaskID: t.ID, Action: ActionRunTests}
	}
	t.TestResults = req.TestResults
	result := task.ParseTestResult(t.TestResults)
	switch {
	case !result.Passed():
		t.Status = task.StatusReview
	case t.RequiresApproval && t.Status != task.StatusApproved:
		t.Status = task.StatusReview
	}
	return nil
}

// approve records human sign-off. The spec must exist, the approver must
// be named, and the task must be in review (or pending, when the
// approve-before-test policy is configured).
func (m *machine) approve(t *task.Task, req TransitionRequest) error {
	if !t.HasSpec() {
		return &SpecMissingError{TaskID: t.ID, Action: ActionApprove}
	}
	allowed := t.Status == task.StatusReview ||
		(m.approveFromPending && t.Status == task.StatusPending)
	if !allowed {
		return &InvalidTransitionError{TaskID: t.ID, From: t.Status, Action: ActionApprove}
	}
	if req.Actor == "" {
		return ErrEmptyApprover
	}
	at := m.now()
	t.Status = task.StatusApproved
	t.ApprovedBy = req.Actor
	t.ApprovedAt = &at
	t.RejectionReason = ""
	return nil
}

// reject sends a task back to pending with a recorded reason and clears
// any prior approval.
func (m *machine) reject(t *task.Task, req TransitionRequest) error {
	if t.Status != task.StatusReview && t.Status != task.StatusApproved {
		return &InvalidTransitionError{TaskID: t.ID, From: t.Status, Action: ActionReject}
	}
	t.Status = task.StatusPending
	t.RejectionReason = req.Reason
	t.ApprovedBy = ""
	t.ApprovedAt = nil
	return nil
}

// complete closes a task. Guards: a test result must exist and indicate
// success, and approval-gated tasks must have been approved.
func (m *machine) complete(t *task.Task) error {
	if !t.HasTestResults() {
		return &TestGateError{TaskID: t.ID, Reason: "no test results recorded"}
	}
	result := task.ParseTestResult(t.TestResults)
	if !result.Passed() {
		reason := "tests did not pass"
		if result.Status != "" {
			reason = "test status is " + result.Status
		}
		return &TestGateError{TaskID: t.ID, Reason: reason}
	}
	if t.RequiresApproval && (t.Status != task.StatusApproved || t.ApprovedBy == "") {
		return &ApprovalRequiredError{TaskID: t.ID}
	}
	t.Status = task.StatusCompleted
	return nil
}

// start moves a pending task with satisfied dependencies into
// in_progress.
func (m *machine) start(t *task.Task, deps depsCheck) error {
	if t.Status != task.StatusPending {
		return &InvalidTransitionError{TaskID: t.ID, From: t.Status, Action: ActionStart}
	}
	satisfied, missing := deps()
	if !satisfied {
		return &DependenciesUnsatisfiedError{TaskID: t.ID, Missing: missing}
	}
	t.Status = task.StatusInProgress
	return nil
}

// routeConfidence re-evaluates the approval requirement after a
// confidence score is set or changed. A low score can only add the
// requirement; it never clears one.
func (m *machine) routeConfidence(t *task.Task, score float64) {
	t.ConfidenceScore = score
	if score < m.threshold {
		t.RequiresApproval = true
	}
}
