package engine

import (
	"errors"
	"fmt"

	"github.com/HANSKMIEL/Optura/internal/graph"
	"github.com/HANSKMIEL/Optura/internal/store"
	"github.com/HANSKMIEL/Optura/internal/task"
)

// Code is a machine-readable error code surfaced to API and CLI callers.
type Code string

const (
	CodeCycle                   Code = "cycle"
	CodeDanglingReference       Code = "dangling_reference"
	CodeInvalidTransition       Code = "invalid_transition"
	CodeSpecMissing             Code = "spec_missing"
	CodeTestGate                Code = "test_gate"
	CodeApprovalRequired        Code = "approval_required"
	CodeDependenciesUnsatisfied Code = "dependencies_unsatisfied"
	CodeConcurrentModification  Code = "concurrent_modification"
	CodeNotFound                Code = "not_found"
	CodeInternal                Code = "internal"
)

// InvalidTransitionError reports an action that is not legal from the
// task's current status.
type InvalidTransitionError struct {
	TaskID string
	From   task.Status
	Action Action
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("task %s: cannot %s from status %s", e.TaskID, e.Action, e.From)
}

// SpecMissingError reports an action that requires an attached spec.
type SpecMissingError struct {
	TaskID string
	Action Action
}

func (e *SpecMissingError) Error() string {
	return fmt.Sprintf("task %s: cannot %s without a spec", e.TaskID, e.Action)
}

// TestGateError reports a completion attempt without a passing test result.
type TestGateError struct {
	TaskID string
	Reason string
}

func (e *TestGateError) Error() string {
	return fmt.Sprintf("task %s: test gate: %s", e.TaskID, e.Reason)
}

// ApprovalRequiredError reports a completion attempt on a task that still
// needs human sign-off.
type ApprovalRequiredError struct {
	TaskID string
}

func (e *ApprovalRequiredError) Error() string {
	return fmt.Sprintf("task %s: requires human approval before completion", e.TaskID)
}

// DependenciesUnsatisfiedError reports a start attempt while prerequisites
// remain incomplete.
type DependenciesUnsatisfiedError struct {
	TaskID  string
	Missing []string
}

func (e *DependenciesUnsatisfiedError) Error() string {
	return fmt.Sprintf("task %s: prerequisites not completed: %v", e.TaskID, e.Missing)
}

// ConcurrentModificationError reports that a mutation kept losing the
// optimistic version race and the bounded retries ran out.
type ConcurrentModificationError struct {
	TaskID   string
	Attempts int
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("task %s: concurrent modification, gave up after %d attempts",
		e.TaskID, e.Attempts)
}

// ErrEmptyApprover rejects an approval that carries no approver identity.
var ErrEmptyApprover = errors.New("approval requires a non-empty approver identity")

// CodeOf maps an engine, graph or store error to its wire code.
func CodeOf(err error) Code {
	var (
		cycleErr    *graph.CycleError
		danglingErr *graph.DanglingReferenceError
		invalidErr  *InvalidTransitionError
		specErr     *SpecMissingError
		testErr     *TestGateError
		approvalErr *ApprovalRequiredError
		depsErr     *DependenciesUnsatisfiedError
		conflictErr *ConcurrentModificationError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &cycleErr):
		return CodeCycle
	case errors.As(err, &danglingErr):
		return CodeDanglingReference
	case errors.As(err, &invalidErr):
		return CodeInvalidTransition
	case errors.As(err, &specErr):
		return CodeSpecMissing
	case errors.As(err, &testErr):
		return CodeTestGate
	case errors.As(err, &approvalErr):
		return CodeApprovalRequired
	case errors.As(err, &depsErr):
		return CodeDependenciesUnsatisfied
	case errors.As(err, &conflictErr):
		return CodeConcurrentModification
	case errors.Is(err, ErrEmptyApprover):
		return CodeApprovalRequired
	case errors.Is(err, store.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, store.ErrVersionConflict):
		return CodeConcurrentModification
	default:
		return CodeInternal
	}
}
