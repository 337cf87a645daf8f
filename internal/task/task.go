// Package task defines the task record, its lifecycle statuses, and the
// open-document payloads (spec, test results) that the guardrails inspect.
package task

import (
	"time"

	"github.com/tidwall/gjson"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusReview     Status = "review"
	StatusApproved   Status = "approved"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Statuses lists every status in reporting order.
var Statuses = []Status{
	StatusPending,
	StatusInProgress,
	StatusBlocked,
	StatusReview,
	StatusApproved,
	StatusCompleted,
	StatusFailed,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether the status ends the lifecycle.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Document is a free-form JSON payload (a spec or a test-result record).
// The engine only inspects the fields its guardrails need; everything else
// rides along untouched.
type Document []byte

// Empty reports whether the document is absent or trivially blank.
func (d Document) Empty() bool {
	if len(d) == 0 {
		return true
	}
	v := gjson.ParseBytes(d)
	switch v.Type {
	case gjson.Null:
		return true
	case gjson.JSON:
		return v.Raw == "{}" || v.Raw == "[]"
	}
	return false
}

// Field extracts a named field from the document.
func (d Document) Field(path string) gjson.Result {
	return gjson.GetBytes(d, path)
}

// Test result statuses as they appear in a test_results document.
const (
	TestPass  = "pass"
	TestFail  = "fail"
	TestError = "error"
)

// TestResult is the minimal view of a test_results document that the
// completion gate inspects.
type TestResult struct {
	Status  string
	Message string
}

// ParseTestResult extracts the gated fields from a test_results document.
// A "passed" status from older executors is normalised to pass.
func ParseTestResult(d Document) TestResult {
	st := d.Field("status").String()
	if st == "passed" {
		st = TestPass
	}
	if st == "failed" {
		st = TestFail
	}
	return TestResult{
		Status:  st,
		Message: d.Field("message").String(),
	}
}

// Passed reports whether the result indicates success.
func (r TestResult) Passed() bool {
	return r.Status == TestPass
}

// Task is a unit of work with a guarded lifecycle.
type Task struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	Status    Status `json:"status"`

	// EstimateHours < 0 means unknown; the calculators treat unknown as 0
	// and reporting flags it separately.
	EstimateHours float64 `json:"estimate_hours"`

	// ConfidenceScore < 0 means unset. Values below the configured
	// threshold force RequiresApproval.
	ConfidenceScore  float64 `json:"confidence_score"`
	RequiresApproval bool    `json:"requires_approval"`

	Spec        Document `json:"spec,omitempty"`
	TestResults Document `json:"test_results,omitempty"`

	ApprovedBy      string     `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`

	Order int `json:"order"`

	// Version increments on every persisted write; mutations carry the
	// version they read so the store can reject stale writes.
	Version int64 `json:"version"`
}

// New returns a pending task with unknown estimate and confidence.
func New(id, projectID, name string) *Task {
	return &Task{
		ID:              id,
		ProjectID:       projectID,
		Name:            name,
		Status:          StatusPending,
		EstimateHours:   -1,
		ConfidenceScore: -1,
	}
}

// Clone returns a deep copy. Document payloads are copied so callers can
// mutate one record without aliasing the snapshot.
func (t *Task) Clone() *Task {
	c := *t
	if t.Spec != nil {
		c.Spec = append(Document(nil), t.Spec...)
	}
	if t.TestResults != nil {
		c.TestResults = append(Document(nil), t.TestResults...)
	}
	if t.ApprovedAt != nil {
		at := *t.ApprovedAt
		c.ApprovedAt = &at
	}
	return &c
}

// HasSpec reports whether a spec document is attached. Derived once here
// so the state machine never re-checks raw nil-ness at call sites.
func (t *Task) HasSpec() bool {
	return !t.Spec.Empty()
}

// HasTestResults reports whether any test result is attached.
func (t *Task) HasTestResults() bool {
	return !t.TestResults.Empty()
}

// HasEstimate reports whether a duration estimate is known.
func (t *Task) HasEstimate() bool {
	return t.EstimateHours >= 0
}

// Hours returns the estimate used by the scheduler: unknown counts as 0.
func (t *Task) Hours() float64 {
	if t.EstimateHours < 0 {
		return 0
	}
	return t.EstimateHours
}

// HasConfidence reports whether a confidence score has been set.
func (t *Task) HasConfidence() bool {
	return t.ConfidenceScore >= 0
}

// Edge is a directed dependency: Task cannot complete planning-wise until
// Prerequisite is completed. Unique per ordered pair, no self-loops.
type Edge struct {
	TaskID         string `json:"task_id"`
	PrerequisiteID string `json:"prerequisite_id"`
}

// Snapshot is a project's tasks and edges at a point in time. Calculators
// operate on snapshots and never mutate them.
type Snapshot struct {
	ProjectID string
	Tasks     []*Task
	Edges     []Edge
}
