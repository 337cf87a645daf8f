package engine

import (
	"github.com/HANSKMIEL/Optura/internal/graph"
	"github.com/HANSKMIEL/Optura/internal/task"
)

// Bucket is a next-actions category. Every task lands in exactly one.
type Bucket string

const (
	// BucketActionable: work can proceed right now — pending with all
	// prerequisites completed, already in progress, or in review with no
	// human sign-off required.
	BucketActionable Bucket = "actionable"
	// BucketNeedsApproval: a human decision is outstanding — in review
	// and approval-gated, or approved and awaiting completion.
	BucketNeedsApproval Bucket = "needs_approval"
	// BucketBlocked: prerequisites incomplete or explicitly blocked.
	BucketBlocked Bucket = "blocked"
	// BucketDone: terminal (completed or failed); no further action.
	BucketDone Bucket = "done"
)

// Classify assigns t to exactly one bucket. The checks are ordered:
// terminal state first, then outstanding human decisions, then blocking,
// then actionable as the remainder — so the partition is total and
// disjoint by construction.
func Classify(g *graph.Graph, t *task.Task) Bucket {
	switch {
	case t.Status.Terminal():
		return BucketDone
	case t.Status == task.StatusApproved,
		t.Status == task.StatusReview && t.RequiresApproval:
		return BucketNeedsApproval
	case t.Status == task.StatusBlocked, !g.DependenciesSatisfied(t.ID):
		return BucketBlocked
	default:
		return BucketActionable
	}
}

// ActionItem is one entry in a next-actions bucket.
type ActionItem struct {
	TaskID        string      `json:"task_id"`
	Name          string      `json:"name"`
	Status        task.Status `json:"status"`
	EstimateHours float64     `json:"estimate_hours"`
	// BlockedBy lists the incomplete prerequisites (blocked bucket only).
	BlockedBy []string `json:"blocked_by,omitempty"`
}

// NextActions is the live partition of a project's tasks.
type NextActions struct {
	ProjectID     string       `json:"project_id"`
	Actionable    []ActionItem `json:"actionable"`
	NeedsApproval []ActionItem `json:"needs_approval"`
	Blocked       []ActionItem `json:"blocked"`
	Done          []ActionItem `json:"done"`
}

// partition buckets every task of the graph. Tasks are visited in id
// order so the result is stable.
func partition(g *graph.Graph) *NextActions {
	na := &NextActions{}
	for _, id := range g.SortedIDs() {
		t := g.Tasks[id]
		item := ActionItem{
			TaskID:        t.ID,
			Name:          t.Name,
			Status:        t.Status,
			EstimateHours: t.Hours(),
		}
		switch Classify(g, t) {
		case BucketActionable:
			na.Actionable = append(na.Actionable, item)
		case BucketNeedsApproval:
			na.NeedsApproval = append(na.NeedsApproval, item)
		case BucketBlocked:
			item.BlockedBy = g.UnsatisfiedPrerequisites(t.ID)
			na.Blocked = append(na.Blocked, item)
		case BucketDone:
			na.Done = append(na.Done, item)
		}
	}
	return na
}
