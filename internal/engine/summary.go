package engine

import (
	"github.com/HANSKMIEL/Optura/internal/task"
)

// StatusSummary rolls up a project's task counts and hours.
type StatusSummary struct {
	ProjectID  string `json:"project_id"`
	TotalTasks int    `json:"total_tasks"`

	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Blocked    int `json:"blocked"`
	Review     int `json:"review"`
	Approved   int `json:"approved"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`

	ProgressPercent float64 `json:"progress_percent"`

	CompletedEstimateHours float64 `json:"completed_estimate_hours"`
	TotalEstimateHours     float64 `json:"total_estimate_hours"`

	// UnestimatedTasks counts tasks with no duration estimate; their
	// contribution to the hour totals is 0 and scheduling over them is
	// low-confidence.
	UnestimatedTasks int `json:"unestimated_tasks"`
}

// summarize aggregates a snapshot. Pure; safe on a stale snapshot.
func summarize(snap *task.Snapshot) *StatusSummary {
	s := &StatusSummary{
		ProjectID:  snap.ProjectID,
		TotalTasks: len(snap.Tasks),
	}

	for _, t := range snap.Tasks {
		switch t.Status {
		case task.StatusPending:
			s.Pending++
		case task.StatusInProgress:
			s.InProgress++
		case task.StatusBlocked:
			s.Blocked++
		case task.StatusReview:
			s.Review++
		case task.StatusApproved:
			s.Approved++
		case task.StatusCompleted:
			s.Completed++
			s.CompletedEstimateHours += t.Hours()
		case task.StatusFailed:
			s.Failed++
		}
		s.TotalEstimateHours += t.Hours()
		if !t.HasEstimate() {
			s.UnestimatedTasks++
		}
	}

	if s.TotalTasks > 0 {
		s.ProgressPercent = float64(s.Completed) / float64(s.TotalTasks) * 100
	}
	return s
}
