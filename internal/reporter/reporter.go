// Package reporter renders engine query results for the terminal.
package reporter

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/HANSKMIEL/Optura/internal/engine"
	"github.com/HANSKMIEL/Optura/internal/ui"
)

// PrintJSON writes any result as indented JSON.
func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrintGraph writes the dependency graph as an indented node list.
func PrintGraph(w io.Writer, view *engine.GraphView) {
	fmt.Fprintf(w, "%s %s — %d tasks, %d edges\n\n",
		ui.BoldCyan("Dependency graph"), ui.Dim(view.ProjectID),
		len(view.Nodes), len(view.Edges))

	prereqs := make(map[string][]string)
	for _, e := range view.Edges {
		prereqs[e.To] = append(prereqs[e.To], e.From)
	}

	for _, n := range view.Nodes {
		gate := ""
		if n.RequiresApproval {
			gate = " " + ui.Yellow("⚑ approval")
		}
		fmt.Fprintf(w, "  %s %s %s %s%s\n",
			ui.StatusIcon(n.Status), ui.TaskPrefix(n.ID), ui.Bold(n.Name),
			ui.Dim(fmt.Sprintf("(%.1fh, order %d)", n.EstimateHours, n.Order)), gate)
		for _, pre := range prereqs[n.ID] {
			fmt.Fprintf(w, "      %s %s\n", ui.Dim("needs"), ui.TaskPrefix(pre))
		}
	}
}

// PrintCriticalPath writes the critical path in execution order.
func PrintCriticalPath(w io.Writer, result *engine.CriticalPathResult) {
	if len(result.CriticalPath) == 0 {
		fmt.Fprintf(w, "%s no tasks\n", ui.Dim("Critical path:"))
		return
	}
	fmt.Fprintf(w, "%s %s total\n\n",
		ui.BoldCyan("Critical path"),
		ui.Bold(fmt.Sprintf("%.1fh", result.TotalHours)))
	for i, step := range result.CriticalPath {
		arrow := "├─"
		if i == len(result.CriticalPath)-1 {
			arrow = "└─"
		}
		fmt.Fprintf(w, "  %s %s %s %s\n",
			ui.Dim(arrow), ui.TaskPrefix(step.TaskID), ui.Bold(step.Name),
			ui.Dim(fmt.Sprintf("(%.1fh)", step.EstimateHours)))
	}
}

// PrintNextActions writes the actionable / needs-approval / blocked / done
// partition.
func PrintNextActions(w io.Writer, na *engine.NextActions) {
	section := func(title string, styled string, items []engine.ActionItem) {
		fmt.Fprintf(w, "%s (%d)\n", styled, len(items))
		if len(items) == 0 {
			fmt.Fprintf(w, "  %s\n", ui.Dim("none"))
		}
		for _, item := range items {
			line := fmt.Sprintf("  %s %s %s",
				ui.StatusIcon(item.Status), ui.TaskPrefix(item.TaskID), item.Name)
			if title == "blocked" && len(item.BlockedBy) > 0 {
				line += " " + ui.Dim(fmt.Sprintf("waiting on %v", item.BlockedBy))
			}
			fmt.Fprintln(w, line)
		}
		fmt.Fprintln(w)
	}
	section("actionable", ui.BoldGreen("Actionable"), na.Actionable)
	section("needs_approval", ui.BoldYellow("Needs approval"), na.NeedsApproval)
	section("blocked", ui.BoldRed("Blocked"), na.Blocked)
	section("done", ui.Dim("Done"), na.Done)
}

// PrintSummary writes the per-status rollup.
func PrintSummary(w io.Writer, s *engine.StatusSummary) {
	fmt.Fprintf(w, "%s %s — %d tasks, %s complete\n\n",
		ui.BoldCyan("Status"), ui.Dim(s.ProjectID), s.TotalTasks,
		ui.Bold(fmt.Sprintf("%.0f%%", s.ProgressPercent)))

	rows := []struct {
		label string
		count int
	}{
		{"pending", s.Pending},
		{"in_progress", s.InProgress},
		{"blocked", s.Blocked},
		{"review", s.Review},
		{"approved", s.Approved},
		{"completed", s.Completed},
		{"failed", s.Failed},
	}
	for _, row := range rows {
		if row.count == 0 {
			continue
		}
		fmt.Fprintf(w, "  %-12s %d\n", row.label, row.count)
	}
	fmt.Fprintf(w, "\n  %-12s %.1fh of %.1fh estimated\n", "hours", s.CompletedEstimateHours, s.TotalEstimateHours)
	if s.UnestimatedTasks > 0 {
		fmt.Fprintf(w, "  %s\n", ui.Yellow(fmt.Sprintf("%d task(s) without an estimate", s.UnestimatedTasks)))
	}
}

// PrintReprioritize writes the order changes.
func PrintReprioritize(w io.Writer, r *engine.ReprioritizeResult) {
	if len(r.Changes) == 0 {
		fmt.Fprintf(w, "%s order already optimal (%d tasks)\n", ui.Green("✓"), r.TotalTasks)
		return
	}
	fmt.Fprintf(w, "%s %d of %d tasks moved\n\n", ui.BoldCyan("Reprioritized"), len(r.Changes), r.TotalTasks)
	for _, c := range r.Changes {
		fmt.Fprintf(w, "  %s %s %s\n", ui.TaskPrefix(c.TaskID), c.Name,
			ui.Dim(fmt.Sprintf("%d -> %d", c.OldOrder, c.NewOrder)))
	}
}
