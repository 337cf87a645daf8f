package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/HANSKMIEL/Optura/internal/audit"
)

// Record persists an audit event, making SQLite usable as an audit.Sink.
func (s *SQLite) Record(ctx context.Context, ev audit.Event) error {
	ev = audit.Fill(ev)
	details, err := json.Marshal(ev.Details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, project_id, task_id, action, actor, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.ProjectID, ev.TaskID, ev.Action, ev.Actor, string(details), ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("record audit event: %w", err)
	}
	return nil
}

// AuditTrail returns a project's audit events, newest first, up to limit
// (0 means no limit).
func (s *SQLite) AuditTrail(ctx context.Context, projectID string, limit int) ([]audit.Event, error) {
	q := `SELECT id, project_id, task_id, action, actor, details, created_at
	      FROM audit_log WHERE project_id = ? ORDER BY created_at DESC, id`
	args := []any{projectID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("audit trail: %w", err)
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var (
			ev      audit.Event
			details string
			at      time.Time
		)
		if err := rows.Scan(&ev.ID, &ev.ProjectID, &ev.TaskID, &ev.Action,
			&ev.Actor, &details, &at); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		ev.CreatedAt = at
		if details != "" && details != "null" {
			if err := json.Unmarshal([]byte(details), &ev.Details); err != nil {
				return nil, fmt.Errorf("parse audit details: %w", err)
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
