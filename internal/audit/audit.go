// Package audit records every mutation the engine performs: state
// transitions, reprioritisations and completed plan generations. The
// engine emits events; sinks decide where they go.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a single audit record.
type Event struct {
	ID        string         `json:"id"`
	ProjectID string         `json:"project_id"`
	TaskID    string         `json:"task_id,omitempty"`
	Action    string         `json:"action"`
	Actor     string         `json:"actor"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Sink receives audit events. Implementations must be safe for
// concurrent use.
type Sink interface {
	Record(ctx context.Context, ev Event) error
}

// Fill assigns an id and timestamp when the producer left them unset.
func Fill(ev Event) Event {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	if ev.Actor == "" {
		ev.Actor = "system"
	}
	return ev
}

// LogSink writes events as timestamped lines to a writer (stderr in the
// CLI). It never fails the caller's mutation.
type LogSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewLogSink creates a LogSink writing to w.
func NewLogSink(w io.Writer) *LogSink {
	return &LogSink{w: w}
}

func (s *LogSink) Record(_ context.Context, ev Event) error {
	ev = Fill(ev)
	details := ""
	if len(ev.Details) > 0 {
		if data, err := json.Marshal(ev.Details); err == nil {
			details = " " + string(data)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	target := ev.ProjectID
	if ev.TaskID != "" {
		target = ev.ProjectID + "/" + ev.TaskID
	}
	_, err := fmt.Fprintf(s.w, "[%s] %s %s by %s%s\n",
		ev.CreatedAt.Format(time.RFC3339), ev.Action, target, ev.Actor, details)
	return err
}

// MultiSink fans an event out to several sinks. The first error wins but
// every sink still sees the event.
type MultiSink []Sink

func (m MultiSink) Record(ctx context.Context, ev Event) error {
	ev = Fill(ev)
	var first error
	for _, s := range m {
		if err := s.Record(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Memory keeps events in order for tests.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

// NewMemory creates an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Record(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, Fill(ev))
	return nil
}

// Events returns a copy of the recorded events.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Actions returns just the action names, in record order.
func (m *Memory) Actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, ev := range m.events {
		out[i] = ev.Action
	}
	return out
}
