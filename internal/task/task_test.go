package task

import (
	"testing"
	"time"
)

func TestDocumentEmpty(t *testing.T) {
	cases := []struct {
		name string
		doc  Document
		want bool
	}{
		{"nil", nil, true},
		{"zero length", Document(""), true},
		{"null", Document("null"), true},
		{"empty object", Document("{}"), true},
		{"empty array", Document("[]"), true},
		{"object", Document(`{"a":1}`), false},
		{"string", Document(`"x"`), false},
		{"number", Document(`0`), false},
	}
	for _, c := range cases {
		if got := c.doc.Empty(); got != c.want {
			t.Errorf("%s: Empty() = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestDocumentField(t *testing.T) {
	doc := Document(`{"confidence_score":0.4,"nested":{"deep":"v"}}`)
	if got := doc.Field("confidence_score").Float(); got != 0.4 {
		t.Errorf("expected 0.4, got %v", got)
	}
	if got := doc.Field("nested.deep").String(); got != "v" {
		t.Errorf("expected v, got %q", got)
	}
	if doc.Field("missing").Exists() {
		t.Error("missing field must not exist")
	}
}

func TestParseTestResult(t *testing.T) {
	cases := []struct {
		in     string
		status string
		passed bool
	}{
		{`{"status":"pass","message":"ok"}`, TestPass, true},
		{`{"status":"passed"}`, TestPass, true}, // older executors
		{`{"status":"fail"}`, TestFail, false},
		{`{"status":"failed"}`, TestFail, false},
		{`{"status":"error","message":"boom"}`, TestError, false},
		{`{}`, "", false},
	}
	for _, c := range cases {
		r := ParseTestResult(Document(c.in))
		if r.Status != c.status {
			t.Errorf("%s: status = %q, want %q", c.in, r.Status, c.status)
		}
		if r.Passed() != c.passed {
			t.Errorf("%s: Passed() = %v, want %v", c.in, r.Passed(), c.passed)
		}
	}
}

func TestNew(t *testing.T) {
	tk := New("t1", "p1", "fresh")
	if tk.Status != StatusPending {
		t.Errorf("new tasks start pending, got %s", tk.Status)
	}
	if tk.HasEstimate() || tk.HasConfidence() {
		t.Error("new tasks have no estimate or confidence")
	}
	if tk.Hours() != 0 {
		t.Errorf("unknown estimate must schedule as 0, got %v", tk.Hours())
	}
}

func TestClone(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	orig := New("t1", "p1", "x")
	orig.Spec = Document(`{"a":1}`)
	orig.TestResults = Document(`{"status":"pass"}`)
	orig.ApprovedAt = &at

	c := orig.Clone()
	c.Spec[1] = 'z'
	c.TestResults[1] = 'z'
	*c.ApprovedAt = at.Add(time.Hour)

	if string(orig.Spec) != `{"a":1}` {
		t.Errorf("clone aliased the spec: %s", orig.Spec)
	}
	if string(orig.TestResults) != `{"status":"pass"}` {
		t.Errorf("clone aliased the test results: %s", orig.TestResults)
	}
	if !orig.ApprovedAt.Equal(at) {
		t.Errorf("clone aliased approved_at: %v", orig.ApprovedAt)
	}
}

func TestStatus(t *testing.T) {
	for _, s := range Statuses {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if Status("limbo").Valid() {
		t.Error("unknown status must be invalid")
	}

	terminal := map[Status]bool{StatusCompleted: true, StatusFailed: true}
	for _, s := range Statuses {
		if s.Terminal() != terminal[s] {
			t.Errorf("%s: Terminal() = %v, want %v", s, s.Terminal(), terminal[s])
		}
	}
}
