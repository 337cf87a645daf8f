// Package runner is the test-executor collaborator. It shells out to a
// configured command per task and hands the engine an opaque result
// document; the engine only ever inspects the status field.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/HANSKMIEL/Optura/internal/task"
)

// Executor produces a test_results document for a task.
type Executor interface {
	Run(ctx context.Context, t *task.Task) (task.Document, error)
}

// Command runs an external test command. The command receives the task id
// as its final argument and is expected to print a JSON object with at
// least {"status": "pass"|"fail"|"error"}; non-JSON output is wrapped
// into an error-status document rather than failing the caller.
type Command struct {
	Bin     string
	Args    []string
	Timeout time.Duration
}

// NewCommand creates a Command executor. Timeout defaults to 60s, the
// sandbox default.
func NewCommand(bin string, args ...string) *Command {
	return &Command{Bin: bin, Args: args, Timeout: 60 * time.Second}
}

func (c *Command) Run(ctx context.Context, t *task.Task) (task.Document, error) {
	if c.Bin == "" {
		return nil, fmt.Errorf("no test command configured")
	}
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	args := append(append([]string(nil), c.Args...), t.ID)
	cmd := exec.CommandContext(ctx, c.Bin, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	runErr := cmd.Run()
	doc := extractResult(out.String())
	if doc != nil {
		return doc, nil
	}

	// The command produced no parseable result. Report what happened as
	// an error-status document so run_tests still records an outcome.
	status := task.TestError
	msg := strings.TrimSpace(out.String())
	if runErr != nil {
		if msg != "" {
			msg = runErr.Error() + ": " + msg
		} else {
			msg = runErr.Error()
		}
	}
	if ctx.Err() == context.DeadlineExceeded {
		msg = "test run timed out after " + c.Timeout.String()
	}
	return resultDocument(status, msg), nil
}

// extractResult scans command output for the last line that is a JSON
// object carrying a status field.
func extractResult(output string) task.Document {
	lines := strings.Split(output, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" || !strings.HasPrefix(line, "{") {
			continue
		}
		if !gjson.Valid(line) {
			continue
		}
		if gjson.Get(line, "status").Exists() {
			return task.Document(line)
		}
	}
	return nil
}

func resultDocument(status, message string) task.Document {
	return task.Document(fmt.Sprintf(`{"status":%q,"message":%q}`, status, message))
}

// Static is an Executor returning a fixed document, used in tests and
// dry runs.
type Static struct {
	Result task.Document
	Err    error
}

func (s *Static) Run(context.Context, *task.Task) (task.Document, error) {
	return s.Result, s.Err
}
