// Package planner is the plan-generation collaborator: it asks Claude to
// decompose a project goal into tasks and dependency edges. Proposals
// enter the engine through normal task creation, where confidence
// routing decides which ones demand human approval.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ProposedTask is one task suggested by the model.
type ProposedTask struct {
	Key             string   `json:"key"` // plan-local handle used in depends_on
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	EstimateHours   float64  `json:"estimate_hours"`
	ConfidenceScore float64  `json:"confidence_score"`
	DependsOn       []string `json:"depends_on,omitempty"`
}

// Plan is the model's full decomposition of a project goal.
type Plan struct {
	Tasks   []ProposedTask `json:"tasks"`
	Summary string         `json:"summary"`
}

// Client wraps the Anthropic SDK for plan generation.
type Client struct {
	inner anthropic.Client
	model anthropic.Model
}

// NewClient creates a planner client. apiKey defaults to the
// ANTHROPIC_API_KEY env var; model defaults to Claude Sonnet.
func NewClient(apiKey, model string) (*Client, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
	}

	inner := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)

	m := anthropic.ModelClaudeSonnet4_6
	if model != "" {
		m = anthropic.Model(model)
	}

	return &Client{inner: inner, model: m}, nil
}

const planPrompt = `You are an expert software project manager. Decompose the given project goal into a plan of discrete tasks with dependencies.

Rules:
- Each task must be independently completable and verifiable.
- Estimate each task's duration in hours.
- Score your confidence in each task's shape between 0.0 and 1.0; be honest — vague or risky tasks deserve low scores.
- Only add a dependency when there is a strong causal reason (task B cannot start until task A is complete).
- Do not create cycles. A task cannot depend on itself.
- Use short lowercase keys (e.g. "setup-db") and reference only those keys in depends_on.

Return your answer as JSON with this exact structure:
{
  "tasks": [
    {"key": "<short key>", "name": "<task name>", "description": "<what to do and how to verify it>", "estimate_hours": <number>, "confidence_score": <0.0-1.0>, "depends_on": ["<key>", ...]}
  ],
  "summary": "<one paragraph summary of the plan>"
}

Return ONLY the JSON object. No markdown fences, no commentary outside the JSON.

Project goal:
`

// GeneratePlan asks the model to decompose goal into tasks and edges.
func (c *Client) GeneratePlan(ctx context.Context, goal string) (*Plan, error) {
	resp, err := c.inner.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: int64(4096),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(planPrompt + goal)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("claude API call: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return ParsePlan(text)
}

// ParsePlan decodes and validates a plan document from model output.
func ParsePlan(text string) (*Plan, error) {
	text = stripJSONFences(text)

	var plan Plan
	if err := json.Unmarshal([]byte(text), &plan); err != nil {
		return nil, fmt.Errorf("parse plan response: %w\nraw: %s", err, text)
	}
	if err := plan.validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (p *Plan) validate() error {
	if len(p.Tasks) == 0 {
		return fmt.Errorf("plan contains no tasks")
	}
	keys := make(map[string]bool, len(p.Tasks))
	for _, t := range p.Tasks {
		if t.Key == "" || t.Name == "" {
			return fmt.Errorf("plan task missing key or name: %+v", t)
		}
		if keys[t.Key] {
			return fmt.Errorf("duplicate plan task key %q", t.Key)
		}
		keys[t.Key] = true
		if t.ConfidenceScore < 0 || t.ConfidenceScore > 1 {
			return fmt.Errorf("plan task %q: confidence_score %v outside [0,1]", t.Key, t.ConfidenceScore)
		}
		if t.EstimateHours < 0 {
			return fmt.Errorf("plan task %q: negative estimate_hours %v", t.Key, t.EstimateHours)
		}
	}
	for _, t := range p.Tasks {
		for _, dep := range t.DependsOn {
			if dep == t.Key {
				return fmt.Errorf("plan task %q depends on itself", t.Key)
			}
			if !keys[dep] {
				return fmt.Errorf("plan task %q depends on unknown key %q", t.Key, dep)
			}
		}
	}
	return nil
}

// stripJSONFences removes markdown code fences that Claude sometimes adds.
func stripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	return s
}
