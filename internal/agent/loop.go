package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/resync-ops/resync/internal/audit"
	"github.com/resync-ops/resync/internal/errors"
	"github.com/resync-ops/resync/internal/llm"
)

// defaultMaxSteps bounds the tool loop when config gives no limit.
const defaultMaxSteps = 8

// Step records one iteration of the tool loop.
type Step struct {
	Tool        string            `json:"tool"`
	Args        map[string]string `json:"args,omitempty"`
	Observation string            `json:"observation"`
	Quarantined bool              `json:"quarantined,omitempty"`
}

// LoopResult is the outcome of one agentic run.
type LoopResult struct {
	Answer      string   `json:"answer"`
	Confidence  float64  `json:"confidence"`
	Steps       []Step   `json:"steps,omitempty"`
	ToolsUsed   []string `json:"tools_used,omitempty"`
	ApprovalIDs []string `json:"approval_ids,omitempty"`
}

// Executor runs the bounded tool loop. Each iteration asks the model
// for a decision: invoke one tool or answer. Write tools never run
// from the loop; every one is parked in the audit queue for a human
// decision, whatever confidence the model reports.
type Executor struct {
	client   llm.Client
	registry *Registry
	queue    *audit.Queue
	maxSteps int
}

// NewExecutor wires the tool loop. maxSteps <= 0 uses the default.
func NewExecutor(client llm.Client, registry *Registry, queue *audit.Queue, maxSteps int) *Executor {
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}
	return &Executor{
		client:   client,
		registry: registry,
		queue:    queue,
		maxSteps: maxSteps,
	}
}

// decision is the model's per-step verdict.
type decision struct {
	Action     string            `json:"action"` // "tool" or "final"
	Tool       string            `json:"tool,omitempty"`
	Args       map[string]string `json:"args,omitempty"`
	Answer     string            `json:"answer,omitempty"`
	Confidence float64           `json:"confidence"`
	Reason     string            `json:"reason,omitempty"`
}

const loopPromptHeader = `You are a TWS operations assistant with tools. Decide the next step.

Respond with JSON only, one of:
{"action": "tool", "tool": "<name>", "args": {"<key>": "<value>"}, "confidence": 0.0-1.0, "reason": "<why>"}
{"action": "final", "answer": "<answer for the operator>", "confidence": 0.0-1.0}

Tools:
`

const finalPromptNote = `
Tool budget is spent. Respond with the "final" action only.
`

// Run executes the loop for a user request. requestedBy and sessionID
// annotate any quarantined actions.
func (e *Executor) Run(ctx context.Context, query, contextText, requestedBy, sessionID string) (*LoopResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.NewValidationError("query must not be empty", nil)
	}

	result := &LoopResult{}
	for len(result.Steps) < e.maxSteps {
		d, err := e.decide(ctx, query, contextText, result.Steps, false)
		if err != nil {
			return nil, err
		}
		if d.Action == "final" {
			result.Answer = d.Answer
			result.Confidence = d.Confidence
			return result, nil
		}

		step := e.runTool(ctx, d, requestedBy, sessionID, result)
		result.Steps = append(result.Steps, step)
	}

	// Budget spent: force a final answer from what was observed.
	d, err := e.decide(ctx, query, contextText, result.Steps, true)
	if err != nil {
		return nil, err
	}
	if d.Action != "final" {
		return nil, errors.InternalError(
			fmt.Sprintf("no final answer after %d tool steps", e.maxSteps), nil)
	}
	result.Answer = d.Answer
	result.Confidence = d.Confidence
	return result, nil
}

// runTool executes or quarantines one tool decision and returns the
// step record. Tool failures become observations so the model can
// route around them.
func (e *Executor) runTool(ctx context.Context, d decision, requestedBy, sessionID string, result *LoopResult) Step {
	step := Step{Tool: d.Tool, Args: d.Args}

	tool, ok := e.registry.Get(d.Tool)
	if !ok {
		step.Observation = fmt.Sprintf("unknown tool %q", d.Tool)
		return step
	}
	result.ToolsUsed = append(result.ToolsUsed, d.Tool)

	if !tool.ReadOnly() {
		id, err := e.quarantineAction(ctx, d, requestedBy, sessionID)
		if err != nil {
			slog.Error("quarantine failed, action not taken",
				slog.String("tool", d.Tool),
				slog.Any("error", err))
			step.Observation = "action withheld: approval queue unavailable"
			return step
		}
		step.Quarantined = true
		step.Observation = fmt.Sprintf(
			"%s on %s queued for human approval (id %s); it has not run",
			d.Tool, d.Args["job"], id)
		result.ApprovalIDs = append(result.ApprovalIDs, id)
		return step
	}

	out, err := tool.Run(ctx, d.Args)
	if err != nil {
		step.Observation = fmt.Sprintf("tool failed: %v", err)
		return step
	}
	step.Observation = out
	return step
}

func (e *Executor) quarantineAction(ctx context.Context, d decision, requestedBy, sessionID string) (string, error) {
	rec := &audit.Record{
		Action:      d.Tool,
		Target:      d.Args["job"],
		Parameters:  d.Args,
		RequestedBy: requestedBy,
		SessionID:   sessionID,
		Confidence:  d.Confidence,
		Reason:      d.Reason,
	}
	if _, err := e.queue.Add(ctx, rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}

func (e *Executor) decide(ctx context.Context, query, contextText string, steps []Step, finalOnly bool) (decision, error) {
	var b strings.Builder
	b.WriteString(loopPromptHeader)
	b.WriteString(e.registry.Describe())
	if contextText != "" {
		b.WriteString("\nContext:\n")
		b.WriteString(contextText)
		b.WriteString("\n")
	}
	b.WriteString("\nRequest: ")
	b.WriteString(query)
	b.WriteString("\n")
	for i, s := range steps {
		fmt.Fprintf(&b, "\nStep %d: %s(%v) -> %s", i+1, s.Tool, s.Args, s.Observation)
	}
	if finalOnly {
		b.WriteString(finalPromptNote)
	}

	raw, err := e.client.Complete(ctx, b.String(), llm.Params{
		MaxTokens:   512,
		Temperature: 0,
		JSONMode:    true,
	})
	if err != nil {
		return decision{}, errors.NewIntegrationError("agent loop", err)
	}

	var d decision
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return decision{}, errors.NewDataParsingError("parse agent decision", err)
	}
	switch d.Action {
	case "tool":
		if d.Tool == "" {
			return decision{}, errors.NewDataParsingError("tool decision names no tool", nil)
		}
	case "final":
	default:
		return decision{}, errors.NewDataParsingError(
			fmt.Sprintf("unknown agent action %q", d.Action), nil)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return decision{}, errors.NewDataParsingError("confidence out of range", nil)
	}
	return d, nil
}
