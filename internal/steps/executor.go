package steps

import (
	"context"
	"net/http"

	"github.com/ElementsAI-Dev/cognia-workflow/internal/expressions"
	"github.com/ElementsAI-Dev/cognia-workflow/pkg/schema"
)

// Executor runs individual workflow steps. It owns the expression engines and
// the external collaborators (code sandbox, recording manager, HTTP client).
// Safe for concurrent use: all fields are read-only after construction and the
// engines cache internally.
type Executor struct {
	expr *expressions.ExprEngine
	cond *expressions.CELEngine
	jq   *expressions.GoJQEngine

	sandbox  CodeSandbox
	recorder RecordingManager
	client   *http.Client
}

// Option configures an Executor.
type Option func(*Executor)

// WithSandbox attaches a code sandbox for code steps.
func WithSandbox(s CodeSandbox) Option {
	return func(e *Executor) { e.sandbox = s }
}

// WithRecorder attaches a recording manager for tool steps.
func WithRecorder(r RecordingManager) Option {
	return func(e *Executor) { e.recorder = r }
}

// WithHTTPClient overrides the HTTP client used by webhook steps.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Executor) { e.client = c }
}

// NewExecutor creates a step executor.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		expr:   expressions.NewExprEngine(),
		cond:   expressions.NewCELEngine(),
		jq:     expressions.NewGoJQEngine(),
		client: &http.Client{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteStep dispatches a single step by type. Unknown types pass their
// input through unchanged.
func (e *Executor) ExecuteStep(ctx context.Context, executionID string, step *schema.WorkflowStepDefinition, input map[string]any) (map[string]any, error) {
	switch step.Type {
	case schema.StepTypeConditional:
		return e.executeConditional(ctx, step, input)
	case schema.StepTypeTransform:
		return e.executeTransform(ctx, step, input)
	case schema.StepTypeLoop:
		return e.executeLoop(ctx, step, input)
	case schema.StepTypeDelay:
		return e.executeDelay(ctx, step)
	case schema.StepTypeMerge:
		return e.executeMerge(ctx, step, input)
	case schema.StepTypeWebhook:
		return e.executeWebhook(ctx, step, input)
	case schema.StepTypeCode:
		return e.executeCode(ctx, executionID, step, input)
	case schema.StepTypeTool:
		return e.executeTool(ctx, step, input)
	default:
		return copyMap(input), nil
	}
}

// executeConditional evaluates the step condition (default "true") and
// returns the input with the raw result under "conditionResult".
func (e *Executor) executeConditional(ctx context.Context, step *schema.WorkflowStepDefinition, input map[string]any) (map[string]any, error) {
	condition := strOr(step.Condition, "true")

	result, err := e.cond.Evaluate(ctx, condition, input)
	if err != nil {
		return nil, err
	}

	output := copyMap(input)
	output["conditionResult"] = result
	return output, nil
}

// copyMap shallow-copies a step input/output map.
func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// strOr dereferences an optional string field with a default.
func strOr(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}

// u64Or dereferences an optional uint64 field with a default.
func u64Or(p *uint64, def uint64) uint64 {
	if p == nil {
		return def
	}
	return *p
}

// boolOr dereferences an optional bool field with a default.
func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// stepTimeoutMs returns the step timeout clamped to [1ms, 1h].
func stepTimeoutMs(step *schema.WorkflowStepDefinition, defaultMs uint64) uint64 {
	ms := u64Or(step.Timeout, defaultMs)
	if ms < 1 {
		ms = 1
	}
	if ms > 3_600_000 {
		ms = 3_600_000
	}
	return ms
}
