package steps

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ElementsAI-Dev/cognia-workflow/pkg/schema"
)

// executeCode builds a sandbox request from the step definition and runs it
// through the attached CodeSandbox collaborator.
func (e *Executor) executeCode(ctx context.Context, executionID string, step *schema.WorkflowStepDefinition, input map[string]any) (map[string]any, error) {
	if e.sandbox == nil {
		return nil, schema.NewError(schema.ErrCodeStepFailed, "code step requires a configured code sandbox")
	}

	var options schema.WorkflowCodeSandboxOptions
	if step.CodeSandbox != nil {
		options = *step.CodeSandbox
	}

	stdinBytes, err := json.Marshal(input)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStepFailed, "encode code step input: %s", err.Error()).WithCause(err)
	}
	stdin := string(stdinBytes)

	req := ExecutionRequest{
		ID:             fmt.Sprintf("%s-%s", executionID, step.ID),
		Language:       strOr(step.Language, "javascript"),
		Code:           strOr(step.Code, ""),
		Stdin:          &stdin,
		Runtime:        mapCodeRuntime(options.Runtime),
		TimeoutSecs:    resolveCodeTimeoutSecs(step),
		MemoryLimitMB:  options.MemoryLimitMB,
		NetworkEnabled: options.NetworkEnabled,
		Env:            options.Env,
		Args:           options.Args,
		Files:          options.Files,
	}

	result, err := e.sandbox.Execute(ctx, req)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStepFailed, "code execution failed: %s", err.Error()).WithCause(err)
	}

	var parsedStdout any
	if err := json.Unmarshal([]byte(result.Stdout), &parsedStdout); err != nil {
		parsedStdout = result.Stdout
	}

	var exitCode any
	if result.ExitCode != nil {
		exitCode = *result.ExitCode
	}

	return map[string]any{
		"result":   parsedStdout,
		"stderr":   result.Stderr,
		"exitCode": exitCode,
		"runtime":  result.Runtime,
	}, nil
}

// mapCodeRuntime translates the definition runtime into a sandbox runtime.
// "auto" (or absent) returns nil so the sandbox picks.
func mapCodeRuntime(runtime *schema.CodeRuntime) *schema.CodeRuntime {
	if runtime == nil || *runtime == schema.CodeRuntimeAuto {
		return nil
	}
	rt := *runtime
	return &rt
}

// resolveCodeTimeoutSecs converts the sandbox or step timeout (milliseconds)
// to whole seconds, rounding up. Returns nil when neither is set.
func resolveCodeTimeoutSecs(step *schema.WorkflowStepDefinition) *uint64 {
	var ms *uint64
	if step.CodeSandbox != nil && step.CodeSandbox.TimeoutMs != nil {
		ms = step.CodeSandbox.TimeoutMs
	} else {
		ms = step.Timeout
	}
	if ms == nil {
		return nil
	}

	clamped := *ms
	if clamped < 1 {
		clamped = 1
	}
	if clamped > 3_600_000 {
		clamped = 3_600_000
	}
	secs := (clamped + 999) / 1000
	return &secs
}
