package steps

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ElementsAI-Dev/cognia-workflow/pkg/schema"
)

type fakeSandbox struct {
	lastReq ExecutionRequest
	result  ExecutionResult
	err     error
}

func (f *fakeSandbox) Execute(_ context.Context, req ExecutionRequest) (*ExecutionResult, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	res := f.result
	return &res, nil
}

func codeStep(code string) *schema.WorkflowStepDefinition {
	return &schema.WorkflowStepDefinition{
		ID:   "c",
		Type: schema.StepTypeCode,
		Code: strPtr(code),
	}
}

func TestCode_RequiresSandbox(t *testing.T) {
	e := NewExecutor()
	_, err := e.ExecuteStep(context.Background(), "exec-1", codeStep("1"), map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a configured code sandbox")
}

func TestCode_BuildsRequestAndParsesStdout(t *testing.T) {
	exit := int64(0)
	sandbox := &fakeSandbox{result: ExecutionResult{
		Stdout:   `{"sum": 3}`,
		Stderr:   "",
		ExitCode: &exit,
		Runtime:  "docker",
	}}
	e := NewExecutor(WithSandbox(sandbox))

	step := codeStep("console.log(JSON.stringify({sum: 1 + 2}))")
	out, err := e.ExecuteStep(context.Background(), "exec-1", step, map[string]any{"a": 1})
	require.NoError(t, err)

	assert.Equal(t, "exec-1-c", sandbox.lastReq.ID)
	assert.Equal(t, "javascript", sandbox.lastReq.Language)
	require.NotNil(t, sandbox.lastReq.Stdin)
	assert.JSONEq(t, `{"a":1}`, *sandbox.lastReq.Stdin)
	assert.Nil(t, sandbox.lastReq.Runtime)
	assert.Nil(t, sandbox.lastReq.TimeoutSecs)

	assert.Equal(t, map[string]any{"sum": float64(3)}, out["result"])
	assert.Equal(t, "", out["stderr"])
	assert.Equal(t, exit, out["exitCode"])
	assert.Equal(t, "docker", out["runtime"])
}

func TestCode_NonJSONStdoutIsRawString(t *testing.T) {
	sandbox := &fakeSandbox{result: ExecutionResult{Stdout: "hello world", Runtime: "native"}}
	e := NewExecutor(WithSandbox(sandbox))

	out, err := e.ExecuteStep(context.Background(), "exec-1", codeStep("print('hello world')"), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "hello world", out["result"])
	assert.Nil(t, out["exitCode"])
}

func TestCode_SandboxOptionsFlowThrough(t *testing.T) {
	sandbox := &fakeSandbox{result: ExecutionResult{Stdout: "{}"}}
	e := NewExecutor(WithSandbox(sandbox))

	runtime := schema.CodeRuntimePodman
	step := codeStep("pass")
	step.Language = strPtr("python")
	step.CodeSandbox = &schema.WorkflowCodeSandboxOptions{
		Runtime:        &runtime,
		TimeoutMs:      u64Ptr(2500),
		MemoryLimitMB:  u64Ptr(256),
		NetworkEnabled: boolPtr(true),
		Env:            map[string]string{"MODE": "test"},
		Args:           []string{"--fast"},
	}

	_, err := e.ExecuteStep(context.Background(), "exec-1", step, map[string]any{})
	require.NoError(t, err)

	req := sandbox.lastReq
	assert.Equal(t, "python", req.Language)
	require.NotNil(t, req.Runtime)
	assert.Equal(t, schema.CodeRuntimePodman, *req.Runtime)
	require.NotNil(t, req.TimeoutSecs)
	assert.Equal(t, uint64(3), *req.TimeoutSecs) // 2500ms rounds up
	require.NotNil(t, req.MemoryLimitMB)
	assert.Equal(t, uint64(256), *req.MemoryLimitMB)
	require.NotNil(t, req.NetworkEnabled)
	assert.True(t, *req.NetworkEnabled)
	assert.Equal(t, map[string]string{"MODE": "test"}, req.Env)
	assert.Equal(t, []string{"--fast"}, req.Args)
}

func TestCode_TimeoutResolution(t *testing.T) {
	tests := []struct {
		name      string
		sandboxMs *uint64
		stepMs    *uint64
		want      *uint64
	}{
		{"neither set", nil, nil, nil},
		{"sandbox wins over step", u64Ptr(2000), u64Ptr(9000), u64Ptr(2)},
		{"step timeout fallback", nil, u64Ptr(1500), u64Ptr(2)},
		{"zero clamps to one second", u64Ptr(0), nil, u64Ptr(1)},
		{"capped at one hour", u64Ptr(10_000_000), nil, u64Ptr(3600)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := codeStep("1")
			step.Timeout = tt.stepMs
			if tt.sandboxMs != nil {
				step.CodeSandbox = &schema.WorkflowCodeSandboxOptions{TimeoutMs: tt.sandboxMs}
			}
			got := resolveCodeTimeoutSecs(step)
			if tt.want == nil {
				assert.Nil(t, got)
			} else {
				require.NotNil(t, got)
				assert.Equal(t, *tt.want, *got)
			}
		})
	}
}

func TestCode_AutoRuntimeLetsSandboxPick(t *testing.T) {
	auto := schema.CodeRuntimeAuto
	assert.Nil(t, mapCodeRuntime(nil))
	assert.Nil(t, mapCodeRuntime(&auto))

	docker := schema.CodeRuntimeDocker
	got := mapCodeRuntime(&docker)
	require.NotNil(t, got)
	assert.Equal(t, schema.CodeRuntimeDocker, *got)
}

func TestCode_SandboxFailureWrapsError(t *testing.T) {
	sandbox := &fakeSandbox{err: assert.AnError}
	e := NewExecutor(WithSandbox(sandbox))

	_, err := e.ExecuteStep(context.Background(), "exec-1", codeStep("boom()"), map[string]any{})
	require.Error(t, err)

	var engErr *schema.EngineError
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, schema.ErrCodeStepFailed, engErr.Code)
	assert.Contains(t, engErr.Message, "code execution failed")
}
