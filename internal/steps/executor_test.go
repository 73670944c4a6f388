package steps

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ElementsAI-Dev/cognia-workflow/pkg/schema"
)

func strPtr(s string) *string { return &s }
func u64Ptr(v uint64) *uint64 { return &v }
func boolPtr(b bool) *bool    { return &b }

func TestExecuteStep_PassThroughForUnknownType(t *testing.T) {
	e := NewExecutor()
	input := map[string]any{"key": "value"}

	out, err := e.ExecuteStep(context.Background(), "exec-1",
		&schema.WorkflowStepDefinition{ID: "s1", Type: "mystery"}, input)
	require.NoError(t, err)
	assert.Equal(t, input, out)

	// Output is a copy, not the same map.
	out["extra"] = 1
	assert.NotContains(t, input, "extra")
}

func TestExecuteConditional(t *testing.T) {
	e := NewExecutor()
	ctx := context.Background()

	t.Run("default condition is true", func(t *testing.T) {
		step := &schema.WorkflowStepDefinition{ID: "c", Type: schema.StepTypeConditional}
		out, err := e.ExecuteStep(ctx, "exec-1", step, map[string]any{"value": 1})
		require.NoError(t, err)
		assert.Equal(t, true, out["conditionResult"])
		assert.Equal(t, 1, out["value"])
	})

	t.Run("condition evaluated against input", func(t *testing.T) {
		step := &schema.WorkflowStepDefinition{
			ID:        "c",
			Type:      schema.StepTypeConditional,
			Condition: strPtr("value > 3"),
		}
		out, err := e.ExecuteStep(ctx, "exec-1", step, map[string]any{"value": 5})
		require.NoError(t, err)
		assert.Equal(t, true, out["conditionResult"])

		out, err = e.ExecuteStep(ctx, "exec-1", step, map[string]any{"value": 1})
		require.NoError(t, err)
		assert.Equal(t, false, out["conditionResult"])
	})

	t.Run("invalid condition errors", func(t *testing.T) {
		step := &schema.WorkflowStepDefinition{
			ID:        "c",
			Type:      schema.StepTypeConditional,
			Condition: strPtr("value >"),
		}
		_, err := e.ExecuteStep(ctx, "exec-1", step, map[string]any{"value": 5})
		require.Error(t, err)
	})
}

func TestBuildStepInput(t *testing.T) {
	step := &schema.WorkflowStepDefinition{
		ID:           "c",
		Type:         schema.StepTypeTransform,
		Dependencies: []string{"a", "b"},
		Inputs: map[string]schema.WorkflowIOSchema{
			"threshold": {Default: 10},
			"value":     {Default: -1}, // already provided upstream, default ignored
		},
	}

	workflowInput := map[string]any{"global": "g"}
	outputs := map[string]map[string]any{
		"a": {"value": 1},
		"b": {"value": 2, "other": "x"},
	}

	input := BuildStepInput(step, workflowInput, outputs)

	assert.Equal(t, "g", input["global"])
	// Later dependencies overwrite flattened keys.
	assert.Equal(t, 2, input["value"])
	assert.Equal(t, "x", input["other"])
	// Namespaced copies keep each dependency's full output.
	assert.Equal(t, map[string]any{"value": 1}, input["a"])
	assert.Equal(t, map[string]any{"value": 2, "other": "x"}, input["b"])
	// Declared default fills the missing key only.
	assert.Equal(t, 10, input["threshold"])
}

func TestBuildStepInput_SkippedDependencyContributesNothing(t *testing.T) {
	step := &schema.WorkflowStepDefinition{
		ID:           "c",
		Type:         schema.StepTypeTransform,
		Dependencies: []string{"skipped"},
	}

	input := BuildStepInput(step, map[string]any{"k": 1}, map[string]map[string]any{})
	assert.Equal(t, map[string]any{"k": 1}, input)
}
