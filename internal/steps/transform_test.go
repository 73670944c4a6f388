package steps

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ElementsAI-Dev/cognia-workflow/pkg/schema"
)

func transformStep(transformType, expression string) *schema.WorkflowStepDefinition {
	return &schema.WorkflowStepDefinition{
		ID:            "t",
		Type:          schema.StepTypeTransform,
		TransformType: strPtr(transformType),
		Expression:    strPtr(expression),
	}
}

func TestTransform_EmptyExpressionPassesThrough(t *testing.T) {
	e := NewExecutor()
	input := map[string]any{"data": []any{1, 2}}

	out, err := e.ExecuteStep(context.Background(), "exec-1", transformStep("map", "  "), input)
	require.NoError(t, err)
	assert.Equal(t, input, out)
}

func TestTransform_Map(t *testing.T) {
	e := NewExecutor()
	ctx := context.Background()
	input := map[string]any{"data": []any{1, 2, 3}}

	t.Run("default item variable", func(t *testing.T) {
		out, err := e.ExecuteStep(ctx, "exec-1", transformStep("map", "item * 2"), input)
		require.NoError(t, err)
		assert.Equal(t, []any{2, 4, 6}, out["result"])
	})

	t.Run("lambda parameters override defaults", func(t *testing.T) {
		out, err := e.ExecuteStep(ctx, "exec-1", transformStep("map", "(n, i) => n + i"), input)
		require.NoError(t, err)
		assert.Equal(t, []any{1, 3, 5}, out["result"])
	})

	t.Run("non-array input errors", func(t *testing.T) {
		_, err := e.ExecuteStep(ctx, "exec-1", transformStep("map", "item"),
			map[string]any{"data": "not-an-array"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "map transform requires array input")
	})
}

func TestTransform_Filter(t *testing.T) {
	e := NewExecutor()
	input := map[string]any{"data": []any{1, 2, 3, 4}}

	out, err := e.ExecuteStep(context.Background(), "exec-1",
		transformStep("filter", "item > 2"), input)
	require.NoError(t, err)
	assert.Equal(t, []any{3, 4}, out["result"])
}

func TestTransform_Reduce(t *testing.T) {
	e := NewExecutor()
	ctx := context.Background()
	input := map[string]any{"data": []any{1, 2, 3}}

	t.Run("default acc and item", func(t *testing.T) {
		out, err := e.ExecuteStep(ctx, "exec-1",
			transformStep("reduce", "(acc ?? 0) + item"), input)
		require.NoError(t, err)
		assert.Equal(t, 6, out["result"])
	})

	t.Run("lambda names", func(t *testing.T) {
		out, err := e.ExecuteStep(ctx, "exec-1",
			transformStep("reduce", "(total, n) => (total ?? 0) + n"), input)
		require.NoError(t, err)
		assert.Equal(t, 6, out["result"])
	})
}

func TestTransform_Sort(t *testing.T) {
	e := NewExecutor()
	ctx := context.Background()
	input := map[string]any{"data": []any{3, 1, 2}}

	t.Run("numeric comparator", func(t *testing.T) {
		out, err := e.ExecuteStep(ctx, "exec-1", transformStep("sort", "(a, b) => a - b"), input)
		require.NoError(t, err)
		assert.Equal(t, []any{1, 2, 3}, out["result"])
	})

	t.Run("boolean comparator", func(t *testing.T) {
		out, err := e.ExecuteStep(ctx, "exec-1", transformStep("sort", "a > b"), input)
		require.NoError(t, err)
		assert.Equal(t, []any{1, 2, 3}, out["result"])
	})
}

func TestTransform_Custom(t *testing.T) {
	e := NewExecutor()
	input := map[string]any{"data": []any{1, 2, 3}, "factor": 10}

	out, err := e.ExecuteStep(context.Background(), "exec-1",
		transformStep("custom", "len(data) * factor"), input)
	require.NoError(t, err)
	assert.Equal(t, 30, out["result"])
}

func TestTransform_CustomUsesWholeInputWithoutDataKey(t *testing.T) {
	e := NewExecutor()
	input := map[string]any{"count": 4}

	out, err := e.ExecuteStep(context.Background(), "exec-1",
		transformStep("custom", "data.count + 1"), input)
	require.NoError(t, err)
	assert.Equal(t, 5, out["result"])
}

func TestTransform_JQ(t *testing.T) {
	e := NewExecutor()
	input := map[string]any{"data": []any{
		map[string]any{"name": "a", "price": 2},
		map[string]any{"name": "b", "price": 5},
	}}

	out, err := e.ExecuteStep(context.Background(), "exec-1",
		transformStep("jq", "[.data[] | select(.price > 3) | .name]"), input)
	require.NoError(t, err)
	assert.Equal(t, []any{"b"}, out["result"])
}
