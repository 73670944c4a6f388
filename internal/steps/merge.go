package steps

import (
	"context"
	"sort"

	"github.com/ElementsAI-Dev/cognia-workflow/pkg/schema"
)

// executeMerge combines the step's resolved input values. Values are visited
// in sorted key order so every strategy is deterministic.
func (e *Executor) executeMerge(ctx context.Context, step *schema.WorkflowStepDefinition, input map[string]any) (map[string]any, error) {
	strategy := strOr(step.MergeStrategy, "merge")

	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make([]any, 0, len(keys))
	for _, k := range keys {
		values = append(values, input[k])
	}

	var merged any

	switch strategy {
	case "concat":
		concatenated := []any{}
		for _, value := range values {
			if arr, ok := value.([]any); ok {
				concatenated = append(concatenated, arr...)
			}
		}
		merged = concatenated

	case "first":
		if len(values) > 0 {
			merged = values[0]
		}

	case "last":
		if len(values) > 0 {
			merged = values[len(values)-1]
		}

	case "custom":
		expression := strOr(step.Expression, "")
		if isBlank(expression) {
			merged = copyMap(input)
		} else {
			result, err := e.expr.Evaluate(ctx, expression, input)
			if err != nil {
				return nil, err
			}
			merged = result
		}

	default: // merge: shallow object merge, later keys win
		combined := map[string]any{}
		for _, value := range values {
			if obj, ok := value.(map[string]any); ok {
				for k, v := range obj {
					combined[k] = v
				}
			}
		}
		merged = combined
	}

	return map[string]any{
		"result":        merged,
		"mergeStrategy": strategy,
	}, nil
}
