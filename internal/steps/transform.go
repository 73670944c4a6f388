package steps

import (
	"context"
	"sort"
	"strings"

	"github.com/ElementsAI-Dev/cognia-workflow/internal/expressions"
	"github.com/ElementsAI-Dev/cognia-workflow/pkg/schema"
)

// executeTransform applies map/filter/reduce/sort/jq/custom transforms.
// The working value is input["data"] when present, otherwise the whole input
// object. An empty expression passes the input through unchanged.
func (e *Executor) executeTransform(ctx context.Context, step *schema.WorkflowStepDefinition, input map[string]any) (map[string]any, error) {
	expression := strOr(step.Expression, "")
	if isBlank(expression) {
		return copyMap(input), nil
	}

	var data any
	if v, ok := input["data"]; ok {
		data = v
	} else {
		data = copyMap(input)
	}

	transformType := strOr(step.TransformType, "custom")

	switch transformType {
	case "map":
		return e.transformMap(ctx, expression, data, input)
	case "filter":
		return e.transformFilter(ctx, expression, data, input)
	case "reduce":
		return e.transformReduce(ctx, expression, data, input)
	case "sort":
		return e.transformSort(ctx, expression, data, input)
	case "jq":
		return e.transformJQ(ctx, expression, data)
	default:
		ctxMap := copyMap(input)
		ctxMap["data"] = data
		result, err := e.expr.Evaluate(ctx, expression, ctxMap)
		if err != nil {
			return nil, err
		}
		return map[string]any{"result": result}, nil
	}
}

func (e *Executor) transformMap(ctx context.Context, expression string, data any, input map[string]any) (map[string]any, error) {
	arr, ok := data.([]any)
	if !ok {
		return nil, schema.NewError(schema.ErrCodeStepFailed, "map transform requires array input")
	}

	body, bind := lambdaBinder(expression)
	mapped := make([]any, 0, len(arr))
	for index, item := range arr {
		result, err := e.expr.Evaluate(ctx, body, bind(input, item, index))
		if err != nil {
			return nil, err
		}
		mapped = append(mapped, result)
	}

	return map[string]any{"result": mapped}, nil
}

func (e *Executor) transformFilter(ctx context.Context, expression string, data any, input map[string]any) (map[string]any, error) {
	arr, ok := data.([]any)
	if !ok {
		return nil, schema.NewError(schema.ErrCodeStepFailed, "filter transform requires array input")
	}

	body, bind := lambdaBinder(expression)
	filtered := make([]any, 0, len(arr))
	for index, item := range arr {
		result, err := e.expr.Evaluate(ctx, body, bind(input, item, index))
		if err != nil {
			return nil, err
		}
		if expressions.Truthy(result) {
			filtered = append(filtered, item)
		}
	}

	return map[string]any{"result": filtered}, nil
}

func (e *Executor) transformReduce(ctx context.Context, expression string, data any, input map[string]any) (map[string]any, error) {
	arr, ok := data.([]any)
	if !ok {
		return nil, schema.NewError(schema.ErrCodeStepFailed, "reduce transform requires array input")
	}

	params, body, isLambda := expressions.ParseLambda(expression)
	if !isLambda {
		body = expression
	}

	var acc any
	for index, item := range arr {
		ctxMap := copyMap(input)
		ctxMap["acc"] = acc
		ctxMap["item"] = item
		ctxMap["index"] = index
		if isLambda {
			if len(params) > 0 {
				ctxMap[params[0]] = acc
			}
			if len(params) > 1 {
				ctxMap[params[1]] = item
			}
		}
		result, err := e.expr.Evaluate(ctx, body, ctxMap)
		if err != nil {
			return nil, err
		}
		acc = result
	}

	return map[string]any{"result": acc}, nil
}

func (e *Executor) transformSort(ctx context.Context, expression string, data any, input map[string]any) (map[string]any, error) {
	arr, ok := data.([]any)
	if !ok {
		return nil, schema.NewError(schema.ErrCodeStepFailed, "sort transform requires array input")
	}

	params, body, isLambda := expressions.ParseLambda(expression)
	if !isLambda {
		body = expression
	}

	sorted := make([]any, len(arr))
	copy(sorted, arr)

	var evalErr error
	less := func(a, b any) bool {
		ctxMap := copyMap(input)
		ctxMap["a"] = a
		ctxMap["b"] = b
		if isLambda {
			if len(params) > 0 {
				ctxMap[params[0]] = a
			}
			if len(params) > 1 {
				ctxMap[params[1]] = b
			}
		}
		result, err := e.expr.Evaluate(ctx, body, ctxMap)
		if err != nil {
			if evalErr == nil {
				evalErr = err
			}
			return false
		}
		// Comparator contract: negative number or false means a before b.
		switch v := result.(type) {
		case int:
			return v < 0
		case int64:
			return v < 0
		case float64:
			return v < 0
		case bool:
			return !v
		default:
			return false
		}
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		return less(sorted[i], sorted[j])
	})
	if evalErr != nil {
		return nil, evalErr
	}

	return map[string]any{"result": sorted}, nil
}

func (e *Executor) transformJQ(ctx context.Context, expression string, data any) (map[string]any, error) {
	// jq programs receive the working value wrapped as {"data": ...} so both
	// object and array inputs address it uniformly as .data.
	result, err := e.jq.Evaluate(ctx, expression, map[string]any{"data": data})
	if err != nil {
		return nil, err
	}
	return map[string]any{"result": result}, nil
}

// lambdaBinder prepares the evaluation body and a context builder that binds
// the default item/index names plus any lambda parameter overrides.
func lambdaBinder(expression string) (string, func(input map[string]any, item any, index int) map[string]any) {
	params, body, isLambda := expressions.ParseLambda(expression)
	if !isLambda {
		body = expression
	}

	bind := func(input map[string]any, item any, index int) map[string]any {
		ctxMap := copyMap(input)
		ctxMap["item"] = item
		ctxMap["index"] = index
		if isLambda {
			if len(params) > 0 {
				ctxMap[params[0]] = item
			}
			if len(params) > 1 {
				ctxMap[params[1]] = index
			}
		}
		return ctxMap
	}
	return body, bind
}

// isBlank reports whether a string is empty or whitespace.
func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
