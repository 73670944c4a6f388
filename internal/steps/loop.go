package steps

import (
	"context"

	"github.com/ElementsAI-Dev/cognia-workflow/pkg/schema"
)

// defaultMaxIterations caps loops that do not declare their own bound.
const defaultMaxIterations = 100

// executeLoop expands forEach/times/while loops into an iteration list.
// Loops never execute sub-steps; downstream steps consume the iterations.
func (e *Executor) executeLoop(ctx context.Context, step *schema.WorkflowStepDefinition, input map[string]any) (map[string]any, error) {
	loopType := strOr(step.LoopType, "forEach")
	maxIterations := u64Or(step.MaxIterations, defaultMaxIterations)
	iteratorVariable := strOr(step.IteratorVariable, "item")

	var iterations []any

	switch loopType {
	case "times":
		for idx := uint64(0); idx < maxIterations; idx++ {
			iterations = append(iterations, map[string]any{iteratorVariable: int64(idx)})
		}

	case "while":
		if step.Condition == nil {
			return nil, schema.NewError(schema.ErrCodeStepFailed, "while loop requires condition")
		}
		condition := *step.Condition
		for idx := uint64(0); idx < maxIterations; idx++ {
			ctxMap := copyMap(input)
			ctxMap["iteration"] = int64(idx)
			ctxMap["input"] = copyMap(input)
			keep, err := e.cond.EvaluateBool(ctx, condition, ctxMap)
			if err != nil {
				return nil, err
			}
			if !keep {
				break
			}
			iterations = append(iterations, map[string]any{iteratorVariable: int64(idx)})
		}

	default: // forEach
		key := strOr(step.Collection, "collection")
		value, ok := input[key]
		if !ok {
			value = input["collection"]
		}
		collection, ok := value.([]any)
		if !ok {
			return nil, schema.NewError(schema.ErrCodeStepFailed, "forEach loop requires array collection input")
		}
		for idx, item := range collection {
			if uint64(idx) >= maxIterations {
				break
			}
			iterations = append(iterations, map[string]any{
				iteratorVariable: item,
				"index":          int64(idx),
			})
		}
	}

	if iterations == nil {
		iterations = []any{}
	}

	return map[string]any{
		"iterations": iterations,
		"count":      int64(len(iterations)),
	}, nil
}
