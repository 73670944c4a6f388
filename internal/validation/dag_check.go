package validation

import (
	"fmt"
	"sort"

	"github.com/ElementsAI-Dev/cognia-workflow/pkg/schema"
)

// knownStepTypes is the set of step types with dedicated executors. Unknown
// types still execute (pass-through) but earn a validation warning.
var knownStepTypes = map[string]bool{
	schema.StepTypeConditional: true,
	schema.StepTypeTransform:   true,
	schema.StepTypeLoop:        true,
	schema.StepTypeDelay:       true,
	schema.StepTypeMerge:       true,
	schema.StepTypeWebhook:     true,
	schema.StepTypeCode:        true,
	schema.StepTypeTool:        true,
}

// validateGraph performs graph analysis on the step list: duplicate IDs,
// dangling dependency references, self-dependencies, and cycle detection
// via Kahn's algorithm.
func validateGraph(def *schema.WorkflowDefinition) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	stepIDs := make(map[string]bool, len(def.Steps))
	for i, s := range def.Steps {
		if stepIDs[s.ID] {
			result.AddError(fmt.Sprintf("steps[%d]", i), schema.ErrCodeValidation,
				fmt.Sprintf("duplicate step id %q", s.ID))
			continue
		}
		stepIDs[s.ID] = true
	}

	// edges[id] = dependencies of step id, reverse[id] = dependents of step id.
	edges := make(map[string][]string, len(def.Steps))
	reverse := make(map[string][]string, len(def.Steps))

	for i, s := range def.Steps {
		if !knownStepTypes[s.Type] {
			result.AddWarning(fmt.Sprintf("steps[%d].type", i), schema.ErrCodeValidation,
				fmt.Sprintf("step %q has unrecognized type %q and will pass its input through", s.ID, s.Type))
		}

		seen := make(map[string]bool, len(s.Dependencies))
		for j, dep := range s.Dependencies {
			if dep == s.ID {
				result.AddError(fmt.Sprintf("steps[%d].dependencies[%d]", i, j),
					schema.ErrCodeValidation,
					fmt.Sprintf("step %q depends on itself", s.ID))
				continue
			}
			if !stepIDs[dep] {
				result.AddError(fmt.Sprintf("steps[%d].dependencies[%d]", i, j),
					schema.ErrCodeValidation,
					fmt.Sprintf("step %q references non-existent dependency %q", s.ID, dep))
				continue
			}
			if seen[dep] {
				continue
			}
			seen[dep] = true
			edges[s.ID] = append(edges[s.ID], dep)
			reverse[dep] = append(reverse[dep], s.ID)
		}
	}

	if !result.Valid() {
		return result // broken references make cycle analysis unreliable
	}

	// Kahn's algorithm for cycle detection.
	inDegree := make(map[string]int, len(def.Steps))
	for id := range stepIDs {
		inDegree[id] = len(edges[id])
	}

	queue := make([]string, 0, len(def.Steps))
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	// Sort roots for deterministic output.
	sort.Strings(queue)

	visited := 0
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		visited++
		for _, dep := range reverse[node] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if visited != len(stepIDs) {
		result.AddError("steps", schema.ErrCodeCycleDetected, "workflow contains a dependency cycle")
	}

	return result
}
