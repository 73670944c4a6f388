package steps

import "github.com/ElementsAI-Dev/cognia-workflow/pkg/schema"

// BuildStepInput resolves the input for one step: the workflow input, then
// each dependency's output flattened into the top level plus namespaced under
// the dependency's ID, then declared defaults for still-missing keys.
// Dependencies without an output (skipped steps) contribute nothing.
func BuildStepInput(step *schema.WorkflowStepDefinition, workflowInput map[string]any, outputsByStep map[string]map[string]any) map[string]any {
	input := copyMap(workflowInput)

	for _, dep := range step.Dependencies {
		output, ok := outputsByStep[dep]
		if !ok {
			continue
		}
		for key, value := range output {
			input[key] = value
		}
		input[dep] = copyMap(output)
	}

	for key, ioSchema := range step.Inputs {
		if _, exists := input[key]; !exists && ioSchema.Default != nil {
			input[key] = ioSchema.Default
		}
	}

	return input
}
