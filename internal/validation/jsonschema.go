package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/ElementsAI-Dev/cognia-workflow/pkg/schema"
)

// workflowSchemaJSON is the JSON Schema for WorkflowDefinition validation.
// Embedded as a constant to avoid filesystem dependencies. Unknown properties
// are allowed: authors attach tooling metadata to definitions and executors
// ignore fields they do not read.
const workflowSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://cognia.dev/schemas/workflow.json",
  "type": "object",
  "required": ["id"],
  "properties": {
    "id": { "type": "string", "minLength": 1 },
    "name": { "type": "string" },
    "description": { "type": "string" },
    "steps": {
      "type": "array",
      "items": { "$ref": "#/$defs/step" }
    }
  },
  "$defs": {
    "step": {
      "type": "object",
      "required": ["id", "type"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "name": { "type": "string" },
        "description": { "type": "string" },
        "type": { "type": "string", "minLength": 1 },
        "toolName": { "type": "string" },
        "metadata": { "type": "object" },
        "dependencies": {
          "type": "array",
          "items": { "type": "string", "minLength": 1 }
        },
        "inputs": {
          "type": "object",
          "additionalProperties": { "type": "object" }
        },
        "optional": { "type": "boolean" },
        "retryCount": { "type": "integer", "minimum": 0 },
        "continueOnFail": { "type": "boolean" },
        "errorBranch": { "type": "string" },
        "condition": { "type": "string" },
        "code": { "type": "string" },
        "language": { "type": "string" },
        "expression": { "type": "string" },
        "transformType": {
          "type": "string",
          "enum": ["map", "filter", "reduce", "sort", "jq", "custom"]
        },
        "loopType": {
          "type": "string",
          "enum": ["forEach", "times", "while"]
        },
        "iteratorVariable": { "type": "string" },
        "collection": { "type": "string" },
        "maxIterations": { "type": "integer", "minimum": 0 },
        "delayType": {
          "type": "string",
          "enum": ["fixed", "until", "cron"]
        },
        "delayMs": { "type": "integer", "minimum": 0 },
        "untilTime": { "type": "string" },
        "cronExpression": { "type": "string" },
        "webhookUrl": { "type": "string" },
        "method": { "type": "string" },
        "headers": {
          "type": "object",
          "additionalProperties": { "type": "string" }
        },
        "body": { "type": "string" },
        "retries": { "type": "integer", "minimum": 0 },
        "allowInternalNetwork": { "type": "boolean" },
        "mergeStrategy": {
          "type": "string",
          "enum": ["merge", "concat", "first", "last", "custom"]
        },
        "timeout": { "type": "integer", "minimum": 0 },
        "codeSandbox": { "$ref": "#/$defs/codeSandbox" }
      }
    },
    "codeSandbox": {
      "type": "object",
      "properties": {
        "runtime": {
          "type": "string",
          "enum": ["auto", "docker", "podman", "native"]
        },
        "timeoutMs": { "type": "integer", "minimum": 0 },
        "memoryLimitMb": { "type": "integer", "minimum": 0 },
        "networkEnabled": { "type": "boolean" },
        "env": {
          "type": "object",
          "additionalProperties": { "type": "string" }
        },
        "args": {
          "type": "array",
          "items": { "type": "string" }
        },
        "files": {
          "type": "object",
          "additionalProperties": { "type": "string" }
        }
      }
    }
  }
}`

// JSONSchemaValidator validates workflow definitions against the embedded
// JSON Schema (Draft 2020-12). It is safe for concurrent use.
type JSONSchemaValidator struct {
	workflowSchema *jsonschema.Schema
}

// NewJSONSchemaValidator creates a new JSONSchemaValidator with the workflow schema pre-compiled.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(workflowSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal workflow schema: %w", err)
	}
	if err := c.AddResource("https://cognia.dev/schemas/workflow.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add workflow schema resource: %w", err)
	}

	wfSchema, err := c.Compile("https://cognia.dev/schemas/workflow.json")
	if err != nil {
		return nil, fmt.Errorf("compile workflow schema: %w", err)
	}

	return &JSONSchemaValidator{workflowSchema: wfSchema}, nil
}

// ValidateDefinition validates a WorkflowDefinition against the workflow JSON Schema.
func (v *JSONSchemaValidator) ValidateDefinition(def *schema.WorkflowDefinition) error {
	if def == nil {
		return schema.NewError(schema.ErrCodeValidation, "workflow definition is nil")
	}

	doc, err := toJSONValue(def)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize workflow definition").WithCause(err)
	}

	if err := v.workflowSchema.Validate(doc); err != nil {
		return toEngineError(err)
	}

	return nil
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toEngineError converts a jsonschema.ValidationError into an EngineError
// with the leaf violations collected for actionable reporting.
func toEngineError(err error) *schema.EngineError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
