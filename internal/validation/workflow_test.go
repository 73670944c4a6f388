package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ElementsAI-Dev/cognia-workflow/pkg/schema"
)

func newValidator(t *testing.T) *WorkflowValidator {
	t.Helper()
	wv, err := NewWorkflowValidator()
	require.NoError(t, err)
	return wv
}

func step(id, typ string, deps ...string) schema.WorkflowStepDefinition {
	return schema.WorkflowStepDefinition{ID: id, Type: typ, Dependencies: deps}
}

func TestValidate_ValidDefinition(t *testing.T) {
	wv := newValidator(t)

	def := &schema.WorkflowDefinition{
		ID:   "wf-1",
		Name: "pipeline",
		Steps: []schema.WorkflowStepDefinition{
			step("a", schema.StepTypeTransform),
			step("b", schema.StepTypeMerge, "a"),
			step("c", schema.StepTypeDelay, "a", "b"),
		},
	}

	result := wv.Validate(def)
	assert.True(t, result.Valid())
	assert.Empty(t, result.Warnings)
	assert.NoError(t, wv.ValidateDefinition(def))
}

func TestValidate_NilDefinition(t *testing.T) {
	wv := newValidator(t)

	result := wv.Validate(nil)
	assert.False(t, result.Valid())
}

func TestValidate_MissingWorkflowID(t *testing.T) {
	wv := newValidator(t)

	def := &schema.WorkflowDefinition{
		Steps: []schema.WorkflowStepDefinition{step("a", schema.StepTypeTransform)},
	}

	result := wv.Validate(def)
	assert.False(t, result.Valid())
}

func TestValidate_EmptyStepID(t *testing.T) {
	wv := newValidator(t)

	def := &schema.WorkflowDefinition{
		ID:    "wf-1",
		Steps: []schema.WorkflowStepDefinition{step("", schema.StepTypeTransform)},
	}

	result := wv.Validate(def)
	assert.False(t, result.Valid())
}

func TestValidate_DuplicateStepIDs(t *testing.T) {
	wv := newValidator(t)

	def := &schema.WorkflowDefinition{
		ID: "wf-1",
		Steps: []schema.WorkflowStepDefinition{
			step("a", schema.StepTypeTransform),
			step("a", schema.StepTypeMerge),
		},
	}

	result := wv.Validate(def)
	require.False(t, result.Valid())
	assert.Contains(t, result.Errors[0].Message, "duplicate")
}

func TestValidate_UnknownDependency(t *testing.T) {
	wv := newValidator(t)

	def := &schema.WorkflowDefinition{
		ID: "wf-1",
		Steps: []schema.WorkflowStepDefinition{
			step("a", schema.StepTypeTransform, "ghost"),
		},
	}

	result := wv.Validate(def)
	require.False(t, result.Valid())
	assert.Contains(t, result.Errors[0].Message, "non-existent")
}

func TestValidate_SelfDependency(t *testing.T) {
	wv := newValidator(t)

	def := &schema.WorkflowDefinition{
		ID: "wf-1",
		Steps: []schema.WorkflowStepDefinition{
			step("a", schema.StepTypeTransform, "a"),
		},
	}

	result := wv.Validate(def)
	assert.False(t, result.Valid())
}

func TestValidate_CycleDetected(t *testing.T) {
	wv := newValidator(t)

	def := &schema.WorkflowDefinition{
		ID: "wf-1",
		Steps: []schema.WorkflowStepDefinition{
			step("a", schema.StepTypeTransform, "c"),
			step("b", schema.StepTypeTransform, "a"),
			step("c", schema.StepTypeTransform, "b"),
		},
	}

	result := wv.Validate(def)
	require.False(t, result.Valid())

	found := false
	for _, issue := range result.Errors {
		if issue.Code == schema.ErrCodeCycleDetected {
			found = true
		}
	}
	assert.True(t, found, "expected a CYCLE_DETECTED issue")
}

func TestValidate_UnknownStepTypeWarns(t *testing.T) {
	wv := newValidator(t)

	def := &schema.WorkflowDefinition{
		ID: "wf-1",
		Steps: []schema.WorkflowStepDefinition{
			step("a", "mystery"),
		},
	}

	result := wv.Validate(def)
	assert.True(t, result.Valid(), "unknown type is a warning, not an error")
	assert.NotEmpty(t, result.Warnings)
}

func TestValidate_InvalidEnumValue(t *testing.T) {
	wv := newValidator(t)

	bad := "bogus"
	def := &schema.WorkflowDefinition{
		ID: "wf-1",
		Steps: []schema.WorkflowStepDefinition{
			{ID: "a", Type: schema.StepTypeTransform, TransformType: &bad},
		},
	}

	result := wv.Validate(def)
	assert.False(t, result.Valid())
}
