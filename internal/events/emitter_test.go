package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ElementsAI-Dev/cognia-workflow/pkg/schema"
)

func strPtr(s string) *string { return &s }

func TestEmitEventDefaultsAndDelivery(t *testing.T) {
	var received []schema.EventPayload
	emitter := NewEmitter(ListenerFunc(func(payload schema.EventPayload) {
		received = append(received, payload)
	}))

	requestID := "req-1"
	entry := emitter.EmitEvent(EventArgs{
		Type:        schema.EventStepFailed,
		RequestID:   &requestID,
		ExecutionID: "exec-1",
		WorkflowID:  "wf-1",
		StepID:      strPtr("step-a"),
		Error:       strPtr("boom"),
	})

	require.Len(t, received, 1)
	payload := received[0]
	assert.Equal(t, schema.EventStepFailed, payload.Type)
	assert.Equal(t, schema.LevelError, payload.Level)
	assert.Equal(t, schema.CodeStepFailed, payload.Code)
	assert.NotEmpty(t, payload.EventID)
	assert.NotEmpty(t, payload.Timestamp)
	// Trace falls back to the request ID.
	require.NotNil(t, payload.TraceID)
	assert.Equal(t, "req-1", *payload.TraceID)

	assert.Equal(t, payload.EventID, entry.EventID)
	assert.Equal(t, schema.LevelError, entry.Level)
	require.NotNil(t, entry.Code)
	assert.Equal(t, schema.CodeStepFailed, *entry.Code)
	require.NotNil(t, entry.Error)
	assert.Equal(t, "boom", *entry.Error)
}

func TestEmitEventLevelPerType(t *testing.T) {
	tests := []struct {
		eventType schema.EventType
		level     schema.LogLevel
	}{
		{schema.EventExecutionStarted, schema.LevelInfo},
		{schema.EventStepCompleted, schema.LevelInfo},
		{schema.EventStepFailed, schema.LevelError},
		{schema.EventExecutionFailed, schema.LevelError},
		{schema.EventExecutionCancelled, schema.LevelWarn},
	}
	emitter := NewEmitter()
	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			entry := emitter.EmitEvent(EventArgs{
				Type:        tt.eventType,
				ExecutionID: "exec-1",
				WorkflowID:  "wf-1",
			})
			assert.Equal(t, tt.level, entry.Level)
		})
	}
}

func TestEmitLogCarriesExplicitCode(t *testing.T) {
	emitter := NewEmitter()

	entry := emitter.EmitLog(EventArgs{
		ExecutionID: "exec-1",
		WorkflowID:  "wf-1",
		StepID:      strPtr("step-a"),
		Message:     strPtr("retrying step (attempt 1/2)"),
	}, schema.LevelWarn, schema.CodeStepRetrying)

	assert.Equal(t, schema.LevelWarn, entry.Level)
	require.NotNil(t, entry.Code)
	assert.Equal(t, schema.CodeStepRetrying, *entry.Code)
}

func TestPanickingListenerDoesNotFailEmit(t *testing.T) {
	var delivered int
	emitter := NewEmitter(
		ListenerFunc(func(schema.EventPayload) { panic("bad listener") }),
		ListenerFunc(func(schema.EventPayload) { delivered++ }),
	)

	entry := emitter.EmitEvent(EventArgs{
		Type:        schema.EventExecutionStarted,
		ExecutionID: "exec-1",
		WorkflowID:  "wf-1",
	})
	assert.NotEmpty(t, entry.EventID)
	assert.Equal(t, 1, delivered)
}
