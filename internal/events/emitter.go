package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/ElementsAI-Dev/cognia-workflow/pkg/schema"
)

// Listener receives execution events. Implementations must not block for
// long; a misbehaving listener never fails a run.
type Listener interface {
	Emit(payload schema.EventPayload)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(payload schema.EventPayload)

func (f ListenerFunc) Emit(payload schema.EventPayload) { f(payload) }

// Emitter builds event payloads, fans them out to listeners and returns the
// durable log projection for the execution record.
type Emitter struct {
	listeners []Listener
}

// NewEmitter creates an Emitter for the given listeners. A nil or empty
// listener set is valid; events are then only recorded on the record logs.
func NewEmitter(listeners ...Listener) *Emitter {
	return &Emitter{listeners: listeners}
}

// EventArgs describes one execution event.
type EventArgs struct {
	Type        schema.EventType
	RequestID   *string
	ExecutionID string
	WorkflowID  string
	Progress    *float64
	StepID      *string
	Message     *string
	Error       *string
	Data        any

	// Level and Code override the defaults derived from Type. Used by
	// execution_log events, which carry an explicit code.
	Level *schema.LogLevel
	Code  *string
}

// EmitEvent publishes the event and returns its log entry.
func (e *Emitter) EmitEvent(args EventArgs) schema.LogEntry {
	timestamp := time.Now().UTC().Format(time.RFC3339)
	eventID := uuid.New().String()

	level := args.Type.DefaultLevel()
	if args.Level != nil {
		level = *args.Level
	}
	code := args.Type.DefaultCode()
	if args.Code != nil {
		code = *args.Code
	}

	// Trace correlation falls back to the request ID when no trace is set.
	traceID := args.RequestID

	payload := schema.EventPayload{
		Type:        args.Type,
		EventID:     eventID,
		Level:       level,
		Code:        code,
		TraceID:     traceID,
		RequestID:   args.RequestID,
		ExecutionID: args.ExecutionID,
		WorkflowID:  args.WorkflowID,
		Timestamp:   timestamp,
		Progress:    args.Progress,
		StepID:      args.StepID,
		Message:     args.Message,
		Error:       args.Error,
		Data:        args.Data,
	}
	for _, listener := range e.listeners {
		e.deliver(listener, payload)
	}

	return schema.LogEntry{
		EventID:     eventID,
		Level:       level,
		Code:        &code,
		RequestID:   args.RequestID,
		ExecutionID: args.ExecutionID,
		WorkflowID:  args.WorkflowID,
		StepID:      args.StepID,
		TraceID:     traceID,
		Timestamp:   timestamp,
		Message:     args.Message,
		Error:       args.Error,
		Data:        args.Data,
	}
}

// EmitLog publishes an execution_log event with an explicit level and code.
func (e *Emitter) EmitLog(args EventArgs, level schema.LogLevel, code string) schema.LogEntry {
	args.Type = schema.EventExecutionLog
	args.Level = &level
	args.Code = &code
	return e.EmitEvent(args)
}

// deliver isolates listener panics from the run loop.
func (e *Emitter) deliver(listener Listener, payload schema.EventPayload) {
	defer func() {
		_ = recover()
	}()
	listener.Emit(payload)
}
