package schema

// EventType enumerates progress events emitted during an execution.
type EventType string

const (
	EventExecutionStarted   EventType = "execution_started"
	EventExecutionProgress  EventType = "execution_progress"
	EventStepStarted        EventType = "step_started"
	EventStepCompleted      EventType = "step_completed"
	EventStepFailed         EventType = "step_failed"
	EventExecutionLog       EventType = "execution_log"
	EventExecutionCompleted EventType = "execution_completed"
	EventExecutionFailed    EventType = "execution_failed"
	EventExecutionCancelled EventType = "execution_cancelled"
)

// LogLevel is the severity of a log entry or event.
type LogLevel string

const (
	LevelTrace LogLevel = "trace"
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
	LevelFatal LogLevel = "fatal"
)

// Well-known event/log codes.
const (
	CodeExecutionStarted   = "workflow.execution.started"
	CodeExecutionProgress  = "workflow.execution.progress"
	CodeExecutionLog       = "workflow.execution.log"
	CodeExecutionCompleted = "workflow.execution.completed"
	CodeExecutionFailed    = "workflow.execution.failed"
	CodeExecutionCancelled = "workflow.execution.cancelled"
	CodeExecutionPaused    = "workflow.execution.paused"
	CodeExecutionResumed   = "workflow.execution.resumed"

	CodeStepStarted   = "workflow.step.started"
	CodeStepCompleted = "workflow.step.completed"
	CodeStepFailed    = "workflow.step.failed"
	CodeStepRetrying  = "workflow.step.retrying"

	CodeStepFallbackApplied           = "workflow.step.failure_fallback_applied"
	CodeStepDependencyFallbackApplied = "workflow.step.dependency_fallback_applied"
)

// DefaultLevel returns the level used when an event carries none.
func (t EventType) DefaultLevel() LogLevel {
	switch t {
	case EventStepFailed, EventExecutionFailed:
		return LevelError
	case EventExecutionCancelled:
		return LevelWarn
	default:
		return LevelInfo
	}
}

// DefaultCode returns the log code used when an event carries none.
func (t EventType) DefaultCode() string {
	switch t {
	case EventExecutionStarted:
		return CodeExecutionStarted
	case EventExecutionProgress:
		return CodeExecutionProgress
	case EventStepStarted:
		return CodeStepStarted
	case EventStepCompleted:
		return CodeStepCompleted
	case EventStepFailed:
		return CodeStepFailed
	case EventExecutionLog:
		return CodeExecutionLog
	case EventExecutionCompleted:
		return CodeExecutionCompleted
	case EventExecutionFailed:
		return CodeExecutionFailed
	case EventExecutionCancelled:
		return CodeExecutionCancelled
	default:
		return CodeExecutionLog
	}
}

// EventPayload is the wire shape delivered to event listeners.
type EventPayload struct {
	Type        EventType `json:"type"`
	EventID     string    `json:"eventId,omitempty"`
	Level       LogLevel  `json:"level,omitempty"`
	Code        string    `json:"code,omitempty"`
	TraceID     *string   `json:"traceId,omitempty"`
	RequestID   *string   `json:"requestId,omitempty"`
	ExecutionID string    `json:"executionId"`
	WorkflowID  string    `json:"workflowId"`
	Timestamp   string    `json:"timestamp"`
	Progress    *float64  `json:"progress,omitempty"`
	StepID      *string   `json:"stepId,omitempty"`
	Message     *string   `json:"message,omitempty"`
	Error       *string   `json:"error,omitempty"`
	Data        any       `json:"data,omitempty"`
}

// LogEntry is the durable projection of an event stored on the record.
type LogEntry struct {
	EventID     string   `json:"eventId"`
	Level       LogLevel `json:"level"`
	Code        *string  `json:"code,omitempty"`
	RequestID   *string  `json:"requestId,omitempty"`
	ExecutionID string   `json:"executionId"`
	WorkflowID  string   `json:"workflowId"`
	StepID      *string  `json:"stepId,omitempty"`
	TraceID     *string  `json:"traceId,omitempty"`
	Timestamp   string   `json:"timestamp"`
	Message     *string  `json:"message,omitempty"`
	Error       *string  `json:"error,omitempty"`
	Data        any      `json:"data,omitempty"`
}
