package schema

// ExecutionStatus represents the lifecycle state of a workflow execution.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionPaused    ExecutionStatus = "paused"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionCompleted, ExecutionFailed, ExecutionCancelled:
		return true
	}
	return false
}

// StepStatus represents the lifecycle state of a single step.
type StepStatus string

const (
	StepPending         StepStatus = "pending"
	StepRunning         StepStatus = "running"
	StepCompleted       StepStatus = "completed"
	StepFailed          StepStatus = "failed"
	StepSkipped         StepStatus = "skipped"
	StepWaitingApproval StepStatus = "waiting_approval"
)

// Terminal reports whether the step status is final.
func (s StepStatus) Terminal() bool {
	switch s {
	case StepCompleted, StepFailed, StepSkipped:
		return true
	}
	return false
}

// WorkflowStepState is the runtime record of one step.
type WorkflowStepState struct {
	StepID      string         `json:"stepId"`
	Status      StepStatus     `json:"status"`
	Input       map[string]any `json:"input,omitempty"`
	Output      map[string]any `json:"output,omitempty"`
	Error       *string        `json:"error,omitempty"`
	StartedAt   *string        `json:"startedAt,omitempty"`
	CompletedAt *string        `json:"completedAt,omitempty"`
	RetryCount  uint32         `json:"retryCount"`
}

// WorkflowExecutionRecord is the full persisted state of one execution.
type WorkflowExecutionRecord struct {
	ExecutionID string              `json:"executionId"`
	WorkflowID  string              `json:"workflowId"`
	Status      ExecutionStatus     `json:"status"`
	RequestID   *string             `json:"requestId,omitempty"`
	Input       map[string]any      `json:"input"`
	Output      map[string]any      `json:"output,omitempty"`
	StepStates  []WorkflowStepState `json:"stepStates"`
	Logs        []LogEntry          `json:"logs"`
	Error       *string             `json:"error,omitempty"`
	StartedAt   string              `json:"startedAt"`
	CompletedAt *string             `json:"completedAt,omitempty"`
	TriggerID   *string             `json:"triggerId,omitempty"`
	IsReplay    *bool               `json:"isReplay,omitempty"`
}

// StepState returns the state for the given step ID, or nil.
func (r *WorkflowExecutionRecord) StepState(stepID string) *WorkflowStepState {
	for i := range r.StepStates {
		if r.StepStates[i].StepID == stepID {
			return &r.StepStates[i]
		}
	}
	return nil
}

// WorkflowRunResult is the caller-facing summary returned by Run.
type WorkflowRunResult struct {
	ExecutionID string              `json:"executionId"`
	Status      ExecutionStatus     `json:"status"`
	Output      map[string]any      `json:"output,omitempty"`
	StepStates  []WorkflowStepState `json:"stepStates"`
	Error       *string             `json:"error,omitempty"`
	StartedAt   *string             `json:"startedAt,omitempty"`
	CompletedAt *string             `json:"completedAt,omitempty"`
}

// ResultFromRecord projects an execution record into a run result.
func ResultFromRecord(rec *WorkflowExecutionRecord) *WorkflowRunResult {
	startedAt := rec.StartedAt
	return &WorkflowRunResult{
		ExecutionID: rec.ExecutionID,
		Status:      rec.Status,
		Output:      rec.Output,
		StepStates:  rec.StepStates,
		Error:       rec.Error,
		StartedAt:   &startedAt,
		CompletedAt: rec.CompletedAt,
	}
}
