package schema

import "encoding/json"

// Step type constants. Unknown types fall through to a pass-through executor.
const (
	StepTypeConditional = "conditional"
	StepTypeTransform   = "transform"
	StepTypeLoop        = "loop"
	StepTypeDelay       = "delay"
	StepTypeMerge       = "merge"
	StepTypeWebhook     = "webhook"
	StepTypeCode        = "code"
	StepTypeTool        = "tool"
)

// WorkflowDefinition is the JSON-serializable workflow format submitted to Run.
type WorkflowDefinition struct {
	ID          string                   `json:"id"`
	Name        string                   `json:"name,omitempty"`
	Description string                   `json:"description,omitempty"`
	Steps       []WorkflowStepDefinition `json:"steps"`
}

// WorkflowIOSchema declares one input slot of a step. Default is injected
// into the resolved step input when no upstream value fills the slot.
type WorkflowIOSchema struct {
	Default any            `json:"default,omitempty"`
	Extra   map[string]any `json:"-"`
}

// UnmarshalJSON keeps unknown sibling keys of "default" in Extra so
// round-tripping a definition does not lose authoring metadata.
func (s *WorkflowIOSchema) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if v, ok := raw["default"]; ok {
		s.Default = v
		delete(raw, "default")
	}
	if len(raw) > 0 {
		s.Extra = raw
	}
	return nil
}

func (s WorkflowIOSchema) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Extra)+1)
	for k, v := range s.Extra {
		out[k] = v
	}
	if s.Default != nil {
		out["default"] = s.Default
	}
	return json.Marshal(out)
}

// WorkflowStepDefinition describes a single step. Most fields are only
// meaningful for a subset of step types; executors read what they need.
type WorkflowStepDefinition struct {
	ID           string                      `json:"id"`
	Name         string                      `json:"name,omitempty"`
	Description  string                      `json:"description,omitempty"`
	Type         string                      `json:"type"`
	ToolName     *string                     `json:"toolName,omitempty"`
	Metadata     map[string]any              `json:"metadata,omitempty"`
	Dependencies []string                    `json:"dependencies,omitempty"`
	Inputs       map[string]WorkflowIOSchema `json:"inputs,omitempty"`

	// Policy
	Optional       *bool   `json:"optional,omitempty"`
	RetryCount     *uint32 `json:"retryCount,omitempty"`
	ContinueOnFail *bool   `json:"continueOnFail,omitempty"`
	ErrorBranch    *string `json:"errorBranch,omitempty"`
	FallbackOutput any     `json:"fallbackOutput,omitempty"`
	Timeout        *uint64 `json:"timeout,omitempty"` // milliseconds

	// Conditional
	Condition *string `json:"condition,omitempty"`

	// Code
	Code        *string                     `json:"code,omitempty"`
	Language    *string                     `json:"language,omitempty"`
	CodeSandbox *WorkflowCodeSandboxOptions `json:"codeSandbox,omitempty"`

	// Transform
	Expression    *string `json:"expression,omitempty"`
	TransformType *string `json:"transformType,omitempty"`

	// Loop
	LoopType         *string `json:"loopType,omitempty"`
	IteratorVariable *string `json:"iteratorVariable,omitempty"`
	Collection       *string `json:"collection,omitempty"`
	MaxIterations    *uint64 `json:"maxIterations,omitempty"`

	// Delay
	DelayType      *string `json:"delayType,omitempty"`
	DelayMs        *uint64 `json:"delayMs,omitempty"`
	UntilTime      *string `json:"untilTime,omitempty"`
	CronExpression *string `json:"cronExpression,omitempty"`

	// Webhook
	WebhookURL           *string           `json:"webhookUrl,omitempty"`
	Method               *string           `json:"method,omitempty"`
	Headers              map[string]string `json:"headers,omitempty"`
	Body                 *string           `json:"body,omitempty"`
	Retries              *uint32           `json:"retries,omitempty"`
	AllowInternalNetwork *bool             `json:"allowInternalNetwork,omitempty"`

	// Merge
	MergeStrategy *string `json:"mergeStrategy,omitempty"`
}

// CodeRuntime selects the sandbox backend for code steps.
type CodeRuntime string

const (
	CodeRuntimeAuto   CodeRuntime = "auto"
	CodeRuntimeDocker CodeRuntime = "docker"
	CodeRuntimePodman CodeRuntime = "podman"
	CodeRuntimeNative CodeRuntime = "native"
)

// WorkflowCodeSandboxOptions configures the sandbox for a code step.
type WorkflowCodeSandboxOptions struct {
	Runtime        *CodeRuntime      `json:"runtime,omitempty"`
	TimeoutMs      *uint64           `json:"timeoutMs,omitempty"`
	MemoryLimitMB  *uint64           `json:"memoryLimitMb,omitempty"`
	NetworkEnabled *bool             `json:"networkEnabled,omitempty"`
	Env            map[string]string `json:"env,omitempty"`
	Args           []string          `json:"args,omitempty"`
	Files          map[string]string `json:"files,omitempty"`
}

// WorkflowRuntimeConfig carries provider-level settings forwarded to
// collaborators (code sandbox, tool bridge). The engine itself only reads
// TimeoutMs as a fallback workflow budget.
type WorkflowRuntimeConfig struct {
	Provider   *string        `json:"provider,omitempty"`
	Model      *string        `json:"model,omitempty"`
	TimeoutMs  *uint64        `json:"timeoutMs,omitempty"`
	Retry      *uint32        `json:"retry,omitempty"`
	ToolBridge *string        `json:"toolBridge,omitempty"`
	Extra      map[string]any `json:"-"`
}

// UnmarshalJSON collects unrecognized keys into Extra so provider-specific
// settings survive the round trip to collaborators.
func (c *WorkflowRuntimeConfig) UnmarshalJSON(b []byte) error {
	type alias WorkflowRuntimeConfig
	var known alias
	if err := json.Unmarshal(b, &known); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for _, k := range []string{"provider", "model", "timeoutMs", "retry", "toolBridge"} {
		delete(raw, k)
	}
	*c = WorkflowRuntimeConfig(known)
	if len(raw) > 0 {
		c.Extra = raw
	}
	return nil
}

func (c WorkflowRuntimeConfig) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Extra)+5)
	for k, v := range c.Extra {
		out[k] = v
	}
	if c.Provider != nil {
		out["provider"] = *c.Provider
	}
	if c.Model != nil {
		out["model"] = *c.Model
	}
	if c.TimeoutMs != nil {
		out["timeoutMs"] = *c.TimeoutMs
	}
	if c.Retry != nil {
		out["retry"] = *c.Retry
	}
	if c.ToolBridge != nil {
		out["toolBridge"] = *c.ToolBridge
	}
	return json.Marshal(out)
}

// WorkflowRunOptions are per-run options.
type WorkflowRunOptions struct {
	TriggerID     *string                `json:"triggerId,omitempty"`
	IsReplay      *bool                  `json:"isReplay,omitempty"`
	TimeoutMs     *uint64                `json:"timeoutMs,omitempty"`
	RequestID     *string                `json:"requestId,omitempty"`
	RuntimeConfig *WorkflowRuntimeConfig `json:"runtimeConfig,omitempty"`
}

// WorkflowRunRequest is the full payload accepted by Runner.Run.
type WorkflowRunRequest struct {
	Definition WorkflowDefinition  `json:"definition"`
	Input      map[string]any      `json:"input,omitempty"`
	Options    *WorkflowRunOptions `json:"options,omitempty"`
}
