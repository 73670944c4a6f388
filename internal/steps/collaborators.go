package steps

import (
	"context"

	"github.com/ElementsAI-Dev/cognia-workflow/pkg/schema"
)

// ExecutionRequest describes one code-sandbox run.
type ExecutionRequest struct {
	ID             string              `json:"id"`
	Language       string              `json:"language"`
	Code           string              `json:"code"`
	Stdin          *string             `json:"stdin,omitempty"`
	Runtime        *schema.CodeRuntime `json:"runtime,omitempty"` // nil lets the sandbox pick
	TimeoutSecs    *uint64             `json:"timeoutSecs,omitempty"`
	MemoryLimitMB  *uint64             `json:"memoryLimitMb,omitempty"`
	NetworkEnabled *bool               `json:"networkEnabled,omitempty"`
	Env            map[string]string   `json:"env,omitempty"`
	Args           []string            `json:"args,omitempty"`
	Files          map[string]string   `json:"files,omitempty"`
}

// ExecutionResult is the outcome of a code-sandbox run.
type ExecutionResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode *int64 `json:"exitCode,omitempty"`
	Runtime  string `json:"runtime"`
}

// CodeSandbox executes untrusted code in an isolated runtime. Implemented by
// the host application; the engine only builds requests and reads results.
type CodeSandbox interface {
	Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error)
}

// RecordingRegion is a screen rectangle for region captures.
type RecordingRegion struct {
	X      int64 `json:"x"`
	Y      int64 `json:"y"`
	Width  int64 `json:"width"`
	Height int64 `json:"height"`
}

// RecordingManager drives the host's screen-recording tools. Tool steps
// whose toolName begins with "recording_" dispatch to it.
type RecordingManager interface {
	StartFullscreen(ctx context.Context, monitorIndex *int) (string, error)
	StartWindow(ctx context.Context, windowTitle *string) (string, error)
	StartRegion(ctx context.Context, region RecordingRegion) (string, error)
	Pause() error
	Resume() error
	Stop(ctx context.Context) (map[string]any, error)
	Cancel() error
	Status() string
	DurationMs() int64
}
