package steps

import (
	"context"
	"strings"

	"github.com/ElementsAI-Dev/cognia-workflow/pkg/schema"
)

// executeTool dispatches recording_* tools to the RecordingManager. Steps
// without a tool name, or with a tool outside the recording family, pass
// their input through.
func (e *Executor) executeTool(ctx context.Context, step *schema.WorkflowStepDefinition, input map[string]any) (map[string]any, error) {
	if step.ToolName == nil {
		return copyMap(input), nil
	}
	toolName := *step.ToolName
	if !strings.HasPrefix(toolName, "recording_") {
		return copyMap(input), nil
	}

	if e.recorder == nil {
		return nil, schema.NewErrorf(schema.ErrCodeStepFailed,
			"recording tool '%s' requires desktop recording manager state", toolName)
	}

	switch toolName {
	case "recording_start_fullscreen":
		monitorIndex := readOptionalInt(step, input, "monitorIndex", "monitor_index")
		recordingID, err := e.recorder.StartFullscreen(ctx, monitorIndex)
		if err != nil {
			return nil, toolError(toolName, err)
		}
		return map[string]any{
			"recordingId": recordingID,
			"status":      e.recorder.Status(),
			"durationMs":  e.recorder.DurationMs(),
		}, nil

	case "recording_start_window":
		windowTitle := readOptionalString(step, input, "windowTitle", "window_title")
		recordingID, err := e.recorder.StartWindow(ctx, windowTitle)
		if err != nil {
			return nil, toolError(toolName, err)
		}
		return map[string]any{
			"recordingId": recordingID,
			"status":      e.recorder.Status(),
			"durationMs":  e.recorder.DurationMs(),
		}, nil

	case "recording_start_region":
		region, err := parseRecordingRegion(step, input)
		if err != nil {
			return nil, err
		}
		recordingID, err := e.recorder.StartRegion(ctx, region)
		if err != nil {
			return nil, toolError(toolName, err)
		}
		return map[string]any{
			"recordingId": recordingID,
			"status":      e.recorder.Status(),
			"durationMs":  e.recorder.DurationMs(),
		}, nil

	case "recording_pause":
		if err := e.recorder.Pause(); err != nil {
			return nil, toolError(toolName, err)
		}
		return map[string]any{"status": e.recorder.Status()}, nil

	case "recording_resume":
		if err := e.recorder.Resume(); err != nil {
			return nil, toolError(toolName, err)
		}
		return map[string]any{"status": e.recorder.Status()}, nil

	case "recording_stop":
		metadata, err := e.recorder.Stop(ctx)
		if err != nil {
			return nil, toolError(toolName, err)
		}
		output := map[string]any{
			"metadata": metadata,
			"status":   e.recorder.Status(),
		}
		if id, ok := metadata["id"].(string); ok {
			output["recordingId"] = id
		}
		return output, nil

	case "recording_cancel":
		if err := e.recorder.Cancel(); err != nil {
			return nil, toolError(toolName, err)
		}
		return map[string]any{
			"cancelled": true,
			"status":    e.recorder.Status(),
		}, nil

	case "recording_status":
		return map[string]any{"status": e.recorder.Status()}, nil

	case "recording_duration":
		return map[string]any{"durationMs": e.recorder.DurationMs()}, nil

	default:
		return nil, schema.NewErrorf(schema.ErrCodeStepFailed, "unsupported recording tool '%s'", toolName)
	}
}

func toolError(toolName string, err error) error {
	return schema.NewErrorf(schema.ErrCodeStepFailed, "%s failed: %s", toolName, err.Error()).WithCause(err)
}

// readParam looks a parameter up in the step input first, then in the step
// metadata, trying each key alias in order.
func readParam(step *schema.WorkflowStepDefinition, input map[string]any, keys ...string) (any, bool) {
	for _, key := range keys {
		if v, ok := input[key]; ok {
			return v, true
		}
		if v, ok := step.Metadata[key]; ok {
			return v, true
		}
	}
	return nil, false
}

func readOptionalInt(step *schema.WorkflowStepDefinition, input map[string]any, keys ...string) *int {
	v, ok := readParam(step, input, keys...)
	if !ok {
		return nil
	}
	n, ok := asInt64(v)
	if !ok {
		return nil
	}
	if n < 0 {
		n = 0
	}
	out := int(n)
	return &out
}

func readOptionalString(step *schema.WorkflowStepDefinition, input map[string]any, keys ...string) *string {
	v, ok := readParam(step, input, keys...)
	if !ok {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}

// parseRecordingRegion reads the region from a nested "region" object or
// from flat x/y/width/height keys.
func parseRecordingRegion(step *schema.WorkflowStepDefinition, input map[string]any) (RecordingRegion, error) {
	if raw, ok := readParam(step, input, "region"); ok {
		if obj, ok := raw.(map[string]any); ok {
			region := RecordingRegion{}
			for _, field := range []struct {
				name string
				dst  *int64
			}{
				{"x", &region.X},
				{"y", &region.Y},
				{"width", &region.Width},
				{"height", &region.Height},
			} {
				n, ok := asInt64(obj[field.name])
				if !ok {
					return RecordingRegion{}, schema.NewErrorf(schema.ErrCodeStepFailed,
						"recording_start_region requires region.%s", field.name)
				}
				*field.dst = n
			}
			return region, nil
		}
	}

	region := RecordingRegion{}
	for _, field := range []struct {
		name string
		dst  *int64
	}{
		{"x", &region.X},
		{"y", &region.Y},
		{"width", &region.Width},
		{"height", &region.Height},
	} {
		raw, ok := readParam(step, input, field.name)
		if !ok {
			return RecordingRegion{}, schema.NewErrorf(schema.ErrCodeStepFailed,
				"recording_start_region requires %s", field.name)
		}
		n, ok := asInt64(raw)
		if !ok {
			return RecordingRegion{}, schema.NewErrorf(schema.ErrCodeStepFailed,
				"recording_start_region requires %s", field.name)
		}
		*field.dst = n
	}
	return region, nil
}

// asInt64 coerces JSON numeric representations to int64.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case uint64:
		return int64(n), true
	default:
		return 0, false
	}
}
