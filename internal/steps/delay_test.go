package steps

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ElementsAI-Dev/cognia-workflow/pkg/schema"
)

func TestDelay_Fixed(t *testing.T) {
	e := NewExecutor()

	step := &schema.WorkflowStepDefinition{
		ID:      "d",
		Type:    schema.StepTypeDelay,
		DelayMs: u64Ptr(5),
	}
	out, err := e.ExecuteStep(context.Background(), "exec-1", step, map[string]any{})
	require.NoError(t, err)

	assert.Equal(t, true, out["delayed"])
	assert.Equal(t, int64(5), out["delayMs"])
	assert.Equal(t, "fixed", out["mode"])
}

func TestDelay_FixedRespectsCancellation(t *testing.T) {
	e := NewExecutor()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	step := &schema.WorkflowStepDefinition{
		ID:      "d",
		Type:    schema.StepTypeDelay,
		DelayMs: u64Ptr(60_000),
	}
	_, err := e.ExecuteStep(ctx, "exec-1", step, map[string]any{})
	require.Error(t, err)
}

func TestDelay_UntilInPast(t *testing.T) {
	e := NewExecutor()

	past := time.Now().Add(-time.Hour).Format(time.RFC3339)
	step := &schema.WorkflowStepDefinition{
		ID:        "d",
		Type:      schema.StepTypeDelay,
		DelayType: strPtr("until"),
		UntilTime: strPtr(past),
	}
	out, err := e.ExecuteStep(context.Background(), "exec-1", step, map[string]any{})
	require.NoError(t, err)

	assert.Equal(t, false, out["delayed"])
	assert.Equal(t, "until_time_in_past", out["reason"])
	assert.Equal(t, past, out["untilTime"])
}

func TestDelay_UntilRejectsBadTimestamp(t *testing.T) {
	e := NewExecutor()

	step := &schema.WorkflowStepDefinition{
		ID:        "d",
		Type:      schema.StepTypeDelay,
		DelayType: strPtr("until"),
		UntilTime: strPtr("not-a-time"),
	}
	_, err := e.ExecuteStep(context.Background(), "exec-1", step, map[string]any{})
	require.Error(t, err)
}

func TestDelay_UntilRequiresTime(t *testing.T) {
	e := NewExecutor()

	step := &schema.WorkflowStepDefinition{
		ID:        "d",
		Type:      schema.StepTypeDelay,
		DelayType: strPtr("until"),
	}
	_, err := e.ExecuteStep(context.Background(), "exec-1", step, map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires untilTime")
}

func TestDelay_CronReportsNextRunWithoutSleeping(t *testing.T) {
	e := NewExecutor()

	step := &schema.WorkflowStepDefinition{
		ID:             "d",
		Type:           schema.StepTypeDelay,
		DelayType:      strPtr("cron"),
		CronExpression: strPtr("*/5 * * * *"),
	}

	start := time.Now()
	out, err := e.ExecuteStep(context.Background(), "exec-1", step, map[string]any{})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)

	assert.Equal(t, false, out["delayed"])
	assert.Equal(t, "cron", out["mode"])
	assert.Equal(t, "*/5 * * * *", out["cronExpression"])

	nextRun, ok := out["nextRun"].(string)
	require.True(t, ok)
	parsed, err := time.Parse(time.RFC3339, nextRun)
	require.NoError(t, err)
	assert.True(t, parsed.After(start.Add(-time.Minute)))
}

func TestDelay_CronRejectsBadExpression(t *testing.T) {
	e := NewExecutor()

	step := &schema.WorkflowStepDefinition{
		ID:             "d",
		Type:           schema.StepTypeDelay,
		DelayType:      strPtr("cron"),
		CronExpression: strPtr("not a cron"),
	}
	_, err := e.ExecuteStep(context.Background(), "exec-1", step, map[string]any{})
	require.Error(t, err)
}
