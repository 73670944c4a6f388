package steps

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ElementsAI-Dev/cognia-workflow/pkg/schema"
)

// maxDelayMs caps fixed delays at one hour.
const maxDelayMs = 60 * 60 * 1000

// executeDelay handles fixed/until/cron delays. Fixed and until delays block
// (respecting context cancellation); cron never sleeps, it only reports the
// next fire time so callers can schedule externally.
func (e *Executor) executeDelay(ctx context.Context, step *schema.WorkflowStepDefinition) (map[string]any, error) {
	delayType := strOr(step.DelayType, "fixed")

	switch delayType {
	case "until":
		if step.UntilTime == nil {
			return nil, schema.NewError(schema.ErrCodeStepFailed, "delay type 'until' requires untilTime")
		}
		untilTime := *step.UntilTime
		target, err := time.Parse(time.RFC3339, untilTime)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStepFailed, "invalid untilTime: %s", err.Error()).WithCause(err)
		}

		output := map[string]any{"untilTime": untilTime}
		wait := time.Until(target)
		if wait > 0 {
			if err := sleepCtx(ctx, wait); err != nil {
				return nil, err
			}
			output["delayed"] = true
			output["delayMs"] = wait.Milliseconds()
		} else {
			output["delayed"] = false
			output["reason"] = "until_time_in_past"
		}
		return output, nil

	case "cron":
		expression := strOr(step.CronExpression, "")
		output := map[string]any{
			"delayed":        false,
			"mode":           "cron",
			"cronExpression": expression,
			"note":           "cron scheduling is non-blocking in runtime execution",
		}
		if expression != "" {
			sched, err := cron.ParseStandard(expression)
			if err != nil {
				return nil, schema.NewErrorf(schema.ErrCodeStepFailed, "invalid cronExpression: %s", err.Error()).WithCause(err)
			}
			output["nextRun"] = sched.Next(time.Now()).UTC().Format(time.RFC3339)
		}
		return output, nil

	default: // fixed
		delayMs := u64Or(step.DelayMs, 0)
		if delayMs > maxDelayMs {
			delayMs = maxDelayMs
		}
		if err := sleepCtx(ctx, time.Duration(delayMs)*time.Millisecond); err != nil {
			return nil, err
		}
		return map[string]any{
			"delayed": true,
			"delayMs": int64(delayMs),
			"mode":    "fixed",
		}, nil
	}
}

// sleepCtx sleeps for d or until the context is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return schema.NewError(schema.ErrCodeCancelled, "delay interrupted").WithCause(ctx.Err())
	}
}
