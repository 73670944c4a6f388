package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/ElementsAI-Dev/cognia-workflow/internal/events"
	"github.com/ElementsAI-Dev/cognia-workflow/internal/expressions"
	"github.com/ElementsAI-Dev/cognia-workflow/internal/logging"
	"github.com/ElementsAI-Dev/cognia-workflow/internal/runtime"
	"github.com/ElementsAI-Dev/cognia-workflow/internal/steps"
	"github.com/ElementsAI-Dev/cognia-workflow/internal/validation"
	"github.com/ElementsAI-Dev/cognia-workflow/pkg/schema"
)

const (
	// DefaultPoolSize bounds how many steps of one wave run concurrently.
	DefaultPoolSize = 4
	// DefaultStepTimeout applies when a step declares no timeout of its own.
	DefaultStepTimeout = 10 * time.Minute

	pausePollInterval = 150 * time.Millisecond
)

// Config tunes the runner.
type Config struct {
	PoolSize           int
	DefaultStepTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.PoolSize <= 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.DefaultStepTimeout <= 0 {
		c.DefaultStepTimeout = DefaultStepTimeout
	}
	return c
}

// Runner executes workflow definitions against the runtime state.
type Runner struct {
	state     *runtime.State
	executor  *steps.Executor
	validator *validation.WorkflowValidator
	emitter   *events.Emitter
	logger    *slog.Logger
	config    Config
}

// NewRunner wires a Runner. A nil emitter means events are only recorded on
// the execution record logs.
func NewRunner(state *runtime.State, executor *steps.Executor, emitter *events.Emitter, logger *slog.Logger, config Config) (*Runner, error) {
	validator, err := validation.NewWorkflowValidator()
	if err != nil {
		return nil, err
	}
	if emitter == nil {
		emitter = events.NewEmitter()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		state:     state,
		executor:  executor,
		validator: validator,
		emitter:   emitter,
		logger:    logger,
		config:    config.withDefaults(),
	}, nil
}

// stepErrorBranch is the failure policy resolved for one step.
type stepErrorBranch int

const (
	branchStop stepErrorBranch = iota
	branchContinue
	branchFallback
)

func resolveStepErrorBranch(step *schema.WorkflowStepDefinition) stepErrorBranch {
	if step.ErrorBranch != nil {
		switch *step.ErrorBranch {
		case "continue":
			return branchContinue
		case "fallback":
			return branchFallback
		default:
			// Any other value names a divert target, not a failure policy.
			return branchStop
		}
	}
	if step.ContinueOnFail != nil && *step.ContinueOnFail {
		return branchContinue
	}
	return branchStop
}

func fallbackOutput(step *schema.WorkflowStepDefinition) map[string]any {
	if step.FallbackOutput == nil {
		return map[string]any{}
	}
	value := expressions.Normalize(step.FallbackOutput)
	if m, ok := value.(map[string]any); ok {
		return m
	}
	return map[string]any{"result": value}
}

func workflowProgress(states []schema.WorkflowStepState) float64 {
	if len(states) == 0 {
		return 100
	}
	terminal := 0
	for i := range states {
		if states[i].Status.Terminal() {
			terminal++
		}
	}
	return math.Round(float64(terminal) / float64(len(states)) * 100)
}

// run carries the mutable state of one Run call.
type run struct {
	runner  *Runner
	pool    *StepPool
	request *schema.WorkflowRunRequest

	executionID string
	requestID   *string
	startedAt   string
	deadline    *time.Time
	timeoutMs   uint64

	record     *schema.WorkflowExecutionRecord
	stepStates []schema.WorkflowStepState
	outputs    map[string]map[string]any
	done       map[string]struct{}
	diverted   map[string]struct{}

	progressed  bool
	failed      bool
	workflowErr *string
}

// Run validates and executes the definition, returning the final result.
// Definition errors are rejected before any execution state is created.
func (r *Runner) Run(ctx context.Context, request *schema.WorkflowRunRequest) (*schema.WorkflowRunResult, error) {
	if err := r.validator.ValidateDefinition(&request.Definition); err != nil {
		return nil, err
	}

	x := &run{
		runner:      r,
		pool:        NewStepPool(r.config.PoolSize),
		request:     request,
		executionID: uuid.New().String(),
		startedAt:   nowISO(),
		outputs:     make(map[string]map[string]any),
		done:        make(map[string]struct{}),
		diverted:    make(map[string]struct{}),
	}
	defer x.pool.Close()

	options := request.Options
	var triggerID *string
	var isReplay *bool
	if options != nil {
		x.requestID = options.RequestID
		triggerID = options.TriggerID
		isReplay = options.IsReplay
		if options.TimeoutMs != nil {
			x.timeoutMs = *options.TimeoutMs
		} else if options.RuntimeConfig != nil && options.RuntimeConfig.TimeoutMs != nil {
			x.timeoutMs = *options.RuntimeConfig.TimeoutMs
		}
	}
	if x.timeoutMs > 0 {
		deadline := time.Now().Add(time.Duration(x.timeoutMs) * time.Millisecond)
		x.deadline = &deadline
	}

	ctx = logging.WithExecutionID(logging.WithWorkflowID(ctx, request.Definition.ID), x.executionID)

	x.stepStates = make([]schema.WorkflowStepState, len(request.Definition.Steps))
	for i, step := range request.Definition.Steps {
		x.stepStates[i] = schema.WorkflowStepState{StepID: step.ID, Status: schema.StepPending}
	}

	x.record = &schema.WorkflowExecutionRecord{
		ExecutionID: x.executionID,
		WorkflowID:  request.Definition.ID,
		Status:      schema.ExecutionRunning,
		RequestID:   x.requestID,
		Input:       request.Input,
		StepStates:  x.stepStates,
		Logs:        []schema.LogEntry{},
		StartedAt:   x.startedAt,
		TriggerID:   triggerID,
		IsReplay:    isReplay,
	}
	x.persist(ctx)

	startedMsg := "workflow execution started"
	x.appendLog(x.event(events.EventArgs{
		Type:     schema.EventExecutionStarted,
		Progress: f64Ptr(0),
		Message:  &startedMsg,
	}))
	x.persist(ctx)

	r.logger.InfoContext(ctx, "workflow execution started",
		slog.Int("steps", len(request.Definition.Steps)))

	for {
		if x.timedOut() {
			x.fail(fmt.Sprintf("workflow timeout exceeded after %dms", x.timeoutMs))
			break
		}
		if r.state.IsCancelled(x.executionID) {
			return x.finishCancelled(ctx), nil
		}
		if r.state.IsPaused(x.executionID) {
			x.notePaused(ctx)
			if err := sleepCtx(ctx, pausePollInterval); err != nil {
				x.fail("execution context cancelled while paused")
				break
			}
			continue
		}
		if x.record.Status == schema.ExecutionPaused {
			x.noteResumed(ctx)
		}

		wave := x.collectWave(ctx)
		if x.failed {
			break
		}
		if len(wave) == 0 {
			if x.allTerminal() {
				break
			}
			if !x.progressed {
				x.fail("workflow stuck: unresolved dependencies")
				break
			}
			continue
		}
		x.runWave(ctx, wave)
		if x.failed {
			break
		}
	}

	return x.finish(ctx), nil
}

func (x *run) timedOut() bool {
	return x.deadline != nil && time.Now().After(*x.deadline)
}

func (x *run) fail(message string) {
	x.failed = true
	x.workflowErr = &message
}

// noteError records the first workflow error without failing the run.
func (x *run) noteError(message string) {
	if x.workflowErr == nil {
		x.workflowErr = &message
	}
}

func (x *run) allTerminal() bool {
	for i := range x.stepStates {
		if !x.stepStates[i].Status.Terminal() {
			return false
		}
	}
	return true
}

func (x *run) persist(ctx context.Context) {
	x.record.StepStates = x.stepStates
	x.runner.state.Persist(ctx, x.record)
}

func (x *run) appendLog(entry schema.LogEntry) {
	x.record.Logs = append(x.record.Logs, entry)
}

func (x *run) event(args events.EventArgs) schema.LogEntry {
	args.RequestID = x.requestID
	args.ExecutionID = x.executionID
	args.WorkflowID = x.request.Definition.ID
	return x.runner.emitter.EmitEvent(args)
}

func (x *run) log(args events.EventArgs, level schema.LogLevel, code string) schema.LogEntry {
	args.RequestID = x.requestID
	args.ExecutionID = x.executionID
	args.WorkflowID = x.request.Definition.ID
	return x.runner.emitter.EmitLog(args, level, code)
}

func (x *run) progress() *float64 {
	return f64Ptr(workflowProgress(x.stepStates))
}

func (x *run) emitProgress() {
	x.event(events.EventArgs{
		Type:     schema.EventExecutionProgress,
		Progress: x.progress(),
	})
}

func (x *run) notePaused(ctx context.Context) {
	if x.record.Status == schema.ExecutionPaused {
		return
	}
	x.record.Status = schema.ExecutionPaused
	x.persist(ctx)
	pausedMsg := "workflow execution paused"
	x.appendLog(x.log(events.EventArgs{
		Progress: x.progress(),
		Message:  &pausedMsg,
	}, schema.LevelInfo, schema.CodeExecutionPaused))
	x.persist(ctx)
}

func (x *run) noteResumed(ctx context.Context) {
	x.record.Status = schema.ExecutionRunning
	x.persist(ctx)
	resumedMsg := "workflow execution resumed"
	x.appendLog(x.log(events.EventArgs{
		Progress: x.progress(),
		Message:  &resumedMsg,
	}, schema.LevelInfo, schema.CodeExecutionResumed))
	x.persist(ctx)
}

// collectWave gathers all pending steps whose dependencies are satisfied,
// resolving dependency failures and divert skips along the way.
func (x *run) collectWave(ctx context.Context) []int {
	x.progressed = false
	var wave []int

	for i := range x.request.Definition.Steps {
		step := &x.request.Definition.Steps[i]
		if x.stepStates[i].Status != schema.StepPending {
			continue
		}

		if x.dependencyFailed(step) {
			x.progressed = true
			x.handleDependencyFailure(ctx, i, step)
			if x.failed {
				return nil
			}
			continue
		}

		if !x.ready(step) {
			continue
		}

		if _, skip := x.diverted[step.ID]; skip {
			x.progressed = true
			x.skipDiverted(ctx, i, step)
			continue
		}

		wave = append(wave, i)
	}
	return wave
}

func (x *run) dependencyFailed(step *schema.WorkflowStepDefinition) bool {
	for _, dep := range step.Dependencies {
		if state := x.record.StepState(dep); state != nil && state.Status == schema.StepFailed {
			return true
		}
	}
	return false
}

func (x *run) ready(step *schema.WorkflowStepDefinition) bool {
	for _, dep := range step.Dependencies {
		if _, ok := x.done[dep]; !ok {
			return false
		}
	}
	return true
}

func (x *run) handleDependencyFailure(ctx context.Context, index int, step *schema.WorkflowStepDefinition) {
	state := &x.stepStates[index]

	if step.Optional != nil && *step.Optional {
		completedAt := nowISO()
		reason := "optional step skipped because dependency failed"
		state.Status = schema.StepSkipped
		state.CompletedAt = &completedAt
		state.Error = &reason
		x.done[step.ID] = struct{}{}
		x.persist(ctx)

		skippedMsg := "optional step skipped"
		x.event(events.EventArgs{
			Type:     schema.EventStepCompleted,
			Progress: x.progress(),
			StepID:   &step.ID,
			Message:  &skippedMsg,
			Data:     map[string]any{"skipped": true},
		})
		x.emitProgress()
		return
	}

	depErr := fmt.Sprintf("step %s blocked by failed dependency", step.ID)
	completedAt := nowISO()
	state.Status = schema.StepFailed
	state.CompletedAt = &completedAt
	state.Error = &depErr
	state.RetryCount++
	x.event(events.EventArgs{
		Type:     schema.EventStepFailed,
		Progress: x.progress(),
		StepID:   &step.ID,
		Error:    &depErr,
	})

	x.applyFailureLadder(ctx, index, step, depErr, schema.CodeStepDependencyFallbackApplied,
		"dependency failed, fallbackOutput applied")
	if x.failed {
		x.persist(ctx)
		return
	}

	x.persist(ctx)
	x.emitProgress()
}

// applyFailureLadder resolves a failed step against its error policy:
// fallback completes it with fallbackOutput, continue marks it satisfied,
// anything else stops the workflow.
func (x *run) applyFailureLadder(ctx context.Context, index int, step *schema.WorkflowStepDefinition, errMsg, fallbackCode, fallbackMsg string) {
	state := &x.stepStates[index]

	switch resolveStepErrorBranch(step) {
	case branchFallback:
		fallback := fallbackOutput(step)
		state.Status = schema.StepCompleted
		state.Output = fallback
		state.Error = nil
		x.outputs[step.ID] = fallback
		x.done[step.ID] = struct{}{}

		msg := fallbackMsg
		x.appendLog(x.log(events.EventArgs{
			Progress: x.progress(),
			StepID:   &step.ID,
			Message:  &msg,
		}, schema.LevelWarn, fallbackCode))

		appliedMsg := "fallback output applied"
		x.event(events.EventArgs{
			Type:     schema.EventStepCompleted,
			Progress: x.progress(),
			StepID:   &step.ID,
			Message:  &appliedMsg,
			Data:     fallback,
		})

	case branchContinue:
		x.done[step.ID] = struct{}{}
		x.noteError(fmt.Sprintf("step %s failed: %s", step.ID, errMsg))

	case branchStop:
		x.fail(fmt.Sprintf("step %s failed: %s", step.ID, errMsg))
	}
}

func (x *run) skipDiverted(ctx context.Context, index int, step *schema.WorkflowStepDefinition) {
	state := &x.stepStates[index]
	completedAt := nowISO()
	reason := "skipped by conditional branch"
	state.Status = schema.StepSkipped
	state.CompletedAt = &completedAt
	state.Error = &reason
	x.done[step.ID] = struct{}{}
	x.persist(ctx)

	skippedMsg := "conditional branch not taken"
	x.event(events.EventArgs{
		Type:     schema.EventStepCompleted,
		Progress: x.progress(),
		StepID:   &step.ID,
		Message:  &skippedMsg,
		Data:     map[string]any{"skipped": true},
	})
	x.emitProgress()
}

// stepOutcome is the result of one step's retry loop.
type stepOutcome struct {
	output  map[string]any
	err     error
	retries uint32
	logs    []schema.LogEntry
}

// runWave starts every ready step, executes them concurrently through the
// pool and folds the results back into the record in definition order.
func (x *run) runWave(ctx context.Context, wave []int) {
	inputs := make([]map[string]any, len(wave))
	for pos, index := range wave {
		step := &x.request.Definition.Steps[index]
		state := &x.stepStates[index]

		startedAt := nowISO()
		state.Status = schema.StepRunning
		state.StartedAt = &startedAt
		input := steps.BuildStepInput(step, x.request.Input, x.outputs)
		state.Input = input
		inputs[pos] = input
		x.persist(ctx)
		x.event(events.EventArgs{
			Type:     schema.EventStepStarted,
			Progress: x.progress(),
			StepID:   &step.ID,
		})
	}

	outcomes := make([]stepOutcome, len(wave))
	for pos, index := range wave {
		pos, index := pos, index
		step := &x.request.Definition.Steps[index]
		input := inputs[pos]
		if err := x.pool.RunStep(ctx, step.ID, func(ctx context.Context) error {
			outcomes[pos] = x.executeWithRetries(ctx, step, input)
			return outcomes[pos].err
		}); err != nil {
			outcomes[pos] = stepOutcome{err: err}
		}
	}
	x.pool.Wait()

	for pos, index := range wave {
		x.recordOutcome(ctx, index, outcomes[pos])
	}
}

func (x *run) executeWithRetries(ctx context.Context, step *schema.WorkflowStepDefinition, input map[string]any) stepOutcome {
	var maxRetries uint32
	if step.RetryCount != nil {
		maxRetries = *step.RetryCount
	}

	outcome := stepOutcome{}
	for attempt := uint32(0); attempt <= maxRetries; attempt++ {
		output, err := x.executeOnce(ctx, step, input)
		if err == nil {
			outcome.output = output
			outcome.err = nil
			return outcome
		}
		outcome.retries++
		outcome.err = err

		if attempt < maxRetries {
			errMsg := err.Error()
			retryMsg := fmt.Sprintf("retrying step (attempt %d/%d)", attempt+1, maxRetries)
			outcome.logs = append(outcome.logs, x.log(events.EventArgs{
				Progress: x.progress(),
				StepID:   &step.ID,
				Message:  &retryMsg,
				Error:    &errMsg,
			}, schema.LevelWarn, schema.CodeStepRetrying))
		}
	}
	return outcome
}

func (x *run) executeOnce(ctx context.Context, step *schema.WorkflowStepDefinition, input map[string]any) (map[string]any, error) {
	timeout := x.runner.config.DefaultStepTimeout
	if step.Timeout != nil && *step.Timeout > 0 {
		timeout = time.Duration(*step.Timeout) * time.Millisecond
	}
	stepCtx, cancel := context.WithTimeout(logging.WithStepID(ctx, step.ID), timeout)
	defer cancel()

	output, err := x.runner.executor.ExecuteStep(stepCtx, x.executionID, step, input)
	if err != nil && stepCtx.Err() == context.DeadlineExceeded {
		return nil, schema.NewErrorf(schema.ErrCodeTimeout,
			"step %s timed out after %s", step.ID, timeout).WithStep(step.ID).WithCause(err)
	}
	return output, err
}

func (x *run) recordOutcome(ctx context.Context, index int, outcome stepOutcome) {
	step := &x.request.Definition.Steps[index]
	state := &x.stepStates[index]
	state.RetryCount += outcome.retries
	x.record.Logs = append(x.record.Logs, outcome.logs...)
	completedAt := nowISO()

	if outcome.err == nil {
		state.Status = schema.StepCompleted
		state.Output = outcome.output
		state.Error = nil
		state.CompletedAt = &completedAt
		x.outputs[step.ID] = outcome.output
		x.done[step.ID] = struct{}{}
		x.event(events.EventArgs{
			Type:     schema.EventStepCompleted,
			Progress: x.progress(),
			StepID:   &step.ID,
			Data:     outcome.output,
		})
		x.applyConditionalDivert(step, outcome.output)
	} else {
		errMsg := outcome.err.Error()
		state.Status = schema.StepFailed
		state.Error = &errMsg
		state.CompletedAt = &completedAt
		x.event(events.EventArgs{
			Type:     schema.EventStepFailed,
			Progress: x.progress(),
			StepID:   &step.ID,
			Error:    &errMsg,
		})
		x.applyFailureLadder(ctx, index, step, errMsg, schema.CodeStepFallbackApplied,
			"fallbackOutput applied after failure")
	}

	x.persist(ctx)
	x.emitProgress()
}

// applyConditionalDivert skips the other immediate dependents of a
// conditional step whose condition came back false, leaving only the step
// named by errorBranch schedulable.
func (x *run) applyConditionalDivert(step *schema.WorkflowStepDefinition, output map[string]any) {
	if step.Type != schema.StepTypeConditional || step.ErrorBranch == nil {
		return
	}
	switch *step.ErrorBranch {
	case "continue", "fallback":
		return
	}
	result, ok := output["conditionResult"]
	if !ok || expressions.Truthy(result) {
		return
	}

	for i := range x.request.Definition.Steps {
		dependent := &x.request.Definition.Steps[i]
		if dependent.ID == *step.ErrorBranch || x.stepStates[i].Status != schema.StepPending {
			continue
		}
		for _, dep := range dependent.Dependencies {
			if dep == step.ID {
				x.diverted[dependent.ID] = struct{}{}
				break
			}
		}
	}
}

// finishCancelled marks every pending step skipped and closes the record.
func (x *run) finishCancelled(ctx context.Context) *schema.WorkflowRunResult {
	completedAt := nowISO()
	for i := range x.stepStates {
		state := &x.stepStates[i]
		if state.Status == schema.StepPending || state.Status == schema.StepRunning {
			reason := "execution cancelled"
			state.Status = schema.StepSkipped
			state.CompletedAt = &completedAt
			state.Error = &reason
		}
	}
	x.record.Status = schema.ExecutionCancelled
	x.record.CompletedAt = &completedAt
	x.persist(ctx)

	cancelledMsg := "workflow execution cancelled"
	x.appendLog(x.event(events.EventArgs{
		Type:     schema.EventExecutionCancelled,
		Progress: x.progress(),
		Message:  &cancelledMsg,
	}))
	x.persist(ctx)
	x.runner.state.ClearFlags(x.executionID)

	x.runner.logger.WarnContext(ctx, "workflow execution cancelled")
	return schema.ResultFromRecord(x.record)
}

// finish assembles the final output, closes the record and emits the
// terminal event.
func (x *run) finish(ctx context.Context) *schema.WorkflowRunResult {
	finalOutput := make(map[string]any)
	for i := range x.request.Definition.Steps {
		stepID := x.request.Definition.Steps[i].ID
		output, ok := x.outputs[stepID]
		if !ok {
			continue
		}
		namespaced := make(map[string]any, len(output))
		for key, value := range output {
			namespaced[key] = value
			finalOutput[key] = value
		}
		finalOutput[stepID] = namespaced
	}

	completedAt := nowISO()
	if x.failed {
		x.record.Status = schema.ExecutionFailed
	} else {
		x.record.Status = schema.ExecutionCompleted
	}
	x.record.Error = x.workflowErr
	x.record.Output = finalOutput
	x.record.CompletedAt = &completedAt
	x.persist(ctx)
	x.runner.state.ClearFlags(x.executionID)

	switch x.record.Status {
	case schema.ExecutionCompleted:
		completedMsg := "workflow execution completed"
		x.appendLog(x.event(events.EventArgs{
			Type:     schema.EventExecutionCompleted,
			Progress: f64Ptr(100),
			Message:  &completedMsg,
			Data:     finalOutput,
		}))
		x.runner.logger.InfoContext(ctx, "workflow execution completed")
	case schema.ExecutionFailed:
		x.appendLog(x.event(events.EventArgs{
			Type:     schema.EventExecutionFailed,
			Progress: x.progress(),
			Error:    x.workflowErr,
			Data:     finalOutput,
		}))
		x.runner.logger.ErrorContext(ctx, "workflow execution failed",
			slog.String("error", strOrEmpty(x.workflowErr)))
	}
	x.persist(ctx)

	return schema.ResultFromRecord(x.record)
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func f64Ptr(v float64) *float64 { return &v }

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
