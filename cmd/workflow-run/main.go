// Command workflow-run executes a workflow definition from a JSON file and
// prints the result. It is the local composition root for the engine; the
// library surface is the engine, runtime and store packages.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/ElementsAI-Dev/cognia-workflow/internal/engine"
	"github.com/ElementsAI-Dev/cognia-workflow/internal/events"
	"github.com/ElementsAI-Dev/cognia-workflow/internal/logging"
	"github.com/ElementsAI-Dev/cognia-workflow/internal/runtime"
	"github.com/ElementsAI-Dev/cognia-workflow/internal/steps"
	"github.com/ElementsAI-Dev/cognia-workflow/internal/store"
	"github.com/ElementsAI-Dev/cognia-workflow/pkg/schema"
)

func main() {
	cfg := loadConfig()

	definitionPath := flag.String("definition", "", "path to a workflow definition JSON file")
	inputPath := flag.String("input", "", "path to a JSON file with the workflow input (optional)")
	inputJSON := flag.String("input-json", "", "inline JSON workflow input (overrides -input)")
	showID := flag.String("show", "", "print a stored execution record by ID and exit")
	list := flag.Bool("list", false, "list recent executions and exit")
	workflowID := flag.String("workflow", "", "filter -list by workflow ID")
	limit := flag.Int("limit", 20, "max records for -list")
	memOnly := flag.Bool("mem", false, "run without the durable store")
	showEvents := flag.Bool("events", false, "print progress events to stderr")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "path to the libSQL database file")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug|info|warn|error")
	flag.IntVar(&cfg.PoolSize, "pool-size", cfg.PoolSize, "max steps executed concurrently (0 = default)")
	flag.Parse()

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ok, err := run(cfg, logger, *definitionPath, *inputPath, *inputJSON,
		*showID, *list, *workflowID, *limit, *memOnly, *showEvents)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	if !ok {
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger, definitionPath, inputPath, inputJSON,
	showID string, list bool, workflowID string, limit int, memOnly, showEvents bool) (bool, error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	state, closeState, err := buildState(ctx, cfg, logger, memOnly)
	if err != nil {
		return false, err
	}
	defer closeState()

	switch {
	case showID != "":
		record, err := state.Get(ctx, showID)
		if err != nil {
			return false, err
		}
		return true, printJSON(record)

	case list:
		records, err := state.List(ctx, workflowID, limit)
		if err != nil {
			return false, err
		}
		return true, printJSON(records)
	}

	if definitionPath == "" {
		return false, fmt.Errorf("missing -definition (or use -show/-list)")
	}

	request, err := buildRequest(definitionPath, inputPath, inputJSON)
	if err != nil {
		return false, err
	}

	var listeners []events.Listener
	if showEvents {
		listeners = append(listeners, events.ListenerFunc(printEvent))
	}

	// Track the execution ID so Ctrl-C cancels the run instead of killing it.
	var executionID atomic.Value
	listeners = append(listeners, events.ListenerFunc(func(payload schema.EventPayload) {
		if payload.Type == schema.EventExecutionStarted {
			executionID.Store(payload.ExecutionID)
		}
	}))
	go func() {
		<-ctx.Done()
		if id, ok := executionID.Load().(string); ok {
			state.MarkCancelled(id)
		}
	}()

	runner, err := engine.NewRunner(state, steps.NewExecutor(), events.NewEmitter(listeners...),
		logger, engine.Config{PoolSize: cfg.PoolSize})
	if err != nil {
		return false, err
	}

	// Run on a background context: cancellation is delivered through the
	// cancel flag so the record ends up cancelled, not torn down mid-write.
	result, err := runner.Run(context.Background(), request)
	if err != nil {
		return false, err
	}
	if err := printJSON(result); err != nil {
		return false, err
	}
	return result.Status == schema.ExecutionCompleted, nil
}

func buildState(ctx context.Context, cfg Config, logger *slog.Logger, memOnly bool) (*runtime.State, func(), error) {
	runtimeCfg := runtime.Config{CacheLimit: cfg.CacheLimit, RetentionLimit: cfg.Retention}
	if memOnly || cfg.DBPath == "" {
		return runtime.NewState(runtimeCfg, logger), func() {}, nil
	}

	if err := os.MkdirAll(cogniaDir(), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create data dir: %w", err)
	}
	dbPath := cfg.DBPath
	if !strings.HasPrefix(dbPath, "file:") {
		dbPath = "file:" + dbPath
	}
	durable, err := store.NewLibSQLStore(dbPath)
	if err != nil {
		return nil, nil, err
	}
	if err := durable.Migrate(ctx); err != nil {
		durable.Close()
		return nil, nil, err
	}

	state, err := runtime.NewStateWithStore(ctx, durable, runtimeCfg, logger)
	if err != nil {
		durable.Close()
		return nil, nil, err
	}
	return state, func() { durable.Close() }, nil
}

func buildRequest(definitionPath, inputPath, inputJSON string) (*schema.WorkflowRunRequest, error) {
	data, err := os.ReadFile(definitionPath)
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}

	// The file may be a bare definition or a full run request.
	var request schema.WorkflowRunRequest
	if err := json.Unmarshal(data, &request); err != nil {
		return nil, fmt.Errorf("parse definition: %w", err)
	}
	if request.Definition.ID == "" {
		var definition schema.WorkflowDefinition
		if err := json.Unmarshal(data, &definition); err != nil {
			return nil, fmt.Errorf("parse definition: %w", err)
		}
		request = schema.WorkflowRunRequest{Definition: definition}
	}

	var inputData []byte
	switch {
	case inputJSON != "":
		inputData = []byte(inputJSON)
	case inputPath != "":
		inputData, err = os.ReadFile(inputPath)
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
	}
	if len(inputData) > 0 {
		if err := json.Unmarshal(inputData, &request.Input); err != nil {
			return nil, fmt.Errorf("parse input: %w", err)
		}
	}
	return &request, nil
}

func printEvent(payload schema.EventPayload) {
	line := fmt.Sprintf("[%s] %s", payload.Timestamp, payload.Type)
	if payload.StepID != nil {
		line += " step=" + *payload.StepID
	}
	if payload.Progress != nil {
		line += fmt.Sprintf(" progress=%.0f%%", *payload.Progress)
	}
	if payload.Message != nil {
		line += " " + *payload.Message
	}
	if payload.Error != nil {
		line += " error=" + *payload.Error
	}
	fmt.Fprintln(os.Stderr, line)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	inner := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}
