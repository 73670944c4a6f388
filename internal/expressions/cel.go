package expressions

import (
	"context"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/ElementsAI-Dev/cognia-workflow/pkg/schema"
)

// celCostLimit bounds the runtime cost of a single condition evaluation.
const celCostLimit = 100000

// CELEngine evaluates boolean guard expressions with Google's Common
// Expression Language: conditional-step conditions and while-loop conditions.
// The environment declares each context key as a dyn variable, so conditions
// can reference step input fields directly.
// Thread-safe: compiled programs are cached and reused across goroutines.
type CELEngine struct {
	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewCELEngine creates a new CEL expression engine.
func NewCELEngine() *CELEngine {
	return &CELEngine{
		cache: make(map[string]cel.Program),
	}
}

// Name returns the engine identifier.
func (e *CELEngine) Name() string {
	return "cel"
}

// Evaluate compiles (or retrieves from cache) a CEL expression and evaluates
// it against the provided data. Each key of the data map is declared as a
// top-level dyn variable.
func (e *CELEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeExpression, "empty condition expression")
	}

	if data == nil {
		data = map[string]any{}
	}

	prg, err := e.getOrCompile(expression, data)
	if err != nil {
		return nil, err
	}

	out, _, err := prg.Eval(data)
	if err != nil {
		code := schema.ErrCodeExpression
		if strings.Contains(err.Error(), "cost limit") {
			code = schema.ErrCodeResourceLimit
		}
		return nil, schema.NewErrorf(code,
			"condition evaluation failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	return Normalize(out.Value()), nil
}

// EvaluateBool evaluates the expression and coerces the result to a boolean
// using JSON truthiness rules.
func (e *CELEngine) EvaluateBool(ctx context.Context, expression string, data map[string]any) (bool, error) {
	out, err := e.Evaluate(ctx, expression, data)
	if err != nil {
		return false, err
	}
	return Truthy(out), nil
}

// getOrCompile returns a cached compiled program or compiles and caches a new
// one. The CEL environment is built per key shape, so the cache key includes
// the sorted variable names.
func (e *CELEngine) getOrCompile(expression string, data map[string]any) (cel.Program, error) {
	key := cacheKey(expression, data)

	e.mu.RLock()
	if prg, ok := e.cache[key]; ok {
		e.mu.RUnlock()
		return prg, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double-check after acquiring write lock.
	if prg, ok := e.cache[key]; ok {
		return prg, nil
	}

	opts := make([]cel.EnvOption, 0, len(data))
	for k := range data {
		opts = append(opts, cel.Variable(k, cel.DynType))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExpression,
			"create condition environment: %s", err.Error()).WithCause(err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExpression,
			"condition compile error in %q: %s", expression, issues.Err().Error()).
			WithCause(issues.Err()).
			WithDetails(map[string]any{"expression": expression})
	}

	prg, err := env.Program(ast, cel.CostLimit(celCostLimit))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExpression,
			"condition program error for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	e.cache[key] = prg
	return prg, nil
}

var _ Engine = (*CELEngine)(nil)
