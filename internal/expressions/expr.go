package expressions

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/ElementsAI-Dev/cognia-workflow/pkg/schema"
)

// maxExprNodes bounds the AST size of a compiled expression. Oversized
// expressions are rejected with a RESOURCE_LIMIT error before they run.
const maxExprNodes = 10000

// ExprEngine evaluates step expressions with expr-lang/expr. The environment
// is strict: referencing a variable that is not present in the evaluation
// context is a compile error, not a nil value. Expressions have no access to
// the host process, filesystem, or network.
// Thread-safe: compiled *vm.Program objects are cached and reused across goroutines.
type ExprEngine struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewExprEngine creates a new Expr expression engine.
func NewExprEngine() *ExprEngine {
	return &ExprEngine{
		cache: make(map[string]*vm.Program),
	}
}

// Name returns the engine identifier.
func (e *ExprEngine) Name() string {
	return "expr"
}

// Evaluate compiles (or retrieves from cache) an expression and evaluates it
// against the provided data. The data map is injected as the expression
// environment, making all keys available as top-level variables. The result
// is normalized to JSON-representable types.
func (e *ExprEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, schema.NewError(schema.ErrCodeExpression, "empty expression")
	}

	env := data
	if env == nil {
		env = map[string]any{}
	}

	prg, err := e.getOrCompile(expression, env)
	if err != nil {
		return nil, err
	}

	out, err := vm.Run(prg, env)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExpression,
			"expression evaluation failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	return Normalize(out), nil
}

// getOrCompile returns a cached compiled program or compiles and caches a new
// one. Compilation depends on the environment's key set, so the cache key
// includes the sorted variable names.
func (e *ExprEngine) getOrCompile(expression string, env map[string]any) (*vm.Program, error) {
	key := cacheKey(expression, env)

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

	prg, err := expr.Compile(expression,
		expr.Env(env),
		expr.MaxNodes(maxExprNodes),
	)
	if err != nil {
		code := schema.ErrCodeExpression
		if strings.Contains(err.Error(), "max nodes") {
			code = schema.ErrCodeResourceLimit
		}
		return nil, schema.NewErrorf(code,
			"expression compile error in %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	e.cache[key] = prg
	return prg, nil
}

// cacheKey builds a cache key from the expression and the env's key shape.
func cacheKey(expression string, env map[string]any) string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.Grow(len(expression) + len(keys)*8 + 1)
	b.WriteString(expression)
	b.WriteByte(0)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte(0)
	}
	return b.String()
}

var _ Engine = (*ExprEngine)(nil)
