package expressions

import "context"

// Engine evaluates expressions within workflow steps.
// Three implementations: Expr (transform/merge/loop bodies), CEL (boolean
// guards), GoJQ (jq transforms).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
