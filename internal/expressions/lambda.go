package expressions

import "strings"

// ParseLambda splits an arrow expression like "(item, i) => item.price * i"
// into its parameter names and body. Returns ok=false when the expression
// has no arrow and should be evaluated as-is.
func ParseLambda(expression string) (params []string, body string, ok bool) {
	left, right, found := strings.Cut(expression, "=>")
	if !found {
		return nil, "", false
	}

	raw := strings.TrimSpace(left)
	raw = strings.TrimPrefix(raw, "(")
	raw = strings.TrimSuffix(raw, ")")

	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			params = append(params, p)
		}
	}

	return params, strings.TrimSpace(right), true
}
