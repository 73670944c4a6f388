package expressions

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RenderTemplate substitutes {{key}} placeholders with top-level values from
// the input map. String values are inserted raw; anything else is inserted as
// its JSON encoding. Unknown placeholders are left untouched.
func RenderTemplate(template string, input map[string]any) string {
	if template == "" || len(input) == 0 {
		return template
	}

	rendered := template
	for key, value := range input {
		placeholder := "{{" + key + "}}"
		if !strings.Contains(rendered, placeholder) {
			continue
		}
		rendered = strings.ReplaceAll(rendered, placeholder, stringify(value))
	}
	return rendered
}

// stringify converts a value to its template representation.
func stringify(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(b)
}
