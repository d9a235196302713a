package domain

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ErrUnresolvedVariable is returned when a template references a variable the identity does not provide.
var ErrUnresolvedVariable = errors.New("unresolved template variable")

var templateVarPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// RenderTemplate substitutes {{name}} placeholders from vars.
// Every placeholder must resolve; the unknown names are reported together.
func RenderTemplate(tmpl string, vars map[string]string) (string, error) {
	var missing []string
	seen := make(map[string]bool)

	out := templateVarPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := templateVarPattern.FindStringSubmatch(match)[1]
		if val, ok := vars[name]; ok {
			return val
		}
		if !seen[name] {
			seen[name] = true
			missing = append(missing, name)
		}
		return match
	})

	if len(missing) > 0 {
		sort.Strings(missing)
		return "", fmt.Errorf("%w: %s", ErrUnresolvedVariable, strings.Join(missing, ", "))
	}
	return out, nil
}
