package binding

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse reads the form produced by String: `unbound`, `export "name"` or
// `import "module" "name"`. Names may also be given unquoted when they
// contain no spaces.
func Parse(s string) (Binding, error) {
	rest := strings.TrimSpace(s)
	word, rest, _ := strings.Cut(rest, " ")

	var names []string
	for rest = strings.TrimSpace(rest); rest != ""; rest = strings.TrimSpace(rest) {
		var name string
		if rest[0] == '"' {
			q, err := strconv.QuotedPrefix(rest)
			if err != nil {
				return Binding{}, fmt.Errorf("binding %q: %w", s, err)
			}
			name, _ = strconv.Unquote(q)
			rest = rest[len(q):]
		} else {
			name, rest, _ = strings.Cut(rest, " ")
		}
		names = append(names, name)
	}

	switch {
	case word == "unbound" && len(names) == 0:
		return Unbound(), nil
	case word == "export" && len(names) == 1:
		return Export(names[0]), nil
	case word == "import" && len(names) == 2:
		return Import(names[0], names[1]), nil
	}
	return Binding{}, fmt.Errorf("binding %q: want unbound, export NAME or import MODULE NAME", s)
}
