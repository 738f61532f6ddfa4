package fixture

import (
	"fmt"
	"strings"
)

// RowSeparator separates rows in the output of an exec fixture.
const RowSeparator = "--"

var execShapes = map[string]bool{
	"void":         true,
	"void:fields":  true,
	"row":          true,
	"rows":         true,
	"param":        true,
	"param:fields": true,
}

// ParseRows parses KEY=VALUE lines into rows. A "--" line ends a row.
// Lines without '=' are ignored, as are empty rows.
func ParseRows(stdout string) []map[string]any {
	var rows []map[string]any
	row := map[string]any{}
	flush := func() {
		if len(row) > 0 {
			rows = append(rows, row)
		}
		row = map[string]any{}
	}

	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == RowSeparator {
			flush()
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		row[key] = strings.TrimSpace(value)
	}
	flush()
	return rows
}

// ParseMethods parses the Name=shape lines printed by "exe methods Type".
func ParseMethods(stdout string) (map[string]string, error) {
	decls := make(map[string]string)
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, shape, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("method line %q: missing '='", line)
		}
		name, shape = strings.TrimSpace(name), strings.TrimSpace(shape)
		if !execShapes[shape] {
			return nil, fmt.Errorf("method %s: unknown shape %q", name, shape)
		}
		decls[name] = shape
	}
	return decls, nil
}
