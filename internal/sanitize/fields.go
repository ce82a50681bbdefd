package sanitize

import (
	"regexp"
	"strings"
)

// Field is a single fallback pattern. The first capture group holds the value.
type Field struct {
	Name    string
	Pattern *regexp.Regexp
}

// ScanFields applies every field pattern to raw independently and returns the
// trimmed captures keyed by field name. Fields that do not match are absent.
func ScanFields(raw string, fields ...Field) map[string]string {
	found := make(map[string]string, len(fields))
	for _, field := range fields {
		if field.Pattern == nil {
			continue
		}

		match := field.Pattern.FindStringSubmatch(raw)
		if len(match) < 2 {
			continue
		}

		value := strings.TrimSpace(match[1])
		if value == "" {
			continue
		}

		found[field.Name] = value
	}
	return found
}
