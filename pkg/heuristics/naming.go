// Package heuristics holds the string heuristics used by schema inference:
// path and name handling, English inflection, and keyword dictionaries.
// Each is small and swappable so inference logic never inlines string checks.
package heuristics

import (
	"strings"
	"unicode"
)

// ArraySuffix marks one level of array-of-objects in a field path.
const ArraySuffix = "[]"

// LastSegment returns the final dot-separated key of a path, without array markers.
// "projects[].buildings[]" -> "buildings", "a.b.c" -> "c", "[]" -> "".
func LastSegment(path string) string {
	path = strings.TrimRight(path, "[]")
	if idx := strings.LastIndex(path, "."); idx >= 0 {
		path = path[idx+1:]
	}
	return strings.TrimRight(path, "[]")
}

// Segments splits a path into its dot-separated keys with array markers removed.
func Segments(path string) []string {
	parts := strings.Split(path, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimRight(p, "[]")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ArrayDepth counts the "[]" markers in a path.
func ArrayDepth(path string) int {
	return strings.Count(path, ArraySuffix)
}

// ToSnakeCase converts camelCase, PascalCase, kebab-case and spaced names to snake_case.
// Runs of non-alphanumeric characters collapse into one underscore.
func ToSnakeCase(name string) string {
	runes := []rune(name)
	var b strings.Builder
	lastUnderscore := true

	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			prevLower := i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]))
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			prevUpper := i > 0 && unicode.IsUpper(runes[i-1])
			if !lastUnderscore && (prevLower || (prevUpper && nextLower)) {
				b.WriteRune('_')
			}
			b.WriteRune(unicode.ToLower(r))
			lastUnderscore = false
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}

	return strings.TrimRight(b.String(), "_")
}

// Tokenize splits a field name into lowercase word tokens.
func Tokenize(name string) []string {
	snake := ToSnakeCase(name)
	if snake == "" {
		return nil
	}
	return strings.Split(snake, "_")
}

// IsIDFieldName reports whether a field name looks like an identifier:
// "id", "*_id" or "*Id".
func IsIDFieldName(name string) bool {
	return name == "id" || strings.HasSuffix(name, "_id") || hasCamelIDSuffix(name)
}

// IsForeignKeyName reports whether a field name looks like a reference to
// another entity: "*_id" or "*Id" with a non-empty stem.
func IsForeignKeyName(name string) bool {
	return ForeignKeyTarget(name) != ""
}

// ForeignKeyTarget strips the id suffix from a reference field name.
// "developer_id" -> "developer", "ownerId" -> "owner", "id" -> "".
func ForeignKeyTarget(name string) string {
	switch {
	case strings.HasSuffix(name, "_id"):
		return strings.TrimSuffix(name, "_id")
	case hasCamelIDSuffix(name):
		return strings.TrimSuffix(name, "Id")
	}
	return ""
}

func hasCamelIDSuffix(name string) bool {
	if len(name) <= 2 || !strings.HasSuffix(name, "Id") {
		return false
	}
	prev := rune(name[len(name)-3])
	return unicode.IsLower(prev) || unicode.IsDigit(prev)
}

// IsNumericSegment reports whether a key is made of digits only. Such keys
// are dynamic (ids used as object keys) and must not become column names.
func IsNumericSegment(segment string) bool {
	if segment == "" {
		return false
	}
	for _, r := range segment {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
