package util

import "strings"

// TrimSpaceFields trims whitespace from multiple string fields
func TrimSpaceFields(fields ...string) []string {
	result := make([]string, len(fields))
	for i, field := range fields {
		result[i] = strings.TrimSpace(field)
	}
	return result
}

// TrimAndLower trims whitespace and converts to lowercase
func TrimAndLower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// TrimEmptyCheck trims whitespace and checks if non-empty
func TrimEmptyCheck(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	return trimmed, trimmed != ""
}

// TrimWithDefault trims whitespace and returns default if empty
func TrimWithDefault(s, defaultValue string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return defaultValue
	}
	return trimmed
}

// Truncate shortens s to at most n runes, appending "..." when cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
