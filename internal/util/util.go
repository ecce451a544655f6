// Package util provides common string helpers used across the lapline server.
package util

import (
	"strconv"
	"strings"
)

// TrimQuotes removes leading and trailing double quotes from a string.
func TrimQuotes(s string) string {
	return strings.Trim(s, `"`)
}

// FixEscapeQuotes replaces escaped double quotes ("") with single double quotes (").
func FixEscapeQuotes(s string) string {
	return strings.ReplaceAll(s, `""`, `"`)
}

// ParseBracketStringArray parses a stringified array of quoted strings as
// feeds send them. Input format: ["str1","str2",...]
// Returns nil when the input is not a bracketed array.
func ParseBracketStringArray(s string) []string {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil
	}

	inner := s[1 : len(s)-1]
	if inner == "" {
		return []string{}
	}

	parts := strings.Split(inner, `","`)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, FixEscapeQuotes(strings.Trim(p, `"`)))
	}
	return out
}

// FormatEntityLabel builds a display string for an entity.
// Format: "#Number Name (Team)" with empty parts omitted.
func FormatEntityLabel(name, team string, carNumber int) string {
	var b strings.Builder
	if carNumber > 0 {
		b.WriteByte('#')
		b.WriteString(strconv.Itoa(carNumber))
		if name != "" {
			b.WriteByte(' ')
		}
	}
	b.WriteString(name)
	if team != "" {
		b.WriteString(" (")
		b.WriteString(team)
		b.WriteByte(')')
	}
	return b.String()
}
