package utils

import "strings"

// Truncate is a simple string truncate. maxLen counts runes so multi-byte
// text is never cut mid-character.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

// OneLine collapses newlines so a message preview fits on a single log or
// terminal line.
func OneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
