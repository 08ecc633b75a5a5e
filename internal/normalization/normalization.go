package normalization

import (
	"strings"
)

// ParseInputString trims surrounding whitespace and lowercases the input.
// Every user supplied identifier (emails in particular) passes through
// here before it touches the database.
func ParseInputString(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// TrimInputString trims without lowercasing, for values where case is
// significant (codes, tokens, device identifiers).
func TrimInputString(s string) string {
	return strings.TrimSpace(s)
}
