// Package normalize strips addresses down to a bare dotted-quad form so the
// allocation store's mixed historical key formats compare equal.
package normalize

import "strings"

// Bare trims whitespace and any trailing "/prefix" suffix from an address
// string. It does not validate that the result parses as an IP; callers that
// need a valid address must parse the result themselves. Empty input yields
// empty output.
func Bare(input string) string {
	s := strings.TrimSpace(input)
	if idx := strings.IndexByte(s, '/'); idx >= 0 {
		s = strings.TrimSpace(s[:idx])
	}
	return s
}
