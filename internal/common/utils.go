package common

import "strings"

// SplitTrim splits s on sep, trims whitespace around every part and drops
// empty parts. "a, b,,c " yields [a b c].
func SplitTrim(s, sep string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ErrorMessage extracts a user-facing message from a failure value. Errors
// contribute their own text; anything else, or an empty message, collapses to
// a generic one.
func ErrorMessage(v any) string {
	const unknown = "An unknown error occurred"
	err, ok := v.(error)
	if !ok || err == nil {
		return unknown
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return unknown
}
