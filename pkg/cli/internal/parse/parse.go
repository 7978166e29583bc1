// Package parse provides string parsing utilities for CLI commands.
package parse

import "strings"

// KeyValue parses a "key:value" or "key=value" string.
// If delimiters are provided, uses the first one found; otherwise defaults to ':'.
// Returns the key, value, and a boolean indicating success.
func KeyValue(s string, delimiters ...rune) (key, value string, ok bool) {
	if len(delimiters) == 0 {
		delimiters = []rune{':'}
	}

	for i, c := range s {
		for _, d := range delimiters {
			if c == d {
				return s[:i], s[i+1:], true
			}
		}
	}
	return "", "", false
}

// Vars parses "name=value" pairs into a map. Later pairs win. Names are
// trimmed; values are kept as given.
func Vars(pairs []string) (map[string]string, error) {
	result := make(map[string]string, len(pairs))
	for _, p := range pairs {
		key, value, ok := KeyValue(p, '=')
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, &InvalidPairError{Pair: p}
		}
		result[key] = value
	}
	return result, nil
}

// InvalidPairError reports a pair without a name or "=".
type InvalidPairError struct {
	Pair string
}

func (e *InvalidPairError) Error() string {
	return "invalid variable " + `"` + e.Pair + `"` + " (want name=value)"
}
