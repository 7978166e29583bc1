package matching

import (
	"net/http"
	"net/url"
	"strings"
)

// MatchValuePattern matches a value against a pattern that may start and/or
// end with "*": "abc*" is a prefix match, "*abc" a suffix match, "*abc*" a
// substring match, and anything else must be equal. A lone "*" requires a
// non-empty value.
func MatchValuePattern(pattern, actual string) bool {
	if !strings.Contains(pattern, "*") {
		return actual == pattern
	}
	if pattern == "*" {
		return actual != ""
	}

	lead := strings.HasPrefix(pattern, "*")
	trail := strings.HasSuffix(pattern, "*")
	core := strings.Trim(pattern, "*")

	switch {
	case lead && trail:
		return strings.Contains(actual, core)
	case trail:
		return strings.HasPrefix(actual, core)
	case lead:
		return strings.HasSuffix(actual, core)
	default:
		return actual == pattern
	}
}

// MatchHeaders reports whether every expected header matches its pattern and
// returns the score those matches contribute. Header names are case-insensitive.
func MatchHeaders(expected map[string]string, headers http.Header) (int, bool) {
	score := 0
	for name, pattern := range expected {
		if !MatchValuePattern(pattern, headers.Get(name)) {
			return 0, false
		}
		score += ScoreHeader
	}
	return score, true
}

// MatchQuery reports whether every expected query parameter matches its
// pattern and returns the score those matches contribute.
func MatchQuery(expected map[string]string, query url.Values) (int, bool) {
	score := 0
	for name, pattern := range expected {
		if !MatchValuePattern(pattern, query.Get(name)) {
			return 0, false
		}
		score += ScoreQueryParam
	}
	return score, true
}

// MatchMethod reports whether the request method satisfies the expected one.
// An empty expectation or "ANY" accepts every method.
func MatchMethod(expected, actual string) bool {
	if expected == "" || strings.EqualFold(expected, "ANY") {
		return true
	}
	return strings.EqualFold(expected, actual)
}
