package matching

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/ohler55/ojg/jp"
)

// ParseJSON decodes a JSON document into generic Go values. Numbers decode as
// float64, matching encoding/json defaults.
func ParseJSON(body []byte) (any, error) {
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// LookupJSONPath evaluates a JSONPath expression against decoded JSON and
// returns every value it selects. Paths without a leading "$" are treated as
// relative to the root, so "user.name" and "$.user.name" are equivalent.
func LookupJSONPath(path string, data any) ([]any, error) {
	expr, err := jp.ParseString(normalizeJSONPath(path))
	if err != nil {
		return nil, fmt.Errorf("invalid JSONPath %q: %w", path, err)
	}
	return expr.Get(data), nil
}

func normalizeJSONPath(path string) string {
	path = strings.TrimSpace(path)
	switch {
	case path == "":
		return "$"
	case strings.HasPrefix(path, "$"):
		return path
	case strings.HasPrefix(path, "["), strings.HasPrefix(path, "."):
		return "$" + path
	default:
		return "$." + path
	}
}

// ValuesEqual compares two decoded values loosely: numbers compare by value
// whatever their Go type, numeric strings compare equal to the matching
// number, and everything else falls back to deep equality.
func ValuesEqual(actual, expected any) bool {
	if actual == nil || expected == nil {
		return actual == nil && expected == nil
	}
	if reflect.DeepEqual(actual, expected) {
		return true
	}

	an, aok := ToFloat64(actual)
	en, eok := ToFloat64(expected)
	if aok && eok {
		return an == en
	}

	// Numeric string vs number, e.g. an expected "200" from a YAML file.
	if as, ok := actual.(string); ok && eok {
		if f, err := strconv.ParseFloat(as, 64); err == nil {
			return f == en
		}
	}
	if es, ok := expected.(string); ok && aok {
		if f, err := strconv.ParseFloat(es, 64); err == nil {
			return f == an
		}
	}

	// Booleans written as strings.
	if ab, ok := actual.(bool); ok {
		if es, ok := expected.(string); ok {
			return strconv.FormatBool(ab) == strings.ToLower(es)
		}
	}
	return false
}

// ToFloat64 converts any Go numeric type to float64.
func ToFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case int16:
		return float64(n), true
	case int8:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint8:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
