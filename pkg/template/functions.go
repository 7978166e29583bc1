package template

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// funcTimestamp returns the current Unix timestamp as a string
func funcTimestamp() string {
	return strconv.FormatInt(time.Now().Unix(), 10)
}

// funcISOTimestamp returns the current UTC time in RFC3339
func funcISOTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// funcUUID generates a UUID v4
func funcUUID() string {
	return uuid.NewString()
}

// funcRandomInt returns a random integer between lo and hi (inclusive). ok is
// false when lo > hi or the range is wider than rand.Int64N can draw from.
func funcRandomInt(lo, hi int64) (string, bool) {
	if lo > hi {
		return "", false
	}
	span := uint64(hi-lo) + 1
	if span == 0 || span > math.MaxInt64 {
		return "", false
	}
	return strconv.FormatInt(lo+rand.Int64N(int64(span)), 10), true
}

// funcDefault returns value if non-empty, otherwise returns fallback
func funcDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

// parseStringArg removes surrounding quotes from a string argument if present.
func parseStringArg(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// splitFuncArgs splits function arguments separated by commas,
// respecting quoted strings.
func splitFuncArgs(s string) []string {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := byte(0)

	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case inQuote:
			current.WriteByte(ch)
			if ch == quoteChar {
				inQuote = false
			}
		case ch == '"' || ch == '\'':
			inQuote = true
			quoteChar = ch
			current.WriteByte(ch)
		case ch == ',':
			args = append(args, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteByte(ch)
		}
	}
	if current.Len() > 0 {
		args = append(args, strings.TrimSpace(current.String()))
	}
	return args
}

// formatValue converts an arbitrary value to a string representation.
func formatValue(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case map[string]any, []any:
		b, err := jsonMarshal(v)
		if err != nil {
			return ""
		}
		return b
	default:
		return fmt.Sprintf("%v", v)
	}
}
