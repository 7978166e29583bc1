package template

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// templateRegex matches {{expression}} patterns with optional whitespace.
var templateRegex = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

var (
	// $randomInt(min, max)
	randomIntPattern = regexp.MustCompile(`^\$randomInt\(\s*(-?\d+)\s*,\s*(-?\d+)\s*\)$`)
	// upper(value) or lower(value) or default(value, fallback)
	funcCallPattern = regexp.MustCompile(`^(\w+)\((.+)\)$`)
)

// Process replaces every {{expression}} in s. Unresolvable bare names are
// kept verbatim.
func Process(s string, ctx *Context) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	if ctx == nil {
		ctx = &Context{}
	}
	return templateRegex.ReplaceAllStringFunc(s, func(match string) string {
		inner := templateRegex.FindStringSubmatch(match)
		if len(inner) < 2 {
			return match
		}
		if v, ok := evaluate(inner[1], ctx); ok {
			return v
		}
		return match
	})
}

// ProcessMap applies Process to every value of m and returns a new map.
func ProcessMap(m map[string]string, ctx *Context) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = Process(v, ctx)
	}
	return out
}

// evaluate resolves one expression. ok is false for names with no value and
// for invalid builtin calls, which Process leaves in place.
func evaluate(expr string, ctx *Context) (string, bool) {
	expr = strings.TrimSpace(expr)

	switch expr {
	case "$uuid":
		return funcUUID(), true
	case "$timestamp":
		return funcTimestamp(), true
	case "$isoTimestamp":
		return funcISOTimestamp(), true
	case "$randomInt":
		return funcRandomInt(0, 1000)
	}

	if m := randomIntPattern.FindStringSubmatch(expr); m != nil {
		lo, errLo := strconv.ParseInt(m[1], 10, 64)
		hi, errHi := strconv.ParseInt(m[2], 10, 64)
		if errLo != nil || errHi != nil {
			return "", false
		}
		return funcRandomInt(lo, hi)
	}

	if m := funcCallPattern.FindStringSubmatch(expr); m != nil {
		switch m[1] {
		case "upper":
			return strings.ToUpper(resolveValue(m[2], ctx)), true
		case "lower":
			return strings.ToLower(resolveValue(m[2], ctx)), true
		case "default":
			args := splitFuncArgs(m[2])
			if len(args) < 2 {
				return "", true
			}
			return funcDefault(resolveValue(args[0], ctx), parseStringArg(args[1])), true
		}
	}

	if v, ok := ctx.Vars[expr]; ok {
		return v, true
	}

	// Request references only resolve while serving a request; elsewhere
	// they are unknown names.
	if !ctx.hasRequest() {
		return "", false
	}
	switch {
	case strings.HasPrefix(expr, "params."):
		return ctx.Params[expr[len("params."):]], true
	case strings.HasPrefix(expr, "query."):
		return ctx.Query.Get(expr[len("query."):]), true
	case strings.HasPrefix(expr, "request."):
		return evaluateRequest(expr[len("request."):], ctx), true
	}
	return "", false
}

// evaluateRequest resolves request.* fields.
func evaluateRequest(field string, ctx *Context) string {
	switch {
	case field == "method":
		return ctx.Method
	case field == "path":
		return ctx.Path
	case field == "rawBody":
		return string(ctx.Body)
	case strings.HasPrefix(field, "header."):
		return ctx.Headers.Get(field[len("header."):])
	case strings.HasPrefix(field, "body."):
		return resolveBodyField(field[len("body."):], ctx)
	}
	return ""
}

// resolveBodyField walks a dotted path through the JSON request body.
func resolveBodyField(path string, ctx *Context) string {
	current := ctx.jsonBody()
	if current == nil {
		return ""
	}
	parts := strings.Split(path, ".")
	for i, part := range parts {
		val, ok := current[part]
		if !ok {
			return ""
		}
		if i == len(parts)-1 {
			return formatValue(val)
		}
		nested, ok := val.(map[string]any)
		if !ok {
			return ""
		}
		current = nested
	}
	return ""
}

// resolveValue resolves a function argument. Quoted strings are literals;
// anything else is evaluated as an expression.
func resolveValue(ref string, ctx *Context) string {
	ref = strings.TrimSpace(ref)
	if len(ref) >= 2 && (ref[0] == '"' || ref[0] == '\'') {
		return parseStringArg(ref)
	}
	v, _ := evaluate(ref, ctx)
	return v
}

func jsonMarshal(v any) (string, error) {
	b, err := json.Marshal(v)
	return string(b), err
}
