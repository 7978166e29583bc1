// Package assertion evaluates apitest assertions against a captured HTTP
// response.
package assertion

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/getmockd/apilab/internal/matching"
	"github.com/getmockd/apilab/pkg/apitest"
)

// Response is the part of an HTTP response assertions can see.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration

	parsed    any
	parseErr  error
	parseOnce sync.Once
}

// JSON returns the body decoded as JSON, decoding it at most once.
func (r *Response) JSON() (any, error) {
	r.parseOnce.Do(func() {
		r.parsed, r.parseErr = matching.ParseJSON(r.Body)
	})
	return r.parsed, r.parseErr
}

// Evaluator evaluates assertions. It caches compiled expressions and regular
// expressions, and is safe for concurrent use.
type Evaluator struct {
	mu       sync.RWMutex
	programs map[string]*vm.Program
	patterns map[string]*regexp.Regexp
}

// NewEvaluator creates an Evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{
		programs: make(map[string]*vm.Program),
		patterns: make(map[string]*regexp.Regexp),
	}
}

// EvaluateAll evaluates every assertion and reports whether all passed.
func (e *Evaluator) EvaluateAll(assertions []apitest.Assertion, resp *Response) ([]apitest.AssertionResult, bool) {
	results := make([]apitest.AssertionResult, 0, len(assertions))
	allPassed := true
	for _, a := range assertions {
		res := e.Evaluate(a, resp)
		if !res.Passed {
			allPassed = false
		}
		results = append(results, res)
	}
	return results, allPassed
}

// Evaluate checks one assertion against resp.
func (e *Evaluator) Evaluate(a apitest.Assertion, resp *Response) apitest.AssertionResult {
	res := apitest.AssertionResult{Assertion: a}
	op := a.EffectiveOperator()

	switch a.Type {
	case apitest.AssertStatus:
		res.Actual = resp.StatusCode
		e.compare(&res, op, resp.StatusCode, a.Expected, "status code")

	case apitest.AssertResponseTime:
		ms := resp.Duration.Milliseconds()
		res.Actual = ms
		e.compare(&res, op, ms, a.Expected, "response time (ms)")

	case apitest.AssertHeader:
		values, present := resp.Headers[http.CanonicalHeaderKey(a.Property)]
		if !present {
			// Non-canonical keys set directly on the map.
			for k, v := range resp.Headers {
				if strings.EqualFold(k, a.Property) {
					values, present = v, true
					break
				}
			}
		}
		if e.checkPresence(&res, op, present, "header "+a.Property) || !present {
			return res
		}
		actual := strings.Join(values, ", ")
		res.Actual = actual
		e.compare(&res, op, actual, a.Expected, "header "+a.Property)

	case apitest.AssertBodyContains:
		needle := stringify(a.Expected)
		found := strings.Contains(string(resp.Body), needle)
		res.Passed = found == (op == apitest.OpContains)
		if !res.Passed {
			if op == apitest.OpContains {
				res.Message = fmt.Sprintf("response body does not contain %q", needle)
			} else {
				res.Message = fmt.Sprintf("response body contains %q", needle)
			}
		}

	case apitest.AssertJSONPath:
		e.evaluateJSONPath(&res, op, a, resp)

	case apitest.AssertExpression:
		e.evaluateExpression(&res, a, resp)

	default:
		res.Message = fmt.Sprintf("unknown assertion type %q", a.Type)
	}
	return res
}

func (e *Evaluator) evaluateJSONPath(res *apitest.AssertionResult, op apitest.Operator, a apitest.Assertion, resp *Response) {
	data, err := resp.JSON()
	if err != nil {
		res.Message = "response body is not valid JSON"
		return
	}
	values, err := matching.LookupJSONPath(a.Property, data)
	if err != nil {
		res.Message = err.Error()
		return
	}
	if e.checkPresence(res, op, len(values) > 0, a.Property) {
		if len(values) > 0 {
			res.Actual = values[0]
		}
		return
	}
	if len(values) == 0 {
		res.Message = fmt.Sprintf("%s matched nothing", a.Property)
		return
	}

	res.Actual = values[0]
	if op == apitest.OpEquals && len(values) > 1 {
		// Wildcard paths pass if any selected value equals the expectation.
		for _, v := range values {
			if matching.ValuesEqual(v, a.Expected) {
				res.Actual = v
				res.Passed = true
				return
			}
		}
		res.Actual = values
		res.Message = fmt.Sprintf("no value at %s equals %s", a.Property, stringify(a.Expected))
		return
	}
	e.compare(res, op, values[0], a.Expected, a.Property)
}

// expressionEnv types the variables visible to expression assertions. Names
// declared here take precedence over expr builtins such as duration().
var expressionEnv = map[string]any{
	"status":   0,
	"duration": int64(0),
	"headers":  map[string]string{},
	"body":     "",
	"json":     nil,
}

func (e *Evaluator) evaluateExpression(res *apitest.AssertionResult, a apitest.Assertion, resp *Response) {
	env := map[string]any{
		"status":   resp.StatusCode,
		"duration": resp.Duration.Milliseconds(),
		"headers":  flattenHeaders(resp.Headers),
		"body":     string(resp.Body),
		"json":     nil,
	}
	if data, err := resp.JSON(); err == nil {
		env["json"] = data
	}

	program, err := e.program(a.Property)
	if err != nil {
		res.Message = fmt.Sprintf("compile expression: %v", err)
		return
	}
	out, err := expr.Run(program, env)
	if err != nil {
		res.Message = fmt.Sprintf("evaluate expression: %v", err)
		return
	}
	res.Actual = out
	b, ok := out.(bool)
	if !ok {
		res.Message = fmt.Sprintf("expression returned %T, want bool", out)
		return
	}
	res.Passed = b
	if !b {
		res.Message = fmt.Sprintf("expression %q is false", a.Property)
	}
}

// checkPresence handles exists/notExists and reports whether it did.
func (e *Evaluator) checkPresence(res *apitest.AssertionResult, op apitest.Operator, present bool, what string) bool {
	switch op {
	case apitest.OpExists:
		res.Passed = present
		if !present {
			res.Message = what + " does not exist"
		}
		return true
	case apitest.OpNotExists:
		res.Passed = !present
		if present {
			res.Message = what + " exists"
		}
		return true
	}
	if !present {
		res.Message = what + " does not exist"
	}
	return false
}

// compare applies a value operator and fills in Passed and Message.
func (e *Evaluator) compare(res *apitest.AssertionResult, op apitest.Operator, actual, expected any, what string) {
	var ok bool
	var err error

	switch op {
	case apitest.OpEquals:
		ok = equal(actual, expected)
	case apitest.OpNotEquals:
		ok = !equal(actual, expected)
	case apitest.OpContains:
		ok = contains(actual, expected)
	case apitest.OpNotContains:
		ok = !contains(actual, expected)
	case apitest.OpGreaterThan, apitest.OpLessThan:
		ok, err = order(op, actual, expected)
	case apitest.OpMatches:
		ok, err = e.matches(actual, expected)
	default:
		err = fmt.Errorf("operator %q is not supported here", op)
	}

	res.Passed = ok && err == nil
	switch {
	case err != nil:
		res.Message = err.Error()
	case !res.Passed:
		res.Message = fmt.Sprintf("expected %s %s %s, got %s", what, opPhrase(op), stringify(expected), stringify(actual))
	}
}

func (e *Evaluator) matches(actual, expected any) (bool, error) {
	pattern, ok := expected.(string)
	if !ok {
		return false, fmt.Errorf("matches requires a string pattern")
	}
	re, err := e.pattern(pattern)
	if err != nil {
		return false, fmt.Errorf("invalid pattern: %w", err)
	}
	return re.MatchString(stringify(actual)), nil
}

func (e *Evaluator) program(source string) (*vm.Program, error) {
	e.mu.RLock()
	p, ok := e.programs[source]
	e.mu.RUnlock()
	if ok {
		return p, nil
	}

	p, err := expr.Compile(source, expr.Env(expressionEnv), expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.programs[source] = p
	e.mu.Unlock()
	return p, nil
}

func (e *Evaluator) pattern(source string) (*regexp.Regexp, error) {
	e.mu.RLock()
	re, ok := e.patterns[source]
	e.mu.RUnlock()
	if ok {
		return re, nil
	}

	re, err := regexp.Compile(source)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.patterns[source] = re
	e.mu.Unlock()
	return re, nil
}

func equal(actual, expected any) bool {
	if matching.ValuesEqual(actual, expected) {
		return true
	}
	// Scalars of different kinds compare by their string form, e.g. a header
	// "42" against an expected number 42.
	if isScalar(actual) && isScalar(expected) {
		return stringify(actual) == stringify(expected)
	}
	return false
}

func contains(actual, expected any) bool {
	switch a := actual.(type) {
	case string:
		return strings.Contains(a, stringify(expected))
	case []any:
		for _, v := range a {
			if matching.ValuesEqual(v, expected) {
				return true
			}
		}
		return false
	case map[string]any:
		key, ok := expected.(string)
		if !ok {
			return false
		}
		_, found := a[key]
		return found
	default:
		return strings.Contains(stringify(actual), stringify(expected))
	}
}

func order(op apitest.Operator, actual, expected any) (bool, error) {
	a, ok := numeric(actual)
	if !ok {
		return false, fmt.Errorf("actual value %s is not a number", stringify(actual))
	}
	x, ok := numeric(expected)
	if !ok {
		return false, fmt.Errorf("expected value %s is not a number", stringify(expected))
	}
	if op == apitest.OpGreaterThan {
		return a > x, nil
	}
	return a < x, nil
}

func numeric(v any) (float64, bool) {
	if f, ok := matching.ToFloat64(v); ok {
		return f, true
	}
	if s, ok := v.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return f, err == nil
	}
	return 0, false
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool:
		return true
	}
	_, ok := matching.ToFloat64(v)
	return ok
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func opPhrase(op apitest.Operator) string {
	switch op {
	case apitest.OpEquals:
		return "to equal"
	case apitest.OpNotEquals:
		return "to not equal"
	case apitest.OpContains:
		return "to contain"
	case apitest.OpNotContains:
		return "to not contain"
	case apitest.OpGreaterThan:
		return "to be greater than"
	case apitest.OpLessThan:
		return "to be less than"
	case apitest.OpMatches:
		return "to match"
	default:
		return string(op)
	}
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = strings.Join(v, ", ")
	}
	return out
}
