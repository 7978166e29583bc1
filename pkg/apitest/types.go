package apitest

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Suite is a named group of tests.
type Suite struct {
	ID          string    `json:"id" yaml:"id,omitempty"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt" yaml:"-"`
	UpdatedAt   time.Time `json:"updatedAt" yaml:"-"`
}

// Validate checks the suite's own fields.
func (s *Suite) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fieldError("name", "name is required")
	}
	if len(s.Name) > 200 {
		return fieldError("name", "name must be at most 200 characters")
	}
	return nil
}

// Test is a single HTTP request with the expectations its response must meet.
type Test struct {
	ID         string            `json:"id" yaml:"id,omitempty"`
	SuiteID    string            `json:"suiteId" yaml:"-"`
	Name       string            `json:"name" yaml:"name"`
	Method     string            `json:"method" yaml:"method,omitempty"`
	URL        string            `json:"url" yaml:"url"`
	Headers    map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Query      map[string]string `json:"query,omitempty" yaml:"query,omitempty"`
	Body       string            `json:"body,omitempty" yaml:"body,omitempty"`
	TimeoutMs  int               `json:"timeoutMs,omitempty" yaml:"timeoutMs,omitempty"`
	Assertions []Assertion       `json:"assertions" yaml:"assertions,omitempty"`
	Enabled    *bool             `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Order      int               `json:"order" yaml:"order,omitempty"`
	CreatedAt  time.Time         `json:"createdAt" yaml:"-"`
	UpdatedAt  time.Time         `json:"updatedAt" yaml:"-"`
}

var validMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodHead:    true,
	http.MethodOptions: true,
}

// IsEnabled reports whether the test takes part in runs. Tests are enabled
// unless explicitly disabled.
func (t *Test) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

// EffectiveMethod returns the upper-cased method, defaulting to GET.
func (t *Test) EffectiveMethod() string {
	if t.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(t.Method)
}

// Timeout returns the per-test timeout, or fallback when none is set.
func (t *Test) Timeout(fallback time.Duration) time.Duration {
	if t.TimeoutMs > 0 {
		return time.Duration(t.TimeoutMs) * time.Millisecond
	}
	return fallback
}

// Validate checks the test and every assertion it declares.
func (t *Test) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fieldError("name", "name is required")
	}
	if strings.TrimSpace(t.URL) == "" {
		return fieldError("url", "url is required")
	}
	if !validMethods[t.EffectiveMethod()] {
		return fieldError("method", "unsupported method %q", t.Method)
	}
	if t.TimeoutMs < 0 {
		return fieldError("timeoutMs", "timeoutMs must not be negative")
	}
	for name := range t.Headers {
		if strings.TrimSpace(name) == "" {
			return fieldError("headers", "header names must not be empty")
		}
	}
	for i := range t.Assertions {
		if err := t.Assertions[i].Validate(); err != nil {
			if ve, ok := err.(*ValidationError); ok {
				return fieldError("assertions["+strconv.Itoa(i)+"]."+ve.Field, "%s", ve.Message)
			}
			return err
		}
	}
	return nil
}

// Environment is a named set of variables interpolated into tests as {{name}}.
type Environment struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Variables map[string]string `json:"variables"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// Validate checks the environment.
func (e *Environment) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return fieldError("name", "name is required")
	}
	for k := range e.Variables {
		if !validVariableName(k) {
			return fieldError("variables", "invalid variable name %q", k)
		}
	}
	return nil
}

// validVariableName accepts letters, digits, '_', '-' and '.'; names starting
// with '$' are reserved for built-ins.
func validVariableName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_', r == '-', r == '.':
		default:
			return false
		}
	}
	return true
}
