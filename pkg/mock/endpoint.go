// Package mock defines mock endpoints: stub HTTP routes with a canned response
// that the mock server answers on behalf of a real API.
package mock

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/getmockd/apilab/internal/matching"
)

// MaxDelayMs caps the artificial response delay.
const MaxDelayMs = 60_000

// Endpoint is a configurable stub route.
type Endpoint struct {
	ID          string `json:"id" yaml:"id,omitempty"`
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Method is the HTTP method to answer. Empty or "ANY" answers every method.
	Method string `json:"method,omitempty" yaml:"method,omitempty"`
	// Path is a route pattern, e.g. /users/:id or /files/*.
	Path string `json:"path" yaml:"path"`

	// MatchHeaders and MatchQuery narrow the match further. Values may use
	// leading or trailing "*" wildcards.
	MatchHeaders map[string]string `json:"matchHeaders,omitempty" yaml:"matchHeaders,omitempty"`
	MatchQuery   map[string]string `json:"matchQuery,omitempty" yaml:"matchQuery,omitempty"`

	StatusCode int               `json:"statusCode" yaml:"statusCode,omitempty"`
	Headers    map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body       string            `json:"body,omitempty" yaml:"body,omitempty"`
	DelayMs    int               `json:"delayMs,omitempty" yaml:"delayMs,omitempty"`

	Enabled  *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Priority int   `json:"priority,omitempty" yaml:"priority,omitempty"`

	CreatedAt time.Time `json:"createdAt" yaml:"-"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"-"`
}

// ValidationError represents a validation failure with context.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

var validMethods = map[string]bool{
	"":        true,
	"ANY":     true,
	"GET":     true,
	"POST":    true,
	"PUT":     true,
	"DELETE":  true,
	"PATCH":   true,
	"HEAD":    true,
	"OPTIONS": true,
}

// headerNameRegex validates HTTP header names (RFC 7230).
var headerNameRegex = regexp.MustCompile(`^[A-Za-z0-9!#$%&'*+\-.^_\x60|~]+$`)

// IsEnabled reports whether the endpoint is served. Endpoints are enabled
// unless explicitly disabled.
func (e *Endpoint) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// EffectiveStatus returns the status code to answer with, defaulting to 200.
func (e *Endpoint) EffectiveStatus() int {
	if e.StatusCode == 0 {
		return http.StatusOK
	}
	return e.StatusCode
}

// Delay returns the configured response delay.
func (e *Endpoint) Delay() time.Duration {
	return time.Duration(e.DelayMs) * time.Millisecond
}

// Normalize upper-cases the method and fills in the default status.
func (e *Endpoint) Normalize() {
	e.Method = strings.ToUpper(strings.TrimSpace(e.Method))
	if e.StatusCode == 0 {
		e.StatusCode = http.StatusOK
	}
}

// Validate checks that the endpoint can be served.
func (e *Endpoint) Validate() error {
	if !strings.HasPrefix(e.Path, "/") {
		return &ValidationError{Field: "path", Message: "path must start with /"}
	}
	if _, err := matching.CompileRoute(e.Path); err != nil {
		return &ValidationError{Field: "path", Message: err.Error()}
	}
	if !validMethods[strings.ToUpper(e.Method)] {
		return &ValidationError{Field: "method", Message: fmt.Sprintf("unsupported method %q", e.Method)}
	}
	if status := e.EffectiveStatus(); status < 100 || status > 599 {
		return &ValidationError{Field: "statusCode", Message: "statusCode must be between 100 and 599"}
	}
	if e.DelayMs < 0 || e.DelayMs > MaxDelayMs {
		return &ValidationError{Field: "delayMs", Message: fmt.Sprintf("delayMs must be between 0 and %d", MaxDelayMs)}
	}
	for name := range e.Headers {
		if !headerNameRegex.MatchString(name) {
			return &ValidationError{Field: "headers", Message: fmt.Sprintf("invalid header name %q", name)}
		}
	}
	for name := range e.MatchHeaders {
		if !headerNameRegex.MatchString(name) {
			return &ValidationError{Field: "matchHeaders", Message: fmt.Sprintf("invalid header name %q", name)}
		}
	}
	return nil
}

// UnmarshalYAML accepts a mapping or sequence as body and stores it as JSON,
// so files can write body: {id: 1} instead of body: '{"id": 1}'.
func (e *Endpoint) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("endpoint: expected a mapping, got node kind %d", value.Kind)
	}

	// Decode everything but body through an alias, then handle body by hand.
	rest := *value
	rest.Content = nil
	var bodyNode *yaml.Node
	for i := 0; i+1 < len(value.Content); i += 2 {
		if value.Content[i].Value == "body" {
			bodyNode = value.Content[i+1]
			continue
		}
		rest.Content = append(rest.Content, value.Content[i], value.Content[i+1])
	}

	type endpointAlias Endpoint
	var alias endpointAlias
	if err := rest.Decode(&alias); err != nil {
		return err
	}
	*e = Endpoint(alias)

	if bodyNode == nil {
		return nil
	}
	if bodyNode.Kind == yaml.ScalarNode {
		e.Body = bodyNode.Value
		return nil
	}
	var body any
	if err := bodyNode.Decode(&body); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode body as JSON: %w", err)
	}
	e.Body = string(data)
	return nil
}

// UnmarshalJSON accepts a JSON object or array as body as well as a string.
func (e *Endpoint) UnmarshalJSON(data []byte) error {
	type endpointAlias Endpoint
	var raw struct {
		*endpointAlias
		Body json.RawMessage `json:"body"`
	}
	raw.endpointAlias = (*endpointAlias)(e)
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if len(raw.Body) == 0 || string(raw.Body) == "null" {
		e.Body = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(raw.Body, &s); err == nil {
		e.Body = s
		return nil
	}
	e.Body = string(raw.Body)
	return nil
}

// Collection is the file form of a set of endpoints.
type Collection struct {
	Name      string      `json:"name,omitempty" yaml:"name,omitempty"`
	Endpoints []*Endpoint `json:"endpoints" yaml:"endpoints"`
}
