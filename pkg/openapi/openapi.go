// Package openapi derives mock endpoints from OpenAPI 3 documents.
package openapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/getmockd/apilab/internal/id"
	"github.com/getmockd/apilab/pkg/mock"
)

// ErrInvalidDocument is returned when a document cannot be loaded or fails
// OpenAPI validation.
var ErrInvalidDocument = errors.New("invalid OpenAPI document")

// methodOrder fixes the order endpoints are produced in for one path.
var methodOrder = []string{
	http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
	http.MethodDelete, http.MethodHead, http.MethodOptions,
}

// Load parses and validates an OpenAPI 3 document in JSON or YAML.
func Load(ctx context.Context, data []byte) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx

	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return doc, nil
}

// LoadFile reads and loads the document at path.
func LoadFile(ctx context.Context, path string) (*openapi3.T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Load(ctx, data)
}

// EndpointsFromDocument builds one mock endpoint per path and operation of
// the document in data.
func EndpointsFromDocument(data []byte) ([]*mock.Endpoint, error) {
	doc, err := Load(context.Background(), data)
	if err != nil {
		return nil, err
	}
	return Endpoints(doc), nil
}

// Endpoints converts every operation of doc to an endpoint. Paths are
// visited in sorted order. Path parameters keep their {name} form.
func Endpoints(doc *openapi3.T) []*mock.Endpoint {
	if doc == nil || doc.Paths == nil {
		return nil
	}
	paths := doc.Paths.Map()
	keys := make([]string, 0, len(paths))
	for p := range paths {
		keys = append(keys, p)
	}
	slices.Sort(keys)

	var endpoints []*mock.Endpoint
	for _, path := range keys {
		ops := paths[path].Operations()
		for _, method := range methodOrder {
			op, ok := ops[method]
			if !ok || op == nil {
				continue
			}
			endpoints = append(endpoints, operationToEndpoint(path, method, op))
		}
	}
	return endpoints
}

func operationToEndpoint(path, method string, op *openapi3.Operation) *mock.Endpoint {
	name := op.OperationID
	if name == "" {
		name = op.Summary
	}
	if name == "" {
		name = method + " " + path
	}

	status, resp := pickResponse(op.Responses)
	e := &mock.Endpoint{
		ID:          id.UUID(),
		Name:        name,
		Description: op.Description,
		Method:      method,
		Path:        path,
		StatusCode:  status,
	}

	if resp == nil {
		return e
	}
	contentType, media := pickMedia(resp.Content)
	if media == nil {
		return e
	}
	e.Headers = map[string]string{"Content-Type": contentType}
	if example, ok := mediaExample(media); ok {
		if text, isString := example.(string); isString && !strings.Contains(contentType, "json") {
			e.Body = text
		} else if body, err := json.MarshalIndent(example, "", "  "); err == nil {
			e.Body = string(body)
		}
	}
	return e
}

// pickResponse returns the lowest 2xx response. Without one it falls back to
// the lowest numeric code, then "default" answered as 200.
func pickResponse(responses *openapi3.Responses) (int, *openapi3.Response) {
	if responses == nil {
		return http.StatusOK, nil
	}

	bestCode := 0
	var best *openapi3.Response
	better := func(code int) bool {
		if bestCode == 0 {
			return true
		}
		codeOK := code >= 200 && code < 300
		bestOK := bestCode >= 200 && bestCode < 300
		if codeOK != bestOK {
			return codeOK
		}
		return code < bestCode
	}
	for key, ref := range responses.Map() {
		code, err := strconv.Atoi(key)
		if err != nil || ref == nil || ref.Value == nil {
			continue
		}
		if better(code) {
			bestCode, best = code, ref.Value
		}
	}
	if best != nil {
		return bestCode, best
	}
	if def := responses.Default(); def != nil && def.Value != nil {
		return http.StatusOK, def.Value
	}
	return http.StatusOK, nil
}

// pickMedia prefers application/json, then any JSON-like media type, then
// the first in sorted order.
func pickMedia(content openapi3.Content) (string, *openapi3.MediaType) {
	if len(content) == 0 {
		return "", nil
	}
	if m := content.Get("application/json"); m != nil {
		return "application/json", m
	}
	keys := make([]string, 0, len(content))
	for k := range content {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if strings.Contains(k, "json") {
			return k, content[k]
		}
	}
	return keys[0], content[keys[0]]
}

// mediaExample finds an example for a media type: its own example, then the
// first named example, then one generated from the schema.
func mediaExample(m *openapi3.MediaType) (any, bool) {
	if m.Example != nil {
		return m.Example, true
	}
	if len(m.Examples) > 0 {
		names := make([]string, 0, len(m.Examples))
		for n := range m.Examples {
			names = append(names, n)
		}
		slices.Sort(names)
		for _, n := range names {
			if ref := m.Examples[n]; ref != nil && ref.Value != nil && ref.Value.Value != nil {
				return ref.Value.Value, true
			}
		}
	}
	if m.Schema != nil && m.Schema.Value != nil {
		return exampleFromSchema(m.Schema.Value, 0), true
	}
	return nil, false
}
