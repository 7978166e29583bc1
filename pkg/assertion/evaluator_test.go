package assertion

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/apilab/pkg/apitest"
)

func newResponse() *Response {
	h := http.Header{}
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("X-Request-Id", "abc-123")
	h.Set("X-Count", "42")
	return &Response{
		StatusCode: 201,
		Headers:    h,
		Body:       []byte(`{"id":7,"name":"ada","tags":["admin","dev"],"profile":{"active":true,"score":9.5},"items":[{"id":1},{"id":2}]}`),
		Duration:   120 * time.Millisecond,
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name      string
		assertion apitest.Assertion
		want      bool
	}{
		// status
		{"status equals", apitest.Assertion{Type: apitest.AssertStatus, Expected: 201}, true},
		{"status equals float", apitest.Assertion{Type: apitest.AssertStatus, Expected: float64(201)}, true},
		{"status equals string", apitest.Assertion{Type: apitest.AssertStatus, Expected: "201"}, true},
		{"status mismatch", apitest.Assertion{Type: apitest.AssertStatus, Expected: 200}, false},
		{"status less than", apitest.Assertion{Type: apitest.AssertStatus, Operator: apitest.OpLessThan, Expected: 300}, true},
		{"status not equals", apitest.Assertion{Type: apitest.AssertStatus, Operator: apitest.OpNotEquals, Expected: 500}, true},

		// response time
		{"fast enough", apitest.Assertion{Type: apitest.AssertResponseTime, Expected: 500}, true},
		{"too slow", apitest.Assertion{Type: apitest.AssertResponseTime, Expected: 100}, false},
		{"slower than", apitest.Assertion{Type: apitest.AssertResponseTime, Operator: apitest.OpGreaterThan, Expected: 50}, true},

		// headers
		{"header equals", apitest.Assertion{Type: apitest.AssertHeader, Property: "x-request-id", Expected: "abc-123"}, true},
		{"header contains", apitest.Assertion{Type: apitest.AssertHeader, Property: "Content-Type", Operator: apitest.OpContains, Expected: "json"}, true},
		{"header number", apitest.Assertion{Type: apitest.AssertHeader, Property: "X-Count", Expected: 42}, true},
		{"header exists", apitest.Assertion{Type: apitest.AssertHeader, Property: "X-Request-Id", Operator: apitest.OpExists}, true},
		{"header missing", apitest.Assertion{Type: apitest.AssertHeader, Property: "X-Nope", Expected: "x"}, false},
		{"header not exists", apitest.Assertion{Type: apitest.AssertHeader, Property: "X-Nope", Operator: apitest.OpNotExists}, true},
		{"header matches", apitest.Assertion{Type: apitest.AssertHeader, Property: "X-Request-Id", Operator: apitest.OpMatches, Expected: `^[a-z]+-\d+$`}, true},

		// body
		{"body contains", apitest.Assertion{Type: apitest.AssertBodyContains, Expected: `"name":"ada"`}, true},
		{"body does not contain", apitest.Assertion{Type: apitest.AssertBodyContains, Expected: "grace"}, false},
		{"body not contains", apitest.Assertion{Type: apitest.AssertBodyContains, Operator: apitest.OpNotContains, Expected: "grace"}, true},

		// JSONPath
		{"json equals", apitest.Assertion{Type: apitest.AssertJSONPath, Property: "$.name", Expected: "ada"}, true},
		{"json number", apitest.Assertion{Type: apitest.AssertJSONPath, Property: "$.id", Expected: 7}, true},
		{"json nested bool", apitest.Assertion{Type: apitest.AssertJSONPath, Property: "profile.active", Expected: true}, true},
		{"json greater", apitest.Assertion{Type: apitest.AssertJSONPath, Property: "$.profile.score", Operator: apitest.OpGreaterThan, Expected: 9}, true},
		{"json array contains", apitest.Assertion{Type: apitest.AssertJSONPath, Property: "$.tags", Operator: apitest.OpContains, Expected: "dev"}, true},
		{"json wildcard any equals", apitest.Assertion{Type: apitest.AssertJSONPath, Property: "$.items[*].id", Expected: 2}, true},
		{"json wildcard none equals", apitest.Assertion{Type: apitest.AssertJSONPath, Property: "$.items[*].id", Expected: 3}, false},
		{"json exists", apitest.Assertion{Type: apitest.AssertJSONPath, Property: "$.profile", Operator: apitest.OpExists}, true},
		{"json not exists", apitest.Assertion{Type: apitest.AssertJSONPath, Property: "$.deleted", Operator: apitest.OpNotExists}, true},
		{"json missing", apitest.Assertion{Type: apitest.AssertJSONPath, Property: "$.deleted", Expected: false}, false},
		{"json object equals", apitest.Assertion{Type: apitest.AssertJSONPath, Property: "$.items[0]", Expected: map[string]any{"id": float64(1)}}, true},

		// expression
		{"expression true", apitest.Assertion{Type: apitest.AssertExpression, Property: `status == 201 && json.name == "ada"`}, true},
		{"expression headers", apitest.Assertion{Type: apitest.AssertExpression, Property: `headers["X-Count"] == "42" && duration < 1000`}, true},
		{"expression duration is elapsed millis", apitest.Assertion{Type: apitest.AssertExpression, Property: `duration == 120`}, true},
		{"expression body", apitest.Assertion{Type: apitest.AssertExpression, Property: `body contains "ada" && status < 300`}, true},
		{"expression false", apitest.Assertion{Type: apitest.AssertExpression, Property: `len(json.tags) > 5`}, false},
		{"expression invalid", apitest.Assertion{Type: apitest.AssertExpression, Property: `status ==`}, false},
	}

	ev := NewEvaluator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ev.Evaluate(tt.assertion, newResponse())
			assert.Equal(t, tt.want, got.Passed, "message: %s", got.Message)
			if !got.Passed {
				assert.NotEmpty(t, got.Message)
			}
		})
	}
}

func TestEvaluate_NonJSONBody(t *testing.T) {
	resp := &Response{StatusCode: 200, Body: []byte("<html>")}
	got := NewEvaluator().Evaluate(apitest.Assertion{Type: apitest.AssertJSONPath, Property: "$.a", Expected: 1}, resp)
	assert.False(t, got.Passed)
	assert.Equal(t, "response body is not valid JSON", got.Message)
}

func TestEvaluate_FailureMessage(t *testing.T) {
	got := NewEvaluator().Evaluate(apitest.Assertion{Type: apitest.AssertStatus, Expected: 200}, newResponse())
	require.False(t, got.Passed)
	assert.Equal(t, "expected status code to equal 200, got 201", got.Message)
	assert.Equal(t, 201, got.Actual)
}

func TestEvaluateAll(t *testing.T) {
	results, ok := NewEvaluator().EvaluateAll([]apitest.Assertion{
		{Type: apitest.AssertStatus, Expected: 201},
		{Type: apitest.AssertBodyContains, Expected: "missing"},
	}, newResponse())
	assert.False(t, ok)
	require.Len(t, results, 2)
	assert.True(t, results[0].Passed)
	assert.False(t, results[1].Passed)
}

func TestEvaluator_ConcurrentUse(t *testing.T) {
	ev := NewEvaluator()
	a := apitest.Assertion{Type: apitest.AssertExpression, Property: "status > 200"}
	done := make(chan bool)
	for i := 0; i < 8; i++ {
		go func() {
			done <- ev.Evaluate(a, newResponse()).Passed
		}()
	}
	for i := 0; i < 8; i++ {
		assert.True(t, <-done)
	}
}
