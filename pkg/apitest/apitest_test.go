package apitest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssertion_Validate(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		wantField string
	}{
		{name: "status default operator", assertion: Assertion{Type: AssertStatus, Expected: 200}},
		{name: "unknown type", assertion: Assertion{Type: "latency"}, wantField: "type"},
		{name: "operator not allowed", assertion: Assertion{Type: AssertBodyContains, Operator: OpGreaterThan, Expected: "x"}, wantField: "operator"},
		{name: "jsonPath needs property", assertion: Assertion{Type: AssertJSONPath, Expected: 1}, wantField: "property"},
		{name: "exists needs no expected", assertion: Assertion{Type: AssertHeader, Property: "X-Id", Operator: OpExists}},
		{name: "missing expected", assertion: Assertion{Type: AssertStatus}, wantField: "expected"},
		{name: "bad regex", assertion: Assertion{Type: AssertHeader, Property: "X", Operator: OpMatches, Expected: "("}, wantField: "expected"},
		{name: "expression", assertion: Assertion{Type: AssertExpression, Property: "status == 200"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.assertion.Validate()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.wantField, ve.Field)
		})
	}
}

func TestAssertion_EffectiveOperator(t *testing.T) {
	assert.Equal(t, OpLessThan, (&Assertion{Type: AssertResponseTime}).EffectiveOperator())
	assert.Equal(t, OpContains, (&Assertion{Type: AssertBodyContains}).EffectiveOperator())
	assert.Equal(t, OpNotEquals, (&Assertion{Type: AssertStatus, Operator: OpNotEquals}).EffectiveOperator())
}

func TestTest_Validate(t *testing.T) {
	valid := Test{Name: "ping", URL: "http://x/ping"}
	require.NoError(t, valid.Validate())
	assert.Equal(t, "GET", valid.EffectiveMethod())
	assert.True(t, valid.IsEnabled())
	assert.Equal(t, 5*time.Second, valid.Timeout(5*time.Second))

	bad := valid
	bad.Method = "BREW"
	assert.Error(t, bad.Validate())

	nested := valid
	nested.Assertions = []Assertion{{Type: AssertStatus, Expected: 200}, {Type: AssertJSONPath, Expected: 1}}
	var ve *ValidationError
	require.ErrorAs(t, nested.Validate(), &ve)
	assert.Equal(t, "assertions[1].property", ve.Field)
}

func TestEnvironment_Validate(t *testing.T) {
	env := Environment{Name: "dev", Variables: map[string]string{"baseUrl": "x", "api.key": "y"}}
	assert.NoError(t, env.Validate())

	env.Variables["bad name"] = "z"
	assert.Error(t, env.Validate())
}

func TestRun_Tally(t *testing.T) {
	tests := []struct {
		name    string
		results []Result
		want    RunStatus
	}{
		{"all passed", []Result{{Passed: true}, {Passed: true}}, RunPassed},
		{"one failed", []Result{{Passed: true}, {Passed: false}}, RunFailed},
		{"one errored", []Result{{Passed: true}, {Error: "dial tcp"}}, RunFailed},
		{"all errored", []Result{{Error: "a"}, {Error: "b"}}, RunError},
		{"empty", nil, RunPassed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Run{Results: tt.results}
			r.Tally()
			assert.Equal(t, tt.want, r.Status)
			assert.Equal(t, len(tt.results), r.Total)
			assert.Equal(t, r.Total, r.Passed+r.Failed+r.Errored)
		})
	}
}

func TestRun_Finish(t *testing.T) {
	start := time.Now()
	r := Run{StartedAt: start, Results: []Result{{Passed: true}}}
	r.Finish(start.Add(1500 * time.Millisecond))
	assert.Equal(t, int64(1500), r.DurationMs)
	assert.Equal(t, RunPassed, r.Status)
}

func TestParseSuite_YAML(t *testing.T) {
	data := []byte(`
name: users
variables:
  baseUrl: http://localhost:9999
tests:
  - name: list
    url: "{{baseUrl}}/users"
    assertions:
      - type: status
        expected: 200
      - type: jsonPath
        property: $.meta
        expected:
          page: 1
  - name: create
    method: post
    url: "{{baseUrl}}/users"
    body: '{"name":"ada"}'
`)
	f, err := ParseSuite(data, ".yaml")
	require.NoError(t, err)
	assert.Equal(t, "users", f.Name)
	assert.Equal(t, "http://localhost:9999", f.Variables["baseUrl"])
	require.Len(t, f.Tests, 2)
	assert.Equal(t, float64(200), f.Tests[0].Assertions[0].Expected)
	assert.Equal(t, map[string]any{"page": float64(1)}, f.Tests[0].Assertions[1].Expected)
	assert.Equal(t, 1, f.Tests[1].Order)
	assert.Equal(t, "POST", f.Tests[1].EffectiveMethod())
}

func TestParseSuite_Errors(t *testing.T) {
	_, err := ParseSuite([]byte("name: [unterminated"), ".yml")
	assert.ErrorIs(t, err, ErrInvalidYAML)

	_, err = ParseSuite([]byte("{"), ".json")
	assert.ErrorIs(t, err, ErrInvalidJSON)

	_, err = ParseSuite([]byte(`{"name":"x","tests":[]}`), ".json")
	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestLoadSuiteFile(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadSuiteFile(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, ErrFileNotFound)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("  \n"), 0o644))
	_, err = LoadSuiteFile(empty)
	assert.ErrorIs(t, err, ErrEmptyFile)

	good := filepath.Join(dir, "good.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"name":"s","tests":[{"name":"t","url":"http://x"}]}`), 0o644))
	f, err := LoadSuiteFile(good)
	require.NoError(t, err)
	assert.Equal(t, good, f.Path)
}

func TestExpandSuitePatterns(t *testing.T) {
	dir := t.TempDir()
	for _, p := range []string{"a.yaml", "nested/b.yaml", "nested/deeper/c.yml", "notes.txt"} {
		full := filepath.Join(dir, p)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte("x"), 0o644))
	}

	files, err := ExpandSuitePatterns([]string{
		filepath.Join(dir, "**", "*.yaml"),
		filepath.Join(dir, "**", "*.yml"),
		filepath.Join(dir, "a.yaml"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.yaml"),
		filepath.Join(dir, "nested", "b.yaml"),
		filepath.Join(dir, "nested", "deeper", "c.yml"),
	}, files)

	_, err = ExpandSuitePatterns([]string{filepath.Join(dir, "*.json")})
	assert.ErrorIs(t, err, ErrNoFiles)
}
