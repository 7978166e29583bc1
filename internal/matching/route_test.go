package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileRoute_Match(t *testing.T) {
	tests := []struct {
		name       string
		pattern    string
		path       string
		wantMatch  bool
		wantParams map[string]string
	}{
		{name: "literal", pattern: "/api/users", path: "/api/users", wantMatch: true, wantParams: map[string]string{}},
		{name: "literal trailing slash", pattern: "/api/users", path: "/api/users/", wantMatch: true, wantParams: map[string]string{}},
		{name: "literal mismatch", pattern: "/api/users", path: "/api/user", wantMatch: false},
		{name: "colon param", pattern: "/users/:id", path: "/users/42", wantMatch: true, wantParams: map[string]string{"id": "42"}},
		{name: "brace param", pattern: "/users/{id}/posts/{postId}", path: "/users/7/posts/9", wantMatch: true, wantParams: map[string]string{"id": "7", "postId": "9"}},
		{name: "param does not span segments", pattern: "/users/:id", path: "/users/1/2", wantMatch: false},
		{name: "wildcard", pattern: "/files/*", path: "/files/a/b.txt", wantMatch: true, wantParams: map[string]string{"*": "a/b.txt"}},
		{name: "wildcard empty rest", pattern: "/files/*", path: "/files", wantMatch: true, wantParams: map[string]string{"*": ""}},
		{name: "wildcard prefix only", pattern: "/files/*", path: "/filesystem", wantMatch: false},
		{name: "wildcard inside segment", pattern: "/static/*.js", path: "/static/app.js", wantMatch: true, wantParams: map[string]string{"*": "app"}},
		{name: "wildcard inside segment mismatch", pattern: "/static/*.js", path: "/static/app.css", wantMatch: false},
		{name: "wildcard suffix", pattern: "/files*", path: "/files123", wantMatch: true, wantParams: map[string]string{"*": "123"}},
		{name: "wildcard middle segment", pattern: "/api/*/health", path: "/api/v2/health", wantMatch: true, wantParams: map[string]string{"*": "v2"}},
		{name: "wildcard middle spans slashes", pattern: "/api/*/health", path: "/api/a/b/health", wantMatch: true, wantParams: map[string]string{"*": "a/b"}},
		{name: "several wildcards", pattern: "/*/users/:id/*", path: "/v1/users/7/posts/3", wantMatch: true, wantParams: map[string]string{"*": "v1", "id": "7", "*2": "posts/3"}},
		{name: "regex metacharacters are literal", pattern: "/v1.0/items", path: "/v1x0/items", wantMatch: false},
		{name: "root", pattern: "/", path: "/", wantMatch: true, wantParams: map[string]string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := CompileRoute(tt.pattern)
			require.NoError(t, err)

			params, ok := r.Match(tt.path)
			assert.Equal(t, tt.wantMatch, ok)
			if tt.wantMatch {
				assert.Equal(t, tt.wantParams, params)
			}
		})
	}
}

func TestCompileRoute_Invalid(t *testing.T) {
	for _, pattern := range []string{"", "users", "/a/:", "/a/:id/:id", "/a//b"} {
		t.Run(pattern, func(t *testing.T) {
			_, err := CompileRoute(pattern)
			assert.ErrorIs(t, err, ErrInvalidRoute)
		})
	}
}

func TestRoute_ScoreOrdering(t *testing.T) {
	exact := MustCompileRoute("/users/me")
	param := MustCompileRoute("/users/:id")
	wild := MustCompileRoute("/users/*")

	assert.Greater(t, exact.Score(), param.Score())
	assert.Greater(t, param.Score(), wild.Score())
	assert.Equal(t, []string{"id"}, param.Params())

	embedded := MustCompileRoute("/static/*.js")
	assert.Greater(t, param.Score(), embedded.Score())
	assert.Equal(t, []string{"*", "*2"}, MustCompileRoute("/*/x/*").Params())
}

func TestMatchValuePattern(t *testing.T) {
	tests := []struct {
		pattern, actual string
		want            bool
	}{
		{"application/json", "application/json", true},
		{"application/*", "application/json", true},
		{"*json", "application/json", true},
		{"*cation*", "application/json", true},
		{"*", "", false},
		{"*", "x", true},
		{"text/*", "application/json", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MatchValuePattern(tt.pattern, tt.actual), "%q vs %q", tt.pattern, tt.actual)
	}
}

func TestMatchMethod(t *testing.T) {
	assert.True(t, MatchMethod("", "DELETE"))
	assert.True(t, MatchMethod("any", "PATCH"))
	assert.True(t, MatchMethod("get", "GET"))
	assert.False(t, MatchMethod("POST", "GET"))
}
