package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/apilab/pkg/apitest"
	"github.com/getmockd/apilab/pkg/auth"
	"github.com/getmockd/apilab/pkg/cms"
	"github.com/getmockd/apilab/pkg/events"
	"github.com/getmockd/apilab/pkg/logging"
	"github.com/getmockd/apilab/pkg/metrics"
	"github.com/getmockd/apilab/pkg/mock"
	"github.com/getmockd/apilab/pkg/mockserver"
	"github.com/getmockd/apilab/pkg/ratelimit"
	"github.com/getmockd/apilab/pkg/requestlog"
	"github.com/getmockd/apilab/pkg/store"
	"github.com/getmockd/apilab/pkg/store/file"
)

type testEnv struct {
	srv     *httptest.Server
	store   store.Store
	mocks   *mockserver.Server
	hub     *events.Hub
	metrics *metrics.Set
	admin   string
	editor  string
	viewer  string
	users   map[string]*auth.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st := file.New(store.Config{Backend: store.BackendFile, DataDir: t.TempDir()})
	require.NoError(t, st.Open(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	issuer, err := auth.NewTokenIssuer(strings.Repeat("k", 32), time.Hour)
	require.NoError(t, err)
	svc := auth.NewService(st.Users(), issuer, nil)

	env := &testEnv{store: st, users: map[string]*auth.User{}}
	for _, role := range []auth.Role{auth.RoleAdmin, auth.RoleEditor, auth.RoleViewer} {
		u, err := svc.CreateUser(context.Background(), string(role)+"@example.com", string(role), "password123", role)
		require.NoError(t, err)
		token, _, err := issuer.Issue(u)
		require.NoError(t, err)
		env.users[string(role)] = u
		switch role {
		case auth.RoleAdmin:
			env.admin = token
		case auth.RoleEditor:
			env.editor = token
		case auth.RoleViewer:
			env.viewer = token
		}
	}

	repo, err := cms.NewRepository(t.TempDir())
	require.NoError(t, err)

	env.mocks = mockserver.New(st.Endpoints())
	env.hub = events.NewHub(0)
	t.Cleanup(env.hub.Close)
	env.metrics = metrics.NewSet()

	api := New(st, svc,
		WithContent(repo),
		WithMockServer(env.mocks),
		WithHub(env.hub),
		WithMetrics(env.metrics),
		WithCORSOrigins([]string{"http://localhost:5173"}),
		WithVersion("test"),
	)
	env.srv = httptest.NewServer(api.Handler())
	t.Cleanup(env.srv.Close)
	return env
}

// do sends a request with an optional JSON body and returns the status and
// raw response body.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, r)
	require.NoError(t, err)
	if r != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func decodeInto[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

type errorBody struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Details map[string]string `json:"details"`
}

func TestHealth_NoAuth(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, status)
	h := decodeInto[healthResponse](t, body)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, "test", h.Version)
}

func TestAuth_RequiredOnProtectedRoutes(t *testing.T) {
	env := newTestEnv(t)

	status, _ := env.do(t, http.MethodGet, "/suites", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = env.do(t, http.MethodGet, "/suites", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = env.do(t, http.MethodGet, "/suites", env.viewer, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	t.Run("valid credentials", func(t *testing.T) {
		body, _ := json.Marshal(loginRequest{Email: "Editor@Example.com", Password: "password123"})
		resp, err := env.srv.Client().Post(env.srv.URL+"/auth/login", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var res auth.LoginResult
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
		assert.NotEmpty(t, res.Token)
		assert.Equal(t, "editor@example.com", res.User.Email)
		assert.Empty(t, res.User.PasswordHash)

		var cookie *http.Cookie
		for _, c := range resp.Cookies() {
			if c.Name == auth.CookieName {
				cookie = c
			}
		}
		require.NotNil(t, cookie)
		assert.True(t, cookie.HttpOnly)

		// The cookie authenticates on its own.
		req, _ := http.NewRequest(http.MethodGet, env.srv.URL+"/auth/me", nil)
		req.AddCookie(cookie)
		meResp, err := env.srv.Client().Do(req)
		require.NoError(t, err)
		defer meResp.Body.Close()
		require.Equal(t, http.StatusOK, meResp.StatusCode)
		var me auth.User
		require.NoError(t, json.NewDecoder(meResp.Body).Decode(&me))
		assert.Equal(t, env.users["editor"].ID, me.ID)
	})

	t.Run("wrong password", func(t *testing.T) {
		status, body := env.do(t, http.MethodPost, "/auth/login", "",
			loginRequest{Email: "editor@example.com", Password: "wrong-password"})
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "invalid_credentials", decodeInto[errorBody](t, body).Error)
	})

	t.Run("unknown email", func(t *testing.T) {
		status, _ := env.do(t, http.MethodPost, "/auth/login", "",
			loginRequest{Email: "nobody@example.com", Password: "password123"})
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("missing fields", func(t *testing.T) {
		status, body := env.do(t, http.MethodPost, "/auth/login", "", loginRequest{})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "validation_error", decodeInto[errorBody](t, body).Error)
	})
}

func TestSuites_CRUD(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodPost, "/suites", env.editor, apitest.Suite{Name: "Smoke", Description: "basic checks"})
	require.Equal(t, http.StatusCreated, status, string(body))
	suite := decodeInto[apitest.Suite](t, body)
	require.NotEmpty(t, suite.ID)
	assert.False(t, suite.CreatedAt.IsZero())

	status, body = env.do(t, http.MethodPost, "/suites/"+suite.ID+"/tests", env.editor, apitest.Test{
		Name:   "ping",
		Method: "get",
		URL:    "http://example.invalid/ping",
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	created := decodeInto[apitest.Test](t, body)
	assert.Equal(t, suite.ID, created.SuiteID)
	assert.Equal(t, http.MethodGet, created.Method)

	status, body = env.do(t, http.MethodGet, "/suites/"+suite.ID, env.viewer, nil)
	require.Equal(t, http.StatusOK, status)
	var detail struct {
		ID    string          `json:"id"`
		Name  string          `json:"name"`
		Tests []*apitest.Test `json:"tests"`
	}
	require.NoError(t, json.Unmarshal(body, &detail))
	assert.Equal(t, "Smoke", detail.Name)
	require.Len(t, detail.Tests, 1)
	assert.Equal(t, "ping", detail.Tests[0].Name)

	status, body = env.do(t, http.MethodPut, "/suites/"+suite.ID, env.editor, apitest.Suite{Name: "Renamed"})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, "Renamed", decodeInto[apitest.Suite](t, body).Name)

	status, body = env.do(t, http.MethodPut, "/tests/"+created.ID, env.editor, apitest.Test{
		Name: "ping v2", URL: "http://example.invalid/v2", SuiteID: "somewhere-else",
	})
	require.Equal(t, http.StatusOK, status, string(body))
	updated := decodeInto[apitest.Test](t, body)
	assert.Equal(t, suite.ID, updated.SuiteID)
	assert.Equal(t, "ping v2", updated.Name)

	status, _ = env.do(t, http.MethodDelete, "/suites/"+suite.ID, env.editor, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, body = env.do(t, http.MethodGet, "/suites/"+suite.ID, env.viewer, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", decodeInto[errorBody](t, body).Error)

	status, _ = env.do(t, http.MethodGet, "/tests/"+created.ID, env.viewer, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestSuites_ViewerCannotWrite(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodPost, "/suites", env.viewer, apitest.Suite{Name: "Nope"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden", decodeInto[errorBody](t, body).Error)
}

func TestErrors_Mapping(t *testing.T) {
	env := newTestEnv(t)

	t.Run("malformed json", func(t *testing.T) {
		status, body := env.do(t, http.MethodPost, "/suites", env.editor, `{"name":`)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "invalid_json", decodeInto[errorBody](t, body).Error)
	})

	t.Run("validation", func(t *testing.T) {
		status, body := env.do(t, http.MethodPost, "/suites", env.editor, apitest.Suite{Name: "  "})
		assert.Equal(t, http.StatusBadRequest, status)
		eb := decodeInto[errorBody](t, body)
		assert.Equal(t, "validation_error", eb.Error)
		assert.Contains(t, eb.Details, "name")
	})

	t.Run("test in missing suite", func(t *testing.T) {
		status, _ := env.do(t, http.MethodPost, "/suites/missing/tests", env.editor,
			apitest.Test{Name: "x", URL: "http://example.invalid"})
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("duplicate environment name", func(t *testing.T) {
		status, _ := env.do(t, http.MethodPost, "/environments", env.editor, apitest.Environment{Name: "staging"})
		require.Equal(t, http.StatusCreated, status)
		status, body := env.do(t, http.MethodPost, "/environments", env.editor, apitest.Environment{Name: "Staging"})
		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, "conflict", decodeInto[errorBody](t, body).Error)
	})
}

func TestRunSuite_WithEnvironment(t *testing.T) {
	env := newTestEnv(t)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok":true,"path":"`+r.URL.Path+`"}`)
	}))
	defer upstream.Close()

	_, body := env.do(t, http.MethodPost, "/environments", env.editor,
		apitest.Environment{Name: "local", Variables: map[string]string{"base": upstream.URL}})
	environment := decodeInto[apitest.Environment](t, body)

	_, body = env.do(t, http.MethodPost, "/suites", env.editor, apitest.Suite{Name: "Upstream"})
	suite := decodeInto[apitest.Suite](t, body)

	for _, tc := range []apitest.Test{
		{Name: "ok", URL: "{{base}}/ok", Assertions: []apitest.Assertion{
			{Type: apitest.AssertStatus, Expected: 200},
			{Type: apitest.AssertJSONPath, Property: "$.ok", Expected: true},
		}},
		{Name: "fails", URL: "{{base}}/fails", Assertions: []apitest.Assertion{
			{Type: apitest.AssertStatus, Expected: 404},
		}},
	} {
		status, body := env.do(t, http.MethodPost, "/suites/"+suite.ID+"/tests", env.editor, tc)
		require.Equal(t, http.StatusCreated, status, string(body))
	}

	status, body := env.do(t, http.MethodPost, "/suites/"+suite.ID+"/run", env.editor,
		runRequest{EnvironmentID: environment.ID})
	require.Equal(t, http.StatusOK, status, string(body))
	run := decodeInto[apitest.Run](t, body)
	assert.Equal(t, apitest.RunFailed, run.Status)
	assert.Equal(t, 2, run.Total)
	assert.Equal(t, 1, run.Passed)
	assert.Equal(t, 1, run.Failed)
	require.Len(t, run.Results, 2)
	assert.Equal(t, upstream.URL+"/ok", run.Results[0].URL)

	status, body = env.do(t, http.MethodGet, "/runs/"+run.ID, env.viewer, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, run.ID, decodeInto[apitest.Run](t, body).ID)

	status, body = env.do(t, http.MethodGet, "/suites/"+suite.ID+"/runs?limit=5", env.viewer, nil)
	require.Equal(t, http.StatusOK, status)
	runs := decodeInto[[]apitest.Run](t, body)
	require.Len(t, runs, 1)
	assert.Equal(t, apitest.RunFailed, runs[0].Status)

	status, _ = env.do(t, http.MethodPost, "/suites/"+suite.ID+"/run", env.editor,
		runRequest{EnvironmentID: "missing"})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRunTest_AdHoc(t *testing.T) {
	env := newTestEnv(t)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer upstream.Close()

	_, body := env.do(t, http.MethodPost, "/suites", env.editor, apitest.Suite{Name: "S"})
	suite := decodeInto[apitest.Suite](t, body)
	disabled := false
	_, body = env.do(t, http.MethodPost, "/suites/"+suite.ID+"/tests", env.editor, apitest.Test{
		Name:       "teapot",
		URL:        upstream.URL,
		Enabled:    &disabled,
		Assertions: []apitest.Assertion{{Type: apitest.AssertStatus, Expected: 418}},
	})
	test := decodeInto[apitest.Test](t, body)

	// No body at all is accepted.
	status, body := env.do(t, http.MethodPost, "/tests/"+test.ID+"/run", env.editor, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	run := decodeInto[apitest.Run](t, body)
	assert.Equal(t, apitest.RunPassed, run.Status)
	assert.Empty(t, run.SuiteID)
	assert.Equal(t, 1, run.Total)

	status, _ = env.do(t, http.MethodGet, "/runs/"+run.ID, env.viewer, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestMocks_ServedAfterCreate(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodPost, "/mocks", env.editor, mock.Endpoint{
		Method:     "get",
		Path:       "/users/:id",
		StatusCode: http.StatusOK,
		Body:       `{"id":"{{params.id}}"}`,
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	created := decodeInto[mock.Endpoint](t, body)
	assert.Equal(t, http.MethodGet, created.Method)
	assert.Equal(t, 1, env.mocks.Count())

	rec := httptest.NewRecorder()
	env.mocks.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/42", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"42"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	env.mocks.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nothing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	status, body = env.do(t, http.MethodGet, "/mocks/requests", env.viewer, nil)
	require.Equal(t, http.StatusOK, status)
	entries := decodeInto[[]requestlog.Entry](t, body)
	require.Len(t, entries, 2)
	assert.Equal(t, "/nothing", entries[0].Path)
	assert.Equal(t, created.ID, entries[1].MatchedEndpointID)

	status, body = env.do(t, http.MethodGet, "/mocks/requests?unmatched=true", env.viewer, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decodeInto[[]requestlog.Entry](t, body), 1)

	status, body = env.do(t, http.MethodGet, "/mocks/requests/"+entries[1].ID, env.viewer, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "/users/42", decodeInto[requestlog.Entry](t, body).Path)

	status, _ = env.do(t, http.MethodDelete, "/mocks/requests", env.editor, nil)
	assert.Equal(t, http.StatusNoContent, status)
	assert.Zero(t, env.mocks.RequestLog().Count())

	status, _ = env.do(t, http.MethodDelete, "/mocks/"+created.ID, env.editor, nil)
	assert.Equal(t, http.StatusNoContent, status)
	assert.Zero(t, env.mocks.Count())
}

func TestMocks_InvalidPath(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodPost, "/mocks", env.editor, mock.Endpoint{Path: "no-slash"})
	assert.Equal(t, http.StatusBadRequest, status)
	eb := decodeInto[errorBody](t, body)
	assert.Equal(t, "validation_error", eb.Error)
	assert.Contains(t, eb.Details, "path")
}

const petstore = `
openapi: 3.0.3
info:
  title: Pets
  version: "1.0"
paths:
  /pets:
    get:
      operationId: listPets
      responses:
        "200":
          description: ok
          content:
            application/json:
              example: [{"id": 1, "name": "Rex"}]
  /pets/{id}:
    get:
      operationId: getPet
      parameters:
        - name: id
          in: path
          required: true
          schema: {type: integer}
      responses:
        "200":
          description: ok
`

func TestMocks_ImportOpenAPI(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodPost, "/mocks/import", env.editor, petstore)
	require.Equal(t, http.StatusCreated, status, string(body))
	created := decodeInto[[]mock.Endpoint](t, body)
	require.Len(t, created, 2)
	assert.Equal(t, "listPets", created[0].Name)
	assert.Equal(t, 2, env.mocks.Count())

	status, body = env.do(t, http.MethodPost, "/mocks/import", env.editor, "openapi: [")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_document", decodeInto[errorBody](t, body).Error)
}

func TestContent_Lifecycle(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodPost, "/schemas", env.editor, cms.Schema{
		Name: "Blog Posts",
		Fields: []cms.Field{
			{Name: "body", Type: cms.FieldRichText, Required: true},
			{Name: "rating", Type: cms.FieldNumber},
		},
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	schema := decodeInto[cms.Schema](t, body)
	assert.Equal(t, "blog-posts", schema.Slug)

	status, body = env.do(t, http.MethodPost, "/content/blog-posts", env.editor,
		cms.Item{Title: "Missing body", Data: map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, decodeInto[errorBody](t, body).Details, "body")

	status, body = env.do(t, http.MethodPost, "/content/blog-posts", env.editor,
		cms.Item{Title: "Hello World", Data: map[string]any{"body": "<p>hi</p>"}})
	require.Equal(t, http.StatusCreated, status, string(body))
	item := decodeInto[cms.Item](t, body)
	assert.Equal(t, "hello-world", item.Slug)
	assert.Equal(t, cms.StatusDraft, item.Status)
	assert.Equal(t, env.users["editor"].ID, item.AuthorID)

	// Drafts are invisible publicly.
	status, _ = env.do(t, http.MethodGet, "/public/content/blog-posts/hello-world", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	status, body = env.do(t, http.MethodGet, "/public/content/blog-posts", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0, decodeInto[itemPage](t, body).Total)

	status, body = env.do(t, http.MethodPost, "/content/blog-posts/"+item.ID+"/publish", env.editor, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	published := decodeInto[cms.Item](t, body)
	assert.Equal(t, cms.StatusPublished, published.Status)
	require.NotNil(t, published.PublishedAt)

	status, body = env.do(t, http.MethodGet, "/public/content/blog-posts/hello-world", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, item.ID, decodeInto[cms.Item](t, body).ID)

	status, body = env.do(t, http.MethodGet, "/public/content/blog-posts?status=draft", "", nil)
	require.Equal(t, http.StatusOK, status)
	page := decodeInto[itemPage](t, body)
	assert.Equal(t, 1, page.Total)

	status, body = env.do(t, http.MethodGet, "/content/blog-posts?search=hello&limit=10", env.viewer, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, decodeInto[itemPage](t, body).Total)

	status, body = env.do(t, http.MethodGet, "/content/blog-posts?sort=bogus", env.viewer, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, decodeInto[errorBody](t, body).Details, "sort")

	status, body = env.do(t, http.MethodDelete, "/schemas/blog-posts", env.editor, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "schema_in_use", decodeInto[errorBody](t, body).Error)

	status, _ = env.do(t, http.MethodPost, "/content/blog-posts/"+item.ID+"/unpublish", env.editor, nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = env.do(t, http.MethodGet, "/public/content/blog-posts/hello-world", "", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = env.do(t, http.MethodDelete, "/content/blog-posts/"+item.ID, env.editor, nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = env.do(t, http.MethodDelete, "/schemas/blog-posts", env.editor, nil)
	assert.Equal(t, http.StatusNoContent, status)
}

func TestContent_JSONSchema(t *testing.T) {
	env := newTestEnv(t)

	_, _ = env.do(t, http.MethodPost, "/schemas", env.editor, cms.Schema{
		Name:   "Authors",
		Fields: []cms.Field{{Name: "email", Type: cms.FieldEmail, Required: true}},
	})
	status, body := env.do(t, http.MethodGet, "/schemas/authors/jsonschema", env.viewer, nil)
	require.Equal(t, http.StatusOK, status)
	doc := decodeInto[map[string]any](t, body)
	assert.Equal(t, false, doc["additionalProperties"])
	assert.Equal(t, []any{"email"}, doc["required"])
}

func TestUsers_AdminOnly(t *testing.T) {
	env := newTestEnv(t)

	req := createUserRequest{Email: "new@example.com", Name: "New", Password: "password123"}
	status, _ := env.do(t, http.MethodPost, "/users", env.editor, req)
	assert.Equal(t, http.StatusForbidden, status)

	status, body := env.do(t, http.MethodPost, "/users", env.admin, req)
	require.Equal(t, http.StatusCreated, status, string(body))
	u := decodeInto[auth.User](t, body)
	assert.Equal(t, auth.RoleViewer, u.Role)
	assert.Empty(t, u.PasswordHash)

	status, _ = env.do(t, http.MethodPost, "/users", env.admin, req)
	assert.Equal(t, http.StatusConflict, status)

	status, body = env.do(t, http.MethodPost, "/users", env.admin,
		createUserRequest{Email: "short@example.com", Password: "short"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, decodeInto[errorBody](t, body).Details, "password")

	status, body = env.do(t, http.MethodGet, "/users", env.admin, nil)
	require.Equal(t, http.StatusOK, status)
	users := decodeInto[[]auth.User](t, body)
	assert.Len(t, users, 4)
	for _, u := range users {
		assert.Empty(t, u.PasswordHash)
	}

	status, body = env.do(t, http.MethodDelete, "/users/"+env.users["admin"].ID, env.admin, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "cannot_delete_self", decodeInto[errorBody](t, body).Error)

	status, _ = env.do(t, http.MethodDelete, "/users/"+u.ID, env.admin, nil)
	assert.Equal(t, http.StatusNoContent, status)
}

func TestUsers_DeletedOrDemotedTokensLoseAccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	status, _ := env.do(t, http.MethodPost, "/suites", env.editor, map[string]any{"name": "before"})
	require.Equal(t, http.StatusCreated, status)

	editor, err := env.store.Users().Get(ctx, env.users["editor"].ID)
	require.NoError(t, err)
	editor.Role = auth.RoleViewer
	require.NoError(t, env.store.Users().Update(ctx, editor))

	status, _ = env.do(t, http.MethodPost, "/suites", env.editor, map[string]any{"name": "after"})
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = env.do(t, http.MethodGet, "/suites", env.editor, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = env.do(t, http.MethodDelete, "/users/"+env.users["viewer"].ID, env.admin, nil)
	require.Equal(t, http.StatusNoContent, status)
	status, _ = env.do(t, http.MethodGet, "/suites", env.viewer, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestCORS_Preflight(t *testing.T) {
	env := newTestEnv(t)

	req, _ := http.NewRequest(http.MethodOptions, env.srv.URL+"/suites", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := env.srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))

	req, _ = http.NewRequest(http.MethodOptions, env.srv.URL+"/suites", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err = env.srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRecoverPanics(t *testing.T) {
	h := recoverPanics(logging.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_error")
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t)
	status, _ := env.do(t, http.MethodGet, "/suites", env.viewer, nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = env.do(t, http.MethodGet, "/suites", "", nil)
	require.Equal(t, http.StatusUnauthorized, status)

	status, body := env.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `apilab_api_requests_total{method="GET",route="/suites",status="200"} 1`)
	assert.Contains(t, string(body), `apilab_api_requests_total{method="GET",route="/suites",status="401"} 1`)
}

func TestLogin_RateLimited(t *testing.T) {
	env := newTestEnv(t)
	issuer, err := auth.NewTokenIssuer(strings.Repeat("k", 32), time.Hour)
	require.NoError(t, err)
	limiter := ratelimit.New(ratelimit.Config{PerMinute: 1, Burst: 2})
	t.Cleanup(limiter.Close)
	h := New(env.store, auth.NewService(env.store.Users(), issuer, nil), WithLoginLimiter(limiter)).Handler()

	login := func(password string) *httptest.ResponseRecorder {
		body := `{"email":"viewer@example.com","password":"` + password + `"}`
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
		req.RemoteAddr = "203.0.113.7:4000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, login("wrong-one").Code)
	// A successful login clears the client's failures.
	assert.Equal(t, http.StatusOK, login("password123").Code)
	assert.Equal(t, http.StatusUnauthorized, login("wrong-two").Code)
	assert.Equal(t, http.StatusUnauthorized, login("wrong-three").Code)

	rec := login("password123")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limited", decodeInto[errorBody](t, rec.Body.Bytes()).Error)
}

func TestBodyLimit(t *testing.T) {
	env := newTestEnv(t)
	issuer, err := auth.NewTokenIssuer(strings.Repeat("k", 32), time.Hour)
	require.NoError(t, err)
	token, _, err := issuer.Issue(env.users["editor"])
	require.NoError(t, err)

	api := New(env.store, auth.NewService(env.store.Users(), issuer, nil), WithMaxBodyBytes(64))
	req := httptest.NewRequest(http.MethodPost, "/suites",
		strings.NewReader(`{"name":"`+strings.Repeat("x", 128)+`"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "body_too_large", decodeInto[errorBody](t, rec.Body.Bytes()).Error)
}

func TestEvents_StreamsDataChanges(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/events?type=" + events.TypeDataChanged
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + env.viewer}},
	})
	require.NoError(t, err)
	defer conn.CloseNow()

	require.Eventually(t, func() bool { return env.hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	status, body := env.do(t, http.MethodPost, "/suites", env.editor, apitest.Suite{Name: "Live"})
	require.Equal(t, http.StatusCreated, status)
	suite := decodeInto[apitest.Suite](t, body)

	var ev struct {
		Type string            `json:"type"`
		Data map[string]string `json:"data"`
	}
	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	assert.Equal(t, events.TypeDataChanged, ev.Type)
	assert.Equal(t, store.CollectionSuites, ev.Data["collection"])
	assert.Equal(t, suite.ID, ev.Data["id"])
}

func TestEvents_RequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	status, _ := env.do(t, http.MethodGet, "/events", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}
