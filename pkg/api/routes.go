package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/getmockd/apilab/pkg/auth"
	"github.com/getmockd/apilab/pkg/events"
	"github.com/getmockd/apilab/pkg/httputil"
	"github.com/getmockd/apilab/pkg/ratelimit"
)

// registerRoutes sets up all API routes.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	read := s.requireAuth
	write := s.requireWriter
	admin := s.requireAdmin

	// Public
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	mux.Handle("POST /auth/login", ratelimit.Middleware(s.logins)(http.HandlerFunc(s.handleLogin)))
	mux.HandleFunc("POST /auth/logout", s.handleLogout)
	mux.Handle("GET /auth/me", read(s.handleMe))

	// Suites and tests
	mux.Handle("GET /suites", read(s.handleListSuites))
	mux.Handle("POST /suites", write(s.handleCreateSuite))
	mux.Handle("GET /suites/{id}", read(s.handleGetSuite))
	mux.Handle("PUT /suites/{id}", write(s.handleUpdateSuite))
	mux.Handle("DELETE /suites/{id}", write(s.handleDeleteSuite))
	mux.Handle("POST /suites/{id}/run", write(s.handleRunSuite))
	mux.Handle("GET /suites/{id}/runs", read(s.handleListSuiteRuns))
	mux.Handle("GET /suites/{id}/tests", read(s.handleListTests))
	mux.Handle("POST /suites/{id}/tests", write(s.handleCreateTest))
	mux.Handle("GET /tests/{id}", read(s.handleGetTest))
	mux.Handle("PUT /tests/{id}", write(s.handleUpdateTest))
	mux.Handle("DELETE /tests/{id}", write(s.handleDeleteTest))
	mux.Handle("POST /tests/{id}/run", write(s.handleRunTest))

	// Runs
	mux.Handle("GET /runs", read(s.handleListRuns))
	mux.Handle("GET /runs/{id}", read(s.handleGetRun))

	// Environments
	mux.Handle("GET /environments", read(s.handleListEnvironments))
	mux.Handle("POST /environments", write(s.handleCreateEnvironment))
	mux.Handle("GET /environments/{id}", read(s.handleGetEnvironment))
	mux.Handle("PUT /environments/{id}", write(s.handleUpdateEnvironment))
	mux.Handle("DELETE /environments/{id}", write(s.handleDeleteEnvironment))

	// Mocks. The literal /mocks/requests patterns are more specific than
	// /mocks/{id} and win.
	mux.Handle("GET /mocks", read(s.handleListMocks))
	mux.Handle("POST /mocks", write(s.handleCreateMock))
	mux.Handle("POST /mocks/import", write(s.handleImportOpenAPI))
	mux.Handle("GET /mocks/requests", read(s.handleListRequests))
	mux.Handle("DELETE /mocks/requests", write(s.handleClearRequests))
	mux.Handle("GET /mocks/requests/{id}", read(s.handleGetRequest))
	mux.Handle("GET /mocks/{id}", read(s.handleGetMock))
	mux.Handle("PUT /mocks/{id}", write(s.handleUpdateMock))
	mux.Handle("DELETE /mocks/{id}", write(s.handleDeleteMock))

	// CMS
	if s.content != nil {
		mux.Handle("GET /schemas", read(s.handleListSchemas))
		mux.Handle("POST /schemas", write(s.handleCreateSchema))
		mux.Handle("GET /schemas/{slug}", read(s.handleGetSchema))
		mux.Handle("GET /schemas/{slug}/jsonschema", read(s.handleGetJSONSchema))
		mux.Handle("PUT /schemas/{slug}", write(s.handleUpdateSchema))
		mux.Handle("DELETE /schemas/{slug}", write(s.handleDeleteSchema))
		mux.Handle("GET /content/{schema}", read(s.handleListContent))
		mux.Handle("POST /content/{schema}", write(s.handleCreateContent))
		mux.Handle("GET /content/{schema}/{id}", read(s.handleGetContent))
		mux.Handle("PUT /content/{schema}/{id}", write(s.handleUpdateContent))
		mux.Handle("DELETE /content/{schema}/{id}", write(s.handleDeleteContent))
		mux.Handle("POST /content/{schema}/{id}/publish", write(s.handlePublishContent))
		mux.Handle("POST /content/{schema}/{id}/unpublish", write(s.handleUnpublishContent))
		mux.HandleFunc("GET /public/content/{schema}", s.handlePublicListContent)
		mux.HandleFunc("GET /public/content/{schema}/{slug}", s.handlePublicGetContent)
	}

	// Users
	mux.Handle("GET /users", admin(s.handleListUsers))
	mux.Handle("POST /users", admin(s.handleCreateUser))
	mux.Handle("DELETE /users/{id}", admin(s.handleDeleteUser))

	// Live events
	if s.hub != nil {
		mux.Handle("GET /events", read(events.NewHandler(s.hub, s.corsOrigins, s.log).ServeHTTP))
	}
}

func (s *Server) requireAuth(h http.HandlerFunc) http.Handler {
	return s.auth.Middleware()(h)
}

func (s *Server) requireWriter(h http.HandlerFunc) http.Handler {
	return s.auth.Middleware()(auth.RequireRole(auth.RoleAdmin, auth.RoleEditor)(h))
}

func (s *Server) requireAdmin(h http.HandlerFunc) http.Handler {
	return s.auth.Middleware()(auth.RequireRole(auth.RoleAdmin)(h))
}

// healthResponse is the /health body.
type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
	Mocks         int    `json:"mocks"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	}
	if s.mocks != nil {
		resp.Mocks = s.mocks.Count()
	}
	httputil.WriteOK(w, resp)
}

// pageParams reads limit and offset query parameters. Missing values are 0.
func pageParams(r *http.Request) (limit, offset int, ok bool) {
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, 0, false
		}
		limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, 0, false
		}
		offset = n
	}
	return limit, offset, true
}

func writeBadPage(w http.ResponseWriter) {
	httputil.WriteBadRequest(w, "invalid_query", "limit and offset must be non-negative integers")
}
