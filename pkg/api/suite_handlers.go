package api

import (
	"errors"
	"net/http"

	"github.com/getmockd/apilab/internal/id"
	"github.com/getmockd/apilab/pkg/apitest"
	"github.com/getmockd/apilab/pkg/httputil"
	"github.com/getmockd/apilab/pkg/store"
)

// suiteDetail is a suite together with its tests.
type suiteDetail struct {
	*apitest.Suite
	Tests []*apitest.Test `json:"tests"`
}

// runRequest is the optional body of the run endpoints.
type runRequest struct {
	EnvironmentID string `json:"environmentId"`
}

// decodeOptional is decode for bodies that may be omitted.
func (s *Server) decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength == 0 {
		return true
	}
	err := httputil.DecodeJSON(r, v, s.maxBodyBytes)
	if err == nil || errors.Is(err, httputil.ErrEmptyBody) {
		return true
	}
	httputil.WriteBadRequest(w, "invalid_json", ErrMsgInvalidJSON)
	return false
}

func (s *Server) handleListSuites(w http.ResponseWriter, r *http.Request) {
	suites, err := s.store.Suites().List(r.Context())
	if err != nil {
		writeError(w, s.log, err, "list suites")
		return
	}
	httputil.WriteOK(w, suites)
}

func (s *Server) handleCreateSuite(w http.ResponseWriter, r *http.Request) {
	var suite apitest.Suite
	if !s.decode(w, r, &suite) {
		return
	}
	if err := suite.Validate(); err != nil {
		writeError(w, s.log, err, "create suite")
		return
	}
	suite.ID = id.UUID()
	if err := s.store.Suites().Create(r.Context(), &suite); err != nil {
		writeError(w, s.log, err, "create suite")
		return
	}
	s.publish(store.CollectionSuites, store.OpCreate, suite.ID)
	httputil.WriteCreated(w, &suite)
}

func (s *Server) handleGetSuite(w http.ResponseWriter, r *http.Request) {
	suiteID := r.PathValue("id")
	suite, err := s.store.Suites().Get(r.Context(), suiteID)
	if err != nil {
		writeError(w, s.log, err, "get suite", "id", suiteID)
		return
	}
	tests, err := s.store.Tests().ListBySuite(r.Context(), suiteID)
	if err != nil {
		writeError(w, s.log, err, "list tests", "suite", suiteID)
		return
	}
	if tests == nil {
		tests = []*apitest.Test{}
	}
	httputil.WriteOK(w, suiteDetail{Suite: suite, Tests: tests})
}

func (s *Server) handleUpdateSuite(w http.ResponseWriter, r *http.Request) {
	suiteID := r.PathValue("id")
	var suite apitest.Suite
	if !s.decode(w, r, &suite) {
		return
	}
	if err := suite.Validate(); err != nil {
		writeError(w, s.log, err, "update suite")
		return
	}
	suite.ID = suiteID
	if err := s.store.Suites().Update(r.Context(), &suite); err != nil {
		writeError(w, s.log, err, "update suite", "id", suiteID)
		return
	}
	updated, err := s.store.Suites().Get(r.Context(), suiteID)
	if err != nil {
		writeError(w, s.log, err, "get suite", "id", suiteID)
		return
	}
	s.publish(store.CollectionSuites, store.OpUpdate, suiteID)
	httputil.WriteOK(w, updated)
}

func (s *Server) handleDeleteSuite(w http.ResponseWriter, r *http.Request) {
	suiteID := r.PathValue("id")
	if err := s.store.Suites().Delete(r.Context(), suiteID); err != nil {
		writeError(w, s.log, err, "delete suite", "id", suiteID)
		return
	}
	s.publish(store.CollectionSuites, store.OpDelete, suiteID)
	httputil.WriteNoContent(w)
}

// handleRunSuite runs the suite synchronously and returns the finished run.
// Progress is streamed on /events while it runs.
func (s *Server) handleRunSuite(w http.ResponseWriter, r *http.Request) {
	suiteID := r.PathValue("id")
	var req runRequest
	if !s.decodeOptional(w, r, &req) {
		return
	}
	run, err := s.runner.RunSuite(r.Context(), suiteID, req.EnvironmentID)
	if err != nil {
		writeError(w, s.log, err, "run suite", "id", suiteID)
		return
	}
	httputil.WriteOK(w, run)
}

func (s *Server) handleListSuiteRuns(w http.ResponseWriter, r *http.Request) {
	suiteID := r.PathValue("id")
	limit, _, ok := pageParams(r)
	if !ok {
		writeBadPage(w)
		return
	}
	if _, err := s.store.Suites().Get(r.Context(), suiteID); err != nil {
		writeError(w, s.log, err, "get suite", "id", suiteID)
		return
	}
	runs, err := s.store.Runs().List(r.Context(), suiteID, limit)
	if err != nil {
		writeError(w, s.log, err, "list runs", "suite", suiteID)
		return
	}
	httputil.WriteOK(w, runs)
}

func (s *Server) handleListTests(w http.ResponseWriter, r *http.Request) {
	suiteID := r.PathValue("id")
	if _, err := s.store.Suites().Get(r.Context(), suiteID); err != nil {
		writeError(w, s.log, err, "get suite", "id", suiteID)
		return
	}
	tests, err := s.store.Tests().ListBySuite(r.Context(), suiteID)
	if err != nil {
		writeError(w, s.log, err, "list tests", "suite", suiteID)
		return
	}
	httputil.WriteOK(w, tests)
}

func (s *Server) handleCreateTest(w http.ResponseWriter, r *http.Request) {
	suiteID := r.PathValue("id")
	var t apitest.Test
	if !s.decode(w, r, &t) {
		return
	}
	if err := t.Validate(); err != nil {
		writeError(w, s.log, err, "create test")
		return
	}
	existing, err := s.store.Tests().ListBySuite(r.Context(), suiteID)
	if err != nil {
		writeError(w, s.log, err, "list tests", "suite", suiteID)
		return
	}
	t.ID = id.UUID()
	t.SuiteID = suiteID
	t.Method = t.EffectiveMethod()
	if t.Order == 0 {
		t.Order = len(existing)
	}
	if err := s.store.Tests().Create(r.Context(), &t); err != nil {
		writeError(w, s.log, err, "create test", "suite", suiteID)
		return
	}
	s.publish(store.CollectionTests, store.OpCreate, t.ID)
	httputil.WriteCreated(w, &t)
}

func (s *Server) handleGetTest(w http.ResponseWriter, r *http.Request) {
	testID := r.PathValue("id")
	t, err := s.store.Tests().Get(r.Context(), testID)
	if err != nil {
		writeError(w, s.log, err, "get test", "id", testID)
		return
	}
	httputil.WriteOK(w, t)
}

// handleUpdateTest replaces a test. A test cannot move to another suite.
func (s *Server) handleUpdateTest(w http.ResponseWriter, r *http.Request) {
	testID := r.PathValue("id")
	existing, err := s.store.Tests().Get(r.Context(), testID)
	if err != nil {
		writeError(w, s.log, err, "get test", "id", testID)
		return
	}
	var t apitest.Test
	if !s.decode(w, r, &t) {
		return
	}
	if err := t.Validate(); err != nil {
		writeError(w, s.log, err, "update test")
		return
	}
	t.ID = testID
	t.SuiteID = existing.SuiteID
	t.Method = t.EffectiveMethod()
	t.CreatedAt = existing.CreatedAt
	if err := s.store.Tests().Update(r.Context(), &t); err != nil {
		writeError(w, s.log, err, "update test", "id", testID)
		return
	}
	s.publish(store.CollectionTests, store.OpUpdate, testID)
	httputil.WriteOK(w, &t)
}

func (s *Server) handleDeleteTest(w http.ResponseWriter, r *http.Request) {
	testID := r.PathValue("id")
	if err := s.store.Tests().Delete(r.Context(), testID); err != nil {
		writeError(w, s.log, err, "delete test", "id", testID)
		return
	}
	s.publish(store.CollectionTests, store.OpDelete, testID)
	httputil.WriteNoContent(w)
}

// handleRunTest runs a single test, enabled or not. The run is stored
// without a suite.
func (s *Server) handleRunTest(w http.ResponseWriter, r *http.Request) {
	testID := r.PathValue("id")
	var req runRequest
	if !s.decodeOptional(w, r, &req) {
		return
	}
	t, err := s.store.Tests().Get(r.Context(), testID)
	if err != nil {
		writeError(w, s.log, err, "get test", "id", testID)
		return
	}
	var vars map[string]string
	if req.EnvironmentID != "" {
		env, err := s.store.Environments().Get(r.Context(), req.EnvironmentID)
		if err != nil {
			writeError(w, s.log, err, "get environment", "id", req.EnvironmentID)
			return
		}
		vars = env.Variables
	}

	single := *t
	single.Enabled = nil
	run := s.runner.RunTests(r.Context(), t.Name, []*apitest.Test{&single}, vars)
	run.EnvironmentID = req.EnvironmentID
	if err := s.store.Runs().Save(r.Context(), run); err != nil {
		writeError(w, s.log, err, "save run", "id", run.ID)
		return
	}
	httputil.WriteOK(w, run)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, _, ok := pageParams(r)
	if !ok {
		writeBadPage(w)
		return
	}
	runs, err := s.store.Runs().List(r.Context(), r.URL.Query().Get("suiteId"), limit)
	if err != nil {
		writeError(w, s.log, err, "list runs")
		return
	}
	httputil.WriteOK(w, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	run, err := s.store.Runs().Get(r.Context(), runID)
	if err != nil {
		writeError(w, s.log, err, "get run", "id", runID)
		return
	}
	httputil.WriteOK(w, run)
}
