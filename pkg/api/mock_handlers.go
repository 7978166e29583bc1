package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/getmockd/apilab/internal/id"
	"github.com/getmockd/apilab/pkg/httputil"
	"github.com/getmockd/apilab/pkg/mock"
	"github.com/getmockd/apilab/pkg/openapi"
	"github.com/getmockd/apilab/pkg/requestlog"
	"github.com/getmockd/apilab/pkg/store"
)

// reloadMocks refreshes the mock server after a write so the change is
// served by the time the response returns.
func (s *Server) reloadMocks(ctx context.Context) {
	if s.mocks == nil {
		return
	}
	if err := s.mocks.Reload(ctx); err != nil {
		s.log.Warn("failed to reload mocks", "error", err)
	}
}

func (s *Server) handleListMocks(w http.ResponseWriter, r *http.Request) {
	endpoints, err := s.store.Endpoints().List(r.Context())
	if err != nil {
		writeError(w, s.log, err, "list mocks")
		return
	}
	httputil.WriteOK(w, endpoints)
}

func (s *Server) handleCreateMock(w http.ResponseWriter, r *http.Request) {
	var e mock.Endpoint
	if !s.decode(w, r, &e) {
		return
	}
	e.Normalize()
	if err := e.Validate(); err != nil {
		writeError(w, s.log, err, "create mock")
		return
	}
	e.ID = id.UUID()
	if err := s.store.Endpoints().Create(r.Context(), &e); err != nil {
		writeError(w, s.log, err, "create mock")
		return
	}
	s.reloadMocks(r.Context())
	s.publish(store.CollectionEndpoints, store.OpCreate, e.ID)
	httputil.WriteCreated(w, &e)
}

func (s *Server) handleGetMock(w http.ResponseWriter, r *http.Request) {
	mockID := r.PathValue("id")
	e, err := s.store.Endpoints().Get(r.Context(), mockID)
	if err != nil {
		writeError(w, s.log, err, "get mock", "id", mockID)
		return
	}
	httputil.WriteOK(w, e)
}

func (s *Server) handleUpdateMock(w http.ResponseWriter, r *http.Request) {
	mockID := r.PathValue("id")
	var e mock.Endpoint
	if !s.decode(w, r, &e) {
		return
	}
	e.Normalize()
	if err := e.Validate(); err != nil {
		writeError(w, s.log, err, "update mock")
		return
	}
	e.ID = mockID
	if err := s.store.Endpoints().Update(r.Context(), &e); err != nil {
		writeError(w, s.log, err, "update mock", "id", mockID)
		return
	}
	updated, err := s.store.Endpoints().Get(r.Context(), mockID)
	if err != nil {
		writeError(w, s.log, err, "get mock", "id", mockID)
		return
	}
	s.reloadMocks(r.Context())
	s.publish(store.CollectionEndpoints, store.OpUpdate, mockID)
	httputil.WriteOK(w, updated)
}

func (s *Server) handleDeleteMock(w http.ResponseWriter, r *http.Request) {
	mockID := r.PathValue("id")
	if err := s.store.Endpoints().Delete(r.Context(), mockID); err != nil {
		writeError(w, s.log, err, "delete mock", "id", mockID)
		return
	}
	s.reloadMocks(r.Context())
	s.publish(store.CollectionEndpoints, store.OpDelete, mockID)
	httputil.WriteNoContent(w)
}

// handleImportOpenAPI creates one mock per operation of the OpenAPI
// document in the body (JSON or YAML).
func (s *Server) handleImportOpenAPI(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, "body_too_large", ErrMsgBodyTooLarge)
			return
		}
		httputil.WriteBadRequest(w, "invalid_request", "failed to read request body")
		return
	}
	doc, err := openapi.Load(r.Context(), data)
	if err != nil {
		httputil.WriteBadRequest(w, "invalid_document", err.Error())
		return
	}

	endpoints := openapi.Endpoints(doc)
	created := make([]*mock.Endpoint, 0, len(endpoints))
	for _, e := range endpoints {
		if err := s.store.Endpoints().Create(r.Context(), e); err != nil {
			writeError(w, s.log, err, "import mock", "path", e.Path, "method", e.Method)
			return
		}
		created = append(created, e)
	}
	s.reloadMocks(r.Context())
	s.publish(store.CollectionEndpoints, store.OpCreate, "")
	s.log.Info("imported OpenAPI document", "title", doc.Info.Title, "endpoints", len(created))
	httputil.WriteCreated(w, created)
}

// handleListRequests returns the mock server's request log, newest first.
// Query parameters: method, path (prefix), endpointId, unmatched, limit,
// offset.
func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	if s.mocks == nil {
		httputil.WriteOK(w, []*requestlog.Entry{})
		return
	}
	limit, offset, ok := pageParams(r)
	if !ok {
		writeBadPage(w)
		return
	}
	q := r.URL.Query()
	filter := &requestlog.Filter{
		Method:    q.Get("method"),
		Path:      q.Get("path"),
		MatchedID: q.Get("endpointId"),
		Limit:     limit,
		Offset:    offset,
	}
	if v := q.Get("unmatched"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			httputil.WriteBadRequest(w, "invalid_query", "unmatched must be a boolean")
			return
		}
		filter.Unmatched = b
	}
	entries := s.mocks.RequestLog().List(filter)
	if entries == nil {
		entries = []*requestlog.Entry{}
	}
	httputil.WriteOK(w, entries)
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	if s.mocks == nil {
		httputil.WriteNotFound(w, "not_found", ErrMsgNotFound)
		return
	}
	entry := s.mocks.RequestLog().Get(r.PathValue("id"))
	if entry == nil {
		httputil.WriteNotFound(w, "not_found", ErrMsgNotFound)
		return
	}
	httputil.WriteOK(w, entry)
}

func (s *Server) handleClearRequests(w http.ResponseWriter, r *http.Request) {
	if s.mocks != nil {
		s.mocks.RequestLog().Clear()
	}
	httputil.WriteNoContent(w)
}
