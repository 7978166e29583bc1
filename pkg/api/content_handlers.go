package api

import (
	"net/http"

	"github.com/getmockd/apilab/pkg/auth"
	"github.com/getmockd/apilab/pkg/cms"
	"github.com/getmockd/apilab/pkg/httputil"
)

// itemPage is one page of content items.
type itemPage struct {
	Items  []*cms.Item `json:"items"`
	Total  int         `json:"total"`
	Limit  int         `json:"limit,omitempty"`
	Offset int         `json:"offset,omitempty"`
}

// Content change events use these collection names.
const (
	collectionSchemas = "schemas"
	collectionContent = "content"
)

func (s *Server) handleListSchemas(w http.ResponseWriter, r *http.Request) {
	schemas, err := s.content.ListSchemas(r.Context())
	if err != nil {
		writeError(w, s.log, err, "list schemas")
		return
	}
	httputil.WriteOK(w, schemas)
}

func (s *Server) handleCreateSchema(w http.ResponseWriter, r *http.Request) {
	var schema cms.Schema
	if !s.decode(w, r, &schema) {
		return
	}
	if err := s.content.CreateSchema(r.Context(), &schema); err != nil {
		writeError(w, s.log, err, "create schema")
		return
	}
	s.publish(collectionSchemas, "create", schema.Slug)
	httputil.WriteCreated(w, &schema)
}

func (s *Server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	schema, err := s.content.GetSchema(r.Context(), slug)
	if err != nil {
		writeError(w, s.log, err, "get schema", "slug", slug)
		return
	}
	httputil.WriteOK(w, schema)
}

// handleGetJSONSchema returns the JSON Schema items of the schema are
// validated against.
func (s *Server) handleGetJSONSchema(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	schema, err := s.content.GetSchema(r.Context(), slug)
	if err != nil {
		writeError(w, s.log, err, "get schema", "slug", slug)
		return
	}
	httputil.WriteOK(w, schema.JSONSchema())
}

func (s *Server) handleUpdateSchema(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	var schema cms.Schema
	if !s.decode(w, r, &schema) {
		return
	}
	schema.Slug = slug
	if err := s.content.UpdateSchema(r.Context(), &schema); err != nil {
		writeError(w, s.log, err, "update schema", "slug", slug)
		return
	}
	s.publish(collectionSchemas, "update", slug)
	httputil.WriteOK(w, &schema)
}

func (s *Server) handleDeleteSchema(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	if err := s.content.DeleteSchema(r.Context(), slug); err != nil {
		writeError(w, s.log, err, "delete schema", "slug", slug)
		return
	}
	s.publish(collectionSchemas, "delete", slug)
	httputil.WriteNoContent(w)
}

// listOptions reads status, search, sort, limit and offset from the query.
func listOptions(r *http.Request) (cms.ListOptions, bool) {
	limit, offset, ok := pageParams(r)
	if !ok {
		return cms.ListOptions{}, false
	}
	q := r.URL.Query()
	return cms.ListOptions{
		Status: cms.Status(q.Get("status")),
		Search: q.Get("search"),
		Sort:   q.Get("sort"),
		Limit:  limit,
		Offset: offset,
	}, true
}

func (s *Server) listItems(w http.ResponseWriter, r *http.Request, opts cms.ListOptions) {
	schema := r.PathValue("schema")
	items, total, err := s.content.ListItems(r.Context(), schema, opts)
	if err != nil {
		writeError(w, s.log, err, "list content", "schema", schema)
		return
	}
	if items == nil {
		items = []*cms.Item{}
	}
	httputil.WriteOK(w, itemPage{Items: items, Total: total, Limit: opts.Limit, Offset: opts.Offset})
}

func (s *Server) handleListContent(w http.ResponseWriter, r *http.Request) {
	opts, ok := listOptions(r)
	if !ok {
		writeBadPage(w)
		return
	}
	s.listItems(w, r, opts)
}

func (s *Server) handleCreateContent(w http.ResponseWriter, r *http.Request) {
	schema := r.PathValue("schema")
	var it cms.Item
	if !s.decode(w, r, &it) {
		return
	}
	if claims, ok := auth.ClaimsFrom(r.Context()); ok {
		it.AuthorID = claims.UserID()
	}
	if err := s.content.CreateItem(r.Context(), schema, &it); err != nil {
		writeError(w, s.log, err, "create content", "schema", schema)
		return
	}
	s.publish(collectionContent, "create", it.ID)
	httputil.WriteCreated(w, &it)
}

func (s *Server) handleGetContent(w http.ResponseWriter, r *http.Request) {
	schema, itemID := r.PathValue("schema"), r.PathValue("id")
	it, err := s.content.GetItem(r.Context(), schema, itemID)
	if err != nil {
		writeError(w, s.log, err, "get content", "schema", schema, "id", itemID)
		return
	}
	httputil.WriteOK(w, it)
}

func (s *Server) handleUpdateContent(w http.ResponseWriter, r *http.Request) {
	schema, itemID := r.PathValue("schema"), r.PathValue("id")
	var it cms.Item
	if !s.decode(w, r, &it) {
		return
	}
	it.ID = itemID
	if err := s.content.UpdateItem(r.Context(), schema, &it); err != nil {
		writeError(w, s.log, err, "update content", "schema", schema, "id", itemID)
		return
	}
	s.publish(collectionContent, "update", itemID)
	httputil.WriteOK(w, &it)
}

func (s *Server) handleDeleteContent(w http.ResponseWriter, r *http.Request) {
	schema, itemID := r.PathValue("schema"), r.PathValue("id")
	if err := s.content.DeleteItem(r.Context(), schema, itemID); err != nil {
		writeError(w, s.log, err, "delete content", "schema", schema, "id", itemID)
		return
	}
	s.publish(collectionContent, "delete", itemID)
	httputil.WriteNoContent(w)
}

func (s *Server) handlePublishContent(w http.ResponseWriter, r *http.Request) {
	schema, itemID := r.PathValue("schema"), r.PathValue("id")
	it, err := s.content.Publish(r.Context(), schema, itemID)
	if err != nil {
		writeError(w, s.log, err, "publish content", "schema", schema, "id", itemID)
		return
	}
	s.publish(collectionContent, "publish", itemID)
	httputil.WriteOK(w, it)
}

func (s *Server) handleUnpublishContent(w http.ResponseWriter, r *http.Request) {
	schema, itemID := r.PathValue("schema"), r.PathValue("id")
	it, err := s.content.Unpublish(r.Context(), schema, itemID)
	if err != nil {
		writeError(w, s.log, err, "unpublish content", "schema", schema, "id", itemID)
		return
	}
	s.publish(collectionContent, "unpublish", itemID)
	httputil.WriteOK(w, it)
}

// handlePublicListContent lists published items without authentication.
// A status query parameter is ignored.
func (s *Server) handlePublicListContent(w http.ResponseWriter, r *http.Request) {
	opts, ok := listOptions(r)
	if !ok {
		writeBadPage(w)
		return
	}
	opts.Status = cms.StatusPublished
	s.listItems(w, r, opts)
}

// handlePublicGetContent returns a published item by slug. Drafts are
// reported as missing.
func (s *Server) handlePublicGetContent(w http.ResponseWriter, r *http.Request) {
	schema, slug := r.PathValue("schema"), r.PathValue("slug")
	it, err := s.content.GetItemBySlug(r.Context(), schema, slug)
	if err != nil {
		writeError(w, s.log, err, "get public content", "schema", schema, "slug", slug)
		return
	}
	if !it.IsPublished() {
		httputil.WriteNotFound(w, "not_found", ErrMsgNotFound)
		return
	}
	httputil.WriteOK(w, it)
}
