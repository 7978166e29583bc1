// Error handling for the REST API.
// Clients get a stable error code and a generic message; the full error is
// logged server-side.

package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/getmockd/apilab/pkg/apitest"
	"github.com/getmockd/apilab/pkg/auth"
	"github.com/getmockd/apilab/pkg/cms"
	"github.com/getmockd/apilab/pkg/httputil"
	"github.com/getmockd/apilab/pkg/mock"
	"github.com/getmockd/apilab/pkg/store"
)

// Safe error messages for client responses.
const (
	// ErrMsgInternalError is returned for unexpected internal errors.
	ErrMsgInternalError = "An internal error occurred"

	// ErrMsgInvalidJSON is returned for JSON parsing errors.
	ErrMsgInvalidJSON = "Invalid JSON in request body"

	// ErrMsgBodyTooLarge is returned when the body exceeds the size cap.
	ErrMsgBodyTooLarge = "Request body too large"

	// ErrMsgOperationFailed is returned for generic operation failures.
	ErrMsgOperationFailed = "Operation failed"

	// ErrMsgValidationFailed is returned for validation errors.
	ErrMsgValidationFailed = "Request validation failed"

	// ErrMsgNotFound is returned when a resource is not found.
	ErrMsgNotFound = "Resource not found"

	// ErrMsgConflict is returned for duplicate resource conflicts.
	ErrMsgConflict = "Resource already exists"

	// ErrMsgSchemaInUse is returned when deleting a schema that has content.
	ErrMsgSchemaInUse = "Schema still has content items"

	// ErrMsgReadOnly is returned when the store refuses writes.
	ErrMsgReadOnly = "Storage is read-only"
)

// validationDetails extracts per-field details from the validation errors
// the domain packages return. ok is false for any other error.
func validationDetails(err error) (map[string]string, bool) {
	var apiErr *apitest.ValidationError
	if errors.As(err, &apiErr) {
		return map[string]string{apiErr.Field: apiErr.Message}, true
	}
	var mockErr *mock.ValidationError
	if errors.As(err, &mockErr) {
		return map[string]string{mockErr.Field: mockErr.Message}, true
	}
	var cmsErr *cms.ValidationError
	if errors.As(err, &cmsErr) {
		return cmsErr.Fields, true
	}
	switch {
	case errors.Is(err, auth.ErrInvalidEmail):
		return map[string]string{"email": err.Error()}, true
	case errors.Is(err, auth.ErrInvalidRole):
		return map[string]string{"role": err.Error()}, true
	case errors.Is(err, auth.ErrPasswordTooShort), errors.Is(err, auth.ErrPasswordTooLong):
		return map[string]string{"password": err.Error()}, true
	}
	return nil, false
}

// writeError maps err to a response. Validation and lookup failures carry
// their own message; everything else is logged and answered generically.
func writeError(w http.ResponseWriter, log *slog.Logger, err error, operation string, details ...any) {
	if fields, ok := validationDetails(err); ok {
		httputil.WriteErrorWithDetails(w, http.StatusBadRequest, "validation_error", ErrMsgValidationFailed, fields)
		return
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		httputil.WriteNotFound(w, "not_found", ErrMsgNotFound)
	case errors.Is(err, store.ErrAlreadyExists):
		httputil.WriteConflict(w, "conflict", ErrMsgConflict)
	case errors.Is(err, cms.ErrSchemaInUse):
		httputil.WriteConflict(w, "schema_in_use", ErrMsgSchemaInUse)
	case errors.Is(err, store.ErrReadOnly):
		httputil.WriteConflict(w, "read_only", ErrMsgReadOnly)
	default:
		args := []any{"operation", operation, "error", err}
		args = append(args, details...)
		log.Error("operation failed", args...)
		httputil.WriteInternalError(w, "internal_error", ErrMsgOperationFailed)
	}
}

// decode reads a JSON body into v, writing the error response itself when
// it fails.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := httputil.DecodeJSON(r, v, s.maxBodyBytes)
	if err == nil {
		return true
	}
	var maxErr *http.MaxBytesError
	if errors.Is(err, httputil.ErrBodyTooLarge) || errors.As(err, &maxErr) {
		httputil.WriteError(w, http.StatusRequestEntityTooLarge, "body_too_large", ErrMsgBodyTooLarge)
		return false
	}
	httputil.WriteBadRequest(w, "invalid_json", ErrMsgInvalidJSON)
	return false
}
