package cms

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/getmockd/apilab/pkg/store"
)

var (
	// ErrSchemaNotFound matches store.ErrNotFound.
	ErrSchemaNotFound = fmt.Errorf("schema %w", store.ErrNotFound)
	// ErrItemNotFound matches store.ErrNotFound.
	ErrItemNotFound = fmt.Errorf("content item %w", store.ErrNotFound)
	// ErrSchemaExists matches store.ErrAlreadyExists.
	ErrSchemaExists = fmt.Errorf("schema %w", store.ErrAlreadyExists)
	// ErrSlugTaken matches store.ErrAlreadyExists.
	ErrSlugTaken = fmt.Errorf("slug %w", store.ErrAlreadyExists)
	// ErrSchemaInUse is returned when deleting a schema that still has items.
	ErrSchemaInUse = errors.New("schema has content items")
)

// ValidationError lists problems per field. The key "" holds errors that do
// not belong to a single field.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		if name == "" {
			parts = append(parts, e.Fields[name])
			continue
		}
		parts = append(parts, name+": "+e.Fields[name])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// add records msg for field unless one is already recorded.
func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

// orNil returns e when it holds errors.
func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
