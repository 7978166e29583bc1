package cms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/getmockd/apilab/internal/id"
	"github.com/getmockd/apilab/pkg/logging"
)

const (
	schemasDir = "schemas"
	contentDir = "content"
)

// Repository stores schemas and items as JSON files under a root directory.
// Files are the source of truth; nothing is cached between calls.
type Repository struct {
	root string
	log  *slog.Logger
	now  func() time.Time

	mu sync.RWMutex // serialises writers
}

// Option configures a Repository.
type Option func(*Repository)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Repository) { r.log = logging.OrNop(log) }
}

// NewRepository creates a repository rooted at dir, creating the directory
// layout if needed.
func NewRepository(dir string, opts ...Option) (*Repository, error) {
	r := &Repository{root: dir, log: logging.Nop(), now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(r)
	}
	for _, sub := range []string{schemasDir, contentDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o700); err != nil {
			return nil, fmt.Errorf("create content dir: %w", err)
		}
	}
	return r, nil
}

// Root returns the repository directory.
func (r *Repository) Root() string { return r.root }

func (r *Repository) schemaPath(slug string) string {
	return filepath.Join(r.root, schemasDir, slug+".json")
}

func (r *Repository) itemDir(schema string) string {
	return filepath.Join(r.root, contentDir, schema)
}

func (r *Repository) itemPath(schema, itemID string) string {
	return filepath.Join(r.itemDir(schema), itemID+".json")
}

// writeJSON writes v to path through a temp file and rename.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName) // Clean up temp file on failure
		return err
	}
	return nil
}

func readJSON(path string, v any, notFound error) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return notFound
		}
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// --- schemas ---

// CreateSchema stores a new schema. An empty slug is derived from the name.
func (r *Repository) CreateSchema(ctx context.Context, s *Schema) error {
	if s.Slug == "" {
		s.Slug = Slugify(s.Name)
	}
	if err := s.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	path := r.schemaPath(s.Slug)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrSchemaExists, s.Slug)
	}
	now := r.now()
	s.CreatedAt, s.UpdatedAt = now, now
	if err := writeJSON(path, s); err != nil {
		return fmt.Errorf("write schema: %w", err)
	}
	r.log.Info("schema created", "slug", s.Slug)
	return nil
}

// GetSchema returns the schema with the given slug.
func (r *Repository) GetSchema(ctx context.Context, slug string) (*Schema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getSchemaLocked(slug)
}

func (r *Repository) getSchemaLocked(slug string) (*Schema, error) {
	if !ValidSlug(slug) {
		return nil, ErrSchemaNotFound
	}
	var s Schema
	if err := readJSON(r.schemaPath(slug), &s, ErrSchemaNotFound); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSchemas returns all schemas ordered by slug.
func (r *Repository) ListSchemas(ctx context.Context) ([]*Schema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries, err := os.ReadDir(filepath.Join(r.root, schemasDir))
	if err != nil {
		return nil, fmt.Errorf("list schemas: %w", err)
	}
	out := make([]*Schema, 0, len(entries))
	for _, e := range entries {
		slug, ok := strings.CutSuffix(e.Name(), ".json")
		if e.IsDir() || !ok || !ValidSlug(slug) {
			continue
		}
		s, err := r.getSchemaLocked(slug)
		if err != nil {
			r.log.Warn("skipping unreadable schema file", "slug", slug, "error", err)
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// UpdateSchema replaces the name, description and fields of an existing
// schema. Existing items are not revalidated.
func (r *Repository) UpdateSchema(ctx context.Context, s *Schema) error {
	if err := s.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.getSchemaLocked(s.Slug)
	if err != nil {
		return err
	}
	s.CreatedAt = existing.CreatedAt
	s.UpdatedAt = r.now()
	if err := writeJSON(r.schemaPath(s.Slug), s); err != nil {
		return fmt.Errorf("write schema: %w", err)
	}
	return nil
}

// DeleteSchema removes a schema. It fails with ErrSchemaInUse while the
// schema still has items.
func (r *Repository) DeleteSchema(ctx context.Context, slug string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.getSchemaLocked(slug); err != nil {
		return err
	}
	ids, err := r.itemIDsLocked(slug)
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		return fmt.Errorf("%w: %s has %d items", ErrSchemaInUse, slug, len(ids))
	}
	if err := os.Remove(r.schemaPath(slug)); err != nil {
		return fmt.Errorf("delete schema: %w", err)
	}
	_ = os.RemoveAll(r.itemDir(slug))
	r.log.Info("schema deleted", "slug", slug)
	return nil
}

// --- items ---

func (r *Repository) itemIDsLocked(schema string) ([]string, error) {
	entries, err := os.ReadDir(r.itemDir(schema))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list items: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		itemID, ok := strings.CutSuffix(e.Name(), ".json")
		if e.IsDir() || !ok || !id.IsValidULID(itemID) {
			continue
		}
		ids = append(ids, itemID)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *Repository) itemsLocked(schema string) ([]*Item, error) {
	ids, err := r.itemIDsLocked(schema)
	if err != nil {
		return nil, err
	}
	items := make([]*Item, 0, len(ids))
	for _, itemID := range ids {
		it, err := r.getItemLocked(schema, itemID)
		if err != nil {
			r.log.Warn("skipping unreadable content file", "schema", schema, "id", itemID, "error", err)
			continue
		}
		items = append(items, it)
	}
	return items, nil
}

func (r *Repository) getItemLocked(schema, itemID string) (*Item, error) {
	if !ValidSlug(schema) || !id.IsValidULID(itemID) {
		return nil, ErrItemNotFound
	}
	var it Item
	if err := readJSON(r.itemPath(schema, itemID), &it, ErrItemNotFound); err != nil {
		return nil, err
	}
	return &it, nil
}

// resolveSlug picks the item's slug: the requested one, which must be free,
// or one derived from the title with a numeric suffix when taken.
func resolveSlug(requested, title, selfID string, items []*Item) (string, error) {
	taken := func(slug string) bool {
		for _, it := range items {
			if it.Slug == slug && it.ID != selfID {
				return true
			}
		}
		return false
	}

	if requested != "" {
		slug := Slugify(requested)
		if slug == "" {
			return "", &ValidationError{Fields: map[string]string{"slug": "slug must contain letters or digits"}}
		}
		if taken(slug) {
			return "", fmt.Errorf("%w: %s", ErrSlugTaken, slug)
		}
		return slug, nil
	}

	base := Slugify(title)
	if base == "" {
		base = "item"
	}
	return uniqueSlug(base, taken), nil
}

// prepare validates the item against s, filling in defaults.
func prepare(s *Schema, it *Item) error {
	verr := &ValidationError{}
	if strings.TrimSpace(it.Title) == "" {
		verr.add("title", "title is required")
	}
	if it.Status == "" {
		it.Status = StatusDraft
	}
	if !it.Status.Valid() {
		verr.add("status", fmt.Sprintf("unknown status %q", it.Status))
	}
	if err := verr.orNil(); err != nil {
		return err
	}

	if it.Data == nil {
		it.Data = map[string]any{}
	}
	for _, f := range s.Fields {
		if _, ok := it.Data[f.Name]; !ok && f.Default != nil {
			it.Data[f.Name] = f.Default
		}
	}
	return s.ValidateData(it.Data)
}

// CreateItem stores a new item under schema. The ID, timestamps and, when
// empty, the slug are assigned here.
func (r *Repository) CreateItem(ctx context.Context, schema string, it *Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.getSchemaLocked(schema)
	if err != nil {
		return err
	}
	if err := prepare(s, it); err != nil {
		return err
	}
	items, err := r.itemsLocked(schema)
	if err != nil {
		return err
	}

	it.ID = id.ULID()
	it.Schema = schema
	if it.Slug, err = resolveSlug(it.Slug, it.Title, it.ID, items); err != nil {
		return err
	}
	now := r.now()
	it.CreatedAt, it.UpdatedAt = now, now
	it.PublishedAt = nil
	if it.IsPublished() {
		it.PublishedAt = &now
	}

	if err := writeJSON(r.itemPath(schema, it.ID), it); err != nil {
		return fmt.Errorf("write item: %w", err)
	}
	r.log.Debug("content item created", "schema", schema, "id", it.ID, "slug", it.Slug)
	return nil
}

// GetItem returns an item by ID.
func (r *Repository) GetItem(ctx context.Context, schema, itemID string) (*Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, err := r.getSchemaLocked(schema); err != nil {
		return nil, err
	}
	return r.getItemLocked(schema, itemID)
}

// GetItemBySlug returns the item of schema with the given slug.
func (r *Repository) GetItemBySlug(ctx context.Context, schema, slug string) (*Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, err := r.getSchemaLocked(schema); err != nil {
		return nil, err
	}
	items, err := r.itemsLocked(schema)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		if it.Slug == slug {
			return it, nil
		}
	}
	return nil, ErrItemNotFound
}

// ListItems returns a page of items and the number of matching items.
func (r *Repository) ListItems(ctx context.Context, schema string, opts ListOptions) ([]*Item, int, error) {
	if err := opts.Validate(); err != nil {
		return nil, 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, err := r.getSchemaLocked(schema); err != nil {
		return nil, 0, err
	}
	items, err := r.itemsLocked(schema)
	if err != nil {
		return nil, 0, err
	}
	page, total := opts.apply(items)
	return page, total, nil
}

// UpdateItem replaces an item's title, slug, status and data. An empty slug
// keeps the current one.
func (r *Repository) UpdateItem(ctx context.Context, schema string, it *Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.getSchemaLocked(schema)
	if err != nil {
		return err
	}
	existing, err := r.getItemLocked(schema, it.ID)
	if err != nil {
		return err
	}
	if it.Status == "" {
		it.Status = existing.Status
	}
	if err := prepare(s, it); err != nil {
		return err
	}

	if it.Slug == "" || it.Slug == existing.Slug {
		it.Slug = existing.Slug
	} else {
		items, err := r.itemsLocked(schema)
		if err != nil {
			return err
		}
		if it.Slug, err = resolveSlug(it.Slug, it.Title, it.ID, items); err != nil {
			return err
		}
	}

	it.Schema = schema
	it.AuthorID = existing.AuthorID
	it.CreatedAt = existing.CreatedAt
	it.UpdatedAt = r.now()
	it.PublishedAt = transitionPublished(existing, it.Status, it.UpdatedAt)

	if err := writeJSON(r.itemPath(schema, it.ID), it); err != nil {
		return fmt.Errorf("write item: %w", err)
	}
	return nil
}

// transitionPublished keeps the first publication time while an item stays
// published and clears it when it goes back to draft.
func transitionPublished(existing *Item, next Status, now time.Time) *time.Time {
	if next != StatusPublished {
		return nil
	}
	if existing.IsPublished() && existing.PublishedAt != nil {
		return existing.PublishedAt
	}
	return &now
}

// DeleteItem removes an item.
func (r *Repository) DeleteItem(ctx context.Context, schema, itemID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.getItemLocked(schema, itemID); err != nil {
		return err
	}
	if err := os.Remove(r.itemPath(schema, itemID)); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

// Publish makes an item publicly visible.
func (r *Repository) Publish(ctx context.Context, schema, itemID string) (*Item, error) {
	return r.setStatus(schema, itemID, StatusPublished)
}

// Unpublish returns an item to draft.
func (r *Repository) Unpublish(ctx context.Context, schema, itemID string) (*Item, error) {
	return r.setStatus(schema, itemID, StatusDraft)
}

func (r *Repository) setStatus(schema, itemID string, status Status) (*Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	it, err := r.getItemLocked(schema, itemID)
	if err != nil {
		return nil, err
	}
	if it.Status == status {
		return it, nil
	}
	now := r.now()
	it.PublishedAt = transitionPublished(it, status, now)
	it.Status = status
	it.UpdatedAt = now
	if err := writeJSON(r.itemPath(schema, itemID), it); err != nil {
		return nil, fmt.Errorf("write item: %w", err)
	}
	r.log.Info("content item status changed", "schema", schema, "id", itemID, "status", status)
	return it, nil
}
