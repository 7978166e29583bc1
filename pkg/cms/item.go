package cms

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Status is the publication state of an item.
type Status string

// Item statuses.
const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusDraft || s == StatusPublished
}

// Item is one content entry.
type Item struct {
	ID          string         `json:"id"`
	Schema      string         `json:"schema"`
	Slug        string         `json:"slug"`
	Title       string         `json:"title"`
	Status      Status         `json:"status"`
	Data        map[string]any `json:"data"`
	AuthorID    string         `json:"authorId,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	PublishedAt *time.Time     `json:"publishedAt,omitempty"`
}

// IsPublished reports whether the item is publicly visible.
func (it *Item) IsPublished() bool {
	return it.Status == StatusPublished
}

// Sort keys accepted by ListOptions. A leading "-" sorts descending.
const (
	SortCreatedAt   = "createdAt"
	SortUpdatedAt   = "updatedAt"
	SortPublishedAt = "publishedAt"
	SortTitle       = "title"
)

// ListOptions filters and pages ListItems.
type ListOptions struct {
	// Status keeps only items in this state.
	Status Status
	// Search is a case-insensitive substring of the title, slug or any
	// string data value.
	Search string
	// Sort is one of the Sort* keys, optionally prefixed with "-".
	// The default is "-createdAt".
	Sort   string
	Limit  int
	Offset int
}

// Validate checks the options.
func (o ListOptions) Validate() error {
	if o.Status != "" && !o.Status.Valid() {
		return &ValidationError{Fields: map[string]string{"status": fmt.Sprintf("unknown status %q", o.Status)}}
	}
	switch strings.TrimPrefix(o.Sort, "-") {
	case "", SortCreatedAt, SortUpdatedAt, SortPublishedAt, SortTitle:
	default:
		return &ValidationError{Fields: map[string]string{"sort": fmt.Sprintf("unknown sort key %q", o.Sort)}}
	}
	if o.Limit < 0 || o.Offset < 0 {
		return &ValidationError{Fields: map[string]string{"limit": "limit and offset must not be negative"}}
	}
	return nil
}

func (o ListOptions) matches(it *Item) bool {
	if o.Status != "" && it.Status != o.Status {
		return false
	}
	if o.Search == "" {
		return true
	}
	needle := strings.ToLower(o.Search)
	if strings.Contains(strings.ToLower(it.Title), needle) || strings.Contains(it.Slug, needle) {
		return true
	}
	for _, v := range it.Data {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

// apply filters, sorts and pages items. It returns the page and the number
// of items that matched before paging.
func (o ListOptions) apply(items []*Item) ([]*Item, int) {
	out := items[:0]
	for _, it := range items {
		if o.matches(it) {
			out = append(out, it)
		}
	}

	key := o.Sort
	if key == "" {
		key = "-" + SortCreatedAt
	}
	desc := strings.HasPrefix(key, "-")
	key = strings.TrimPrefix(key, "-")

	slices.SortStableFunc(out, func(a, b *Item) int {
		var c int
		switch key {
		case SortTitle:
			c = cmp.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
		case SortUpdatedAt:
			c = a.UpdatedAt.Compare(b.UpdatedAt)
		case SortPublishedAt:
			c = publishedTime(a).Compare(publishedTime(b))
		default:
			c = a.CreatedAt.Compare(b.CreatedAt)
		}
		if c == 0 {
			c = cmp.Compare(a.ID, b.ID)
		}
		if desc {
			return -c
		}
		return c
	})

	total := len(out)
	if o.Offset >= total {
		return []*Item{}, total
	}
	out = out[o.Offset:]
	if o.Limit > 0 && o.Limit < len(out) {
		out = out[:o.Limit]
	}
	return out, total
}

func publishedTime(it *Item) time.Time {
	if it.PublishedAt == nil {
		return time.Time{}
	}
	return *it.PublishedAt
}
