package requestlog

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// Store defines request history storage.
type Store interface {
	Log(entry *Entry)
	Get(id string) *Entry
	// List returns entries newest first.
	List(filter *Filter) []*Entry
	Clear()
	Count() int
}

// Filter defines criteria for filtering request logs.
type Filter struct {
	// Method filters by HTTP method.
	Method string
	// Path filters by path prefix.
	Path string
	// MatchedID filters by matched endpoint ID.
	MatchedID string
	// Unmatched keeps only requests no endpoint answered.
	Unmatched bool
	// Limit is the maximum number of entries to return.
	Limit int
	// Offset is the number of entries to skip.
	Offset int
}

// DefaultCapacity is used when NewMemoryStore is given a non-positive size.
const DefaultCapacity = 1000

// MemoryStore implements Store with an in-memory circular buffer.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry // ring storage
	start   int      // index of the oldest entry
	size    int
	nextID  int64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a MemoryStore holding up to capacity entries.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{entries: make([]*Entry, capacity)}
}

// Capacity returns the maximum number of entries kept.
func (l *MemoryStore) Capacity() int {
	return len(l.entries)
}

// Log records an entry, evicting the oldest one when full.
func (l *MemoryStore) Log(entry *Entry) {
	if entry == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.ID == "" {
		l.nextID++
		entry.ID = "req-" + strconv.FormatInt(l.nextID, 36)
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	capacity := len(l.entries)
	if l.size < capacity {
		l.entries[(l.start+l.size)%capacity] = entry
		l.size++
		return
	}
	// FIFO eviction: overwrite the oldest
	l.entries[l.start] = entry
	l.start = (l.start + 1) % capacity
}

// at returns the i-th entry counting from the newest.
func (l *MemoryStore) at(i int) *Entry {
	return l.entries[(l.start+l.size-1-i)%len(l.entries)]
}

// Get retrieves a log entry by ID.
func (l *MemoryStore) Get(id string) *Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := range l.size {
		if e := l.at(i); e.ID == id {
			return e
		}
	}
	return nil
}

// List returns entries newest first, optionally filtered.
func (l *MemoryStore) List(filter *Filter) []*Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]*Entry, 0, l.size)
	skipped := 0
	for i := range l.size {
		e := l.at(i)
		if filter != nil {
			if !matchesFilter(e, filter) {
				continue
			}
			if skipped < filter.Offset {
				skipped++
				continue
			}
			if filter.Limit > 0 && len(result) >= filter.Limit {
				break
			}
		}
		result = append(result, e)
	}
	return result
}

func matchesFilter(e *Entry, f *Filter) bool {
	if f.Method != "" && !strings.EqualFold(e.Method, f.Method) {
		return false
	}
	if f.Path != "" && !strings.HasPrefix(e.Path, f.Path) {
		return false
	}
	if f.MatchedID != "" && e.MatchedEndpointID != f.MatchedID {
		return false
	}
	if f.Unmatched && e.MatchedEndpointID != "" {
		return false
	}
	return true
}

// Clear removes all log entries.
func (l *MemoryStore) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.entries)
	l.start, l.size = 0, 0
}

// Count returns the number of log entries.
func (l *MemoryStore) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}
