// Package store defines persistence for the API-testing records (suites,
// tests, environments, mock endpoints, runs) and users.
//
// Two backends implement Store:
//   - file: a single JSON document in the data directory (pkg/store/file)
//   - sqlite: an embedded SQLite database (pkg/store/sqlite)
//
// Default directories follow the XDG Base Directory Specification:
//   - Config: ~/.config/apilab/
//   - Data:   ~/.local/share/apilab/
package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// Common errors
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidID     = errors.New("invalid id")
	ErrReadOnly      = errors.New("store is read-only")
)

// Backend represents a storage backend type.
type Backend string

const (
	// BackendFile stores everything in one JSON file.
	BackendFile Backend = "file"
	// BackendSQLite uses an embedded SQLite database.
	BackendSQLite Backend = "sqlite"
)

// Config holds store configuration.
type Config struct {
	// Backend specifies the storage backend to use.
	Backend Backend `json:"backend" yaml:"backend"`

	// DataDir is the base directory for data storage.
	// Defaults to XDG_DATA_HOME/apilab or ~/.local/share/apilab.
	DataDir string `json:"dataDir,omitempty" yaml:"dataDir,omitempty"`

	// SQLitePath is the database file for the sqlite backend.
	// Defaults to DataDir/apilab.db.
	SQLitePath string `json:"sqlitePath,omitempty" yaml:"sqlitePath,omitempty"`

	// ReadOnly prevents any write operations.
	ReadOnly bool `json:"readOnly,omitempty" yaml:"readOnly,omitempty"`
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{
		Backend: BackendFile,
		DataDir: DefaultDataDir(),
	}
}

// DatabasePath returns SQLitePath or its default under DataDir.
func (c Config) DatabasePath() string {
	if c.SQLitePath != "" {
		return c.SQLitePath
	}
	return filepath.Join(c.DataDir, "apilab.db")
}

// DefaultDataDir returns the default data directory following XDG spec.
func DefaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "apilab")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".apilab", "data")
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "apilab")
	case "windows":
		if appData := os.Getenv("LOCALAPPDATA"); appData != "" {
			return filepath.Join(appData, "apilab")
		}
		return filepath.Join(home, "AppData", "Local", "apilab")
	}
	return filepath.Join(home, ".local", "share", "apilab")
}

// DefaultConfigDir returns the default config directory following XDG spec.
func DefaultConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "apilab")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".apilab", "config")
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Preferences", "apilab")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "apilab")
		}
		return filepath.Join(home, "AppData", "Roaming", "apilab")
	}
	return filepath.Join(home, ".config", "apilab")
}

// Store is the main interface for data persistence.
type Store interface {
	Open(ctx context.Context) error
	Close() error

	Suites() SuiteStore
	Tests() TestStore
	Environments() EnvironmentStore
	Endpoints() EndpointStore
	Runs() RunStore
	Users() UserStore

	// AddChangeListener registers a callback for every successful write.
	AddChangeListener(listener ChangeListener)
}

// Collections named in change events.
const (
	CollectionSuites       = "suites"
	CollectionTests        = "tests"
	CollectionEnvironments = "environments"
	CollectionEndpoints    = "endpoints"
	CollectionRuns         = "runs"
	CollectionUsers        = "users"
)

// Operations named in change events.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// ChangeEvent represents a change to the store.
type ChangeEvent struct {
	Collection string `json:"collection"`
	Operation  string `json:"operation"`
	ID         string `json:"id"`
	Data       any    `json:"data,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

// ChangeListener is called when data changes. Listeners run on their own
// goroutine and must not block for long.
type ChangeListener func(event ChangeEvent)

// Listeners fans change events out to registered callbacks. Backends embed
// it to implement AddChangeListener.
type Listeners struct {
	mu   sync.RWMutex
	list []ChangeListener
}

// AddChangeListener adds a listener for data changes.
func (l *Listeners) AddChangeListener(listener ChangeListener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.list = append(l.list, listener)
}

// Notify sends a change event to all listeners, each on its own goroutine.
func (l *Listeners) Notify(collection, operation, id string, data any) {
	l.mu.RLock()
	listeners := make([]ChangeListener, len(l.list))
	copy(listeners, l.list)
	l.mu.RUnlock()

	event := ChangeEvent{
		Collection: collection,
		Operation:  operation,
		ID:         id,
		Data:       data,
		Timestamp:  time.Now().UnixMilli(),
	}
	for _, fn := range listeners {
		go func(listener ChangeListener) {
			defer func() { _ = recover() }() // Prevent listener panics from crashing the store
			listener(event)
		}(fn)
	}
}
