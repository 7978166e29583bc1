// Package file keeps every apilab collection in one JSON document under the
// data directory. Mutations happen in memory and are flushed by a background
// goroutine once writes have been quiet for the debounce interval, and once
// more on Close.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/getmockd/apilab/pkg/apitest"
	"github.com/getmockd/apilab/pkg/auth"
	"github.com/getmockd/apilab/pkg/logging"
	"github.com/getmockd/apilab/pkg/mock"
	"github.com/getmockd/apilab/pkg/store"
)

const (
	// dataVersion is bumped whenever the document layout changes.
	dataVersion  = 1
	dataFileName = "data.json"

	defaultSaveDebounce = 500 * time.Millisecond
)

// document is the on-disk layout.
type document struct {
	Version      int                    `json:"version"`
	Suites       []*apitest.Suite       `json:"suites,omitempty"`
	Tests        []*apitest.Test        `json:"tests,omitempty"`
	Environments []*apitest.Environment `json:"environments,omitempty"`
	Endpoints    []*mock.Endpoint       `json:"endpoints,omitempty"`
	Runs         []*apitest.Run         `json:"runs,omitempty"`
	Users        []*auth.User           `json:"users,omitempty"`
}

// FileStore implements store.Store on top of a single JSON document.
type FileStore struct {
	cfg       store.Config
	log       *slog.Logger
	listeners store.Listeners

	mu   sync.RWMutex // guards data
	data *document

	dirty    atomic.Bool
	writeMu  sync.Mutex // one writer of the data file at a time
	debounce time.Duration
	kick     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// Option configures a FileStore.
type Option func(*FileStore)

// WithLogger sets the logger used to report background save failures.
func WithLogger(log *slog.Logger) Option {
	return func(s *FileStore) { s.log = logging.OrNop(log) }
}

// WithSaveDebounce sets how long the store waits after the last write before
// flushing to disk.
func WithSaveDebounce(d time.Duration) Option {
	return func(s *FileStore) { s.debounce = d }
}

// New creates a FileStore and starts its flush goroutine. Call Open before
// use and Close when done.
func New(cfg store.Config, opts ...Option) *FileStore {
	if cfg.DataDir == "" {
		cfg.DataDir = store.DefaultDataDir()
	}
	s := &FileStore{
		cfg:      cfg,
		log:      logging.Nop(),
		data:     &document{Version: dataVersion},
		debounce: defaultSaveDebounce,
		kick:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.flushLoop()
	return s
}

func (s *FileStore) flushLoop() {
	defer close(s.done)

	timer := time.NewTimer(s.debounce)
	timer.Stop()
	for {
		select {
		case <-s.kick:
			timer.Reset(s.debounce)
		case <-timer.C:
			s.flush("debounce")
		case <-s.stop:
			timer.Stop()
			s.flush("close")
			return
		}
	}
}

func (s *FileStore) flush(trigger string) {
	if !s.dirty.Load() {
		return
	}
	if err := s.persist(); err != nil {
		s.log.Error("saving data file failed", "path", s.dataFile(), "trigger", trigger, "error", err)
	}
}

// Open creates the data directory if needed and loads the data file. A
// missing file is an empty store.
func (s *FileStore) Open(_ context.Context) error {
	if !s.cfg.ReadOnly {
		if err := os.MkdirAll(s.cfg.DataDir, 0o700); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// load replaces the in-memory document. Callers hold s.mu.
func (s *FileStore) load() error {
	raw, err := os.ReadFile(s.dataFile())
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.data = &document{Version: dataVersion}
		s.dirty.Store(false)
		return nil
	case err != nil:
		return err
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse %s: %w", s.dataFile(), err)
	}
	if doc.Version > dataVersion {
		return fmt.Errorf("%s: data version %d is newer than supported version %d", s.dataFile(), doc.Version, dataVersion)
	}
	doc.Version = dataVersion
	s.data = &doc
	s.dirty.Store(false)
	return nil
}

// Reload discards unsaved changes and re-reads the data file.
func (s *FileStore) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Close flushes pending changes and stops the flush goroutine. It may be
// called more than once.
func (s *FileStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
	return nil
}

// ForceSave writes the document now, bypassing the debounce.
func (s *FileStore) ForceSave() error {
	s.dirty.Store(true)
	return s.persist()
}

func (s *FileStore) persist() error {
	if s.cfg.ReadOnly {
		return store.ErrReadOnly
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// dirty is cleared under the read lock so a write racing the snapshot
	// marks the store dirty again and gets its own flush.
	s.mu.RLock()
	s.dirty.Store(false)
	raw, err := json.MarshalIndent(s.data, "", "  ")
	s.mu.RUnlock()

	if err == nil {
		err = replaceFile(s.dataFile(), raw)
	}
	if err != nil {
		s.dirty.Store(true)
	}
	return err
}

// replaceFile writes raw next to path and renames it into place.
func replaceFile(path string, raw []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	_, err = f.Write(raw)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp, path)
	}
	if err != nil {
		_ = os.Remove(tmp)
	}
	return err
}

func (s *FileStore) dataFile() string {
	return filepath.Join(s.cfg.DataDir, dataFileName)
}

// DataDir returns the directory holding the data file.
func (s *FileStore) DataDir() string { return s.cfg.DataDir }

// markDirty schedules a flush.
func (s *FileStore) markDirty() {
	s.dirty.Store(true)
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *FileStore) checkWritable() error {
	if s.cfg.ReadOnly {
		return store.ErrReadOnly
	}
	return nil
}

func (s *FileStore) notify(collection, operation, id string, data any) {
	s.listeners.Notify(collection, operation, id, data)
}

// AddChangeListener registers a callback for every committed change.
func (s *FileStore) AddChangeListener(listener store.ChangeListener) {
	s.listeners.AddChangeListener(listener)
}

func (s *FileStore) Suites() store.SuiteStore             { return &suiteStore{fs: s} }
func (s *FileStore) Tests() store.TestStore               { return &testStore{fs: s} }
func (s *FileStore) Environments() store.EnvironmentStore { return &environmentStore{fs: s} }
func (s *FileStore) Endpoints() store.EndpointStore       { return &endpointStore{fs: s} }
func (s *FileStore) Runs() store.RunStore                 { return &runStore{fs: s} }
func (s *FileStore) Users() store.UserStore               { return &userStore{fs: s} }

var _ store.Store = (*FileStore)(nil)
