package file

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/getmockd/apilab/pkg/apitest"
	"github.com/getmockd/apilab/pkg/store"
)

// suiteStore implements store.SuiteStore for file-based storage.
type suiteStore struct {
	fs *FileStore
}

// List returns all suites ordered by creation time.
func (s *suiteStore) List(ctx context.Context) ([]*apitest.Suite, error) {
	s.fs.mu.RLock()
	defer s.fs.mu.RUnlock()

	result := make([]*apitest.Suite, 0, len(s.fs.data.Suites))
	for _, suite := range s.fs.data.Suites {
		c := *suite
		result = append(result, &c)
	}
	slices.SortStableFunc(result, func(a, b *apitest.Suite) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return result, nil
}

// Get returns a single suite by ID.
func (s *suiteStore) Get(ctx context.Context, id string) (*apitest.Suite, error) {
	s.fs.mu.RLock()
	defer s.fs.mu.RUnlock()

	for _, suite := range s.fs.data.Suites {
		if suite.ID == id {
			c := *suite
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

// Create creates a new suite.
func (s *suiteStore) Create(ctx context.Context, suite *apitest.Suite) error {
	if suite.ID == "" {
		return store.ErrInvalidID
	}
	s.fs.mu.Lock()
	defer s.fs.mu.Unlock()

	if err := s.fs.checkWritable(); err != nil {
		return err
	}
	for _, existing := range s.fs.data.Suites {
		if existing.ID == suite.ID {
			return store.ErrAlreadyExists
		}
	}

	now := time.Now().UTC()
	if suite.CreatedAt.IsZero() {
		suite.CreatedAt = now
	}
	suite.UpdatedAt = now

	c := *suite
	s.fs.data.Suites = append(s.fs.data.Suites, &c)
	s.fs.markDirty()
	s.fs.notify(store.CollectionSuites, store.OpCreate, suite.ID, &c)
	return nil
}

// Update replaces an existing suite, keeping its creation time.
func (s *suiteStore) Update(ctx context.Context, suite *apitest.Suite) error {
	s.fs.mu.Lock()
	defer s.fs.mu.Unlock()

	if err := s.fs.checkWritable(); err != nil {
		return err
	}
	for i, existing := range s.fs.data.Suites {
		if existing.ID == suite.ID {
			suite.CreatedAt = existing.CreatedAt
			suite.UpdatedAt = time.Now().UTC()
			c := *suite
			s.fs.data.Suites[i] = &c
			s.fs.markDirty()
			s.fs.notify(store.CollectionSuites, store.OpUpdate, suite.ID, &c)
			return nil
		}
	}
	return store.ErrNotFound
}

// Delete removes a suite and cascades to its tests and runs.
func (s *suiteStore) Delete(ctx context.Context, id string) error {
	s.fs.mu.Lock()
	defer s.fs.mu.Unlock()

	if err := s.fs.checkWritable(); err != nil {
		return err
	}
	idx := slices.IndexFunc(s.fs.data.Suites, func(x *apitest.Suite) bool { return x.ID == id })
	if idx < 0 {
		return store.ErrNotFound
	}
	s.fs.data.Suites = slices.Delete(s.fs.data.Suites, idx, idx+1)
	s.fs.data.Tests = slices.DeleteFunc(s.fs.data.Tests, func(t *apitest.Test) bool { return t.SuiteID == id })
	s.fs.data.Runs = slices.DeleteFunc(s.fs.data.Runs, func(r *apitest.Run) bool { return r.SuiteID == id })
	s.fs.markDirty()
	s.fs.notify(store.CollectionSuites, store.OpDelete, id, nil)
	return nil
}

// testStore implements store.TestStore for file-based storage.
type testStore struct {
	fs *FileStore
}

// ListBySuite returns the suite's tests ordered by Order, then creation time.
func (s *testStore) ListBySuite(ctx context.Context, suiteID string) ([]*apitest.Test, error) {
	s.fs.mu.RLock()
	defer s.fs.mu.RUnlock()

	var result []*apitest.Test
	for _, t := range s.fs.data.Tests {
		if t.SuiteID == suiteID {
			c := *t
			result = append(result, &c)
		}
	}
	slices.SortStableFunc(result, func(a, b *apitest.Test) int {
		return cmp.Or(cmp.Compare(a.Order, b.Order), a.CreatedAt.Compare(b.CreatedAt))
	})
	if result == nil {
		result = []*apitest.Test{}
	}
	return result, nil
}

// Get returns a single test by ID.
func (s *testStore) Get(ctx context.Context, id string) (*apitest.Test, error) {
	s.fs.mu.RLock()
	defer s.fs.mu.RUnlock()

	for _, t := range s.fs.data.Tests {
		if t.ID == id {
			c := *t
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

// Create creates a new test. The owning suite must exist.
func (s *testStore) Create(ctx context.Context, t *apitest.Test) error {
	if t.ID == "" {
		return store.ErrInvalidID
	}
	s.fs.mu.Lock()
	defer s.fs.mu.Unlock()

	if err := s.fs.checkWritable(); err != nil {
		return err
	}
	if !slices.ContainsFunc(s.fs.data.Suites, func(x *apitest.Suite) bool { return x.ID == t.SuiteID }) {
		return store.ErrNotFound
	}
	for _, existing := range s.fs.data.Tests {
		if existing.ID == t.ID {
			return store.ErrAlreadyExists
		}
	}

	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	c := *t
	s.fs.data.Tests = append(s.fs.data.Tests, &c)
	s.fs.markDirty()
	s.fs.notify(store.CollectionTests, store.OpCreate, t.ID, &c)
	return nil
}

// Update replaces an existing test. The suite it belongs to cannot change.
func (s *testStore) Update(ctx context.Context, t *apitest.Test) error {
	s.fs.mu.Lock()
	defer s.fs.mu.Unlock()

	if err := s.fs.checkWritable(); err != nil {
		return err
	}
	for i, existing := range s.fs.data.Tests {
		if existing.ID == t.ID {
			t.SuiteID = existing.SuiteID
			t.CreatedAt = existing.CreatedAt
			t.UpdatedAt = time.Now().UTC()
			c := *t
			s.fs.data.Tests[i] = &c
			s.fs.markDirty()
			s.fs.notify(store.CollectionTests, store.OpUpdate, t.ID, &c)
			return nil
		}
	}
	return store.ErrNotFound
}

// Delete removes a test.
func (s *testStore) Delete(ctx context.Context, id string) error {
	s.fs.mu.Lock()
	defer s.fs.mu.Unlock()

	if err := s.fs.checkWritable(); err != nil {
		return err
	}
	idx := slices.IndexFunc(s.fs.data.Tests, func(x *apitest.Test) bool { return x.ID == id })
	if idx < 0 {
		return store.ErrNotFound
	}
	s.fs.data.Tests = slices.Delete(s.fs.data.Tests, idx, idx+1)
	s.fs.markDirty()
	s.fs.notify(store.CollectionTests, store.OpDelete, id, nil)
	return nil
}
