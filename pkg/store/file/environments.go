package file

import (
	"context"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/getmockd/apilab/pkg/apitest"
	"github.com/getmockd/apilab/pkg/store"
)

// environmentStore implements store.EnvironmentStore for file-based storage.
type environmentStore struct {
	fs *FileStore
}

func cloneEnvironment(e *apitest.Environment) *apitest.Environment {
	c := *e
	c.Variables = maps.Clone(e.Variables)
	return &c
}

// List returns all environments sorted by name.
func (s *environmentStore) List(ctx context.Context) ([]*apitest.Environment, error) {
	s.fs.mu.RLock()
	defer s.fs.mu.RUnlock()

	result := make([]*apitest.Environment, 0, len(s.fs.data.Environments))
	for _, e := range s.fs.data.Environments {
		result = append(result, cloneEnvironment(e))
	}
	slices.SortFunc(result, func(a, b *apitest.Environment) int {
		return strings.Compare(a.Name, b.Name)
	})
	return result, nil
}

// Get returns a single environment by ID.
func (s *environmentStore) Get(ctx context.Context, id string) (*apitest.Environment, error) {
	s.fs.mu.RLock()
	defer s.fs.mu.RUnlock()

	for _, e := range s.fs.data.Environments {
		if e.ID == id {
			return cloneEnvironment(e), nil
		}
	}
	return nil, store.ErrNotFound
}

// nameTaken reports whether another environment already uses name.
func (s *environmentStore) nameTaken(name, exceptID string) bool {
	return slices.ContainsFunc(s.fs.data.Environments, func(e *apitest.Environment) bool {
		return e.ID != exceptID && strings.EqualFold(e.Name, name)
	})
}

// Create creates a new environment.
func (s *environmentStore) Create(ctx context.Context, e *apitest.Environment) error {
	if e.ID == "" {
		return store.ErrInvalidID
	}
	s.fs.mu.Lock()
	defer s.fs.mu.Unlock()

	if err := s.fs.checkWritable(); err != nil {
		return err
	}
	if slices.ContainsFunc(s.fs.data.Environments, func(x *apitest.Environment) bool { return x.ID == e.ID }) ||
		s.nameTaken(e.Name, "") {
		return store.ErrAlreadyExists
	}

	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	c := cloneEnvironment(e)
	s.fs.data.Environments = append(s.fs.data.Environments, c)
	s.fs.markDirty()
	s.fs.notify(store.CollectionEnvironments, store.OpCreate, e.ID, c)
	return nil
}

// Update replaces an existing environment.
func (s *environmentStore) Update(ctx context.Context, e *apitest.Environment) error {
	s.fs.mu.Lock()
	defer s.fs.mu.Unlock()

	if err := s.fs.checkWritable(); err != nil {
		return err
	}
	idx := slices.IndexFunc(s.fs.data.Environments, func(x *apitest.Environment) bool { return x.ID == e.ID })
	if idx < 0 {
		return store.ErrNotFound
	}
	if s.nameTaken(e.Name, e.ID) {
		return store.ErrAlreadyExists
	}
	e.CreatedAt = s.fs.data.Environments[idx].CreatedAt
	e.UpdatedAt = time.Now().UTC()
	c := cloneEnvironment(e)
	s.fs.data.Environments[idx] = c
	s.fs.markDirty()
	s.fs.notify(store.CollectionEnvironments, store.OpUpdate, e.ID, c)
	return nil
}

// Delete removes an environment.
func (s *environmentStore) Delete(ctx context.Context, id string) error {
	s.fs.mu.Lock()
	defer s.fs.mu.Unlock()

	if err := s.fs.checkWritable(); err != nil {
		return err
	}
	idx := slices.IndexFunc(s.fs.data.Environments, func(x *apitest.Environment) bool { return x.ID == id })
	if idx < 0 {
		return store.ErrNotFound
	}
	s.fs.data.Environments = slices.Delete(s.fs.data.Environments, idx, idx+1)
	s.fs.markDirty()
	s.fs.notify(store.CollectionEnvironments, store.OpDelete, id, nil)
	return nil
}
