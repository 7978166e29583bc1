package file

import (
	"context"
	"slices"
	"time"

	"github.com/getmockd/apilab/pkg/mock"
	"github.com/getmockd/apilab/pkg/store"
)

// endpointStore implements store.EndpointStore for file-based storage.
type endpointStore struct {
	fs *FileStore
}

// List returns all endpoints in creation order.
func (s *endpointStore) List(ctx context.Context) ([]*mock.Endpoint, error) {
	s.fs.mu.RLock()
	defer s.fs.mu.RUnlock()

	result := make([]*mock.Endpoint, 0, len(s.fs.data.Endpoints))
	for _, e := range s.fs.data.Endpoints {
		c := *e
		result = append(result, &c)
	}
	return result, nil
}

// Get returns a single endpoint by ID.
func (s *endpointStore) Get(ctx context.Context, id string) (*mock.Endpoint, error) {
	s.fs.mu.RLock()
	defer s.fs.mu.RUnlock()

	for _, e := range s.fs.data.Endpoints {
		if e.ID == id {
			c := *e
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

// Create creates a new endpoint.
func (s *endpointStore) Create(ctx context.Context, e *mock.Endpoint) error {
	if e.ID == "" {
		return store.ErrInvalidID
	}
	s.fs.mu.Lock()
	defer s.fs.mu.Unlock()

	if err := s.fs.checkWritable(); err != nil {
		return err
	}
	if slices.ContainsFunc(s.fs.data.Endpoints, func(x *mock.Endpoint) bool { return x.ID == e.ID }) {
		return store.ErrAlreadyExists
	}

	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	c := *e
	s.fs.data.Endpoints = append(s.fs.data.Endpoints, &c)
	s.fs.markDirty()
	s.fs.notify(store.CollectionEndpoints, store.OpCreate, e.ID, &c)
	return nil
}

// Update replaces an existing endpoint.
func (s *endpointStore) Update(ctx context.Context, e *mock.Endpoint) error {
	s.fs.mu.Lock()
	defer s.fs.mu.Unlock()

	if err := s.fs.checkWritable(); err != nil {
		return err
	}
	for i, existing := range s.fs.data.Endpoints {
		if existing.ID == e.ID {
			e.CreatedAt = existing.CreatedAt
			e.UpdatedAt = time.Now().UTC()
			c := *e
			s.fs.data.Endpoints[i] = &c
			s.fs.markDirty()
			s.fs.notify(store.CollectionEndpoints, store.OpUpdate, e.ID, &c)
			return nil
		}
	}
	return store.ErrNotFound
}

// Delete removes an endpoint.
func (s *endpointStore) Delete(ctx context.Context, id string) error {
	s.fs.mu.Lock()
	defer s.fs.mu.Unlock()

	if err := s.fs.checkWritable(); err != nil {
		return err
	}
	idx := slices.IndexFunc(s.fs.data.Endpoints, func(x *mock.Endpoint) bool { return x.ID == id })
	if idx < 0 {
		return store.ErrNotFound
	}
	s.fs.data.Endpoints = slices.Delete(s.fs.data.Endpoints, idx, idx+1)
	s.fs.markDirty()
	s.fs.notify(store.CollectionEndpoints, store.OpDelete, id, nil)
	return nil
}
