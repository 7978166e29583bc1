package file

import (
	"context"
	"slices"
	"time"

	"github.com/getmockd/apilab/pkg/auth"
	"github.com/getmockd/apilab/pkg/store"
)

// userStore implements store.UserStore for file-based storage.
type userStore struct {
	fs *FileStore
}

// List returns all users in creation order.
func (s *userStore) List(ctx context.Context) ([]*auth.User, error) {
	s.fs.mu.RLock()
	defer s.fs.mu.RUnlock()

	result := make([]*auth.User, 0, len(s.fs.data.Users))
	for _, u := range s.fs.data.Users {
		c := *u
		result = append(result, &c)
	}
	return result, nil
}

// Get returns a user by ID.
func (s *userStore) Get(ctx context.Context, id string) (*auth.User, error) {
	s.fs.mu.RLock()
	defer s.fs.mu.RUnlock()

	for _, u := range s.fs.data.Users {
		if u.ID == id {
			c := *u
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

// GetByEmail returns a user by email, ignoring case.
func (s *userStore) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	email = auth.NormalizeEmail(email)
	s.fs.mu.RLock()
	defer s.fs.mu.RUnlock()

	for _, u := range s.fs.data.Users {
		if auth.NormalizeEmail(u.Email) == email {
			c := *u
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *userStore) emailTaken(email, exceptID string) bool {
	email = auth.NormalizeEmail(email)
	return slices.ContainsFunc(s.fs.data.Users, func(u *auth.User) bool {
		return u.ID != exceptID && auth.NormalizeEmail(u.Email) == email
	})
}

// Create creates a new user. Emails must be unique.
func (s *userStore) Create(ctx context.Context, u *auth.User) error {
	if u.ID == "" {
		return store.ErrInvalidID
	}
	s.fs.mu.Lock()
	defer s.fs.mu.Unlock()

	if err := s.fs.checkWritable(); err != nil {
		return err
	}
	if slices.ContainsFunc(s.fs.data.Users, func(x *auth.User) bool { return x.ID == u.ID }) ||
		s.emailTaken(u.Email, "") {
		return store.ErrAlreadyExists
	}

	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	c := *u
	s.fs.data.Users = append(s.fs.data.Users, &c)
	s.fs.markDirty()
	s.fs.notify(store.CollectionUsers, store.OpCreate, u.ID, c.Public())
	return nil
}

// Update replaces an existing user.
func (s *userStore) Update(ctx context.Context, u *auth.User) error {
	s.fs.mu.Lock()
	defer s.fs.mu.Unlock()

	if err := s.fs.checkWritable(); err != nil {
		return err
	}
	idx := slices.IndexFunc(s.fs.data.Users, func(x *auth.User) bool { return x.ID == u.ID })
	if idx < 0 {
		return store.ErrNotFound
	}
	if s.emailTaken(u.Email, u.ID) {
		return store.ErrAlreadyExists
	}
	u.CreatedAt = s.fs.data.Users[idx].CreatedAt
	u.UpdatedAt = time.Now().UTC()
	c := *u
	s.fs.data.Users[idx] = &c
	s.fs.markDirty()
	s.fs.notify(store.CollectionUsers, store.OpUpdate, u.ID, c.Public())
	return nil
}

// Delete removes a user.
func (s *userStore) Delete(ctx context.Context, id string) error {
	s.fs.mu.Lock()
	defer s.fs.mu.Unlock()

	if err := s.fs.checkWritable(); err != nil {
		return err
	}
	idx := slices.IndexFunc(s.fs.data.Users, func(x *auth.User) bool { return x.ID == id })
	if idx < 0 {
		return store.ErrNotFound
	}
	s.fs.data.Users = slices.Delete(s.fs.data.Users, idx, idx+1)
	s.fs.markDirty()
	s.fs.notify(store.CollectionUsers, store.OpDelete, id, nil)
	return nil
}

// Count returns the number of users.
func (s *userStore) Count(ctx context.Context) (int, error) {
	s.fs.mu.RLock()
	defer s.fs.mu.RUnlock()
	return len(s.fs.data.Users), nil
}
