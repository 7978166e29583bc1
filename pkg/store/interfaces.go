package store

import (
	"context"

	"github.com/getmockd/apilab/pkg/apitest"
	"github.com/getmockd/apilab/pkg/auth"
	"github.com/getmockd/apilab/pkg/mock"
)

// SuiteStore handles test suite persistence.
type SuiteStore interface {
	List(ctx context.Context) ([]*apitest.Suite, error)
	Get(ctx context.Context, id string) (*apitest.Suite, error)
	Create(ctx context.Context, s *apitest.Suite) error
	Update(ctx context.Context, s *apitest.Suite) error
	// Delete removes the suite together with its tests and runs.
	Delete(ctx context.Context, id string) error
}

// TestStore handles test persistence.
type TestStore interface {
	// ListBySuite returns a suite's tests ordered by Order, then creation time.
	ListBySuite(ctx context.Context, suiteID string) ([]*apitest.Test, error)
	Get(ctx context.Context, id string) (*apitest.Test, error)
	// Create fails with ErrNotFound when the suite does not exist.
	Create(ctx context.Context, t *apitest.Test) error
	Update(ctx context.Context, t *apitest.Test) error
	Delete(ctx context.Context, id string) error
}

// EnvironmentStore handles environment persistence. Names are unique.
type EnvironmentStore interface {
	List(ctx context.Context) ([]*apitest.Environment, error)
	Get(ctx context.Context, id string) (*apitest.Environment, error)
	Create(ctx context.Context, e *apitest.Environment) error
	Update(ctx context.Context, e *apitest.Environment) error
	Delete(ctx context.Context, id string) error
}

// EndpointStore handles mock endpoint persistence.
type EndpointStore interface {
	List(ctx context.Context) ([]*mock.Endpoint, error)
	Get(ctx context.Context, id string) (*mock.Endpoint, error)
	Create(ctx context.Context, e *mock.Endpoint) error
	Update(ctx context.Context, e *mock.Endpoint) error
	Delete(ctx context.Context, id string) error
}

// RunStore handles test run persistence.
type RunStore interface {
	// List returns runs newest first. An empty suiteID lists every suite;
	// limit <= 0 means no limit.
	List(ctx context.Context, suiteID string, limit int) ([]*apitest.Run, error)
	Get(ctx context.Context, id string) (*apitest.Run, error)
	// Save inserts the run or replaces it if the ID exists.
	Save(ctx context.Context, run *apitest.Run) error
	// Prune deletes all but the newest keep runs of a suite and returns how
	// many were removed.
	Prune(ctx context.Context, suiteID string, keep int) (int, error)
}

// UserStore handles user persistence. Emails are unique, case-insensitively.
type UserStore interface {
	List(ctx context.Context) ([]*auth.User, error)
	Get(ctx context.Context, id string) (*auth.User, error)
	GetByEmail(ctx context.Context, email string) (*auth.User, error)
	Create(ctx context.Context, u *auth.User) error
	Update(ctx context.Context, u *auth.User) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}
