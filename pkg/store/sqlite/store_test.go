package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/apilab/pkg/apitest"
	"github.com/getmockd/apilab/pkg/store"
	"github.com/getmockd/apilab/pkg/store/storetest"
)

func newMemoryStore(t *testing.T) *Store {
	t.Helper()
	s := New(store.Config{Backend: store.BackendSQLite, SQLitePath: MemoryPath})
	require.NoError(t, s.Open(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return newMemoryStore(t) })
}

func TestSQLiteStore_PersistsToFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "apilab.db")
	cfg := store.Config{Backend: store.BackendSQLite, SQLitePath: path}

	s := New(cfg)
	require.NoError(t, s.Open(ctx))
	require.NoError(t, s.Suites().Create(ctx, &apitest.Suite{ID: "s1", Name: "on disk"}))
	require.NoError(t, s.Close())

	reopened := New(cfg)
	require.NoError(t, reopened.Open(ctx))
	t.Cleanup(func() { _ = reopened.Close() })
	got, err := reopened.Suites().Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "on disk", got.Name)
}

func TestSQLiteStore_AdHocRunsHaveNoSuite(t *testing.T) {
	ctx := context.Background()
	s := newMemoryStore(t)
	require.NoError(t, s.Runs().Save(ctx, &apitest.Run{ID: "r1", Status: apitest.RunPassed}))
	got, err := s.Runs().Get(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, got.SuiteID)
}

func TestSQLiteStore_CloseIsIdempotent(t *testing.T) {
	s := New(store.Config{SQLitePath: MemoryPath})
	require.NoError(t, s.Open(context.Background()))
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}
