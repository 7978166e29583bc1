// Package storetest holds behaviour tests shared by every store.Store
// implementation.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/apilab/pkg/apitest"
	"github.com/getmockd/apilab/pkg/auth"
	"github.com/getmockd/apilab/pkg/mock"
	"github.com/getmockd/apilab/pkg/store"
)

// Factory returns an opened, empty store. It should register cleanup with t.
type Factory func(t *testing.T) store.Store

// Run exercises s against the behaviour every backend must share.
func Run(t *testing.T, newStore Factory) {
	t.Run("Suites", func(t *testing.T) { testSuites(t, newStore(t)) })
	t.Run("SuiteDeleteCascades", func(t *testing.T) { testSuiteDeleteCascades(t, newStore(t)) })
	t.Run("Tests", func(t *testing.T) { testTests(t, newStore(t)) })
	t.Run("Environments", func(t *testing.T) { testEnvironments(t, newStore(t)) })
	t.Run("Endpoints", func(t *testing.T) { testEndpoints(t, newStore(t)) })
	t.Run("Runs", func(t *testing.T) { testRuns(t, newStore(t)) })
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("ChangeListener", func(t *testing.T) { testChangeListener(t, newStore(t)) })
}

func testSuites(t *testing.T, s store.Store) {
	ctx := context.Background()

	list, err := s.Suites().List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	suite := &apitest.Suite{ID: "s1", Name: "Users API", Description: "smoke"}
	require.NoError(t, s.Suites().Create(ctx, suite))
	assert.False(t, suite.CreatedAt.IsZero())

	assert.ErrorIs(t, s.Suites().Create(ctx, &apitest.Suite{ID: "s1", Name: "dup"}), store.ErrAlreadyExists)
	assert.ErrorIs(t, s.Suites().Create(ctx, &apitest.Suite{Name: "no id"}), store.ErrInvalidID)

	got, err := s.Suites().Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Users API", got.Name)
	assert.Equal(t, "smoke", got.Description)

	got.Name = "Renamed"
	require.NoError(t, s.Suites().Update(ctx, got))
	again, err := s.Suites().Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", again.Name)
	assert.True(t, again.CreatedAt.Equal(suite.CreatedAt), "update keeps creation time")

	assert.ErrorIs(t, s.Suites().Update(ctx, &apitest.Suite{ID: "missing", Name: "x"}), store.ErrNotFound)

	require.NoError(t, s.Suites().Delete(ctx, "s1"))
	_, err = s.Suites().Get(ctx, "s1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.Suites().Delete(ctx, "s1"), store.ErrNotFound)
}

func testSuiteDeleteCascades(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Suites().Create(ctx, &apitest.Suite{ID: "s1", Name: "one"}))
	require.NoError(t, s.Suites().Create(ctx, &apitest.Suite{ID: "s2", Name: "two"}))
	require.NoError(t, s.Tests().Create(ctx, &apitest.Test{ID: "t1", SuiteID: "s1", Name: "a", URL: "http://x"}))
	require.NoError(t, s.Tests().Create(ctx, &apitest.Test{ID: "t2", SuiteID: "s2", Name: "b", URL: "http://x"}))
	require.NoError(t, s.Runs().Save(ctx, &apitest.Run{ID: "r1", SuiteID: "s1", Status: apitest.RunPassed, StartedAt: time.Now()}))

	require.NoError(t, s.Suites().Delete(ctx, "s1"))

	_, err := s.Tests().Get(ctx, "t1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.Runs().Get(ctx, "r1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.Tests().Get(ctx, "t2")
	assert.NoError(t, err, "other suites are untouched")
}

func testTests(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Suites().Create(ctx, &apitest.Suite{ID: "s1", Name: "one"}))

	err := s.Tests().Create(ctx, &apitest.Test{ID: "orphan", SuiteID: "nope", Name: "x", URL: "http://x"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	second := &apitest.Test{
		ID: "t2", SuiteID: "s1", Name: "second", Method: "POST", URL: "http://x/users",
		Headers: map[string]string{"X-Trace": "1"}, Body: `{"a":1}`, Order: 2,
		Assertions: []apitest.Assertion{{Type: apitest.AssertStatus, Expected: float64(201)}},
	}
	first := &apitest.Test{ID: "t1", SuiteID: "s1", Name: "first", URL: "http://x", Order: 1}
	require.NoError(t, s.Tests().Create(ctx, second))
	require.NoError(t, s.Tests().Create(ctx, first))

	list, err := s.Tests().ListBySuite(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "t1", list[0].ID)
	assert.Equal(t, "t2", list[1].ID)
	assert.Equal(t, "1", list[1].Headers["X-Trace"])
	require.Len(t, list[1].Assertions, 1)
	assert.Equal(t, apitest.AssertStatus, list[1].Assertions[0].Type)
	assert.EqualValues(t, 201, list[1].Assertions[0].Expected)

	empty, err := s.Tests().ListBySuite(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, empty)

	disabled := false
	first.Enabled = &disabled
	first.SuiteID = "ignored"
	require.NoError(t, s.Tests().Update(ctx, first))
	got, err := s.Tests().Get(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, got.IsEnabled())
	assert.Equal(t, "s1", got.SuiteID, "a test cannot move between suites")

	require.NoError(t, s.Tests().Delete(ctx, "t1"))
	assert.ErrorIs(t, s.Tests().Delete(ctx, "t1"), store.ErrNotFound)
}

func testEnvironments(t *testing.T, s store.Store) {
	ctx := context.Background()
	staging := &apitest.Environment{ID: "e1", Name: "staging", Variables: map[string]string{"baseUrl": "https://staging"}}
	require.NoError(t, s.Environments().Create(ctx, staging))
	require.NoError(t, s.Environments().Create(ctx, &apitest.Environment{ID: "e2", Name: "local"}))

	assert.ErrorIs(t, s.Environments().Create(ctx, &apitest.Environment{ID: "e3", Name: "Staging"}), store.ErrAlreadyExists)

	list, err := s.Environments().List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "local", list[0].Name)

	got, err := s.Environments().Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "https://staging", got.Variables["baseUrl"])

	got.Name = "local"
	assert.ErrorIs(t, s.Environments().Update(ctx, got), store.ErrAlreadyExists)
	got.Name = "stage"
	require.NoError(t, s.Environments().Update(ctx, got))

	require.NoError(t, s.Environments().Delete(ctx, "e1"))
	_, err = s.Environments().Get(ctx, "e1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testEndpoints(t *testing.T, s store.Store) {
	ctx := context.Background()
	ep := &mock.Endpoint{
		ID: "m1", Method: "GET", Path: "/users/:id", StatusCode: 200,
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    `{"id":"{{params.id}}"}`, Priority: 3,
	}
	require.NoError(t, s.Endpoints().Create(ctx, ep))
	require.NoError(t, s.Endpoints().Create(ctx, &mock.Endpoint{ID: "m2", Path: "/health"}))
	assert.ErrorIs(t, s.Endpoints().Create(ctx, &mock.Endpoint{ID: "m1", Path: "/x"}), store.ErrAlreadyExists)

	list, err := s.Endpoints().List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "m1", list[0].ID)

	got, err := s.Endpoints().Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"{{params.id}}"}`, got.Body)
	assert.Equal(t, 3, got.Priority)

	got.StatusCode = 404
	require.NoError(t, s.Endpoints().Update(ctx, got))
	got, err = s.Endpoints().Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 404, got.StatusCode)

	require.NoError(t, s.Endpoints().Delete(ctx, "m2"))
	assert.ErrorIs(t, s.Endpoints().Delete(ctx, "m2"), store.ErrNotFound)
}

func testRuns(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Suites().Create(ctx, &apitest.Suite{ID: "s1", Name: "one"}))
	require.NoError(t, s.Suites().Create(ctx, &apitest.Suite{ID: "s2", Name: "two"}))

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"r1", "r2", "r3", "r4"} {
		run := &apitest.Run{ID: id, SuiteID: "s1", Status: apitest.RunRunning, StartedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, s.Runs().Save(ctx, run))
	}
	require.NoError(t, s.Runs().Save(ctx, &apitest.Run{ID: "other", SuiteID: "s2", Status: apitest.RunPassed, StartedAt: base}))

	final := &apitest.Run{
		ID: "r4", SuiteID: "s1", Status: apitest.RunFailed, StartedAt: base.Add(3 * time.Minute),
		FinishedAt: base.Add(4 * time.Minute), Total: 1, Failed: 1,
		Results: []apitest.Result{{TestName: "a", Method: "GET", URL: "http://x", StatusCode: 500}},
	}
	require.NoError(t, s.Runs().Save(ctx, final))

	got, err := s.Runs().Get(ctx, "r4")
	require.NoError(t, err)
	assert.Equal(t, apitest.RunFailed, got.Status)
	require.Len(t, got.Results, 1)
	assert.Equal(t, 500, got.Results[0].StatusCode)

	list, err := s.Runs().List(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "r4", list[0].ID)
	assert.Equal(t, "r3", list[1].ID)

	all, err := s.Runs().List(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	removed, err := s.Runs().Prune(ctx, "s1", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	list, err = s.Runs().List(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "r4", list[0].ID)
	assert.Equal(t, "r3", list[1].ID)

	_, err = s.Runs().Get(ctx, "other")
	assert.NoError(t, err, "pruning one suite leaves others alone")

	removed, err = s.Runs().Prune(ctx, "s1", 10)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()
	n, err := s.Users().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	u := &auth.User{ID: "u1", Email: "ada@example.com", Name: "Ada", Role: auth.RoleAdmin, PasswordHash: "hash"}
	require.NoError(t, s.Users().Create(ctx, u))
	assert.ErrorIs(t, s.Users().Create(ctx, &auth.User{ID: "u2", Email: "ADA@example.com", Role: auth.RoleViewer}), store.ErrAlreadyExists)

	got, err := s.Users().GetByEmail(ctx, "Ada@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)
	assert.Equal(t, "hash", got.PasswordHash)

	_, err = s.Users().GetByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)

	got.Role = auth.RoleEditor
	require.NoError(t, s.Users().Update(ctx, got))
	got, err = s.Users().Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleEditor, got.Role)

	n, err = s.Users().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.Users().Delete(ctx, "u1"))
	list, err := s.Users().List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testChangeListener(t *testing.T, s store.Store) {
	ctx := context.Background()
	var (
		mu     sync.Mutex
		events []store.ChangeEvent
	)
	s.AddChangeListener(func(e store.ChangeEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	})

	require.NoError(t, s.Endpoints().Create(ctx, &mock.Endpoint{ID: "m1", Path: "/x"}))
	require.NoError(t, s.Endpoints().Delete(ctx, "m1"))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 2
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	ops := map[string]bool{}
	for _, e := range events {
		assert.Equal(t, store.CollectionEndpoints, e.Collection)
		assert.Equal(t, "m1", e.ID)
		ops[e.Operation] = true
	}
	assert.True(t, ops[store.OpCreate])
	assert.True(t, ops[store.OpDelete])
}
