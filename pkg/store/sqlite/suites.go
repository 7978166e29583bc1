package sqlite

import (
	"context"
	"database/sql"

	"github.com/getmockd/apilab/pkg/apitest"
	"github.com/getmockd/apilab/pkg/store"
)

type suiteStore struct{ s *Store }

func (st *suiteStore) List(ctx context.Context) ([]*apitest.Suite, error) {
	return listDocs[apitest.Suite](ctx, st.s.db, `SELECT doc FROM suites ORDER BY created_at, rowid`)
}

func (st *suiteStore) Get(ctx context.Context, id string) (*apitest.Suite, error) {
	return getDoc[apitest.Suite](ctx, st.s.db, `SELECT doc FROM suites WHERE id = ?`, id)
}

func (st *suiteStore) Create(ctx context.Context, suite *apitest.Suite) error {
	if suite.ID == "" {
		return store.ErrInvalidID
	}
	if err := st.s.checkWritable(); err != nil {
		return err
	}
	stamp(&suite.CreatedAt, &suite.UpdatedAt)
	doc, err := encode(suite)
	if err != nil {
		return err
	}
	_, err = st.s.db.ExecContext(ctx,
		`INSERT INTO suites (id, created_at, doc) VALUES (?, ?, ?)`,
		suite.ID, suite.CreatedAt.UnixNano(), doc)
	if err != nil {
		return mapError(err)
	}
	st.s.listeners.Notify(store.CollectionSuites, store.OpCreate, suite.ID, suite)
	return nil
}

func (st *suiteStore) Update(ctx context.Context, suite *apitest.Suite) error {
	if err := st.s.checkWritable(); err != nil {
		return err
	}
	err := st.s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := getDoc[apitest.Suite](ctx, tx, `SELECT doc FROM suites WHERE id = ?`, suite.ID)
		if err != nil {
			return err
		}
		suite.CreatedAt = existing.CreatedAt
		stamp(&suite.CreatedAt, &suite.UpdatedAt)
		doc, err := encode(suite)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE suites SET doc = ? WHERE id = ?`, doc, suite.ID)
		return mapError(err)
	})
	if err != nil {
		return err
	}
	st.s.listeners.Notify(store.CollectionSuites, store.OpUpdate, suite.ID, suite)
	return nil
}

// Delete removes the suite; foreign keys cascade to its tests and runs.
func (st *suiteStore) Delete(ctx context.Context, id string) error {
	if err := st.s.checkWritable(); err != nil {
		return err
	}
	res, err := st.s.db.ExecContext(ctx, `DELETE FROM suites WHERE id = ?`, id)
	if err != nil {
		return mapError(err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	st.s.listeners.Notify(store.CollectionSuites, store.OpDelete, id, nil)
	return nil
}

type testStore struct{ s *Store }

func (st *testStore) ListBySuite(ctx context.Context, suiteID string) ([]*apitest.Test, error) {
	return listDocs[apitest.Test](ctx, st.s.db,
		`SELECT doc FROM tests WHERE suite_id = ? ORDER BY ord, created_at, rowid`, suiteID)
}

func (st *testStore) Get(ctx context.Context, id string) (*apitest.Test, error) {
	return getDoc[apitest.Test](ctx, st.s.db, `SELECT doc FROM tests WHERE id = ?`, id)
}

func (st *testStore) Create(ctx context.Context, t *apitest.Test) error {
	if t.ID == "" {
		return store.ErrInvalidID
	}
	if err := st.s.checkWritable(); err != nil {
		return err
	}
	stamp(&t.CreatedAt, &t.UpdatedAt)
	doc, err := encode(t)
	if err != nil {
		return err
	}
	_, err = st.s.db.ExecContext(ctx,
		`INSERT INTO tests (id, suite_id, ord, created_at, doc) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.SuiteID, t.Order, t.CreatedAt.UnixNano(), doc)
	if err != nil {
		return mapError(err)
	}
	st.s.listeners.Notify(store.CollectionTests, store.OpCreate, t.ID, t)
	return nil
}

func (st *testStore) Update(ctx context.Context, t *apitest.Test) error {
	if err := st.s.checkWritable(); err != nil {
		return err
	}
	err := st.s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := getDoc[apitest.Test](ctx, tx, `SELECT doc FROM tests WHERE id = ?`, t.ID)
		if err != nil {
			return err
		}
		t.SuiteID = existing.SuiteID
		t.CreatedAt = existing.CreatedAt
		stamp(&t.CreatedAt, &t.UpdatedAt)
		doc, err := encode(t)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE tests SET ord = ?, doc = ? WHERE id = ?`, t.Order, doc, t.ID)
		return mapError(err)
	})
	if err != nil {
		return err
	}
	st.s.listeners.Notify(store.CollectionTests, store.OpUpdate, t.ID, t)
	return nil
}

func (st *testStore) Delete(ctx context.Context, id string) error {
	if err := st.s.checkWritable(); err != nil {
		return err
	}
	res, err := st.s.db.ExecContext(ctx, `DELETE FROM tests WHERE id = ?`, id)
	if err != nil {
		return mapError(err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	st.s.listeners.Notify(store.CollectionTests, store.OpDelete, id, nil)
	return nil
}
