package sqlite

import (
	"context"
	"database/sql"

	"github.com/getmockd/apilab/pkg/apitest"
	"github.com/getmockd/apilab/pkg/mock"
	"github.com/getmockd/apilab/pkg/store"
)

type environmentStore struct{ s *Store }

func (st *environmentStore) List(ctx context.Context) ([]*apitest.Environment, error) {
	return listDocs[apitest.Environment](ctx, st.s.db, `SELECT doc FROM environments ORDER BY name`)
}

func (st *environmentStore) Get(ctx context.Context, id string) (*apitest.Environment, error) {
	return getDoc[apitest.Environment](ctx, st.s.db, `SELECT doc FROM environments WHERE id = ?`, id)
}

func (st *environmentStore) Create(ctx context.Context, e *apitest.Environment) error {
	if e.ID == "" {
		return store.ErrInvalidID
	}
	if err := st.s.checkWritable(); err != nil {
		return err
	}
	stamp(&e.CreatedAt, &e.UpdatedAt)
	doc, err := encode(e)
	if err != nil {
		return err
	}
	_, err = st.s.db.ExecContext(ctx,
		`INSERT INTO environments (id, name, created_at, doc) VALUES (?, ?, ?, ?)`,
		e.ID, e.Name, e.CreatedAt.UnixNano(), doc)
	if err != nil {
		return mapError(err)
	}
	st.s.listeners.Notify(store.CollectionEnvironments, store.OpCreate, e.ID, e)
	return nil
}

func (st *environmentStore) Update(ctx context.Context, e *apitest.Environment) error {
	if err := st.s.checkWritable(); err != nil {
		return err
	}
	err := st.s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := getDoc[apitest.Environment](ctx, tx, `SELECT doc FROM environments WHERE id = ?`, e.ID)
		if err != nil {
			return err
		}
		e.CreatedAt = existing.CreatedAt
		stamp(&e.CreatedAt, &e.UpdatedAt)
		doc, err := encode(e)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE environments SET name = ?, doc = ? WHERE id = ?`, e.Name, doc, e.ID)
		return mapError(err)
	})
	if err != nil {
		return err
	}
	st.s.listeners.Notify(store.CollectionEnvironments, store.OpUpdate, e.ID, e)
	return nil
}

func (st *environmentStore) Delete(ctx context.Context, id string) error {
	if err := st.s.checkWritable(); err != nil {
		return err
	}
	res, err := st.s.db.ExecContext(ctx, `DELETE FROM environments WHERE id = ?`, id)
	if err != nil {
		return mapError(err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	st.s.listeners.Notify(store.CollectionEnvironments, store.OpDelete, id, nil)
	return nil
}

type endpointStore struct{ s *Store }

func (st *endpointStore) List(ctx context.Context) ([]*mock.Endpoint, error) {
	return listDocs[mock.Endpoint](ctx, st.s.db, `SELECT doc FROM endpoints ORDER BY created_at, rowid`)
}

func (st *endpointStore) Get(ctx context.Context, id string) (*mock.Endpoint, error) {
	return getDoc[mock.Endpoint](ctx, st.s.db, `SELECT doc FROM endpoints WHERE id = ?`, id)
}

func (st *endpointStore) Create(ctx context.Context, e *mock.Endpoint) error {
	if e.ID == "" {
		return store.ErrInvalidID
	}
	if err := st.s.checkWritable(); err != nil {
		return err
	}
	stamp(&e.CreatedAt, &e.UpdatedAt)
	doc, err := encode(e)
	if err != nil {
		return err
	}
	_, err = st.s.db.ExecContext(ctx,
		`INSERT INTO endpoints (id, created_at, doc) VALUES (?, ?, ?)`,
		e.ID, e.CreatedAt.UnixNano(), doc)
	if err != nil {
		return mapError(err)
	}
	st.s.listeners.Notify(store.CollectionEndpoints, store.OpCreate, e.ID, e)
	return nil
}

func (st *endpointStore) Update(ctx context.Context, e *mock.Endpoint) error {
	if err := st.s.checkWritable(); err != nil {
		return err
	}
	err := st.s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := getDoc[mock.Endpoint](ctx, tx, `SELECT doc FROM endpoints WHERE id = ?`, e.ID)
		if err != nil {
			return err
		}
		e.CreatedAt = existing.CreatedAt
		stamp(&e.CreatedAt, &e.UpdatedAt)
		doc, err := encode(e)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE endpoints SET doc = ? WHERE id = ?`, doc, e.ID)
		return mapError(err)
	})
	if err != nil {
		return err
	}
	st.s.listeners.Notify(store.CollectionEndpoints, store.OpUpdate, e.ID, e)
	return nil
}

func (st *endpointStore) Delete(ctx context.Context, id string) error {
	if err := st.s.checkWritable(); err != nil {
		return err
	}
	res, err := st.s.db.ExecContext(ctx, `DELETE FROM endpoints WHERE id = ?`, id)
	if err != nil {
		return mapError(err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	st.s.listeners.Notify(store.CollectionEndpoints, store.OpDelete, id, nil)
	return nil
}
