package sqlite

import (
	"context"
	"database/sql"

	"github.com/getmockd/apilab/pkg/apitest"
	"github.com/getmockd/apilab/pkg/auth"
	"github.com/getmockd/apilab/pkg/store"
)

type runStore struct{ s *Store }

// nullable stores ad-hoc runs, which have no suite, as NULL so the foreign
// key does not apply.
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (st *runStore) List(ctx context.Context, suiteID string, limit int) ([]*apitest.Run, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	if suiteID == "" {
		return listDocs[apitest.Run](ctx, st.s.db,
			`SELECT doc FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	}
	return listDocs[apitest.Run](ctx, st.s.db,
		`SELECT doc FROM runs WHERE suite_id = ? ORDER BY started_at DESC, rowid DESC LIMIT ?`, suiteID, limit)
}

func (st *runStore) Get(ctx context.Context, id string) (*apitest.Run, error) {
	return getDoc[apitest.Run](ctx, st.s.db, `SELECT doc FROM runs WHERE id = ?`, id)
}

func (st *runStore) Save(ctx context.Context, run *apitest.Run) error {
	if run.ID == "" {
		return store.ErrInvalidID
	}
	if err := st.s.checkWritable(); err != nil {
		return err
	}
	doc, err := encode(run)
	if err != nil {
		return err
	}
	op := store.OpCreate
	err = st.s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, run.ID).Scan(&exists); err != nil {
			return err
		}
		if exists > 0 {
			op = store.OpUpdate
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO runs (id, suite_id, started_at, doc) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET suite_id = excluded.suite_id,
				started_at = excluded.started_at, doc = excluded.doc`,
			run.ID, nullable(run.SuiteID), run.StartedAt.UnixNano(), doc)
		return mapError(err)
	})
	if err != nil {
		return err
	}
	st.s.listeners.Notify(store.CollectionRuns, op, run.ID, run)
	return nil
}

func (st *runStore) Prune(ctx context.Context, suiteID string, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	if err := st.s.checkWritable(); err != nil {
		return 0, err
	}
	var ids []string
	err := st.s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id FROM runs WHERE suite_id = ?
			ORDER BY started_at DESC, rowid DESC LIMIT -1 OFFSET ?`, suiteID, keep)
		if err != nil {
			return err
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, mapError(err)
	}
	for _, id := range ids {
		st.s.listeners.Notify(store.CollectionRuns, store.OpDelete, id, nil)
	}
	return len(ids), nil
}

type userStore struct{ s *Store }

func (st *userStore) List(ctx context.Context) ([]*auth.User, error) {
	return listDocs[auth.User](ctx, st.s.db, `SELECT doc FROM users ORDER BY created_at, rowid`)
}

func (st *userStore) Get(ctx context.Context, id string) (*auth.User, error) {
	return getDoc[auth.User](ctx, st.s.db, `SELECT doc FROM users WHERE id = ?`, id)
}

func (st *userStore) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	return getDoc[auth.User](ctx, st.s.db, `SELECT doc FROM users WHERE lower(email) = ?`, auth.NormalizeEmail(email))
}

func (st *userStore) Create(ctx context.Context, u *auth.User) error {
	if u.ID == "" {
		return store.ErrInvalidID
	}
	if err := st.s.checkWritable(); err != nil {
		return err
	}
	stamp(&u.CreatedAt, &u.UpdatedAt)
	doc, err := encode(u)
	if err != nil {
		return err
	}
	_, err = st.s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, created_at, doc) VALUES (?, ?, ?, ?)`,
		u.ID, u.Email, u.CreatedAt.UnixNano(), doc)
	if err != nil {
		return mapError(err)
	}
	st.s.listeners.Notify(store.CollectionUsers, store.OpCreate, u.ID, u.Public())
	return nil
}

func (st *userStore) Update(ctx context.Context, u *auth.User) error {
	if err := st.s.checkWritable(); err != nil {
		return err
	}
	err := st.s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := getDoc[auth.User](ctx, tx, `SELECT doc FROM users WHERE id = ?`, u.ID)
		if err != nil {
			return err
		}
		u.CreatedAt = existing.CreatedAt
		stamp(&u.CreatedAt, &u.UpdatedAt)
		doc, err := encode(u)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE users SET email = ?, doc = ? WHERE id = ?`, u.Email, doc, u.ID)
		return mapError(err)
	})
	if err != nil {
		return err
	}
	st.s.listeners.Notify(store.CollectionUsers, store.OpUpdate, u.ID, u.Public())
	return nil
}

func (st *userStore) Delete(ctx context.Context, id string) error {
	if err := st.s.checkWritable(); err != nil {
		return err
	}
	res, err := st.s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return mapError(err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	st.s.listeners.Notify(store.CollectionUsers, store.OpDelete, id, nil)
	return nil
}

func (st *userStore) Count(ctx context.Context) (int, error) {
	var n int
	err := st.s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}
