package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/pill-monitor/internal/errs"
)

// KVRepo implements repository.KVRepository over the kv_store table.
type KVRepo struct{ db *DB }

// NewKVRepo constructs a key-value repository.
func NewKVRepo(db *DB) *KVRepo { return &KVRepo{db: db} }

const upsertKV = `
INSERT INTO kv_store (key, value, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`

// Load selects the document stored under key.
func (r *KVRepo) Load(ctx context.Context, key string) ([]byte, error) {
	const q = `SELECT value FROM kv_store WHERE key=$1`
	var v []byte
	if err := r.db.Pool.QueryRow(ctx, q, key).Scan(&v); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return v, nil
}

// Save upserts a single document.
func (r *KVRepo) Save(ctx context.Context, key string, value []byte) error {
	_, err := r.db.Pool.Exec(ctx, upsertKV, key, value)
	return err
}

// SaveAll upserts every document in one transaction.
func (r *KVRepo) SaveAll(ctx context.Context, docs map[string][]byte) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		err = tx.Commit(ctx)
	}()

	for k, v := range docs {
		if _, err = tx.Exec(ctx, upsertKV, k, v); err != nil {
			return err
		}
	}
	return nil
}
