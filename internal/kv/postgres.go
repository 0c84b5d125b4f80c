package kv

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/warehouse-ops/internal/database"
)

// Postgres keeps collections in the kv_store table created by
// migrations/000001_create_kv_store.up.sql.
type Postgres struct {
	db   *sql.DB
	opts database.TxOptions
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, opts: database.DefaultTxOptions()}
}

func (p *Postgres) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	err := p.db.QueryRowContext(ctx,
		`SELECT value::text FROM kv_store WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get key %s: %w", key, err)
	}
	return []byte(value), true, nil
}

func (p *Postgres) Put(ctx context.Context, key string, value []byte) error {
	return database.WithRetry(ctx, p.db, p.opts, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO kv_store (key, value, updated_at)
			 VALUES ($1, $2::jsonb, NOW())
			 ON CONFLICT (key) DO UPDATE
			 SET value = EXCLUDED.value, updated_at = NOW()`,
			key, string(value))
		if err != nil {
			return fmt.Errorf("put key %s: %w", key, err)
		}
		return nil
	})
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM kv_store WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete key %s: %w", key, err)
	}
	return nil
}
