package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresStorage stores values in the learner_storage table created by
// database.Schema.
type PostgresStorage struct {
	pool  *pgxpool.Pool
	quota int
}

// NewPostgresStorage wraps a migrated pool.
func NewPostgresStorage(pool *pgxpool.Pool, quota int) (*PostgresStorage, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStorage{pool: pool, quota: quota}, nil
}

func (p *PostgresStorage) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var value []byte
	err := p.pool.QueryRow(ctx,
		`SELECT value FROM learner_storage WHERE key = $1`,
		key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

func (p *PostgresStorage) Set(ctx context.Context, key string, value []byte) error {
	if err := checkQuota(value, p.quota); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := p.pool.Exec(ctx,
		`INSERT INTO learner_storage (key, value, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (p *PostgresStorage) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := p.pool.Exec(ctx, `DELETE FROM learner_storage WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (p *PostgresStorage) HealthCheck(ctx context.Context) error {
	return p.pool.Ping(ctx)
}
