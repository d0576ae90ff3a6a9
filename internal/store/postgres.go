package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// OpenPostgresHistory connects to dsn, creates the app_state table if needed and
// returns a History backed by it.
func OpenPostgresHistory(ctx context.Context, dsn string, logger *zap.Logger) (*History, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS app_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create app_state table: %w", err)
	}

	return newHistory(&postgresKV{pool: pool}, logger), nil
}

type postgresKV struct {
	pool *pgxpool.Pool
}

func (p *postgresKV) read(ctx context.Context) (string, string, error) {
	searchType, err := p.get(ctx, keySearchType)
	if err != nil || searchType == "" {
		return "", "", err
	}
	value, err := p.get(ctx, keyLastSearch)
	if err != nil {
		return "", "", err
	}
	return searchType, value, nil
}

func (p *postgresKV) get(ctx context.Context, key string) (string, error) {
	var value string
	err := p.pool.QueryRow(ctx, `SELECT value FROM app_state WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return value, nil
}

func (p *postgresKV) write(ctx context.Context, searchType, value string) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if searchType == "" {
		if _, err := tx.Exec(ctx, `DELETE FROM app_state WHERE key IN ($1, $2)`, keySearchType, keyLastSearch); err != nil {
			return fmt.Errorf("clear last search: %w", err)
		}
		return tx.Commit(ctx)
	}

	now := time.Now().UTC()
	for _, kv := range [][2]string{{keySearchType, searchType}, {keyLastSearch, value}} {
		_, err := tx.Exec(ctx,
			`INSERT INTO app_state(key, value, updated_at)
			 VALUES ($1, $2, $3)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			kv[0], kv[1], now,
		)
		if err != nil {
			return fmt.Errorf("upsert %s: %w", kv[0], err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (p *postgresKV) close() error {
	p.pool.Close()
	return nil
}
