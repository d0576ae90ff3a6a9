package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SchemaVersion is the latest schema version supported by the migrator.
const SchemaVersion = 1

// Migrate ensures the SQLite schema exists and is upgraded to SchemaVersion.
func Migrate(db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("migrate: db is nil")
	}

	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY);`)
	if err != nil {
		return fmt.Errorf("migrate: create schema_migrations: %w", err)
	}

	var current int
	err = db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations;`).Scan(&current)
	if err != nil {
		return fmt.Errorf("migrate: read current version: %w", err)
	}
	if current >= SchemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migrate: begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS app_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate: create app_state table: %w", err)
	}

	_, err = tx.Exec(`INSERT INTO schema_migrations(version) VALUES (?);`, SchemaVersion)
	if err != nil {
		return fmt.Errorf("migrate: record schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate: commit transaction: %w", err)
	}
	return nil
}

// OpenSQLiteHistory opens (or creates) the SQLite database at path and returns a
// History backed by it.
func OpenSQLiteHistory(path string, logger *zap.Logger) (*History, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single connection serializes writers and keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)

	h, err := NewSQLiteHistory(db, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return h, nil
}

// NewSQLiteHistory migrates db and returns a History bound to it.
func NewSQLiteHistory(db *sql.DB, logger *zap.Logger) (*History, error) {
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return newHistory(&sqliteKV{db: db}, logger), nil
}

type sqliteKV struct {
	db *sql.DB
}

func (s *sqliteKV) read(ctx context.Context) (string, string, error) {
	searchType, err := s.get(ctx, keySearchType)
	if err != nil {
		return "", "", err
	}
	if searchType == "" {
		return "", "", nil
	}
	value, err := s.get(ctx, keyLastSearch)
	if err != nil {
		return "", "", err
	}
	return searchType, value, nil
}

func (s *sqliteKV) get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM app_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return value, nil
}

func (s *sqliteKV) write(ctx context.Context, searchType, value string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if searchType == "" {
		if _, err := tx.ExecContext(ctx, `DELETE FROM app_state WHERE key IN (?, ?)`, keySearchType, keyLastSearch); err != nil {
			return fmt.Errorf("clear last search: %w", err)
		}
		return tx.Commit()
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, kv := range [][2]string{{keySearchType, searchType}, {keyLastSearch, value}} {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO app_state(key, value, updated_at)
			 VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			kv[0], kv[1], now,
		)
		if err != nil {
			return fmt.Errorf("upsert %s: %w", kv[0], err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *sqliteKV) close() error {
	return s.db.Close()
}
