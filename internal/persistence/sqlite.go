package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteOptions configures SQLiteBackend.
type SQLiteOptions struct {
	Path string `mapstructure:"path"`
}

// SQLiteBackend persists values in a single key/value table.
type SQLiteBackend struct {
	sqlDB *sql.DB
}

const createCombatStateTable = `
CREATE TABLE IF NOT EXISTS combat_state (
    key TEXT PRIMARY KEY,
    hp TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);`

// OpenSQLite opens (or creates) a SQLite database at path.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite backend requires 'path' option")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(createCombatStateTable); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ensure combat_state table: %w", err)
	}
	return &SQLiteBackend{sqlDB: sqlDB}, nil
}

func newSQLiteBackendFromOptions(options map[string]any, _ Deps) (Backend, error) {
	var opts SQLiteOptions
	if err := decodeOptions(options, &opts); err != nil {
		return nil, err
	}
	return OpenSQLite(opts.Path)
}

func (s *SQLiteBackend) Name() string { return "sqlite" }

func (s *SQLiteBackend) Load(ctx context.Context, key string) (int, error) {
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	var raw string
	err := s.sqlDB.QueryRowContext(ctx, `SELECT hp FROM combat_state WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return 0, fmt.Errorf("load combat state: %w", err)
	}
	return parseHP(raw)
}

func (s *SQLiteBackend) Save(ctx context.Context, key string, hp int) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO combat_state (key, hp, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET hp = excluded.hp, updated_at = excluded.updated_at`,
		key,
		formatHP(hp),
		time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save combat state: %w", err)
	}
	return nil
}

// Close closes the SQLite handle.
func (s *SQLiteBackend) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}
