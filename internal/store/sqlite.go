package store

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteMedium is the default durable medium: a single-file SQLite
// database holding one key-value table.
type SQLiteMedium struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at the given path and
// configures WAL mode.
func NewSQLite(dsn string) (*SQLiteMedium, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}

	m := &SQLiteMedium{db: db}
	if err := m.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

func (m *SQLiteMedium) migrate(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (m *SQLiteMedium) Close() error {
	return m.db.Close()
}

func (m *SQLiteMedium) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := m.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE key = ?`, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrapf(err, "sqlite: get %s", key)
	}
	return value, true, nil
}

func (m *SQLiteMedium) Set(ctx context.Context, key string, value []byte) error {
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, datetime('now'))
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value,
	)
	return eris.Wrapf(err, "sqlite: set %s", key)
}

func (m *SQLiteMedium) Delete(ctx context.Context, key string) error {
	_, err := m.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return eris.Wrapf(err, "sqlite: delete %s", key)
}

// Probe writes and removes a sentinel key to verify the medium accepts
// writes right now.
func (m *SQLiteMedium) Probe(ctx context.Context) error {
	const sentinel = "__soiltales_probe__"
	if err := m.Set(ctx, sentinel, []byte("1")); err != nil {
		return eris.Wrap(err, "sqlite: probe write")
	}
	if err := m.Delete(ctx, sentinel); err != nil {
		return eris.Wrap(err, "sqlite: probe cleanup")
	}
	return nil
}

// Usage sums the stored payload bytes.
func (m *SQLiteMedium) Usage(ctx context.Context) (int64, error) {
	var used sql.NullInt64
	err := m.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(LENGTH(value)), 0) FROM kv`,
	).Scan(&used)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: usage")
	}
	return used.Int64, nil
}
