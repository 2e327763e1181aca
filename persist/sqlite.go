package persist

import (
	"context"
	"database/sql"

	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	db *sql.DB
}

var _ BlobStore = (*sqliteStore)(nil)

// NewSQLite returns a BlobStore backed by a SQLite database at dbPath.
// If dbPath is empty or ":memory:", an in-memory database is used (useful
// for tests; it does not survive restarts).
func NewSQLite(dbPath string) (BlobStore, error) {
	if dbPath == "" {
		dbPath = ":memory:"
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// Enable WAL mode for better concurrent performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS snapshot (
		key TEXT PRIMARY KEY,
		blob BLOB NOT NULL,
		saved_at INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, err
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) ReadAll(ctx context.Context) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, blob FROM snapshot`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string][]byte)
	for rows.Next() {
		var key string
		var blob []byte
		if err := rows.Scan(&key, &blob); err != nil {
			return nil, err
		}
		out[key] = blob
	}
	return out, rows.Err()
}

func (s *sqliteStore) Write(ctx context.Context, key string, blob []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshot (key, blob, saved_at) VALUES (?, ?, unixepoch())
		ON CONFLICT(key) DO UPDATE SET blob = excluded.blob, saved_at = excluded.saved_at`,
		key, blob,
	)
	return err
}

func (s *sqliteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM snapshot WHERE key = ?`, key)
	return err
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
