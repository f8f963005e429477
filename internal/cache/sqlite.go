package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite is a Store backed by a local SQLite file, letting cached
// transcripts outlive the process. Job state never touches this database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at dbPath and runs migrations.
// ":memory:" is accepted for tests.
func NewSQLite(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// WAL mode for better concurrent read performance.
	if _, err = db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &SQLite{db: db}
	if err = s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS transcripts (
			digest     TEXT PRIMARY KEY,
			text       TEXT NOT NULL,
			expires_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_transcripts_expires_at ON transcripts(expires_at);
	`)
	return err
}

func (s *SQLite) Lookup(ctx context.Context, digest string) (string, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT text FROM transcripts WHERE digest = ? AND expires_at > ?
	`, digest, time.Now().UTC())

	var text string
	err := row.Scan(&text)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup transcript %s: %w", digest, err)
	}
	return text, true, nil
}

func (s *SQLite) Put(ctx context.Context, digest, text string, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transcripts (digest, text, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(digest) DO UPDATE SET text = excluded.text, expires_at = excluded.expires_at
	`, digest, text, time.Now().UTC().Add(ttl))
	if err != nil {
		return fmt.Errorf("put transcript %s: %w", digest, err)
	}
	return nil
}

func (s *SQLite) Purge(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM transcripts WHERE expires_at <= ?
	`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge transcripts: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}
