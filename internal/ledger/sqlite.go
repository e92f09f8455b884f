package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists the delivered set in a local SQLite database. Useful
// once the ledger grows past what a rewrite-the-whole-file JSON document
// handles comfortably.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the ledger database at path.
// Pass ":memory:" for an in-memory store (used by tests).
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating ledger directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging ledger database: %w", err)
	}

	// Limit to a single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS sent_leads (
		person_id TEXT PRIMARY KEY,
		delivered_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating sent_leads table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load reads all delivered person IDs.
func (s *SQLiteStore) Load(ctx context.Context) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	rows, err := s.db.QueryContext(ctx, "SELECT person_id FROM sent_leads")
	if err != nil {
		return out, fmt.Errorf("loading ledger: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return out, fmt.Errorf("scanning ledger row: %w", err)
		}
		out[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return out, fmt.Errorf("iterating ledger rows: %w", err)
	}
	return out, nil
}

// Append inserts the ids, ignoring ones already present. All-or-nothing per
// batch so a partial write cannot mark half a batch as delivered.
func (s *SQLiteStore) Append(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning ledger append: %w", err)
	}
	now := time.Now().UTC()
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO sent_leads (person_id, delivered_at) VALUES (?, ?)", id, now,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("appending %s to ledger: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing ledger append: %w", err)
	}
	return nil
}

// Clear drops all delivered IDs. Operator action only.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM sent_leads")
	return err
}
