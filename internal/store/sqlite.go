// Package store persists the bot's operational state to SQLite: an
// append-only audit trail of handled commands and the last-seen pending-node
// snapshot, so restarts do not re-announce nodes the bot already reported.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists audit rows and the pending-node snapshot
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at the given path
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for better concurrent write performance
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS audit (
			id TEXT PRIMARY KEY,
			intent TEXT NOT NULL,
			command TEXT NOT NULL,
			username TEXT NOT NULL,
			channel TEXT NOT NULL,
			handled_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create audit table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS pending_nodes (
			name TEXT PRIMARY KEY,
			node_id TEXT NOT NULL,
			seen_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create pending table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// AuditRecord is one handled command
type AuditRecord struct {
	ID        string
	Intent    string
	Command   string
	Username  string
	Channel   string
	HandledAt time.Time
}

// RecordCommand appends one audit row
func (s *SQLiteStore) RecordCommand(r *AuditRecord) error {
	handledAt := r.HandledAt
	if handledAt.IsZero() {
		handledAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO audit (id, intent, command, username, channel, handled_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.ID, r.Intent, r.Command, r.Username, r.Channel, handledAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to record command: %w", err)
	}
	return nil
}

// RecentCommands returns the latest audit rows, newest first
func (s *SQLiteStore) RecentCommands(limit int) ([]*AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, intent, command, username, channel, handled_at
		FROM audit
		ORDER BY handled_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit rows: %w", err)
	}
	defer rows.Close()

	var records []*AuditRecord
	for rows.Next() {
		var r AuditRecord
		var handledAt int64
		if err := rows.Scan(&r.ID, &r.Intent, &r.Command, &r.Username, &r.Channel, &handledAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}
		r.HandledAt = time.Unix(handledAt, 0)
		records = append(records, &r)
	}
	return records, rows.Err()
}

// CleanOldAudit removes audit rows older than maxAge
func (s *SQLiteStore) CleanOldAudit(maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).Unix()
	result, err := s.db.Exec(`DELETE FROM audit WHERE handled_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// SavePendingSnapshot replaces the stored pending-node set wholesale
func (s *SQLiteStore) SavePendingSnapshot(nameIDs map[string]string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM pending_nodes`); err != nil {
		return fmt.Errorf("failed to clear pending snapshot: %w", err)
	}

	now := time.Now().Unix()
	for name, id := range nameIDs {
		if _, err := tx.Exec(`
			INSERT INTO pending_nodes (name, node_id, seen_at) VALUES (?, ?, ?)
		`, name, id, now); err != nil {
			return fmt.Errorf("failed to save pending node %q: %w", name, err)
		}
	}
	return tx.Commit()
}

// LoadPendingSnapshot returns the stored pending-node set
func (s *SQLiteStore) LoadPendingSnapshot() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT name, node_id FROM pending_nodes`)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending snapshot: %w", err)
	}
	defer rows.Close()

	nameIDs := make(map[string]string)
	for rows.Next() {
		var name, id string
		if err := rows.Scan(&name, &id); err != nil {
			return nil, fmt.Errorf("failed to scan pending row: %w", err)
		}
		nameIDs[name] = id
	}
	return nameIDs, rows.Err()
}

// DefaultDBPath returns the default database path
func DefaultDBPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".lanternbot", "lanternbot.db")
}
