// Package storage persists processed webhook event ids in SQLite so
// that redelivered events are recognized and skipped.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver for database/sql

	"github.com/artofyoga/messenger-bot-go/internal/config"
	apperrors "github.com/artofyoga/messenger-bot-go/internal/errors"
)

// DB wraps the SQLite database connection.
type DB struct {
	conn *sql.DB
	path string
}

// New creates a new database connection and initializes the schema.
func New(dbPath string) (*DB, error) {
	// Ensure directory exists (skip for in-memory database)
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(time.Hour)

	// Enable WAL mode for better concurrency
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	busyMillis := config.DatabaseBusyTimeout.Milliseconds()
	if _, err := conn.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", busyMillis)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := conn.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn, path: dbPath}

	if err := db.initSchema(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

func (db *DB) initSchema() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS processed_events (
			event_id     TEXT PRIMARY KEY,
			sender_id    TEXT NOT NULL,
			processed_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_processed_events_processed_at
			ON processed_events(processed_at);
	`)
	return err
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// MarkProcessed records an event id as processed. It returns
// ErrDuplicateEvent if the id was already recorded, which callers use
// to skip redelivered events.
func (db *DB) MarkProcessed(ctx context.Context, eventID, senderID string) error {
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO processed_events (event_id, sender_id, processed_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(event_id) DO NOTHING`,
		eventID, senderID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.ErrDuplicateEvent
	}
	return nil
}

// Cleanup deletes processed-event records older than the retention
// window and returns the number of rows removed.
func (db *DB) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).Unix()

	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM processed_events WHERE processed_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up processed events: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of recorded events.
func (db *DB) Count(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM processed_events`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count processed events: %w", err)
	}
	return count, nil
}

// Ready reports whether the database is reachable. Used by the
// readiness endpoint.
func (db *DB) Ready(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}
