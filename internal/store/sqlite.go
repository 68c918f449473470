package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/gatekeeper/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	pruneMu sync.Mutex // serializes deletes to keep SQLITE_BUSY rare
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS moderation_events (
		event_id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		chat_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		messages INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_created ON moderation_events(created_at);
	CREATE INDEX IF NOT EXISTS idx_events_chat ON moderation_events(chat_id, created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RecordEvent stores e. Duplicate ids are ignored.
func (s *SQLiteStore) RecordEvent(ctx context.Context, e domain.Event) error {
	query := `
	INSERT INTO moderation_events
		(event_id, event_type, chat_id, user_id, display_name, reason, messages, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(event_id) DO NOTHING`

	_, err := s.db.ExecContext(ctx, query,
		e.ID, string(e.Type), e.ChatID, e.UserID,
		e.Name, e.Reason, e.Messages, e.At.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert event %s: %w", e.ID, err)
	}
	return nil
}

// Totals counts recorded events per type.
func (s *SQLiteStore) Totals(ctx context.Context) (map[domain.EventType]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_type, COUNT(*) FROM moderation_events GROUP BY event_type`)
	if err != nil {
		return nil, fmt.Errorf("query totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[domain.EventType]int64)
	for rows.Next() {
		var typ string
		var n int64
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, fmt.Errorf("scan totals row: %w", err)
		}
		totals[domain.EventType(typ)] = n
	}
	return totals, rows.Err()
}

// Recent returns the latest events recorded for chatID.
func (s *SQLiteStore) Recent(ctx context.Context, chatID int64, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT event_id, event_type, chat_id, user_id, display_name, reason, messages, created_at
		FROM moderation_events
		WHERE chat_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		var typ string
		var createdAt int64
		if err := rows.Scan(&e.ID, &typ, &e.ChatID, &e.UserID,
			&e.Name, &e.Reason, &e.Messages, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		e.Type = domain.EventType(typ)
		e.At = time.UnixMilli(createdAt).UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

// PruneBefore removes events older than cutoff.
func (s *SQLiteStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.pruneMu.Lock()
	defer s.pruneMu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM moderation_events WHERE created_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return n, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Repository = (*SQLiteStore)(nil)
