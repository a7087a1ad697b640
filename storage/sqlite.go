package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"listing_intake/models"
)

// SQLiteStore is the local operational store: rate-limit windows and the
// security event log.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rate_limits (
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		count INTEGER NOT NULL,
		window_reset_at INTEGER NOT NULL,
		PRIMARY KEY (actor_id, action)
	);

	CREATE TABLE IF NOT EXISTS security_events (
		id INTEGER PRIMARY KEY,
		level TEXT NOT NULL,
		type TEXT NOT NULL,
		message TEXT,
		actor_id TEXT,
		meta JSON,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_rate_limits_reset ON rate_limits(window_reset_at);
	CREATE INDEX IF NOT EXISTS idx_security_events_type ON security_events(type, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Increment implements ratelimit.Store. Reset times are stored as unix
// milliseconds so the window comparison stays inside one statement.
func (s *SQLiteStore) Increment(ctx context.Context, actorID, action string, now time.Time, window time.Duration) (int, time.Time, error) {
	nowMS := now.UnixMilli()
	resetMS := now.Add(window).UnixMilli()

	var (
		count   int
		resetAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO rate_limits (actor_id, action, count, window_reset_at)
		VALUES (?1, ?2, 1, ?4)
		ON CONFLICT(actor_id, action) DO UPDATE SET
			count = CASE WHEN window_reset_at <= ?3 THEN 1 ELSE count + 1 END,
			window_reset_at = CASE WHEN window_reset_at <= ?3 THEN ?4 ELSE window_reset_at END
		RETURNING count, window_reset_at`,
		actorID, action, nowMS, resetMS,
	).Scan(&count, &resetAt)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("increment rate limit: %w", err)
	}
	return count, time.UnixMilli(resetAt).UTC(), nil
}

func (s *SQLiteStore) Purge(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rate_limits WHERE window_reset_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) RecordEvent(ctx context.Context, e *models.SecurityEvent) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	var meta interface{}
	if len(e.Meta) > 0 {
		meta = string(e.Meta)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO security_events (level, type, message, actor_id, meta, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(e.Level), string(e.Type), e.Message, e.ActorID, meta, e.CreatedAt,
	)
	if err != nil {
		return err
	}
	e.ID, _ = res.LastInsertId()
	return nil
}

// RecentEvents returns the newest events first. An empty eventType matches
// every type.
func (s *SQLiteStore) RecentEvents(ctx context.Context, eventType models.EventType, limit int) ([]models.SecurityEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, level, type, COALESCE(message, ''), COALESCE(actor_id, ''), meta, created_at
		FROM security_events
		WHERE ?1 = '' OR type = ?1
		ORDER BY id DESC
		LIMIT ?2`,
		string(eventType), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.SecurityEvent
	for rows.Next() {
		var (
			e    models.SecurityEvent
			meta sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Level, &e.Type, &e.Message, &e.ActorID, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		if meta.Valid {
			e.Meta = json.RawMessage(meta.String)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
