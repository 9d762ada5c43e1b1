package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"warpledger/core/events"
	"warpledger/core/types"
)

// Journal persists committed ledger events and API request records to
// SQLite.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open creates or opens the journal at path. Use ":memory:" for tests.
func Open(path string) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("audit: path required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)
	journal := &Journal{db: db, logger: slog.Default(), now: time.Now}
	if err := journal.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return journal, nil
}

func (j *Journal) init() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS events (
            sequence INTEGER PRIMARY KEY AUTOINCREMENT,
            type TEXT NOT NULL,
            payload TEXT NOT NULL,
            created_at TIMESTAMP NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS events_type ON events(type);`,
		`CREATE TABLE IF NOT EXISTS audit_log (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            occurred_at TIMESTAMP NOT NULL,
            request_id TEXT,
            caller TEXT,
            method TEXT NOT NULL,
            path TEXT NOT NULL,
            response_status INTEGER
        );`,
	}
	for _, stmt := range schema {
		if _, err := j.db.Exec(stmt); err != nil {
			return fmt.Errorf("audit: init schema: %w", err)
		}
	}
	return nil
}

// SetLogger configures where write failures from Emit are reported.
func (j *Journal) SetLogger(logger *slog.Logger) {
	if logger != nil {
		j.logger = logger
	}
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// StoredEvent is a journaled event row.
type StoredEvent struct {
	Sequence   int64             `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// Emit implements events.Emitter. Write failures are logged, not returned,
// because the originating call has already committed.
func (j *Journal) Emit(evt events.Event) {
	payload := events.Payload(evt)
	if payload == nil {
		payload = &types.Event{Type: evt.EventType()}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := j.InsertEvent(ctx, payload); err != nil {
		j.logger.Warn("audit journal write failed",
			slog.String("event", payload.Type),
			slog.String("error", err.Error()))
	}
}

// InsertEvent appends evt to the journal.
func (j *Journal) InsertEvent(ctx context.Context, evt *types.Event) error {
	if evt == nil {
		return fmt.Errorf("audit: nil event")
	}
	attrs := evt.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	encoded, err := json.Marshal(attrs)
	if err != nil {
		return err
	}
	const stmt = `INSERT INTO events(type, payload, created_at) VALUES (?, ?, ?)`
	_, err = j.db.ExecContext(ctx, stmt, evt.Type, string(encoded), j.now().UTC())
	return err
}

// ListEvents returns up to limit events after the given sequence, oldest
// first. An empty eventType matches every type.
func (j *Journal) ListEvents(ctx context.Context, eventType string, after int64, limit int) ([]StoredEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query := `SELECT sequence, type, payload, created_at FROM events WHERE sequence > ?`
	args := []any{after}
	if eventType != "" {
		query += ` AND type = ?`
		args = append(args, eventType)
	}
	query += ` ORDER BY sequence ASC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StoredEvent
	for rows.Next() {
		var (
			evt     StoredEvent
			payload string
		)
		if err := rows.Scan(&evt.Sequence, &evt.Type, &payload, &evt.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &evt.Attributes); err != nil {
			return nil, fmt.Errorf("audit: decode event %d: %w", evt.Sequence, err)
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

// RequestEntry represents an API audit log row.
type RequestEntry struct {
	RequestID      string
	Caller         string
	Method         string
	Path           string
	ResponseStatus int
	Timestamp      time.Time
}

// InsertRequest records an API request.
func (j *Journal) InsertRequest(ctx context.Context, entry RequestEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = j.now()
	}
	const stmt = `INSERT INTO audit_log(occurred_at, request_id, caller, method, path, response_status) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := j.db.ExecContext(ctx, stmt, entry.Timestamp.UTC(), entry.RequestID, entry.Caller, entry.Method, entry.Path, entry.ResponseStatus)
	return err
}

// CountRequests returns the number of recorded API requests.
func (j *Journal) CountRequests(ctx context.Context) (int64, error) {
	var count int64
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log`).Scan(&count)
	return count, err
}
