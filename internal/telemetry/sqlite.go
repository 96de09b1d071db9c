package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const createMessageEventsTableSQL = `
CREATE TABLE IF NOT EXISTS message_events (
	id TEXT PRIMARY KEY,
	identity TEXT NOT NULL,
	stage TEXT NOT NULL,
	payload_json TEXT NOT NULL,
	recorded_at_utc TEXT NOT NULL
)`

var createMessageEventsIndexesSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_message_events_identity ON message_events(identity)`,
	`CREATE INDEX IF NOT EXISTS idx_message_events_stage ON message_events(stage)`,
	`CREATE INDEX IF NOT EXISTS idx_message_events_recorded_at ON message_events(recorded_at_utc)`,
}

const insertMessageEventSQL = `
INSERT INTO message_events (id, identity, stage, payload_json, recorded_at_utc)
VALUES (?, ?, ?, ?, ?)`

// SQLiteRecorder appends events to a local SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
}

// NewSQLiteRecorder opens (and if needed initializes) the database at path.
func NewSQLiteRecorder(path string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open sqlite %q: %w", path, err)
	}
	if _, err := db.Exec(createMessageEventsTableSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("telemetry: create message_events: %w", err)
	}
	for _, stmt := range createMessageEventsIndexesSQL {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("telemetry: create index: %w", err)
		}
	}
	return &SQLiteRecorder{db: db}, nil
}

func (r *SQLiteRecorder) Record(ctx context.Context, identity, stage string, payload map[string]any) error {
	ev := newEvent(identity, stage, payload)
	raw, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("telemetry: encode payload: %w", err)
	}
	_, err = r.db.ExecContext(ctx, insertMessageEventSQL,
		ev.ID, ev.Identity, ev.Stage, string(raw), ev.At.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("telemetry: insert event: %w", err)
	}
	return nil
}

func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
