package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore creates a new SQLite-based event store.
// Use ":memory:" for an in-memory database, or a file path for persistence;
// parent directories are created as needed.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		build_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		payload BLOB,
		metadata TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_build_id ON events(build_id);
	CREATE INDEX IF NOT EXISTS idx_timestamp ON events(timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append adds a new event to the store.
func (s *SQLiteStore) Append(ctx context.Context, buildID, eventType string, payload []byte, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var metadataJSON []byte
	if metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO events (build_id, event_type, timestamp, payload, metadata) VALUES (?, ?, ?, ?, ?)",
		buildID, eventType, time.Now().UnixNano(), payload, metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Events returns all events for a build in insertion order.
func (s *SQLiteStore) Events(ctx context.Context, buildID string) ([]StoredEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, build_id, event_type, timestamp, payload, metadata FROM events WHERE build_id = ? ORDER BY id",
		buildID,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []StoredEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// RecentBuilds summarizes the most recent builds, newest first. A build with
// no finished event is reported as running.
func (s *SQLiteStore) RecentBuilds(ctx context.Context, limit int) ([]BuildSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT build_id, MIN(timestamp), MAX(timestamp), COUNT(*)
		FROM events
		GROUP BY build_id
		ORDER BY MIN(timestamp) DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query builds: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var summaries []BuildSummary
	for rows.Next() {
		var bs BuildSummary
		var started, finished int64
		if err := rows.Scan(&bs.BuildID, &started, &finished, &bs.Events); err != nil {
			return nil, fmt.Errorf("scan build summary: %w", err)
		}
		bs.StartedAt = time.Unix(0, started)
		bs.FinishedAt = time.Unix(0, finished)
		summaries = append(summaries, bs)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range summaries {
		status, err := s.buildStatus(ctx, summaries[i].BuildID)
		if err != nil {
			return nil, err
		}
		summaries[i].Status = status
	}
	return summaries, nil
}

// buildStatus derives a build's status from its finished event payload.
func (s *SQLiteStore) buildStatus(ctx context.Context, buildID string) (string, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT payload FROM events WHERE build_id = ? AND event_type = 'build.finished' ORDER BY id DESC LIMIT 1",
		buildID,
	)
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return "running", nil
		}
		return "", fmt.Errorf("query build status: %w", err)
	}
	var finished struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(payload, &finished); err != nil || finished.Status == "" {
		return "unknown", nil
	}
	return finished.Status, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (StoredEvent, error) {
	var ev StoredEvent
	var ts int64
	var metadataJSON sql.NullString
	if err := row.Scan(&ev.ID, &ev.BuildID, &ev.Type, &ts, &ev.Payload, &metadataJSON); err != nil {
		return ev, fmt.Errorf("scan event row: %w", err)
	}
	ev.Timestamp = time.Unix(0, ts)
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &ev.Metadata); err != nil {
			return ev, fmt.Errorf("unmarshal event metadata: %w", err)
		}
	}
	return ev, nil
}
