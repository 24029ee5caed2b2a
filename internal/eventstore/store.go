// Package eventstore persists pipeline events to SQLite, backing the build
// history command.
package eventstore

import (
	"context"
	"time"
)

// Store persists and queries pipeline events.
type Store interface {
	// Append adds a new event to the store.
	Append(ctx context.Context, buildID, eventType string, payload []byte, metadata map[string]string) error
	// Events returns all events for a build in insertion order.
	Events(ctx context.Context, buildID string) ([]StoredEvent, error)
	// RecentBuilds summarizes the most recent builds, newest first.
	RecentBuilds(ctx context.Context, limit int) ([]BuildSummary, error)
	// Close releases underlying resources.
	Close() error
}

// StoredEvent is one persisted event row.
type StoredEvent struct {
	ID        int64
	BuildID   string
	Type      string
	Timestamp time.Time
	Payload   []byte
	Metadata  map[string]string
}

// BuildSummary aggregates a build's events into one history line.
type BuildSummary struct {
	BuildID    string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string // success, failed, or running
	Events     int
}
