// Package storage persists the little state that outlives a session: the
// high score, plus an append-only audit trail of game events.
package storage

import (
	"context"
	"time"
)

// GameEvent is the storage-side record of one appended event.
type GameEvent struct {
	ID        string
	SessionID string
	Timestamp time.Time
	EventType string
	Payload   map[string]interface{}
}

// EventRepository stores the immutable event trail.
type EventRepository interface {
	Append(ctx context.Context, event GameEvent) error
	GetBySessionID(ctx context.Context, sessionID string) ([]GameEvent, error)
}

// HighScoreRepository stores the single persisted high score.
type HighScoreRepository interface {
	Get(ctx context.Context) (int, error)
	Set(ctx context.Context, score int) error
}
