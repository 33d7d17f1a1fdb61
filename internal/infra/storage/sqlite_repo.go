package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SQLiteEventRepository implements EventRepository for SQLite.
type SQLiteEventRepository struct {
	db *sql.DB
}

func NewSQLiteEventRepository(db *sql.DB) *SQLiteEventRepository {
	return &SQLiteEventRepository{db: db}
}

func (r *SQLiteEventRepository) Append(ctx context.Context, event GameEvent) error {
	payloadBytes, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO events (id, session_id, timestamp, event_type, payload)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		event.ID, event.SessionID, event.Timestamp, event.EventType, string(payloadBytes),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (r *SQLiteEventRepository) GetBySessionID(ctx context.Context, sessionID string) ([]GameEvent, error) {
	query := `SELECT id, session_id, timestamp, event_type, payload FROM events WHERE session_id = ? ORDER BY timestamp ASC`
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []GameEvent
	for rows.Next() {
		var e GameEvent
		var payloadStr string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Timestamp, &e.EventType, &payloadStr); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payloadStr), &e.Payload); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ---------------------------------------------------------
// SQLiteHighScoreRepository
// ---------------------------------------------------------

// SQLiteHighScoreRepository implements HighScoreRepository on the
// single-row high_scores table.
type SQLiteHighScoreRepository struct {
	db *sql.DB
}

func NewSQLiteHighScoreRepository(db *sql.DB) *SQLiteHighScoreRepository {
	return &SQLiteHighScoreRepository{db: db}
}

// Get returns the stored high score, or 0 when none has been written yet.
func (r *SQLiteHighScoreRepository) Get(ctx context.Context) (int, error) {
	var score int
	err := r.db.QueryRowContext(ctx, `SELECT score FROM high_scores WHERE id = 1`).Scan(&score)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, err
	}
	return score, nil
}

// Set overwrites the stored high score. Callers decide whether the new value
// actually beats the old one.
func (r *SQLiteHighScoreRepository) Set(ctx context.Context, score int) error {
	query := `
		INSERT INTO high_scores (id, score, updated_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			score=excluded.score,
			updated_at=excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query, score, time.Now())
	return err
}
