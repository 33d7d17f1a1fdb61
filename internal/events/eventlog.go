// Package events provides the append-only log of everything that happens in
// a session. Collaborators that need to react to the game (sound, render
// streams, persistence) subscribe here; the engine never calls them directly.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType defines the category of a game event. The set is closed: every
// consumer switches over these constants, never over free-form strings.
type EventType string

const (
	EventTypeSessionStarted  EventType = "SESSION_STARTED"
	EventTypeSessionPaused   EventType = "SESSION_PAUSED"
	EventTypeSessionResumed  EventType = "SESSION_RESUMED"
	EventTypeReturnedToMenu  EventType = "RETURNED_TO_MENU"
	EventTypeGameOver        EventType = "GAME_OVER"
	EventTypeOccupantSpawned EventType = "OCCUPANT_SPAWNED"
	EventTypeOccupantTimeout EventType = "OCCUPANT_TIMEOUT"
	EventTypeAssignment      EventType = "ASSIGNMENT"
	EventTypeUrinalReleased  EventType = "URINAL_RELEASED"
	EventTypeCubicleReleased EventType = "CUBICLE_RELEASED"
	EventTypeAdjacencyBreach EventType = "ADJACENCY_BREACH"
	EventTypeLifeGained      EventType = "LIFE_GAINED"
	EventTypeLifeLost        EventType = "LIFE_LOST"
	EventTypeMilestone       EventType = "MILESTONE"
	EventTypeOutageStarted   EventType = "OUTAGE_STARTED"
	EventTypeOutageRestored  EventType = "OUTAGE_RESTORED"
	EventTypeRewardPlaced    EventType = "REWARD_PLACED"
	EventTypeRewardClaimed   EventType = "REWARD_CLAIMED"
)

// Typed payloads, one per event family.

type SessionPayload struct {
	Difficulty int `json:"difficulty"`
	Lives      int `json:"lives"`
}

type OccupantPayload struct {
	OccupantID int `json:"occupant_id"`
}

type AssignmentPayload struct {
	Kind               string `json:"kind"`
	Index              int    `json:"index"`
	OccupantID         int    `json:"occupant_id"`
	RewardConsumed     bool   `json:"reward_consumed"`
	AdjacencyViolation bool   `json:"adjacency_violation"`
}

type ReleasePayload struct {
	Kind       string `json:"kind"`
	Index      int    `json:"index"`
	OccupantID int    `json:"occupant_id"`
	Scored     bool   `json:"scored"`
}

type LifePayload struct {
	Lives  int    `json:"lives"`
	Reason string `json:"reason,omitempty"`
}

type MilestonePayload struct {
	Score      int   `json:"score"`
	Difficulty int   `json:"difficulty"`
	SpawnRate  int64 `json:"spawn_rate_ms"`
}

type FacilityPayload struct {
	Kind  string `json:"kind"`
	Index int    `json:"index"`
}

type GameOverPayload struct {
	Score          int    `json:"score"`
	HighScore      int    `json:"high_score"`
	IsNewHighScore bool   `json:"is_new_high_score"`
	Reason         string `json:"reason"`
}

// GameEvent represents an immutable record of something that happened.
type GameEvent struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"type"`
	SessionID string      `json:"session_id"`
	Payload   interface{} `json:"payload"`
}

// Persister defines how an event is durably stored.
type Persister interface {
	Append(event GameEvent) error
}

// Listener receives every appended event, synchronously and in order.
type Listener func(event GameEvent)

// EventLog is the in-memory append-only log of game events, with optional
// write-through persistence and synchronous listeners.
type EventLog struct {
	mu        sync.RWMutex
	events    []GameEvent
	persister Persister
	listeners []Listener
}

// NewEventLog creates a new event log with an optional persister.
func NewEventLog(persister Persister) *EventLog {
	return &EventLog{
		events:    make([]GameEvent, 0),
		persister: persister,
	}
}

// AddListener registers a callback invoked on every Append. Listeners must
// not append to the log themselves.
func (el *EventLog) AddListener(fn Listener) {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.listeners = append(el.listeners, fn)
}

// Append adds a new event to the log. Events are immutable once appended.
// Persistence failures are swallowed: the game must proceed whether or not
// the store keeps up.
func (el *EventLog) Append(event GameEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	el.mu.Lock()
	el.events = append(el.events, event)
	listeners := el.listeners
	el.mu.Unlock()

	if el.persister != nil {
		go func(e GameEvent) {
			_ = el.persister.Append(e)
		}(event)
	}

	for _, fn := range listeners {
		fn(event)
	}
}

// Replay returns the full history of events for state reconstruction.
func (el *EventLog) Replay() []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return el.events
}

// GetByType returns all events of a given type, oldest first.
func (el *EventLog) GetByType(t EventType) []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []GameEvent
	for _, e := range el.events {
		if e.Type == t {
			result = append(result, e)
		}
	}
	return result
}

// GetBySession returns all events for one session, oldest first.
func (el *EventLog) GetBySession(sessionID string) []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []GameEvent
	for _, e := range el.events {
		if e.SessionID == sessionID {
			result = append(result, e)
		}
	}
	return result
}
