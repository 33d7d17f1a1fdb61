package engine

import (
	"time"

	"github.com/stallrush/server/internal/domain/facility"
	"github.com/stallrush/server/internal/domain/occupant"
)

// OccupantView is the read-side projection of one patron. QueueRow/QueueCol
// place waiting patrons in the fixed-size display rows (id-ascending, wrapped
// at the configured row size); both are -1 once the patron is at a facility.
type OccupantView struct {
	ID            int            `json:"id"`
	State         occupant.State `json:"state"`
	TimeRemaining int64          `json:"time_remaining_ms"`
	FacilityKind  string         `json:"facility_kind,omitempty"`
	FacilityIndex int            `json:"facility_index"`
	QueueRow      int            `json:"queue_row"`
	QueueCol      int            `json:"queue_col"`
}

// Snapshot is the full read surface for render clients. It is a value copy;
// holding one never blocks or observes later mutation.
type Snapshot struct {
	SessionID      string              `json:"session_id"`
	Status         Status              `json:"status"`
	Score          int                 `json:"score"`
	HighScore      int                 `json:"high_score"`
	IsNewHighScore bool                `json:"is_new_high_score"`
	Lives          int                 `json:"lives"`
	Difficulty     int                 `json:"difficulty"`
	SpawnRate      int64               `json:"spawn_rate_ms"`
	GameOverReason Reason              `json:"game_over_reason,omitempty"`
	Facilities     []facility.Facility `json:"facilities"`
	Occupants      []OccupantView      `json:"occupants"`
}

// Snapshot captures the complete observable state at now.
func (e *Engine) Snapshot(now time.Time) Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	occupants := e.queue.Occupants()
	views := make([]OccupantView, 0, len(occupants))
	waiting := 0
	for _, o := range occupants {
		v := OccupantView{
			ID:            o.ID,
			State:         o.State,
			TimeRemaining: o.TimeRemaining(now).Milliseconds(),
			FacilityKind:  string(o.FacilityKind),
			FacilityIndex: o.FacilityIndex,
			QueueRow:      -1,
			QueueCol:      -1,
		}
		if o.State == occupant.StateWaiting {
			v.QueueRow = waiting / e.cfg.Queue.RowSize
			v.QueueCol = waiting % e.cfg.Queue.RowSize
			waiting++
		}
		views = append(views, v)
	}

	return Snapshot{
		SessionID:      e.sessionID,
		Status:         e.status,
		Score:          e.score,
		HighScore:      e.highScore,
		IsNewHighScore: e.isNewHighScore,
		Lives:          e.lives,
		Difficulty:     e.difficulty,
		SpawnRate:      e.spawnRate.Milliseconds(),
		GameOverReason: e.gameOverReason,
		Facilities:     e.pool.Snapshot(),
		Occupants:      views,
	}
}
