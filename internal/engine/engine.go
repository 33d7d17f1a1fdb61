package engine

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stallrush/server/internal/config"
	"github.com/stallrush/server/internal/domain/facility"
	"github.com/stallrush/server/internal/events"
	"github.com/stallrush/server/internal/platform/logger"
	"github.com/stallrush/server/internal/platform/metrics"
)

// Status is the session lifecycle state.
type Status string

const (
	StatusMenu     Status = "MENU"
	StatusPlaying  Status = "PLAYING"
	StatusPaused   Status = "PAUSED"
	StatusGameOver Status = "GAME_OVER"
)

// Reason explains why a life was lost or the game ended.
type Reason string

const (
	ReasonNone      Reason = ""
	ReasonTimeout   Reason = "TIMEOUT"
	ReasonAdjacency Reason = "ADJACENCY"
)

// ErrNotPlaying is returned for gameplay commands issued outside a running
// session.
var ErrNotPlaying = errors.New("session is not playing")

// HighScoreStore is the persistence collaborator. The engine reads it once
// per session start and writes at most once per game over; failures are
// logged and never interrupt the game.
type HighScoreStore interface {
	HighScore(ctx context.Context) (int, error)
	SaveHighScore(ctx context.Context, score int) error
}

// Engine orchestrates the whole session: the facility pool, the patron
// queue, the disruption scheduler, and the score/lives/difficulty economy.
// All methods are safe for concurrent use; internally a single mutex
// serializes every mutation, so the simulation behaves as one logical
// thread and iteration order stays deterministic.
type Engine struct {
	mu     sync.Mutex
	cfg    *config.Config
	logger *logger.Logger
	log    *events.EventLog
	scores HighScoreStore

	pool        *FacilityPool
	queue       *OccupantQueue
	disruptions *DisruptionScheduler
	tasks       *taskQueue
	rng         *rand.Rand

	// epoch increments on every Start; delayed penalties scheduled in an
	// earlier session check it and fizzle instead of hitting a fresh one.
	epoch     int
	sessionID string

	status         Status
	score          int
	lives          int
	difficulty     int
	spawnRate      time.Duration
	gameOverReason Reason
	highScore      int
	isNewHighScore bool
}

// NewEngine wires up the session. The high-score store may be nil (no
// persistence); the event log must not be.
func NewEngine(cfg *config.Config, log *events.EventLog, scores HighScoreStore, lg *logger.Logger) *Engine {
	pool := NewFacilityPool(
		cfg.Facilities.UrinalCount,
		cfg.Facilities.CubicleCount,
		cfg.Facilities.UrinalUsage,
		cfg.Facilities.CubicleUsage,
		lg,
	)
	queue := NewOccupantQueue(cfg.Queue.WaitBudget, lg)
	tasks := newTaskQueue()

	return &Engine{
		cfg:         cfg,
		logger:      lg,
		log:         log,
		scores:      scores,
		pool:        pool,
		queue:       queue,
		tasks:       tasks,
		disruptions: NewDisruptionScheduler(cfg.Disruption, pool, queue, tasks, log, lg),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		status:      StatusMenu,
	}
}

// Seed makes every stochastic draw reproducible. Call before Start.
func (e *Engine) Seed(seed int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rng = rand.New(rand.NewSource(seed))
}

// Start begins a fresh session at the given difficulty (values below 1 fall
// back to the configured start difficulty). Everything resets: score, lives,
// facilities, patrons. One patron is spawned synchronously so the queue is
// never observed empty right after start.
func (e *Engine) Start(startDifficulty int, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if startDifficulty < 1 {
		startDifficulty = e.cfg.Session.StartDifficulty
	}

	e.epoch++
	e.sessionID = uuid.NewString()
	e.score = 0
	e.lives = e.cfg.Session.StartingLives
	e.difficulty = startDifficulty
	e.spawnRate = e.computeSpawnRate(startDifficulty)
	e.gameOverReason = ReasonNone
	e.isNewHighScore = false

	e.pool.Reset()
	e.queue.Reset()
	e.disruptions.Stop()

	if e.scores != nil {
		stored, err := e.scores.HighScore(context.Background())
		if err != nil {
			e.logger.Warn("high score read failed", "err", err)
		} else {
			e.highScore = stored
		}
	}

	e.status = StatusPlaying
	e.queue.Spawn(now)
	e.disruptions.Start(now)

	metrics.Get().RecordSessionStarted()
	e.logger.Event("SESSION_STARTED", "session", e.sessionID, "difficulty", e.difficulty, "lives", e.lives)
	e.log.Append(events.GameEvent{
		Type:      events.EventTypeSessionStarted,
		SessionID: e.sessionID,
		Payload:   events.SessionPayload{Difficulty: e.difficulty, Lives: e.lives},
	})
}

// Pause suspends a running session. Disruption checks stop; restoration
// timers keep their schedule.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != StatusPlaying {
		return
	}
	e.status = StatusPaused
	e.disruptions.Stop()
	e.log.Append(events.GameEvent{Type: events.EventTypeSessionPaused, SessionID: e.sessionID})
}

// Resume continues a paused session.
func (e *Engine) Resume(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != StatusPaused {
		return
	}
	e.status = StatusPlaying
	e.disruptions.Start(now)
	e.log.Append(events.GameEvent{Type: events.EventTypeSessionResumed, SessionID: e.sessionID})
}

// ReturnToMenu abandons the current session without resetting facility
// state; the next Start performs the full reset.
func (e *Engine) ReturnToMenu() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status == StatusMenu {
		return
	}
	e.status = StatusMenu
	e.disruptions.Stop()
	e.log.Append(events.GameEvent{Type: events.EventTypeReturnedToMenu, SessionID: e.sessionID})
}

// Tick advances the simulation to now. Due one-shot tasks always drain,
// whatever the status; gameplay only advances while Playing. At most one
// patron timeout is processed per tick — remaining expirations are caught on
// subsequent ticks.
func (e *Engine) Tick(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.tasks.RunDue(now.UnixNano())

	if e.status != StatusPlaying {
		return
	}

	if o := e.queue.MaybeSpawn(now, e.spawnRate); o != nil {
		e.log.Append(events.GameEvent{
			Type:      events.EventTypeOccupantSpawned,
			SessionID: e.sessionID,
			Payload:   events.OccupantPayload{OccupantID: o.ID},
		})
	}

	if o := e.queue.CheckTimeout(now); o != nil {
		e.queue.Remove(o.ID)
		metrics.Get().RecordTimeout()
		e.logger.Event("OCCUPANT_TIMEOUT", "occupant", o.ID)
		e.log.Append(events.GameEvent{
			Type:      events.EventTypeOccupantTimeout,
			SessionID: e.sessionID,
			Payload:   events.OccupantPayload{OccupantID: o.ID},
		})
		e.loseLifeLocked(ReasonTimeout)
		if e.status != StatusPlaying {
			return
		}
	}

	for _, rel := range e.pool.SweepAutoRelease(now) {
		e.queue.Remove(rel.OccupantID)
		scored := rel.Kind == facility.KindUrinal
		metrics.Get().RecordRelease(scored)
		eventType := events.EventTypeCubicleReleased
		if scored {
			eventType = events.EventTypeUrinalReleased
		}
		e.log.Append(events.GameEvent{
			Type:      eventType,
			SessionID: e.sessionID,
			Payload:   events.ReleasePayload{Kind: string(rel.Kind), Index: rel.Index, OccupantID: rel.OccupantID, Scored: scored},
		})
		if scored {
			e.addScoreLocked()
		}
	}

	e.disruptions.Update(now, e.difficulty, e.sessionID, e.rng)
}

// ApplyAssignment sends the oldest waiting patron to the target slot. The
// target must be in range; the input boundary validates untrusted indices
// with IsAssignmentValid first. An adjacent urinal placement succeeds and
// schedules the life penalty after the configured display delay, so the
// player sees the illegal configuration before paying for it.
func (e *Engine) ApplyAssignment(kind facility.Kind, index int, now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != StatusPlaying {
		return ErrNotPlaying
	}
	if !e.pool.Get(kind, index).Available() {
		metrics.Get().RecordAssignment(false)
		return ErrNotAvailable
	}

	occ, err := e.queue.AssignHead(kind, index)
	if err != nil {
		metrics.Get().RecordAssignment(false)
		return err
	}

	res, err := e.pool.Assign(kind, index, occ.ID, now)
	if err != nil {
		// Unreachable after the availability check above.
		return err
	}
	metrics.Get().RecordAssignment(true)

	if res.RewardConsumed {
		metrics.Get().RecordRewardClaimed()
		e.log.Append(events.GameEvent{
			Type:      events.EventTypeRewardClaimed,
			SessionID: e.sessionID,
			Payload:   events.FacilityPayload{Kind: string(kind), Index: index},
		})
		e.gainLifeLocked()
	}

	if res.AdjacencyViolation {
		metrics.Get().RecordAdjacencyBreach()
		e.logger.Event("ADJACENCY_BREACH", "index", index, "occupant", occ.ID)
		e.log.Append(events.GameEvent{
			Type:      events.EventTypeAdjacencyBreach,
			SessionID: e.sessionID,
			Payload:   events.FacilityPayload{Kind: string(kind), Index: index},
		})
		epoch := e.epoch
		e.tasks.Schedule(now.Add(e.cfg.Session.AdjacencyDelay).UnixNano(), func() {
			// Fizzle if the session restarted or is no longer playing.
			if e.epoch == epoch && e.status == StatusPlaying {
				e.loseLifeLocked(ReasonAdjacency)
			}
		})
	}

	e.log.Append(events.GameEvent{
		Type:      events.EventTypeAssignment,
		SessionID: e.sessionID,
		Payload: events.AssignmentPayload{
			Kind:               string(kind),
			Index:              index,
			OccupantID:         occ.ID,
			RewardConsumed:     res.RewardConsumed,
			AdjacencyViolation: res.AdjacencyViolation,
		},
	})
	return nil
}

// IsAssignmentValid reports whether the slot can accept a patron right now.
// Adjacency is never pre-blocked; only availability counts.
func (e *Engine) IsAssignmentValid(kind facility.Kind, index int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.pool.InRange(kind, index) {
		return false
	}
	return e.pool.Get(kind, index).Available()
}

// loseLifeLocked decrements lives and handles the GameOver transition.
// Once GameOver is entered further losses are ignored.
func (e *Engine) loseLifeLocked(reason Reason) {
	if e.status == StatusGameOver {
		return
	}
	e.lives--
	e.logger.Event("LIFE_LOST", "reason", reason, "lives", e.lives)
	e.log.Append(events.GameEvent{
		Type:      events.EventTypeLifeLost,
		SessionID: e.sessionID,
		Payload:   events.LifePayload{Lives: e.lives, Reason: string(reason)},
	})
	if e.lives <= 0 {
		e.gameOverLocked(reason)
	}
}

// gainLifeLocked increments lives. Unbounded above.
func (e *Engine) gainLifeLocked() {
	e.lives++
	e.logger.Event("LIFE_GAINED", "lives", e.lives)
	e.log.Append(events.GameEvent{
		Type:      events.EventTypeLifeGained,
		SessionID: e.sessionID,
		Payload:   events.LifePayload{Lives: e.lives},
	})
}

// addScoreLocked bumps the score and applies the milestone rule: every time
// the score reaches a positive multiple of the milestone interval,
// difficulty rises by one and the spawn rate tightens. This is the sole
// driver of difficulty escalation.
func (e *Engine) addScoreLocked() {
	e.score++
	if e.score%e.cfg.Session.MilestoneInterval != 0 {
		return
	}
	e.difficulty++
	e.spawnRate = e.computeSpawnRate(e.difficulty)
	metrics.Get().RecordMilestone()
	e.logger.Event("MILESTONE", "score", e.score, "difficulty", e.difficulty, "spawn_rate", e.spawnRate)
	e.log.Append(events.GameEvent{
		Type:      events.EventTypeMilestone,
		SessionID: e.sessionID,
		Payload:   events.MilestonePayload{Score: e.score, Difficulty: e.difficulty, SpawnRate: e.spawnRate.Milliseconds()},
	})
}

// computeSpawnRate applies the difficulty ramp, floored at the configured
// minimum.
func (e *Engine) computeSpawnRate(difficulty int) time.Duration {
	rate := e.cfg.Session.BaseSpawnRate - time.Duration(difficulty-1)*e.cfg.Session.SpawnRateStep
	if rate < e.cfg.Session.MinSpawnRate {
		rate = e.cfg.Session.MinSpawnRate
	}
	return rate
}

// gameOverLocked ends the session and settles the high score: the stored
// value is re-read and overwritten only on a strictly greater, positive
// score. Store failures degrade to an in-memory comparison.
func (e *Engine) gameOverLocked(reason Reason) {
	e.status = StatusGameOver
	e.gameOverReason = reason
	e.disruptions.Stop()

	if e.scores != nil && e.score > 0 {
		ctx := context.Background()
		stored, err := e.scores.HighScore(ctx)
		if err != nil {
			e.logger.Warn("high score read failed at game over", "err", err)
			stored = e.highScore
		}
		if e.score > stored {
			e.isNewHighScore = true
			err := e.scores.SaveHighScore(ctx, e.score)
			metrics.Get().RecordHighScoreWrite(err)
			if err != nil {
				e.logger.Error("high score write failed", "err", err)
			}
		}
		if stored > e.highScore {
			e.highScore = stored
		}
	} else if e.score > e.highScore {
		e.isNewHighScore = true
	}
	if e.score > e.highScore {
		e.highScore = e.score
	}

	metrics.Get().RecordGameOver()
	e.logger.Event("GAME_OVER", "session", e.sessionID, "score", e.score, "reason", reason, "new_high_score", e.isNewHighScore)
	e.log.Append(events.GameEvent{
		Type:      events.EventTypeGameOver,
		SessionID: e.sessionID,
		Payload: events.GameOverPayload{
			Score:          e.score,
			HighScore:      e.highScore,
			IsNewHighScore: e.isNewHighScore,
			Reason:         string(reason),
		},
	})
}

// Status returns the current session status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}
