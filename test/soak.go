// Package test holds the headless soak scenario run by cmd/test-runner.
// It drives the real engine with a seeded RNG and a scripted player on a
// simulated clock, then checks the invariants the unit tests cannot cover
// over long mixed sessions.
package test

import (
	"context"
	"fmt"
	"time"

	"github.com/stallrush/server/internal/config"
	"github.com/stallrush/server/internal/domain/facility"
	"github.com/stallrush/server/internal/domain/occupant"
	"github.com/stallrush/server/internal/engine"
	"github.com/stallrush/server/internal/events"
	"github.com/stallrush/server/internal/platform/logger"
)

// ScenarioResult captures the outcome of one soak session.
type ScenarioResult struct {
	ScenarioName string
	Passed       bool
	Reason       string
	Score        int
	Difficulty   int
	Ticks        int
}

// SoakTest plays full sessions against a real Engine until every session
// ends in a game over, watching the state invariants on every tick.
type SoakTest struct {
	cfg      *config.Config
	seed     int64
	sessions int
	logger   *logger.Logger
	results  []ScenarioResult
}

// NewSoakTest creates the harness. The same seed always produces the same
// run, disruptions included.
func NewSoakTest(seed int64, sessions int) *SoakTest {
	cfg := config.Default()
	// Compressed timings so a session resolves in seconds of simulated time.
	cfg.Session.BaseSpawnRate = 2 * time.Second
	cfg.Session.MinSpawnRate = 600 * time.Millisecond
	cfg.Queue.WaitBudget = 6 * time.Second
	cfg.Facilities.UrinalUsage = 3 * time.Second
	cfg.Facilities.CubicleUsage = 5 * time.Second

	return &SoakTest{
		cfg:      cfg,
		seed:     seed,
		sessions: sessions,
		logger:   logger.NewNop(),
	}
}

// Run plays every session to completion. The context is only consulted
// between ticks; the simulation itself never blocks.
func (s *SoakTest) Run(ctx context.Context) {
	log := events.NewEventLog(nil)
	eng := engine.NewEngine(s.cfg, log, nil, s.logger)
	eng.Seed(s.seed)

	clock := time.Unix(0, 0)
	const tickStep = 100 * time.Millisecond
	const maxTicks = 100000

	for i := 0; i < s.sessions; i++ {
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.results = append(s.results, s.playSession(eng, log, &clock, tickStep, maxTicks, i+1))
	}
}

func (s *SoakTest) playSession(eng *engine.Engine, log *events.EventLog, clock *time.Time, step time.Duration, maxTicks, number int) ScenarioResult {
	result := ScenarioResult{ScenarioName: fmt.Sprintf("session %d", number)}

	eng.Start(1, *clock)
	sessionID := eng.Snapshot(*clock).SessionID
	lastScore, lastDifficulty := 0, 0

	for tick := 0; tick < maxTicks; tick++ {
		*clock = clock.Add(step)
		eng.Tick(*clock)
		result.Ticks++

		snap := eng.Snapshot(*clock)

		if snap.Lives < 0 {
			return failed(result, fmt.Sprintf("lives went negative: %d", snap.Lives))
		}
		if snap.Score < lastScore {
			return failed(result, fmt.Sprintf("score regressed %d -> %d", lastScore, snap.Score))
		}
		if snap.Difficulty < lastDifficulty {
			return failed(result, fmt.Sprintf("difficulty regressed %d -> %d", lastDifficulty, snap.Difficulty))
		}
		lastScore, lastDifficulty = snap.Score, snap.Difficulty

		if down := countOutOfOrder(snap); down > s.cfg.Disruption.OutageMaxActive {
			return failed(result, fmt.Sprintf("%d simultaneous outages, cap is %d", down, s.cfg.Disruption.OutageMaxActive))
		}

		if snap.Status == engine.StatusGameOver {
			result.Score = snap.Score
			result.Difficulty = snap.Difficulty
			if snap.Lives != 0 {
				return failed(result, fmt.Sprintf("game over with %d lives", snap.Lives))
			}
			if snap.GameOverReason == engine.ReasonNone {
				return failed(result, "game over without a reason")
			}
			return s.auditSession(result, log, sessionID, snap)
		}

		s.playTurn(eng, snap, *clock)
	}

	return failed(result, "session never reached game over")
}

// playTurn is the scripted player: whenever somebody is waiting, send them
// to the best slot — a urinal with free neighbors first, then a cubicle,
// then any open urinal even at the adjacency price.
func (s *SoakTest) playTurn(eng *engine.Engine, snap engine.Snapshot, now time.Time) {
	waiting := false
	for _, o := range snap.Occupants {
		if o.State == occupant.StateWaiting {
			waiting = true
			break
		}
	}
	if !waiting {
		return
	}

	if kind, index, ok := pickTarget(snap); ok && eng.IsAssignmentValid(kind, index) {
		_ = eng.ApplyAssignment(kind, index, now)
	}
}

func pickTarget(snap engine.Snapshot) (facility.Kind, int, bool) {
	occupied := map[int]bool{}
	for _, f := range snap.Facilities {
		if f.Kind == facility.KindUrinal && f.Occupied {
			occupied[f.Index] = true
		}
	}

	var fallback *facility.Facility
	for i := range snap.Facilities {
		f := snap.Facilities[i]
		if f.Occupied || f.OutOfOrder {
			continue
		}
		switch f.Kind {
		case facility.KindUrinal:
			if !occupied[f.Index-1] && !occupied[f.Index+1] {
				return f.Kind, f.Index, true
			}
			if fallback == nil {
				fallback = &snap.Facilities[i]
			}
		case facility.KindCubicle:
			return f.Kind, f.Index, true
		}
	}
	if fallback != nil {
		return fallback.Kind, fallback.Index, true
	}
	return "", 0, false
}

// auditSession cross-checks the final counters against the event history.
func (s *SoakTest) auditSession(result ScenarioResult, log *events.EventLog, sessionID string, snap engine.Snapshot) ScenarioResult {
	urinalReleases := 0
	gameOvers := 0
	for _, e := range log.GetBySession(sessionID) {
		switch e.Type {
		case events.EventTypeUrinalReleased:
			urinalReleases++
		case events.EventTypeGameOver:
			gameOvers++
		}
	}

	if urinalReleases != snap.Score {
		return failed(result, fmt.Sprintf("score %d but %d urinal releases on record", snap.Score, urinalReleases))
	}
	if gameOvers != 1 {
		return failed(result, fmt.Sprintf("%d GAME_OVER events for one session", gameOvers))
	}

	result.Passed = true
	result.Reason = "all invariants held"
	return result
}

func countOutOfOrder(snap engine.Snapshot) int {
	count := 0
	for _, f := range snap.Facilities {
		if f.OutOfOrder {
			count++
		}
	}
	return count
}

func failed(result ScenarioResult, reason string) ScenarioResult {
	result.Passed = false
	result.Reason = reason
	return result
}

// Results returns the per-session outcomes.
func (s *SoakTest) Results() []ScenarioResult {
	return s.results
}
