package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stallrush/server/internal/config"
	"github.com/stallrush/server/internal/domain/facility"
	"github.com/stallrush/server/internal/events"
	"github.com/stallrush/server/internal/platform/logger"
)

type fakeScoreStore struct {
	stored int
	saved  []int
	getErr error
	setErr error
}

func (s *fakeScoreStore) HighScore(ctx context.Context) (int, error) {
	return s.stored, s.getErr
}

func (s *fakeScoreStore) SaveHighScore(ctx context.Context, score int) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.saved = append(s.saved, score)
	s.stored = score
	return nil
}

// calmConfig turns off everything stochastic and slow so each test drives
// exactly the clockwork it cares about.
func calmConfig() *config.Config {
	cfg := config.Default()
	cfg.Session.BaseSpawnRate = time.Second
	cfg.Session.MinSpawnRate = time.Second
	cfg.Session.AdjacencyDelay = 500 * time.Millisecond
	cfg.Facilities.UrinalUsage = time.Hour
	cfg.Facilities.CubicleUsage = time.Hour
	cfg.Queue.WaitBudget = time.Hour
	cfg.Disruption.OutageCheckInterval = time.Hour
	cfg.Disruption.RewardCheckInterval = time.Hour
	return cfg
}

func newTestEngine(cfg *config.Config, store HighScoreStore) (*Engine, *events.EventLog) {
	log := events.NewEventLog(nil)
	e := NewEngine(cfg, log, store, logger.NewNop())
	e.Seed(42)
	return e, log
}

func TestStartInitializesSession(t *testing.T) {
	e, _ := newTestEngine(calmConfig(), nil)
	t0 := time.Now()

	e.Start(2, t0)

	snap := e.Snapshot(t0)
	if snap.Status != StatusPlaying {
		t.Errorf("Status = %v", snap.Status)
	}
	if snap.Lives != 3 || snap.Score != 0 {
		t.Errorf("Lives = %d, Score = %d", snap.Lives, snap.Score)
	}
	if snap.Difficulty != 2 {
		t.Errorf("Difficulty = %d, want 2", snap.Difficulty)
	}
	if len(snap.Occupants) != 1 {
		t.Errorf("Start should spawn exactly one patron, got %d", len(snap.Occupants))
	}
	if len(snap.Facilities) != 8 {
		t.Errorf("Facilities = %d slots, want 8", len(snap.Facilities))
	}
	if snap.SessionID == "" {
		t.Error("no session id assigned")
	}
}

func TestStartFallsBackToConfiguredDifficulty(t *testing.T) {
	e, _ := newTestEngine(calmConfig(), nil)

	e.Start(0, time.Now())

	if snap := e.Snapshot(time.Now()); snap.Difficulty != 1 {
		t.Errorf("Difficulty = %d, want configured start 1", snap.Difficulty)
	}
}

func TestTimeoutsDrainLivesToGameOver(t *testing.T) {
	cfg := calmConfig()
	cfg.Queue.WaitBudget = time.Second
	e, log := newTestEngine(cfg, nil)
	t0 := time.Now()

	e.Start(1, t0)
	e.Tick(t0.Add(1 * time.Second)) // patron 1 storms out
	e.Tick(t0.Add(2 * time.Second)) // patron 2
	e.Tick(t0.Add(3 * time.Second)) // patron 3, last life

	snap := e.Snapshot(t0.Add(3 * time.Second))
	if snap.Status != StatusGameOver {
		t.Fatalf("Status = %v, want GAME_OVER", snap.Status)
	}
	if snap.Lives != 0 {
		t.Errorf("Lives = %d, want 0", snap.Lives)
	}
	if snap.GameOverReason != ReasonTimeout {
		t.Errorf("GameOverReason = %v", snap.GameOverReason)
	}
	if got := len(log.GetByType(events.EventTypeLifeLost)); got != 3 {
		t.Errorf("LIFE_LOST events = %d, want 3", got)
	}
	if got := len(log.GetByType(events.EventTypeGameOver)); got != 1 {
		t.Errorf("GAME_OVER events = %d, want 1", got)
	}
}

func TestOneTimeoutPerTick(t *testing.T) {
	cfg := calmConfig()
	cfg.Queue.WaitBudget = 2 * time.Second
	cfg.Session.StartingLives = 5
	e, _ := newTestEngine(cfg, nil)
	t0 := time.Now()

	e.Start(1, t0)
	e.Tick(t0.Add(1 * time.Second)) // second patron joins the line
	// Both patrons are expired by now; only one is charged per tick.
	e.Tick(t0.Add(3 * time.Second))
	if snap := e.Snapshot(t0.Add(3 * time.Second)); snap.Lives != 4 {
		t.Errorf("Lives after first catch-up tick = %d, want 4", snap.Lives)
	}
	e.Tick(t0.Add(3100 * time.Millisecond))
	if snap := e.Snapshot(t0.Add(3100 * time.Millisecond)); snap.Lives != 3 {
		t.Errorf("Lives after second catch-up tick = %d, want 3", snap.Lives)
	}
}

func TestUrinalReleaseScoresCubicleDoesNot(t *testing.T) {
	cfg := calmConfig()
	cfg.Facilities.UrinalUsage = time.Second
	cfg.Facilities.CubicleUsage = 2 * time.Second
	e, log := newTestEngine(cfg, nil)
	t0 := time.Now()

	e.Start(1, t0)
	e.Tick(t0.Add(1 * time.Second)) // second patron

	at := t0.Add(2 * time.Second)
	if err := e.ApplyAssignment(facility.KindUrinal, 0, at); err != nil {
		t.Fatal(err)
	}
	if err := e.ApplyAssignment(facility.KindCubicle, 0, at); err != nil {
		t.Fatal(err)
	}

	e.Tick(t0.Add(3 * time.Second)) // urinal auto-releases
	if snap := e.Snapshot(t0.Add(3 * time.Second)); snap.Score != 1 {
		t.Errorf("Score after urinal release = %d, want 1", snap.Score)
	}

	e.Tick(t0.Add(4 * time.Second)) // cubicle auto-releases
	if snap := e.Snapshot(t0.Add(4 * time.Second)); snap.Score != 1 {
		t.Errorf("Score after cubicle release = %d, want still 1", snap.Score)
	}

	if got := len(log.GetByType(events.EventTypeUrinalReleased)); got != 1 {
		t.Errorf("URINAL_RELEASED events = %d", got)
	}
	if got := len(log.GetByType(events.EventTypeCubicleReleased)); got != 1 {
		t.Errorf("CUBICLE_RELEASED events = %d", got)
	}
}

func TestAdjacencyPenaltyLandsAfterDelay(t *testing.T) {
	e, log := newTestEngine(calmConfig(), nil)
	t0 := time.Now()

	e.Start(1, t0)
	e.Tick(t0.Add(1 * time.Second))

	at := t0.Add(1 * time.Second)
	e.ApplyAssignment(facility.KindUrinal, 0, at)
	if err := e.ApplyAssignment(facility.KindUrinal, 1, at); err != nil {
		t.Fatalf("adjacent placement must succeed: %v", err)
	}

	// The placement is visible before the penalty lands.
	if snap := e.Snapshot(at); snap.Lives != 3 {
		t.Fatalf("Lives immediately after breach = %d, want 3", snap.Lives)
	}
	e.Tick(at.Add(499 * time.Millisecond))
	if snap := e.Snapshot(at.Add(499 * time.Millisecond)); snap.Lives != 3 {
		t.Errorf("penalty landed before the delay")
	}

	e.Tick(at.Add(500 * time.Millisecond))
	if snap := e.Snapshot(at.Add(500 * time.Millisecond)); snap.Lives != 2 {
		t.Errorf("Lives after delay = %d, want 2", snap.Lives)
	}
	if got := len(log.GetByType(events.EventTypeAdjacencyBreach)); got != 1 {
		t.Errorf("ADJACENCY_BREACH events = %d", got)
	}
}

func TestAdjacencyPenaltyFizzlesAfterRestart(t *testing.T) {
	e, _ := newTestEngine(calmConfig(), nil)
	t0 := time.Now()

	e.Start(1, t0)
	e.Tick(t0.Add(1 * time.Second))
	at := t0.Add(1 * time.Second)
	e.ApplyAssignment(facility.KindUrinal, 0, at)
	e.ApplyAssignment(facility.KindUrinal, 1, at)

	// Restart before the penalty fires: the stale task must not touch the
	// fresh session.
	e.Start(1, at.Add(100*time.Millisecond))
	e.Tick(at.Add(1 * time.Second))

	if snap := e.Snapshot(at.Add(1 * time.Second)); snap.Lives != 3 {
		t.Errorf("Lives = %d, stale penalty hit the new session", snap.Lives)
	}
}

func TestAdjacencyPenaltySkippedWhilePaused(t *testing.T) {
	e, _ := newTestEngine(calmConfig(), nil)
	t0 := time.Now()

	e.Start(1, t0)
	e.Tick(t0.Add(1 * time.Second))
	at := t0.Add(1 * time.Second)
	e.ApplyAssignment(facility.KindUrinal, 0, at)
	e.ApplyAssignment(facility.KindUrinal, 1, at)

	e.Pause()
	e.Tick(at.Add(1 * time.Second)) // due task drains while paused and fizzles
	e.Resume(at.Add(1 * time.Second))

	if snap := e.Snapshot(at.Add(1 * time.Second)); snap.Lives != 3 {
		t.Errorf("Lives = %d, penalty applied outside a running session", snap.Lives)
	}
}

func TestRewardGrantsExtraLife(t *testing.T) {
	e, log := newTestEngine(calmConfig(), nil)
	t0 := time.Now()

	e.Start(1, t0)
	e.pool.Get(facility.KindUrinal, 2).HasReward = true

	if err := e.ApplyAssignment(facility.KindUrinal, 2, t0); err != nil {
		t.Fatal(err)
	}

	if snap := e.Snapshot(t0); snap.Lives != 4 {
		t.Errorf("Lives = %d, want 4", snap.Lives)
	}
	if got := len(log.GetByType(events.EventTypeRewardClaimed)); got != 1 {
		t.Errorf("REWARD_CLAIMED events = %d", got)
	}
}

func TestMilestoneRaisesDifficultyAndTightensSpawnRate(t *testing.T) {
	cfg := calmConfig()
	cfg.Session.MilestoneInterval = 1
	cfg.Session.BaseSpawnRate = 4 * time.Second
	cfg.Session.MinSpawnRate = time.Second
	cfg.Session.SpawnRateStep = time.Second
	cfg.Facilities.UrinalUsage = time.Second
	e, log := newTestEngine(cfg, nil)
	t0 := time.Now()

	e.Start(1, t0)
	e.ApplyAssignment(facility.KindUrinal, 0, t0)
	e.Tick(t0.Add(1 * time.Second))

	snap := e.Snapshot(t0.Add(1 * time.Second))
	if snap.Score != 1 {
		t.Fatalf("Score = %d, want 1", snap.Score)
	}
	if snap.Difficulty != 2 {
		t.Errorf("Difficulty = %d, want 2", snap.Difficulty)
	}
	if snap.SpawnRate != 3000 {
		t.Errorf("SpawnRate = %dms, want 3000", snap.SpawnRate)
	}
	if got := len(log.GetByType(events.EventTypeMilestone)); got != 1 {
		t.Errorf("MILESTONE events = %d", got)
	}
}

func TestSpawnRateNeverDropsBelowFloor(t *testing.T) {
	cfg := calmConfig()
	cfg.Session.BaseSpawnRate = 4 * time.Second
	cfg.Session.MinSpawnRate = 1200 * time.Millisecond
	cfg.Session.SpawnRateStep = 350 * time.Millisecond
	e, _ := newTestEngine(cfg, nil)

	if got := e.computeSpawnRate(3); got != 4*time.Second-2*350*time.Millisecond {
		t.Errorf("computeSpawnRate(3) = %v", got)
	}
	if got := e.computeSpawnRate(50); got != 1200*time.Millisecond {
		t.Errorf("computeSpawnRate(50) = %v, want the floor", got)
	}
}

func TestHighScoreSavedOnGameOver(t *testing.T) {
	cfg := calmConfig()
	cfg.Facilities.UrinalUsage = time.Second
	cfg.Queue.WaitBudget = 2 * time.Second
	store := &fakeScoreStore{}
	e, _ := newTestEngine(cfg, store)
	t0 := time.Now()

	e.Start(1, t0)
	e.ApplyAssignment(facility.KindUrinal, 0, t0)
	e.Tick(t0.Add(1 * time.Second)) // release scores 1
	e.Tick(t0.Add(3 * time.Second)) // timeouts start draining lives
	e.Tick(t0.Add(5 * time.Second))
	e.Tick(t0.Add(7 * time.Second))

	snap := e.Snapshot(t0.Add(7 * time.Second))
	if snap.Status != StatusGameOver {
		t.Fatalf("Status = %v, want GAME_OVER", snap.Status)
	}
	if len(store.saved) != 1 || store.saved[0] != 1 {
		t.Errorf("saved scores = %v, want [1]", store.saved)
	}
	if !snap.IsNewHighScore || snap.HighScore != 1 {
		t.Errorf("IsNewHighScore = %v, HighScore = %d", snap.IsNewHighScore, snap.HighScore)
	}
}

func TestStoredHighScoreSurvivesLowerRun(t *testing.T) {
	cfg := calmConfig()
	cfg.Facilities.UrinalUsage = time.Second
	cfg.Queue.WaitBudget = 2 * time.Second
	store := &fakeScoreStore{stored: 10}
	e, _ := newTestEngine(cfg, store)
	t0 := time.Now()

	e.Start(1, t0)
	e.ApplyAssignment(facility.KindUrinal, 0, t0)
	e.Tick(t0.Add(1 * time.Second))
	e.Tick(t0.Add(3 * time.Second))
	e.Tick(t0.Add(5 * time.Second))
	e.Tick(t0.Add(7 * time.Second))

	snap := e.Snapshot(t0.Add(7 * time.Second))
	if len(store.saved) != 0 {
		t.Errorf("store written for a losing score: %v", store.saved)
	}
	if snap.IsNewHighScore {
		t.Error("IsNewHighScore set without beating the stored score")
	}
	if snap.HighScore != 10 {
		t.Errorf("HighScore = %d, want stored 10", snap.HighScore)
	}
}

func TestZeroScoreNeverPersisted(t *testing.T) {
	cfg := calmConfig()
	cfg.Queue.WaitBudget = time.Second
	store := &fakeScoreStore{}
	e, _ := newTestEngine(cfg, store)
	t0 := time.Now()

	e.Start(1, t0)
	e.Tick(t0.Add(1 * time.Second))
	e.Tick(t0.Add(2 * time.Second))
	e.Tick(t0.Add(3 * time.Second))

	if e.Status() != StatusGameOver {
		t.Fatal("expected game over")
	}
	if len(store.saved) != 0 {
		t.Errorf("zero score was persisted: %v", store.saved)
	}
}

func TestPauseAndResume(t *testing.T) {
	e, _ := newTestEngine(calmConfig(), nil)
	t0 := time.Now()

	e.Start(1, t0)
	e.Pause()

	if e.Status() != StatusPaused {
		t.Fatalf("Status = %v", e.Status())
	}
	if err := e.ApplyAssignment(facility.KindUrinal, 0, t0); err != ErrNotPlaying {
		t.Errorf("assignment while paused: err = %v, want ErrNotPlaying", err)
	}

	// Ticks while paused advance nothing.
	e.Tick(t0.Add(10 * time.Second))
	if snap := e.Snapshot(t0.Add(10 * time.Second)); len(snap.Occupants) != 1 {
		t.Errorf("patrons spawned while paused: %d", len(snap.Occupants))
	}

	e.Resume(t0.Add(10 * time.Second))
	if e.Status() != StatusPlaying {
		t.Errorf("Status after resume = %v", e.Status())
	}
	if err := e.ApplyAssignment(facility.KindUrinal, 0, t0.Add(10*time.Second)); err != nil {
		t.Errorf("assignment after resume failed: %v", err)
	}
}

func TestReturnToMenu(t *testing.T) {
	e, _ := newTestEngine(calmConfig(), nil)
	t0 := time.Now()

	e.Start(1, t0)
	e.ReturnToMenu()

	if e.Status() != StatusMenu {
		t.Errorf("Status = %v", e.Status())
	}
	if err := e.ApplyAssignment(facility.KindUrinal, 0, t0); err != ErrNotPlaying {
		t.Errorf("err = %v, want ErrNotPlaying", err)
	}
}

func TestAssignmentRejectionLeavesQueueIntact(t *testing.T) {
	e, _ := newTestEngine(calmConfig(), nil)
	t0 := time.Now()

	e.Start(1, t0)
	e.Tick(t0.Add(1 * time.Second))

	if err := e.ApplyAssignment(facility.KindUrinal, 0, t0.Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	// Same slot again: rejected, and the next waiter is not consumed.
	if err := e.ApplyAssignment(facility.KindUrinal, 0, t0.Add(time.Second)); err != ErrNotAvailable {
		t.Fatalf("err = %v, want ErrNotAvailable", err)
	}
	if got := e.queue.WaitingCount(); got != 1 {
		t.Errorf("WaitingCount = %d, rejection consumed the head", got)
	}
	if err := e.ApplyAssignment(facility.KindUrinal, 2, t0.Add(time.Second)); err != nil {
		t.Errorf("follow-up assignment failed: %v", err)
	}
}

func TestAssignmentWithEmptyQueue(t *testing.T) {
	e, _ := newTestEngine(calmConfig(), nil)
	t0 := time.Now()

	e.Start(1, t0)
	e.ApplyAssignment(facility.KindUrinal, 0, t0)

	if err := e.ApplyAssignment(facility.KindUrinal, 2, t0); err != ErrQueueEmpty {
		t.Errorf("err = %v, want ErrQueueEmpty", err)
	}
}

func TestIsAssignmentValid(t *testing.T) {
	e, _ := newTestEngine(calmConfig(), nil)
	t0 := time.Now()
	e.Start(1, t0)

	if !e.IsAssignmentValid(facility.KindUrinal, 0) {
		t.Error("free slot reported invalid")
	}
	if e.IsAssignmentValid(facility.KindUrinal, 99) {
		t.Error("out-of-range slot reported valid")
	}
	if e.IsAssignmentValid(facility.Kind("SINK"), 0) {
		t.Error("unknown kind reported valid")
	}

	e.ApplyAssignment(facility.KindUrinal, 0, t0)
	if e.IsAssignmentValid(facility.KindUrinal, 0) {
		t.Error("occupied slot reported valid")
	}
}

func TestSnapshotQueuePositions(t *testing.T) {
	cfg := calmConfig()
	cfg.Queue.RowSize = 2
	e, _ := newTestEngine(cfg, nil)
	t0 := time.Now()

	e.Start(1, t0)
	e.Tick(t0.Add(1 * time.Second))
	e.Tick(t0.Add(2 * time.Second))

	snap := e.Snapshot(t0.Add(2 * time.Second))
	if len(snap.Occupants) != 3 {
		t.Fatalf("occupants = %d, want 3", len(snap.Occupants))
	}
	wantPos := [][2]int{{0, 0}, {0, 1}, {1, 0}}
	for i, o := range snap.Occupants {
		if o.QueueRow != wantPos[i][0] || o.QueueCol != wantPos[i][1] {
			t.Errorf("occupant %d at (%d,%d), want (%d,%d)", o.ID, o.QueueRow, o.QueueCol, wantPos[i][0], wantPos[i][1])
		}
	}

	// The assigned patron leaves the line; the rest close ranks.
	e.ApplyAssignment(facility.KindUrinal, 0, t0.Add(2*time.Second))
	snap = e.Snapshot(t0.Add(2 * time.Second))
	if snap.Occupants[0].QueueRow != -1 || snap.Occupants[0].QueueCol != -1 {
		t.Errorf("assigned patron still in line at (%d,%d)", snap.Occupants[0].QueueRow, snap.Occupants[0].QueueCol)
	}
	if snap.Occupants[1].QueueRow != 0 || snap.Occupants[1].QueueCol != 0 {
		t.Errorf("line did not close ranks: patron 2 at (%d,%d)", snap.Occupants[1].QueueRow, snap.Occupants[1].QueueCol)
	}
}

func TestRestartAfterGameOverIsClean(t *testing.T) {
	cfg := calmConfig()
	cfg.Queue.WaitBudget = time.Second
	e, _ := newTestEngine(cfg, nil)
	t0 := time.Now()

	e.Start(1, t0)
	e.Tick(t0.Add(1 * time.Second))
	e.Tick(t0.Add(2 * time.Second))
	e.Tick(t0.Add(3 * time.Second))
	if e.Status() != StatusGameOver {
		t.Fatal("expected game over")
	}

	t1 := t0.Add(10 * time.Second)
	e.Start(1, t1)

	snap := e.Snapshot(t1)
	if snap.Status != StatusPlaying || snap.Lives != 3 || snap.Score != 0 {
		t.Errorf("restart state: %+v", snap)
	}
	if snap.GameOverReason != ReasonNone {
		t.Errorf("GameOverReason = %v after restart", snap.GameOverReason)
	}
	if len(snap.Occupants) != 1 || snap.Occupants[0].ID != 1 {
		t.Errorf("patron ids did not restart: %v", snap.Occupants)
	}
	for _, f := range snap.Facilities {
		if f.Occupied || f.OutOfOrder || f.HasReward {
			t.Errorf("slot %v[%d] not reset", f.Kind, f.Index)
		}
	}
}
