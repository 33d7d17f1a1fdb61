package engine

import (
	"math/rand"
	"time"

	"github.com/stallrush/server/internal/config"
	"github.com/stallrush/server/internal/domain/facility"
	"github.com/stallrush/server/internal/events"
	"github.com/stallrush/server/internal/platform/logger"
	"github.com/stallrush/server/internal/platform/metrics"
)

// DisruptionScheduler runs the two stochastic background processes: facility
// outages and bonus-life rewards. Each has its own check interval,
// independent of the session tick. The scheduler is started when a session
// begins and stopped on pause, game over and return to menu; restoration
// timers for outages already in flight are deliberately NOT retracted by
// Stop — a slot that broke stays broken for its full drawn duration, and only
// a full pool reset neutralizes a late restoration.
type DisruptionScheduler struct {
	cfg    config.DisruptionConfig
	pool   *FacilityPool
	queue  *OccupantQueue
	tasks  *taskQueue
	log    *events.EventLog
	logger *logger.Logger

	running      bool
	nextOutageAt time.Time
	nextRewardAt time.Time
}

// NewDisruptionScheduler wires the scheduler to the pool and queue it
// disrupts. The task queue and RNG are shared with the engine so all
// stochastic effects drain deterministically on the same tick.
func NewDisruptionScheduler(cfg config.DisruptionConfig, pool *FacilityPool, queue *OccupantQueue, tasks *taskQueue, log *events.EventLog, lg *logger.Logger) *DisruptionScheduler {
	return &DisruptionScheduler{
		cfg:    cfg,
		pool:   pool,
		queue:  queue,
		tasks:  tasks,
		log:    log,
		logger: lg,
	}
}

// Start arms both check intervals. No-op when already running.
func (ds *DisruptionScheduler) Start(now time.Time) {
	if ds.running {
		return
	}
	ds.running = true
	ds.nextOutageAt = now.Add(ds.cfg.OutageCheckInterval)
	ds.nextRewardAt = now.Add(ds.cfg.RewardCheckInterval)
}

// Stop cancels the recurring checks. One-shot restorations stay scheduled.
func (ds *DisruptionScheduler) Stop() {
	ds.running = false
}

// Running reports whether the recurring checks are armed.
func (ds *DisruptionScheduler) Running() bool {
	return ds.running
}

// Update fires any check whose interval has elapsed. Called from the engine
// tick only while the session is Playing.
func (ds *DisruptionScheduler) Update(now time.Time, difficulty int, sessionID string, rng *rand.Rand) {
	if !ds.running {
		return
	}
	if !now.Before(ds.nextOutageAt) {
		ds.nextOutageAt = now.Add(ds.cfg.OutageCheckInterval)
		ds.checkOutage(now, difficulty, sessionID, rng)
	}
	if !now.Before(ds.nextRewardAt) {
		ds.nextRewardAt = now.Add(ds.cfg.RewardCheckInterval)
		ds.checkReward(now, sessionID, rng)
	}
}

// checkOutage rolls for a new outage. The trigger probability ramps with
// difficulty and caps at 50%; the number of simultaneous outages is capped
// so the arena never becomes unplayable.
func (ds *DisruptionScheduler) checkOutage(now time.Time, difficulty int, sessionID string, rng *rand.Rand) {
	if difficulty < ds.cfg.OutageMinDifficulty {
		return
	}
	probability := float64(difficulty-2) * 0.15
	if probability > 0.5 {
		probability = 0.5
	}
	if rng.Float64() >= probability {
		return
	}
	if ds.pool.OutOfOrderCount() >= ds.cfg.OutageMaxActive {
		return
	}

	kind, index, ok := ds.pool.PickWeightedDisruptionTarget(difficulty, rng)
	if !ok {
		return
	}
	if evicted := ds.pool.SetOutOfOrder(kind, index, true); evicted != 0 {
		// Facility fault, not a player error: the occupant leaves with
		// no life penalty.
		ds.queue.Remove(evicted)
	}

	restoreIn := ds.cfg.RestoreMin
	if span := ds.cfg.RestoreMax - ds.cfg.RestoreMin; span > 0 {
		restoreIn += time.Duration(rng.Int63n(int64(span) + 1))
	}
	ds.scheduleRestore(now.Add(restoreIn), kind, index, sessionID)

	metrics.Get().RecordOutageStarted()
	ds.logger.Event("OUTAGE_STARTED", "kind", kind, "index", index, "restore_in", restoreIn)
	ds.log.Append(events.GameEvent{
		Type:      events.EventTypeOutageStarted,
		SessionID: sessionID,
		Payload:   events.FacilityPayload{Kind: string(kind), Index: index},
	})
}

// scheduleRestore arms the one-shot restoration for a specific slot. It
// fires exactly once regardless of pause, game over or menu; after a session
// reset it writes to an already-clear flag.
func (ds *DisruptionScheduler) scheduleRestore(at time.Time, kind facility.Kind, index int, sessionID string) {
	ds.tasks.Schedule(at.UnixNano(), func() {
		ds.pool.SetOutOfOrder(kind, index, false)
		metrics.Get().RecordOutageRestored()
		ds.logger.Event("OUTAGE_RESTORED", "kind", kind, "index", index)
		ds.log.Append(events.GameEvent{
			Type:      events.EventTypeOutageRestored,
			SessionID: sessionID,
			Payload:   events.FacilityPayload{Kind: string(kind), Index: index},
		})
	})
}

// checkReward rolls for a bonus-life reward placement. Rewards never expire;
// they persist until claimed by an assignment or wiped by a reset.
func (ds *DisruptionScheduler) checkReward(now time.Time, sessionID string, rng *rand.Rand) {
	if rng.Float64() >= ds.cfg.RewardProbability {
		return
	}
	kind, index, ok := ds.pool.PickWeightedRewardTarget(rng)
	if !ok {
		return
	}
	ds.pool.Get(kind, index).HasReward = true

	metrics.Get().RecordRewardPlaced()
	ds.logger.Event("REWARD_PLACED", "kind", kind, "index", index)
	ds.log.Append(events.GameEvent{
		Type:      events.EventTypeRewardPlaced,
		SessionID: sessionID,
		Payload:   events.FacilityPayload{Kind: string(kind), Index: index},
	})
}
