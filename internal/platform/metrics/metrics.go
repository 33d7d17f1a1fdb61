// Package metrics provides observability for the game server.
package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Collector gathers performance and gameplay counters.
type Collector struct {
	// Tick metrics
	TickCount      int64
	TickLatencySum int64 // nanoseconds
	TickLatencyMax int64
	LastTickTime   time.Time

	// Gameplay metrics
	SessionsStarted     int64
	GamesOver           int64
	AssignmentsOK       int64
	AssignmentsRejected int64
	Timeouts            int64
	ScoredReleases      int64
	UnscoredReleases    int64
	AdjacencyBreaches   int64
	Milestones          int64
	OutagesStarted      int64
	OutagesRestored     int64
	RewardsPlaced       int64
	RewardsClaimed      int64

	// Persistence metrics
	HighScoreWrites      int64
	HighScoreWriteErrors int64

	// WebSocket metrics
	WSConnectionsActive int64
	WSMessagesIn        int64
	WSMessagesOut       int64
	WSErrors            int64

	// System
	StartTime time.Time
	mu        sync.RWMutex
}

// Global collector instance
var collector = &Collector{
	StartTime: time.Now(),
}

// Get returns the global collector.
func Get() *Collector {
	return collector
}

// RecordTick records a tick cycle completion.
func (c *Collector) RecordTick(latency time.Duration) {
	atomic.AddInt64(&c.TickCount, 1)
	atomic.AddInt64(&c.TickLatencySum, int64(latency))

	// Update max (non-atomic but acceptable for metrics)
	if int64(latency) > atomic.LoadInt64(&c.TickLatencyMax) {
		atomic.StoreInt64(&c.TickLatencyMax, int64(latency))
	}

	c.mu.Lock()
	c.LastTickTime = time.Now()
	c.mu.Unlock()
}

// RecordSessionStarted records a session entering Playing.
func (c *Collector) RecordSessionStarted() {
	atomic.AddInt64(&c.SessionsStarted, 1)
}

// RecordGameOver records a session ending.
func (c *Collector) RecordGameOver() {
	atomic.AddInt64(&c.GamesOver, 1)
}

// RecordAssignment records an assignment attempt.
func (c *Collector) RecordAssignment(ok bool) {
	if ok {
		atomic.AddInt64(&c.AssignmentsOK, 1)
	} else {
		atomic.AddInt64(&c.AssignmentsRejected, 1)
	}
}

// RecordTimeout records a patron giving up.
func (c *Collector) RecordTimeout() {
	atomic.AddInt64(&c.Timeouts, 1)
}

// RecordRelease records an auto-release, scored or not.
func (c *Collector) RecordRelease(scored bool) {
	if scored {
		atomic.AddInt64(&c.ScoredReleases, 1)
	} else {
		atomic.AddInt64(&c.UnscoredReleases, 1)
	}
}

// RecordAdjacencyBreach records an illegal side-by-side placement.
func (c *Collector) RecordAdjacencyBreach() {
	atomic.AddInt64(&c.AdjacencyBreaches, 1)
}

// RecordMilestone records a difficulty bump.
func (c *Collector) RecordMilestone() {
	atomic.AddInt64(&c.Milestones, 1)
}

// RecordOutageStarted records a facility going down.
func (c *Collector) RecordOutageStarted() {
	atomic.AddInt64(&c.OutagesStarted, 1)
}

// RecordOutageRestored records a facility coming back.
func (c *Collector) RecordOutageRestored() {
	atomic.AddInt64(&c.OutagesRestored, 1)
}

// RecordRewardPlaced records a bonus-life reward appearing.
func (c *Collector) RecordRewardPlaced() {
	atomic.AddInt64(&c.RewardsPlaced, 1)
}

// RecordRewardClaimed records a bonus-life reward being consumed.
func (c *Collector) RecordRewardClaimed() {
	atomic.AddInt64(&c.RewardsClaimed, 1)
}

// RecordHighScoreWrite records a persistence attempt at game over.
func (c *Collector) RecordHighScoreWrite(err error) {
	atomic.AddInt64(&c.HighScoreWrites, 1)
	if err != nil {
		atomic.AddInt64(&c.HighScoreWriteErrors, 1)
	}
}

// RecordWSConnection records WebSocket connection changes.
func (c *Collector) RecordWSConnection(delta int64) {
	atomic.AddInt64(&c.WSConnectionsActive, delta)
}

// RecordWSMessage records WebSocket messages.
func (c *Collector) RecordWSMessage(incoming bool) {
	if incoming {
		atomic.AddInt64(&c.WSMessagesIn, 1)
	} else {
		atomic.AddInt64(&c.WSMessagesOut, 1)
	}
}

// RecordWSError records a WebSocket error.
func (c *Collector) RecordWSError() {
	atomic.AddInt64(&c.WSErrors, 1)
}

// Snapshot returns current metrics as a map.
func (c *Collector) Snapshot() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tickCount := atomic.LoadInt64(&c.TickCount)

	var tickAvg float64
	if tickCount > 0 {
		tickAvg = float64(atomic.LoadInt64(&c.TickLatencySum)) / float64(tickCount) / 1e6 // ms
	}

	return map[string]interface{}{
		"uptime_seconds": time.Since(c.StartTime).Seconds(),

		"tick": map[string]interface{}{
			"count":          tickCount,
			"avg_latency_ms": tickAvg,
			"max_latency_ms": float64(atomic.LoadInt64(&c.TickLatencyMax)) / 1e6,
			"last_tick":      c.LastTickTime.Format(time.RFC3339),
		},

		"gameplay": map[string]interface{}{
			"sessions_started":     atomic.LoadInt64(&c.SessionsStarted),
			"games_over":           atomic.LoadInt64(&c.GamesOver),
			"assignments_ok":       atomic.LoadInt64(&c.AssignmentsOK),
			"assignments_rejected": atomic.LoadInt64(&c.AssignmentsRejected),
			"timeouts":             atomic.LoadInt64(&c.Timeouts),
			"scored_releases":      atomic.LoadInt64(&c.ScoredReleases),
			"unscored_releases":    atomic.LoadInt64(&c.UnscoredReleases),
			"adjacency_breaches":   atomic.LoadInt64(&c.AdjacencyBreaches),
			"milestones":           atomic.LoadInt64(&c.Milestones),
			"outages_started":      atomic.LoadInt64(&c.OutagesStarted),
			"outages_restored":     atomic.LoadInt64(&c.OutagesRestored),
			"rewards_placed":       atomic.LoadInt64(&c.RewardsPlaced),
			"rewards_claimed":      atomic.LoadInt64(&c.RewardsClaimed),
		},

		"persistence": map[string]interface{}{
			"high_score_writes": atomic.LoadInt64(&c.HighScoreWrites),
			"write_errors":      atomic.LoadInt64(&c.HighScoreWriteErrors),
		},

		"websocket": map[string]interface{}{
			"active_connections": atomic.LoadInt64(&c.WSConnectionsActive),
			"messages_in":        atomic.LoadInt64(&c.WSMessagesIn),
			"messages_out":       atomic.LoadInt64(&c.WSMessagesOut),
			"errors":             atomic.LoadInt64(&c.WSErrors),
		},
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")

		snapshot := collector.Snapshot()
		json.NewEncoder(w).Encode(snapshot)
	}
}

// PrometheusHandler returns metrics in Prometheus format.
func PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		c := collector

		fmt.Fprintf(w, "# HELP stallrush_tick_count Total tick cycles\n")
		fmt.Fprintf(w, "# TYPE stallrush_tick_count counter\n")
		fmt.Fprintf(w, "stallrush_tick_count %d\n\n", atomic.LoadInt64(&c.TickCount))

		fmt.Fprintf(w, "# HELP stallrush_tick_latency_max_ms Maximum tick latency\n")
		fmt.Fprintf(w, "# TYPE stallrush_tick_latency_max_ms gauge\n")
		fmt.Fprintf(w, "stallrush_tick_latency_max_ms %.2f\n\n", float64(atomic.LoadInt64(&c.TickLatencyMax))/1e6)

		fmt.Fprintf(w, "# HELP stallrush_sessions_started Total sessions started\n")
		fmt.Fprintf(w, "# TYPE stallrush_sessions_started counter\n")
		fmt.Fprintf(w, "stallrush_sessions_started %d\n\n", atomic.LoadInt64(&c.SessionsStarted))

		fmt.Fprintf(w, "# HELP stallrush_assignments_total Total assignment attempts\n")
		fmt.Fprintf(w, "# TYPE stallrush_assignments_total counter\n")
		fmt.Fprintf(w, "stallrush_assignments_total{result=\"ok\"} %d\n", atomic.LoadInt64(&c.AssignmentsOK))
		fmt.Fprintf(w, "stallrush_assignments_total{result=\"rejected\"} %d\n\n", atomic.LoadInt64(&c.AssignmentsRejected))

		fmt.Fprintf(w, "# HELP stallrush_timeouts Total patrons that gave up waiting\n")
		fmt.Fprintf(w, "# TYPE stallrush_timeouts counter\n")
		fmt.Fprintf(w, "stallrush_timeouts %d\n\n", atomic.LoadInt64(&c.Timeouts))

		fmt.Fprintf(w, "# HELP stallrush_releases_total Total auto-releases\n")
		fmt.Fprintf(w, "# TYPE stallrush_releases_total counter\n")
		fmt.Fprintf(w, "stallrush_releases_total{scored=\"true\"} %d\n", atomic.LoadInt64(&c.ScoredReleases))
		fmt.Fprintf(w, "stallrush_releases_total{scored=\"false\"} %d\n\n", atomic.LoadInt64(&c.UnscoredReleases))

		fmt.Fprintf(w, "# HELP stallrush_outages_total Facility outages\n")
		fmt.Fprintf(w, "# TYPE stallrush_outages_total counter\n")
		fmt.Fprintf(w, "stallrush_outages_total{phase=\"started\"} %d\n", atomic.LoadInt64(&c.OutagesStarted))
		fmt.Fprintf(w, "stallrush_outages_total{phase=\"restored\"} %d\n\n", atomic.LoadInt64(&c.OutagesRestored))

		fmt.Fprintf(w, "# HELP stallrush_rewards_total Bonus-life rewards\n")
		fmt.Fprintf(w, "# TYPE stallrush_rewards_total counter\n")
		fmt.Fprintf(w, "stallrush_rewards_total{phase=\"placed\"} %d\n", atomic.LoadInt64(&c.RewardsPlaced))
		fmt.Fprintf(w, "stallrush_rewards_total{phase=\"claimed\"} %d\n\n", atomic.LoadInt64(&c.RewardsClaimed))

		fmt.Fprintf(w, "# HELP stallrush_ws_connections Active WebSocket connections\n")
		fmt.Fprintf(w, "# TYPE stallrush_ws_connections gauge\n")
		fmt.Fprintf(w, "stallrush_ws_connections %d\n\n", atomic.LoadInt64(&c.WSConnectionsActive))

		fmt.Fprintf(w, "# HELP stallrush_ws_messages_total Total WebSocket messages\n")
		fmt.Fprintf(w, "# TYPE stallrush_ws_messages_total counter\n")
		fmt.Fprintf(w, "stallrush_ws_messages_total{direction=\"in\"} %d\n", atomic.LoadInt64(&c.WSMessagesIn))
		fmt.Fprintf(w, "stallrush_ws_messages_total{direction=\"out\"} %d\n", atomic.LoadInt64(&c.WSMessagesOut))
	}
}
