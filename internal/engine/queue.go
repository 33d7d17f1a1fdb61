package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/stallrush/server/internal/domain/facility"
	"github.com/stallrush/server/internal/domain/occupant"
	"github.com/stallrush/server/internal/platform/logger"
)

// ErrQueueEmpty is returned when an assignment is requested with nobody
// waiting. Expected contention; callers surface it and change nothing.
var ErrQueueEmpty = errors.New("no waiting occupant")

// OccupantQueue owns the live set of patrons, ordered by ascending id.
// The ordering is load-bearing: timeout scans and head-of-queue assignment
// both iterate it, and "serve the oldest waiter" is the fairness rule — the
// player chooses where a patron goes, never which patron goes.
type OccupantQueue struct {
	occupants   []*occupant.Occupant // ascending id
	nextID      int
	waitBudget  time.Duration
	lastSpawnAt time.Time
	logger      *logger.Logger
}

// NewOccupantQueue creates an empty queue. Ids start at 1.
func NewOccupantQueue(waitBudget time.Duration, log *logger.Logger) *OccupantQueue {
	return &OccupantQueue{
		nextID:     1,
		waitBudget: waitBudget,
		logger:     log,
	}
}

// Reset clears all patrons and restarts the id counter at 1.
func (q *OccupantQueue) Reset() {
	q.occupants = q.occupants[:0]
	q.nextID = 1
	q.lastSpawnAt = time.Time{}
}

// Spawn creates a new waiting patron with the next id.
func (q *OccupantQueue) Spawn(now time.Time) *occupant.Occupant {
	o := occupant.New(q.nextID, now, q.waitBudget)
	q.nextID++
	q.occupants = append(q.occupants, o)
	q.lastSpawnAt = now
	return o
}

// MaybeSpawn spawns a patron when the cadence interval has elapsed since the
// last spawn, returning nil otherwise.
func (q *OccupantQueue) MaybeSpawn(now time.Time, rate time.Duration) *occupant.Occupant {
	if now.Sub(q.lastSpawnAt) < rate {
		return nil
	}
	return q.Spawn(now)
}

// CheckTimeout returns the first waiting patron (lowest id) whose patience
// has run out, or nil. At most one expiry is reported per call; callers scan
// again next tick for any others.
func (q *OccupantQueue) CheckTimeout(now time.Time) *occupant.Occupant {
	for _, o := range q.occupants {
		if o.Expired(now) {
			return o
		}
	}
	return nil
}

// AssignHead transitions the oldest waiting patron to the given facility.
func (q *OccupantQueue) AssignHead(kind facility.Kind, index int) (*occupant.Occupant, error) {
	for _, o := range q.occupants {
		if o.State == occupant.StateWaiting {
			o.Assign(kind, index)
			return o, nil
		}
	}
	return nil, ErrQueueEmpty
}

// Get returns the patron with the given id. An unknown id is a caller bug
// and panics.
func (q *OccupantQueue) Get(id int) *occupant.Occupant {
	for _, o := range q.occupants {
		if o.ID == id {
			return o
		}
	}
	panic(fmt.Sprintf("unknown occupant id: %d", id))
}

// Remove deletes the patron from the live set unconditionally; used for both
// normal completion and forced eviction. An unknown id is a caller bug and
// panics.
func (q *OccupantQueue) Remove(id int) {
	for i, o := range q.occupants {
		if o.ID == id {
			q.occupants = append(q.occupants[:i], q.occupants[i+1:]...)
			return
		}
	}
	panic(fmt.Sprintf("remove of unknown occupant id: %d", id))
}

// Len returns the number of live patrons.
func (q *OccupantQueue) Len() int {
	return len(q.occupants)
}

// WaitingCount returns how many patrons are still in line.
func (q *OccupantQueue) WaitingCount() int {
	count := 0
	for _, o := range q.occupants {
		if o.State == occupant.StateWaiting {
			count++
		}
	}
	return count
}

// Occupants exposes the live set in id order for snapshotting.
func (q *OccupantQueue) Occupants() []*occupant.Occupant {
	return q.occupants
}
