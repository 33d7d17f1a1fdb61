// Package occupant defines the domain entity for a patron waiting in line.
// This package is PURE and must NOT import any infrastructure packages.
package occupant

import (
	"time"

	"github.com/stallrush/server/internal/domain/facility"
)

// State identifies where a patron is in their visit.
// Transitions are monotone: Waiting -> Assigned -> Using -> removed.
type State string

const (
	StateWaiting  State = "WAITING"
	StateAssigned State = "ASSIGNED"
	StateUsing    State = "USING" // marker for rendering; the facility's usage clock governs removal
)

// Occupant represents a single patron. IDs are monotonically increasing and
// never reused within a session.
type Occupant struct {
	ID         int           `json:"id"`
	SpawnedAt  time.Time     `json:"spawned_at"`
	WaitBudget time.Duration `json:"wait_budget"`
	State      State         `json:"state"`

	// Set on assignment.
	FacilityKind  facility.Kind `json:"facility_kind,omitempty"`
	FacilityIndex int           `json:"facility_index"`
}

// New creates a fresh patron in the Waiting state.
func New(id int, now time.Time, waitBudget time.Duration) *Occupant {
	return &Occupant{
		ID:         id,
		SpawnedAt:  now,
		WaitBudget: waitBudget,
		State:      StateWaiting,
	}
}

// TimeRemaining returns how long the patron will keep waiting before storming
// out. Computed on demand from the spawn timestamp, never accumulated, so the
// check is stateless and replay-safe. Once assigned the value freezes at the
// full budget.
func (o *Occupant) TimeRemaining(now time.Time) time.Duration {
	if o.State != StateWaiting {
		return o.WaitBudget
	}
	remaining := o.WaitBudget - now.Sub(o.SpawnedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Expired reports whether a still-waiting patron has run out of patience.
func (o *Occupant) Expired(now time.Time) bool {
	return o.State == StateWaiting && o.TimeRemaining(now) == 0
}

// Assign records the target facility and walks the patron through
// Waiting -> Assigned -> Using. Assigned is instantaneous; Using is the
// stored state observed by collaborators.
func (o *Occupant) Assign(kind facility.Kind, index int) {
	o.State = StateAssigned
	o.FacilityKind = kind
	o.FacilityIndex = index
	o.State = StateUsing
}
