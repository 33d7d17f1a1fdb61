// Package facility defines the domain entity for an assignable fixture slot.
// This package is PURE and must NOT import any infrastructure packages.
package facility

import "time"

// Kind distinguishes the two fixture types. Urinals are subject to the
// adjacency rule; cubicles are exempt.
type Kind string

const (
	KindUrinal  Kind = "URINAL"
	KindCubicle Kind = "CUBICLE"
)

// ParseKind maps a wire string to a Kind. Used at the input boundary where
// kind names arrive untrusted.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindUrinal:
		return KindUrinal, true
	case KindCubicle:
		return KindCubicle, true
	default:
		return "", false
	}
}

// Facility represents a single assignable slot. Slots are created once at
// pool initialization with a fixed kind and index and live for the whole
// session; only occupancy and the outage/reward flags mutate.
type Facility struct {
	Kind          Kind          `json:"kind"`
	Index         int           `json:"index"` // zero-based, stable within kind
	Occupied      bool          `json:"occupied"`
	OccupantID    int           `json:"occupant_id"` // 0 = none; weak reference, never owning
	OccupiedAt    time.Time     `json:"occupied_at"`
	UsageDuration time.Duration `json:"usage_duration"`
	OutOfOrder    bool          `json:"out_of_order"`
	HasReward     bool          `json:"has_reward"`
}

// New creates a free facility of the given kind at the given index.
func New(kind Kind, index int, usage time.Duration) *Facility {
	return &Facility{
		Kind:          kind,
		Index:         index,
		UsageDuration: usage,
	}
}

// Available reports whether the slot can accept an occupant right now.
func (f *Facility) Available() bool {
	return !f.Occupied && !f.OutOfOrder
}

// Occupy marks the slot taken by the given occupant and stamps the usage clock.
func (f *Facility) Occupy(occupantID int, now time.Time) {
	f.Occupied = true
	f.OccupantID = occupantID
	f.OccupiedAt = now
}

// Release clears occupancy. Idempotent on an already-free slot.
func (f *Facility) Release() {
	f.Occupied = false
	f.OccupantID = 0
	f.OccupiedAt = time.Time{}
}

// UsageExpired reports whether the occupant has been in the slot for the full
// usage duration. The boundary is inclusive.
func (f *Facility) UsageExpired(now time.Time) bool {
	return f.Occupied && now.Sub(f.OccupiedAt) >= f.UsageDuration
}

// Reset returns the slot to its initial state, clearing all flags.
func (f *Facility) Reset() {
	f.Release()
	f.OutOfOrder = false
	f.HasReward = false
}
