package engine

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/stallrush/server/internal/domain/facility"
	"github.com/stallrush/server/internal/platform/logger"
)

// ErrNotAvailable is returned when the target facility is occupied or out of
// order. Callers surface it to the player; no state changes.
var ErrNotAvailable = errors.New("facility not available")

// AssignResult reports the side effects of a successful assignment.
type AssignResult struct {
	// RewardConsumed is true when the slot carried a bonus-life reward.
	// It is always determined before the adjacency check so a claimed
	// reward lands even on an illegal placement.
	RewardConsumed bool
	// AdjacencyViolation is true when the target is a urinal and an
	// immediate neighbor is occupied. The assignment itself still stands;
	// the caller owes the penalty.
	AdjacencyViolation bool
}

// Released identifies one slot freed by an auto-release sweep.
type Released struct {
	Kind       facility.Kind
	Index      int
	OccupantID int
}

// FacilityPool owns every facility of both kinds, keyed by (kind, index).
// Iteration order is always urinals by ascending index, then cubicles by
// ascending index; callers depend on that for determinism.
type FacilityPool struct {
	urinals  []*facility.Facility
	cubicles []*facility.Facility
	logger   *logger.Logger
}

// NewFacilityPool creates the fixed slot layout for a session. Slots are
// never added or removed afterwards.
func NewFacilityPool(urinalCount, cubicleCount int, urinalUsage, cubicleUsage time.Duration, log *logger.Logger) *FacilityPool {
	p := &FacilityPool{
		urinals:  make([]*facility.Facility, urinalCount),
		cubicles: make([]*facility.Facility, cubicleCount),
		logger:   log,
	}
	for i := range p.urinals {
		p.urinals[i] = facility.New(facility.KindUrinal, i, urinalUsage)
	}
	for i := range p.cubicles {
		p.cubicles[i] = facility.New(facility.KindCubicle, i, cubicleUsage)
	}
	return p
}

// Reset returns every slot to its initial free state, clearing outage and
// reward flags. Stale restoration timers from a previous session then write
// to already-clear flags, which is harmless.
func (p *FacilityPool) Reset() {
	for _, f := range p.urinals {
		f.Reset()
	}
	for _, f := range p.cubicles {
		f.Reset()
	}
}

// Get returns the facility at (kind, index). An out-of-range target is a
// caller bug, not a runtime condition, and panics.
func (p *FacilityPool) Get(kind facility.Kind, index int) *facility.Facility {
	row := p.row(kind)
	if index < 0 || index >= len(row) {
		panic(fmt.Sprintf("facility index out of range: %s[%d]", kind, index))
	}
	return row[index]
}

// InRange reports whether (kind, index) names an existing slot. The input
// boundary uses it to validate untrusted targets before touching Get.
func (p *FacilityPool) InRange(kind facility.Kind, index int) bool {
	switch kind {
	case facility.KindUrinal:
		return index >= 0 && index < len(p.urinals)
	case facility.KindCubicle:
		return index >= 0 && index < len(p.cubicles)
	default:
		return false
	}
}

func (p *FacilityPool) row(kind facility.Kind) []*facility.Facility {
	switch kind {
	case facility.KindUrinal:
		return p.urinals
	case facility.KindCubicle:
		return p.cubicles
	default:
		panic(fmt.Sprintf("unknown facility kind: %q", kind))
	}
}

// Assign places an occupant on the target slot.
//
// Side-effect ordering is significant: a pending reward is consumed and
// reported before the adjacency check runs, and the adjacency check runs
// after occupancy is committed, because the violation is scored against the
// newly created configuration. An adjacent placement is never rejected; it
// succeeds and is reported so the caller can queue the penalty.
func (p *FacilityPool) Assign(kind facility.Kind, index int, occupantID int, now time.Time) (AssignResult, error) {
	f := p.Get(kind, index)
	if !f.Available() {
		return AssignResult{}, ErrNotAvailable
	}

	var res AssignResult
	if f.HasReward {
		f.HasReward = false
		res.RewardConsumed = true
	}

	f.Occupy(occupantID, now)

	if kind == facility.KindUrinal && p.IsAdjacent(index) {
		res.AdjacencyViolation = true
	}
	return res, nil
}

// IsAdjacent reports whether either immediate neighbor of the given urinal
// is occupied. Exposed separately so the rule is testable without Assign.
func (p *FacilityPool) IsAdjacent(index int) bool {
	if index > 0 && p.urinals[index-1].Occupied {
		return true
	}
	if index < len(p.urinals)-1 && p.urinals[index+1].Occupied {
		return true
	}
	return false
}

// Release frees the slot. Idempotent on an already-free slot.
func (p *FacilityPool) Release(kind facility.Kind, index int) {
	p.Get(kind, index).Release()
}

// SweepAutoRelease frees every occupied slot whose usage duration has fully
// elapsed (inclusive boundary) and returns what was released, urinals before
// cubicles, ascending index within each kind.
func (p *FacilityPool) SweepAutoRelease(now time.Time) []Released {
	var released []Released
	for _, row := range [][]*facility.Facility{p.urinals, p.cubicles} {
		for _, f := range row {
			if f.UsageExpired(now) {
				released = append(released, Released{Kind: f.Kind, Index: f.Index, OccupantID: f.OccupantID})
				f.Release()
			}
		}
	}
	return released
}

// SetOutOfOrder toggles the outage flag. Setting it on an occupied slot
// forces a release first: the occupant is evicted silently because this is a
// facility fault, not a player error. The returned id (nonzero) identifies
// the evicted occupant so the caller can drop them from the queue.
// Idempotent in both directions.
func (p *FacilityPool) SetOutOfOrder(kind facility.Kind, index int, flag bool) (evictedID int) {
	f := p.Get(kind, index)
	if flag && f.Occupied {
		evictedID = f.OccupantID
		f.Release()
	}
	f.OutOfOrder = flag
	return evictedID
}

// OutOfOrderCount returns how many slots are currently down.
func (p *FacilityPool) OutOfOrderCount() int {
	count := 0
	for _, row := range [][]*facility.Facility{p.urinals, p.cubicles} {
		for _, f := range row {
			if f.OutOfOrder {
				count++
			}
		}
	}
	return count
}

// weightedCandidate pairs a slot with its selection weight.
type weightedCandidate struct {
	kind   facility.Kind
	index  int
	weight int
}

// PickWeightedDisruptionTarget samples a slot to knock out of order.
// Free urinals are biased 3:1 toward even stalls (counting from 1) at low
// difficulty and toward odd stalls once difficulty passes 5, shifting which
// part of the wall the player can rely on as the game speeds up. Free
// cubicles carry a flat weight of 2. Returns ok=false when nothing is
// eligible.
func (p *FacilityPool) PickWeightedDisruptionTarget(difficulty int, rng *rand.Rand) (facility.Kind, int, bool) {
	var candidates []weightedCandidate
	for _, f := range p.urinals {
		if !f.Available() {
			continue
		}
		ordinal := f.Index + 1
		weight := 1
		if difficulty <= 5 && ordinal%2 == 0 {
			weight = 3
		} else if difficulty > 5 && ordinal%2 == 1 {
			weight = 3
		}
		candidates = append(candidates, weightedCandidate{f.Kind, f.Index, weight})
	}
	for _, f := range p.cubicles {
		if !f.Available() {
			continue
		}
		candidates = append(candidates, weightedCandidate{f.Kind, f.Index, 2})
	}
	return sampleWeighted(candidates, rng)
}

// PickWeightedRewardTarget samples a slot to receive a bonus-life reward,
// favoring even-indexed urinals 3:1 and cubicles at a flat 3. Slots already
// down or already carrying a reward are excluded; occupied slots are fair
// game since the reward is only consumed at the next assignment.
func (p *FacilityPool) PickWeightedRewardTarget(rng *rand.Rand) (facility.Kind, int, bool) {
	var candidates []weightedCandidate
	for _, f := range p.urinals {
		if f.OutOfOrder || f.HasReward {
			continue
		}
		weight := 1
		if f.Index%2 == 0 {
			weight = 3
		}
		candidates = append(candidates, weightedCandidate{f.Kind, f.Index, weight})
	}
	for _, f := range p.cubicles {
		if f.OutOfOrder || f.HasReward {
			continue
		}
		candidates = append(candidates, weightedCandidate{f.Kind, f.Index, 3})
	}
	return sampleWeighted(candidates, rng)
}

func sampleWeighted(candidates []weightedCandidate, rng *rand.Rand) (facility.Kind, int, bool) {
	total := 0
	for _, c := range candidates {
		total += c.weight
	}
	if total == 0 {
		return "", 0, false
	}
	roll := rng.Intn(total)
	for _, c := range candidates {
		roll -= c.weight
		if roll < 0 {
			return c.kind, c.index, true
		}
	}
	// Unreachable: the roll is always consumed by the loop above.
	last := candidates[len(candidates)-1]
	return last.kind, last.index, true
}

// Snapshot returns value copies of every slot, urinals first.
func (p *FacilityPool) Snapshot() []facility.Facility {
	out := make([]facility.Facility, 0, len(p.urinals)+len(p.cubicles))
	for _, f := range p.urinals {
		out = append(out, *f)
	}
	for _, f := range p.cubicles {
		out = append(out, *f)
	}
	return out
}
