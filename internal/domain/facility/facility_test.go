package facility

import (
	"testing"
	"time"
)

func TestParseKind(t *testing.T) {
	if k, ok := ParseKind("URINAL"); !ok || k != KindUrinal {
		t.Errorf("ParseKind(URINAL) = %v, %v", k, ok)
	}
	if k, ok := ParseKind("CUBICLE"); !ok || k != KindCubicle {
		t.Errorf("ParseKind(CUBICLE) = %v, %v", k, ok)
	}
	if _, ok := ParseKind("urinal"); ok {
		t.Error("ParseKind should be case sensitive")
	}
	if _, ok := ParseKind("SINK"); ok {
		t.Error("ParseKind accepted an unknown kind")
	}
}

func TestOccupyAndRelease(t *testing.T) {
	now := time.Now()
	f := New(KindUrinal, 0, 5*time.Second)

	if !f.Available() {
		t.Fatal("fresh facility should be available")
	}

	f.Occupy(7, now)
	if f.Available() {
		t.Error("occupied facility reported available")
	}
	if f.OccupantID != 7 {
		t.Errorf("OccupantID = %d, want 7", f.OccupantID)
	}

	f.Release()
	if !f.Available() {
		t.Error("released facility should be available")
	}
	if f.OccupantID != 0 {
		t.Errorf("OccupantID after release = %d, want 0", f.OccupantID)
	}

	// Release is idempotent.
	f.Release()
	if !f.Available() {
		t.Error("double release broke availability")
	}
}

func TestOutOfOrderBlocksAvailability(t *testing.T) {
	f := New(KindCubicle, 1, 8*time.Second)
	f.OutOfOrder = true
	if f.Available() {
		t.Error("out-of-order facility reported available")
	}
}

func TestUsageExpiredInclusiveBoundary(t *testing.T) {
	now := time.Now()
	f := New(KindUrinal, 2, 5*time.Second)
	f.Occupy(1, now)

	if f.UsageExpired(now.Add(4999 * time.Millisecond)) {
		t.Error("usage expired before the duration elapsed")
	}
	if !f.UsageExpired(now.Add(5 * time.Second)) {
		t.Error("usage should expire exactly at the duration")
	}
	if !f.UsageExpired(now.Add(6 * time.Second)) {
		t.Error("usage should stay expired past the duration")
	}
}

func TestUsageExpiredRequiresOccupancy(t *testing.T) {
	f := New(KindUrinal, 0, time.Second)
	if f.UsageExpired(time.Now().Add(time.Hour)) {
		t.Error("a free facility can never have an expired usage")
	}
}

func TestResetClearsAllFlags(t *testing.T) {
	f := New(KindUrinal, 3, 5*time.Second)
	f.Occupy(9, time.Now())
	f.OutOfOrder = true
	f.HasReward = true

	f.Reset()

	if f.Occupied || f.OutOfOrder || f.HasReward || f.OccupantID != 0 {
		t.Errorf("Reset left state behind: %+v", f)
	}
}
