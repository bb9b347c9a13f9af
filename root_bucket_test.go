package clutch

import "testing"

func TestNewClutchRootBucketDefaults(t *testing.T) {
	rb := newClutchRootBucket(BucketShareFG, false)
	if rb.WarpRemaining != RootBucketWarpUs[BucketShareFG] {
		t.Fatalf("expected initial warp budget %d, got %d", RootBucketWarpUs[BucketShareFG], rb.WarpRemaining)
	}
	if rb.WarpedDeadline != SchedClutchRootBucketWarpUnused {
		t.Fatalf("expected warped_deadline unused sentinel at construction")
	}
}

func TestDeadlineUpdateAboveTimeshareNoop(t *testing.T) {
	rb := newClutchRootBucket(BucketFixpri, false)
	rb.deadlineUpdate(1000)
	if rb.Deadline != 0 {
		t.Fatalf("FIXPRI root bucket must never set a deadline, got %d", rb.Deadline)
	}
}

func TestDeadlineUpdateSharesWCEL(t *testing.T) {
	rb := newClutchRootBucket(BucketShareIN, false)
	rb.deadlineUpdate(1000)
	want := uint64(1000) + RootBucketWCELUs[BucketShareIN]
	if rb.Deadline != want {
		t.Fatalf("deadline = %d, want %d", rb.Deadline, want)
	}
}

// TestResetWarpRefillsBudget is half of P8: warp_remaining is reset only
// when explicitly requested (the normal-EDF-selection path), never on its
// own.
func TestResetWarpRefillsBudget(t *testing.T) {
	rb := newClutchRootBucket(BucketShareFG, false)
	rb.WarpRemaining = 0
	rb.WarpedDeadline = 500
	rb.resetWarp()
	if rb.WarpRemaining != RootBucketWarpUs[BucketShareFG] {
		t.Fatalf("resetWarp did not refill budget, got %d", rb.WarpRemaining)
	}
	if rb.WarpedDeadline != SchedClutchRootBucketWarpUnused {
		t.Fatalf("resetWarp did not clear warped_deadline")
	}
}

func TestOnEmptyBanksRemainingWarpWindow(t *testing.T) {
	rb := newClutchRootBucket(BucketShareFG, false)
	rb.WarpedDeadline = 1000
	rb.WarpRemaining = 5000 // stale; onEmpty should recompute from the window
	rb.onEmpty(700)
	if rb.WarpRemaining != 300 {
		t.Fatalf("onEmpty should bank remaining window (1000-700=300), got %d", rb.WarpRemaining)
	}
}

func TestOnEmptyExhaustsWarpPastDeadline(t *testing.T) {
	rb := newClutchRootBucket(BucketShareFG, false)
	rb.WarpedDeadline = 1000
	rb.onEmpty(1500)
	if rb.WarpRemaining != 0 {
		t.Fatalf("onEmpty past the warp deadline should zero warp_remaining, got %d", rb.WarpRemaining)
	}
}

func TestOnEmptyAboveTimeshareNoop(t *testing.T) {
	rb := newClutchRootBucket(BucketFixpri, false)
	rb.WarpedDeadline = 1000
	rb.WarpRemaining = 999
	rb.onEmpty(1500)
	if rb.WarpRemaining != 999 {
		t.Fatalf("FIXPRI root bucket's warp state must be untouched, got %d", rb.WarpRemaining)
	}
}
