package clutch

// ClutchRootBucket is the per-QoS lane at the scheduler root: it tracks EDF
// deadline state, warp budget, starvation-avoidance state, and a FIFO of the
// clutch buckets currently contending within this band.
type ClutchRootBucket struct {
	Bucket Bucket
	Bound  bool

	StarvationAvoidance bool
	StarvationTs         uint64

	Deadline       uint64
	WarpRemaining  uint64
	WarpedDeadline uint64

	ClutchBuckets *ClutchBucketRunqueue[*ClutchBucket]
}

func newClutchRootBucket(bucket Bucket, bound bool) *ClutchRootBucket {
	return &ClutchRootBucket{
		Bucket:         bucket,
		Bound:          bound,
		Deadline:       0,
		WarpRemaining:  RootBucketWarpUs[bucket],
		WarpedDeadline: SchedClutchRootBucketWarpUnused,
		ClutchBuckets:  NewClutchBucketRunqueue[*ClutchBucket](),
	}
}

func (rb *ClutchRootBucket) deadlineCalculate(timestamp uint64) uint64 {
	if isAboveTimeshare(rb.Bucket) {
		return 0
	}
	return timestamp + RootBucketWCELUs[rb.Bucket]
}

func (rb *ClutchRootBucket) deadlineUpdate(timestamp uint64) {
	if isAboveTimeshare(rb.Bucket) {
		return
	}
	rb.Deadline = rb.deadlineCalculate(timestamp)
}

// resetWarp refills a root bucket's warp budget. Called only when the
// bucket is next selected through the normal EDF path (spec P8).
func (rb *ClutchRootBucket) resetWarp() {
	rb.WarpRemaining = RootBucketWarpUs[rb.Bucket]
	rb.WarpedDeadline = SchedClutchRootBucketWarpUnused
}

// onEmpty banks any remaining warp budget when a bucket empties mid-window.
func (rb *ClutchRootBucket) onEmpty(timestamp uint64) {
	if isAboveTimeshare(rb.Bucket) {
		return
	}
	if rb.WarpedDeadline != SchedClutchRootBucketWarpUnused {
		if timestamp >= rb.WarpedDeadline {
			rb.WarpRemaining = 0
		} else {
			rb.WarpRemaining = rb.WarpedDeadline - timestamp
		}
	}
}
