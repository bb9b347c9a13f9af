package clutch

// ClutchBucketGroup aggregates one (thread_group, QoS-bucket) pair across
// every cluster. It tracks load/CPU counters and interactivity scoring used
// to derive both pri_shift (timeshare decay aggressiveness) and the clutch
// bucket's own scb_priority (root-bucket FIFO ordering signal).
type ClutchBucketGroup struct {
	Bucket Bucket
	clutch *SchedClutch

	timeshareTick int64
	priShift      int

	cpuUsed    uint64
	cpuBlocked uint64

	blockedCount int
	blockedTs    uint64

	pendingCount int
	pendingTs    uint64

	interactivityScore int
	interactivityTs    uint64

	buckets []*ClutchBucket // one per cluster
}

func newClutchBucketGroup(bucket Bucket, clutch *SchedClutch) *ClutchBucketGroup {
	return &ClutchBucketGroup{
		Bucket:             bucket,
		clutch:             clutch,
		priShift:           127,
		cpuBlocked:         ClutchBucketGroupAdjustThresholdUs,
		blockedTs:          InvalidTime64,
		pendingTs:          InvalidTime64,
		interactivityScore: clutchBucketGroupInitialInteractivity,
	}
}

func (g *ClutchBucketGroup) initClutchBucket(clusterID int) *ClutchBucket {
	cb := newClutchBucket(g.Bucket, g)
	for len(g.buckets) <= clusterID {
		g.buckets = append(g.buckets, nil)
	}
	g.buckets[clusterID] = cb
	return cb
}

func (g *ClutchBucketGroup) runCountInc(timestamp uint64) {
	g.blockedCount++
	if g.blockedCount == 1 {
		if g.blockedTs != InvalidTime64 {
			blockedDur := uint64(0)
			if timestamp > g.blockedTs {
				blockedDur = timestamp - g.blockedTs
			}
			if blockedDur > ClutchBucketGroupAdjustThresholdUs {
				blockedDur = ClutchBucketGroupAdjustThresholdUs
			}
			g.cpuBlocked += blockedDur
		}
	}
}

func (g *ClutchBucketGroup) runCountDec(timestamp uint64) {
	g.blockedCount--
	if g.blockedCount == 0 {
		g.blockedTs = timestamp
	}
}

func (g *ClutchBucketGroup) thrCountInc(timestamp uint64) {
	g.pendingCount++
	if g.pendingTs == InvalidTime64 {
		g.pendingTs = timestamp
	}
}

func (g *ClutchBucketGroup) thrCountDec(timestamp uint64) {
	g.pendingCount--
	if g.pendingCount == 0 {
		g.pendingTs = InvalidTime64
	}
}

func (g *ClutchBucketGroup) cpuUsageUpdate(delta uint64) {
	if isAboveTimeshare(g.Bucket) {
		return
	}
	if delta > ClutchBucketGroupAdjustThresholdUs {
		delta = ClutchBucketGroupAdjustThresholdUs
	}
	g.cpuUsed += delta
}

func (g *ClutchBucketGroup) cpuAdjust(pendingIntervals int) {
	if pendingIntervals == 0 && g.cpuUsed+g.cpuBlocked < ClutchBucketGroupAdjustThresholdUs {
		return
	}
	if g.cpuUsed+g.cpuBlocked >= ClutchBucketGroupAdjustThresholdUs {
		g.cpuUsed /= ClutchBucketGroupAdjustRatio
		g.cpuBlocked /= ClutchBucketGroupAdjustRatio
	}
	g.cpuUsed = cpuPendingAdjust(g.cpuUsed, g.cpuBlocked, pendingIntervals)
}

func cpuPendingAdjust(cpuUsed, cpuBlocked uint64, pendingIntervals int) uint64 {
	if pendingIntervals == 0 {
		return cpuUsed
	}
	const interactivePri = ClutchBucketGroupInteractivePriDefault
	if cpuBlocked < cpuUsed {
		numerator := interactivePri * cpuBlocked * cpuUsed
		denominator := uint64(interactivePri)*cpuBlocked + cpuUsed*uint64(pendingIntervals)
		if denominator == 0 {
			return 0
		}
		return numerator / denominator
	}
	adjustFactor := (cpuBlocked * uint64(pendingIntervals)) / interactivePri
	if cpuUsed < adjustFactor {
		return 0
	}
	return cpuUsed - adjustFactor
}

func (g *ClutchBucketGroup) interactivityFromCPUData() int {
	const interactivePri = ClutchBucketGroupInteractivePriDefault
	if g.cpuBlocked == 0 && g.cpuUsed == 0 {
		return g.interactivityScore
	}
	if g.cpuBlocked > g.cpuUsed {
		return interactivePri + int(interactivePri*(g.cpuBlocked-g.cpuUsed)/g.cpuBlocked)
	}
	if g.cpuUsed == 0 {
		return interactivePri
	}
	return int(uint64(interactivePri) * g.cpuBlocked / g.cpuUsed)
}

func (g *ClutchBucketGroup) interactivityScoreCalculate(timestamp uint64, globalBucketLoad int) {
	if isAboveTimeshare(g.Bucket) {
		return
	}
	pendingIntervals := g.pendingAgeout(timestamp, globalBucketLoad)
	g.cpuAdjust(pendingIntervals)
	score := g.interactivityFromCPUData()
	if timestamp > g.interactivityTs {
		g.interactivityScore = score
		g.interactivityTs = timestamp
	}
}

func (g *ClutchBucketGroup) pendingAgeout(timestamp uint64, globalBucketLoad int) int {
	if g.pendingTs == InvalidTime64 || g.pendingTs >= timestamp || globalBucketLoad == 0 {
		return 0
	}
	interactivityDelta := SchedClutchBucketGroupPendingDeltaUs[g.Bucket] + uint64(globalBucketLoad)*ThreadQuantumUs[g.Bucket]
	pendingDelta := timestamp - g.pendingTs
	if interactivityDelta == 0 || pendingDelta < interactivityDelta {
		return 0
	}
	shift := int(pendingDelta / interactivityDelta)
	g.pendingTs += uint64(shift) * interactivityDelta
	return shift
}

func (g *ClutchBucketGroup) priShiftUpdate(currentTick int64, processorCount int) {
	if isAboveTimeshare(g.Bucket) {
		return
	}
	if g.timeshareTick >= currentTick {
		return
	}
	g.timeshareTick = currentTick
	g.priShift = priShiftForLoad(g.blockedCount, processorCount)
}

// ClutchBucket is a single (thread_group, QoS-bucket, cluster) runqueue.
type ClutchBucket struct {
	Bucket         Bucket
	Priority       int
	ThrCount       int
	Group          *ClutchBucketGroup
	Root           *ClutchRootBucket // nil when not currently inserted into the hierarchy

	ThreadRunq        *StablePriorityQueue[*Thread]
	ClutchpriPrioq    *PriorityQueueMax[*Thread]
	TimeshareThreads  []*Thread
}

func newClutchBucket(bucket Bucket, group *ClutchBucketGroup) *ClutchBucket {
	cb := &ClutchBucket{Bucket: bucket, Group: group}
	cb.ThreadRunq = NewStablePriorityQueue[*Thread](func(t *Thread) int { return t.SchedPri })
	cb.ClutchpriPrioq = NewPriorityQueueMax[*Thread](func(t *Thread) int { return t.BasePri })
	return cb
}

func (cb *ClutchBucket) basePriority() int {
	if cb.ClutchpriPrioq.Empty() {
		return 0
	}
	return cb.ClutchpriPrioq.MaxPriority()
}

func (cb *ClutchBucket) priCalculate(timestamp uint64, globalBucketLoad int) int {
	if cb.ThrCount == 0 {
		return 0
	}
	cb.Group.interactivityScoreCalculate(timestamp, globalBucketLoad)
	pri := cb.basePriority() + cb.Group.interactivityScore
	if pri > 255 {
		pri = 255
	}
	return pri
}

// SchedClutch is the per-thread-group clutch hierarchy root: six
// ClutchBucketGroups, one per QoS band.
type SchedClutch struct {
	ThreadGroup *ThreadGroup
	ThrCount    int
	Groups      [BucketSchedMax]*ClutchBucketGroup
}

func newSchedClutch(tg *ThreadGroup) *SchedClutch {
	sc := &SchedClutch{ThreadGroup: tg}
	for b := Bucket(0); b < BucketSchedMax; b++ {
		sc.Groups[b] = newClutchBucketGroup(b, sc)
		sc.Groups[b].initClutchBucket(0)
	}
	return sc
}

func (sc *SchedClutch) BucketForThread(t *Thread, clusterID int) *ClutchBucket {
	return sc.Groups[t.Bucket].buckets[clusterID]
}

func (sc *SchedClutch) BucketGroupForThread(t *Thread) *ClutchBucketGroup {
	return sc.Groups[t.Bucket]
}
