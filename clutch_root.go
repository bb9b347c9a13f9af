package clutch

// ClutchRoot is the hierarchy "above" root buckets for a single cluster: it
// implements the EDF loop, warp override, and starvation avoidance across
// the six QoS root buckets, and exposes the overall scheduling priority
// ScrPriority. Per this repo's bound-runqueue Open Question resolution
// (SPEC_FULL.md §E), bound threads never enter this hierarchy at all — they
// live exclusively in their Processor's own StablePriorityQueue — so unlike
// the Python reference, ClutchRoot here carries only the unbound root
// buckets.
type ClutchRoot struct {
	ClusterID int

	RootBuckets [BucketSchedMax]*ClutchRootBucket
	edf         *PriorityQueueDeadlineMin[*ClutchRootBucket]

	runnableBitmap      uint64
	warpAvailableBitmap uint64

	ScrPriority  int
	ScrThrCount  int
	ScrUrgency   int
	GlobalBucketLoad [BucketSchedMax]int

	ClutchBucketsList []*ClutchBucket

	// Supplemented instrumentation (SPEC_FULL.md §C.item 6 / §E): the
	// reference declares these counters but never increments them; this
	// repo wires them at the exact transitions P7/P8 care about.
	StarvationEvents int
	WarpActivations  int
}

func newClutchRoot(clusterID int) *ClutchRoot {
	cr := &ClutchRoot{ClusterID: clusterID, ScrPriority: NoPri}
	for b := Bucket(0); b < BucketSchedMax; b++ {
		cr.RootBuckets[b] = newClutchRootBucket(b, false)
	}
	cr.edf = NewPriorityQueueDeadlineMin[*ClutchRootBucket](func(rb *ClutchRootBucket) uint64 { return rb.Deadline })
	return cr
}

func (cr *ClutchRoot) bitSet(b Bucket)   { cr.runnableBitmap |= 1 << uint(b) }
func (cr *ClutchRoot) bitClear(b Bucket) { cr.runnableBitmap &^= 1 << uint(b) }
func (cr *ClutchRoot) bitTest(b Bucket) bool { return cr.runnableBitmap&(1<<uint(b)) != 0 }

func (cr *ClutchRoot) warpBitSet(b Bucket)   { cr.warpAvailableBitmap |= 1 << uint(b) }
func (cr *ClutchRoot) warpBitClear(b Bucket) { cr.warpAvailableBitmap &^= 1 << uint(b) }
func (cr *ClutchRoot) warpBitTest(b Bucket) bool { return cr.warpAvailableBitmap&(1<<uint(b)) != 0 }

// rootBucketRunnable is called when a root bucket transitions from empty to
// non-empty.
func (cr *ClutchRoot) rootBucketRunnable(rb *ClutchRootBucket, timestamp uint64) {
	cr.bitSet(rb.Bucket)
	if isAboveTimeshare(rb.Bucket) {
		return
	}
	if !rb.StarvationAvoidance {
		rb.deadlineUpdate(timestamp)
	}
	cr.edf.Insert(rb)
	if rb.WarpRemaining > 0 {
		cr.warpBitSet(rb.Bucket)
	}
}

// rootBucketEmpty is called when a root bucket transitions from non-empty to
// empty.
func (cr *ClutchRoot) rootBucketEmpty(rb *ClutchRootBucket, timestamp uint64) {
	cr.bitClear(rb.Bucket)
	if isAboveTimeshare(rb.Bucket) {
		return
	}
	cr.edf.Remove(rb)
	cr.warpBitClear(rb.Bucket)
	rb.onEmpty(timestamp)
}

func (cr *ClutchRoot) clutchBucketHierarchyInsert(cb *ClutchBucket, rb *ClutchRootBucket, timestamp uint64, options EnqueueOptions) {
	head := options&ClutchBucketOptionsHeadq != 0
	wasEmpty := rb.ClutchBuckets.Empty()
	rb.ClutchBuckets.Enqueue(cb, cb.Priority, head)
	cb.Root = rb
	cr.GlobalBucketLoad[rb.Bucket]++
	if wasEmpty {
		cr.rootBucketRunnable(rb, timestamp)
	}
}

func (cr *ClutchRoot) clutchBucketHierarchyRemove(cb *ClutchBucket, rb *ClutchRootBucket, timestamp uint64) {
	rb.ClutchBuckets.Dequeue(cb, cb.Priority)
	cb.Root = nil
	cr.GlobalBucketLoad[rb.Bucket]--
	if rb.ClutchBuckets.Empty() {
		cr.rootBucketEmpty(rb, timestamp)
	}
}

// ClutchBucketRunnable inserts a previously-empty clutch bucket into the
// hierarchy, returning whether ScrPriority increased as a result.
func (cr *ClutchRoot) ClutchBucketRunnable(cb *ClutchBucket, timestamp uint64, options EnqueueOptions) bool {
	before := cr.ScrPriority
	cb.Priority = cb.priCalculate(timestamp, cr.GlobalBucketLoad[cb.Bucket])
	rb := cr.RootBuckets[cb.Bucket]
	cr.clutchBucketHierarchyInsert(cb, rb, timestamp, options)
	cb.Group.priShiftUpdate(0, 1)
	cr.rootPriUpdate()
	return cr.ScrPriority > before
}

// ClutchBucketUpdate recomputes a clutch bucket's priority and repositions
// it within its root bucket's FIFO.
func (cr *ClutchRoot) ClutchBucketUpdate(cb *ClutchBucket, timestamp uint64, options EnqueueOptions) {
	rb := cr.RootBuckets[cb.Bucket]
	oldPri := cb.Priority
	newPri := cb.priCalculate(timestamp, cr.GlobalBucketLoad[cb.Bucket])
	cb.Priority = newPri
	if oldPri == newPri {
		if options&ClutchBucketOptionsSamepriRR != 0 {
			rb.ClutchBuckets.RotateAt(newPri)
		}
	} else {
		head := options&ClutchBucketOptionsHeadq != 0
		rb.ClutchBuckets.MoveItem(cb, oldPri, newPri, head)
	}
	cr.rootPriUpdate()
}

// ClutchBucketEmpty removes a now-empty clutch bucket from the hierarchy.
func (cr *ClutchRoot) ClutchBucketEmpty(cb *ClutchBucket, timestamp uint64) {
	rb := cr.RootBuckets[cb.Bucket]
	cr.clutchBucketHierarchyRemove(cb, rb, timestamp)
	cb.Priority = 0
	cr.rootPriUpdate()
}

// rootPriUpdate recomputes ScrPriority: the AboveUI (FIXPRI vs FG) contest
// is special-cased first for display purposes, matching XNU's duplicated
// aboveui-select logic; otherwise the first runnable bucket in index order
// wins. The reported priority is the winning clutch bucket's raw highest
// runnable thread priority (clutchpri), not its interactivity-adjusted
// scb_priority.
func (cr *ClutchRoot) rootPriUpdate() {
	fixpri := cr.RootBuckets[BucketFixpri]
	fg := cr.RootBuckets[BucketShareFG]

	var winner *ClutchRootBucket
	if !fixpri.ClutchBuckets.Empty() && !fg.ClutchBuckets.Empty() {
		fixHead, _ := fixpri.ClutchBuckets.PeekHighest()
		fgHead, _ := fg.ClutchBuckets.PeekHighest()
		if fgHead.Priority > fixHead.Priority {
			winner = fg
		} else {
			winner = fixpri
		}
	} else if !fixpri.ClutchBuckets.Empty() {
		winner = fixpri
	} else if !fg.ClutchBuckets.Empty() {
		winner = fg
	} else {
		for b := Bucket(0); b < BucketSchedMax; b++ {
			if !cr.RootBuckets[b].ClutchBuckets.Empty() {
				winner = cr.RootBuckets[b]
				break
			}
		}
	}

	if winner == nil {
		cr.ScrPriority = NoPri
		return
	}
	head, ok := winner.ClutchBuckets.PeekHighest()
	if !ok {
		cr.ScrPriority = NoPri
		return
	}
	cr.ScrPriority = head.ClutchpriPrioq.MaxPriority()
}

func priGreaterTiebreak(priOne, priTwo int, oneWinsTies bool) bool {
	if oneWinsTies {
		return priOne >= priTwo
	}
	return priOne > priTwo
}

// HighestRootBucket is the top-level root-bucket selection entry point
// (spec §4.3's root-bucket phase).
func (cr *ClutchRoot) HighestRootBucket(timestamp uint64, prevBucket *ClutchRootBucket, prevThread *Thread) (*ClutchRootBucket, bool) {
	hasPrev := prevBucket != nil && prevThread != nil

	anyRunnable := cr.runnableBitmap != 0
	if !anyRunnable {
		if hasPrev {
			return prevBucket, true
		}
		return nil, false
	}

	if cr.bitTest(BucketFixpri) || (hasPrev && prevBucket.Bucket == BucketFixpri) {
		if rb, chosePrev, ok := cr.selectAboveUI(prevBucket, prevThread, hasPrev); ok {
			return rb, chosePrev
		}
	}

	return cr.evaluateRootBuckets(timestamp, prevBucket, prevThread)
}

// selectAboveUI implements the AboveUI fast path (SPEC_FULL.md §C.item 3):
// FIXPRI vs FG vs the keep-running incumbent, bypassing EDF entirely when
// FIXPRI wins. Returns ok=false to defer to EDF when FG (or neither) wins.
func (cr *ClutchRoot) selectAboveUI(prevBucket *ClutchRootBucket, prevThread *Thread, hasPrev bool) (*ClutchRootBucket, bool, bool) {
	fixpri := cr.RootBuckets[BucketFixpri]
	fg := cr.RootBuckets[BucketShareFG]

	fixpriPri := -1
	if !fixpri.ClutchBuckets.Empty() {
		head, _ := fixpri.ClutchBuckets.PeekHighest()
		fixpriPri = head.ClutchpriPrioq.MaxPriority()
	}
	fgPri := -1
	if !fg.ClutchBuckets.Empty() {
		head, _ := fg.ClutchBuckets.PeekHighest()
		fgPri = head.ClutchpriPrioq.MaxPriority()
	}

	prevIsAboveUI := hasPrev && prevBucket.Bucket == BucketFixpri
	prevPri := -1
	if prevIsAboveUI {
		cbg := prevThread.ThreadGroup.Clutch.BucketGroupForThread(prevThread)
		prevPri = prevThread.SchedPri + cbg.interactivityScore
	}

	winnerIsFixpri := fixpriPri >= 0
	winnerPri := fixpriPri
	// FG must strictly exceed FIXPRI's head priority to win; FIXPRI wins ties.
	if fgPri > winnerPri {
		winnerIsFixpri = false
		winnerPri = fgPri
	}
	prevShouldWinTies := prevIsAboveUI && winnerIsFixpri
	if prevIsAboveUI && priGreaterTiebreak(prevPri, winnerPri, prevShouldWinTies) {
		winnerIsFixpri = true
	}

	if !winnerIsFixpri {
		return nil, false, false
	}

	chosePrev := hasPrev && prevBucket.Bucket == BucketFixpri && !cr.bitTest(BucketFixpri)
	return fixpri, chosePrev, true
}

// evaluateRootBuckets is the EDF + warp + starvation loop (spec §4.3's
// bulleted root-bucket policy, ported from clutch_root.py's
// _evaluate_root_buckets / "evaluate_root_buckets:" label loop).
func (cr *ClutchRoot) evaluateRootBuckets(timestamp uint64, prevBucket *ClutchRootBucket, prevThread *Thread) (*ClutchRootBucket, bool) {
	hasPrev := prevBucket != nil && prevThread != nil
	prevInEDF := hasPrev && !isAboveTimeshare(prevBucket.Bucket)

	for {
		edfBucket, ok := cr.edf.PeekMin()
		if !ok {
			if prevInEDF {
				return prevBucket, true
			}
			return nil, false
		}
		enqueuedNormally := true
		if prevInEDF && prevBucket != edfBucket && prevBucket.Deadline < edfBucket.Deadline {
			edfBucket = prevBucket
			enqueuedNormally = false
		}

		if edfBucket.StarvationAvoidance && timestamp >= edfBucket.StarvationTs+ThreadQuantumUs[edfBucket.Bucket] {
			edfBucket.StarvationAvoidance = false
			edfBucket.deadlineUpdate(timestamp)
			if enqueuedNormally {
				cr.edf.UpdateDeadline(edfBucket)
			}
			continue
		}

		warpBucket, warpFound := cr.findWarpCandidate(edfBucket)
		prevBucketWarping := prevInEDF && prevBucket != edfBucket &&
			prevBucket.WarpRemaining > 0 && prevBucket.Bucket < edfBucket.Bucket &&
			(!warpFound || prevBucket.Bucket < warpBucket.Bucket)

		canWarp := warpFound || prevBucketWarping
		if !canWarp {
			cr.handleEDFSelection(edfBucket, timestamp, prevBucket, enqueuedNormally)
			return edfBucket, !enqueuedNormally
		}

		chosenWarp := warpBucket
		if prevBucketWarping {
			chosenWarp = prevBucket
		}

		if chosenWarp.WarpedDeadline == SchedClutchRootBucketWarpUnused {
			chosenWarp.WarpedDeadline = timestamp + chosenWarp.WarpRemaining
			chosenWarp.deadlineUpdate(timestamp)
			if !prevBucketWarping {
				cr.edf.UpdateDeadline(chosenWarp)
			}
			cr.WarpActivations++
			return chosenWarp, prevBucketWarping
		}
		if chosenWarp.WarpedDeadline > timestamp {
			chosenWarp.deadlineUpdate(timestamp)
			if !prevBucketWarping {
				cr.edf.UpdateDeadline(chosenWarp)
			}
			return chosenWarp, prevBucketWarping
		}

		chosenWarp.WarpRemaining = 0
		if !prevBucketWarping {
			cr.warpBitClear(chosenWarp.Bucket)
		}
		continue
	}
}

// findWarpCandidate finds the lowest-indexed (highest priority) bucket with
// an open warp-available bit, excluding the current EDF winner.
func (cr *ClutchRoot) findWarpCandidate(edfBucket *ClutchRootBucket) (*ClutchRootBucket, bool) {
	for b := Bucket(0); b < edfBucket.Bucket; b++ {
		if cr.warpBitTest(b) {
			return cr.RootBuckets[b], true
		}
	}
	return nil, false
}

// handleEDFSelection decides starvation-avoidance entry for the natural EDF
// winner and, absent that, resets its warp budget (P8: warp resets only
// when a band is next selected via normal EDF).
func (cr *ClutchRoot) handleEDFSelection(edfBucket *ClutchRootBucket, timestamp uint64, prevBucket *ClutchRootBucket, enqueuedNormally bool) {
	highestRunnable := cr.highestRunnableQoS()
	if prevBucket != nil && int(prevBucket.Bucket) < highestRunnable {
		highestRunnable = int(prevBucket.Bucket)
	}

	if !edfBucket.StarvationAvoidance {
		if highestRunnable < int(edfBucket.Bucket) {
			edfBucket.StarvationAvoidance = true
			edfBucket.StarvationTs = timestamp
			cr.StarvationEvents++
			return
		}
		edfBucket.deadlineUpdate(timestamp)
		if enqueuedNormally {
			cr.edf.UpdateDeadline(edfBucket)
		}
		edfBucket.resetWarp()
		if enqueuedNormally {
			cr.warpBitSet(edfBucket.Bucket)
		}
		return
	}
	edfBucket.deadlineUpdate(timestamp)
	if enqueuedNormally {
		cr.edf.UpdateDeadline(edfBucket)
	}
	edfBucket.resetWarp()
	if enqueuedNormally {
		cr.warpBitSet(edfBucket.Bucket)
	}
}

func (cr *ClutchRoot) highestRunnableQoS() int {
	for b := Bucket(0); b < BucketSchedMax; b++ {
		if cr.bitTest(b) {
			return int(b)
		}
	}
	return int(BucketSchedMax)
}

// RootBucketHighestClutchBucket is the clutch-bucket phase of spec §4.3:
// within a chosen root bucket, pick the FIFO head, letting a same-bucket
// prev_thread win ties on its first timeslice.
func (cr *ClutchRoot) RootBucketHighestClutchBucket(rb *ClutchRootBucket, prevThread *Thread, firstTimeslice bool) (*ClutchBucket, bool) {
	if rb.ClutchBuckets.Empty() {
		if prevThread != nil {
			cb := prevThread.ThreadGroup.Clutch.BucketForThread(prevThread, cr.ClusterID)
			return cb, true
		}
		return nil, false
	}
	head, _ := rb.ClutchBuckets.PeekHighest()
	if prevThread != nil {
		prevCB := prevThread.ThreadGroup.Clutch.BucketForThread(prevThread, cr.ClusterID)
		if prevCB != head {
			cbg := prevThread.ThreadGroup.Clutch.BucketGroupForThread(prevThread)
			prevPri := prevThread.SchedPri + cbg.interactivityScore
			if priGreaterTiebreak(prevPri, head.Priority, firstTimeslice) {
				return prevCB, true
			}
		}
	}
	return head, false
}

// HierarchyThreadHighest is the full three-level lookup of spec §4.3,
// ported from clutch_root.py's hierarchy_thread_highest.
func (cr *ClutchRoot) HierarchyThreadHighest(timestamp uint64, prevThread *Thread, firstTimeslice bool) (*Thread, *ClutchRootBucket, bool) {
	var prevBucket *ClutchRootBucket
	if prevThread != nil && !prevThread.IsRealtime() && prevThread.ThreadGroup != nil && prevThread.ThreadGroup.Clutch != nil {
		prevBucket = cr.RootBuckets[prevThread.Bucket]
	}

	rb, chosePrevRoot := cr.HighestRootBucket(timestamp, prevBucket, prevThread)
	if rb == nil {
		return nil, nil, false
	}
	if chosePrevRoot {
		return prevThread, rb, true
	}

	// prev only competes within its own root bucket.
	if prevBucket != rb {
		prevThread = nil
	}

	cb, chosePrevCB := cr.RootBucketHighestClutchBucket(rb, prevThread, firstTimeslice)
	if cb == nil {
		return nil, rb, false
	}
	if chosePrevCB {
		return prevThread, rb, true
	}

	thread, ok := cb.ThreadRunq.PeekMax()
	if !ok {
		return nil, rb, false
	}
	if prevThread != nil {
		prevCB := prevThread.ThreadGroup.Clutch.BucketForThread(prevThread, cr.ClusterID)
		if prevCB == cb && priGreaterTiebreak(prevThread.SchedPri, thread.SchedPri, firstTimeslice) {
			return prevThread, rb, true
		}
	}
	return thread, rb, false
}
