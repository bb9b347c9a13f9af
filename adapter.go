package clutch

import (
	"fmt"
	"sort"
	"strconv"
)

// This file is the thin Scheduler <-> Adapter surface named in spec §6: a
// human-facing layer above the core (out of scope here) consumes the
// scheduler exclusively through these entry points. create_thread_group/
// create_thread/terminate_thread/set_thread_urgency are quiescent-window
// mutations (spec §5); Snapshot is the read side.

// createThreadGroupID registers a new thread group and returns its ID.
func (e *Engine) createThreadGroupID(name string) ThreadGroupID {
	return e.CreateThreadGroup(name).ID
}

// CreateThread constructs and registers a thread within an existing group,
// giving it the default behavior profile (defaultBehavior), and schedules
// its first event via AddThread: a wakeup for a non-realtime thread, a
// period start for a realtime one.
func (e *Engine) CreateThread(tid Tid, groupID ThreadGroupID, mode SchedMode, basePri int, boundProcessor *int, rtPeriod, rtComputation, rtConstraint uint64) (*Thread, error) {
	tg, ok := e.Scheduler.AllThreadGroups[groupID]
	if !ok {
		return nil, fmt.Errorf("thread group %d: not found", groupID)
	}
	var t *Thread
	var err error
	if mode == ModeRealtime {
		t, err = NewRealtimeThread(tid, threadName(tid), tg, basePri, boundProcessor, rtPeriod, rtComputation, rtConstraint)
	} else {
		t, err = NewThread(tid, threadName(tid), tg, mode, basePri, boundProcessor)
	}
	if err != nil {
		return nil, err
	}
	e.AddThread(t, defaultBehavior())
	return t, nil
}

// TerminateThread removes tid from every runqueue it might be in and marks
// it TERMINATED. Per spec §7, subsequent events targeting it are silently
// dropped rather than erroring.
func (e *Engine) TerminateThread(tid Tid) {
	t, ok := e.Scheduler.AllThreads[tid]
	if !ok {
		return
	}
	if t.State == ThreadRunnable {
		e.Scheduler.ThreadRemove(t, e.Clock)
	}
	if t.State == ThreadRunning {
		if p := e.findProcessorForThread(t); p != nil {
			p.ActiveThread = nil
			p.CurrentPri = NoPri
			p.State = ProcessorIdle
		}
	}
	t.State = ThreadTerminated
	delete(e.behaviors, tid)
	delete(e.blockDeadlines, tid)
}

// SetThreadUrgency moves a runnable thread to a different QoS bucket within
// its thread group at a quiescent point (spec §6). A RUNNING/WAITING
// thread's bucket takes effect the next time it is enqueued.
func (e *Engine) SetThreadUrgency(tid Tid, basePri int) {
	t, ok := e.Scheduler.AllThreads[tid]
	if !ok {
		return
	}
	wasRunnable := t.State == ThreadRunnable
	if wasRunnable {
		e.Scheduler.ThreadRemove(t, e.Clock)
	}
	t.BasePri = basePri
	if t.SchedMode != ModeRealtime {
		t.MaxPriority = basePri
	}
	t.SchedPri = basePri
	t.Bucket = threadBucketMap(t.SchedMode, basePri)
	if wasRunnable {
		e.Scheduler.ThreadSetrun(t, e.Clock, SchedTailq)
	}
}

func threadName(tid Tid) string {
	return "adapter-thread-" + strconv.Itoa(int(tid))
}

// -- snapshot (spec §6) --

// ThreadSnapshot is one per-thread row of Snapshot's output.
type ThreadSnapshot struct {
	Tid              Tid
	State            ThreadState
	SchedPri         int
	SchedBucket      Bucket
	CPUUsage         uint64
	QuantumRemaining uint64
	QuantumBase      uint64
	RTDeadline       uint64
	HasRTDeadline    bool
	IsActive         bool
	RunQueueRank     int // -1 when not queued (running or waiting)
}

// RootBucketSnapshot is one per-root-bucket row of Snapshot's output.
type RootBucketSnapshot struct {
	Band              Bucket
	WarpRemaining     uint64
	WarpTotal         uint64
	Deadline          uint64
	DeadlineRemaining int64
}

// ProcessorSnapshot is one per-processor row of Snapshot's output.
type ProcessorSnapshot struct {
	ProcessorID int
	ActiveTid   Tid
	HasActive   bool
	CurrentPri  int
}

// Snapshot is the serializable read-side state spec.md §6 exposes to an
// external consumer between events.
type Snapshot struct {
	Timestamp    uint64
	Threads      []ThreadSnapshot
	RootBuckets  []RootBucketSnapshot
	Processors   []ProcessorSnapshot
	RecentTraces []string
}

const snapshotTraceWindow = 50

// Snapshot builds the current read-side view, grounded on spec.md §6's
// literal field list plus the supplemented run_queue_rank diagnostic.
func (e *Engine) Snapshot() Snapshot {
	snap := Snapshot{Timestamp: e.Clock}

	tids := make([]Tid, 0, len(e.Scheduler.AllThreads))
	for tid := range e.Scheduler.AllThreads {
		tids = append(tids, tid)
	}
	sort.Slice(tids, func(i, j int) bool { return tids[i] < tids[j] })

	ranks := e.computeRunQueueRanks()
	for _, tid := range tids {
		t := e.Scheduler.AllThreads[tid]
		if t.State == ThreadTerminated {
			continue
		}
		ts := ThreadSnapshot{
			Tid:              t.Tid,
			State:            t.State,
			SchedPri:         t.SchedPri,
			SchedBucket:      t.Bucket,
			CPUUsage:         t.TotalCPUUs,
			QuantumRemaining: t.QuantumRemaining,
			QuantumBase:      t.QuantumBase,
			IsActive:         t.State == ThreadRunning,
			RunQueueRank:     -1,
		}
		if t.IsRealtime() {
			ts.RTDeadline = t.RTDeadline
			ts.HasRTDeadline = t.RTDeadline != RTDeadlineNone
		}
		if rank, ok := ranks[t.Tid]; ok {
			ts.RunQueueRank = rank
		}
		snap.Threads = append(snap.Threads, ts)
	}

	for b := Bucket(0); b < BucketSchedMax; b++ {
		rb := e.Scheduler.Pset.ClutchRoot.RootBuckets[b]
		var remaining int64
		if rb.Deadline > e.Clock {
			remaining = int64(rb.Deadline - e.Clock)
		}
		snap.RootBuckets = append(snap.RootBuckets, RootBucketSnapshot{
			Band:              b,
			WarpRemaining:     rb.WarpRemaining,
			WarpTotal:         RootBucketWarpUs[b],
			Deadline:          rb.Deadline,
			DeadlineRemaining: remaining,
		})
	}

	for _, p := range e.Scheduler.Pset.Processors {
		ps := ProcessorSnapshot{ProcessorID: p.ProcessorID, CurrentPri: p.CurrentPri}
		if p.ActiveThread != nil {
			ps.ActiveTid = p.ActiveThread.Tid
			ps.HasActive = true
		}
		snap.Processors = append(snap.Processors, ps)
	}

	n := len(e.Scheduler.TraceLog)
	start := 0
	if n > snapshotTraceWindow {
		start = n - snapshotTraceWindow
	}
	snap.RecentTraces = append(snap.RecentTraces, e.Scheduler.TraceLog[start:]...)

	return snap
}

// computeRunQueueRanks walks every runqueue in the system (RT, each
// processor's bound runq, each clutch bucket's thread runq) and returns
// each queued thread's 0-based position within its own queue (for the RT
// queue, within its priority level).
func (e *Engine) computeRunQueueRanks() map[Tid]int {
	ranks := map[Tid]int{}

	for idx := NRTQS - 1; idx >= 0; idx-- {
		level := e.Scheduler.Pset.RTRunq.levels[idx]
		for i, t := range level {
			ranks[t.Tid] = i
		}
	}

	for _, p := range e.Scheduler.Pset.Processors {
		for i, t := range p.BoundRunq.Items() {
			ranks[t.Tid] = i
		}
	}

	for _, tg := range e.Scheduler.AllThreadGroups {
		for b := Bucket(0); b < BucketSchedMax; b++ {
			cb := tg.Clutch.Groups[b].buckets[e.Scheduler.Pset.ClutchRoot.ClusterID]
			for i, t := range cb.ThreadRunq.Items() {
				ranks[t.Tid] = i
			}
		}
	}

	return ranks
}
