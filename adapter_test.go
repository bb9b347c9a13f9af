package clutch

import "testing"

func TestCreateThreadGroupIDReturnsRegisteredID(t *testing.T) {
	e := NewEngine(1, 1)
	id := e.createThreadGroupID("tg")
	if _, ok := e.Scheduler.AllThreadGroups[id]; !ok {
		t.Fatalf("expected thread group %d to be registered", id)
	}
}

func TestCreateThreadRejectsUnknownGroup(t *testing.T) {
	e := NewEngine(1, 1)
	if _, err := e.CreateThread(1, 999, ModeTimeshare, 30, nil, 0, 0, 0); err == nil {
		t.Fatalf("expected error for unknown thread group id")
	}
}

func TestCreateThreadTimeshareSchedulesWakeup(t *testing.T) {
	e := NewEngine(1, 1)
	gid := e.createThreadGroupID("tg")
	th, err := e.CreateThread(1, gid, ModeTimeshare, 30, nil, 0, 0, 0)
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if th.State != ThreadWaiting {
		t.Fatalf("expected newly created thread WAITING, got %s", th.State)
	}
	if e.events.Len() != 1 || e.events[0].Kind != EventThreadWakeup {
		t.Fatalf("expected a wakeup event scheduled for the new thread")
	}
}

func TestCreateThreadRealtimeSchedulesPeriodStart(t *testing.T) {
	e := NewEngine(1, 1)
	gid := e.createThreadGroupID("tg")
	th, err := e.CreateThread(1, gid, ModeRealtime, BasePriRealtime, nil, 10000, 1000, 2000)
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if !th.IsRealtime() {
		t.Fatalf("expected an RT thread")
	}
	if e.events.Len() != 1 || e.events[0].Kind != EventRTPeriodStart {
		t.Fatalf("expected an RT period-start event scheduled for the new thread")
	}
}

func TestTerminateThreadRunningFreesProcessor(t *testing.T) {
	e := NewEngine(1, 1)
	gid := e.createThreadGroupID("tg")
	th, _ := e.CreateThread(1, gid, ModeTimeshare, 30, nil, 0, 0, 0)
	dispatchFirstWakeup(e)
	if th.State != ThreadRunning {
		t.Fatalf("setup: expected thread running")
	}

	e.TerminateThread(th.Tid)
	if th.State != ThreadTerminated {
		t.Fatalf("expected thread TERMINATED, got %s", th.State)
	}
	p := e.Scheduler.Pset.Processors[0]
	if p.ActiveThread != nil {
		t.Fatalf("expected processor freed after its active thread terminates")
	}
	if !p.IsIdle() {
		t.Fatalf("expected processor IDLE after terminating its sole thread")
	}
}

func TestTerminateThreadRunnableRemovesFromRunqueue(t *testing.T) {
	e := NewEngine(1, 1)
	tg := e.CreateThreadGroup("tg")
	low := mustThread(t, 1, tg, ModeTimeshare, 20)
	high := mustThread(t, 2, tg, ModeTimeshare, 40)
	e.Scheduler.registerThread(low)
	e.Scheduler.registerThread(high)

	if p := e.Scheduler.ThreadSetrun(low, 0, SchedTailq); p != nil {
		e.Scheduler.HandlePreemption(p, 0)
	}
	if p := e.Scheduler.ThreadSetrun(high, 1, SchedPreempt|SchedTailq); p != nil {
		e.Scheduler.HandlePreemption(p, 1)
	}
	if low.State != ThreadRunnable {
		t.Fatalf("setup: expected low preempted into RUNNABLE, got %s", low.State)
	}

	e.TerminateThread(low.Tid)
	if low.State != ThreadTerminated {
		t.Fatalf("expected terminated thread to end up TERMINATED, got %s", low.State)
	}

	cb := tg.Clutch.BucketForThread(low, e.Scheduler.Pset.ClutchRoot.ClusterID)
	for _, item := range cb.ThreadRunq.Items() {
		if item == low {
			t.Fatalf("terminated thread must not remain in its clutch bucket runqueue")
		}
	}
}

func TestTerminateThreadUnknownTidIsNoop(t *testing.T) {
	e := NewEngine(1, 1)
	e.TerminateThread(999) // must not panic
}

func TestSetThreadUrgencyRepositionsRunnableThread(t *testing.T) {
	e := NewEngine(1, 1)
	gid := e.createThreadGroupID("tg")
	low, _ := e.CreateThread(1, gid, ModeTimeshare, BasePriUtility, nil, 0, 0, 0)
	high, _ := e.CreateThread(2, gid, ModeTimeshare, BasePriForeground, nil, 0, 0, 0)
	dispatchFirstWakeup(e) // dispatches whichever wakeup event sorts first
	dispatchFirstWakeup(e)

	if high.State != ThreadRunning {
		t.Fatalf("setup: expected high-priority thread running, low=%s high=%s", low.State, high.State)
	}

	e.SetThreadUrgency(low.Tid, BasePriForeground+5)
	if low.Bucket != BucketShareFG {
		t.Fatalf("expected urgency bump to remap bucket to FG, got %s", low.Bucket)
	}
	if low.BasePri != BasePriForeground+5 {
		t.Fatalf("expected BasePri updated, got %d", low.BasePri)
	}
}

func TestSetThreadUrgencyUnknownTidIsNoop(t *testing.T) {
	e := NewEngine(1, 1)
	e.SetThreadUrgency(999, 50) // must not panic
}

func TestSnapshotReflectsRunningAndRunnableThreads(t *testing.T) {
	e := NewEngine(1, 1)
	tg := e.CreateThreadGroup("tg")
	low := mustThread(t, 1, tg, ModeTimeshare, 20)
	high := mustThread(t, 2, tg, ModeTimeshare, 40)
	e.Scheduler.registerThread(low)
	e.Scheduler.registerThread(high)
	e.Stats.RegisterThread(low)
	e.Stats.RegisterThread(high)

	if p := e.Scheduler.ThreadSetrun(low, 0, SchedTailq); p != nil {
		e.Scheduler.HandlePreemption(p, 0)
	}
	if p := e.Scheduler.ThreadSetrun(high, 1, SchedPreempt|SchedTailq); p != nil {
		e.Scheduler.HandlePreemption(p, 1)
	}

	snap := e.Snapshot()
	if len(snap.Threads) != 2 {
		t.Fatalf("expected 2 threads in snapshot, got %d", len(snap.Threads))
	}
	var sawRunning, sawRunnableRanked bool
	for _, ts := range snap.Threads {
		if ts.Tid == high.Tid {
			if !ts.IsActive || ts.State != ThreadRunning {
				t.Fatalf("expected high thread marked active/running in snapshot: %+v", ts)
			}
			sawRunning = true
		}
		if ts.Tid == low.Tid {
			if ts.IsActive || ts.State != ThreadRunnable {
				t.Fatalf("expected low thread marked runnable, not active: %+v", ts)
			}
			if ts.RunQueueRank < 0 {
				t.Fatalf("expected preempted thread to have a non-negative run queue rank")
			}
			sawRunnableRanked = true
		}
	}
	if !sawRunning || !sawRunnableRanked {
		t.Fatalf("snapshot missing expected thread states")
	}

	if len(snap.RootBuckets) != int(BucketSchedMax) {
		t.Fatalf("expected %d root bucket snapshots, got %d", BucketSchedMax, len(snap.RootBuckets))
	}
	if len(snap.Processors) != 1 {
		t.Fatalf("expected 1 processor snapshot, got %d", len(snap.Processors))
	}
	if !snap.Processors[0].HasActive || snap.Processors[0].ActiveTid != high.Tid {
		t.Fatalf("expected processor snapshot to report the running thread, got %+v", snap.Processors[0])
	}
}

func TestSnapshotThreadsAreSortedByTid(t *testing.T) {
	e := NewEngine(1, 1)
	gid := e.createThreadGroupID("tg")
	// registered out of tid order, since map iteration order would
	// otherwise be unspecified and this must not affect the snapshot.
	for _, tid := range []Tid{5, 1, 3} {
		if _, err := e.CreateThread(tid, gid, ModeTimeshare, 30, nil, 0, 0, 0); err != nil {
			t.Fatalf("CreateThread(%d): %v", tid, err)
		}
	}

	snap := e.Snapshot()
	if len(snap.Threads) != 3 {
		t.Fatalf("expected 3 threads in snapshot, got %d", len(snap.Threads))
	}
	for i := 1; i < len(snap.Threads); i++ {
		if snap.Threads[i-1].Tid >= snap.Threads[i].Tid {
			t.Fatalf("expected threads sorted by ascending tid, got %v", snap.Threads)
		}
	}
}

func TestSnapshotOmitsTerminatedThreads(t *testing.T) {
	e := NewEngine(1, 1)
	gid := e.createThreadGroupID("tg")
	th, _ := e.CreateThread(1, gid, ModeTimeshare, 30, nil, 0, 0, 0)
	dispatchFirstWakeup(e)
	e.TerminateThread(th.Tid)

	snap := e.Snapshot()
	for _, ts := range snap.Threads {
		if ts.Tid == th.Tid {
			t.Fatalf("expected terminated thread omitted from snapshot")
		}
	}
}
