package clutch

import (
	"container/heap"
	"math/rand"
)

// Engine is the discrete-event simulation loop that drives a Scheduler
// (spec §4.7/§5). Grounded on original_source/simulator/engine.py's
// SimulationEngine. It is the sole driver of simulated time: the clock only
// advances by popping an event off the heap, and it owns the single
// *rand.Rand instance every BehaviorProfile sample is threaded through, per
// SPEC_FULL.md §E's determinism resolution.
type Engine struct {
	Clock     uint64
	Scheduler *Scheduler
	Stats     *StatsCollector
	Rng       *rand.Rand

	events  eventHeap
	eventSeq uint64

	behaviors map[Tid]BehaviorProfile
	// blockDeadlines guards against a stale THREAD_BLOCK event firing after
	// the thread it targeted already woke and ran again (engine.py's
	// _thread_block_deadlines).
	blockDeadlines map[Tid]uint64

	allThreads []*Thread
}

// NewEngine constructs an Engine for a numCPUs-processor cluster, seeded
// for reproducible sampling (spec §5's P6).
func NewEngine(numCPUs int, seed int64) *Engine {
	e := &Engine{
		Scheduler:      NewScheduler(numCPUs),
		Rng:            rand.New(rand.NewSource(seed)),
		behaviors:      map[Tid]BehaviorProfile{},
		blockDeadlines: map[Tid]uint64{},
	}
	e.Stats = NewStatsCollector(numCPUs)
	heap.Init(&e.events)
	return e
}

func (e *Engine) scheduleEvent(timestamp uint64, kind EventKind, threadID Tid, processorID int, data uint64) {
	e.eventSeq++
	heap.Push(&e.events, newEvent(timestamp, kind, threadID, processorID, data, e.eventSeq))
}

// AddThread registers a thread and its behavior, scheduling its first
// wakeup (non-RT) or its first period start (RT). Grounded on engine.py's
// add_thread.
func (e *Engine) AddThread(t *Thread, behavior BehaviorProfile) {
	e.Scheduler.registerThread(t)
	e.behaviors[t.Tid] = behavior
	e.Stats.RegisterThread(t)
	e.allThreads = append(e.allThreads, t)

	if t.IsRealtime() {
		e.scheduleEvent(0, EventRTPeriodStart, t.Tid, -1, 0)
		return
	}
	e.scheduleEvent(0, EventThreadWakeup, t.Tid, -1, 0)
}

// CreateThreadGroup is the thin registration entry point the adapter layer
// (adapter.go) and AddWorkload use to materialize a named thread group.
func (e *Engine) CreateThreadGroup(name string) *ThreadGroup {
	return e.Scheduler.createThreadGroupLocked(name)
}

// AddWorkload instantiates a WorkloadProfile's threads within tg and
// registers each with the engine, ready to run from t=0.
func (e *Engine) AddWorkload(tg *ThreadGroup, wp WorkloadProfile, nextTid *Tid) []*Thread {
	threads, behaviors := wp.instantiate(e.Scheduler, tg, nextTid)
	for i, t := range threads {
		e.AddThread(t, behaviors[i])
	}
	return threads
}

func (e *Engine) findThread(tid Tid) *Thread {
	return e.Scheduler.AllThreads[tid]
}

func (e *Engine) findProcessorForThread(t *Thread) *Processor {
	for _, p := range e.Scheduler.Pset.Processors {
		if p.ActiveThread == t {
			return p
		}
	}
	return nil
}

// Run drains the event heap until EventSimulationEnd, or until the heap
// empties early (nothing left to schedule). Grounded on engine.py's run.
func (e *Engine) Run(durationUs uint64) {
	e.scheduleEvent(durationUs, EventSimulationEnd, -1, -1, 0)
	for tick := SchedTickIntervalUs; uint64(tick) < durationUs; tick += SchedTickIntervalUs {
		e.scheduleEvent(uint64(tick), EventSchedTick, -1, -1, 0)
	}

	for e.events.Len() > 0 {
		ev := heap.Pop(&e.events).(Event)
		e.Clock = ev.Timestamp
		if ev.Kind == EventSimulationEnd {
			break
		}
		e.handleEvent(ev)
	}

	for _, p := range e.Scheduler.Pset.Processors {
		if p.ActiveThread != nil {
			e.Scheduler.chargeCPU(p.ActiveThread, e.Clock)
		}
	}
	e.Stats.SyncStarvationCounters(e.Scheduler.Pset.ClutchRoot)
	e.Stats.Finalize(e.allThreads, e.Clock)
}

func (e *Engine) handleEvent(ev Event) {
	switch ev.Kind {
	case EventThreadWakeup:
		e.handleThreadWakeup(ev)
	case EventThreadBlock:
		e.handleThreadBlock(ev)
	case EventQuantumExpire:
		e.handleQuantumExpire(ev)
	case EventSchedTick:
		e.handleSchedTick(ev)
	case EventRTPeriodStart:
		e.handleRTPeriodStart(ev)
	}
}

// handleThreadWakeup wakes a WAITING thread and, if the scheduler signals a
// processor, hands it to HandlePreemption (spec §4.7's select-then-dispatch
// split). A thread that successfully starts running gets its quantum-expire
// scheduled; one that doesn't win the processor just sits runnable.
func (e *Engine) handleThreadWakeup(ev Event) {
	t := e.findThread(ev.ThreadID)
	if t == nil || t.State == ThreadTerminated {
		return
	}
	e.Stats.WakeupCount++
	if p := e.Scheduler.ThreadWakeup(t, e.Clock); p != nil {
		e.dispatchFollowUp(p, e.Scheduler.HandlePreemption(p, e.Clock))
	}
}

// handleThreadBlock voluntarily removes the processor's current thread and
// schedules its next wakeup. The deadline guard discards a stale event for
// a thread that isn't the one this block event was scheduled against
// (e.g. it was already preempted and rescheduled since), matching
// engine.py's _handle_thread_block. A realtime thread's next wakeup is its
// next period start, already scheduled by handleRTPeriodStart, so it's
// excluded here too (engine.py's "if behavior and not thread.is_realtime").
func (e *Engine) handleThreadBlock(ev Event) {
	t := e.findThread(ev.ThreadID)
	if t == nil || t.State != ThreadRunning {
		return
	}
	if e.blockDeadlines[t.Tid] != ev.Data {
		return
	}
	delete(e.blockDeadlines, t.Tid)

	p := e.findProcessorForThread(t)
	if p == nil {
		return
	}
	e.Stats.BlockCount++
	newThread := e.Scheduler.ThreadBlock(t, p, e.Clock)
	if !t.IsRealtime() {
		e.scheduleWakeupFor(t)
	}
	e.dispatchFollowUp(p, newThread)
}

// handleQuantumExpire fires when a dispatched thread's quantum runs out.
// Both staleness checks mirror engine.py's _handle_quantum_expire: the
// processor may have switched threads since this event was scheduled
// (another preemption/quantum-expire beat it), or been rescheduled with a
// new quantum_end since.
func (e *Engine) handleQuantumExpire(ev Event) {
	p := e.Scheduler.Pset.Processors[ev.ProcessorID]
	if p.ActiveThread == nil || p.ActiveThread.Tid != ev.ThreadID {
		return
	}
	if ev.Data != p.QuantumEnd {
		return
	}
	e.Stats.QuantumExpireCount++
	newThread := e.Scheduler.ThreadQuantumExpire(p, e.Clock)
	e.dispatchFollowUp(p, newThread)
}

func (e *Engine) handleSchedTick(ev Event) {
	e.Stats.TickCount++
	e.Scheduler.SchedTick(e.Clock)
}

// handleRTPeriodStart refreshes an RT thread's deadline for its new period,
// wakes it if it's WAITING, unconditionally (re)arms its THREAD_BLOCK for
// this period's computation budget, and schedules its next period start.
// Grounded on engine.py's _handle_rt_period_start: the deadline refresh and
// block scheduling there sit outside the WAITING branch, and this repo
// matches that rather than nesting them inside it. Nesting them would leave
// a thread still RUNNABLE/RUNNING across a period boundary with a stale
// rt_deadline, and would mean an uncontended RT thread never gets a
// THREAD_BLOCK scheduled at all, since dispatchFollowUp deliberately skips
// that for realtime threads.
func (e *Engine) handleRTPeriodStart(ev Event) {
	t := e.findThread(ev.ThreadID)
	if t == nil || t.State == ThreadTerminated {
		return
	}

	t.RTDeadline = e.Clock + t.RTConstraint

	if t.State == ThreadWaiting {
		e.Stats.WakeupCount++
		if p := e.Scheduler.ThreadSetrun(t, e.Clock, SchedPreempt|SchedTailq); p != nil {
			e.dispatchFollowUp(p, e.Scheduler.HandlePreemption(p, e.Clock))
		}
	}

	if t.RTComputation > 0 {
		deadline := e.Clock + t.RTComputation
		e.blockDeadlines[t.Tid] = deadline
		e.scheduleEvent(deadline, EventThreadBlock, t.Tid, -1, deadline)
	}

	if t.RTPeriod > 0 {
		e.scheduleEvent(e.Clock+t.RTPeriod, EventRTPeriodStart, t.Tid, -1, 0)
	}
}

// dispatchFollowUp records the stats side effects of a dispatch
// decision, arms the winning thread's quantum-expire timer, and (re)samples
// when it intends to voluntarily block. Every non-realtime dispatch —
// including a quantum-expire that leaves the same thread running —
// resamples the block deadline; the guard in handleThreadBlock makes any
// now-superseded pending THREAD_BLOCK event a harmless no-op when it
// eventually fires (spec §7's "events targeting stale state are silently
// dropped"). Realtime threads are excluded here: their one THREAD_BLOCK per
// period is armed solely by handleRTPeriodStart, matching engine.py's
// "if not new_thread.is_realtime" guard at every equivalent call site.
// Resampling it here too would race the period's own block event and
// clobber blockDeadlines with a value keyed to this quantum instead of the
// period's computation budget.
func (e *Engine) dispatchFollowUp(p *Processor, newThread *Thread) {
	if newThread == nil {
		return
	}
	e.Stats.RecordDispatch(newThread, e.Clock)
	e.Stats.RecordContextSwitch()
	e.scheduleQuantumExpire(p, newThread, e.Clock)
	if !newThread.IsRealtime() {
		e.scheduleThreadBlock(newThread, p)
	}
}

func (e *Engine) scheduleQuantumExpire(p *Processor, t *Thread, timestamp uint64) {
	if t.QuantumRemaining == 0 {
		t.ResetQuantum()
	}
	end := timestamp + t.QuantumRemaining
	p.QuantumEnd = end
	e.scheduleEvent(end, EventQuantumExpire, t.Tid, p.ProcessorID, end)
}

// scheduleThreadBlock samples how long t intends to compute before
// voluntarily blocking and schedules the corresponding THREAD_BLOCK event,
// recording the deadline guard keyed by tid. Only called for non-realtime
// threads; an RT thread's block deadline comes from its rt_computation
// budget, armed directly by handleRTPeriodStart.
func (e *Engine) scheduleThreadBlock(t *Thread, p *Processor) {
	behavior, ok := e.behaviors[t.Tid]
	if !ok {
		return
	}
	burst := behavior.SampleCPUBurst(e.Rng)
	if burst == 0 {
		return
	}
	deadline := e.Clock + burst
	e.blockDeadlines[t.Tid] = deadline
	e.scheduleEvent(deadline, EventThreadBlock, t.Tid, p.ProcessorID, deadline)
}

// scheduleWakeupFor samples a block duration from t's behavior profile and
// schedules its next wakeup.
func (e *Engine) scheduleWakeupFor(t *Thread) {
	behavior, ok := e.behaviors[t.Tid]
	if !ok {
		return
	}
	deadline := e.Clock + behavior.SampleBlockDuration(e.Rng)
	e.scheduleEvent(deadline, EventThreadWakeup, t.Tid, -1, 0)
}
