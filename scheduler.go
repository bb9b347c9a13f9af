package clutch

import "fmt"

// Scheduler owns all scheduling state for a single cluster — threads,
// thread groups, the processor set, and the RT/clutch hierarchies — and
// implements the four canonical entry points named in spec §4 plus the
// preemption decision that ties them together. There is exactly one
// Scheduler struct, passed explicitly; no package-level singletons
// (spec §9's "consolidate global mutable state" design note).
type Scheduler struct {
	Pset *ProcessorSet

	CurrentTick int64

	AllThreads      map[Tid]*Thread
	AllThreadGroups map[ThreadGroupID]*ThreadGroup
	nextTGID        ThreadGroupID

	TraceEnabled       bool
	TraceLog           []string
	ProcessorSwitchLog []string

	pendingPreemptionReason map[int]string
}

// NewScheduler constructs a Scheduler for a single cluster of numCPUs
// processors.
func NewScheduler(numCPUs int) *Scheduler {
	return &Scheduler{
		Pset:                     newProcessorSet(0, numCPUs),
		AllThreads:               map[Tid]*Thread{},
		AllThreadGroups:          map[ThreadGroupID]*ThreadGroup{},
		pendingPreemptionReason:  map[int]string{},
	}
}

func (s *Scheduler) trace(timestamp uint64, msg string) {
	if !s.TraceEnabled {
		return
	}
	s.TraceLog = append(s.TraceLog, fmt.Sprintf("t=%d %s", timestamp, msg))
}

func (s *Scheduler) logProcessorSwitch(p *Processor, oldThread, newThread *Thread, timestamp uint64) {
	if oldThread == newThread {
		return
	}
	oldName, newName := "idle", "idle"
	if oldThread != nil {
		oldName = oldThread.Name
	}
	if newThread != nil {
		newName = newThread.Name
	}
	s.ProcessorSwitchLog = append(s.ProcessorSwitchLog,
		fmt.Sprintf("t=%d cpu%d: %s -> %s", timestamp, p.ProcessorID, oldName, newName))
}

func (s *Scheduler) setPreemptionReason(processorID int, reason string) {
	s.pendingPreemptionReason[processorID] = reason
}

// ConsumePreemptionReason returns and clears the pending human-readable
// preemption reason for a processor, if any (a "consume once" side channel
// the engine uses to enrich trace output).
func (s *Scheduler) ConsumePreemptionReason(processorID int) string {
	r := s.pendingPreemptionReason[processorID]
	delete(s.pendingPreemptionReason, processorID)
	return r
}

// -- thread group / thread registration (adapter.go calls into these) --

func (s *Scheduler) createThreadGroupLocked(name string) *ThreadGroup {
	id := s.nextTGID
	s.nextTGID++
	tg := newThreadGroup(id, name)
	s.AllThreadGroups[id] = tg
	for b := Bucket(0); b < BucketSchedMax; b++ {
		s.Pset.ClutchRoot.ClutchBucketsList = append(s.Pset.ClutchRoot.ClutchBucketsList, tg.Clutch.Groups[b].buckets[s.Pset.ClutchRoot.ClusterID])
	}
	return tg
}

func (s *Scheduler) registerThread(t *Thread) {
	s.AllThreads[t.Tid] = t
}

// -- CPU accounting --

// chargeCPU charges the segment since t.ComputationEpoch (set by
// ThreadDispatch) and then clears the epoch to InvalidTime64, so a second
// charge before the next dispatch is a no-op.
func (s *Scheduler) chargeCPU(t *Thread, timestamp uint64) {
	if t.ComputationEpoch == InvalidTime64 {
		return
	}
	delta := timestamp - t.ComputationEpoch
	cbg := t.ThreadGroup.Clutch.BucketGroupForThread(t)
	updateThreadCPUUsage(t, delta, cbg)
	t.TotalCPUUs += delta
	t.ComputationEpoch = InvalidTime64
}

// -- timeshare priority maintenance --

func (s *Scheduler) timeshareSetrunUpdate(t *Thread) {
	if !t.IsTimeshare() {
		return
	}
	elapsedTicks := s.CurrentTick - t.SchedStamp
	if elapsedTicks <= 0 {
		return
	}
	ageThreadCPUUsage(t, int(elapsedTicks))
	t.SchedStamp = s.CurrentTick
	cbg := t.ThreadGroup.Clutch.BucketGroupForThread(t)
	if t.BoundProcessor != nil {
		t.PriShift = 127
	} else {
		t.PriShift = cbg.priShift
	}
	t.SchedPri = computeSchedPri(t, cbg)
}

// -- thread_setrun (spec §4.1) --

// ThreadSetrun enqueues a runnable thread per spec §4.1, dispatching by
// policy, and returns a processor that should be signalled for preemption
// (or nil). The caller (the simulation engine) is responsible for acting on
// that signal via HandlePreemption — this mirrors the reference's
// thread_setrun/_check_preemption split, where enqueue and preemption
// handling are deliberately separate steps.
func (s *Scheduler) ThreadSetrun(t *Thread, timestamp uint64, options EnqueueOptions) *Processor {
	oldState := t.State
	t.State = ThreadRunnable
	t.LastMadeRunnableTime = timestamp
	becameRunnable := oldState != ThreadRunnable && oldState != ThreadRunning

	if t.IsTimeshare() {
		s.timeshareSetrunUpdate(t)
	}

	switch {
	case t.IsRealtime():
		return s.rtThreadSetrun(t, timestamp)
	case t.IsBound():
		return s.boundThreadSetrun(t, timestamp, options)
	default:
		return s.clutchThreadSetrun(t, timestamp, options, becameRunnable)
	}
}

func (s *Scheduler) rtThreadSetrun(t *Thread, timestamp uint64) *Processor {
	if t.RTDeadline == RTDeadlineNone {
		t.RTDeadline = timestamp + t.RTConstraint
	}
	s.Pset.RTRunq.Enqueue(t)
	return s.checkPreemption(t, timestamp, SchedPreempt)
}

func (s *Scheduler) boundThreadSetrun(t *Thread, timestamp uint64, options EnqueueOptions) *Processor {
	p := s.Pset.Processors[*t.BoundProcessor]
	preempted := options&SchedTailq == 0
	p.BoundRunq.Insert(t, preempted, int64(timestamp))
	return s.checkPreemption(t, timestamp, options)
}

func (s *Scheduler) clutchThreadSetrun(t *Thread, timestamp uint64, options EnqueueOptions, becameRunnable bool) *Processor {
	clutch := t.ThreadGroup.Clutch
	cbg := clutch.BucketGroupForThread(t)
	cb := clutch.BucketForThread(t, s.Pset.ClutchRoot.ClusterID)

	if becameRunnable {
		cbg.runCountInc(timestamp)
	}
	clutch.ThrCount++
	cbg.thrCountInc(timestamp)

	preempted := options&SchedTailq == 0
	cb.ThreadRunq.Insert(t, preempted, int64(timestamp))
	cb.ClutchpriPrioq.Insert(t)
	cb.TimeshareThreads = append(cb.TimeshareThreads, t)

	s.urgencyInc(t)

	scbOptions := ClutchBucketOptionsTailq
	if options&SchedHeadq != 0 {
		scbOptions = ClutchBucketOptionsHeadq
	}

	if cb.ThrCount == 0 {
		cb.ThrCount++
		s.Pset.ClutchRoot.ScrThrCount++
		s.Pset.ClutchRoot.ClutchBucketRunnable(cb, timestamp, scbOptions)
	} else {
		cb.ThrCount++
		s.Pset.ClutchRoot.ScrThrCount++
		s.Pset.ClutchRoot.ClutchBucketUpdate(cb, timestamp, scbOptions)
	}

	return s.checkPreemption(t, timestamp, options)
}

// ThreadRemove is the reverse/dequeue-side bookkeeping, called when a
// thread is selected to run, and by the adapter's TerminateThread and
// SetThreadUrgency for a runnable thread.
func (s *Scheduler) ThreadRemove(t *Thread, timestamp uint64) {
	switch {
	case t.IsRealtime():
		s.Pset.RTRunq.Remove(t)
	case t.IsBound():
		s.Pset.Processors[*t.BoundProcessor].BoundRunq.Remove(t)
	default:
		clutch := t.ThreadGroup.Clutch
		cbg := clutch.BucketGroupForThread(t)
		cb := clutch.BucketForThread(t, s.Pset.ClutchRoot.ClusterID)
		if cb.Root == nil {
			return
		}
		s.urgencyDec(t)
		cb.ThreadRunq.Remove(t)
		for i, o := range cb.TimeshareThreads {
			if o == t {
				cb.TimeshareThreads = append(cb.TimeshareThreads[:i], cb.TimeshareThreads[i+1:]...)
				break
			}
		}
		cb.ClutchpriPrioq.Remove(t)
		clutch.ThrCount--
		cbg.thrCountDec(timestamp)
		s.Pset.ClutchRoot.ScrThrCount--
		cb.ThrCount--
		if cb.ThrCount == 0 {
			s.Pset.ClutchRoot.ClutchBucketEmpty(cb, timestamp)
		} else {
			s.Pset.ClutchRoot.ClutchBucketUpdate(cb, timestamp, ClutchBucketOptionsSamepriRR)
		}
	}
}

// -- thread_select (spec §4.2) --

func (s *Scheduler) rtPrevThreadCanContinue(p *Processor, prev *Thread) bool {
	if !p.FirstTimeslice {
		return false
	}
	rtThread, ok := s.Pset.RTRunq.Peek()
	if !ok {
		return true
	}
	hiPri := rtThread.SchedPri
	if hiPri < BasePriRTQueues {
		return true
	}
	if hiPri > prev.SchedPri {
		if s.Pset.RTRunq.StrictPriority {
			return false
		}
		if prev.RTComputation+rtThread.RTComputation+s.Pset.RTRunq.DeadlineEpsilon >= rtThread.RTConstraint {
			return false
		}
		return true
	}
	return s.Pset.RTRunq.PeekDeadline()+s.Pset.RTRunq.DeadlineEpsilon >= prev.RTDeadline
}

// ThreadSelect chooses the next thread to run on processor p per spec
// §4.2's decision tree, returning (chosen, chosePrev).
func (s *Scheduler) ThreadSelect(p *Processor, timestamp uint64, prev *Thread) (*Thread, bool) {
	if prev != nil && prev.IsRealtime() {
		if s.rtPrevThreadCanContinue(p, prev) {
			return prev, true
		}
		if rt, ok := s.Pset.RTRunq.Dequeue(); ok {
			return rt, false
		}
		return prev, true
	}
	if rt, ok := s.Pset.RTRunq.Peek(); ok {
		_ = rt
		t, _ := s.Pset.RTRunq.Dequeue()
		return t, false
	}

	boundPri := NoPri
	var boundRunq *StablePriorityQueue[*Thread]
	prevIsBoundHere := prev != nil && prev.IsBound() && s.Pset.Processors[*prev.BoundProcessor] == p
	if prev != nil && prev.IsBound() {
		boundRunq = s.Pset.Processors[*prev.BoundProcessor].BoundRunq
	} else {
		boundRunq = p.BoundRunq
	}
	if !boundRunq.Empty() {
		boundPri = boundRunq.MaxPriority()
	}
	clutchPri := s.Pset.ClutchRoot.ScrPriority

	var prevForClutch *Thread
	if prev != nil && !prev.IsBound() {
		prevForClutch = prev
		if prev.SchedPri > clutchPri {
			clutchPri = prev.SchedPri
		}
	}
	if prevIsBoundHere && prev.SchedPri > boundPri {
		boundPri = prev.SchedPri
	}

	if clutchPri > boundPri {
		if s.Pset.ClutchRoot.ScrThrCount == 0 {
			if prev != nil {
				return prev, true
			}
			return nil, false
		}
		thread, _, chosePrev := s.Pset.ClutchRoot.HierarchyThreadHighest(timestamp, prevForClutch, p.FirstTimeslice)
		if thread != nil {
			if chosePrev {
				return thread, true
			}
			s.ThreadRemove(thread, timestamp)
			return thread, false
		}
		if prev != nil {
			return prev, true
		}
		return nil, false
	}

	if p.BoundRunq.Empty() {
		if prev != nil {
			return prev, true
		}
		return nil, false
	}
	if prevIsBoundHere && priGreaterTiebreak(prev.SchedPri, boundPri, p.FirstTimeslice) {
		return prev, true
	}
	if t, ok := p.BoundRunq.PopMax(); ok {
		return t, false
	}
	if prev != nil {
		return prev, true
	}
	return nil, false
}

// -- thread_dispatch --

// ThreadDispatch installs newThread as the running thread on p, charging
// any in-flight CPU segment off oldThread first.
func (s *Scheduler) ThreadDispatch(p *Processor, oldThread, newThread *Thread, timestamp uint64, reason string) {
	if oldThread != nil && oldThread != newThread {
		s.chargeCPU(oldThread, timestamp)
		if oldThread.State == ThreadWaiting {
			oldThread.LastRunTime = timestamp
		} else if oldThread.State == ThreadRunnable {
			oldThread.PreemptionCount++
		}
		oldThread.ContextSwitches++
		p.ContextSwitches++
	}

	newThread.State = ThreadRunning
	newThread.ComputationEpoch = timestamp
	newThread.LastRunTime = timestamp
	if newThread.LastMadeRunnableTime > 0 {
		newThread.TotalWaitUs += timestamp - newThread.LastMadeRunnableTime
	}
	if newThread.QuantumRemaining == 0 {
		newThread.ResetQuantum()
	}

	p.ActiveThread = newThread
	p.CurrentPri = newThread.SchedPri
	p.State = ProcessorRunning
	p.FirstTimeslice = newThread.FirstTimeslice
	p.StartingPri = newThread.SchedPri
	p.LastDispatchTime = timestamp
	newThread.ContextSwitches++

	s.logProcessorSwitch(p, oldThread, newThread, timestamp)
	s.trace(timestamp, fmt.Sprintf("dispatch %s on cpu%d (%s)", newThread.Name, p.ProcessorID, reason))
}

// -- thread_quantum_expire (spec §4.4) --

// ThreadQuantumExpire handles quantum expiry for the processor's current
// thread (spec §4.4), returning the thread now running on p (possibly the
// same thread, if nothing better was runnable).
func (s *Scheduler) ThreadQuantumExpire(p *Processor, timestamp uint64) *Thread {
	old := p.ActiveThread
	if old == nil {
		return nil
	}
	s.chargeCPU(old, timestamp)
	if old.IsTimeshare() {
		s.timeshareSetrunUpdate(old)
	}
	old.FirstTimeslice = false
	old.QuantumRemaining = 0
	if old.IsRealtime() {
		old.RTDeadline = RTDeadlineQuantumExpired
	}
	old.State = ThreadRunnable

	newThread, chosePrev := s.ThreadSelect(p, timestamp, old)
	if chosePrev && newThread == old {
		s.ThreadDispatch(p, old, old, timestamp, "quantum expired for "+old.Name+", but it remained best eligible thread")
		return old
	}
	if newThread != nil {
		s.ThreadSetrun(old, timestamp, SchedTailq)
		s.ThreadDispatch(p, old, newThread, timestamp, "quantum expired for "+old.Name+"; switched to higher-ranked runnable thread")
		return newThread
	}
	s.ThreadDispatch(p, old, old, timestamp, "quantum expired for "+old.Name+"; no better runnable thread")
	return old
}

// ThreadBlock voluntarily removes the running thread from the processor
// (spec §4.4). It never "banks" a partial quantum.
func (s *Scheduler) ThreadBlock(t *Thread, p *Processor, timestamp uint64) *Thread {
	s.chargeCPU(t, timestamp)
	t.QuantumRemaining = 0
	t.State = ThreadWaiting
	t.LastRunTime = timestamp

	if !t.IsRealtime() && !t.IsBound() {
		cbg := t.ThreadGroup.Clutch.BucketGroupForThread(t)
		cbg.runCountDec(timestamp)
	}

	newThread, _ := s.ThreadSelect(p, timestamp, nil)
	if newThread != nil {
		s.ThreadDispatch(p, t, newThread, timestamp, t.Name+" blocked (voluntary sleep/I/O); selected next runnable thread")
		return newThread
	}
	p.ActiveThread = nil
	p.CurrentPri = NoPri
	p.State = ProcessorIdle
	s.logProcessorSwitch(p, t, nil, timestamp)
	s.trace(timestamp, fmt.Sprintf("cpu%d idle", p.ProcessorID))
	return nil
}

// ThreadWakeup makes a WAITING thread runnable; idempotent per P9. Returns
// a processor to signal for preemption, or nil.
func (s *Scheduler) ThreadWakeup(t *Thread, timestamp uint64) *Processor {
	if t.State != ThreadWaiting {
		return nil
	}
	if t.IsRealtime() {
		t.RTDeadline = timestamp + t.RTConstraint
	}
	s.trace(timestamp, fmt.Sprintf("wakeup %s", t.Name))
	return s.ThreadSetrun(t, timestamp, SchedPreempt|SchedTailq)
}

// HandlePreemption acts on a processor signalled by ThreadSetrun/ThreadWakeup
// (spec §4.1/§4.7), implementing XNU's select-then-dispatch flow: the
// incumbent thread is not re-enqueued before selection — it participates as
// prev_thread — and is only re-enqueued afterward if a different thread won.
// Returns the thread now running on p (which may be the same incumbent) so
// the caller can schedule follow-up quantum-expire/block events.
func (s *Scheduler) HandlePreemption(p *Processor, timestamp uint64) *Thread {
	reason := s.ConsumePreemptionReason(p.ProcessorID)
	if reason == "" {
		reason = "runnable thread became eligible for this processor"
	}
	if p.IsIdle() {
		return s.tryDispatchIdle(p, timestamp, "preemption signal on idle cpu: "+reason)
	}
	old := p.ActiveThread
	if old == nil {
		return s.tryDispatchIdle(p, timestamp, "preemption signal with no active thread: "+reason)
	}

	s.chargeCPU(old, timestamp)

	keepQuantum := p.FirstTimeslice && p.StartingPri <= old.SchedPri
	if keepQuantum {
		elapsed := timestamp - p.LastDispatchTime
		if elapsed > old.QuantumRemaining {
			old.QuantumRemaining = 0
		} else {
			old.QuantumRemaining -= elapsed
		}
	} else {
		old.QuantumRemaining = 0
	}
	if old.IsRealtime() && old.QuantumRemaining == 0 {
		old.RTDeadline = RTDeadlineQuantumExpired
	}
	old.State = ThreadRunnable
	if old.IsTimeshare() {
		s.timeshareSetrunUpdate(old)
	}

	newThread, chosePrev := s.ThreadSelect(p, timestamp, old)

	if chosePrev && newThread == old {
		s.ThreadDispatch(p, old, old, timestamp, "preemption requested ("+reason+"), but "+old.Name+" remained best eligible thread")
		return old
	}
	if newThread != nil {
		s.ThreadSetrun(old, timestamp, SchedHeadq)
		s.ThreadDispatch(p, old, newThread, timestamp, "preemption: "+reason)
		return newThread
	}
	s.ThreadDispatch(p, old, old, timestamp, "preemption requested ("+reason+"), but no better runnable replacement was selected")
	return old
}

// tryDispatchIdle selects and dispatches work on an idle processor.
// ThreadSelect already removes its chosen thread from whichever source
// queue it came from, so no separate ThreadRemove call is needed here.
func (s *Scheduler) tryDispatchIdle(p *Processor, timestamp uint64, reason string) *Thread {
	newThread, _ := s.ThreadSelect(p, timestamp, nil)
	if newThread == nil {
		return nil
	}
	s.ThreadDispatch(p, nil, newThread, timestamp, reason)
	return newThread
}

// SchedTick is the periodic maintenance entry point (spec §4.4): refresh
// load-sensitive pri_shift per bucket group, age every timeshare thread's
// CPU usage, recompute sched_pri, and refresh runqueue/hierarchy ordering.
// Iteration is in deterministic tid order.
func (s *Scheduler) SchedTick(timestamp uint64) {
	s.CurrentTick++

	for _, cb := range s.Pset.ClutchRoot.ClutchBucketsList {
		cb.Group.priShiftUpdate(s.CurrentTick, s.Pset.ProcessorCount)
	}

	for _, cb := range s.Pset.ClutchRoot.ClutchBucketsList {
		reprioritized := false
		for _, t := range deterministicThreadOrder(cb.TimeshareThreads) {
			if !t.IsTimeshare() {
				continue
			}
			oldPri := t.SchedPri
			ageThreadCPUUsage(t, 1)
			t.SchedStamp = s.CurrentTick
			t.PriShift = cb.Group.priShift
			t.SchedPri = computeSchedPri(t, cb.Group)
			if t.SchedPri != oldPri {
				reprioritized = true
			}
		}
		if reprioritized {
			cb.ThreadRunq.RefreshPriorities()
		}
		if cb.Root != nil {
			s.Pset.ClutchRoot.ClutchBucketUpdate(cb, timestamp, ClutchBucketOptionsNone)
		}
	}
}

func deterministicThreadOrder(threads []*Thread) []*Thread {
	out := make([]*Thread, len(threads))
	copy(out, threads)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Tid < out[j-1].Tid; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// -- preemption (spec §4.1's decision tree) --

func (s *Scheduler) checkPreemption(newThread *Thread, timestamp uint64, options EnqueueOptions) *Processor {
	explicitPreempt := options&SchedPreempt != 0
	preemptAllowed := explicitPreempt || newThread.SchedPri >= BasePriPreempt

	if newThread.IsBound() {
		p := s.Pset.Processors[*newThread.BoundProcessor]
		if p.IsIdle() {
			s.setPreemptionReason(p.ProcessorID, "idle")
			return p
		}
		active := p.ActiveThread
		if newThread.IsRealtime() {
			if !active.IsRealtime() {
				s.setPreemptionReason(p.ProcessorID, "rt-over-non-rt")
				return p
			}
			if newThread.SchedPri > active.SchedPri {
				s.setPreemptionReason(p.ProcessorID, "rt-higher-pri")
				return p
			}
			if newThread.SchedPri == active.SchedPri && newThread.RTDeadline+s.Pset.RTRunq.DeadlineEpsilon < active.RTDeadline {
				s.setPreemptionReason(p.ProcessorID, "rt-earlier-deadline")
				return p
			}
			return nil
		}
		if preemptAllowed && (newThread.SchedPri > active.SchedPri || (newThread.SchedPri == active.SchedPri && explicitPreempt)) {
			s.setPreemptionReason(p.ProcessorID, "bound-priority")
			return p
		}
		return nil
	}

	if idle := s.Pset.FindIdleProcessor(); idle != nil {
		s.setPreemptionReason(idle.ProcessorID, "idle")
		return idle
	}

	if newThread.IsRealtime() {
		for _, p := range s.Pset.Processors {
			active := p.ActiveThread
			if active == nil {
				s.setPreemptionReason(p.ProcessorID, "idle")
				return p
			}
			if !active.IsRealtime() {
				s.setPreemptionReason(p.ProcessorID, "rt-over-non-rt")
				return p
			}
			if newThread.SchedPri > active.SchedPri {
				s.setPreemptionReason(p.ProcessorID, "rt-higher-pri")
				return p
			}
			if newThread.SchedPri == active.SchedPri && newThread.RTDeadline+s.Pset.RTRunq.DeadlineEpsilon < active.RTDeadline {
				s.setPreemptionReason(p.ProcessorID, "rt-earlier-deadline")
				return p
			}
		}
		return nil
	}

	if lowest := s.Pset.FindLowestPriorityProcessor(); lowest != nil {
		if preemptAllowed && newThread.SchedPri > lowest.CurrentPri {
			s.setPreemptionReason(lowest.ProcessorID, "lower-priority")
			return lowest
		}
	}
	if explicitPreempt {
		for _, p := range s.Pset.Processors {
			if p.ActiveThread != nil && !p.ActiveThread.IsRealtime() && p.CurrentPri == newThread.SchedPri {
				s.setPreemptionReason(p.ProcessorID, "equal-priority-explicit")
				return p
			}
		}
	}
	return nil
}

// urgencyInc/urgencyDec maintain ScrUrgency, the count of runnable threads
// at or above the RT queues priority band. Grounded on the urgency updates
// inlined at scheduler.py's thread_setrun/thread_remove call sites (the
// ones actually exercised by the reference, as opposed to its own
// urgency_inc/urgency_dec helpers, which the reference declares but never
// calls).
func (s *Scheduler) urgencyInc(t *Thread) {
	if t.SchedPri >= BasePriRTQueues {
		s.Pset.ClutchRoot.ScrUrgency++
	}
}

func (s *Scheduler) urgencyDec(t *Thread) {
	if t.SchedPri >= BasePriRTQueues {
		s.Pset.ClutchRoot.ScrUrgency--
	}
}
