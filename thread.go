package clutch

import "fmt"

// ThreadState is a thread's lifecycle state.
type ThreadState int

const (
	ThreadWaiting ThreadState = iota
	ThreadRunnable
	ThreadRunning
	ThreadTerminated
)

func (s ThreadState) String() string {
	switch s {
	case ThreadWaiting:
		return "WAITING"
	case ThreadRunnable:
		return "RUNNABLE"
	case ThreadRunning:
		return "RUNNING"
	case ThreadTerminated:
		return "TERMINATED"
	default:
		return "?"
	}
}

// Tid is a thread identifier.
type Tid int

// ThreadGroupID identifies a ThreadGroup.
type ThreadGroupID int

// ThreadGroup is a client-facing grouping of threads; it owns the SchedClutch
// that fans out into six per-QoS ClutchBucketGroups.
type ThreadGroup struct {
	ID     ThreadGroupID
	Name   string
	Clutch *SchedClutch
}

func newThreadGroup(id ThreadGroupID, name string) *ThreadGroup {
	tg := &ThreadGroup{ID: id, Name: name}
	tg.Clutch = newSchedClutch(tg)
	return tg
}

// Thread is a single schedulable unit.
type Thread struct {
	Tid           Tid
	Name          string
	ThreadGroup   *ThreadGroup
	SchedMode     SchedMode
	BasePri       int
	SchedPri      int
	MaxPriority   int
	Bucket        Bucket
	CPUUsage      uint64
	SchedUsage    uint64
	SchedStamp    int64
	CPUDelta      uint64
	PriShift      int
	QuantumBase   uint64
	QuantumRemaining uint64
	FirstTimeslice bool

	RTPeriod      uint64
	RTComputation uint64
	RTConstraint  uint64
	RTDeadline    uint64

	State ThreadState

	LastRunTime          uint64
	LastMadeRunnableTime uint64
	ComputationEpoch     uint64

	BoundProcessor *int // nil if unbound

	TotalCPUUs       uint64
	TotalWaitUs      uint64
	ContextSwitches  int
	PreemptionCount  int
}

// NewThread constructs a Thread, validating construction-time invariants per
// spec §7 ("illegal input -> rejected at construction").
func NewThread(tid Tid, name string, tg *ThreadGroup, mode SchedMode, basePri int, boundProcessor *int) (*Thread, error) {
	if tg == nil {
		return nil, fmt.Errorf("thread %d: thread group required", tid)
	}
	if basePri < MinPri || basePri > MaxPri {
		return nil, fmt.Errorf("thread %d: base priority %d out of range [%d,%d]", tid, basePri, MinPri, MaxPri)
	}
	if mode == ModeRealtime && basePri < BasePriRTQueues {
		basePri = BasePriRTQueues
	}

	t := &Thread{
		Tid:            tid,
		Name:           name,
		ThreadGroup:    tg,
		SchedMode:      mode,
		BasePri:        basePri,
		SchedPri:       basePri,
		State:          ThreadWaiting,
		PriShift:       127, // INT8_MAX sentinel: no contention decay initially.
		RTDeadline:     RTDeadlineNone,
		BoundProcessor: boundProcessor,
		FirstTimeslice: true,
	}
	if mode == ModeRealtime {
		t.MaxPriority = MaxPri
	} else {
		t.MaxPriority = basePri
	}
	t.Bucket = threadBucketMap(mode, basePri)
	t.QuantumBase = initialQuantum(t)
	t.QuantumRemaining = t.QuantumBase
	return t, nil
}

// NewRealtimeThread constructs an RT thread with its period/computation/constraint.
func NewRealtimeThread(tid Tid, name string, tg *ThreadGroup, basePri int, boundProcessor *int, period, computation, constraint uint64) (*Thread, error) {
	if constraint == 0 {
		return nil, fmt.Errorf("thread %d: rt_constraint must be > 0", tid)
	}
	t, err := NewThread(tid, name, tg, ModeRealtime, basePri, boundProcessor)
	if err != nil {
		return nil, err
	}
	t.RTPeriod = period
	t.RTComputation = computation
	t.RTConstraint = constraint
	if computation > 0 {
		t.QuantumBase = computation
		t.QuantumRemaining = computation
	}
	return t, nil
}

func initialQuantum(t *Thread) uint64 {
	if t.SchedMode == ModeRealtime && t.RTComputation > 0 {
		return t.RTComputation
	}
	return ThreadQuantumUs[t.Bucket]
}

func (t *Thread) IsRealtime() bool  { return t.SchedMode == ModeRealtime }
func (t *Thread) IsTimeshare() bool { return t.SchedMode == ModeTimeshare }
func (t *Thread) IsBound() bool     { return t.BoundProcessor != nil }

func (t *Thread) ResetQuantum() {
	t.QuantumRemaining = t.QuantumBase
	t.FirstTimeslice = true
}

// convertPriToBucket maps a timeshare/fixed priority value to its QoS bucket.
func convertPriToBucket(pri int) Bucket {
	switch {
	case pri > BasePriUserInit:
		return BucketShareFG
	case pri > BasePriDefault:
		return BucketShareIN
	case pri > BasePriUtility:
		return BucketShareDF
	case pri > MaxPriThrottle:
		return BucketShareUT
	default:
		return BucketShareBG
	}
}

// threadBucketMap replicates XNU's thread_bucket_map: RT always lands in
// FIXPRI; FIXED only lands in FIXPRI at or above the foreground cutoff, otherwise
// it shares the priority-derived bucket; TIMESHARE never uses FIXPRI.
func threadBucketMap(mode SchedMode, basePri int) Bucket {
	switch mode {
	case ModeRealtime:
		return BucketFixpri
	case ModeFixed:
		if basePri >= BasePriForeground {
			return BucketFixpri
		}
		return convertPriToBucket(basePri)
	default: // ModeTimeshare
		return convertPriToBucket(basePri)
	}
}

func (t *Thread) String() string {
	return fmt.Sprintf("T%d(%s, pri=%d/%d, bucket=%s, state=%s)", t.Tid, t.Name, t.SchedPri, t.BasePri, t.Bucket, t.State)
}
