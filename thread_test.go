package clutch

import "testing"

func TestNewThreadRejectsNilGroup(t *testing.T) {
	if _, err := NewThread(1, "t", nil, ModeTimeshare, 30, nil); err == nil {
		t.Fatalf("expected error for nil thread group")
	}
}

func TestNewThreadRejectsOutOfRangePriority(t *testing.T) {
	tg := newThreadGroup(1, "tg")
	if _, err := NewThread(1, "t", tg, ModeTimeshare, MaxPri+1, nil); err == nil {
		t.Fatalf("expected error for out-of-range base_pri")
	}
	if _, err := NewThread(1, "t", tg, ModeTimeshare, MinPri-1, nil); err == nil {
		t.Fatalf("expected error for negative base_pri")
	}
}

func TestNewThreadTimeshareBucketMapping(t *testing.T) {
	tg := newThreadGroup(1, "tg")
	cases := []struct {
		basePri int
		want    Bucket
	}{
		{BasePriUserInit + 1, BucketShareFG},
		{BasePriDefault + 1, BucketShareIN},
		{BasePriUtility + 1, BucketShareDF},
		{MaxPriThrottle + 1, BucketShareUT},
		{0, BucketShareBG},
	}
	for _, c := range cases {
		th, err := NewThread(1, "t", tg, ModeTimeshare, c.basePri, nil)
		if err != nil {
			t.Fatalf("NewThread(%d): %v", c.basePri, err)
		}
		if th.Bucket != c.want {
			t.Errorf("basePri=%d got bucket %s want %s", c.basePri, th.Bucket, c.want)
		}
	}
}

func TestNewThreadFixedAboveForegroundIsFixpri(t *testing.T) {
	tg := newThreadGroup(1, "tg")
	th, err := NewThread(1, "t", tg, ModeFixed, BasePriForeground, nil)
	if err != nil {
		t.Fatalf("NewThread: %v", err)
	}
	if th.Bucket != BucketFixpri {
		t.Fatalf("fixed thread at/above foreground must land in FIXPRI, got %s", th.Bucket)
	}
}

func TestNewThreadRealtimeAlwaysFixpri(t *testing.T) {
	tg := newThreadGroup(1, "tg")
	th, err := NewRealtimeThread(1, "rt", tg, 10, nil, 1000, 200, 200)
	if err != nil {
		t.Fatalf("NewRealtimeThread: %v", err)
	}
	if th.Bucket != BucketFixpri {
		t.Fatalf("RT thread must land in FIXPRI, got %s", th.Bucket)
	}
	if th.BasePri < BasePriRTQueues {
		t.Fatalf("RT thread base_pri %d should be clamped to >= %d", th.BasePri, BasePriRTQueues)
	}
	if th.MaxPriority != MaxPri {
		t.Fatalf("RT thread max_priority should be MaxPri, got %d", th.MaxPriority)
	}
}

func TestNewRealtimeThreadRequiresPositiveConstraint(t *testing.T) {
	tg := newThreadGroup(1, "tg")
	if _, err := NewRealtimeThread(1, "rt", tg, 10, nil, 1000, 200, 0); err == nil {
		t.Fatalf("expected error for zero rt_constraint")
	}
}

func TestNewRealtimeThreadQuantumFromComputation(t *testing.T) {
	tg := newThreadGroup(1, "tg")
	th, err := NewRealtimeThread(1, "rt", tg, 10, nil, 1000, 300, 300)
	if err != nil {
		t.Fatalf("NewRealtimeThread: %v", err)
	}
	if th.QuantumBase != 300 || th.QuantumRemaining != 300 {
		t.Fatalf("expected quantum derived from rt_computation, got base=%d remaining=%d", th.QuantumBase, th.QuantumRemaining)
	}
}

func TestResetQuantumRestoresFirstTimeslice(t *testing.T) {
	tg := newThreadGroup(1, "tg")
	th, _ := NewThread(1, "t", tg, ModeTimeshare, 30, nil)
	th.FirstTimeslice = false
	th.QuantumRemaining = 0
	th.ResetQuantum()
	if !th.FirstTimeslice {
		t.Fatalf("expected ResetQuantum to restore FirstTimeslice")
	}
	if th.QuantumRemaining != th.QuantumBase {
		t.Fatalf("expected QuantumRemaining reset to QuantumBase")
	}
}

func TestThreadStateString(t *testing.T) {
	for state, want := range map[ThreadState]string{
		ThreadWaiting:    "WAITING",
		ThreadRunnable:   "RUNNABLE",
		ThreadRunning:    "RUNNING",
		ThreadTerminated: "TERMINATED",
	} {
		if got := state.String(); got != want {
			t.Errorf("state %d String() = %s, want %s", state, got, want)
		}
	}
}

func TestIsRealtimeIsBound(t *testing.T) {
	tg := newThreadGroup(1, "tg")
	cpu := 2
	bound, _ := NewThread(1, "b", tg, ModeTimeshare, 30, &cpu)
	if !bound.IsBound() {
		t.Fatalf("expected bound thread to report IsBound")
	}
	rt, _ := NewRealtimeThread(2, "rt", tg, 10, nil, 1000, 200, 200)
	if !rt.IsRealtime() {
		t.Fatalf("expected RT thread to report IsRealtime")
	}
	if rt.IsBound() {
		t.Fatalf("unbound RT thread must not report IsBound")
	}
}
