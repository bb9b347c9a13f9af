package clutch

import (
	"math/rand"
	"testing"
)

func TestSampleRangeWithinBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		got := sampleRange(rng, 10000, 0.3)
		if got < 7000 || got > 13000 {
			t.Fatalf("sampleRange out of expected bounds: %d", got)
		}
	}
}

func TestSampleRangeFloorClamp(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	// avg=50 with variance=0.3 would compute lo=35, which is below the 100 floor.
	for i := 0; i < 50; i++ {
		got := sampleRange(rng, 50, 0.3)
		if got < 100 {
			t.Fatalf("sampleRange should clamp lo to 100, got %d", got)
		}
	}
}

func TestSampleRangeDeterministicForSeed(t *testing.T) {
	a := sampleRange(rand.New(rand.NewSource(42)), 5000, 0.2)
	b := sampleRange(rand.New(rand.NewSource(42)), 5000, 0.2)
	if a != b {
		t.Fatalf("same seed should produce same sample, got %d and %d", a, b)
	}
}

func TestBehaviorProfileSampleCPUBurstAndBlockDuration(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	b := BehaviorProfile{AvgCPUBurstUs: 2000, CPUBurstVariance: 0.3, AvgBlockUs: 50000, BlockVariance: 0.3}

	burst := b.SampleCPUBurst(rng)
	if burst < 1400 || burst > 2600 {
		t.Fatalf("SampleCPUBurst out of range: %d", burst)
	}

	block := b.SampleBlockDuration(rng)
	if block < 35000 || block > 65000 {
		t.Fatalf("SampleBlockDuration out of range: %d", block)
	}
}

func TestWorkloadProfileInstantiateThreadCount(t *testing.T) {
	s := NewScheduler(1)
	tg := s.createThreadGroupLocked("tg")
	wp := WorkloadProfile{
		Name: "worker", ThreadGroupName: "tg", NumThreads: 3,
		SchedMode: ModeTimeshare, BasePri: BasePriDefault,
		Behavior: defaultBehavior(),
	}
	var nextTid Tid
	threads, behaviors := wp.instantiate(s, tg, &nextTid)

	if len(threads) != 3 || len(behaviors) != 3 {
		t.Fatalf("expected 3 threads and behaviors, got %d and %d", len(threads), len(behaviors))
	}
	if nextTid != 3 {
		t.Fatalf("expected nextTid advanced to 3, got %d", nextTid)
	}
	for i, th := range threads {
		want := nameWithIndex("worker", i)
		if th.Name != want {
			t.Errorf("thread %d name = %s, want %s", i, th.Name, want)
		}
		if th.SchedMode != ModeTimeshare || th.BasePri != BasePriDefault {
			t.Errorf("thread %d not constructed from profile fields: %+v", i, th)
		}
		if _, ok := s.AllThreads[th.Tid]; !ok {
			t.Errorf("thread %d (tid %d) was not registered with the scheduler", i, th.Tid)
		}
	}
}

func TestWorkloadProfileInstantiateRealtimeThreads(t *testing.T) {
	s := NewScheduler(1)
	tg := s.createThreadGroupLocked("tg")
	wp := WorkloadProfile{
		Name: "rt-worker", ThreadGroupName: "tg", NumThreads: 1,
		SchedMode: ModeRealtime,
		Behavior:  BehaviorProfile{RTPeriodUs: 10000, RTComputationUs: 2000, RTConstraintUs: 3000},
	}
	var nextTid Tid
	threads, _ := wp.instantiate(s, tg, &nextTid)
	if len(threads) != 1 {
		t.Fatalf("expected 1 thread, got %d", len(threads))
	}
	th := threads[0]
	if !th.IsRealtime() {
		t.Fatalf("expected a realtime thread")
	}
	if th.BasePri < BasePriRTQueues {
		t.Fatalf("expected RT base_pri >= %d, got %d", BasePriRTQueues, th.BasePri)
	}
	if th.RTConstraint != 3000 || th.RTComputation != 2000 {
		t.Fatalf("expected RT fields taken from behavior profile, got %+v", th)
	}
}

func TestNameWithIndex(t *testing.T) {
	if got := nameWithIndex("clang", 2); got != "clang-2" {
		t.Fatalf("nameWithIndex = %s, want clang-2", got)
	}
}
