package clutch

import (
	"math/rand"
	"strconv"
)

// BehaviorProfile describes how a thread behaves over simulated time:
// how long it computes before blocking, and how long it stays blocked.
// Grounded on original_source/simulator/workload.py's BehaviorProfile.
//
// Unlike the reference (which samples against the random module's global
// state) every sample here is taken from an explicit *rand.Rand owned by
// the Engine, per SPEC_FULL.md §E's determinism resolution.
type BehaviorProfile struct {
	AvgCPUBurstUs     uint64
	CPUBurstVariance  float64
	AvgBlockUs        uint64
	BlockVariance     float64

	RTPeriodUs      uint64
	RTComputationUs uint64
	RTConstraintUs  uint64
}

func defaultBehavior() BehaviorProfile {
	return BehaviorProfile{
		AvgCPUBurstUs:    5000,
		CPUBurstVariance: 0.3,
		AvgBlockUs:       50000,
		BlockVariance:    0.3,
	}
}

func sampleRange(rng *rand.Rand, avg uint64, variance float64) uint64 {
	lo := int64(float64(avg) * (1 - variance))
	if lo < 100 {
		lo = 100
	}
	hi := int64(float64(avg) * (1 + variance))
	if hi < lo+100 {
		hi = lo + 100
	}
	return uint64(lo + rng.Int63n(hi-lo+1))
}

// SampleCPUBurst samples how long (us) a thread computes before blocking.
func (b BehaviorProfile) SampleCPUBurst(rng *rand.Rand) uint64 {
	return sampleRange(rng, b.AvgCPUBurstUs, b.CPUBurstVariance)
}

// SampleBlockDuration samples how long (us) a thread stays blocked.
func (b BehaviorProfile) SampleBlockDuration(rng *rand.Rand) uint64 {
	return sampleRange(rng, b.AvgBlockUs, b.BlockVariance)
}

// WorkloadProfile describes a set of identically-behaved threads to create
// within one thread group. Grounded on workload.py's WorkloadProfile.
type WorkloadProfile struct {
	Name            string
	ThreadGroupName string
	NumThreads      int
	SchedMode       SchedMode
	BasePri         int
	Behavior        BehaviorProfile
}

// instantiate materializes a WorkloadProfile's threads within an existing
// thread group, returning the created threads paired with the behavior
// profile each one samples from.
func (wp WorkloadProfile) instantiate(s *Scheduler, tg *ThreadGroup, nextTid *Tid) ([]*Thread, []BehaviorProfile) {
	threads := make([]*Thread, 0, wp.NumThreads)
	behaviors := make([]BehaviorProfile, 0, wp.NumThreads)
	for i := 0; i < wp.NumThreads; i++ {
		tid := *nextTid
		*nextTid++
		name := nameWithIndex(wp.Name, i)
		var t *Thread
		var err error
		if wp.SchedMode == ModeRealtime {
			t, err = NewRealtimeThread(tid, name, tg, BasePriRealtime, nil,
				wp.Behavior.RTPeriodUs, wp.Behavior.RTComputationUs, wp.Behavior.RTConstraintUs)
		} else {
			t, err = NewThread(tid, name, tg, wp.SchedMode, wp.BasePri, nil)
		}
		if err != nil {
			panic(err)
		}
		s.registerThread(t)
		threads = append(threads, t)
		behaviors = append(behaviors, wp.Behavior)
	}
	return threads, behaviors
}

func nameWithIndex(name string, i int) string {
	return name + "-" + strconv.Itoa(i)
}
