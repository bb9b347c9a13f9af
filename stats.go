package clutch

import (
	"sort"

	"golang.org/x/exp/constraints"
	"gonum.org/v1/gonum/stat"
)

// Number is the teacher's own generic numeric constraint (utils.go's
// avg[T Number]); avg has no caller in this package. The per-thread and
// per-bucket latency means below use gonum's stat.Mean instead, since
// they're already building a []float64 of samples for the report anyway.
type Number interface {
	constraints.Integer | constraints.Float
}

func avg[T Number](vals []T) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum T
	for _, v := range vals {
		sum += v
	}
	return float64(sum) / float64(len(vals))
}

// ThreadStats is a per-thread accounting record, grounded on
// original_source/simulator/stats.py's ThreadStats.
type ThreadStats struct {
	Tid         Tid
	Name        string
	ThreadGroup string
	Bucket      Bucket

	TotalCPUUs      uint64
	TotalWaitUs     uint64
	ContextSwitches int
	Preemptions     int

	Latencies []uint64
}

func (ts *ThreadStats) AvgLatencyUs() float64 {
	if len(ts.Latencies) == 0 {
		return 0
	}
	floats := make([]float64, len(ts.Latencies))
	for i, v := range ts.Latencies {
		floats[i] = float64(v)
	}
	return stat.Mean(floats, nil)
}

func (ts *ThreadStats) MaxLatencyUs() uint64 {
	var m uint64
	for _, v := range ts.Latencies {
		if v > m {
			m = v
		}
	}
	return m
}

func (ts *ThreadStats) P99LatencyUs() uint64 {
	if len(ts.Latencies) == 0 {
		return 0
	}
	sorted := append([]uint64(nil), ts.Latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted)) * 0.99)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// BucketStats is a per-root-bucket aggregate, grounded on stats.py's
// BucketStats. StarvationEvents/WarpActivations are sourced from the
// ClutchRoot counters this repo wires (SPEC_FULL.md §E), unlike the
// reference where these fields exist but are never populated.
type BucketStats struct {
	Bucket           Bucket
	Name             string
	TotalCPUUs       uint64
	ThreadCount      int
	TotalLatencyUs   uint64
	LatencySamples   int
	MaxLatencyUs     uint64
	StarvationEvents int
	WarpActivations  int
}

// StatsCollector accumulates per-thread and per-bucket statistics over the
// run, grounded on stats.py's StatsCollector.
type StatsCollector struct {
	ThreadStats map[Tid]*ThreadStats
	BucketStats map[Bucket]*BucketStats

	TotalContextSwitches int
	TotalPreemptions     int
	SimulationDurationUs uint64
	ProcessorCount       int

	WakeupCount       int
	BlockCount        int
	QuantumExpireCount int
	TickCount         int
}

func NewStatsCollector(processorCount int) *StatsCollector {
	sc := &StatsCollector{
		ThreadStats:    map[Tid]*ThreadStats{},
		BucketStats:    map[Bucket]*BucketStats{},
		ProcessorCount: processorCount,
	}
	for b := Bucket(0); b < BucketSchedMax; b++ {
		sc.BucketStats[b] = &BucketStats{Bucket: b, Name: b.String()}
	}
	return sc
}

func (sc *StatsCollector) RegisterThread(t *Thread) {
	sc.ThreadStats[t.Tid] = &ThreadStats{
		Tid:         t.Tid,
		Name:        t.Name,
		ThreadGroup: t.ThreadGroup.Name,
		Bucket:      t.Bucket,
	}
	sc.BucketStats[t.Bucket].ThreadCount++
}

// RecordDispatch records the scheduling latency (time between
// last-made-runnable and this dispatch) for a thread that just started
// running.
func (sc *StatsCollector) RecordDispatch(t *Thread, timestamp uint64) {
	ts, ok := sc.ThreadStats[t.Tid]
	if !ok || t.LastMadeRunnableTime == 0 {
		return
	}
	latency := timestamp - t.LastMadeRunnableTime
	ts.Latencies = append(ts.Latencies, latency)
	bs := sc.BucketStats[t.Bucket]
	bs.TotalLatencyUs += latency
	bs.LatencySamples++
	if latency > bs.MaxLatencyUs {
		bs.MaxLatencyUs = latency
	}
}

func (sc *StatsCollector) RecordContextSwitch() { sc.TotalContextSwitches++ }
func (sc *StatsCollector) RecordPreemption()    { sc.TotalPreemptions++ }

// Finalize pulls closing totals off the live Thread objects, matching
// stats.py's StatsCollector.finalize.
func (sc *StatsCollector) Finalize(threads []*Thread, duration uint64) {
	sc.SimulationDurationUs = duration
	for _, t := range threads {
		ts, ok := sc.ThreadStats[t.Tid]
		if !ok {
			continue
		}
		ts.TotalCPUUs = t.TotalCPUUs
		ts.TotalWaitUs = t.TotalWaitUs
		ts.ContextSwitches = t.ContextSwitches
		ts.Preemptions = t.PreemptionCount
		sc.BucketStats[t.Bucket].TotalCPUUs += t.TotalCPUUs
	}
}

// SyncStarvationCounters copies the live ClutchRoot starvation/warp counters
// into every BucketStats entry. The counters are cluster-wide totals, so
// each bucket receives the same values; they are not broken down per bucket.
func (sc *StatsCollector) SyncStarvationCounters(cr *ClutchRoot) {
	for b := Bucket(0); b < BucketSchedMax; b++ {
		sc.BucketStats[b].StarvationEvents = cr.StarvationEvents
		sc.BucketStats[b].WarpActivations = cr.WarpActivations
	}
}

// BucketSummary is one row of the per-bucket report table.
type BucketSummary struct {
	Name         string
	ThreadCount  int
	TotalCPUUs   uint64
	CPUPercent   float64
	AvgLatencyUs float64
	MaxLatencyUs uint64
	P99LatencyUs uint64
}

// Summarize computes the per-bucket report rows, using gonum's Mean for each
// bucket's latency average over its threads' samples (SPEC_FULL.md §B).
func (sc *StatsCollector) Summarize() []BucketSummary {
	totalCapacity := float64(sc.SimulationDurationUs) * float64(sc.ProcessorCount)
	var rows []BucketSummary
	for b := Bucket(0); b < BucketSchedMax; b++ {
		bs := sc.BucketStats[b]
		if bs.ThreadCount == 0 {
			continue
		}
		var cpuPct float64
		if totalCapacity > 0 {
			cpuPct = float64(bs.TotalCPUUs) / totalCapacity * 100
		}
		var allLats []uint64
		for _, ts := range sc.ThreadStats {
			if ts.Bucket == b {
				allLats = append(allLats, ts.Latencies...)
			}
		}
		var avgLat float64
		var p99 uint64
		if len(allLats) > 0 {
			floats := make([]float64, len(allLats))
			for i, v := range allLats {
				floats[i] = float64(v)
			}
			avgLat = stat.Mean(floats, nil)
			sort.Slice(allLats, func(i, j int) bool { return allLats[i] < allLats[j] })
			idx := int(float64(len(allLats)) * 0.99)
			if idx >= len(allLats) {
				idx = len(allLats) - 1
			}
			p99 = allLats[idx]
		}
		rows = append(rows, BucketSummary{
			Name:         bs.Name,
			ThreadCount:  bs.ThreadCount,
			TotalCPUUs:   bs.TotalCPUUs,
			CPUPercent:   cpuPct,
			AvgLatencyUs: avgLat,
			MaxLatencyUs: bs.MaxLatencyUs,
			P99LatencyUs: p99,
		})
	}
	return rows
}

// ThreadsByCPUDesc returns thread stats sorted by total CPU usage,
// descending, matching stats.py's print_summary per-thread ordering.
func (sc *StatsCollector) ThreadsByCPUDesc() []*ThreadStats {
	rows := make([]*ThreadStats, 0, len(sc.ThreadStats))
	for _, ts := range sc.ThreadStats {
		rows = append(rows, ts)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].TotalCPUUs > rows[j].TotalCPUUs })
	return rows
}
