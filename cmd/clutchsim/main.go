package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/clutchsim/clutch"
)

func main() {
	scenario := flag.String("scenario", "mixed", scenarioUsage())
	durationUs := flag.Uint64("duration", 10_000_000, "simulation duration in microseconds")
	numCPUs := flag.Int("cpus", 4, "number of processors in the cluster")
	seed := flag.Int64("seed", 1, "PRNG seed for workload sampling")
	trace := flag.Bool("trace", false, "print the scheduler trace log after the run")
	flag.Parse()

	wpFn, ok := clutch.Scenarios[*scenario]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown scenario %q\n%s\n", *scenario, scenarioUsage())
		os.Exit(1)
	}

	engine := clutch.NewEngine(*numCPUs, *seed)
	engine.Scheduler.TraceEnabled = *trace
	nextTid := clutch.Tid(0)
	for i, wp := range wpFn() {
		tg := engine.CreateThreadGroup(fmt.Sprintf("%s-group-%d", *scenario, i))
		engine.AddWorkload(tg, wp, &nextTid)
	}

	fmt.Fprintf(os.Stderr, "running scenario=%s cpus=%d duration=%dus seed=%d\n", *scenario, *numCPUs, *durationUs, *seed)
	engine.Run(*durationUs)

	printSummary(engine)
	if *trace {
		printTrace(engine)
	}
}

func scenarioUsage() string {
	names := make([]string, 0, len(clutch.Scenarios))
	for name := range clutch.Scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return "workload scenario to run, one of: " + strings.Join(names, ", ")
}

func printSummary(e *clutch.Engine) {
	fmt.Printf("\n=== per-bucket summary ===\n")
	fmt.Printf("%-10s %6s %12s %8s %10s %10s %10s\n", "bucket", "thr", "cpu_us", "cpu_pct", "avg_lat_us", "max_lat_us", "p99_lat_us")
	for _, row := range e.Stats.Summarize() {
		fmt.Printf("%-10s %6d %12d %7.1f%% %10.1f %10d %10d\n",
			row.Name, row.ThreadCount, row.TotalCPUUs, row.CPUPercent, row.AvgLatencyUs, row.MaxLatencyUs, row.P99LatencyUs)
	}

	fmt.Printf("\n=== top threads by cpu usage ===\n")
	fmt.Printf("%-24s %10s %10s %6s %6s %6s\n", "thread", "cpu_us", "wait_us", "cswch", "preempt", "bucket")
	threads := e.Stats.ThreadsByCPUDesc()
	limit := 20
	if len(threads) < limit {
		limit = len(threads)
	}
	for _, ts := range threads[:limit] {
		fmt.Printf("%-24s %10d %10d %6d %6d %6s\n",
			ts.Name, ts.TotalCPUUs, ts.TotalWaitUs, ts.ContextSwitches, ts.Preemptions, ts.Bucket.String())
	}

	fmt.Printf("\ncontext switches: %d  preemptions: %d  wakeups: %d  blocks: %d  quantum expires: %d  ticks: %d\n",
		e.Stats.TotalContextSwitches, e.Stats.TotalPreemptions, e.Stats.WakeupCount,
		e.Stats.BlockCount, e.Stats.QuantumExpireCount, e.Stats.TickCount)
}

func printTrace(e *clutch.Engine) {
	fmt.Printf("\n=== trace ===\n")
	for _, line := range e.Scheduler.TraceLog {
		fmt.Println(line)
	}
}
