package clutch

// computeSchedPri recomputes a thread's dynamic sched_pri from its base
// priority and accumulated CPU usage, per spec §4.5. Above-timeshare
// (FIXPRI) buckets and bound threads never decay; neither does a thread
// whose pri_shift is still pinned at the 127 (INT8_MAX) "no decay yet"
// sentinel.
func computeSchedPri(t *Thread, cbg *ClutchBucketGroup) int {
	if isAboveTimeshare(cbg.Bucket) {
		return t.BasePri
	}
	if t.BoundProcessor != nil {
		return t.BasePri
	}
	if t.PriShift >= 127 {
		return t.BasePri
	}
	decay := t.SchedUsage >> uint(t.PriShift)
	pri := t.BasePri - int(decay)
	if pri < MinPri {
		pri = MinPri
	}
	if pri > t.MaxPriority {
		pri = t.MaxPriority
	}
	return pri
}

// updateThreadCPUUsage charges a CPU-time delta onto a thread and, if
// unbound, onto its clutch bucket group's aggregate usage (bound threads
// must not perturb bucket-group interactivity accounting).
func updateThreadCPUUsage(t *Thread, deltaUs uint64, cbg *ClutchBucketGroup) {
	t.CPUUsage += deltaUs
	if t.PriShift < 127 {
		t.SchedUsage += deltaUs
	}
	t.CPUDelta += deltaUs
	if t.BoundProcessor == nil {
		cbg.cpuUsageUpdate(deltaUs)
	}
}

// ageThreadCPUUsage applies one or more ticks of exponential decay to a
// thread's accumulated CPU usage, via the SchedDecayShifts lookup table.
func ageThreadCPUUsage(t *Thread, decayFactor int) {
	ticks := decayFactor
	if ticks < 0 {
		ticks = 0
	}
	if ticks >= SchedDecayTicks {
		t.CPUUsage = 0
		t.SchedUsage = 0
		t.CPUDelta = 0
		return
	}
	shift1, shift2 := SchedDecayShifts[ticks][0], SchedDecayShifts[ticks][1]
	t.CPUUsage = decayValue(t.CPUUsage, shift1, shift2)
	t.SchedUsage = decayValue(t.SchedUsage, shift1, shift2)
}

func decayValue(val uint64, shift1, shift2 int) uint64 {
	if shift2 > 0 {
		return (val >> uint(shift1)) + (val >> uint(shift2))
	}
	return (val >> uint(shift1)) - (val >> uint(-shift2))
}

// priShiftForLoad derives a pri_shift value from a run-count/processor-count
// load ratio: higher load implies a smaller shift (more aggressive decay).
func priShiftForLoad(runCount, processorCount int) int {
	if processorCount == 0 {
		return 127
	}
	effectiveRunCount := runCount - 1
	if effectiveRunCount < 0 {
		effectiveRunCount = 0
	}
	load := effectiveRunCount / processorCount
	if load > NRQS-1 {
		load = NRQS - 1
	}
	priShift := SchedFixedShift - SchedLoadShifts[load]
	if priShift > SchedPriShiftMax {
		return 127
	}
	return priShift
}
