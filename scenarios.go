package clutch

// Built-in scenario workloads, grounded on
// original_source/simulator/workload.py's ten SCENARIOS generators
// (SPEC_FULL.md §C item 7). The CLI's --scenario flag selects among these.

func interactiveAppWorkload() []WorkloadProfile {
	return []WorkloadProfile{
		{
			Name: "safari-main", ThreadGroupName: "Safari", NumThreads: 2,
			SchedMode: ModeTimeshare, BasePri: BasePriForeground,
			Behavior: BehaviorProfile{AvgCPUBurstUs: 2000, CPUBurstVariance: 0.3, AvgBlockUs: 100000, BlockVariance: 0.3},
		},
		{
			Name: "safari-render", ThreadGroupName: "Safari", NumThreads: 2,
			SchedMode: ModeTimeshare, BasePri: BasePriUserInit,
			Behavior: BehaviorProfile{AvgCPUBurstUs: 5000, CPUBurstVariance: 0.3, AvgBlockUs: 30000, BlockVariance: 0.3},
		},
	}
}

func backgroundCompileWorkload() []WorkloadProfile {
	return []WorkloadProfile{
		{
			Name: "clang", ThreadGroupName: "Xcode-Build", NumThreads: 4,
			SchedMode: ModeTimeshare, BasePri: BasePriDefault,
			Behavior: BehaviorProfile{AvgCPUBurstUs: 80000, CPUBurstVariance: 0.4, AvgBlockUs: 5000, BlockVariance: 0.3},
		},
	}
}

func mediaPlaybackWorkload() []WorkloadProfile {
	return []WorkloadProfile{
		{
			Name: "audio-rt", ThreadGroupName: "CoreAudio", NumThreads: 1,
			SchedMode: ModeRealtime, BasePri: BasePriRealtime,
			Behavior: BehaviorProfile{RTPeriodUs: 33333, RTComputationUs: 5000, RTConstraintUs: 10000},
		},
	}
}

func mixedWorkload() []WorkloadProfile {
	var profiles []WorkloadProfile
	profiles = append(profiles, interactiveAppWorkload()...)
	profiles = append(profiles, backgroundCompileWorkload()...)
	profiles = append(profiles, mediaPlaybackWorkload()...)
	return profiles
}

func starvationTestWorkload() []WorkloadProfile {
	return []WorkloadProfile{
		{
			Name: "fg-heavy", ThreadGroupName: "FG-App", NumThreads: 8,
			SchedMode: ModeTimeshare, BasePri: BasePriForeground,
			Behavior: BehaviorProfile{AvgCPUBurstUs: 15000, CPUBurstVariance: 0.3, AvgBlockUs: 5000, BlockVariance: 0.3},
		},
		{
			Name: "bg-worker", ThreadGroupName: "BG-Indexer", NumThreads: 2,
			SchedMode: ModeTimeshare, BasePri: MaxPriThrottle,
			Behavior: BehaviorProfile{AvgCPUBurstUs: 50000, CPUBurstVariance: 0.3, AvgBlockUs: 10000, BlockVariance: 0.3},
		},
	}
}

func warpDemoWorkload() []WorkloadProfile {
	return []WorkloadProfile{
		{
			Name: "fg-burst", ThreadGroupName: "FG-Burst", NumThreads: 2,
			SchedMode: ModeTimeshare, BasePri: BasePriForeground,
			Behavior: BehaviorProfile{AvgCPUBurstUs: 3000, CPUBurstVariance: 0.3, AvgBlockUs: 200000, BlockVariance: 0.3},
		},
		{
			Name: "df-steady", ThreadGroupName: "DF-Steady", NumThreads: 4,
			SchedMode: ModeTimeshare, BasePri: BasePriDefault,
			Behavior: BehaviorProfile{AvgCPUBurstUs: 20000, CPUBurstVariance: 0.3, AvgBlockUs: 10000, BlockVariance: 0.3},
		},
		{
			Name: "bg-batch", ThreadGroupName: "BG-Batch", NumThreads: 2,
			SchedMode: ModeTimeshare, BasePri: MaxPriThrottle,
			Behavior: BehaviorProfile{AvgCPUBurstUs: 100000, CPUBurstVariance: 0.3, AvgBlockUs: 5000, BlockVariance: 0.3},
		},
	}
}

func desktopDayWorkload() []WorkloadProfile {
	return []WorkloadProfile{
		{
			Name: "browser-ui", ThreadGroupName: "Browser", NumThreads: 3,
			SchedMode: ModeTimeshare, BasePri: BasePriForeground,
			Behavior: BehaviorProfile{AvgCPUBurstUs: 2500, CPUBurstVariance: 0.3, AvgBlockUs: 120000, BlockVariance: 0.3},
		},
		{
			Name: "chat-ui", ThreadGroupName: "ChatApp", NumThreads: 2,
			SchedMode: ModeTimeshare, BasePri: BasePriUserInit,
			Behavior: BehaviorProfile{AvgCPUBurstUs: 3000, CPUBurstVariance: 0.3, AvgBlockUs: 70000, BlockVariance: 0.3},
		},
		{
			Name: "ide-index", ThreadGroupName: "IDE", NumThreads: 3,
			SchedMode: ModeTimeshare, BasePri: BasePriDefault,
			Behavior: BehaviorProfile{AvgCPUBurstUs: 25000, CPUBurstVariance: 0.35, AvgBlockUs: 15000, BlockVariance: 0.3},
		},
		{
			Name: "photo-bg", ThreadGroupName: "PhotoLibrary", NumThreads: 2,
			SchedMode: ModeTimeshare, BasePri: MaxPriThrottle,
			Behavior: BehaviorProfile{AvgCPUBurstUs: 60000, CPUBurstVariance: 0.3, AvgBlockUs: 12000, BlockVariance: 0.3},
		},
	}
}

func rtStudioWorkload() []WorkloadProfile {
	return []WorkloadProfile{
		{
			Name: "audio-engine", ThreadGroupName: "DAW", NumThreads: 1,
			SchedMode: ModeRealtime, BasePri: BasePriRealtime,
			Behavior: BehaviorProfile{RTPeriodUs: 10000, RTComputationUs: 2000, RTConstraintUs: 3000},
		},
		{
			Name: "video-capture", ThreadGroupName: "Capture", NumThreads: 1,
			SchedMode: ModeRealtime, BasePri: BasePriRealtime,
			Behavior: BehaviorProfile{RTPeriodUs: 33333, RTComputationUs: 7000, RTConstraintUs: 12000},
		},
		{
			Name: "daw-ui", ThreadGroupName: "DAW", NumThreads: 2,
			SchedMode: ModeTimeshare, BasePri: BasePriUserInit,
			Behavior: BehaviorProfile{AvgCPUBurstUs: 3500, CPUBurstVariance: 0.3, AvgBlockUs: 25000, BlockVariance: 0.3},
		},
		{
			Name: "export-bg", ThreadGroupName: "Exporter", NumThreads: 2,
			SchedMode: ModeTimeshare, BasePri: BasePriUtility,
			Behavior: BehaviorProfile{AvgCPUBurstUs: 50000, CPUBurstVariance: 0.3, AvgBlockUs: 8000, BlockVariance: 0.3},
		},
	}
}

func fixedPriorityServiceWorkload() []WorkloadProfile {
	return []WorkloadProfile{
		{
			Name: "windowserver-fix", ThreadGroupName: "WindowServer", NumThreads: 1,
			SchedMode: ModeFixed, BasePri: BasePriControl,
			Behavior: BehaviorProfile{AvgCPUBurstUs: 4000, CPUBurstVariance: 0.3, AvgBlockUs: 6000, BlockVariance: 0.3},
		},
		{
			Name: "foreground-app", ThreadGroupName: "Editor", NumThreads: 3,
			SchedMode: ModeTimeshare, BasePri: BasePriForeground,
			Behavior: BehaviorProfile{AvgCPUBurstUs: 8000, CPUBurstVariance: 0.3, AvgBlockUs: 15000, BlockVariance: 0.3},
		},
		{
			Name: "utility-sync", ThreadGroupName: "SyncAgent", NumThreads: 2,
			SchedMode: ModeTimeshare, BasePri: BasePriUtility,
			Behavior: BehaviorProfile{AvgCPUBurstUs: 30000, CPUBurstVariance: 0.3, AvgBlockUs: 12000, BlockVariance: 0.3},
		},
	}
}

func cpuStormWorkload() []WorkloadProfile {
	return []WorkloadProfile{
		{
			Name: "fg-hot", ThreadGroupName: "Renderer", NumThreads: 6,
			SchedMode: ModeTimeshare, BasePri: BasePriForeground,
			Behavior: BehaviorProfile{AvgCPUBurstUs: 120000, CPUBurstVariance: 0.2, AvgBlockUs: 1000, BlockVariance: 0.3},
		},
		{
			Name: "df-hot", ThreadGroupName: "CompilerFarm", NumThreads: 8,
			SchedMode: ModeTimeshare, BasePri: BasePriDefault,
			Behavior: BehaviorProfile{AvgCPUBurstUs: 100000, CPUBurstVariance: 0.25, AvgBlockUs: 2000, BlockVariance: 0.3},
		},
		{
			Name: "ut-batch", ThreadGroupName: "Analytics", NumThreads: 4,
			SchedMode: ModeTimeshare, BasePri: BasePriUtility,
			Behavior: BehaviorProfile{AvgCPUBurstUs: 150000, CPUBurstVariance: 0.25, AvgBlockUs: 3000, BlockVariance: 0.3},
		},
	}
}

// Scenarios is the registry the CLI's --scenario flag selects from.
var Scenarios = map[string]func() []WorkloadProfile{
	"interactive": interactiveAppWorkload,
	"compile":     backgroundCompileWorkload,
	"media":       mediaPlaybackWorkload,
	"mixed":       mixedWorkload,
	"starvation":  starvationTestWorkload,
	"warp":        warpDemoWorkload,
	"desktop":     desktopDayWorkload,
	"rt_studio":   rtStudioWorkload,
	"fixed":       fixedPriorityServiceWorkload,
	"cpu_storm":   cpuStormWorkload,
}
