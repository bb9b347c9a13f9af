package clutch

import "testing"

func TestScenariosRegistryHasTenEntries(t *testing.T) {
	if len(Scenarios) != 10 {
		t.Fatalf("expected 10 scenarios, got %d", len(Scenarios))
	}
}

func TestScenariosAllCallableAndNonEmpty(t *testing.T) {
	for name, fn := range Scenarios {
		profiles := fn()
		if len(profiles) == 0 {
			t.Errorf("scenario %q produced no workload profiles", name)
		}
		for _, wp := range profiles {
			if wp.NumThreads <= 0 {
				t.Errorf("scenario %q: profile %q has NumThreads <= 0", name, wp.Name)
			}
			switch wp.SchedMode {
			case ModeRealtime, ModeFixed, ModeTimeshare:
			default:
				t.Errorf("scenario %q: profile %q has unrecognized SchedMode %d", name, wp.Name, wp.SchedMode)
			}
			if wp.SchedMode == ModeRealtime {
				if wp.Behavior.RTPeriodUs == 0 || wp.Behavior.RTComputationUs == 0 || wp.Behavior.RTConstraintUs == 0 {
					t.Errorf("scenario %q: RT profile %q missing RT timing fields", name, wp.Name)
				}
			} else {
				if wp.Behavior.AvgCPUBurstUs == 0 {
					t.Errorf("scenario %q: profile %q missing AvgCPUBurstUs", name, wp.Name)
				}
			}
		}
	}
}

func TestMixedWorkloadComposesOtherScenarios(t *testing.T) {
	mixed := mixedWorkload()
	want := len(interactiveAppWorkload()) + len(backgroundCompileWorkload()) + len(mediaPlaybackWorkload())
	if len(mixed) != want {
		t.Fatalf("mixedWorkload() has %d profiles, want %d", len(mixed), want)
	}
}

func TestStarvationTestWorkloadHasForegroundAndBackgroundContention(t *testing.T) {
	profiles := starvationTestWorkload()
	var sawFG, sawBG bool
	for _, wp := range profiles {
		if wp.BasePri == BasePriForeground {
			sawFG = true
		}
		if wp.BasePri <= MaxPriThrottle {
			sawBG = true
		}
	}
	if !sawFG || !sawBG {
		t.Fatalf("expected starvation scenario to mix foreground and background-throttle priorities")
	}
}

func TestFixedPriorityServiceWorkloadUsesFixedMode(t *testing.T) {
	profiles := fixedPriorityServiceWorkload()
	var sawFixed bool
	for _, wp := range profiles {
		if wp.SchedMode == ModeFixed {
			sawFixed = true
		}
	}
	if !sawFixed {
		t.Fatalf("expected fixed-priority scenario to include at least one ModeFixed profile")
	}
}

func TestRTStudioWorkloadHasMultipleRealtimeThreads(t *testing.T) {
	profiles := rtStudioWorkload()
	count := 0
	for _, wp := range profiles {
		if wp.SchedMode == ModeRealtime {
			count += wp.NumThreads
		}
	}
	if count < 2 {
		t.Fatalf("expected at least 2 RT threads in rt_studio scenario, got %d", count)
	}
}
