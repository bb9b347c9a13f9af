package clutch

// ProcessorState is a CPU's dispatch state. The reference's third value,
// DISPATCHING, is never transitioned to anywhere in the system this spec was
// distilled from, so it is not ported (SPEC_FULL.md §E).
type ProcessorState int

const (
	ProcessorIdle ProcessorState = iota
	ProcessorRunning
)

func (s ProcessorState) String() string {
	if s == ProcessorRunning {
		return "RUNNING"
	}
	return "IDLE"
}

// Processor is a single simulated CPU core. Per this repo's bound-runqueue
// Open Question resolution (SPEC_FULL.md §E), it owns its bound runqueue
// directly, matching spec §3's literal data model.
type Processor struct {
	ProcessorID int
	State       ProcessorState
	ActiveThread *Thread
	CurrentPri  int
	QuantumEnd  uint64
	FirstTimeslice bool
	StartingPri int

	BoundRunq *StablePriorityQueue[*Thread]

	IdleTimeUs       uint64
	BusyTimeUs       uint64
	ContextSwitches  int
	LastDispatchTime uint64
}

func newProcessor(id int) *Processor {
	return &Processor{
		ProcessorID: id,
		State:       ProcessorIdle,
		CurrentPri:  NoPri,
		StartingPri: NoPri,
		BoundRunq:   NewStablePriorityQueue[*Thread](func(t *Thread) int { return t.SchedPri }),
	}
}

func (p *Processor) IsIdle() bool {
	return p.State == ProcessorIdle || p.ActiveThread == nil
}

// ProcessorSet is the set of processors sharing an RT queue and clutch
// hierarchy for a single cluster.
type ProcessorSet struct {
	PsetID         int
	Processors     []*Processor
	RTRunq         *RTQueue
	ClutchRoot     *ClutchRoot
	ProcessorCount int
}

func newProcessorSet(psetID, numCPUs int) *ProcessorSet {
	ps := &ProcessorSet{
		PsetID:         psetID,
		RTRunq:         newRTQueue(),
		ClutchRoot:     newClutchRoot(psetID),
		ProcessorCount: numCPUs,
	}
	for i := 0; i < numCPUs; i++ {
		ps.Processors = append(ps.Processors, newProcessor(i))
	}
	return ps
}

func (ps *ProcessorSet) FindIdleProcessor() *Processor {
	for _, p := range ps.Processors {
		if p.IsIdle() {
			return p
		}
	}
	return nil
}

func (ps *ProcessorSet) FindLowestPriorityProcessor() *Processor {
	var lowest *Processor
	lowestPri := 1<<31 - 1
	for _, p := range ps.Processors {
		if p.ActiveThread != nil && p.CurrentPri < lowestPri {
			lowestPri = p.CurrentPri
			lowest = p
		}
	}
	return lowest
}
