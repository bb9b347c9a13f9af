package clutch

// EventKind enumerates the simulation's event types. Per SPEC_FULL.md §D
// this repo ports exactly the five canonical kinds plus one
// implementation-necessary termination sentinel; the reference's
// PREEMPTION_CHECK and RT_DEADLINE are dead code (never scheduled anywhere
// in the system this was distilled from) and are not ported.
type EventKind int

const (
	EventThreadWakeup EventKind = iota
	EventThreadBlock
	EventQuantumExpire
	EventSchedTick
	EventRTPeriodStart
	EventSimulationEnd
)

func (k EventKind) String() string {
	switch k {
	case EventThreadWakeup:
		return "THREAD_WAKEUP"
	case EventThreadBlock:
		return "THREAD_BLOCK"
	case EventQuantumExpire:
		return "QUANTUM_EXPIRE"
	case EventSchedTick:
		return "SCHED_TICK"
	case EventRTPeriodStart:
		return "RT_PERIOD_START"
	case EventSimulationEnd:
		return "SIMULATION_END"
	default:
		return "?"
	}
}

// eventPriority breaks ties between events at the same timestamp, lowest
// value dispatched first. Ordering mirrors the reference's EVENT_PRIORITY
// table, compacted to the kinds this repo actually schedules.
var eventPriority = map[EventKind]int{
	EventThreadWakeup:  1,
	EventRTPeriodStart: 2,
	EventQuantumExpire: 4,
	EventThreadBlock:   5,
	EventSchedTick:     6,
	EventSimulationEnd: 99,
}

// Event is one entry in the engine's event heap, ordered by
// (Timestamp, Priority, Seq) for deterministic tie-breaking (spec §5's P6).
type Event struct {
	Timestamp   uint64
	Priority    int
	Kind        EventKind
	ThreadID    Tid
	ProcessorID int
	Data        uint64 // kind-specific payload (e.g. the quantum_end this expiry was scheduled against)
	Seq         uint64
}

func newEvent(timestamp uint64, kind EventKind, threadID Tid, processorID int, data uint64, seq uint64) Event {
	return Event{
		Timestamp:   timestamp,
		Priority:    eventPriority[kind],
		Kind:        kind,
		ThreadID:    threadID,
		ProcessorID: processorID,
		Data:        data,
		Seq:         seq,
	}
}

// eventLess implements the heap ordering for *eventHeap.
func eventLess(a, b Event) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp < b.Timestamp
	}
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.Seq < b.Seq
}

// eventHeap is a container/heap.Interface over []Event.
type eventHeap []Event

func (h eventHeap) Len() int            { return len(h) }
func (h eventHeap) Less(i, j int) bool  { return eventLess(h[i], h[j]) }
func (h eventHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x interface{}) { *h = append(*h, x.(Event)) }
func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
