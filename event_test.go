package clutch

import (
	"container/heap"
	"testing"
)

func TestEventLessOrdersByTimestampFirst(t *testing.T) {
	a := newEvent(100, EventThreadBlock, 1, 0, 0, 0)
	b := newEvent(50, EventSchedTick, 1, 0, 0, 1)
	if !eventLess(b, a) {
		t.Fatalf("expected earlier timestamp to sort first regardless of kind/seq")
	}
}

func TestEventLessOrdersByPriorityAtSameTimestamp(t *testing.T) {
	wakeup := newEvent(100, EventThreadWakeup, 1, 0, 0, 5)
	tick := newEvent(100, EventSchedTick, 1, 0, 0, 0)
	if !eventLess(wakeup, tick) {
		t.Fatalf("expected wakeup (priority 1) to sort before sched_tick (priority 6) at same timestamp")
	}
}

func TestEventLessOrdersBySeqAsFinalTiebreak(t *testing.T) {
	a := newEvent(100, EventThreadWakeup, 1, 0, 0, 3)
	b := newEvent(100, EventThreadWakeup, 2, 0, 0, 7)
	if !eventLess(a, b) {
		t.Fatalf("expected lower seq to sort first at equal timestamp and priority")
	}
}

func TestEventHeapPopsInDeterministicOrder(t *testing.T) {
	h := &eventHeap{}
	heap.Init(h)
	heap.Push(h, newEvent(100, EventThreadBlock, 1, 0, 0, 0))
	heap.Push(h, newEvent(50, EventThreadWakeup, 2, 0, 0, 1))
	heap.Push(h, newEvent(50, EventRTPeriodStart, 3, 0, 0, 2))
	heap.Push(h, newEvent(50, EventThreadWakeup, 4, 0, 0, 3))

	var order []Tid
	for h.Len() > 0 {
		e := heap.Pop(h).(Event)
		order = append(order, e.ThreadID)
	}

	want := []Tid{2, 4, 3, 1}
	for i, tid := range want {
		if order[i] != tid {
			t.Fatalf("pop order = %v, want %v", order, want)
		}
	}
}

func TestEventKindString(t *testing.T) {
	cases := map[EventKind]string{
		EventThreadWakeup:  "THREAD_WAKEUP",
		EventThreadBlock:   "THREAD_BLOCK",
		EventQuantumExpire: "QUANTUM_EXPIRE",
		EventSchedTick:     "SCHED_TICK",
		EventRTPeriodStart: "RT_PERIOD_START",
		EventSimulationEnd: "SIMULATION_END",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("EventKind(%d).String() = %s, want %s", kind, got, want)
		}
	}
}

func TestNewEventDerivesPriorityFromKind(t *testing.T) {
	e := newEvent(10, EventThreadBlock, 1, 0, 0, 0)
	if e.Priority != eventPriority[EventThreadBlock] {
		t.Fatalf("newEvent did not set Priority from eventPriority table, got %d", e.Priority)
	}
}
