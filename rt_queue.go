package clutch

// RTQueue is the real-time runqueue: a multiset of runnable RT threads
// ordered by (sched_pri descending, rt_deadline ascending), with an EDF
// override that allows an earlier-deadline lower-priority thread to run
// first when doing so still leaves the higher-priority thread enough slack
// to meet its own constraint (spec §4.6).
type RTQueue struct {
	levels [NRTQS][]*Thread // index 0..NRTQS-1 maps to priority BasePriRTQueues..MaxPri
	count  int

	earliestDeadline uint64
	edIndex          int

	StrictPriority  bool
	DeadlineEpsilon uint64
}

func newRTQueue() *RTQueue {
	return &RTQueue{DeadlineEpsilon: 100, earliestDeadline: RTDeadlineNone, edIndex: -1}
}

func rtIndexForPri(pri int) int { return pri - BasePriRTQueues }
func rtPriForIndex(idx int) int { return idx + BasePriRTQueues }

func (q *RTQueue) Len() int { return q.count }

func (q *RTQueue) refreshGlobalED() {
	q.earliestDeadline = RTDeadlineNone
	q.edIndex = -1
	for idx := NRTQS - 1; idx >= 0; idx-- {
		for _, t := range q.levels[idx] {
			if t.RTDeadline < q.earliestDeadline {
				q.earliestDeadline = t.RTDeadline
				q.edIndex = idx
			}
		}
	}
}

func (q *RTQueue) highestPriIndex() int {
	for idx := NRTQS - 1; idx >= 0; idx-- {
		if len(q.levels[idx]) > 0 {
			return idx
		}
	}
	return -1
}

// HighestPriority returns the absolute priority of the highest-priority
// runnable RT thread, or NoPri if empty.
func (q *RTQueue) HighestPriority() int {
	idx := q.highestPriIndex()
	if idx < 0 {
		return NoPri
	}
	return rtPriForIndex(idx)
}

func (q *RTQueue) Peek() (*Thread, bool) {
	idx := q.chooseIndexForDequeue()
	if idx < 0 {
		return nil, false
	}
	s := q.levels[idx]
	if len(s) == 0 {
		return nil, false
	}
	return s[0], true
}

func (q *RTQueue) PeekDeadline() uint64 {
	if q.count == 0 {
		return RTDeadlineNone
	}
	return q.earliestDeadline
}

func (q *RTQueue) chooseIndexForDequeue() int {
	hiIndex := q.highestPriIndex()
	if hiIndex < 0 {
		return -1
	}
	if q.StrictPriority || q.edIndex < 0 || q.edIndex == hiIndex {
		return hiIndex
	}
	edThread := q.levels[q.edIndex][0]
	hiThread := q.levels[hiIndex][0]
	if edThread.RTComputation+hiThread.RTComputation+q.DeadlineEpsilon < hiThread.RTConstraint {
		return q.edIndex
	}
	return hiIndex
}

// Enqueue inserts a thread ordered by ascending rt_deadline within its
// priority level.
func (q *RTQueue) Enqueue(t *Thread) {
	idx := rtIndexForPri(t.SchedPri)
	if idx < 0 || idx >= NRTQS {
		panic("rt_queue: priority out of range")
	}
	s := q.levels[idx]
	pos := len(s)
	for i, o := range s {
		if t.RTDeadline < o.RTDeadline {
			pos = i
			break
		}
	}
	s = append(s, nil)
	copy(s[pos+1:], s[pos:])
	s[pos] = t
	q.levels[idx] = s
	q.count++
	q.refreshGlobalED()
}

func (q *RTQueue) Dequeue() (*Thread, bool) {
	idx := q.chooseIndexForDequeue()
	if idx < 0 {
		return nil, false
	}
	s := q.levels[idx]
	t := s[0]
	q.levels[idx] = s[1:]
	q.count--
	q.refreshGlobalED()
	return t, true
}

func (q *RTQueue) Remove(t *Thread) {
	idx := rtIndexForPri(t.SchedPri)
	if idx < 0 || idx >= NRTQS {
		return
	}
	s := q.levels[idx]
	for i, o := range s {
		if o == t {
			q.levels[idx] = append(s[:i], s[i+1:]...)
			q.count--
			q.refreshGlobalED()
			return
		}
	}
}
