package clutch

// Priority levels (XNU parity: bsd/sys/sched.h, osfmk/kern/sched.h).
const (
	NRQSMax = 128
	MaxPri  = 127
	MinPri  = 0
	IdlePri = MinPri
	NoPri   = -1

	BasePriRealtime    = 96
	BasePriRTQueues    = 97
	MaxPriKernel       = 95
	BasePriPreempt     = 92
	BasePriPreemptHigh = 93
	BasePriVM          = 91
	BasePriKernel      = 81
	MinPriKernel       = 80
	MaxPriReserved     = 79
	MinPriReserved     = 64
	MaxPriUser         = 63
	BasePriDefault     = 31
	BasePriControl     = 48
	BasePriForeground  = 47
	BasePriBackground  = 46
	BasePriUserInit    = 37
	MaxPriSuppressed   = 28
	BasePriUtility     = 20
	MaxPriThrottle     = 4
	MinPriUser         = 0

	NRQS         = 96 // non-RT priority levels
	NRTQS        = 31 // RT priority levels
	MaxPriPromote = 95
)

// RT deadline sentinels.
const (
	RTDeadlineNone           uint64 = 0xFFFFFFFFFFFFFFFF
	RTDeadlineQuantumExpired uint64 = 0xFFFFFFFFFFFFFFFE
)

// Bucket is a QoS band, one of the six clutch buckets plus the RUN sentinel.
type Bucket int

const (
	BucketFixpri Bucket = iota
	BucketShareFG
	BucketShareIN
	BucketShareDF
	BucketShareUT
	BucketShareBG
	BucketRun // sentinel: not a real bucket, marks "currently running"
	BucketMax
)

const BucketSchedMax = BucketRun

var bucketNames = [BucketSchedMax]string{"FIXPRI", "FG", "IN", "DF", "UT", "BG"}

func (b Bucket) String() string {
	if b < 0 || int(b) >= len(bucketNames) {
		return "?"
	}
	return bucketNames[b]
}

// SchedMode is a thread's scheduling policy.
type SchedMode int

const (
	ModeRealtime SchedMode = iota
	ModeFixed
	ModeTimeshare
)

func (m SchedMode) String() string {
	switch m {
	case ModeRealtime:
		return "REALTIME"
	case ModeFixed:
		return "FIXED"
	case ModeTimeshare:
		return "TIMESHARE"
	default:
		return "?"
	}
}

// Clutch-internal invalid-time sentinels.
const (
	InvalidTime32 uint64 = 0xFFFFFFFF
	InvalidTime64 uint64 = 0xFFFFFFFFFFFFFFFF
)

// RootBucketWCELUs is the worst-case-execution-latency used to derive a root
// bucket's EDF deadline: deadline = now + wcel[bucket]. Index 0 (FIXPRI) is
// unused since FIXPRI never participates in EDF.
var RootBucketWCELUs = [BucketSchedMax]uint64{InvalidTime32, 37500, 75000, 150000, 250000, 0}

// SchedClutchRootBucketWarpUnused marks a root bucket's warp window as not
// currently open.
const SchedClutchRootBucketWarpUnused uint64 = InvalidTime64

// RootBucketWarpUs is the per-band warp budget, in microseconds.
var RootBucketWarpUs = [BucketSchedMax]uint64{InvalidTime32, 8000, 4000, 2000, 1000, 0}

// ThreadQuantumUs is the per-band thread quantum, in microseconds.
var ThreadQuantumUs = [BucketSchedMax]uint64{10000, 10000, 8000, 6000, 4000, 2000}

// Interactivity constants.
const (
	ClutchBucketGroupInteractivePriDefault  = 8
	ClutchBucketGroupAdjustThresholdUs      = 500000
	ClutchBucketGroupAdjustRatio            = 10
	clutchBucketGroupInitialInteractivity   = ClutchBucketGroupInteractivePriDefault * 2
)

// Timeshare decay.
const (
	SchedPriShiftMax = 31
	MaxLoad          = NRQS - 1
	SchedFixedShift  = 31
	SchedDecayTicks  = 32
	SchedTickIntervalUs = 125000
)

// SchedDecayShifts is ported verbatim from osfmk/kern/sched_prim.c's
// sched_decay_shifts table: for each elapsed-tick count, a (shift1, shift2)
// pair approximating exponential decay via two shifts, combined either by
// sum (shift2 > 0) or difference (shift2 < 0).
var SchedDecayShifts = [SchedDecayTicks][2]int{
	{1, 1}, {1, 3}, {1, -3}, {2, -7}, {3, 5}, {3, -5}, {4, -8}, {5, 7},
	{5, -7}, {6, -10}, {7, 10}, {7, -9}, {8, -11}, {9, 12}, {9, -11}, {10, -13},
	{11, 14}, {11, -13}, {12, -15}, {13, 17}, {13, -15}, {14, -17}, {15, 19}, {16, 18},
	{16, -19}, {17, 22}, {18, 20}, {18, -20}, {19, 26}, {20, 22}, {20, -22}, {21, -27},
}

// SchedLoadShifts is computed the way osfmk/kern/sched_prim.c's
// sched_load_shifts table is built: shifts[0] pinned to a sentinel meaning
// "no load", shifts[1]=0 (no decay at load<=1), then successive ranges of
// increasing width get successive shift values.
var SchedLoadShifts = computeLoadShifts(NRQS, 1)

func computeLoadShifts(nrqs int, decayPenalty uint) []int {
	shifts := make([]int, nrqs)
	shifts[0] = -128 // INT8_MIN sentinel: load 0 yields a pri_shift above SchedPriShiftMax, i.e. 127
	if nrqs > 1 {
		shifts[1] = 0
	}
	j := 1 << decayPenalty
	k := 1
	idx := 2
	for idx < nrqs {
		j <<= 1
		end := j
		if end > nrqs {
			end = nrqs
		}
		for ; idx < end; idx++ {
			shifts[idx] = k
		}
		k++
	}
	return shifts
}

// SchedClutchBucketGroupPendingDeltaUs, indexed by bucket, used by the
// interactivity pending-ageout computation.
var SchedClutchBucketGroupPendingDeltaUs = [BucketSchedMax]uint64{InvalidTime32, 10000, 37500, 75000, 150000, 250000}

// Enqueue option flags, passed to thread_setrun and clutch-bucket inserts.
type EnqueueOptions int

const (
	SchedTailq EnqueueOptions = 0x1
	SchedHeadq EnqueueOptions = 0x2
	SchedPreempt EnqueueOptions = 0x4
)

// Clutch bucket runqueue options.
const (
	ClutchBucketOptionsNone   EnqueueOptions = 0x0
	ClutchBucketOptionsSamepriRR EnqueueOptions = 0x1
	ClutchBucketOptionsHeadq  EnqueueOptions = 0x2
	ClutchBucketOptionsTailq  EnqueueOptions = 0x4
)

func isAboveTimeshare(b Bucket) bool {
	return b == BucketFixpri
}
