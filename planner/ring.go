package planner

import (
	"errors"
	"sync/atomic"

	"gopper/core"
)

// Ring is the fixed-capacity single-producer/single-consumer block queue
// the builder feeds and the stepper boundary drains. Capacity must be a
// power of two so head/tail wraparound is a mask instead of a modulo.
//
// head and tail are monotonically increasing counters, not slot indices;
// the slot for counter i is blocks[i & mask]. That makes IsEmpty/IsFull/
// MovesPlanned simple counter comparisons that never need to special-case
// the wrapped-vs-not-wrapped ambiguity a modulo-indexed ring has.
type Ring struct {
	capMask uint32
	blocks  []Block

	head atomic.Uint32 // next slot the producer will fill
	tail atomic.Uint32 // oldest slot not yet retired by the stepper boundary

	// section guards look-ahead's in-place edits to a block's flags and
	// trapezoid fields. The producer needs no lock to fill a fresh slot
	// (single producer, slot not yet published) and the stepper boundary
	// needs no lock to read a claimed block's steps (Busy already fences
	// that handoff), so this section is entered only by Recalculate and by
	// SyncPositionFromStepper's rewrite of Position.
	section core.CriticalSection

	// Position is the planner's notion of the machine's absolute step
	// position, advanced as each block is built. It is producer-only
	// state except for SyncPositionFromStepper, which the stepper
	// boundary calls after an abort to pull the planner back in sync
	// with wherever the steppers physically stopped.
	Position [NAxes]int64

	// HasPrevious is false only until the first block is ever built;
	// before that there is no previous segment to compute a junction
	// speed against and the first block always starts from a full halt.
	HasPrevious bool

	// PreviousSpeed, PreviousNominalSpeed, and PreviousSafeSpeed are the
	// producer's junction-speed bookkeeping, carried from one built block
	// to the next. Touched only by the builder.
	PreviousSpeed        [NAxes]float64
	PreviousNominalSpeed float64
	PreviousSafeSpeed    float64

	// Idle is invoked by Reserve while the ring is full; it should service
	// whatever the caller's foreground loop would otherwise starve -
	// heater management, the watchdog, a UI poll. Defaults to a no-op so
	// tests that never set it just spin.
	Idle func()
}

// NewRing allocates a ring with the given power-of-two capacity.
func NewRing(capacity uint32) (*Ring, error) {
	if capacity == 0 || capacity&(capacity-1) != 0 {
		return nil, errors.New("planner: ring capacity must be a power of two")
	}
	r := &Ring{
		capMask: capacity - 1,
		blocks:  make([]Block, capacity),
		Idle:    func() {},
	}
	r.PreviousSafeSpeed = 0
	return r, nil
}

// Capacity returns the number of blocks the ring can hold.
func (r *Ring) Capacity() uint32 { return r.capMask + 1 }

// IsEmpty reports whether no blocks are queued.
func (r *Ring) IsEmpty() bool { return r.head.Load() == r.tail.Load() }

// IsFull reports whether the ring has no free slot for a new block.
func (r *Ring) IsFull() bool { return r.MovesPlanned() == r.Capacity() }

// MovesPlanned returns how many blocks are currently queued.
func (r *Ring) MovesPlanned() uint32 { return r.head.Load() - r.tail.Load() }

// Reserve blocks, calling Idle, until there is room for one more block,
// then returns a pointer to that free slot for the builder to fill. The
// slot is not visible to the consumer until Publish is called.
func (r *Ring) Reserve() *Block {
	for r.IsFull() {
		r.Idle()
	}
	slot := &r.blocks[r.head.Load()&r.capMask]
	slot.reset()
	return slot
}

// Publish makes the most recently Reserved slot visible to the stepper
// boundary and the look-ahead pass.
func (r *Ring) Publish() {
	core.RecordTiming(core.EvtBlockBuilt, 0, core.GetTime(), r.head.Load(), 0)
	r.head.Add(1)
}

// at returns the block at absolute counter position i.
func (r *Ring) at(i uint32) *Block { return &r.blocks[i&r.capMask] }

// Head and Tail expose the raw counters for the look-ahead pass, which
// needs to walk the queued range without racing a concurrent Publish or
// DiscardCurrent.
func (r *Ring) Head() uint32 { return r.head.Load() }
func (r *Ring) Tail() uint32 { return r.tail.Load() }

// At exposes indexed block access for the look-ahead pass.
func (r *Ring) At(i uint32) *Block { return r.at(i) }

// Section exposes the ring's critical section so the look-ahead pass can
// guard its edits the same way the builder's callers expect.
func (r *Ring) Section() *core.CriticalSection { return &r.section }

// GetCurrent returns the oldest queued block for the stepper boundary to
// execute, or nil if the ring is empty or the block (or, when more than
// one move is queued, the block right after it) still has RECALCULATE
// set - the look-ahead pass might still revise its entry speed and it is
// not yet safe to commit to running it. A returned block is marked busy;
// it will never be returned to any other caller and the look-ahead pass
// will skip it from then on.
func (r *Ring) GetCurrent() *Block {
	if r.IsEmpty() {
		return nil
	}
	tail := r.tail.Load()
	blk := r.at(tail)
	if blk.HasFlag(FlagRecalculate) {
		return nil
	}
	if r.MovesPlanned() > 1 {
		next := r.at(tail + 1)
		if next.HasFlag(FlagRecalculate) {
			return nil
		}
	}
	blk.Busy.Store(true)
	core.RecordTiming(core.EvtBlockClaimed, 0, core.GetTime(), tail, 0)
	return blk
}

// DiscardCurrent retires the oldest queued block, freeing its slot for
// reuse. It is a no-op on an empty ring.
func (r *Ring) DiscardCurrent() {
	if r.IsEmpty() {
		return
	}
	tail := r.tail.Load()
	core.RecordTiming(core.EvtBlockRetired, 0, core.GetTime(), tail, 0)
	r.tail.Add(1)
}

// SyncPositionFromStepper rewrites the planner's notion of absolute step
// position. The stepper boundary calls this after discarding every
// in-flight block following an abort, so the next planned move measures
// its delta from where the machine actually is rather than where the
// planner last thought it was heading.
func (r *Ring) SyncPositionFromStepper(pos [NAxes]int64) {
	defer r.section.Enter()()
	r.Position = pos
}
