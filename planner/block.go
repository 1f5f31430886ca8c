package planner

import "sync/atomic"

// NAxes is the number of axes a block carries: X, Y, Z, and one extruder.
const NAxes = 4

const (
	AxisX = iota
	AxisY
	AxisZ
	AxisE
)

// NumFans is the number of cooling-fan duty values carried per block.
const NumFans = 2

// Flags records block state that the look-ahead pass and the stepper
// boundary both need to agree on. Busy is the only bit shared across
// goroutines and is kept out of this bitset so it can be an atomic.Bool;
// the rest are mutated by the producer before publish and by Recalculate
// under the ring's critical section, never concurrently with a reader.
type Flags uint8

const (
	// FlagRecalculate marks a block whose trapezoid has not been committed
	// since its entry speed (or its successor's) last changed. Set on every
	// newly built block and by the look-ahead passes; cleared by the
	// trapezoid refresh once it commits the block's profile.
	FlagRecalculate Flags = 1 << iota

	// FlagNominalLength marks a block long enough to come to a full stop
	// from its nominal speed within its own length. The reverse pass sets
	// such a block's entry speed straight to its max entry speed, and the
	// forward pass does not cap the next block's entry speed by it.
	FlagNominalLength

	// FlagStartFromFullHalt marks a block the reverse pass stops at: either
	// one built with no block queued before it (the first block ever, or
	// the first after the ring drained), whose entry speed is zero
	// regardless of any stale previous_speed left over from the last move,
	// or one whose junction speed was replaced by its safe speed.
	FlagStartFromFullHalt
)

// Block is one planned linear move: the step deltas for the stepper
// boundary to execute, plus the kinematic state the look-ahead pass and
// the trapezoid generator need to turn it into a step-rate profile.
type Block struct {
	// Busy is set by the stepper boundary when it claims the block via
	// GetCurrent and stays set until the block is retired and its slot is
	// reset by Reserve for a new move. It is the one field look-ahead and the
	// builder must check before touching anything else on the block.
	Busy atomic.Bool

	flags Flags

	// Steps holds the absolute step count per axis; DirectionBits carries
	// the sign, bit i set meaning axis i moves in the negative direction.
	Steps          [NAxes]uint32
	StepEventCount uint32
	DirectionBits  uint8

	Millimeters  float64
	NominalSpeed float64
	NominalRate  uint32

	EntrySpeed    float64
	MaxEntrySpeed float64

	Acceleration           float64
	AccelerationStepsPerS2 float64
	AccelerationRate       uint32

	AccelerateUntil uint32
	DecelerateAfter uint32
	InitialRate     uint32
	FinalRate       uint32

	FanSpeed       [NumFans]uint8
	ActiveExtruder uint8
}

func (b *Block) HasFlag(f Flags) bool { return b.flags&f != 0 }
func (b *Block) SetFlag(f Flags)      { b.flags |= f }
func (b *Block) ClearFlag(f Flags)    { b.flags &^= f }

// reset clears a block back to its zero value before the builder starts
// filling it in, so a recycled ring slot never leaks a stale trapezoid or
// flag bit from the move that previously occupied it.
func (b *Block) reset() {
	b.Busy.Store(false)
	b.flags = 0
	b.Steps = [NAxes]uint32{}
	b.StepEventCount = 0
	b.DirectionBits = 0
	b.Millimeters = 0
	b.NominalSpeed = 0
	b.NominalRate = 0
	b.EntrySpeed = 0
	b.MaxEntrySpeed = 0
	b.Acceleration = 0
	b.AccelerationStepsPerS2 = 0
	b.AccelerationRate = 0
	b.AccelerateUntil = 0
	b.DecelerateAfter = 0
	b.InitialRate = 0
	b.FinalRate = 0
	b.FanSpeed = [NumFans]uint8{}
	b.ActiveExtruder = 0
}
