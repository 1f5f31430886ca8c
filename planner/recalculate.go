package planner

import (
	"math"

	"gopper/core"
)

// Recalculate runs the look-ahead optimizer over ring: a reverse pass, a
// forward pass, and a trapezoid refresh of every block still flagged
// RECALCULATE. The builder calls this once per admitted move; it is also
// safe to call after a block is retired, since a shrunk queue only gives
// the passes less to do.
func Recalculate(r *Ring, lim *Limits) {
	if r.IsEmpty() {
		return
	}
	reversePass(r)
	forwardPass(r)
	trapezoidRefresh(r)
	core.RecordTiming(core.EvtLookAhead, 0, core.GetTime(), r.MovesPlanned(), 0)
}

// reversePass backpropagates entry-speed reductions from the newest block
// toward the oldest, never touching the block at tail or tail+1 - the
// stepper boundary may claim either at any moment.
func reversePass(r *Ring) {
	if r.MovesPlanned() <= 3 {
		return
	}
	head := int64(r.Head())
	tail := int64(r.Tail())

	for i := head - 2; i >= tail+2; i-- {
		current := r.At(uint32(i))
		next := r.At(uint32(i + 1))

		if current.EntrySpeed != current.MaxEntrySpeed {
			if current.HasFlag(FlagNominalLength) || current.MaxEntrySpeed <= next.EntrySpeed {
				current.EntrySpeed = current.MaxEntrySpeed
			} else {
				reachable := math.Sqrt(next.EntrySpeed*next.EntrySpeed + 2*current.Acceleration*current.Millimeters)
				current.EntrySpeed = math.Min(current.MaxEntrySpeed, reachable)
			}
			current.SetFlag(FlagRecalculate)
		}

		if current.HasFlag(FlagStartFromFullHalt) {
			break
		}
	}
}

// forwardPass walks from the oldest block toward the newest and lowers
// each block's entry speed to what the block before it can accelerate to
// over its length; it never raises an entry speed.
func forwardPass(r *Ring) {
	head := r.Head()
	tail := r.Tail()
	if head-tail < 2 {
		return
	}
	for i := tail; i < head-1; i++ {
		previous := r.At(i)
		current := r.At(i + 1)

		if previous.HasFlag(FlagNominalLength) {
			continue
		}
		if previous.EntrySpeed >= current.EntrySpeed {
			continue
		}
		reachable := math.Sqrt(previous.EntrySpeed*previous.EntrySpeed + 2*previous.Acceleration*previous.Millimeters)
		newEntry := math.Min(current.EntrySpeed, reachable)
		if newEntry != current.EntrySpeed {
			current.EntrySpeed = newEntry
			current.SetFlag(FlagRecalculate)
		}
	}
}

// trapezoidRefresh recomputes the step-rate profile of every block whose
// entry speed the passes above may have changed, plus the newest block
// (which always decelerates to a stop). A block at tail or tail+1 may be
// claimed by the stepper boundary mid-update, so both the commit and the
// RECALCULATE clear happen under the ring's critical section and are
// skipped outright when the block turns out to be busy - that busy check
// is what makes touching tail/tail+1 safe, not any distance from tail.
func trapezoidRefresh(r *Ring) {
	head := r.Head()
	tail := r.Tail()
	if head == tail {
		return
	}

	section := r.Section()
	for i := tail; i < head-1; i++ {
		current := r.At(i)
		next := r.At(i + 1)
		if !current.HasFlag(FlagRecalculate) && !next.HasFlag(FlagRecalculate) {
			continue
		}

		func() {
			defer section.Enter()()
			if current.Busy.Load() {
				return
			}
			Trapezoid(current, current.EntrySpeed, next.EntrySpeed, core.TimerFreq)
			core.RecordTiming(core.EvtTrapezoid, 0, core.GetTime(), i, 0)
			current.ClearFlag(FlagRecalculate)
		}()
	}

	last := r.At(head - 1)
	func() {
		defer section.Enter()()
		if last.Busy.Load() {
			return
		}
		Trapezoid(last, last.EntrySpeed, 0, core.TimerFreq)
		core.RecordTiming(core.EvtTrapezoid, 0, core.GetTime(), head-1, 0)
		last.ClearFlag(FlagRecalculate)
	}()
}
