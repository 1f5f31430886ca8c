package stepper

import (
	"sync/atomic"

	"gopper/core"
	"gopper/planner"
)

// AxisPin names the GPIO pins one physical axis drives and their polarity.
type AxisPin struct {
	Step       core.GPIOPin
	Dir        core.GPIOPin
	InvertStep bool
	InvertDir  bool
}

// Executor is a reference consumer of the planner boundary: it claims
// blocks from a Ring, walks each one's trapezoid profile step by step on
// the shared system timer, toggles the configured axis pins, and reports
// the physical step position back to the ring after an abort. The
// cycle-accurate step-pulse ISR itself is a different consumer's job;
// this one exists to give the planner boundary a real caller and to let
// tests observe a block's planned profile actually play out.
//
// The per-axis move queue shape (interval, count, direction) this walks
// one block at a time is the same shape the teacher's Stepper type queues
// up ahead of time; the trapezoid already gives each block its own
// interval schedule, so there is no separate queue to manage here.
type Executor struct {
	Ring *planner.Ring
	Pins [planner.NAxes]AxisPin

	position [planner.NAxes]atomic.Int64

	timer   core.Timer
	running atomic.Bool

	current   *planner.Block
	stepIndex uint32
	errAcc    [planner.NAxes]uint32
}

// NewExecutor returns an Executor draining r and driving pins.
func NewExecutor(r *planner.Ring, pins [planner.NAxes]AxisPin) *Executor {
	e := &Executor{Ring: r, Pins: pins}
	e.timer.Handler = e.onTick
	return e
}

// Position returns the executor's own notion of physical step position,
// the value sync_position_from_stepper pulls into the ring after an
// abort.
func (e *Executor) Position() [planner.NAxes]int64 {
	var p [planner.NAxes]int64
	for i := range p {
		p[i] = e.position[i].Load()
	}
	return p
}

// Start arms the timer against the next claimable block, if any. It is a
// no-op if already running; call it again after Abort to resume.
func (e *Executor) Start() {
	if e.running.Swap(true) {
		return
	}
	if !e.loadBlock() {
		e.running.Store(false)
		return
	}
	e.timer.WakeTime = core.GetTime() + rateInterval(e.current, 0)
	core.ScheduleTimer(&e.timer)
}

// IsRunning reports whether the executor currently has a block claimed and
// its timer armed. It does not wait for new blocks: once no further block
// is claimable it stops, and Start must be called again.
func (e *Executor) IsRunning() bool { return e.running.Load() }

// loadBlock claims the next runnable block from the ring, if any, and
// resets the per-block Bresenham state and direction pins for it. It
// never touches the shared timer - callers already holding the
// scheduler's dispatch lock (onTick) must not call core.ScheduleTimer
// reentrantly, so block transitions inside a tick only rewrite fields on
// the already-scheduled Timer and let the dispatcher's own reinsert
// logic carry it forward.
func (e *Executor) loadBlock() bool {
	blk := e.Ring.GetCurrent()
	if blk == nil {
		return false
	}
	e.current = blk
	e.stepIndex = 0
	e.errAcc = [planner.NAxes]uint32{}

	drv := core.MustGPIO()
	for i := range e.Pins {
		negative := blk.DirectionBits&(1<<uint(i)) != 0
		level := negative
		if e.Pins[i].InvertDir {
			level = !level
		}
		_ = drv.SetPin(e.Pins[i].Dir, level)
	}
	return true
}

// onTick fires one step event: it decides, Bresenham-style, which axes
// step this tick, pulses their pins, advances position, and either
// schedules the next event within the block or retires it and loads the
// next one.
func (e *Executor) onTick(t *core.Timer) uint8 {
	blk := e.current
	if blk == nil || !e.running.Load() {
		// Abort left this timer scheduled; drop it instead of stepping.
		return core.SF_DONE
	}
	drv := core.MustGPIO()

	for i := range e.Pins {
		steps := blk.Steps[i]
		if steps == 0 {
			continue
		}
		e.errAcc[i] += steps
		if e.errAcc[i] < blk.StepEventCount {
			continue
		}
		e.errAcc[i] -= blk.StepEventCount

		high := true
		if e.Pins[i].InvertStep {
			high = false
		}
		_ = drv.SetPin(e.Pins[i].Step, high)
		_ = drv.SetPin(e.Pins[i].Step, !high)

		if blk.DirectionBits&(1<<uint(i)) != 0 {
			e.position[i].Add(-1)
		} else {
			e.position[i].Add(1)
		}
	}

	e.stepIndex++
	if e.stepIndex >= blk.StepEventCount {
		e.Ring.DiscardCurrent()
		if !e.loadBlock() {
			e.running.Store(false)
			e.current = nil
			return core.SF_DONE
		}
		t.WakeTime += rateInterval(e.current, 0)
		return core.SF_RESCHEDULE
	}

	t.WakeTime += rateInterval(blk, e.stepIndex)
	return core.SF_RESCHEDULE
}

// Abort stops the executor, discards every block currently queued
// (claimed or not), and syncs the ring's position to wherever the
// executor actually left the machine. This is what an emergency stop
// calls.
func (e *Executor) Abort() {
	e.running.Store(false)
	for !e.Ring.IsEmpty() {
		e.Ring.DiscardCurrent()
	}
	e.current = nil
	e.Ring.SyncPositionFromStepper(e.Position())
}

// rateInterval returns the timer-tick interval for the step at index
// step, derived from the block's trapezoid by linear interpolation
// across its accelerate, cruise, and decelerate phases - the same
// trapezoid shape the planner computed, walked one step rate at a time.
func rateInterval(blk *planner.Block, step uint32) uint32 {
	rate := rateAt(blk, step)
	if rate < planner.MinStepRate {
		rate = planner.MinStepRate
	}
	return uint32(core.TimerFreq / rate)
}

func rateAt(blk *planner.Block, step uint32) float64 {
	switch {
	case step < blk.AccelerateUntil:
		frac := float64(step) / float64(blk.AccelerateUntil)
		return float64(blk.InitialRate) + frac*(float64(blk.NominalRate)-float64(blk.InitialRate))
	case step < blk.DecelerateAfter:
		return float64(blk.NominalRate)
	default:
		remaining := blk.StepEventCount - blk.DecelerateAfter
		if remaining == 0 {
			return float64(blk.FinalRate)
		}
		frac := float64(step-blk.DecelerateAfter) / float64(remaining)
		return float64(blk.NominalRate) + frac*(float64(blk.FinalRate)-float64(blk.NominalRate))
	}
}
