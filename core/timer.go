package core

import "sync/atomic"

// TimerFreq is the tick rate of the shared system clock that both the
// stepper pulse timer and the ADC/soft-PWM timer are derived from. It plays
// the role of F_CPU in the source firmware's fixed-point formulas.
const TimerFreq = 12000000 // 12MHz

var systemTicks atomic.Uint32

// GetTime returns the current system time in timer ticks.
func GetTime() uint32 {
	return systemTicks.Load()
}

// SetTime sets the current system time. Exists for deterministic tests and
// for a host-side clock sync after reconnecting to a board; production
// firmware never calls it once the hardware timer is running.
func SetTime(ticks uint32) {
	systemTicks.Store(ticks)
}

// AdvanceTime moves the clock forward by delta ticks and drains any timers
// that became due. This is what a test harness or a simulated tick source
// calls in place of a real timer interrupt.
func AdvanceTime(delta uint32) {
	systemTicks.Add(delta)
	TimerDispatch()
}

// TimerFromUS converts microseconds to timer ticks.
func TimerFromUS(us uint32) uint32 {
	return uint32(uint64(us) * TimerFreq / 1000000)
}

// TimerToUS converts timer ticks to microseconds.
func TimerToUS(ticks uint32) uint32 {
	return uint32(uint64(ticks) * 1000000 / TimerFreq)
}

// UsToTicks is an alias kept for call sites that read more naturally with
// the pulse-width use case (step pin hold time, PWM quantum) in mind.
func UsToTicks(us uint32) uint32 {
	return TimerFromUS(us)
}
