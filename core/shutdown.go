package core

import "sync/atomic"

var (
	shutdownFlag  atomic.Bool
	shutdownHooks []func(reason string)
)

// RegisterShutdownHook registers a callback invoked once, in registration
// order, the first time the firmware enters the latched shutdown state.
// This is how the planner and thermal packages hear about a shutdown
// without core importing either of them.
func RegisterShutdownHook(hook func(reason string)) {
	shutdownHooks = append(shutdownHooks, hook)
}

// TryShutdown triggers a latched firmware shutdown with a reason message.
// Safety mechanisms (ADC out of range, thermal runaway, timer-in-past) call
// this; it is a no-op on every call after the first so hooks never run
// twice and a runaway can't be "un-latched" by a later, unrelated fault.
func TryShutdown(reason string) {
	if shutdownFlag.Swap(true) {
		return
	}
	DebugPrintln("[SHUTDOWN] " + reason)
	RecordTiming(EvtShutdown, 0, GetTime(), 0, 0)
	for _, hook := range shutdownHooks {
		hook(reason)
	}
}

// IsShutdown reports whether the firmware is latched into shutdown.
func IsShutdown() bool {
	return shutdownFlag.Load()
}

// ResetShutdown clears the latch. Only a fresh boot (or a test harness
// starting a new scenario) should call this.
func ResetShutdown() {
	shutdownFlag.Store(false)
}
