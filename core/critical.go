package core

import "sync"

// CriticalSection models the source firmware's "disable interrupts /
// restore interrupts" bracketing as a scoped acquisition of exclusive
// access to one group of fields, guaranteed to release on every exit path.
// On the single-CPU target this maps to disabling interrupts; here, where
// the producer, the stepper consumer, and the periodic timer tick each run
// on their own goroutine, it maps to a mutex, per the planner's concurrency
// design notes.
type CriticalSection struct {
	mu sync.Mutex
}

// Enter acquires the section and returns the matching release, so call
// sites read as `defer cs.Enter()()`, the same shape as the source's
// disable/restore pairing.
func (cs *CriticalSection) Enter() func() {
	cs.mu.Lock()
	return cs.mu.Unlock
}
