// Package reactor is the single-threaded event-loop substrate the bus
// master runs on: one file-descriptor-readiness callback per watched fd,
// and one-shot or periodic timers, all dispatched from one goroutine.
// The master engine is the reactor's only tenant (spec.md §2, §5).
package reactor

import "time"

// Timer is a handle to a one-shot or periodic alarm owned by a Reactor.
// Re-arming happens from inside the fired callback; the reactor never
// delivers a timer's callback reentrantly.
type Timer interface {
	// Arm schedules a single callback invocation after d. Re-arming an
	// already-armed timer replaces the pending deadline.
	Arm(d time.Duration)
	// ArmPeriodic schedules the callback every interval, starting after
	// the first interval elapses.
	ArmPeriodic(interval time.Duration)
	// Cancel disarms the timer. Canceling an unarmed timer is a no-op.
	Cancel()
}

// Reactor is the scheduling substrate: readiness callbacks on watched
// file descriptors, and timers. Every callback runs to completion before
// the next is dispatched; there is no concurrent access to engine state
// from within the reactor.
type Reactor interface {
	// NewTimer allocates a Timer bound to cb. The timer starts disarmed.
	NewTimer(cb func()) (Timer, error)
	// AddReader registers cb to run whenever fd becomes readable.
	AddReader(fd int, cb func()) error
	// RemoveReader unregisters fd.
	RemoveReader(fd int) error
	// Run blocks, dispatching readiness and timer callbacks, until Stop is
	// called, and returns the error passed to Stop. A callback reports a
	// fatal condition (such as TTY EOF) by calling Stop with a non-nil error.
	Run() error
	// Stop asks Run to return, with err as its return value (nil for a
	// clean shutdown).
	Stop(err error)
}
