// Package runtime carries the process-wide mutable state the teacher would
// otherwise keep as package-level globals — main-loop flags and the shared
// job queue — in one explicitly constructed value passed by reference to
// subsystems, per spec §9's Design Notes ("avoid hidden singletons except at
// the thinnest entry-point shim").
package runtime

import (
	"log"
	"sync/atomic"

	"github.com/plextuner/plex-tuner/internal/jobqueue"
)

// Flag is one of the main-loop flags from spec §6.
type Flag int

const (
	FlagShutdown Flag = 1 << iota
	FlagReload
	FlagSighup
	FlagNoSleep
)

// forcedShutdownStrikes is how many consecutive shutdown signals force an
// immediate exit without teardown, on the assumption the main thread is
// stuck (spec §5, §7).
const forcedShutdownStrikes = 3

// OnSighup is invoked after a SIGHUP-triggered log reopen, if set.
type OnSighup func()

// Runtime is the explicit runtime value shared by every subsystem that
// would otherwise reach for a singleton.
type Runtime struct {
	Jobs *jobqueue.Queue

	flags          atomic.Int32
	shutdownStrike atomic.Int32

	OnSighup OnSighup
}

// New returns a ready-to-use Runtime with an empty job queue.
func New() *Runtime {
	return &Runtime{Jobs: &jobqueue.Queue{}}
}

// SetFlag raises f.
func (r *Runtime) SetFlag(f Flag) {
	for {
		old := r.flags.Load()
		nw := old | int32(f)
		if r.flags.CompareAndSwap(old, nw) {
			return
		}
	}
}

// ClearFlag lowers f.
func (r *Runtime) ClearFlag(f Flag) {
	for {
		old := r.flags.Load()
		nw := old &^ int32(f)
		if r.flags.CompareAndSwap(old, nw) {
			return
		}
	}
}

// HasFlag reports whether f is currently raised.
func (r *Runtime) HasFlag(f Flag) bool {
	return r.flags.Load()&int32(f) != 0
}

// RequestShutdown raises FlagShutdown and counts consecutive requests. The
// third consecutive request (spec §5: "receiving it three times in a row
// forces immediate termination") returns true, telling the caller to exit
// immediately without running teardown, since a repeated shutdown signal
// usually means the main thread driving teardown is itself stuck.
func (r *Runtime) RequestShutdown() (forceExit bool) {
	r.SetFlag(FlagShutdown)
	n := r.shutdownStrike.Add(1)
	if n >= forcedShutdownStrikes {
		log.Printf("runtime: shutdown requested %d times in a row, forcing immediate exit", n)
		return true
	}
	log.Printf("runtime: shutdown requested (%d/%d before forced exit)", n, forcedShutdownStrikes)
	return false
}

// ResetShutdownStrikes clears the consecutive-shutdown-request counter.
// Callers that handle a shutdown request without exiting (e.g. a graceful
// drain completed) should call this so a later, unrelated signal starts
// counting from zero again.
func (r *Runtime) ResetShutdownStrikes() {
	r.shutdownStrike.Store(0)
}

// Sighup raises FlagSighup, invokes OnSighup if present, and lowers the flag.
// Callers are expected to have already reopened their own log file before
// calling this (log-reopen itself is outside this package's scope, matching
// the teacher's own log.Printf-to-stderr-only convention).
func (r *Runtime) Sighup() {
	r.SetFlag(FlagSighup)
	if r.OnSighup != nil {
		r.OnSighup()
	}
	r.ClearFlag(FlagSighup)
}
