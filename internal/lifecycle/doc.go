// Package lifecycle hosts named background workers and gates each worker's
// cycles through a Paused/Running/Sleeping state machine.
//
// A worker calls Manager.Wait once per cycle. Wait returns when the worker
// may proceed, blocking while the worker is paused or sleeping between runs.
// Enabling or disabling a worker takes effect immediately: a pause aborts an
// outstanding sleep, and a resume wakes a paused waiter.
package lifecycle
