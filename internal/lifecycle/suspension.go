package lifecycle

import (
	"sync"
	"time"
)

// SuspensionConfig is the caller-supplied part of a worker's suspension
// controls. Paused is the default for a worker that has no durable record yet.
type SuspensionConfig struct {
	Paused bool
	Pace   Pace
}

// wakeSignal wakes every goroutine waiting on the channel captured before a
// broadcast. It is guarded by the owning Service's mutex: a waiter captures
// the channel under the lock, so a broadcast issued after the capture always
// reaches it.
type wakeSignal struct {
	ch chan struct{}
}

func newWakeSignal() wakeSignal { return wakeSignal{ch: make(chan struct{})} }

func (w *wakeSignal) wait() <-chan struct{} { return w.ch }

func (w *wakeSignal) broadcast() {
	close(w.ch)
	w.ch = make(chan struct{})
}

// sleepTimer is one outstanding sleep. done is closed exactly once, either on
// natural expiry or when the sleep is aborted.
type sleepTimer struct {
	t       *time.Timer
	done    chan struct{}
	once    sync.Once
	aborted bool // guarded by the Service mutex
}

func (st *sleepTimer) finish() { st.once.Do(func() { close(st.done) }) }

// abort stops the timer. It is a no-op when the timer already fired or was
// already aborted, and reports whether it cut the sleep short.
func (st *sleepTimer) abort() bool {
	if st == nil || st.aborted {
		return false
	}
	if !st.t.Stop() {
		return false
	}
	st.aborted = true
	st.finish()
	return true
}

// suspension holds the per-worker pause flag, pace, outstanding sleep and
// wake signal. All fields are guarded by the owning Service's mutex.
type suspension struct {
	paused bool
	pace   Pace
	timer  *sleepTimer
	wake   wakeSignal
}

func newSuspension(cfg SuspensionConfig) suspension {
	return suspension{paused: cfg.Paused, pace: cfg.Pace, wake: newWakeSignal()}
}
