package lifecycle

import (
	"context"
	"sync"
	"time"

	"pricebot/internal/eventbus"
	"pricebot/internal/metrics"
	"pricebot/internal/storage"
	logx "pricebot/pkg/logx"
)

// Service is one named worker. It is shared between the registry, the
// worker's own Manager.Wait loop and any caller toggling it.
type Service struct {
	id        int64
	name      string
	createdAt time.Time

	mu        sync.Mutex
	enabled   bool
	runState  RunState
	nextState RunState
	susp      suspension

	// persistMu orders store writes so the last toggle always wins.
	persistMu sync.Mutex
	persisted bool

	store storage.Store
	bus   eventbus.Bus
	log   logx.Logger
}

// ServiceInfo is a point-in-time copy of a Service.
type ServiceInfo struct {
	ID        int64
	Name      string
	Enabled   bool
	State     RunState
	NextState RunState
	Pace      string
	CreatedAt time.Time
}

func newService(rec storage.Record, cfg SuspensionConfig, st storage.Store, bus eventbus.Bus, log logx.Logger) *Service {
	cfg.Paused = !rec.Enabled
	state := initialState(rec.Enabled)
	return &Service{
		id:        rec.ID,
		name:      rec.Name,
		createdAt: rec.CreationTime,
		enabled:   rec.Enabled,
		runState:  state,
		nextState: state,
		susp:      newSuspension(cfg),
		persisted: rec.Enabled,
		store:     st,
		bus:       bus,
		log:       log.With(logx.String("service", rec.Name)),
	}
}

func (s *Service) ID() int64    { return s.id }
func (s *Service) Name() string { return s.name }

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *Service) State() RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runState
}

func (s *Service) Info() ServiceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := ServiceInfo{
		ID:        s.id,
		Name:      s.name,
		Enabled:   s.enabled,
		State:     s.runState,
		NextState: s.nextState,
		CreatedAt: s.createdAt,
	}
	if s.susp.pace != nil {
		info.Pace = s.susp.pace.String()
	}
	return info
}

// SetEnabled enables or disables the worker. It reports whether anything
// changed. The in-memory effect is applied before the store write and is
// kept even if the write fails.
func (s *Service) SetEnabled(ctx context.Context, enabled bool) bool {
	s.mu.Lock()
	if s.enabled == enabled {
		s.mu.Unlock()
		return false
	}
	s.enabled = enabled
	s.susp.paused = !enabled
	s.susp.wake.broadcast()
	aborted := false
	if !enabled && s.runState == Sleeping {
		aborted = s.susp.timer.abort()
	}
	s.mu.Unlock()

	s.log.Info("service toggled", logx.Bool("enabled", enabled), logx.Bool("sleep_aborted", aborted))
	metrics.IncToggle(s.name, enabled)
	if aborted {
		metrics.IncSleepAborted(s.name)
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeServiceToggled, Data: eventbus.Toggle{Service: s.name, Enabled: enabled}})
	}

	s.persist(ctx)
	return true
}

// persist writes the current enabled flag. Concurrent toggles serialize here
// and each writes the latest in-memory value, skipping redundant writes.
func (s *Service) persist(ctx context.Context) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	want := s.Enabled()
	if want == s.persisted {
		return
	}
	if err := s.store.UpdateEnabled(ctx, s.id, want); err != nil {
		metrics.IncPersistFailure(s.name)
		s.log.Error("persist enabled flag failed; in-memory state kept", logx.Bool("enabled", want), logx.Err(err))
		return
	}
	s.persisted = want
}

// advanceLocked runs one state-machine step and arms the matching wait.
// It returns the channel to block on, or nil when the worker may proceed.
func (s *Service) advanceLocked() (prev, next RunState, wait <-chan struct{}) {
	prev = s.runState
	next = Next(prev, s.susp.paused, s.susp.pace != nil)
	s.runState = next
	switch next {
	case Paused:
		s.nextState = Running
		wait = s.susp.wake.wait()
	case Running:
		s.nextState = Next(Running, s.susp.paused, s.susp.pace != nil)
	case Sleeping:
		s.nextState = Running
		wait = s.armSleepLocked(s.susp.pace.Delay(time.Now())).done
	}
	return prev, next, wait
}

func (s *Service) armSleepLocked(d time.Duration) *sleepTimer {
	st := &sleepTimer{done: make(chan struct{})}
	st.t = time.AfterFunc(d, func() {
		s.mu.Lock()
		if s.susp.timer == st {
			s.susp.wake.broadcast()
		}
		s.mu.Unlock()
		st.finish()
	})
	s.susp.timer = st
	return st
}

// clearSleep drops the outstanding sleep, aborting it if it is still armed.
func (s *Service) clearSleep() {
	s.mu.Lock()
	if s.susp.timer != nil {
		s.susp.timer.abort()
		s.susp.timer = nil
	}
	s.mu.Unlock()
}
