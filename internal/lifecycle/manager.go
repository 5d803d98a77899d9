package lifecycle

import (
	"context"

	"pricebot/internal/eventbus"
	"pricebot/internal/metrics"
	logx "pricebot/pkg/logx"
)

// Manager drives the state machine of registered workers.
type Manager struct {
	services *Services
	log      logx.Logger
}

func NewManager(services *Services, log logx.Logger) *Manager {
	return &Manager{services: services, log: log}
}

// Wait advances the named worker's state machine until it reaches Running.
//
// It blocks while the worker is paused or sleeping. It returns
// ErrServiceNotFound if the worker is not registered, and ctx.Err() when ctx
// is done. An aborted sleep is not an error; the state is simply recomputed.
func (m *Manager) Wait(ctx context.Context, name string) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		svc, err := m.services.GetService(name)
		if err != nil {
			return err
		}

		svc.mu.Lock()
		prev, next, wait := svc.advanceLocked()
		svc.mu.Unlock()

		if prev != next {
			m.noteTransition(svc, prev, next)
		}
		if wait == nil {
			return nil
		}

		select {
		case <-wait:
		case <-ctx.Done():
		}
		if next == Sleeping {
			svc.clearSleep()
		}
	}
}

func (m *Manager) noteTransition(svc *Service, prev, next RunState) {
	m.log.Debug("service state", logx.String("service", svc.name), logx.String("from", prev.String()), logx.String("to", next.String()))
	metrics.RecordTransition(svc.name, prev.String(), next.String())
	if svc.bus != nil {
		svc.bus.Publish(eventbus.Event{
			Type: eventbus.TypeServiceState,
			Data: eventbus.StateChange{Service: svc.name, From: prev.String(), To: next.String()},
		})
	}
}
