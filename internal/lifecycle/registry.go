package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"pricebot/internal/eventbus"
	"pricebot/internal/metrics"
	"pricebot/internal/storage"
	logx "pricebot/pkg/logx"
)

// Task is a worker's body. It runs once per registration, independently of
// the registry, and is expected to call Manager.Wait each cycle.
type Task func(ctx context.Context) error

// Runner starts named goroutines. *supervisor.Supervisor satisfies it.
type Runner interface {
	Go(name string, fn func(ctx context.Context) error)
}

// Services is the registry of workers.
type Services struct {
	store  storage.Store
	runner Runner
	bus    eventbus.Bus
	log    logx.Logger

	// createMu serializes CreateService so a name is checked and
	// registered atomically.
	createMu sync.Mutex

	mu       sync.RWMutex
	services []*Service
}

type Option func(*Services)

func WithLogger(log logx.Logger) Option { return func(s *Services) { s.log = log } }
func WithBus(b eventbus.Bus) Option     { return func(s *Services) { s.bus = b } }

func NewServices(store storage.Store, runner Runner, opts ...Option) *Services {
	s := &Services{store: store, runner: runner, log: logx.Nop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreateService registers a worker and starts task.
//
// An existing durable record wins over cfg.Paused. A fresh record is inserted
// with enabled = !cfg.Paused; if that insert fails nothing is registered and
// task never starts.
func (r *Services) CreateService(ctx context.Context, name string, cfg SuspensionConfig, task Task) (*Service, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("service name required")
	}
	r.createMu.Lock()
	defer r.createMu.Unlock()

	if _, err := r.GetService(name); err == nil {
		r.log.Warn("duplicate service", logx.String("service", name))
		return nil, fmt.Errorf("%w: %s", ErrDuplicateService, name)
	}

	rec, recovered, err := r.loadOrInsert(ctx, name, !cfg.Paused)
	if err != nil {
		r.log.Error("create service failed", logx.String("service", name), logx.Err(err))
		return nil, err
	}

	svc := newService(rec, cfg, r.store, r.bus, r.log)
	r.mu.Lock()
	r.services = append(r.services, svc)
	r.mu.Unlock()

	info := svc.Info()
	evType := eventbus.TypeServiceCreated
	if recovered {
		evType = eventbus.TypeServiceRecovered
	}
	r.log.Info("service registered",
		logx.String("service", name),
		logx.Int64("id", rec.ID),
		logx.Bool("enabled", rec.Enabled),
		logx.Bool("recovered", recovered),
		logx.String("state", info.State.String()),
	)
	metrics.RecordTransition(name, info.State.String(), info.State.String())
	if r.bus != nil {
		r.bus.Publish(eventbus.Event{Type: evType, Data: info})
	}

	if task != nil && r.runner != nil {
		r.runner.Go("worker."+name, task)
	}
	return svc, nil
}

func (r *Services) loadOrInsert(ctx context.Context, name string, enabled bool) (storage.Record, bool, error) {
	rec, err := r.store.FindByName(ctx, name)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return storage.Record{}, false, fmt.Errorf("lookup %s: %w", name, err)
	}
	rec, err = r.store.Insert(ctx, name, enabled)
	if err != nil {
		return storage.Record{}, false, fmt.Errorf("insert %s: %w", name, err)
	}
	return rec, false, nil
}

// GetService resolves a worker by name.
func (r *Services) GetService(name string) (*Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, svc := range r.services {
		svc.mu.Lock()
		match := svc.name == name
		svc.mu.Unlock()
		if match {
			return svc, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, name)
}

// SetEnabled toggles a worker by name and reports whether it changed.
func (r *Services) SetEnabled(ctx context.Context, name string, enabled bool) (bool, error) {
	svc, err := r.GetService(name)
	if err != nil {
		return false, err
	}
	return svc.SetEnabled(ctx, enabled), nil
}

// Snapshot returns all workers sorted by name.
func (r *Services) Snapshot() []ServiceInfo {
	r.mu.RLock()
	list := make([]*Service, len(r.services))
	copy(list, r.services)
	r.mu.RUnlock()

	out := make([]ServiceInfo, 0, len(list))
	for _, svc := range list {
		out = append(out, svc.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Services) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.services)
}
