package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pricebot/internal/runtime/supervisor"
	"pricebot/internal/storage"
)

// countingStore wraps a Store and counts or fails writes.
type countingStore struct {
	storage.Store
	inserts    atomic.Int32
	updates    atomic.Int32
	failInsert bool
	failUpdate bool
}

var errBoom = errors.New("boom")

func (c *countingStore) Insert(ctx context.Context, name string, enabled bool) (storage.Record, error) {
	c.inserts.Add(1)
	if c.failInsert {
		return storage.Record{}, errBoom
	}
	return c.Store.Insert(ctx, name, enabled)
}

func (c *countingStore) UpdateEnabled(ctx context.Context, id int64, enabled bool) error {
	c.updates.Add(1)
	if c.failUpdate {
		return errBoom
	}
	return c.Store.UpdateEnabled(ctx, id, enabled)
}

// recordingRunner records names instead of starting goroutines.
type recordingRunner struct {
	mu    sync.Mutex
	names []string
}

func (r *recordingRunner) Go(name string, fn func(ctx context.Context) error) {
	r.mu.Lock()
	r.names = append(r.names, name)
	r.mu.Unlock()
}

func (r *recordingRunner) started() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

func newTestRegistry(t *testing.T, st storage.Store) (*Services, *Manager) {
	t.Helper()
	sup := supervisor.New(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = sup.Stop(ctx)
	})
	reg := NewServices(st, sup)
	return reg, NewManager(reg, reg.log)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

// goWait runs m.Wait in the background and returns its result channel.
func goWait(ctx context.Context, m *Manager, name string) <-chan error {
	done := make(chan error, 1)
	go func() { done <- m.Wait(ctx, name) }()
	return done
}
