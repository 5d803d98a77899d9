package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryStore struct {
	mu     sync.Mutex
	nextID int64
	byName map[string]Record
	closed bool
}

// NewMemory returns a process-local Store.
func NewMemory() Store {
	return &memoryStore{byName: map[string]Record{}}
}

func (m *memoryStore) FindByName(ctx context.Context, name string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Record{}, ErrDisabled
	}
	rec, ok := m.byName[name]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *memoryStore) Insert(ctx context.Context, name string, enabled bool) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Record{}, ErrDisabled
	}
	if _, ok := m.byName[name]; ok {
		return Record{}, ErrDuplicate
	}
	m.nextID++
	rec := Record{ID: m.nextID, Name: name, Enabled: enabled, CreationTime: time.Now().UTC()}
	m.byName[name] = rec
	return rec, nil
}

func (m *memoryStore) UpdateEnabled(ctx context.Context, id int64, enabled bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrDisabled
	}
	for name, rec := range m.byName {
		if rec.ID == id {
			rec.Enabled = enabled
			m.byName[name] = rec
			return nil
		}
	}
	return ErrNotFound
}

func (m *memoryStore) List(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	out := make([]Record, 0, len(m.byName))
	for _, rec := range m.byName {
		out = append(out, rec)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
