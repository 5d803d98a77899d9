package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("service record not found")
	ErrDuplicate = errors.New("service record already exists")
	ErrDisabled  = errors.New("storage disabled")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file at Path
//   - "postgres": PostgreSQL at DSN
//   - "memory" or "none": nothing survives a restart
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Record is the durable part of a worker.
type Record struct {
	ID           int64
	Name         string
	Enabled      bool
	CreationTime time.Time
}

// Store is the persistence contract of the service registry.
type Store interface {
	// FindByName returns ErrNotFound when no row matches.
	FindByName(ctx context.Context, name string) (Record, error)
	// Insert creates a row with a fresh id and the current time.
	// A concurrent or repeated insert of the same name returns ErrDuplicate.
	Insert(ctx context.Context, name string, enabled bool) (Record, error)
	// UpdateEnabled returns ErrNotFound when id does not exist.
	UpdateEnabled(ctx context.Context, id int64, enabled bool) error
	// List returns all rows ordered by id.
	List(ctx context.Context) ([]Record, error)
	Close() error
}
