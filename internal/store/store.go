package store

import (
	"context"
	"errors"

	"classdesk/internal/domain"
)

var (
	// ErrCorrupt marks a persisted record that could not be decoded.
	// Callers fail open to the idle state instead of propagating it.
	ErrCorrupt = errors.New("corrupt pending-delete record")
)

// Event is one change notification from the shared store. Record is nil
// when the key was removed or the new value is unusable; consumers treat
// both the same way and reset to idle.
type Event struct {
	Record *domain.PendingDelete
}

// Store persists the single pending-delete record for one profile and
// notifies every watcher (including the writer itself) on change. Writes
// always replace the whole record; there is no field-level merge.
type Store interface {
	// Load returns the current record, or (nil, nil) when none is stored.
	// A stored value that fails to decode returns an error wrapping
	// ErrCorrupt.
	Load(ctx context.Context) (*domain.PendingDelete, error)

	// Save overwrites the stored record.
	Save(ctx context.Context, rec domain.PendingDelete) error

	// Clear removes the record. Clearing an absent record is a no-op, so
	// concurrent instances can race on it safely.
	Clear(ctx context.Context) error

	// Watch emits an Event for every subsequent change until ctx is
	// cancelled, after which the channel is closed.
	Watch(ctx context.Context) (<-chan Event, error)

	// Ping reports whether the backing service is reachable.
	Ping(ctx context.Context) error

	Close() error
}
