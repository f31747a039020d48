package store

import (
	"context"

	"github.com/pkg/errors"
)

const (
	signalsPrefix = "orderSignals/"
	signalYes     = "yes"
)

// SignalPath returns the ready-signal path for an order.
func SignalPath(id string) string { return signalsPrefix + id }

// SignalsPrefix is the prefix watched by push-based ready watchers.
func SignalsPrefix() string { return signalsPrefix }

// SignalRepository stores the durable "order is ready" flag.
type SignalRepository struct {
	store Store
}

// NewSignalRepository creates a repository over s.
func NewSignalRepository(s Store) *SignalRepository {
	return &SignalRepository{store: s}
}

// Raise writes the flag. Raising twice before a Consume still yields one
// notification.
func (r *SignalRepository) Raise(ctx context.Context, id string) error {
	return r.store.Set(ctx, SignalPath(id), signalYes)
}

// Pending reports whether the flag is set without clearing it.
func (r *SignalRepository) Pending(ctx context.Context, id string) (bool, error) {
	var v string
	if err := r.store.Get(ctx, SignalPath(id), &v); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return v == signalYes, nil
}

// Consume reads and clears the flag in one store operation. It returns true
// only for the caller that actually removed a set flag.
func (r *SignalRepository) Consume(ctx context.Context, id string) (bool, error) {
	var v string
	if err := r.store.Take(ctx, SignalPath(id), &v); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return v == signalYes, nil
}

// Clear drops the flag, used when an order is deleted.
func (r *SignalRepository) Clear(ctx context.Context, id string) error {
	return r.store.Remove(ctx, SignalPath(id))
}
