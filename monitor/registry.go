package monitor

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Registry holds the tracked account list. Reload swaps in a fresh list;
// readers take one list per cycle with Current. Signal requests a reload from
// outside the cycle loop without blocking.
type Registry struct {
	store   Store
	list    atomic.Pointer[[]*Entity]
	changed chan struct{}
}

// NewRegistry returns an empty registry backed by store.
func NewRegistry(store Store) *Registry {
	r := &Registry{store: store, changed: make(chan struct{}, 1)}
	empty := []*Entity{}
	r.list.Store(&empty)
	return r
}

// Signal marks the list stale. Repeated signals before the next drain collapse.
func (r *Registry) Signal() {
	select {
	case r.changed <- struct{}{}:
	default:
	}
}

// Pending drains the change signal and reports whether one was queued.
func (r *Registry) Pending() bool {
	select {
	case <-r.changed:
		return true
	default:
		return false
	}
}

// Reload reads the tracked list from the store and swaps it in.
func (r *Registry) Reload(ctx context.Context) (int, error) {
	rows, err := r.store.ListTracked(ctx)
	if err != nil {
		return 0, fmt.Errorf("list tracked: %w", err)
	}
	list := make([]*Entity, len(rows))
	for i := range rows {
		e := rows[i]
		list[i] = &e
	}
	r.list.Store(&list)
	return len(list), nil
}

// Current returns the list in effect. Entities are mutated in place by the
// Reconciler; the slice itself is never modified after publication.
func (r *Registry) Current() []*Entity {
	return *r.list.Load()
}

// Len returns the number of tracked accounts.
func (r *Registry) Len() int { return len(r.Current()) }
