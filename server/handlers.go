package server

import (
	"context"
	"database/sql"
	"time"

	"github.com/onnwee/live-signal/listing"
	"github.com/onnwee/live-signal/monitor"
)

// StatsSource is satisfied by *monitor.Scheduler.
type StatsSource interface {
	Stats() monitor.Stats
}

// WatchStore is satisfied by *db.Store.
type WatchStore interface {
	AddWatch(ctx context.Context, chatID int64, id, displayName string) (bool, error)
	RemoveWatch(ctx context.Context, chatID int64, id string) (bool, error)
	WatchesOf(ctx context.Context, chatID int64) ([]string, error)
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	db      *sql.DB
	stats   StatsSource
	watches WatchStore
	cache   *listing.Cache
	refresh func()
	// staleAfter bounds how old the last cycle may be for readiness.
	staleAfter time.Duration
}

// NewHandlers wires handlers. refresh asks the monitor to reload its tracked
// list; it must not block.
func NewHandlers(db *sql.DB, stats StatsSource, watches WatchStore, cache *listing.Cache, refresh func(), staleAfter time.Duration) *Handlers {
	if refresh == nil {
		refresh = func() {}
	}
	return &Handlers{db: db, stats: stats, watches: watches, cache: cache, refresh: refresh, staleAfter: staleAfter}
}
