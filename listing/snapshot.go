package listing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/onnwee/live-signal/telemetry"
)

// DefaultPageSize is the number of rooms requested per listing page.
const DefaultPageSize = 96

// Snapshot is the merged listing of one cycle. It is partial when a page
// after the first failed.
type Snapshot struct {
	Entries   []Entry
	Total     int
	Pages     int
	Partial   bool
	FetchedAt time.Time

	byUser map[string]int
}

// NewSnapshot indexes entries by user id. The first entry for a user wins.
func NewSnapshot(entries []Entry, total int) *Snapshot {
	s := &Snapshot{Entries: entries, Total: total, byUser: make(map[string]int, len(entries))}
	for i, e := range entries {
		if _, ok := s.byUser[e.UserID]; !ok {
			s.byUser[e.UserID] = i
		}
	}
	return s
}

// Lookup returns the entry for an account id by exact match.
func (s *Snapshot) Lookup(userID string) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	i, ok := s.byUser[userID]
	if !ok {
		return Entry{}, false
	}
	return s.Entries[i], true
}

// Len returns the number of distinct rooms.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Entries)
}

// PageFetcher is satisfied by *Client.
type PageFetcher interface {
	FetchPage(ctx context.Context, offset, limit int) (*Page, error)
}

// Fetcher walks all listing pages of one cycle.
type Fetcher struct {
	Pages    PageFetcher
	PageSize int
	// Cache receives every merged snapshot; nil disables the side file.
	Cache *Cache
	Now   func() time.Time
}

func (f *Fetcher) pageSize() int {
	if f.PageSize > 0 {
		return f.PageSize
	}
	return DefaultPageSize
}

func (f *Fetcher) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

// FetchSnapshot retrieves page 1 and, when the reported total exceeds the page
// size, the following pages in order. A first-page failure returns an error
// wrapping ErrFirstPage. A later failure stops paging and yields a partial
// snapshot instead of an error.
func (f *Fetcher) FetchSnapshot(ctx context.Context) (*Snapshot, error) {
	ctx, span := telemetry.StartSpan(ctx, "listing", "listing.fetch_snapshot")
	defer span.End()
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "listing"))

	size := f.pageSize()
	start := time.Now()
	first, err := f.Pages.FetchPage(ctx, 0, size)
	if err != nil {
		kind := ClassifyError(err)
		telemetry.RecordPageFailure(kind.String())
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("%w: %s: %w", ErrFirstPage, kind, err)
	}
	total := first.Page.Total
	log.Info("listing page fetched", slog.Int("page", 1), slog.Int("total", total), slog.Int("rows", len(first.List)))

	seen := make(map[RoomCode]struct{}, len(first.List))
	merged := make([]Entry, 0, len(first.List))
	merge := func(rows []Entry) {
		for _, e := range rows {
			if e.Code != "" {
				if _, dup := seen[e.Code]; dup {
					continue
				}
				seen[e.Code] = struct{}{}
			}
			merged = append(merged, e)
		}
	}
	merge(first.List)

	pages, partial := 1, false
	for remaining := total - size; remaining > 0; remaining -= size {
		page := pages + 1
		offset := (page - 1) * size
		next, err := f.Pages.FetchPage(ctx, offset, min(size, remaining))
		// Only the first page must carry the success flag.
		if errors.Is(err, ErrRejected) && next != nil && next.List != nil {
			err = nil
		}
		if err != nil {
			kind := ClassifyError(err)
			telemetry.RecordPageFailure(kind.String())
			log.Warn("listing page failed; continuing with partial snapshot",
				slog.Int("page", page), slog.String("kind", kind.String()), slog.Any("err", err))
			partial = true
			break
		}
		merge(next.List)
		pages = page
		log.Info("listing page fetched", slog.Int("page", page), slog.Int("rows", len(next.List)))
	}

	snap := NewSnapshot(merged, total)
	snap.Pages = pages
	snap.Partial = partial
	snap.FetchedAt = f.now().UTC()
	telemetry.ObserveFetch(time.Since(start), snap.Len(), pages)

	if f.Cache != nil {
		if err := f.Cache.Write(snap); err != nil {
			log.Warn("snapshot cache write failed", slog.String("path", f.Cache.Path), slog.Any("err", err))
		}
	}
	telemetry.SetSpanSuccess(span)
	return snap, nil
}
