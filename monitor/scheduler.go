package monitor

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"

	"github.com/onnwee/live-signal/listing"
	"github.com/onnwee/live-signal/telemetry"
)

// Defaults mirror the reference deployment.
const (
	DefaultGroupSize     = 3
	DefaultCheckInterval = 2 * time.Second
	DefaultIdleInterval  = 60 * time.Second
	DefaultIdleThreshold = 30
)

// SnapshotSource is satisfied by *listing.Fetcher.
type SnapshotSource interface {
	FetchSnapshot(ctx context.Context) (*listing.Snapshot, error)
}

// Options tunes the cycle loop.
type Options struct {
	// GroupSize bounds how many accounts are reconciled at once.
	GroupSize int
	// CheckInterval is the pause each worker takes after one account.
	CheckInterval time.Duration
	// IdleInterval is slept between cycles when fewer than IdleThreshold
	// accounts are tracked, and after a skipped cycle.
	IdleInterval  time.Duration
	IdleThreshold int
}

func (o *Options) defaults() {
	if o.GroupSize <= 0 {
		o.GroupSize = DefaultGroupSize
	}
	if o.CheckInterval < 0 {
		o.CheckInterval = 0
	}
	if o.IdleInterval < 0 {
		o.IdleInterval = 0
	}
	if o.IdleThreshold < 0 {
		o.IdleThreshold = 0
	}
}

// Stats describes the last finished cycle.
type Stats struct {
	Cycle     int64     `json:"cycle"`
	At        time.Time `json:"at"`
	Duration  string    `json:"duration"`
	Tracked   int       `json:"tracked"`
	Checked   int       `json:"checked"`
	Online    int       `json:"online"`
	Offline   int       `json:"offline"`
	Failed    int       `json:"failed"`
	Rooms     int       `json:"rooms"`
	Partial   bool      `json:"partial"`
	Skipped   bool      `json:"skipped"`
	Error     string    `json:"error,omitempty"`
	OnlineIDs []string  `json:"online_ids"`
	// Restored marks stats read back from the store after a restart.
	Restored bool `json:"restored,omitempty"`
}

// Scheduler drives fetch -> reconcile cycles until its context ends.
type Scheduler struct {
	Source     SnapshotSource
	Registry   *Registry
	Reconciler *Reconciler
	Opts       Options
	// Sleep waits for d or until ctx ends. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnCycle, when set, receives every finished cycle's stats.
	OnCycle func(Stats)

	loaded bool
	cycles int64
	mu     sync.RWMutex
	last   Stats
}

// NewScheduler wires a scheduler with defaults applied.
func NewScheduler(src SnapshotSource, reg *Registry, rec *Reconciler, opts Options) *Scheduler {
	opts.defaults()
	return &Scheduler{Source: src, Registry: reg, Reconciler: rec, Opts: opts}
}

// Stats returns a copy of the last cycle's summary.
func (s *Scheduler) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.last
	st.OnlineIDs = append([]string(nil), s.last.OnlineIDs...)
	return st
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) error {
	if s.Sleep != nil {
		return s.Sleep(ctx, d)
	}
	return SleepContext(ctx, d)
}

// SleepContext waits for d unless ctx ends first.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run loops over cycles until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.Opts.defaults()
	slog.Info("monitor scheduler starting",
		slog.Int("group_size", s.Opts.GroupSize),
		slog.Duration("check_interval", s.Opts.CheckInterval),
		slog.Duration("idle_interval", s.Opts.IdleInterval),
		slog.Int("idle_threshold", s.Opts.IdleThreshold))
	for {
		if ctx.Err() != nil {
			slog.Info("monitor scheduler stopped")
			return
		}
		st := s.RunCycle(ctx)
		if st.Skipped || st.Tracked < s.Opts.IdleThreshold {
			slog.Debug("monitor idle", slog.Duration("wait", s.Opts.IdleInterval), slog.Int("tracked", st.Tracked))
			if err := s.sleep(ctx, s.Opts.IdleInterval); err != nil {
				slog.Info("monitor scheduler stopped")
				return
			}
		}
	}
}

// RunCycle performs one fetch and one sweep over the tracked accounts.
func (s *Scheduler) RunCycle(ctx context.Context) Stats {
	s.Opts.defaults()
	s.cycles++
	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	ctx, span := telemetry.StartSpan(ctx, "monitor", "monitor.cycle")
	defer span.End()
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "monitor"))
	start := time.Now()

	if s.Registry.Pending() || !s.loaded {
		n, err := s.Registry.Reload(ctx)
		if err != nil {
			s.loaded = false
			log.Warn("tracked list reload failed; keeping previous list", slog.Any("err", err))
		} else {
			s.loaded = true
			log.Info("tracked list reloaded", slog.Int("count", n))
		}
	}
	entities := s.Registry.Current()
	st := Stats{Cycle: s.cycles, Tracked: len(entities)}

	snap, err := s.Source.FetchSnapshot(ctx)
	if err != nil {
		st.Skipped = true
		st.Error = err.Error()
		telemetry.RecordError(span, err)
		log.Error("listing fetch failed; skipping cycle", slog.Any("err", err))
		return s.finish(st, start)
	}
	st.Rooms = snap.Len()
	st.Partial = snap.Partial
	if snap.Partial {
		log.Warn("reconciling against partial snapshot", slog.Int("rooms", snap.Len()), slog.Int("total", snap.Total))
	}

	var checked, failed atomic.Int64
	for i := 0; i < len(entities); i += s.Opts.GroupSize {
		group := entities[i:min(i+s.Opts.GroupSize, len(entities))]
		var wg conc.WaitGroup
		for _, e := range group {
			wg.Go(func() {
				if !s.check(ctx, log, e, snap) {
					failed.Add(1)
				}
				checked.Add(1)
				_ = s.sleep(ctx, s.Opts.CheckInterval)
			})
		}
		if r := wg.WaitAndRecover(); r != nil {
			log.Error("reconcile worker panicked", slog.Any("panic", r.Value))
		}
		if ctx.Err() != nil {
			break
		}
	}

	for _, e := range entities {
		if e.Live.IsOnline() {
			st.Online++
			st.OnlineIDs = append(st.OnlineIDs, e.ID)
		}
	}
	sort.Strings(st.OnlineIDs)
	st.Checked = int(checked.Load())
	st.Failed = int(failed.Load())
	st.Offline = st.Tracked - st.Online
	span.SetAttributes(telemetry.CycleAttrs(st.Tracked, st.Rooms, st.Partial)...)
	telemetry.SetSpanSuccess(span)
	st = s.finish(st, start)
	log.Info("cycle complete",
		slog.Int("checked", st.Checked), slog.Int("online", st.Online), slog.Int("offline", st.Offline),
		slog.Int("failed", st.Failed), slog.Int("rooms", st.Rooms), slog.Bool("partial", st.Partial))
	return st
}

// check reconciles one account and reports success.
func (s *Scheduler) check(ctx context.Context, log *slog.Logger, e *Entity, snap *listing.Snapshot) bool {
	changes, err := s.Reconciler.Reconcile(ctx, e, snap)
	if err != nil {
		telemetry.RecordStoreError()
		log.Error("reconcile failed", slog.String("id", e.ID), slog.Any("err", err))
		return false
	}
	log.Info("checked", slog.String("id", e.ID), slog.String("status", e.Live.State.String()), slog.Int("changes", len(changes)))
	return true
}

func (s *Scheduler) finish(st Stats, start time.Time) Stats {
	d := time.Since(start)
	st.At = time.Now().UTC()
	st.Duration = d.Round(time.Millisecond).String()
	telemetry.RecordCycle(telemetry.CycleOutcome{
		Tracked: st.Tracked, Online: st.Online, Skipped: st.Skipped, Degraded: st.Partial,
		Duration: d, At: st.At,
	})
	s.mu.Lock()
	s.last = st
	s.mu.Unlock()
	if s.OnCycle != nil {
		s.OnCycle(st)
	}
	return st
}
