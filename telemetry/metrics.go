// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	CyclesTotal         prometheus.Counter
	CyclesSkipped       prometheus.Counter
	CyclesDegraded      prometheus.Counter
	PageFailures        *prometheus.CounterVec
	Transitions         *prometheus.CounterVec
	StoreErrors         prometheus.Counter
	NotificationsSent   prometheus.Counter
	NotificationsFailed prometheus.Counter
	NotificationsPaused prometheus.Counter

	// Histograms (seconds)
	CycleDuration prometheus.Observer
	FetchDuration prometheus.Observer

	// Gauges
	TrackedEntities prometheus.Gauge
	SnapshotRooms   prometheus.Gauge
	SnapshotPages   prometheus.Gauge
	OnlineEntities  prometheus.Gauge
	LastCycleUnix   prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		CyclesTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "live_cycles_total", Help: "Number of monitor cycles started"})
		CyclesSkipped = promauto.NewCounter(prometheus.CounterOpts{Name: "live_cycles_skipped_total", Help: "Cycles skipped because the first listing page failed"})
		CyclesDegraded = promauto.NewCounter(prometheus.CounterOpts{Name: "live_cycles_degraded_total", Help: "Cycles reconciled against a partial snapshot"})
		PageFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "live_listing_page_failures_total", Help: "Listing page failures by kind"}, []string{"kind"})
		Transitions = promauto.NewCounterVec(prometheus.CounterOpts{Name: "live_transitions_total", Help: "Live status transitions by direction"}, []string{"direction"})
		StoreErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "live_store_errors_total", Help: "Store failures while reconciling an entity"})
		NotificationsSent = promauto.NewCounter(prometheus.CounterOpts{Name: "live_notifications_sent_total", Help: "Messages delivered to subscribers"})
		NotificationsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "live_notifications_failed_total", Help: "Messages that failed to deliver"})
		NotificationsPaused = promauto.NewCounter(prometheus.CounterOpts{Name: "live_notification_pauses_total", Help: "Pacing pauses taken during fan-out"})
		CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "live_cycle_duration_seconds", Help: "Full cycle duration seconds", Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600}})
		FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "live_listing_fetch_duration_seconds", Help: "Snapshot fetch duration seconds", Buckets: prometheus.DefBuckets})
		TrackedEntities = promauto.NewGauge(prometheus.GaugeOpts{Name: "live_tracked_entities", Help: "Tracked accounts in the current cycle"})
		SnapshotRooms = promauto.NewGauge(prometheus.GaugeOpts{Name: "live_snapshot_rooms", Help: "Distinct rooms in the last snapshot"})
		SnapshotPages = promauto.NewGauge(prometheus.GaugeOpts{Name: "live_snapshot_pages", Help: "Pages merged into the last snapshot"})
		OnlineEntities = promauto.NewGauge(prometheus.GaugeOpts{Name: "live_online_entities", Help: "Tracked accounts online after the last cycle"})
		LastCycleUnix = promauto.NewGauge(prometheus.GaugeOpts{Name: "live_last_cycle_timestamp_seconds", Help: "Unix time the last cycle completed"})
	})
}

// RecordPageFailure counts a failed listing page.
func RecordPageFailure(kind string) {
	if PageFailures != nil {
		PageFailures.WithLabelValues(kind).Inc()
	}
}

// ObserveFetch records a finished snapshot fetch.
func ObserveFetch(d time.Duration, rooms, pages int) {
	if FetchDuration != nil {
		FetchDuration.Observe(d.Seconds())
	}
	if SnapshotRooms != nil {
		SnapshotRooms.Set(float64(rooms))
	}
	if SnapshotPages != nil {
		SnapshotPages.Set(float64(pages))
	}
}

// RecordTransition counts an online/offline flip.
func RecordTransition(direction string) {
	if Transitions != nil {
		Transitions.WithLabelValues(direction).Inc()
	}
}

// RecordStoreError counts a per-entity store failure.
func RecordStoreError() {
	if StoreErrors != nil {
		StoreErrors.Inc()
	}
}

// RecordDelivery counts one subscriber delivery outcome.
func RecordDelivery(ok bool) {
	if ok {
		if NotificationsSent != nil {
			NotificationsSent.Inc()
		}
		return
	}
	if NotificationsFailed != nil {
		NotificationsFailed.Inc()
	}
}

// RecordPause counts a fan-out pacing pause.
func RecordPause() {
	if NotificationsPaused != nil {
		NotificationsPaused.Inc()
	}
}

// CycleOutcome summarizes one cycle for metrics.
type CycleOutcome struct {
	Tracked  int
	Online   int
	Skipped  bool
	Degraded bool
	Duration time.Duration
	At       time.Time
}

// RecordCycle updates cycle counters and gauges.
func RecordCycle(o CycleOutcome) {
	if CyclesTotal == nil {
		return
	}
	CyclesTotal.Inc()
	if o.Skipped {
		CyclesSkipped.Inc()
	}
	if o.Degraded {
		CyclesDegraded.Inc()
	}
	TrackedEntities.Set(float64(o.Tracked))
	if !o.Skipped {
		OnlineEntities.Set(float64(o.Online))
	}
	CycleDuration.Observe(o.Duration.Seconds())
	LastCycleUnix.Set(float64(o.At.Unix()))
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
