package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/onnwee/live-signal/monitor"
	"github.com/onnwee/live-signal/telemetry"
)

// Pacing defaults keep bulk fan-out under the messaging platform's abuse
// detection.
const (
	DefaultBatchSize = 20
	DefaultPause     = time.Second
)

// SubscriberSource lists the chats watching an account, in delivery order.
type SubscriberSource interface {
	SubscribersOf(ctx context.Context, id string) ([]int64, error)
}

// Dispatcher delivers transitions asynchronously. Each transition gets its own
// goroutine; subscribers of one transition are served sequentially.
type Dispatcher struct {
	Subscribers SubscriberSource
	Transport   Transport
	Composer    Composer
	BatchSize   int
	Pause       time.Duration
	// NotifyOnline and NotifyOffline toggle each direction.
	NotifyOnline  bool
	NotifyOffline bool
	// Sleep waits between batches. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error

	wg conc.WaitGroup
}

// NewDispatcher returns a Dispatcher with both directions enabled and the
// default pacing.
func NewDispatcher(subs SubscriberSource, tr Transport, c Composer) *Dispatcher {
	return &Dispatcher{
		Subscribers:   subs,
		Transport:     tr,
		Composer:      c,
		BatchSize:     DefaultBatchSize,
		Pause:         DefaultPause,
		NotifyOnline:  true,
		NotifyOffline: true,
	}
}

// Report summarizes one delivery run.
type Report struct {
	Subscribers int
	Sent        int
	Failed      int
	Pauses      int
}

// Notify starts delivery in the background and returns immediately. The
// delivery outlives ctx cancellation so a shutdown does not cut a fan-out in
// half; Wait drains it.
func (d *Dispatcher) Notify(ctx context.Context, t monitor.Transition) {
	if t.WentLive() && !d.NotifyOnline || !t.WentLive() && !d.NotifyOffline {
		telemetry.LoggerWithCorr(ctx).Debug("notification disabled for direction",
			slog.String("id", t.Entity.ID), slog.String("direction", t.Direction()))
		return
	}
	ctx = context.WithoutCancel(ctx)
	d.wg.Go(func() { d.Deliver(ctx, t) })
}

// Wait blocks until every started delivery has finished.
func (d *Dispatcher) Wait() {
	if r := d.wg.WaitAndRecover(); r != nil {
		slog.Error("notification delivery panicked", slog.Any("panic", r.Value))
	}
}

func (d *Dispatcher) sleep(ctx context.Context, dur time.Duration) error {
	if d.Sleep != nil {
		return d.Sleep(ctx, dur)
	}
	return monitor.SleepContext(ctx, dur)
}

// Deliver sends the transition's message to every subscriber in store order.
// After every BatchSize-th send, when more subscribers remain, it pauses.
// A failed send is logged and skipped.
func (d *Dispatcher) Deliver(ctx context.Context, t monitor.Transition) Report {
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "notify"), slog.String("id", t.Entity.ID))
	subs, err := d.Subscribers.SubscribersOf(ctx, t.Entity.ID)
	if err != nil {
		log.Error("load subscribers failed", slog.Any("err", err))
		return Report{}
	}
	rep := Report{Subscribers: len(subs)}
	if len(subs) == 0 {
		return rep
	}
	text := d.Composer.Compose(t)
	opts := SendOptions{ParseMode: ParseModeMarkdown, DisablePreview: true}
	batch := d.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	log.Info("notifying subscribers", slog.String("direction", t.Direction()), slog.Int("subscribers", len(subs)))
	for i, chatID := range subs {
		if err := d.Transport.Send(ctx, chatID, text, opts); err != nil {
			rep.Failed++
			telemetry.RecordDelivery(false)
			log.Warn("delivery failed", slog.Int64("chat_id", chatID), slog.Any("err", err))
		} else {
			rep.Sent++
			telemetry.RecordDelivery(true)
		}
		n := i + 1
		if n%batch == 0 && n < len(subs) {
			rep.Pauses++
			telemetry.RecordPause()
			if err := d.sleep(ctx, d.Pause); err != nil {
				log.Warn("fan-out interrupted", slog.Int("delivered", n), slog.Any("err", err))
				return rep
			}
		}
	}
	return rep
}
