package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/live-signal/listing"
	"github.com/onnwee/live-signal/monitor"
	"github.com/onnwee/live-signal/testutil"
)

type staticSubs struct {
	ids []int64
	err error
}

func (s staticSubs) SubscribersOf(context.Context, string) ([]int64, error) { return s.ids, s.err }

type sentMsg struct {
	chatID int64
	text   string
	opts   SendOptions
}

// fakeTransport records sends and fails chats listed in fail.
type fakeTransport struct {
	mu   sync.Mutex
	sent []sentMsg
	fail map[int64]bool
}

func (f *fakeTransport) Send(_ context.Context, chatID int64, text string, opts SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[chatID] {
		return errors.New("blocked by user")
	}
	f.sent = append(f.sent, sentMsg{chatID, text, opts})
	return nil
}

func (f *fakeTransport) chats() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, len(f.sent))
	for i, m := range f.sent {
		out[i] = m.chatID
	}
	return out
}

func chatIDs(n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(1000 + i)
	}
	return out
}

func liveTransition(id string) monitor.Transition {
	return monitor.Transition{
		Entity: monitor.Entity{ID: id, DisplayName: id, Nickname: "nick"},
		From:   monitor.Offline(),
		To:     monitor.Online("2024-01-01 10:00:00"),
	}
}

func offlineTransition(id string) monitor.Transition {
	return monitor.Transition{
		Entity: monitor.Entity{ID: id},
		From:   monitor.Online("2024-01-01 10:00:00"),
		To:     monitor.Offline(),
	}
}

func newTestDispatcher(subs SubscriberSource, tr Transport) (*Dispatcher, *[]time.Duration) {
	d := NewDispatcher(subs, tr, DefaultComposer())
	var pauses []time.Duration
	d.Sleep = func(_ context.Context, dur time.Duration) error {
		pauses = append(pauses, dur)
		return nil
	}
	return d, &pauses
}

func TestDeliverPacesInBatches(t *testing.T) {
	tests := []struct {
		subs, pauses int
	}{
		{0, 0},
		{1, 0},
		{20, 0},
		{21, 1},
		{40, 1},
		{45, 2},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d subscribers", tt.subs), func(t *testing.T) {
			tr := &fakeTransport{}
			d, pauses := newTestDispatcher(staticSubs{ids: chatIDs(tt.subs)}, tr)

			rep := d.Deliver(context.Background(), liveTransition("A123"))
			assert.Equal(t, tt.subs, rep.Sent)
			assert.Equal(t, tt.pauses, rep.Pauses)
			assert.Len(t, *pauses, tt.pauses)
			for _, p := range *pauses {
				assert.Equal(t, time.Second, p)
			}
			if tt.subs > 0 {
				assert.Equal(t, chatIDs(tt.subs), tr.chats(), "store order preserved")
			}
		})
	}
}

func TestDeliverContinuesPastFailures(t *testing.T) {
	tr := &fakeTransport{fail: map[int64]bool{1001: true}}
	d, _ := newTestDispatcher(staticSubs{ids: chatIDs(3)}, tr)

	rep := d.Deliver(context.Background(), liveTransition("A123"))
	assert.Equal(t, Report{Subscribers: 3, Sent: 2, Failed: 1}, rep)
	assert.Equal(t, []int64{1000, 1002}, tr.chats())
}

func TestDeliverSendsMarkdownWithoutPreview(t *testing.T) {
	tr := &fakeTransport{}
	d, _ := newTestDispatcher(staticSubs{ids: chatIDs(1)}, tr)
	d.Deliver(context.Background(), offlineTransition("B456"))

	require.Len(t, tr.sent, 1)
	assert.Equal(t, SendOptions{ParseMode: ParseModeMarkdown, DisablePreview: true}, tr.sent[0].opts)
	assert.Contains(t, tr.sent[0].text, "went offline")
}

func TestDeliverSubscriberLoadError(t *testing.T) {
	tr := &fakeTransport{}
	d, _ := newTestDispatcher(staticSubs{err: errors.New("db down")}, tr)
	assert.Equal(t, Report{}, d.Deliver(context.Background(), liveTransition("A123")))
	assert.Empty(t, tr.chats())
}

func TestDeliverStopsWhenPauseInterrupted(t *testing.T) {
	tr := &fakeTransport{}
	d := NewDispatcher(staticSubs{ids: chatIDs(30)}, tr, DefaultComposer())
	d.Sleep = func(context.Context, time.Duration) error { return context.Canceled }

	rep := d.Deliver(context.Background(), liveTransition("A123"))
	assert.Equal(t, 20, rep.Sent)
	assert.Equal(t, 1, rep.Pauses)
}

func TestNotifyRunsInBackgroundAndSurvivesCancel(t *testing.T) {
	tr := &fakeTransport{}
	d, _ := newTestDispatcher(staticSubs{ids: chatIDs(2)}, tr)
	ctx, cancel := context.WithCancel(context.Background())

	d.Notify(ctx, liveTransition("A123"))
	cancel()
	d.Wait()
	assert.Equal(t, []int64{1000, 1001}, tr.chats())
}

func TestNotifyDirectionToggles(t *testing.T) {
	tr := &fakeTransport{}
	d, _ := newTestDispatcher(staticSubs{ids: chatIDs(1)}, tr)
	d.NotifyOffline = false

	d.Notify(context.Background(), offlineTransition("B456"))
	d.Wait()
	assert.Empty(t, tr.chats())

	d.NotifyOnline = false
	d.NotifyOffline = true
	d.Notify(context.Background(), liveTransition("A123"))
	d.Notify(context.Background(), offlineTransition("B456"))
	d.Wait()
	assert.Len(t, tr.chats(), 1)
	assert.Contains(t, tr.sent[0].text, "went offline")
}

func TestTelegramTransport(t *testing.T) {
	srv := testutil.NewMockTelegramServer(t, "123:abc")
	srv.FailChat(42, "Forbidden: bot was blocked by the user")

	tr, err := NewTelegramTransport("123:abc", srv.Endpoint(), srv.Client())
	require.NoError(t, err)
	assert.Equal(t, "live_signal_bot", tr.Username())

	opts := SendOptions{ParseMode: ParseModeMarkdown, DisablePreview: true}
	require.NoError(t, tr.Send(context.Background(), 7, "`A123` is live!", opts))
	err = tr.Send(context.Background(), 42, "hi", opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked")

	sent := srv.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, int64(7), sent[0].ChatID)
	assert.Equal(t, "`A123` is live!", sent[0].Text)
	assert.Equal(t, "Markdown", sent[0].ParseMode)
	assert.True(t, sent[0].DisableWebPagePreview)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, tr.Send(ctx, 7, "late", opts), context.Canceled)
}

func TestNewTelegramTransportRejectsBadToken(t *testing.T) {
	_, err := NewTelegramTransport("", "", nil)
	assert.Error(t, err)

	srv := testutil.NewMockTelegramServer(t, "123:abc")
	_, err = NewTelegramTransport("999:wrong", srv.Endpoint(), srv.Client())
	assert.Error(t, err)
}

func TestPipelineDeliversThroughTelegram(t *testing.T) {
	srv := testutil.NewMockTelegramServer(t, "123:abc")
	tr, err := NewTelegramTransport("123:abc", srv.Endpoint(), srv.Client())
	require.NoError(t, err)
	d := NewDispatcher(staticSubs{ids: []int64{5, 6}}, tr, DefaultComposer())

	r := &monitor.Reconciler{Store: nopStore{}, Notifier: d}
	e := &monitor.Entity{ID: "A123", DisplayName: "Alpha"}
	_, err = r.Reconcile(context.Background(), e, snapshotWith("A123"))
	require.NoError(t, err)
	d.Wait()

	sent := srv.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, int64(5), sent[0].ChatID)
	assert.Contains(t, sent[0].Text, "`A123` is live!")
}

type nopStore struct{}

func (nopStore) ListTracked(context.Context) ([]monitor.Entity, error) { return nil, nil }
func (nopStore) UpdateField(context.Context, string, monitor.Field, string) error {
	return nil
}
func (nopStore) SubscribersOf(context.Context, string) ([]int64, error) { return nil, nil }

func snapshotWith(ids ...string) *listing.Snapshot {
	entries := make([]listing.Entry, len(ids))
	for i, id := range ids {
		entries[i] = listing.Entry{Code: listing.RoomCode(id), UserID: id, StartTime: "2024-01-01 10:00:00"}
	}
	return listing.NewSnapshot(entries, len(entries))
}
