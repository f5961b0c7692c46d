package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/live-signal/listing"
)

type write struct {
	ID    string
	Field Field
	Value string
}

// memStore is an in-memory Store that records writes.
type memStore struct {
	mu       sync.Mutex
	entities []Entity
	subs     map[string][]int64
	writes   []write
	failOn   map[string]error
	listErr  error
}

func (m *memStore) ListTracked(context.Context) ([]Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]Entity(nil), m.entities...), nil
}

func (m *memStore) UpdateField(_ context.Context, id string, f Field, v string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failOn[id]; err != nil {
		return err
	}
	m.writes = append(m.writes, write{id, f, v})
	return nil
}

func (m *memStore) SubscribersOf(_ context.Context, id string) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subs[id], nil
}

func (m *memStore) Writes() []write {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]write(nil), m.writes...)
}

// recorder collects transitions synchronously.
type recorder struct {
	mu  sync.Mutex
	got []Transition
}

func (r *recorder) Notify(_ context.Context, t Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, t)
}

func (r *recorder) Transitions() []Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Transition(nil), r.got...)
}

func snapshotOf(entries ...listing.Entry) *listing.Snapshot {
	return listing.NewSnapshot(entries, len(entries))
}

func TestReconcileGoesLive(t *testing.T) {
	store := &memStore{}
	rec := &recorder{}
	r := &Reconciler{Store: store, Notifier: rec}
	e := &Entity{ID: "A123", Live: Offline()}
	snap := snapshotOf(listing.Entry{Code: "1", UserID: "A123", StartTime: "2024-01-01T10:00:00"})

	changes, err := r.Reconcile(context.Background(), e, snap)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, FieldChange{Field: FieldLiveStatus, Old: "", New: "2024-01-01T10:00:00"}, changes[0])
	assert.Equal(t, []write{{"A123", FieldLiveStatus, "2024-01-01T10:00:00"}}, store.Writes())
	assert.True(t, e.Live.IsOnline())

	got := rec.Transitions()
	require.Len(t, got, 1)
	assert.True(t, got[0].WentLive())
	assert.Equal(t, "A123", got[0].Entity.ID)
	assert.Equal(t, "online", got[0].Direction())
}

func TestReconcileGoesOffline(t *testing.T) {
	store := &memStore{}
	rec := &recorder{}
	r := &Reconciler{Store: store, Notifier: rec}
	e := &Entity{ID: "B456", Live: Online("2024-01-01T09:00:00")}

	changes, err := r.Reconcile(context.Background(), e, snapshotOf())
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, []write{{"B456", FieldLiveStatus, ""}}, store.Writes())
	assert.False(t, e.Live.IsOnline())

	got := rec.Transitions()
	require.Len(t, got, 1)
	assert.False(t, got[0].WentLive())
	assert.Equal(t, "2024-01-01T09:00:00", got[0].From.Token())
}

func TestReconcileAbsentAndOfflineIsNoop(t *testing.T) {
	store := &memStore{}
	rec := &recorder{}
	r := &Reconciler{Store: store, Notifier: rec}
	e := &Entity{ID: "C789", Nickname: "n", Title: "t", Live: Offline()}

	changes, err := r.Reconcile(context.Background(), e, snapshotOf(listing.Entry{Code: "9", UserID: "other"}))
	require.NoError(t, err)
	assert.Empty(t, changes)
	assert.Empty(t, store.Writes())
	assert.Empty(t, rec.Transitions())
}

func TestReconcileIsIdempotent(t *testing.T) {
	store := &memStore{}
	rec := &recorder{}
	r := &Reconciler{Store: store, Notifier: rec}
	entry := listing.Entry{Code: "1", UserID: "A123", UserNick: "alpha", Title: "hello", IsAdult: true, StartTime: "s1"}
	e := &Entity{ID: "A123"}

	_, err := r.Reconcile(context.Background(), e, snapshotOf(entry))
	require.NoError(t, err)
	first := len(store.Writes())
	require.Equal(t, 3, first)

	changes, err := r.Reconcile(context.Background(), e, snapshotOf(entry))
	require.NoError(t, err)
	assert.Empty(t, changes)
	assert.Len(t, store.Writes(), first, "unchanged snapshot writes nothing")
	assert.Len(t, rec.Transitions(), 1)
}

func TestReconcileFieldOrderAndSilentChanges(t *testing.T) {
	store := &memStore{}
	rec := &recorder{}
	r := &Reconciler{Store: store, Notifier: rec}
	e := &Entity{ID: "A123", Nickname: "old", Title: "old title", Live: Online("s1")}
	entry := listing.Entry{Code: "1", UserID: "A123", UserNick: "new", Title: "new title", LiveType: "rec", StartTime: "s1"}

	changes, err := r.Reconcile(context.Background(), e, snapshotOf(entry))
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, FieldNickname, changes[0].Field)
	assert.Equal(t, FieldTitle, changes[1].Field)
	assert.Equal(t, "🎥|new title", e.Title)
	assert.Empty(t, rec.Transitions(), "nickname and title changes do not notify")
}

func TestReconcileRestartWithNewStartTimeNotifies(t *testing.T) {
	rec := &recorder{}
	r := &Reconciler{Store: &memStore{}, Notifier: rec}
	e := &Entity{ID: "A123", Live: Online("s1")}

	_, err := r.Reconcile(context.Background(), e, snapshotOf(listing.Entry{Code: "1", UserID: "A123", StartTime: "s2"}))
	require.NoError(t, err)
	got := rec.Transitions()
	require.Len(t, got, 1)
	assert.True(t, got[0].WentLive())
	assert.Equal(t, "s2", e.Live.Token())
}

func TestReconcilePresentWithoutStartTimeIsOffline(t *testing.T) {
	store := &memStore{}
	r := &Reconciler{Store: store, Notifier: &recorder{}}
	e := &Entity{ID: "A123", Live: Online("s1")}

	_, err := r.Reconcile(context.Background(), e, snapshotOf(listing.Entry{Code: "1", UserID: "A123"}))
	require.NoError(t, err)
	assert.False(t, e.Live.IsOnline())
}

func TestReconcileStoreErrorLeavesEntityUnchanged(t *testing.T) {
	boom := errors.New("db down")
	store := &memStore{failOn: map[string]error{"A123": boom}}
	rec := &recorder{}
	r := &Reconciler{Store: store, Notifier: rec}
	e := &Entity{ID: "A123", Live: Offline()}

	_, err := r.Reconcile(context.Background(), e, snapshotOf(listing.Entry{Code: "1", UserID: "A123", StartTime: "s1"}))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.False(t, e.Live.IsOnline(), "in-memory state follows the store")
	assert.Empty(t, rec.Transitions(), "no notification without a successful write")
}

func TestComposeTitleMarkerOrder(t *testing.T) {
	e := listing.Entry{Title: "hi", LiveType: "rec", Type: "fan", IsPw: true, IsAdult: true}
	assert.Equal(t, "🎥|💰|🔒|🔞|hi", ComposeTitle(e))
	assert.Equal(t, "hi", ComposeTitle(listing.Entry{Title: "hi"}))
}

func TestLiveStatus(t *testing.T) {
	assert.Equal(t, Offline(), Online(""))
	assert.Equal(t, Offline(), ParseLiveStatus(""))
	on := ParseLiveStatus("2024-01-01 10:00:00")
	assert.True(t, on.IsOnline())
	assert.Equal(t, "2024-01-01 10:00:00", on.Token())
	assert.Equal(t, "", Offline().Token())
	assert.Equal(t, "online", StateOnline.String())
	assert.Equal(t, "offline", StateOffline.String())
}
