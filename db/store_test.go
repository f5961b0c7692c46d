package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/live-signal/monitor"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	db := openTestDB(t)
	ctx := context.Background()
	cleanDatabase(t, ctx, db)
	require.NoError(t, Migrate(ctx, db))
	return NewStore(db, "panda")
}

func TestStoreWatchLifecycle(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	created, err := s.AddWatch(ctx, 1001, "A123", "Alpha")
	require.NoError(t, err)
	assert.True(t, created)
	created, err = s.AddWatch(ctx, 1001, "A123", "")
	require.NoError(t, err)
	assert.False(t, created, "duplicate watch")
	_, err = s.AddWatch(ctx, 1002, "A123", "")
	require.NoError(t, err)

	tracked, err := s.ListTracked(ctx)
	require.NoError(t, err)
	require.Len(t, tracked, 1)
	assert.Equal(t, "A123", tracked[0].ID)
	assert.Equal(t, "Alpha", tracked[0].DisplayName, "empty display name keeps the stored one")
	assert.False(t, tracked[0].Live.IsOnline())

	subs, err := s.SubscribersOf(ctx, "A123")
	require.NoError(t, err)
	assert.Equal(t, []int64{1001, 1002}, subs)

	ids, err := s.WatchesOf(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, []string{"A123"}, ids)

	removed, err := s.RemoveWatch(ctx, 1001, "A123")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = s.RemoveWatch(ctx, 1001, "A123")
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = s.RemoveWatch(ctx, 1002, "A123")
	require.NoError(t, err)
	tracked, err = s.ListTracked(ctx)
	require.NoError(t, err)
	assert.Empty(t, tracked, "accounts without watches are not tracked")
}

func TestStoreUpdateField(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	_, err := s.AddWatch(ctx, 7, "B456", "Beta")
	require.NoError(t, err)

	require.NoError(t, s.UpdateField(ctx, "B456", monitor.FieldLiveStatus, "2024-01-01T09:00:00"))
	require.NoError(t, s.UpdateField(ctx, "B456", monitor.FieldNickname, "beta_nick"))
	require.NoError(t, s.UpdateField(ctx, "B456", monitor.FieldTitle, "🔒|hello"))

	tracked, err := s.ListTracked(ctx)
	require.NoError(t, err)
	require.Len(t, tracked, 1)
	e := tracked[0]
	assert.Equal(t, "beta_nick", e.Nickname)
	assert.Equal(t, "🔒|hello", e.Title)
	assert.True(t, e.Live.IsOnline())
	assert.Equal(t, "2024-01-01T09:00:00", e.Live.Token())

	assert.Error(t, s.UpdateField(ctx, "B456", monitor.Field("platform"), "x"), "unknown field")
	assert.Error(t, s.UpdateField(ctx, "missing", monitor.FieldTitle, "x"), "unknown account")
}

func TestStorePlatformScope(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	_, err := s.AddWatch(ctx, 1, "C789", "")
	require.NoError(t, err)

	other := NewStore(s.DB, "afreeca")
	tracked, err := other.ListTracked(ctx)
	require.NoError(t, err)
	assert.Empty(t, tracked)
}

func TestKV(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	v, err := GetKV(ctx, s.DB, "missing")
	require.NoError(t, err)
	assert.Empty(t, v)
	require.NoError(t, SetKV(ctx, s.DB, "k", "1"))
	require.NoError(t, SetKV(ctx, s.DB, "k", "2"))
	v, err = GetKV(ctx, s.DB, "k")
	require.NoError(t, err)
	assert.Equal(t, "2", v)
}

func TestListenWatchChanges(t *testing.T) {
	s := setupStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	got := make(chan string, 4)
	done := make(chan struct{})
	go func() {
		ListenWatchChanges(ctx, testDSN(), time.Second, func(id string) { got <- id })
		close(done)
	}()

	// the listener needs a moment to issue LISTEN
	deadline := time.After(8 * time.Second)
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()
	var chatID int64 = 5000
	for {
		select {
		case id := <-got:
			assert.Equal(t, "D000", id)
			cancel()
			<-done
			return
		case <-tick.C:
			chatID++
			_, err := s.AddWatch(ctx, chatID, "D000", "")
			require.NoError(t, err)
		case <-deadline:
			t.Fatal("no notification received")
		}
	}
}

var errRowCount = errors.New("row count unavailable")

// rowCountDriver accepts every statement and fails RowsAffected.
type rowCountDriver struct{}

func (rowCountDriver) Open(string) (driver.Conn, error) { return rowCountConn{}, nil }

type rowCountConn struct{}

func (rowCountConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("prepare not supported") }
func (rowCountConn) Close() error                        { return nil }
func (rowCountConn) Begin() (driver.Tx, error)           { return rowCountConn{}, nil }
func (rowCountConn) Commit() error                       { return nil }
func (rowCountConn) Rollback() error                     { return nil }
func (rowCountConn) ExecContext(context.Context, string, []driver.NamedValue) (driver.Result, error) {
	return rowCountResult{}, nil
}

type rowCountResult struct{}

func (rowCountResult) LastInsertId() (int64, error) { return 0, nil }
func (rowCountResult) RowsAffected() (int64, error) { return 0, errRowCount }

func init() { sql.Register("rowcount", rowCountDriver{}) }

func TestStoreReportsRowsAffectedErrors(t *testing.T) {
	conn, err := sql.Open("rowcount", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	s := NewStore(conn, "panda")
	ctx := context.Background()

	_, err = s.AddWatch(ctx, 1, "A123", "Alpha")
	assert.ErrorIs(t, err, errRowCount)
	_, err = s.RemoveWatch(ctx, 1, "A123")
	assert.ErrorIs(t, err, errRowCount)
	assert.ErrorIs(t, s.UpdateField(ctx, "A123", monitor.FieldTitle, "t"), errRowCount)
}
