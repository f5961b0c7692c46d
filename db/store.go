package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/onnwee/live-signal/monitor"
)

// Store implements monitor.Store over the streamers and watches tables.
type Store struct {
	DB       *sql.DB
	Platform string
}

// NewStore scopes a store to one platform tag.
func NewStore(db *sql.DB, platform string) *Store {
	return &Store{DB: db, Platform: platform}
}

var fieldColumns = map[monitor.Field]string{
	monitor.FieldNickname:   "nickname",
	monitor.FieldTitle:      "title",
	monitor.FieldLiveStatus: "live_status",
}

// ListTracked returns every account of the platform with at least one watch.
func (s *Store) ListTracked(ctx context.Context) ([]monitor.Entity, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT s.id, s.display_name, s.nickname, s.title, s.live_status
		FROM streamers s
		WHERE s.platform = $1 AND EXISTS (SELECT 1 FROM watches w WHERE w.streamer_id = s.id)
		ORDER BY s.created_at, s.id`, s.Platform)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []monitor.Entity
	for rows.Next() {
		var e monitor.Entity
		var live string
		if err := rows.Scan(&e.ID, &e.DisplayName, &e.Nickname, &e.Title, &live); err != nil {
			return nil, err
		}
		e.Live = monitor.ParseLiveStatus(live)
		e.Platform = s.Platform
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpdateField writes one field of one account.
func (s *Store) UpdateField(ctx context.Context, id string, field monitor.Field, value string) error {
	col, ok := fieldColumns[field]
	if !ok {
		return fmt.Errorf("unknown field %q", field)
	}
	// col comes from the whitelist above
	res, err := s.DB.ExecContext(ctx,
		`UPDATE streamers SET `+col+` = $1, updated_at = NOW() WHERE id = $2`, value, id) //nolint:gosec
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s rows affected: %w", col, err)
	}
	if n == 0 {
		return fmt.Errorf("streamer %s not found", id)
	}
	return nil
}

// SubscribersOf returns watching chats in watch creation order.
func (s *Store) SubscribersOf(ctx context.Context, id string) ([]int64, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT chat_id FROM watches WHERE streamer_id = $1 ORDER BY created_at, chat_id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var chatID int64
		if err := rows.Scan(&chatID); err != nil {
			return nil, err
		}
		out = append(out, chatID)
	}
	return out, rows.Err()
}

// AddWatch subscribes a chat to an account, creating the account row when
// needed. It reports whether a new watch was created.
func (s *Store) AddWatch(ctx context.Context, chatID int64, id, displayName string) (bool, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO streamers(id, platform, display_name) VALUES($1,$2,$3)
		ON CONFLICT(id) DO UPDATE SET
			display_name = CASE WHEN EXCLUDED.display_name <> '' THEN EXCLUDED.display_name ELSE streamers.display_name END,
			updated_at = NOW()`, id, s.Platform, displayName); err != nil {
		return false, fmt.Errorf("upsert streamer: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO watches(chat_id, streamer_id) VALUES($1,$2) ON CONFLICT DO NOTHING`, chatID, id)
	if err != nil {
		return false, fmt.Errorf("insert watch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert watch rows affected: %w", err)
	}
	return n > 0, tx.Commit()
}

// RemoveWatch unsubscribes a chat. It reports whether a watch was removed.
func (s *Store) RemoveWatch(ctx context.Context, chatID int64, id string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM watches WHERE chat_id=$1 AND streamer_id=$2`, chatID, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete watch rows affected: %w", err)
	}
	return n > 0, nil
}

// WatchesOf lists the accounts a chat watches.
func (s *Store) WatchesOf(ctx context.Context, chatID int64) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT streamer_id FROM watches WHERE chat_id=$1 ORDER BY created_at, streamer_id`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
