package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

// WatchChannel is the LISTEN channel fed by the watches trigger.
const WatchChannel = "watches_changed"

// ListenWatchChanges holds a dedicated connection listening on WatchChannel and
// calls onChange for every notification until ctx ends. Lost connections are
// re-established after retry.
func ListenWatchChanges(ctx context.Context, dsn string, retry time.Duration, onChange func(streamerID string)) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	log := slog.Default().With(slog.String("component", "db_listen"))
	for ctx.Err() == nil {
		err := listenOnce(ctx, dsn, onChange)
		if ctx.Err() != nil {
			return
		}
		log.Warn("watch listener disconnected", slog.Any("err", err), slog.Duration("retry", retry))
		t := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func listenOnce(ctx context.Context, dsn string, onChange func(string)) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())
	if _, err := conn.Exec(ctx, "LISTEN "+WatchChannel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	slog.Info("listening for watch changes", slog.String("component", "db_listen"), slog.String("channel", WatchChannel))
	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		onChange(n.Payload)
	}
}
