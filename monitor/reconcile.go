package monitor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/onnwee/live-signal/listing"
	"github.com/onnwee/live-signal/telemetry"
)

// Category marker glyphs prefixed to a room title, in this order.
const (
	MarkRecorded = "🎥|"
	MarkFanOnly  = "💰|"
	MarkPassword = "🔒|"
	MarkAdult    = "🔞|"
)

// ComposeTitle prefixes the raw title with the room's category markers.
func ComposeTitle(e listing.Entry) string {
	t := ""
	if e.Recorded() {
		t += MarkRecorded
	}
	if e.FanOnly() {
		t += MarkFanOnly
	}
	if e.IsPw {
		t += MarkPassword
	}
	if e.IsAdult {
		t += MarkAdult
	}
	return t + e.Title
}

// Reconciler diffs one Entity against a snapshot and persists the changes.
type Reconciler struct {
	Store    Store
	Notifier Notifier
}

// Reconcile updates e in place from the snapshot. Fields are written one at a
// time in the order nickname, title, live status; each is applied to e only
// after its write succeeds. The first store error aborts this entity and is
// returned together with the changes already persisted. A live status change
// notifies once, after its write.
func (r *Reconciler) Reconcile(ctx context.Context, e *Entity, snap *listing.Snapshot) ([]FieldChange, error) {
	var changes []FieldChange

	entry, found := snap.Lookup(e.ID)
	if found {
		if entry.UserNick != e.Nickname {
			c, err := r.write(ctx, e.ID, FieldNickname, e.Nickname, entry.UserNick)
			if err != nil {
				return changes, err
			}
			e.Nickname = entry.UserNick
			changes = append(changes, c)
		}
		if title := ComposeTitle(entry); title != e.Title {
			c, err := r.write(ctx, e.ID, FieldTitle, e.Title, title)
			if err != nil {
				return changes, err
			}
			e.Title = title
			changes = append(changes, c)
		}
	}

	next := Offline()
	if found {
		next = Online(entry.StartTime)
	}
	if next == e.Live {
		return changes, nil
	}
	prev := e.Live
	c, err := r.write(ctx, e.ID, FieldLiveStatus, prev.Token(), next.Token())
	if err != nil {
		return changes, err
	}
	e.Live = next
	changes = append(changes, c)

	telemetry.RecordTransition(next.State.String())
	if r.Notifier != nil {
		r.Notifier.Notify(ctx, Transition{Entity: *e, From: prev, To: next})
	}
	return changes, nil
}

func (r *Reconciler) write(ctx context.Context, id string, f Field, old, val string) (FieldChange, error) {
	if err := r.Store.UpdateField(ctx, id, f, val); err != nil {
		return FieldChange{}, fmt.Errorf("update %s for %s: %w", f, id, err)
	}
	telemetry.LoggerWithCorr(ctx).Debug("field updated",
		slog.String("id", id), slog.String("field", string(f)), slog.String("value", val), slog.String("component", "reconcile"))
	return FieldChange{Field: f, Old: old, New: val}, nil
}
