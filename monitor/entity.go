// Package monitor reconciles tracked streaming accounts against the live
// listing and drives the polling cycle.
//
// A cycle fetches one listing snapshot, reconciles every tracked Entity in
// small concurrent groups, persists changed fields through a Store and hands
// live/offline flips to a Notifier. Only live status flips notify; nickname
// and title drift is persisted silently.
package monitor

import (
	"context"
	"fmt"
)

// State is the live/offline state of an account.
type State int

const (
	StateOffline State = iota
	StateOnline
)

func (s State) String() string {
	if s == StateOnline {
		return "online"
	}
	return "offline"
}

// LiveStatus is Offline, or Online since an opaque start-time token. The token
// is compared for equality only; a different token on an online account is a
// new broadcast.
type LiveStatus struct {
	State State
	Since string
}

// Offline returns the offline status.
func Offline() LiveStatus { return LiveStatus{State: StateOffline} }

// Online returns an online status started at token. An empty token is offline.
func Online(token string) LiveStatus {
	if token == "" {
		return Offline()
	}
	return LiveStatus{State: StateOnline, Since: token}
}

// ParseLiveStatus decodes the persisted form ("" for offline).
func ParseLiveStatus(stored string) LiveStatus { return Online(stored) }

// IsOnline reports whether the account is broadcasting.
func (l LiveStatus) IsOnline() bool { return l.State == StateOnline }

// Token returns the persisted form.
func (l LiveStatus) Token() string {
	if l.State == StateOnline {
		return l.Since
	}
	return ""
}

// Entity is one tracked streaming account.
type Entity struct {
	ID          string
	DisplayName string
	Nickname    string
	Title       string
	Live        LiveStatus
	Platform    string
}

// Field names a mutable Entity attribute.
type Field string

const (
	FieldNickname   Field = "nickname"
	FieldTitle      Field = "title"
	FieldLiveStatus Field = "live_status"
)

// FieldChange is one persisted attribute update.
type FieldChange struct {
	Field Field
	Old   string
	New   string
}

func (c FieldChange) String() string { return fmt.Sprintf("%s: %q -> %q", c.Field, c.Old, c.New) }

// Transition is a live status flip handed to the Notifier. Entity is a copy
// taken after the store write, so later cycles cannot mutate it.
type Transition struct {
	Entity Entity
	From   LiveStatus
	To     LiveStatus
}

// WentLive reports the online direction (including a restart with a new
// start time).
func (t Transition) WentLive() bool { return t.To.IsOnline() }

// Direction is the metric label for the transition.
func (t Transition) Direction() string { return t.To.State.String() }

// Store is the persistence boundary for tracked accounts and their watchers.
type Store interface {
	ListTracked(ctx context.Context) ([]Entity, error)
	UpdateField(ctx context.Context, id string, field Field, value string) error
	SubscribersOf(ctx context.Context, id string) ([]int64, error)
}

// Notifier receives live status transitions. Implementations must not block
// the caller on delivery.
type Notifier interface {
	Notify(ctx context.Context, t Transition)
}
