package presence

import (
	"context"
	"time"

	"github.com/duykhanhyb1994/sayhi.io.vn/internal/domain"
	"github.com/duykhanhyb1994/sayhi.io.vn/internal/store"
)

// Tracker maintains the per-user online flag and last-seen timestamp.
// It writes durable state only; presence changes are not pushed to room
// members, they are observed through room activity or queried.
type Tracker struct {
	store store.Store
}

func NewTracker(s store.Store) *Tracker {
	return &Tracker{store: s}
}

// SetOnline upserts the user's status row with the given flag and
// stamps last-seen with the current time.
func (t *Tracker) SetOnline(ctx context.Context, username string, online bool) error {
	status, err := t.store.GetOrCreateUserStatus(ctx, username)
	if err != nil {
		return err
	}

	status.IsOnline = online
	status.LastSeen = time.Now()
	return t.store.SaveUserStatus(ctx, status)
}

// Get returns the user's current status row.
func (t *Tracker) Get(ctx context.Context, username string) (*domain.UserStatus, error) {
	return t.store.GetUserStatus(ctx, username)
}
