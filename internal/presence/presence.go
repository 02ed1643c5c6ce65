// Package presence derives online status from periodic heartbeats.
package presence

import (
	"context"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"collab-lab/internal/models"
	"collab-lab/internal/repositories"
)

const (
	DefaultHeartbeatInterval = 10 * time.Second
	DefaultOnlineWindow      = 30 * time.Second
)

var ErrWindowTooSmall = errors.New("online window must be at least twice the heartbeat interval")

type Tracker struct {
	users  repositories.UserRepository
	period time.Duration
	window time.Duration
	now    func() time.Time
}

// NewTracker validates that window leaves room for at least one missed
// heartbeat, so status does not flap between beats.
func NewTracker(users repositories.UserRepository, period, window time.Duration, now func() time.Time) (*Tracker, error) {
	if period <= 0 {
		period = DefaultHeartbeatInterval
	}
	if window <= 0 {
		window = DefaultOnlineWindow
	}
	if window < 2*period {
		return nil, errors.Wrapf(ErrWindowTooSmall, "window=%s period=%s", window, period)
	}
	if now == nil {
		now = time.Now
	}
	return &Tracker{users: users, period: period, window: window, now: now}, nil
}

// Heartbeat stamps the user's lastSeenAt with the current time.
func (t *Tracker) Heartbeat(ctx context.Context, userID string) error {
	now := t.now().UTC()
	_, err := t.users.Update(ctx, userID, func(u *models.User) error {
		u.LastSeenAt = now
		return nil
	})
	return err
}

// IsOnline reports whether the user's last heartbeat lies within the window.
func (t *Tracker) IsOnline(user models.User, now time.Time) bool {
	if user.LastSeenAt.IsZero() {
		return false
	}
	return now.Sub(user.LastSeenAt) < t.window
}

// Status combines liveness with the group's call state.
func (t *Tracker) Status(user models.User, group models.Group, now time.Time) models.PresenceStatus {
	if !t.IsOnline(user, now) {
		return models.StatusOffline
	}
	if group.InCall(user.ID) {
		return models.StatusInCall
	}
	return models.StatusOnline
}

// Run sends a heartbeat immediately and then once per period until ctx is
// done. Failed beats are logged and retried on the next tick.
func (t *Tracker) Run(ctx context.Context, userID string) {
	ticker := time.NewTicker(t.period)
	defer ticker.Stop()

	for {
		if err := t.Heartbeat(ctx, userID); err != nil && ctx.Err() == nil {
			jww.WARN.Printf("heartbeat failed user=%s: %v", userID, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
