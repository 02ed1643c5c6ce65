package syncer

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"collab-lab/internal/models"
)

// SendFriendRequest asks the user with the given username for friendship.
// When that user already asked the caller, the two become friends instead.
func (c *Controller) SendFriendRequest(ctx context.Context, username string) (models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return models.User{}, errors.Wrap(ErrInvalidInput, "username is required")
	}
	me, err := c.deps.Users.Get(ctx, c.userID)
	if err != nil {
		return models.User{}, classify(err)
	}
	target, err := c.deps.Users.GetByUsername(ctx, username)
	if err != nil {
		return models.User{}, classify(err)
	}
	if target.ID == me.ID {
		return models.User{}, errors.Wrap(ErrInvalidInput, "cannot befriend yourself")
	}
	if me.IsFriend(target.ID) {
		return target, nil
	}
	if me.HasPendingRequestFrom(target.ID) {
		if _, err := c.AcceptFriendRequest(ctx, target.ID); err != nil {
			return models.User{}, err
		}
		return c.lookup(ctx, target.ID)
	}

	target, err = c.deps.Users.Update(ctx, target.ID, func(u *models.User) error {
		u.AddPendingRequest(c.userID)
		return nil
	})
	return target, classify(err)
}

// AcceptFriendRequest makes the caller and fromID friends.
func (c *Controller) AcceptFriendRequest(ctx context.Context, fromID string) (models.User, error) {
	me, err := c.deps.Users.Update(ctx, c.userID, func(u *models.User) error {
		if !u.HasPendingRequestFrom(fromID) {
			return ErrRequestNotFound
		}
		u.AddFriend(fromID)
		return nil
	})
	if err != nil {
		return models.User{}, classify(err)
	}
	_, err = c.deps.Users.Update(ctx, fromID, func(u *models.User) error {
		u.AddFriend(c.userID)
		return nil
	})
	if err != nil {
		return models.User{}, classify(err)
	}
	return me, nil
}

// DeclineFriendRequest drops a pending request from fromID.
func (c *Controller) DeclineFriendRequest(ctx context.Context, fromID string) (models.User, error) {
	me, err := c.deps.Users.Update(ctx, c.userID, func(u *models.User) error {
		if !u.RemovePendingRequest(fromID) {
			return ErrRequestNotFound
		}
		return nil
	})
	return me, classify(err)
}

func (c *Controller) lookup(ctx context.Context, userID string) (models.User, error) {
	u, err := c.deps.Users.Get(ctx, userID)
	return u, classify(err)
}
