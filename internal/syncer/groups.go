package syncer

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"collab-lab/internal/models"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 6
	codeAttempts = 10
)

// CreateGroup creates a lab owned by the caller, who is its only member.
func (c *Controller) CreateGroup(ctx context.Context, name string) (models.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Group{}, errors.Wrap(ErrInvalidInput, "group name is required")
	}
	if _, err := c.deps.Users.Get(ctx, c.userID); err != nil {
		return models.Group{}, classify(err)
	}

	var code string
	for i := 0; ; i++ {
		if i == codeAttempts {
			return models.Group{}, errors.New("could not allocate a group code")
		}
		candidate, err := newGroupCode()
		if err != nil {
			return models.Group{}, err
		}
		taken, err := c.deps.Groups.Exists(ctx, candidate)
		if err != nil {
			return models.Group{}, classify(err)
		}
		if !taken {
			code = candidate
			break
		}
	}

	group := models.Group{
		ID:        code,
		Name:      name,
		OwnerID:   c.userID,
		MemberIDs: []string{c.userID},
		CreatedAt: c.deps.Now().UTC(),
	}
	if err := c.deps.Groups.Put(ctx, group); err != nil {
		return models.Group{}, classify(err)
	}
	jww.INFO.Printf("group created id=%s owner=%s", group.ID, c.userID)
	return group, nil
}

func newGroupCode() (string, error) {
	var b strings.Builder
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < codeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", errors.Wrap(err, "generate group code")
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeCode uppercases a user-typed group code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ListGroups returns the labs the caller belongs to.
func (c *Controller) ListGroups(ctx context.Context) ([]models.Group, error) {
	groups, err := c.deps.Groups.ListForUser(ctx, c.userID)
	if err != nil {
		return nil, classify(err)
	}
	if groups == nil {
		groups = []models.Group{}
	}
	return groups, nil
}

// JoinGroup adds the caller to the group with the given code. An unknown
// code yields ErrGroupNotFound; it never creates a group.
func (c *Controller) JoinGroup(ctx context.Context, code string) (models.Group, error) {
	code = NormalizeCode(code)
	if code == "" {
		return models.Group{}, ErrGroupNotFound
	}
	user, err := c.deps.Users.Get(ctx, c.userID)
	if err != nil {
		return models.Group{}, classify(err)
	}

	joined := false
	group, err := c.deps.Groups.Update(ctx, code, func(g *models.Group) error {
		joined = g.AddMember(c.userID)
		return nil
	})
	if err != nil {
		return models.Group{}, classify(err)
	}
	if !joined {
		return group, nil
	}

	c.systemMessage(ctx, group.ID, user.Username+" joined the lab")
	c.publish(group.ID, models.EventPresenceJoin, models.PresenceJoin{UserID: c.userID})
	return group, nil
}

// KickMember removes a member. Only the owner may kick, and the owner cannot
// be kicked.
func (c *Controller) KickMember(ctx context.Context, groupID, targetID string) (models.Group, error) {
	target, err := c.deps.Users.Get(ctx, targetID)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		// only the system message's display name depends on the record
		jww.WARN.Printf("kick target lookup failed group=%s user=%s: %v", groupID, targetID, err)
	}
	group, err := c.deps.Groups.Update(ctx, groupID, func(g *models.Group) error {
		if g.OwnerID != c.userID || targetID == g.OwnerID {
			return ErrForbidden
		}
		if !g.RemoveMember(targetID) {
			return ErrNotMember
		}
		return nil
	})
	if err != nil {
		return models.Group{}, classify(err)
	}

	name := target.Username
	if name == "" {
		name = targetID
	}
	c.systemMessage(ctx, groupID, name+" was removed from the lab")
	return group, nil
}

// MuteMember stops a member from sending. Owner only.
func (c *Controller) MuteMember(ctx context.Context, groupID, targetID string) (models.Group, error) {
	return c.setMuted(ctx, groupID, targetID, true)
}

// UnmuteMember lifts a mute. Owner only.
func (c *Controller) UnmuteMember(ctx context.Context, groupID, targetID string) (models.Group, error) {
	return c.setMuted(ctx, groupID, targetID, false)
}

func (c *Controller) setMuted(ctx context.Context, groupID, targetID string, muted bool) (models.Group, error) {
	group, err := c.deps.Groups.Update(ctx, groupID, func(g *models.Group) error {
		if g.OwnerID != c.userID || targetID == g.OwnerID {
			return ErrForbidden
		}
		if !g.IsMember(targetID) {
			return ErrNotMember
		}
		g.SetMuted(targetID, muted)
		return nil
	})
	return group, classify(err)
}

// JoinCall marks the caller as in the group's call.
func (c *Controller) JoinCall(ctx context.Context, groupID string) (models.Group, error) {
	return c.setInCall(ctx, groupID, true)
}

// LeaveCall clears the caller's in-call flag.
func (c *Controller) LeaveCall(ctx context.Context, groupID string) (models.Group, error) {
	return c.setInCall(ctx, groupID, false)
}

func (c *Controller) setInCall(ctx context.Context, groupID string, inCall bool) (models.Group, error) {
	group, err := c.deps.Groups.Update(ctx, groupID, func(g *models.Group) error {
		if !g.IsMember(c.userID) {
			return ErrNotMember
		}
		g.SetInCall(c.userID, inCall)
		return nil
	})
	return group, classify(err)
}

// systemMessage posts an engine-generated message. Failures are logged only;
// the membership change that caused it already happened.
func (c *Controller) systemMessage(ctx context.Context, groupID, text string) {
	now := c.deps.Now()
	msg := models.Message{
		ID:        uuid.NewString(),
		GroupID:   groupID,
		SenderID:  models.SystemSenderID,
		Text:      text,
		Kind:      models.KindSystem,
		CreatedAt: now.UTC(),
		ExpiresAt: now.Add(c.deps.Config.MessageTTL).UTC(),
	}
	if err := c.deps.Messages.Put(ctx, msg); err != nil {
		jww.WARN.Printf("system message failed group=%s: %v", groupID, err)
		return
	}
	c.publish(groupID, models.EventMessageSent, msg)
}
