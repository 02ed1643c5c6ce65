package syncer

import (
	"context"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"go.opentelemetry.io/otel/attribute"

	"collab-lab/internal/models"
	"collab-lab/internal/observability"
	"collab-lab/internal/repositories"
)

// View returns a freshly reconciled view of groupID: the stored messages that
// are still live, followed by this controller's unconfirmed sends when
// groupID is the active group.
func (c *Controller) View(ctx context.Context, groupID string) (models.GroupView, error) {
	ctx, span := observability.Tracer("syncer").Start(ctx, "syncer.reconcile")
	defer span.End()
	span.SetAttributes(attribute.String("group_id", groupID))

	now := c.deps.Now()
	group, err := c.deps.Groups.Get(ctx, groupID)
	if err != nil {
		return models.GroupView{}, classify(err)
	}
	if !group.IsMember(c.userID) {
		return models.GroupView{}, ErrNotMember
	}
	me, err := c.deps.Users.Get(ctx, c.userID)
	if err != nil {
		return models.GroupView{}, classify(err)
	}
	stored, err := c.deps.Messages.List(ctx, groupID)
	if err != nil {
		return models.GroupView{}, classify(err)
	}

	kinds := c.kindFilter()
	visible := func(m models.Message) bool {
		return !m.Expired(now) && (kinds == nil || kinds[m.Kind])
	}

	confirmed := make(map[string]bool, len(stored))
	byID := make(map[string]models.Message, len(stored))
	var msgs []models.VisibleMessage
	for _, m := range stored {
		confirmed[m.ID] = true
		if m.Expired(now) {
			continue
		}
		byID[m.ID] = m
		if visible(m) {
			msgs = append(msgs, models.VisibleMessage{Message: m})
		}
	}
	if s := c.current(groupID); s != nil {
		for _, m := range s.overlay.reconcile(confirmed, now) {
			byID[m.ID] = m
			if visible(m) {
				msgs = append(msgs, models.VisibleMessage{Message: m, Pending: true})
			}
		}
	}
	for i := range msgs {
		if msgs[i].ReplyToID == "" {
			continue
		}
		if target, ok := byID[msgs[i].ReplyToID]; ok {
			msgs[i].ReplyTo = &target
		}
	}
	if msgs == nil {
		msgs = []models.VisibleMessage{}
	}

	return models.GroupView{
		Group:           group,
		Messages:        msgs,
		Members:         c.members(ctx, group, now),
		FriendIDs:       nonNil(me.FriendIDs),
		PendingRequests: nonNil(me.PendingFriendRequestIDs),
		GeneratedAt:     now,
	}, nil
}

func (c *Controller) members(ctx context.Context, group models.Group, now time.Time) []models.MemberView {
	members := make([]models.MemberView, 0, len(group.MemberIDs))
	for _, id := range group.MemberIDs {
		mv := models.MemberView{
			UserID: id,
			Status: models.StatusOffline,
			Muted:  group.IsMuted(id),
			Owner:  id == group.OwnerID,
		}
		u, err := c.deps.Users.Get(ctx, id)
		switch {
		case err == nil:
			mv.Username = u.Username
			mv.ChatColor = u.ChatColor
			if c.deps.Presence != nil {
				mv.Status = c.deps.Presence.Status(u, group, now)
			}
		case errors.Is(err, repositories.ErrUserNotFound):
			mv.Username = id
		default:
			mv.Username = id
			jww.DEBUG.Printf("member lookup failed user=%s: %v", id, err)
		}
		members = append(members, mv)
	}
	return members
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
