package syncer

import (
	"context"
	"strings"
	"time"

	"github.com/forPelevin/gomoji"
	"github.com/google/uuid"
	jww "github.com/spf13/jwalterweatherman"

	"collab-lab/internal/models"
	"collab-lab/internal/relay"
	"collab-lab/internal/sweeper"
)

const publishTimeout = 5 * time.Second

// FileUpload is a file attached to a send.
type FileUpload struct {
	Name        string
	ContentType string
	Data        []byte
}

// SendRequest describes a message to send.
type SendRequest struct {
	Text      string
	ReplyToID string
	File      *FileUpload
}

// resolveGroup substitutes the active group for an empty id.
func (c *Controller) resolveGroup(groupID string) (string, error) {
	if groupID != "" {
		return groupID, nil
	}
	if active, ok := c.ActiveGroup(); ok {
		return active, nil
	}
	return "", ErrNoActiveGroup
}

// SendMessage validates and stores a new message. The message is visible in
// the active group's view before the store write returns; the relay publish
// happens in the background and never fails the send.
func (c *Controller) SendMessage(ctx context.Context, groupID string, req SendRequest) (models.Message, error) {
	groupID, err := c.resolveGroup(groupID)
	if err != nil {
		return models.Message{}, err
	}
	text := strings.TrimSpace(req.Text)
	if text == "" && req.File == nil {
		return models.Message{}, ErrEmptyMessage
	}

	user, group, err := c.member(ctx, groupID)
	if err != nil {
		return models.Message{}, err
	}
	if group.IsMuted(c.userID) {
		return models.Message{}, ErrMuted
	}

	now := c.deps.Now()
	msg := models.Message{
		ID:        uuid.NewString(),
		GroupID:   groupID,
		SenderID:  c.userID,
		Text:      text,
		Kind:      models.KindText,
		CreatedAt: now.UTC(),
		ExpiresAt: now.Add(c.deps.Config.MessageTTL).UTC(),
		Color:     user.ChatColor,
		ReplyToID: req.ReplyToID,
	}

	if f := req.File; f != nil {
		if f.Name == "" || len(f.Data) == 0 {
			return models.Message{}, ErrEmptyMessage
		}
		if int64(len(f.Data)) > c.planLimit(user.Plan) {
			return models.Message{}, ErrFileTooLarge
		}
		if c.deps.Blobs == nil {
			return models.Message{}, ErrStorage
		}
		msg.Kind = models.KindFile
		msg.File = &models.FileRef{
			Name:        f.Name,
			Size:        int64(len(f.Data)),
			ContentType: f.ContentType,
			BlobKey:     uuid.NewString(),
		}
		if msg.Text == "" {
			msg.Text = "Sent a file: " + f.Name
		}
		if err := c.deps.Blobs.Put(ctx, msg.File.BlobKey, f.Data); err != nil {
			return models.Message{}, &storageError{cause: err}
		}
	}

	s := c.current(groupID)
	if s != nil {
		s.overlay.add(msg)
		c.markChanged(groupID)
	}
	if err := c.deps.Messages.Put(ctx, msg); err != nil {
		if s != nil {
			s.overlay.remove(msg.ID)
			c.markChanged(groupID)
		}
		if msg.File != nil {
			if derr := c.deps.Blobs.Delete(ctx, msg.File.BlobKey); derr != nil {
				jww.WARN.Printf("blob rollback failed key=%s: %v", msg.File.BlobKey, derr)
			}
		}
		return models.Message{}, &storageError{cause: err}
	}

	c.publish(groupID, models.EventMessageSent, msg)
	return msg, nil
}

// UploadLimit returns the largest file the caller's plan allows.
func (c *Controller) UploadLimit(ctx context.Context) (int64, error) {
	user, err := c.deps.Users.Get(ctx, c.userID)
	if err != nil {
		return 0, classify(err)
	}
	return c.planLimit(user.Plan), nil
}

func (c *Controller) planLimit(plan models.Plan) int64 {
	if limit, ok := c.deps.Config.PlanLimits[plan]; ok {
		return limit
	}
	return c.deps.Config.PlanLimits[models.PlanFree]
}

// EditMessage replaces the text of one of the caller's own messages.
func (c *Controller) EditMessage(ctx context.Context, groupID, messageID, text string) (models.Message, error) {
	groupID, err := c.resolveGroup(groupID)
	if err != nil {
		return models.Message{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Message{}, ErrEmptyMessage
	}
	if _, _, err := c.member(ctx, groupID); err != nil {
		return models.Message{}, err
	}

	now := c.deps.Now()
	msg, err := c.deps.Messages.Update(ctx, groupID, messageID, func(m *models.Message) error {
		if m.Expired(now) {
			return ErrMessageNotFound
		}
		if m.SenderID != c.userID {
			return ErrForbidden
		}
		m.Text = text
		m.Edited = true
		return nil
	})
	if err != nil {
		return models.Message{}, classify(err)
	}

	c.publish(groupID, models.EventMessageEdited, models.MessageEdit{MessageID: messageID, Text: text})
	return msg, nil
}

// DeleteMessage removes a message. The sender and the group owner may delete.
// A file payload is released once no live message references it.
func (c *Controller) DeleteMessage(ctx context.Context, groupID, messageID string) (models.Message, error) {
	groupID, err := c.resolveGroup(groupID)
	if err != nil {
		return models.Message{}, err
	}
	_, group, err := c.member(ctx, groupID)
	if err != nil {
		return models.Message{}, err
	}
	now := c.deps.Now()
	msg, err := c.deps.Messages.Get(ctx, groupID, messageID)
	if err != nil {
		return models.Message{}, classify(err)
	}
	if msg.Expired(now) {
		return models.Message{}, ErrMessageNotFound
	}
	if msg.SenderID != c.userID && group.OwnerID != c.userID {
		return models.Message{}, ErrForbidden
	}

	if msg.File != nil && c.deps.Blobs != nil {
		if err := c.deps.Messages.MarkBlobRelease(ctx, msg.File.BlobKey); err != nil {
			return models.Message{}, classify(err)
		}
	}
	if err := c.deps.Messages.Delete(ctx, groupID, messageID); err != nil {
		return models.Message{}, classify(err)
	}
	if s := c.current(groupID); s != nil {
		s.overlay.remove(messageID)
	}
	if msg.File != nil {
		if _, err := sweeper.ReleaseBlobs(ctx, c.deps.Messages, c.deps.Blobs, []string{msg.File.BlobKey}, now); err != nil {
			// the release marker stays, so the next sweep retries
			jww.WARN.Printf("blob release failed key=%s: %v", msg.File.BlobKey, err)
		}
	}

	c.publish(groupID, models.EventMessageDeleted, models.MessageDeletion{MessageID: messageID})
	return msg, nil
}

// React toggles the caller in the reactor set of emoji on a message.
func (c *Controller) React(ctx context.Context, groupID, messageID, emoji string) (models.Message, error) {
	groupID, err := c.resolveGroup(groupID)
	if err != nil {
		return models.Message{}, err
	}
	if err := ValidateReaction(emoji); err != nil {
		return models.Message{}, err
	}
	if _, _, err := c.member(ctx, groupID); err != nil {
		return models.Message{}, err
	}

	now := c.deps.Now()
	msg, err := c.deps.Messages.Update(ctx, groupID, messageID, func(m *models.Message) error {
		if m.Expired(now) {
			return ErrMessageNotFound
		}
		m.ToggleReaction(emoji, c.userID)
		return nil
	})
	if err != nil {
		return models.Message{}, classify(err)
	}
	return msg, nil
}

// ValidateReaction accepts exactly one emoji and nothing else.
func ValidateReaction(reaction string) error {
	emojis := gomoji.CollectAll(reaction)
	if len(emojis) != 1 || emojis[0].Character != reaction {
		return ErrInvalidReaction
	}
	return nil
}

// member loads the caller and the group and checks membership.
func (c *Controller) member(ctx context.Context, groupID string) (models.User, models.Group, error) {
	group, err := c.deps.Groups.Get(ctx, groupID)
	if err != nil {
		return models.User{}, models.Group{}, classify(err)
	}
	if !group.IsMember(c.userID) {
		return models.User{}, models.Group{}, ErrNotMember
	}
	user, err := c.deps.Users.Get(ctx, c.userID)
	if err != nil {
		return models.User{}, models.Group{}, classify(err)
	}
	return user, group, nil
}

// publish hands an event to the relay in the background. Events raised for
// the active group are tied to its session and dropped once the session ends.
func (c *Controller) publish(groupID, eventType string, payload any) {
	if c.deps.Publisher == nil {
		return
	}
	env, err := relay.NewEnvelope(eventType, groupID, c.userID, payload, c.deps.Now())
	if err != nil {
		jww.WARN.Printf("relay envelope failed event=%s: %v", eventType, err)
		return
	}

	s := c.current(groupID)
	go func() {
		if s != nil {
			if !c.isCurrent(s.gen) {
				return
			}
			c.deps.Publisher.Publish(s.ctx, env)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		c.deps.Publisher.Publish(ctx, env)
	}()
}

// OpenBlob returns the bytes of a shared file. The caller must belong to a
// group where a live message references the blob.
func (c *Controller) OpenBlob(ctx context.Context, blobKey string) (models.FileRef, []byte, error) {
	if blobKey == "" || c.deps.Blobs == nil {
		return models.FileRef{}, nil, ErrBlobNotFound
	}
	groups, err := c.deps.Groups.ListForUser(ctx, c.userID)
	if err != nil {
		return models.FileRef{}, nil, classify(err)
	}

	now := c.deps.Now()
	for _, g := range groups {
		msgs, err := c.deps.Messages.List(ctx, g.ID)
		if err != nil {
			return models.FileRef{}, nil, classify(err)
		}
		for _, m := range msgs {
			if m.File == nil || m.File.BlobKey != blobKey || m.Expired(now) {
				continue
			}
			data, err := c.deps.Blobs.Get(ctx, blobKey)
			if err != nil {
				return models.FileRef{}, nil, &storageError{cause: err}
			}
			if data == nil {
				return models.FileRef{}, nil, ErrBlobNotFound
			}
			return *m.File, data, nil
		}
	}
	return models.FileRef{}, nil, ErrBlobNotFound
}
