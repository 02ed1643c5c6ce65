package models

import (
	"sort"
	"time"
)

// SystemSenderID is the sender of messages generated by the engine itself.
const SystemSenderID = "system"

// MessageKind distinguishes plain text, file and system messages.
type MessageKind string

const (
	KindText   MessageKind = "text"
	KindFile   MessageKind = "file"
	KindSystem MessageKind = "system"
)

// FileRef points at the blob holding a shared file's bytes.
type FileRef struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	BlobKey     string `json:"blob_key"`
}

// Message represents a self-destructing message in a group.
type Message struct {
	ID        string              `json:"id"`
	GroupID   string              `json:"group_id"`
	SenderID  string              `json:"sender_id"`
	Text      string              `json:"text"`
	Kind      MessageKind         `json:"kind"`
	File      *FileRef            `json:"file,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	ExpiresAt time.Time           `json:"expires_at"`
	Color     string              `json:"color,omitempty"`
	ReplyToID string              `json:"reply_to_id,omitempty"`
	Reactions map[string][]string `json:"reactions,omitempty"`
	Edited    bool                `json:"edited"`
}

// Expired reports whether the message must no longer be readable at now.
// A message is live only while its expiry lies strictly in the future.
func (m Message) Expired(now time.Time) bool {
	return !m.ExpiresAt.After(now)
}

// ToggleReaction adds userID to the reactors of emoji, or removes it when it
// is already there. Emoji left without reactors are pruned. It reports
// whether the user is a reactor after the call.
func (m *Message) ToggleReaction(emoji, userID string) bool {
	if m.Reactions == nil {
		m.Reactions = map[string][]string{}
	}
	reactors, removed := without(m.Reactions[emoji], userID)
	if removed {
		if len(reactors) == 0 {
			delete(m.Reactions, emoji)
		} else {
			m.Reactions[emoji] = reactors
		}
	} else {
		m.Reactions[emoji] = append(m.Reactions[emoji], userID)
	}
	if len(m.Reactions) == 0 {
		m.Reactions = nil
	}
	return !removed
}

// SortMessages orders messages by creation time with the id as tiebreak.
func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}
