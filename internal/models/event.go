package models

import (
	"encoding/json"
	"time"
)

// Relay event types.
const (
	EventMessageSent    = "message.sent"
	EventMessageEdited  = "message.edited"
	EventMessageDeleted = "message.deleted"
	EventPresenceJoin   = "presence.join"
)

// Envelope is the JSON event exchanged over the relay.
type Envelope struct {
	ID        string          `json:"id"`
	EventType string          `json:"eventType"`
	GroupID   string          `json:"groupId"`
	SenderID  string          `json:"senderId"`
	SentAt    time.Time       `json:"sentAt"`
	Payload   json.RawMessage `json:"payload"`
}

// MessageEdit is the payload of a message.edited event.
type MessageEdit struct {
	MessageID string `json:"messageId"`
	Text      string `json:"text"`
}

// MessageDeletion is the payload of a message.deleted event.
type MessageDeletion struct {
	MessageID string `json:"messageId"`
}

// PresenceJoin is the payload of a presence.join event.
type PresenceJoin struct {
	UserID string `json:"userId"`
}

// RelayTopic names the relay topic of a group.
func RelayTopic(groupID string) string {
	return "lab." + groupID
}
