package models

import "time"

// PresenceStatus is the derived presence of a member.
type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
	StatusInCall  PresenceStatus = "in-call"
)

// MemberView is a group member as shown to the UI.
type MemberView struct {
	UserID    string         `json:"user_id"`
	Username  string         `json:"username"`
	ChatColor string         `json:"chat_color,omitempty"`
	Status    PresenceStatus `json:"status"`
	Muted     bool           `json:"muted"`
	Owner     bool           `json:"owner"`
}

// VisibleMessage is a message plus its resolved reply preview.
type VisibleMessage struct {
	Message
	Pending bool     `json:"pending"`
	ReplyTo *Message `json:"reply_to,omitempty"`
}

// GroupView is the reconciled state of a group handed to subscribers.
type GroupView struct {
	Group           Group            `json:"group"`
	Messages        []VisibleMessage `json:"messages"`
	Members         []MemberView     `json:"members"`
	FriendIDs       []string         `json:"friend_ids"`
	PendingRequests []string         `json:"pending_requests"`
	GeneratedAt     time.Time        `json:"generated_at"`
}
