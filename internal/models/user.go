package models

import "time"

// Plan is the subscription tier of a user. It bounds the size of shared files.
type Plan string

const (
	PlanFree    Plan = "free"
	PlanPro     Plan = "pro"
	PlanPremium Plan = "premium"
	PlanGuest   Plan = "guest"
)

// Valid reports whether p is a known plan.
func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanPro, PlanPremium, PlanGuest:
		return true
	}
	return false
}

// PlanLimits maps a plan to its maximum file size in bytes.
type PlanLimits map[Plan]int64

// DefaultPlanLimits returns the built-in upload limit of every plan.
func DefaultPlanLimits() PlanLimits {
	return PlanLimits{
		PlanFree:    10 * 1024 * 1024,
		PlanPro:     100 * 1024 * 1024,
		PlanPremium: 1024 * 1024 * 1024,
		PlanGuest:   5 * 1024 * 1024,
	}
}

// User is a lab participant.
type User struct {
	ID                      string    `json:"id"`
	Username                string    `json:"username"`
	AvatarRef               string    `json:"avatar_ref"`
	Plan                    Plan      `json:"plan"`
	FriendIDs               []string  `json:"friend_ids"`
	PendingFriendRequestIDs []string  `json:"pending_friend_request_ids"`
	LastSeenAt              time.Time `json:"last_seen_at"`
	ChatColor               string    `json:"chat_color"`
}

// IsFriend reports whether otherID is in the user's friend set.
func (u User) IsFriend(otherID string) bool {
	return contains(u.FriendIDs, otherID)
}

// HasPendingRequestFrom reports whether otherID asked this user for friendship.
func (u User) HasPendingRequestFrom(otherID string) bool {
	return contains(u.PendingFriendRequestIDs, otherID)
}

// AddFriend adds otherID to the friend set and clears any pending request from it.
func (u *User) AddFriend(otherID string) {
	if !u.IsFriend(otherID) {
		u.FriendIDs = append(u.FriendIDs, otherID)
	}
	u.PendingFriendRequestIDs, _ = without(u.PendingFriendRequestIDs, otherID)
}

// AddPendingRequest records a friend request from otherID.
func (u *User) AddPendingRequest(otherID string) bool {
	if u.IsFriend(otherID) || u.HasPendingRequestFrom(otherID) {
		return false
	}
	u.PendingFriendRequestIDs = append(u.PendingFriendRequestIDs, otherID)
	return true
}

// RemovePendingRequest drops a pending request from otherID.
func (u *User) RemovePendingRequest(otherID string) bool {
	var removed bool
	u.PendingFriendRequestIDs, removed = without(u.PendingFriendRequestIDs, otherID)
	return removed
}

// ChatPalette is the set of colors handed out to users who did not pick one.
var ChatPalette = []string{
	"#e57373", "#f06292", "#ba68c8", "#9575cd", "#7986cb", "#64b5f6",
	"#4fc3f7", "#4dd0e1", "#4db6ac", "#81c784", "#aed581", "#ffb74d",
}

// PaletteColor picks a stable palette color for seed.
func PaletteColor(seed string) string {
	var h uint32 = 2166136261
	for i := 0; i < len(seed); i++ {
		h ^= uint32(seed[i])
		h *= 16777619
	}
	return ChatPalette[h%uint32(len(ChatPalette))]
}
