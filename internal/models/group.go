package models

import "time"

// Group represents a lab: a named room with one owner and a member set.
type Group struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	OwnerID        string    `json:"owner_id"`
	MemberIDs      []string  `json:"member_ids"`
	MutedMemberIDs []string  `json:"muted_member_ids"`
	InCallIDs      []string  `json:"in_call_ids"`
	CreatedAt      time.Time `json:"created_at"`
}

// IsMember reports whether userID belongs to the group.
func (g Group) IsMember(userID string) bool {
	return contains(g.MemberIDs, userID)
}

// IsMuted reports whether userID is muted in the group.
func (g Group) IsMuted(userID string) bool {
	return contains(g.MutedMemberIDs, userID)
}

// InCall reports whether userID is currently in the group's call.
func (g Group) InCall(userID string) bool {
	return contains(g.InCallIDs, userID)
}

// AddMember adds userID to the member set. It returns false when the user
// was already a member.
func (g *Group) AddMember(userID string) bool {
	if g.IsMember(userID) {
		return false
	}
	g.MemberIDs = append(g.MemberIDs, userID)
	return true
}

// RemoveMember drops userID from the member, muted and in-call sets.
func (g *Group) RemoveMember(userID string) bool {
	var removed bool
	g.MemberIDs, removed = without(g.MemberIDs, userID)
	g.MutedMemberIDs, _ = without(g.MutedMemberIDs, userID)
	g.InCallIDs, _ = without(g.InCallIDs, userID)
	return removed
}

// SetMuted adds or removes userID from the muted set.
func (g *Group) SetMuted(userID string, muted bool) {
	if muted {
		if !g.IsMuted(userID) {
			g.MutedMemberIDs = append(g.MutedMemberIDs, userID)
		}
		return
	}
	g.MutedMemberIDs, _ = without(g.MutedMemberIDs, userID)
}

// SetInCall adds or removes userID from the in-call set.
func (g *Group) SetInCall(userID string, inCall bool) {
	if inCall {
		if !g.InCall(userID) {
			g.InCallIDs = append(g.InCallIDs, userID)
		}
		return
	}
	g.InCallIDs, _ = without(g.InCallIDs, userID)
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func without(ids []string, id string) ([]string, bool) {
	out := ids[:0:0]
	removed := false
	for _, v := range ids {
		if v == id {
			removed = true
			continue
		}
		out = append(out, v)
	}
	return out, removed
}
