package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageExpiredBoundary(t *testing.T) {
	created := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	msg := Message{ID: "m1", CreatedAt: created, ExpiresAt: created.Add(time.Hour)}

	assert.False(t, msg.Expired(created.Add(59*time.Minute)))
	assert.True(t, msg.Expired(created.Add(time.Hour)))
	assert.True(t, msg.Expired(created.Add(2*time.Hour)))
}

func TestToggleReactionPrunesEmptyEmoji(t *testing.T) {
	msg := Message{ID: "m1"}

	require.True(t, msg.ToggleReaction("👍", "u1"))
	require.True(t, msg.ToggleReaction("👍", "u2"))
	assert.Equal(t, []string{"u1", "u2"}, msg.Reactions["👍"])

	require.False(t, msg.ToggleReaction("👍", "u1"))
	assert.Equal(t, []string{"u2"}, msg.Reactions["👍"])

	require.False(t, msg.ToggleReaction("👍", "u2"))
	assert.Nil(t, msg.Reactions)
}

func TestSortMessagesUsesIDAsTiebreak(t *testing.T) {
	at := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	msgs := []Message{
		{ID: "c", CreatedAt: at.Add(time.Second)},
		{ID: "b", CreatedAt: at},
		{ID: "a", CreatedAt: at},
	}

	SortMessages(msgs)

	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestGroupMembership(t *testing.T) {
	g := Group{ID: "g1", OwnerID: "u1", MemberIDs: []string{"u1"}}

	assert.True(t, g.AddMember("u2"))
	assert.False(t, g.AddMember("u2"))

	g.SetMuted("u2", true)
	g.SetMuted("u2", true)
	g.SetInCall("u2", true)
	assert.Equal(t, []string{"u2"}, g.MutedMemberIDs)
	assert.True(t, g.InCall("u2"))

	assert.True(t, g.RemoveMember("u2"))
	assert.False(t, g.IsMember("u2"))
	assert.False(t, g.IsMuted("u2"))
	assert.False(t, g.InCall("u2"))
	assert.False(t, g.RemoveMember("u2"))
	assert.Equal(t, []string{"u1"}, g.MemberIDs)
}

func TestFriendRequests(t *testing.T) {
	u := User{ID: "u1"}

	assert.True(t, u.AddPendingRequest("u2"))
	assert.False(t, u.AddPendingRequest("u2"))
	assert.True(t, u.HasPendingRequestFrom("u2"))

	u.AddFriend("u2")
	assert.True(t, u.IsFriend("u2"))
	assert.False(t, u.HasPendingRequestFrom("u2"))
	assert.False(t, u.AddPendingRequest("u2"))
	assert.False(t, u.RemovePendingRequest("u2"))
}

func TestPlanLimits(t *testing.T) {
	limits := DefaultPlanLimits()

	assert.Equal(t, int64(10*1024*1024), limits[PlanFree])
	assert.Equal(t, int64(5*1024*1024), limits[PlanGuest])
	assert.True(t, PlanPremium.Valid())
	assert.False(t, Plan("enterprise").Valid())
}

func TestPaletteColorIsStable(t *testing.T) {
	first := PaletteColor("user-1")

	assert.Equal(t, first, PaletteColor("user-1"))
	assert.Contains(t, ChatPalette, first)
}

func TestEnvelopeWireFormat(t *testing.T) {
	env := Envelope{
		ID:        "e1",
		EventType: EventPresenceJoin,
		GroupID:   "g1",
		SenderID:  "u1",
		SentAt:    time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC),
		Payload:   json.RawMessage(`{"userId":"u1"}`),
	}

	raw, err := json.Marshal(env)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	for _, key := range []string{"id", "eventType", "groupId", "senderId", "sentAt", "payload"} {
		assert.Contains(t, fields, key)
	}
	assert.Equal(t, "lab.g1", RelayTopic(env.GroupID))
}
