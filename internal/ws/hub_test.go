package ws

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHubAddAndRemoveClient(t *testing.T) {
	hub := NewHub()

	hub.AddClient("lab.G", nil, ConnInfo{ConnID: "c1"})
	require.Equal(t, 1, hub.Clients("lab.G"))
	require.Len(t, hub.rooms, 1)

	hub.RemoveClient("lab.G", nil)
	require.Zero(t, hub.Clients("lab.G"))
	require.Empty(t, hub.rooms)
}

func TestHubBroadcastToEmptyRoom(t *testing.T) {
	hub := NewHub()
	require.Zero(t, hub.Broadcast("lab.nobody", []byte(`{}`)))
	require.Error(t, hub.Send("lab.nobody", nil, []byte(`{}`)))
}
