package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"collab-lab/internal/middleware"
	"collab-lab/internal/models"
	"collab-lab/internal/presence"
	"collab-lab/internal/relay"
	"collab-lab/internal/repositories"
	"collab-lab/internal/store"
	"collab-lab/internal/syncer"
)

func wsURL(server *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + path
}

func newRelayServer(t *testing.T) (*Hub, *httptest.Server) {
	gin.SetMode(gin.TestMode)
	hub := NewHub()
	rs := NewRelayServer(hub)
	r := gin.New()
	r.POST("/relay/:topic", rs.Publish)
	r.GET("/relay/:topic/ws", rs.Stream)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return hub, server
}

func TestRelayServerFansOut(t *testing.T) {
	hub, server := newRelayServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "/relay/lab.G/ws"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Clients("lab.G") == 1 }, time.Second, 5*time.Millisecond)

	env, err := relay.NewEnvelope(models.EventMessageDeleted, "G", "u2", models.MessageDeletion{MessageID: "m1"}, time.Now())
	require.NoError(t, err)
	body, err := json.Marshal(env)
	require.NoError(t, err)

	resp, err := http.Post(server.URL+"/relay/lab.G", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got models.Envelope
	require.NoError(t, conn.ReadJSON(&got))
	require.Equal(t, env.ID, got.ID)
	require.Equal(t, models.EventMessageDeleted, got.EventType)
}

func TestRelayServerRejectsMismatchedTopic(t *testing.T) {
	_, server := newRelayServer(t)

	env, err := relay.NewEnvelope(models.EventMessageDeleted, "H", "u2", models.MessageDeletion{MessageID: "m1"}, time.Now())
	require.NoError(t, err)
	body, err := json.Marshal(env)
	require.NoError(t, err)

	resp, err := http.Post(server.URL+"/relay/lab.G", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(server.URL+"/relay/lab.G", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWSTransportAgainstRelayServer(t *testing.T) {
	hub, server := newRelayServer(t)
	transport := relay.NewWSTransport(server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := transport.Subscribe(ctx, "lab.G")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Clients("lab.G") == 1 }, time.Second, 5*time.Millisecond)

	env, err := relay.NewEnvelope(models.EventPresenceJoin, "G", "u2", models.PresenceJoin{UserID: "u2"}, time.Now())
	require.NoError(t, err)
	require.NoError(t, transport.Publish(context.Background(), "lab.G", env))

	select {
	case got := <-events:
		require.Equal(t, env.ID, got.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("envelope not streamed back")
	}

	cancel()
	for range events {
	}
	require.Eventually(t, func() bool { return hub.Clients("lab.G") == 0 }, time.Second, 5*time.Millisecond)
}

func TestGroupViewStream(t *testing.T) {
	gin.SetMode(gin.TestMode)
	kv := store.NewMemoryStore()
	users := repositories.NewUserRepo(kv)
	groups := repositories.NewGroupRepo(kv)
	tracker, err := presence.NewTracker(users, 10*time.Second, 30*time.Second, nil)
	require.NoError(t, err)
	manager := syncer.NewManager(syncer.Deps{
		Store:    kv,
		Blobs:    store.NewMemoryBlobStore(),
		Users:    users,
		Groups:   groups,
		Messages: repositories.NewMessageRepo(kv),
		Presence: tracker,
		Config:   syncer.Config{MessageTTL: time.Hour, PollInterval: 50 * time.Millisecond},
	})
	defer manager.Close()

	ctx := context.Background()
	require.NoError(t, users.Put(ctx, models.User{ID: "u1", Username: "ada"}))
	require.NoError(t, users.Put(ctx, models.User{ID: "u2", Username: "eve"}))
	require.NoError(t, groups.Put(ctx, models.Group{ID: "G", Name: "Chem", OwnerID: "u1", MemberIDs: []string{"u1"}}))

	hub := NewHub()
	r := gin.New()
	r.GET("/ws/groups/:group_id", middleware.Identity(users), NewGroupWebSocketHandler(hub, manager, tracker).Handle)
	server := httptest.NewServer(r)
	defer server.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(server, "/ws/groups/G?user_id=u2"), nil)
	require.Error(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "/ws/groups/G?user_id=u1"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))

	var first ViewEvent
	require.NoError(t, conn.ReadJSON(&first))
	require.Equal(t, "view", first.Type)
	require.Empty(t, first.View.Messages)

	ctrl, err := manager.For(ctx, "u1")
	require.NoError(t, err)
	msg, err := ctrl.SendMessage(ctx, "G", syncer.SendRequest{Text: "streamed"})
	require.NoError(t, err)

	for {
		var ev ViewEvent
		require.NoError(t, conn.ReadJSON(&ev))
		if len(ev.View.Messages) == 1 {
			require.Equal(t, msg.ID, ev.View.Messages[0].ID)
			break
		}
	}

	require.Eventually(t, func() bool {
		u, err := users.Get(ctx, "u1")
		return err == nil && !u.LastSeenAt.IsZero()
	}, 2*time.Second, 10*time.Millisecond, "an open stream counts as presence")
}
