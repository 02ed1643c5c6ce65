package ws

import (
	"context"
	"encoding/json"

	"github.com/gin-gonic/gin"
	jww "github.com/spf13/jwalterweatherman"
	"go.opentelemetry.io/otel/attribute"

	"collab-lab/internal/handlers"
	"collab-lab/internal/middleware"
	"collab-lab/internal/models"
	"collab-lab/internal/observability"
	"collab-lab/internal/presence"
	"collab-lab/internal/syncer"
)

// ViewEvent is one frame of the group view stream.
type ViewEvent struct {
	Type string           `json:"type"`
	View models.GroupView `json:"view"`
}

// ViewTopic is the hub room of the view streams of a group.
func ViewTopic(groupID string) string {
	return "view." + groupID
}

// GroupWebSocketHandler streams reconciled group views to a UI.
type GroupWebSocketHandler struct {
	hub      *Hub
	manager  *syncer.Manager
	presence *presence.Tracker
}

// NewGroupWebSocketHandler constructs a GroupWebSocketHandler. tracker may be
// nil, in which case open streams do not count as presence.
func NewGroupWebSocketHandler(hub *Hub, manager *syncer.Manager, tracker *presence.Tracker) *GroupWebSocketHandler {
	return &GroupWebSocketHandler{hub: hub, manager: manager, presence: tracker}
}

// Handle upgrades the connection and keeps the client's view of the group
// current until the client goes away.
func (h *GroupWebSocketHandler) Handle(c *gin.Context) {
	groupID := c.Param("group_id")
	userID := middleware.UserID(c)

	ctx, span := observability.Tracer("ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	span.SetAttributes(attribute.String("group_id", groupID), attribute.String("user_id", userID))

	ctrl, err := h.manager.For(ctx, userID)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	if _, err := ctrl.View(ctx, groupID); err != nil {
		handlers.RespondError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		jww.DEBUG.Printf("view upgrade failed group=%s: %v", groupID, err)
		return
	}
	topic := ViewTopic(groupID)
	info := newConnInfo(c.Request, "group", topic, userID, span.SpanContext().TraceID().String())
	h.hub.AddClient(topic, conn, info)

	bg := context.WithoutCancel(ctx)
	observability.IncWSActive("group")
	publishWSEvent(bg, info, "ws_connect", "")

	streamCtx, cancel := context.WithCancel(bg)
	if h.presence != nil {
		go h.presence.Run(streamCtx, userID)
	}

	latest := make(chan models.GroupView, 1)
	unsubscribe := ctrl.SubscribeToGroup(groupID, func(v models.GroupView) {
		offerLatest(latest, v)
	})

	go func() {
		for {
			select {
			case <-streamCtx.Done():
				return
			case v := <-latest:
				payload, err := json.Marshal(ViewEvent{Type: "view", View: v})
				if err != nil {
					jww.ERROR.Printf("view encode failed group=%s: %v", groupID, err)
					continue
				}
				if err := h.hub.Send(topic, conn, payload); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	go func() {
		var closeReason string
		defer func() {
			cancel()
			unsubscribe()
			h.hub.RemoveClient(topic, conn)
			observability.DecWSActive("group")
			publishWSEvent(bg, info, "ws_disconnect", closeReason)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closeReason = err.Error()
				if isUnexpectedClose(err) {
					publishWSEvent(bg, info, "ws_error", closeReason)
				}
				return
			}
		}
	}()
}

// offerLatest replaces whatever view is still waiting with v.
func offerLatest(ch chan models.GroupView, v models.GroupView) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
