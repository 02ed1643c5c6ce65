package ws

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	jww "github.com/spf13/jwalterweatherman"
	"go.opentelemetry.io/otel/attribute"

	"collab-lab/internal/models"
	"collab-lab/internal/observability"
)

// RelayServer lets several daemons share one relay: envelopes POSTed to a
// topic are fanned out to every websocket streaming that topic.
type RelayServer struct {
	hub *Hub
}

// NewRelayServer constructs a RelayServer.
func NewRelayServer(hub *Hub) *RelayServer {
	return &RelayServer{hub: hub}
}

// Publish handles POST /relay/:topic.
func (s *RelayServer) Publish(c *gin.Context) {
	topic := c.Param("topic")

	var env models.Envelope
	if err := c.ShouldBindJSON(&env); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid envelope"})
		return
	}
	if env.ID == "" || env.EventType == "" || models.RelayTopic(env.GroupID) != topic {
		c.JSON(http.StatusBadRequest, gin.H{"error": "envelope does not match topic"})
		return
	}

	payload, err := json.Marshal(env)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode envelope"})
		return
	}
	delivered := s.hub.Broadcast(topic, payload)
	c.JSON(http.StatusAccepted, gin.H{"delivered": delivered})
}

// Stream handles GET /relay/:topic/ws.
func (s *RelayServer) Stream(c *gin.Context) {
	topic := c.Param("topic")

	ctx, span := observability.Tracer("ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	span.SetAttributes(attribute.String("topic", topic))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		jww.DEBUG.Printf("relay upgrade failed topic=%s: %v", topic, err)
		return
	}
	info := newConnInfo(c.Request, "relay", topic, "", span.SpanContext().TraceID().String())
	s.hub.AddClient(topic, conn, info)

	bg := context.WithoutCancel(ctx)
	observability.IncWSActive("relay")
	publishWSEvent(bg, info, "ws_connect", "")

	go func() {
		var closeReason string
		defer func() {
			s.hub.RemoveClient(topic, conn)
			observability.DecWSActive("relay")
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
