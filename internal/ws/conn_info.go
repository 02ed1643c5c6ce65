package ws

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"collab-lab/internal/observability"
)

type ConnInfo struct {
	ConnID      string
	Kind        string
	Topic       string
	UserID      string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func newConnInfo(r *http.Request, kind, topic, userID, traceID string) ConnInfo {
	return ConnInfo{
		ConnID:      uuid.NewString(),
		Kind:        kind,
		Topic:       topic,
		UserID:      userID,
		IP:          observability.IPFromRequest(r),
		RequestID:   observability.RequestIDFromRequest(r),
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
}
