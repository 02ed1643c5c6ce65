package telemetry

import (
	"context"
	"time"

	jww "github.com/spf13/jwalterweatherman"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// AuditEmitter records moderation actions (kick, mute, delete) on the broker.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	now         func() time.Time
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level    string `json:"level"`
	Action   string `json:"action"`
	GroupID  string `json:"group_id,omitempty"`
	TargetID string `json:"target_id,omitempty"`
	Text     string `json:"text"`
}

// AuditEvent describes one action to record.
type AuditEvent struct {
	Level     string
	Action    string
	GroupID   string
	TargetID  string
	Text      string
	RequestID string
	UserID    string
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		now:         time.Now,
	}
}

// Emit never fails the caller; publish errors are only logged.
func (e *AuditEmitter) Emit(ctx context.Context, ev AuditEvent) {
	if e == nil || e.publisher == nil {
		return
	}

	jww.DEBUG.Printf("audit emit: level=%s action=%s group_id=%s request_id=%s user_id=%s text=%q",
		ev.Level, ev.Action, ev.GroupID, ev.RequestID, ev.UserID, ev.Text)
	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    e.now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     ev.RequestID,
		Payload: AuditPayload{
			Level:    ev.Level,
			Action:   ev.Action,
			GroupID:  ev.GroupID,
			TargetID: ev.TargetID,
			Text:     ev.Text,
		},
	}
	if ev.UserID != "" {
		userID := ev.UserID
		envelope.UserID = &userID
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		jww.WARN.Printf("audit publish failed: %v", err)
	}
}
