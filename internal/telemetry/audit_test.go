package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	routingKey string
	events     []any
	err        error
}

func (p *capturePublisher) Publish(_ context.Context, routingKey string, event any) error {
	p.routingKey = routingKey
	p.events = append(p.events, event)
	return p.err
}

func (p *capturePublisher) Close() error { return nil }

func TestEmitBuildsEnvelope(t *testing.T) {
	pub := &capturePublisher{}
	e := NewAuditEmitter(pub, "audit.events", "collab-lab", "test")
	e.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	e.Emit(context.Background(), AuditEvent{
		Level:     "info",
		Action:    "member.kicked",
		GroupID:   "ABC123",
		TargetID:  "u2",
		Text:      "u2 removed by owner",
		RequestID: "req-1",
		UserID:    "u1",
	})

	require.Len(t, pub.events, 1)
	env, ok := pub.events[0].(AuditEnvelope)
	require.True(t, ok)
	assert.Equal(t, "audit.events", pub.routingKey)
	assert.Equal(t, "audit_log", env.EventType)
	assert.Equal(t, "2024-05-01T12:00:00Z", env.OccurredAt)
	require.NotNil(t, env.UserID)
	assert.Equal(t, "u1", *env.UserID)
	assert.Equal(t, "member.kicked", env.Payload.Action)
	assert.Equal(t, "u2", env.Payload.TargetID)
}

func TestEmitSwallowsPublishErrorsAndNilEmitter(t *testing.T) {
	pub := &capturePublisher{err: errors.New("broker down")}
	e := NewAuditEmitter(pub, "audit.events", "collab-lab", "test")
	e.Emit(context.Background(), AuditEvent{Action: "member.muted"})
	assert.Len(t, pub.events, 1)

	env := pub.events[0].(AuditEnvelope)
	assert.Nil(t, env.UserID)

	var nilEmitter *AuditEmitter
	assert.NotPanics(t, func() { nilEmitter.Emit(context.Background(), AuditEvent{}) })
}
