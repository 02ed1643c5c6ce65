// Package relay propagates lab events between devices over a best-effort
// publish/subscribe channel. The shared store stays authoritative; the relay
// only shortens the time until other devices see a change.
package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"go.uber.org/ratelimit"

	"collab-lab/internal/models"
	"collab-lab/internal/observability"
)

// Transport is a topic based publish/subscribe channel.
type Transport interface {
	Publish(ctx context.Context, topic string, env models.Envelope) error
	// Subscribe streams the envelopes published on topic. The channel is
	// closed when the stream ends, either because ctx is done or because the
	// underlying connection dropped.
	Subscribe(ctx context.Context, topic string) (<-chan models.Envelope, error)
}

// NewEnvelope wraps payload into an envelope with a fresh id.
func NewEnvelope(eventType, groupID, senderID string, payload any, now time.Time) (models.Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return models.Envelope{}, errors.Wrapf(err, "encode %s payload", eventType)
	}
	return models.Envelope{
		ID:        uuid.NewString(),
		EventType: eventType,
		GroupID:   groupID,
		SenderID:  senderID,
		SentAt:    now.UTC(),
		Payload:   raw,
	}, nil
}

// Publisher sends envelopes through a transport at a bounded rate. Failures
// are logged and counted, never returned to the operation that caused them.
type Publisher struct {
	transport Transport
	limiter   ratelimit.Limiter
}

// NewPublisher allows at most perSecond publishes per second.
func NewPublisher(transport Transport, perSecond int) *Publisher {
	if perSecond <= 0 {
		perSecond = 20
	}
	return &Publisher{transport: transport, limiter: ratelimit.New(perSecond)}
}

// Publish reports whether the envelope was handed to the transport.
func (p *Publisher) Publish(ctx context.Context, env models.Envelope) bool {
	if p == nil || p.transport == nil {
		return false
	}
	p.limiter.Take()
	if ctx.Err() != nil {
		return false
	}
	if err := p.transport.Publish(ctx, models.RelayTopic(env.GroupID), env); err != nil {
		observability.IncRelayPublishError()
		jww.WARN.Printf("relay publish dropped event=%s group=%s: %v", env.EventType, env.GroupID, err)
		return false
	}
	return true
}
