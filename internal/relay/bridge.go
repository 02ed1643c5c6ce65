package relay

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"collab-lab/internal/models"
	"collab-lab/internal/observability"
	"collab-lab/internal/repositories"
)

// Outcomes of applying one received envelope.
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeExpired   = "expired"
	OutcomeFailed    = "failed"
)

// BridgeConfig wires a bridge to one group and one local user.
type BridgeConfig struct {
	Transport   Transport
	Messages    repositories.MessageRepository
	Groups      repositories.GroupRepository
	GroupID     string
	LocalUserID string

	// MessageTTL caps how far past its creation a relayed message may live.
	MessageTTL time.Duration

	BackoffInitial time.Duration
	BackoffMax     time.Duration
	Now            func() time.Time
	// OnApplied runs after an envelope changed the shared store.
	OnApplied func(env models.Envelope)
}

// Bridge subscribes to a group's topic and applies what other devices
// publish to the shared store.
type Bridge struct {
	cfg    BridgeConfig
	tracer trace.Tracer

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

func NewBridge(cfg BridgeConfig) *Bridge {
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = 500 * time.Millisecond
	}
	if cfg.BackoffMax < cfg.BackoffInitial {
		cfg.BackoffMax = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Bridge{cfg: cfg, tracer: observability.Tracer("relay")}
}

// Start spawns the receive loop. Calling Start twice has no effect.
func (b *Bridge) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return
	}
	b.started = true

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.wg.Add(1)
	go b.run(ctx)
}

// Stop cancels the subscription and waits for the receive loop to exit.
// Once Stop returns no further envelope is applied by this bridge.
func (b *Bridge) Stop() {
	b.mu.Lock()
	cancel := b.cancel
	b.cancel = nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	b.wg.Wait()
}

func (b *Bridge) run(ctx context.Context) {
	defer b.wg.Done()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = b.cfg.BackoffInitial
	bo.MaxInterval = b.cfg.BackoffMax
	bo.MaxElapsedTime = 0
	bo.Reset()

	topic := models.RelayTopic(b.cfg.GroupID)
	for {
		delivered, err := b.consume(ctx, topic)
		if ctx.Err() != nil {
			return
		}
		if delivered {
			bo.Reset()
		}
		wait := bo.NextBackOff()
		if err != nil {
			jww.WARN.Printf("relay subscribe failed topic=%s retry_in=%s: %v", topic, wait, err)
		} else {
			jww.DEBUG.Printf("relay stream closed topic=%s retry_in=%s", topic, wait)
		}
		observability.IncRelayReconnect()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (b *Bridge) consume(ctx context.Context, topic string) (bool, error) {
	events, err := b.cfg.Transport.Subscribe(ctx, topic)
	if err != nil {
		return false, err
	}
	delivered := false
	for env := range events {
		if ctx.Err() != nil {
			// drain so the transport can finish closing
			continue
		}
		delivered = true
		b.Apply(ctx, env)
	}
	return delivered, nil
}

// Apply applies one envelope and returns its outcome.
func (b *Bridge) Apply(ctx context.Context, env models.Envelope) string {
	ctx, span := b.tracer.Start(ctx, "relay.apply")
	defer span.End()
	span.SetAttributes(
		attribute.String("event_type", env.EventType),
		attribute.String("group_id", env.GroupID),
	)

	outcome, err := b.apply(ctx, env)
	if err != nil {
		outcome = OutcomeFailed
		jww.WARN.Printf("relay apply failed event=%s id=%s: %v", env.EventType, env.ID, err)
	}
	observability.IncRelayEvent(env.EventType, outcome)
	if outcome == OutcomeApplied && b.cfg.OnApplied != nil {
		b.cfg.OnApplied(env)
	}
	return outcome
}

func (b *Bridge) apply(ctx context.Context, env models.Envelope) (string, error) {
	if env.GroupID != b.cfg.GroupID || env.SenderID == "" || env.SenderID == b.cfg.LocalUserID {
		return OutcomeIgnored, nil
	}

	switch env.EventType {
	case models.EventMessageSent:
		var msg models.Message
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return "", errors.Wrap(err, "decode message")
		}
		if msg.ID == "" || msg.GroupID != b.cfg.GroupID {
			return OutcomeIgnored, nil
		}
		group, ok, err := b.group(ctx)
		if !ok || err != nil {
			return OutcomeIgnored, err
		}
		if !mayPost(group, env.SenderID, msg) {
			return OutcomeIgnored, nil
		}
		if b.cfg.MessageTTL > 0 {
			if limit := msg.CreatedAt.Add(b.cfg.MessageTTL); msg.ExpiresAt.After(limit) {
				msg.ExpiresAt = limit
			}
		}
		if msg.Expired(b.cfg.Now()) {
			return OutcomeExpired, nil
		}
		exists, err := b.cfg.Messages.Exists(ctx, msg.GroupID, msg.ID)
		if err != nil {
			return "", err
		}
		if exists {
			return OutcomeDuplicate, nil
		}
		if err := b.cfg.Messages.Put(ctx, msg); err != nil {
			return "", err
		}
		return OutcomeApplied, nil

	case models.EventMessageEdited:
		var edit models.MessageEdit
		if err := json.Unmarshal(env.Payload, &edit); err != nil {
			return "", errors.Wrap(err, "decode edit")
		}
		group, ok, err := b.group(ctx)
		if !ok || err != nil {
			return OutcomeIgnored, err
		}
		if !group.IsMember(env.SenderID) {
			return OutcomeIgnored, nil
		}
		current, err := b.cfg.Messages.Get(ctx, b.cfg.GroupID, edit.MessageID)
		if errors.Is(err, repositories.ErrMessageNotFound) {
			return OutcomeIgnored, nil
		}
		if err != nil {
			return "", err
		}
		if current.SenderID != env.SenderID || current.Expired(b.cfg.Now()) {
			return OutcomeIgnored, nil
		}
		if current.Edited && current.Text == edit.Text {
			return OutcomeDuplicate, nil
		}
		_, err = b.cfg.Messages.Update(ctx, b.cfg.GroupID, edit.MessageID, func(m *models.Message) error {
			if m.SenderID != env.SenderID {
				return errForeignEdit
			}
			m.Text = edit.Text
			m.Edited = true
			return nil
		})
		if errors.Is(err, repositories.ErrMessageNotFound) || errors.Is(err, errForeignEdit) {
			return OutcomeIgnored, nil
		}
		if err != nil {
			return "", err
		}
		return OutcomeApplied, nil

	case models.EventMessageDeleted:
		var del models.MessageDeletion
		if err := json.Unmarshal(env.Payload, &del); err != nil {
			return "", errors.Wrap(err, "decode deletion")
		}
		group, ok, err := b.group(ctx)
		if !ok || err != nil {
			return OutcomeIgnored, err
		}
		if !group.IsMember(env.SenderID) {
			return OutcomeIgnored, nil
		}
		current, err := b.cfg.Messages.Get(ctx, b.cfg.GroupID, del.MessageID)
		if errors.Is(err, repositories.ErrMessageNotFound) {
			return OutcomeDuplicate, nil
		}
		if err != nil {
			return "", err
		}
		if current.SenderID != env.SenderID && group.OwnerID != env.SenderID {
			return OutcomeIgnored, nil
		}
		if err := b.cfg.Messages.Delete(ctx, b.cfg.GroupID, del.MessageID); err != nil {
			return "", err
		}
		return OutcomeApplied, nil

	case models.EventPresenceJoin:
		var join models.PresenceJoin
		if err := json.Unmarshal(env.Payload, &join); err != nil {
			return "", errors.Wrap(err, "decode join")
		}
		// a device only announces its own user
		if join.UserID == "" || join.UserID != env.SenderID {
			return OutcomeIgnored, nil
		}
		group, ok, err := b.group(ctx)
		if !ok || err != nil {
			return OutcomeIgnored, err
		}
		if group.IsMember(join.UserID) {
			return OutcomeDuplicate, nil
		}
		_, err = b.cfg.Groups.Update(ctx, b.cfg.GroupID, func(g *models.Group) error {
			g.AddMember(join.UserID)
			return nil
		})
		if err != nil {
			return "", err
		}
		return OutcomeApplied, nil
	}
	return OutcomeIgnored, nil
}

var errForeignEdit = errors.New("edit by someone other than the sender")

// group loads the bridge's group. ok is false when the group does not exist.
func (b *Bridge) group(ctx context.Context) (models.Group, bool, error) {
	group, err := b.cfg.Groups.Get(ctx, b.cfg.GroupID)
	if errors.Is(err, repositories.ErrGroupNotFound) {
		return models.Group{}, false, nil
	}
	if err != nil {
		return models.Group{}, false, err
	}
	return group, true, nil
}

// mayPost reports whether the member behind an envelope may have written msg.
// System messages carry the system sender and are relayed by any member;
// everything else must name the relaying user, who must not be muted.
func mayPost(group models.Group, envSender string, msg models.Message) bool {
	if !group.IsMember(envSender) {
		return false
	}
	if msg.Kind == models.KindSystem || msg.SenderID == models.SystemSenderID {
		return msg.Kind == models.KindSystem && msg.SenderID == models.SystemSenderID
	}
	return msg.SenderID == envSender && !group.IsMuted(envSender)
}
