package relay_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"collab-lab/internal/mocks"
	"collab-lab/internal/models"
	"collab-lab/internal/relay"
	"collab-lab/internal/repositories"
	"collab-lab/internal/store"
)

func TestPublisherSwallowsFailures(t *testing.T) {
	transport := new(mocks.TransportMock)
	transport.On("Publish", mock.Anything, "lab.G", mock.AnythingOfType("models.Envelope")).
		Return(errors.New("relay down")).Once()

	p := relay.NewPublisher(transport, 100)
	env, err := relay.NewEnvelope(models.EventPresenceJoin, "G", "u1", models.PresenceJoin{UserID: "u1"}, time.Now())
	require.NoError(t, err)

	assert.False(t, p.Publish(context.Background(), env))
	transport.AssertExpectations(t)

	var nilPublisher *relay.Publisher
	assert.False(t, nilPublisher.Publish(context.Background(), env))
}

func TestBridgeKeepsRetryingFailedSubscribe(t *testing.T) {
	transport := new(mocks.TransportMock)
	attempts := make(chan struct{}, 8)
	transport.On("Subscribe", mock.Anything, "lab.G").
		Run(func(mock.Arguments) {
			select {
			case attempts <- struct{}{}:
			default:
			}
		}).
		Return(nil, errors.New("relay down"))

	b := relay.NewBridge(relay.BridgeConfig{
		Transport:      transport,
		GroupID:        "G",
		LocalUserID:    "u1",
		BackoffInitial: time.Millisecond,
		BackoffMax:     2 * time.Millisecond,
	})
	b.Start()
	for i := 0; i < 3; i++ {
		select {
		case <-attempts:
		case <-time.After(time.Second):
			t.Fatal("bridge stopped retrying")
		}
	}
	b.Stop()
}

func TestApplyFailsWhenGroupLookupFails(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	groups.On("Get", mock.Anything, "G").
		Return(nil, store.Unavailable(errors.New("timeout"), "get group")).Once()

	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	b := relay.NewBridge(relay.BridgeConfig{
		Messages:    repositories.NewMessageRepo(store.NewMemoryStore()),
		Groups:      groups,
		GroupID:     "G",
		LocalUserID: "u1",
		Now:         func() time.Time { return now },
	})
	msg := models.Message{ID: "m1", GroupID: "G", SenderID: "u2", Text: "hi", Kind: models.KindText, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	env, err := relay.NewEnvelope(models.EventMessageSent, "G", "u2", msg, now)
	require.NoError(t, err)

	assert.Equal(t, relay.OutcomeFailed, b.Apply(context.Background(), env))
	groups.AssertExpectations(t)
}
