package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"collab-lab/internal/models"
	"collab-lab/internal/relay"
)

type TransportMock struct {
	mock.Mock
}

func (m *TransportMock) Publish(ctx context.Context, topic string, env models.Envelope) error {
	args := m.Called(ctx, topic, env)
	return args.Error(0)
}

func (m *TransportMock) Subscribe(ctx context.Context, topic string) (<-chan models.Envelope, error) {
	args := m.Called(ctx, topic)
	var ch <-chan models.Envelope
	if val := args.Get(0); val != nil {
		ch = val.(<-chan models.Envelope)
	}
	return ch, args.Error(1)
}

var _ relay.Transport = (*TransportMock)(nil)
