package relay

import (
	"context"
	"sync"

	"collab-lab/internal/models"
)

const memoryBuffer = 64

// MemoryTransport fans envelopes out to subscribers inside one process.
// Slow subscribers lose events rather than block publishers; polling picks
// up whatever they missed.
type MemoryTransport struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]chan models.Envelope
}

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{subs: map[string]map[int]chan models.Envelope{}}
}

func (t *MemoryTransport) Publish(_ context.Context, topic string, env models.Envelope) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, ch := range t.subs[topic] {
		select {
		case ch <- env:
		default:
		}
	}
	return nil
}

func (t *MemoryTransport) Subscribe(ctx context.Context, topic string) (<-chan models.Envelope, error) {
	ch := make(chan models.Envelope, memoryBuffer)

	t.mu.Lock()
	id := t.nextID
	t.nextID++
	if t.subs[topic] == nil {
		t.subs[topic] = map[int]chan models.Envelope{}
	}
	t.subs[topic][id] = ch
	t.mu.Unlock()

	go func() {
		<-ctx.Done()
		t.mu.Lock()
		delete(t.subs[topic], id)
		if len(t.subs[topic]) == 0 {
			delete(t.subs, topic)
		}
		t.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

// Subscribers returns the number of open subscriptions on topic.
func (t *MemoryTransport) Subscribers(topic string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs[topic])
}
