package syncer

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"collab-lab/internal/mocks"
	"collab-lab/internal/models"
	"collab-lab/internal/presence"
	"collab-lab/internal/relay"
	"collab-lab/internal/repositories"
	"collab-lab/internal/store"
)

var t0 = time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	kv        store.KeyedStore
	blobs     *mocks.CountingBlobStore
	users     *repositories.UserRepo
	groups    *repositories.GroupRepo
	messages  *repositories.MessageRepo
	transport *relay.MemoryTransport
	clock     *fakeClock
	deps      Deps
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithStore(t, store.NewMemoryStore())
}

func newHarnessWithStore(t *testing.T, kv store.KeyedStore) *harness {
	h := &harness{
		kv:        kv,
		blobs:     mocks.NewCountingBlobStore(store.NewMemoryBlobStore()),
		users:     repositories.NewUserRepo(kv),
		groups:    repositories.NewGroupRepo(kv),
		messages:  repositories.NewMessageRepo(kv),
		transport: relay.NewMemoryTransport(),
		clock:     &fakeClock{now: t0},
	}
	tracker, err := presence.NewTracker(h.users, 10*time.Second, 30*time.Second, h.clock.Now)
	require.NoError(t, err)
	h.deps = Deps{
		Store:     kv,
		Blobs:     h.blobs,
		Users:     h.users,
		Groups:    h.groups,
		Messages:  h.messages,
		Presence:  tracker,
		Transport: h.transport,
		Publisher: relay.NewPublisher(h.transport, 1000),
		Config: Config{
			MessageTTL:     time.Hour,
			PollInterval:   20 * time.Millisecond,
			BackoffInitial: time.Millisecond,
			BackoffMax:     10 * time.Millisecond,
			PlanLimits:     models.DefaultPlanLimits(),
		},
		Now: h.clock.Now,
	}
	return h
}

func (h *harness) user(t *testing.T, id string, plan models.Plan) {
	require.NoError(t, h.users.Put(context.Background(), models.User{ID: id, Username: "user-" + id, Plan: plan}))
}

func (h *harness) group(t *testing.T, id, owner string, members ...string) {
	g := models.Group{ID: id, Name: "lab " + id, OwnerID: owner, MemberIDs: append([]string{owner}, members...), CreatedAt: t0}
	require.NoError(t, h.groups.Put(context.Background(), g))
}

func (h *harness) device(t *testing.T, userID string) *Controller {
	c := NewController(h.deps, userID)
	t.Cleanup(c.Close)
	return c
}

func messageIDs(view models.GroupView) []string {
	ids := make([]string, len(view.Messages))
	for i, m := range view.Messages {
		ids[i] = m.ID
	}
	return ids
}

func texts(view models.GroupView) []string {
	out := make([]string, len(view.Messages))
	for i, m := range view.Messages {
		out[i] = m.Text
	}
	return out
}

// laggingStore hides freshly written message keys from readers until
// released, like a replica that has not caught up yet.
type laggingStore struct {
	*store.MemoryStore

	mu     sync.Mutex
	lag    bool
	hidden map[string]bool
}

func newLaggingStore() *laggingStore {
	return &laggingStore{MemoryStore: store.NewMemoryStore(), hidden: map[string]bool{}}
}

func (s *laggingStore) setLag(on bool) {
	s.mu.Lock()
	s.lag = on
	if !on {
		s.hidden = map[string]bool{}
	}
	s.mu.Unlock()
}

func (s *laggingStore) Put(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	if s.lag && strings.HasPrefix(key, store.MessagePrefix) {
		s.hidden[key] = true
	}
	s.mu.Unlock()
	return s.MemoryStore.Put(ctx, key, value)
}

func (s *laggingStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	hidden := s.hidden[key]
	s.mu.Unlock()
	if hidden {
		return nil, nil
	}
	return s.MemoryStore.Get(ctx, key)
}

func (s *laggingStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := s.MemoryStore.Keys(ctx, prefix)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := keys[:0]
	for _, k := range keys {
		if !s.hidden[k] {
			out = append(out, k)
		}
	}
	return out, nil
}

// failingMessageStore rejects message writes.
type failingMessageStore struct {
	*store.MemoryStore
}

func (s failingMessageStore) Put(ctx context.Context, key string, value []byte) error {
	if strings.HasPrefix(key, store.MessagePrefix) {
		return store.Unavailable(context.DeadlineExceeded, "put")
	}
	return s.MemoryStore.Put(ctx, key, value)
}
