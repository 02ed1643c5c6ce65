package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-lab/internal/store"
)

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `messages/a\*b\?/`, escapeGlob("messages/a*b?/"))
	assert.Equal(t, `x\[1\]\\`, escapeGlob(`x[1]\`))
}

func TestCompact(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, compact([]string{"a", "a", "b", "c", "c"}))
	assert.Empty(t, compact(nil))
}

func newTestClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { rdb.Close() })
	require.NoError(t, rdb.Ping(context.Background()).Err())
	return rdb
}

func TestStoreRoundTripAndChangeFeed(t *testing.T) {
	rdb := newTestClient(t)
	s := New(rdb)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan string, 4)
	s.Subscribe(func(key string) { changed <- key })
	go s.Listen(ctx)
	time.Sleep(100 * time.Millisecond)

	group := "T" + uuid.NewString()[:6]
	key := store.MessageKey(group, "m1")
	require.NoError(t, s.Put(ctx, key, []byte(`{"id":"m1"}`)))
	t.Cleanup(func() { s.Delete(context.Background(), key) })

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"m1"}`, string(got))

	keys, err := s.Keys(ctx, store.GroupMessagesPrefix(group))
	require.NoError(t, err)
	assert.Equal(t, []string{key}, keys)

	select {
	case k := <-changed:
		assert.Equal(t, key, k)
	case <-time.After(2 * time.Second):
		t.Fatal("no change notification received")
	}

	missing, err := s.Get(ctx, store.MessageKey(group, "absent"))
	require.NoError(t, err)
	assert.Nil(t, missing)
}
