// Package redisstore backs the keyed store and the blob store with Redis so
// that several daemons (tabs, devices) share one state. Writes are announced
// on a pub/sub channel which every instance listens on.
package redisstore

import (
	"context"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
	jww "github.com/spf13/jwalterweatherman"

	"collab-lab/internal/store"
)

const (
	// ChangesChannel carries the key of every write.
	ChangesChannel = "collab-lab:changes"

	keyNamespace  = "collab-lab:kv:"
	blobNamespace = "collab-lab:blob:"
	scanBatch     = 256
)

// Store is a KeyedStore on Redis.
type Store struct {
	store.Notifier
	rdb *redis.Client
}

// New wraps an existing client.
func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.rdb.Get(ctx, keyNamespace+key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, store.Unavailable(err, "redis get")
	}
	return v, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := s.rdb.Set(ctx, keyNamespace+key, value, 0).Err(); err != nil {
		return store.Unavailable(err, "redis set")
	}
	s.announce(ctx, key)
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	n, err := s.rdb.Del(ctx, keyNamespace+key).Result()
	if err != nil {
		return store.Unavailable(err, "redis del")
	}
	if n > 0 {
		s.announce(ctx, key)
	}
	return nil
}

func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	match := keyNamespace + escapeGlob(prefix) + "*"
	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := s.rdb.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return nil, store.Unavailable(err, "redis scan")
		}
		for _, k := range batch {
			keys = append(keys, strings.TrimPrefix(k, keyNamespace))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	sort.Strings(keys)
	// SCAN may return a key more than once.
	return compact(keys), nil
}

// Listen relays the shared change feed to local subscribers until ctx is
// done. Writes made by this instance come back through the feed as well.
func (s *Store) Listen(ctx context.Context) error {
	sub := s.rdb.Subscribe(ctx, ChangesChannel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return store.Unavailable(err, "redis subscribe")
	}
	jww.INFO.Printf("redis change feed subscribed channel=%s", ChangesChannel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.Notify(msg.Payload)
		}
	}
}

func (s *Store) announce(ctx context.Context, key string) {
	if err := s.rdb.Publish(ctx, ChangesChannel, key).Err(); err != nil {
		// The write itself succeeded; other instances catch up on their next poll.
		jww.WARN.Printf("redis change publish failed key=%s: %v", key, err)
		s.Notify(key)
	}
}

// BlobStore keeps file payloads as plain Redis strings.
type BlobStore struct {
	rdb *redis.Client
}

// NewBlobStore wraps an existing client.
func NewBlobStore(rdb *redis.Client) *BlobStore {
	return &BlobStore{rdb: rdb}
}

func (b *BlobStore) Put(ctx context.Context, blobKey string, data []byte) error {
	if err := b.rdb.Set(ctx, blobNamespace+blobKey, data, 0).Err(); err != nil {
		return store.Unavailable(err, "redis blob set")
	}
	return nil
}

func (b *BlobStore) Get(ctx context.Context, blobKey string) ([]byte, error) {
	v, err := b.rdb.Get(ctx, blobNamespace+blobKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, store.Unavailable(err, "redis blob get")
	}
	return v, nil
}

func (b *BlobStore) Delete(ctx context.Context, blobKey string) error {
	if err := b.rdb.Del(ctx, blobNamespace+blobKey).Err(); err != nil {
		return store.Unavailable(err, "redis blob del")
	}
	return nil
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func compact(sorted []string) []string {
	out := sorted[:0]
	for i, k := range sorted {
		if i > 0 && k == sorted[i-1] {
			continue
		}
		out = append(out, k)
	}
	return out
}
