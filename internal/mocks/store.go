package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"collab-lab/internal/store"
)

type KeyedStoreMock struct {
	mock.Mock
}

func (m *KeyedStoreMock) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	var v []byte
	if val := args.Get(0); val != nil {
		v = val.([]byte)
	}
	return v, args.Error(1)
}

func (m *KeyedStoreMock) Put(ctx context.Context, key string, value []byte) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *KeyedStoreMock) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *KeyedStoreMock) Keys(ctx context.Context, prefix string) ([]string, error) {
	args := m.Called(ctx, prefix)
	var keys []string
	if val := args.Get(0); val != nil {
		keys = val.([]string)
	}
	return keys, args.Error(1)
}

func (m *KeyedStoreMock) Subscribe(listener store.Listener) func() {
	m.Called(listener)
	return func() {}
}

type BlobStoreMock struct {
	mock.Mock
}

func (m *BlobStoreMock) Put(ctx context.Context, blobKey string, data []byte) error {
	args := m.Called(ctx, blobKey, data)
	return args.Error(0)
}

func (m *BlobStoreMock) Get(ctx context.Context, blobKey string) ([]byte, error) {
	args := m.Called(ctx, blobKey)
	var v []byte
	if val := args.Get(0); val != nil {
		v = val.([]byte)
	}
	return v, args.Error(1)
}

func (m *BlobStoreMock) Delete(ctx context.Context, blobKey string) error {
	args := m.Called(ctx, blobKey)
	return args.Error(0)
}

// CountingStore wraps a KeyedStore and counts the writes reaching it.
type CountingStore struct {
	store.KeyedStore

	mu      sync.Mutex
	puts    int
	deletes int
}

func NewCountingStore(inner store.KeyedStore) *CountingStore {
	return &CountingStore{KeyedStore: inner}
}

func (s *CountingStore) Put(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	s.puts++
	s.mu.Unlock()
	return s.KeyedStore.Put(ctx, key, value)
}

func (s *CountingStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	s.deletes++
	s.mu.Unlock()
	return s.KeyedStore.Delete(ctx, key)
}

// Writes returns the number of Put and Delete calls so far.
func (s *CountingStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts + s.deletes
}

// CountingBlobStore wraps a BlobStore and counts writes and deletes.
type CountingBlobStore struct {
	store.BlobStore

	mu      sync.Mutex
	puts    int
	deletes int
}

func NewCountingBlobStore(inner store.BlobStore) *CountingBlobStore {
	return &CountingBlobStore{BlobStore: inner}
}

func (s *CountingBlobStore) Put(ctx context.Context, blobKey string, data []byte) error {
	s.mu.Lock()
	s.puts++
	s.mu.Unlock()
	return s.BlobStore.Put(ctx, blobKey, data)
}

func (s *CountingBlobStore) Delete(ctx context.Context, blobKey string) error {
	s.mu.Lock()
	s.deletes++
	s.mu.Unlock()
	return s.BlobStore.Delete(ctx, blobKey)
}

func (s *CountingBlobStore) Puts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

func (s *CountingBlobStore) Deletes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deletes
}

var _ store.KeyedStore = (*KeyedStoreMock)(nil)
var _ store.BlobStore = (*BlobStoreMock)(nil)
var _ store.KeyedStore = (*CountingStore)(nil)
var _ store.BlobStore = (*CountingBlobStore)(nil)
