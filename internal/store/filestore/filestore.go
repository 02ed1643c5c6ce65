// Package filestore keeps file payloads in an encrypted on-disk key value
// store so that uploads survive a daemon restart.
package filestore

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"gitlab.com/elixxir/ekv"

	"collab-lab/internal/store"
)

const blobPrefix = "blob-"

// BlobStore implements store.BlobStore on an ekv.KeyValue.
type BlobStore struct {
	mu sync.Mutex
	kv ekv.KeyValue
}

// Open creates or loads the encrypted store rooted at dir.
func Open(dir, password string) (*BlobStore, error) {
	fs, err := ekv.NewFilestore(dir, password)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to open blob directory")
	}
	return New(fs), nil
}

// New wraps any ekv.KeyValue, for instance an ekv.Memstore in tests.
func New(kv ekv.KeyValue) *BlobStore {
	return &BlobStore{kv: kv}
}

func (b *BlobStore) Put(_ context.Context, blobKey string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.kv.SetBytes(blobPrefix+blobKey, data); err != nil {
		return store.Unavailable(err, "blob write")
	}
	return nil
}

func (b *BlobStore) Get(_ context.Context, blobKey string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, err := b.kv.GetBytes(blobPrefix + blobKey)
	if err != nil {
		if !ekv.Exists(err) {
			return nil, nil
		}
		return nil, store.Unavailable(err, "blob read")
	}
	return data, nil
}

func (b *BlobStore) Delete(_ context.Context, blobKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.kv.Delete(blobPrefix + blobKey); err != nil && ekv.Exists(err) {
		return store.Unavailable(err, "blob delete")
	}
	return nil
}
