// Package store defines the storage contracts shared by every component of
// the sync engine and provides the process-local implementations.
package store

import (
	"context"

	"github.com/pkg/errors"
)

// ErrUnavailable is wrapped by every backend failure (quota exceeded,
// connection refused, storage disabled). Callers treat it as transient.
var ErrUnavailable = errors.New("storage unavailable")

// Listener receives the key of every changed entry.
type Listener func(key string)

// KeyedStore maps string keys to JSON documents. Writes are last-writer-wins
// per key and every write is announced to the store's subscribers.
type KeyedStore interface {
	// Get returns nil and no error when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Keys lists the keys starting with prefix in lexical order.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Subscribe(listener Listener) (unsubscribe func())
}

// BlobStore holds file payloads outside of the structured records.
type BlobStore interface {
	Put(ctx context.Context, blobKey string, data []byte) error
	// Get returns nil and no error when the blob is absent.
	Get(ctx context.Context, blobKey string) ([]byte, error)
	Delete(ctx context.Context, blobKey string) error
}

// Unavailable wraps err so that errors.Is(err, ErrUnavailable) holds.
func Unavailable(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &unavailableError{msg: msg, cause: err}
}

type unavailableError struct {
	msg   string
	cause error
}

func (e *unavailableError) Error() string {
	return e.msg + ": " + ErrUnavailable.Error() + ": " + e.cause.Error()
}

func (e *unavailableError) Is(target error) bool { return target == ErrUnavailable }

func (e *unavailableError) Unwrap() error { return e.cause }
