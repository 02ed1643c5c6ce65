// Package pgstore backs the keyed store and the blob store with Postgres.
// Every write emits pg_notify on ChangesChannel; Listen turns those
// notifications back into local change events.
package pgstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	jww "github.com/spf13/jwalterweatherman"

	"collab-lab/internal/store"
)

// ChangesChannel is the LISTEN/NOTIFY channel carrying changed keys.
const ChangesChannel = "collab_lab_changes"

// Store is a KeyedStore on the kv table.
type Store struct {
	store.Notifier
	db *sqlx.DB
}

// New wraps a migrated database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.GetContext(ctx, &value, `SELECT value FROM kv WHERE key = $1`, key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, store.Unavailable(err, "pg get")
	}
	return value, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return store.Unavailable(err, "pg begin")
	}
	defer tx.Rollback()

	const upsert = `INSERT INTO kv (key, value, updated_at) VALUES ($1, $2, NOW())
        ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`
	if _, err := tx.ExecContext(ctx, upsert, key, value); err != nil {
		return store.Unavailable(err, "pg upsert")
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, ChangesChannel, key); err != nil {
		return store.Unavailable(err, "pg notify")
	}
	if err := tx.Commit(); err != nil {
		return store.Unavailable(err, "pg commit")
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return store.Unavailable(err, "pg begin")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = $1`, key)
	if err != nil {
		return store.Unavailable(err, "pg delete")
	}
	if n, _ := res.RowsAffected(); n > 0 {
		if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, ChangesChannel, key); err != nil {
			return store.Unavailable(err, "pg notify")
		}
	}
	if err := tx.Commit(); err != nil {
		return store.Unavailable(err, "pg commit")
	}
	return nil
}

func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys := []string{}
	err := s.db.SelectContext(ctx, &keys,
		`SELECT key FROM kv WHERE key LIKE $1 ESCAPE '\' ORDER BY key COLLATE "C"`, likePrefix(prefix))
	if err != nil {
		return nil, store.Unavailable(err, "pg keys")
	}
	return keys, nil
}

// Listen forwards notifications from ChangesChannel to local subscribers
// until ctx is done.
func (s *Store) Listen(ctx context.Context, dsn string) error {
	l := pq.NewListener(dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			jww.WARN.Printf("pg listener event=%d: %v", ev, err)
		}
	})
	defer l.Close()

	if err := l.Listen(ChangesChannel); err != nil {
		return store.Unavailable(err, "pg listen")
	}
	jww.INFO.Printf("pg change feed listening channel=%s", ChangesChannel)

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-l.Notify:
			// nil after a reconnect; notifications may have been missed.
			if n == nil {
				continue
			}
			s.Notify(n.Extra)
		case <-time.After(90 * time.Second):
			go l.Ping()
		}
	}
}

// BlobStore keeps file payloads in the blobs table.
type BlobStore struct {
	db *sqlx.DB
}

// NewBlobStore wraps a migrated database handle.
func NewBlobStore(db *sqlx.DB) *BlobStore {
	return &BlobStore{db: db}
}

func (b *BlobStore) Put(ctx context.Context, blobKey string, data []byte) error {
	_, err := b.db.ExecContext(ctx, `INSERT INTO blobs (blob_key, data) VALUES ($1, $2)
        ON CONFLICT (blob_key) DO UPDATE SET data = EXCLUDED.data`, blobKey, data)
	if err != nil {
		return store.Unavailable(err, "pg blob put")
	}
	return nil
}

func (b *BlobStore) Get(ctx context.Context, blobKey string) ([]byte, error) {
	var data []byte
	err := b.db.GetContext(ctx, &data, `SELECT data FROM blobs WHERE blob_key = $1`, blobKey)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, store.Unavailable(err, "pg blob get")
	}
	return data, nil
}

func (b *BlobStore) Delete(ctx context.Context, blobKey string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM blobs WHERE blob_key = $1`, blobKey); err != nil {
		return store.Unavailable(err, "pg blob delete")
	}
	return nil
}

func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}
