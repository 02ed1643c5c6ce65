package repositories

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"collab-lab/internal/models"
	"collab-lab/internal/store"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository abstracts message persistence. Every message lives
// under its own key so concurrent senders never overwrite each other.
type MessageRepository interface {
	Get(ctx context.Context, groupID, messageID string) (models.Message, error)
	Exists(ctx context.Context, groupID, messageID string) (bool, error)
	Put(ctx context.Context, msg models.Message) error
	Update(ctx context.Context, groupID, messageID string, fn func(*models.Message) error) (models.Message, error)
	Delete(ctx context.Context, groupID, messageID string) error
	// List returns all stored messages of a group, expired ones included,
	// ordered by creation time.
	List(ctx context.Context, groupID string) ([]models.Message, error)
	// GroupIDs lists the groups that currently hold at least one message.
	GroupIDs(ctx context.Context) ([]string, error)

	// MarkBlobRelease records that blobKey lost a referencing message. The
	// marker outlives failed blob deletes so a later pass can retry them.
	MarkBlobRelease(ctx context.Context, blobKey string) error
	PendingBlobReleases(ctx context.Context) ([]string, error)
	ClearBlobRelease(ctx context.Context, blobKey string) error
}

// MessageRepo stores messages under messages/<groupId>/<messageId>.
type MessageRepo struct {
	kv store.KeyedStore
	mu sync.Mutex
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(kv store.KeyedStore) *MessageRepo {
	return &MessageRepo{kv: kv}
}

func (r *MessageRepo) Get(ctx context.Context, groupID, messageID string) (models.Message, error) {
	var m models.Message
	ok, err := getJSON(ctx, r.kv, store.MessageKey(groupID, messageID), &m)
	if err != nil {
		return models.Message{}, err
	}
	if !ok {
		return models.Message{}, ErrMessageNotFound
	}
	return m, nil
}

func (r *MessageRepo) Exists(ctx context.Context, groupID, messageID string) (bool, error) {
	raw, err := r.kv.Get(ctx, store.MessageKey(groupID, messageID))
	if err != nil {
		return false, err
	}
	return raw != nil, nil
}

func (r *MessageRepo) Put(ctx context.Context, msg models.Message) error {
	if msg.GroupID == "" || msg.ID == "" {
		return errors.New("message requires group and id")
	}
	return putJSON(ctx, r.kv, store.MessageKey(msg.GroupID, msg.ID), msg)
}

// Update applies fn to the stored message and writes the result back.
func (r *MessageRepo) Update(ctx context.Context, groupID, messageID string, fn func(*models.Message) error) (models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, err := r.Get(ctx, groupID, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if err := fn(&m); err != nil {
		return models.Message{}, err
	}
	if err := r.Put(ctx, m); err != nil {
		return models.Message{}, err
	}
	return m, nil
}

// Delete is idempotent.
func (r *MessageRepo) Delete(ctx context.Context, groupID, messageID string) error {
	return r.kv.Delete(ctx, store.MessageKey(groupID, messageID))
}

func (r *MessageRepo) List(ctx context.Context, groupID string) ([]models.Message, error) {
	msgs := []models.Message{}
	err := listJSON(ctx, r.kv, store.GroupMessagesPrefix(groupID), func(_ string, raw []byte) error {
		var m models.Message
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		msgs = append(msgs, m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	models.SortMessages(msgs)
	return msgs, nil
}

func (r *MessageRepo) GroupIDs(ctx context.Context) ([]string, error) {
	keys, err := r.kv.Keys(ctx, store.MessagePrefix)
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	for _, k := range keys {
		if groupID, _, ok := store.ParseMessageKey(k); ok {
			seen[groupID] = struct{}{}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *MessageRepo) MarkBlobRelease(ctx context.Context, blobKey string) error {
	if blobKey == "" {
		return nil
	}
	return r.kv.Put(ctx, store.BlobReleaseKey(blobKey), []byte(blobKey))
}

func (r *MessageRepo) PendingBlobReleases(ctx context.Context) ([]string, error) {
	keys, err := r.kv.Keys(ctx, store.BlobReleasePrefix)
	if err != nil {
		return nil, err
	}
	blobKeys := make([]string, 0, len(keys))
	for _, k := range keys {
		if blobKey := strings.TrimPrefix(k, store.BlobReleasePrefix); blobKey != "" {
			blobKeys = append(blobKeys, blobKey)
		}
	}
	return blobKeys, nil
}

func (r *MessageRepo) ClearBlobRelease(ctx context.Context, blobKey string) error {
	return r.kv.Delete(ctx, store.BlobReleaseKey(blobKey))
}
