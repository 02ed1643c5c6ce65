package repositories

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"collab-lab/internal/models"
	"collab-lab/internal/store"
)

var ErrGroupNotFound = errors.New("group not found")

// GroupRepository abstracts group persistence.
type GroupRepository interface {
	Get(ctx context.Context, groupID string) (models.Group, error)
	Exists(ctx context.Context, groupID string) (bool, error)
	Put(ctx context.Context, group models.Group) error
	Update(ctx context.Context, groupID string, fn func(*models.Group) error) (models.Group, error)
	ListForUser(ctx context.Context, userID string) ([]models.Group, error)
}

// GroupRepo stores groups as JSON documents under groups/<id>.
type GroupRepo struct {
	kv store.KeyedStore
	mu sync.Mutex
}

// NewGroupRepo constructs a GroupRepo.
func NewGroupRepo(kv store.KeyedStore) *GroupRepo {
	return &GroupRepo{kv: kv}
}

func (r *GroupRepo) Get(ctx context.Context, groupID string) (models.Group, error) {
	var g models.Group
	ok, err := getJSON(ctx, r.kv, store.GroupKey(groupID), &g)
	if err != nil {
		return models.Group{}, err
	}
	if !ok {
		return models.Group{}, ErrGroupNotFound
	}
	return g, nil
}

func (r *GroupRepo) Exists(ctx context.Context, groupID string) (bool, error) {
	raw, err := r.kv.Get(ctx, store.GroupKey(groupID))
	if err != nil {
		return false, err
	}
	return raw != nil, nil
}

func (r *GroupRepo) Put(ctx context.Context, group models.Group) error {
	return putJSON(ctx, r.kv, store.GroupKey(group.ID), group)
}

// Update applies fn to the stored group and writes the result back. Updates
// issued through the same repository are serialized.
func (r *GroupRepo) Update(ctx context.Context, groupID string, fn func(*models.Group) error) (models.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, err := r.Get(ctx, groupID)
	if err != nil {
		return models.Group{}, err
	}
	if err := fn(&g); err != nil {
		return models.Group{}, err
	}
	if err := r.Put(ctx, g); err != nil {
		return models.Group{}, err
	}
	return g, nil
}

// ListForUser returns the groups that include the user, newest first.
func (r *GroupRepo) ListForUser(ctx context.Context, userID string) ([]models.Group, error) {
	var groups []models.Group
	err := listJSON(ctx, r.kv, store.GroupPrefix, func(_ string, raw []byte) error {
		var g models.Group
		if err := json.Unmarshal(raw, &g); err != nil {
			return err
		}
		if g.IsMember(userID) {
			groups = append(groups, g)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].CreatedAt.After(groups[j].CreatedAt)
	})
	return groups, nil
}
