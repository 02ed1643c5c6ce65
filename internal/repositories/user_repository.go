package repositories

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"collab-lab/internal/models"
	"collab-lab/internal/store"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository abstracts user persistence.
type UserRepository interface {
	Get(ctx context.Context, userID string) (models.User, error)
	GetByUsername(ctx context.Context, username string) (models.User, error)
	Put(ctx context.Context, user models.User) error
	Update(ctx context.Context, userID string, fn func(*models.User) error) (models.User, error)
	List(ctx context.Context) ([]models.User, error)
}

// UserRepo stores users as JSON documents under users/<id>.
type UserRepo struct {
	kv store.KeyedStore
	mu sync.Mutex
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(kv store.KeyedStore) *UserRepo {
	return &UserRepo{kv: kv}
}

func (r *UserRepo) Get(ctx context.Context, userID string) (models.User, error) {
	var u models.User
	ok, err := getJSON(ctx, r.kv, store.UserKey(userID), &u)
	if err != nil {
		return models.User{}, err
	}
	if !ok {
		return models.User{}, ErrUserNotFound
	}
	return u, nil
}

// GetByUsername matches case-insensitively.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (models.User, error) {
	users, err := r.List(ctx)
	if err != nil {
		return models.User{}, err
	}
	for _, u := range users {
		if strings.EqualFold(u.Username, username) {
			return u, nil
		}
	}
	return models.User{}, ErrUserNotFound
}

func (r *UserRepo) Put(ctx context.Context, user models.User) error {
	return putJSON(ctx, r.kv, store.UserKey(user.ID), user)
}

// Update applies fn to the stored user and writes the result back. Updates
// issued through the same repository are serialized.
func (r *UserRepo) Update(ctx context.Context, userID string, fn func(*models.User) error) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, err := r.Get(ctx, userID)
	if err != nil {
		return models.User{}, err
	}
	if err := fn(&u); err != nil {
		return models.User{}, err
	}
	if err := r.Put(ctx, u); err != nil {
		return models.User{}, err
	}
	return u, nil
}

func (r *UserRepo) List(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := listJSON(ctx, r.kv, store.UserPrefix, func(_ string, raw []byte) error {
		var u models.User
		if err := json.Unmarshal(raw, &u); err != nil {
			return err
		}
		users = append(users, u)
		return nil
	})
	return users, err
}
