package syncer

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"collab-lab/internal/models"
)

// Manager owns one controller per local user.
type Manager struct {
	deps Deps

	mu          sync.Mutex
	controllers map[string]*Controller
	closed      bool
}

func NewManager(deps Deps) *Manager {
	return &Manager{deps: deps.withDefaults(), controllers: map[string]*Controller{}}
}

// For returns the controller of userID, creating it on first use. The user
// must exist.
func (m *Manager) For(ctx context.Context, userID string) (*Controller, error) {
	m.mu.Lock()
	if c, ok := m.controllers[userID]; ok {
		m.mu.Unlock()
		return c, nil
	}
	m.mu.Unlock()

	if _, err := m.deps.Users.Get(ctx, userID); err != nil {
		return nil, classify(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if c, ok := m.controllers[userID]; ok {
		return c, nil
	}
	c := NewController(m.deps, userID)
	m.controllers[userID] = c
	jww.DEBUG.Printf("controller started user=%s", userID)
	return c, nil
}

// Release closes and forgets the controller of userID.
func (m *Manager) Release(userID string) {
	m.mu.Lock()
	c, ok := m.controllers[userID]
	delete(m.controllers, userID)
	m.mu.Unlock()
	if ok {
		c.Close()
	}
}

// Close stops every controller.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	controllers := m.controllers
	m.controllers = map[string]*Controller{}
	m.mu.Unlock()

	for _, c := range controllers {
		c.Close()
	}
}

// NewUser describes a user to register.
type NewUser struct {
	Username  string
	Plan      models.Plan
	AvatarRef string
	ChatColor string
}

// RegisterUser creates a user. Usernames are unique ignoring case; an empty
// plan registers a guest.
func (m *Manager) RegisterUser(ctx context.Context, req NewUser) (models.User, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return models.User{}, errors.Wrap(ErrInvalidInput, "username is required")
	}
	plan := req.Plan
	if plan == "" {
		plan = models.PlanGuest
	}
	if !plan.Valid() {
		return models.User{}, errors.Wrapf(ErrInvalidInput, "unknown plan %q", plan)
	}

	_, err := m.deps.Users.GetByUsername(ctx, username)
	switch {
	case err == nil:
		return models.User{}, ErrUsernameTaken
	case !errors.Is(err, ErrUserNotFound):
		return models.User{}, classify(err)
	}

	user := models.User{
		ID:        uuid.NewString(),
		Username:  username,
		AvatarRef: req.AvatarRef,
		Plan:      plan,
		ChatColor: req.ChatColor,
	}
	if user.ChatColor == "" {
		user.ChatColor = models.PaletteColor(user.ID)
	}
	if err := m.deps.Users.Put(ctx, user); err != nil {
		return models.User{}, classify(err)
	}
	jww.INFO.Printf("user registered id=%s plan=%s", user.ID, user.Plan)
	return user, nil
}
