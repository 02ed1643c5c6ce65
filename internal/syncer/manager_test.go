package syncer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-lab/internal/models"
)

func TestRegisterUser(t *testing.T) {
	h := newHarness(t)
	m := NewManager(h.deps)
	defer m.Close()
	ctx := context.Background()

	user, err := m.RegisterUser(ctx, NewUser{Username: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, models.PlanGuest, user.Plan)
	assert.Contains(t, models.ChatPalette, user.ChatColor)

	_, err = m.RegisterUser(ctx, NewUser{Username: "ada"})
	assert.ErrorIs(t, err, ErrUsernameTaken)

	_, err = m.RegisterUser(ctx, NewUser{Username: "bob", Plan: "enterprise"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = m.RegisterUser(ctx, NewUser{Username: " "})
	assert.ErrorIs(t, err, ErrInvalidInput)

	pro, err := m.RegisterUser(ctx, NewUser{Username: "carol", Plan: models.PlanPro, ChatColor: "#000000"})
	require.NoError(t, err)
	assert.Equal(t, "#000000", pro.ChatColor)
}

func TestManagerReusesControllers(t *testing.T) {
	h := newHarness(t)
	h.user(t, "u1", models.PlanFree)
	m := NewManager(h.deps)
	ctx := context.Background()

	first, err := m.For(ctx, "u1")
	require.NoError(t, err)
	second, err := m.For(ctx, "u1")
	require.NoError(t, err)
	assert.Same(t, first, second)

	_, err = m.For(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)

	m.Release("u1")
	third, err := m.For(ctx, "u1")
	require.NoError(t, err)
	assert.NotSame(t, first, third)

	m.Close()
	_, err = m.For(ctx, "u1")
	assert.ErrorIs(t, err, ErrClosed)
}
