package repositories

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-lab/internal/models"
	"collab-lab/internal/store"
)

func TestUserRepoLookups(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepo(store.NewMemoryStore())

	_, err := repo.Get(ctx, "u1")
	assert.ErrorIs(t, err, ErrUserNotFound)

	require.NoError(t, repo.Put(ctx, models.User{ID: "u1", Username: "Alice", Plan: models.PlanFree}))
	require.NoError(t, repo.Put(ctx, models.User{ID: "u2", Username: "bob", Plan: models.PlanPro}))

	u, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)

	_, err = repo.GetByUsername(ctx, "carol")
	assert.ErrorIs(t, err, ErrUserNotFound)

	updated, err := repo.Update(ctx, "u2", func(u *models.User) error {
		u.AddPendingRequest("u1")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, updated.PendingFriendRequestIDs)

	stored, err := repo.Get(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, updated, stored)
}

func TestUpdateAbortsOnCallbackError(t *testing.T) {
	ctx := context.Background()
	repo := NewGroupRepo(store.NewMemoryStore())
	require.NoError(t, repo.Put(ctx, models.Group{ID: "G1", OwnerID: "u1", MemberIDs: []string{"u1"}}))

	boom := errors.New("boom")
	_, err := repo.Update(ctx, "G1", func(g *models.Group) error {
		g.AddMember("u2")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	g, err := repo.Get(ctx, "G1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, g.MemberIDs)

	_, err = repo.Update(ctx, "missing", func(*models.Group) error { return nil })
	assert.ErrorIs(t, err, ErrGroupNotFound)
}

func TestGroupRepoListForUser(t *testing.T) {
	ctx := context.Background()
	repo := NewGroupRepo(store.NewMemoryStore())
	now := time.Now()
	require.NoError(t, repo.Put(ctx, models.Group{ID: "A", MemberIDs: []string{"u1"}, CreatedAt: now.Add(-time.Hour)}))
	require.NoError(t, repo.Put(ctx, models.Group{ID: "B", MemberIDs: []string{"u1", "u2"}, CreatedAt: now}))
	require.NoError(t, repo.Put(ctx, models.Group{ID: "C", MemberIDs: []string{"u2"}, CreatedAt: now}))

	groups, err := repo.ListForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "B", groups[0].ID)
	assert.Equal(t, "A", groups[1].ID)

	ok, err := repo.Exists(ctx, "C")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMessageRepoListOrdersAndSkipsCorrupt(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	repo := NewMessageRepo(kv)
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Put(ctx, models.Message{ID: "b", GroupID: "G", CreatedAt: t0}))
	require.NoError(t, repo.Put(ctx, models.Message{ID: "a", GroupID: "G", CreatedAt: t0}))
	require.NoError(t, repo.Put(ctx, models.Message{ID: "c", GroupID: "G", CreatedAt: t0.Add(-time.Second)}))
	require.NoError(t, repo.Put(ctx, models.Message{ID: "x", GroupID: "H", CreatedAt: t0}))
	require.NoError(t, kv.Put(ctx, store.MessageKey("G", "bad"), []byte("{not json")))

	msgs, err := repo.List(ctx, "G")
	require.NoError(t, err)
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)

	groups, err := repo.GroupIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"G", "H"}, groups)

	require.NoError(t, repo.Delete(ctx, "G", "a"))
	require.NoError(t, repo.Delete(ctx, "G", "a"))
	_, err = repo.Get(ctx, "G", "a")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestMessageRepoConcurrentSendersDoNotCollide(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	// two repositories share one store like two devices would
	devices := []*MessageRepo{NewMessageRepo(kv), NewMessageRepo(kv)}

	var wg sync.WaitGroup
	for d, repo := range devices {
		for i := 0; i < 25; i++ {
			wg.Add(1)
			go func(d, i int, repo *MessageRepo) {
				defer wg.Done()
				id := string(rune('a'+d)) + "-" + time.Duration(i).String()
				assert.NoError(t, repo.Put(ctx, models.Message{ID: id, GroupID: "G", CreatedAt: time.Now()}))
			}(d, i, repo)
		}
	}
	wg.Wait()

	msgs, err := devices[0].List(ctx, "G")
	require.NoError(t, err)
	assert.Len(t, msgs, 50)
}

func TestMessageRepoPutRequiresIdentity(t *testing.T) {
	repo := NewMessageRepo(store.NewMemoryStore())
	assert.Error(t, repo.Put(context.Background(), models.Message{ID: "m"}))
}
