package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"collab-lab/internal/models"
)

func TestRegisterUser(t *testing.T) {
	env := newTestEnv(t)

	u := env.register(t, "ada", "pro")
	require.Equal(t, models.PlanPro, u.Plan)
	require.NotEmpty(t, u.ID)

	rec := env.doJSON(http.MethodPost, "/users", "", `{"username":"ADA"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	_, reason := decodeError(t, rec)
	require.Equal(t, "conflict", reason)

	rec = env.doJSON(http.MethodPost, "/users", "", `{"username":"bob","plan":"gold"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.doJSON(http.MethodPost, "/users", "", `{"plan":"free"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMeRequiresIdentity(t *testing.T) {
	env := newTestEnv(t)
	u := env.register(t, "ada", "")

	rec := env.do(http.MethodGet, "/me", "", nil, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodGet, "/me", "nobody", nil, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodGet, "/me", u.ID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var me models.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	require.Equal(t, models.PlanGuest, me.Plan)
}

func TestHeartbeatMarksOnline(t *testing.T) {
	env := newTestEnv(t)
	owner := env.register(t, "ada", "free")
	g := env.createGroup(t, owner.ID, "lab")

	require.Equal(t, models.StatusOffline, env.view(t, owner.ID, g.ID).Members[0].Status)

	rec := env.do(http.MethodPost, "/presence/heartbeat", owner.ID, nil, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, models.StatusOnline, env.view(t, owner.ID, g.ID).Members[0].Status)

	rec = env.do(http.MethodPost, "/groups/"+g.ID+"/call", owner.ID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, models.StatusInCall, env.view(t, owner.ID, g.ID).Members[0].Status)

	rec = env.do(http.MethodDelete, "/groups/"+g.ID+"/call", owner.ID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, models.StatusOnline, env.view(t, owner.ID, g.ID).Members[0].Status)
}

func TestFriendRequestFlow(t *testing.T) {
	env := newTestEnv(t)
	ada := env.register(t, "ada", "free")
	bob := env.register(t, "bob", "free")

	rec := env.doJSON(http.MethodPost, "/friends/requests", ada.ID, `{"username":"bob"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec = env.doJSON(http.MethodPost, "/friends/requests", ada.ID, `{"username":"carol"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodPost, "/friends/requests/"+ada.ID+"/accept", bob.ID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var me models.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	require.Equal(t, []string{ada.ID}, me.FriendIDs)

	rec = env.do(http.MethodDelete, "/friends/requests/"+ada.ID, bob.ID, nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	_, reason := decodeError(t, rec)
	require.Equal(t, "not_found", reason)
}
