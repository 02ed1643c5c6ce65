package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"collab-lab/internal/middleware"
	"collab-lab/internal/mocks"
	"collab-lab/internal/models"
	"collab-lab/internal/presence"
	"collab-lab/internal/repositories"
	"collab-lab/internal/store"
	"collab-lab/internal/syncer"
	"collab-lab/internal/telemetry"
)

type testEnv struct {
	router    *gin.Engine
	manager   *syncer.Manager
	users     *repositories.UserRepo
	messages  *repositories.MessageRepo
	publisher *mocks.PublisherMock
}

func newTestEnv(t *testing.T) *testEnv {
	kv := store.NewMemoryStore()
	users := repositories.NewUserRepo(kv)
	messages := repositories.NewMessageRepo(kv)
	tracker, err := presence.NewTracker(users, 10*time.Second, 30*time.Second, nil)
	require.NoError(t, err)

	manager := syncer.NewManager(syncer.Deps{
		Store:    kv,
		Blobs:    store.NewMemoryBlobStore(),
		Users:    users,
		Groups:   repositories.NewGroupRepo(kv),
		Messages: messages,
		Presence: tracker,
		Config: syncer.Config{
			MessageTTL:   time.Hour,
			PollInterval: 50 * time.Millisecond,
			PlanLimits:   models.DefaultPlanLimits(),
		},
	})
	t.Cleanup(manager.Close)

	publisher := new(mocks.PublisherMock)
	publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	audit := telemetry.NewAuditEmitter(publisher, "audit.collab", "collab-lab", "test")

	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, middleware.Identity(users),
		NewUserHandler(manager, users, tracker),
		NewGroupHandler(manager, audit),
		NewMessageHandler(manager, audit),
	)
	return &testEnv{router: r, manager: manager, users: users, messages: messages, publisher: publisher}
}

func (e *testEnv) do(method, path, userID string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if userID != "" {
		req.Header.Set(middleware.UserIDHeader, userID)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) doJSON(method, path, userID, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	return e.do(method, path, userID, r, "application/json")
}

func (e *testEnv) register(t *testing.T, username, plan string) models.User {
	rec := e.doJSON(http.MethodPost, "/users", "", `{"username":"`+username+`","plan":"`+plan+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var u models.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &u))
	return u
}

func (e *testEnv) createGroup(t *testing.T, ownerID, name string) models.Group {
	rec := e.doJSON(http.MethodPost, "/groups", ownerID, `{"name":"`+name+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var g models.Group
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &g))
	return g
}

func (e *testEnv) join(t *testing.T, userID, code string) {
	rec := e.doJSON(http.MethodPost, "/groups/join", userID, `{"code":"`+code+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func (e *testEnv) view(t *testing.T, userID, groupID string) models.GroupView {
	rec := e.do(http.MethodGet, "/groups/"+groupID+"/view", userID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var v models.GroupView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) (string, string) {
	var body struct {
		Error  string `json:"error"`
		Reason string `json:"reason"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error, body.Reason
}
