package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"collab-lab/internal/middleware"
	"collab-lab/internal/models"
	"collab-lab/internal/presence"
	"collab-lab/internal/repositories"
	"collab-lab/internal/syncer"
)

// UserHandler serves registration, the caller's profile, presence and
// friend requests.
type UserHandler struct {
	manager  *syncer.Manager
	users    repositories.UserRepository
	presence *presence.Tracker
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(manager *syncer.Manager, users repositories.UserRepository, tracker *presence.Tracker) *UserHandler {
	return &UserHandler{manager: manager, users: users, presence: tracker}
}

// Register handles POST /users.
func (h *UserHandler) Register(c *gin.Context) {
	var req struct {
		Username  string `json:"username" binding:"required"`
		Plan      string `json:"plan"`
		AvatarRef string `json:"avatar_ref"`
		ChatColor string `json:"chat_color"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, err := h.manager.RegisterUser(c.Request.Context(), syncer.NewUser{
		Username:  req.Username,
		Plan:      models.Plan(req.Plan),
		AvatarRef: req.AvatarRef,
		ChatColor: req.ChatColor,
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// Me handles GET /me.
func (h *UserHandler) Me(c *gin.Context) {
	user, err := h.users.Get(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// Heartbeat handles POST /presence/heartbeat.
func (h *UserHandler) Heartbeat(c *gin.Context) {
	if h.presence == nil {
		c.Status(http.StatusNoContent)
		return
	}
	if err := h.presence.Heartbeat(c.Request.Context(), middleware.UserID(c)); err != nil {
		RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SendFriendRequest handles POST /friends/requests.
func (h *UserHandler) SendFriendRequest(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctrl, ok := controllerFor(c, h.manager)
	if !ok {
		return
	}
	target, err := ctrl.SendFriendRequest(c.Request.Context(), req.Username)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"user_id": target.ID, "username": target.Username})
}

// AcceptFriendRequest handles POST /friends/requests/:user_id/accept.
func (h *UserHandler) AcceptFriendRequest(c *gin.Context) {
	ctrl, ok := controllerFor(c, h.manager)
	if !ok {
		return
	}
	me, err := ctrl.AcceptFriendRequest(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, me)
}

// DeclineFriendRequest handles DELETE /friends/requests/:user_id.
func (h *UserHandler) DeclineFriendRequest(c *gin.Context) {
	ctrl, ok := controllerFor(c, h.manager)
	if !ok {
		return
	}
	if _, err := ctrl.DeclineFriendRequest(c.Request.Context(), c.Param("user_id")); err != nil {
		RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
