package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"collab-lab/internal/models"
	"collab-lab/internal/syncer"
	"collab-lab/internal/telemetry"
)

// GroupHandler manages labs: creation, membership, moderation, the active
// session and the reconciled view.
type GroupHandler struct {
	manager *syncer.Manager
	audit   *telemetry.AuditEmitter
}

// NewGroupHandler constructs a GroupHandler.
func NewGroupHandler(manager *syncer.Manager, audit *telemetry.AuditEmitter) *GroupHandler {
	return &GroupHandler{manager: manager, audit: audit}
}

// CreateGroup handles POST /groups.
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctrl, ok := controllerFor(c, h.manager)
	if !ok {
		return
	}

	group, err := ctrl.CreateGroup(c.Request.Context(), req.Name)
	if err != nil {
		RespondError(c, err)
		return
	}
	h.emitAudit(c, "INFO", "group.create", group.ID, "", "Group created")
	c.JSON(http.StatusCreated, group)
}

// ListGroups returns groups the caller belongs to.
func (h *GroupHandler) ListGroups(c *gin.Context) {
	ctrl, ok := controllerFor(c, h.manager)
	if !ok {
		return
	}
	groups, err := ctrl.ListGroups(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// JoinGroup handles POST /groups/join.
func (h *GroupHandler) JoinGroup(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctrl, ok := controllerFor(c, h.manager)
	if !ok {
		return
	}

	group, err := ctrl.JoinGroup(c.Request.Context(), req.Code)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

// Activate handles PUT /groups/:group_id/active.
func (h *GroupHandler) Activate(c *gin.Context) {
	ctrl, ok := controllerFor(c, h.manager)
	if !ok {
		return
	}
	groupID := c.Param("group_id")
	if err := ctrl.Activate(c.Request.Context(), groupID); err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"active_group_id": groupID})
}

// Deactivate handles DELETE /session/active.
func (h *GroupHandler) Deactivate(c *gin.Context) {
	ctrl, ok := controllerFor(c, h.manager)
	if !ok {
		return
	}
	ctrl.Deactivate()
	c.Status(http.StatusNoContent)
}

// GetView handles GET /groups/:group_id/view. The optional kind query
// parameter restricts the messages to one or more kinds.
func (h *GroupHandler) GetView(c *gin.Context) {
	ctrl, ok := controllerFor(c, h.manager)
	if !ok {
		return
	}
	view, err := ctrl.View(c.Request.Context(), c.Param("group_id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	if kinds := c.QueryArray("kind"); len(kinds) > 0 {
		view.Messages = filterKinds(view.Messages, kinds)
	}
	c.JSON(http.StatusOK, view)
}

func filterKinds(msgs []models.VisibleMessage, kinds []string) []models.VisibleMessage {
	want := map[models.MessageKind]bool{}
	for _, k := range kinds {
		want[models.MessageKind(k)] = true
	}
	out := make([]models.VisibleMessage, 0, len(msgs))
	for _, m := range msgs {
		if want[m.Kind] {
			out = append(out, m)
		}
	}
	return out
}

// KickMember handles DELETE /groups/:group_id/members/:user_id.
func (h *GroupHandler) KickMember(c *gin.Context) {
	ctrl, ok := controllerFor(c, h.manager)
	if !ok {
		return
	}
	groupID, targetID := c.Param("group_id"), c.Param("user_id")

	group, err := ctrl.KickMember(c.Request.Context(), groupID, targetID)
	if err != nil {
		h.emitAudit(c, "ERROR", "member.kick", groupID, targetID, syncer.Reason(err))
		RespondError(c, err)
		return
	}
	h.emitAudit(c, "INFO", "member.kick", groupID, targetID, "Member removed")
	c.JSON(http.StatusOK, group)
}

// MuteMember handles POST /groups/:group_id/members/:user_id/mute.
func (h *GroupHandler) MuteMember(c *gin.Context) {
	h.setMuted(c, true)
}

// UnmuteMember handles DELETE /groups/:group_id/members/:user_id/mute.
func (h *GroupHandler) UnmuteMember(c *gin.Context) {
	h.setMuted(c, false)
}

func (h *GroupHandler) setMuted(c *gin.Context, muted bool) {
	ctrl, ok := controllerFor(c, h.manager)
	if !ok {
		return
	}
	groupID, targetID := c.Param("group_id"), c.Param("user_id")
	action := "member.mute"
	if !muted {
		action = "member.unmute"
	}

	var (
		group models.Group
		err   error
	)
	if muted {
		group, err = ctrl.MuteMember(c.Request.Context(), groupID, targetID)
	} else {
		group, err = ctrl.UnmuteMember(c.Request.Context(), groupID, targetID)
	}
	if err != nil {
		h.emitAudit(c, "ERROR", action, groupID, targetID, syncer.Reason(err))
		RespondError(c, err)
		return
	}
	h.emitAudit(c, "INFO", action, groupID, targetID, "Mute state changed")
	c.JSON(http.StatusOK, group)
}

// JoinCall handles POST /groups/:group_id/call.
func (h *GroupHandler) JoinCall(c *gin.Context) {
	h.setInCall(c, true)
}

// LeaveCall handles DELETE /groups/:group_id/call.
func (h *GroupHandler) LeaveCall(c *gin.Context) {
	h.setInCall(c, false)
}

func (h *GroupHandler) setInCall(c *gin.Context, inCall bool) {
	ctrl, ok := controllerFor(c, h.manager)
	if !ok {
		return
	}
	var (
		group models.Group
		err   error
	)
	if inCall {
		group, err = ctrl.JoinCall(c.Request.Context(), c.Param("group_id"))
	} else {
		group, err = ctrl.LeaveCall(c.Request.Context(), c.Param("group_id"))
	}
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

func (h *GroupHandler) emitAudit(c *gin.Context, level, action, groupID, targetID, text string) {
	emitAudit(c, h.audit, telemetry.AuditEvent{
		Level:    level,
		Action:   action,
		GroupID:  groupID,
		TargetID: targetID,
		Text:     text,
	})
}
