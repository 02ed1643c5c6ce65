package handlers

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"collab-lab/internal/syncer"
	"collab-lab/internal/telemetry"
)

// MessageHandler serves sending, editing, deleting and reacting to messages,
// and downloading shared files.
type MessageHandler struct {
	manager *syncer.Manager
	audit   *telemetry.AuditEmitter
}

// NewMessageHandler constructs a MessageHandler.
func NewMessageHandler(manager *syncer.Manager, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{manager: manager, audit: audit}
}

// multipartOverhead is the room left for form fields and part headers on
// top of the caller's upload limit.
const multipartOverhead = 1 << 20

// PostMessage handles POST /groups/:group_id/messages. It accepts a JSON body
// or a multipart form with an optional file part.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	ctrl, ok := controllerFor(c, h.manager)
	if !ok {
		return
	}
	limit, err := ctrl.UploadLimit(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	req, err := bindSendRequest(c, limit)
	if errors.Is(err, syncer.ErrFileTooLarge) {
		RespondError(c, err)
		return
	}
	if err != nil {
		badRequest(c, err)
		return
	}

	msg, err := ctrl.SendMessage(c.Request.Context(), c.Param("group_id"), req)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// bindSendRequest reads the send body, never buffering more than limit bytes
// of file data.
func bindSendRequest(c *gin.Context, limit int64) (syncer.SendRequest, error) {
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, multipartOverhead)
		var body struct {
			Text      string `json:"text"`
			ReplyToID string `json:"reply_to_id"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			return syncer.SendRequest{}, err
		}
		return syncer.SendRequest{Text: body.Text, ReplyToID: body.ReplyToID}, nil
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)
	header, err := c.FormFile("file")
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return syncer.SendRequest{}, syncer.ErrFileTooLarge
	}
	req := syncer.SendRequest{
		Text:      c.PostForm("text"),
		ReplyToID: c.PostForm("reply_to_id"),
	}
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil
	}
	if err != nil {
		return syncer.SendRequest{}, errors.Wrap(err, "read file part")
	}
	if header.Size > limit {
		return syncer.SendRequest{}, syncer.ErrFileTooLarge
	}
	f, err := header.Open()
	if err != nil {
		return syncer.SendRequest{}, errors.Wrap(err, "open file part")
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return syncer.SendRequest{}, errors.Wrap(err, "read file part")
	}
	req.File = &syncer.FileUpload{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}
	return req, nil
}

// EditMessage handles PATCH /groups/:group_id/messages/:message_id.
func (h *MessageHandler) EditMessage(c *gin.Context) {
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctrl, ok := controllerFor(c, h.manager)
	if !ok {
		return
	}

	msg, err := ctrl.EditMessage(c.Request.Context(), c.Param("group_id"), c.Param("message_id"), req.Text)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// DeleteMessage handles DELETE /groups/:group_id/messages/:message_id.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	ctrl, ok := controllerFor(c, h.manager)
	if !ok {
		return
	}
	groupID, messageID := c.Param("group_id"), c.Param("message_id")

	msg, err := ctrl.DeleteMessage(c.Request.Context(), groupID, messageID)
	if err != nil {
		emitAudit(c, h.audit, telemetry.AuditEvent{Level: "ERROR", Action: "message.delete", GroupID: groupID, TargetID: messageID, Text: syncer.Reason(err)})
		RespondError(c, err)
		return
	}
	text := "Message deleted"
	if msg.SenderID != ctrl.UserID() {
		text = "Message deleted by owner"
	}
	emitAudit(c, h.audit, telemetry.AuditEvent{Level: "INFO", Action: "message.delete", GroupID: groupID, TargetID: messageID, Text: text})
	c.Status(http.StatusNoContent)
}

// React handles POST /groups/:group_id/messages/:message_id/reactions.
func (h *MessageHandler) React(c *gin.Context) {
	var req struct {
		Emoji string `json:"emoji" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctrl, ok := controllerFor(c, h.manager)
	if !ok {
		return
	}

	msg, err := ctrl.React(c.Request.Context(), c.Param("group_id"), c.Param("message_id"), req.Emoji)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// DownloadBlob handles GET /blobs/:blob_key.
func (h *MessageHandler) DownloadBlob(c *gin.Context) {
	ctrl, ok := controllerFor(c, h.manager)
	if !ok {
		return
	}
	ref, data, err := ctrl.OpenBlob(c.Request.Context(), c.Param("blob_key"))
	if err != nil {
		RespondError(c, err)
		return
	}

	contentType := ref.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", "attachment; filename="+strconv.Quote(ref.Name))
	c.Data(http.StatusOK, contentType, data)
}
