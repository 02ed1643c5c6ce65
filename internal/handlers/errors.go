package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	jww "github.com/spf13/jwalterweatherman"

	"collab-lab/internal/middleware"
	"collab-lab/internal/syncer"
)

var reasonStatus = map[string]int{
	"empty_message":       http.StatusBadRequest,
	"file_too_large":      http.StatusRequestEntityTooLarge,
	"storage_unavailable": http.StatusServiceUnavailable,
	"not_found":           http.StatusNotFound,
	"forbidden":           http.StatusForbidden,
	"not_member":          http.StatusForbidden,
	"muted":               http.StatusForbidden,
	"no_active_group":     http.StatusConflict,
	"invalid_reaction":    http.StatusBadRequest,
	"invalid_input":       http.StatusBadRequest,
	"conflict":            http.StatusConflict,
}

// RespondError writes a controller error as {"error", "reason"} with the
// matching status.
func RespondError(c *gin.Context, err error) {
	reason := syncer.Reason(err)
	status, ok := reasonStatus[reason]
	if !ok {
		status = http.StatusInternalServerError
		jww.ERROR.Printf("request failed method=%s path=%s: %v", c.Request.Method, c.FullPath(), err)
	}
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": message, "reason": reason})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error(), "reason": "invalid_input"})
}

// controllerFor returns the controller of the user resolved by the identity
// middleware.
func controllerFor(c *gin.Context, manager *syncer.Manager) (*syncer.Controller, bool) {
	ctrl, err := manager.For(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		RespondError(c, err)
		return nil, false
	}
	return ctrl, true
}
