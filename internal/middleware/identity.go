package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"collab-lab/internal/repositories"
)

const (
	// UserIDHeader carries the id of the local user a request acts for.
	UserIDHeader = "X-User-ID"
	userIDKey    = "userID"
)

// Identity resolves the calling user from the X-User-ID header and checks it
// against the user repository. Browsers cannot set headers on websocket
// upgrades, so the user_id query parameter is accepted as well.
func Identity(users repositories.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if userID == "" {
			userID = strings.TrimSpace(c.Query("user_id"))
		}
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing user id", "reason": "unauthorized"})
			return
		}

		if _, err := users.Get(c.Request.Context(), userID); err != nil {
			if errors.Is(err, repositories.ErrUserNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown user", "reason": "unauthorized"})
				return
			}
			jww.WARN.Printf("identity lookup failed user=%s: %v", userID, err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable", "reason": "storage_unavailable"})
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// UserID returns the user resolved by Identity.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
