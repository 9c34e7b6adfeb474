package server

import (
	"errors"
	"net/http"

	"messer/internal/logger"
	"messer/internal/middleware"
	"messer/internal/social"
	"messer/internal/store"

	"github.com/gin-gonic/gin"
)

// FriendsHandler serves GET /api/friends for the authenticated user. It
// must run behind middleware.JWT.
func FriendsHandler(svc *social.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(middleware.ContextUserID)
		user, err := svc.Store().UserByID(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
				return
			}
			logger.Error("load user", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		friends, err := svc.Friends(c.Request.Context(), user)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, friends)
	}
}
