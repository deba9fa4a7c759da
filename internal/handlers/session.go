package handlers

import (
	"questly/internal/middleware"

	"github.com/gin-gonic/gin"
)

// GetUserIDFromContext retrieves the authenticated user id placed in the gin
// context by the auth middleware. Returns (0, false) when not authenticated.
func GetUserIDFromContext(c *gin.Context) (int, bool) {
	value, exists := c.Get(middleware.UserIDKey)
	if !exists {
		return 0, false
	}
	id, ok := value.(int)
	if !ok {
		return 0, false
	}
	return id, true
}
