package handlers

import (
	"net/http"

	"questly/internal/config"
	"questly/internal/middleware"
	"questly/internal/observability"
	"questly/internal/services"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// AuthHandler serves login, logout, and session status.
type AuthHandler struct {
	userService services.UserServiceInterface
	cfg         *config.Config
	logger      *observability.Logger
}

// NewAuthHandler creates a new AuthHandler instance
func NewAuthHandler(userService services.UserServiceInterface, cfg *config.Config, logger *observability.Logger) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		cfg:         cfg,
		logger:      logger,
	}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login authenticates a username/password pair and opens a session.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleValidationError(c, "credentials", "", err.Error())
		return
	}

	user, err := h.userService.AuthenticateUser(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.logger.Warn(c.Request.Context(), "Login failed", map[string]interface{}{
			"username": req.Username,
		})
		HandleAppError(c, err)
		return
	}

	session := sessions.Default(c)
	session.Set(middleware.UserIDKey, user.ID)
	session.Set(middleware.UsernameKey, user.Username)
	if err := session.Save(); err != nil {
		HandleAppError(c, err)
		return
	}

	if err := h.userService.UpdateLastActive(c.Request.Context(), user.ID); err != nil {
		h.logger.Warn(c.Request.Context(), "Failed to update last active", map[string]interface{}{
			"user_id": user.ID,
			"error":   err.Error(),
		})
	}

	h.logger.Info(c.Request.Context(), "User logged in", map[string]interface{}{
		"user_id": user.ID,
	})

	c.JSON(http.StatusOK, gin.H{
		"user": gin.H{
			"id":         user.ID,
			"username":   user.Username,
			"is_premium": user.IsPremium,
			"is_admin":   user.IsAdmin,
		},
	})
}

// Logout clears the session.
func (h *AuthHandler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}

// Status reports whether the caller has an authenticated session.
func (h *AuthHandler) Status(c *gin.Context) {
	session := sessions.Default(c)
	userID := session.Get(middleware.UserIDKey)
	if userID == nil {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}

	id, ok := userID.(int)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}

	user, err := h.userService.GetUserByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"user": gin.H{
			"id":         user.ID,
			"username":   user.Username,
			"is_premium": user.IsPremium,
			"is_admin":   user.IsAdmin,
		},
	})
}
