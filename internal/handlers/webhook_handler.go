package handlers

import (
	"crypto/subtle"
	"net/http"

	"questly/internal/config"
	"questly/internal/models"
	"questly/internal/observability"
	"questly/internal/services"

	"github.com/gin-gonic/gin"
)

// WebhookSignatureHeader carries the shared secret for webhook calls.
const WebhookSignatureHeader = "X-Webhook-Secret"

// WebhookHandler receives subscription lifecycle events from the payments
// provider.
type WebhookHandler struct {
	userService services.UserServiceInterface
	cfg         *config.Config
	logger      *observability.Logger
}

// NewWebhookHandler creates a new WebhookHandler instance
func NewWebhookHandler(userService services.UserServiceInterface, cfg *config.Config, logger *observability.Logger) *WebhookHandler {
	return &WebhookHandler{
		userService: userService,
		cfg:         cfg,
		logger:      logger,
	}
}

// HandleSubscriptionEvent applies a subscription created/updated/deleted
// event to the user's premium entitlements. Guarded by the shared secret.
func (h *WebhookHandler) HandleSubscriptionEvent(c *gin.Context) {
	secret := c.GetHeader(WebhookSignatureHeader)
	if h.cfg.Server.WebhookSecret == "" ||
		subtle.ConstantTimeCompare([]byte(secret), []byte(h.cfg.Server.WebhookSecret)) != 1 {
		StandardizeHTTPError(c, http.StatusUnauthorized, "Invalid webhook secret", "")
		return
	}

	var event models.SubscriptionEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		HandleValidationError(c, "event", "", err.Error())
		return
	}

	if err := h.userService.ApplySubscriptionEvent(c.Request.Context(), &event); err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "applied"})
}
