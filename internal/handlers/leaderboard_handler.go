package handlers

import (
	"net/http"
	"strconv"

	"questly/internal/config"
	"questly/internal/observability"
	"questly/internal/services"
	contextutils "questly/internal/utils"

	"github.com/gin-gonic/gin"
)

// LeaderboardHandler serves the daily and streak rankings.
type LeaderboardHandler struct {
	leaderboardService services.LeaderboardServiceInterface
	cfg                *config.Config
	logger             *observability.Logger
}

// NewLeaderboardHandler creates a new LeaderboardHandler instance
func NewLeaderboardHandler(leaderboardService services.LeaderboardServiceInterface, cfg *config.Config, logger *observability.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{
		leaderboardService: leaderboardService,
		cfg:                cfg,
		logger:             logger,
	}
}

func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, false
	}
	return limit, true
}

// GetDaily returns the ranked snapshot for a date.
func (h *LeaderboardHandler) GetDaily(c *gin.Context) {
	date := c.Param("date")
	if _, err := contextutils.ParseBusinessDate(date, h.cfg.BusinessTimezone()); err != nil {
		HandleValidationError(c, "date", date, "expected YYYY-MM-DD")
		return
	}
	limit, ok := parseLimit(c)
	if !ok {
		HandleValidationError(c, "limit", c.Query("limit"), "expected a non-negative integer")
		return
	}

	entries, err := h.leaderboardService.GetDaily(c.Request.Context(), date, limit)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"date":    date,
		"entries": entries,
	})
}

// GetStreaks returns the current/longest streak rankings.
func (h *LeaderboardHandler) GetStreaks(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		HandleValidationError(c, "limit", c.Query("limit"), "expected a non-negative integer")
		return
	}

	entries, err := h.leaderboardService.GetStreaks(c.Request.Context(), limit)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
