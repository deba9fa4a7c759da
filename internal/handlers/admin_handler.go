package handlers

import (
	"net/http"
	"strconv"

	"questly/internal/config"
	"questly/internal/models"
	"questly/internal/observability"
	"questly/internal/services"
	contextutils "questly/internal/utils"

	"github.com/gin-gonic/gin"
)

// AdminHandler serves the guarded operational surface: rotation, schedule
// generation, topic import, user reset, and leaderboard snapshots.
type AdminHandler struct {
	scheduleService    services.ScheduleServiceInterface
	topicService       services.TopicServiceInterface
	progressService    services.ProgressServiceInterface
	leaderboardService services.LeaderboardServiceInterface
	cfg                *config.Config
	logger             *observability.Logger
}

// NewAdminHandler creates a new AdminHandler instance
func NewAdminHandler(
	scheduleService services.ScheduleServiceInterface,
	topicService services.TopicServiceInterface,
	progressService services.ProgressServiceInterface,
	leaderboardService services.LeaderboardServiceInterface,
	cfg *config.Config,
	logger *observability.Logger,
) *AdminHandler {
	return &AdminHandler{
		scheduleService:    scheduleService,
		topicService:       topicService,
		progressService:    progressService,
		leaderboardService: leaderboardService,
		cfg:                cfg,
		logger:             logger,
	}
}

// Rotate rotates today's schedule. ?force=true overwrites an existing row and
// bypasses the time-window guard.
func (h *AdminHandler) Rotate(c *gin.Context) {
	force := c.Query("force") == "true"

	schedule, err := h.scheduleService.RotateNow(c.Request.Context(), force)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"date":     schedule.Date,
		"forced":   force,
		"schedule": schedule,
	})
}

type generateScheduleRequest struct {
	StartDate string `json:"start_date" binding:"required"`
	EndDate   string `json:"end_date" binding:"required"`
}

// GenerateSchedule deterministically generates schedule rows for a date range.
func (h *AdminHandler) GenerateSchedule(c *gin.Context) {
	var req generateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleValidationError(c, "range", "", err.Error())
		return
	}

	count, err := h.scheduleService.GenerateSchedule(c.Request.Context(), req.StartDate, req.EndDate)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"start_date": req.StartDate,
		"end_date":   req.EndDate,
		"days":       count,
	})
}

type importTopicsRequest struct {
	Topics []models.Topic `json:"topics" binding:"required"`
}

// ImportTopics bulk-imports topics. Existing ids are overwritten.
func (h *AdminHandler) ImportTopics(c *gin.Context) {
	var req importTopicsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleValidationError(c, "topics", "", err.Error())
		return
	}
	if len(req.Topics) == 0 {
		HandleValidationError(c, "topics", "", "at least one topic is required")
		return
	}

	count, err := h.topicService.ImportTopics(c.Request.Context(), req.Topics)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"imported": count})
}

// ResetUser deletes a user's progress, points, leaderboard entries, and chat
// usage. The account row survives.
func (h *AdminHandler) ResetUser(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("id"))
	if err != nil || userID <= 0 {
		HandleValidationError(c, "id", c.Param("id"), "expected a positive integer user id")
		return
	}

	if err := h.progressService.ResetUser(c.Request.Context(), userID); err != nil {
		HandleAppError(c, err)
		return
	}

	h.logger.Info(c.Request.Context(), "User progress reset", map[string]interface{}{
		"user_id": userID,
	})
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "status": "reset"})
}

type snapshotRequest struct {
	Date string `json:"date" binding:"required"`
}

// SnapshotLeaderboard recomputes the leaderboard snapshot for a date.
func (h *AdminHandler) SnapshotLeaderboard(c *gin.Context) {
	var req snapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleValidationError(c, "date", "", err.Error())
		return
	}
	if _, err := contextutils.ParseBusinessDate(req.Date, h.cfg.BusinessTimezone()); err != nil {
		HandleValidationError(c, "date", req.Date, "expected YYYY-MM-DD")
		return
	}

	count, err := h.leaderboardService.Snapshot(c.Request.Context(), req.Date)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"date":   req.Date,
		"ranked": count,
	})
}
