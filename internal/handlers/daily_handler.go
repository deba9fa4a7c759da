package handlers

import (
	"net/http"

	"questly/internal/config"
	"questly/internal/models"
	"questly/internal/observability"
	"questly/internal/services"
	contextutils "questly/internal/utils"

	"github.com/gin-gonic/gin"
)

// DailyHandler serves the daily quest surface: topics, quiz content,
// progress submission, points, and the chat quota counter.
type DailyHandler struct {
	userService     services.UserServiceInterface
	scheduleService services.ScheduleServiceInterface
	topicService    services.TopicServiceInterface
	quizService     services.QuizContentServiceInterface
	progressService services.ProgressServiceInterface
	cfg             *config.Config
	logger          *observability.Logger
}

// NewDailyHandler creates a new DailyHandler instance
func NewDailyHandler(
	userService services.UserServiceInterface,
	scheduleService services.ScheduleServiceInterface,
	topicService services.TopicServiceInterface,
	quizService services.QuizContentServiceInterface,
	progressService services.ProgressServiceInterface,
	cfg *config.Config,
	logger *observability.Logger,
) *DailyHandler {
	return &DailyHandler{
		userService:     userService,
		scheduleService: scheduleService,
		topicService:    topicService,
		quizService:     quizService,
		progressService: progressService,
		cfg:             cfg,
		logger:          logger,
	}
}

// today resolves the caller's business date.
func (h *DailyHandler) today() string {
	return contextutils.BusinessDate(h.cfg.BusinessTimezone())
}

// scheduleForToday loads today's schedule, rotating one in when missing.
func (h *DailyHandler) scheduleForToday(c *gin.Context) (*models.DailySchedule, string, error) {
	date := h.today()
	schedule, err := h.scheduleService.EnsureScheduleForDate(c.Request.Context(), date)
	if err != nil {
		return nil, date, err
	}
	return schedule, date, nil
}

// GetDailyTopics returns today's topics for the caller's tier.
func (h *DailyHandler) GetDailyTopics(c *gin.Context) {
	userID, ok := GetUserIDFromContext(c)
	if !ok {
		StandardizeHTTPError(c, http.StatusUnauthorized, "Authentication required", "")
		return
	}

	premium, err := h.userService.IsPremium(c.Request.Context(), userID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	schedule, date, err := h.scheduleForToday(c)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	topicIDs := schedule.TopicIDsForTier(premium)
	topics := make([]*models.Topic, 0, len(topicIDs))
	for _, id := range topicIDs {
		topic, topicErr := h.topicService.GetTopicByID(c.Request.Context(), id)
		if topicErr != nil {
			HandleAppError(c, topicErr)
			return
		}
		topics = append(topics, topic)
	}

	tier := "free"
	if premium {
		tier = "premium"
	}
	c.JSON(http.StatusOK, gin.H{
		"date":   date,
		"tier":   tier,
		"topics": topics,
	})
}

// GetDailyQuiz returns the quiz content for one of today's topics. The topic
// must be assigned to the caller's tier today.
func (h *DailyHandler) GetDailyQuiz(c *gin.Context) {
	userID, ok := GetUserIDFromContext(c)
	if !ok {
		StandardizeHTTPError(c, http.StatusUnauthorized, "Authentication required", "")
		return
	}
	topicID := c.Param("topicId")
	if topicID == "" {
		HandleValidationError(c, "topicId", topicID, "topic id is required")
		return
	}

	premium, err := h.userService.IsPremium(c.Request.Context(), userID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	schedule, date, err := h.scheduleForToday(c)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	assigned := false
	for _, id := range schedule.TopicIDsForTier(premium) {
		if id == topicID {
			assigned = true
			break
		}
	}
	if !assigned {
		StandardizeHTTPError(c, http.StatusNotFound, "Topic not in today's quests", topicID)
		return
	}

	content, err := h.quizService.GetQuizContent(c.Request.Context(), topicID, date)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"date":     date,
		"topic_id": topicID,
		"content":  content,
	})
}

type submitProgressRequest struct {
	TopicID   string `json:"topic_id" binding:"required"`
	QuizScore int    `json:"quiz_score"`
	QuizTotal int    `json:"quiz_total" binding:"required"`
	Completed bool   `json:"completed"`
}

// SubmitProgress records a quiz result for today and returns the points
// outcome. Resubmissions overwrite the score but award nothing further.
func (h *DailyHandler) SubmitProgress(c *gin.Context) {
	userID, ok := GetUserIDFromContext(c)
	if !ok {
		StandardizeHTTPError(c, http.StatusUnauthorized, "Authentication required", "")
		return
	}

	var req submitProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleValidationError(c, "progress", "", err.Error())
		return
	}

	result, err := h.progressService.SubmitProgress(
		c.Request.Context(), userID, h.today(), req.TopicID,
		req.QuizScore, req.QuizTotal, req.Completed,
	)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetProgressForDate returns the caller's attempts for a date.
func (h *DailyHandler) GetProgressForDate(c *gin.Context) {
	userID, ok := GetUserIDFromContext(c)
	if !ok {
		StandardizeHTTPError(c, http.StatusUnauthorized, "Authentication required", "")
		return
	}
	date := c.Param("date")
	if _, err := contextutils.ParseBusinessDate(date, h.cfg.BusinessTimezone()); err != nil {
		HandleValidationError(c, "date", date, "expected YYYY-MM-DD")
		return
	}

	progress, err := h.progressService.GetProgressForDate(c.Request.Context(), userID, date)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"date":     date,
		"progress": progress,
	})
}

// GetPoints returns the caller's points and streak summary.
func (h *DailyHandler) GetPoints(c *gin.Context) {
	userID, ok := GetUserIDFromContext(c)
	if !ok {
		StandardizeHTTPError(c, http.StatusUnauthorized, "Authentication required", "")
		return
	}

	points, err := h.progressService.GetUserPoints(c.Request.Context(), userID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, points)
}

// ConsumeChatMessage consumes one chat message from the caller's daily quota.
func (h *DailyHandler) ConsumeChatMessage(c *gin.Context) {
	userID, ok := GetUserIDFromContext(c)
	if !ok {
		StandardizeHTTPError(c, http.StatusUnauthorized, "Authentication required", "")
		return
	}

	count, err := h.userService.IncrementChatUsage(c.Request.Context(), userID, h.today())
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"date":          h.today(),
		"message_count": count,
	})
}
