package services

import (
	"testing"
	"time"

	"questly/internal/config"
	"questly/internal/models"
	"questly/internal/observability"
	contextutils "questly/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validQuizContent(questionCount int) *models.QuizContent {
	mcq := models.MCQ{
		Question:     "Which layer caches generated quizzes?",
		Options:      []string{"Memory", "Postgres", "Both", "Neither"},
		CorrectIndex: 2,
		Explanation:  "Both tiers are written through.",
	}
	quiz := make([]models.MCQ, questionCount)
	for i := range quiz {
		quiz[i] = mcq
	}
	return &models.QuizContent{Quick: mcq, Quiz: quiz}
}

func TestValidateQuizContent(t *testing.T) {
	content, err := ValidateQuizContent(validQuizContent(5))
	require.NoError(t, err)
	assert.Len(t, content.Quiz, 5)
}

func TestValidateQuizContent_TruncatesLongQuiz(t *testing.T) {
	content, err := ValidateQuizContent(validQuizContent(8))
	require.NoError(t, err)
	assert.Len(t, content.Quiz, 5)
}

func TestValidateQuizContent_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.QuizContent)
	}{
		{
			name:   "too few questions",
			mutate: func(c *models.QuizContent) { c.Quiz = c.Quiz[:4] },
		},
		{
			name:   "three options",
			mutate: func(c *models.QuizContent) { c.Quiz[2].Options = c.Quiz[2].Options[:3] },
		},
		{
			name: "five options",
			mutate: func(c *models.QuizContent) {
				c.Quiz[0].Options = append(c.Quiz[0].Options, "Extra")
			},
		},
		{
			name:   "correct index out of range",
			mutate: func(c *models.QuizContent) { c.Quick.CorrectIndex = 4 },
		},
		{
			name:   "negative correct index",
			mutate: func(c *models.QuizContent) { c.Quiz[1].CorrectIndex = -1 },
		},
		{
			name:   "empty question text",
			mutate: func(c *models.QuizContent) { c.Quiz[3].Question = "" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := validQuizContent(5)
			tt.mutate(content)

			_, err := ValidateQuizContent(content)
			require.Error(t, err)
			assert.True(t, contextutils.IsError(err, contextutils.ErrLLMResponseInvalid))
		})
	}
}

func TestValidateQuizContent_Nil(t *testing.T) {
	_, err := ValidateQuizContent(nil)
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrLLMResponseInvalid))
}

func newMemoryOnlyQuizService(t *testing.T) *QuizContentService {
	t.Helper()
	cfg := &config.Config{}
	cfg.Quest.Timezone = "America/New_York"
	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	return NewQuizContentService(nil, cfg, logger, nil, nil)
}

func TestQuizContentService_MemoryCacheExpiresAtEndOfDay(t *testing.T) {
	service := newMemoryOnlyQuizService(t)

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	noon := time.Date(2025, 3, 10, 12, 0, 0, 0, loc)
	service.WithClock(func() time.Time { return noon })

	content := validQuizContent(5)
	service.memoryPut("2025-03-10:topic-1", content)

	// Same business day: hit
	assert.Same(t, content, service.memoryGet("2025-03-10:topic-1"))

	// Next business day: expired
	service.WithClock(func() time.Time { return noon.Add(24 * time.Hour) })
	assert.Nil(t, service.memoryGet("2025-03-10:topic-1"))
}

func TestQuizContentService_MemoryCacheMiss(t *testing.T) {
	service := newMemoryOnlyQuizService(t)
	assert.Nil(t, service.memoryGet("2025-03-10:unknown"))
}

func TestQuizContentService_MemoryCacheBounded(t *testing.T) {
	service := newMemoryOnlyQuizService(t)
	service.maxEntries = 8

	content := validQuizContent(5)
	for i := 0; i < 20; i++ {
		service.memoryPut("2025-03-10:topic-"+string(rune('a'+i)), content)
	}

	service.mu.Lock()
	defer service.mu.Unlock()
	assert.LessOrEqual(t, len(service.memory), 8)
}
