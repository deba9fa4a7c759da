package services

import (
	"testing"

	"questly/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedBank_QuizContentFor(t *testing.T) {
	bank := NewSeedBank()
	topic := &models.Topic{
		ID:         "go-basics",
		Title:      "Go Basics",
		Blurb:      "An introduction to the Go programming language",
		Difficulty: models.DifficultyBeginner,
		Domain:     "Programming",
		Angles:     []string{"Syntax and tooling"},
	}

	content := bank.QuizContentFor(topic)
	require.NotNil(t, content)

	// Seed content must always pass the same validation as LLM content
	validated, err := ValidateQuizContent(content)
	require.NoError(t, err)
	assert.Len(t, validated.Quiz, 5)

	for i, q := range content.Quiz {
		assert.NotEmpty(t, q.Question, "question %d is empty", i)
		assert.Len(t, q.Options, 4, "question %d option count", i)
		assert.GreaterOrEqual(t, q.CorrectIndex, 0)
		assert.LessOrEqual(t, q.CorrectIndex, 3)
	}

	// The first question's correct answer is the topic's difficulty
	first := content.Quiz[0]
	assert.Equal(t, string(models.DifficultyBeginner), first.Options[first.CorrectIndex])

	// Quick question mirrors the first quiz question
	assert.Equal(t, content.Quiz[0], content.Quick)
}

func TestSeedBank_Deterministic(t *testing.T) {
	bank := NewSeedBank()
	topic := &models.Topic{
		ID:         "t1",
		Title:      "Ocean Currents",
		Difficulty: models.DifficultyIntermediate,
	}

	first := bank.QuizContentFor(topic)
	second := bank.QuizContentFor(topic)
	assert.Equal(t, first, second)
}

func TestSeedBank_FillsMissingMetadata(t *testing.T) {
	bank := NewSeedBank()
	topic := &models.Topic{
		ID:         "bare",
		Title:      "Bare Topic",
		Difficulty: models.DifficultyAdvanced,
	}

	content := bank.QuizContentFor(topic)
	_, err := ValidateQuizContent(content)
	require.NoError(t, err)

	// Blurb and domain placeholders still produce non-empty options
	for _, q := range content.Quiz {
		for _, option := range q.Options {
			assert.NotEmpty(t, option)
		}
	}
}
