package services

import (
	"fmt"

	"questly/internal/models"
)

// SeedBank produces static fallback quiz content when the LLM provider is
// unavailable or returns an invalid payload. Content is derived from the
// topic's own metadata so every active topic always has something to serve.
type SeedBank struct{}

// NewSeedBank creates a new SeedBank instance
func NewSeedBank() *SeedBank {
	return &SeedBank{}
}

// seedTemplates are generic question frames filled from topic metadata.
var seedTemplates = []struct {
	question    string
	correct     string
	distractors [3]string
}{
	{
		question: "Which difficulty level is the topic %q categorized under?",
		correct:  "%s",
		distractors: [3]string{
			"It has no difficulty level",
			"It spans all difficulty levels equally",
			"The difficulty depends on the day of the week",
		},
	},
	{
		question: "What is the best one-line description of %q?",
		correct:  "%s",
		distractors: [3]string{
			"A topic with no recorded summary",
			"A placeholder entry awaiting review",
			"A duplicate of another topic",
		},
	},
	{
		question: "Which domain does the topic %q belong to?",
		correct:  "%s",
		distractors: [3]string{
			"General trivia",
			"Unclassified",
			"Current events",
		},
	},
	{
		question: "When studying %q, which of these is a recommended angle?",
		correct:  "%s",
		distractors: [3]string{
			"Memorizing unrelated dates",
			"Skipping the fundamentals",
			"Studying a different topic instead",
		},
	},
	{
		question: "What is the primary goal of today's quest on %q?",
		correct:  "Learn the topic through a short quiz",
		distractors: [3]string{
			"Write a long-form essay",
			"Complete a live interview",
			"Submit original research",
		},
	},
}

// QuizContentFor builds a full quick+quiz payload for a topic. Deterministic
// for a given topic.
func (b *SeedBank) QuizContentFor(topic *models.Topic) *models.QuizContent {
	domain := topic.Domain
	if domain == "" {
		domain = "General knowledge"
	}
	blurb := topic.Blurb
	if blurb == "" {
		blurb = "An introduction to " + topic.Title
	}
	angle := "Understanding the core ideas of " + topic.Title
	if len(topic.Angles) > 0 {
		angle = topic.Angles[0]
	}

	correctByIndex := []string{
		string(topic.Difficulty),
		blurb,
		domain,
		angle,
		"", // template 5 carries its own correct answer
	}

	quiz := make([]models.MCQ, 0, len(seedTemplates))
	for i, tpl := range seedTemplates {
		correct := tpl.correct
		if correctByIndex[i] != "" {
			correct = fmt.Sprintf(tpl.correct, correctByIndex[i])
		}
		question := fmt.Sprintf(tpl.question, topic.Title)

		// Correct answer position rotates with the template index
		correctIndex := i % 4
		options := make([]string, 4)
		d := 0
		for pos := 0; pos < 4; pos++ {
			if pos == correctIndex {
				options[pos] = correct
			} else {
				options[pos] = tpl.distractors[d]
				d++
			}
		}

		quiz = append(quiz, models.MCQ{
			Question:     question,
			Options:      options,
			CorrectIndex: correctIndex,
			Explanation:  "Drawn from the topic's own description.",
		})
	}

	return &models.QuizContent{
		Quick: quiz[0],
		Quiz:  quiz,
	}
}
