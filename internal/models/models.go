// Package models defines the core domain types for the Questly backend.
package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Difficulty is the difficulty band a topic belongs to.
type Difficulty string

const (
	// DifficultyBeginner is the entry difficulty band
	DifficultyBeginner Difficulty = "Beginner"
	// DifficultyIntermediate is the middle difficulty band
	DifficultyIntermediate Difficulty = "Intermediate"
	// DifficultyAdvanced is the top difficulty band
	DifficultyAdvanced Difficulty = "Advanced"
)

// Difficulties lists all difficulty bands in ascending order.
var Difficulties = []Difficulty{DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced}

// IsValid reports whether d is a known difficulty band.
func (d Difficulty) IsValid() bool {
	switch d {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced:
		return true
	}
	return false
}

// Topic is a learning topic in the rotation pool. Immutable once created
// except for IsActive.
type Topic struct {
	ID          string     `json:"id" yaml:"id"`
	Title       string     `json:"title" yaml:"title"`
	Blurb       string     `json:"blurb" yaml:"blurb"`
	Difficulty  Difficulty `json:"difficulty" yaml:"difficulty"`
	Domain      string     `json:"domain" yaml:"domain"`
	Angles      []string   `json:"angles" yaml:"angles"`
	SeedContext string     `json:"seed_context" yaml:"seed_context"`
	Tags        []string   `json:"tags" yaml:"tags"`
	IsActive    bool       `json:"is_active" yaml:"is_active"`
	CreatedAt   time.Time  `json:"created_at" yaml:"-"`
}

// DailySchedule assigns one topic per difficulty per tier to a calendar date.
// Premium ids must differ from the matching free id when both are set.
type DailySchedule struct {
	Date                  string         `json:"date"`
	FreeBeginnerID        string         `json:"free_beginner_id"`
	FreeIntermediateID    string         `json:"free_intermediate_id"`
	FreeAdvancedID        string         `json:"free_advanced_id"`
	PremiumBeginnerID     sql.NullString `json:"-"`
	PremiumIntermediateID sql.NullString `json:"-"`
	PremiumAdvancedID     sql.NullString `json:"-"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

// FreeTopicIDs returns the three free-tier topic ids in difficulty order.
func (s *DailySchedule) FreeTopicIDs() []string {
	return []string{s.FreeBeginnerID, s.FreeIntermediateID, s.FreeAdvancedID}
}

// PremiumTopicIDs returns the set premium-tier topic ids in difficulty order.
func (s *DailySchedule) PremiumTopicIDs() []string {
	ids := make([]string, 0, 3)
	for _, v := range []sql.NullString{s.PremiumBeginnerID, s.PremiumIntermediateID, s.PremiumAdvancedID} {
		if v.Valid && v.String != "" {
			ids = append(ids, v.String)
		}
	}
	return ids
}

// TopicIDsForTier returns the topic ids a user of the given tier sees.
func (s *DailySchedule) TopicIDsForTier(isPremium bool) []string {
	ids := s.FreeTopicIDs()
	if isPremium {
		ids = append(ids, s.PremiumTopicIDs()...)
	}
	return ids
}

// MCQ is a single multiple-choice question with exactly four options.
type MCQ struct {
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Explanation  string   `json:"explanation,omitempty"`
}

// QuizContent is the generated content for one (date, topic) pair: a quick
// single question plus a five-question quiz.
type QuizContent struct {
	Quick MCQ   `json:"quick"`
	Quiz  []MCQ `json:"quiz"`
}

// QuizCacheEntry is a persisted QuizContent payload keyed by (date, topic).
// Write-once-read-many.
type QuizCacheEntry struct {
	Date      string      `json:"date"`
	TopicID   string      `json:"topic_id"`
	Payload   QuizContent `json:"payload"`
	Source    string      `json:"source"`
	CreatedAt time.Time   `json:"created_at"`
}

// MarshalPayload serializes the cached payload for storage.
func (e *QuizCacheEntry) MarshalPayload() ([]byte, error) {
	return json.Marshal(e.Payload)
}

// UserProgress records one quiz attempt for a (user, date, topic) key.
type UserProgress struct {
	UserID        int           `json:"user_id"`
	Date          string        `json:"date"`
	TopicID       string        `json:"topic_id"`
	QuizScore     int           `json:"quiz_score"`
	QuizTotal     int           `json:"quiz_total"`
	Completed     bool          `json:"completed"`
	PointsAwarded sql.NullInt64 `json:"-"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// UserPoints is the single per-user points/streak row.
type UserPoints struct {
	UserID         int            `json:"user_id"`
	TotalPoints    int            `json:"total_points"`
	Streak         int            `json:"streak"`
	LongestStreak  int            `json:"longest_streak"`
	LastActiveDate sql.NullString `json:"-"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// PointsResult is the outcome of a quiz submission.
type PointsResult struct {
	PointsGained int     `json:"points_gained"`
	BasePoints   int     `json:"base_points"`
	Bonus        int     `json:"bonus"`
	Multiplier   float64 `json:"multiplier"`
	Streak       int     `json:"streak"`
	Persisted    bool    `json:"persisted"`
}

// LeaderboardEntry is a denormalized daily ranking row. Safe to delete and regenerate.
type LeaderboardEntry struct {
	Date     string `json:"date"`
	UserID   int    `json:"user_id"`
	Username string `json:"username,omitempty"`
	Points   int    `json:"points"`
	Rank     int    `json:"rank"`
}

// StreakEntry is a read-only ranking row over current or longest streaks.
type StreakEntry struct {
	UserID        int    `json:"user_id"`
	Username      string `json:"username,omitempty"`
	Streak        int    `json:"streak"`
	LongestStreak int    `json:"longest_streak"`
}

// User is an account bridged from the external identity provider.
type User struct {
	ID                 int            `json:"id"`
	ExternalID         sql.NullString `json:"-"`
	Username           string         `json:"username"`
	Email              sql.NullString `json:"-"`
	PasswordHash       sql.NullString `json:"-"`
	Timezone           sql.NullString `json:"-"`
	IsPremium          bool           `json:"is_premium"`
	IsAdmin            bool           `json:"is_admin"`
	Plan               sql.NullString `json:"-"`
	SubscriptionStatus sql.NullString `json:"-"`
	CurrentPeriodEnd   sql.NullTime   `json:"-"`
	CreatedAt          time.Time      `json:"created_at"`
	LastActive         sql.NullTime   `json:"-"`
}

// EffectiveTimezone returns the user's configured timezone or the empty string.
func (u *User) EffectiveTimezone() string {
	if u != nil && u.Timezone.Valid {
		return u.Timezone.String
	}
	return ""
}

// SubscriptionEvent is the payload delivered by the payments provider webhook.
type SubscriptionEvent struct {
	Type             string `json:"type" binding:"required"`
	UserID           int    `json:"user_id" binding:"required"`
	Plan             string `json:"plan"`
	Status           string `json:"status"`
	CurrentPeriodEnd string `json:"current_period_end"`
}
