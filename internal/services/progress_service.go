package services

import (
	"context"
	"database/sql"
	"math"

	"questly/internal/config"
	"questly/internal/models"
	"questly/internal/observability"
	contextutils "questly/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// ProgressServiceInterface defines the interface for progress and points operations
type ProgressServiceInterface interface {
	SubmitProgress(ctx context.Context, userID int, date, topicID string, quizScore, quizTotal int, completed bool) (*models.PointsResult, error)
	GetProgressForDate(ctx context.Context, userID int, date string) ([]*models.UserProgress, error)
	GetUserPoints(ctx context.Context, userID int) (*models.UserPoints, error)
	ResetUser(ctx context.Context, userID int) error
}

// ProgressService implements the progress and points engine
type ProgressService struct {
	db     *sql.DB
	cfg    *config.Config
	logger *observability.Logger
}

// NewProgressService creates a new ProgressService instance
func NewProgressService(db *sql.DB, cfg *config.Config, logger *observability.Logger) *ProgressService {
	return &ProgressService{
		db:     db,
		cfg:    cfg,
		logger: logger,
	}
}

// ComputeBasePoints returns the base points for a quiz score.
func ComputeBasePoints(quizScore int) int {
	if quizScore < 0 {
		quizScore = 0
	}
	return quizScore * config.BasePointsPerCorrect
}

// ComputeStreakTransition returns the new streak given the stored
// last-active date ("" when none), the stored streak, and today's business
// date. Same-day activity leaves the streak unchanged; a one-day step or a
// first-ever submission increments it; a gap of two or more days resets to 1.
func ComputeStreakTransition(lastActiveDate string, streak int, today, timezone string) (int, error) {
	if lastActiveDate == "" {
		return 1, nil
	}

	daysSince, err := contextutils.DaysBetween(lastActiveDate, today, timezone)
	if err != nil {
		return 0, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "invalid streak dates %q..%q", lastActiveDate, today)
	}

	switch {
	case daysSince == 0:
		return streak, nil
	case daysSince == 1:
		next := streak + 1
		if next < 1 {
			next = 1
		}
		return next, nil
	default:
		// Gap of two or more days, or a backdated submission
		return 1, nil
	}
}

// ComputeMultiplier returns the streak multiplier, capped at 2.0.
func ComputeMultiplier(streak int) float64 {
	extra := streak - 1
	if extra < 0 {
		extra = 0
	}
	multiplier := 1 + config.StreakMultiplierStep*float64(extra)
	if multiplier > config.StreakMultiplierCap {
		return config.StreakMultiplierCap
	}
	return multiplier
}

// ComputePointsGained applies the multiplier and rounds to the nearest point.
func ComputePointsGained(basePoints, bonus int, multiplier float64) int {
	return int(math.Round(float64(basePoints+bonus) * multiplier))
}

// SubmitProgress records a quiz attempt and awards points. The attempt row is
// written first; the totals update runs in its own transaction with row-level
// locking. Resubmission for an already-awarded attempt overwrites the recorded
// score but awards no further points. If the totals update fails after the
// attempt row is written, the computed values are returned with multiplier
// forced to 1 and persisted=false instead of an error.
func (s *ProgressService) SubmitProgress(ctx context.Context, userID int, date, topicID string, quizScore, quizTotal int, completed bool) (result *models.PointsResult, err error) {
	ctx, span := observability.TracePointsFunction(ctx, "SubmitProgress",
		observability.AttributeUserID(userID),
		observability.AttributeDate(date),
		observability.AttributeTopicID(topicID),
		attribute.Int("quiz.score", quizScore),
		attribute.Bool("quiz.completed", completed),
	)
	defer observability.FinishSpan(span, &err)

	if _, parseErr := contextutils.ParseBusinessDate(date, s.cfg.BusinessTimezone()); parseErr != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "invalid date %q", date)
	}
	if quizTotal < 0 || quizScore > quizTotal {
		return nil, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "score %d out of range for total %d", quizScore, quizTotal)
	}

	// Upsert the attempt row, preserving any prior award. RETURNING exposes
	// the preserved points_awarded so resubmissions are detected in one trip.
	var priorAward sql.NullInt64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO user_progress (user_id, progress_date, topic_id, quiz_score, quiz_total, completed)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, progress_date, topic_id) DO UPDATE SET
			quiz_score = EXCLUDED.quiz_score,
			quiz_total = EXCLUDED.quiz_total,
			completed = EXCLUDED.completed,
			updated_at = NOW()
		RETURNING points_awarded
	`, userID, date, topicID, quizScore, quizTotal, completed).Scan(&priorAward)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to upsert progress")
	}

	basePoints := ComputeBasePoints(quizScore)

	if priorAward.Valid {
		// Score overwritten above; points stay as originally awarded
		span.SetAttributes(attribute.Bool("points.resubmission", true))
		points, pointsErr := s.GetUserPoints(ctx, userID)
		if pointsErr != nil {
			return nil, pointsErr
		}
		return &models.PointsResult{
			PointsGained: 0,
			BasePoints:   basePoints,
			Bonus:        0,
			Multiplier:   ComputeMultiplier(points.Streak),
			Streak:       points.Streak,
			Persisted:    true,
		}, nil
	}

	awarded, awardErr := s.awardPoints(ctx, userID, date, topicID, basePoints)
	if awardErr != nil {
		// Degraded path: the attempt row is written but the totals are not
		s.logger.Error(ctx, "Failed to persist points, returning degraded result", awardErr, map[string]interface{}{
			"user_id":  userID,
			"date":     date,
			"topic_id": topicID,
		})
		span.SetAttributes(attribute.Bool("points.persisted", false))
		return &models.PointsResult{
			PointsGained: ComputePointsGained(basePoints, 0, 1.0),
			BasePoints:   basePoints,
			Bonus:        0,
			Multiplier:   1.0,
			Streak:       0,
			Persisted:    false,
		}, nil
	}

	span.SetAttributes(
		attribute.Int("points.gained", awarded.PointsGained),
		attribute.Int("points.streak", awarded.Streak),
	)
	return awarded, nil
}

// awardPoints runs the read-modify-write of user_points in one transaction
// with a row lock, so concurrent submissions for the same user serialize.
func (s *ProgressService) awardPoints(ctx context.Context, userID int, date, topicID string, basePoints int) (result *models.PointsResult, err error) {
	tz := s.cfg.BusinessTimezone()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				s.logger.Error(ctx, "Failed to rollback points transaction", rollbackErr)
			}
		}
	}()

	// Ensure the totals row exists, then lock it
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO user_points (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID); err != nil {
		return nil, contextutils.WrapError(err, "failed to ensure points row")
	}

	var totalPoints, streak, longestStreak int
	var lastActive sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT total_points, streak, longest_streak, to_char(last_active_date, 'YYYY-MM-DD')
		FROM user_points
		WHERE user_id = $1
		FOR UPDATE
	`, userID).Scan(&totalPoints, &streak, &longestStreak, &lastActive)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to lock points row")
	}

	// Completion bonus: rewards finishing the full free trio, independent of tier
	var completedCount int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM user_progress
		WHERE user_id = $1 AND progress_date = $2 AND completed = TRUE
	`, userID, date).Scan(&completedCount)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to count completions")
	}
	bonus := 0
	if completedCount >= config.CompletionBonusThreshold {
		bonus = config.CompletionBonus
	}

	newStreak, err := ComputeStreakTransition(lastActive.String, streak, date, tz)
	if err != nil {
		return nil, err
	}
	multiplier := ComputeMultiplier(newStreak)
	pointsGained := ComputePointsGained(basePoints, bonus, multiplier)

	newLongest := longestStreak
	if newStreak > newLongest {
		newLongest = newStreak
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE user_points
		SET total_points = total_points + $1,
		    streak = $2,
		    longest_streak = $3,
		    last_active_date = $4,
		    updated_at = NOW()
		WHERE user_id = $5
	`, pointsGained, newStreak, newLongest, date, userID); err != nil {
		return nil, contextutils.WrapError(err, "failed to update points totals")
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE user_progress
		SET points_awarded = $1, updated_at = NOW()
		WHERE user_id = $2 AND progress_date = $3 AND topic_id = $4
	`, pointsGained, userID, date, topicID); err != nil {
		return nil, contextutils.WrapError(err, "failed to record awarded points")
	}

	if err = tx.Commit(); err != nil {
		return nil, contextutils.WrapError(err, "failed to commit points transaction")
	}

	return &models.PointsResult{
		PointsGained: pointsGained,
		BasePoints:   basePoints,
		Bonus:        bonus,
		Multiplier:   multiplier,
		Streak:       newStreak,
		Persisted:    true,
	}, nil
}

// GetProgressForDate returns the caller's attempts for a business date.
func (s *ProgressService) GetProgressForDate(ctx context.Context, userID int, date string) (result []*models.UserProgress, err error) {
	ctx, span := observability.TracePointsFunction(ctx, "GetProgressForDate",
		observability.AttributeUserID(userID),
		observability.AttributeDate(date),
	)
	defer observability.FinishSpan(span, &err)

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, to_char(progress_date, 'YYYY-MM-DD'), topic_id,
		       quiz_score, quiz_total, completed, points_awarded, created_at, updated_at
		FROM user_progress
		WHERE user_id = $1 AND progress_date = $2
		ORDER BY topic_id
	`, userID, date)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query progress")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	var progress []*models.UserProgress
	for rows.Next() {
		p := &models.UserProgress{}
		if err = rows.Scan(&p.UserID, &p.Date, &p.TopicID, &p.QuizScore, &p.QuizTotal, &p.Completed, &p.PointsAwarded, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan progress row")
		}
		progress = append(progress, p)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate progress rows")
	}

	span.SetAttributes(attribute.Int("progress.count", len(progress)))
	return progress, nil
}

// GetUserPoints returns the caller's totals row, zero-valued when absent.
func (s *ProgressService) GetUserPoints(ctx context.Context, userID int) (result *models.UserPoints, err error) {
	ctx, span := observability.TracePointsFunction(ctx, "GetUserPoints",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	points := &models.UserPoints{UserID: userID}
	err = s.db.QueryRowContext(ctx, `
		SELECT total_points, streak, longest_streak, to_char(last_active_date, 'YYYY-MM-DD'), updated_at
		FROM user_points
		WHERE user_id = $1
	`, userID).Scan(&points.TotalPoints, &points.Streak, &points.LongestStreak, &points.LastActiveDate, &points.UpdatedAt)
	if err == sql.ErrNoRows {
		return points, nil
	}
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query user points")
	}
	return points, nil
}

// ResetUser clears a user's progress, points, and leaderboard rows. Admin only.
func (s *ProgressService) ResetUser(ctx context.Context, userID int) (err error) {
	ctx, span := observability.TracePointsFunction(ctx, "ResetUser",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return contextutils.WrapError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				s.logger.Error(ctx, "Failed to rollback user reset", rollbackErr)
			}
		}
	}()

	for _, query := range []string{
		`DELETE FROM user_progress WHERE user_id = $1`,
		`DELETE FROM user_points WHERE user_id = $1`,
		`DELETE FROM leaderboard_entries WHERE user_id = $1`,
		`DELETE FROM chat_usage WHERE user_id = $1`,
	} {
		if _, err = tx.ExecContext(ctx, query, userID); err != nil {
			return contextutils.WrapError(err, "failed to reset user data")
		}
	}

	if err = tx.Commit(); err != nil {
		return contextutils.WrapError(err, "failed to commit user reset")
	}

	s.logger.Info(ctx, "User data reset", map[string]interface{}{"user_id": userID})
	return nil
}
