package services

import (
	"context"
	"database/sql"

	"questly/internal/models"
	"questly/internal/observability"
	contextutils "questly/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// LeaderboardServiceInterface defines the interface for leaderboard operations
type LeaderboardServiceInterface interface {
	Snapshot(ctx context.Context, date string) (int, error)
	GetDaily(ctx context.Context, date string, limit int) ([]*models.LeaderboardEntry, error)
	GetStreaks(ctx context.Context, limit int) ([]*models.StreakEntry, error)
}

// LeaderboardService implements leaderboard snapshots and read paths
type LeaderboardService struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewLeaderboardService creates a new LeaderboardService instance
func NewLeaderboardService(db *sql.DB, logger *observability.Logger) *LeaderboardService {
	return &LeaderboardService{
		db:     db,
		logger: logger,
	}
}

// Snapshot recomputes the ranking for a date from awarded progress rows and
// fully overwrites that date's entries. Ranks descend by points with ties
// broken by user id ascending, so re-running with unchanged progress rows is
// idempotent. Returns the number of ranked users.
func (s *LeaderboardService) Snapshot(ctx context.Context, date string) (count int, err error) {
	ctx, span := observability.TraceLeaderboardFunction(ctx, "Snapshot",
		observability.AttributeDate(date),
	)
	defer observability.FinishSpan(span, &err)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				s.logger.Error(ctx, "Failed to rollback leaderboard snapshot", rollbackErr)
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM leaderboard_entries WHERE entry_date = $1`, date); err != nil {
		return 0, contextutils.WrapError(err, "failed to clear prior snapshot")
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO leaderboard_entries (entry_date, user_id, points, rank)
		SELECT $1, user_id, points,
		       ROW_NUMBER() OVER (ORDER BY points DESC, user_id ASC)
		FROM (
			SELECT user_id, SUM(points_awarded) AS points
			FROM user_progress
			WHERE progress_date = $1 AND points_awarded IS NOT NULL
			GROUP BY user_id
		) daily_totals
	`, date)
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to write snapshot")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to get rows affected")
	}

	if err = tx.Commit(); err != nil {
		return 0, contextutils.WrapError(err, "failed to commit snapshot")
	}

	span.SetAttributes(attribute.Int64("leaderboard.rows", rows))
	s.logger.Info(ctx, "Leaderboard snapshot written", map[string]interface{}{
		"date": date,
		"rows": rows,
	})
	return int(rows), nil
}

// GetDaily returns the ranked snapshot for a date.
func (s *LeaderboardService) GetDaily(ctx context.Context, date string, limit int) (result []*models.LeaderboardEntry, err error) {
	ctx, span := observability.TraceLeaderboardFunction(ctx, "GetDaily",
		observability.AttributeDate(date),
		observability.AttributeLimit(limit),
	)
	defer observability.FinishSpan(span, &err)

	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT to_char(le.entry_date, 'YYYY-MM-DD'), le.user_id, u.username, le.points, le.rank
		FROM leaderboard_entries le
		JOIN users u ON u.id = le.user_id
		WHERE le.entry_date = $1
		ORDER BY le.rank
		LIMIT $2
	`, date, limit)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query leaderboard")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	var entries []*models.LeaderboardEntry
	for rows.Next() {
		entry := &models.LeaderboardEntry{}
		if err = rows.Scan(&entry.Date, &entry.UserID, &entry.Username, &entry.Points, &entry.Rank); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan leaderboard entry")
		}
		entries = append(entries, entry)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate leaderboard entries")
	}

	span.SetAttributes(attribute.Int("leaderboard.count", len(entries)))
	return entries, nil
}

// GetStreaks ranks users by current streak, then longest streak, then user
// id. Read-only; no snapshot is written.
func (s *LeaderboardService) GetStreaks(ctx context.Context, limit int) (result []*models.StreakEntry, err error) {
	ctx, span := observability.TraceLeaderboardFunction(ctx, "GetStreaks",
		observability.AttributeLimit(limit),
	)
	defer observability.FinishSpan(span, &err)

	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT up.user_id, u.username, up.streak, up.longest_streak
		FROM user_points up
		JOIN users u ON u.id = up.user_id
		WHERE up.streak > 0 OR up.longest_streak > 0
		ORDER BY up.streak DESC, up.longest_streak DESC, up.user_id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query streaks")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	var entries []*models.StreakEntry
	for rows.Next() {
		entry := &models.StreakEntry{}
		if err = rows.Scan(&entry.UserID, &entry.Username, &entry.Streak, &entry.LongestStreak); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan streak entry")
		}
		entries = append(entries, entry)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate streak entries")
	}

	return entries, nil
}
