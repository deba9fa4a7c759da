//go:build integration
// +build integration

package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressService_SubmitProgressAwardsOnce(t *testing.T) {
	db := sharedTestDBSetup(t)
	defer func() { _ = db.Close() }()

	svc := NewProgressService(db, integrationTestConfig(), integrationLogger())
	ctx := context.Background()
	userID := createIntegrationUser(t, db, "progress-once")

	res, err := svc.SubmitProgress(ctx, userID, "2030-06-10", "go-basics", 4, 5, true)
	require.NoError(t, err)
	assert.Equal(t, 40, res.PointsGained)
	assert.Equal(t, 40, res.BasePoints)
	assert.Equal(t, 0, res.Bonus)
	assert.InDelta(t, 1.0, res.Multiplier, 0.0001)
	assert.Equal(t, 1, res.Streak)
	assert.True(t, res.Persisted)

	// Resubmission overwrites the score but awards nothing further
	res, err = svc.SubmitProgress(ctx, userID, "2030-06-10", "go-basics", 5, 5, true)
	require.NoError(t, err)
	assert.Equal(t, 0, res.PointsGained)
	assert.True(t, res.Persisted)

	points, err := svc.GetUserPoints(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 40, points.TotalPoints)
	assert.Equal(t, 1, points.Streak)

	rows, err := svc.GetProgressForDate(ctx, userID, "2030-06-10")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 5, rows[0].QuizScore)
}

func TestProgressService_CompletionBonusOnThirdTopic(t *testing.T) {
	db := sharedTestDBSetup(t)
	defer func() { _ = db.Close() }()

	svc := NewProgressService(db, integrationTestConfig(), integrationLogger())
	ctx := context.Background()
	userID := createIntegrationUser(t, db, "progress-bonus")

	res, err := svc.SubmitProgress(ctx, userID, "2030-06-10", "topic-a", 4, 5, true)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Bonus)

	res, err = svc.SubmitProgress(ctx, userID, "2030-06-10", "topic-b", 4, 5, true)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Bonus)

	// The third completed topic of the day crosses the bonus threshold
	res, err = svc.SubmitProgress(ctx, userID, "2030-06-10", "topic-c", 4, 5, true)
	require.NoError(t, err)
	assert.Equal(t, 50, res.Bonus)
	assert.Equal(t, 90, res.PointsGained)

	points, err := svc.GetUserPoints(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 170, points.TotalPoints)
}

func TestProgressService_ConsecutiveDaysGrowStreak(t *testing.T) {
	db := sharedTestDBSetup(t)
	defer func() { _ = db.Close() }()

	svc := NewProgressService(db, integrationTestConfig(), integrationLogger())
	ctx := context.Background()
	userID := createIntegrationUser(t, db, "progress-streak")

	res, err := svc.SubmitProgress(ctx, userID, "2030-06-10", "topic-a", 3, 5, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Streak)

	res, err = svc.SubmitProgress(ctx, userID, "2030-06-11", "topic-a", 3, 5, false)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Streak)
	assert.InDelta(t, 1.1, res.Multiplier, 0.0001)
	assert.Equal(t, 33, res.PointsGained)

	// A two-day gap resets the streak
	res, err = svc.SubmitProgress(ctx, userID, "2030-06-14", "topic-a", 3, 5, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Streak)
	assert.InDelta(t, 1.0, res.Multiplier, 0.0001)
}

func TestProgressService_ResetUserClearsState(t *testing.T) {
	db := sharedTestDBSetup(t)
	defer func() { _ = db.Close() }()

	svc := NewProgressService(db, integrationTestConfig(), integrationLogger())
	ctx := context.Background()
	userID := createIntegrationUser(t, db, "progress-reset")

	_, err := svc.SubmitProgress(ctx, userID, "2030-06-10", "topic-a", 4, 5, true)
	require.NoError(t, err)

	require.NoError(t, svc.ResetUser(ctx, userID))

	points, err := svc.GetUserPoints(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 0, points.TotalPoints)
	assert.Equal(t, 0, points.Streak)

	rows, err := svc.GetProgressForDate(ctx, userID, "2030-06-10")
	require.NoError(t, err)
	assert.Empty(t, rows)
}
