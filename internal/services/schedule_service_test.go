package services

import (
	"math/rand"
	"testing"
	"time"

	"questly/internal/config"
	"questly/internal/models"
	"questly/internal/observability"
	contextutils "questly/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func poolOf(difficulty models.Difficulty, ids ...string) []*models.Topic {
	topics := make([]*models.Topic, 0, len(ids))
	for _, id := range ids {
		topics = append(topics, &models.Topic{
			ID:         id,
			Title:      "Topic " + id,
			Difficulty: difficulty,
			IsActive:   true,
		})
	}
	return topics
}

func testPools() map[models.Difficulty][]*models.Topic {
	return map[models.Difficulty][]*models.Topic{
		models.DifficultyBeginner:     poolOf(models.DifficultyBeginner, "b-02", "b-01", "b-03"),
		models.DifficultyIntermediate: poolOf(models.DifficultyIntermediate, "i-01", "i-02"),
		models.DifficultyAdvanced:     poolOf(models.DifficultyAdvanced, "a-03", "a-01", "a-02", "a-04"),
	}
}

func TestBuildDeterministicAssignments(t *testing.T) {
	assignments, err := BuildDeterministicAssignments(testPools(), "2025-03-10", "2025-03-14")
	require.NoError(t, err)
	require.Len(t, assignments, 5)

	// Day index 0: pools cycle from their id-sorted order
	day0 := assignments["2025-03-10"]
	assert.Equal(t, "b-01", day0.Free[models.DifficultyBeginner])
	assert.Equal(t, "b-02", day0.Premium[models.DifficultyBeginner])
	assert.Equal(t, "i-01", day0.Free[models.DifficultyIntermediate])
	assert.Equal(t, "i-02", day0.Premium[models.DifficultyIntermediate])
	assert.Equal(t, "a-01", day0.Free[models.DifficultyAdvanced])
	assert.Equal(t, "a-02", day0.Premium[models.DifficultyAdvanced])

	// Day index 3 wraps the three-topic beginner pool back to its start
	day3 := assignments["2025-03-13"]
	assert.Equal(t, "b-01", day3.Free[models.DifficultyBeginner])
	assert.Equal(t, "i-02", day3.Free[models.DifficultyIntermediate])
	assert.Equal(t, "a-04", day3.Free[models.DifficultyAdvanced])
	assert.Equal(t, "a-01", day3.Premium[models.DifficultyAdvanced])

	// Premium never repeats the free pick on any day
	for date, assignment := range assignments {
		for _, difficulty := range models.Difficulties {
			assert.NotEqual(t, assignment.Free[difficulty], assignment.Premium[difficulty],
				"premium repeats free pick on %s for %s", date, difficulty)
		}
	}
}

func TestBuildDeterministicAssignments_Deterministic(t *testing.T) {
	first, err := BuildDeterministicAssignments(testPools(), "2025-03-10", "2025-03-20")
	require.NoError(t, err)
	second, err := BuildDeterministicAssignments(testPools(), "2025-03-10", "2025-03-20")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestBuildDeterministicAssignments_EmptyPool(t *testing.T) {
	pools := testPools()
	pools[models.DifficultyAdvanced] = nil

	_, err := BuildDeterministicAssignments(pools, "2025-03-10", "2025-03-14")
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrInsufficientTopics))
}

func TestBuildDeterministicAssignments_SingleTopicPool(t *testing.T) {
	pools := testPools()
	pools[models.DifficultyIntermediate] = poolOf(models.DifficultyIntermediate, "i-only")

	_, err := BuildDeterministicAssignments(pools, "2025-03-10", "2025-03-14")
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrInsufficientDistinctTopics))
}

func TestBuildDeterministicAssignments_InvalidRange(t *testing.T) {
	_, err := BuildDeterministicAssignments(testPools(), "2025-03-14", "2025-03-10")
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrInvalidInput))

	_, err = BuildDeterministicAssignments(testPools(), "14-03-2025", "2025-03-20")
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrInvalidInput))
}

func TestPickRotationAssignment(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	assignment, err := PickRotationAssignment(rng, testPools())
	require.NoError(t, err)

	for _, difficulty := range models.Difficulties {
		free := assignment.Free[difficulty]
		premium := assignment.Premium[difficulty]
		assert.NotEmpty(t, free, "free pick missing for %s", difficulty)
		assert.NotEmpty(t, premium, "premium pick missing for %s", difficulty)
		assert.NotEqual(t, free, premium, "premium repeats free pick for %s", difficulty)
	}
}

func TestPickRotationAssignment_FixedSeedIsReproducible(t *testing.T) {
	first, err := PickRotationAssignment(rand.New(rand.NewSource(7)), testPools())
	require.NoError(t, err)
	second, err := PickRotationAssignment(rand.New(rand.NewSource(7)), testPools())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestPickRotationAssignment_SingleTopicPool(t *testing.T) {
	pools := testPools()
	pools[models.DifficultyBeginner] = poolOf(models.DifficultyBeginner, "b-only")

	assignment, err := PickRotationAssignment(rand.New(rand.NewSource(1)), pools)
	require.NoError(t, err)

	// With one topic there is no distinct premium extra for that difficulty
	assert.Equal(t, "b-only", assignment.Free[models.DifficultyBeginner])
	_, hasPremium := assignment.Premium[models.DifficultyBeginner]
	assert.False(t, hasPremium)
}

func TestPickRotationAssignment_EmptyPool(t *testing.T) {
	pools := testPools()
	delete(pools, models.DifficultyAdvanced)

	_, err := PickRotationAssignment(rand.New(rand.NewSource(1)), pools)
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrNoTopicForDifficulty))
}

func TestScheduleService_InRotationWindow(t *testing.T) {
	cfg := &config.Config{}
	cfg.Quest.Timezone = "America/New_York"
	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	service := NewScheduleService(nil, cfg, logger, nil)

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	tests := []struct {
		name     string
		at       time.Time
		expected bool
	}{
		{name: "midnight local", at: time.Date(2025, 3, 10, 0, 0, 0, 0, loc), expected: true},
		{name: "just before window close", at: time.Date(2025, 3, 10, 1, 59, 0, 0, loc), expected: true},
		{name: "window close", at: time.Date(2025, 3, 10, 2, 0, 0, 0, loc), expected: false},
		{name: "midday local", at: time.Date(2025, 3, 10, 12, 0, 0, 0, loc), expected: false},
		{name: "utc time inside local window", at: time.Date(2025, 3, 10, 5, 30, 0, 0, time.UTC), expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, service.InRotationWindow(tt.at))
		})
	}
}

func TestBusinessDateAt_TimezoneBoundary(t *testing.T) {
	// 03:00 UTC on March 11 is still March 10 in New York
	at := time.Date(2025, 3, 11, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-03-10", contextutils.BusinessDateAt(at, "America/New_York"))
}
