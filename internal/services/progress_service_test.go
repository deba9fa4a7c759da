package services

import (
	"testing"

	contextutils "questly/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeBasePoints(t *testing.T) {
	tests := []struct {
		name     string
		score    int
		expected int
	}{
		{name: "zero score", score: 0, expected: 0},
		{name: "typical score", score: 3, expected: 30},
		{name: "perfect score", score: 5, expected: 50},
		{name: "negative score clamps to zero", score: -2, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ComputeBasePoints(tt.score))
		})
	}
}

func TestComputeStreakTransition(t *testing.T) {
	tz := contextutils.DefaultBusinessTimezone

	tests := []struct {
		name       string
		lastActive string
		streak     int
		today      string
		expected   int
	}{
		{name: "first ever submission", lastActive: "", streak: 0, today: "2025-03-10", expected: 1},
		{name: "same day leaves streak unchanged", lastActive: "2025-03-10", streak: 4, today: "2025-03-10", expected: 4},
		{name: "consecutive day increments", lastActive: "2025-03-09", streak: 4, today: "2025-03-10", expected: 5},
		{name: "consecutive day from zero", lastActive: "2025-03-09", streak: 0, today: "2025-03-10", expected: 1},
		{name: "two day gap resets", lastActive: "2025-03-07", streak: 9, today: "2025-03-10", expected: 1},
		{name: "month boundary step", lastActive: "2025-02-28", streak: 2, today: "2025-03-01", expected: 3},
		{name: "backdated last active resets", lastActive: "2025-03-12", streak: 6, today: "2025-03-10", expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeStreakTransition(tt.lastActive, tt.streak, tt.today, tz)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestComputeStreakTransition_InvalidDates(t *testing.T) {
	_, err := ComputeStreakTransition("not-a-date", 1, "2025-03-10", contextutils.DefaultBusinessTimezone)
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrInvalidInput))
}

func TestComputeMultiplier(t *testing.T) {
	tests := []struct {
		name     string
		streak   int
		expected float64
	}{
		{name: "zero streak", streak: 0, expected: 1.0},
		{name: "streak of one", streak: 1, expected: 1.0},
		{name: "streak of five", streak: 5, expected: 1.4},
		{name: "streak of eleven reaches the cap", streak: 11, expected: 2.0},
		{name: "streak beyond the cap stays capped", streak: 40, expected: 2.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, ComputeMultiplier(tt.streak), 0.0001)
		})
	}
}

func TestComputePointsGained(t *testing.T) {
	tests := []struct {
		name       string
		base       int
		bonus      int
		multiplier float64
		expected   int
	}{
		{name: "no bonus no multiplier", base: 30, bonus: 0, multiplier: 1.0, expected: 30},
		{name: "streak five on three correct", base: 30, bonus: 0, multiplier: 1.4, expected: 42},
		{name: "completion bonus applied before multiplier", base: 50, bonus: 50, multiplier: 1.2, expected: 120},
		{name: "rounds to nearest", base: 30, bonus: 0, multiplier: 1.1, expected: 33},
		{name: "rounds half up", base: 10, bonus: 5, multiplier: 1.1, expected: 17},
		{name: "capped multiplier", base: 50, bonus: 50, multiplier: 2.0, expected: 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ComputePointsGained(tt.base, tt.bonus, tt.multiplier))
		})
	}
}

// Full award pipeline on paper: day five of a streak, three of five correct,
// fewer than three completions, no bonus.
func TestPointsPipeline_StreakDayFive(t *testing.T) {
	streak, err := ComputeStreakTransition("2025-03-09", 4, "2025-03-10", contextutils.DefaultBusinessTimezone)
	require.NoError(t, err)
	assert.Equal(t, 5, streak)

	base := ComputeBasePoints(3)
	multiplier := ComputeMultiplier(streak)
	assert.InDelta(t, 1.4, multiplier, 0.0001)
	assert.Equal(t, 42, ComputePointsGained(base, 0, multiplier))
}
