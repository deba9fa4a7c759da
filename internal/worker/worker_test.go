package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"questly/internal/config"
	"questly/internal/models"
	"questly/internal/observability"
	contextutils "questly/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScheduleService struct {
	mu          sync.Mutex
	rotateCalls int
	rotateErr   error
}

func (f *fakeScheduleService) GenerateSchedule(_ context.Context, _, _ string) (int, error) {
	return 0, nil
}

func (f *fakeScheduleService) GetSchedule(_ context.Context, _ string) (*models.DailySchedule, error) {
	return nil, contextutils.WrapError(contextutils.ErrScheduleNotFound, "none")
}

func (f *fakeScheduleService) EnsureScheduleForDate(_ context.Context, date string) (*models.DailySchedule, error) {
	return &models.DailySchedule{Date: date}, nil
}

func (f *fakeScheduleService) RotateDate(_ context.Context, date string, _ bool) (*models.DailySchedule, error) {
	return &models.DailySchedule{Date: date}, nil
}

func (f *fakeScheduleService) RotateNow(_ context.Context, _ bool) (*models.DailySchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rotateCalls++
	if f.rotateErr != nil {
		return nil, f.rotateErr
	}
	return &models.DailySchedule{}, nil
}

func (f *fakeScheduleService) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rotateCalls
}

type fakeLeaderboardService struct {
	mu        sync.Mutex
	snapshots []string
}

func (f *fakeLeaderboardService) Snapshot(_ context.Context, date string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, date)
	return 1, nil
}

func (f *fakeLeaderboardService) GetDaily(_ context.Context, _ string, _ int) ([]*models.LeaderboardEntry, error) {
	return nil, nil
}

func (f *fakeLeaderboardService) GetStreaks(_ context.Context, _ int) ([]*models.StreakEntry, error) {
	return nil, nil
}

func (f *fakeLeaderboardService) dates() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.snapshots...)
}

func newTestWorker(t *testing.T, schedules *fakeScheduleService, leaderboard *fakeLeaderboardService) *Worker {
	t.Helper()
	cfg := &config.Config{}
	cfg.Quest.Timezone = "America/New_York"
	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	return New(cfg, logger, schedules, leaderboard, nil)
}

func atHourET(t *testing.T, hour int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return time.Date(2025, 3, 10, hour, 15, 0, 0, loc)
}

func TestWorker_PassInsideWindowRotatesAndSnapshots(t *testing.T) {
	schedules := &fakeScheduleService{}
	leaderboard := &fakeLeaderboardService{}
	w := newTestWorker(t, schedules, leaderboard)
	w.WithClock(func() time.Time { return atHourET(t, 0) })

	w.runPass(context.Background())

	assert.Equal(t, 1, schedules.calls())
	assert.Equal(t, []string{"2025-03-09"}, leaderboard.dates())
}

func TestWorker_PassIsOncePerDay(t *testing.T) {
	schedules := &fakeScheduleService{}
	leaderboard := &fakeLeaderboardService{}
	w := newTestWorker(t, schedules, leaderboard)
	w.WithClock(func() time.Time { return atHourET(t, 1) })

	w.runPass(context.Background())
	w.runPass(context.Background())
	w.runPass(context.Background())

	assert.Equal(t, 1, schedules.calls())
	assert.Equal(t, []string{"2025-03-09"}, leaderboard.dates())
}

func TestWorker_OutsideWindowSkipsSnapshotButStillEnsuresSchedule(t *testing.T) {
	schedules := &fakeScheduleService{}
	leaderboard := &fakeLeaderboardService{}
	w := newTestWorker(t, schedules, leaderboard)
	w.WithClock(func() time.Time { return atHourET(t, 12) })

	w.runPass(context.Background())

	// Rotation is attempted; the service's own window guard rejects it
	assert.Equal(t, 1, schedules.calls())
	assert.Empty(t, leaderboard.dates())
}

func TestWorker_WindowClosedRotationRetriesNextPass(t *testing.T) {
	schedules := &fakeScheduleService{
		rotateErr: contextutils.WrapError(contextutils.ErrRotationWindowClosed, "window closed"),
	}
	leaderboard := &fakeLeaderboardService{}
	w := newTestWorker(t, schedules, leaderboard)
	w.WithClock(func() time.Time { return atHourET(t, 12) })

	w.runPass(context.Background())
	w.runPass(context.Background())

	// Not marked done, so each pass tries again
	assert.Equal(t, 2, schedules.calls())
}

func TestWorker_StartStop(t *testing.T) {
	schedules := &fakeScheduleService{}
	leaderboard := &fakeLeaderboardService{}
	w := newTestWorker(t, schedules, leaderboard)
	w.WithClock(func() time.Time { return atHourET(t, 1) })
	w.WithCheckInterval(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go w.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	w.Stop()

	assert.Equal(t, 1, schedules.calls())
}
