// Package worker provides the in-process periodic runner for daily
// maintenance: topic rotation, leaderboard snapshots, and reminder email.
// External cron hitting the admin endpoints remains the primary trigger; the
// worker is a safety net for deployments without one.
package worker

import (
	"context"
	"sync"
	"time"

	"questly/internal/config"
	"questly/internal/observability"
	"questly/internal/services"
	contextutils "questly/internal/utils"
)

// Worker runs the periodic maintenance loop.
type Worker struct {
	cfg         *config.Config
	logger      *observability.Logger
	schedules   services.ScheduleServiceInterface
	leaderboard services.LeaderboardServiceInterface
	email       services.EmailServiceInterface

	checkInterval time.Duration
	nowFn         func() time.Time

	mu              sync.Mutex
	lastRotatedDate string
	lastSnapshotFor string
	lastReminderFor string

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New creates a new Worker instance
func New(
	cfg *config.Config,
	logger *observability.Logger,
	schedules services.ScheduleServiceInterface,
	leaderboard services.LeaderboardServiceInterface,
	email services.EmailServiceInterface,
) *Worker {
	return &Worker{
		cfg:           cfg,
		logger:        logger,
		schedules:     schedules,
		leaderboard:   leaderboard,
		email:         email,
		checkInterval: config.WorkerCheckInterval,
		nowFn:         time.Now,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// WithClock overrides the worker clock. Test hook.
func (w *Worker) WithClock(nowFn func() time.Time) *Worker {
	w.nowFn = nowFn
	return w
}

// WithCheckInterval overrides the tick interval. Test hook.
func (w *Worker) WithCheckInterval(d time.Duration) *Worker {
	w.checkInterval = d
	return w
}

// Start runs the loop until Stop is called or the context is cancelled.
func (w *Worker) Start(ctx context.Context) {
	defer close(w.doneCh)

	w.logger.Info(ctx, "Worker started", map[string]interface{}{
		"check_interval": w.checkInterval.String(),
	})

	ticker := time.NewTicker(w.checkInterval)
	defer ticker.Stop()

	// Run one pass immediately so a restart inside the window still rotates
	w.runPass(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info(context.Background(), "Worker context cancelled")
			return
		case <-w.stopCh:
			w.logger.Info(context.Background(), "Worker stopping")
			return
		case <-ticker.C:
			w.runPass(ctx)
		}
	}
}

// Stop signals the loop to exit and waits for it, bounded by the shutdown
// timeout.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	select {
	case <-w.doneCh:
	case <-time.After(config.WorkerShutdownTimeout):
	}
}

// runPass performs one maintenance pass.
func (w *Worker) runPass(ctx context.Context) {
	ctx, span := observability.TraceWorkerFunction(ctx, "RunPass")
	var err error
	defer observability.FinishSpan(span, &err)

	now := w.nowFn()
	tz := w.cfg.BusinessTimezone()
	today := contextutils.BusinessDateAt(now, tz)

	w.maybeRotate(ctx, now, today)
	w.maybeSnapshot(ctx, now, today, tz)
	w.maybeSendReminders(ctx, now, today)
}

// maybeRotate ensures today's schedule exists. Runs only inside the rotation
// window; the unforced rotate keeps an existing row.
func (w *Worker) maybeRotate(ctx context.Context, now time.Time, today string) {
	w.mu.Lock()
	alreadyDone := w.lastRotatedDate == today
	w.mu.Unlock()
	if alreadyDone {
		return
	}

	if _, err := w.schedules.RotateNow(ctx, false); err != nil {
		if contextutils.IsError(err, contextutils.ErrRotationWindowClosed) {
			return
		}
		w.logger.Error(ctx, "Worker rotation failed", err, map[string]interface{}{
			"date": today,
		})
		return
	}

	w.mu.Lock()
	w.lastRotatedDate = today
	w.mu.Unlock()
	w.logger.Info(ctx, "Worker ensured daily schedule", map[string]interface{}{
		"date": today,
	})
}

// maybeSnapshot finalizes yesterday's leaderboard once per day, inside the
// rotation window so it runs right after the day closes.
func (w *Worker) maybeSnapshot(ctx context.Context, now time.Time, today, tz string) {
	loc := contextutils.BusinessLocation(tz)
	start, end := w.cfg.RotationWindow()
	hour := now.In(loc).Hour()
	if hour < start || hour >= end {
		return
	}

	yesterday, err := contextutils.AddBusinessDays(today, -1, tz)
	if err != nil {
		w.logger.Error(ctx, "Worker failed to compute snapshot date", err)
		return
	}

	w.mu.Lock()
	alreadyDone := w.lastSnapshotFor == yesterday
	w.mu.Unlock()
	if alreadyDone {
		return
	}

	count, err := w.leaderboard.Snapshot(ctx, yesterday)
	if err != nil {
		w.logger.Error(ctx, "Worker leaderboard snapshot failed", err, map[string]interface{}{
			"date": yesterday,
		})
		return
	}

	w.mu.Lock()
	w.lastSnapshotFor = yesterday
	w.mu.Unlock()
	w.logger.Info(ctx, "Worker leaderboard snapshot written", map[string]interface{}{
		"date":   yesterday,
		"ranked": count,
	})
}

// maybeSendReminders sends the daily reminder batch at the configured local
// hour, at most once per day.
func (w *Worker) maybeSendReminders(ctx context.Context, now time.Time, today string) {
	if w.email == nil || !w.email.IsEnabled() || !w.cfg.Email.DailyReminder.Enabled {
		return
	}

	loc := contextutils.BusinessLocation(w.cfg.BusinessTimezone())
	if now.In(loc).Hour() != w.cfg.Email.DailyReminder.Hour {
		return
	}

	w.mu.Lock()
	alreadyDone := w.lastReminderFor == today
	w.mu.Unlock()
	if alreadyDone {
		return
	}

	candidates, err := w.email.GetReminderCandidates(ctx, today)
	if err != nil {
		w.logger.Error(ctx, "Worker failed to load reminder candidates", err)
		return
	}

	sent := 0
	for _, userID := range candidates {
		if err := w.email.SendDailyReminder(ctx, userID); err != nil {
			w.logger.Warn(ctx, "Worker reminder send failed", map[string]interface{}{
				"user_id": userID,
				"error":   err.Error(),
			})
			continue
		}
		sent++
	}

	w.mu.Lock()
	w.lastReminderFor = today
	w.mu.Unlock()
	w.logger.Info(ctx, "Worker daily reminders sent", map[string]interface{}{
		"date":       today,
		"candidates": len(candidates),
		"sent":       sent,
	})
}
