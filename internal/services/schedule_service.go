package services

import (
	"context"
	"database/sql"
	"math/rand"
	"sort"
	"sync"
	"time"

	"questly/internal/config"
	"questly/internal/models"
	"questly/internal/observability"
	contextutils "questly/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// ScheduleServiceInterface defines the interface for daily schedule operations
type ScheduleServiceInterface interface {
	GenerateSchedule(ctx context.Context, startDate, endDate string) (int, error)
	GetSchedule(ctx context.Context, date string) (*models.DailySchedule, error)
	EnsureScheduleForDate(ctx context.Context, date string) (*models.DailySchedule, error)
	RotateDate(ctx context.Context, date string, force bool) (*models.DailySchedule, error)
	RotateNow(ctx context.Context, force bool) (*models.DailySchedule, error)
}

// DayAssignment is one day's topic picks, one per difficulty per tier.
type DayAssignment struct {
	Free    map[models.Difficulty]string
	Premium map[models.Difficulty]string
}

// ScheduleService implements deterministic schedule generation and the
// random rotation fallback.
type ScheduleService struct {
	db     *sql.DB
	cfg    *config.Config
	logger *observability.Logger
	topics TopicServiceInterface

	// nowFn and rng are injectable for deterministic tests
	nowFn func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewScheduleService creates a new ScheduleService instance
func NewScheduleService(db *sql.DB, cfg *config.Config, logger *observability.Logger, topics TopicServiceInterface) *ScheduleService {
	return &ScheduleService{
		db:     db,
		cfg:    cfg,
		logger: logger,
		topics: topics,
		nowFn:  time.Now,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithClock overrides the service clock. Test hook.
func (s *ScheduleService) WithClock(nowFn func() time.Time) *ScheduleService {
	s.nowFn = nowFn
	return s
}

// WithRand overrides the random source. Rotation is reproducible under a
// fixed seed.
func (s *ScheduleService) WithRand(rng *rand.Rand) *ScheduleService {
	s.rng = rng
	return s
}

// BuildDeterministicAssignments computes one DayAssignment per date in
// [startDate, endDate] from sorted per-difficulty pools. For day index i the
// free pick for difficulty D is D[i mod |D|] and the premium pick is
// D[(i+1) mod |D|], which differs from the free pick whenever |D| > 1.
// Pure function; no I/O.
func BuildDeterministicAssignments(pools map[models.Difficulty][]*models.Topic, startDate, endDate string) (map[string]DayAssignment, error) {
	start, err := contextutils.ParseBusinessDate(startDate, contextutils.DefaultBusinessTimezone)
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "invalid start date %q", startDate)
	}
	end, err := contextutils.ParseBusinessDate(endDate, contextutils.DefaultBusinessTimezone)
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "invalid end date %q", endDate)
	}
	if end.Before(start) {
		return nil, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "end date %s before start date %s", endDate, startDate)
	}

	sorted := make(map[models.Difficulty][]string, len(models.Difficulties))
	for _, difficulty := range models.Difficulties {
		pool := pools[difficulty]
		if len(pool) == 0 {
			return nil, contextutils.WrapErrorf(contextutils.ErrInsufficientTopics, "no active topics for difficulty %s", difficulty)
		}
		ids := make([]string, 0, len(pool))
		for _, topic := range pool {
			ids = append(ids, topic.ID)
		}
		sort.Strings(ids)
		sorted[difficulty] = ids
	}

	assignments := make(map[string]DayAssignment)
	for i, day := 0, start; !day.After(end); i, day = i+1, day.AddDate(0, 0, 1) {
		assignment := DayAssignment{
			Free:    make(map[models.Difficulty]string, len(models.Difficulties)),
			Premium: make(map[models.Difficulty]string, len(models.Difficulties)),
		}
		for _, difficulty := range models.Difficulties {
			ids := sorted[difficulty]
			free := ids[i%len(ids)]
			premium := ids[(i+1)%len(ids)]
			if premium == free {
				// Only possible with a single-topic pool; abort the whole batch
				return nil, contextutils.WrapErrorf(contextutils.ErrInsufficientDistinctTopics,
					"difficulty %s has a single active topic, premium pick would repeat the free pick", difficulty)
			}
			assignment.Free[difficulty] = free
			assignment.Premium[difficulty] = premium
		}
		assignments[day.Format(contextutils.BusinessDateLayout)] = assignment
	}

	return assignments, nil
}

// PickRotationAssignment samples one day's assignment at random from the
// per-difficulty pools: a uniform free pick per difficulty plus a premium
// extra sampled without replacement, excluding the free pick. Pure except
// for rng consumption.
func PickRotationAssignment(rng *rand.Rand, pools map[models.Difficulty][]*models.Topic) (DayAssignment, error) {
	assignment := DayAssignment{
		Free:    make(map[models.Difficulty]string, len(models.Difficulties)),
		Premium: make(map[models.Difficulty]string, len(models.Difficulties)),
	}

	for _, difficulty := range models.Difficulties {
		pool := pools[difficulty]
		if len(pool) == 0 {
			return DayAssignment{}, contextutils.WrapErrorf(contextutils.ErrNoTopicForDifficulty, "no active topics for difficulty %s", difficulty)
		}

		ids := make([]string, 0, len(pool))
		for _, topic := range pool {
			ids = append(ids, topic.ID)
		}
		sort.Strings(ids)

		free := ids[rng.Intn(len(ids))]
		assignment.Free[difficulty] = free

		// Premium extra: shuffle the remaining ids and take the first
		remaining := make([]string, 0, len(ids)-1)
		for _, id := range ids {
			if id != free {
				remaining = append(remaining, id)
			}
		}
		if len(remaining) > 0 {
			rng.Shuffle(len(remaining), func(i, j int) {
				remaining[i], remaining[j] = remaining[j], remaining[i]
			})
			assignment.Premium[difficulty] = remaining[0]
		}
	}

	return assignment, nil
}

// GenerateSchedule deterministically builds and upserts one schedule row per
// date in the inclusive range. All-or-nothing: any failure commits no rows.
// Returns the number of rows written.
func (s *ScheduleService) GenerateSchedule(ctx context.Context, startDate, endDate string) (count int, err error) {
	ctx, span := observability.TraceScheduleFunction(ctx, "GenerateSchedule",
		attribute.String("schedule.start_date", startDate),
		attribute.String("schedule.end_date", endDate),
	)
	defer observability.FinishSpan(span, &err)

	pools, err := s.topics.GetActiveTopicPools(ctx)
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to load topic pools")
	}

	assignments, err := BuildDeterministicAssignments(pools, startDate, endDate)
	if err != nil {
		return 0, err
	}

	dates := make([]string, 0, len(assignments))
	for date := range assignments {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				s.logger.Error(ctx, "Failed to rollback schedule generation", rollbackErr)
			}
		}
	}()

	for _, date := range dates {
		if err = upsertScheduleTx(ctx, tx, date, assignments[date]); err != nil {
			return 0, err
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, contextutils.WrapError(err, "failed to commit schedule generation")
	}

	span.SetAttributes(attribute.Int("schedule.rows", len(dates)))
	s.logger.Info(ctx, "Schedule generated", map[string]interface{}{
		"start_date": startDate,
		"end_date":   endDate,
		"rows":       len(dates),
	})
	return len(dates), nil
}

// GetSchedule returns the schedule row for a date, or ScheduleNotFound.
func (s *ScheduleService) GetSchedule(ctx context.Context, date string) (result *models.DailySchedule, err error) {
	ctx, span := observability.TraceScheduleFunction(ctx, "GetSchedule",
		observability.AttributeDate(date),
	)
	defer observability.FinishSpan(span, &err)

	query := `
		SELECT schedule_date, free_beginner_id, free_intermediate_id, free_advanced_id,
		       premium_beginner_id, premium_intermediate_id, premium_advanced_id,
		       created_at, updated_at
		FROM daily_schedules
		WHERE schedule_date = $1
	`

	sched := &models.DailySchedule{}
	var schedDate time.Time
	err = s.db.QueryRowContext(ctx, query, date).Scan(
		&schedDate,
		&sched.FreeBeginnerID,
		&sched.FreeIntermediateID,
		&sched.FreeAdvancedID,
		&sched.PremiumBeginnerID,
		&sched.PremiumIntermediateID,
		&sched.PremiumAdvancedID,
		&sched.CreatedAt,
		&sched.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, contextutils.WrapErrorf(contextutils.ErrScheduleNotFound, "no schedule for %s", date)
	}
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query schedule")
	}

	sched.Date = schedDate.Format(contextutils.BusinessDateLayout)
	return sched, nil
}

// EnsureScheduleForDate returns the schedule row for a date, rotating one
// into existence when missing. The rotation here is forced in the sense that
// it ignores the cron window guard: a user-facing read must always succeed.
func (s *ScheduleService) EnsureScheduleForDate(ctx context.Context, date string) (result *models.DailySchedule, err error) {
	ctx, span := observability.TraceScheduleFunction(ctx, "EnsureScheduleForDate",
		observability.AttributeDate(date),
	)
	defer observability.FinishSpan(span, &err)

	sched, err := s.GetSchedule(ctx, date)
	if err == nil {
		return sched, nil
	}
	if !contextutils.IsError(err, contextutils.ErrScheduleNotFound) {
		return nil, err
	}

	return s.rotate(ctx, date, true, false)
}

// RotateDate randomly assigns topics for the given date. Without force an
// existing row is left untouched and the rotation window guard applies.
func (s *ScheduleService) RotateDate(ctx context.Context, date string, force bool) (*models.DailySchedule, error) {
	return s.rotate(ctx, date, force, !force)
}

// RotateNow rotates today's row (business date in the configured timezone).
func (s *ScheduleService) RotateNow(ctx context.Context, force bool) (*models.DailySchedule, error) {
	today := contextutils.BusinessDateAt(s.nowFn(), s.cfg.BusinessTimezone())
	return s.rotate(ctx, today, force, !force)
}

// InRotationWindow reports whether t falls inside the local-hour window in
// which unforced cron-triggered rotation is allowed. The window tolerates a
// single daily UTC-scheduled trigger drifting across DST changes.
func (s *ScheduleService) InRotationWindow(t time.Time) bool {
	loc := contextutils.BusinessLocation(s.cfg.BusinessTimezone())
	hour := t.In(loc).Hour()
	start, end := s.cfg.RotationWindow()
	return hour >= start && hour < end
}

func (s *ScheduleService) rotate(ctx context.Context, date string, force, applyGuard bool) (result *models.DailySchedule, err error) {
	ctx, span := observability.TraceRotationFunction(ctx, "Rotate",
		observability.AttributeDate(date),
		attribute.Bool("rotation.force", force),
	)
	defer observability.FinishSpan(span, &err)

	if applyGuard && !s.InRotationWindow(s.nowFn()) {
		start, end := s.cfg.RotationWindow()
		return nil, contextutils.WrapErrorf(contextutils.ErrRotationWindowClosed,
			"unforced rotation allowed only between %02d:00 and %02d:00 local time", start, end)
	}

	if !force {
		existing, getErr := s.GetSchedule(ctx, date)
		if getErr == nil {
			span.SetAttributes(attribute.Bool("rotation.skipped", true))
			return existing, nil
		}
		if !contextutils.IsError(getErr, contextutils.ErrScheduleNotFound) {
			return nil, getErr
		}
	}

	pools, err := s.topics.GetActiveTopicPools(ctx)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to load topic pools")
	}

	s.rngMu.Lock()
	assignment, err := PickRotationAssignment(s.rng, pools)
	s.rngMu.Unlock()
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				s.logger.Error(ctx, "Failed to rollback rotation", rollbackErr)
			}
		}
	}()

	if err = upsertScheduleTx(ctx, tx, date, assignment); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, contextutils.WrapError(err, "failed to commit rotation")
	}

	s.logger.Info(ctx, "Daily rotation applied", map[string]interface{}{
		"date":  date,
		"force": force,
	})

	return s.GetSchedule(ctx, date)
}

// upsertScheduleTx writes one schedule row inside the caller's transaction,
// keyed by date.
func upsertScheduleTx(ctx context.Context, tx *sql.Tx, date string, assignment DayAssignment) error {
	query := `
		INSERT INTO daily_schedules (
			schedule_date, free_beginner_id, free_intermediate_id, free_advanced_id,
			premium_beginner_id, premium_intermediate_id, premium_advanced_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (schedule_date) DO UPDATE SET
			free_beginner_id = EXCLUDED.free_beginner_id,
			free_intermediate_id = EXCLUDED.free_intermediate_id,
			free_advanced_id = EXCLUDED.free_advanced_id,
			premium_beginner_id = EXCLUDED.premium_beginner_id,
			premium_intermediate_id = EXCLUDED.premium_intermediate_id,
			premium_advanced_id = EXCLUDED.premium_advanced_id,
			updated_at = NOW()
	`

	_, err := tx.ExecContext(ctx, query,
		date,
		assignment.Free[models.DifficultyBeginner],
		assignment.Free[models.DifficultyIntermediate],
		assignment.Free[models.DifficultyAdvanced],
		nullIfEmpty(assignment.Premium[models.DifficultyBeginner]),
		nullIfEmpty(assignment.Premium[models.DifficultyIntermediate]),
		nullIfEmpty(assignment.Premium[models.DifficultyAdvanced]),
	)
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to upsert schedule for %s", date)
	}
	return nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
