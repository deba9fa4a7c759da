package services

import (
	"context"
	"database/sql"
	"encoding/json"

	"questly/internal/models"
	"questly/internal/observability"
	contextutils "questly/internal/utils"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// TopicServiceInterface defines the interface for topic pool operations
type TopicServiceInterface interface {
	GetTopicByID(ctx context.Context, id string) (*models.Topic, error)
	GetActiveTopicsByDifficulty(ctx context.Context, difficulty models.Difficulty) ([]*models.Topic, error)
	GetActiveTopicPools(ctx context.Context) (map[models.Difficulty][]*models.Topic, error)
	ImportTopics(ctx context.Context, topics []models.Topic) (int, error)
	SetTopicActive(ctx context.Context, id string, active bool) error
	ListTopics(ctx context.Context, includeInactive bool) ([]*models.Topic, error)
}

// TopicService implements topic pool storage over Postgres
type TopicService struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewTopicService creates a new TopicService instance
func NewTopicService(db *sql.DB, logger *observability.Logger) *TopicService {
	return &TopicService{
		db:     db,
		logger: logger,
	}
}

// GetTopicByID returns the topic with the given id, or a TopicNotFound error.
func (s *TopicService) GetTopicByID(ctx context.Context, id string) (result *models.Topic, err error) {
	ctx, span := observability.TraceTopicFunction(ctx, "GetTopicByID",
		observability.AttributeTopicID(id),
	)
	defer observability.FinishSpan(span, &err)

	query := `
		SELECT id, title, blurb, difficulty, domain, angles, seed_context, tags, is_active, created_at
		FROM topics
		WHERE id = $1
	`

	topic, err := scanTopic(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, contextutils.WrapErrorf(contextutils.ErrTopicNotFound, "topic %s", id)
	}
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query topic")
	}

	return topic, nil
}

// GetActiveTopicsByDifficulty returns active topics of one difficulty, sorted by id.
// Lexicographic id order keeps schedule generation reproducible for a fixed pool.
func (s *TopicService) GetActiveTopicsByDifficulty(ctx context.Context, difficulty models.Difficulty) (result []*models.Topic, err error) {
	ctx, span := observability.TraceTopicFunction(ctx, "GetActiveTopicsByDifficulty",
		observability.AttributeDifficulty(difficulty),
	)
	defer observability.FinishSpan(span, &err)

	query := `
		SELECT id, title, blurb, difficulty, domain, angles, seed_context, tags, is_active, created_at
		FROM topics
		WHERE difficulty = $1 AND is_active = TRUE
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query, string(difficulty))
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query topics by difficulty")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	var topics []*models.Topic
	for rows.Next() {
		topic, scanErr := scanTopic(rows)
		if scanErr != nil {
			return nil, contextutils.WrapError(scanErr, "failed to scan topic")
		}
		topics = append(topics, topic)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate topics")
	}

	span.SetAttributes(attribute.Int("topics.count", len(topics)))
	return topics, nil
}

// GetActiveTopicPools returns the active topic pool partitioned by difficulty.
func (s *TopicService) GetActiveTopicPools(ctx context.Context) (result map[models.Difficulty][]*models.Topic, err error) {
	ctx, span := observability.TraceTopicFunction(ctx, "GetActiveTopicPools")
	defer observability.FinishSpan(span, &err)

	pools := make(map[models.Difficulty][]*models.Topic, len(models.Difficulties))
	for _, difficulty := range models.Difficulties {
		topics, poolErr := s.GetActiveTopicsByDifficulty(ctx, difficulty)
		if poolErr != nil {
			return nil, poolErr
		}
		pools[difficulty] = topics
	}
	return pools, nil
}

// ImportTopics bulk-inserts topics, assigning ids to entries without one.
// Existing ids are overwritten except for created_at. Returns the number of
// rows written; the whole batch is one transaction.
func (s *TopicService) ImportTopics(ctx context.Context, topics []models.Topic) (count int, err error) {
	ctx, span := observability.TraceTopicFunction(ctx, "ImportTopics",
		attribute.Int("topics.count", len(topics)),
	)
	defer observability.FinishSpan(span, &err)

	for i := range topics {
		if !topics[i].Difficulty.IsValid() {
			return 0, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "topic %q has unknown difficulty %q", topics[i].Title, topics[i].Difficulty)
		}
		if topics[i].Title == "" {
			return 0, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "topic at index %d has no title", i)
		}
		if topics[i].ID == "" {
			topics[i].ID = uuid.NewString()
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				s.logger.Error(ctx, "Failed to rollback topic import", rollbackErr)
			}
		}
	}()

	insertQuery := `
		INSERT INTO topics (id, title, blurb, difficulty, domain, angles, seed_context, tags, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			blurb = EXCLUDED.blurb,
			difficulty = EXCLUDED.difficulty,
			domain = EXCLUDED.domain,
			angles = EXCLUDED.angles,
			seed_context = EXCLUDED.seed_context,
			tags = EXCLUDED.tags,
			is_active = EXCLUDED.is_active
	`

	for _, topic := range topics {
		angles, marshalErr := json.Marshal(orEmptySlice(topic.Angles))
		if marshalErr != nil {
			err = contextutils.WrapError(marshalErr, "failed to marshal topic angles")
			return 0, err
		}
		tags, marshalErr := json.Marshal(orEmptySlice(topic.Tags))
		if marshalErr != nil {
			err = contextutils.WrapError(marshalErr, "failed to marshal topic tags")
			return 0, err
		}

		_, err = tx.ExecContext(ctx, insertQuery,
			topic.ID, topic.Title, topic.Blurb, string(topic.Difficulty),
			topic.Domain, angles, topic.SeedContext, tags, topic.IsActive,
		)
		if err != nil {
			err = contextutils.WrapErrorf(err, "failed to insert topic %s", topic.ID)
			return 0, err
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, contextutils.WrapError(err, "failed to commit topic import")
	}

	s.logger.Info(ctx, "Topics imported", map[string]interface{}{"count": len(topics)})
	return len(topics), nil
}

// SetTopicActive flips the is_active flag for a topic.
func (s *TopicService) SetTopicActive(ctx context.Context, id string, active bool) (err error) {
	ctx, span := observability.TraceTopicFunction(ctx, "SetTopicActive",
		observability.AttributeTopicID(id),
		attribute.Bool("topic.active", active),
	)
	defer observability.FinishSpan(span, &err)

	result, err := s.db.ExecContext(ctx, `UPDATE topics SET is_active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return contextutils.WrapError(err, "failed to update topic")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return contextutils.WrapError(err, "failed to get rows affected")
	}
	if affected == 0 {
		return contextutils.WrapErrorf(contextutils.ErrTopicNotFound, "topic %s", id)
	}
	return nil
}

// ListTopics returns topics, optionally including inactive ones, sorted by id.
func (s *TopicService) ListTopics(ctx context.Context, includeInactive bool) (result []*models.Topic, err error) {
	ctx, span := observability.TraceTopicFunction(ctx, "ListTopics",
		attribute.Bool("topics.include_inactive", includeInactive),
	)
	defer observability.FinishSpan(span, &err)

	query := `
		SELECT id, title, blurb, difficulty, domain, angles, seed_context, tags, is_active, created_at
		FROM topics
	`
	if !includeInactive {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to list topics")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	var topics []*models.Topic
	for rows.Next() {
		topic, scanErr := scanTopic(rows)
		if scanErr != nil {
			return nil, contextutils.WrapError(scanErr, "failed to scan topic")
		}
		topics = append(topics, topic)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate topics")
	}
	return topics, nil
}

// rowScanner covers *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTopic(row rowScanner) (*models.Topic, error) {
	topic := &models.Topic{}
	var angles, tags []byte
	err := row.Scan(
		&topic.ID,
		&topic.Title,
		&topic.Blurb,
		&topic.Difficulty,
		&topic.Domain,
		&angles,
		&topic.SeedContext,
		&tags,
		&topic.IsActive,
		&topic.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(angles, &topic.Angles); err != nil {
		return nil, contextutils.WrapError(err, "failed to unmarshal topic angles")
	}
	if err := json.Unmarshal(tags, &topic.Tags); err != nil {
		return nil, contextutils.WrapError(err, "failed to unmarshal topic tags")
	}
	return topic, nil
}

func orEmptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
