package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"questly/internal/config"
	"questly/internal/models"
	"questly/internal/observability"
	contextutils "questly/internal/utils"

	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
)

// Content sources recorded in the quiz cache
const (
	QuizSourceLLM  = "llm"
	QuizSourceSeed = "seed"
)

// quizContentSchema validates the generated payload: a quick question plus a
// quiz of at least five questions, each with exactly four options and a
// correct index between 0 and 3.
const quizContentSchema = `{
	"type": "object",
	"required": ["quick", "quiz"],
	"properties": {
		"quick": {"$ref": "#/definitions/mcq"},
		"quiz": {
			"type": "array",
			"minItems": 5,
			"items": {"$ref": "#/definitions/mcq"}
		}
	},
	"definitions": {
		"mcq": {
			"type": "object",
			"required": ["question", "options", "correct_index"],
			"properties": {
				"question": {"type": "string", "minLength": 1},
				"options": {
					"type": "array",
					"minItems": 4,
					"maxItems": 4,
					"items": {"type": "string"}
				},
				"correct_index": {"type": "integer", "minimum": 0, "maximum": 3},
				"explanation": {"type": "string"}
			}
		}
	}
}`

// QuizContentServiceInterface defines the interface for quiz content resolution
type QuizContentServiceInterface interface {
	GetQuizContent(ctx context.Context, topicID, date string) (*models.QuizContent, error)
}

// memoryCacheEntry is one in-process cached payload with its expiry
type memoryCacheEntry struct {
	content   *models.QuizContent
	expiresAt time.Time
}

// QuizContentService resolves quiz content through a two-tier cache:
// in-process (TTL = end of business day) then Postgres, generating via the
// LLM provider with a seed-bank fallback on full miss. Every successful
// resolution is written through to both tiers.
type QuizContentService struct {
	db       *sql.DB
	cfg      *config.Config
	logger   *observability.Logger
	topics   TopicServiceInterface
	llm      LLMClientInterface
	seedBank *SeedBank

	nowFn func() time.Time

	mu         sync.Mutex
	memory     map[string]memoryCacheEntry
	maxEntries int
}

// NewQuizContentService creates a new QuizContentService instance
func NewQuizContentService(db *sql.DB, cfg *config.Config, logger *observability.Logger, topics TopicServiceInterface, llm LLMClientInterface) *QuizContentService {
	return &QuizContentService{
		db:         db,
		cfg:        cfg,
		logger:     logger,
		topics:     topics,
		llm:        llm,
		seedBank:   NewSeedBank(),
		nowFn:      time.Now,
		memory:     make(map[string]memoryCacheEntry),
		maxEntries: 1024,
	}
}

// WithClock overrides the service clock. Test hook.
func (s *QuizContentService) WithClock(nowFn func() time.Time) *QuizContentService {
	s.nowFn = nowFn
	return s
}

// ValidateQuizContent checks a payload against the quiz schema and truncates
// the quiz to exactly five questions. Returns the normalized content.
func ValidateQuizContent(content *models.QuizContent) (*models.QuizContent, error) {
	if content == nil {
		return nil, contextutils.WrapError(contextutils.ErrLLMResponseInvalid, "quiz content is nil")
	}

	raw, err := json.Marshal(content)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to marshal quiz content for validation")
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(quizContentSchema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return nil, contextutils.WrapError(err, "quiz schema validation failed")
	}
	if !result.Valid() {
		var messages []string
		for _, e := range result.Errors() {
			messages = append(messages, e.String())
		}
		return nil, contextutils.WrapErrorf(contextutils.ErrLLMResponseInvalid, "quiz content failed schema validation: %s", strings.Join(messages, "; "))
	}

	normalized := *content
	if len(normalized.Quiz) > config.DefaultQuizQuestionCount {
		normalized.Quiz = normalized.Quiz[:config.DefaultQuizQuestionCount]
	}
	return &normalized, nil
}

// GetQuizContent returns the quiz content for (topic, date), resolving
// through the cache tiers and generating on full miss.
func (s *QuizContentService) GetQuizContent(ctx context.Context, topicID, date string) (result *models.QuizContent, err error) {
	ctx, span := observability.TraceQuizFunction(ctx, "GetQuizContent",
		observability.AttributeTopicID(topicID),
		observability.AttributeDate(date),
	)
	defer observability.FinishSpan(span, &err)

	key := date + ":" + topicID

	if content := s.memoryGet(key); content != nil {
		span.SetAttributes(attribute.String("cache.tier", "memory"))
		return content, nil
	}

	content, err := s.getPersisted(ctx, topicID, date)
	if err != nil {
		return nil, err
	}
	if content != nil {
		span.SetAttributes(attribute.String("cache.tier", "postgres"))
		s.memoryPut(key, content)
		return content, nil
	}

	// Full miss: the topic must exist before we generate anything for it
	topic, err := s.topics.GetTopicByID(ctx, topicID)
	if err != nil {
		return nil, err
	}

	content, source := s.generate(ctx, topic)
	if content == nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrNoContentAvailable, "no quiz content available for topic %s", topicID)
	}
	span.SetAttributes(attribute.String("cache.tier", "generated"), observability.AttributeSource(source))

	// Write-through both tiers, including fallback content, so a topic never
	// regenerates twice in one day even after a transient failure
	if persistErr := s.persist(ctx, topicID, date, content, source); persistErr != nil {
		s.logger.Warn(ctx, "Failed to persist quiz content", map[string]interface{}{
			"topic_id": topicID,
			"date":     date,
			"error":    persistErr.Error(),
		})
	}
	s.memoryPut(key, content)

	return content, nil
}

// generate produces content from the LLM, falling back to the seed bank on
// provider error or invalid payload.
func (s *QuizContentService) generate(ctx context.Context, topic *models.Topic) (*models.QuizContent, string) {
	if s.llm != nil && s.llm.Enabled() {
		content, err := s.llm.GenerateQuizContent(ctx, topic)
		if err != nil {
			s.logger.Warn(ctx, "LLM generation failed, using seed bank", map[string]interface{}{
				"topic_id": topic.ID,
				"error":    err.Error(),
			})
		} else {
			validated, validateErr := ValidateQuizContent(content)
			if validateErr == nil {
				return validated, QuizSourceLLM
			}
			s.logger.Warn(ctx, "LLM quiz content failed validation, using seed bank", map[string]interface{}{
				"topic_id": topic.ID,
				"error":    validateErr.Error(),
			})
		}
	}

	seeded := s.seedBank.QuizContentFor(topic)
	validated, err := ValidateQuizContent(seeded)
	if err != nil {
		s.logger.Error(ctx, "Seed bank produced invalid content", err, map[string]interface{}{"topic_id": topic.ID})
		return nil, ""
	}
	return validated, QuizSourceSeed
}

// getPersisted reads the Postgres cache tier. A nil result with nil error
// means a miss.
func (s *QuizContentService) getPersisted(ctx context.Context, topicID, date string) (result *models.QuizContent, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "get_quiz_cache",
		observability.AttributeTopicID(topicID),
		observability.AttributeDate(date),
	)
	defer observability.FinishSpan(span, &err)

	var payload []byte
	err = s.db.QueryRowContext(ctx,
		`SELECT payload FROM quiz_cache WHERE cache_date = $1 AND topic_id = $2`,
		date, topicID,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		span.SetAttributes(attribute.Bool("cache.found", false))
		return nil, nil
	}
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query quiz cache")
	}

	var content models.QuizContent
	if err = json.Unmarshal(payload, &content); err != nil {
		return nil, contextutils.WrapError(err, "failed to unmarshal cached quiz content")
	}

	span.SetAttributes(attribute.Bool("cache.found", true))
	return &content, nil
}

// persist writes the Postgres cache tier. Entries are write-once: a concurrent
// writer that lost the race leaves the existing row untouched.
func (s *QuizContentService) persist(ctx context.Context, topicID, date string, content *models.QuizContent, source string) (err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "save_quiz_cache",
		observability.AttributeTopicID(topicID),
		observability.AttributeDate(date),
		observability.AttributeSource(source),
	)
	defer observability.FinishSpan(span, &err)

	payload, err := json.Marshal(content)
	if err != nil {
		return contextutils.WrapError(err, "failed to marshal quiz content")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO quiz_cache (cache_date, topic_id, payload, source)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cache_date, topic_id) DO NOTHING
	`, date, topicID, payload, source)
	if err != nil {
		return contextutils.WrapError(err, "failed to save quiz content to cache")
	}
	return nil
}

// memoryGet returns a live in-process entry or nil.
func (s *QuizContentService) memoryGet(key string) *models.QuizContent {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.memory[key]
	if !ok {
		return nil
	}
	if s.nowFn().After(entry.expiresAt) {
		delete(s.memory, key)
		return nil
	}
	return entry.content
}

// memoryPut stores an entry expiring at the end of the business day. The map
// is bounded: expired entries are dropped first, then arbitrary ones.
func (s *QuizContentService) memoryPut(key string, content *models.QuizContent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFn()
	if len(s.memory) >= s.maxEntries {
		for k, entry := range s.memory {
			if now.After(entry.expiresAt) {
				delete(s.memory, k)
			}
		}
		for k := range s.memory {
			if len(s.memory) < s.maxEntries {
				break
			}
			delete(s.memory, k)
		}
	}

	s.memory[key] = memoryCacheEntry{
		content:   content,
		expiresAt: contextutils.EndOfBusinessDay(now, s.cfg.BusinessTimezone()),
	}
}
