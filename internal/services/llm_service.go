package services

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"questly/internal/config"
	"questly/internal/models"
	"questly/internal/observability"
	contextutils "questly/internal/utils"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// quizSystemPrompt pins the response shape: a quick question plus a quiz of
// at least five questions, four options each, correct index 0-3.
const quizSystemPrompt = `You generate learning quizzes. Respond with a single JSON object of the form
{"quick": MCQ, "quiz": [MCQ, MCQ, MCQ, MCQ, MCQ]} where MCQ is
{"question": string, "options": [string, string, string, string], "correct_index": 0-3, "explanation": string}.
Every question must have exactly 4 options and a correct_index between 0 and 3.
The quiz array must contain at least 5 questions. Do not include any text outside the JSON object.`

// LLMClientInterface defines the interface to the LLM content provider
type LLMClientInterface interface {
	GenerateQuizContent(ctx context.Context, topic *models.Topic) (*models.QuizContent, error)
	TestConnection(ctx context.Context) error
	Enabled() bool
}

// llmMessage is one chat message in the provider request
type llmMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// llmRequest is the chat-completions request payload
type llmRequest struct {
	Model          string       `json:"model"`
	Messages       []llmMessage `json:"messages"`
	Temperature    float64      `json:"temperature"`
	MaxTokens      int          `json:"max_tokens,omitempty"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

// llmResponse is the chat-completions response payload
type llmResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// LLMClient implements LLMClientInterface over an OpenAI-compatible HTTP API
type LLMClient struct {
	cfg        *config.LLMConfig
	logger     *observability.Logger
	httpClient *http.Client
}

// NewLLMClient creates a new LLM client with an instrumented HTTP transport
func NewLLMClient(cfg *config.LLMConfig, logger *observability.Logger) *LLMClient {
	httpClient := &http.Client{
		Timeout: config.LLMRequestTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanOptions(trace.WithSpanKind(trace.SpanKindClient)),
		),
	}

	return &LLMClient{
		cfg:        cfg,
		logger:     logger,
		httpClient: httpClient,
	}
}

// Enabled reports whether the provider is configured for use.
func (c *LLMClient) Enabled() bool {
	return c.cfg != nil && c.cfg.Enabled && c.cfg.URL != ""
}

// GenerateQuizContent asks the provider for quiz content for a topic. The
// returned payload is parsed but not yet schema-validated; the quiz content
// service owns validation and fallback.
func (c *LLMClient) GenerateQuizContent(ctx context.Context, topic *models.Topic) (result *models.QuizContent, err error) {
	ctx, span := observability.TraceLLMFunction(ctx, "GenerateQuizContent",
		observability.AttributeTopicID(topic.ID),
		attribute.String("llm.model", c.cfg.Model),
	)
	defer observability.FinishSpan(span, &err)

	if !c.Enabled() {
		return nil, contextutils.WrapError(contextutils.ErrLLMUnavailable, "llm provider not configured")
	}

	prompt := buildQuizPrompt(topic)
	reqBody := llmRequest{
		Model: c.cfg.Model,
		Messages: []llmMessage{
			{Role: "system", Content: quizSystemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}
	reqBody.ResponseFormat.Type = "json_object"

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to marshal llm request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to create llm request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "questly/1.0")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrLLMRequestFailed, "llm request failed after %v: %w", duration, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn(ctx, "Failed to close response body", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to read llm response body")
	}

	span.SetAttributes(
		attribute.Int("llm.status_code", resp.StatusCode),
		attribute.String("llm.duration", duration.String()),
	)

	if resp.StatusCode != http.StatusOK {
		return nil, contextutils.WrapErrorf(contextutils.ErrLLMRequestFailed, "llm request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var parsed llmResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrLLMResponseInvalid, "failed to parse llm response: %w", err)
	}
	if parsed.Error != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrLLMRequestFailed, "llm api error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return nil, contextutils.WrapError(contextutils.ErrLLMResponseInvalid, "llm returned no content")
	}

	var content models.QuizContent
	if err := json.Unmarshal([]byte(parsed.Choices[0].Message.Content), &content); err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrLLMResponseInvalid, "llm content is not valid quiz JSON: %w", err)
	}

	c.logger.Info(ctx, "LLM quiz content generated", map[string]interface{}{
		"topic_id": topic.ID,
		"duration": duration.String(),
		"quiz_len": len(content.Quiz),
	})

	return &content, nil
}

// TestConnection probes the provider's models endpoint with bounded retries.
func (c *LLMClient) TestConnection(ctx context.Context) (err error) {
	ctx, span := observability.TraceLLMFunction(ctx, "TestConnection")
	defer observability.FinishSpan(span, &err)

	if !c.Enabled() {
		return contextutils.WrapError(contextutils.ErrLLMUnavailable, "llm provider not configured")
	}

	return contextutils.RetryWithBackoff(ctx, contextutils.DefaultRetryConfig(), func(ctx context.Context) error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL+"/models", nil)
		if reqErr != nil {
			return contextutils.WrapError(reqErr, "failed to create probe request")
		}
		if c.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}

		resp, doErr := c.httpClient.Do(req)
		if doErr != nil {
			return doErr
		}
		defer func() {
			if closeErr := resp.Body.Close(); closeErr != nil {
				c.logger.Warn(ctx, "Failed to close response body", map[string]interface{}{"error": closeErr.Error()})
			}
		}()

		if contextutils.IsRetryableStatus(resp.StatusCode) {
			return contextutils.WrapErrorf(contextutils.ErrServiceUnavailable, "llm probe returned status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return contextutils.WrapErrorf(contextutils.ErrLLMRequestFailed, "llm probe returned status %d", resp.StatusCode)
		}
		return nil
	})
}

// buildQuizPrompt composes the per-topic user prompt from the topic metadata.
func buildQuizPrompt(topic *models.Topic) string {
	prompt := "Generate a quick question and a 5-question quiz about the topic \"" + topic.Title + "\""
	if topic.Domain != "" {
		prompt += " (domain: " + topic.Domain + ")"
	}
	prompt += " at " + string(topic.Difficulty) + " level."
	if topic.Blurb != "" {
		prompt += " Topic summary: " + topic.Blurb
	}
	if topic.SeedContext != "" {
		prompt += " Context: " + topic.SeedContext
	}
	if len(topic.Angles) > 0 {
		prompt += " Cover angles such as: "
		for i, angle := range topic.Angles {
			if i > 0 {
				prompt += ", "
			}
			prompt += angle
		}
		prompt += "."
	}
	return prompt
}
