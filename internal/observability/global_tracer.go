package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var globalTracer trace.Tracer

// InitGlobalTracer initializes the global tracer for the application.
func InitGlobalTracer() {
	globalTracer = otel.Tracer("questly")
}

// GetGlobalTracer returns the global tracer instance for the application.
func GetGlobalTracer() trace.Tracer {
	if globalTracer == nil {
		// Fallback to default tracer if not initialized
		globalTracer = otel.Tracer("questly")
	}
	return globalTracer
}

// TraceFunction starts a new span with a descriptive name for the given service and function.
func TraceFunction(ctx context.Context, serviceName, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := GetGlobalTracer()
	spanName := fmt.Sprintf("%s.%s", serviceName, functionName)
	return tracer.Start(ctx, spanName, trace.WithAttributes(attributes...))
}

// TraceScheduleFunction starts a new span for a schedule service function.
func TraceScheduleFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "schedule", functionName, attributes...)
}

// TraceRotationFunction starts a new span for a topic rotation function.
func TraceRotationFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "rotation", functionName, attributes...)
}

// TraceQuizFunction starts a new span for a quiz content function.
func TraceQuizFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "quiz", functionName, attributes...)
}

// TracePointsFunction starts a new span for a points engine function.
func TracePointsFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "points", functionName, attributes...)
}

// TraceLeaderboardFunction starts a new span for a leaderboard function.
func TraceLeaderboardFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "leaderboard", functionName, attributes...)
}

// TraceUserFunction starts a new span for a user service function.
func TraceUserFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "user", functionName, attributes...)
}

// TraceLLMFunction starts a new span for an LLM provider function.
func TraceLLMFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "llm", functionName, attributes...)
}

// TraceTopicFunction starts a new span for a topic service function.
func TraceTopicFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "topic", functionName, attributes...)
}

// TraceWorkerFunction starts a new span for a worker function.
func TraceWorkerFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "worker", functionName, attributes...)
}

// TraceHandlerFunction starts a new span for a handler function.
func TraceHandlerFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "handler", functionName, attributes...)
}

// TraceDatabaseFunction starts a new span for a database function.
func TraceDatabaseFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "database", functionName, attributes...)
}

// AttributeUserID returns a tracing attribute for a user ID.
func AttributeUserID(id int) attribute.KeyValue {
	return attribute.Int("user.id", id)
}

// AttributeTopicID returns a tracing attribute for a topic ID.
func AttributeTopicID(id string) attribute.KeyValue {
	return attribute.String("topic.id", id)
}

// AttributeDate returns a tracing attribute for a business date.
func AttributeDate(date string) attribute.KeyValue {
	return attribute.String("business.date", date)
}

// AttributeDifficulty returns a tracing attribute for a difficulty band.
func AttributeDifficulty(d interface{}) attribute.KeyValue {
	return attribute.String("topic.difficulty", fmt.Sprintf("%v", d))
}

// AttributeTier returns a tracing attribute for a subscription tier.
func AttributeTier(isPremium bool) attribute.KeyValue {
	if isPremium {
		return attribute.String("user.tier", "premium")
	}
	return attribute.String("user.tier", "free")
}

// AttributeSource returns a tracing attribute for a quiz content source.
func AttributeSource(source string) attribute.KeyValue {
	return attribute.String("quiz.source", source)
}

// AttributeLimit returns a tracing attribute for a limit value.
func AttributeLimit(limit int) attribute.KeyValue {
	return attribute.Int("limit", limit)
}
