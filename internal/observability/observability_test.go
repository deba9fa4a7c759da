package observability

import (
	"context"
	"testing"

	"questly/internal/config"

	"github.com/stretchr/testify/require"
)

func TestSetupObservability_AllEnabled(t *testing.T) {
	cfg := &config.OpenTelemetryConfig{
		EnableTracing: true,
		EnableMetrics: true,
		EnableLogging: true,
		ServiceName:   "test-service",
		Protocol:      "grpc",
		Endpoint:      "localhost:4317",
		Insecure:      true,
	}
	tp, mp, logger, err := SetupObservability(cfg, "test-service")
	require.NoError(t, err)
	require.NotNil(t, tp)
	require.NotNil(t, mp)
	require.NotNil(t, logger)
}

func TestSetupObservability_NoneEnabled(t *testing.T) {
	cfg := &config.OpenTelemetryConfig{
		EnableTracing: false,
		EnableMetrics: false,
		EnableLogging: false,
		ServiceName:   "test-service",
		Protocol:      "grpc",
		Endpoint:      "localhost:4317",
		Insecure:      true,
	}
	tp, mp, logger, err := SetupObservability(cfg, "test-service")
	require.NoError(t, err)
	require.Nil(t, tp)
	require.Nil(t, mp)
	require.NotNil(t, logger) // Logger is always returned (no-op when disabled)
}

func TestSetupObservability_UnsupportedProtocol(t *testing.T) {
	cfg := &config.OpenTelemetryConfig{
		EnableTracing: true,
		ServiceName:   "test-service",
		Protocol:      "carrier-pigeon",
		Endpoint:      "localhost:4317",
	}
	_, _, _, err := SetupObservability(cfg, "test-service")
	require.Error(t, err)
}

func TestTraceFunctionHelpers(t *testing.T) {
	InitGlobalTracer()
	ctx := context.Background()

	newCtx, span := TraceScheduleFunction(ctx, "GenerateRange", AttributeDate("2025-06-10"))
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()

	_, span = TracePointsFunction(ctx, "AwardPoints", AttributeUserID(7))
	require.NotNil(t, span)

	var err error
	FinishSpan(span, &err)
}

func TestFinishSpan_NilSafe(_ *testing.T) {
	FinishSpan(nil, nil)
}
