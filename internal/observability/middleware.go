package observability

import (
	"errors"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	contextutils "questly/internal/utils"
)

// GinMiddleware creates OpenTelemetry middleware for Gin HTTP requests
func GinMiddleware(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName)
}

// GinMiddlewareWithErrorHandling creates OpenTelemetry middleware that
// enriches the request span with error attributes for failed requests
func GinMiddlewareWithErrorHandling(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		otelgin.Middleware(serviceName)(c)

		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if span == nil {
			return
		}
		statusCode := c.Writer.Status()
		if statusCode < 400 {
			return
		}

		severity := determineErrorSeverity(statusCode, c.Errors)

		var errorMsg string
		switch {
		case statusCode >= 500:
			errorMsg = "server error"
		default:
			errorMsg = "client error"
		}

		// Prefer the AppError message when the handler recorded one
		if len(c.Errors) > 0 {
			for _, ginErr := range c.Errors {
				if appErr, ok := ginErr.Err.(*contextutils.AppError); ok {
					errorMsg = appErr.Message
					severity = string(appErr.Severity)
					break
				}
				errorMsg = ginErr.Error()
			}
		}

		span.RecordError(errors.New(errorMsg), trace.WithStackTrace(true))
		span.SetStatus(codes.Error, errorMsg)

		span.SetAttributes(
			attribute.Int("http.status_code", statusCode),
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.path", c.Request.URL.Path),
			attribute.String("error.handler", c.HandlerName()),
			attribute.String("error.severity", severity),
		)

		// Add user context if available
		session := sessions.Default(c)
		if userID, ok := session.Get("user_id").(int); ok {
			span.SetAttributes(attribute.Int("error.user_id", userID))
		}

		if len(c.Errors) > 0 {
			for _, ginErr := range c.Errors {
				if appErr, ok := ginErr.Err.(*contextutils.AppError); ok {
					span.SetAttributes(
						attribute.String("error.code", string(appErr.Code)),
						attribute.Bool("error.retryable", contextutils.IsRetryable(appErr)),
					)
					break
				}
			}
		}

		if statusCode >= 500 {
			span.SetAttributes(attribute.Bool("error.server_error", true))
		}
	}
}

// determineErrorSeverity determines the severity level based on status code and error types
func determineErrorSeverity(statusCode int, errors []*gin.Error) string {
	// Check for AppError types first
	for _, err := range errors {
		if appErr, ok := err.Err.(*contextutils.AppError); ok {
			return string(appErr.Severity)
		}
	}

	// Fallback to status code based severity
	switch {
	case statusCode >= 500:
		return string(contextutils.SeverityError)
	case statusCode >= 400:
		return string(contextutils.SeverityWarn)
	default:
		return string(contextutils.SeverityInfo)
	}
}
