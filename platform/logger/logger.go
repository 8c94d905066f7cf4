// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Context key types for storing values in context
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// ConversationKey is the context key for the conversation key of a turn
	ConversationKey contextKey = "conversation_key"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithContext returns a logger carrying request_id and conversation_key from ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = newLogger.WithRequestID(requestID)
	}

	if key, ok := ctx.Value(ConversationKey).(string); ok && key != "" {
		newLogger = newLogger.WithConversation(key)
	}

	return newLogger
}

// WithRequestID returns a logger with request ID
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("request_id", requestID)),
	}
}

// WithConversation returns a logger scoped to one conversation key.
func (l *Logger) WithConversation(key string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("conversation_key", key)),
	}
}

// WithChannel returns a logger scoped to one channel.
func (l *Logger) WithChannel(channel string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("channel", channel)),
	}
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// WebhookRejected logs a webhook that failed authenticity verification.
func (l *Logger) WebhookRejected(channel, reason, clientIP string) {
	l.Warn("webhook_rejected",
		slog.String("channel", channel),
		slog.String("reason", reason),
		slog.String("client_ip", clientIP),
	)
}

// PayloadSkipped logs an inbound event that was dropped without processing.
func (l *Logger) PayloadSkipped(channel, reason string) {
	l.Debug("payload_skipped",
		slog.String("channel", channel),
		slog.String("reason", reason),
	)
}

// DeliveryFailed logs an outbound send that did not succeed.
func (l *Logger) DeliveryFailed(channel, recipient string, attempt int, transient bool, err error) {
	l.Warn("delivery_failed",
		slog.String("channel", channel),
		slog.String("recipient", recipient),
		slog.Int("attempt", attempt),
		slog.Bool("transient", transient),
		slog.String("error", err.Error()),
	)
}

// StoreDegraded logs a storage failure that was absorbed by the error policy.
func (l *Logger) StoreDegraded(operation, key string, err error) {
	l.Warn("store_degraded",
		slog.String("operation", operation),
		slog.String("conversation_key", key),
		slog.String("error", err.Error()),
	)
}

// QualityFlags logs non-blocking reply quality findings.
func (l *Logger) QualityFlags(channel, stage string, flags []string) {
	if len(flags) == 0 {
		return
	}
	l.Info("reply_quality_flags",
		slog.String("channel", channel),
		slog.String("stage", stage),
		slog.Any("flags", flags),
	)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// RateLimitExceeded logs rate limit events
func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", clientIP),
		slog.String("path", path),
	)
}
