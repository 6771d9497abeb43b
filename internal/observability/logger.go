// Package observability provides structured logging and invocation
// metrics for the chat service.
package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	// LogFieldTraceID is the field name for the trace ID.
	LogFieldTraceID = "trace_id"
	// LogFieldSessionID is the field name for the chat session ID.
	LogFieldSessionID = "session_id"
	// LogFieldRequestID is the field name for the chat request ID.
	LogFieldRequestID = "request_id"
	// LogFieldAgentID is the field name for the handling agent.
	LogFieldAgentID = "agent_id"
	// LogFieldDuration is the field name for duration in milliseconds.
	LogFieldDuration = "duration_ms"
	// LogFieldOutcome is the field name for the invocation outcome.
	LogFieldOutcome = "outcome"
)

// RequestContext carries per-invocation logging state: a trace ID, the
// session and request being handled, and the start time.
type RequestContext struct {
	TraceID   string
	SessionID string
	RequestID string
	AgentID   string
	StartTime time.Time
	Logger    *slog.Logger
}

// NewRequestContext creates a request context with a generated trace ID.
func NewRequestContext(logger *slog.Logger, sessionID, requestID, agentID string) *RequestContext {
	return &RequestContext{
		TraceID:   uuid.New().String(),
		SessionID: sessionID,
		RequestID: requestID,
		AgentID:   agentID,
		StartTime: time.Now(),
		Logger:    logger,
	}
}

// Info logs an info message with the base fields attached.
func (r *RequestContext) Info(msg string, attrs ...slog.Attr) {
	r.Logger.LogAttrs(context.Background(), slog.LevelInfo, msg, r.baseAttrsAppended(attrs...)...)
}

// Debug logs a debug message with the base fields attached.
func (r *RequestContext) Debug(msg string, attrs ...slog.Attr) {
	r.Logger.LogAttrs(context.Background(), slog.LevelDebug, msg, r.baseAttrsAppended(attrs...)...)
}

// Warn logs a warning message with the base fields attached.
func (r *RequestContext) Warn(msg string, attrs ...slog.Attr) {
	r.Logger.LogAttrs(context.Background(), slog.LevelWarn, msg, r.baseAttrsAppended(attrs...)...)
}

// Error logs an error message with the error and base fields attached.
func (r *RequestContext) Error(msg string, err error, attrs ...slog.Attr) {
	allAttrs := append(attrs, slog.String("error", err.Error()))
	r.Logger.LogAttrs(context.Background(), slog.LevelError, msg, r.baseAttrsAppended(allAttrs...)...)
}

// Duration returns the elapsed time since the request started.
func (r *RequestContext) Duration() time.Duration {
	return time.Since(r.StartTime)
}

// DurationMs returns the elapsed time in milliseconds.
func (r *RequestContext) DurationMs() int64 {
	return r.Duration().Milliseconds()
}

func (r *RequestContext) baseAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String(LogFieldTraceID, r.TraceID),
		slog.String(LogFieldSessionID, r.SessionID),
		slog.String(LogFieldRequestID, r.RequestID),
		slog.String(LogFieldAgentID, r.AgentID),
	}
}

func (r *RequestContext) baseAttrsAppended(attrs ...slog.Attr) []slog.Attr {
	return append(r.baseAttrs(), attrs...)
}

type ctxKey struct{}

// WithRequestContext adds the request context to the context.
func WithRequestContext(ctx context.Context, reqCtx *RequestContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, reqCtx)
}

// FromContext extracts the request context from the context.
func FromContext(ctx context.Context) (*RequestContext, bool) {
	reqCtx, ok := ctx.Value(ctxKey{}).(*RequestContext)
	return reqCtx, ok
}
