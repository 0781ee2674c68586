package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across trellis.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldRequestID     = "request_id"
	FieldProjectID     = "project_id"
	FieldParticipantID = "participant_id"
	FieldNodeID        = "node_id"
	FieldTemplateID    = "template_id"
	FieldVariableID    = "variable_id"
	FieldJobID         = "job_id"
	FieldKeyword       = "keyword"

	// Components
	FieldComponent = "component"

	// Operations
	FieldOperation = "operation"
	FieldMethod    = "method"
	FieldPath      = "path"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldRunAt      = "run_at"

	// Errors
	FieldError = "error"

	// Counts and status
	FieldCount     = "count"
	FieldBatchSize = "batch_size"
	FieldStatus    = "status"
)

// Context keys for propagating logging context
type contextKey string

const (
	requestIDKey     contextKey = "logger_request_id"
	participantIDKey contextKey = "logger_participant_id"
	jobIDKey         contextKey = "logger_job_id"
)

// WithRequestID adds a request ID to the context for logging
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithParticipantID adds a participant ID to the context for logging
func WithParticipantID(ctx context.Context, participantID string) context.Context {
	return context.WithValue(ctx, participantIDKey, participantID)
}

// WithJobID adds a scheduled-job ID to the context for logging
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey, jobID)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if requestID, ok := ctx.Value(requestIDKey).(string); ok && requestID != "" {
		fields = append(fields, FieldRequestID, requestID)
	}
	if participantID, ok := ctx.Value(participantIDKey).(string); ok && participantID != "" {
		fields = append(fields, FieldParticipantID, participantID)
	}
	if jobID, ok := ctx.Value(jobIDKey).(string); ok && jobID != "" {
		fields = append(fields, FieldJobID, jobID)
	}

	return fields
}

// LoggerFromContext returns a logger with fields extracted from context.
func LoggerFromContext(ctx context.Context) *zap.SugaredLogger {
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return Logger
	}
	return Logger.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	poller := &Poller{
//	    logger: logger.ComponentLogger("scheduler"),
//	}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// ChildLogger creates a child logger with additional context fields.
func ChildLogger(parent *zap.SugaredLogger, keysAndValues ...interface{}) *zap.SugaredLogger {
	return parent.With(keysAndValues...)
}
