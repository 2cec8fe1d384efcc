package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"scorelink/internal/privacy"
)

// ContextKey is a package-local type to prevent context key collisions
type ContextKey string

// VerboseContextKey is the strongly-typed context key for verbose logging flag
const VerboseContextKey ContextKey = "verbose"

// Standard field names used by the delivery components
const (
	LogFieldKey          = "idempotency_key"
	LogFieldReplacedKey  = "replaced_key"
	LogFieldNodeID       = "node_id"
	LogFieldPath         = "path"
	LogFieldOutcome      = "outcome"
	LogFieldAttempt      = "attempt"
	LogFieldNextRetryAt  = "next_retry_at"
	LogFieldDuration     = "duration_ms"
	LogFieldComponent    = "component"
	LogFieldMatchID      = "match_id"
	LogFieldInserted     = "inserted"
	LogFieldFinalScore   = "final_score"
	LogFieldDurationSecs = "duration_seconds"
)

// Standard field names used by the HTTP layer
const (
	LogFieldRequestID  = "request_id"
	LogFieldTraceID    = "trace_id"
	LogFieldMethod     = "method"
	LogFieldRoute      = "route"
	LogFieldURL        = "url"
	LogFieldRemoteIP   = "remote_ip"
	LogFieldUserAgent  = "user_agent"
	LogFieldStatusCode = "status_code"
	LogFieldSize       = "response_size"
)

// WithVerbose marks ctx so that identifiers are logged unmasked.
func WithVerbose(ctx context.Context, verbose bool) context.Context {
	return context.WithValue(ctx, VerboseContextKey, verbose)
}

// IsVerboseLogging checks if verbose logging is enabled from context
func IsVerboseLogging(ctx context.Context) bool {
	if verbose, ok := ctx.Value(VerboseContextKey).(bool); ok {
		return verbose
	}
	return false
}

// SanitizeKey masks an idempotency key unless verbose logging is on
func SanitizeKey(ctx context.Context, key string) string {
	if IsVerboseLogging(ctx) {
		return key
	}
	return privacy.MaskIdempotencyKey(key)
}

// SanitizeNodeID masks a node id unless verbose logging is on
func SanitizeNodeID(ctx context.Context, nodeID string) string {
	if IsVerboseLogging(ctx) {
		return nodeID
	}
	return privacy.MaskNodeID(nodeID)
}

// componentLogger returns an entry tagged with the component name
func componentLogger(logger *logrus.Logger, component string) *logrus.Entry {
	return logger.WithField(LogFieldComponent, component)
}
