package service

import (
	"context"

	"evocrm/internal/privacy"
)

// ContextKey is a package-local type to prevent context key collisions
type ContextKey string

// VerboseContextKey is the strongly-typed context key for verbose logging flag
const VerboseContextKey ContextKey = "verbose"

// Standard log field names shared between the services and the HTTP layer.
const (
	LogFieldRequestID  = "request_id"
	LogFieldTraceID    = "trace_id"
	LogFieldMethod     = "method"
	LogFieldURL        = "url"
	LogFieldStatusCode = "status_code"
	LogFieldDuration   = "duration_ms"
	LogFieldRemoteIP   = "remote_ip"
	LogFieldUserAgent  = "user_agent"
	LogFieldSize       = "response_size"
	LogFieldEvent      = "event"
	LogFieldInstance   = "instance"
	LogFieldMessageID  = "message_id"
	LogFieldContactID  = "contact_id"
	LogFieldJID        = "jid"
)

// IsVerboseLogging checks if verbose logging is enabled from context
func IsVerboseLogging(ctx context.Context) bool {
	if verbose, ok := ctx.Value(VerboseContextKey).(bool); ok {
		return verbose
	}
	return false
}

// SanitizeJID masks the phone portion of a JID for logs unless verbose
// logging is active.
func SanitizeJID(ctx context.Context, jid string) string {
	if IsVerboseLogging(ctx) {
		return jid
	}
	return privacy.MaskJID(jid)
}

// SanitizeMessageID masks network message ids for logs unless verbose logging
// is active.
func SanitizeMessageID(ctx context.Context, msgID string) string {
	if IsVerboseLogging(ctx) {
		return msgID
	}
	return privacy.MaskMessageID(msgID)
}
