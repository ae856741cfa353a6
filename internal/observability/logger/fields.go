package logger

import (
	"time"

	"go.uber.org/zap"
)

// =================================================================================
// STANDARD FIELDS - HTTP
// =================================================================================

// RequestID creates a field for the per-request correlation id.
func RequestID(v string) zap.Field {
	return zap.String("request_id", v)
}

// Method creates a field for the HTTP method.
func Method(v string) zap.Field {
	return zap.String("method", v)
}

// Path creates a field for the request path.
func Path(v string) zap.Field {
	return zap.String("path", v)
}

// Status creates a field for the HTTP status code.
func Status(v int) zap.Field {
	return zap.Int("status", v)
}

// Duration creates a field for a request's duration.
func Duration(v time.Duration) zap.Field {
	return zap.Duration("duration", v)
}

// DurationMs creates a field for a request's duration in milliseconds.
func DurationMs(v int64) zap.Field {
	return zap.Int64("duration_ms", v)
}

// Bytes creates a field for the number of response bytes written.
func Bytes(v int) zap.Field {
	return zap.Int("bytes", v)
}

// ClientIP creates a field for the caller's network address.
func ClientIP(v string) zap.Field {
	return zap.String("client_ip", v)
}

// UserAgent creates a field for the request's User-Agent header.
func UserAgent(v string) zap.Field {
	return zap.String("user_agent", v)
}

// =================================================================================
// STANDARD FIELDS - ACCOUNT / SESSION
// =================================================================================

// UserID creates a field for the account id a log line concerns.
func UserID(v string) zap.Field {
	return zap.String("user_id", v)
}

// SessionID creates a field for the session id a log line concerns.
func SessionID(v string) zap.Field {
	return zap.String("session_id", v)
}

// Email creates a field for an account's email (use sparingly outside dev).
func Email(v string) zap.Field {
	return zap.String("email", v)
}

// Event creates a field for an audit event type.
func Event(v string) zap.Field {
	return zap.String("event", v)
}

// =================================================================================
// STANDARD FIELDS - SYSTEM
// =================================================================================

// Component creates a field for the originating package.
func Component(v string) zap.Field {
	return zap.String("component", v)
}

// Op creates a field for the operation in progress.
func Op(v string) zap.Field {
	return zap.String("op", v)
}

// Err creates a field for an error.
func Err(err error) zap.Field {
	return zap.Error(err)
}

// =================================================================================
// STANDARD FIELDS - GENERIC
// =================================================================================

// Count creates a field for a generic count.
func Count(v int) zap.Field {
	return zap.Int("count", v)
}

// ID creates a generic id field.
func ID(v string) zap.Field {
	return zap.String("id", v)
}

// Any creates a field for an arbitrary value.
func Any(key string, v any) zap.Field {
	return zap.Any(key, v)
}

// String creates a generic string field.
func String(key, v string) zap.Field {
	return zap.String(key, v)
}

// Int creates a generic int field.
func Int(key string, v int) zap.Field {
	return zap.Int(key, v)
}

// Bool creates a generic bool field.
func Bool(key string, v bool) zap.Field {
	return zap.Bool(key, v)
}
