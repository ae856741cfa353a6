package logger

import (
	"sync"

	"go.uber.org/zap"
)

var (
	once     sync.Once
	instance *zap.Logger
)

// Init builds the singleton logger from cfg. Idempotent: only the first
// call takes effect. cmd/authd calls this once at process startup, before
// any repository or manager that logs is constructed.
func Init(cfg Config) {
	once.Do(func() {
		instance = build(cfg)
	})
}

// L returns the singleton logger, building a dev/info default if Init was
// never called (exercised by tests that construct managers directly without
// going through cmd/authd).
func L() *zap.Logger {
	if instance == nil {
		Init(Config{Env: "dev", Level: "info"})
	}
	return instance
}

// Named returns a logger tagged with a component name, e.g. "auth",
// "passwordreset", "audit" — the auth orchestrator, the password-reset
// manager and the audit writer call this once at construction and keep the
// result.
func Named(name string) *zap.Logger {
	return L().Named(name)
}

// With returns a logger carrying additional persistent fields.
func With(fields ...zap.Field) *zap.Logger {
	return L().With(fields...)
}

// Sync flushes any buffered log entries. cmd/authd defers this at startup.
func Sync() error {
	if instance != nil {
		return instance.Sync()
	}
	return nil
}
