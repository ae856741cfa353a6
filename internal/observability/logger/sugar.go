package logger

import (
	"context"

	"go.uber.org/zap"
)

// S returns the singleton's SugaredLogger, for printf-style one-off logs
// outside the structured-field call sites the rest of this service uses.
//
// Example:
//
//	logger.S().Infof("user %s created", userID)
func S() *zap.SugaredLogger {
	return L().Sugar()
}

// SFrom returns the context-scoped logger's SugaredLogger.
func SFrom(ctx context.Context) *zap.SugaredLogger {
	return From(ctx).Sugar()
}
