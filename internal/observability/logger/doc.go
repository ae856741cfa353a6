// Package logger provides a singleton Zap logger with context-based scoping,
// used throughout authd in place of the standard library's log package.
//
// # Design decisions
//
//   - Singleton: a single global instance initialized once via Init().
//   - Context scoping: httpapi's request-logging middleware attaches a
//     per-request logger carrying request_id/method/path/user_id to the
//     request context, retrieved downstream with From(ctx).
//   - Environments: "dev" uses a colorized console encoder, "prod" uses JSON.
//   - Levels: debug, info, warn, error, set by Config.Level (default info);
//     the server.debug flag selects the dev or prod environment, not the level.
//
// # Usage
//
// Initialization, once in cmd/authd:
//
//	logger.Init(logger.Config{Env: debugEnv(cfg.Server.Debug), ServiceName: "authd"})
//	defer logger.Sync()
//
// In a manager or repository, a name tags every line it logs:
//
//	log := logger.Named("twofactor")
//	log.Warn("lookup totp config", logger.UserID(userID), logger.Err(err))
//
// In an HTTP handler, with request-scoped fields attached by the middleware:
//
//	logger.From(r.Context()).Error("unhandled error", logger.Err(err))
package logger
