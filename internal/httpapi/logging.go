package httpapi

import (
	"net/http"
	"time"

	"github.com/dropDatabas3/hellojohn/internal/observability/logger"
	"go.uber.org/zap"
)

// statusRecorder captures the status code and byte count a handler wrote,
// since http.ResponseWriter exposes neither after the fact.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.wroteHeader {
		return
	}
	s.status = code
	s.wroteHeader = true
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if !s.wroteHeader {
		s.status = http.StatusOK
		s.wroteHeader = true
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

// withRequestLoggingMiddleware logs one line per request at completion and
// attaches a logger carrying request_id/method/path (plus user_id once the
// session guard has resolved one) to the request context, retrievable
// downstream via logger.From. Runs after withRequestIDMiddleware so the
// request id is already set.
func withRequestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		reqLog := logger.Named("httpapi").With(
			logger.RequestID(RequestIDFromContext(r.Context())),
			logger.Method(r.Method),
			logger.Path(r.URL.Path),
		)
		// Mounted after sessionGuard on authenticated routes, so the
		// authenticated user id (if any) is already on the context by the
		// time this runs.
		if userID, ok := UserFromContext(r.Context()); ok {
			reqLog = reqLog.With(logger.UserID(userID))
		}

		ctx := logger.ToContext(r.Context(), reqLog)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		fields := []zap.Field{
			logger.Status(rec.status),
			logger.Bytes(rec.bytes),
			logger.DurationMs(time.Since(start).Milliseconds()),
		}
		switch {
		case rec.status >= 500:
			reqLog.Error("request completed", fields...)
		case rec.status >= 400:
			reqLog.Warn("request completed", fields...)
		default:
			reqLog.Info("request completed", fields...)
		}
	})
}
