package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dropDatabas3/hellojohn/internal/apperr"
	"github.com/dropDatabas3/hellojohn/internal/observability/logger"
)

type errorBody struct {
	Error     string         `json:"error"`
	Message   string         `json:"message,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// readJSON decodes the request body into v, capping it at 1MiB.
func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, apperr.New(apperr.KindBadRequest, "invalid request body"))
		return false
	}
	return true
}

// statusFor maps an apperr.Kind to the HTTP status spec.md §7 assigns it.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidCredentials:
		return http.StatusUnauthorized
	case apperr.KindTwoFactorRequired:
		return http.StatusBadRequest
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindTooManyAttempts:
		return http.StatusTooManyRequests
	case apperr.KindAccountLocked:
		return http.StatusLocked
	case apperr.KindBadRequest:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders any error returned by the auth package as the
// closed JSON error shape, setting Retry-After for rate-limited and
// locked responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		appErr = apperr.Internal("unhandled", err)
	}
	if appErr.Kind == apperr.KindInternal {
		logger.From(r.Context()).Error("internal error", logger.Err(appErr))
	}
	status := statusFor(appErr.Kind)
	if seconds, ok := retryAfterSeconds(appErr); ok {
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}
	body := errorBody{
		Error:     string(appErr.Kind),
		Message:   appErr.Msg,
		RequestID: w.Header().Get("X-Request-Id"),
	}
	if appErr.Kind != apperr.KindInternal {
		body.Detail = appErr.Detail
	}
	writeJSON(w, status, body)
}

func retryAfterSeconds(e *apperr.Error) (int, bool) {
	if e.Detail == nil {
		return 0, false
	}
	if v, ok := e.Detail["retry_after_seconds"].(int); ok {
		return v, true
	}
	if until, ok := e.Detail["locked_until"].(time.Time); ok {
		if s := int(time.Until(until).Seconds()); s > 0 {
			return s, true
		}
	}
	return 0, false
}
