package httpapi

import "context"

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyUserID
	ctxKeySessionID
)

// AuthenticatedUser is what the Session Guard exposes to downstream
// handlers: the user id and the id of the session presented, with no user
// record, per spec.md's "does not re-fetch the user record" contract.
type AuthenticatedUser struct {
	ID        string
	SessionID string
}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

// RequestIDFromContext returns the per-request id, or "" if unset.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

func withAuthenticatedUser(ctx context.Context, u AuthenticatedUser) context.Context {
	ctx = context.WithValue(ctx, ctxKeyUserID, u.ID)
	return context.WithValue(ctx, ctxKeySessionID, u.SessionID)
}

// UserFromContext returns the authenticated user id set by the Session
// Guard, or ("", false) for anonymous requests.
func UserFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKeyUserID).(string)
	return id, ok
}

// SessionIDFromContext returns the session id backing the current request,
// used by the logout handler to revoke exactly the session presented.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKeySessionID).(string)
	return id, ok
}
