package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/hellojohn/internal/observability/logger"
	"go.uber.org/zap"
)

var cookieLog = logger.Named("httpapi.cookie")

// parseSameSite converts a config string ("", "lax", "strict", "none",
// case-insensitive) to http.SameSite, defaulting to Lax on anything
// unrecognized.
func parseSameSite(s string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lax":
		return http.SameSiteLaxMode
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		cookieLog.Warn("unknown samesite value, defaulting to lax", zap.String("samesite", s))
		return http.SameSiteLaxMode
	}
}

// BuildSessionCookie constructs the session cookie with HttpOnly always on
// and Secure/SameSite/Domain driven by configuration.
func BuildSessionCookie(name, value, domain, sameSite string, secure bool, ttl time.Duration) *http.Cookie {
	ss := parseSameSite(sameSite)
	if ss == http.SameSiteNoneMode && !secure {
		cookieLog.Warn("samesite=none without secure, browsers may reject the cookie", zap.String("domain", domain))
	}
	now := time.Now().UTC()
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  now.Add(ttl),
		MaxAge:   int(ttl.Seconds()),
		Secure:   secure,
		HttpOnly: true,
		SameSite: ss,
	}
	if domain != "" {
		c.Domain = domain
	}
	return c
}

// BuildDeletionCookie returns a cookie that overwrites and expires the
// named session cookie, matching every attribute the session cookie was
// set with so the user agent actually replaces it.
func BuildDeletionCookie(name, domain, sameSite string, secure bool) *http.Cookie {
	ss := parseSameSite(sameSite)
	c := &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		Secure:   secure,
		HttpOnly: true,
		SameSite: ss,
	}
	if domain != "" {
		c.Domain = domain
	}
	return c
}
