// Package httpapi wires the authentication orchestrator behind the chi
// router: routes, the session-cookie guard, and the JSON request/response
// envelope every handler shares.
package httpapi

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dropDatabas3/hellojohn/internal/audit"
	"github.com/dropDatabas3/hellojohn/internal/auth"
	"github.com/dropDatabas3/hellojohn/internal/observability/metrics"
	"github.com/dropDatabas3/hellojohn/internal/session"
)

// Deps bundles everything NewRouter needs to build handlers and the
// session guard.
type Deps struct {
	Auth          *auth.Orchestrator
	PasswordReset *auth.PasswordReset
	Sessions      *session.Manager
	Audit         *audit.Writer

	CookieName   string
	CookieDomain string
	CookieSecure bool
	CookieSame   string
	SessionTTL   time.Duration
}

// NewRouter builds the full route table from spec.md §6.
func NewRouter(d Deps) *chi.Mux {
	h := &handler{
		auth:          d.Auth,
		passwordReset: d.PasswordReset,
		cookieName:    d.CookieName,
		cookieDomain:  d.CookieDomain,
		cookieSecure:  d.CookieSecure,
		cookieSame:    d.CookieSame,
		sessionTTL:    d.SessionTTL,
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(withRequestIDMiddleware)
	r.Use(withSecurityHeaders)

	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(withRequestLoggingMiddleware)

		r.Post("/users", h.signup)
		r.Post("/users/login", h.login)

		r.Post("/password-reset/request", h.passwordResetRequest)
		r.Post("/password-reset/validate", h.passwordResetValidate)
		r.Post("/password-reset/confirm", h.passwordResetConfirm)

		r.Post("/two-factor/emergency-disable-request", h.twoFactorEmergencyDisableRequest)
		r.Post("/two-factor/emergency-disable-confirm", h.twoFactorEmergencyDisableConfirm)

		r.Get("/unlock", h.unlock)
	})

	r.Group(func(r chi.Router) {
		r.Use(sessionGuard(d.Sessions, d.CookieName, d.Audit))
		r.Use(withRequestLoggingMiddleware)

		r.Post("/users/logout", h.logout)
		r.Get("/users/me", h.me)
		r.Delete("/users/{id}", h.deleteUser)

		r.Post("/two-factor/setup", h.twoFactorSetup)
		r.Post("/two-factor/verify", h.twoFactorVerify)
		r.Delete("/two-factor/disable", h.twoFactorDisable)
		r.Get("/two-factor/status", h.twoFactorStatus)
		r.Post("/two-factor/regenerate-backup-codes", h.twoFactorRegenerateBackupCodes)
	})

	return r
}
