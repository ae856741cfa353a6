// Package passwordreset implements the request/validate/confirm flow for
// resetting a forgotten password via a single-use, hashed, time-limited
// token.
package passwordreset

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/hellojohn/internal/apperr"
	"github.com/dropDatabas3/hellojohn/internal/domain"
	"github.com/dropDatabas3/hellojohn/internal/observability/logger"
	"github.com/dropDatabas3/hellojohn/internal/security/password"
	"github.com/dropDatabas3/hellojohn/internal/security/token"
)

// Config mirrors the password_reset section of the loaded configuration.
type Config struct {
	TTL                time.Duration
	MaxRequestsPerHour int
	HasherParams       password.Params
	Policy             password.Policy
	Blacklist          *password.Blacklist
}

// Manager composes the reset-token store with the user store needed to
// look up accounts by email and token. ApplyReset (on the repository) is
// what actually wraps the password-update/session-revocation side of a
// confirm in a transaction, so Manager itself holds no session dependency.
type Manager struct {
	tokens domain.PasswordResetRepository
	users  domain.UserRepository
	cfg    Config
	log    *zap.Logger
}

func New(tokens domain.PasswordResetRepository, users domain.UserRepository, cfg Config) *Manager {
	return &Manager{tokens: tokens, users: users, cfg: cfg, log: logger.Named("passwordreset")}
}

// Request mints a reset token for the given email if the account exists
// and has not exceeded MaxRequestsPerHour. It returns the plaintext token
// only when minting happened, and an empty token in every other case
// (unknown email, rate limited) so the HTTP handler can return an
// identical 200 response either way and avoid enumeration.
func (m *Manager) Request(ctx context.Context, email, ip, userAgent string) (plaintextToken string, err error) {
	user, err := m.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			m.log.Warn("lookup user for password reset request", zap.Error(err))
		}
		return "", nil // nolint:nilerr // unknown email must look identical to a rate-limited known one
	}

	recent, err := m.tokens.CountRecentForUser(ctx, user.ID, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		return "", err
	}
	if recent >= m.cfg.MaxRequestsPerHour {
		return "", nil
	}

	plaintext, err := token.GenerateOpaqueToken(32)
	if err != nil {
		return "", err
	}
	var ipPtr, uaPtr *string
	if ip != "" {
		ipPtr = &ip
	}
	if userAgent != "" {
		uaPtr = &userAgent
	}
	expiresAt := time.Now().UTC().Add(m.cfg.TTL)
	if err := m.tokens.Create(ctx, user.ID, token.SHA256Hex(plaintext), expiresAt, ipPtr, uaPtr); err != nil {
		return "", err
	}
	return plaintext, nil
}

// Validate reports whether a token is currently usable and, if so, the
// email of the account it belongs to.
func (m *Manager) Validate(ctx context.Context, plaintextToken string) (email string, err error) {
	rec, err := m.tokens.GetByHash(ctx, token.SHA256Hex(plaintextToken))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return "", apperr.New(apperr.KindBadRequest, "invalid or expired token")
		}
		return "", apperr.Internal("get password reset token", err)
	}
	if rec.UsedAt != nil {
		return "", apperr.New(apperr.KindBadRequest, "token already used")
	}
	if rec.ExpiresAt.Before(time.Now().UTC()) {
		return "", apperr.New(apperr.KindBadRequest, "token expired")
	}
	user, err := m.users.GetByID(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return "", apperr.New(apperr.KindBadRequest, "invalid or expired token")
		}
		return "", apperr.Internal("lookup user", err)
	}
	return user.Email, nil
}

// Confirm burns a reset token, sets the new password, and invalidates
// every live session for the account as a single database transaction
// (tokens.ApplyReset) — mark-used, password update, and session revocation
// either all land or none do, so a crash partway through never leaves the
// token burned with the old password still active, or the password changed
// with a stale session still valid.
func (m *Manager) Confirm(ctx context.Context, plaintextToken, newPassword string) error {
	rec, err := m.tokens.GetByHash(ctx, token.SHA256Hex(plaintextToken))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.New(apperr.KindBadRequest, "invalid or expired token")
		}
		return apperr.Internal("get password reset token", err)
	}
	if rec.UsedAt != nil {
		return apperr.New(apperr.KindBadRequest, "token already used")
	}
	if rec.ExpiresAt.Before(time.Now().UTC()) {
		return apperr.New(apperr.KindBadRequest, "token expired")
	}
	if reasons := password.ValidateNewPassword(m.cfg.Policy, m.cfg.Blacklist, newPassword); len(reasons) > 0 {
		return apperr.WithDetail(apperr.KindBadRequest, "password does not meet requirements",
			map[string]any{"reasons": reasons})
	}

	hash, err := password.Hash(m.cfg.HasherParams, newPassword)
	if err != nil {
		return apperr.Internal("hash password", err)
	}

	if err := m.tokens.ApplyReset(ctx, rec.ID, rec.UserID, hash); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return apperr.New(apperr.KindBadRequest, "token already used")
		}
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.New(apperr.KindNotFound, "user not found")
		}
		return apperr.Internal("apply password reset", err)
	}
	return nil
}
