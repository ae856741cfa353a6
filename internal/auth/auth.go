// Package auth composes the rate limiter, credential hasher, two-factor
// manager, session manager, audit writer, and email dispatcher into the
// login/logout/signup state machine.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/dropDatabas3/hellojohn/internal/apperr"
	"github.com/dropDatabas3/hellojohn/internal/domain"
	"github.com/dropDatabas3/hellojohn/internal/email"
	"github.com/dropDatabas3/hellojohn/internal/observability/logger"
	"github.com/dropDatabas3/hellojohn/internal/observability/metrics"
	"github.com/dropDatabas3/hellojohn/internal/ratelimit"
	"github.com/dropDatabas3/hellojohn/internal/security/password"
	"github.com/dropDatabas3/hellojohn/internal/session"
	"github.com/dropDatabas3/hellojohn/internal/twofactor"

	auditpkg "github.com/dropDatabas3/hellojohn/internal/audit"
	"go.uber.org/zap"
)

// dummyPassword is hashed once at construction so that "user not found"
// branches spend the same CPU as "user found, password wrong" — Login
// verifies the submitted password against it and discards the result.
const dummyPassword = "correct horse battery staple, this is never a real password"

// LinkBuilder renders the frontend URLs the three outbound emails link to.
// Kept as injected functions so the orchestrator never hardcodes a
// frontend origin.
type LinkBuilder struct {
	PasswordReset    func(token string) string
	AccountUnlock    func(token, userID string) string
	EmergencyDisable func(token string) string
}

// Orchestrator ties every authentication subsystem together behind the
// operations the HTTP layer calls.
type Orchestrator struct {
	users             domain.UserRepository
	ratelimit         *ratelimit.Limiter
	twofactor         *twofactor.Manager
	sessions          *session.Manager
	audit             *auditpkg.Writer
	email             *email.Dispatcher
	hasher            password.Params
	dummyHash         string
	links             LinkBuilder
	enableEmailUnlock bool
	resetTTLLabel     string
	unlockTTLLabel    string
	emergencyTTLLabel string
	policy            password.Policy
	blacklist         *password.Blacklist
	log               *zap.Logger
}

// Deps bundles everything New needs, avoiding an unwieldy positional
// constructor as the orchestrator's dependency count grows.
type Deps struct {
	Users             domain.UserRepository
	RateLimit         *ratelimit.Limiter
	TwoFactor         *twofactor.Manager
	Sessions          *session.Manager
	Audit             *auditpkg.Writer
	Email             *email.Dispatcher
	Hasher            password.Params
	Links             LinkBuilder
	EnableEmailUnlock bool
	ResetTTLLabel     string
	UnlockTTLLabel    string
	EmergencyTTLLabel string
	Policy            password.Policy
	Blacklist         *password.Blacklist
}

// New builds an Orchestrator and computes the dummy password hash once.
func New(d Deps) (*Orchestrator, error) {
	dummyHash, err := password.Hash(d.Hasher, dummyPassword)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		users:             d.Users,
		ratelimit:         d.RateLimit,
		twofactor:         d.TwoFactor,
		sessions:          d.Sessions,
		audit:             d.Audit,
		email:             d.Email,
		hasher:            d.Hasher,
		dummyHash:         dummyHash,
		links:             d.Links,
		enableEmailUnlock: d.EnableEmailUnlock,
		resetTTLLabel:     d.ResetTTLLabel,
		unlockTTLLabel:    d.UnlockTTLLabel,
		emergencyTTLLabel: d.EmergencyTTLLabel,
		policy:            d.Policy,
		blacklist:         d.Blacklist,
		log:               logger.Named("auth"),
	}, nil
}

// LoginInput is everything the HTTP handler collects from a login request.
type LoginInput struct {
	Email          string
	Password       string
	TwoFactorCode  string
	NetworkAddress string
	UserAgent      string
}

// LoginResult carries what the handler needs to set the session cookie.
type LoginResult struct {
	CookieValue string
	ExpiresAt   time.Time
}

// Login runs PreCheck → Lookup → PasswordVerify → SecondFactor → SessionMint.
func (o *Orchestrator) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	ip, ua := ptr(in.NetworkAddress), ptr(in.UserAgent)

	status, err := o.ratelimit.PreCheck(ctx, domain.AxisNetworkAddress, in.NetworkAddress)
	if err != nil {
		return nil, apperr.Internal("ratelimit precheck", err)
	}
	switch status.Kind {
	case ratelimit.Locked:
		o.audit.Log(nil, domain.EventAccountLocked, false, ip, ua, map[string]any{"axis": "network_address"})
		return nil, apperr.WithDetail(apperr.KindAccountLocked, "account locked",
			map[string]any{"locked_until": time.Now().UTC().Add(status.RetryAfter)})
	case ratelimit.Delayed:
		o.audit.Log(nil, domain.EventLoginRateLimited, false, ip, ua, nil)
		return nil, apperr.WithDetail(apperr.KindTooManyAttempts, "too many attempts",
			map[string]any{"retry_after_seconds": int(status.RetryAfter.Seconds())})
	}

	user, err := o.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Internal("lookup user", err)
		}
		_ = password.Verify(in.Password, o.dummyHash)
		o.recordNetworkFailure(ctx, in.NetworkAddress)
		o.audit.Log(nil, domain.EventLoginFailed, false, ip, ua, map[string]any{"reason": "user_not_found"})
		return nil, apperr.New(apperr.KindInvalidCredentials, "invalid credentials")
	}

	if !password.Verify(in.Password, user.PasswordHash) {
		o.recordAccountFailure(ctx, user, ip, ua)
		o.recordNetworkFailure(ctx, in.NetworkAddress)
		o.audit.Log(&user.ID, domain.EventLoginFailed, false, ip, ua, map[string]any{"reason": "invalid_password"})
		return nil, apperr.New(apperr.KindInvalidCredentials, "invalid credentials")
	}

	usedBackup, err := o.checkSecondFactor(ctx, user, in.TwoFactorCode, in.NetworkAddress, ip, ua)
	if err != nil {
		return nil, err
	}

	if err := o.ratelimit.Reset(ctx, &user.ID, in.NetworkAddress); err != nil {
		o.log.Warn("reset rate-limit rows on success", zap.Error(err))
	}
	sess, cookieValue, err := o.sessions.Mint(ctx, user.ID)
	if err != nil {
		return nil, apperr.Internal("mint session", err)
	}
	o.audit.Log(&user.ID, domain.EventLoginSuccess, true, ip, ua, nil)
	if usedBackup {
		o.audit.Log(&user.ID, domain.EventTwoFactorBackupUsed, true, ip, ua, nil)
	}
	return &LoginResult{CookieValue: cookieValue, ExpiresAt: sess.ExpiresAt}, nil
}

// checkSecondFactor enforces step 4 of the login state machine, returning
// whether the winning credential was a backup code.
func (o *Orchestrator) checkSecondFactor(ctx context.Context, user *domain.User, code, networkAddress string, ip, ua *string) (bool, error) {
	enabled, err := o.twofactor.IsEnabled(ctx, user.ID)
	if err != nil {
		return false, apperr.Internal("check 2fa enabled", err)
	}
	if !enabled {
		return false, nil
	}
	if code == "" {
		return false, apperr.New(apperr.KindTwoFactorRequired, "two factor required")
	}

	outcome, usedBackup, err := o.twofactor.Verify(ctx, user.ID, code)
	if err != nil {
		return false, apperr.Internal("verify 2fa code", err)
	}
	if outcome == twofactor.Valid {
		return usedBackup, nil
	}

	o.recordAccountFailure(ctx, user, ip, ua)
	o.recordNetworkFailure(ctx, networkAddress)
	o.audit.Log(&user.ID, domain.EventLoginFailed, false, ip, ua, map[string]any{"reason": "invalid_2fa_code"})
	return false, apperr.New(apperr.KindBadRequest, "invalid two-factor code")
}

// recordAccountFailure increments the account-axis counter and, on the
// transition into a lockout, mints and emails an unlock token when
// enabled. Network-address lockouts never get an unlock email: see
// recordNetworkFailure.
func (o *Orchestrator) recordAccountFailure(ctx context.Context, user *domain.User, ip, ua *string) {
	outcome, err := o.ratelimit.RecordFailure(ctx, domain.AxisAccount, user.ID)
	if err != nil {
		o.log.Warn("record account rate-limit failure", zap.Error(err))
		return
	}
	if !outcome.TransitionedToLocked {
		return
	}
	o.audit.Log(&user.ID, domain.EventAccountLocked, false, ip, ua, map[string]any{"axis": "account"})
	metrics.LockoutsTotal.WithLabelValues("account").Inc()
	if !o.enableEmailUnlock {
		return
	}
	plaintext, err := o.ratelimit.IssueUnlockToken(ctx, user.ID)
	if err != nil {
		o.log.Warn("issue unlock token", zap.Error(err))
		return
	}
	link := o.links.AccountUnlock(plaintext, user.ID)
	if err := o.email.SendAccountUnlock(ctx, user.Email, link); err != nil {
		o.log.Warn("send account unlock email", zap.Error(err))
	}
}

func (o *Orchestrator) recordNetworkFailure(ctx context.Context, networkAddress string) {
	if networkAddress == "" {
		return
	}
	outcome, err := o.ratelimit.RecordFailure(ctx, domain.AxisNetworkAddress, networkAddress)
	if err != nil {
		o.log.Warn("record network rate-limit failure", zap.Error(err))
		return
	}
	if outcome.TransitionedToLocked {
		metrics.LockoutsTotal.WithLabelValues("network_address").Inc()
	}
}

// Logout deletes the referenced session. Idempotent.
func (o *Orchestrator) Logout(ctx context.Context, sessionID string, userID *string) error {
	if err := o.sessions.Revoke(ctx, sessionID); err != nil {
		return apperr.Internal("revoke session", err)
	}
	o.audit.Log(userID, domain.EventLogout, true, nil, nil, nil)
	return nil
}

// Signup creates a new account with a hashed password, rejecting anything
// that fails the configured strength policy or matches the blacklist.
func (o *Orchestrator) Signup(ctx context.Context, emailAddr, plainPassword string) (*domain.User, error) {
	if reasons := password.ValidateNewPassword(o.policy, o.blacklist, plainPassword); len(reasons) > 0 {
		return nil, apperr.WithDetail(apperr.KindBadRequest, "password does not meet requirements",
			map[string]any{"reasons": reasons})
	}
	hash, err := password.Hash(o.hasher, plainPassword)
	if err != nil {
		return nil, apperr.Internal("hash password", err)
	}
	user, err := o.users.Create(ctx, emailAddr, hash)
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil, apperr.New(apperr.KindConflict, "email already registered")
		}
		return nil, apperr.Internal("create user", err)
	}
	return user, nil
}

// CurrentUser backs GET /users/me. The session guard already established
// the caller's identity; this only loads the profile to display.
func (o *Orchestrator) CurrentUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := o.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "user not found")
		}
		return nil, apperr.Internal("lookup user", err)
	}
	return user, nil
}

// DeleteAccount destroys the account and every dependent record, owner-
// only: callerID must match the account being deleted. Every live session
// for the account, the caller's included, is revoked first since the user row it points to
// is about to disappear.
func (o *Orchestrator) DeleteAccount(ctx context.Context, callerID, targetUserID string) error {
	if callerID != targetUserID {
		return apperr.New(apperr.KindForbidden, "cannot delete another account")
	}
	if _, err := o.sessions.RevokeAllForUser(ctx, targetUserID); err != nil {
		o.log.Warn("revoke sessions before delete", zap.Error(err))
	}
	if err := o.users.Delete(ctx, targetUserID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.New(apperr.KindNotFound, "user not found")
		}
		return apperr.Internal("delete user", err)
	}
	o.audit.Log(&targetUserID, domain.EventAccountDeleted, true, nil, nil, nil)
	return nil
}

// Unlock consumes an account-axis unlock token, clearing its lockout.
func (o *Orchestrator) Unlock(ctx context.Context, userID, plaintextToken string) error {
	ok, err := o.ratelimit.ConsumeUnlockToken(ctx, userID, plaintextToken)
	if err != nil {
		return apperr.Internal("consume unlock token", err)
	}
	if !ok {
		return apperr.New(apperr.KindBadRequest, "invalid or expired unlock token")
	}
	o.audit.Log(&userID, domain.EventAccountUnlocked, true, nil, nil, nil)
	return nil
}

func ptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
