// Package ratelimit computes and persists the progressive-backoff login
// counters tracked independently per account and per network address.
package ratelimit

import (
	"context"
	"time"

	"github.com/dropDatabas3/hellojohn/internal/domain"
	"github.com/dropDatabas3/hellojohn/internal/security/token"
)

// Config mirrors the rate_limit section of the loaded configuration.
type Config struct {
	FreeAttempts      int
	DelaySchedule     []time.Duration
	LockoutThreshold  int
	LockoutDuration   time.Duration
	EnableEmailUnlock bool
	UnlockTokenTTL    time.Duration
}

// StatusKind classifies the outcome of a PreCheck.
type StatusKind int

const (
	Allowed StatusKind = iota
	Delayed
	Locked
)

// Status is the pre-check verdict for one identifier.
type Status struct {
	Kind       StatusKind
	RetryAfter time.Duration // set when Kind == Delayed or Locked
	CanUnlock  bool          // set when Kind == Locked and the axis is account
}

// Limiter enforces the two-axis progressive backoff described by Config on
// top of a RateLimitRepository.
type Limiter struct {
	repo domain.RateLimitRepository
	cfg  Config
}

func New(repo domain.RateLimitRepository, cfg Config) *Limiter {
	return &Limiter{repo: repo, cfg: cfg}
}

// PreCheck reports whether an identifier may attempt a login right now.
func (l *Limiter) PreCheck(ctx context.Context, axis domain.IdentifierAxis, value string) (Status, error) {
	rec, err := l.repo.Get(ctx, axis, value)
	if err != nil {
		return Status{}, err
	}
	if rec == nil {
		return Status{Kind: Allowed}, nil
	}
	now := time.Now().UTC()
	if rec.LockedUntil != nil && rec.LockedUntil.After(now) {
		return Status{Kind: Locked, RetryAfter: rec.LockedUntil.Sub(now), CanUnlock: axis == domain.AxisAccount}, nil
	}
	if rec.NextAttemptAllowedAt != nil && rec.NextAttemptAllowedAt.After(now) {
		return Status{Kind: Delayed, RetryAfter: rec.NextAttemptAllowedAt.Sub(now)}, nil
	}
	return Status{Kind: Allowed}, nil
}

// FailureOutcome reports the counter transition RecordFailure applied, so
// the orchestrator knows whether to mint an unlock token and send email.
type FailureOutcome struct {
	Record               *domain.RateLimitRecord
	TransitionedToLocked bool
}

// RecordFailure increments the counter for one identifier and applies the
// free-attempts / delay-schedule / lockout-threshold progression from
// Config. It never itself sends email; callers decide what to do with
// TransitionedToLocked.
func (l *Limiter) RecordFailure(ctx context.Context, axis domain.IdentifierAxis, value string) (FailureOutcome, error) {
	current, err := l.repo.Get(ctx, axis, value)
	if err != nil {
		return FailureOutcome{}, err
	}

	now := time.Now().UTC()
	n := 1
	if current != nil {
		n = current.FailedAttempts + 1
	}

	next := &domain.RateLimitRecord{
		IdentifierType:  axis,
		IdentifierValue: value,
		FailedAttempts:  n,
		LastAttemptAt:   now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if current != nil {
		next.CreatedAt = current.CreatedAt
	}

	wasLocked := current != nil && current.LockedUntil != nil && current.LockedUntil.After(now)
	transitioned := false

	switch {
	case n >= l.cfg.LockoutThreshold:
		until := now.Add(l.cfg.LockoutDuration)
		next.LockedUntil = &until
		next.NextAttemptAllowedAt = nil
		transitioned = !wasLocked
	case n > l.cfg.FreeAttempts:
		k := n - l.cfg.FreeAttempts - 1
		if k >= len(l.cfg.DelaySchedule) {
			k = len(l.cfg.DelaySchedule) - 1
		}
		if k >= 0 && len(l.cfg.DelaySchedule) > 0 {
			delayUntil := now.Add(l.cfg.DelaySchedule[k])
			next.NextAttemptAllowedAt = &delayUntil
		}
	}

	rec, err := l.repo.RecordFailure(ctx, axis, value, next)
	if err != nil {
		return FailureOutcome{}, err
	}
	return FailureOutcome{Record: rec, TransitionedToLocked: transitioned}, nil
}

// Reset clears both axes after a successful login.
func (l *Limiter) Reset(ctx context.Context, accountID *string, networkAddress string) error {
	return l.repo.Reset(ctx, accountID, networkAddress)
}

// IssueUnlockToken mints an opaque unlock token for an account-axis
// lockout and stores its hash, returning the plaintext token for the
// email link. Never call this for a network-address-axis lockout: that
// axis has no unlock path.
func (l *Limiter) IssueUnlockToken(ctx context.Context, accountID string) (string, error) {
	plaintext, err := token.GenerateOpaqueToken(32)
	if err != nil {
		return "", err
	}
	hash := token.SHA256Hex(plaintext)
	expiresAt := time.Now().UTC().Add(l.cfg.UnlockTokenTTL)
	if err := l.repo.SetUnlockToken(ctx, accountID, hash, expiresAt); err != nil {
		return "", err
	}
	return plaintext, nil
}

// ConsumeUnlockToken validates and burns an unlock token, clearing the
// account-axis lockout on success.
func (l *Limiter) ConsumeUnlockToken(ctx context.Context, accountID, plaintextToken string) (bool, error) {
	hash := token.SHA256Hex(plaintextToken)
	return l.repo.ConsumeUnlockToken(ctx, accountID, hash)
}
