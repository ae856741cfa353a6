package domain

import (
	"context"
	"time"
)

// UserRepository persists User aggregates.
type UserRepository interface {
	// GetByEmail looks up a user case-insensitively. Returns ErrNotFound if
	// absent.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByID looks up a user by id. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, userID string) (*User, error)

	// Create inserts a new user. Returns ErrConflict if the email is taken.
	Create(ctx context.Context, email, passwordHash string) (*User, error)

	// UpdatePasswordHash overwrites the stored password hash.
	UpdatePasswordHash(ctx context.Context, userID, newHash string) error

	// Delete removes a user; the store cascades every dependent record.
	Delete(ctx context.Context, userID string) error
}

// SessionRepository persists opaque sessions.
type SessionRepository interface {
	// Create inserts a new session row.
	Create(ctx context.Context, userID string, expiresAt time.Time) (*Session, error)

	// Get looks up a session by id. Returns ErrNotFound if absent or
	// expired; an expired row is deleted lazily by the Get that finds it,
	// so a hit is always a live session.
	Get(ctx context.Context, sessionID string) (*Session, error)

	// Delete removes one session. Idempotent.
	Delete(ctx context.Context, sessionID string) error

	// DeleteAllForUser removes every session belonging to a user, returning
	// the number removed.
	DeleteAllForUser(ctx context.Context, userID string) (int, error)
}

// RateLimitRepository persists the progressive-backoff counters.
type RateLimitRepository interface {
	// Get fetches the row for an axis/value pair, nil if none exists.
	Get(ctx context.Context, axis IdentifierAxis, value string) (*RateLimitRecord, error)

	// RecordFailure atomically upserts the failure counter and returns the
	// resulting row.
	RecordFailure(ctx context.Context, axis IdentifierAxis, value string, next *RateLimitRecord) (*RateLimitRecord, error)

	// Reset deletes the rows for both axes as a single atomic operation.
	Reset(ctx context.Context, accountID *string, networkAddress string) error

	// SetUnlockToken stores a hashed unlock token against the account-axis
	// row.
	SetUnlockToken(ctx context.Context, accountID, tokenHash string, expiresAt time.Time) error

	// ConsumeUnlockToken deletes the account-axis row if the hashed token
	// matches and has not expired, returning whether it did.
	ConsumeUnlockToken(ctx context.Context, accountID, tokenHash string) (bool, error)
}

// TwoFactorRepository persists TOTP enrolment, backup codes, the
// independent 2FA attempt counter, and emergency-disable tokens.
type TwoFactorRepository interface {
	UpsertTOTP(ctx context.Context, userID, encryptedSecret, nonce string) error
	ConfirmTOTP(ctx context.Context, userID string) error
	GetTOTP(ctx context.Context, userID string) (*TwoFactorConfig, error)
	// UpdateLastUsedCounter persists the HOTP counter of the most recently
	// accepted TOTP code, so the same counter can never verify again.
	UpdateLastUsedCounter(ctx context.Context, userID string, counter int64) error
	DeleteAll(ctx context.Context, userID string) error

	SetBackupCodes(ctx context.Context, userID string, hashes []string) error
	// GetUnusedBackupCodes returns every not-yet-consumed backup code for a
	// user, each carrying its Argon2id hash for the caller to verify
	// against in constant time.
	GetUnusedBackupCodes(ctx context.Context, userID string) ([]BackupCode, error)
	// MarkBackupCodeUsed claims a specific backup code by id, reporting
	// false if it was already used (or never existed) by the time of the
	// call.
	MarkBackupCodeUsed(ctx context.Context, id string) (bool, error)
	CountUnusedBackupCodes(ctx context.Context, userID string) (int, error)

	GetAttempt(ctx context.Context, userID string) (*TwoFactorAttempt, error)
	RecordFailedAttempt(ctx context.Context, userID string, lockedUntil *time.Time) error
	ResetAttempt(ctx context.Context, userID string) error

	CreateEmergencyToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	ConsumeEmergencyToken(ctx context.Context, tokenHash string) (userID string, ok bool, err error)
}

// PasswordResetRepository persists single-use reset tokens.
type PasswordResetRepository interface {
	Create(ctx context.Context, userID, tokenHash string, expiresAt time.Time, ip, userAgent *string) error
	GetByHash(ctx context.Context, tokenHash string) (*PasswordResetToken, error)
	MarkUsed(ctx context.Context, id string) error
	// ApplyReset burns tokenID, sets the account's password hash, and
	// deletes every session for the account in one transaction. Returns
	// ErrConflict if the token was already used.
	ApplyReset(ctx context.Context, tokenID, userID, newPasswordHash string) error
	CountRecentForUser(ctx context.Context, userID string, since time.Time) (int, error)
}

// AuditRepository persists append-only security events.
type AuditRepository interface {
	Insert(ctx context.Context, event AuditEvent) error
}
