// Package domain holds the aggregate types shared by the store and
// orchestrator packages, independent of how they are persisted.
package domain

import "time"

// User is a signed-up account. Password hash is never serialised into an
// API response.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Session is an opaque, server-looked-up authentication token.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session should be treated as absent.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// IdentifierAxis is one of the two independent rate-limit tracks.
type IdentifierAxis string

const (
	AxisAccount        IdentifierAxis = "account"
	AxisNetworkAddress IdentifierAxis = "network_address"
)

// RateLimitRecord is the durable failure counter for one (axis, value) pair.
type RateLimitRecord struct {
	IdentifierType       IdentifierAxis
	IdentifierValue      string
	FailedAttempts       int
	LastAttemptAt        time.Time
	NextAttemptAllowedAt *time.Time
	LockedUntil          *time.Time
	UnlockTokenHash      *string
	UnlockTokenExpiresAt *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// TwoFactorConfig is the per-user TOTP enrolment record. LastUsedCounter is
// the HOTP counter value of the most recently accepted code, persisted so a
// captured code cannot be replayed again within its validity window.
type TwoFactorConfig struct {
	UserID          string
	EncryptedSecret string
	EncryptionNonce string
	IsEnabled       bool
	VerifiedAt      *time.Time
	LastUsedCounter *int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// BackupCode is a single-use secondary authenticator, stored hashed.
type BackupCode struct {
	ID        string
	UserID    string
	CodeHash  string
	UsedAt    *time.Time
	CreatedAt time.Time
}

// TwoFactorAttempt tracks failed TOTP/backup-code verifications, independent
// of the login rate limiter.
type TwoFactorAttempt struct {
	UserID         string
	FailedAttempts int
	LockedUntil    *time.Time
	LastAttemptAt  time.Time
}

// EmergencyDisableToken lets a user remove 2FA out-of-band when they have
// lost their authenticator.
type EmergencyDisableToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// PasswordResetToken is a single-use credential-reset token.
type PasswordResetToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	IPAddress *string
	UserAgent *string
	CreatedAt time.Time
}

// AuditEventType is the closed set of security events the audit writer
// accepts.
type AuditEventType string

const (
	EventLoginSuccess               AuditEventType = "login_success"
	EventLoginFailed                AuditEventType = "login_failed"
	EventLogout                     AuditEventType = "logout"
	EventSessionExpired             AuditEventType = "session_expired"
	EventTwoFactorEnabled           AuditEventType = "2fa_enabled"
	EventTwoFactorDisabled          AuditEventType = "2fa_disabled"
	EventTwoFactorBackupUsed        AuditEventType = "2fa_backup_used"
	EventPasswordChanged            AuditEventType = "password_changed"
	EventAccountUpdated             AuditEventType = "account_updated"
	EventAccountDeleted             AuditEventType = "account_deleted"
	EventPasswordResetRequested     AuditEventType = "password_reset_requested"
	EventPasswordResetTokenValid    AuditEventType = "password_reset_token_validated"
	EventPasswordResetCompleted     AuditEventType = "password_reset_completed"
	EventPasswordResetFailed        AuditEventType = "password_reset_failed"
	EventPasswordResetTokenExpired  AuditEventType = "password_reset_token_expired"
	EventPasswordResetTokenInvalid  AuditEventType = "password_reset_token_invalid"
	EventLoginRateLimited           AuditEventType = "login_rate_limited"
	EventAccountLocked              AuditEventType = "account_locked"
	EventAccountUnlocked            AuditEventType = "account_unlocked"
	EventHighFailureRate            AuditEventType = "high_failure_rate"
)

// AuditEvent is an append-only security log entry.
type AuditEvent struct {
	ID         string
	UserID     *string
	EventType  AuditEventType
	Success    bool
	IPAddress  *string
	UserAgent  *string
	Metadata   map[string]any
	CreatedAt  time.Time
}
