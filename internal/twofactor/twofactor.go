// Package twofactor orchestrates TOTP enrolment, verification, backup
// codes, and the emergency out-of-band disable path on top of a
// TwoFactorRepository.
package twofactor

import (
	"context"
	"fmt"
	"time"

	"github.com/dropDatabas3/hellojohn/internal/domain"
	"github.com/dropDatabas3/hellojohn/internal/security/cipher"
	"github.com/dropDatabas3/hellojohn/internal/security/password"
	"github.com/dropDatabas3/hellojohn/internal/security/token"
	"github.com/dropDatabas3/hellojohn/internal/security/totp"
)

const (
	backupCodeCount  = 10
	backupCodeLength = 16
)

// Config mirrors the two_factor section of the loaded configuration.
type Config struct {
	Issuer            string
	AttemptThreshold  int
	LockoutDuration   time.Duration
	EmergencyTokenTTL time.Duration
}

// VerifyOutcome classifies the result of Verify.
type VerifyOutcome int

const (
	Valid VerifyOutcome = iota
	InvalidCode
	LockedOut
)

// Manager wires TOTP generation/verification, backup codes, the
// independent 2FA attempt counter, and emergency disable tokens.
type Manager struct {
	repo   domain.TwoFactorRepository
	cipher *cipher.Cipher
	cfg    Config
}

func New(repo domain.TwoFactorRepository, c *cipher.Cipher, cfg Config) *Manager {
	return &Manager{repo: repo, cipher: c, cfg: cfg}
}

// SetupResult is returned exactly once at setup time; the plaintext secret
// and backup codes are never retrievable again.
type SetupResult struct {
	Secret          string
	ProvisioningURI string
	BackupCodes     []string
}

// Setup generates a fresh TOTP secret and backup-code set for a user,
// storing the secret encrypted and the codes hashed. It does not enable
// 2FA; Enable does that after a successful Verify.
func (m *Manager) Setup(ctx context.Context, userID, accountLabel string) (*SetupResult, error) {
	raw, secretB32, err := totp.GenerateSecret()
	if err != nil {
		return nil, err
	}
	ciphertextHex, nonceHex, err := m.cipher.SealString(string(raw))
	if err != nil {
		return nil, err
	}
	if err := m.repo.UpsertTOTP(ctx, userID, ciphertextHex, nonceHex); err != nil {
		return nil, err
	}

	codes, hashes, err := generateBackupCodes(backupCodeCount)
	if err != nil {
		return nil, err
	}
	if err := m.repo.SetBackupCodes(ctx, userID, hashes); err != nil {
		return nil, err
	}

	return &SetupResult{
		Secret:          secretB32,
		ProvisioningURI: totp.ProvisioningURI(m.cfg.Issuer, accountLabel, secretB32),
		BackupCodes:     codes,
	}, nil
}

// Verify checks a TOTP code or backup code against the stored 2FA state,
// applying the independent attempt-lockout counter. It does not flip
// is_enabled; callers do that on the first successful setup verification.
// usedBackup reports whether the match came from a backup code rather than
// the TOTP secret, so callers can emit the right audit event.
func (m *Manager) Verify(ctx context.Context, userID, code string) (outcome VerifyOutcome, usedBackup bool, err error) {
	attempt, err := m.repo.GetAttempt(ctx, userID)
	if err != nil {
		return InvalidCode, false, err
	}
	now := time.Now().UTC()
	if attempt != nil && attempt.LockedUntil != nil && attempt.LockedUntil.After(now) {
		return LockedOut, false, nil
	}

	cfg, err := m.repo.GetTOTP(ctx, userID)
	if err != nil {
		return InvalidCode, false, err
	}
	if cfg == nil {
		outcome, err = m.recordFailure(ctx, userID, attempt)
		return outcome, false, err
	}

	if matchedCounter, ok := m.verifyTOTP(cfg, code); ok {
		if err := m.repo.UpdateLastUsedCounter(ctx, userID, matchedCounter); err != nil {
			return InvalidCode, false, err
		}
		return Valid, false, m.repo.ResetAttempt(ctx, userID)
	}

	if used, err := m.useBackupCode(ctx, userID, code); err != nil {
		return InvalidCode, false, err
	} else if used {
		return Valid, true, m.repo.ResetAttempt(ctx, userID)
	}

	outcome, err = m.recordFailure(ctx, userID, attempt)
	return outcome, false, err
}

// useBackupCode checks code against every unused backup code for userID,
// comparing against all of them rather than stopping at the first hash that
// parses before a match is found, so how many codes remain never leaks
// through response timing. It claims the matching row with a compare-and-
// set so two concurrent requests cannot both consume the same code.
func (m *Manager) useBackupCode(ctx context.Context, userID, code string) (bool, error) {
	unused, err := m.repo.GetUnusedBackupCodes(ctx, userID)
	if err != nil {
		return false, err
	}
	var matchID string
	for _, c := range unused {
		if password.Verify(code, c.CodeHash) {
			matchID = c.ID
		}
	}
	if matchID == "" {
		return false, nil
	}
	return m.repo.MarkBackupCodeUsed(ctx, matchID)
}

// IsEnabled reports whether a user currently has 2FA enabled.
func (m *Manager) IsEnabled(ctx context.Context, userID string) (bool, error) {
	cfg, err := m.repo.GetTOTP(ctx, userID)
	if err != nil {
		return false, err
	}
	return cfg != nil && cfg.IsEnabled, nil
}

// verifyTOTP checks code against cfg's secret, rejecting any counter at or
// before cfg.LastUsedCounter so a captured code can't be replayed again
// inside its own validity window.
func (m *Manager) verifyTOTP(cfg *domain.TwoFactorConfig, code string) (matchedCounter int64, ok bool) {
	plaintext, err := m.cipher.OpenString(cfg.EncryptedSecret, cfg.EncryptionNonce)
	if err != nil {
		return 0, false
	}
	ok, matchedCounter = totp.Verify([]byte(plaintext), code, time.Now().UTC(), cfg.LastUsedCounter)
	return matchedCounter, ok
}

func (m *Manager) recordFailure(ctx context.Context, userID string, attempt *domain.TwoFactorAttempt) (VerifyOutcome, error) {
	n := 1
	if attempt != nil {
		n = attempt.FailedAttempts + 1
	}
	var lockedUntil *time.Time
	if n >= m.cfg.AttemptThreshold {
		until := time.Now().UTC().Add(m.cfg.LockoutDuration)
		lockedUntil = &until
	}
	if err := m.repo.RecordFailedAttempt(ctx, userID, lockedUntil); err != nil {
		return InvalidCode, err
	}
	if lockedUntil != nil {
		return LockedOut, nil
	}
	return InvalidCode, nil
}

// Enable flips is_enabled after the first successful verification following
// Setup.
func (m *Manager) Enable(ctx context.Context, userID string) error {
	return m.repo.ConfirmTOTP(ctx, userID)
}

// DisableStandard removes all 2FA state for a user. Callers must already
// have verified the current password and a current TOTP/backup code before
// calling this.
func (m *Manager) DisableStandard(ctx context.Context, userID string) error {
	return m.repo.DeleteAll(ctx, userID)
}

// RequestEmergencyDisable mints a single-use, time-limited token that
// removes 2FA without requiring the authenticator device.
func (m *Manager) RequestEmergencyDisable(ctx context.Context, userID string) (string, error) {
	plaintext, err := token.GenerateOpaqueToken(32)
	if err != nil {
		return "", err
	}
	expiresAt := time.Now().UTC().Add(m.cfg.EmergencyTokenTTL)
	if err := m.repo.CreateEmergencyToken(ctx, userID, token.SHA256Hex(plaintext), expiresAt); err != nil {
		return "", err
	}
	return plaintext, nil
}

// ConfirmEmergencyDisable consumes an emergency token and, if valid,
// removes all 2FA state for the owning user.
func (m *Manager) ConfirmEmergencyDisable(ctx context.Context, plaintextToken string) (userID string, err error) {
	userID, ok, err := m.repo.ConsumeEmergencyToken(ctx, token.SHA256Hex(plaintextToken))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("twofactor: emergency token invalid or expired")
	}
	if err := m.repo.DeleteAll(ctx, userID); err != nil {
		return "", err
	}
	return userID, nil
}

// RegenerateBackupCodes replaces a user's backup-code set. Callers must
// already have verified a current code before calling this.
func (m *Manager) RegenerateBackupCodes(ctx context.Context, userID string) ([]string, error) {
	codes, hashes, err := generateBackupCodes(backupCodeCount)
	if err != nil {
		return nil, err
	}
	if err := m.repo.SetBackupCodes(ctx, userID, hashes); err != nil {
		return nil, err
	}
	return codes, nil
}

// Status reports what /two-factor/status needs.
type Status struct {
	Enabled              bool
	HasBackupCodes       bool
	BackupCodesRemaining int
}

func (m *Manager) Status(ctx context.Context, userID string) (Status, error) {
	cfg, err := m.repo.GetTOTP(ctx, userID)
	if err != nil {
		return Status{}, err
	}
	if cfg == nil {
		return Status{}, nil
	}
	remaining, err := m.repo.CountUnusedBackupCodes(ctx, userID)
	if err != nil {
		return Status{}, err
	}
	return Status{Enabled: cfg.IsEnabled, HasBackupCodes: remaining > 0, BackupCodesRemaining: remaining}, nil
}

// generateBackupCodes mints n single-use recovery codes. Unlike the
// high-entropy reset/unlock tokens (internal/security/token), a backup
// code is short enough for a person to type by hand, so it is hashed with
// Argon2id rather than a fast hash — a leaked backup-code table must be as
// expensive to brute-force as a leaked password table.
func generateBackupCodes(n int) (codes, hashes []string, err error) {
	codes = make([]string, n)
	hashes = make([]string, n)
	for i := 0; i < n; i++ {
		c, err := token.GenerateAlphanumericCode(backupCodeLength)
		if err != nil {
			return nil, nil, err
		}
		hash, err := password.Hash(password.Default, c)
		if err != nil {
			return nil, nil, err
		}
		codes[i] = c
		hashes[i] = hash
	}
	return codes, hashes, nil
}
