package auth

import (
	"context"

	"github.com/dropDatabas3/hellojohn/internal/apperr"
	"github.com/dropDatabas3/hellojohn/internal/domain"
	"github.com/dropDatabas3/hellojohn/internal/security/password"
	"github.com/dropDatabas3/hellojohn/internal/twofactor"
	"go.uber.org/zap"
)

// TwoFactorSetup generates a new TOTP secret and backup-code set for an
// authenticated user. The result is returned exactly once; callers must
// display it immediately and never persist the plaintext secret or codes.
func (o *Orchestrator) TwoFactorSetup(ctx context.Context, userID, accountLabel string) (*twofactor.SetupResult, error) {
	result, err := o.twofactor.Setup(ctx, userID, accountLabel)
	if err != nil {
		return nil, apperr.Internal("2fa setup", err)
	}
	return result, nil
}

// TwoFactorVerify checks a code during setup and, on success, enables 2FA
// for the account.
func (o *Orchestrator) TwoFactorVerify(ctx context.Context, userID, code string) error {
	outcome, _, err := o.twofactor.Verify(ctx, userID, code)
	if err != nil {
		return apperr.Internal("2fa verify", err)
	}
	if outcome != twofactor.Valid {
		return apperr.New(apperr.KindBadRequest, "invalid two-factor code")
	}
	if err := o.twofactor.Enable(ctx, userID); err != nil {
		return apperr.Internal("2fa enable", err)
	}
	o.audit.Log(&userID, domain.EventTwoFactorEnabled, true, nil, nil, nil)
	return nil
}

// TwoFactorStatus reports what GET /two-factor/status needs.
func (o *Orchestrator) TwoFactorStatus(ctx context.Context, userID string) (twofactor.Status, error) {
	status, err := o.twofactor.Status(ctx, userID)
	if err != nil {
		return twofactor.Status{}, apperr.Internal("2fa status", err)
	}
	return status, nil
}

// TwoFactorDisableStandard requires the current password and a current
// code before removing 2FA state.
func (o *Orchestrator) TwoFactorDisableStandard(ctx context.Context, userID, currentPassword, code string) error {
	user, err := o.users.GetByID(ctx, userID)
	if err != nil {
		return apperr.Internal("lookup user", err)
	}
	if !password.Verify(currentPassword, user.PasswordHash) {
		return apperr.New(apperr.KindInvalidCredentials, "invalid credentials")
	}
	outcome, _, err := o.twofactor.Verify(ctx, userID, code)
	if err != nil {
		return apperr.Internal("2fa verify", err)
	}
	if outcome != twofactor.Valid {
		return apperr.New(apperr.KindBadRequest, "invalid two-factor code")
	}
	if err := o.twofactor.DisableStandard(ctx, userID); err != nil {
		return apperr.Internal("2fa disable", err)
	}
	o.audit.Log(&userID, domain.EventTwoFactorDisabled, true, nil, nil, map[string]any{"method": "standard"})
	return nil
}

// TwoFactorRegenerateBackupCodes requires a current code before replacing
// the backup-code set.
func (o *Orchestrator) TwoFactorRegenerateBackupCodes(ctx context.Context, userID, code string) ([]string, error) {
	outcome, _, err := o.twofactor.Verify(ctx, userID, code)
	if err != nil {
		return nil, apperr.Internal("2fa verify", err)
	}
	if outcome != twofactor.Valid {
		return nil, apperr.New(apperr.KindBadRequest, "invalid two-factor code")
	}
	codes, err := o.twofactor.RegenerateBackupCodes(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("regenerate backup codes", err)
	}
	return codes, nil
}

// TwoFactorEmergencyDisableRequest always succeeds from the caller's point
// of view, enumeration-safe like password reset.
func (o *Orchestrator) TwoFactorEmergencyDisableRequest(ctx context.Context, emailAddr string) error {
	user, err := o.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		return nil // nolint:nilerr // unknown email must look identical to a known one
	}
	plaintext, err := o.twofactor.RequestEmergencyDisable(ctx, user.ID)
	if err != nil {
		o.log.Warn("request emergency 2fa disable", zap.Error(err))
		return nil
	}
	link := o.links.EmergencyDisable(plaintext)
	if err := o.email.SendEmergencyDisableConfirmation(ctx, user.Email, link, o.emergencyTTLLabel); err != nil {
		o.log.Warn("send emergency disable email", zap.Error(err))
	}
	return nil
}

// TwoFactorEmergencyDisableConfirm consumes an emergency token, removing
// all 2FA state for the owning account and revoking its sessions.
func (o *Orchestrator) TwoFactorEmergencyDisableConfirm(ctx context.Context, token string) error {
	userID, err := o.twofactor.ConfirmEmergencyDisable(ctx, token)
	if err != nil {
		return apperr.New(apperr.KindBadRequest, "invalid or expired token")
	}
	if _, err := o.sessions.RevokeAllForUser(ctx, userID); err != nil {
		o.log.Warn("revoke sessions after emergency 2fa disable", zap.Error(err))
	}
	o.audit.Log(&userID, domain.EventTwoFactorDisabled, true, nil, nil, map[string]any{"method": "emergency"})
	return nil
}
