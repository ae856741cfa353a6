package auth

import (
	"context"
	"strings"

	"github.com/dropDatabas3/hellojohn/internal/domain"
	"github.com/dropDatabas3/hellojohn/internal/passwordreset"
	"go.uber.org/zap"
)

// PasswordReset adds the audit/email side effects the bare
// passwordreset.Manager doesn't own to its request/validate/confirm flow.
type PasswordReset struct {
	mgr *passwordreset.Manager
	o   *Orchestrator
}

// PasswordReset returns a view onto the orchestrator's password-reset flow.
func (o *Orchestrator) PasswordReset(mgr *passwordreset.Manager) *PasswordReset {
	return &PasswordReset{mgr: mgr, o: o}
}

// Request always succeeds from the caller's point of view: the response is
// identical whether or not the email exists.
func (p *PasswordReset) Request(ctx context.Context, email, ip, userAgent string) error {
	plaintext, err := p.mgr.Request(ctx, email, ip, userAgent)
	if err != nil {
		p.o.log.Warn("password reset request", zap.Error(err))
		return nil
	}
	if plaintext == "" {
		return nil
	}
	link := p.o.links.PasswordReset(plaintext)
	if err := p.o.email.SendPasswordReset(ctx, email, link, p.o.resetTTLLabel); err != nil {
		p.o.log.Warn("send password reset email", zap.Error(err))
	}
	ipPtr, uaPtr := ptr(ip), ptr(userAgent)
	p.o.audit.Log(nil, domain.EventPasswordResetRequested, true, ipPtr, uaPtr, map[string]any{"email": email})
	return nil
}

// Validate reports the email a token belongs to, or an error if it is
// unusable.
func (p *PasswordReset) Validate(ctx context.Context, token string) (string, error) {
	email, err := p.mgr.Validate(ctx, token)
	if err != nil {
		evt := domain.EventPasswordResetTokenInvalid
		if strings.HasPrefix(err.Error(), "token expired") {
			evt = domain.EventPasswordResetTokenExpired
		}
		p.o.audit.Log(nil, evt, false, nil, nil, nil)
		return "", err
	}
	p.o.audit.Log(nil, domain.EventPasswordResetTokenValid, true, nil, nil, map[string]any{"email": email})
	return email, nil
}

// Confirm burns the token and applies the new password, revoking every
// live session for the account.
func (p *PasswordReset) Confirm(ctx context.Context, token, newPassword string) error {
	if err := p.mgr.Confirm(ctx, token, newPassword); err != nil {
		p.o.audit.Log(nil, domain.EventPasswordResetFailed, false, nil, nil, nil)
		return err
	}
	p.o.audit.Log(nil, domain.EventPasswordResetCompleted, true, nil, nil, nil)
	return nil
}
