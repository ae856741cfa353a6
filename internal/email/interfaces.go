package email

import "context"

// Sender delivers a rendered message. Implemented by v1.SMTPSender.
type Sender interface {
	Send(to, subject, htmlBody, textBody string) error
}

// Dispatcher renders and sends the closed set of authentication emails.
// A disabled Dispatcher makes every method a no-op, matching the
// email.enabled=false escape hatch used in local development.
type Dispatcher struct {
	sender    Sender
	enabled   bool
	templates *Templates
}

func NewDispatcher(sender Sender, enabled bool, templates *Templates) *Dispatcher {
	return &Dispatcher{sender: sender, enabled: enabled, templates: templates}
}

// SendPasswordReset delivers a reset link valid for the configured TTL.
func (d *Dispatcher) SendPasswordReset(ctx context.Context, toEmail, resetLink, ttl string) error {
	if !d.enabled {
		return nil
	}
	html, text := d.templates.RenderPasswordReset(resetLink, ttl)
	return d.sender.Send(toEmail, "Password Reset Request", html, text)
}

// SendAccountUnlock delivers an unlock link after an account-axis lockout.
// Callers must never invoke this for a network-address-axis lockout: that
// axis has no email-based unlock path.
func (d *Dispatcher) SendAccountUnlock(ctx context.Context, toEmail, unlockLink string) error {
	if !d.enabled {
		return nil
	}
	html, text := d.templates.RenderAccountUnlock(unlockLink)
	return d.sender.Send(toEmail, "Your Account Was Locked", html, text)
}

// SendEmergencyDisableConfirmation delivers the link a user without their
// authenticator device uses to confirm removing two-factor protection.
func (d *Dispatcher) SendEmergencyDisableConfirmation(ctx context.Context, toEmail, confirmLink, ttl string) error {
	if !d.enabled {
		return nil
	}
	html, text := d.templates.RenderEmergencyDisable(confirmLink, ttl)
	return d.sender.Send(toEmail, "Confirm Two-Factor Disable Request", html, text)
}
