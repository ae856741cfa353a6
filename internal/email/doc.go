// Package email dispatches the three outbound notifications the
// authentication core needs: a password-reset link, an account-unlock link
// sent when an account-axis lockout triggers, and an emergency two-factor
// disable confirmation link. Delivery goes through the SMTP sender in
// internal/email/v1; this package owns template rendering and the
// higher-level Dispatcher the orchestrator calls.
package email
