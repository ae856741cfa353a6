// Package session mints and validates opaque, server-looked-up sessions and
// seals their id inside an authenticated cookie envelope, following the
// spec's "server-looked-up session id inside an AEAD-sealed cookie, not a
// self-contained bearer token" design.
package session

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/dropDatabas3/hellojohn/internal/apperr"
	"github.com/dropDatabas3/hellojohn/internal/domain"
	"github.com/dropDatabas3/hellojohn/internal/security/cipher"
)

// Manager mints sessions and seals/opens the cookie envelope carrying them.
type Manager struct {
	repo   domain.SessionRepository
	cipher *cipher.Cipher
	ttl    time.Duration
}

func NewManager(repo domain.SessionRepository, c *cipher.Cipher, ttl time.Duration) *Manager {
	return &Manager{repo: repo, cipher: c, ttl: ttl}
}

// Mint creates a new session and returns both the row and its sealed cookie
// value, ready to hand to http.SetCookie.
func (m *Manager) Mint(ctx context.Context, userID string) (*domain.Session, string, error) {
	sess, err := m.repo.Create(ctx, userID, time.Now().UTC().Add(m.ttl))
	if err != nil {
		return nil, "", err
	}
	value, err := m.seal(sess.ID, sess.UserID)
	if err != nil {
		return nil, "", err
	}
	return sess, value, nil
}

// Resolve opens the cookie envelope and looks up the underlying session,
// returning apperr.ErrNotFound if the envelope is malformed, tampered with,
// or the session has expired or been revoked.
func (m *Manager) Resolve(ctx context.Context, cookieValue string) (*domain.Session, error) {
	sessionID, userID, err := m.open(cookieValue)
	if err != nil {
		return nil, apperr.ErrNotFound
	}
	sess, err := m.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, apperr.ErrNotFound
	}
	return sess, nil
}

// Revoke deletes a single session, used by logout.
func (m *Manager) Revoke(ctx context.Context, sessionID string) error {
	return m.repo.Delete(ctx, sessionID)
}

// RevokeAllForUser deletes every session belonging to a user. Per the
// resolved Open Question in spec.md §9, this is called only from the
// account-deletion and emergency-2FA-disable flows (password-reset confirm
// deletes the sessions inside PasswordResetRepository.ApplyReset), never
// from a plain profile/account update.
func (m *Manager) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	return m.repo.DeleteAllForUser(ctx, userID)
}

// seal encodes "session_id:user_id" and encrypts it, producing the opaque
// cookie value. The nonce travels alongside the ciphertext, both hex.
func (m *Manager) seal(sessionID, userID string) (string, error) {
	plaintext := sessionID + ":" + userID
	ciphertextHex, nonceHex, err := m.cipher.SealString(plaintext)
	if err != nil {
		return "", apperr.Internal("seal session cookie", err)
	}
	return nonceHex + ":" + ciphertextHex, nil
}

func (m *Manager) open(cookieValue string) (sessionID, userID string, err error) {
	parts := strings.SplitN(cookieValue, ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("session: malformed cookie envelope")
	}
	nonceHex, ciphertextHex := parts[0], parts[1]
	if _, err := hex.DecodeString(nonceHex); err != nil {
		return "", "", fmt.Errorf("session: malformed nonce: %w", err)
	}

	plaintext, err := m.cipher.OpenString(ciphertextHex, nonceHex)
	if err != nil {
		return "", "", err
	}
	inner := strings.SplitN(plaintext, ":", 2)
	if len(inner) != 2 {
		return "", "", fmt.Errorf("session: malformed cookie payload")
	}
	return inner[0], inner[1], nil
}
