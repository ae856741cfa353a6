// Package cipher provides authenticated encryption for values that must be
// stored at rest but recovered in plaintext later (TOTP secrets). Adapted
// from the process-global secretbox helper this codebase used to carry:
// here the key is an explicit constructor argument instead of a singleton
// loaded from an environment variable, so callers thread it the same way
// they thread the config snapshot and the database pool.
package cipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

const (
	KeySize   = 32 // AES-256
	NonceSize = 12 // AES-GCM standard nonce size
)

var ErrAuthenticationFailed = errors.New("cipher: authentication failed")

// Cipher seals and opens values under a single fixed 32-byte key.
type Cipher struct {
	aead cipher.AEAD
}

// New builds a Cipher from a raw 32-byte key.
func New(key [KeySize]byte) (*Cipher, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("cipher: new aes block: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher: new gcm: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// NewFromHex decodes a hex-encoded 32-byte key, as configured at startup.
func NewFromHex(keyHex string) (*Cipher, error) {
	raw, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("cipher: decode key hex: %w", err)
	}
	if len(raw) != KeySize {
		return nil, fmt.Errorf("cipher: key must decode to %d bytes, got %d", KeySize, len(raw))
	}
	var key [KeySize]byte
	copy(key[:], raw)
	return New(key)
}

// Seal encrypts plaintext under a fresh random nonce, returning the
// ciphertext and the nonce that produced it. A nonce is never reused under
// a given key: each call draws NonceSize fresh random bytes.
func (c *Cipher) Seal(plaintext []byte) (ciphertext, nonce []byte, err error) {
	nonce = make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("cipher: read nonce: %w", err)
	}
	ciphertext = c.aead.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// SealString is a convenience wrapper returning hex-encoded ciphertext and
// nonce, the shape the two-factor store persists.
func (c *Cipher) SealString(plaintext string) (ciphertextHex, nonceHex string, err error) {
	ct, nonce, err := c.Seal([]byte(plaintext))
	if err != nil {
		return "", "", err
	}
	return hex.EncodeToString(ct), hex.EncodeToString(nonce), nil
}

// Open decrypts ciphertext with the given nonce, returning
// ErrAuthenticationFailed if the ciphertext was modified or the nonce does
// not match.
func (c *Cipher) Open(ciphertext, nonce []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("cipher: nonce must be %d bytes, got %d", NonceSize, len(nonce))
	}
	pt, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return pt, nil
}

// OpenString is the inverse of SealString.
func (c *Cipher) OpenString(ciphertextHex, nonceHex string) (string, error) {
	ct, err := hex.DecodeString(ciphertextHex)
	if err != nil {
		return "", fmt.Errorf("cipher: decode ciphertext hex: %w", err)
	}
	nonce, err := hex.DecodeString(nonceHex)
	if err != nil {
		return "", fmt.Errorf("cipher: decode nonce hex: %w", err)
	}
	pt, err := c.Open(ct, nonce)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}
