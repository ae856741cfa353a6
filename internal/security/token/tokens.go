// Package token generates and hashes the opaque, single-use tokens handed
// out for password resets, account-unlock links, and emergency two-factor
// disable confirmations. None of these tokens are ever stored in plaintext:
// callers persist only the hash returned by SHA256Hex and mail the
// plaintext value to the account holder.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// alphanumericAlphabet is the 62-character set backup codes are drawn from,
// matching the original implementation's Alphanumeric distribution.
const alphanumericAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// GenerateAlphanumericCode returns a random string of length drawn uniformly
// from alphanumericAlphabet, rejecting biased byte values so every character
// has an equal 1/62 chance regardless of 256 not being a multiple of 62.
// Used for backup codes, where the result is short enough a human can type
// it by hand but still carries real entropy (16 chars ~ 95 bits).
func GenerateAlphanumericCode(length int) (string, error) {
	const alphabetLen = byte(len(alphanumericAlphabet))
	maxByte := byte(256 - (256 % int(alphabetLen)))

	out := make([]byte, length)
	buf := make([]byte, 1)
	for i := range out {
		for {
			if _, err := rand.Read(buf); err != nil {
				return "", err
			}
			if buf[0] < maxByte {
				out[i] = alphanumericAlphabet[buf[0]%alphabetLen]
				break
			}
		}
	}
	return string(out), nil
}

// GenerateOpaqueToken returns a random, URL-safe token of nBytes of entropy,
// suitable for embedding directly in a reset/unlock/emergency-disable link.
func GenerateOpaqueToken(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// SHA256Base64URL hashes a plaintext token to its base64url form.
func SHA256Base64URL(s string) string {
	sum := sha256.Sum256([]byte(s))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// SHA256Hex hashes a plaintext token to hex, the form stored in the
// *_tokens tables' token_hash columns so a leaked database dump never
// exposes a usable token.
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", sum)
}
