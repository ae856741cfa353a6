// Package totp implements RFC 6238 time-based one-time passwords over
// HMAC-SHA1, 30-second step, 6 digits.
package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"
)

const (
	SecretSize  = 20
	Digits      = 6
	StepSeconds = 30
	// WindowSteps tolerates clock drift by also accepting the step before
	// and after the current one.
	WindowSteps = 1
)

// GenerateSecret returns SecretSize random bytes plus their base32
// (no padding) encoding, suitable for a provisioning URI.
func GenerateSecret() (raw []byte, encoded string, err error) {
	raw = make([]byte, SecretSize)
	if _, err = rand.Read(raw); err != nil {
		return nil, "", err
	}
	encoded = base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw)
	return raw, encoded, nil
}

// ProvisioningURI builds the otpauth:// URI an authenticator app scans.
func ProvisioningURI(issuer, accountLabel, secretB32 string) string {
	label := url.PathEscape(fmt.Sprintf("%s:%s", issuer, accountLabel))
	q := url.Values{}
	q.Set("secret", secretB32)
	q.Set("issuer", issuer)
	q.Set("algorithm", "SHA1")
	q.Set("digits", fmt.Sprintf("%d", Digits))
	q.Set("period", fmt.Sprintf("%d", StepSeconds))
	return fmt.Sprintf("otpauth://totp/%s?%s", label, q.Encode())
}

// GenerateCode returns the current 6-digit code for secret at t.
func GenerateCode(secret []byte, t time.Time) string {
	return generate(secret, counterAt(t))
}

// Verify checks code against the window around t, rejecting counters at or
// before lastCounterUsed to prevent replay. It reports the matching counter
// so the caller can persist it as the new lastCounterUsed.
func Verify(secret []byte, code string, t time.Time, lastCounterUsed *int64) (ok bool, matchedCounter int64) {
	code = strings.TrimSpace(code)
	if len(code) != Digits {
		return false, 0
	}
	counter := counterAt(t)
	start := counter - WindowSteps
	end := counter + WindowSteps
	for c := start; c <= end; c++ {
		if lastCounterUsed != nil && c <= *lastCounterUsed {
			continue
		}
		expected := generate(secret, c)
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			return true, c
		}
	}
	return false, 0
}

func counterAt(t time.Time) int64 {
	return t.Unix() / StepSeconds
}

// generate computes HOTP(secret, counter) per RFC 4226, as RFC 6238 layers
// on top of it with a time-derived counter.
func generate(secret []byte, counter int64) string {
	var msg [8]byte
	c := counter
	for i := 7; i >= 0; i-- {
		msg[i] = byte(c & 0xff)
		c >>= 8
	}
	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)
	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 | int(sum[offset+1])<<16 | int(sum[offset+2])<<8 | int(sum[offset+3])
	otp := bin % int(math.Pow10(Digits))
	return fmt.Sprintf("%0*d", Digits, otp)
}
