package totp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerifyRoundTrip(t *testing.T) {
	secret, b32, err := GenerateSecret()
	require.NoError(t, err)
	require.Len(t, secret, SecretSize)
	require.NotEmpty(t, b32)

	now := time.Unix(1_700_000_000, 0)
	code := GenerateCode(secret, now)
	require.Len(t, code, Digits)

	ok, counter := Verify(secret, code, now, nil)
	require.True(t, ok)
	require.Equal(t, now.Unix()/StepSeconds, counter)
}

func TestVerifyToleratesClockSkew(t *testing.T) {
	secret, _, err := GenerateSecret()
	require.NoError(t, err)

	now := time.Unix(1_700_000_030, 0)
	code := GenerateCode(secret, now.Add(-StepSeconds*time.Second))

	ok, _ := Verify(secret, code, now, nil)
	require.True(t, ok)
}

func TestVerifyRejectsOutsideWindow(t *testing.T) {
	secret, _, err := GenerateSecret()
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	code := GenerateCode(secret, now.Add(-3*StepSeconds*time.Second))

	ok, _ := Verify(secret, code, now, nil)
	require.False(t, ok)
}

func TestVerifyRejectsReplay(t *testing.T) {
	secret, _, err := GenerateSecret()
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	code := GenerateCode(secret, now)
	_, counter := Verify(secret, code, now, nil)

	ok, _ := Verify(secret, code, now, &counter)
	require.False(t, ok)
}

func TestProvisioningURIContainsIssuerAndSecret(t *testing.T) {
	uri := ProvisioningURI("personal-finance", "a@x.com", "JBSWY3DPEHPK3PXP")
	require.Contains(t, uri, "otpauth://totp/")
	require.Contains(t, uri, "secret=JBSWY3DPEHPK3PXP")
	require.Contains(t, uri, "issuer=personal-finance")
}
