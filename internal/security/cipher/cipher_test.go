package cipher

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	var key [KeySize]byte
	_, err := rand.Read(key[:])
	require.NoError(t, err)
	c, err := New(key)
	require.NoError(t, err)
	return c
}

func TestSealOpenRoundTrip(t *testing.T) {
	c := newTestCipher(t)
	ct, nonce, err := c.Seal([]byte("top secret totp seed"))
	require.NoError(t, err)

	pt, err := c.Open(ct, nonce)
	require.NoError(t, err)
	require.Equal(t, "top secret totp seed", string(pt))
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	c := newTestCipher(t)
	ct, nonce, err := c.Seal([]byte("payload"))
	require.NoError(t, err)

	ct[0] ^= 0xFF
	_, err = c.Open(ct, nonce)
	require.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestSealProducesDistinctNonces(t *testing.T) {
	c := newTestCipher(t)
	_, n1, err := c.Seal([]byte("a"))
	require.NoError(t, err)
	_, n2, err := c.Seal([]byte("a"))
	require.NoError(t, err)
	require.NotEqual(t, n1, n2)
}

func TestStringRoundTrip(t *testing.T) {
	c := newTestCipher(t)
	ctHex, nonceHex, err := c.SealString("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)

	pt, err := c.OpenString(ctHex, nonceHex)
	require.NoError(t, err)
	require.Equal(t, "JBSWY3DPEHPK3PXP", pt)
}

func TestNewFromHexRejectsWrongLength(t *testing.T) {
	_, err := NewFromHex("deadbeef")
	require.Error(t, err)
}
