package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTemp(t, "server:\n  debug: true\ncipher:\n  key_hex: \"0000000000000000000000000000000000000000000000000000000000000000\"\n")
	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8080", c.Server.Addr)
	require.Equal(t, 3, c.RateLimit.FreeAttempts)
	require.Len(t, c.RateLimit.DelaySchedule, 3)
}

func TestLoadRejectsMissingSessionSecretOutsideDebug(t *testing.T) {
	path := writeTemp(t, "server:\n  debug: false\ncipher:\n  key_hex: \"0000000000000000000000000000000000000000000000000000000000000000\"\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsWrongLengthCipherKey(t *testing.T) {
	path := writeTemp(t, "server:\n  debug: true\ncipher:\n  key_hex: \"aabb\"\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsOverlongDelaySchedule(t *testing.T) {
	path := writeTemp(t, `
server:
  debug: true
cipher:
  key_hex: "0000000000000000000000000000000000000000000000000000000000000000"
rate_limit:
  free_attempts: 3
  lockout_threshold: 4
  delay_schedule: ["1s", "2s", "3s", "4s", "5s"]
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestDurationUnmarshalsFromYAMLString(t *testing.T) {
	path := writeTemp(t, `
server:
  debug: true
cipher:
  key_hex: "0000000000000000000000000000000000000000000000000000000000000000"
password_reset:
  ttl: "45m"
`)
	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "45m0s", c.PasswordReset.TTL.AsDuration().String())
}
