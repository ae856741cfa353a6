// Package config loads the service configuration from YAML with
// environment-variable overrides for anything secret, following the
// load-then-override-then-validate shape the rest of this codebase uses.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "5s" or "30m" unmarshal
// directly instead of needing a separate string field parsed after Load.
type Duration time.Duration

func (d Duration) AsDuration() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
		Debug    bool   `yaml:"debug"`
	} `yaml:"server"`

	Database struct {
		DSN               string   `yaml:"dsn"`
		MaxOpenConns      int32    `yaml:"max_open_conns"`
		AcquireTimeout    Duration `yaml:"acquire_timeout"`
		ConnectionTimeout Duration `yaml:"connection_timeout"`
	} `yaml:"database"`

	Session struct {
		CookieName string   `yaml:"cookie_name"`
		TTL        Duration `yaml:"ttl"`
		SecretHex  string   `yaml:"secret_hex"`
		Domain     string   `yaml:"domain"`
		SameSite   string   `yaml:"samesite"`
	} `yaml:"session"`

	CredentialHasher struct {
		ArgonMemoryKiB   uint32 `yaml:"argon2_memory_kib"`
		ArgonTime        uint32 `yaml:"argon2_time"`
		ArgonParallelism uint8  `yaml:"argon2_parallelism"`
		ArgonKeyLen      uint32 `yaml:"argon2_key_len"`
	} `yaml:"credential_hasher"`

	PasswordPolicy struct {
		MinLength     int    `yaml:"min_length"`
		RequireUpper  bool   `yaml:"require_upper"`
		RequireLower  bool   `yaml:"require_lower"`
		RequireDigit  bool   `yaml:"require_digit"`
		RequireSymbol bool   `yaml:"require_symbol"`
		BlacklistPath string `yaml:"blacklist_path"`
	} `yaml:"password_policy"`

	TOTP struct {
		Issuer string `yaml:"issuer"`
	} `yaml:"totp"`

	Cipher struct {
		KeyHex string `yaml:"key_hex"`
	} `yaml:"cipher"`

	RateLimit struct {
		FreeAttempts      int        `yaml:"free_attempts"`
		DelaySchedule     []Duration `yaml:"delay_schedule"`
		LockoutThreshold  int        `yaml:"lockout_threshold"`
		LockoutDuration   Duration   `yaml:"lockout_duration"`
		EnableEmailUnlock bool       `yaml:"enable_email_unlock"`
		UnlockTokenTTL    Duration   `yaml:"unlock_token_ttl"`
	} `yaml:"rate_limit"`

	PasswordReset struct {
		TTL                Duration `yaml:"ttl"`
		MaxRequestsPerHour int      `yaml:"max_requests_per_hour"`
	} `yaml:"password_reset"`

	TwoFactor struct {
		AttemptThreshold  int      `yaml:"attempt_threshold"`
		LockoutDuration   Duration `yaml:"lockout_duration"`
		EmergencyTokenTTL Duration `yaml:"emergency_token_ttl"`
		BackupCodeCount   int      `yaml:"backup_code_count"`
	} `yaml:"two_factor"`

	Email struct {
		Enabled      bool   `yaml:"enabled"`
		SMTPHost     string `yaml:"smtp_host"`
		SMTPPort     int    `yaml:"smtp_port"`
		SMTPUser     string `yaml:"smtp_user"`
		SMTPPass     string `yaml:"smtp_pass"`
		FromAddress  string `yaml:"from_address"`
		ResetURLBase string `yaml:"reset_url_base"`
	} `yaml:"email"`
}

// Load reads path, applies defaults, layers environment overrides for
// secrets, and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	c.applyDefaults()
	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 20
	}
	if c.Database.AcquireTimeout == 0 {
		c.Database.AcquireTimeout = Duration(5 * time.Second)
	}
	if c.Database.ConnectionTimeout == 0 {
		c.Database.ConnectionTimeout = Duration(5 * time.Second)
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "user"
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = Duration(720 * time.Hour)
	}
	if c.Session.SameSite == "" {
		c.Session.SameSite = "lax"
	}
	if c.CredentialHasher.ArgonMemoryKiB == 0 {
		c.CredentialHasher.ArgonMemoryKiB = 65536
	}
	if c.CredentialHasher.ArgonTime == 0 {
		c.CredentialHasher.ArgonTime = 3
	}
	if c.CredentialHasher.ArgonParallelism == 0 {
		c.CredentialHasher.ArgonParallelism = 1
	}
	if c.CredentialHasher.ArgonKeyLen == 0 {
		c.CredentialHasher.ArgonKeyLen = 32
	}
	if c.PasswordPolicy.MinLength == 0 {
		c.PasswordPolicy.MinLength = 10
		c.PasswordPolicy.RequireUpper = true
		c.PasswordPolicy.RequireLower = true
		c.PasswordPolicy.RequireDigit = true
		c.PasswordPolicy.RequireSymbol = true
	}
	if c.TOTP.Issuer == "" {
		c.TOTP.Issuer = "authd"
	}
	if c.RateLimit.FreeAttempts == 0 {
		c.RateLimit.FreeAttempts = 3
	}
	if len(c.RateLimit.DelaySchedule) == 0 {
		c.RateLimit.DelaySchedule = []Duration{Duration(5 * time.Second), Duration(30 * time.Second), Duration(60 * time.Second)}
	}
	if c.RateLimit.LockoutThreshold == 0 {
		c.RateLimit.LockoutThreshold = 7
	}
	if c.RateLimit.LockoutDuration == 0 {
		c.RateLimit.LockoutDuration = Duration(time.Hour)
	}
	if c.RateLimit.UnlockTokenTTL == 0 {
		c.RateLimit.UnlockTokenTTL = Duration(time.Hour)
	}
	if c.PasswordReset.TTL == 0 {
		c.PasswordReset.TTL = Duration(15 * time.Minute)
	}
	if c.PasswordReset.MaxRequestsPerHour == 0 {
		c.PasswordReset.MaxRequestsPerHour = 3
	}
	if c.TwoFactor.AttemptThreshold == 0 {
		c.TwoFactor.AttemptThreshold = 5
	}
	if c.TwoFactor.LockoutDuration == 0 {
		c.TwoFactor.LockoutDuration = Duration(15 * time.Minute)
	}
	if c.TwoFactor.EmergencyTokenTTL == 0 {
		c.TwoFactor.EmergencyTokenTTL = Duration(time.Hour)
	}
	if c.TwoFactor.BackupCodeCount == 0 {
		c.TwoFactor.BackupCodeCount = 10
	}
	if c.Email.SMTPPort == 0 {
		c.Email.SMTPPort = 587
	}
	if c.Email.FromAddress == "" {
		c.Email.FromAddress = "no-reply@example.com"
	}
}

func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("DATABASE_URL"); ok {
		c.Database.DSN = v
	}
	if v, ok := getEnvStr("SESSION_SECRET"); ok {
		c.Session.SecretHex = v
	}
	if v, ok := getEnvStr("TOTP_CIPHER_KEY"); ok {
		c.Cipher.KeyHex = v
	}
	if v, ok := getEnvStr("SMTP_PASSWORD"); ok {
		c.Email.SMTPPass = v
	}
	if v, ok := getEnvBool("SERVER_DEBUG"); ok {
		c.Server.Debug = v
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
}

// Validate enforces the invariants a misconfigured deployment must not be
// allowed to start with: a real session-signing key outside debug mode, an
// AEAD key of the correct length, and a delay schedule that cannot outrun
// the lockout threshold it feeds into.
func (c *Config) Validate() error {
	if !c.Server.Debug && strings.TrimSpace(c.Session.SecretHex) == "" {
		return fmt.Errorf("config: session.secret_hex is required outside debug mode")
	}
	if strings.TrimSpace(c.Cipher.KeyHex) == "" {
		return fmt.Errorf("config: cipher.key_hex is required")
	}
	if raw, err := hex.DecodeString(c.Cipher.KeyHex); err != nil || len(raw) != 32 {
		return fmt.Errorf("config: cipher.key_hex must decode to 32 bytes")
	}
	if free := c.RateLimit.FreeAttempts; len(c.RateLimit.DelaySchedule) > c.RateLimit.LockoutThreshold-free {
		return fmt.Errorf("config: rate_limit.delay_schedule is longer than lockout_threshold - free_attempts allows")
	}
	return nil
}

func getEnvStr(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	return v, ok && v != ""
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(s); err == nil {
			return b, true
		}
	}
	return false, false
}
