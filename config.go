package identity

import (
	"errors"
	"strings"
	"time"
)

// Config defines a public type used by identity APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Token        TokenConfig
	Password     PasswordConfig
	Lockout      LockoutConfig
	MFA          MFAConfig
	Confirmation ConfirmationConfig
	Redis        RedisConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig defines a public type used by identity APIs.
//
// TokenConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TokenConfig struct {
	SigningSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Leeway        time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig defines a public type used by identity APIs.
//
// PasswordConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig defines a public type used by identity APIs.
//
// LockoutConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type LockoutConfig struct {
	Enabled   bool
	Threshold int
	Window    time.Duration // 0 = mirror Token.RefreshTTL
}

/*
====================================
MFA CONFIG
====================================
*/

// MFAConfig defines a public type used by identity APIs.
//
// MFAConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MFAConfig struct {
	Issuer    string
	Digits    int
	Period    int
	Algorithm string
	Skew      int
}

/*
====================================
CONFIRMATION CONFIG
====================================
*/

// ConfirmationConfig defines a public type used by identity APIs.
//
// ConfirmationConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type ConfirmationConfig struct {
	RegistrationTTL time.Duration
	ResetTTL        time.Duration
}

/*
====================================
REDIS / AMBIENT CONFIG
====================================
*/

// RedisConfig defines a public type used by identity APIs.
//
// RedisConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RedisConfig struct {
	KeyPrefix string
}

// AuditConfig defines a public type used by identity APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by identity APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig describes the defaultconfig operation and its observable behavior.
//
// DefaultConfig may return an error when input validation, dependency calls, or security checks fail.
// DefaultConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// The returned configuration still needs a signing secret before it passes
// [Config.Validate].
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			Issuer:     "identity",
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        2,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Lockout: LockoutConfig{
			Enabled:   true,
			Threshold: 5,
		},
		MFA: MFAConfig{
			Issuer:    "identity",
			Digits:    6,
			Period:    30,
			Algorithm: "SHA1",
			Skew:      1,
		},
		Confirmation: ConfirmationConfig{
			RegistrationTTL: 24 * time.Hour,
			ResetTTL:        15 * time.Minute,
		},
		Redis: RedisConfig{
			KeyPrefix: "id",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c Config) Validate() error {
	if len(c.Token.SigningSecret) < 32 {
		return errors.New("token signing secret must be at least 32 bytes")
	}
	if c.Token.AccessTTL <= 0 {
		return errors.New("token access TTL must be positive")
	}
	if c.Token.RefreshTTL <= c.Token.AccessTTL {
		return errors.New("token refresh TTL must exceed access TTL")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return errors.New("token leeway out of range")
	}
	if c.Lockout.Enabled {
		if c.Lockout.Threshold <= 0 {
			return errors.New("lockout threshold must be positive")
		}
		if c.Lockout.Window < 0 {
			return errors.New("lockout window must not be negative")
		}
	}
	if c.MFA.Digits != 6 && c.MFA.Digits != 8 {
		return errors.New("mfa digits must be 6 or 8")
	}
	if c.MFA.Period < 15 {
		return errors.New("mfa period must be at least 15 seconds")
	}
	if c.MFA.Skew < 0 || c.MFA.Skew > 2 {
		return errors.New("mfa skew out of range")
	}
	switch strings.ToUpper(c.MFA.Algorithm) {
	case "", "SHA1", "SHA256", "SHA512":
	default:
		return errors.New("unsupported mfa algorithm")
	}
	if c.Confirmation.RegistrationTTL <= 0 {
		return errors.New("confirmation registration TTL must be positive")
	}
	if c.Confirmation.ResetTTL <= 0 {
		return errors.New("confirmation reset TTL must be positive")
	}
	if c.Redis.KeyPrefix == "" {
		return errors.New("redis key prefix required")
	}
	return nil
}

// lockoutWindow resolves the configured window, defaulting to the refresh TTL
// so that failure counters outlive any session minted before the lock.
func (c Config) lockoutWindow() time.Duration {
	if c.Lockout.Window > 0 {
		return c.Lockout.Window
	}
	return c.Token.RefreshTTL
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.SigningSecret = cloneBytes(cfg.Token.SigningSecret)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
