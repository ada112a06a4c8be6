package authcore

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/veritasec/authcore/crypto"
	"github.com/veritasec/authcore/token"
)

// Config is the full engine configuration. Zero values fall back to
// DefaultConfig equivalents during Build; Validate catches combinations
// that cannot work.
type Config struct {
	JWT      JWTConfig
	Password PasswordConfig
	TOTP     TOTPConfig
	Cipher   CipherConfig
	Tokens   TokenConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
	Account  AccountConfig
}

// JWTConfig controls access and MFA challenge token issuance.
type JWTConfig struct {
	SigningMethod string // "hs256" (default) or "ed25519"
	Secret        []byte
	PrivateKey    ed25519.PrivateKey
	PublicKey     ed25519.PublicKey
	Issuer        string
	AccessTTL     time.Duration
	ChallengeTTL  time.Duration
	Leeway        time.Duration
}

// PasswordConfig carries Argon2id cost parameters.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// TOTPConfig controls second-factor verification.
type TOTPConfig struct {
	Issuer string // shown in authenticator apps; defaults to JWT.Issuer
	Period int
	Digits int
	Skew   int
	QRSize int // QR PNG edge length in pixels
}

// CipherConfig selects the key for sealing MFA secrets at rest. Exactly
// one of KeyHex (64 hex chars) or Passphrase must be set.
type CipherConfig struct {
	KeyHex     string
	Passphrase string
}

// TokenConfig controls the refresh-token store.
type TokenConfig struct {
	RefreshTTL  time.Duration
	RedisPrefix string
	// Retention keeps consumed and expired records visible for
	// forensics before SweepExpired or key expiry removes them.
	Retention time.Duration
}

// AuditConfig controls the audit trail.
type AuditConfig struct {
	// ResumeHash seeds the chain with the tail of a previous run so the
	// trail stays verifiable across restarts.
	ResumeHash string
}

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// AccountConfig controls account creation.
type AccountConfig struct {
	DefaultRole string
	// Roles maps permission names to the roles that hold them. Used by
	// Authorize; empty means every Authorize call is denied.
	Roles map[string][]string
}

// DefaultConfig returns the production defaults: 15-minute access
// tokens, 30-day refresh tokens, 5-minute MFA challenges, Argon2id at
// 64 MiB/t=3/p=4, TOTP with 30-second steps and ±1 step skew.
func DefaultConfig() Config {
	argon := crypto.DefaultArgon2Params()
	return Config{
		JWT: JWTConfig{
			SigningMethod: token.MethodHS256,
			Issuer:        "authcore",
			AccessTTL:     15 * time.Minute,
			ChallengeTTL:  5 * time.Minute,
			Leeway:        30 * time.Second,
		},
		Password: PasswordConfig{
			Memory:      argon.Memory,
			Time:        argon.Time,
			Parallelism: argon.Parallelism,
			SaltLength:  argon.SaltLength,
			KeyLength:   argon.KeyLength,
		},
		TOTP: TOTPConfig{
			Period: 30,
			Digits: 6,
			Skew:   1,
			QRSize: 256,
		},
		Tokens: TokenConfig{
			RefreshTTL:  30 * 24 * time.Hour,
			RedisPrefix: "ac",
			Retention:   7 * 24 * time.Hour,
		},
		Account: AccountConfig{
			DefaultRole: "user",
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// withDefaults fills zero values from DefaultConfig without touching
// anything the caller set.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.JWT.SigningMethod == "" {
		c.JWT.SigningMethod = d.JWT.SigningMethod
	}
	if c.JWT.Issuer == "" {
		c.JWT.Issuer = d.JWT.Issuer
	}
	if c.JWT.AccessTTL == 0 {
		c.JWT.AccessTTL = d.JWT.AccessTTL
	}
	if c.JWT.ChallengeTTL == 0 {
		c.JWT.ChallengeTTL = d.JWT.ChallengeTTL
	}
	if c.JWT.Leeway == 0 {
		c.JWT.Leeway = d.JWT.Leeway
	}
	if c.Password.Memory == 0 {
		c.Password = d.Password
	}
	if c.TOTP.Issuer == "" {
		c.TOTP.Issuer = c.JWT.Issuer
	}
	if c.TOTP.Period == 0 {
		c.TOTP.Period = d.TOTP.Period
	}
	if c.TOTP.Digits == 0 {
		c.TOTP.Digits = d.TOTP.Digits
	}
	if c.TOTP.Skew == 0 {
		c.TOTP.Skew = d.TOTP.Skew
	}
	if c.TOTP.QRSize == 0 {
		c.TOTP.QRSize = d.TOTP.QRSize
	}
	if c.Tokens.RefreshTTL == 0 {
		c.Tokens.RefreshTTL = d.Tokens.RefreshTTL
	}
	if c.Tokens.RedisPrefix == "" {
		c.Tokens.RedisPrefix = d.Tokens.RedisPrefix
	}
	if c.Tokens.Retention == 0 {
		c.Tokens.Retention = d.Tokens.Retention
	}
	if c.Account.DefaultRole == "" {
		c.Account.DefaultRole = d.Account.DefaultRole
	}
	return c
}

// Validate rejects configurations the engine cannot run with. It is
// called by Build after defaults are applied.
func (c Config) Validate() error {
	switch c.JWT.SigningMethod {
	case token.MethodHS256:
		if len(c.JWT.Secret) < 32 {
			return errors.New("authcore: JWT.Secret must be at least 32 bytes for hs256")
		}
	case token.MethodEd25519:
		if len(c.JWT.PrivateKey) != ed25519.PrivateKeySize {
			return errors.New("authcore: JWT.PrivateKey missing or wrong size")
		}
		if len(c.JWT.PublicKey) != ed25519.PublicKeySize {
			return errors.New("authcore: JWT.PublicKey missing or wrong size")
		}
	default:
		return fmt.Errorf("authcore: unknown signing method %q", c.JWT.SigningMethod)
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.ChallengeTTL <= 0 {
		return errors.New("authcore: token TTLs must be positive")
	}
	if c.Tokens.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("authcore: refresh TTL must exceed access TTL")
	}
	if c.Cipher.KeyHex == "" && c.Cipher.Passphrase == "" {
		return errors.New("authcore: Cipher needs KeyHex or Passphrase")
	}
	if c.Cipher.KeyHex != "" && c.Cipher.Passphrase != "" {
		return errors.New("authcore: Cipher.KeyHex and Passphrase are mutually exclusive")
	}
	if c.TOTP.Period < 15 || c.TOTP.Digits < 6 || c.TOTP.Digits > 8 || c.TOTP.Skew < 0 {
		return errors.New("authcore: TOTP parameters out of range")
	}
	return nil
}
