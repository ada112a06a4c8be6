package authcore

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultsFillZeroValues(t *testing.T) {
	cfg := Config{
		JWT:    JWTConfig{Secret: []byte("0123456789abcdef0123456789abcdef")},
		Cipher: CipherConfig{KeyHex: testKeyHex},
	}.withDefaults()

	if cfg.JWT.AccessTTL != 15*time.Minute {
		t.Fatalf("AccessTTL = %v", cfg.JWT.AccessTTL)
	}
	if cfg.JWT.ChallengeTTL != 5*time.Minute {
		t.Fatalf("ChallengeTTL = %v", cfg.JWT.ChallengeTTL)
	}
	if cfg.Tokens.RefreshTTL != 30*24*time.Hour {
		t.Fatalf("RefreshTTL = %v", cfg.Tokens.RefreshTTL)
	}
	if cfg.Password.Memory != 64*1024 || cfg.Password.Time != 3 || cfg.Password.Parallelism != 4 {
		t.Fatalf("argon2 defaults = %+v", cfg.Password)
	}
	if cfg.TOTP.Period != 30 || cfg.TOTP.Digits != 6 || cfg.TOTP.Skew != 1 {
		t.Fatalf("totp defaults = %+v", cfg.TOTP)
	}
	if cfg.TOTP.Issuer != cfg.JWT.Issuer {
		t.Fatalf("totp issuer %q does not inherit jwt issuer %q", cfg.TOTP.Issuer, cfg.JWT.Issuer)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsBrokenConfigs(t *testing.T) {
	mutate := []struct {
		name string
		fn   func(*Config)
		want string
	}{
		{"short secret", func(c *Config) { c.JWT.Secret = []byte("short") }, "Secret"},
		{"unknown method", func(c *Config) { c.JWT.SigningMethod = "rs256" }, "signing method"},
		{"no cipher key", func(c *Config) { c.Cipher = CipherConfig{} }, "Cipher"},
		{"both cipher keys", func(c *Config) { c.Cipher.Passphrase = "also" }, "mutually exclusive"},
		{"refresh under access", func(c *Config) { c.Tokens.RefreshTTL = time.Minute }, "refresh TTL"},
		{"totp digits", func(c *Config) { c.TOTP.Digits = 4 }, "TOTP"},
	}
	for _, tc := range mutate {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig().withDefaults()
			tc.fn(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestBuilderRequiresWiring(t *testing.T) {
	if _, err := New().WithConfig(testConfig()).Build(); err == nil {
		t.Fatal("built without user store")
	}
	if _, err := New().WithConfig(testConfig()).WithUserStore(newMemStore()).Build(); err == nil {
		t.Fatal("built without audit sink")
	}
}
