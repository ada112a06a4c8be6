package authcore

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/veritasec/authcore/audit"
	"github.com/veritasec/authcore/crypto"
	"github.com/veritasec/authcore/token"
)

// Builder assembles an Engine. Wiring order does not matter; Build
// validates the whole configuration at once.
type Builder struct {
	config     Config
	users      UserStore
	redis      redis.UniversalClient
	tokenStore token.Store
	auditSink  audit.Sink
}

// New starts a Builder with DefaultConfig.
func New() *Builder {
	return &Builder{}
}

// WithConfig replaces the configuration. Zero fields still fall back to
// defaults.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithUserStore wires the application's account persistence. Required.
func (b *Builder) WithUserStore(store UserStore) *Builder {
	b.users = store
	return b
}

// WithRedis wires the client backing the refresh-token store. Required
// unless WithTokenStore supplies an alternative implementation.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithTokenStore overrides the default Redis-backed refresh store.
func (b *Builder) WithTokenStore(store token.Store) *Builder {
	b.tokenStore = store
	return b
}

// WithAuditSink wires the audit destination. Required: the engine does
// not run without a durable audit trail.
func (b *Builder) WithAuditSink(sink audit.Sink) *Builder {
	b.auditSink = sink
	return b
}

// Build validates the configuration and assembles the Engine.
func (b *Builder) Build() (*Engine, error) {
	cfg := b.config.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.users == nil {
		return nil, errors.New("authcore: user store is required")
	}
	if b.auditSink == nil {
		return nil, errors.New("authcore: audit sink is required")
	}

	hasher, err := crypto.NewHasher(crypto.Argon2Params{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	var cipher *crypto.Cipher
	if cfg.Cipher.KeyHex != "" {
		cipher, err = crypto.NewCipherFromHex(cfg.Cipher.KeyHex)
	} else {
		cipher, err = crypto.NewCipherFromPassphrase(cfg.Cipher.Passphrase)
	}
	if err != nil {
		return nil, err
	}

	jwtManager, err := token.NewManager(token.ManagerConfig{
		SigningMethod: cfg.JWT.SigningMethod,
		Secret:        cfg.JWT.Secret,
		PrivateKey:    cfg.JWT.PrivateKey,
		PublicKey:     cfg.JWT.PublicKey,
		Issuer:        cfg.JWT.Issuer,
		AccessTTL:     cfg.JWT.AccessTTL,
		ChallengeTTL:  cfg.JWT.ChallengeTTL,
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	store := b.tokenStore
	if store == nil {
		if b.redis == nil {
			return nil, errors.New("authcore: redis client or token store is required")
		}
		store = token.NewRedisStore(b.redis, cfg.Tokens.RedisPrefix, cfg.Tokens.Retention)
	}

	totp := &crypto.TOTP{
		Issuer: cfg.TOTP.Issuer,
		Period: cfg.TOTP.Period,
		Digits: cfg.TOTP.Digits,
		Skew:   cfg.TOTP.Skew,
	}

	return &Engine{
		config:  cfg,
		users:   b.users,
		tokens:  store,
		jwt:     jwtManager,
		hasher:  hasher,
		totp:    totp,
		cipher:  cipher,
		audit:   audit.NewLog(b.auditSink, cfg.Audit.ResumeHash),
		metrics: NewMetrics(cfg.Metrics.Enabled),
		closed:  make(chan struct{}),
	}, nil
}
