package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Signing method names accepted by ManagerConfig.
const (
	MethodHS256   = "hs256"
	MethodEd25519 = "ed25519"
)

const challengePurpose = "mfa_challenge"

var (
	// ErrTokenInvalid covers every access-token verification failure:
	// bad signature, expiry, wrong issuer, malformed input. Callers get
	// no hint which check failed.
	ErrTokenInvalid = errors.New("token: invalid or expired token")

	// ErrChallengeInvalid is the uniform failure for MFA challenge
	// tokens, including access tokens presented in their place.
	ErrChallengeInvalid = errors.New("token: invalid or expired mfa challenge")
)

// ManagerConfig configures JWT issuance and verification.
type ManagerConfig struct {
	SigningMethod string // MethodHS256 or MethodEd25519
	Secret        []byte // hs256 key
	PrivateKey    ed25519.PrivateKey
	PublicKey     ed25519.PublicKey
	Issuer        string
	AccessTTL     time.Duration
	ChallengeTTL  time.Duration
	Leeway        time.Duration
}

// AccessClaims is the payload of an issued access token.
type AccessClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// UserID returns the subject claim.
func (c *AccessClaims) UserID() string { return c.Subject }

type challengeClaims struct {
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// Manager signs and verifies access and MFA challenge tokens.
type Manager struct {
	cfg    ManagerConfig
	method jwt.SigningMethod
	now    func() time.Time
}

// NewManager validates the config and returns a Manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	m := &Manager{cfg: cfg, now: time.Now}
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.Secret) < 32 {
			return nil, errors.New("token: hs256 secret must be at least 32 bytes")
		}
		m.method = jwt.SigningMethodHS256
	case MethodEd25519:
		if len(cfg.PrivateKey) != ed25519.PrivateKeySize || len(cfg.PublicKey) != ed25519.PublicKeySize {
			return nil, errors.New("token: ed25519 key pair incomplete")
		}
		m.method = jwt.SigningMethodEdDSA
	default:
		return nil, fmt.Errorf("token: unknown signing method %q", cfg.SigningMethod)
	}
	if cfg.Issuer == "" {
		return nil, errors.New("token: issuer is required")
	}
	if cfg.AccessTTL <= 0 || cfg.ChallengeTTL <= 0 {
		return nil, errors.New("token: ttls must be positive")
	}
	return m, nil
}

func (m *Manager) signingKey() any {
	if m.cfg.SigningMethod == MethodEd25519 {
		return m.cfg.PrivateKey
	}
	return m.cfg.Secret
}

func (m *Manager) verifyKey() any {
	if m.cfg.SigningMethod == MethodEd25519 {
		return m.cfg.PublicKey
	}
	return m.cfg.Secret
}

func (m *Manager) parserOptions() []jwt.ParserOption {
	return []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithIssuer(m.cfg.Issuer),
		jwt.WithLeeway(m.cfg.Leeway),
		jwt.WithExpirationRequired(),
	}
}

// CreateAccess issues a signed access token for the user and role,
// valid for AccessTTL from now.
func (m *Manager) CreateAccess(userID, role string) (string, error) {
	now := m.now()
	claims := AccessClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.cfg.AccessTTL)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(m.method, claims).SignedString(m.signingKey())
	if err != nil {
		return "", fmt.Errorf("token: sign access token: %w", err)
	}
	return signed, nil
}

// ParseAccess verifies a token end to end and returns its claims. All
// failures collapse into ErrTokenInvalid.
func (m *Manager) ParseAccess(raw string) (*AccessClaims, error) {
	var claims AccessClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return m.verifyKey(), nil
	}, m.parserOptions()...)
	if err != nil || !tok.Valid {
		return nil, ErrTokenInvalid
	}
	// An MFA challenge token must never pass as an access token.
	if claims.Role == "" || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return &claims, nil
}

// CreateMFAChallenge issues the short-lived token a password-verified
// client presents together with its second factor. It carries a purpose
// claim so it cannot double as an access token.
func (m *Manager) CreateMFAChallenge(userID string) (string, error) {
	now := m.now()
	claims := challengeClaims{
		Purpose: challengePurpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.cfg.ChallengeTTL)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(m.method, claims).SignedString(m.signingKey())
	if err != nil {
		return "", fmt.Errorf("token: sign mfa challenge: %w", err)
	}
	return signed, nil
}

// ParseMFAChallenge verifies a challenge token and returns the user id
// it was issued to. Access tokens and expired or forged challenges all
// fail with ErrChallengeInvalid.
func (m *Manager) ParseMFAChallenge(raw string) (string, error) {
	var claims challengeClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return m.verifyKey(), nil
	}, m.parserOptions()...)
	if err != nil || !tok.Valid {
		return "", ErrChallengeInvalid
	}
	if claims.Purpose != challengePurpose || claims.Subject == "" {
		return "", ErrChallengeInvalid
	}
	return claims.Subject, nil
}
