package token

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

var (
	// ErrNotFound means the presented token hash has no stored record.
	ErrNotFound = errors.New("token: refresh token not found")

	// ErrExpired means the record exists but its lifetime has passed.
	ErrExpired = errors.New("token: refresh token expired")

	// ErrReuse means the presented token was already consumed by a
	// rotation. The store has revoked the whole family by the time this
	// error is returned.
	ErrReuse = errors.New("token: refresh token reuse detected")

	// ErrUnavailable wraps backend failures (connection loss, script
	// errors) so callers can distinguish infrastructure from auth
	// outcomes.
	ErrUnavailable = errors.New("token: refresh store unavailable")
)

// Record is the server-side state of one refresh token. The raw token
// never appears here; TokenHash is the hex SHA-256 of the opaque value.
type Record struct {
	ID        string
	UserID    string
	TokenHash string
	Family    string
	ExpiresAt time.Time
	Revoked   bool
	RevokedAt time.Time
	UserAgent string
	IP        string
	CreatedAt time.Time
}

// Hash derives the storage key for a raw refresh token.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Store persists refresh-token records and implements the rotation
// protocol. Rotate must be atomic with respect to concurrent calls for
// the same token hash: exactly one caller wins, every other caller
// observes the consumed record and gets ErrReuse after the family has
// been revoked.
type Store interface {
	// Save stores a fresh record at login.
	Save(ctx context.Context, rec *Record) error

	// Rotate atomically consumes the record at providedHash and creates
	// next in the same family. next's UserID and Family are filled from
	// the consumed record. On success the consumed record is returned.
	// Failures: ErrNotFound, ErrExpired, or ErrReuse (family already
	// revoked as a side effect).
	Rotate(ctx context.Context, providedHash string, next *Record) (*Record, error)

	// Get returns the record at tokenHash, or ErrNotFound.
	Get(ctx context.Context, tokenHash string) (*Record, error)

	// RevokeFamily marks every live record in the family revoked and
	// returns how many it touched.
	RevokeFamily(ctx context.Context, family string) (int, error)

	// RevokeAllForUser revokes every family belonging to the user.
	RevokeAllForUser(ctx context.Context, userID string) (int, error)

	// SweepExpired deletes records whose expiry plus the retention
	// window has passed. Housekeeping only; expired tokens are already
	// unusable.
	SweepExpired(ctx context.Context, retention time.Duration) (int, error)
}
