package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"net/url"
	"time"
)

const totpSecretSize = 20

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// TOTP generates and verifies RFC 6238 time-based one-time passwords
// over HMAC-SHA1, the algorithm every mainstream authenticator app
// implements.
type TOTP struct {
	Issuer string
	Period int // seconds per step
	Digits int
	Skew   int // accepted steps either side of now
}

// NewTOTP returns a verifier with the interoperable defaults:
// 30-second step, 6 digits, ±1 step of clock skew.
func NewTOTP(issuer string) *TOTP {
	return &TOTP{Issuer: issuer, Period: 30, Digits: 6, Skew: 1}
}

// GenerateSecret returns a fresh 160-bit shared secret, both raw and
// base32-encoded without padding for authenticator apps.
func (t *TOTP) GenerateSecret() ([]byte, string, error) {
	secret := make([]byte, totpSecretSize)
	if _, err := rand.Read(secret); err != nil {
		return nil, "", fmt.Errorf("crypto: totp secret generation: %w", err)
	}
	return secret, b32.EncodeToString(secret), nil
}

// DecodeSecret decodes a base32 secret produced by GenerateSecret.
func DecodeSecret(encoded string) ([]byte, error) {
	return b32.DecodeString(encoded)
}

// Code computes the password for the step containing at. Exposed so
// enrollment tests and CLI tooling can mint valid codes.
func (t *TOTP) Code(secret []byte, at time.Time) string {
	return hotpCode(secret, uint64(at.Unix())/uint64(t.Period), t.Digits)
}

// Verify checks code against the window [now-Skew, now+Skew] steps and
// returns the matched counter so callers can refuse replays of the same
// step. Comparison is constant time per candidate.
func (t *TOTP) Verify(secret []byte, code string, now time.Time) (bool, uint64) {
	if len(code) != t.Digits {
		return false, 0
	}
	counter := uint64(now.Unix()) / uint64(t.Period)
	for offset := -t.Skew; offset <= t.Skew; offset++ {
		candidate := counter
		if offset < 0 {
			if uint64(-offset) > counter {
				continue
			}
			candidate = counter - uint64(-offset)
		} else {
			candidate = counter + uint64(offset)
		}
		want := hotpCode(secret, candidate, t.Digits)
		if subtle.ConstantTimeCompare([]byte(want), []byte(code)) == 1 {
			return true, candidate
		}
	}
	return false, 0
}

// ProvisionURI builds the otpauth:// URI encoded into enrollment QR
// codes, labeled issuer:account per the Key Uri Format.
func (t *TOTP) ProvisionURI(secretB32, account string) string {
	q := url.Values{}
	q.Set("secret", secretB32)
	q.Set("issuer", t.Issuer)
	q.Set("algorithm", "SHA1")
	q.Set("digits", fmt.Sprintf("%d", t.Digits))
	q.Set("period", fmt.Sprintf("%d", t.Period))
	label := url.PathEscape(t.Issuer + ":" + account)
	return "otpauth://totp/" + label + "?" + q.Encode()
}

// hotpCode is RFC 4226 dynamic truncation of HMAC-SHA1(secret, counter).
func hotpCode(secret []byte, counter uint64, digits int) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)
	mac := hmac.New(sha1.New, secret)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	value := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	mod := uint32(1)
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, value%mod)
}
