package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
)

// NewRefreshSecret returns 32 bytes of CSPRNG output hex-encoded to a
// 64-character opaque token. The raw value is handed to the client once;
// only its SHA-256 digest is ever stored.
func NewRefreshSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("crypto: refresh secret generation: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

const (
	passwordUpper  = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	passwordLower  = "abcdefghijkmnopqrstuvwxyz"
	passwordDigits = "23456789"
)

// NewPassword generates a random password of the given length that
// satisfies CheckPassword, for provisioning flows that mint an initial
// credential. Ambiguous glyphs (0/O, 1/l/I) are excluded.
func NewPassword(length int) (string, error) {
	if length < MinPasswordLength {
		length = MinPasswordLength
	}
	if length > MaxPasswordLength {
		length = MaxPasswordLength
	}
	alphabet := passwordUpper + passwordLower + passwordDigits
	out := make([]byte, length)
	// One guaranteed character per required class, the rest uniform.
	classes := []string{passwordUpper, passwordLower, passwordDigits}
	for i := range out {
		source := alphabet
		if i < len(classes) {
			source = classes[i]
		}
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(source))))
		if err != nil {
			return "", fmt.Errorf("crypto: password generation: %w", err)
		}
		out[i] = source[idx.Int64()]
	}
	// Shuffle so the class-guaranteed characters are not positional.
	for i := len(out) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", fmt.Errorf("crypto: password generation: %w", err)
		}
		out[i], out[j.Int64()] = out[j.Int64()], out[i]
	}
	return string(out), nil
}
