package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

const (
	aeadKeySize   = 32
	aeadNonceSize = 12
	aeadTagSize   = 16
)

// keyDerivationSalt is fixed so that the same passphrase always derives
// the same key. Data sealed under a passphrase must stay decryptable
// across restarts and hosts; a random salt would require storing it next
// to every ciphertext and break existing payloads. Deployments that can
// manage raw keys should prefer NewCipherFromHex.
var keyDerivationSalt = []byte("authcore.aead.v1")

var (
	// ErrDecrypt is returned for every ciphertext that fails to open:
	// wrong key, flipped bits, truncation, or bad encoding. The cause is
	// deliberately not distinguished.
	ErrDecrypt = errors.New("crypto: decryption failed")

	errKeySize = errors.New("crypto: cipher key must be 32 bytes")
)

// Cipher seals and opens small payloads with AES-256-GCM. Output is
// base64(nonce ∥ tag ∥ ciphertext) with a fresh random nonce per call.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipherFromHex builds a Cipher from a 64-character hex key.
func NewCipherFromHex(hexKey string) (*Cipher, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: cipher key is not valid hex: %w", err)
	}
	return newCipher(key)
}

// NewCipherFromPassphrase derives the key from a passphrase with scrypt
// (N=32768, r=8, p=1) and the fixed application salt.
func NewCipherFromPassphrase(passphrase string) (*Cipher, error) {
	if passphrase == "" {
		return nil, errors.New("crypto: empty passphrase")
	}
	key, err := scrypt.Key([]byte(passphrase), keyDerivationSalt, 32768, 8, 1, aeadKeySize)
	if err != nil {
		return nil, fmt.Errorf("crypto: key derivation: %w", err)
	}
	return newCipher(key)
}

func newCipher(key []byte) (*Cipher, error) {
	if len(key) != aeadKeySize {
		return nil, errKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext and returns base64(nonce ∥ tag ∥ ciphertext).
func (c *Cipher) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, aeadNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("crypto: nonce generation: %w", err)
	}
	// Seal appends ciphertext then tag; the wire layout wants the tag
	// between nonce and ciphertext.
	sealed := c.aead.Seal(nil, nonce, plaintext, nil)
	ct := sealed[:len(sealed)-aeadTagSize]
	tag := sealed[len(sealed)-aeadTagSize:]

	out := make([]byte, 0, aeadNonceSize+aeadTagSize+len(ct))
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, ct...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a payload produced by Encrypt. Any failure, including
// malformed encoding, returns ErrDecrypt.
func (c *Cipher) Decrypt(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrDecrypt
	}
	if len(raw) < aeadNonceSize+aeadTagSize {
		return nil, ErrDecrypt
	}
	nonce := raw[:aeadNonceSize]
	tag := raw[aeadNonceSize : aeadNonceSize+aeadTagSize]
	ct := raw[aeadNonceSize+aeadTagSize:]

	sealed := make([]byte, 0, len(ct)+aeadTagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}
