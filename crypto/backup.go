package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// BackupCodeCount is the number of single-use recovery codes minted when
// MFA enrollment completes.
const BackupCodeCount = 10

const backupCodeHexLen = 8

// NewBackupCodes returns BackupCodeCount fresh codes in display form
// XXXX-XXXX (8 hex characters, uppercase). Callers show them to the user
// exactly once and persist only HashBackupCode output.
func NewBackupCodes() ([]string, error) {
	codes := make([]string, 0, BackupCodeCount)
	buf := make([]byte, backupCodeHexLen/2)
	for i := 0; i < BackupCodeCount; i++ {
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("crypto: backup code generation: %w", err)
		}
		h := strings.ToUpper(hex.EncodeToString(buf))
		codes = append(codes, h[:4]+"-"+h[4:])
	}
	return codes, nil
}

// CanonicalizeBackupCode normalizes user input for hashing: separators
// and whitespace stripped, uppercased. "ab12-cd34" and "AB12CD34" hash
// identically.
func CanonicalizeBackupCode(code string) string {
	code = strings.ReplaceAll(code, "-", "")
	code = strings.ReplaceAll(code, " ", "")
	return strings.ToUpper(code)
}

// HashBackupCode digests a canonical code salted with the owning user's
// id, so equal codes held by different users produce unrelated hashes.
func HashBackupCode(userID, canonical string) [32]byte {
	return sha256.Sum256([]byte(userID + ":" + canonical))
}
