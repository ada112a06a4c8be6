package crypto

import (
	"regexp"
	"testing"
)

var backupCodePattern = regexp.MustCompile(`^[0-9A-F]{4}-[0-9A-F]{4}$`)

func TestNewBackupCodes(t *testing.T) {
	codes, err := NewBackupCodes()
	if err != nil {
		t.Fatalf("NewBackupCodes: %v", err)
	}
	if len(codes) != BackupCodeCount {
		t.Fatalf("got %d codes, want %d", len(codes), BackupCodeCount)
	}
	seen := make(map[string]bool, len(codes))
	for _, c := range codes {
		if !backupCodePattern.MatchString(c) {
			t.Errorf("code %q does not match XXXX-XXXX", c)
		}
		if seen[c] {
			t.Errorf("duplicate code %q in one batch", c)
		}
		seen[c] = true
	}
}

func TestCanonicalizeBackupCode(t *testing.T) {
	cases := map[string]string{
		"ab12-cd34":  "AB12CD34",
		"AB12CD34":   "AB12CD34",
		" ab12 cd34": "AB12CD34",
		"AB12-CD34":  "AB12CD34",
	}
	for in, want := range cases {
		if got := CanonicalizeBackupCode(in); got != want {
			t.Errorf("CanonicalizeBackupCode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHashBackupCodeIsUserSalted(t *testing.T) {
	a := HashBackupCode("user-a", "AB12CD34")
	b := HashBackupCode("user-b", "AB12CD34")
	if a == b {
		t.Fatal("same code hashes identically for different users")
	}
	if a != HashBackupCode("user-a", "AB12CD34") {
		t.Fatal("hash is not deterministic")
	}
}
