package crypto

import (
	"strings"
	"testing"
	"time"
)

func TestGenerateSecret(t *testing.T) {
	v := NewTOTP("authcore")
	raw, encoded, err := v.GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	if len(raw) != totpSecretSize {
		t.Fatalf("secret length = %d, want %d", len(raw), totpSecretSize)
	}
	if strings.Contains(encoded, "=") {
		t.Fatalf("base32 secret has padding: %q", encoded)
	}
	back, err := DecodeSecret(encoded)
	if err != nil {
		t.Fatalf("DecodeSecret: %v", err)
	}
	if string(back) != string(raw) {
		t.Fatal("base32 round trip mismatch")
	}
}

func TestVerifyWindow(t *testing.T) {
	v := NewTOTP("authcore")
	secret := []byte("12345678901234567890")
	now := time.Unix(1_700_000_015, 0)

	cases := []struct {
		name string
		at   time.Time
		ok   bool
	}{
		{"current step", now, true},
		{"previous step", now.Add(-30 * time.Second), true},
		{"next step", now.Add(30 * time.Second), true},
		{"two steps back", now.Add(-60 * time.Second), false},
		{"ninety seconds ahead", now.Add(90 * time.Second), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code := v.Code(secret, tc.at)
			ok, _ := v.Verify(secret, code, now)
			if ok != tc.ok {
				t.Fatalf("Verify(%s) = %v, want %v", tc.name, ok, tc.ok)
			}
		})
	}
}

func TestVerifyReturnsMatchedCounter(t *testing.T) {
	v := NewTOTP("authcore")
	secret := []byte("12345678901234567890")
	now := time.Unix(1_700_000_015, 0)

	prev := now.Add(-30 * time.Second)
	ok, counter := v.Verify(secret, v.Code(secret, prev), now)
	if !ok {
		t.Fatal("previous-step code rejected")
	}
	want := uint64(prev.Unix()) / uint64(v.Period)
	if counter != want {
		t.Fatalf("matched counter = %d, want %d", counter, want)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	v := NewTOTP("authcore")
	secret := []byte("12345678901234567890")
	now := time.Now()
	for _, code := range []string{"", "12345", "1234567", "abcdef", "000000"} {
		if code == v.Code(secret, now) {
			continue // astronomically unlikely collision with the real code
		}
		if ok, _ := v.Verify(secret, code, now); ok {
			t.Errorf("code %q accepted", code)
		}
	}
}

func TestProvisionURI(t *testing.T) {
	v := NewTOTP("Acme ID")
	uri := v.ProvisionURI("JBSWY3DPEHPK3PXP", "user@example.com")
	if !strings.HasPrefix(uri, "otpauth://totp/Acme%20ID:user@example.com?") {
		t.Fatalf("unexpected label: %q", uri)
	}
	for _, part := range []string{
		"secret=JBSWY3DPEHPK3PXP",
		"issuer=Acme+ID",
		"algorithm=SHA1",
		"digits=6",
		"period=30",
	} {
		if !strings.Contains(uri, part) {
			t.Errorf("uri missing %q: %s", part, uri)
		}
	}
}
