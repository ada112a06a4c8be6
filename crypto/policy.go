package crypto

import (
	"errors"
	"fmt"
	"unicode"
)

// Password length bounds enforced by CheckPassword.
const (
	MinPasswordLength = 12
	MaxPasswordLength = 128
)

// ErrPasswordPolicy is wrapped by every CheckPassword failure.
var ErrPasswordPolicy = errors.New("crypto: password violates policy")

// CheckPassword validates a candidate password against the account
// policy: 12 to 128 characters with at least one uppercase letter, one
// lowercase letter, and one digit. It is a pure predicate with no side
// effects and no I/O.
func CheckPassword(password string) error {
	runes := []rune(password)
	if len(runes) < MinPasswordLength {
		return fmt.Errorf("%w: shorter than %d characters", ErrPasswordPolicy, MinPasswordLength)
	}
	if len(runes) > MaxPasswordLength {
		return fmt.Errorf("%w: longer than %d characters", ErrPasswordPolicy, MaxPasswordLength)
	}
	var upper, lower, digit bool
	for _, r := range runes {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper {
		return fmt.Errorf("%w: missing uppercase letter", ErrPasswordPolicy)
	}
	if !lower {
		return fmt.Errorf("%w: missing lowercase letter", ErrPasswordPolicy)
	}
	if !digit {
		return fmt.Errorf("%w: missing digit", ErrPasswordPolicy)
	}
	return nil
}
