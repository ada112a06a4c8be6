package authcore

import (
	"context"
	"time"
)

// UserRecord is the engine's view of an account. PasswordHash is a PHC
// Argon2id string; MFASecret is the AEAD-sealed TOTP secret (empty when
// MFA was never set up). Raw secrets never appear here.
type UserRecord struct {
	ID           string
	Email        string
	PasswordHash string
	Role         string
	MFAEnabled   bool
	MFASecret    string
	// TOTPLastUsed is the highest time-step counter a code has been
	// accepted for, so a code observed once can never verify again.
	TOTPLastUsed uint64
	CreatedAt    time.Time
	DeletedAt    *time.Time // soft delete; non-nil accounts are invisible to login
}

// BackupCodeRecord is one hashed single-use recovery code.
type BackupCodeRecord struct {
	Hash [32]byte
}

// UserStore is the persistence interface the embedding application
// implements. Implementations return ErrUserNotFound for missing
// records and ErrAccountExists for duplicate emails; any other error is
// treated as infrastructure failure.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	GetUserByID(ctx context.Context, id string) (UserRecord, error)
	CreateUser(ctx context.Context, user UserRecord) (UserRecord, error)
	UpdatePasswordHash(ctx context.Context, userID, hash string) error

	// UpdateMFA stores the sealed secret and the enabled flag together.
	// An empty secret with enabled=false clears the enrollment.
	UpdateMFA(ctx context.Context, userID, sealedSecret string, enabled bool) error

	// UpdateTOTPLastUsed persists the counter of the most recently
	// accepted TOTP code. The engine rejects any code whose counter is
	// not beyond it.
	UpdateTOTPLastUsed(ctx context.Context, userID string, counter uint64) error

	// ReplaceBackupCodes swaps the full set; nil clears it.
	ReplaceBackupCodes(ctx context.Context, userID string, codes []BackupCodeRecord) error

	// ConsumeBackupCode atomically marks the matching code used. It
	// reports false when no unused code matches.
	ConsumeBackupCode(ctx context.Context, userID string, hash [32]byte) (bool, error)
}

// LoginResult is returned by Login and the MFA confirmation calls.
// When MFARequired is set only MFAToken is populated; present it to
// ConfirmMFA or ConfirmMFABackupCode together with the second factor.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int // access token lifetime in seconds
	MFARequired  bool
	MFAToken     string
}

// MFASetup is returned by BeginMFASetup. Secret and QRPNG are shown to
// the user during enrollment and never stored in the clear.
type MFASetup struct {
	Secret       string // base32, for manual entry
	ProvisionURI string
	QRPNG        []byte
}
