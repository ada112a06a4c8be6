package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/veritasec/authcore/audit"
	"github.com/veritasec/authcore/crypto"
)

// ConfirmMFA completes a login that Login answered with MFARequired.
// mfaToken is the challenge token from the login result; code is the
// current TOTP code. Failures are uniform across bad challenge, bad
// code, and accounts without MFA.
func (e *Engine) ConfirmMFA(ctx context.Context, mfaToken, code string) (*LoginResult, error) {
	if e.isClosed() {
		return nil, ErrEngineClosed
	}
	user, err := e.resolveChallenge(ctx, mfaToken)
	if err != nil {
		return nil, err
	}
	secret, err := e.openMFASecret(user)
	if err != nil {
		return nil, err
	}
	ok, counter := e.totp.Verify(secret, code, time.Now())
	if !ok {
		e.metrics.Inc(MetricMFAFailure, 1)
		return nil, e.failAudited(ctx, audit.ActionLoginFailed, user.ID, "session", reason("totp_mismatch"), ErrMFAInvalid)
	}
	if counter <= user.TOTPLastUsed {
		// Correct code, but already spent in this or an earlier step.
		e.metrics.Inc(MetricMFAFailure, 1)
		return nil, e.failAudited(ctx, audit.ActionLoginFailed, user.ID, "session", reason("totp_replayed"), ErrMFAInvalid)
	}
	if err := e.users.UpdateTOTPLastUsed(ctx, user.ID, counter); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return e.completeMFALogin(ctx, user, "totp")
}

// ConfirmMFABackupCode completes an MFA login with a single-use
// recovery code instead of a TOTP code. The matched code is consumed
// atomically; a second presentation fails.
func (e *Engine) ConfirmMFABackupCode(ctx context.Context, mfaToken, code string) (*LoginResult, error) {
	if e.isClosed() {
		return nil, ErrEngineClosed
	}
	user, err := e.resolveChallenge(ctx, mfaToken)
	if err != nil {
		return nil, err
	}
	canonical := crypto.CanonicalizeBackupCode(code)
	hash := crypto.HashBackupCode(user.ID, canonical)
	used, err := e.users.ConsumeBackupCode(ctx, user.ID, hash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if !used {
		e.metrics.Inc(MetricMFAFailure, 1)
		return nil, e.failAudited(ctx, audit.ActionLoginFailed, user.ID, "session", reason("backup_code_mismatch"), ErrMFAInvalid)
	}
	e.metrics.Inc(MetricBackupCodeUsed, 1)
	return e.completeMFALogin(ctx, user, "backup_code")
}

// resolveChallenge validates the challenge token and loads its account,
// collapsing every failure into ErrMFAInvalid.
func (e *Engine) resolveChallenge(ctx context.Context, mfaToken string) (UserRecord, error) {
	userID, err := e.jwt.ParseMFAChallenge(mfaToken)
	if err != nil {
		e.metrics.Inc(MetricMFAFailure, 1)
		return UserRecord{}, e.failAudited(ctx, audit.ActionLoginFailed, "", "session", reason("challenge_invalid"), ErrMFAInvalid)
	}
	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metrics.Inc(MetricMFAFailure, 1)
			return UserRecord{}, e.failAudited(ctx, audit.ActionLoginFailed, userID, "session", reason("user_not_found"), ErrMFAInvalid)
		}
		return UserRecord{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if user.DeletedAt != nil || !user.MFAEnabled {
		e.metrics.Inc(MetricMFAFailure, 1)
		return UserRecord{}, e.failAudited(ctx, audit.ActionLoginFailed, user.ID, "session", reason("mfa_unavailable"), ErrMFAInvalid)
	}
	return user, nil
}

func (e *Engine) completeMFALogin(ctx context.Context, user UserRecord, method string) (*LoginResult, error) {
	result, err := e.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}
	if aerr := e.emitAudit(ctx, audit.ActionLogin, audit.OutcomeSuccess, user.ID, "session", nil, map[string]string{"mfa": method}); aerr != nil {
		return nil, aerr
	}
	e.metrics.Inc(MetricMFASuccess, 1)
	e.metrics.Inc(MetricLoginSuccess, 1)
	return result, nil
}

// openMFASecret unseals the stored TOTP secret.
func (e *Engine) openMFASecret(user UserRecord) ([]byte, error) {
	if user.MFASecret == "" {
		return nil, ErrMFANotEnrolled
	}
	secret, err := e.cipher.Decrypt(user.MFASecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return secret, nil
}

// BeginMFASetup generates a TOTP secret for the account and stores it
// sealed but not yet enabled. The returned setup material (base32
// secret, provisioning URI, QR PNG) is shown to the user exactly once;
// enrollment only activates after CompleteMFASetup proves the
// authenticator works.
func (e *Engine) BeginMFASetup(ctx context.Context, userID string) (*MFASetup, error) {
	if e.isClosed() {
		return nil, ErrEngineClosed
	}
	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if user.MFAEnabled {
		return nil, ErrMFAAlreadyEnrolled
	}

	raw, encoded, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	sealed, err := e.cipher.Encrypt(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if err := e.users.UpdateMFA(ctx, userID, sealed, false); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	uri := e.totp.ProvisionURI(encoded, user.Email)
	png, err := qrcode.Encode(uri, qrcode.Medium, e.config.TOTP.QRSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if aerr := e.emitAudit(ctx, audit.ActionMFAEnroll, audit.OutcomeSuccess, userID, "mfa/secret", nil, map[string]bool{"enabled": false}); aerr != nil {
		return nil, aerr
	}
	return &MFASetup{Secret: encoded, ProvisionURI: uri, QRPNG: png}, nil
}

// CompleteMFASetup activates MFA after the user proves possession of
// the enrolled authenticator with one valid code. It mints the backup
// codes, returned in the clear exactly once and stored only as salted
// hashes.
func (e *Engine) CompleteMFASetup(ctx context.Context, userID, code string) ([]string, error) {
	if e.isClosed() {
		return nil, ErrEngineClosed
	}
	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if user.MFAEnabled {
		return nil, ErrMFAAlreadyEnrolled
	}
	if user.MFASecret == "" {
		return nil, ErrMFANotEnrolled
	}
	secret, err := e.openMFASecret(user)
	if err != nil {
		return nil, err
	}
	ok, counter := e.totp.Verify(secret, code, time.Now())
	if !ok {
		e.metrics.Inc(MetricMFAFailure, 1)
		return nil, e.failAudited(ctx, audit.ActionMFAEnroll, userID, "mfa/secret", reason("totp_mismatch"), ErrMFAInvalid)
	}
	if counter <= user.TOTPLastUsed {
		e.metrics.Inc(MetricMFAFailure, 1)
		return nil, e.failAudited(ctx, audit.ActionMFAEnroll, userID, "mfa/secret", reason("totp_replayed"), ErrMFAInvalid)
	}
	if err := e.users.UpdateTOTPLastUsed(ctx, userID, counter); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	codes, err := crypto.NewBackupCodes()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	records := make([]BackupCodeRecord, 0, len(codes))
	for _, c := range codes {
		records = append(records, BackupCodeRecord{
			Hash: crypto.HashBackupCode(userID, crypto.CanonicalizeBackupCode(c)),
		})
	}
	if err := e.users.ReplaceBackupCodes(ctx, userID, records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if err := e.users.UpdateMFA(ctx, userID, user.MFASecret, true); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if aerr := e.emitAudit(ctx, audit.ActionMFAEnroll, audit.OutcomeSuccess, userID, "mfa/secret", nil, map[string]bool{"enabled": true}); aerr != nil {
		return nil, aerr
	}
	e.metrics.Inc(MetricMFAEnrolled, 1)
	return codes, nil
}

// DisableMFA turns the second factor off after re-verifying the
// account password. The sealed secret and every backup code are cleared
// and all sessions revoked, since the account's security posture just
// dropped.
func (e *Engine) DisableMFA(ctx context.Context, userID, password string) error {
	if e.isClosed() {
		return ErrEngineClosed
	}
	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if !user.MFAEnabled {
		return ErrMFANotEnrolled
	}
	if !e.hasher.Verify(password, user.PasswordHash) {
		return e.failAudited(ctx, audit.ActionMFADisable, userID, "mfa/secret", reason("password_mismatch"), ErrInvalidCredentials)
	}
	if err := e.users.UpdateMFA(ctx, userID, "", false); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if err := e.users.ReplaceBackupCodes(ctx, userID, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if _, err := e.tokens.RevokeAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if aerr := e.emitAudit(ctx, audit.ActionMFADisable, audit.OutcomeSuccess, userID, "mfa/secret", map[string]bool{"enabled": true}, map[string]bool{"enabled": false}); aerr != nil {
		return aerr
	}
	e.metrics.Inc(MetricMFADisabled, 1)
	return nil
}
