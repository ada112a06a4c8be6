package authcore

import "errors"

var (
	// ErrInvalidCredentials is the uniform authentication failure. It
	// covers unknown email, wrong password, and deactivated accounts so
	// responses cannot be used to probe which accounts exist.
	ErrInvalidCredentials = errors.New("authcore: invalid credentials")

	// ErrUserNotFound is returned by UserStore implementations when no
	// record matches. The engine folds it into ErrInvalidCredentials on
	// authentication paths.
	ErrUserNotFound = errors.New("authcore: user not found")

	// ErrAccountExists is returned by CreateAccount when the email is
	// already registered.
	ErrAccountExists = errors.New("authcore: account already exists")

	// ErrPasswordPolicy rejects passwords outside the policy: 12-128
	// characters with upper, lower, and digit classes present.
	ErrPasswordPolicy = errors.New("authcore: password violates policy")

	// ErrPasswordReuse rejects a password change to the current password.
	ErrPasswordReuse = errors.New("authcore: new password must differ from current")

	// ErrTokenInvalid is the uniform access-token verification failure.
	ErrTokenInvalid = errors.New("authcore: invalid or expired token")

	// ErrRefreshInvalid covers unknown, expired, and revoked refresh
	// tokens presented to Refresh or Logout.
	ErrRefreshInvalid = errors.New("authcore: invalid refresh token")

	// ErrRefreshReuse signals a consumed refresh token presented again.
	// By the time a caller sees it, the token's whole family has been
	// revoked.
	ErrRefreshReuse = errors.New("authcore: refresh token reuse detected")

	// ErrMFAInvalid is the uniform second-factor failure: bad or expired
	// challenge token, wrong TOTP code, or spent backup code.
	ErrMFAInvalid = errors.New("authcore: invalid mfa credentials")

	// ErrMFANotEnrolled means the operation needs an active MFA
	// enrollment the account does not have.
	ErrMFANotEnrolled = errors.New("authcore: mfa not enrolled")

	// ErrMFAAlreadyEnrolled rejects BeginMFASetup for accounts with MFA
	// already active.
	ErrMFAAlreadyEnrolled = errors.New("authcore: mfa already enrolled")

	// ErrPermissionDenied is returned by Authorize when the role does
	// not hold the permission.
	ErrPermissionDenied = errors.New("authcore: permission denied")

	// ErrBackendUnavailable wraps infrastructure failures from the user
	// store or token store.
	ErrBackendUnavailable = errors.New("authcore: backend unavailable")

	// ErrAuditUnavailable means the audit trail rejected the event. The
	// guarded operation is failed rather than completed unrecorded.
	ErrAuditUnavailable = errors.New("authcore: audit trail unavailable")

	// ErrEngineClosed is returned by operations after Close.
	ErrEngineClosed = errors.New("authcore: engine closed")
)
