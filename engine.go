package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veritasec/authcore/audit"
	"github.com/veritasec/authcore/crypto"
	"github.com/veritasec/authcore/token"
)

// Engine is the orchestration core. It owns no storage of its own; all
// state lives behind the UserStore, the refresh-token store, and the
// audit sink supplied at Build time.
type Engine struct {
	config Config

	users   UserStore
	tokens  token.Store
	jwt     *token.Manager
	hasher  *crypto.Hasher
	totp    *crypto.TOTP
	cipher  *crypto.Cipher
	audit   *audit.Log
	metrics *Metrics

	closeOnce sync.Once
	closed    chan struct{}
}

// Close stops the audit writer and any background sweeper started
// through StartTokenSweeper. Operations after Close fail.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.closed)
		e.audit.Close()
	})
}

func (e *Engine) isClosed() bool {
	select {
	case <-e.closed:
		return true
	default:
		return false
	}
}

// MetricsSnapshot exposes the counters for export.
func (e *Engine) MetricsSnapshot() map[MetricID]uint64 {
	return e.metrics.Snapshot()
}

// AuditTail returns the current audit chain tail, to persist across
// restarts and feed back through AuditConfig.ResumeHash.
func (e *Engine) AuditTail() string {
	return e.audit.LastHash()
}

// Login verifies an email/password pair. Unknown emails, wrong
// passwords, and soft-deleted accounts all fail identically. For
// MFA-enabled accounts no tokens are issued; the result carries a
// short-lived challenge token for ConfirmMFA instead.
func (e *Engine) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if e.isClosed() {
		return nil, ErrEngineClosed
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		e.metrics.Inc(MetricLoginFailure, 1)
		return nil, e.failAudited(ctx, audit.ActionLoginFailed, "", "session", reason("empty_credentials"), ErrInvalidCredentials)
	}

	user, err := e.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metrics.Inc(MetricLoginFailure, 1)
			return nil, e.failAudited(ctx, audit.ActionLoginFailed, "", "session", reason("user_not_found"), ErrInvalidCredentials)
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if user.DeletedAt != nil {
		e.metrics.Inc(MetricLoginFailure, 1)
		return nil, e.failAudited(ctx, audit.ActionLoginFailed, user.ID, "session", reason("account_deleted"), ErrInvalidCredentials)
	}
	if !e.hasher.Verify(password, user.PasswordHash) {
		e.metrics.Inc(MetricLoginFailure, 1)
		return nil, e.failAudited(ctx, audit.ActionLoginFailed, user.ID, "session", reason("password_mismatch"), ErrInvalidCredentials)
	}

	if user.MFAEnabled {
		challenge, err := e.jwt.CreateMFAChallenge(user.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		if aerr := e.emitAudit(ctx, audit.ActionMFAChallenge, audit.OutcomeSuccess, user.ID, "session", nil, nil); aerr != nil {
			return nil, aerr
		}
		e.metrics.Inc(MetricMFARequired, 1)
		return &LoginResult{MFARequired: true, MFAToken: challenge}, nil
	}

	result, err := e.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}
	if aerr := e.emitAudit(ctx, audit.ActionLogin, audit.OutcomeSuccess, user.ID, "session", nil, nil); aerr != nil {
		return nil, aerr
	}
	e.metrics.Inc(MetricLoginSuccess, 1)
	return result, nil
}

// issueTokens mints an access token and opens a fresh refresh-token
// family for the user.
func (e *Engine) issueTokens(ctx context.Context, user UserRecord) (*LoginResult, error) {
	access, err := e.jwt.CreateAccess(user.ID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	secret, err := crypto.NewRefreshSecret()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	now := time.Now()
	rec := &token.Record{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: token.Hash(secret),
		Family:    uuid.NewString(),
		ExpiresAt: now.Add(e.config.Tokens.RefreshTTL),
		CreatedAt: now,
		UserAgent: userAgentFromContext(ctx),
		IP:        clientIPFromContext(ctx),
	}
	if err := e.tokens.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return &LoginResult{
		AccessToken:  access,
		RefreshToken: secret,
		ExpiresIn:    int(e.config.JWT.AccessTTL.Seconds()),
	}, nil
}

// Refresh rotates a refresh token: the presented token is consumed and
// a successor in the same family is returned alongside a fresh access
// token. Presenting an already-consumed token is treated as theft: the
// whole family is revoked and the caller gets ErrRefreshReuse.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	if e.isClosed() {
		return nil, ErrEngineClosed
	}
	if refreshToken == "" {
		e.metrics.Inc(MetricRefreshFailure, 1)
		return nil, e.failAudited(ctx, audit.ActionTokenRefresh, "", "session", reason("empty_token"), ErrRefreshInvalid)
	}

	secret, err := crypto.NewRefreshSecret()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	next := &token.Record{
		ID:        uuid.NewString(),
		TokenHash: token.Hash(secret),
		ExpiresAt: time.Now().Add(e.config.Tokens.RefreshTTL),
		UserAgent: userAgentFromContext(ctx),
		IP:        clientIPFromContext(ctx),
	}
	consumed, err := e.tokens.Rotate(ctx, token.Hash(refreshToken), next)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrReuse):
			e.metrics.Inc(MetricRefreshReuse, 1)
			actor := ""
			if consumed != nil {
				actor = consumed.UserID
			}
			if aerr := e.emitAudit(ctx, audit.ActionTokenReuse, audit.OutcomeDenied, actor, "session", nil, reason("refresh_replayed")); aerr != nil {
				return nil, aerr
			}
			return nil, ErrRefreshReuse
		case errors.Is(err, token.ErrNotFound), errors.Is(err, token.ErrExpired):
			e.metrics.Inc(MetricRefreshFailure, 1)
			return nil, e.failAudited(ctx, audit.ActionTokenRefresh, "", "session", reason("unknown_or_expired"), ErrRefreshInvalid)
		default:
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}

	user, err := e.users.GetUserByID(ctx, consumed.UserID)
	switch {
	case err == nil && user.DeletedAt == nil:
	case err == nil, errors.Is(err, ErrUserNotFound):
		// The account vanished under a live session; kill the family.
		_, _ = e.tokens.RevokeFamily(ctx, consumed.Family)
		e.metrics.Inc(MetricRefreshFailure, 1)
		return nil, e.failAudited(ctx, audit.ActionTokenRefresh, consumed.UserID, "session", reason("account_deleted"), ErrRefreshInvalid)
	default:
		// Infrastructure failure, not an auth outcome; the family is
		// left intact.
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	access, err := e.jwt.CreateAccess(user.ID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if aerr := e.emitAudit(ctx, audit.ActionTokenRefresh, audit.OutcomeSuccess, user.ID, "session", nil, nil); aerr != nil {
		return nil, aerr
	}
	e.metrics.Inc(MetricRefreshSuccess, 1)
	return &LoginResult{
		AccessToken:  access,
		RefreshToken: secret,
		ExpiresIn:    int(e.config.JWT.AccessTTL.Seconds()),
	}, nil
}

// VerifyAccess validates an access token and returns the subject and
// role. Every failure is ErrTokenInvalid.
func (e *Engine) VerifyAccess(raw string) (userID, role string, err error) {
	claims, err := e.jwt.ParseAccess(raw)
	if err != nil {
		return "", "", ErrTokenInvalid
	}
	return claims.UserID(), claims.Role, nil
}

// Logout revokes the family of the presented refresh token, ending that
// session chain on every device that holds a descendant of it.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e.isClosed() {
		return ErrEngineClosed
	}
	rec, err := e.tokens.Get(ctx, token.Hash(refreshToken))
	if err != nil {
		if errors.Is(err, token.ErrNotFound) {
			return e.failAudited(ctx, audit.ActionLogout, "", "session", reason("unknown_token"), ErrRefreshInvalid)
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if _, err := e.tokens.RevokeFamily(ctx, rec.Family); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if aerr := e.emitAudit(ctx, audit.ActionLogout, audit.OutcomeSuccess, rec.UserID, "session", nil, nil); aerr != nil {
		return aerr
	}
	e.metrics.Inc(MetricLogout, 1)
	return nil
}

// LogoutAll revokes every refresh-token family the user owns. Access
// tokens already issued stay valid until expiry; keep access TTLs short.
func (e *Engine) LogoutAll(ctx context.Context, userID string) error {
	if e.isClosed() {
		return ErrEngineClosed
	}
	n, err := e.tokens.RevokeAllForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if aerr := e.emitAudit(ctx, audit.ActionLogout, audit.OutcomeSuccess, userID, "session", nil, map[string]int{"revoked": n}); aerr != nil {
		return aerr
	}
	e.metrics.Inc(MetricLogoutAll, 1)
	return nil
}

// CreateAccount registers a user after policy-checking the password.
// Role defaults to Account.DefaultRole when empty.
func (e *Engine) CreateAccount(ctx context.Context, email, password, role string) (UserRecord, error) {
	if e.isClosed() {
		return UserRecord{}, ErrEngineClosed
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return UserRecord{}, errors.New("authcore: invalid email")
	}
	if err := crypto.CheckPassword(password); err != nil {
		return UserRecord{}, fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
	}
	hash, err := e.hasher.Hash(password)
	if err != nil {
		return UserRecord{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if role == "" {
		role = e.config.Account.DefaultRole
	}
	user, err := e.users.CreateUser(ctx, UserRecord{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		if errors.Is(err, ErrAccountExists) {
			return UserRecord{}, ErrAccountExists
		}
		return UserRecord{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if aerr := e.emitAudit(ctx, audit.ActionCreate, audit.OutcomeSuccess, user.ID, "user", nil, map[string]string{"email": user.Email, "role": user.Role}); aerr != nil {
		return UserRecord{}, aerr
	}
	e.metrics.Inc(MetricAccountCreated, 1)
	return user, nil
}

// ChangePassword re-verifies the current password, enforces the policy
// on the new one, rejects reuse of the current password, and revokes
// every session after the update.
func (e *Engine) ChangePassword(ctx context.Context, userID, current, next string) error {
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
	if !e.hasher.Verify(current, user.PasswordHash) {
		e.metrics.Inc(MetricPasswordChangeFailed, 1)
		return e.failAudited(ctx, audit.ActionUpdate, userID, "user/password", reason("password_mismatch"), ErrInvalidCredentials)
	}
	if err := crypto.CheckPassword(next); err != nil {
		e.metrics.Inc(MetricPasswordChangeFailed, 1)
		return e.failAudited(ctx, audit.ActionUpdate, userID, "user/password", reason("policy_violation"), fmt.Errorf("%w: %v", ErrPasswordPolicy, err))
	}
	if next == current || e.hasher.Verify(next, user.PasswordHash) {
		e.metrics.Inc(MetricPasswordChangeFailed, 1)
		return e.failAudited(ctx, audit.ActionUpdate, userID, "user/password", reason("password_reuse"), ErrPasswordReuse)
	}
	hash, err := e.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if err := e.users.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	// Credential change invalidates every open session.
	if _, err := e.tokens.RevokeAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if aerr := e.emitAudit(ctx, audit.ActionUpdate, audit.OutcomeSuccess, userID, "user/password", nil, nil); aerr != nil {
		return aerr
	}
	e.metrics.Inc(MetricPasswordChanged, 1)
	return nil
}

// SweepExpiredTokens garbage-collects refresh records past expiry plus
// the retention window. Expired tokens are already unusable; this only
// reclaims storage.
func (e *Engine) SweepExpiredTokens(ctx context.Context) (int, error) {
	n, err := e.tokens.SweepExpired(ctx, e.config.Tokens.Retention)
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	e.metrics.Inc(MetricTokensSwept, uint64(n))
	return n, nil
}

// StartTokenSweeper runs SweepExpiredTokens on the interval until the
// context is cancelled or the engine closes. Sweep errors are dropped;
// the next tick retries.
func (e *Engine) StartTokenSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-e.closed:
				return
			case <-ticker.C:
				_, _ = e.SweepExpiredTokens(ctx)
			}
		}
	}()
}
