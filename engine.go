package identity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/arkova/identity/internal"
	"github.com/arkova/identity/internal/limiters"
	"github.com/arkova/identity/internal/stores"
	"github.com/arkova/identity/password"
	"github.com/arkova/identity/token"
)

// Engine defines a public type used by identity APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config        Config
	users         UserStore
	credentials   CredentialStore
	notifier      Notifier
	attempts      *limiters.AttemptTracker
	refreshStore  *stores.RefreshStore
	confirmations *stores.ConfirmationStore
	audit         *auditDispatcher
	metrics       *Metrics
	passwordHash  *password.Argon2
	totp          *totpManager
	codec         *token.Codec
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped may return an error when input validation, dependency calls, or security checks fail.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditDroppedByType describes the auditdroppedbytype operation and its observable behavior.
//
// AuditDroppedByType may return an error when input validation, dependency calls, or security checks fail.
// AuditDroppedByType does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDroppedByType() map[string]uint64 {
	if e == nil || e.audit == nil {
		return nil
	}
	return e.audit.DroppedByType()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters: map[MetricID]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Login describes the login operation and its observable behavior.
//
// Login may return an error when input validation, dependency calls, or security checks fail.
// Login does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// The identifier may be an email address or a username. mfaCode is required
// only for accounts with MFA enabled. Failed attempts count toward lockout;
// a locked account is rejected before credential verification so the outcome
// is identical for correct and incorrect passwords.
func (e *Engine) Login(ctx context.Context, identifier, passphrase, mfaCode string) (*LoginResult, error) {
	if e == nil || e.passwordHash == nil {
		return nil, ErrEngineNotReady
	}

	counterKey := normalizeIdentifier(identifier)
	if passphrase == "" {
		return nil, e.failLogin(ctx, counterKey, Account{}, ErrInvalidCredentials, "empty_password")
	}

	account, err := e.lookupByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, e.failLogin(ctx, counterKey, Account{}, ErrInvalidCredentials, "account_not_found")
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if account.Locked {
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, auditEventLoginLocked, false, account.ID, ErrAccountLocked, func() map[string]string {
			return map[string]string{
				"identifier": counterKey,
			}
		})
		return nil, ErrAccountLocked
	}
	if !account.Enabled {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, account.ID, ErrAccountDisabled, func() map[string]string {
			return map[string]string{
				"identifier": counterKey,
				"reason":     "account_disabled",
			}
		})
		return nil, ErrAccountDisabled
	}

	storedHash, err := e.credentials.PasswordHash(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	ok, err := e.passwordHash.Verify(passphrase, storedHash)
	if err != nil || !ok {
		return nil, e.failLogin(ctx, counterKey, account, ErrInvalidCredentials, "password_mismatch")
	}
	passphrase = ""

	mfaUsed := false
	if account.MFAEnabled {
		if strings.TrimSpace(mfaCode) == "" {
			e.emitAudit(ctx, auditEventLoginFailure, false, account.ID, ErrMFARequired, func() map[string]string {
				return map[string]string{
					"identifier": counterKey,
					"reason":     "mfa_required",
				}
			})
			return nil, ErrMFARequired
		}
		if err := e.verifyCodeAgainstAccount(&account, mfaCode); err != nil {
			return nil, e.failLogin(ctx, counterKey, account, err, "mfa_invalid")
		}
		mfaUsed = true
	}

	if err := e.attempts.Reset(ctx, counterKey); err != nil {
		log.Print("identity: attempt counter reset failed")
	}

	account.LastLogin = time.Now().UTC()
	account.Audit.UpdatedAt = account.LastLogin
	if updated, err := e.users.Update(ctx, account); err == nil {
		account = updated
	} else if mfaUsed {
		// The accepted TOTP step must be persisted before tokens are minted,
		// otherwise the code could be replayed.
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	} else {
		log.Print("identity: last login update failed")
	}

	result, err := e.issueTokens(ctx, account)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, account.ID, nil, func() map[string]string {
		return map[string]string{
			"identifier": counterKey,
		}
	})
	return result, nil
}

// Authenticate describes the authenticate operation and its observable behavior.
//
// Authenticate may return an error when input validation, dependency calls, or security checks fail.
// Authenticate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// The account record is re-fetched on every call so disable and lock
// decisions take effect before the token expires. Role and Authorities in
// the result come from the live record, not the token claims.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*AuthResult, error) {
	if e == nil || e.codec == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.codec.Parse(accessToken, token.KindAccess)
	if err != nil {
		mapped := mapTokenError(err)
		e.metricInc(MetricAuthenticateFailure)
		e.emitAudit(ctx, auditEventAuthenticateFailure, false, "", mapped, nil)
		return nil, mapped
	}

	account, err := e.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.metricInc(MetricAuthenticateFailure)
			e.emitAudit(ctx, auditEventAuthenticateFailure, false, claims.Subject, ErrTokenInvalid, nil)
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if statusErr := accountStatusError(account); statusErr != nil {
		e.metricInc(MetricAuthenticateFailure)
		e.emitAudit(ctx, auditEventAuthenticateFailure, false, account.ID, statusErr, nil)
		return nil, statusErr
	}

	e.metricInc(MetricAuthenticateSuccess)
	return &AuthResult{
		AccountID:   account.ID,
		Email:       account.Email,
		Role:        account.Role,
		Authorities: account.Authorities,
	}, nil
}

// Refresh describes the refresh operation and its observable behavior.
//
// Refresh may return an error when input validation, dependency calls, or security checks fail.
// Refresh does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Rotation is atomic: of two concurrent calls presenting the same token,
// exactly one wins. The loser, and any later replay of a rotated-away token,
// observes [ErrTokenNotFound].
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	if e == nil || e.codec == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.codec.Parse(refreshToken, token.KindRefresh)
	if err != nil {
		mapped := mapTokenError(err)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", mapped, nil)
		return nil, mapped
	}

	secret, err := internal.DecodeRefreshSecret(claims.ID)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, claims.Subject, ErrTokenMalformed, nil)
		return nil, ErrTokenMalformed
	}

	nextSecret, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	rotateErr := e.refreshStore.Rotate(
		ctx,
		claims.Subject,
		internal.HashRefreshSecret(secret),
		internal.HashRefreshSecret(nextSecret),
		e.config.Token.RefreshTTL,
	)
	if rotateErr != nil {
		switch {
		case errors.Is(rotateErr, stores.ErrRefreshMismatch):
			// The presented secret was rotated away earlier: either a replay
			// of a consumed token or the losing side of a concurrent refresh.
			e.metricInc(MetricRefreshReuseDetected)
			e.emitAudit(ctx, auditEventRefreshReuseDetected, false, claims.Subject, ErrTokenNotFound, nil)
			return nil, ErrTokenNotFound
		case errors.Is(rotateErr, stores.ErrRefreshNotFound):
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, claims.Subject, ErrTokenNotFound, nil)
			return nil, ErrTokenNotFound
		case errors.Is(rotateErr, stores.ErrRefreshExpired):
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, claims.Subject, ErrTokenExpired, nil)
			return nil, ErrTokenExpired
		default:
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, rotateErr)
		}
	}

	account, err := e.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			_ = e.refreshStore.Revoke(ctx, claims.Subject)
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, claims.Subject, ErrTokenInvalid, nil)
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if statusErr := accountStatusError(account); statusErr != nil {
		_ = e.refreshStore.Revoke(ctx, account.ID)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, account.ID, statusErr, nil)
		return nil, statusErr
	}

	result, err := e.mintPair(account, nextSecret)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, account.ID, nil, nil)
	return result, nil
}

// Logout describes the logout operation and its observable behavior.
//
// Logout may return an error when input validation, dependency calls, or security checks fail.
// Logout does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil || e.codec == nil {
		return ErrEngineNotReady
	}

	claims, err := e.codec.Parse(refreshToken, token.KindRefresh)
	if err != nil {
		return mapTokenError(err)
	}

	if err := e.refreshStore.Revoke(ctx, claims.Subject); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, claims.Subject, nil, nil)
	return nil
}

// RevokeRefresh describes the revokerefresh operation and its observable behavior.
//
// RevokeRefresh may return an error when input validation, dependency calls, or security checks fail.
// RevokeRefresh does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) RevokeRefresh(ctx context.Context, accountID string) error {
	if e == nil || e.refreshStore == nil {
		return ErrEngineNotReady
	}
	if err := e.refreshStore.Revoke(ctx, accountID); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// issueTokens writes a fresh refresh record (replacing any prior one) and
// mints the matching token pair.
func (e *Engine) issueTokens(ctx context.Context, account Account) (*LoginResult, error) {
	secret, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if err := e.refreshStore.Issue(ctx, account.ID, internal.HashRefreshSecret(secret), e.config.Token.RefreshTTL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	return e.mintPair(account, secret)
}

func (e *Engine) mintPair(account Account, secret [internal.RefreshSecretSize]byte) (*LoginResult, error) {
	access, err := e.codec.Mint(account.ID, account.Authorities, account.Role, token.KindAccess, "")
	if err != nil {
		return nil, err
	}

	refresh, err := e.codec.Mint(account.ID, nil, "", token.KindRefresh, internal.EncodeRefreshSecret(secret))
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		AccessToken:  access,
		RefreshToken: refresh,
		Account:      account,
	}, nil
}

func (e *Engine) lookupByIdentifier(ctx context.Context, identifier string) (Account, error) {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return Account{}, ErrAccountNotFound
	}
	if strings.Contains(trimmed, "@") {
		return e.users.GetByEmail(ctx, trimmed)
	}
	return e.users.GetByUsername(ctx, trimmed)
}

func accountStatusError(account Account) error {
	if account.Locked {
		return ErrAccountLocked
	}
	if !account.Enabled {
		return ErrAccountDisabled
	}
	return nil
}

func mapTokenError(err error) error {
	switch {
	case errors.Is(err, token.ErrExpired):
		return ErrTokenExpired
	case errors.Is(err, token.ErrMalformed):
		return ErrTokenMalformed
	default:
		return ErrTokenInvalid
	}
}

func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
