package identity

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// EnrollMFA describes the enrollmfa operation and its observable behavior.
//
// EnrollMFA may return an error when input validation, dependency calls, or security checks fail.
// EnrollMFA does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Enrollment stores a pending secret; MFA is not required for login until the
// account proves possession through [Engine.ConfirmMFAEnrollment]. Calling
// EnrollMFA again before confirmation replaces the pending secret.
func (e *Engine) EnrollMFA(ctx context.Context, accountID string) (*MFAEnrollment, error) {
	if e == nil || e.totp == nil {
		return nil, ErrEngineNotReady
	}

	account, err := e.users.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if account.MFAEnabled {
		return nil, ErrMFAAlreadyEnabled
	}

	raw, encoded, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	account.MFASecret = raw
	account.MFALastStep = 0
	account.Audit.UpdatedAt = time.Now().UTC()
	if _, err := e.users.Update(ctx, account); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(MetricMFAEnrollment)
	e.emitAudit(ctx, auditEventMFAEnrollment, true, account.ID, nil, nil)

	return &MFAEnrollment{
		SecretBase32: encoded,
		ProvisionURI: e.totp.ProvisionURI(encoded, account.Email),
	}, nil
}

// ConfirmMFAEnrollment describes the confirmmfaenrollment operation and its observable behavior.
//
// ConfirmMFAEnrollment may return an error when input validation, dependency calls, or security checks fail.
// ConfirmMFAEnrollment does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// The first valid code flips the account to MFA-enabled and mints a fresh
// token pair. A wrong code leaves the pending secret in place.
func (e *Engine) ConfirmMFAEnrollment(ctx context.Context, accountID, code string) (*LoginResult, error) {
	if e == nil || e.totp == nil {
		return nil, ErrEngineNotReady
	}

	account, err := e.users.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if err := e.verifyCodeAgainstAccount(&account, code); err != nil {
		e.emitAudit(ctx, auditEventMFAFailure, false, account.ID, err, nil)
		return nil, err
	}

	enabledNow := !account.MFAEnabled
	account.MFAEnabled = true
	account.Audit.UpdatedAt = time.Now().UTC()
	updated, err := e.users.Update(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	account = updated

	if enabledNow {
		e.metricInc(MetricMFAEnabled)
		e.emitAudit(ctx, auditEventMFAEnabled, true, account.ID, nil, nil)
	}

	return e.issueTokens(ctx, account)
}

// DisableMFA describes the disablemfa operation and its observable behavior.
//
// DisableMFA may return an error when input validation, dependency calls, or security checks fail.
// DisableMFA does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// A current code is required so a hijacked session cannot silently strip the
// second factor.
func (e *Engine) DisableMFA(ctx context.Context, accountID, code string) error {
	if e == nil || e.totp == nil {
		return ErrEngineNotReady
	}

	account, err := e.users.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if !account.MFAEnabled {
		return ErrMFANotEnrolled
	}

	if err := e.verifyCodeAgainstAccount(&account, code); err != nil {
		e.emitAudit(ctx, auditEventMFAFailure, false, account.ID, err, nil)
		return err
	}

	account.MFAEnabled = false
	account.MFASecret = nil
	account.MFALastStep = 0
	account.Audit.UpdatedAt = time.Now().UTC()
	if _, err := e.users.Update(ctx, account); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.emitAudit(ctx, auditEventMFADisabled, true, account.ID, nil, nil)
	return nil
}

// verifyCodeAgainstAccount checks the code against the account's secret and
// advances the last-accepted step on the in-memory record. The caller is
// responsible for persisting the account afterwards; a code at or below the
// stored step is rejected as a replay.
func (e *Engine) verifyCodeAgainstAccount(account *Account, code string) error {
	if len(account.MFASecret) == 0 {
		return ErrMFANotEnrolled
	}

	ok, step, err := e.totp.VerifyCode(account.MFASecret, code, time.Now())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if !ok {
		e.metricInc(MetricMFAFailure)
		return ErrMFACodeInvalid
	}
	if step <= account.MFALastStep {
		e.metricInc(MetricMFAReplayAttempt)
		return ErrMFACodeInvalid
	}

	account.MFALastStep = step
	return nil
}
