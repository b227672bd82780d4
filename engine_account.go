package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arkova/identity/password"
)

const defaultRole = "user"

// Register describes the register operation and its observable behavior.
//
// Register may return an error when input validation, dependency calls, or security checks fail.
// Register does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// The account is created disabled; the registration confirmation key issued
// here must be consumed through [Engine.ConfirmRegistration] before the first
// login. Key delivery happens on a separate goroutine after the record is
// stored and never rolls the registration back.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	if e == nil || e.passwordHash == nil {
		return nil, ErrEngineNotReady
	}

	email := strings.TrimSpace(req.Email)
	username := strings.TrimSpace(req.Username)
	if email == "" || !strings.Contains(email, "@") || username == "" {
		return nil, ErrInvalidCredentials
	}

	hash, err := e.passwordHash.Hash(req.Password)
	if err != nil {
		return nil, mapPasswordError(err)
	}

	role := req.Role
	if role == "" {
		role = defaultRole
	}

	now := time.Now().UTC()
	account, err := e.users.Create(ctx, Account{
		Email:    email,
		Username: username,
		Role:     role,
		Enabled:  false,
		Audit: AuditInfo{
			CreatedAt: now,
			UpdatedAt: now,
		},
	})
	if err != nil {
		if errors.Is(err, ErrAccountExists) {
			e.metricInc(MetricRegistrationDuplicate)
			e.emitAudit(ctx, auditEventRegistration, false, "", ErrAccountExists, func() map[string]string {
				return map[string]string{
					"identifier": normalizeIdentifier(email),
				}
			})
			return nil, ErrAccountExists
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if err := e.credentials.SetPasswordHash(ctx, account.ID, hash); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if err := e.issueConfirmation(ctx, account, PurposeRegistration); err != nil {
		return nil, err
	}

	e.metricInc(MetricRegistrationSuccess)
	e.emitAudit(ctx, auditEventRegistration, true, account.ID, nil, nil)
	return &RegisterResult{AccountID: account.ID}, nil
}

// ChangePassword describes the changepassword operation and its observable behavior.
//
// ChangePassword may return an error when input validation, dependency calls, or security checks fail.
// ChangePassword does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// The refresh record is revoked on success: other sessions must re-login with
// the new password.
func (e *Engine) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error {
	if e == nil || e.passwordHash == nil {
		return ErrEngineNotReady
	}

	account, err := e.users.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	storedHash, err := e.credentials.PasswordHash(ctx, account.ID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	ok, err := e.passwordHash.Verify(oldPassword, storedHash)
	if err != nil || !ok {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, account.ID, ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	if newPassword == oldPassword {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, account.ID, ErrPasswordReuse, nil)
		return ErrPasswordReuse
	}

	newHash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		mapped := mapPasswordError(err)
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, account.ID, mapped, nil)
		return mapped
	}

	if err := e.credentials.SetPasswordHash(ctx, account.ID, newHash); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if err := e.refreshStore.Revoke(ctx, account.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, account.ID, nil, nil)
	return nil
}

func mapPasswordError(err error) error {
	if errors.Is(err, password.ErrPolicy) {
		return ErrPasswordPolicy
	}
	return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
}
