package identity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/arkova/identity/internal"
	"github.com/arkova/identity/internal/stores"
)

const notifyTimeout = 10 * time.Second

const (
	purposeByteRegistration  byte = 1
	purposeBytePasswordReset byte = 2
)

func purposeByte(purpose ConfirmationPurpose) byte {
	if purpose == PurposePasswordReset {
		return purposeBytePasswordReset
	}
	return purposeByteRegistration
}

// issueConfirmation stores a fresh single-use key record and hands the
// plaintext to the notifier on a separate goroutine. The record is live
// before delivery starts; a delivery failure is logged, never returned.
func (e *Engine) issueConfirmation(ctx context.Context, account Account, purpose ConfirmationPurpose) error {
	key, err := internal.NewConfirmationKey()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	ttl := e.config.Confirmation.RegistrationTTL
	if purpose == PurposePasswordReset {
		ttl = e.config.Confirmation.ResetTTL
	}

	record := &stores.ConfirmationRecord{
		AccountID: account.ID,
		Purpose:   purposeByte(purpose),
		ExpiresAt: time.Now().Add(ttl).Unix(),
	}
	if err := e.confirmations.Save(ctx, internal.HashConfirmationKey(key), record, ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(MetricConfirmationIssued)
	e.emitAudit(ctx, auditEventConfirmationIssued, true, account.ID, nil, func() map[string]string {
		return map[string]string{
			"purpose": string(purpose),
		}
	})

	notification := Notification{
		AccountID: account.ID,
		Email:     account.Email,
		Purpose:   purpose,
		Key:       key,
	}
	go func() {
		notifyCtx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := e.notifier.Notify(notifyCtx, notification); err != nil {
			log.Print("identity: confirmation delivery failed")
			return
		}
		e.emitAudit(notifyCtx, auditEventNotificationDispatched, true, notification.AccountID, nil, func() map[string]string {
			return map[string]string{
				"purpose": string(notification.Purpose),
			}
		})
	}()

	return nil
}

// ConfirmRegistration describes the confirmregistration operation and its observable behavior.
//
// ConfirmRegistration may return an error when input validation, dependency calls, or security checks fail.
// ConfirmRegistration does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Consuming the key enables the account. Missing, expired, already-consumed,
// and wrong-purpose keys are indistinguishable to the caller.
func (e *Engine) ConfirmRegistration(ctx context.Context, key string) error {
	if e == nil || e.confirmations == nil {
		return ErrEngineNotReady
	}

	record, err := e.confirmations.Consume(ctx, internal.HashConfirmationKey(key), purposeByteRegistration)
	if err != nil {
		if errors.Is(err, stores.ErrConfirmationNotFound) {
			e.metricInc(MetricConfirmationFailure)
			e.emitAudit(ctx, auditEventConfirmationFailure, false, "", ErrConfirmationInvalid, nil)
			return ErrConfirmationInvalid
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	account, err := e.users.GetByID(ctx, record.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.metricInc(MetricConfirmationFailure)
			e.emitAudit(ctx, auditEventConfirmationFailure, false, record.AccountID, ErrConfirmationInvalid, nil)
			return ErrConfirmationInvalid
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	account.Enabled = true
	account.Audit.UpdatedAt = time.Now().UTC()
	if _, err := e.users.Update(ctx, account); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(MetricConfirmationConsumed)
	e.emitAudit(ctx, auditEventRegistrationConfirmed, true, account.ID, nil, nil)
	return nil
}

// RequestPasswordReset describes the requestpasswordreset operation and its observable behavior.
//
// RequestPasswordReset may return an error when input validation, dependency calls, or security checks fail.
// RequestPasswordReset does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// An unknown email returns nil exactly like a known one, so the endpoint
// cannot be used to enumerate accounts. Only backend failures surface.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if e == nil || e.confirmations == nil {
		return ErrEngineNotReady
	}

	account, err := e.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.metricInc(MetricPasswordResetRequest)
			e.emitAudit(ctx, auditEventPasswordResetRequest, true, "", nil, func() map[string]string {
				return map[string]string{
					"known": "false",
				}
			})
			return nil
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if err := e.issueConfirmation(ctx, account, PurposePasswordReset); err != nil {
		return err
	}

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, account.ID, nil, func() map[string]string {
		return map[string]string{
			"known": "true",
		}
	})
	return nil
}

// CompletePasswordReset describes the completepasswordreset operation and its observable behavior.
//
// CompletePasswordReset may return an error when input validation, dependency calls, or security checks fail.
// CompletePasswordReset does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Consuming the key replaces the credential, revokes the refresh record, and
// evicts the failure counters, so a reset also clears a pending lockout
// window.
func (e *Engine) CompletePasswordReset(ctx context.Context, key, newPassword string) error {
	if e == nil || e.confirmations == nil {
		return ErrEngineNotReady
	}

	record, err := e.confirmations.Consume(ctx, internal.HashConfirmationKey(key), purposeBytePasswordReset)
	if err != nil {
		if errors.Is(err, stores.ErrConfirmationNotFound) {
			e.metricInc(MetricPasswordResetFailure)
			e.emitAudit(ctx, auditEventPasswordResetFailure, false, "", ErrConfirmationInvalid, nil)
			return ErrConfirmationInvalid
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	account, err := e.users.GetByID(ctx, record.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.metricInc(MetricPasswordResetFailure)
			e.emitAudit(ctx, auditEventPasswordResetFailure, false, record.AccountID, ErrConfirmationInvalid, nil)
			return ErrConfirmationInvalid
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	newHash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		mapped := mapPasswordError(err)
		e.metricInc(MetricPasswordResetFailure)
		e.emitAudit(ctx, auditEventPasswordResetFailure, false, account.ID, mapped, nil)
		return mapped
	}

	if err := e.credentials.SetPasswordHash(ctx, account.ID, newHash); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if err := e.refreshStore.Revoke(ctx, account.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	e.resetAttemptCounters(ctx, account)

	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, auditEventPasswordResetComplete, true, account.ID, nil, nil)
	return nil
}
