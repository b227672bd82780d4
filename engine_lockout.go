package identity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// failLogin records a failed attempt, locks the account when the threshold is
// reached, and returns the caller-visible error unchanged.
func (e *Engine) failLogin(ctx context.Context, counterKey string, account Account, cause error, reason string) error {
	reached, err := e.attempts.RecordFailure(ctx, counterKey)
	if err != nil {
		log.Print("identity: attempt counter increment failed")
	}

	if reached && account.ID != "" && !account.Locked {
		account.Locked = true
		account.Audit.UpdatedAt = time.Now().UTC()
		account.Audit.UpdatedBy = "lockout"
		if _, err := e.users.Update(ctx, account); err != nil {
			log.Print("identity: account lock update failed")
		} else {
			e.metricInc(MetricAccountLocked)
			e.emitAudit(ctx, auditEventAccountLocked, true, account.ID, nil, func() map[string]string {
				return map[string]string{
					"trigger": "threshold",
				}
			})
		}
	}

	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, account.ID, cause, func() map[string]string {
		return map[string]string{
			"identifier": counterKey,
			"reason":     reason,
		}
	})
	return cause
}

// LockAccount describes the lockaccount operation and its observable behavior.
//
// LockAccount may return an error when input validation, dependency calls, or security checks fail.
// LockAccount does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Locking also revokes the account's refresh record so an existing session
// cannot outlive the lock.
func (e *Engine) LockAccount(ctx context.Context, accountID string) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}

	account, err := e.users.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	account.Locked = true
	account.Audit.UpdatedAt = time.Now().UTC()
	account.Audit.UpdatedBy = actorFromContext(ctx)
	if _, err := e.users.Update(ctx, account); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if err := e.refreshStore.Revoke(ctx, account.ID); err != nil {
		log.Print("identity: refresh revoke on lock failed")
	}

	e.metricInc(MetricAccountLocked)
	e.emitAudit(ctx, auditEventAccountLocked, true, account.ID, nil, func() map[string]string {
		return map[string]string{
			"trigger": "manual",
		}
	})
	return nil
}

// UnlockAccount describes the unlockaccount operation and its observable behavior.
//
// UnlockAccount may return an error when input validation, dependency calls, or security checks fail.
// UnlockAccount does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// The failure counters for both login identifiers are evicted so the next
// attempt starts from zero.
func (e *Engine) UnlockAccount(ctx context.Context, accountID string) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}

	account, err := e.users.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	account.Locked = false
	account.Audit.UpdatedAt = time.Now().UTC()
	account.Audit.UpdatedBy = actorFromContext(ctx)
	if _, err := e.users.Update(ctx, account); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.resetAttemptCounters(ctx, account)

	e.metricInc(MetricAccountUnlocked)
	e.emitAudit(ctx, auditEventAccountUnlocked, true, account.ID, nil, nil)
	return nil
}

// FailedAttempts describes the failedattempts operation and its observable behavior.
//
// FailedAttempts may return an error when input validation, dependency calls, or security checks fail.
// FailedAttempts does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) FailedAttempts(ctx context.Context, identifier string) (int, error) {
	if e == nil || e.attempts == nil {
		return 0, ErrEngineNotReady
	}
	count, err := e.attempts.Count(ctx, normalizeIdentifier(identifier))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return count, nil
}

func (e *Engine) resetAttemptCounters(ctx context.Context, account Account) {
	for _, identifier := range []string{account.Email, account.Username} {
		if identifier == "" {
			continue
		}
		if err := e.attempts.Reset(ctx, normalizeIdentifier(identifier)); err != nil {
			log.Print("identity: attempt counter reset failed")
		}
	}
}
