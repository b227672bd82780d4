package identity

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess           = "login_success"
	auditEventLoginFailure           = "login_failure"
	auditEventLoginLocked            = "login_locked"
	auditEventRefreshSuccess         = "refresh_success"
	auditEventRefreshInvalid         = "refresh_invalid"
	auditEventRefreshReuseDetected   = "refresh_reuse_detected"
	auditEventLogout                 = "logout"
	auditEventAccountLocked          = "account_locked"
	auditEventAccountUnlocked        = "account_unlocked"
	auditEventRegistration           = "registration"
	auditEventRegistrationConfirmed  = "registration_confirmed"
	auditEventConfirmationIssued     = "confirmation_issued"
	auditEventConfirmationFailure    = "confirmation_failure"
	auditEventMFAEnrollment          = "mfa_enrollment"
	auditEventMFAEnabled             = "mfa_enabled"
	auditEventMFADisabled            = "mfa_disabled"
	auditEventMFAFailure             = "mfa_failure"
	auditEventPasswordChangeSuccess  = "password_change_success"
	auditEventPasswordChangeFailure  = "password_change_failure"
	auditEventPasswordResetRequest   = "password_reset_request"
	auditEventPasswordResetComplete  = "password_reset_complete"
	auditEventPasswordResetFailure   = "password_reset_failure"
	auditEventAuthenticateFailure    = "authenticate_failure"
	auditEventNotificationDispatched = "notification_dispatched"
)

// AuditErrorCode defines a public type used by identity APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrInvalidCredentials  AuditErrorCode = "invalid_credentials"
	auditErrAccountNotFound     AuditErrorCode = "account_not_found"
	auditErrAccountLocked       AuditErrorCode = "account_locked"
	auditErrAccountDisabled     AuditErrorCode = "account_disabled"
	auditErrDuplicate           AuditErrorCode = "duplicate"
	auditErrTokenExpired        AuditErrorCode = "token_expired"
	auditErrTokenMalformed      AuditErrorCode = "token_malformed"
	auditErrTokenInvalid        AuditErrorCode = "token_invalid"
	auditErrTokenNotFound       AuditErrorCode = "token_not_found"
	auditErrMFARequired         AuditErrorCode = "mfa_required"
	auditErrMFAInvalid          AuditErrorCode = "mfa_invalid"
	auditErrConfirmationInvalid AuditErrorCode = "confirmation_invalid"
	auditErrPasswordPolicy      AuditErrorCode = "password_policy"
	auditErrPasswordReuse       AuditErrorCode = "password_reuse"
	auditErrUnavailable         AuditErrorCode = "backend_unavailable"
	auditErrInternal            AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		AccountID: accountID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountNotFound):
		return auditErrAccountNotFound
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrAccountDisabled):
		return auditErrAccountDisabled
	case errors.Is(err, ErrAccountExists):
		return auditErrDuplicate
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenMalformed):
		return auditErrTokenMalformed
	case errors.Is(err, ErrTokenInvalid):
		return auditErrTokenInvalid
	case errors.Is(err, ErrTokenNotFound):
		return auditErrTokenNotFound
	case errors.Is(err, ErrMFARequired):
		return auditErrMFARequired
	case errors.Is(err, ErrMFACodeInvalid),
		errors.Is(err, ErrMFANotEnrolled),
		errors.Is(err, ErrMFAAlreadyEnabled):
		return auditErrMFAInvalid
	case errors.Is(err, ErrConfirmationInvalid):
		return auditErrConfirmationInvalid
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrPasswordReuse):
		return auditErrPasswordReuse
	case errors.Is(err, ErrBackendUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
