package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/arkova/identity"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrNilMeter is an exported constant or variable used by the identity engine.
	ErrNilMeter = errors.New("nil meter")
	// ErrNilSource is an exported constant or variable used by the identity engine.
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() identity.MetricsSnapshot
	AuditDropped() uint64
}

type counterDef struct {
	id   identity.MetricID
	name string
	help string
}

var counterDefs = []counterDef{
	{id: identity.MetricLoginSuccess, name: "identity_login_success_total", help: "Successful login attempts."},
	{id: identity.MetricLoginFailure, name: "identity_login_failure_total", help: "Failed login attempts."},
	{id: identity.MetricLoginLocked, name: "identity_login_locked_total", help: "Login attempts rejected because the account is locked."},
	{id: identity.MetricRefreshSuccess, name: "identity_refresh_success_total", help: "Successful refresh rotations."},
	{id: identity.MetricRefreshFailure, name: "identity_refresh_failure_total", help: "Failed refresh operations."},
	{id: identity.MetricRefreshReuseDetected, name: "identity_refresh_reuse_detected_total", help: "Rotated-away refresh tokens presented again."},
	{id: identity.MetricLogout, name: "identity_logout_total", help: "Logout operations."},
	{id: identity.MetricAuthenticateSuccess, name: "identity_authenticate_success_total", help: "Successful access-token authentications."},
	{id: identity.MetricAuthenticateFailure, name: "identity_authenticate_failure_total", help: "Failed access-token authentications."},
	{id: identity.MetricMFAEnrollment, name: "identity_mfa_enrollment_total", help: "MFA enrollment starts."},
	{id: identity.MetricMFAEnabled, name: "identity_mfa_enabled_total", help: "Accounts that completed MFA enrollment."},
	{id: identity.MetricMFAFailure, name: "identity_mfa_failure_total", help: "Failed MFA code verifications."},
	{id: identity.MetricMFAReplayAttempt, name: "identity_mfa_replay_attempt_total", help: "MFA codes rejected as replays."},
	{id: identity.MetricRegistrationSuccess, name: "identity_registration_success_total", help: "Successful registrations."},
	{id: identity.MetricRegistrationDuplicate, name: "identity_registration_duplicate_total", help: "Registrations rejected as duplicate."},
	{id: identity.MetricConfirmationIssued, name: "identity_confirmation_issued_total", help: "Issued confirmation keys."},
	{id: identity.MetricConfirmationConsumed, name: "identity_confirmation_consumed_total", help: "Consumed confirmation keys."},
	{id: identity.MetricConfirmationFailure, name: "identity_confirmation_failure_total", help: "Rejected confirmation keys."},
	{id: identity.MetricPasswordChangeSuccess, name: "identity_password_change_success_total", help: "Successful password changes."},
	{id: identity.MetricPasswordChangeFailure, name: "identity_password_change_failure_total", help: "Failed password changes."},
	{id: identity.MetricPasswordResetRequest, name: "identity_password_reset_request_total", help: "Password reset requests."},
	{id: identity.MetricPasswordResetSuccess, name: "identity_password_reset_success_total", help: "Completed password resets."},
	{id: identity.MetricPasswordResetFailure, name: "identity_password_reset_failure_total", help: "Failed password resets."},
	{id: identity.MetricAccountLocked, name: "identity_account_locked_total", help: "Account lock operations."},
	{id: identity.MetricAccountUnlocked, name: "identity_account_unlocked_total", help: "Account unlock operations."},
}

type observedCounter struct {
	id         identity.MetricID
	instrument metric.Int64ObservableCounter
}

// Exporter defines a public type used by identity APIs.
//
// Exporter instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Exporter struct {
	source       metricsSource
	registration metric.Registration
	counters     []observedCounter
	auditDropped metric.Int64ObservableCounter
}

// NewExporter describes the newexporter operation and its observable behavior.
//
// NewExporter may return an error when input validation, dependency calls, or security checks fail.
// NewExporter does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewExporter(meter metric.Meter, engine *identity.Engine) (*Exporter, error) {
	return NewExporterFromSource(meter, engine)
}

// NewExporterFromSource describes the newexporterfromsource operation and its observable behavior.
//
// NewExporterFromSource may return an error when input validation, dependency calls, or security checks fail.
// NewExporterFromSource does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewExporterFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	exporter := &Exporter{
		source:   source,
		counters: make([]observedCounter, 0, len(counterDefs)),
	}

	observables := make([]metric.Observable, 0, len(counterDefs)+1)

	for _, def := range counterDefs {
		ins, err := meter.Int64ObservableCounter(def.name, metric.WithDescription(def.help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", def.name, err)
		}
		exporter.counters = append(exporter.counters, observedCounter{id: def.id, instrument: ins})
		observables = append(observables, ins)
	}

	auditDropped, err := meter.Int64ObservableCounter(
		"identity_audit_dropped_total",
		metric.WithDescription("Dropped audit events due to dispatcher backpressure."),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	exporter.auditDropped = auditDropped
	observables = append(observables, auditDropped)

	registration, err := meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		snapshot := exporter.source.MetricsSnapshot()
		for _, c := range exporter.counters {
			observer.ObserveInt64(c.instrument, int64(snapshot.Counters[c.id]))
		}
		observer.ObserveInt64(exporter.auditDropped, int64(exporter.source.AuditDropped()))
		return nil
	}, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}

	exporter.registration = registration
	return exporter, nil
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
