package identity

import (
	"context"
	"errors"
	"testing"
)

func TestRegisterIssuesConfirmationAndConfirmEnablesAccount(t *testing.T) {
	env, done := newTestEngine(t, testConfig())
	defer done()

	ctx := context.Background()
	result, err := env.engine.Register(ctx, RegisterRequest{
		Email:    "alice@example.com",
		Username: "alice",
		Password: "correct-horse-battery",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	// The account starts disabled and cannot log in yet.
	if _, err := env.engine.Login(ctx, "alice@example.com", "correct-horse-battery", ""); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled before confirmation, got %v", err)
	}

	key := env.notifier.waitForKey(t)
	if err := env.engine.ConfirmRegistration(ctx, key); err != nil {
		t.Fatalf("ConfirmRegistration failed: %v", err)
	}

	if !env.users.get(result.AccountID).Enabled {
		t.Fatal("expected account enabled after confirmation")
	}
	if _, err := env.engine.Login(ctx, "alice@example.com", "correct-horse-battery", ""); err != nil {
		t.Fatalf("login after confirmation failed: %v", err)
	}
}

func TestConfirmRegistrationKeyIsSingleUse(t *testing.T) {
	env, done := newTestEngine(t, testConfig())
	defer done()

	ctx := context.Background()
	if _, err := env.engine.Register(ctx, RegisterRequest{
		Email:    "alice@example.com",
		Username: "alice",
		Password: "correct-horse-battery",
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	key := env.notifier.waitForKey(t)
	if err := env.engine.ConfirmRegistration(ctx, key); err != nil {
		t.Fatalf("first ConfirmRegistration failed: %v", err)
	}
	if err := env.engine.ConfirmRegistration(ctx, key); !errors.Is(err, ErrConfirmationInvalid) {
		t.Fatalf("expected ErrConfirmationInvalid on second use, got %v", err)
	}
}

func TestConfirmRegistrationRejectsUnknownKey(t *testing.T) {
	env, done := newTestEngine(t, testConfig())
	defer done()

	err := env.engine.ConfirmRegistration(context.Background(), "bogus-key")
	if !errors.Is(err, ErrConfirmationInvalid) {
		t.Fatalf("expected ErrConfirmationInvalid, got %v", err)
	}
}

func TestConfirmRegistrationRejectsResetKey(t *testing.T) {
	env, done := newTestEngine(t, testConfig())
	defer done()

	ctx := context.Background()
	env.seedAccount(t, "u1", "alice@example.com", "alice", "correct-horse-battery")

	if err := env.engine.RequestPasswordReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	key := env.notifier.waitForKey(t)

	// A reset key presented to the registration endpoint is invalid and burned.
	if err := env.engine.ConfirmRegistration(ctx, key); !errors.Is(err, ErrConfirmationInvalid) {
		t.Fatalf("expected ErrConfirmationInvalid for wrong purpose, got %v", err)
	}
	if err := env.engine.CompletePasswordReset(ctx, key, "new-password-456"); !errors.Is(err, ErrConfirmationInvalid) {
		t.Fatalf("expected key to be burned after purpose mismatch, got %v", err)
	}
}

func TestRegisterDuplicateEmailRejected(t *testing.T) {
	env, done := newTestEngine(t, testConfig())
	defer done()

	ctx := context.Background()
	req := RegisterRequest{
		Email:    "alice@example.com",
		Username: "alice",
		Password: "correct-horse-battery",
	}
	if _, err := env.engine.Register(ctx, req); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}

	req.Username = "alice2"
	if _, err := env.engine.Register(ctx, req); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricRegistrationDuplicate]; got != 1 {
		t.Fatalf("expected 1 duplicate registration, got %d", got)
	}
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	env, done := newTestEngine(t, testConfig())
	defer done()

	_, err := env.engine.Register(context.Background(), RegisterRequest{
		Email:    "alice@example.com",
		Username: "alice",
		Password: "short",
	})
	if !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
}

func TestRegisterRejectsMalformedEmail(t *testing.T) {
	env, done := newTestEngine(t, testConfig())
	defer done()

	_, err := env.engine.Register(context.Background(), RegisterRequest{
		Email:    "not-an-email",
		Username: "alice",
		Password: "correct-horse-battery",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestRequestPasswordResetUnknownEmailIsSilent(t *testing.T) {
	env, done := newTestEngine(t, testConfig())
	defer done()

	if err := env.engine.RequestPasswordReset(context.Background(), "ghost@example.com"); err != nil {
		t.Fatalf("expected nil for unknown email, got %v", err)
	}

	env.notifier.mu.Lock()
	delivered := len(env.notifier.delivered)
	env.notifier.mu.Unlock()
	if delivered != 0 {
		t.Fatalf("expected no notification for unknown email, got %d", delivered)
	}
}

func TestCompletePasswordResetReplacesCredentialAndRevokesSession(t *testing.T) {
	env, done := newTestEngine(t, testConfig())
	defer done()

	ctx := context.Background()
	env.seedAccount(t, "u1", "alice@example.com", "alice", "old-password-123")

	login, err := env.engine.Login(ctx, "alice@example.com", "old-password-123", "")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := env.engine.RequestPasswordReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	key := env.notifier.waitForKey(t)

	if err := env.engine.CompletePasswordReset(ctx, key, "new-password-456"); err != nil {
		t.Fatalf("CompletePasswordReset failed: %v", err)
	}

	if _, err := env.engine.Login(ctx, "alice@example.com", "old-password-123", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password must stop working, got %v", err)
	}
	if _, err := env.engine.Login(ctx, "alice@example.com", "new-password-456", ""); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected pre-reset session to be revoked, got %v", err)
	}
}

func TestCompletePasswordResetClearsFailureCounters(t *testing.T) {
	cfg := testConfig()
	env, done := newTestEngine(t, cfg)
	defer done()

	ctx := context.Background()
	env.seedAccount(t, "u1", "alice@example.com", "alice", "old-password-123")

	for i := 0; i < cfg.Lockout.Threshold-1; i++ {
		env.engine.Login(ctx, "alice@example.com", "wrong-password-123", "")
	}

	if err := env.engine.RequestPasswordReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	key := env.notifier.waitForKey(t)
	if err := env.engine.CompletePasswordReset(ctx, key, "new-password-456"); err != nil {
		t.Fatalf("CompletePasswordReset failed: %v", err)
	}

	count, err := env.engine.FailedAttempts(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("FailedAttempts failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected counters cleared by reset, got %d", count)
	}
}
