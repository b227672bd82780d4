package identity

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

func (s *countingSink) Count() int64 {
	return s.count.Load()
}

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{
		gate: make(chan struct{}),
	}
}

func (s *gateSink) Emit(context.Context, AuditEvent) {
	<-s.gate
}

func buildAuditTestEngine(t *testing.T, cfg Config, sink AuditSink) (*testEnv, func()) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	env := &testEnv{
		users:       newMemoryUserStore(),
		credentials: newMemoryCredentialStore(),
		notifier:    newCaptureNotifier(),
		redis:       mr,
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(env.users).
		WithCredentialStore(env.credentials).
		WithNotifier(env.notifier).
		WithAuditSink(sink).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}
	env.engine = engine

	return env, func() {
		engine.Close()
		mr.Close()
	}
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = false

	sink := &countingSink{}
	env, done := buildAuditTestEngine(t, cfg, sink)
	defer done()

	env.seedAccount(t, "u1", "alice@example.com", "alice", "correct-horse-battery")
	_, _ = env.engine.Login(WithClientIP(context.Background(), "203.0.113.1"), "alice", "wrong-password-123", "")
	time.Sleep(30 * time.Millisecond)

	if sink.Count() != 0 {
		t.Fatalf("expected no audit sink calls when disabled, got %d", sink.Count())
	}
}

func TestAuditEnabledSinkReceivesEventWithFields(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 16
	cfg.Audit.DropIfFull = true

	sink := NewChannelSink(8)
	env, done := buildAuditTestEngine(t, cfg, sink)
	defer done()

	env.seedAccount(t, "u1", "alice@example.com", "alice", "correct-horse-battery")

	ctx := WithUserAgent(WithClientIP(context.Background(), "198.51.100.33"), "test-agent/1.0")
	_, _ = env.engine.Login(ctx, "alice", "super-secret-password", "")

	select {
	case ev := <-sink.Events():
		if ev.EventType != auditEventLoginFailure {
			t.Fatalf("expected login_failure, got %q", ev.EventType)
		}
		if ev.IP != "198.51.100.33" {
			t.Fatalf("expected IP 198.51.100.33, got %q", ev.IP)
		}
		if ev.UserAgent != "test-agent/1.0" {
			t.Fatalf("expected user agent, got %q", ev.UserAgent)
		}
		if ev.Error != string(auditErrInvalidCredentials) {
			t.Fatalf("expected invalid_credentials error code, got %q", ev.Error)
		}
		for _, v := range ev.Metadata {
			if v == "super-secret-password" {
				t.Fatal("sensitive password leaked in metadata")
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected audit event to be received")
	}
}

func TestAuditBufferFullDropIfFullTrueDoesNotBlock(t *testing.T) {
	sink := newGateSink()
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: true,
	}, sink)
	defer func() {
		close(sink.gate)
		dispatcher.Close()
	}()

	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e1"})
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "overflow"})

	start := time.Now()
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "overflow"})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("expected non-blocking emit when DropIfFull is true")
	}
	if dispatcher.Dropped() == 0 {
		t.Fatal("expected dropped counter to increment when queue is full")
	}
	if got := dispatcher.DroppedByType()["overflow"]; got == 0 {
		t.Fatal("expected drops attributed to the overflowing event type")
	}
}

func TestAuditBufferFullDropIfFullFalseBlocksUntilSpace(t *testing.T) {
	sink := newGateSink()
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: false,
	}, sink)
	defer func() {
		close(sink.gate)
		dispatcher.Close()
	}()

	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e1"})
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e2"})

	done := make(chan struct{})
	go func() {
		dispatcher.Emit(context.Background(), AuditEvent{EventType: "e3"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("expected emit to block while buffer is full")
	case <-time.After(150 * time.Millisecond):
	}

	sink.gate <- struct{}{}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected blocked emit to proceed after space is available")
	}
}

func TestAuditJSONWriterSinkWritesJSONLines(t *testing.T) {
	var buf syncBuffer
	sink := NewJSONWriterSink(&buf)
	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: auditEventLoginSuccess,
		AccountID: "u1",
		IP:        "127.0.0.1",
		Success:   true,
	}
	sink.Emit(context.Background(), event)

	if !buf.Contains("login_success") {
		t.Fatal("expected JSON log line to contain event type")
	}
	if !buf.Contains("\"account_id\":\"u1\"") {
		t.Fatal("expected JSON log line to contain account id")
	}
}

func TestAuditDispatcherCloseIdempotentAndEmitAfterCloseSafe(t *testing.T) {
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 4,
		DropIfFull: true,
	}, &countingSink{})

	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e1"})
	dispatcher.Close()
	dispatcher.Close()
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e2"})
}

func TestAuditNoSecretsInEvents(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 32
	cfg.Audit.DropIfFull = false

	sink := NewChannelSink(32)
	env, done := buildAuditTestEngine(t, cfg, sink)
	defer done()

	sensitivePassword := "correct-horse-battery"
	env.seedAccount(t, "u1", "alice@example.com", "alice", sensitivePassword)

	ctx := context.Background()
	login, err := env.engine.Login(ctx, "alice", sensitivePassword, "")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, login.RefreshToken); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	env.credentials.mu.Lock()
	passwordHash := env.credentials.hashes["u1"]
	env.credentials.mu.Unlock()

	secretNeedles := []string{
		sensitivePassword,
		login.RefreshToken,
		passwordHash,
	}

	events := make([]AuditEvent, 0, 8)
	timeout := time.After(2 * time.Second)
collectLoop:
	for len(events) < 8 {
		select {
		case ev := <-sink.Events():
			events = append(events, ev)
		case <-timeout:
			break collectLoop
		}
	}

	if len(events) == 0 {
		t.Fatal("expected at least one audit event")
	}

	for _, ev := range events {
		for _, needle := range secretNeedles {
			if needle == "" {
				continue
			}
			if strings.Contains(ev.Error, needle) {
				t.Fatalf("sensitive value leaked in audit error field: %q", needle)
			}
			for k, v := range ev.Metadata {
				if strings.Contains(k, needle) || strings.Contains(v, needle) {
					t.Fatalf("sensitive value leaked in audit metadata: %q", needle)
				}
			}
		}
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *syncBuffer) Contains(v string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Contains(string(b.buf), v)
}
