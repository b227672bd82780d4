package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type memoryUserStore struct {
	mu         sync.Mutex
	accounts   map[string]Account
	byEmail    map[string]string
	byUsername map[string]string

	updateErr error
	createErr error

	updateCalls int
}

func newMemoryUserStore() *memoryUserStore {
	return &memoryUserStore{
		accounts:   make(map[string]Account),
		byEmail:    make(map[string]string),
		byUsername: make(map[string]string),
	}
}

func (s *memoryUserStore) put(account Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.ID] = account
	s.byEmail[account.Email] = account.ID
	s.byUsername[account.Username] = account.ID
}

func (s *memoryUserStore) get(id string) Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[id]
}

func (s *memoryUserStore) GetByID(_ context.Context, id string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}

func (s *memoryUserStore) GetByEmail(_ context.Context, email string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[email]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return s.accounts[id], nil
}

func (s *memoryUserStore) GetByUsername(_ context.Context, username string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byUsername[username]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return s.accounts[id], nil
}

func (s *memoryUserStore) Create(_ context.Context, account Account) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.createErr != nil {
		return Account{}, s.createErr
	}
	if _, exists := s.byEmail[account.Email]; exists {
		return Account{}, ErrAccountExists
	}
	if _, exists := s.byUsername[account.Username]; exists {
		return Account{}, ErrAccountExists
	}

	account.ID = fmt.Sprintf("u%d", len(s.accounts)+1)
	s.accounts[account.ID] = account
	s.byEmail[account.Email] = account.ID
	s.byUsername[account.Username] = account.ID
	return account, nil
}

func (s *memoryUserStore) Update(_ context.Context, account Account) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.updateCalls++
	if s.updateErr != nil {
		return Account{}, s.updateErr
	}
	if _, ok := s.accounts[account.ID]; !ok {
		return Account{}, ErrAccountNotFound
	}
	s.accounts[account.ID] = account
	return account, nil
}

type memoryCredentialStore struct {
	mu     sync.Mutex
	hashes map[string]string

	setErr error
}

func newMemoryCredentialStore() *memoryCredentialStore {
	return &memoryCredentialStore{
		hashes: make(map[string]string),
	}
}

func (s *memoryCredentialStore) PasswordHash(_ context.Context, accountID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash, ok := s.hashes[accountID]
	if !ok {
		return "", errors.New("no credential")
	}
	return hash, nil
}

func (s *memoryCredentialStore) SetPasswordHash(_ context.Context, accountID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.setErr != nil {
		return s.setErr
	}
	s.hashes[accountID] = hash
	return nil
}

// captureNotifier records delivered notifications and signals each delivery,
// since the engine notifies on a separate goroutine.
type captureNotifier struct {
	mu        sync.Mutex
	delivered []Notification
	signal    chan struct{}

	err error
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{
		signal: make(chan struct{}, 16),
	}
}

func (n *captureNotifier) Notify(_ context.Context, notification Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.err != nil {
		return n.err
	}
	n.delivered = append(n.delivered, notification)
	n.signal <- struct{}{}
	return nil
}

// waitForKey blocks until a notification arrives and returns its plaintext key.
func (n *captureNotifier) waitForKey(t *testing.T) string {
	t.Helper()

	select {
	case <-n.signal:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	return n.delivered[len(n.delivered)-1].Key
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.SigningSecret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Token.AccessTTL = 5 * time.Minute
	cfg.Token.RefreshTTL = time.Hour
	cfg.Lockout.Threshold = 3
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Audit.Enabled = false
	return cfg
}

type testEnv struct {
	engine      *Engine
	users       *memoryUserStore
	credentials *memoryCredentialStore
	notifier    *captureNotifier
	redis       *miniredis.Miniredis
}

func newTestEngine(t *testing.T, cfg Config) (*testEnv, func()) {
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

// seedAccount stores an enabled account with the given password and returns it.
func (env *testEnv) seedAccount(t *testing.T, id, email, username, password string) Account {
	t.Helper()

	hash, err := env.engine.passwordHash.Hash(password)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	account := Account{
		ID:       id,
		Email:    email,
		Username: username,
		Role:     "user",
		Enabled:  true,
	}
	env.users.put(account)
	env.credentials.hashes[id] = hash
	return account
}

// totpCodeNow computes the currently valid code for a secret, mirroring what
// an authenticator app would show.
func totpCodeNow(t *testing.T, cfg MFAConfig, secret []byte) string {
	t.Helper()

	counter := time.Now().Unix() / int64(cfg.Period)
	code, err := hotpCode(secret, counter, cfg.Digits, cfg.Algorithm)
	if err != nil {
		t.Fatalf("hotpCode failed: %v", err)
	}
	return code
}

// totpCodeAt computes the code for an explicit step.
func totpCodeAt(t *testing.T, cfg MFAConfig, secret []byte, counter int64) string {
	t.Helper()

	code, err := hotpCode(secret, counter, cfg.Digits, cfg.Algorithm)
	if err != nil {
		t.Fatalf("hotpCode failed: %v", err)
	}
	return code
}
