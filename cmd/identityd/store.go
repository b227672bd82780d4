package main

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/arkova/identity"
	"github.com/google/uuid"
)

// memoryUserStore is a development-only account store. Production deployments
// implement identity.UserStore against their own database.
type memoryUserStore struct {
	mu         sync.RWMutex
	byID       map[string]identity.Account
	byEmail    map[string]string
	byUsername map[string]string
}

func newMemoryUserStore() *memoryUserStore {
	return &memoryUserStore{
		byID:       make(map[string]identity.Account),
		byEmail:    make(map[string]string),
		byUsername: make(map[string]string),
	}
}

func (s *memoryUserStore) GetByID(_ context.Context, id string) (identity.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.byID[id]
	if !ok {
		return identity.Account{}, identity.ErrAccountNotFound
	}
	return account, nil
}

func (s *memoryUserStore) GetByEmail(_ context.Context, email string) (identity.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[normalize(email)]
	if !ok {
		return identity.Account{}, identity.ErrAccountNotFound
	}
	return s.byID[id], nil
}

func (s *memoryUserStore) GetByUsername(_ context.Context, username string) (identity.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[normalize(username)]
	if !ok {
		return identity.Account{}, identity.ErrAccountNotFound
	}
	return s.byID[id], nil
}

func (s *memoryUserStore) Create(_ context.Context, account identity.Account) (identity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := normalize(account.Email)
	username := normalize(account.Username)
	if _, exists := s.byEmail[email]; exists {
		return identity.Account{}, identity.ErrAccountExists
	}
	if _, exists := s.byUsername[username]; exists {
		return identity.Account{}, identity.ErrAccountExists
	}

	account.ID = uuid.NewString()
	s.byID[account.ID] = account
	s.byEmail[email] = account.ID
	s.byUsername[username] = account.ID
	return account, nil
}

func (s *memoryUserStore) Update(_ context.Context, account identity.Account) (identity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[account.ID]; !ok {
		return identity.Account{}, identity.ErrAccountNotFound
	}
	s.byID[account.ID] = account
	return account, nil
}

type memoryCredentialStore struct {
	mu     sync.RWMutex
	hashes map[string]string
}

func newMemoryCredentialStore() *memoryCredentialStore {
	return &memoryCredentialStore{
		hashes: make(map[string]string),
	}
}

func (s *memoryCredentialStore) PasswordHash(_ context.Context, accountID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hash, ok := s.hashes[accountID]
	if !ok {
		return "", identity.ErrAccountNotFound
	}
	return hash, nil
}

func (s *memoryCredentialStore) SetPasswordHash(_ context.Context, accountID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hashes[accountID] = hash
	return nil
}

// logNotifier prints confirmation keys instead of delivering them. Useful
// for curl-driven smoke tests; never use in production.
type logNotifier struct{}

func (logNotifier) Notify(_ context.Context, n identity.Notification) error {
	log.Printf("identityd: confirmation key for %s (%s): %s", n.Email, n.Purpose, n.Key)
	return nil
}

func normalize(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
