package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

const (
	// RefreshSecretSize is the raw size of the rotating refresh secret.
	RefreshSecretSize = 32
	// ConfirmationKeySize is the raw size of a confirmation key (256 bits).
	ConfirmationKeySize = 32
)

// NewRefreshSecret returns a fresh random refresh secret. The secret travels
// inside the refresh token; only its hash is stored.
func NewRefreshSecret() ([RefreshSecretSize]byte, error) {
	var secret [RefreshSecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

// HashRefreshSecret is the at-rest form of a refresh secret.
func HashRefreshSecret(secret [RefreshSecretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// EncodeRefreshSecret renders the secret for embedding in a token claim.
func EncodeRefreshSecret(secret [RefreshSecretSize]byte) string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(secret[:])
}

// DecodeRefreshSecret reverses EncodeRefreshSecret.
func DecodeRefreshSecret(encoded string) ([RefreshSecretSize]byte, error) {
	var secret [RefreshSecretSize]byte

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return secret, err
	}
	if len(raw) != RefreshSecretSize {
		return secret, errors.New("invalid refresh secret size")
	}

	copy(secret[:], raw)
	return secret, nil
}

// NewConfirmationKey returns an opaque single-use key. The plaintext goes to
// the notifier; the store is keyed by its hash.
func NewConfirmationKey() (string, error) {
	raw := make([]byte, ConfirmationKeySize)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// HashConfirmationKey is the lookup hash for a confirmation key.
func HashConfirmationKey(key string) [32]byte {
	return sha256.Sum256([]byte(key))
}
