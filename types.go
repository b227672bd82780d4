package identity

import (
	"context"
	"time"
)

// ConfirmationPurpose defines a public type used by identity APIs.
//
// ConfirmationPurpose instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type ConfirmationPurpose string

const (
	// PurposeRegistration is an exported constant or variable used by the identity engine.
	PurposeRegistration ConfirmationPurpose = "registration"
	// PurposePasswordReset is an exported constant or variable used by the identity engine.
	PurposePasswordReset ConfirmationPurpose = "password-reset"
)

// AuditInfo carries the record-keeping fields embedded in every [Account].
// It travels with the account as a plain value; callers populate UpdatedBy
// from [WithActor] context metadata when they persist changes.
type AuditInfo struct {
	CreatedAt time.Time
	UpdatedAt time.Time
	UpdatedBy string
}

// Account is the account snapshot exchanged with [UserStore]. The engine
// never caches it: every validation re-fetches the live record so that
// disable/lock decisions take effect on the next request.
type Account struct {
	ID          string
	Email       string
	Username    string
	Role        string
	Authorities []string

	Enabled bool
	Locked  bool

	MFAEnabled  bool
	MFASecret   []byte
	MFALastStep int64

	LastLogin time.Time
	Audit     AuditInfo
}

// UserStore is the primary interface that callers must implement to integrate
// the engine with their user database. Implementations return
// [ErrAccountNotFound] for missing records and [ErrAccountExists] for
// duplicate identifiers on Create.
type UserStore interface {
	GetByID(ctx context.Context, id string) (Account, error)
	GetByEmail(ctx context.Context, email string) (Account, error)
	GetByUsername(ctx context.Context, username string) (Account, error)
	Create(ctx context.Context, account Account) (Account, error)
	Update(ctx context.Context, account Account) (Account, error)
}

// CredentialStore holds password hashes separately from account records.
// Hashes are PHC-formatted strings produced by the engine's argon2id hasher.
type CredentialStore interface {
	PasswordHash(ctx context.Context, accountID string) (string, error)
	SetPasswordHash(ctx context.Context, accountID, hash string) error
}

// Notification is the payload handed to [Notifier] when a confirmation key
// is issued. Key is the plaintext key; it is never persisted by the engine.
type Notification struct {
	AccountID string
	Email     string
	Purpose   ConfirmationPurpose
	Key       string
}

// Notifier delivers confirmation keys out-of-band (email, SMS, test capture).
// Delivery is fire-and-forget: the engine invokes it on a separate goroutine
// after the key record is already stored, and a failed delivery never rolls
// the issuance back.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LoginResult is returned by [Engine.Login], [Engine.Refresh], and
// [Engine.ConfirmMFAEnrollment]. It carries the freshly minted token pair
// and the account snapshot the tokens were minted from.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	Account      Account
}

// AuthResult is returned by [Engine.Authenticate]. Role and Authorities
// reflect the live account record, not the token claims.
type AuthResult struct {
	AccountID   string
	Email       string
	Role        string
	Authorities []string
}

// MFAEnrollment holds the base32 secret and otpauth:// URI returned by
// [Engine.EnrollMFA].
type MFAEnrollment struct {
	SecretBase32 string
	ProvisionURI string
}

// RegisterRequest is the input for [Engine.Register]. Email, Username, and
// Password are required; Role defaults to "user" when empty.
type RegisterRequest struct {
	Email    string
	Username string
	Password string
	Role     string
}

// RegisterResult is returned by [Engine.Register].
type RegisterResult struct {
	AccountID string
}
