package identity

import "errors"

var (
	// ErrInvalidCredentials is an exported constant or variable used by the identity engine.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountNotFound is an exported constant or variable used by the identity engine.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountExists is an exported constant or variable used by the identity engine.
	ErrAccountExists = errors.New("account already exists")
	// ErrAccountLocked is an exported constant or variable used by the identity engine.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountDisabled is an exported constant or variable used by the identity engine.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrTokenExpired is an exported constant or variable used by the identity engine.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenMalformed is an exported constant or variable used by the identity engine.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenInvalid is an exported constant or variable used by the identity engine.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenNotFound is an exported constant or variable used by the identity engine.
	ErrTokenNotFound = errors.New("token not found")
	// ErrMFARequired is an exported constant or variable used by the identity engine.
	ErrMFARequired = errors.New("mfa code required")
	// ErrMFACodeInvalid is an exported constant or variable used by the identity engine.
	ErrMFACodeInvalid = errors.New("invalid mfa code")
	// ErrMFANotEnrolled is an exported constant or variable used by the identity engine.
	ErrMFANotEnrolled = errors.New("mfa not enrolled")
	// ErrMFAAlreadyEnabled is an exported constant or variable used by the identity engine.
	ErrMFAAlreadyEnabled = errors.New("mfa already enabled")
	// ErrConfirmationInvalid is an exported constant or variable used by the identity engine.
	ErrConfirmationInvalid = errors.New("confirmation key invalid")
	// ErrPasswordPolicy is an exported constant or variable used by the identity engine.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse is an exported constant or variable used by the identity engine.
	ErrPasswordReuse = errors.New("new password must be different from current password")
	// ErrBackendUnavailable is an exported constant or variable used by the identity engine.
	ErrBackendUnavailable = errors.New("identity backend unavailable")
	// ErrEngineNotReady is an exported constant or variable used by the identity engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
