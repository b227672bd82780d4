// Package identity provides the authentication and session-lifecycle core of a
// user-identity service: signed access/refresh tokens, rotating refresh records,
// brute-force lockout, TOTP MFA, and single-use confirmation keys, all behind a
// single [Engine] facade.
//
// The package is designed for concurrent server workloads: Engine methods are safe
// to call from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// identity is the public surface. It exposes [Engine], [Builder], [Config], and
// value types (LoginResult, AuthResult, MetricsSnapshot, etc.). All internal
// coordination — attempt counting, refresh-record storage, confirmation records,
// audit dispatch — lives under internal/ and is never exported.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its public API.
//   - Persist user accounts itself: account and credential storage is supplied by
//     the caller through [UserStore] and [CredentialStore].
//   - Import any sub-package that re-imports identity (no import cycles).
//
// # Performance contract
//
// Authenticate is the hot path: one parse of the access token plus one account
// re-fetch from the caller's store. Login and Refresh are allowed one Redis
// round-trip per counter or record they touch.
package identity
