// Package middleware provides net/http middleware that authenticates
// requests against an identity engine.
//
// The guard accepts an access token from the Authorization header or, when a
// cookie transport is supplied, from the access-token cookie. Authenticated
// requests carry the resulting [identity.AuthResult] in the request context.
package middleware
