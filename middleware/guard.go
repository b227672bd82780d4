package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/arkova/identity"
	"github.com/arkova/identity/cookie"
)

// Authenticator defines a public type used by identity APIs.
//
// Authenticator is the subset of the engine the guard needs; tests substitute
// their own implementation.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*identity.AuthResult, error)
}

type authResultKey struct{}

// AuthResultFromContext describes the authresultfromcontext operation and its observable behavior.
//
// AuthResultFromContext may return an error when input validation, dependency calls, or security checks fail.
// AuthResultFromContext does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func AuthResultFromContext(ctx context.Context) (*identity.AuthResult, bool) {
	result, ok := ctx.Value(authResultKey{}).(*identity.AuthResult)
	return result, ok
}

// Guard describes the guard operation and its observable behavior.
//
// Guard may return an error when input validation, dependency calls, or security checks fail.
// Guard does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// The bearer token wins when both the header and the cookie are present.
// Unauthenticated requests receive 401; locked and disabled accounts 403.
func Guard(auth Authenticator, cookies *cookie.Transport) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := bearerToken(r)
			if tokenStr == "" && cookies != nil {
				if value, ok := cookies.Read(r, cookie.AccessTokenName); ok {
					tokenStr = value
				}
			}
			if tokenStr == "" {
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}

			result, err := auth.Authenticate(r.Context(), tokenStr)
			if err != nil {
				http.Error(w, "authentication failed", statusForAuthError(err))
				return
			}

			ctx := context.WithValue(r.Context(), authResultKey{}, result)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Chain describes the chain operation and its observable behavior.
//
// Chain may return an error when input validation, dependency calls, or security checks fail.
// Chain does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Middlewares apply outermost-first: Chain(a, b)(h) serves a(b(h)).
func Chain(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func statusForAuthError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, identity.ErrAccountLocked), errors.Is(err, identity.ErrAccountDisabled):
		return http.StatusForbidden
	case errors.Is(err, identity.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnauthorized
	}
}
