package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/arkova/identity"
	"github.com/arkova/identity/cookie"
)

type fakeAuthenticator struct {
	result    *identity.AuthResult
	err       error
	lastToken string
}

func (f *fakeAuthenticator) Authenticate(_ context.Context, accessToken string) (*identity.AuthResult, error) {
	f.lastToken = accessToken
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func testCookies() *cookie.Transport {
	return cookie.NewTransport(cookie.Config{
		Path:       "/",
		AccessTTL:  5 * time.Minute,
		RefreshTTL: time.Hour,
	})
}

func guardedHandler(auth Authenticator) (http.Handler, *identity.AuthResult) {
	captured := &identity.AuthResult{}
	handler := Guard(auth, testCookies())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if result, ok := AuthResultFromContext(r.Context()); ok {
			*captured = *result
		}
		w.WriteHeader(http.StatusOK)
	}))
	return handler, captured
}

func TestGuardAcceptsBearerHeader(t *testing.T) {
	auth := &fakeAuthenticator{result: &identity.AuthResult{AccountID: "u1"}}
	handler, captured := guardedHandler(auth)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer header-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if auth.lastToken != "header-token" {
		t.Fatalf("expected header token, got %q", auth.lastToken)
	}
	if captured.AccountID != "u1" {
		t.Fatalf("expected auth result in context, got %+v", captured)
	}
}

func TestGuardFallsBackToCookie(t *testing.T) {
	auth := &fakeAuthenticator{result: &identity.AuthResult{AccountID: "u1"}}
	handler, _ := guardedHandler(auth)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.AddCookie(&http.Cookie{Name: cookie.AccessTokenName, Value: "cookie-token"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if auth.lastToken != "cookie-token" {
		t.Fatalf("expected cookie token, got %q", auth.lastToken)
	}
}

func TestGuardBearerHeaderWinsOverCookie(t *testing.T) {
	auth := &fakeAuthenticator{result: &identity.AuthResult{AccountID: "u1"}}
	handler, _ := guardedHandler(auth)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer header-token")
	req.AddCookie(&http.Cookie{Name: cookie.AccessTokenName, Value: "cookie-token"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if auth.lastToken != "header-token" {
		t.Fatalf("expected header token to win, got %q", auth.lastToken)
	}
}

func TestGuardRejectsMissingToken(t *testing.T) {
	auth := &fakeAuthenticator{result: &identity.AuthResult{AccountID: "u1"}}
	handler, _ := guardedHandler(auth)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if auth.lastToken != "" {
		t.Fatal("authenticator must not be called without a token")
	}
}

func TestGuardIgnoresNonBearerHeader(t *testing.T) {
	auth := &fakeAuthenticator{result: &identity.AuthResult{AccountID: "u1"}}
	handler, _ := guardedHandler(auth)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestGuardStatusByError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid token", identity.ErrTokenInvalid, http.StatusUnauthorized},
		{"expired token", identity.ErrTokenExpired, http.StatusUnauthorized},
		{"locked account", identity.ErrAccountLocked, http.StatusForbidden},
		{"disabled account", identity.ErrAccountDisabled, http.StatusForbidden},
		{"backend unavailable", identity.ErrBackendUnavailable, http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler, _ := guardedHandler(&fakeAuthenticator{err: tc.err})

			req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
			req.Header.Set("Authorization", "Bearer some-token")
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestAuthResultFromContextMissing(t *testing.T) {
	if _, ok := AuthResultFromContext(context.Background()); ok {
		t.Fatal("expected no auth result on a bare context")
	}
}

func TestChainAppliesOutermostFirst(t *testing.T) {
	var order []string
	tag := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	handler := Chain(tag("outer"), tag("inner"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if len(order) != 3 || order[0] != "outer" || order[1] != "inner" || order[2] != "handler" {
		t.Fatalf("unexpected order: %v", order)
	}
}
