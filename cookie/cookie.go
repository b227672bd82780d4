// Package cookie implements the HTTP cookie transport for session tokens:
// HTTP-only, path-scoped access and refresh cookies whose Secure flag follows
// the effective request scheme behind a reverse proxy.
package cookie

import (
	"net/http"
	"time"
)

const (
	// AccessTokenName is the cookie carrying the access token.
	AccessTokenName = "access-token"
	// RefreshTokenName is the cookie carrying the refresh token.
	RefreshTokenName = "refresh-token"
)

// Config controls cookie scoping and the Secure flag policy.
type Config struct {
	// Path scopes both cookies, normally the API root ("/api/v1").
	Path string
	// TrustForwardedProto honors X-Forwarded-Proto when deciding Secure.
	// Enable only behind a proxy that sanitizes the header.
	TrustForwardedProto bool
	AccessTTL           time.Duration
	RefreshTTL          time.Duration
}

// Transport writes, reads, and clears the session cookies.
type Transport struct {
	config Config
}

func NewTransport(cfg Config) *Transport {
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	return &Transport{config: cfg}
}

// Write sets the named cookie with Max-Age equal to the matching token TTL.
func (t *Transport) Write(w http.ResponseWriter, r *http.Request, name, value string) {
	ttl := t.config.AccessTTL
	if name == RefreshTokenName {
		ttl = t.config.RefreshTTL
	}

	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     t.config.Path,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   t.secure(r),
		SameSite: http.SameSiteLaxMode,
	})
}

// Read returns the named cookie value if present and non-empty.
func (t *Transport) Read(r *http.Request, name string) (string, bool) {
	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

// Clear expires the named cookie. MaxAge -1 serializes as Max-Age=0 on the
// wire, which removes the cookie immediately.
func (t *Transport) Clear(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     t.config.Path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   t.secure(r),
		SameSite: http.SameSiteLaxMode,
	})
}

// secure reports whether the effective request scheme is https. A direct TLS
// connection always counts; the forwarded header only when trusted.
func (t *Transport) secure(r *http.Request) bool {
	if r == nil {
		return false
	}
	if r.TLS != nil {
		return true
	}
	if t.config.TrustForwardedProto && r.Header.Get("X-Forwarded-Proto") == "https" {
		return true
	}
	return false
}
