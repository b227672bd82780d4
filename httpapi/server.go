package httpapi

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/arkova/identity"
	"github.com/arkova/identity/cookie"
	"github.com/arkova/identity/middleware"
)

const basePath = "/api/v1"

// Server defines a public type used by identity APIs.
//
// Server instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Server struct {
	engine  *identity.Engine
	cookies *cookie.Transport
	mux     *http.ServeMux
}

// NewServer describes the newserver operation and its observable behavior.
//
// NewServer may return an error when input validation, dependency calls, or security checks fail.
// NewServer does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewServer(engine *identity.Engine, cookies *cookie.Transport) *Server {
	s := &Server{
		engine:  engine,
		cookies: cookies,
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

// Handler describes the handler operation and its observable behavior.
//
// Handler may return an error when input validation, dependency calls, or security checks fail.
// Handler does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Server) Handler() http.Handler {
	return middleware.Chain(requestMetadata)(s.mux)
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST "+basePath+"/register", s.handleRegister)
	s.mux.HandleFunc("POST "+basePath+"/confirm", s.handleConfirm)
	s.mux.HandleFunc("POST "+basePath+"/login", s.handleLogin)
	s.mux.HandleFunc("POST "+basePath+"/refresh", s.handleRefresh)
	s.mux.HandleFunc("POST "+basePath+"/logout", s.handleLogout)
	s.mux.HandleFunc("POST "+basePath+"/password/reset", s.handlePasswordResetRequest)
	s.mux.HandleFunc("POST "+basePath+"/password/reset/complete", s.handlePasswordResetComplete)

	guard := middleware.Guard(s.engine, s.cookies)
	s.mux.Handle("GET "+basePath+"/me", guard(http.HandlerFunc(s.handleMe)))
	s.mux.Handle("POST "+basePath+"/password/change", guard(http.HandlerFunc(s.handlePasswordChange)))
	s.mux.Handle("POST "+basePath+"/mfa/enroll", guard(http.HandlerFunc(s.handleMFAEnroll)))
	s.mux.Handle("POST "+basePath+"/mfa/verify", guard(http.HandlerFunc(s.handleMFAVerify)))
	s.mux.Handle("POST "+basePath+"/mfa/disable", guard(http.HandlerFunc(s.handleMFADisable)))
}

// requestMetadata copies client IP and user agent into the context so audit
// events downstream carry them.
func requestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := identity.WithClientIP(r.Context(), clientIP(r))
		ctx = identity.WithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if idx := strings.IndexByte(forwarded, ','); idx >= 0 {
			return strings.TrimSpace(forwarded[:idx])
		}
		return strings.TrimSpace(forwarded)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := s.engine.Register(r.Context(), identity.RegisterRequest{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"account_id": result.AccountID,
	})
}

type confirmRequest struct {
	Key string `json:"key"`
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.engine.ConfirmRegistration(r.Context(), req.Key); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "confirmed"})
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	MFACode    string `json:"mfa_code,omitempty"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := s.engine.Login(r.Context(), req.Identifier, req.Password, req.MFACode)
	if err != nil {
		writeError(w, err)
		return
	}

	s.writeSession(w, r, result)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	tokenStr := s.refreshTokenFrom(r)
	if tokenStr == "" {
		writeError(w, identity.ErrTokenMalformed)
		return
	}

	result, err := s.engine.Refresh(r.Context(), tokenStr)
	if err != nil {
		writeError(w, err)
		return
	}

	s.writeSession(w, r, result)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	// Cookies are cleared even when revocation fails: the client side of the
	// session must not outlive a logout request.
	tokenStr := s.refreshTokenFrom(r)
	var revokeErr error
	if tokenStr != "" {
		revokeErr = s.engine.Logout(r.Context(), tokenStr)
	}

	if s.cookies != nil {
		s.cookies.Clear(w, r, cookie.AccessTokenName)
		s.cookies.Clear(w, r, cookie.RefreshTokenName)
	}

	if revokeErr != nil && errors.Is(revokeErr, identity.ErrBackendUnavailable) {
		writeError(w, revokeErr)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

func (s *Server) handlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.engine.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type passwordResetCompleteRequest struct {
	Key      string `json:"key"`
	Password string `json:"password"`
}

func (s *Server) handlePasswordResetComplete(w http.ResponseWriter, r *http.Request) {
	var req passwordResetCompleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.engine.CompletePasswordReset(r.Context(), req.Key, req.Password); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	result, ok := middleware.AuthResultFromContext(r.Context())
	if !ok {
		writeError(w, identity.ErrTokenInvalid)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account_id":  result.AccountID,
		"email":       result.Email,
		"role":        result.Role,
		"authorities": result.Authorities,
	})
}

type passwordChangeRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (s *Server) handlePasswordChange(w http.ResponseWriter, r *http.Request) {
	result, ok := middleware.AuthResultFromContext(r.Context())
	if !ok {
		writeError(w, identity.ErrTokenInvalid)
		return
	}

	var req passwordChangeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.engine.ChangePassword(r.Context(), result.AccountID, req.OldPassword, req.NewPassword); err != nil {
		writeError(w, err)
		return
	}

	// Other sessions are revoked; this client keeps only its access token
	// until expiry, so the refresh cookie is cleared as well.
	if s.cookies != nil {
		s.cookies.Clear(w, r, cookie.RefreshTokenName)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "changed"})
}

func (s *Server) handleMFAEnroll(w http.ResponseWriter, r *http.Request) {
	result, ok := middleware.AuthResultFromContext(r.Context())
	if !ok {
		writeError(w, identity.ErrTokenInvalid)
		return
	}

	enrollment, err := s.engine.EnrollMFA(r.Context(), result.AccountID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"secret":        enrollment.SecretBase32,
		"provision_uri": enrollment.ProvisionURI,
	})
}

type mfaCodeRequest struct {
	Code string `json:"code"`
}

func (s *Server) handleMFAVerify(w http.ResponseWriter, r *http.Request) {
	result, ok := middleware.AuthResultFromContext(r.Context())
	if !ok {
		writeError(w, identity.ErrTokenInvalid)
		return
	}

	var req mfaCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	login, err := s.engine.ConfirmMFAEnrollment(r.Context(), result.AccountID, req.Code)
	if err != nil {
		writeError(w, err)
		return
	}

	s.writeSession(w, r, login)
}

func (s *Server) handleMFADisable(w http.ResponseWriter, r *http.Request) {
	result, ok := middleware.AuthResultFromContext(r.Context())
	if !ok {
		writeError(w, identity.ErrTokenInvalid)
		return
	}

	var req mfaCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.engine.DisableMFA(r.Context(), result.AccountID, req.Code); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
}

// writeSession returns the token pair in the body and mirrors it into the
// session cookies.
func (s *Server) writeSession(w http.ResponseWriter, r *http.Request, result *identity.LoginResult) {
	if s.cookies != nil {
		s.cookies.Write(w, r, cookie.AccessTokenName, result.AccessToken)
		s.cookies.Write(w, r, cookie.RefreshTokenName, result.RefreshToken)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  result.AccessToken,
		"refresh_token": result.RefreshToken,
		"account_id":    result.Account.ID,
		"mfa_enabled":   result.Account.MFAEnabled,
	})
}

func (s *Server) refreshTokenFrom(r *http.Request) string {
	if s.cookies != nil {
		if value, ok := s.cookies.Read(r, cookie.RefreshTokenName); ok {
			return value
		}
	}
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return ""
	}
	return req.RefreshToken
}
