package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/arkova/identity"
)

const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("malformed request body", ""))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func errorBody(message, reason string) map[string]string {
	body := map[string]string{"error": message}
	if reason != "" {
		body["reason"] = reason
	}
	return body
}

// writeError maps engine sentinels onto HTTP statuses. Credential-shaped
// failures collapse to 401 without detail; token failures carry a reason so
// clients can distinguish an expired session from a revoked one.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, identity.ErrAccountLocked):
		writeJSON(w, http.StatusLocked, errorBody("account locked", ""))
	case errors.Is(err, identity.ErrAccountDisabled):
		writeJSON(w, http.StatusForbidden, errorBody("account disabled", ""))
	case errors.Is(err, identity.ErrMFARequired):
		writeJSON(w, http.StatusUnauthorized, errorBody("mfa code required", "mfa-required"))
	case errors.Is(err, identity.ErrMFACodeInvalid):
		writeJSON(w, http.StatusUnauthorized, errorBody("invalid mfa code", ""))
	case errors.Is(err, identity.ErrMFANotEnrolled):
		writeJSON(w, http.StatusConflict, errorBody("mfa not enrolled", ""))
	case errors.Is(err, identity.ErrMFAAlreadyEnabled):
		writeJSON(w, http.StatusConflict, errorBody("mfa already enabled", ""))
	case errors.Is(err, identity.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, errorBody("invalid credentials", ""))
	case errors.Is(err, identity.ErrTokenExpired):
		writeJSON(w, http.StatusUnauthorized, errorBody("token rejected", "expired"))
	case errors.Is(err, identity.ErrTokenNotFound):
		writeJSON(w, http.StatusUnauthorized, errorBody("token rejected", "not-found"))
	case errors.Is(err, identity.ErrTokenMalformed):
		writeJSON(w, http.StatusBadRequest, errorBody("token rejected", "malformed"))
	case errors.Is(err, identity.ErrTokenInvalid):
		writeJSON(w, http.StatusUnauthorized, errorBody("token rejected", "invalid"))
	case errors.Is(err, identity.ErrAccountExists):
		writeJSON(w, http.StatusConflict, errorBody("account already exists", ""))
	case errors.Is(err, identity.ErrAccountNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("account not found", ""))
	case errors.Is(err, identity.ErrConfirmationInvalid):
		writeJSON(w, http.StatusBadRequest, errorBody("confirmation key rejected", ""))
	case errors.Is(err, identity.ErrPasswordPolicy):
		writeJSON(w, http.StatusBadRequest, errorBody("password rejected by policy", ""))
	case errors.Is(err, identity.ErrPasswordReuse):
		writeJSON(w, http.StatusBadRequest, errorBody("password reuse rejected", ""))
	case errors.Is(err, identity.ErrBackendUnavailable), errors.Is(err, identity.ErrEngineNotReady):
		writeJSON(w, http.StatusServiceUnavailable, errorBody("service unavailable", ""))
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error", ""))
	}
}
