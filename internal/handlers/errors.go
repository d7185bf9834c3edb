package handlers

import (
	"errors"
	"net/http"

	"github.com/jgutierrezgil/guardiapass/internal/crypto"
	"github.com/jgutierrezgil/guardiapass/internal/logging"
	"github.com/jgutierrezgil/guardiapass/internal/passgen"
	"github.com/jgutierrezgil/guardiapass/internal/services"
	"github.com/jgutierrezgil/guardiapass/internal/session"
	"github.com/jgutierrezgil/guardiapass/internal/store"
	"github.com/jgutierrezgil/guardiapass/internal/validation"
	"github.com/jgutierrezgil/guardiapass/internal/vault"
)

// NotFoundHandler handles 404 errors.
func NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	jsonError(w, http.StatusNotFound, "NOT_FOUND", "The requested resource was not found")
}

// MethodNotAllowedHandler handles 405 errors.
func MethodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	jsonError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "The requested method is not allowed for this resource")
}

// writeServiceError maps an error returned by a service to an API error.
// Unrecognized errors are logged under event and reported as internal.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, event string) {
	var policy *services.PolicyError
	switch {
	case errors.As(err, &policy):
		resp := apiError{Meta: map[string]any{"problems": policy.Problems}}
		resp.Error.Code = "INVALID_INPUT"
		resp.Error.Message = services.ErrWeakPassword.Error()
		writeJSON(w, http.StatusBadRequest, resp)
	case validation.IsValidationError(err),
		errors.Is(err, vault.ErrInvalidCredential),
		errors.Is(err, passgen.ErrInvalidLength):
		jsonError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
	case errors.Is(err, store.ErrDuplicateUsername):
		jsonError(w, http.StatusConflict, "DUPLICATE_USERNAME", "Username is already taken")
	case errors.Is(err, services.ErrInvalidCredentials):
		jsonError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid username or password")
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, store.ErrStaleKey):
		jsonError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired session")
	case errors.Is(err, services.ErrAccountLocked):
		jsonError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Account temporarily locked due to too many failed login attempts")
	case errors.Is(err, store.ErrNotFound):
		jsonError(w, http.StatusNotFound, "NOT_FOUND", "Record not found")
	case errors.Is(err, crypto.ErrDecryption):
		jsonError(w, http.StatusUnprocessableEntity, "DECRYPTION_FAILED", "Stored data could not be decrypted")
	default:
		logging.Logger(r.Context()).Error(event, "error", err)
		jsonError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}
