package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jgutierrezgil/guardiapass/internal/logging"
	"github.com/jgutierrezgil/guardiapass/internal/middleware"
	"github.com/jgutierrezgil/guardiapass/internal/services"
	"github.com/jgutierrezgil/guardiapass/internal/store"
)

// AuthHandler handles account and session endpoints.
type AuthHandler struct {
	userService        *services.UserService
	authService        *services.AuthService
	auditService       *services.AuditService
	secureCookies      bool
	maxRequestBodySize int64
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(
	userService *services.UserService,
	authService *services.AuthService,
	auditService *services.AuditService,
	secureCookies bool,
	maxRequestBodySize int64,
) *AuthHandler {
	return &AuthHandler{
		userService:        userService,
		authService:        authService,
		auditService:       auditService,
		secureCookies:      secureCookies,
		maxRequestBodySize: maxRequestBodySize,
	}
}

type userResponse struct {
	ID           uuid.UUID        `json:"id"`
	Username     string           `json:"username"`
	KeyStorage   store.KeyStorage `json:"key_storage,omitempty"`
	EnvelopeMode string           `json:"envelope_mode"`
	CreatedAt    *time.Time       `json:"created_at,omitempty"`
}

type sessionResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      userResponse `json:"user"`
}

func (h *AuthHandler) startSession(w http.ResponseWriter, result *services.LoginResult) sessionResponse {
	middleware.SetSessionCookie(w, result.Token, result.Session.ExpiresAt, h.secureCookies)
	return sessionResponse{
		Token:     result.Token,
		ExpiresAt: result.Session.ExpiresAt,
		User: userResponse{
			ID:           result.Session.UserID,
			Username:     result.Session.Username,
			EnvelopeMode: string(result.Session.EnvelopeMode),
		},
	}
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	log := logging.Logger(r.Context())

	var req struct {
		Username        string `json:"username"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirm_password"`
	}
	if err := decodeJSON(r, h.maxRequestBodySize, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid request body")
		return
	}

	user, err := h.userService.Register(r.Context(), services.RegisterParams{
		Username: req.Username,
		Password: req.Password,
		Confirm:  req.ConfirmPassword,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateUsername) {
			log.Warn("registration_username_exists", "username", strings.TrimSpace(req.Username))
		}
		writeServiceError(w, r, err, "registration_failed")
		return
	}

	h.auditService.LogAsync(services.LogParams{
		UserID:       user.ID,
		Action:       services.ActionUserCreate,
		ResourceType: services.ResourceUser,
		ResourceID:   user.ID.String(),
		ResourceName: user.Username,
		IPAddress:    r.RemoteAddr,
	})

	log.Info("user_registered", "user_id", user.ID, "key_storage", user.KeyStorage)

	jsonResponse(w, http.StatusCreated, userResponse{
		ID:           user.ID,
		Username:     user.Username,
		KeyStorage:   user.KeyStorage,
		EnvelopeMode: user.EnvelopeMode,
		CreatedAt:    &user.CreatedAt,
	})
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	log := logging.Logger(r.Context())

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, h.maxRequestBodySize, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		jsonError(w, http.StatusBadRequest, "INVALID_INPUT", "Username and password are required")
		return
	}

	result, err := h.authService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			log.Warn("login_invalid_credentials", "username", req.Username)
		}
		writeServiceError(w, r, err, "login_failed")
		return
	}

	h.auditService.LogAsync(services.LogParams{
		UserID:       result.Session.UserID,
		Action:       services.ActionUserLogin,
		ResourceType: services.ResourceSession,
		ResourceID:   result.Session.UserID.String(),
		IPAddress:    r.RemoteAddr,
	})

	log.Info("user_logged_in", "user_id", result.Session.UserID)

	jsonResponse(w, http.StatusOK, h.startSession(w, result))
}

// Logout handles POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	token := middleware.GetToken(r.Context())

	if sess != nil && token != "" {
		if err := h.authService.Logout(r.Context(), token); err != nil {
			logging.Logger(r.Context()).Error("logout_failed", "user_id", sess.UserID, "error", err)
		} else {
			h.auditService.LogAsync(services.LogParams{
				UserID:       sess.UserID,
				Action:       services.ActionUserLogout,
				ResourceType: services.ResourceSession,
				ResourceID:   sess.UserID.String(),
				IPAddress:    r.RemoteAddr,
			})
		}
	}

	middleware.ClearSessionCookie(w, h.secureCookies)
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	if sess == nil {
		jsonError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	user, err := h.userService.GetByID(r.Context(), sess.UserID)
	if err != nil {
		writeServiceError(w, r, err, "user_get_failed")
		return
	}

	jsonResponse(w, http.StatusOK, userResponse{
		ID:           user.ID,
		Username:     user.Username,
		KeyStorage:   user.KeyStorage,
		EnvelopeMode: user.EnvelopeMode,
		CreatedAt:    &user.CreatedAt,
	})
}

// ChangeMasterPassword handles POST /auth/master-password. Every session
// of the user is closed and a new one is returned.
func (h *AuthHandler) ChangeMasterPassword(w http.ResponseWriter, r *http.Request) {
	log := logging.Logger(r.Context())

	sess := middleware.GetSession(r.Context())
	if sess == nil {
		jsonError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
		ConfirmPassword string `json:"confirm_password"`
	}
	if err := decodeJSON(r, h.maxRequestBodySize, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid request body")
		return
	}

	result, err := h.authService.ChangeMasterPassword(r.Context(), middleware.GetToken(r.Context()), services.ChangeMasterPasswordParams{
		Current: req.CurrentPassword,
		New:     req.NewPassword,
		Confirm: req.ConfirmPassword,
	})
	if err != nil {
		writeServiceError(w, r, err, "master_password_change_failed")
		return
	}

	h.auditService.LogAsync(services.LogParams{
		UserID:       sess.UserID,
		Action:       services.ActionPasswordChange,
		ResourceType: services.ResourceUser,
		ResourceID:   sess.UserID.String(),
		IPAddress:    r.RemoteAddr,
	})

	log.Info("master_password_changed", "user_id", sess.UserID)

	jsonResponse(w, http.StatusOK, h.startSession(w, result))
}

// DeleteAccount handles DELETE /auth/account
func (h *AuthHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	log := logging.Logger(r.Context())

	sess := middleware.GetSession(r.Context())
	if sess == nil {
		jsonError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	var req struct {
		Password string `json:"password"`
	}
	if err := decodeJSON(r, h.maxRequestBodySize, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid request body")
		return
	}

	if err := h.authService.DeleteAccount(r.Context(), sess.UserID, req.Password); err != nil {
		writeServiceError(w, r, err, "account_deletion_failed")
		return
	}

	h.auditService.LogAsync(services.LogParams{
		UserID:       sess.UserID,
		Action:       services.ActionUserDelete,
		ResourceType: services.ResourceUser,
		ResourceID:   sess.UserID.String(),
		ResourceName: sess.Username,
		IPAddress:    r.RemoteAddr,
	})

	log.Info("account_deleted", "user_id", sess.UserID)

	middleware.ClearSessionCookie(w, h.secureCookies)
	w.WriteHeader(http.StatusNoContent)
}
