package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/jgutierrezgil/guardiapass/internal/logging"
	"github.com/jgutierrezgil/guardiapass/internal/session"
)

// SessionCookieName is the name of the session cookie.
const SessionCookieName = "session"

// apiError represents a standardized API error response.
type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// jsonError writes a standardized JSON error response.
func jsonError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := apiError{}
	resp.Error.Code = code
	resp.Error.Message = message
	json.NewEncoder(w).Encode(resp)
}

// Context keys for auth data.
type (
	SessionContextKey struct{}
	TokenContextKey   struct{}
)

// SessionValidator resolves a session token.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (*session.Session, error)
}

// SessionAuth returns middleware that authenticates requests by session
// token, taken from the session cookie or an Authorization Bearer header.
func SessionAuth(validator SessionValidator, secureCookies bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, fromCookie := requestToken(r)
			if token == "" {
				jsonError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
				return
			}

			sess, err := validator.ValidateSession(r.Context(), token)
			if err != nil {
				if fromCookie {
					ClearSessionCookie(w, secureCookies)
				}
				jsonError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired session")
				return
			}

			// Add session and token to context
			ctx := context.WithValue(r.Context(), SessionContextKey{}, sess)
			ctx = context.WithValue(ctx, TokenContextKey{}, token)
			ctx = logging.WithUserID(ctx, sess.UserID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requestToken(r *http.Request) (token string, fromCookie bool) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
			return strings.TrimSpace(parts[1]), false
		}
		return "", false
	}

	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return cookie.Value, true
	}
	return "", false
}

// SetSessionCookie sets the session cookie for token.
func SetSessionCookie(w http.ResponseWriter, token string, expires time.Time, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie removes the session cookie.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// GetSession retrieves the session from the context.
func GetSession(ctx context.Context) *session.Session {
	sess, _ := ctx.Value(SessionContextKey{}).(*session.Session)
	return sess
}

// GetToken retrieves the session token from the context.
func GetToken(ctx context.Context) string {
	token, _ := ctx.Value(TokenContextKey{}).(string)
	return token
}
