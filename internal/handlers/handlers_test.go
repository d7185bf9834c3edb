package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jgutierrezgil/guardiapass/internal/config"
	"github.com/jgutierrezgil/guardiapass/internal/crypto"
	"github.com/jgutierrezgil/guardiapass/internal/middleware"
	"github.com/jgutierrezgil/guardiapass/internal/services"
	"github.com/jgutierrezgil/guardiapass/internal/session"
	"github.com/jgutierrezgil/guardiapass/internal/store"
)

const (
	masterPassword = "CorrectHorse9!Battery"
	newMaster      = "Tr0ub4dor&Xy9!zK"
)

type testServer struct {
	t        *testing.T
	handler  http.Handler
	store    store.Store
	sessions *session.MemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st, err := store.NewBoltStore(filepath.Join(t.TempDir(), "vault.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := &config.Config{
		Security: config.SecurityConfig{
			Environment:        "development",
			KeyStorage:         config.KeyStorageDerived,
			EnvelopeMode:       crypto.ModeAuthenticated,
			SessionLifetime:    30 * time.Minute,
			MaxRequestBodySize: 1 << 20,
			MaxLoginAttempts:   3,
			LockoutDuration:    15 * time.Minute,
		},
		RateLimit: config.RateLimitConfig{Requests: 1000, Window: time.Minute},
	}

	sessions := session.NewMemoryStore(cfg.Security.SessionLifetime)
	userService := services.NewUserService(st, store.KeyStorageDerived, crypto.ModeAuthenticated)

	deps := &Dependencies{
		Config:        cfg,
		Store:         st,
		RateLimiter:   middleware.NewMemoryRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window),
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		UserService:   userService,
		AuthService:   services.NewAuthService(userService, sessions, cfg.Security.MaxLoginAttempts, cfg.Security.LockoutDuration),
		RecordService: services.NewRecordService(st),
		AuditService:  services.NewAuditService(st),
	}

	return &testServer{t: t, handler: NewRouter(deps), store: st, sessions: sessions}
}

// do sends a JSON request, authenticated with token when it is not empty.
func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

// signup registers username and logs in, returning the session token.
func (s *testServer) signup(username string) string {
	s.t.Helper()

	w := s.do(http.MethodPost, "/auth/register", "", map[string]string{
		"username":         username,
		"password":         masterPassword,
		"confirm_password": masterPassword,
	})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/auth/login", "", map[string]string{
		"username": username,
		"password": masterPassword,
	})
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data sessionResponse `json:"data"`
	}
	decode(s.t, w, &resp)
	require.NotEmpty(s.t, resp.Data.Token)
	return resp.Data.Token
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp apiError
	decode(t, w, &resp)
	return resp.Error.Code
}
