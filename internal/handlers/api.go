package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jgutierrezgil/guardiapass/internal/logging"
	"github.com/jgutierrezgil/guardiapass/internal/middleware"
	"github.com/jgutierrezgil/guardiapass/internal/services"
	"github.com/jgutierrezgil/guardiapass/internal/store"
	"github.com/jgutierrezgil/guardiapass/internal/vault"
)

// APIHandler handles the credential record endpoints.
type APIHandler struct {
	recordService      *services.RecordService
	auditService       *services.AuditService
	maxRequestBodySize int64
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(
	recordService *services.RecordService,
	auditService *services.AuditService,
	maxRequestBodySize int64,
) *APIHandler {
	return &APIHandler{
		recordService:      recordService,
		auditService:       auditService,
		maxRequestBodySize: maxRequestBodySize,
	}
}

// Response helpers

type apiResponse struct {
	Data any            `json:"data"`
	Meta map[string]any `json:"meta,omitempty"`
}

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Meta map[string]any `json:"meta,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func jsonResponse(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, apiResponse{Data: data})
}

func jsonError(w http.ResponseWriter, status int, code, message string) {
	resp := apiError{}
	resp.Error.Code = code
	resp.Error.Message = message
	writeJSON(w, status, resp)
}

// decodeJSON reads a JSON body of at most limit bytes into dst. An empty
// body leaves dst unchanged.
func decodeJSON(r *http.Request, limit int64, dst any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, limit)).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// credentialResponse is a record as returned by the API. Password is null
// when the stored secret could not be decrypted.
type credentialResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	URL          string    `json:"url"`
	Username     string    `json:"username"`
	Password     *string   `json:"password"`
	Comments     string    `json:"comments"`
	DecryptError bool      `json:"decrypt_error"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toCredentialResponse(c *vault.Credential) credentialResponse {
	resp := credentialResponse{
		ID:           c.ID,
		Name:         c.Name,
		URL:          c.URL,
		Username:     c.Username,
		Comments:     c.Comments,
		DecryptError: c.DecryptError,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
	if !c.DecryptError {
		password := c.Password
		resp.Password = &password
	}
	return resp
}

type recordRequest struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Username string `json:"username"`
	Password string `json:"password"`
	Comments string `json:"comments"`
}

type recordPatchRequest struct {
	Name     *string `json:"name"`
	URL      *string `json:"url"`
	Username *string `json:"username"`
	Password *string `json:"password"`
	Comments *string `json:"comments"`
}

func recordID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		jsonError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid record ID")
		return uuid.Nil, false
	}
	return id, true
}

// Records

// ListRecords handles GET /api/v1/passwords
func (h *APIHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	if sess == nil {
		jsonError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("search"))
	creds, err := h.recordService.List(r.Context(), sess, query)
	if err != nil {
		writeServiceError(w, r, err, "record_list_failed")
		return
	}

	resp := make([]credentialResponse, 0, len(creds))
	for _, c := range creds {
		resp = append(resp, toCredentialResponse(c))
	}
	jsonResponse(w, http.StatusOK, resp)
}

// CreateRecord handles POST /api/v1/passwords
func (h *APIHandler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	log := logging.Logger(r.Context())

	sess := middleware.GetSession(r.Context())
	if sess == nil {
		jsonError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	var req recordRequest
	if err := decodeJSON(r, h.maxRequestBodySize, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid request body")
		return
	}

	cred, err := h.recordService.Create(r.Context(), sess, vault.CredentialInput{
		Name:     req.Name,
		URL:      req.URL,
		Username: req.Username,
		Password: req.Password,
		Comments: req.Comments,
	})
	if err != nil {
		writeServiceError(w, r, err, "record_creation_failed")
		return
	}

	h.auditService.LogAsync(services.LogParams{
		UserID:       sess.UserID,
		Action:       services.ActionRecordCreate,
		ResourceType: services.ResourceRecord,
		ResourceID:   cred.ID.String(),
		ResourceName: cred.Name,
		IPAddress:    r.RemoteAddr,
	})

	log.Info("record_created", "record_id", cred.ID, "user_id", sess.UserID)

	jsonResponse(w, http.StatusCreated, toCredentialResponse(cred))
}

// GetRecord handles GET /api/v1/passwords/{id}
func (h *APIHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	if sess == nil {
		jsonError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	id, ok := recordID(w, r)
	if !ok {
		return
	}

	cred, err := h.recordService.Get(r.Context(), sess, id)
	if err != nil {
		writeServiceError(w, r, err, "record_get_failed")
		return
	}

	h.auditService.LogAsync(services.LogParams{
		UserID:       sess.UserID,
		Action:       services.ActionRecordRead,
		ResourceType: services.ResourceRecord,
		ResourceID:   cred.ID.String(),
		ResourceName: cred.Name,
		IPAddress:    r.RemoteAddr,
	})

	jsonResponse(w, http.StatusOK, toCredentialResponse(cred))
}

// UpdateRecord handles PUT /api/v1/passwords/{id}. Omitted fields keep
// their stored values.
func (h *APIHandler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	log := logging.Logger(r.Context())

	sess := middleware.GetSession(r.Context())
	if sess == nil {
		jsonError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	id, ok := recordID(w, r)
	if !ok {
		return
	}

	var req recordPatchRequest
	if err := decodeJSON(r, h.maxRequestBodySize, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid request body")
		return
	}

	cred, err := h.recordService.Update(r.Context(), sess, id, services.RecordPatch{
		Name:     req.Name,
		URL:      req.URL,
		Username: req.Username,
		Password: req.Password,
		Comments: req.Comments,
	})
	if err != nil {
		writeServiceError(w, r, err, "record_update_failed")
		return
	}

	h.auditService.LogAsync(services.LogParams{
		UserID:       sess.UserID,
		Action:       services.ActionRecordUpdate,
		ResourceType: services.ResourceRecord,
		ResourceID:   cred.ID.String(),
		ResourceName: cred.Name,
		IPAddress:    r.RemoteAddr,
		Metadata:     map[string]any{"password_changed": req.Password != nil},
	})

	log.Info("record_updated", "record_id", cred.ID, "user_id", sess.UserID)

	jsonResponse(w, http.StatusOK, toCredentialResponse(cred))
}

// DeleteRecord handles DELETE /api/v1/passwords/{id}
func (h *APIHandler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	log := logging.Logger(r.Context())

	sess := middleware.GetSession(r.Context())
	if sess == nil {
		jsonError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	id, ok := recordID(w, r)
	if !ok {
		return
	}

	rec, err := h.recordService.Delete(r.Context(), sess.UserID, id)
	if err != nil {
		writeServiceError(w, r, err, "record_deletion_failed")
		return
	}

	h.auditService.LogAsync(services.LogParams{
		UserID:       sess.UserID,
		Action:       services.ActionRecordDelete,
		ResourceType: services.ResourceRecord,
		ResourceID:   rec.ID.String(),
		ResourceName: rec.Name,
		IPAddress:    r.RemoteAddr,
	})

	log.Info("record_deleted", "record_id", rec.ID, "user_id", sess.UserID)

	w.WriteHeader(http.StatusNoContent)
}

// Audit

// ListAuditLogs handles GET /api/v1/audit
func (h *APIHandler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	if sess == nil {
		jsonError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.auditService.ListByUser(r.Context(), sess.UserID, limit)
	if err != nil {
		writeServiceError(w, r, err, "audit_list_failed")
		return
	}
	if entries == nil {
		entries = []*store.AuditEntry{}
	}

	jsonResponse(w, http.StatusOK, entries)
}
