package handlers

import (
	"net/http"

	"github.com/jgutierrezgil/guardiapass/internal/logging"
	"github.com/jgutierrezgil/guardiapass/internal/metrics"
	"github.com/jgutierrezgil/guardiapass/internal/passgen"
	"github.com/jgutierrezgil/guardiapass/internal/strength"
)

// ToolsHandler serves the password generator and strength endpoints.
// These hold no state and need no session.
type ToolsHandler struct {
	maxRequestBodySize int64
}

// NewToolsHandler creates a new ToolsHandler.
func NewToolsHandler(maxRequestBodySize int64) *ToolsHandler {
	return &ToolsHandler{maxRequestBodySize: maxRequestBodySize}
}

type generateResponse struct {
	Password string `json:"password"`
	Length   int    `json:"length"`
	strength.Result
}

type passwordRequest struct {
	Password string `json:"password"`
}

type validateResponse struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// Generate handles POST /api/v1/passwords/generate. Omitted options take
// their defaults.
func (h *ToolsHandler) Generate(w http.ResponseWriter, r *http.Request) {
	opts := passgen.DefaultOptions()
	if err := decodeJSON(r, h.maxRequestBodySize, &opts); err != nil {
		jsonError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid request body")
		return
	}

	password, err := passgen.Generate(opts)
	if err != nil {
		writeServiceError(w, r, err, "password_generation_failed")
		return
	}

	result := strength.Measure(password)
	metrics.PasswordsGenerated.WithLabelValues("api").Inc()
	metrics.StrengthScores.Observe(float64(result.Score))

	logging.Logger(r.Context()).Debug("password_generated", "length", opts.Length, "strength", result.Label)

	jsonResponse(w, http.StatusOK, generateResponse{
		Password: password,
		Length:   opts.Length,
		Result:   result,
	})
}

// CheckStrength handles POST /api/v1/passwords/check-strength
func (h *ToolsHandler) CheckStrength(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := decodeJSON(r, h.maxRequestBodySize, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid request body")
		return
	}
	if req.Password == "" {
		jsonError(w, http.StatusBadRequest, "INVALID_INPUT", "password is required")
		return
	}

	result := strength.Measure(req.Password)
	metrics.StrengthScores.Observe(float64(result.Score))

	jsonResponse(w, http.StatusOK, result)
}

// ValidatePassword handles POST /api/v1/passwords/validate
func (h *ToolsHandler) ValidatePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := decodeJSON(r, h.maxRequestBodySize, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid request body")
		return
	}

	valid, problems := strength.Validate(req.Password)
	if problems == nil {
		problems = []string{}
	}

	jsonResponse(w, http.StatusOK, validateResponse{Valid: valid, Errors: problems})
}
