package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/keyforge/keyforge/internal/apierr"
	"github.com/keyforge/keyforge/internal/domain/apikey"
	"github.com/keyforge/keyforge/internal/service"
)

// Handlers wires the Validator and Admin services to net/http.
type Handlers struct {
	validator *service.Validator
	admin     *service.Admin
	metrics   *Metrics
	logger    *slog.Logger
}

// NewHandlers builds the route handlers.
func NewHandlers(validator *service.Validator, admin *service.Admin, metrics *Metrics, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{validator: validator, admin: admin, metrics: metrics, logger: logger}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{Code: code, Message: message}})
}

// writeAPIErr translates an apierr.Kind into the wire error envelope. A
// non-classified error is treated as Permanent, never leaking its text.
func writeAPIErr(w http.ResponseWriter, logger *slog.Logger, err error, message string) {
	kind, ok := apierr.As(err)
	if !ok {
		logger.Error(message, "error", err)
		writeError(w, http.StatusInternalServerError, apierr.KindPermanent.Code(), "internal error")
		return
	}
	if kind == apierr.KindTransient || kind == apierr.KindPermanent {
		logger.Error(message, "error", err, "kind", kind.String())
	}
	writeError(w, kind.HTTPStatus(), kind.Code(), message)
}

// decodeStrict decodes a JSON body, rejecting unknown fields and trailing
// data, per the strict-decoder contract.
func decodeStrict(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("trailing data after JSON body")
	}
	return nil
}

type validateKeyRequest struct {
	APIKey string `json:"api_key"`
}

type validateKeyResponse struct {
	ProjectID string `json:"project_id"`
	KeyID     string `json:"key_id"`
	Owner     string `json:"owner"`
	Metadata  string `json:"metadata"`
}

// HandleValidateKey serves POST /v1/validate-key. Public: no admin gate.
func (h *Handlers) HandleValidateKey(w http.ResponseWriter, r *http.Request) {
	var req validateKeyRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed_request", "request body is not valid JSON")
		return
	}

	res, err := h.validator.Validate(r.Context(), req.APIKey)
	if err != nil {
		if kind, ok := apierr.As(err); ok && kind == apierr.KindRateLimited && h.metrics != nil {
			h.metrics.RateLimitDenials.Inc()
		}
		if h.metrics != nil {
			h.metrics.ValidationResult.WithLabelValues(apikey.ResultDenied).Inc()
		}
		writeAPIErr(w, h.logger, err, "validation denied")
		return
	}

	if h.metrics != nil {
		h.metrics.ValidationResult.WithLabelValues(apikey.ResultOK).Inc()
	}
	writeJSON(w, http.StatusOK, validateKeyResponse{
		ProjectID: res.ProjectID,
		KeyID:     res.KeyID,
		Owner:     res.Owner,
		Metadata:  res.Metadata,
	})
}

type mintKeyRequest struct {
	ProjectID string   `json:"project_id"`
	Owner     string   `json:"owner"`
	Metadata  string   `json:"metadata"`
	ExpiresAt *float64 `json:"expires_at"`
}

type mintKeyResponse struct {
	APIKey string `json:"api_key"`
}

// HandleMintKey serves POST /v1/mint-key. Admin-gated.
func (h *Handlers) HandleMintKey(w http.ResponseWriter, r *http.Request) {
	var req mintKeyRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed_request", "request body is not valid JSON")
		return
	}
	if req.ProjectID == "" {
		writeError(w, apierr.KindValidationError.HTTPStatus(), apierr.KindValidationError.Code(), "project_id is required")
		return
	}

	res, err := h.admin.Mint(r.Context(), service.MintInput{
		ProjectID: req.ProjectID,
		Owner:     req.Owner,
		Metadata:  req.Metadata,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		writeAPIErr(w, h.logger, err, "mint failed")
		return
	}
	writeJSON(w, http.StatusCreated, mintKeyResponse{APIKey: res.APIKey})
}

type revokeKeyRequest struct {
	ProjectID string `json:"project_id"`
	KeyID     string `json:"key_id"`
}

type revokeKeyResponse struct {
	Revoked bool `json:"revoked"`
}

// HandleRevokeKey serves POST /v1/revoke-key. Admin-gated.
func (h *Handlers) HandleRevokeKey(w http.ResponseWriter, r *http.Request) {
	var req revokeKeyRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed_request", "request body is not valid JSON")
		return
	}
	if req.ProjectID == "" || req.KeyID == "" {
		writeError(w, apierr.KindValidationError.HTTPStatus(), apierr.KindValidationError.Code(), "project_id and key_id are required")
		return
	}

	res, err := h.admin.Revoke(r.Context(), req.ProjectID, req.KeyID)
	if err != nil {
		writeAPIErr(w, h.logger, err, "revoke failed")
		return
	}
	writeJSON(w, http.StatusOK, revokeKeyResponse{Revoked: res.Revoked})
}

type listKeysItem struct {
	KeyID     string   `json:"key_id"`
	Owner     string   `json:"owner"`
	Metadata  string   `json:"metadata"`
	CreatedAt float64  `json:"created_at"`
	Disabled  bool     `json:"disabled"`
	ExpiresAt *float64 `json:"expires_at"`
}

type listKeysResponse struct {
	Items []listKeysItem `json:"items"`
	Next  *int           `json:"next"`
}

// HandleListKeys serves GET /v1/list-keys. Admin-gated.
func (h *Handlers) HandleListKeys(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	projectID := q.Get("project_id")
	if projectID == "" {
		writeError(w, apierr.KindValidationError.HTTPStatus(), apierr.KindValidationError.Code(), "project_id is required")
		return
	}
	offset := parseIntDefault(q.Get("offset"), 0)
	limit := parseIntDefault(q.Get("limit"), 50)

	res, err := h.admin.List(r.Context(), projectID, offset, limit)
	if err != nil {
		writeAPIErr(w, h.logger, err, "list failed")
		return
	}

	items := make([]listKeysItem, 0, len(res.Items))
	for _, it := range res.Items {
		items = append(items, listKeysItem{
			KeyID:     it.KeyID,
			Owner:     it.Owner,
			Metadata:  it.Metadata,
			CreatedAt: it.CreatedAt,
			Disabled:  it.Disabled,
			ExpiresAt: it.ExpiresAt,
		})
	}
	writeJSON(w, http.StatusOK, listKeysResponse{Items: items, Next: res.Next})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

type projectResponse struct {
	ProjectID string  `json:"project_id"`
	Label     string  `json:"label"`
	Owner     string  `json:"owner"`
	CreatedAt float64 `json:"created_at"`
}

// HandleCreateProject serves POST /v1/admin/create-project. Admin-gated.
func (h *Handlers) HandleCreateProject(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	projectID := q.Get("project_id")
	if projectID == "" {
		writeError(w, apierr.KindValidationError.HTTPStatus(), apierr.KindValidationError.Code(), "project_id is required")
		return
	}

	doc, err := h.admin.CreateProject(r.Context(), projectID, q.Get("label"), q.Get("owner"))
	if err != nil {
		writeAPIErr(w, h.logger, err, "create project failed")
		return
	}
	writeJSON(w, http.StatusCreated, projectResponse{
		ProjectID: doc.ProjectID,
		Label:     doc.Label,
		Owner:     doc.Owner,
		CreatedAt: doc.CreatedAt,
	})
}

// HandleGetProject serves GET /v1/admin/project/{project_id}. Admin-gated.
func (h *Handlers) HandleGetProject(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("project_id")
	if projectID == "" {
		writeError(w, apierr.KindValidationError.HTTPStatus(), apierr.KindValidationError.Code(), "project_id is required")
		return
	}

	doc, err := h.admin.GetProject(r.Context(), projectID)
	if err != nil {
		writeAPIErr(w, h.logger, err, "get project failed")
		return
	}
	writeJSON(w, http.StatusOK, projectResponse{
		ProjectID: doc.ProjectID,
		Label:     doc.Label,
		Owner:     doc.Owner,
		CreatedAt: doc.CreatedAt,
	})
}
