package handler

import (
	"encoding/json"
	"net/http"

	"github.com/leaveledger/leaveledger-backend/internal/timeoff/domain"
	"github.com/leaveledger/leaveledger-backend/internal/timeoff/service"
	"github.com/leaveledger/leaveledger-backend/pkg/auth"
	"github.com/leaveledger/leaveledger-backend/pkg/httputil"
	"github.com/leaveledger/leaveledger-backend/pkg/logger"
)

// PolicyHandler handles policy and policy version endpoints.
type PolicyHandler struct {
	service *service.PolicyService
	logger  *logger.Logger
}

// NewPolicyHandler creates a new policy handler.
func NewPolicyHandler(svc *service.PolicyService, log *logger.Logger) *PolicyHandler {
	return &PolicyHandler{
		service: svc,
		logger:  log,
	}
}

// Create creates a policy with its first version.
func (h *PolicyHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustFromContext(r.Context())

	var req CreatePolicyRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	effectiveFrom, err := parseDate("effective_from", req.EffectiveFrom)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.Create(r.Context(), service.CreatePolicyParams{
		CompanyID:     identity.CompanyID,
		Key:           req.Key,
		Name:          req.Name,
		Category:      domain.PolicyCategory(req.Category),
		EffectiveFrom: effectiveFrom,
		Settings:      req.Settings,
		ChangeReason:  req.ChangeReason,
		ActorID:       identity.UserID,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, result)
}

// Get returns a policy with its current version.
func (h *PolicyHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustFromContext(r.Context())
	policyID, err := uuidParam(r, "policyID")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.Get(r.Context(), identity.CompanyID, policyID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// List lists the company's policies.
func (h *PolicyHandler) List(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustFromContext(r.Context())
	offset, limit := pagination(r)

	items, total, err := h.service.List(r.Context(), identity.CompanyID, offset, limit)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.List(w, items, total)
}

// CreateVersion publishes a new version of a policy.
func (h *PolicyHandler) CreateVersion(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustFromContext(r.Context())
	policyID, err := uuidParam(r, "policyID")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req CreatePolicyVersionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	effectiveFrom, err := parseDate("effective_from", req.EffectiveFrom)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.Update(r.Context(), service.UpdatePolicyParams{
		CompanyID:     identity.CompanyID,
		PolicyID:      policyID,
		EffectiveFrom: effectiveFrom,
		Settings:      req.Settings,
		ChangeReason:  req.ChangeReason,
		ActorID:       identity.UserID,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, result)
}

// ListVersions lists the version history of a policy.
func (h *PolicyHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustFromContext(r.Context())
	policyID, err := uuidParam(r, "policyID")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	versions, err := h.service.ListVersions(r.Context(), identity.CompanyID, policyID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.List(w, versions, int64(len(versions)))
}

// CreatePolicyRequest is the request body for creating a policy.
type CreatePolicyRequest struct {
	Key           string          `json:"key" validate:"required,min=1,max=64"`
	Name          string          `json:"name" validate:"required,min=1,max=255"`
	Category      string          `json:"category" validate:"required,oneof=VACATION SICK PERSONAL BEREAVEMENT PARENTAL OTHER"`
	EffectiveFrom string          `json:"effective_from" validate:"required"`
	Settings      json.RawMessage `json:"settings" validate:"required"`
	ChangeReason  *string         `json:"change_reason,omitempty"`
}

// CreatePolicyVersionRequest is the request body for publishing a new
// policy version.
type CreatePolicyVersionRequest struct {
	EffectiveFrom string          `json:"effective_from" validate:"required"`
	Settings      json.RawMessage `json:"settings" validate:"required"`
	ChangeReason  *string         `json:"change_reason,omitempty"`
}
