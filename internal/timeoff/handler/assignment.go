package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/leaveledger/leaveledger-backend/internal/timeoff/service"
	"github.com/leaveledger/leaveledger-backend/pkg/auth"
	"github.com/leaveledger/leaveledger-backend/pkg/httputil"
	"github.com/leaveledger/leaveledger-backend/pkg/logger"
)

// AssignmentHandler handles policy assignment endpoints.
type AssignmentHandler struct {
	service *service.AssignmentService
	logger  *logger.Logger
}

// NewAssignmentHandler creates a new assignment handler.
func NewAssignmentHandler(svc *service.AssignmentService, log *logger.Logger) *AssignmentHandler {
	return &AssignmentHandler{
		service: svc,
		logger:  log,
	}
}

// Create assigns a policy to an employee.
func (h *AssignmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustFromContext(r.Context())
	policyID, err := uuidParam(r, "policyID")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req CreateAssignmentRequest
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
	var effectiveTo *time.Time
	if req.EffectiveTo != nil {
		t, err := parseDate("effective_to", *req.EffectiveTo)
		if err != nil {
			httputil.Error(w, err)
			return
		}
		effectiveTo = &t
	}

	assignment, err := h.service.Create(r.Context(), service.CreateAssignmentParams{
		CompanyID:     identity.CompanyID,
		EmployeeID:    req.EmployeeID,
		PolicyID:      policyID,
		EffectiveFrom: effectiveFrom,
		EffectiveTo:   effectiveTo,
		ActorID:       identity.UserID,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, assignment)
}

// End closes an open assignment.
func (h *AssignmentHandler) End(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustFromContext(r.Context())
	assignmentID, err := uuidParam(r, "assignmentID")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req EndAssignmentRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	effectiveTo, err := parseDate("effective_to", req.EffectiveTo)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	assignment, err := h.service.EndDate(r.Context(), identity.CompanyID, assignmentID, effectiveTo, identity.UserID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, assignment)
}

// ListByPolicy lists assignments of a policy.
func (h *AssignmentHandler) ListByPolicy(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustFromContext(r.Context())
	policyID, err := uuidParam(r, "policyID")
	if err != nil {
		httputil.Error(w, err)
		return
	}
	offset, limit := pagination(r)

	assignments, total, err := h.service.ListByPolicy(r.Context(), identity.CompanyID, policyID, offset, limit)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.List(w, assignments, total)
}

// ListByEmployee lists an employee's assignments.
func (h *AssignmentHandler) ListByEmployee(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustFromContext(r.Context())
	employeeID, err := uuidParam(r, "employeeID")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	assignments, err := h.service.ListByEmployee(r.Context(), identity.CompanyID, employeeID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.List(w, assignments, int64(len(assignments)))
}

// CreateAssignmentRequest is the request body for assigning a policy.
type CreateAssignmentRequest struct {
	EmployeeID    uuid.UUID `json:"employee_id" validate:"required"`
	EffectiveFrom string    `json:"effective_from" validate:"required"`
	EffectiveTo   *string   `json:"effective_to,omitempty"`
}

// EndAssignmentRequest is the request body for ending an assignment.
type EndAssignmentRequest struct {
	EffectiveTo string `json:"effective_to" validate:"required"`
}
