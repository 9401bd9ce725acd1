package handler

import (
	"context"
	"net/http"

	"github.com/leaveledger/leaveledger-backend/internal/timeoff/domain"
	"github.com/leaveledger/leaveledger-backend/internal/timeoff/repository"
	"github.com/leaveledger/leaveledger-backend/internal/timeoff/service"
	"github.com/leaveledger/leaveledger-backend/pkg/auth"
	"github.com/leaveledger/leaveledger-backend/pkg/errors"
	"github.com/leaveledger/leaveledger-backend/pkg/httputil"
	"github.com/leaveledger/leaveledger-backend/pkg/logger"

	"github.com/google/uuid"
)

// RequestHandler handles the time-off request workflow endpoints.
type RequestHandler struct {
	service *service.RequestService
	logger  *logger.Logger
}

// NewRequestHandler creates a new request handler.
func NewRequestHandler(svc *service.RequestService, log *logger.Logger) *RequestHandler {
	return &RequestHandler{
		service: svc,
		logger:  log,
	}
}

// Submit submits a new time-off request. Employees submit for
// themselves; admins may submit on behalf of any employee.
func (h *RequestHandler) Submit(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustFromContext(r.Context())

	var req SubmitRequestBody
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	employeeID := identity.UserID
	if req.EmployeeID != nil {
		if *req.EmployeeID != identity.UserID && !identity.IsAdmin() {
			httputil.Error(w, errors.Forbidden("Only admins can submit requests for other employees"))
			return
		}
		employeeID = *req.EmployeeID
	}

	request, err := h.service.Submit(r.Context(), service.SubmitRequestParams{
		CompanyID:      identity.CompanyID,
		EmployeeID:     employeeID,
		PolicyID:       req.PolicyID,
		StartAt:        req.StartAt,
		EndAt:          req.EndAt,
		Note:           req.Note,
		IdempotencyKey: req.IdempotencyKey,
		ActorID:        identity.UserID,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, request)
}

// Get returns one request.
func (h *RequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustFromContext(r.Context())
	requestID, err := uuidParam(r, "requestID")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	request, err := h.service.Get(r.Context(), identity.CompanyID, requestID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, request)
}

// List lists requests with filters.
func (h *RequestHandler) List(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustFromContext(r.Context())
	offset, limit := pagination(r)

	params := repository.RequestListParams{
		CompanyID: identity.CompanyID,
		Offset:    offset,
		Limit:     limit,
	}
	employeeID, err := queryUUID(r, "employee_id")
	if err != nil {
		httputil.Error(w, err)
		return
	}
	params.EmployeeID = employeeID
	policyID, err := queryUUID(r, "policy_id")
	if err != nil {
		httputil.Error(w, err)
		return
	}
	params.PolicyID = policyID
	if status := r.URL.Query().Get("status"); status != "" {
		s := domain.RequestStatus(status)
		params.Status = &s
	}

	requests, total, err := h.service.List(r.Context(), params)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.List(w, requests, total)
}

// Approve approves a submitted request.
func (h *RequestHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.Approve)
}

// Deny denies a submitted request.
func (h *RequestHandler) Deny(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.Deny)
}

// Cancel withdraws a submitted request.
func (h *RequestHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustFromContext(r.Context())
	params, err := decisionParams(r, identity)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	request, err := h.service.Cancel(r.Context(), params, identity)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, request)
}

func (h *RequestHandler) decide(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, params service.DecideRequestParams) (*repository.Request, error)) {
	identity := auth.MustFromContext(r.Context())
	params, err := decisionParams(r, identity)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	request, err := fn(r.Context(), params)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, request)
}

func decisionParams(r *http.Request, identity auth.Identity) (service.DecideRequestParams, error) {
	requestID, err := uuidParam(r, "requestID")
	if err != nil {
		return service.DecideRequestParams{}, err
	}

	var body DecisionBody
	// A decision body is optional.
	_ = httputil.DecodeJSON(r, &body)

	return service.DecideRequestParams{
		CompanyID: identity.CompanyID,
		RequestID: requestID,
		Note:      body.Note,
		ActorID:   identity.UserID,
	}, nil
}

// SubmitRequestBody is the request body for submitting a request.
type SubmitRequestBody struct {
	EmployeeID     *uuid.UUID `json:"employee_id,omitempty"`
	PolicyID       uuid.UUID  `json:"policy_id" validate:"required"`
	StartAt        string     `json:"start_at" validate:"required"`
	EndAt          string     `json:"end_at" validate:"required"`
	Note           *string    `json:"note,omitempty"`
	IdempotencyKey *string    `json:"idempotency_key,omitempty"`
}

// DecisionBody is the optional body for approve, deny and cancel.
type DecisionBody struct {
	Note *string `json:"note,omitempty"`
}
