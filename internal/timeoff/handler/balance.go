package handler

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/leaveledger/leaveledger-backend/internal/timeoff/repository"
	"github.com/leaveledger/leaveledger-backend/internal/timeoff/service"
	"github.com/leaveledger/leaveledger-backend/pkg/auth"
	"github.com/leaveledger/leaveledger-backend/pkg/httputil"
	"github.com/leaveledger/leaveledger-backend/pkg/logger"
)

// BalanceHandler handles balance, ledger and adjustment endpoints.
type BalanceHandler struct {
	service *service.BalanceService
	logger  *logger.Logger
}

// NewBalanceHandler creates a new balance handler.
func NewBalanceHandler(svc *service.BalanceService, log *logger.Logger) *BalanceHandler {
	return &BalanceHandler{
		service: svc,
		logger:  log,
	}
}

// Balances returns an employee's balance per active policy assignment.
func (h *BalanceHandler) Balances(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustFromContext(r.Context())
	employeeID, err := uuidParam(r, "employeeID")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	balances, err := h.service.EmployeeBalances(r.Context(), identity.CompanyID, employeeID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.List(w, balances, int64(len(balances)))
}

// Ledger lists an employee's ledger entries, newest first.
func (h *BalanceHandler) Ledger(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustFromContext(r.Context())
	employeeID, err := uuidParam(r, "employeeID")
	if err != nil {
		httputil.Error(w, err)
		return
	}
	offset, limit := pagination(r)

	params := repository.LedgerListParams{
		CompanyID:  identity.CompanyID,
		EmployeeID: &employeeID,
		Offset:     offset,
		Limit:      limit,
	}
	policyID, err := queryUUID(r, "policy_id")
	if err != nil {
		httputil.Error(w, err)
		return
	}
	params.PolicyID = policyID
	from, err := queryDate(r, "from")
	if err != nil {
		httputil.Error(w, err)
		return
	}
	params.From = from
	to, err := queryDate(r, "to")
	if err != nil {
		httputil.Error(w, err)
		return
	}
	params.To = to

	entries, total, err := h.service.EmployeeLedger(r.Context(), params)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.List(w, entries, total)
}

// Adjust posts an administrative balance adjustment.
func (h *BalanceHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustFromContext(r.Context())
	employeeID, err := uuidParam(r, "employeeID")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req AdjustmentRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	entry, snapshot, err := h.service.Adjust(r.Context(), service.AdjustParams{
		CompanyID:     identity.CompanyID,
		EmployeeID:    employeeID,
		PolicyID:      req.PolicyID,
		AmountMinutes: req.AmountMinutes,
		Reason:        req.Reason,
		ActorID:       identity.UserID,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, AdjustmentResponse{Entry: entry, Snapshot: snapshot})
}

// AdjustmentRequest is the request body for a balance adjustment.
type AdjustmentRequest struct {
	PolicyID      uuid.UUID `json:"policy_id" validate:"required"`
	AmountMinutes int64     `json:"amount_minutes" validate:"required"`
	Reason        string    `json:"reason" validate:"required,min=1,max=500"`
}

// AdjustmentResponse returns the posted entry and the updated snapshot.
type AdjustmentResponse struct {
	Entry    *repository.LedgerEntry     `json:"entry"`
	Snapshot *repository.BalanceSnapshot `json:"snapshot"`
}
