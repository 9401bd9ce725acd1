package handler

import (
	"net/http"
	"time"

	"github.com/leaveledger/leaveledger-backend/internal/timeoff/service"
	"github.com/leaveledger/leaveledger-backend/pkg/auth"
	"github.com/leaveledger/leaveledger-backend/pkg/errors"
	"github.com/leaveledger/leaveledger-backend/pkg/httputil"
	"github.com/leaveledger/leaveledger-backend/pkg/logger"
)

// EngineHandler exposes manual triggers for the batch engines and the
// payroll webhook. The triggers run the same code paths as the worker.
type EngineHandler struct {
	accruals  *service.AccrualService
	carryover *service.CarryoverService
	logger    *logger.Logger
}

// NewEngineHandler creates a new engine handler.
func NewEngineHandler(accruals *service.AccrualService, carryover *service.CarryoverService, log *logger.Logger) *EngineHandler {
	return &EngineHandler{
		accruals:  accruals,
		carryover: carryover,
		logger:    log,
	}
}

// RunAccruals runs the time-based accrual engine for the company.
func (h *EngineHandler) RunAccruals(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustFromContext(r.Context())
	targetDate, err := targetDateFromBody(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.accruals.RunTimeBased(r.Context(), targetDate, &identity.CompanyID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// RunCarryover runs the year-end carryover engine for the company.
func (h *EngineHandler) RunCarryover(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustFromContext(r.Context())
	targetDate, err := targetDateFromBody(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.carryover.RunCarryover(r.Context(), targetDate, &identity.CompanyID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// RunExpiration runs the expiration engine for the company.
func (h *EngineHandler) RunExpiration(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustFromContext(r.Context())
	targetDate, err := targetDateFromBody(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.carryover.RunExpiration(r.Context(), targetDate, &identity.CompanyID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// PayrollWebhook ingests a payroll run and grants hours-worked accrual.
func (h *EngineHandler) PayrollWebhook(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustFromContext(r.Context())

	var payload service.PayrollProcessedPayload
	if err := httputil.DecodeJSON(r, &payload); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(payload); err != nil {
		httputil.Error(w, err)
		return
	}
	// The tenant comes from the webhook body; the caller's identity must
	// agree with it rather than silently rewriting it.
	if payload.CompanyID != identity.CompanyID {
		httputil.Error(w, errors.Forbidden("Company ID mismatch"))
		return
	}

	result, err := h.accruals.ProcessPayroll(r.Context(), payload)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// EngineRunRequest optionally overrides the target date of a manual run.
type EngineRunRequest struct {
	TargetDate string `json:"target_date,omitempty"`
}

func targetDateFromBody(r *http.Request) (time.Time, error) {
	var body EngineRunRequest
	// An empty body means "run for today".
	_ = httputil.DecodeJSON(r, &body)

	if body.TargetDate == "" {
		return time.Now().UTC(), nil
	}
	return parseDate("target_date", body.TargetDate)
}
