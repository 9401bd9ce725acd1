package handler

import (
	"net/http"

	"github.com/leaveledger/leaveledger-backend/internal/timeoff/domain"
	"github.com/leaveledger/leaveledger-backend/internal/timeoff/repository"
	"github.com/leaveledger/leaveledger-backend/internal/timeoff/service"
	"github.com/leaveledger/leaveledger-backend/pkg/auth"
	"github.com/leaveledger/leaveledger-backend/pkg/httputil"
	"github.com/leaveledger/leaveledger-backend/pkg/logger"
)

// ReportHandler handles the admin reporting endpoints.
type ReportHandler struct {
	service *service.ReportService
	logger  *logger.Logger
}

// NewReportHandler creates a new report handler.
func NewReportHandler(svc *service.ReportService, log *logger.Logger) *ReportHandler {
	return &ReportHandler{
		service: svc,
		logger:  log,
	}
}

// AuditLog queries the audit log with filters.
func (h *ReportHandler) AuditLog(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustFromContext(r.Context())
	offset, limit := pagination(r)

	params := repository.AuditListParams{
		CompanyID: identity.CompanyID,
		Offset:    offset,
		Limit:     limit,
	}
	if entityType := r.URL.Query().Get("entity_type"); entityType != "" {
		t := domain.AuditEntityType(entityType)
		params.EntityType = &t
	}
	if action := r.URL.Query().Get("action"); action != "" {
		a := domain.AuditAction(action)
		params.Action = &a
	}
	actorID, err := queryUUID(r, "actor_id")
	if err != nil {
		httputil.Error(w, err)
		return
	}
	params.ActorID = actorID
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

	logs, total, err := h.service.AuditLogs(r.Context(), params)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.List(w, logs, total)
}

// BalanceSummary rolls up balances per policy across the company.
func (h *ReportHandler) BalanceSummary(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustFromContext(r.Context())

	summary, err := h.service.BalanceSummary(r.Context(), identity.CompanyID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.List(w, summary, int64(len(summary)))
}

// LedgerExport returns ledger entries for export.
func (h *ReportHandler) LedgerExport(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustFromContext(r.Context())
	offset, _ := pagination(r)

	params := repository.LedgerListParams{
		CompanyID: identity.CompanyID,
		Offset:    offset,
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

	entries, total, err := h.service.LedgerExport(r.Context(), params)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.List(w, entries, total)
}
