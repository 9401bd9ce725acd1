package handler_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/leaveledger/leaveledger-backend/internal/timeoff/handler"
	"github.com/leaveledger/leaveledger-backend/pkg/auth"
	"github.com/leaveledger/leaveledger-backend/pkg/logger"
	"github.com/leaveledger/leaveledger-backend/pkg/testutil"
)

func newWebhookRouter() chi.Router {
	h := handler.NewEngineHandler(nil, nil, logger.New("test", "test"))

	r := chi.NewRouter()
	r.Use(auth.Middleware)
	r.Post("/v1/time-off/webhooks/payroll_processed", h.PayrollWebhook)
	return r
}

func payrollBody(companyID uuid.UUID) map[string]any {
	return map[string]any{
		"payroll_run_id": "pr-2024-08",
		"company_id":     companyID.String(),
		"period_start":   time.Date(2024, time.August, 1, 0, 0, 0, 0, time.UTC),
		"period_end":     time.Date(2024, time.August, 15, 0, 0, 0, 0, time.UTC),
		"entries": []map[string]any{
			{"employee_id": uuid.New().String(), "worked_minutes": 2400},
		},
	}
}

func TestPayrollWebhookTenantCheck(t *testing.T) {
	router := newWebhookRouter()
	callerCompany := uuid.New()

	t.Run("body company must match the caller", func(t *testing.T) {
		req := testutil.NewHTTPRequest(http.MethodPost,
			"/v1/time-off/webhooks/payroll_processed", payrollBody(uuid.New()))
		testutil.WithIdentityHeaders(req, callerCompany.String(), uuid.New().String(), auth.RoleAdmin)

		rr := testutil.ExecuteRequest(router, req)
		testutil.AssertStatus(t, rr, http.StatusForbidden)
		testutil.AssertBodyContains(t, rr, "Company ID mismatch")
	})

	t.Run("missing body company fails validation", func(t *testing.T) {
		body := payrollBody(callerCompany)
		delete(body, "company_id")

		req := testutil.NewHTTPRequest(http.MethodPost,
			"/v1/time-off/webhooks/payroll_processed", body)
		testutil.WithIdentityHeaders(req, callerCompany.String(), uuid.New().String(), auth.RoleAdmin)

		rr := testutil.ExecuteRequest(router, req)
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})
}
