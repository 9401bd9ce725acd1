package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/leaveledger/leaveledger-backend/pkg/auth"
	"github.com/leaveledger/leaveledger-backend/pkg/database"
	"github.com/leaveledger/leaveledger-backend/pkg/httputil"
	"github.com/leaveledger/leaveledger-backend/pkg/logger"
)

// Handlers groups the HTTP handlers mounted by the router.
type Handlers struct {
	Policies    *PolicyHandler
	Assignments *AssignmentHandler
	Requests    *RequestHandler
	Balances    *BalanceHandler
	Holidays    *HolidayHandler
	Employees   *EmployeeHandler
	Engines     *EngineHandler
	Reports     *ReportHandler
}

// NewRouter builds the service router. All /companies/{companyID}
// routes require identity headers and company scope; admin routes are
// additionally gated on the admin role.
func NewRouter(h Handlers, db *database.DB, log *logger.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", auth.HeaderCompanyID, auth.HeaderUserID, auth.HeaderRole, "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Use(auth.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "ok",
			"service":  "timeoff-service",
			"database": db.Health(r.Context()),
		})
	})

	r.Route("/companies/{companyID}", func(r chi.Router) {
		r.Use(auth.CompanyScope)

		r.Route("/policies", func(r chi.Router) {
			r.Get("/", h.Policies.List)
			r.With(auth.RequireAdmin).Post("/", h.Policies.Create)
			r.Get("/{policyID}", h.Policies.Get)
			r.Get("/{policyID}/versions", h.Policies.ListVersions)
			r.With(auth.RequireAdmin).Post("/{policyID}/versions", h.Policies.CreateVersion)
			r.Get("/{policyID}/assignments", h.Assignments.ListByPolicy)
			r.With(auth.RequireAdmin).Post("/{policyID}/assignments", h.Assignments.Create)
		})

		r.With(auth.RequireAdmin).Post("/assignments/{assignmentID}/end", h.Assignments.End)

		r.Route("/requests", func(r chi.Router) {
			r.Post("/", h.Requests.Submit)
			r.Get("/", h.Requests.List)
			r.Get("/{requestID}", h.Requests.Get)
			r.With(auth.RequireAdmin).Post("/{requestID}/approve", h.Requests.Approve)
			r.With(auth.RequireAdmin).Post("/{requestID}/deny", h.Requests.Deny)
			r.Post("/{requestID}/cancel", h.Requests.Cancel)
		})

		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.Employees.List)
			r.Get("/{employeeID}", h.Employees.Get)
			r.With(auth.RequireAdmin).Put("/{employeeID}", h.Employees.Put)
			r.Get("/{employeeID}/assignments", h.Assignments.ListByEmployee)
			r.Get("/{employeeID}/balances", h.Balances.Balances)
			r.Get("/{employeeID}/ledger", h.Balances.Ledger)
			r.With(auth.RequireAdmin).Post("/{employeeID}/adjustments", h.Balances.Adjust)
		})

		r.Route("/holidays", func(r chi.Router) {
			r.Get("/", h.Holidays.List)
			r.With(auth.RequireAdmin).Post("/", h.Holidays.Create)
			r.With(auth.RequireAdmin).Delete("/{holidayID}", h.Holidays.Delete)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin)
			r.Post("/accruals/run", h.Engines.RunAccruals)
			r.Post("/carryover/run", h.Engines.RunCarryover)
			r.Post("/expiration/run", h.Engines.RunExpiration)
			r.Get("/reports/audit-log", h.Reports.AuditLog)
			r.Get("/reports/balance-summary", h.Reports.BalanceSummary)
			r.Get("/reports/ledger-export", h.Reports.LedgerExport)
		})
	})

	r.With(auth.RequireAdmin).Post("/webhooks/payroll_processed", h.Engines.PayrollWebhook)

	return r
}
