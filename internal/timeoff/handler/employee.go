package handler

import (
	"net/http"
	"time"

	"github.com/leaveledger/leaveledger-backend/internal/directory"
	"github.com/leaveledger/leaveledger-backend/pkg/auth"
	"github.com/leaveledger/leaveledger-backend/pkg/errors"
	"github.com/leaveledger/leaveledger-backend/pkg/httputil"
	"github.com/leaveledger/leaveledger-backend/pkg/logger"
)

// EmployeeHandler exposes the employee directory. The canonical
// directory lives in an upstream HR system; these endpoints manage the
// in-process replica the duration calculator and accrual engine read.
type EmployeeHandler struct {
	directory *directory.InMemoryDirectory
	logger    *logger.Logger
}

// NewEmployeeHandler creates a new employee handler.
func NewEmployeeHandler(dir *directory.InMemoryDirectory, log *logger.Logger) *EmployeeHandler {
	return &EmployeeHandler{
		directory: dir,
		logger:    log,
	}
}

// Put upserts an employee directory record.
func (h *EmployeeHandler) Put(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustFromContext(r.Context())
	employeeID, err := uuidParam(r, "employeeID")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req PutEmployeeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	info := directory.EmployeeInfo{
		ID:             employeeID,
		CompanyID:      identity.CompanyID,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Email:          req.Email,
		PayType:        req.PayType,
		WorkdayMinutes: req.WorkdayMinutes,
		Timezone:       req.Timezone,
	}
	if req.Timezone != "" {
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			httputil.Error(w, errors.BadRequest("timezone must be a valid IANA name"))
			return
		}
	}
	if req.HireDate != nil {
		hireDate, err := parseDate("hire_date", *req.HireDate)
		if err != nil {
			httputil.Error(w, err)
			return
		}
		info.HireDate = &hireDate
	}

	h.directory.PutEmployee(info)

	stored, err := h.directory.GetEmployee(r.Context(), identity.CompanyID, employeeID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, stored)
}

// Get returns one employee directory record.
func (h *EmployeeHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustFromContext(r.Context())
	employeeID, err := uuidParam(r, "employeeID")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	info, err := h.directory.GetEmployee(r.Context(), identity.CompanyID, employeeID)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	if info == nil {
		httputil.Error(w, errors.NotFound("employee"))
		return
	}

	httputil.JSON(w, http.StatusOK, info)
}

// List lists the company's employee directory records.
func (h *EmployeeHandler) List(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustFromContext(r.Context())

	employees, err := h.directory.ListEmployees(r.Context(), identity.CompanyID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.List(w, employees, int64(len(employees)))
}

// PutEmployeeRequest is the request body for upserting an employee
// directory record.
type PutEmployeeRequest struct {
	FirstName      string  `json:"first_name" validate:"required,min=1,max=255"`
	LastName       string  `json:"last_name" validate:"required,min=1,max=255"`
	Email          string  `json:"email" validate:"omitempty,email"`
	PayType        string  `json:"pay_type" validate:"omitempty,oneof=SALARIED HOURLY"`
	WorkdayMinutes int64   `json:"workday_minutes" validate:"omitempty,gt=0"`
	Timezone       string  `json:"timezone,omitempty"`
	HireDate       *string `json:"hire_date,omitempty"`
}
