package handler

import (
	"net/http"

	"github.com/leaveledger/leaveledger-backend/internal/timeoff/service"
	"github.com/leaveledger/leaveledger-backend/pkg/auth"
	"github.com/leaveledger/leaveledger-backend/pkg/httputil"
	"github.com/leaveledger/leaveledger-backend/pkg/logger"
)

// HolidayHandler handles company holiday calendar endpoints.
type HolidayHandler struct {
	service *service.HolidayService
	logger  *logger.Logger
}

// NewHolidayHandler creates a new holiday handler.
func NewHolidayHandler(svc *service.HolidayService, log *logger.Logger) *HolidayHandler {
	return &HolidayHandler{
		service: svc,
		logger:  log,
	}
}

// Create adds a holiday.
func (h *HolidayHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustFromContext(r.Context())

	var req CreateHolidayRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	date, err := parseDate("date", req.Date)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	holiday, err := h.service.Create(r.Context(), identity.CompanyID, date, req.Name, identity.UserID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, holiday)
}

// List lists holidays, optionally within a date range.
func (h *HolidayHandler) List(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustFromContext(r.Context())

	from, err := queryDate(r, "from")
	if err != nil {
		httputil.Error(w, err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	holidays, err := h.service.List(r.Context(), identity.CompanyID, from, to)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.List(w, holidays, int64(len(holidays)))
}

// Delete removes a holiday.
func (h *HolidayHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustFromContext(r.Context())
	holidayID, err := uuidParam(r, "holidayID")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.service.Delete(r.Context(), identity.CompanyID, holidayID, identity.UserID); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// CreateHolidayRequest is the request body for adding a holiday.
type CreateHolidayRequest struct {
	Date string `json:"date" validate:"required"`
	Name string `json:"name" validate:"required,min=1,max=255"`
}
