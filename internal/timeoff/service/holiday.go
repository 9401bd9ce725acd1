package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/leaveledger/leaveledger-backend/internal/timeoff/domain"
	"github.com/leaveledger/leaveledger-backend/internal/timeoff/repository"
	"github.com/leaveledger/leaveledger-backend/pkg/database"
	"github.com/leaveledger/leaveledger-backend/pkg/logger"
)

// HolidayService manages the company holiday calendar used by the
// working-time calculator.
type HolidayService struct {
	db       *database.DB
	holidays *repository.HolidayRepository
	audit    *AuditRecorder
	logger   *logger.Logger
}

// NewHolidayService creates a new holiday service.
func NewHolidayService(db *database.DB, holidays *repository.HolidayRepository, audit *AuditRecorder, log *logger.Logger) *HolidayService {
	return &HolidayService{
		db:       db,
		holidays: holidays,
		audit:    audit,
		logger:   log,
	}
}

// Create adds a holiday to the company calendar.
func (s *HolidayService) Create(ctx context.Context, companyID uuid.UUID, date time.Time, name string, actorID uuid.UUID) (*repository.Holiday, error) {
	holiday := &repository.Holiday{
		CompanyID: companyID,
		Date:      midnightUTC(date),
		Name:      name,
	}

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := s.holidays.Insert(ctx, tx, holiday); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, companyID, domain.AuditHoliday, holiday.ID,
			domain.ActionCreate, actorID, nil, holiday.AuditPayload())
	})
	if err != nil {
		return nil, err
	}

	return holiday, nil
}

// List lists holidays, optionally restricted to a date range.
func (s *HolidayService) List(ctx context.Context, companyID uuid.UUID, from, to *time.Time) ([]*repository.Holiday, error) {
	return s.holidays.List(ctx, s.db, companyID, from, to)
}

// Delete removes a holiday from the calendar.
func (s *HolidayService) Delete(ctx context.Context, companyID, holidayID, actorID uuid.UUID) error {
	return s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		holiday, err := s.holidays.Delete(ctx, tx, companyID, holidayID)
		if err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, companyID, domain.AuditHoliday, holiday.ID,
			domain.ActionDelete, actorID, holiday.AuditPayload(), nil)
	})
}
