package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/leaveledger/leaveledger-backend/pkg/database"
	"github.com/leaveledger/leaveledger-backend/pkg/errors"
)

// HolidayRepository handles company holiday persistence.
type HolidayRepository struct {
	db *database.DB
}

// NewHolidayRepository creates a new holiday repository
func NewHolidayRepository(db *database.DB) *HolidayRepository {
	return &HolidayRepository{db: db}
}

// Insert inserts a new holiday row.
func (r *HolidayRepository) Insert(ctx context.Context, q database.Queryer, holiday *Holiday) error {
	if holiday.ID == uuid.Nil {
		holiday.ID = uuid.New()
	}

	query := `
		INSERT INTO company_holiday (id, company_id, date, name)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	err := q.QueryRowxContext(ctx, query,
		holiday.ID, holiday.CompanyID, holiday.Date, holiday.Name,
	).Scan(&holiday.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err, "uq_company_holiday") {
			return errors.Conflict("a holiday already exists on this date")
		}
		return err
	}
	return nil
}

// List lists holidays, optionally restricted to a closed date range.
func (r *HolidayRepository) List(ctx context.Context, q database.Queryer, companyID uuid.UUID, from, to *time.Time) ([]*Holiday, error) {
	holidays := []*Holiday{}

	query := `
		SELECT id, company_id, date, name, created_at
		FROM company_holiday
		WHERE company_id = $1
		  AND ($2::date IS NULL OR date >= $2)
		  AND ($3::date IS NULL OR date <= $3)
		ORDER BY date
	`
	if err := q.SelectContext(ctx, &holidays, query, companyID, from, to); err != nil {
		return nil, err
	}

	return holidays, nil
}

// DatesBetween returns the holiday dates in the closed range [from, to].
func (r *HolidayRepository) DatesBetween(ctx context.Context, q database.Queryer, companyID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	dates := []time.Time{}

	query := `
		SELECT date
		FROM company_holiday
		WHERE company_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date
	`
	if err := q.SelectContext(ctx, &dates, query, companyID, from, to); err != nil {
		return nil, err
	}

	return dates, nil
}

// Delete removes a holiday.
func (r *HolidayRepository) Delete(ctx context.Context, q database.Queryer, companyID, id uuid.UUID) (*Holiday, error) {
	var holiday Holiday

	query := `
		DELETE FROM company_holiday
		WHERE company_id = $1 AND id = $2
		RETURNING id, company_id, date, name, created_at
	`
	err := q.QueryRowxContext(ctx, query, companyID, id).Scan(
		&holiday.ID, &holiday.CompanyID, &holiday.Date, &holiday.Name, &holiday.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("holiday")
	}
	if err != nil {
		return nil, err
	}

	return &holiday, nil
}
