package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/leaveledger/leaveledger-backend/pkg/database"
	"github.com/leaveledger/leaveledger-backend/pkg/errors"
)

// AssignmentRepository handles policy assignment persistence.
type AssignmentRepository struct {
	db *database.DB
}

// NewAssignmentRepository creates a new assignment repository
func NewAssignmentRepository(db *database.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Insert inserts a new assignment row.
func (r *AssignmentRepository) Insert(ctx context.Context, q database.Queryer, assignment *Assignment) error {
	if assignment.ID == uuid.Nil {
		assignment.ID = uuid.New()
	}

	query := `
		INSERT INTO time_off_policy_assignment (
			id, company_id, employee_id, policy_id, effective_from, effective_to, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	err := q.QueryRowxContext(ctx, query,
		assignment.ID, assignment.CompanyID, assignment.EmployeeID,
		assignment.PolicyID, assignment.EffectiveFrom, assignment.EffectiveTo, assignment.CreatedBy,
	).Scan(&assignment.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err, "uq_assignment") {
			return errors.Conflict("Duplicate assignment")
		}
		return err
	}
	return nil
}

// Get gets an assignment by ID within a company.
func (r *AssignmentRepository) Get(ctx context.Context, q database.Queryer, companyID, id uuid.UUID) (*Assignment, error) {
	var assignment Assignment

	query := `
		SELECT id, company_id, employee_id, policy_id, effective_from, effective_to, created_by, created_at
		FROM time_off_policy_assignment
		WHERE company_id = $1 AND id = $2
	`
	err := q.GetContext(ctx, &assignment, query, companyID, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("assignment")
	}
	if err != nil {
		return nil, err
	}

	return &assignment, nil
}

// HasOverlap reports whether an existing assignment of the same policy to
// the same employee overlaps the half-open interval [from, to).
func (r *AssignmentRepository) HasOverlap(ctx context.Context, q database.Queryer, companyID, employeeID, policyID uuid.UUID, from time.Time, to *time.Time) (bool, error) {
	var count int

	query := `
		SELECT COUNT(*)
		FROM time_off_policy_assignment
		WHERE company_id = $1 AND employee_id = $2 AND policy_id = $3
		  AND (effective_to IS NULL OR effective_to > $4)
		  AND ($5::date IS NULL OR effective_from < $5)
	`
	if err := q.GetContext(ctx, &count, query, companyID, employeeID, policyID, from, to); err != nil {
		return false, err
	}

	return count > 0, nil
}

// EndDate closes an assignment at the given date.
func (r *AssignmentRepository) EndDate(ctx context.Context, q database.Queryer, id uuid.UUID, effectiveTo time.Time) error {
	result, err := q.ExecContext(ctx,
		`UPDATE time_off_policy_assignment SET effective_to = $2 WHERE id = $1`,
		id, effectiveTo,
	)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("assignment")
	}
	return nil
}

// FindActiveOn returns the assignment of a policy to an employee that is
// active on the given date, or nil when there is none.
func (r *AssignmentRepository) FindActiveOn(ctx context.Context, q database.Queryer, companyID, employeeID, policyID uuid.UUID, date time.Time) (*Assignment, error) {
	var assignment Assignment

	query := `
		SELECT id, company_id, employee_id, policy_id, effective_from, effective_to, created_by, created_at
		FROM time_off_policy_assignment
		WHERE company_id = $1 AND employee_id = $2 AND policy_id = $3
		  AND effective_from <= $4
		  AND (effective_to IS NULL OR effective_to > $4)
		ORDER BY effective_from DESC
		LIMIT 1
	`
	err := q.GetContext(ctx, &assignment, query, companyID, employeeID, policyID, date)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &assignment, nil
}

// ListByPolicy lists assignments of a policy with pagination.
func (r *AssignmentRepository) ListByPolicy(ctx context.Context, q database.Queryer, companyID, policyID uuid.UUID, offset, limit int) ([]*Assignment, int64, error) {
	var total int64
	if err := q.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM time_off_policy_assignment WHERE company_id = $1 AND policy_id = $2`,
		companyID, policyID); err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	assignments := []*Assignment{}
	query := `
		SELECT id, company_id, employee_id, policy_id, effective_from, effective_to, created_by, created_at
		FROM time_off_policy_assignment
		WHERE company_id = $1 AND policy_id = $2
		ORDER BY effective_from DESC, employee_id
		LIMIT $3 OFFSET $4
	`
	if err := q.SelectContext(ctx, &assignments, query, companyID, policyID, limit, offset); err != nil {
		return nil, 0, err
	}

	return assignments, total, nil
}

// ListByEmployee lists an employee's assignments, newest first.
func (r *AssignmentRepository) ListByEmployee(ctx context.Context, q database.Queryer, companyID, employeeID uuid.UUID) ([]*Assignment, error) {
	assignments := []*Assignment{}

	query := `
		SELECT id, company_id, employee_id, policy_id, effective_from, effective_to, created_by, created_at
		FROM time_off_policy_assignment
		WHERE company_id = $1 AND employee_id = $2
		ORDER BY effective_from DESC
	`
	if err := q.SelectContext(ctx, &assignments, query, companyID, employeeID); err != nil {
		return nil, err
	}

	return assignments, nil
}

// ListActiveOn lists assignments active on the given date, optionally
// restricted to a company. Used by the batch engines.
func (r *AssignmentRepository) ListActiveOn(ctx context.Context, q database.Queryer, date time.Time, companyID *uuid.UUID) ([]*Assignment, error) {
	assignments := []*Assignment{}

	query := `
		SELECT id, company_id, employee_id, policy_id, effective_from, effective_to, created_by, created_at
		FROM time_off_policy_assignment
		WHERE effective_from <= $1
		  AND (effective_to IS NULL OR effective_to > $1)
		  AND ($2::uuid IS NULL OR company_id = $2)
		ORDER BY company_id, employee_id, policy_id
	`
	if err := q.SelectContext(ctx, &assignments, query, date, companyID); err != nil {
		return nil, err
	}

	return assignments, nil
}

// ListActiveByEmployee lists an employee's assignments active on the date.
func (r *AssignmentRepository) ListActiveByEmployee(ctx context.Context, q database.Queryer, companyID, employeeID uuid.UUID, date time.Time) ([]*Assignment, error) {
	assignments := []*Assignment{}

	query := `
		SELECT id, company_id, employee_id, policy_id, effective_from, effective_to, created_by, created_at
		FROM time_off_policy_assignment
		WHERE company_id = $1 AND employee_id = $2
		  AND effective_from <= $3
		  AND (effective_to IS NULL OR effective_to > $3)
		ORDER BY policy_id
	`
	if err := q.SelectContext(ctx, &assignments, query, companyID, employeeID, date); err != nil {
		return nil, err
	}

	return assignments, nil
}

// ListActiveByCompany lists all assignments active on the date for a company.
func (r *AssignmentRepository) ListActiveByCompany(ctx context.Context, q database.Queryer, companyID uuid.UUID, date time.Time) ([]*Assignment, error) {
	assignments := []*Assignment{}

	query := `
		SELECT id, company_id, employee_id, policy_id, effective_from, effective_to, created_by, created_at
		FROM time_off_policy_assignment
		WHERE company_id = $1
		  AND effective_from <= $2
		  AND (effective_to IS NULL OR effective_to > $2)
		ORDER BY employee_id, policy_id
	`
	if err := q.SelectContext(ctx, &assignments, query, companyID, date); err != nil {
		return nil, err
	}

	return assignments, nil
}
