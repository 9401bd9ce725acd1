package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/leaveledger/leaveledger-backend/internal/timeoff/domain"
	"github.com/leaveledger/leaveledger-backend/internal/timeoff/repository"
	"github.com/leaveledger/leaveledger-backend/pkg/database"
	"github.com/leaveledger/leaveledger-backend/pkg/errors"
	"github.com/leaveledger/leaveledger-backend/pkg/logger"
)

// CreateAssignmentParams describes a new policy assignment.
type CreateAssignmentParams struct {
	CompanyID     uuid.UUID
	EmployeeID    uuid.UUID
	PolicyID      uuid.UUID
	EffectiveFrom time.Time
	EffectiveTo   *time.Time
	ActorID       uuid.UUID
}

// AssignmentService manages policy assignments. Intervals are half-open
// [effective_from, effective_to) and may not overlap per employee and
// policy.
type AssignmentService struct {
	db          *database.DB
	assignments *repository.AssignmentRepository
	policies    *repository.PolicyRepository
	audit       *AuditRecorder
	logger      *logger.Logger
}

// NewAssignmentService creates a new assignment service.
func NewAssignmentService(
	db *database.DB,
	assignments *repository.AssignmentRepository,
	policies *repository.PolicyRepository,
	audit *AuditRecorder,
	log *logger.Logger,
) *AssignmentService {
	return &AssignmentService{
		db:          db,
		assignments: assignments,
		policies:    policies,
		audit:       audit,
		logger:      log,
	}
}

// Create assigns a policy to an employee.
func (s *AssignmentService) Create(ctx context.Context, params CreateAssignmentParams) (*repository.Assignment, error) {
	effectiveFrom := midnightUTC(params.EffectiveFrom)
	var effectiveTo *time.Time
	if params.EffectiveTo != nil {
		t := midnightUTC(*params.EffectiveTo)
		if !t.After(effectiveFrom) {
			return nil, errors.BadRequest("effective_to must be after effective_from")
		}
		effectiveTo = &t
	}

	assignment := &repository.Assignment{
		CompanyID:     params.CompanyID,
		EmployeeID:    params.EmployeeID,
		PolicyID:      params.PolicyID,
		EffectiveFrom: effectiveFrom,
		EffectiveTo:   effectiveTo,
		CreatedBy:     params.ActorID,
	}

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.policies.GetPolicy(ctx, tx, params.CompanyID, params.PolicyID); err != nil {
			return err
		}

		overlaps, err := s.assignments.HasOverlap(ctx, tx,
			params.CompanyID, params.EmployeeID, params.PolicyID, effectiveFrom, effectiveTo)
		if err != nil {
			return err
		}
		if overlaps {
			return errors.Conflict("Assignment overlaps an existing assignment for this policy")
		}

		if err := s.assignments.Insert(ctx, tx, assignment); err != nil {
			return err
		}

		return s.audit.Record(ctx, tx, params.CompanyID, domain.AuditAssignment, assignment.ID,
			domain.ActionCreate, params.ActorID, nil, assignment.AuditPayload())
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("company_id", params.CompanyID.String()).
		Str("employee_id", params.EmployeeID.String()).
		Str("policy_id", params.PolicyID.String()).
		Msg("policy assigned")

	return assignment, nil
}

// EndDate closes an open assignment at the given date.
func (s *AssignmentService) EndDate(ctx context.Context, companyID, assignmentID uuid.UUID, effectiveTo time.Time, actorID uuid.UUID) (*repository.Assignment, error) {
	endDate := midnightUTC(effectiveTo)

	var assignment *repository.Assignment
	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		assignment, err = s.assignments.Get(ctx, tx, companyID, assignmentID)
		if err != nil {
			return err
		}
		if assignment.EffectiveTo != nil {
			return errors.BadRequest("Assignment is already ended")
		}
		if endDate.Before(assignment.EffectiveFrom) {
			return errors.BadRequest("effective_to cannot be before effective_from")
		}

		before := assignment.AuditPayload()
		if err := s.assignments.EndDate(ctx, tx, assignment.ID, endDate); err != nil {
			return err
		}
		assignment.EffectiveTo = &endDate

		return s.audit.Record(ctx, tx, companyID, domain.AuditAssignment, assignment.ID,
			domain.ActionUpdate, actorID, before, assignment.AuditPayload())
	})
	if err != nil {
		return nil, err
	}

	return assignment, nil
}

// ListByPolicy lists assignments of a policy with pagination.
func (s *AssignmentService) ListByPolicy(ctx context.Context, companyID, policyID uuid.UUID, offset, limit int) ([]*repository.Assignment, int64, error) {
	if _, err := s.policies.GetPolicy(ctx, s.db, companyID, policyID); err != nil {
		return nil, 0, err
	}
	return s.assignments.ListByPolicy(ctx, s.db, companyID, policyID, offset, limit)
}

// ListByEmployee lists an employee's assignments, newest first.
func (s *AssignmentService) ListByEmployee(ctx context.Context, companyID, employeeID uuid.UUID) ([]*repository.Assignment, error) {
	return s.assignments.ListByEmployee(ctx, s.db, companyID, employeeID)
}

// VerifyActive returns the assignment active on the given date, or a
// 400 when the employee is not assigned to the policy.
func (s *AssignmentService) VerifyActive(ctx context.Context, q database.Queryer, companyID, employeeID, policyID uuid.UUID, date time.Time) (*repository.Assignment, error) {
	assignment, err := s.assignments.FindActiveOn(ctx, q, companyID, employeeID, policyID, date)
	if err != nil {
		return nil, err
	}
	if assignment == nil {
		return nil, errors.BadRequest("Employee has no active assignment for this policy")
	}
	return assignment, nil
}
