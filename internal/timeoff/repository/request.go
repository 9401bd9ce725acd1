package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/leaveledger/leaveledger-backend/internal/timeoff/domain"
	"github.com/leaveledger/leaveledger-backend/pkg/database"
	"github.com/leaveledger/leaveledger-backend/pkg/errors"
)

// ErrDuplicateRequest is returned by Insert when the idempotency
// constraint fires; callers decide whether to replay or reject.
var ErrDuplicateRequest = errors.Conflict("Duplicate request")

// RequestListParams holds filters for listing requests.
type RequestListParams struct {
	CompanyID  uuid.UUID
	EmployeeID *uuid.UUID
	PolicyID   *uuid.UUID
	Status     *domain.RequestStatus
	Offset     int
	Limit      int
}

// RequestRepository handles time-off request persistence.
type RequestRepository struct {
	db *database.DB
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *database.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Insert inserts a new request row. A unique violation on the
// idempotency constraint is surfaced as ErrDuplicateRequest.
func (r *RequestRepository) Insert(ctx context.Context, q database.Queryer, request *Request) error {
	if request.ID == uuid.Nil {
		request.ID = uuid.New()
	}

	query := `
		INSERT INTO time_off_request (
			id, company_id, employee_id, policy_id, start_at, end_at,
			requested_minutes, status, note, idempotency_key, submitted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`
	err := q.QueryRowxContext(ctx, query,
		request.ID, request.CompanyID, request.EmployeeID, request.PolicyID,
		request.StartAt, request.EndAt, request.RequestedMinutes, request.Status,
		request.Note, request.IdempotencyKey, request.SubmittedAt,
	).Scan(&request.CreatedAt, &request.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err, "uq_request_idempotency") {
			return ErrDuplicateRequest
		}
		return err
	}
	return nil
}

// Get gets a request by ID within a company.
func (r *RequestRepository) Get(ctx context.Context, q database.Queryer, companyID, id uuid.UUID) (*Request, error) {
	return r.get(ctx, q, companyID, id, false)
}

// GetForUpdate locks and returns a request row for a workflow decision.
func (r *RequestRepository) GetForUpdate(ctx context.Context, q database.Queryer, companyID, id uuid.UUID) (*Request, error) {
	return r.get(ctx, q, companyID, id, true)
}

func (r *RequestRepository) get(ctx context.Context, q database.Queryer, companyID, id uuid.UUID, lock bool) (*Request, error) {
	var request Request

	query := `
		SELECT id, company_id, employee_id, policy_id, start_at, end_at,
		       requested_minutes, status, note, idempotency_key, submitted_at,
		       decided_at, decided_by, decision_note, created_at, updated_at
		FROM time_off_request
		WHERE company_id = $1 AND id = $2
	`
	if lock {
		query += " FOR UPDATE"
	}

	err := q.GetContext(ctx, &request, query, companyID, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("request")
	}
	if err != nil {
		return nil, err
	}

	return &request, nil
}

// FindByIdempotencyKey returns the request previously created with the key.
func (r *RequestRepository) FindByIdempotencyKey(ctx context.Context, q database.Queryer, companyID, employeeID uuid.UUID, key string) (*Request, error) {
	var request Request

	query := `
		SELECT id, company_id, employee_id, policy_id, start_at, end_at,
		       requested_minutes, status, note, idempotency_key, submitted_at,
		       decided_at, decided_by, decision_note, created_at, updated_at
		FROM time_off_request
		WHERE company_id = $1 AND employee_id = $2 AND idempotency_key = $3
	`
	err := q.GetContext(ctx, &request, query, companyID, employeeID, key)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("request")
	}
	if err != nil {
		return nil, err
	}

	return &request, nil
}

// HasOverlap reports whether the employee already has a SUBMITTED or
// APPROVED request on the same policy overlapping [startAt, endAt).
func (r *RequestRepository) HasOverlap(ctx context.Context, q database.Queryer, companyID, employeeID, policyID uuid.UUID, startAt, endAt time.Time) (bool, error) {
	var count int

	query := `
		SELECT COUNT(*)
		FROM time_off_request
		WHERE company_id = $1 AND employee_id = $2 AND policy_id = $3
		  AND status IN ('SUBMITTED', 'APPROVED')
		  AND start_at < $5 AND end_at > $4
	`
	if err := q.GetContext(ctx, &count, query, companyID, employeeID, policyID, startAt, endAt); err != nil {
		return false, err
	}

	return count > 0, nil
}

// UpdateDecision writes the workflow decision fields.
func (r *RequestRepository) UpdateDecision(ctx context.Context, q database.Queryer, request *Request) error {
	query := `
		UPDATE time_off_request SET
			status = $2, decided_at = $3, decided_by = $4, decision_note = $5,
			updated_at = NOW()
		WHERE id = $1
	`
	result, err := q.ExecContext(ctx, query,
		request.ID, request.Status, request.DecidedAt, request.DecidedBy, request.DecisionNote,
	)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("request")
	}
	return nil
}

// List lists requests with filters and pagination.
func (r *RequestRepository) List(ctx context.Context, q database.Queryer, params RequestListParams) ([]*Request, int64, error) {
	where := `WHERE company_id = $1
		  AND ($2::uuid IS NULL OR employee_id = $2)
		  AND ($3::uuid IS NULL OR policy_id = $3)
		  AND ($4::text IS NULL OR status = $4)`

	var total int64
	if err := q.GetContext(ctx, &total,
		"SELECT COUNT(*) FROM time_off_request "+where,
		params.CompanyID, params.EmployeeID, params.PolicyID, params.Status); err != nil {
		return nil, 0, err
	}

	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}

	requests := []*Request{}
	query := `
		SELECT id, company_id, employee_id, policy_id, start_at, end_at,
		       requested_minutes, status, note, idempotency_key, submitted_at,
		       decided_at, decided_by, decision_note, created_at, updated_at
		FROM time_off_request
	` + where + `
		ORDER BY created_at DESC
		LIMIT $5 OFFSET $6
	`
	if err := q.SelectContext(ctx, &requests, query,
		params.CompanyID, params.EmployeeID, params.PolicyID, params.Status, limit, offset); err != nil {
		return nil, 0, err
	}

	return requests, total, nil
}
