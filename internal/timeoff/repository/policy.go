package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/leaveledger/leaveledger-backend/pkg/database"
	"github.com/leaveledger/leaveledger-backend/pkg/errors"
)

// PolicyRepository handles policy and policy version persistence.
type PolicyRepository struct {
	db *database.DB
}

// NewPolicyRepository creates a new policy repository
func NewPolicyRepository(db *database.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

// DB returns the underlying pool for read-only calls.
func (r *PolicyRepository) DB() database.Queryer {
	return r.db
}

// InsertPolicy inserts a new policy row.
func (r *PolicyRepository) InsertPolicy(ctx context.Context, q database.Queryer, policy *Policy) error {
	if policy.ID == uuid.Nil {
		policy.ID = uuid.New()
	}

	query := `
		INSERT INTO time_off_policy (id, company_id, key, name, category)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`
	err := q.QueryRowxContext(ctx, query,
		policy.ID, policy.CompanyID, policy.Key, policy.Name, policy.Category,
	).Scan(&policy.CreatedAt, &policy.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err, "uq_policy_company_key") {
			return errors.Conflict("Policy with this key already exists for this company")
		}
		return err
	}
	return nil
}

// GetPolicy gets a policy by ID within a company.
func (r *PolicyRepository) GetPolicy(ctx context.Context, q database.Queryer, companyID, id uuid.UUID) (*Policy, error) {
	var policy Policy

	query := `
		SELECT id, company_id, key, name, category, created_at, updated_at
		FROM time_off_policy
		WHERE company_id = $1 AND id = $2
	`
	err := q.GetContext(ctx, &policy, query, companyID, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("policy")
	}
	if err != nil {
		return nil, err
	}

	return &policy, nil
}

// ListPolicies lists a company's policies with pagination.
func (r *PolicyRepository) ListPolicies(ctx context.Context, q database.Queryer, companyID uuid.UUID, offset, limit int) ([]*Policy, int64, error) {
	var total int64
	if err := q.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM time_off_policy WHERE company_id = $1`, companyID); err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	policies := []*Policy{}
	query := `
		SELECT id, company_id, key, name, category, created_at, updated_at
		FROM time_off_policy
		WHERE company_id = $1
		ORDER BY key
		LIMIT $2 OFFSET $3
	`
	if err := q.SelectContext(ctx, &policies, query, companyID, limit, offset); err != nil {
		return nil, 0, err
	}

	return policies, total, nil
}

// InsertVersion inserts a new policy version row.
func (r *PolicyRepository) InsertVersion(ctx context.Context, q database.Queryer, version *PolicyVersion) error {
	if version.ID == uuid.Nil {
		version.ID = uuid.New()
	}

	query := `
		INSERT INTO time_off_policy_version (
			id, policy_id, version, effective_from, effective_to,
			type, accrual_method, settings_json, created_by, change_reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`
	err := q.QueryRowxContext(ctx, query,
		version.ID, version.PolicyID, version.Version, version.EffectiveFrom, version.EffectiveTo,
		version.Type, version.AccrualMethod, version.Settings, version.CreatedBy, version.ChangeReason,
	).Scan(&version.CreatedAt)
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return mapped
		}
		return err
	}
	return nil
}

// CurrentVersion returns the open-ended (effective_to IS NULL) version.
func (r *PolicyRepository) CurrentVersion(ctx context.Context, q database.Queryer, policyID uuid.UUID) (*PolicyVersion, error) {
	return r.currentVersion(ctx, q, policyID, false)
}

// CurrentVersionForUpdate locks and returns the open-ended version.
// Used when end-dating it to create a successor.
func (r *PolicyRepository) CurrentVersionForUpdate(ctx context.Context, q database.Queryer, policyID uuid.UUID) (*PolicyVersion, error) {
	return r.currentVersion(ctx, q, policyID, true)
}

func (r *PolicyRepository) currentVersion(ctx context.Context, q database.Queryer, policyID uuid.UUID, lock bool) (*PolicyVersion, error) {
	var version PolicyVersion

	query := `
		SELECT id, policy_id, version, effective_from, effective_to,
		       type, accrual_method, settings_json, created_by, change_reason, created_at
		FROM time_off_policy_version
		WHERE policy_id = $1 AND effective_to IS NULL
		ORDER BY version DESC
		LIMIT 1
	`
	if lock {
		query += " FOR UPDATE"
	}

	err := q.GetContext(ctx, &version, query, policyID)
	if err == sql.ErrNoRows {
		return nil, errors.BadRequest("Policy has no active version")
	}
	if err != nil {
		return nil, err
	}

	return &version, nil
}

// VersionEffectiveOn returns the version covering the given date, using
// half-open [effective_from, effective_to) semantics.
func (r *PolicyRepository) VersionEffectiveOn(ctx context.Context, q database.Queryer, policyID uuid.UUID, date time.Time) (*PolicyVersion, error) {
	var version PolicyVersion

	query := `
		SELECT id, policy_id, version, effective_from, effective_to,
		       type, accrual_method, settings_json, created_by, change_reason, created_at
		FROM time_off_policy_version
		WHERE policy_id = $1
		  AND effective_from <= $2
		  AND (effective_to IS NULL OR effective_to > $2)
		ORDER BY version DESC
		LIMIT 1
	`
	err := q.GetContext(ctx, &version, query, policyID, date)
	if err == sql.ErrNoRows {
		return nil, errors.BadRequest("Policy has no active version")
	}
	if err != nil {
		return nil, err
	}

	return &version, nil
}

// EndDateVersion closes a version at the given date.
func (r *PolicyRepository) EndDateVersion(ctx context.Context, q database.Queryer, versionID uuid.UUID, endDate time.Time) error {
	result, err := q.ExecContext(ctx,
		`UPDATE time_off_policy_version SET effective_to = $2 WHERE id = $1`,
		versionID, endDate,
	)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("policy version")
	}
	return nil
}

// ListVersions lists all versions of a policy, newest first.
func (r *PolicyRepository) ListVersions(ctx context.Context, q database.Queryer, policyID uuid.UUID) ([]*PolicyVersion, error) {
	versions := []*PolicyVersion{}

	query := `
		SELECT id, policy_id, version, effective_from, effective_to,
		       type, accrual_method, settings_json, created_by, change_reason, created_at
		FROM time_off_policy_version
		WHERE policy_id = $1
		ORDER BY version DESC
	`
	if err := q.SelectContext(ctx, &versions, query, policyID); err != nil {
		return nil, err
	}

	return versions, nil
}
