package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/leaveledger/leaveledger-backend/pkg/database"
	"github.com/leaveledger/leaveledger-backend/pkg/errors"
)

// SnapshotRepository handles the balance snapshot rollup table.
type SnapshotRepository struct {
	db *database.DB
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *database.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Get returns the snapshot for the triple, or nil when none exists.
func (r *SnapshotRepository) Get(ctx context.Context, q database.Queryer, companyID, employeeID, policyID uuid.UUID) (*BalanceSnapshot, error) {
	return r.get(ctx, q, companyID, employeeID, policyID, false)
}

// GetForUpdate locks and returns the snapshot row, or nil when none
// exists. Every balance-changing path must lock before reading.
func (r *SnapshotRepository) GetForUpdate(ctx context.Context, q database.Queryer, companyID, employeeID, policyID uuid.UUID) (*BalanceSnapshot, error) {
	return r.get(ctx, q, companyID, employeeID, policyID, true)
}

func (r *SnapshotRepository) get(ctx context.Context, q database.Queryer, companyID, employeeID, policyID uuid.UUID, lock bool) (*BalanceSnapshot, error) {
	var snapshot BalanceSnapshot

	query := `
		SELECT company_id, employee_id, policy_id,
		       accrued_minutes, used_minutes, held_minutes, available_minutes,
		       version, updated_at
		FROM time_off_balance_snapshot
		WHERE company_id = $1 AND employee_id = $2 AND policy_id = $3
	`
	if lock {
		query += " FOR UPDATE"
	}

	err := q.GetContext(ctx, &snapshot, query, companyID, employeeID, policyID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &snapshot, nil
}

// ListByCompany returns every snapshot row for a company. Used by the
// balance summary report.
func (r *SnapshotRepository) ListByCompany(ctx context.Context, q database.Queryer, companyID uuid.UUID) ([]*BalanceSnapshot, error) {
	snapshots := []*BalanceSnapshot{}

	query := `
		SELECT company_id, employee_id, policy_id,
		       accrued_minutes, used_minutes, held_minutes, available_minutes,
		       version, updated_at
		FROM time_off_balance_snapshot
		WHERE company_id = $1
		ORDER BY policy_id, employee_id
	`
	if err := q.SelectContext(ctx, &snapshots, query, companyID); err != nil {
		return nil, err
	}

	return snapshots, nil
}

// Insert inserts a snapshot row with version 1.
func (r *SnapshotRepository) Insert(ctx context.Context, q database.Queryer, snapshot *BalanceSnapshot) error {
	snapshot.Version = 1
	snapshot.Recompute()

	query := `
		INSERT INTO time_off_balance_snapshot (
			company_id, employee_id, policy_id,
			accrued_minutes, used_minutes, held_minutes, available_minutes, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING updated_at
	`
	err := q.QueryRowxContext(ctx, query,
		snapshot.CompanyID, snapshot.EmployeeID, snapshot.PolicyID,
		snapshot.AccruedMinutes, snapshot.UsedMinutes, snapshot.HeldMinutes,
		snapshot.AvailableMinutes, snapshot.Version,
	).Scan(&snapshot.UpdatedAt)
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return mapped
		}
		return err
	}
	return nil
}

// Update writes the snapshot components, recomputes available and bumps
// the version counter. The caller must hold the row lock.
func (r *SnapshotRepository) Update(ctx context.Context, q database.Queryer, snapshot *BalanceSnapshot) error {
	snapshot.Recompute()
	snapshot.Version++

	query := `
		UPDATE time_off_balance_snapshot SET
			accrued_minutes = $4, used_minutes = $5, held_minutes = $6,
			available_minutes = $7, version = $8, updated_at = NOW()
		WHERE company_id = $1 AND employee_id = $2 AND policy_id = $3
	`
	result, err := q.ExecContext(ctx, query,
		snapshot.CompanyID, snapshot.EmployeeID, snapshot.PolicyID,
		snapshot.AccruedMinutes, snapshot.UsedMinutes, snapshot.HeldMinutes,
		snapshot.AvailableMinutes, snapshot.Version,
	)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("balance snapshot")
	}
	return nil
}
