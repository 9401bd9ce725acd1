package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/leaveledger/leaveledger-backend/internal/timeoff/domain"
	"github.com/leaveledger/leaveledger-backend/pkg/database"
)

// LedgerTotals is the ledger aggregation used to rebuild a snapshot.
type LedgerTotals struct {
	AccruedMinutes int64 `db:"accrued_minutes"`
	UsedMinutes    int64 `db:"used_minutes"`
	HeldMinutes    int64 `db:"held_minutes"`
}

// LedgerListParams holds filters for listing ledger entries.
type LedgerListParams struct {
	CompanyID  uuid.UUID
	EmployeeID *uuid.UUID
	PolicyID   *uuid.UUID
	From       *time.Time
	To         *time.Time
	Offset     int
	Limit      int
}

// LedgerRepository handles the append-only ledger. There are no update
// or delete operations; corrections are new postings.
type LedgerRepository struct {
	db *database.DB
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *database.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Insert appends a ledger entry. A duplicate (source_type, source_id,
// entry_type) triple is mapped through MapPQError to a 409.
func (r *LedgerRepository) Insert(ctx context.Context, q database.Queryer, entry *LedgerEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	query := `
		INSERT INTO time_off_ledger_entry (
			id, company_id, employee_id, policy_id, policy_version_id, entry_type,
			amount_minutes, effective_at, source_type, source_id, metadata_json
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`
	err := q.QueryRowxContext(ctx, query,
		entry.ID, entry.CompanyID, entry.EmployeeID, entry.PolicyID, entry.PolicyVersionID, entry.EntryType,
		entry.AmountMinutes, entry.EffectiveAt, entry.SourceType, entry.SourceID, entry.Metadata,
	).Scan(&entry.CreatedAt)
	if err != nil {
		// The idempotency constraint stays unmapped so InsertIdempotent
		// can recognize it and report a skip instead of a failure.
		if database.IsUniqueViolation(err, "uq_ledger_idempotency") {
			return err
		}
		if mapped := database.MapPQError(err); mapped != nil {
			return mapped
		}
		return err
	}
	return nil
}

// InsertIdempotent appends a ledger entry inside a savepoint. When the
// idempotency constraint fires only the insert is rolled back and the
// surrounding transaction stays usable; the entry is reported as skipped.
func (r *LedgerRepository) InsertIdempotent(ctx context.Context, tx *sqlx.Tx, entry *LedgerEntry) (bool, error) {
	var duplicate bool

	err := database.WithSavepoint(ctx, tx, "sp_ledger_post", func() error {
		if err := r.Insert(ctx, tx, entry); err != nil {
			if database.IsUniqueViolation(err, "uq_ledger_idempotency") {
				duplicate = true
			}
			return err
		}
		return nil
	})
	if err != nil {
		if duplicate {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

// FindBySource returns the entry with the given idempotency triple, or nil.
func (r *LedgerRepository) FindBySource(ctx context.Context, q database.Queryer, sourceType domain.LedgerSourceType, sourceID string, entryType domain.LedgerEntryType) (*LedgerEntry, error) {
	var entry LedgerEntry

	query := `
		SELECT id, company_id, employee_id, policy_id, policy_version_id, entry_type,
		       amount_minutes, effective_at, source_type, source_id, metadata_json, created_at
		FROM time_off_ledger_entry
		WHERE source_type = $1 AND source_id = $2 AND entry_type = $3
	`
	err := q.GetContext(ctx, &entry, query, sourceType, sourceID, entryType)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &entry, nil
}

// Totals aggregates the ledger into snapshot components:
// accrued sums signed ACCRUAL, ADJUSTMENT, CARRYOVER and EXPIRATION;
// used sums the magnitude of USAGE; held is HOLD minus HOLD_RELEASE.
func (r *LedgerRepository) Totals(ctx context.Context, q database.Queryer, companyID, employeeID, policyID uuid.UUID) (LedgerTotals, error) {
	var totals LedgerTotals

	query := `
		SELECT
			COALESCE(SUM(amount_minutes) FILTER (
				WHERE entry_type IN ('ACCRUAL', 'ADJUSTMENT', 'CARRYOVER', 'EXPIRATION')), 0) AS accrued_minutes,
			COALESCE(SUM(ABS(amount_minutes)) FILTER (WHERE entry_type = 'USAGE'), 0) AS used_minutes,
			COALESCE(SUM(ABS(amount_minutes)) FILTER (WHERE entry_type = 'HOLD'), 0)
				- COALESCE(SUM(ABS(amount_minutes)) FILTER (WHERE entry_type = 'HOLD_RELEASE'), 0) AS held_minutes
		FROM time_off_ledger_entry
		WHERE company_id = $1 AND employee_id = $2 AND policy_id = $3
	`
	if err := q.GetContext(ctx, &totals, query, companyID, employeeID, policyID); err != nil {
		return LedgerTotals{}, err
	}

	return totals, nil
}

// List lists ledger entries with filters, newest effective first.
func (r *LedgerRepository) List(ctx context.Context, q database.Queryer, params LedgerListParams) ([]*LedgerEntry, int64, error) {
	where := `WHERE company_id = $1
		  AND ($2::uuid IS NULL OR employee_id = $2)
		  AND ($3::uuid IS NULL OR policy_id = $3)
		  AND ($4::timestamptz IS NULL OR effective_at >= $4)
		  AND ($5::timestamptz IS NULL OR effective_at < $5)`

	var total int64
	if err := q.GetContext(ctx, &total,
		"SELECT COUNT(*) FROM time_off_ledger_entry "+where,
		params.CompanyID, params.EmployeeID, params.PolicyID, params.From, params.To); err != nil {
		return nil, 0, err
	}

	limit := params.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}

	entries := []*LedgerEntry{}
	query := `
		SELECT id, company_id, employee_id, policy_id, policy_version_id, entry_type,
		       amount_minutes, effective_at, source_type, source_id, metadata_json, created_at
		FROM time_off_ledger_entry
	` + where + `
		ORDER BY effective_at DESC, created_at DESC
		LIMIT $6 OFFSET $7
	`
	if err := q.SelectContext(ctx, &entries, query,
		params.CompanyID, params.EmployeeID, params.PolicyID, params.From, params.To, limit, offset); err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}
