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

// EmployeeBalance is the balance view for one active policy assignment.
// AvailableMinutes is nil for unlimited policies.
type EmployeeBalance struct {
	PolicyID         uuid.UUID             `json:"policy_id"`
	PolicyKey        string                `json:"policy_key"`
	PolicyName       string                `json:"policy_name"`
	Category         domain.PolicyCategory `json:"category"`
	Unit             domain.DisplayUnit    `json:"unit"`
	IsUnlimited      bool                  `json:"is_unlimited"`
	AccruedMinutes   int64                 `json:"accrued_minutes"`
	UsedMinutes      int64                 `json:"used_minutes"`
	HeldMinutes      int64                 `json:"held_minutes"`
	AvailableMinutes *int64                `json:"available_minutes"`
	AsOf             time.Time             `json:"as_of"`
}

// AdjustParams describes an administrative balance adjustment.
type AdjustParams struct {
	CompanyID     uuid.UUID
	EmployeeID    uuid.UUID
	PolicyID      uuid.UUID
	AmountMinutes int64
	Reason        string
	ActorID       uuid.UUID
}

// BalanceService owns the balance snapshot discipline: every
// balance-changing path goes through LockSnapshot before reading, and
// administrative adjustments post through here.
type BalanceService struct {
	db          *database.DB
	snapshots   *repository.SnapshotRepository
	ledger      *repository.LedgerRepository
	policies    *repository.PolicyRepository
	assignments *repository.AssignmentRepository
	audit       *AuditRecorder
	logger      *logger.Logger
}

// NewBalanceService creates a new balance service.
func NewBalanceService(
	db *database.DB,
	snapshots *repository.SnapshotRepository,
	ledger *repository.LedgerRepository,
	policies *repository.PolicyRepository,
	assignments *repository.AssignmentRepository,
	audit *AuditRecorder,
	log *logger.Logger,
) *BalanceService {
	return &BalanceService{
		db:          db,
		snapshots:   snapshots,
		ledger:      ledger,
		policies:    policies,
		assignments: assignments,
		audit:       audit,
		logger:      log,
	}
}

// LockSnapshot locks and returns the snapshot row for the triple,
// creating it from ledger totals when it does not exist yet. Must be
// called inside a transaction; the returned row is locked until commit.
func (s *BalanceService) LockSnapshot(ctx context.Context, tx *sqlx.Tx, companyID, employeeID, policyID uuid.UUID) (*repository.BalanceSnapshot, error) {
	snapshot, err := s.snapshots.GetForUpdate(ctx, tx, companyID, employeeID, policyID)
	if err != nil {
		return nil, err
	}
	if snapshot != nil {
		return snapshot, nil
	}

	totals, err := s.ledger.Totals(ctx, tx, companyID, employeeID, policyID)
	if err != nil {
		return nil, err
	}

	snapshot = &repository.BalanceSnapshot{
		CompanyID:      companyID,
		EmployeeID:     employeeID,
		PolicyID:       policyID,
		AccruedMinutes: totals.AccruedMinutes,
		UsedMinutes:    totals.UsedMinutes,
		HeldMinutes:    totals.HeldMinutes,
	}
	if err := s.snapshots.Insert(ctx, tx, snapshot); err != nil {
		return nil, err
	}

	return snapshot, nil
}

// EmployeeBalances returns one balance per policy assignment active
// today. Snapshots that do not exist yet fall back to ledger totals.
func (s *BalanceService) EmployeeBalances(ctx context.Context, companyID, employeeID uuid.UUID) ([]*EmployeeBalance, error) {
	today := midnightUTC(time.Now().UTC())

	assignments, err := s.assignments.ListActiveByEmployee(ctx, s.db, companyID, employeeID, today)
	if err != nil {
		return nil, err
	}

	balances := []*EmployeeBalance{}
	for _, assignment := range assignments {
		policy, err := s.policies.GetPolicy(ctx, s.db, companyID, assignment.PolicyID)
		if err != nil {
			return nil, err
		}

		balance := &EmployeeBalance{
			PolicyID:   policy.ID,
			PolicyKey:  policy.Key,
			PolicyName: policy.Name,
			Category:   policy.Category,
			Unit:       domain.UnitMinutes,
		}

		version, err := s.policies.VersionEffectiveOn(ctx, s.db, policy.ID, today)
		if err != nil {
			// A policy whose versions have all been end-dated has no
			// balance semantics today; leave it out of the view.
			if errors.Is(err, errors.ErrBadRequest) {
				continue
			}
			return nil, err
		}
		settings, err := version.DecodeSettings()
		if err != nil {
			return nil, err
		}
		balance.IsUnlimited = domain.IsUnlimited(settings)
		balance.Unit = displayUnit(settings)

		snapshot, err := s.snapshots.Get(ctx, s.db, companyID, employeeID, policy.ID)
		if err != nil {
			return nil, err
		}
		if snapshot != nil {
			balance.AccruedMinutes = snapshot.AccruedMinutes
			balance.UsedMinutes = snapshot.UsedMinutes
			balance.HeldMinutes = snapshot.HeldMinutes
			balance.AsOf = snapshot.UpdatedAt
		} else {
			totals, err := s.ledger.Totals(ctx, s.db, companyID, employeeID, policy.ID)
			if err != nil {
				return nil, err
			}
			balance.AccruedMinutes = totals.AccruedMinutes
			balance.UsedMinutes = totals.UsedMinutes
			balance.HeldMinutes = totals.HeldMinutes
			balance.AsOf = time.Now().UTC()
		}

		if !balance.IsUnlimited {
			available := balance.AccruedMinutes - balance.UsedMinutes - balance.HeldMinutes
			balance.AvailableMinutes = &available
		}

		balances = append(balances, balance)
	}

	return balances, nil
}

// EmployeeLedger lists ledger entries with filters, newest first.
func (s *BalanceService) EmployeeLedger(ctx context.Context, params repository.LedgerListParams) ([]*repository.LedgerEntry, int64, error) {
	return s.ledger.List(ctx, s.db, params)
}

// Adjust posts an administrative ADJUSTMENT entry and updates the
// snapshot. Negative adjustments are gated by the policy's
// negative-balance rules; positive corrections always go through.
func (s *BalanceService) Adjust(ctx context.Context, params AdjustParams) (*repository.LedgerEntry, *repository.BalanceSnapshot, error) {
	if params.Reason == "" {
		return nil, nil, errors.BadRequest("adjustment reason is required")
	}

	today := midnightUTC(time.Now().UTC())

	var entry *repository.LedgerEntry
	var snapshot *repository.BalanceSnapshot

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		assignment, err := s.assignments.FindActiveOn(ctx, tx, params.CompanyID, params.EmployeeID, params.PolicyID, today)
		if err != nil {
			return err
		}
		if assignment == nil {
			return errors.BadRequest("Employee has no active assignment for this policy")
		}

		version, err := s.policies.CurrentVersion(ctx, tx, params.PolicyID)
		if err != nil {
			return err
		}
		settings, err := version.DecodeSettings()
		if err != nil {
			return err
		}

		snapshot, err = s.LockSnapshot(ctx, tx, params.CompanyID, params.EmployeeID, params.PolicyID)
		if err != nil {
			return err
		}

		if rules, ok := domain.RulesOf(settings); ok && params.AmountMinutes < 0 {
			if err := rules.CheckAvailable(snapshot.AvailableMinutes + params.AmountMinutes); err != nil {
				return err
			}
		}

		entryID := uuid.New()
		metadata, err := encodeMetadata(map[string]any{
			"reason":      params.Reason,
			"adjusted_by": params.ActorID.String(),
		})
		if err != nil {
			return err
		}
		entry = &repository.LedgerEntry{
			ID:              entryID,
			CompanyID:       params.CompanyID,
			EmployeeID:      params.EmployeeID,
			PolicyID:        params.PolicyID,
			PolicyVersionID: &version.ID,
			EntryType:       domain.EntryAdjustment,
			AmountMinutes:   params.AmountMinutes,
			EffectiveAt:     time.Now().UTC(),
			SourceType:      domain.SourceAdmin,
			SourceID:        entryID.String(),
			Metadata:        metadata,
		}
		if err := s.ledger.Insert(ctx, tx, entry); err != nil {
			return err
		}

		snapshot.AccruedMinutes += params.AmountMinutes
		if err := s.snapshots.Update(ctx, tx, snapshot); err != nil {
			return err
		}

		return s.audit.Record(ctx, tx, params.CompanyID, domain.AuditAdjustment, entry.ID,
			domain.ActionCreate, params.ActorID, nil, ledgerAuditPayload(entry))
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info().
		Str("company_id", params.CompanyID.String()).
		Str("employee_id", params.EmployeeID.String()).
		Str("policy_id", params.PolicyID.String()).
		Int64("amount_minutes", params.AmountMinutes).
		Msg("balance adjusted")

	return entry, snapshot, nil
}

func ledgerAuditPayload(entry *repository.LedgerEntry) map[string]any {
	return map[string]any{
		"id":             entry.ID.String(),
		"company_id":     entry.CompanyID.String(),
		"employee_id":    entry.EmployeeID.String(),
		"policy_id":      entry.PolicyID.String(),
		"entry_type":     string(entry.EntryType),
		"amount_minutes": entry.AmountMinutes,
		"source_type":    string(entry.SourceType),
		"source_id":      entry.SourceID,
	}
}

func displayUnit(settings domain.Settings) domain.DisplayUnit {
	switch v := settings.(type) {
	case *domain.UnlimitedSettings:
		return v.Unit
	case *domain.TimeAccrualSettings:
		return v.Unit
	case *domain.HoursWorkedAccrualSettings:
		return v.Unit
	default:
		return domain.UnitMinutes
	}
}

func midnightUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
