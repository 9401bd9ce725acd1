package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/leaveledger/leaveledger-backend/internal/directory"
	"github.com/leaveledger/leaveledger-backend/internal/timeoff/domain"
	"github.com/leaveledger/leaveledger-backend/internal/timeoff/events"
	"github.com/leaveledger/leaveledger-backend/internal/timeoff/repository"
	"github.com/leaveledger/leaveledger-backend/pkg/auth"
	"github.com/leaveledger/leaveledger-backend/pkg/database"
	"github.com/leaveledger/leaveledger-backend/pkg/errors"
	"github.com/leaveledger/leaveledger-backend/pkg/logger"
	"github.com/leaveledger/leaveledger-backend/pkg/messaging"
)

// AccrualRunResult summarizes one time-based accrual run.
type AccrualRunResult struct {
	TargetDate     string `json:"target_date"`
	Processed      int    `json:"processed"`
	AccruedMinutes int64  `json:"accrued_minutes"`
	Skipped        int    `json:"skipped"`
	Errors         int    `json:"errors"`
}

// PayrollEntry is one employee's worked time in a payroll period.
type PayrollEntry struct {
	EmployeeID    uuid.UUID `json:"employee_id" validate:"required"`
	WorkedMinutes int64     `json:"worked_minutes" validate:"required,gt=0"`
}

// PayrollProcessedPayload is the payroll webhook body driving
// hours-worked accrual.
type PayrollProcessedPayload struct {
	PayrollRunID string         `json:"payroll_run_id" validate:"required"`
	CompanyID    uuid.UUID      `json:"company_id" validate:"required"`
	PeriodStart  time.Time      `json:"period_start" validate:"required"`
	PeriodEnd    time.Time      `json:"period_end" validate:"required"`
	Entries      []PayrollEntry `json:"entries" validate:"required,min=1,dive"`
}

// AccrualService runs the two accrual engines. Each run is one
// transaction; individual work items are isolated in savepoints so one
// failure never poisons the whole batch.
type AccrualService struct {
	db          *database.DB
	assignments *repository.AssignmentRepository
	policies    *repository.PolicyRepository
	ledger      *repository.LedgerRepository
	snapshots   *repository.SnapshotRepository
	balances    *BalanceService
	employees   directory.EmployeeDirectory
	audit       *AuditRecorder
	events      events.Publisher
	logger      *logger.Logger
}

// NewAccrualService creates a new accrual service.
func NewAccrualService(
	db *database.DB,
	assignments *repository.AssignmentRepository,
	policies *repository.PolicyRepository,
	ledger *repository.LedgerRepository,
	snapshots *repository.SnapshotRepository,
	balances *BalanceService,
	employees directory.EmployeeDirectory,
	audit *AuditRecorder,
	publisher events.Publisher,
	log *logger.Logger,
) *AccrualService {
	return &AccrualService{
		db:          db,
		assignments: assignments,
		policies:    policies,
		ledger:      ledger,
		snapshots:   snapshots,
		balances:    balances,
		employees:   employees,
		audit:       audit,
		events:      publisher,
		logger:      log,
	}
}

// RunTimeBased grants time-based accruals due on the target date for
// every active assignment, optionally restricted to one company.
func (s *AccrualService) RunTimeBased(ctx context.Context, targetDate time.Time, companyID *uuid.UUID) (*AccrualRunResult, error) {
	targetDate = midnightUTC(targetDate)
	result := &AccrualRunResult{TargetDate: targetDate.Format("2006-01-02")}

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		assignments, err := s.assignments.ListActiveOn(ctx, tx, targetDate, companyID)
		if err != nil {
			return err
		}

		for _, assignment := range assignments {
			itemErr := database.WithSavepoint(ctx, tx, "sp_accrual_item", func() error {
				return s.accrueOne(ctx, tx, assignment, targetDate, result)
			})
			if itemErr != nil {
				result.Errors++
				s.logger.Error().Err(itemErr).
					Str("assignment_id", assignment.ID.String()).
					Str("employee_id", assignment.EmployeeID.String()).
					Str("policy_id", assignment.PolicyID.String()).
					Msg("accrual item failed")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.PublishEngineRun(ctx, messaging.EventAccrualCompleted, "time_based",
		targetDate, companyID, result.Processed, result.Skipped, result.Errors)
	s.logger.Info().
		Str("target_date", result.TargetDate).
		Int("processed", result.Processed).
		Int("skipped", result.Skipped).
		Int("errors", result.Errors).
		Msg("time-based accrual run finished")

	return result, nil
}

func (s *AccrualService) accrueOne(ctx context.Context, tx *sqlx.Tx, assignment *repository.Assignment, targetDate time.Time, result *AccrualRunResult) error {
	version, err := s.policies.VersionEffectiveOn(ctx, tx, assignment.PolicyID, targetDate)
	if err != nil {
		if errors.Is(err, errors.ErrBadRequest) {
			return nil
		}
		return err
	}
	decoded, err := version.DecodeSettings()
	if err != nil {
		return err
	}
	settings, ok := decoded.(*domain.TimeAccrualSettings)
	if !ok {
		return nil
	}

	if !isAccrualDate(settings, targetDate) {
		return nil
	}
	periodStart, periodEnd := periodBoundaries(settings.AccrualFrequency, targetDate)

	hireDate := assignment.EffectiveFrom
	employee, err := s.employees.GetEmployee(ctx, assignment.CompanyID, assignment.EmployeeID)
	if err != nil {
		return err
	}
	if employee != nil && employee.HireDate != nil {
		hireDate = *employee.HireDate
	}

	rate := resolveRate(settings, hireDate, targetDate)
	computed := prorate(settings.Proration, rate, assignment.EffectiveFrom, periodStart, periodEnd)

	snapshot, err := s.balances.LockSnapshot(ctx, tx, assignment.CompanyID, assignment.EmployeeID, assignment.PolicyID)
	if err != nil {
		return err
	}
	amount := applyBankCap(settings.BankCapMinutes, snapshot.AccruedMinutes, computed)
	if amount <= 0 {
		// Nothing to grant (at the bank cap or fully prorated away).
		// Posting nothing keeps the idempotency key free, so a later
		// same-day re-run can still grant after a downward adjustment.
		result.Skipped++
		return nil
	}

	metadata, err := encodeMetadata(map[string]any{
		"accrual_frequency": string(settings.AccrualFrequency),
		"accrual_timing":    string(settings.AccrualTiming),
		"computed_amount":   computed,
	})
	if err != nil {
		return err
	}
	entry := &repository.LedgerEntry{
		CompanyID:       assignment.CompanyID,
		EmployeeID:      assignment.EmployeeID,
		PolicyID:        assignment.PolicyID,
		PolicyVersionID: &version.ID,
		EntryType:       domain.EntryAccrual,
		AmountMinutes:   amount,
		EffectiveAt:     targetDate,
		SourceType:      domain.SourceSystem,
		SourceID: fmt.Sprintf("accrual:%s:%s:%s",
			assignment.PolicyID, assignment.EmployeeID, targetDate.Format("2006-01-02")),
		Metadata: metadata,
	}

	inserted, err := s.ledger.InsertIdempotent(ctx, tx, entry)
	if err != nil {
		return err
	}
	if !inserted {
		result.Skipped++
		return nil
	}

	snapshot.AccruedMinutes += amount
	if err := s.snapshots.Update(ctx, tx, snapshot); err != nil {
		return err
	}

	if err := s.audit.Record(ctx, tx, assignment.CompanyID, domain.AuditAccrual, entry.ID,
		domain.ActionCreate, auth.SystemActorID, nil, ledgerAuditPayload(entry)); err != nil {
		return err
	}

	result.Processed++
	result.AccruedMinutes += amount
	return nil
}

// ProcessPayroll grants hours-worked accrual from a payroll run. The
// payroll run ID makes the grant idempotent per employee and policy.
func (s *AccrualService) ProcessPayroll(ctx context.Context, payload PayrollProcessedPayload) (*AccrualRunResult, error) {
	if payload.PeriodEnd.Before(payload.PeriodStart) {
		return nil, errors.BadRequest("period_end must not be before period_start")
	}
	periodEnd := midnightUTC(payload.PeriodEnd)
	result := &AccrualRunResult{TargetDate: periodEnd.Format("2006-01-02")}

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		for _, item := range payload.Entries {
			entry := item
			itemErr := database.WithSavepoint(ctx, tx, "sp_payroll_item", func() error {
				return s.accruePayrollEntry(ctx, tx, payload, entry, periodEnd, result)
			})
			if itemErr != nil {
				result.Errors++
				s.logger.Error().Err(itemErr).
					Str("payroll_run_id", payload.PayrollRunID).
					Str("employee_id", entry.EmployeeID.String()).
					Msg("payroll accrual item failed")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.PublishEngineRun(ctx, messaging.EventPayrollProcessed, "hours_worked",
		periodEnd, &payload.CompanyID, result.Processed, result.Skipped, result.Errors)

	return result, nil
}

func (s *AccrualService) accruePayrollEntry(ctx context.Context, tx *sqlx.Tx, payload PayrollProcessedPayload, item PayrollEntry, periodEnd time.Time, result *AccrualRunResult) error {
	if item.WorkedMinutes <= 0 {
		return errors.BadRequest("worked_minutes must be positive")
	}

	assignments, err := s.assignments.ListActiveByEmployee(ctx, tx, payload.CompanyID, item.EmployeeID, periodEnd)
	if err != nil {
		return err
	}

	for _, assignment := range assignments {
		version, err := s.policies.VersionEffectiveOn(ctx, tx, assignment.PolicyID, periodEnd)
		if err != nil {
			if errors.Is(err, errors.ErrBadRequest) {
				continue
			}
			return err
		}
		decoded, err := version.DecodeSettings()
		if err != nil {
			return err
		}
		settings, ok := decoded.(*domain.HoursWorkedAccrualSettings)
		if !ok {
			continue
		}

		computed := item.WorkedMinutes * settings.AccrualRatio.AccrueMinutes / settings.AccrualRatio.PerWorkedMinutes

		snapshot, err := s.balances.LockSnapshot(ctx, tx, payload.CompanyID, item.EmployeeID, assignment.PolicyID)
		if err != nil {
			return err
		}
		amount := applyBankCap(settings.BankCapMinutes, snapshot.AccruedMinutes, computed)
		if amount <= 0 {
			result.Skipped++
			continue
		}

		metadata, err := encodeMetadata(map[string]any{
			"payroll_run_id":  payload.PayrollRunID,
			"worked_minutes":  item.WorkedMinutes,
			"computed_amount": computed,
		})
		if err != nil {
			return err
		}
		entry := &repository.LedgerEntry{
			CompanyID:       payload.CompanyID,
			EmployeeID:      item.EmployeeID,
			PolicyID:        assignment.PolicyID,
			PolicyVersionID: &version.ID,
			EntryType:       domain.EntryAccrual,
			AmountMinutes:   amount,
			EffectiveAt:     periodEnd,
			SourceType:      domain.SourcePayroll,
			SourceID: fmt.Sprintf("payroll:%s:%s:%s",
				payload.PayrollRunID, item.EmployeeID, assignment.PolicyID),
			Metadata: metadata,
		}

		inserted, err := s.ledger.InsertIdempotent(ctx, tx, entry)
		if err != nil {
			return err
		}
		if !inserted {
			result.Skipped++
			continue
		}

		snapshot.AccruedMinutes += amount
		if err := s.snapshots.Update(ctx, tx, snapshot); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, tx, payload.CompanyID, domain.AuditAccrual, entry.ID,
			domain.ActionCreate, auth.SystemActorID, nil, ledgerAuditPayload(entry)); err != nil {
			return err
		}

		result.Processed++
		result.AccruedMinutes += amount
	}

	return nil
}

// periodBoundaries returns the half-open accrual period containing the
// target date.
func periodBoundaries(frequency domain.AccrualFrequency, target time.Time) (time.Time, time.Time) {
	switch frequency {
	case domain.FrequencyDaily:
		start := midnightUTC(target)
		return start, start.AddDate(0, 0, 1)
	case domain.FrequencyMonthly:
		start := time.Date(target.Year(), target.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	default:
		start := time.Date(target.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(1, 0, 0)
	}
}

// isAccrualDate reports whether the target date is the grant date for
// the configured frequency and timing.
func isAccrualDate(settings *domain.TimeAccrualSettings, target time.Time) bool {
	switch settings.AccrualFrequency {
	case domain.FrequencyDaily:
		return true
	case domain.FrequencyMonthly:
		if settings.AccrualTiming == domain.TimingStartOfPeriod {
			return target.Day() == 1
		}
		return target.AddDate(0, 0, 1).Day() == 1
	default:
		if settings.AccrualTiming == domain.TimingStartOfPeriod {
			return target.Month() == time.January && target.Day() == 1
		}
		return target.Month() == time.December && target.Day() == 31
	}
}

// tenureMonths counts whole calendar months between two dates, ignoring
// the day of month.
func tenureMonths(from, to time.Time) int {
	return (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
}

// resolveRate picks the accrual rate for the employee's tenure: the
// highest tier threshold reached wins, otherwise the base rate.
func resolveRate(settings *domain.TimeAccrualSettings, hireDate, target time.Time) int64 {
	months := tenureMonths(hireDate, target)

	tiers := make([]domain.TenureTier, len(settings.TenureTiers))
	copy(tiers, settings.TenureTiers)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].MinMonths > tiers[j].MinMonths })

	for _, tier := range tiers {
		if months >= tier.MinMonths {
			return tier.AccrualRateMinutes
		}
	}
	return settings.BaseRate()
}

// prorate scales the rate by the share of the period the assignment was
// active, using integer floor division.
func prorate(method domain.ProrationMethod, rate int64, assignmentFrom, periodStart, periodEnd time.Time) int64 {
	if method == domain.ProrationNone {
		return rate
	}

	activeStart := periodStart
	if assignmentFrom.After(activeStart) {
		activeStart = assignmentFrom
	}

	totalDays := int64(periodEnd.Sub(periodStart).Hours() / 24)
	activeDays := int64(periodEnd.Sub(activeStart).Hours() / 24)

	if activeDays >= totalDays {
		return rate
	}
	if activeDays <= 0 {
		return 0
	}
	return rate * activeDays / totalDays
}

// applyBankCap limits a grant to the headroom under the bank cap. The
// cap compares against accrued minutes, not available.
func applyBankCap(capMinutes *int64, accrued, amount int64) int64 {
	if capMinutes == nil {
		return amount
	}
	headroom := *capMinutes - accrued
	if headroom <= 0 {
		return 0
	}
	if amount > headroom {
		return headroom
	}
	return amount
}
