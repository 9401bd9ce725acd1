package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/leaveledger/leaveledger-backend/internal/timeoff/domain"
	"github.com/leaveledger/leaveledger-backend/internal/timeoff/events"
	"github.com/leaveledger/leaveledger-backend/internal/timeoff/repository"
	"github.com/leaveledger/leaveledger-backend/pkg/auth"
	"github.com/leaveledger/leaveledger-backend/pkg/database"
	"github.com/leaveledger/leaveledger-backend/pkg/errors"
	"github.com/leaveledger/leaveledger-backend/pkg/logger"
	"github.com/leaveledger/leaveledger-backend/pkg/messaging"
)

// CarryoverRunResult summarizes one carryover run.
type CarryoverRunResult struct {
	TargetDate           string `json:"target_date"`
	CarryoversProcessed  int    `json:"carryovers_processed"`
	ExpirationsProcessed int    `json:"expirations_processed"`
	Skipped              int    `json:"skipped"`
	Errors               int    `json:"errors"`
}

// ExpirationRunResult summarizes one expiration run.
type ExpirationRunResult struct {
	TargetDate string `json:"target_date"`
	Processed  int    `json:"processed"`
	Skipped    int    `json:"skipped"`
	Errors     int    `json:"errors"`
}

// CarryoverService runs the year-end carryover engine and the daily
// expiration engine.
type CarryoverService struct {
	db          *database.DB
	assignments *repository.AssignmentRepository
	policies    *repository.PolicyRepository
	ledger      *repository.LedgerRepository
	snapshots   *repository.SnapshotRepository
	balances    *BalanceService
	audit       *AuditRecorder
	events      events.Publisher
	logger      *logger.Logger
}

// NewCarryoverService creates a new carryover service.
func NewCarryoverService(
	db *database.DB,
	assignments *repository.AssignmentRepository,
	policies *repository.PolicyRepository,
	ledger *repository.LedgerRepository,
	snapshots *repository.SnapshotRepository,
	balances *BalanceService,
	audit *AuditRecorder,
	publisher events.Publisher,
	log *logger.Logger,
) *CarryoverService {
	return &CarryoverService{
		db:          db,
		assignments: assignments,
		policies:    policies,
		ledger:      ledger,
		snapshots:   snapshots,
		balances:    balances,
		audit:       audit,
		events:      publisher,
		logger:      log,
	}
}

// RunCarryover carries the previous year's available balance into the
// new year, expiring any excess over the carryover cap. It only acts on
// January 1; any other target date is a no-op.
func (s *CarryoverService) RunCarryover(ctx context.Context, targetDate time.Time, companyID *uuid.UUID) (*CarryoverRunResult, error) {
	targetDate = midnightUTC(targetDate)
	result := &CarryoverRunResult{TargetDate: targetDate.Format("2006-01-02")}

	if targetDate.Month() != time.January || targetDate.Day() != 1 {
		return result, nil
	}
	year := targetDate.Year() - 1

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		assignments, err := s.assignments.ListActiveOn(ctx, tx, targetDate, companyID)
		if err != nil {
			return err
		}

		for _, assignment := range assignments {
			itemErr := database.WithSavepoint(ctx, tx, "sp_carryover_item", func() error {
				return s.carryOne(ctx, tx, assignment, targetDate, year, result)
			})
			if itemErr != nil {
				result.Errors++
				s.logger.Error().Err(itemErr).
					Str("assignment_id", assignment.ID.String()).
					Msg("carryover item failed")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.PublishEngineRun(ctx, messaging.EventCarryoverCompleted, "carryover",
		targetDate, companyID, result.CarryoversProcessed, result.Skipped, result.Errors)
	s.logger.Info().
		Str("target_date", result.TargetDate).
		Int("carryovers", result.CarryoversProcessed).
		Int("expirations", result.ExpirationsProcessed).
		Int("skipped", result.Skipped).
		Int("errors", result.Errors).
		Msg("carryover run finished")

	return result, nil
}

func (s *CarryoverService) carryOne(ctx context.Context, tx *sqlx.Tx, assignment *repository.Assignment, targetDate time.Time, year int, result *CarryoverRunResult) error {
	rules, versionID, ok, err := s.rulesOn(ctx, tx, assignment.PolicyID, targetDate)
	if err != nil || !ok {
		return err
	}
	if !rules.Carryover.Enabled {
		return nil
	}

	snapshot, err := s.balances.LockSnapshot(ctx, tx, assignment.CompanyID, assignment.EmployeeID, assignment.PolicyID)
	if err != nil {
		return err
	}
	available := snapshot.AccruedMinutes - snapshot.UsedMinutes - snapshot.HeldMinutes
	if available <= 0 {
		return nil
	}

	carried := available
	if rules.Carryover.CapMinutes != nil && carried > *rules.Carryover.CapMinutes {
		carried = *rules.Carryover.CapMinutes
	}
	expired := available - carried

	if expired > 0 {
		metadata, err := encodeMetadata(map[string]any{
			"reason":          "year_end_carryover_excess",
			"year":            year,
			"expired_minutes": expired,
			"cap_minutes":     rules.Carryover.CapMinutes,
		})
		if err != nil {
			return err
		}
		entry := &repository.LedgerEntry{
			CompanyID:       assignment.CompanyID,
			EmployeeID:      assignment.EmployeeID,
			PolicyID:        assignment.PolicyID,
			PolicyVersionID: versionID,
			EntryType:       domain.EntryExpiration,
			AmountMinutes:   -expired,
			EffectiveAt:     targetDate,
			SourceType:      domain.SourceSystem,
			SourceID: fmt.Sprintf("carryover:%s:%s:%d",
				assignment.PolicyID, assignment.EmployeeID, year),
			Metadata: metadata,
		}
		inserted, err := s.ledger.InsertIdempotent(ctx, tx, entry)
		if err != nil {
			return err
		}
		if inserted {
			snapshot.AccruedMinutes -= expired
			if err := s.snapshots.Update(ctx, tx, snapshot); err != nil {
				return err
			}
			if err := s.audit.Record(ctx, tx, assignment.CompanyID, domain.AuditAccrual, entry.ID,
				domain.ActionCreate, auth.SystemActorID, nil, ledgerAuditPayload(entry)); err != nil {
				return err
			}
			result.ExpirationsProcessed++
		}
	}

	// Zero-amount marker recording what was carried; the post-carryover
	// expiration clause reads it back.
	metadata, err := encodeMetadata(map[string]any{
		"year":               year,
		"carried_minutes":    carried,
		"expired_minutes":    expired,
		"cap_minutes":        rules.Carryover.CapMinutes,
		"expires_after_days": rules.Carryover.ExpiresAfterDays,
	})
	if err != nil {
		return err
	}
	marker := &repository.LedgerEntry{
		CompanyID:       assignment.CompanyID,
		EmployeeID:      assignment.EmployeeID,
		PolicyID:        assignment.PolicyID,
		PolicyVersionID: versionID,
		EntryType:       domain.EntryCarryover,
		AmountMinutes:   0,
		EffectiveAt:     targetDate,
		SourceType:      domain.SourceSystem,
		SourceID: fmt.Sprintf("carryover_marker:%s:%s:%d",
			assignment.PolicyID, assignment.EmployeeID, year),
		Metadata: metadata,
	}
	inserted, err := s.ledger.InsertIdempotent(ctx, tx, marker)
	if err != nil {
		return err
	}
	if !inserted {
		result.Skipped++
		return nil
	}

	result.CarryoversProcessed++
	return nil
}

// RunExpiration expires balances due on the target date: whole-balance
// calendar expirations and carried-over minutes past their lifetime.
func (s *CarryoverService) RunExpiration(ctx context.Context, targetDate time.Time, companyID *uuid.UUID) (*ExpirationRunResult, error) {
	targetDate = midnightUTC(targetDate)
	result := &ExpirationRunResult{TargetDate: targetDate.Format("2006-01-02")}

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		assignments, err := s.assignments.ListActiveOn(ctx, tx, targetDate, companyID)
		if err != nil {
			return err
		}

		for _, assignment := range assignments {
			itemErr := database.WithSavepoint(ctx, tx, "sp_expiration_item", func() error {
				return s.expireOne(ctx, tx, assignment, targetDate, result)
			})
			if itemErr != nil {
				result.Errors++
				s.logger.Error().Err(itemErr).
					Str("assignment_id", assignment.ID.String()).
					Msg("expiration item failed")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.PublishEngineRun(ctx, messaging.EventExpirationCompleted, "expiration",
		targetDate, companyID, result.Processed, result.Skipped, result.Errors)

	return result, nil
}

func (s *CarryoverService) expireOne(ctx context.Context, tx *sqlx.Tx, assignment *repository.Assignment, targetDate time.Time, result *ExpirationRunResult) error {
	rules, versionID, ok, err := s.rulesOn(ctx, tx, assignment.PolicyID, targetDate)
	if err != nil || !ok {
		return err
	}

	if rules.Expiration.Enabled && rules.Expiration.ExpiresOnMonth != nil &&
		int(targetDate.Month()) == *rules.Expiration.ExpiresOnMonth &&
		targetDate.Day() == *rules.Expiration.ExpiresOnDay {
		if err := s.expireCalendar(ctx, tx, assignment, targetDate, versionID, result); err != nil {
			return err
		}
	}

	if rules.Carryover.Enabled && rules.Carryover.ExpiresAfterDays != nil {
		yearStart := time.Date(targetDate.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		expiryDate := yearStart.AddDate(0, 0, *rules.Carryover.ExpiresAfterDays)
		if targetDate.Equal(expiryDate) {
			if err := s.expireCarried(ctx, tx, assignment, targetDate, versionID, result); err != nil {
				return err
			}
		}
	}

	return nil
}

// expireCalendar wipes the whole available balance on the configured
// calendar date.
func (s *CarryoverService) expireCalendar(ctx context.Context, tx *sqlx.Tx, assignment *repository.Assignment, targetDate time.Time, versionID *uuid.UUID, result *ExpirationRunResult) error {
	snapshot, err := s.balances.LockSnapshot(ctx, tx, assignment.CompanyID, assignment.EmployeeID, assignment.PolicyID)
	if err != nil {
		return err
	}
	available := snapshot.AccruedMinutes - snapshot.UsedMinutes - snapshot.HeldMinutes
	if available <= 0 {
		return nil
	}

	expiresOn := targetDate.Format("01-02")
	metadata, err := encodeMetadata(map[string]any{
		"reason":          "calendar_date_expiration",
		"expired_minutes": available,
		"expires_on":      expiresOn,
	})
	if err != nil {
		return err
	}
	entry := &repository.LedgerEntry{
		CompanyID:       assignment.CompanyID,
		EmployeeID:      assignment.EmployeeID,
		PolicyID:        assignment.PolicyID,
		PolicyVersionID: versionID,
		EntryType:       domain.EntryExpiration,
		AmountMinutes:   -available,
		EffectiveAt:     targetDate,
		SourceType:      domain.SourceSystem,
		SourceID: fmt.Sprintf("expiration:%s:%s:%d:%s",
			assignment.PolicyID, assignment.EmployeeID, targetDate.Year(), expiresOn),
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

	snapshot.AccruedMinutes -= available
	if err := s.snapshots.Update(ctx, tx, snapshot); err != nil {
		return err
	}
	if err := s.audit.Record(ctx, tx, assignment.CompanyID, domain.AuditAccrual, entry.ID,
		domain.ActionCreate, auth.SystemActorID, nil, ledgerAuditPayload(entry)); err != nil {
		return err
	}

	result.Processed++
	return nil
}

// expireCarried expires what remains of last year's carried-over
// minutes once their lifetime elapses.
func (s *CarryoverService) expireCarried(ctx context.Context, tx *sqlx.Tx, assignment *repository.Assignment, targetDate time.Time, versionID *uuid.UUID, result *ExpirationRunResult) error {
	carryYear := targetDate.Year() - 1
	markerSourceID := fmt.Sprintf("carryover_marker:%s:%s:%d",
		assignment.PolicyID, assignment.EmployeeID, carryYear)

	marker, err := s.ledger.FindBySource(ctx, tx, domain.SourceSystem, markerSourceID, domain.EntryCarryover)
	if err != nil {
		return err
	}
	if marker == nil {
		return nil
	}

	var markerMeta struct {
		CarriedMinutes int64 `json:"carried_minutes"`
	}
	if err := json.Unmarshal(marker.Metadata, &markerMeta); err != nil {
		return err
	}
	if markerMeta.CarriedMinutes <= 0 {
		return nil
	}

	snapshot, err := s.balances.LockSnapshot(ctx, tx, assignment.CompanyID, assignment.EmployeeID, assignment.PolicyID)
	if err != nil {
		return err
	}
	available := snapshot.AccruedMinutes - snapshot.UsedMinutes - snapshot.HeldMinutes
	if available < 0 {
		available = 0
	}
	expired := markerMeta.CarriedMinutes
	if expired > available {
		expired = available
	}
	if expired <= 0 {
		return nil
	}

	metadata, err := encodeMetadata(map[string]any{
		"reason":          "carryover_expiration",
		"carryover_year":  carryYear,
		"carried_minutes": markerMeta.CarriedMinutes,
		"expired_minutes": expired,
	})
	if err != nil {
		return err
	}
	entry := &repository.LedgerEntry{
		CompanyID:       assignment.CompanyID,
		EmployeeID:      assignment.EmployeeID,
		PolicyID:        assignment.PolicyID,
		PolicyVersionID: versionID,
		EntryType:       domain.EntryExpiration,
		AmountMinutes:   -expired,
		EffectiveAt:     targetDate,
		SourceType:      domain.SourceSystem,
		SourceID: fmt.Sprintf("carryover_expiry:%s:%s:%d",
			assignment.PolicyID, assignment.EmployeeID, carryYear),
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

	snapshot.AccruedMinutes -= expired
	if err := s.snapshots.Update(ctx, tx, snapshot); err != nil {
		return err
	}
	if err := s.audit.Record(ctx, tx, assignment.CompanyID, domain.AuditAccrual, entry.ID,
		domain.ActionCreate, auth.SystemActorID, nil, ledgerAuditPayload(entry)); err != nil {
		return err
	}

	result.Processed++
	return nil
}

// rulesOn resolves the balance rules of the policy version effective on
// the date, along with the version's ID for ledger attribution. ok is
// false for unlimited policies and policies with no effective version.
func (s *CarryoverService) rulesOn(ctx context.Context, tx *sqlx.Tx, policyID uuid.UUID, date time.Time) (domain.AccrualRules, *uuid.UUID, bool, error) {
	version, err := s.policies.VersionEffectiveOn(ctx, tx, policyID, date)
	if err != nil {
		if errors.Is(err, errors.ErrBadRequest) {
			return domain.AccrualRules{}, nil, false, nil
		}
		return domain.AccrualRules{}, nil, false, err
	}
	settings, err := version.DecodeSettings()
	if err != nil {
		return domain.AccrualRules{}, nil, false, err
	}
	rules, ok := domain.RulesOf(settings)
	return rules, &version.ID, ok, nil
}
