package testutil

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/leaveledger/leaveledger-backend/internal/timeoff/domain"
	"github.com/leaveledger/leaveledger-backend/internal/timeoff/repository"
)

// FixtureFactory creates test fixtures with sensible defaults
type FixtureFactory struct {
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{sequence: 0}
}

// nextSeq returns the next sequence number for unique values
func (f *FixtureFactory) nextSeq() int {
	f.sequence++
	return f.sequence
}

// TimeSettings returns a yearly TIME accrual settings document.
// Defaults: 12 days of 8 hours per year, start-of-period, prorated.
func TimeSettings(opts ...func(*domain.TimeAccrualSettings)) json.RawMessage {
	rate := int64(12 * 8 * 60)
	s := &domain.TimeAccrualSettings{
		Type:               domain.PolicyAccrual,
		AccrualMethod:      domain.AccrualTime,
		Unit:               domain.UnitDays,
		AccrualFrequency:   domain.FrequencyYearly,
		AccrualTiming:      domain.TimingStartOfPeriod,
		RateMinutesPerYear: &rate,
		Proration:          domain.ProrationDaysActive,
	}
	for _, opt := range opts {
		opt(s)
	}
	raw, err := domain.EncodeSettings(s)
	if err != nil {
		panic(fmt.Sprintf("invalid time settings fixture: %v", err))
	}
	return raw
}

// WithMonthlyRate switches the settings to monthly accrual at the given rate.
func WithMonthlyRate(minutes int64) func(*domain.TimeAccrualSettings) {
	return func(s *domain.TimeAccrualSettings) {
		s.AccrualFrequency = domain.FrequencyMonthly
		s.RateMinutesPerYear = nil
		s.RateMinutesPerMonth = &minutes
	}
}

// WithDailyRate switches the settings to daily accrual at the given rate.
func WithDailyRate(minutes int64) func(*domain.TimeAccrualSettings) {
	return func(s *domain.TimeAccrualSettings) {
		s.AccrualFrequency = domain.FrequencyDaily
		s.RateMinutesPerYear = nil
		s.RateMinutesPerDay = &minutes
	}
}

// WithBankCap caps the accruable balance.
func WithBankCap(minutes int64) func(*domain.TimeAccrualSettings) {
	return func(s *domain.TimeAccrualSettings) {
		s.BankCapMinutes = &minutes
	}
}

// WithCarryover enables year-end carryover with an optional cap.
func WithCarryover(capMinutes *int64, expiresAfterDays *int) func(*domain.TimeAccrualSettings) {
	return func(s *domain.TimeAccrualSettings) {
		s.Carryover = domain.CarryoverSettings{
			Enabled:          true,
			CapMinutes:       capMinutes,
			ExpiresAfterDays: expiresAfterDays,
		}
	}
}

// WithTenureTiers sets the tenure rate overrides.
func WithTenureTiers(tiers ...domain.TenureTier) func(*domain.TimeAccrualSettings) {
	return func(s *domain.TimeAccrualSettings) {
		s.TenureTiers = tiers
	}
}

// HoursWorkedSettings returns an HOURS_WORKED accrual settings document.
// Default ratio: 1 hour accrued per 30 hours worked.
func HoursWorkedSettings(opts ...func(*domain.HoursWorkedAccrualSettings)) json.RawMessage {
	s := &domain.HoursWorkedAccrualSettings{
		Type:          domain.PolicyAccrual,
		AccrualMethod: domain.AccrualHoursWorked,
		Unit:          domain.UnitHours,
		AccrualRatio: domain.AccrualRatio{
			AccrueMinutes:    60,
			PerWorkedMinutes: 1800,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	raw, err := domain.EncodeSettings(s)
	if err != nil {
		panic(fmt.Sprintf("invalid hours-worked settings fixture: %v", err))
	}
	return raw
}

// WithAccrualRatio overrides the accrue/per-worked ratio.
func WithAccrualRatio(accrue, per int64) func(*domain.HoursWorkedAccrualSettings) {
	return func(s *domain.HoursWorkedAccrualSettings) {
		s.AccrualRatio = domain.AccrualRatio{AccrueMinutes: accrue, PerWorkedMinutes: per}
	}
}

// UnlimitedSettings returns an UNLIMITED settings document.
func UnlimitedSettings() json.RawMessage {
	raw, err := domain.EncodeSettings(&domain.UnlimitedSettings{
		Type: domain.PolicyUnlimited,
		Unit: domain.UnitDays,
	})
	if err != nil {
		panic(fmt.Sprintf("invalid unlimited settings fixture: %v", err))
	}
	return raw
}

// Policy creates a policy fixture with defaults
func (f *FixtureFactory) Policy(companyID uuid.UUID, opts ...func(*repository.Policy)) *repository.Policy {
	seq := f.nextSeq()

	policy := &repository.Policy{
		ID:        uuid.New(),
		CompanyID: companyID,
		Key:       fmt.Sprintf("vacation-%d", seq),
		Name:      fmt.Sprintf("Vacation %d", seq),
		Category:  domain.CategoryVacation,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	for _, opt := range opts {
		opt(policy)
	}

	return policy
}

// WithPolicyKey sets the policy key and name
func WithPolicyKey(key, name string) func(*repository.Policy) {
	return func(p *repository.Policy) {
		p.Key = key
		p.Name = name
	}
}

// WithCategory sets the policy category
func WithCategory(category domain.PolicyCategory) func(*repository.Policy) {
	return func(p *repository.Policy) {
		p.Category = category
	}
}

// PolicyVersion creates a version-1 fixture for the given policy
func (f *FixtureFactory) PolicyVersion(policy *repository.Policy, settings json.RawMessage, effectiveFrom time.Time) *repository.PolicyVersion {
	decoded, err := domain.DecodeSettings(settings)
	if err != nil {
		panic(fmt.Sprintf("invalid settings fixture: %v", err))
	}

	version := &repository.PolicyVersion{
		ID:            uuid.New(),
		PolicyID:      policy.ID,
		Version:       1,
		EffectiveFrom: effectiveFrom,
		Settings:      settings,
		CreatedBy:     uuid.New(),
		CreatedAt:     time.Now().UTC(),
	}
	switch s := decoded.(type) {
	case *domain.TimeAccrualSettings:
		version.Type = s.Type
		method := s.AccrualMethod
		version.AccrualMethod = &method
	case *domain.HoursWorkedAccrualSettings:
		version.Type = s.Type
		method := s.AccrualMethod
		version.AccrualMethod = &method
	case *domain.UnlimitedSettings:
		version.Type = s.Type
	}

	return version
}

// Assignment creates an assignment fixture covering the given date onward
func (f *FixtureFactory) Assignment(companyID, employeeID, policyID uuid.UUID, effectiveFrom time.Time) *repository.Assignment {
	return &repository.Assignment{
		ID:            uuid.New(),
		CompanyID:     companyID,
		EmployeeID:    employeeID,
		PolicyID:      policyID,
		EffectiveFrom: effectiveFrom,
		CreatedBy:     uuid.New(),
		CreatedAt:     time.Now().UTC(),
	}
}

// Snapshot creates a balance snapshot fixture with a consistent available
func (f *FixtureFactory) Snapshot(companyID, employeeID, policyID uuid.UUID, accrued, used, held int64) *repository.BalanceSnapshot {
	snapshot := &repository.BalanceSnapshot{
		CompanyID:      companyID,
		EmployeeID:     employeeID,
		PolicyID:       policyID,
		AccruedMinutes: accrued,
		UsedMinutes:    used,
		HeldMinutes:    held,
		Version:        1,
		UpdatedAt:      time.Now().UTC(),
	}
	snapshot.Recompute()
	return snapshot
}

// LedgerEntry creates a ledger entry fixture
func (f *FixtureFactory) LedgerEntry(companyID, employeeID, policyID uuid.UUID, entryType domain.LedgerEntryType, amount int64, opts ...func(*repository.LedgerEntry)) *repository.LedgerEntry {
	seq := f.nextSeq()

	entry := &repository.LedgerEntry{
		ID:            uuid.New(),
		CompanyID:     companyID,
		EmployeeID:    employeeID,
		PolicyID:      policyID,
		EntryType:     entryType,
		AmountMinutes: amount,
		EffectiveAt:   time.Now().UTC(),
		SourceType:    domain.SourceAdmin,
		SourceID:      fmt.Sprintf("fixture:%d", seq),
		CreatedAt:     time.Now().UTC(),
	}

	for _, opt := range opts {
		opt(entry)
	}

	return entry
}

// WithSource sets the ledger entry source
func WithSource(sourceType domain.LedgerSourceType, sourceID string) func(*repository.LedgerEntry) {
	return func(e *repository.LedgerEntry) {
		e.SourceType = sourceType
		e.SourceID = sourceID
	}
}

// Request creates a submitted request fixture
func (f *FixtureFactory) Request(companyID, employeeID, policyID uuid.UUID, start, end time.Time, minutes int64) *repository.Request {
	now := time.Now().UTC()
	return &repository.Request{
		ID:               uuid.New(),
		CompanyID:        companyID,
		EmployeeID:       employeeID,
		PolicyID:         policyID,
		StartAt:          start,
		EndAt:            end,
		RequestedMinutes: minutes,
		Status:           domain.RequestSubmitted,
		SubmittedAt:      &now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Holiday creates a holiday fixture
func (f *FixtureFactory) Holiday(companyID uuid.UUID, date time.Time, name string) *repository.Holiday {
	return &repository.Holiday{
		ID:        uuid.New(),
		CompanyID: companyID,
		Date:      date,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
}
