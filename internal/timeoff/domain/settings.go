package domain

import (
	"encoding/json"
	"fmt"

	"github.com/leaveledger/leaveledger-backend/pkg/errors"
)

// Settings is the closed union of policy version settings. The concrete
// type is discriminated by the "type" and "accrual_method" JSON fields.
type Settings interface {
	Validate() error
	isSettings()
}

// UnlimitedSettings configures a policy with no balance accounting.
type UnlimitedSettings struct {
	Type PolicyType  `json:"type"`
	Unit DisplayUnit `json:"unit"`
}

func (s *UnlimitedSettings) isSettings() {}

func (s *UnlimitedSettings) Validate() error {
	s.Type = PolicyUnlimited
	if err := validateUnit(s.Unit); err != nil {
		return err
	}
	return nil
}

// TenureTier overrides the base accrual rate once an employee reaches
// a tenure threshold in months.
type TenureTier struct {
	MinMonths          int   `json:"min_months"`
	AccrualRateMinutes int64 `json:"accrual_rate_minutes"`
}

// CarryoverSettings controls the year-end carryover engine.
type CarryoverSettings struct {
	Enabled          bool   `json:"enabled"`
	CapMinutes       *int64 `json:"cap_minutes,omitempty"`
	ExpiresAfterDays *int   `json:"expires_after_days,omitempty"`
}

// ExpirationSettings controls calendar-date expiration of the whole balance.
type ExpirationSettings struct {
	Enabled          bool `json:"enabled"`
	ExpiresAfterDays *int `json:"expires_after_days,omitempty"`
	ExpiresOnMonth   *int `json:"expires_on_month,omitempty"`
	ExpiresOnDay     *int `json:"expires_on_day,omitempty"`
}

// AccrualRules holds the balance discipline shared by both accrual methods.
type AccrualRules struct {
	AllowNegative        bool               `json:"allow_negative"`
	NegativeLimitMinutes *int64             `json:"negative_limit_minutes,omitempty"`
	BankCapMinutes       *int64             `json:"bank_cap_minutes,omitempty"`
	Carryover            CarryoverSettings  `json:"carryover"`
	Expiration           ExpirationSettings `json:"expiration"`
}

// CheckAvailable returns an error when a prospective available balance
// would violate the negative-balance rules.
func (r AccrualRules) CheckAvailable(newAvailable int64) error {
	if !r.AllowNegative {
		if newAvailable < 0 {
			return errors.BadRequest("Insufficient balance for this request")
		}
		return nil
	}
	if r.NegativeLimitMinutes != nil && newAvailable < -*r.NegativeLimitMinutes {
		return errors.BadRequest("Request exceeds the allowed negative balance limit")
	}
	return nil
}

func (r AccrualRules) validate() error {
	if r.NegativeLimitMinutes != nil {
		if !r.AllowNegative {
			return errors.BadRequest("negative_limit_minutes requires allow_negative")
		}
		if *r.NegativeLimitMinutes < 0 {
			return errors.BadRequest("negative_limit_minutes must be non-negative")
		}
	}
	if r.BankCapMinutes != nil && *r.BankCapMinutes <= 0 {
		return errors.BadRequest("bank_cap_minutes must be positive")
	}
	if err := r.Carryover.validate(); err != nil {
		return err
	}
	return r.Expiration.validate()
}

func (c CarryoverSettings) validate() error {
	if !c.Enabled {
		if c.CapMinutes != nil || c.ExpiresAfterDays != nil {
			return errors.BadRequest("carryover options require carryover.enabled")
		}
		return nil
	}
	if c.CapMinutes != nil && *c.CapMinutes < 0 {
		return errors.BadRequest("carryover.cap_minutes must be non-negative")
	}
	if c.ExpiresAfterDays != nil && *c.ExpiresAfterDays <= 0 {
		return errors.BadRequest("carryover.expires_after_days must be positive")
	}
	return nil
}

func (e ExpirationSettings) validate() error {
	if (e.ExpiresOnMonth == nil) != (e.ExpiresOnDay == nil) {
		return errors.BadRequest("expiration.expires_on_month and expires_on_day must be set together")
	}
	if !e.Enabled {
		if e.ExpiresAfterDays != nil || e.ExpiresOnMonth != nil {
			return errors.BadRequest("expiration options require expiration.enabled")
		}
		return nil
	}
	if e.ExpiresAfterDays == nil && e.ExpiresOnMonth == nil {
		return errors.BadRequest("enabled expiration requires expires_after_days or expires_on_month/expires_on_day")
	}
	if e.ExpiresOnMonth != nil {
		if *e.ExpiresOnMonth < 1 || *e.ExpiresOnMonth > 12 {
			return errors.BadRequest("expiration.expires_on_month must be between 1 and 12")
		}
		if *e.ExpiresOnDay < 1 || *e.ExpiresOnDay > 31 {
			return errors.BadRequest("expiration.expires_on_day must be between 1 and 31")
		}
	}
	if e.ExpiresAfterDays != nil && *e.ExpiresAfterDays <= 0 {
		return errors.BadRequest("expiration.expires_after_days must be positive")
	}
	return nil
}

// TimeAccrualSettings configures calendar-driven accrual.
type TimeAccrualSettings struct {
	Type                PolicyType       `json:"type"`
	AccrualMethod       AccrualMethod    `json:"accrual_method"`
	Unit                DisplayUnit      `json:"unit"`
	AccrualFrequency    AccrualFrequency `json:"accrual_frequency"`
	AccrualTiming       AccrualTiming    `json:"accrual_timing"`
	RateMinutesPerYear  *int64           `json:"rate_minutes_per_year,omitempty"`
	RateMinutesPerMonth *int64           `json:"rate_minutes_per_month,omitempty"`
	RateMinutesPerDay   *int64           `json:"rate_minutes_per_day,omitempty"`
	Proration           ProrationMethod  `json:"proration"`
	TenureTiers         []TenureTier     `json:"tenure_tiers,omitempty"`
	AccrualRules
}

func (s *TimeAccrualSettings) isSettings() {}

func (s *TimeAccrualSettings) Validate() error {
	s.Type = PolicyAccrual
	s.AccrualMethod = AccrualTime
	if s.AccrualTiming == "" {
		s.AccrualTiming = TimingStartOfPeriod
	}
	if s.Proration == "" {
		s.Proration = ProrationDaysActive
	}

	if err := validateUnit(s.Unit); err != nil {
		return err
	}
	switch s.AccrualFrequency {
	case FrequencyDaily, FrequencyMonthly, FrequencyYearly:
	default:
		return errors.BadRequest("accrual_frequency must be one of DAILY, MONTHLY, YEARLY")
	}
	switch s.AccrualTiming {
	case TimingStartOfPeriod, TimingEndOfPeriod:
	default:
		return errors.BadRequest("accrual_timing must be START_OF_PERIOD or END_OF_PERIOD")
	}
	switch s.Proration {
	case ProrationDaysActive, ProrationNone:
	default:
		return errors.BadRequest("proration must be DAYS_ACTIVE or NONE")
	}

	if err := s.validateRate(); err != nil {
		return err
	}

	for _, tier := range s.TenureTiers {
		if tier.MinMonths < 0 {
			return errors.BadRequest("tenure_tiers.min_months must be non-negative")
		}
		if tier.AccrualRateMinutes < 0 {
			return errors.BadRequest("tenure_tiers.accrual_rate_minutes must be non-negative")
		}
	}

	return s.AccrualRules.validate()
}

// validateRate enforces that exactly one rate field is set and that it
// matches the configured frequency.
func (s *TimeAccrualSettings) validateRate() error {
	set := 0
	if s.RateMinutesPerYear != nil {
		set++
	}
	if s.RateMinutesPerMonth != nil {
		set++
	}
	if s.RateMinutesPerDay != nil {
		set++
	}
	if set != 1 {
		return errors.BadRequest("exactly one of rate_minutes_per_year, rate_minutes_per_month, rate_minutes_per_day must be set")
	}

	var rate *int64
	switch s.AccrualFrequency {
	case FrequencyYearly:
		rate = s.RateMinutesPerYear
	case FrequencyMonthly:
		rate = s.RateMinutesPerMonth
	case FrequencyDaily:
		rate = s.RateMinutesPerDay
	}
	if rate == nil {
		return errors.BadRequest("the configured rate field must match accrual_frequency")
	}
	if *rate < 0 {
		return errors.BadRequest("accrual rate must be non-negative")
	}
	return nil
}

// BaseRate returns the rate matching the configured frequency.
func (s *TimeAccrualSettings) BaseRate() int64 {
	switch s.AccrualFrequency {
	case FrequencyYearly:
		return *s.RateMinutesPerYear
	case FrequencyMonthly:
		return *s.RateMinutesPerMonth
	default:
		return *s.RateMinutesPerDay
	}
}

// AccrualRatio expresses "accrue X minutes per Y worked minutes".
type AccrualRatio struct {
	AccrueMinutes    int64 `json:"accrue_minutes"`
	PerWorkedMinutes int64 `json:"per_worked_minutes"`
}

// HoursWorkedAccrualSettings configures payroll-driven accrual.
type HoursWorkedAccrualSettings struct {
	Type          PolicyType    `json:"type"`
	AccrualMethod AccrualMethod `json:"accrual_method"`
	Unit          DisplayUnit   `json:"unit"`
	AccrualRatio  AccrualRatio  `json:"accrual_ratio"`
	AccrualRules
}

func (s *HoursWorkedAccrualSettings) isSettings() {}

func (s *HoursWorkedAccrualSettings) Validate() error {
	s.Type = PolicyAccrual
	s.AccrualMethod = AccrualHoursWorked

	if err := validateUnit(s.Unit); err != nil {
		return err
	}
	if s.AccrualRatio.AccrueMinutes <= 0 {
		return errors.BadRequest("accrual_ratio.accrue_minutes must be positive")
	}
	if s.AccrualRatio.PerWorkedMinutes <= 0 {
		return errors.BadRequest("accrual_ratio.per_worked_minutes must be positive")
	}
	return s.AccrualRules.validate()
}

func validateUnit(u DisplayUnit) error {
	switch u {
	case UnitMinutes, UnitHours, UnitDays:
		return nil
	default:
		return errors.BadRequest("unit must be one of MINUTES, HOURS, DAYS")
	}
}

// RulesOf extracts the shared balance rules from accrual-typed settings.
// The second return is false for unlimited policies.
func RulesOf(s Settings) (AccrualRules, bool) {
	switch v := s.(type) {
	case *TimeAccrualSettings:
		return v.AccrualRules, true
	case *HoursWorkedAccrualSettings:
		return v.AccrualRules, true
	default:
		return AccrualRules{}, false
	}
}

// IsUnlimited reports whether the settings describe an unlimited policy.
func IsUnlimited(s Settings) bool {
	_, ok := s.(*UnlimitedSettings)
	return ok
}

type settingsHeader struct {
	Type          PolicyType    `json:"type"`
	AccrualMethod AccrualMethod `json:"accrual_method"`
}

// DecodeSettings parses and validates a settings document, dispatching on
// the embedded discriminator fields.
func DecodeSettings(raw []byte) (Settings, error) {
	var head settingsHeader
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, errors.BadRequest("invalid settings document")
	}

	var s Settings
	switch head.Type {
	case PolicyUnlimited:
		s = &UnlimitedSettings{}
	case PolicyAccrual:
		switch head.AccrualMethod {
		case AccrualTime:
			s = &TimeAccrualSettings{}
		case AccrualHoursWorked:
			s = &HoursWorkedAccrualSettings{}
		default:
			return nil, errors.BadRequest(fmt.Sprintf("unknown accrual_method %q", head.AccrualMethod))
		}
	default:
		return nil, errors.BadRequest(fmt.Sprintf("unknown settings type %q", head.Type))
	}

	if err := json.Unmarshal(raw, s); err != nil {
		return nil, errors.BadRequest("invalid settings document")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// EncodeSettings serializes validated settings for storage.
func EncodeSettings(s Settings) ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(s)
}
