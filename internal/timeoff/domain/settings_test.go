package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }
func intPtr(v int) *int       { return &v }

func TestDecodeSettings_Dispatch(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want any
	}{
		{
			name: "unlimited",
			raw:  `{"type":"UNLIMITED","unit":"DAYS"}`,
			want: &UnlimitedSettings{},
		},
		{
			name: "time accrual",
			raw: `{"type":"ACCRUAL","accrual_method":"TIME","unit":"DAYS",
				"accrual_frequency":"YEARLY","rate_minutes_per_year":5760,
				"carryover":{"enabled":false},"expiration":{"enabled":false}}`,
			want: &TimeAccrualSettings{},
		},
		{
			name: "hours worked accrual",
			raw: `{"type":"ACCRUAL","accrual_method":"HOURS_WORKED","unit":"HOURS",
				"accrual_ratio":{"accrue_minutes":60,"per_worked_minutes":1800},
				"carryover":{"enabled":false},"expiration":{"enabled":false}}`,
			want: &HoursWorkedAccrualSettings{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeSettings([]byte(tt.raw))
			require.NoError(t, err)
			assert.IsType(t, tt.want, got)
		})
	}
}

func TestDecodeSettings_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"unknown type", `{"type":"LOTTERY"}`},
		{"unknown accrual method", `{"type":"ACCRUAL","accrual_method":"MOON_PHASE"}`},
		{"not json", `{"type":`},
		{"invalid unit", `{"type":"UNLIMITED","unit":"FORTNIGHTS"}`},
		{
			"no rate field",
			`{"type":"ACCRUAL","accrual_method":"TIME","unit":"DAYS","accrual_frequency":"YEARLY"}`,
		},
		{
			"two rate fields",
			`{"type":"ACCRUAL","accrual_method":"TIME","unit":"DAYS","accrual_frequency":"YEARLY",
			  "rate_minutes_per_year":5760,"rate_minutes_per_month":480}`,
		},
		{
			"rate field does not match frequency",
			`{"type":"ACCRUAL","accrual_method":"TIME","unit":"DAYS","accrual_frequency":"MONTHLY",
			  "rate_minutes_per_year":5760}`,
		},
		{
			"zero accrual ratio",
			`{"type":"ACCRUAL","accrual_method":"HOURS_WORKED","unit":"HOURS",
			  "accrual_ratio":{"accrue_minutes":0,"per_worked_minutes":1800}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSettings([]byte(tt.raw))
			assert.Error(t, err)
		})
	}
}

func TestTimeAccrualSettings_ValidateDefaults(t *testing.T) {
	rate := int64(5760)
	s := &TimeAccrualSettings{
		Unit:               UnitDays,
		AccrualFrequency:   FrequencyYearly,
		RateMinutesPerYear: &rate,
	}

	require.NoError(t, s.Validate())
	assert.Equal(t, PolicyAccrual, s.Type)
	assert.Equal(t, AccrualTime, s.AccrualMethod)
	assert.Equal(t, TimingStartOfPeriod, s.AccrualTiming)
	assert.Equal(t, ProrationDaysActive, s.Proration)
}

func TestAccrualRules_Validate(t *testing.T) {
	base := func() *TimeAccrualSettings {
		rate := int64(480)
		return &TimeAccrualSettings{
			Unit:                UnitHours,
			AccrualFrequency:    FrequencyMonthly,
			RateMinutesPerMonth: &rate,
		}
	}

	t.Run("negative limit requires allow_negative", func(t *testing.T) {
		s := base()
		s.NegativeLimitMinutes = int64Ptr(480)
		assert.Error(t, s.Validate())

		s.AllowNegative = true
		assert.NoError(t, s.Validate())
	})

	t.Run("carryover options require enabled", func(t *testing.T) {
		s := base()
		s.Carryover.CapMinutes = int64Ptr(960)
		assert.Error(t, s.Validate())

		s.Carryover.Enabled = true
		assert.NoError(t, s.Validate())
	})

	t.Run("expiration month and day must come together", func(t *testing.T) {
		s := base()
		s.Expiration.Enabled = true
		s.Expiration.ExpiresOnMonth = intPtr(3)
		assert.Error(t, s.Validate())

		s.Expiration.ExpiresOnDay = intPtr(31)
		assert.NoError(t, s.Validate())
	})

	t.Run("enabled expiration needs a trigger", func(t *testing.T) {
		s := base()
		s.Expiration.Enabled = true
		assert.Error(t, s.Validate())
	})

	t.Run("bank cap must be positive", func(t *testing.T) {
		s := base()
		s.BankCapMinutes = int64Ptr(0)
		assert.Error(t, s.Validate())
	})
}

func TestAccrualRules_CheckAvailable(t *testing.T) {
	t.Run("default blocks negative", func(t *testing.T) {
		rules := AccrualRules{}
		assert.NoError(t, rules.CheckAvailable(0))
		assert.NoError(t, rules.CheckAvailable(480))
		assert.Error(t, rules.CheckAvailable(-1))
	})

	t.Run("allow_negative without limit is unbounded", func(t *testing.T) {
		rules := AccrualRules{AllowNegative: true}
		assert.NoError(t, rules.CheckAvailable(-100000))
	})

	t.Run("allow_negative with limit", func(t *testing.T) {
		rules := AccrualRules{AllowNegative: true, NegativeLimitMinutes: int64Ptr(480)}
		assert.NoError(t, rules.CheckAvailable(-480))
		assert.Error(t, rules.CheckAvailable(-481))
	})
}

func TestEncodeSettings_RoundTrip(t *testing.T) {
	rate := int64(5760)
	capMinutes := int64(4800)
	original := &TimeAccrualSettings{
		Unit:               UnitDays,
		AccrualFrequency:   FrequencyYearly,
		AccrualTiming:      TimingEndOfPeriod,
		RateMinutesPerYear: &rate,
		Proration:          ProrationNone,
		TenureTiers:        []TenureTier{{MinMonths: 60, AccrualRateMinutes: 7200}},
	}
	original.Carryover = CarryoverSettings{Enabled: true, CapMinutes: &capMinutes}

	raw, err := EncodeSettings(original)
	require.NoError(t, err)

	decoded, err := DecodeSettings(raw)
	require.NoError(t, err)

	got, ok := decoded.(*TimeAccrualSettings)
	require.True(t, ok)
	assert.Equal(t, original.AccrualTiming, got.AccrualTiming)
	assert.Equal(t, original.TenureTiers, got.TenureTiers)
	assert.Equal(t, original.Carryover, got.Carryover)
}

func TestRulesOf(t *testing.T) {
	rate := int64(480)
	timeSettings := &TimeAccrualSettings{
		Unit:                UnitHours,
		AccrualFrequency:    FrequencyMonthly,
		RateMinutesPerMonth: &rate,
		AccrualRules:        AccrualRules{AllowNegative: true},
	}

	rules, ok := RulesOf(timeSettings)
	require.True(t, ok)
	assert.True(t, rules.AllowNegative)

	_, ok = RulesOf(&UnlimitedSettings{Type: PolicyUnlimited, Unit: UnitDays})
	assert.False(t, ok)
	assert.True(t, IsUnlimited(&UnlimitedSettings{}))
}

func TestBaseRate(t *testing.T) {
	yearly := int64(5760)
	monthly := int64(480)
	daily := int64(16)

	tests := []struct {
		name     string
		settings TimeAccrualSettings
		want     int64
	}{
		{"yearly", TimeAccrualSettings{AccrualFrequency: FrequencyYearly, RateMinutesPerYear: &yearly}, 5760},
		{"monthly", TimeAccrualSettings{AccrualFrequency: FrequencyMonthly, RateMinutesPerMonth: &monthly}, 480},
		{"daily", TimeAccrualSettings{AccrualFrequency: FrequencyDaily, RateMinutesPerDay: &daily}, 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.settings.BaseRate())
		})
	}
}

func TestRequestStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from RequestStatus
		to   RequestStatus
		want bool
	}{
		{RequestDraft, RequestSubmitted, true},
		{RequestSubmitted, RequestApproved, true},
		{RequestSubmitted, RequestDenied, true},
		{RequestSubmitted, RequestCancelled, true},
		{RequestApproved, RequestDenied, false},
		{RequestApproved, RequestCancelled, false},
		{RequestDenied, RequestApproved, false},
		{RequestCancelled, RequestSubmitted, false},
		{RequestSubmitted, RequestSubmitted, false},
		{RequestSubmitted, RequestDraft, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransition(tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestSettings_JSONShape(t *testing.T) {
	raw := UnlimitedSettings{Type: PolicyUnlimited, Unit: UnitDays}
	encoded, err := json.Marshal(&raw)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"UNLIMITED","unit":"DAYS"}`, string(encoded))
}
