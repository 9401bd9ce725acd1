package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leaveledger/leaveledger-backend/internal/timeoff/domain"
	"github.com/leaveledger/leaveledger-backend/pkg/testutil"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func decodeTimeSettings(t *testing.T, raw []byte) *domain.TimeAccrualSettings {
	t.Helper()
	decoded, err := domain.DecodeSettings(raw)
	require.NoError(t, err)
	settings, ok := decoded.(*domain.TimeAccrualSettings)
	require.True(t, ok)
	return settings
}

func TestPeriodBoundaries(t *testing.T) {
	tests := []struct {
		name      string
		frequency domain.AccrualFrequency
		target    time.Time
		wantStart time.Time
		wantEnd   time.Time
	}{
		{"daily", domain.FrequencyDaily, date(2024, time.March, 15), date(2024, time.March, 15), date(2024, time.March, 16)},
		{"monthly mid-month", domain.FrequencyMonthly, date(2024, time.March, 15), date(2024, time.March, 1), date(2024, time.April, 1)},
		{"monthly december rolls year", domain.FrequencyMonthly, date(2024, time.December, 31), date(2024, time.December, 1), date(2025, time.January, 1)},
		{"yearly", domain.FrequencyYearly, date(2024, time.July, 4), date(2024, time.January, 1), date(2025, time.January, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := periodBoundaries(tt.frequency, tt.target)
			assert.Equal(t, tt.wantStart, start)
			assert.Equal(t, tt.wantEnd, end)
		})
	}
}

func TestIsAccrualDate(t *testing.T) {
	tests := []struct {
		name      string
		frequency domain.AccrualFrequency
		timing    domain.AccrualTiming
		target    time.Time
		want      bool
	}{
		{"daily always grants", domain.FrequencyDaily, domain.TimingStartOfPeriod, date(2024, time.March, 15), true},
		{"monthly start on the 1st", domain.FrequencyMonthly, domain.TimingStartOfPeriod, date(2024, time.March, 1), true},
		{"monthly start mid-month", domain.FrequencyMonthly, domain.TimingStartOfPeriod, date(2024, time.March, 15), false},
		{"monthly end on last day", domain.FrequencyMonthly, domain.TimingEndOfPeriod, date(2024, time.February, 29), true},
		{"monthly end on the 1st", domain.FrequencyMonthly, domain.TimingEndOfPeriod, date(2024, time.March, 1), false},
		{"monthly end on non-last day", domain.FrequencyMonthly, domain.TimingEndOfPeriod, date(2024, time.March, 30), false},
		{"yearly start on jan 1", domain.FrequencyYearly, domain.TimingStartOfPeriod, date(2024, time.January, 1), true},
		{"yearly start elsewhere", domain.FrequencyYearly, domain.TimingStartOfPeriod, date(2024, time.June, 1), false},
		{"yearly end on dec 31", domain.FrequencyYearly, domain.TimingEndOfPeriod, date(2024, time.December, 31), true},
		{"yearly end elsewhere", domain.FrequencyYearly, domain.TimingEndOfPeriod, date(2024, time.January, 1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := &domain.TimeAccrualSettings{
				AccrualFrequency: tt.frequency,
				AccrualTiming:    tt.timing,
			}
			assert.Equal(t, tt.want, isAccrualDate(settings, tt.target))
		})
	}
}

func TestTenureMonths(t *testing.T) {
	tests := []struct {
		name string
		from time.Time
		to   time.Time
		want int
	}{
		{"same month", date(2024, time.March, 1), date(2024, time.March, 31), 0},
		{"one month, day ignored", date(2024, time.March, 31), date(2024, time.April, 1), 1},
		{"one year", date(2023, time.March, 1), date(2024, time.March, 1), 12},
		{"across year boundary", date(2023, time.November, 15), date(2024, time.February, 1), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tenureMonths(tt.from, tt.to))
		})
	}
}

func TestResolveRate(t *testing.T) {
	settings := decodeTimeSettings(t, testutil.TimeSettings(
		testutil.WithMonthlyRate(480),
		testutil.WithTenureTiers(
			domain.TenureTier{MinMonths: 24, AccrualRateMinutes: 600},
			domain.TenureTier{MinMonths: 60, AccrualRateMinutes: 720},
		),
	))

	tests := []struct {
		name     string
		hireDate time.Time
		want     int64
	}{
		{"below first tier uses base rate", date(2024, time.January, 1), 480},
		{"first tier reached", date(2022, time.January, 1), 600},
		{"highest tier wins", date(2018, time.January, 1), 720},
	}

	target := date(2024, time.June, 1)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveRate(settings, tt.hireDate, target))
		})
	}
}

func TestProrate(t *testing.T) {
	julStart := date(2024, time.July, 1)
	augStart := date(2024, time.August, 1)

	tests := []struct {
		name           string
		method         domain.ProrationMethod
		rate           int64
		assignmentFrom time.Time
		want           int64
	}{
		{"NONE ignores partial period", domain.ProrationNone, 480, date(2024, time.July, 15), 480},
		{"full period gets full rate", domain.ProrationDaysActive, 480, date(2024, time.June, 1), 480},
		{"mid-period assignment floors", domain.ProrationDaysActive, 480, date(2024, time.July, 15), 263},
		{"assignment starting at period end gets nothing", domain.ProrationDaysActive, 480, augStart, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := prorate(tt.method, tt.rate, tt.assignmentFrom, julStart, augStart)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyBankCap(t *testing.T) {
	capMinutes := int64(4800)

	tests := []struct {
		name    string
		cap     *int64
		accrued int64
		amount  int64
		want    int64
	}{
		{"no cap passes through", nil, 100000, 480, 480},
		{"under cap passes through", &capMinutes, 1000, 480, 480},
		{"partial headroom truncates", &capMinutes, 4500, 480, 300},
		{"at cap grants nothing", &capMinutes, 4800, 480, 0},
		{"over cap grants nothing", &capMinutes, 5000, 480, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, applyBankCap(tt.cap, tt.accrued, tt.amount))
		})
	}
}

func TestHoursWorkedRatio(t *testing.T) {
	decoded, err := domain.DecodeSettings(testutil.HoursWorkedSettings(
		testutil.WithAccrualRatio(60, 1800),
	))
	require.NoError(t, err)
	settings, ok := decoded.(*domain.HoursWorkedAccrualSettings)
	require.True(t, ok)

	// 100 worked hours at 1h per 30h accrues 200 minutes.
	worked := int64(6000)
	computed := worked * settings.AccrualRatio.AccrueMinutes / settings.AccrualRatio.PerWorkedMinutes
	assert.Equal(t, int64(200), computed)

	// Integer floor, never rounding up.
	worked = int64(1799)
	computed = worked * settings.AccrualRatio.AccrueMinutes / settings.AccrualRatio.PerWorkedMinutes
	assert.Equal(t, int64(59), computed)
}
