package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leaveledger/leaveledger-backend/internal/directory"
	"github.com/leaveledger/leaveledger-backend/internal/timeoff/repository"
	"github.com/leaveledger/leaveledger-backend/pkg/testutil"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantNaive bool
		wantErr   bool
	}{
		{"RFC 3339 with offset", "2024-03-01T09:00:00+02:00", false, false},
		{"RFC 3339 UTC", "2024-03-01T09:00:00Z", false, false},
		{"local with seconds", "2024-03-01T09:00:00", true, false},
		{"local without seconds", "2024-03-01T09:00", true, false},
		{"date only", "2024-03-01", false, true},
		{"garbage", "yesterday-ish", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, naive, err := parseTimestamp(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantNaive, naive)
		})
	}
}

func TestResolveInterval(t *testing.T) {
	svc := NewDurationService(directory.NewInMemoryDirectory(), repository.NewHolidayRepository(nil))
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	schedule := &WorkSchedule{WorkdayMinutes: 480, Location: berlin}

	t.Run("zoned timestamps pass through", func(t *testing.T) {
		start, end, err := svc.ResolveInterval(schedule, "2024-03-01T09:00:00Z", "2024-03-01T17:00:00Z")
		require.NoError(t, err)
		assert.True(t, start.Equal(time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)))
		assert.True(t, end.Equal(time.Date(2024, time.March, 1, 17, 0, 0, 0, time.UTC)))
	})

	t.Run("naive timestamps anchor to the employee timezone", func(t *testing.T) {
		start, end, err := svc.ResolveInterval(schedule, "2024-03-01T09:00", "2024-03-01T17:00")
		require.NoError(t, err)
		assert.True(t, start.Equal(time.Date(2024, time.March, 1, 9, 0, 0, 0, berlin)))
		assert.True(t, end.Equal(time.Date(2024, time.March, 1, 17, 0, 0, 0, berlin)))
	})

	t.Run("one naive endpoint re-anchors both", func(t *testing.T) {
		start, _, err := svc.ResolveInterval(schedule, "2024-03-01T09:00:00Z", "2024-03-01T17:00")
		require.NoError(t, err)
		// The zoned start is reinterpreted as 09:00 Berlin wall clock.
		assert.True(t, start.Equal(time.Date(2024, time.March, 1, 9, 0, 0, 0, berlin)))
	})

	t.Run("end must be after start", func(t *testing.T) {
		_, _, err := svc.ResolveInterval(schedule, "2024-03-01T17:00:00Z", "2024-03-01T09:00:00Z")
		assert.Error(t, err)

		_, _, err = svc.ResolveInterval(schedule, "2024-03-01T09:00:00Z", "2024-03-01T09:00:00Z")
		assert.Error(t, err)
	})

	t.Run("invalid timestamps rejected", func(t *testing.T) {
		_, _, err := svc.ResolveInterval(schedule, "not-a-time", "2024-03-01T17:00:00Z")
		assert.Error(t, err)
	})
}

func TestSchedule(t *testing.T) {
	ctx := context.Background()
	companyID := uuid.New()
	dir := directory.NewInMemoryDirectory()
	svc := NewDurationService(dir, repository.NewHolidayRepository(nil))

	t.Run("unknown employee falls back to defaults", func(t *testing.T) {
		schedule, err := svc.Schedule(ctx, companyID, uuid.New())
		require.NoError(t, err)
		assert.Equal(t, int64(directory.DefaultWorkdayMinutes), schedule.WorkdayMinutes)
		assert.Equal(t, time.UTC, schedule.Location)
	})

	t.Run("directory record wins", func(t *testing.T) {
		employeeID := uuid.New()
		dir.PutEmployee(directory.EmployeeInfo{
			ID:             employeeID,
			CompanyID:      companyID,
			FirstName:      "Nora",
			LastName:       "Klein",
			WorkdayMinutes: 360,
			Timezone:       "America/New_York",
		})

		schedule, err := svc.Schedule(ctx, companyID, employeeID)
		require.NoError(t, err)
		assert.Equal(t, int64(360), schedule.WorkdayMinutes)
		assert.Equal(t, "America/New_York", schedule.Location.String())
	})

	t.Run("invalid timezone rejected", func(t *testing.T) {
		employeeID := uuid.New()
		dir.PutEmployee(directory.EmployeeInfo{
			ID:        employeeID,
			CompanyID: companyID,
			Timezone:  "Mars/Olympus_Mons",
		})

		_, err := svc.Schedule(ctx, companyID, employeeID)
		assert.Error(t, err)
	})
}

func TestWorkingMinutes(t *testing.T) {
	ctx := context.Background()
	companyID := uuid.New()
	svc := NewDurationService(directory.NewInMemoryDirectory(), repository.NewHolidayRepository(nil))
	schedule := &WorkSchedule{WorkdayMinutes: 480, Location: time.UTC}

	// 2024-03-01 is a Friday; 2024-03-04 (Monday) is a holiday.
	t.Run("skips weekends and holidays", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()
		mockDB.ExpectQuery("SELECT date").WillReturnRows(
			testutil.MockRows("date").AddRow(time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)))

		start := time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)
		end := time.Date(2024, time.March, 5, 17, 0, 0, 0, time.UTC)

		total, err := svc.WorkingMinutes(ctx, mockDB.DB, companyID, schedule, start, end)
		require.NoError(t, err)
		// Friday and Tuesday contribute a full 480-minute workday each.
		assert.Equal(t, int64(960), total)
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("partial day counts window overlap only", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()
		mockDB.ExpectQuery("SELECT date").WillReturnRows(testutil.MockRows("date"))

		start := time.Date(2024, time.March, 1, 13, 0, 0, 0, time.UTC)
		end := time.Date(2024, time.March, 1, 23, 0, 0, 0, time.UTC)

		total, err := svc.WorkingMinutes(ctx, mockDB.DB, companyID, schedule, start, end)
		require.NoError(t, err)
		// Workday window is 09:00-17:00; only 13:00-17:00 overlaps.
		assert.Equal(t, int64(240), total)
	})

	t.Run("workday window anchors to the local clock on DST-gap days", func(t *testing.T) {
		// Egypt springs forward at midnight, so 00:00 local does not
		// exist on 2024-04-26 (a Friday). The 09:00-17:00 window must
		// still be a full workday, not shifted by the gap.
		cairo, err := time.LoadLocation("Africa/Cairo")
		require.NoError(t, err)
		local := &WorkSchedule{WorkdayMinutes: 480, Location: cairo}

		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()
		mockDB.ExpectQuery("SELECT date").WillReturnRows(testutil.MockRows("date"))

		start := time.Date(2024, time.April, 26, 9, 0, 0, 0, cairo)
		end := time.Date(2024, time.April, 26, 17, 0, 0, 0, cairo)

		total, err := svc.WorkingMinutes(ctx, mockDB.DB, companyID, local, start, end)
		require.NoError(t, err)
		assert.Equal(t, int64(480), total)
	})

	t.Run("weekend-only interval is rejected", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()
		mockDB.ExpectQuery("SELECT date").WillReturnRows(testutil.MockRows("date"))

		start := time.Date(2024, time.March, 2, 9, 0, 0, 0, time.UTC)
		end := time.Date(2024, time.March, 3, 17, 0, 0, 0, time.UTC)

		_, err := svc.WorkingMinutes(ctx, mockDB.DB, companyID, schedule, start, end)
		assert.Error(t, err)
	})
}
