package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/leaveledger/leaveledger-backend/internal/directory"
	"github.com/leaveledger/leaveledger-backend/internal/timeoff/repository"
	"github.com/leaveledger/leaveledger-backend/pkg/database"
	"github.com/leaveledger/leaveledger-backend/pkg/errors"
)

// workdayStartHour is the local hour a standard workday opens.
const workdayStartHour = 9

// WorkSchedule is the resolved working-time profile of one employee.
type WorkSchedule struct {
	WorkdayMinutes int64
	Location       *time.Location
}

// DurationService converts request intervals into working minutes,
// excluding weekends and company holidays in the employee's timezone.
type DurationService struct {
	employees directory.EmployeeDirectory
	holidays  *repository.HolidayRepository
}

// NewDurationService creates a new duration service.
func NewDurationService(employees directory.EmployeeDirectory, holidays *repository.HolidayRepository) *DurationService {
	return &DurationService{
		employees: employees,
		holidays:  holidays,
	}
}

// Schedule resolves an employee's workday length and timezone, falling
// back to an 8-hour UTC schedule when the directory has no record.
func (s *DurationService) Schedule(ctx context.Context, companyID, employeeID uuid.UUID) (*WorkSchedule, error) {
	schedule := &WorkSchedule{
		WorkdayMinutes: directory.DefaultWorkdayMinutes,
		Location:       time.UTC,
	}

	employee, err := s.employees.GetEmployee(ctx, companyID, employeeID)
	if err != nil {
		return nil, err
	}
	if employee == nil {
		return schedule, nil
	}

	if employee.WorkdayMinutes > 0 {
		schedule.WorkdayMinutes = employee.WorkdayMinutes
	}
	if employee.Timezone != "" {
		loc, err := time.LoadLocation(employee.Timezone)
		if err != nil {
			return nil, errors.BadRequest("employee has an invalid timezone")
		}
		schedule.Location = loc
	}

	return schedule, nil
}

// ResolveInterval parses the request endpoints. Timestamps without a
// zone offset are interpreted as wall-clock time in the employee's
// timezone; if either endpoint is naive, both are.
func (s *DurationService) ResolveInterval(schedule *WorkSchedule, startRaw, endRaw string) (time.Time, time.Time, error) {
	start, startNaive, err := parseTimestamp(startRaw)
	if err != nil {
		return time.Time{}, time.Time{}, errors.BadRequest("start_at must be an RFC 3339 or local timestamp")
	}
	end, endNaive, err := parseTimestamp(endRaw)
	if err != nil {
		return time.Time{}, time.Time{}, errors.BadRequest("end_at must be an RFC 3339 or local timestamp")
	}

	if startNaive || endNaive {
		start = asWallClock(start, schedule.Location)
		end = asWallClock(end, schedule.Location)
	}

	if !end.After(start) {
		return time.Time{}, time.Time{}, errors.BadRequest("end_at must be after start_at")
	}

	return start, end, nil
}

// WorkingMinutes sums the working minutes in [start, end), skipping
// Saturdays, Sundays and company holidays. Each working day contributes
// the overlap of the interval with the local workday window.
func (s *DurationService) WorkingMinutes(ctx context.Context, q database.Queryer, companyID uuid.UUID, schedule *WorkSchedule, start, end time.Time) (int64, error) {
	localStart := start.In(schedule.Location)
	localEnd := end.In(schedule.Location)

	firstDay := civilDate(localStart, schedule.Location)
	lastDay := civilDate(localEnd, schedule.Location)

	holidaySet, err := s.holidaySet(ctx, q, companyID, firstDay, lastDay)
	if err != nil {
		return 0, err
	}

	var total int64
	for day := firstDay; !day.After(lastDay); day = day.AddDate(0, 0, 1) {
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}
		if holidaySet[day.Format("2006-01-02")] {
			continue
		}

		// Anchor at 09:00 local by civil clock, not by adding hours to
		// midnight; on DST-gap days midnight may not exist and the
		// normalized day start would drift the window.
		windowStart := time.Date(day.Year(), day.Month(), day.Day(), workdayStartHour, 0, 0, 0, schedule.Location)
		windowEnd := windowStart.Add(time.Duration(schedule.WorkdayMinutes) * time.Minute)

		overlapStart := maxTime(windowStart, localStart)
		overlapEnd := minTime(windowEnd, localEnd)
		if overlapEnd.After(overlapStart) {
			total += int64(overlapEnd.Sub(overlapStart) / time.Minute)
		}
	}

	if total <= 0 {
		return 0, errors.BadRequest("Request covers no working time after excluding weekends and holidays")
	}

	return total, nil
}

func (s *DurationService) holidaySet(ctx context.Context, q database.Queryer, companyID uuid.UUID, from, to time.Time) (map[string]bool, error) {
	dates, err := s.holidays.DatesBetween(ctx, q, companyID,
		time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC),
		time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC))
	if err != nil {
		return nil, err
	}

	set := make(map[string]bool, len(dates))
	for _, d := range dates {
		set[d.Format("2006-01-02")] = true
	}
	return set, nil
}

// parseTimestamp accepts RFC 3339 timestamps and zone-less local forms.
// The second return reports whether the value carried no zone offset.
func parseTimestamp(raw string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, false, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true, nil
		}
	}
	return time.Time{}, false, errors.BadRequest("invalid timestamp")
}

func asWallClock(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)
}

func civilDate(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
