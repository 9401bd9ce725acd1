package service

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leaveledger/leaveledger-backend/internal/directory"
	"github.com/leaveledger/leaveledger-backend/internal/timeoff/domain"
	"github.com/leaveledger/leaveledger-backend/internal/timeoff/events"
	"github.com/leaveledger/leaveledger-backend/internal/timeoff/repository"
	"github.com/leaveledger/leaveledger-backend/pkg/logger"
	"github.com/leaveledger/leaveledger-backend/pkg/testutil"
)

func newAccrualTestService() *AccrualService {
	log := logger.New("test", "test")
	assignments := repository.NewAssignmentRepository(nil)
	policies := repository.NewPolicyRepository(nil)
	ledger := repository.NewLedgerRepository(nil)
	snapshots := repository.NewSnapshotRepository(nil)
	audit := NewAuditRecorder(repository.NewAuditRepository(nil))
	balances := NewBalanceService(nil, snapshots, ledger, policies, assignments, audit, log)
	return NewAccrualService(nil, assignments, policies, ledger, snapshots, balances,
		directory.NewInMemoryDirectory(), audit, events.NewNoopPublisher(), log)
}

func TestAccrueOneBankCap(t *testing.T) {
	ctx := context.Background()
	fixtures := testutil.NewFixtureFactory()
	companyID := uuid.New()
	employeeID := uuid.New()
	policyID := uuid.New()

	svc := newAccrualTestService()
	targetDate := date(2024, time.March, 15)
	assignment := fixtures.Assignment(companyID, employeeID, policyID, date(2023, time.January, 1))

	versionColumns := []string{
		"id", "policy_id", "version", "effective_from", "effective_to",
		"type", "accrual_method", "settings_json", "created_by", "change_reason", "created_at",
	}
	snapshotColumns := []string{
		"company_id", "employee_id", "policy_id",
		"accrued_minutes", "used_minutes", "held_minutes", "available_minutes",
		"version", "updated_at",
	}
	settings := testutil.TimeSettings(testutil.WithDailyRate(480), testutil.WithBankCap(4800))

	t.Run("at the cap skips without posting", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()

		mockDB.ExpectBegin()
		mockDB.ExpectQuery("FROM time_off_policy_version").WillReturnRows(
			testutil.MockRows(versionColumns...).
				AddRow(uuid.New(), policyID, 1, date(2023, time.January, 1), nil,
					"ACCRUAL", "TIME", []byte(settings), uuid.New(), nil, time.Now().UTC()))
		mockDB.ExpectQuery("FROM time_off_balance_snapshot").WillReturnRows(
			testutil.MockRows(snapshotColumns...).
				AddRow(companyID, employeeID, policyID,
					int64(4800), int64(0), int64(0), int64(4800), 3, time.Now().UTC()))
		mockDB.ExpectRollback()

		tx, err := mockDB.DB.Beginx()
		require.NoError(t, err)

		result := &AccrualRunResult{}
		require.NoError(t, svc.accrueOne(ctx, tx, assignment, targetDate, result))
		require.NoError(t, tx.Rollback())

		// A capped-out grant must not post a zero entry: that would burn
		// the day's idempotency key and block a re-run after a downward
		// adjustment.
		assert.Equal(t, 0, result.Processed)
		assert.Equal(t, 1, result.Skipped)
		assert.Equal(t, int64(0), result.AccruedMinutes)
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("partial headroom grants the remainder", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()

		mockDB.ExpectBegin()
		mockDB.ExpectQuery("FROM time_off_policy_version").WillReturnRows(
			testutil.MockRows(versionColumns...).
				AddRow(uuid.New(), policyID, 1, date(2023, time.January, 1), nil,
					"ACCRUAL", "TIME", []byte(settings), uuid.New(), nil, time.Now().UTC()))
		mockDB.ExpectQuery("FROM time_off_balance_snapshot").WillReturnRows(
			testutil.MockRows(snapshotColumns...).
				AddRow(companyID, employeeID, policyID,
					int64(4500), int64(0), int64(0), int64(4500), 3, time.Now().UTC()))
		mockDB.ExpectSavepoint("sp_ledger_post")
		mockDB.ExpectQuery("INSERT INTO time_off_ledger_entry").
			WillReturnRows(testutil.MockRows("created_at").AddRow(time.Now().UTC()))
		mockDB.ExpectReleaseSavepoint("sp_ledger_post")
		mockDB.ExpectExec("UPDATE time_off_balance_snapshot").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mockDB.ExpectQuery("INSERT INTO audit_log").
			WillReturnRows(testutil.MockRows("created_at").AddRow(time.Now().UTC()))
		mockDB.ExpectRollback()

		tx, err := mockDB.DB.Beginx()
		require.NoError(t, err)

		result := &AccrualRunResult{}
		require.NoError(t, svc.accrueOne(ctx, tx, assignment, targetDate, result))
		require.NoError(t, tx.Rollback())

		assert.Equal(t, 1, result.Processed)
		assert.Equal(t, 0, result.Skipped)
		assert.Equal(t, int64(300), result.AccruedMinutes)
		mockDB.ExpectationsWereMet(t)
	})
}

func TestPayrollAccrualBankCap(t *testing.T) {
	ctx := context.Background()
	companyID := uuid.New()
	employeeID := uuid.New()
	policyID := uuid.New()

	svc := newAccrualTestService()
	payload := PayrollProcessedPayload{
		PayrollRunID: "pr-2024-08",
		CompanyID:    companyID,
		PeriodStart:  date(2024, time.August, 1),
		PeriodEnd:    date(2024, time.August, 15),
		Entries:      []PayrollEntry{{EmployeeID: employeeID, WorkedMinutes: 6000}},
	}

	capMinutes := int64(1200)
	settings := testutil.HoursWorkedSettings(func(s *domain.HoursWorkedAccrualSettings) {
		s.BankCapMinutes = &capMinutes
	})

	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM time_off_policy_assignment").WillReturnRows(
		testutil.MockRows("id", "company_id", "employee_id", "policy_id",
			"effective_from", "effective_to", "created_by", "created_at").
			AddRow(uuid.New(), companyID, employeeID, policyID,
				date(2023, time.January, 1), nil, uuid.New(), time.Now().UTC()))
	mockDB.ExpectQuery("FROM time_off_policy_version").WillReturnRows(
		testutil.MockRows(
			"id", "policy_id", "version", "effective_from", "effective_to",
			"type", "accrual_method", "settings_json", "created_by", "change_reason", "created_at").
			AddRow(uuid.New(), policyID, 1, date(2023, time.January, 1), nil,
				"ACCRUAL", "HOURS_WORKED", []byte(settings), uuid.New(), nil, time.Now().UTC()))
	mockDB.ExpectQuery("FROM time_off_balance_snapshot").WillReturnRows(
		testutil.MockRows("company_id", "employee_id", "policy_id",
			"accrued_minutes", "used_minutes", "held_minutes", "available_minutes",
			"version", "updated_at").
			AddRow(companyID, employeeID, policyID,
				int64(1200), int64(0), int64(0), int64(1200), 2, time.Now().UTC()))
	mockDB.ExpectRollback()

	tx, err := mockDB.DB.Beginx()
	require.NoError(t, err)

	result := &AccrualRunResult{}
	require.NoError(t, svc.accruePayrollEntry(ctx, tx, payload, payload.Entries[0], midnightUTC(payload.PeriodEnd), result))
	require.NoError(t, tx.Rollback())

	assert.Equal(t, 0, result.Processed)
	assert.Equal(t, 1, result.Skipped)
	mockDB.ExpectationsWereMet(t)
}
