package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leaveledger/leaveledger-backend/internal/timeoff/domain"
	"github.com/leaveledger/leaveledger-backend/internal/timeoff/repository"
	"github.com/leaveledger/leaveledger-backend/pkg/testutil"
)

func TestLedgerInsertIdempotent(t *testing.T) {
	ctx := context.Background()
	fixtures := testutil.NewFixtureFactory()
	companyID := uuid.New()
	employeeID := uuid.New()
	policyID := uuid.New()

	t.Run("inserts inside a savepoint", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()

		mockDB.ExpectBegin()
		mockDB.ExpectSavepoint("sp_ledger_post")
		mockDB.ExpectQuery("INSERT INTO time_off_ledger_entry").
			WillReturnRows(testutil.MockRows("created_at").AddRow(time.Now()))
		mockDB.ExpectReleaseSavepoint("sp_ledger_post")
		mockDB.ExpectCommit()

		tx, err := mockDB.DB.Beginx()
		require.NoError(t, err)

		repo := repository.NewLedgerRepository(nil)
		entry := fixtures.LedgerEntry(companyID, employeeID, policyID, domain.EntryAccrual, 480,
			testutil.WithSource(domain.SourceSystem, "accrual:p:e:2024-03-01"))

		inserted, err := repo.InsertIdempotent(ctx, tx, entry)
		require.NoError(t, err)
		assert.True(t, inserted)
		require.NoError(t, tx.Commit())

		mockDB.ExpectationsWereMet(t)
	})

	t.Run("duplicate rolls back the savepoint and reports a skip", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()

		mockDB.ExpectBegin()
		mockDB.ExpectSavepoint("sp_ledger_post")
		mockDB.ExpectQuery("INSERT INTO time_off_ledger_entry").
			WillReturnError(&pq.Error{Code: "23505", Constraint: "uq_ledger_idempotency"})
		mockDB.ExpectRollbackToSavepoint("sp_ledger_post")
		mockDB.ExpectReleaseSavepoint("sp_ledger_post")
		// The surrounding transaction is still usable after the skip.
		mockDB.ExpectCommit()

		tx, err := mockDB.DB.Beginx()
		require.NoError(t, err)

		repo := repository.NewLedgerRepository(nil)
		entry := fixtures.LedgerEntry(companyID, employeeID, policyID, domain.EntryAccrual, 480,
			testutil.WithSource(domain.SourceSystem, "accrual:p:e:2024-03-01"))

		inserted, err := repo.InsertIdempotent(ctx, tx, entry)
		require.NoError(t, err)
		assert.False(t, inserted)
		require.NoError(t, tx.Commit())

		mockDB.ExpectationsWereMet(t)
	})

	t.Run("other failures propagate", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()

		mockDB.ExpectBegin()
		mockDB.ExpectSavepoint("sp_ledger_post")
		mockDB.ExpectQuery("INSERT INTO time_off_ledger_entry").
			WillReturnError(&pq.Error{Code: "23503", Constraint: "fk_ledger_policy"})
		mockDB.ExpectRollbackToSavepoint("sp_ledger_post")
		mockDB.ExpectReleaseSavepoint("sp_ledger_post")

		tx, err := mockDB.DB.Beginx()
		require.NoError(t, err)
		defer tx.Rollback()

		repo := repository.NewLedgerRepository(nil)
		entry := fixtures.LedgerEntry(companyID, employeeID, policyID, domain.EntryHold, -480,
			testutil.WithSource(domain.SourceRequest, uuid.New().String()))

		_, err = repo.InsertIdempotent(ctx, tx, entry)
		assert.Error(t, err)
	})
}

func TestLedgerFindBySource(t *testing.T) {
	ctx := context.Background()

	t.Run("missing entry returns nil", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()

		mockDB.ExpectQuery("FROM time_off_ledger_entry").
			WillReturnRows(testutil.MockRows(
				"id", "company_id", "employee_id", "policy_id", "policy_version_id", "entry_type",
				"amount_minutes", "effective_at", "source_type", "source_id", "metadata_json", "created_at"))

		repo := repository.NewLedgerRepository(nil)
		entry, err := repo.FindBySource(ctx, mockDB.DB, domain.SourceSystem, "carryover_marker:p:e:2023", domain.EntryCarryover)
		require.NoError(t, err)
		assert.Nil(t, entry)
	})

	t.Run("found entry is hydrated", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()

		id := uuid.New()
		now := time.Now().UTC()
		mockDB.ExpectQuery("FROM time_off_ledger_entry").
			WithArgs(string(domain.SourceSystem), "carryover_marker:p:e:2023", string(domain.EntryCarryover)).
			WillReturnRows(testutil.MockRows(
				"id", "company_id", "employee_id", "policy_id", "policy_version_id", "entry_type",
				"amount_minutes", "effective_at", "source_type", "source_id", "metadata_json", "created_at").
				AddRow(id, uuid.New(), uuid.New(), uuid.New(), uuid.New(), "CARRYOVER",
					int64(0), now, "SYSTEM", "carryover_marker:p:e:2023", []byte(`{"carried_minutes":960}`), now))

		repo := repository.NewLedgerRepository(nil)
		entry, err := repo.FindBySource(ctx, mockDB.DB, domain.SourceSystem, "carryover_marker:p:e:2023", domain.EntryCarryover)
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.Equal(t, id, entry.ID)
		assert.Equal(t, domain.EntryCarryover, entry.EntryType)
		assert.JSONEq(t, `{"carried_minutes":960}`, string(entry.Metadata))
	})
}

func TestLedgerTotalsQueryShape(t *testing.T) {
	ctx := context.Background()
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("FROM time_off_ledger_entry").
		WillReturnRows(testutil.MockRows("accrued_minutes", "used_minutes", "held_minutes").
			AddRow(int64(5760), int64(960), int64(480)))

	repo := repository.NewLedgerRepository(nil)
	totals, err := repo.Totals(ctx, mockDB.DB, uuid.New(), uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, int64(5760), totals.AccruedMinutes)
	assert.Equal(t, int64(960), totals.UsedMinutes)
	assert.Equal(t, int64(480), totals.HeldMinutes)
}
