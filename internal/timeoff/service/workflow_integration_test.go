package service_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leaveledger/leaveledger-backend/internal/directory"
	"github.com/leaveledger/leaveledger-backend/internal/timeoff/domain"
	"github.com/leaveledger/leaveledger-backend/internal/timeoff/events"
	"github.com/leaveledger/leaveledger-backend/internal/timeoff/repository"
	"github.com/leaveledger/leaveledger-backend/internal/timeoff/service"
	"github.com/leaveledger/leaveledger-backend/pkg/auth"
	"github.com/leaveledger/leaveledger-backend/pkg/errors"
	"github.com/leaveledger/leaveledger-backend/pkg/testutil"
)

var (
	integrationOnce sync.Once
	integration     *testutil.IntegrationSuite
	integrationErr  error
)

func TestMain(m *testing.M) {
	code := m.Run()
	testutil.TerminateContainer(context.Background())
	os.Exit(code)
}

// integrationEnv wires the full service stack against the container
// database, the same way the server's main does.
type integrationEnv struct {
	suite       *testutil.IntegrationSuite
	dir         *directory.InMemoryDirectory
	ledger      *repository.LedgerRepository
	snapshots   *repository.SnapshotRepository
	policies    *service.PolicyService
	assignments *service.AssignmentService
	balances    *service.BalanceService
	requests    *service.RequestService
	carryover   *service.CarryoverService
}

func newIntegrationEnv(t *testing.T) *integrationEnv {
	t.Helper()
	testutil.SkipIfShort(t)
	testutil.SkipIfNoDocker(t)

	integrationOnce.Do(func() {
		integration, integrationErr = testutil.NewIntegrationSuite(context.Background(), repository.EnsureSchema)
	})
	require.NoError(t, integrationErr)

	db := integration.DB
	log := integration.Logger
	dir := directory.NewInMemoryDirectory()
	publisher := events.NewNoopPublisher()

	policyRepo := repository.NewPolicyRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	snapshotRepo := repository.NewSnapshotRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	holidayRepo := repository.NewHolidayRepository(db)
	audit := service.NewAuditRecorder(repository.NewAuditRepository(db))

	assignments := service.NewAssignmentService(db, assignmentRepo, policyRepo, audit, log)
	balances := service.NewBalanceService(db, snapshotRepo, ledgerRepo, policyRepo, assignmentRepo, audit, log)
	durations := service.NewDurationService(dir, holidayRepo)

	return &integrationEnv{
		suite:       integration,
		dir:         dir,
		ledger:      ledgerRepo,
		snapshots:   snapshotRepo,
		policies:    service.NewPolicyService(db, policyRepo, audit, log),
		assignments: assignments,
		balances:    balances,
		requests: service.NewRequestService(db, requestRepo, policyRepo, ledgerRepo, snapshotRepo,
			assignments, balances, durations, audit, publisher, log),
		carryover: service.NewCarryoverService(db, assignmentRepo, policyRepo, ledgerRepo, snapshotRepo,
			balances, audit, publisher, log),
	}
}

// seedPolicy creates a policy with one version, assigns it to the
// employee and grants an opening balance.
func (e *integrationEnv) seedPolicy(t *testing.T, ctx context.Context, companyID, employeeID, actorID uuid.UUID, settings []byte, effectiveFrom time.Time, openingMinutes int64) *service.PolicyWithVersion {
	t.Helper()

	policy, err := e.policies.Create(ctx, service.CreatePolicyParams{
		CompanyID:     companyID,
		Key:           fmt.Sprintf("vacation-%s", uuid.New().String()[:8]),
		Name:          "Vacation",
		Category:      domain.CategoryVacation,
		EffectiveFrom: effectiveFrom,
		Settings:      settings,
		ActorID:       actorID,
	})
	require.NoError(t, err)

	_, err = e.assignments.Create(ctx, service.CreateAssignmentParams{
		CompanyID:     companyID,
		EmployeeID:    employeeID,
		PolicyID:      policy.Policy.ID,
		EffectiveFrom: effectiveFrom,
		ActorID:       actorID,
	})
	require.NoError(t, err)

	if openingMinutes > 0 {
		_, _, err = e.balances.Adjust(ctx, service.AdjustParams{
			CompanyID:     companyID,
			EmployeeID:    employeeID,
			PolicyID:      policy.Policy.ID,
			AmountMinutes: openingMinutes,
			Reason:        "opening balance",
			ActorID:       actorID,
		})
		require.NoError(t, err)
	}

	return policy
}

func (e *integrationEnv) snapshot(t *testing.T, ctx context.Context, companyID, employeeID, policyID uuid.UUID) *repository.BalanceSnapshot {
	t.Helper()
	snapshot, err := e.snapshots.Get(ctx, e.suite.DB, companyID, employeeID, policyID)
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	return snapshot
}

func (e *integrationEnv) entryBySource(t *testing.T, ctx context.Context, sourceType domain.LedgerSourceType, sourceID string, entryType domain.LedgerEntryType) *repository.LedgerEntry {
	t.Helper()
	entry, err := e.ledger.FindBySource(ctx, e.suite.DB, sourceType, sourceID, entryType)
	require.NoError(t, err)
	return entry
}

func TestRequestWorkflowLedgerDiscipline(t *testing.T) {
	env := newIntegrationEnv(t)
	ctx := context.Background()

	companyID := uuid.New()
	employeeID := uuid.New()
	actorID := uuid.New()

	policy := env.seedPolicy(t, ctx, companyID, employeeID, actorID,
		testutil.TimeSettings(), time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), 4800)
	policyID := policy.Policy.ID

	submit := func(day int) (*repository.Request, error) {
		return env.requests.Submit(ctx, service.SubmitRequestParams{
			CompanyID:  companyID,
			EmployeeID: employeeID,
			PolicyID:   policyID,
			StartAt:    fmt.Sprintf("2026-09-%02dT09:00:00Z", day),
			EndAt:      fmt.Sprintf("2026-09-%02dT17:00:00Z", day),
			ActorID:    employeeID,
		})
	}

	// Monday 2026-09-07, one 8-hour workday.
	request, err := submit(7)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestSubmitted, request.Status)
	assert.Equal(t, int64(480), request.RequestedMinutes)

	hold := env.entryBySource(t, ctx, domain.SourceRequest, request.ID.String(), domain.EntryHold)
	require.NotNil(t, hold)
	assert.Equal(t, int64(-480), hold.AmountMinutes)
	require.NotNil(t, hold.PolicyVersionID)
	assert.Equal(t, policy.CurrentVersion.ID, *hold.PolicyVersionID)

	snapshot := env.snapshot(t, ctx, companyID, employeeID, policyID)
	assert.Equal(t, int64(480), snapshot.HeldMinutes)
	assert.Equal(t, int64(4320), snapshot.AvailableMinutes)

	// A second request over the same interval is rejected while the
	// first still holds it.
	_, err = submit(7)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConflict))

	// Approval converts the hold into usage.
	approved, err := env.requests.Approve(ctx, service.DecideRequestParams{
		CompanyID: companyID,
		RequestID: request.ID,
		ActorID:   actorID,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RequestApproved, approved.Status)

	release := env.entryBySource(t, ctx, domain.SourceRequest, request.ID.String(), domain.EntryHoldRelease)
	require.NotNil(t, release)
	assert.Equal(t, int64(480), release.AmountMinutes)
	usage := env.entryBySource(t, ctx, domain.SourceRequest, request.ID.String(), domain.EntryUsage)
	require.NotNil(t, usage)
	assert.Equal(t, int64(-480), usage.AmountMinutes)

	snapshot = env.snapshot(t, ctx, companyID, employeeID, policyID)
	assert.Equal(t, int64(0), snapshot.HeldMinutes)
	assert.Equal(t, int64(480), snapshot.UsedMinutes)
	assert.Equal(t, int64(4320), snapshot.AvailableMinutes)

	// Denial releases the hold without recording usage.
	denied, err := submit(8)
	require.NoError(t, err)
	_, err = env.requests.Deny(ctx, service.DecideRequestParams{
		CompanyID: companyID,
		RequestID: denied.ID,
		ActorID:   actorID,
	})
	require.NoError(t, err)

	require.NotNil(t, env.entryBySource(t, ctx, domain.SourceRequest, denied.ID.String(), domain.EntryHoldRelease))
	assert.Nil(t, env.entryBySource(t, ctx, domain.SourceRequest, denied.ID.String(), domain.EntryUsage))

	// Cancellation by the requesting employee does the same.
	cancelled, err := submit(9)
	require.NoError(t, err)
	_, err = env.requests.Cancel(ctx, service.DecideRequestParams{
		CompanyID: companyID,
		RequestID: cancelled.ID,
		ActorID:   employeeID,
	}, auth.Identity{CompanyID: companyID, UserID: employeeID, Role: auth.RoleEmployee})
	require.NoError(t, err)

	require.NotNil(t, env.entryBySource(t, ctx, domain.SourceRequest, cancelled.ID.String(), domain.EntryHoldRelease))

	snapshot = env.snapshot(t, ctx, companyID, employeeID, policyID)
	assert.Equal(t, int64(0), snapshot.HeldMinutes)
	assert.Equal(t, int64(480), snapshot.UsedMinutes)
}

func TestAssignmentOverlapRejected(t *testing.T) {
	env := newIntegrationEnv(t)
	ctx := context.Background()

	companyID := uuid.New()
	employeeID := uuid.New()
	actorID := uuid.New()

	policy := env.seedPolicy(t, ctx, companyID, employeeID, actorID,
		testutil.TimeSettings(), time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), 0)

	// The seeded assignment is open-ended, so any later start overlaps.
	_, err := env.assignments.Create(ctx, service.CreateAssignmentParams{
		CompanyID:     companyID,
		EmployeeID:    employeeID,
		PolicyID:      policy.Policy.ID,
		EffectiveFrom: time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		ActorID:       actorID,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConflict))

	// Another employee on the same policy is fine.
	other, err := env.assignments.Create(ctx, service.CreateAssignmentParams{
		CompanyID:     companyID,
		EmployeeID:    uuid.New(),
		PolicyID:      policy.Policy.ID,
		EffectiveFrom: time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		ActorID:       actorID,
	})
	require.NoError(t, err)
	assert.Equal(t, actorID, other.CreatedBy)
}

func TestCarryoverAndExpirationEngines(t *testing.T) {
	env := newIntegrationEnv(t)
	ctx := context.Background()

	companyID := uuid.New()
	employeeID := uuid.New()
	actorID := uuid.New()

	capMinutes := int64(960)
	expireDays := 90
	policy := env.seedPolicy(t, ctx, companyID, employeeID, actorID,
		testutil.TimeSettings(testutil.WithCarryover(&capMinutes, &expireDays)),
		time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC), 1500)
	policyID := policy.Policy.ID

	// Any date other than January 1 is a no-op.
	result, err := env.carryover.RunCarryover(ctx, time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC), &companyID)
	require.NoError(t, err)
	assert.Equal(t, 0, result.CarryoversProcessed)

	// January 1: 1500 available, cap 960, so 540 expire and 960 carry.
	newYear := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	result, err = env.carryover.RunCarryover(ctx, newYear, &companyID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.CarryoversProcessed)
	assert.Equal(t, 1, result.ExpirationsProcessed)
	assert.Equal(t, 0, result.Errors)

	snapshot := env.snapshot(t, ctx, companyID, employeeID, policyID)
	assert.Equal(t, int64(960), snapshot.AccruedMinutes)

	markerSource := fmt.Sprintf("carryover_marker:%s:%s:2025", policyID, employeeID)
	marker := env.entryBySource(t, ctx, domain.SourceSystem, markerSource, domain.EntryCarryover)
	require.NotNil(t, marker)
	assert.Equal(t, int64(0), marker.AmountMinutes)
	assert.JSONEq(t,
		`{"year":2025,"carried_minutes":960,"expired_minutes":540,"cap_minutes":960,"expires_after_days":90}`,
		string(marker.Metadata))

	// Re-running the same new year is idempotent.
	result, err = env.carryover.RunCarryover(ctx, newYear, &companyID)
	require.NoError(t, err)
	assert.Equal(t, 0, result.CarryoversProcessed)
	assert.Equal(t, 0, result.ExpirationsProcessed)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, int64(960), env.snapshot(t, ctx, companyID, employeeID, policyID).AccruedMinutes)

	// 90 days after January 1 the carried minutes expire, keyed by the
	// year they were carried from.
	expiryDate := newYear.AddDate(0, 0, expireDays)
	expResult, err := env.carryover.RunExpiration(ctx, expiryDate, &companyID)
	require.NoError(t, err)
	assert.Equal(t, 1, expResult.Processed)
	assert.Equal(t, 0, expResult.Errors)

	expirySource := fmt.Sprintf("carryover_expiry:%s:%s:2025", policyID, employeeID)
	expiry := env.entryBySource(t, ctx, domain.SourceSystem, expirySource, domain.EntryExpiration)
	require.NotNil(t, expiry)
	assert.Equal(t, int64(-960), expiry.AmountMinutes)

	snapshot = env.snapshot(t, ctx, companyID, employeeID, policyID)
	assert.Equal(t, int64(0), snapshot.AccruedMinutes)

	// Nothing left to expire on a re-run.
	expResult, err = env.carryover.RunExpiration(ctx, expiryDate, &companyID)
	require.NoError(t, err)
	assert.Equal(t, 0, expResult.Processed)
}
