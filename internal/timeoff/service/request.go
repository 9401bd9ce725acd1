package service

import (
	"context"
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

// SubmitRequestParams describes a new time-off request. StartAt and
// EndAt are raw timestamps; zone-less values are interpreted in the
// employee's timezone.
type SubmitRequestParams struct {
	CompanyID      uuid.UUID
	EmployeeID     uuid.UUID
	PolicyID       uuid.UUID
	StartAt        string
	EndAt          string
	Note           *string
	IdempotencyKey *string
	ActorID        uuid.UUID
}

// DecideRequestParams describes an approve or deny decision.
type DecideRequestParams struct {
	CompanyID uuid.UUID
	RequestID uuid.UUID
	Note      *string
	ActorID   uuid.UUID
}

// RequestService runs the request workflow state machine. Submitting
// places a HOLD on the balance; approval converts the hold to USAGE;
// denial and cancellation release it.
type RequestService struct {
	db          *database.DB
	requests    *repository.RequestRepository
	policies    *repository.PolicyRepository
	ledger      *repository.LedgerRepository
	snapshots   *repository.SnapshotRepository
	assignments *AssignmentService
	balances    *BalanceService
	durations   *DurationService
	audit       *AuditRecorder
	events      events.Publisher
	logger      *logger.Logger
}

// NewRequestService creates a new request service.
func NewRequestService(
	db *database.DB,
	requests *repository.RequestRepository,
	policies *repository.PolicyRepository,
	ledger *repository.LedgerRepository,
	snapshots *repository.SnapshotRepository,
	assignments *AssignmentService,
	balances *BalanceService,
	durations *DurationService,
	audit *AuditRecorder,
	publisher events.Publisher,
	log *logger.Logger,
) *RequestService {
	return &RequestService{
		db:          db,
		requests:    requests,
		policies:    policies,
		ledger:      ledger,
		snapshots:   snapshots,
		assignments: assignments,
		balances:    balances,
		durations:   durations,
		audit:       audit,
		events:      publisher,
		logger:      log,
	}
}

// Submit validates, prices and submits a request, placing a HOLD on the
// employee's balance. A replayed idempotency key returns the original
// request unchanged.
func (s *RequestService) Submit(ctx context.Context, params SubmitRequestParams) (*repository.Request, error) {
	schedule, err := s.durations.Schedule(ctx, params.CompanyID, params.EmployeeID)
	if err != nil {
		return nil, err
	}
	startAt, endAt, err := s.durations.ResolveInterval(schedule, params.StartAt, params.EndAt)
	if err != nil {
		return nil, err
	}

	today := midnightUTC(time.Now().UTC())
	now := time.Now().UTC()

	var request *repository.Request
	replayed := false

	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.assignments.VerifyActive(ctx, tx, params.CompanyID, params.EmployeeID, params.PolicyID, today); err != nil {
			return err
		}

		version, err := s.policies.CurrentVersion(ctx, tx, params.PolicyID)
		if err != nil {
			return err
		}
		settings, err := version.DecodeSettings()
		if err != nil {
			return err
		}

		minutes, err := s.durations.WorkingMinutes(ctx, tx, params.CompanyID, schedule, startAt, endAt)
		if err != nil {
			return err
		}

		overlaps, err := s.requests.HasOverlap(ctx, tx, params.CompanyID, params.EmployeeID, params.PolicyID, startAt, endAt)
		if err != nil {
			return err
		}
		if overlaps {
			return errors.Conflict("Request overlaps an existing request")
		}

		snapshot, err := s.balances.LockSnapshot(ctx, tx, params.CompanyID, params.EmployeeID, params.PolicyID)
		if err != nil {
			return err
		}

		if rules, ok := domain.RulesOf(settings); ok {
			if err := rules.CheckAvailable(snapshot.AvailableMinutes - minutes); err != nil {
				return err
			}
		}

		request = &repository.Request{
			CompanyID:        params.CompanyID,
			EmployeeID:       params.EmployeeID,
			PolicyID:         params.PolicyID,
			StartAt:          startAt.UTC(),
			EndAt:            endAt.UTC(),
			RequestedMinutes: minutes,
			Status:           domain.RequestSubmitted,
			Note:             params.Note,
			IdempotencyKey:   params.IdempotencyKey,
			SubmittedAt:      &now,
		}
		if err := s.requests.Insert(ctx, tx, request); err != nil {
			if err == repository.ErrDuplicateRequest && params.IdempotencyKey != nil {
				existing, findErr := s.requests.FindByIdempotencyKey(ctx, tx,
					params.CompanyID, params.EmployeeID, *params.IdempotencyKey)
				if findErr != nil {
					return findErr
				}
				request = existing
				replayed = true
				return nil
			}
			return err
		}

		hold := &repository.LedgerEntry{
			CompanyID:       params.CompanyID,
			EmployeeID:      params.EmployeeID,
			PolicyID:        params.PolicyID,
			PolicyVersionID: &version.ID,
			EntryType:       domain.EntryHold,
			AmountMinutes:   -minutes,
			EffectiveAt:     now,
			SourceType:      domain.SourceRequest,
			SourceID:        request.ID.String(),
		}
		if err := s.ledger.Insert(ctx, tx, hold); err != nil {
			return err
		}

		snapshot.HeldMinutes += minutes
		if err := s.snapshots.Update(ctx, tx, snapshot); err != nil {
			return err
		}

		return s.audit.Record(ctx, tx, params.CompanyID, domain.AuditRequest, request.ID,
			domain.ActionSubmit, params.ActorID, nil, request.AuditPayload())
	})
	if err != nil {
		return nil, err
	}

	if replayed {
		return request, nil
	}

	s.events.PublishRequestEvent(ctx, messaging.EventRequestSubmitted, request, params.ActorID)
	s.logger.Info().
		Str("request_id", request.ID.String()).
		Str("employee_id", params.EmployeeID.String()).
		Int64("requested_minutes", request.RequestedMinutes).
		Msg("request submitted")

	return request, nil
}

// Approve converts a submitted request's hold into usage.
func (s *RequestService) Approve(ctx context.Context, params DecideRequestParams) (*repository.Request, error) {
	var request *repository.Request

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		request, err = s.lockForDecision(ctx, tx, params.CompanyID, params.RequestID, domain.RequestApproved)
		if err != nil {
			return err
		}
		before := request.AuditPayload()

		snapshot, err := s.balances.LockSnapshot(ctx, tx, request.CompanyID, request.EmployeeID, request.PolicyID)
		if err != nil {
			return err
		}

		versionID, err := s.effectiveVersionID(ctx, tx, request.PolicyID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		release := &repository.LedgerEntry{
			CompanyID:       request.CompanyID,
			EmployeeID:      request.EmployeeID,
			PolicyID:        request.PolicyID,
			PolicyVersionID: versionID,
			EntryType:       domain.EntryHoldRelease,
			AmountMinutes:   request.RequestedMinutes,
			EffectiveAt:     now,
			SourceType:      domain.SourceRequest,
			SourceID:        request.ID.String(),
		}
		if err := s.ledger.Insert(ctx, tx, release); err != nil {
			return err
		}
		usage := &repository.LedgerEntry{
			CompanyID:       request.CompanyID,
			EmployeeID:      request.EmployeeID,
			PolicyID:        request.PolicyID,
			PolicyVersionID: versionID,
			EntryType:       domain.EntryUsage,
			AmountMinutes:   -request.RequestedMinutes,
			EffectiveAt:     now,
			SourceType:      domain.SourceRequest,
			SourceID:        request.ID.String(),
		}
		if err := s.ledger.Insert(ctx, tx, usage); err != nil {
			return err
		}

		snapshot.HeldMinutes -= request.RequestedMinutes
		snapshot.UsedMinutes += request.RequestedMinutes
		if err := s.snapshots.Update(ctx, tx, snapshot); err != nil {
			return err
		}

		if err := s.decide(ctx, tx, request, domain.RequestApproved, params); err != nil {
			return err
		}

		return s.audit.Record(ctx, tx, request.CompanyID, domain.AuditRequest, request.ID,
			domain.ActionApprove, params.ActorID, before, request.AuditPayload())
	})
	if err != nil {
		return nil, err
	}

	s.events.PublishRequestEvent(ctx, messaging.EventRequestApproved, request, params.ActorID)
	return request, nil
}

// Deny rejects a submitted request and releases its hold.
func (s *RequestService) Deny(ctx context.Context, params DecideRequestParams) (*repository.Request, error) {
	request, err := s.release(ctx, params, domain.RequestDenied, domain.ActionDeny)
	if err != nil {
		return nil, err
	}

	s.events.PublishRequestEvent(ctx, messaging.EventRequestDenied, request, params.ActorID)
	return request, nil
}

// Cancel withdraws a submitted request and releases its hold. Only the
// requesting employee or an admin may cancel.
func (s *RequestService) Cancel(ctx context.Context, params DecideRequestParams, identity auth.Identity) (*repository.Request, error) {
	request, err := s.requests.Get(ctx, s.db, params.CompanyID, params.RequestID)
	if err != nil {
		return nil, err
	}
	if identity.UserID != request.EmployeeID && !identity.IsAdmin() {
		return nil, errors.Forbidden("Only the requesting employee or an admin can cancel a request")
	}

	request, err = s.release(ctx, params, domain.RequestCancelled, domain.ActionCancel)
	if err != nil {
		return nil, err
	}

	s.events.PublishRequestEvent(ctx, messaging.EventRequestCancelled, request, params.ActorID)
	return request, nil
}

// Get returns one request.
func (s *RequestService) Get(ctx context.Context, companyID, requestID uuid.UUID) (*repository.Request, error) {
	return s.requests.Get(ctx, s.db, companyID, requestID)
}

// List lists requests with filters and pagination.
func (s *RequestService) List(ctx context.Context, params repository.RequestListParams) ([]*repository.Request, int64, error) {
	return s.requests.List(ctx, s.db, params)
}

// release moves a submitted request to a terminal non-approved state
// and posts the HOLD_RELEASE. Shared by Deny and Cancel.
func (s *RequestService) release(ctx context.Context, params DecideRequestParams, target domain.RequestStatus, action domain.AuditAction) (*repository.Request, error) {
	var request *repository.Request

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		request, err = s.lockForDecision(ctx, tx, params.CompanyID, params.RequestID, target)
		if err != nil {
			return err
		}
		before := request.AuditPayload()

		snapshot, err := s.balances.LockSnapshot(ctx, tx, request.CompanyID, request.EmployeeID, request.PolicyID)
		if err != nil {
			return err
		}

		versionID, err := s.effectiveVersionID(ctx, tx, request.PolicyID)
		if err != nil {
			return err
		}

		release := &repository.LedgerEntry{
			CompanyID:       request.CompanyID,
			EmployeeID:      request.EmployeeID,
			PolicyID:        request.PolicyID,
			PolicyVersionID: versionID,
			EntryType:       domain.EntryHoldRelease,
			AmountMinutes:   request.RequestedMinutes,
			EffectiveAt:     time.Now().UTC(),
			SourceType:      domain.SourceRequest,
			SourceID:        request.ID.String(),
		}
		if err := s.ledger.Insert(ctx, tx, release); err != nil {
			return err
		}

		snapshot.HeldMinutes -= request.RequestedMinutes
		if err := s.snapshots.Update(ctx, tx, snapshot); err != nil {
			return err
		}

		if err := s.decide(ctx, tx, request, target, params); err != nil {
			return err
		}

		return s.audit.Record(ctx, tx, request.CompanyID, domain.AuditRequest, request.ID,
			action, params.ActorID, before, request.AuditPayload())
	})
	if err != nil {
		return nil, err
	}

	return request, nil
}

// effectiveVersionID resolves the policy version in force today, so
// decision postings record which rules priced them. Nil when the policy
// has no effective version.
func (s *RequestService) effectiveVersionID(ctx context.Context, tx *sqlx.Tx, policyID uuid.UUID) (*uuid.UUID, error) {
	version, err := s.policies.VersionEffectiveOn(ctx, tx, policyID, midnightUTC(time.Now().UTC()))
	if err != nil {
		if errors.Is(err, errors.ErrBadRequest) {
			return nil, nil
		}
		return nil, err
	}
	id := version.ID
	return &id, nil
}

// lockForDecision locks the request row and checks the state machine.
func (s *RequestService) lockForDecision(ctx context.Context, tx *sqlx.Tx, companyID, requestID uuid.UUID, target domain.RequestStatus) (*repository.Request, error) {
	request, err := s.requests.GetForUpdate(ctx, tx, companyID, requestID)
	if err != nil {
		return nil, err
	}
	if !request.Status.CanTransition(target) {
		return nil, errors.BadRequest(fmt.Sprintf("Request in status %s cannot move to %s", request.Status, target))
	}
	return request, nil
}

func (s *RequestService) decide(ctx context.Context, tx *sqlx.Tx, request *repository.Request, target domain.RequestStatus, params DecideRequestParams) error {
	now := time.Now().UTC()
	request.Status = target
	request.DecidedAt = &now
	request.DecidedBy = &params.ActorID
	request.DecisionNote = params.Note
	return s.requests.UpdateDecision(ctx, tx, request)
}
