package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/leaveledger/leaveledger-backend/internal/timeoff/repository"
	"github.com/leaveledger/leaveledger-backend/pkg/logger"
	"github.com/leaveledger/leaveledger-backend/pkg/messaging"
)

// Publisher publishes time-off domain events. Publishing is
// fire-and-forget: failures are logged and never fail the caller's
// transaction.
type Publisher interface {
	PublishRequestEvent(ctx context.Context, eventType string, request *repository.Request, actorID uuid.UUID)
	PublishEngineRun(ctx context.Context, eventType string, engine string, targetDate time.Time, companyID *uuid.UUID, processed, skipped, errs int)
}

// TimeOffEventPublisher publishes events to RabbitMQ.
type TimeOffEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewTimeOffEventPublisher creates a new publisher on the time-off exchange.
func NewTimeOffEventPublisher(rmq *messaging.RabbitMQ, exchange string, log *logger.Logger) (*TimeOffEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, exchange, "timeoff-service", log)
	if err != nil {
		return nil, err
	}

	return &TimeOffEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishRequestEvent publishes a request workflow transition.
func (p *TimeOffEventPublisher) PublishRequestEvent(ctx context.Context, eventType string, request *repository.Request, actorID uuid.UUID) {
	data := messaging.RequestEvent{
		RequestID:        request.ID.String(),
		CompanyID:        request.CompanyID.String(),
		EmployeeID:       request.EmployeeID.String(),
		PolicyID:         request.PolicyID.String(),
		Status:           string(request.Status),
		RequestedMinutes: request.RequestedMinutes,
		ActorID:          actorID.String(),
	}

	if err := p.publisher.Publish(ctx, eventType, data); err != nil {
		p.logger.Error().Err(err).
			Str("event_type", eventType).
			Str("request_id", request.ID.String()).
			Msg("failed to publish request event")
	}
}

// PublishEngineRun publishes a batch engine completion summary.
func (p *TimeOffEventPublisher) PublishEngineRun(ctx context.Context, eventType string, engine string, targetDate time.Time, companyID *uuid.UUID, processed, skipped, errs int) {
	data := messaging.EngineRunEvent{
		Engine:     engine,
		TargetDate: targetDate.Format("2006-01-02"),
		Processed:  processed,
		Skipped:    skipped,
		Errors:     errs,
	}
	if companyID != nil {
		data.CompanyID = companyID.String()
	}

	if err := p.publisher.Publish(ctx, eventType, data); err != nil {
		p.logger.Error().Err(err).
			Str("event_type", eventType).
			Str("engine", engine).
			Msg("failed to publish engine run event")
	}
}

// NoopPublisher drops all events. Used when messaging is disabled.
type NoopPublisher struct{}

// NewNoopPublisher creates a publisher that drops everything.
func NewNoopPublisher() *NoopPublisher {
	return &NoopPublisher{}
}

func (*NoopPublisher) PublishRequestEvent(context.Context, string, *repository.Request, uuid.UUID) {
}

func (*NoopPublisher) PublishEngineRun(context.Context, string, string, time.Time, *uuid.UUID, int, int, int) {
}
