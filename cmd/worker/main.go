package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/leaveledger/leaveledger-backend/internal/directory"
	"github.com/leaveledger/leaveledger-backend/internal/timeoff/events"
	"github.com/leaveledger/leaveledger-backend/internal/timeoff/repository"
	"github.com/leaveledger/leaveledger-backend/internal/timeoff/service"
	"github.com/leaveledger/leaveledger-backend/pkg/config"
	"github.com/leaveledger/leaveledger-backend/pkg/database"
	"github.com/leaveledger/leaveledger-backend/pkg/logger"
	"github.com/leaveledger/leaveledger-backend/pkg/messaging"
)

func main() {
	cfg, err := config.LoadWithValidation("worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("timeoff-worker", cfg.Server.Environment)
	log.Info().Dur("interval", cfg.Worker.Interval).Msg("starting time-off worker")

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := repository.EnsureSchema(context.Background(), db); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure database schema")
	}

	var publisher events.Publisher = events.NewNoopPublisher()
	var rmq *messaging.RabbitMQ
	if cfg.RabbitMQ.Enabled {
		rmq, err = messaging.New(&cfg.RabbitMQ, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer rmq.Close()

		publisher, err = events.NewTimeOffEventPublisher(rmq, cfg.RabbitMQ.Exchange, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}
	}

	policyRepo := repository.NewPolicyRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	snapshotRepo := repository.NewSnapshotRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	employeeDir := directory.NewInMemoryDirectory()

	auditRecorder := service.NewAuditRecorder(auditRepo)
	balanceSvc := service.NewBalanceService(db, snapshotRepo, ledgerRepo, policyRepo, assignmentRepo, auditRecorder, log)
	accrualSvc := service.NewAccrualService(db, assignmentRepo, policyRepo, ledgerRepo, snapshotRepo,
		balanceSvc, employeeDir, auditRecorder, publisher, log)
	carryoverSvc := service.NewCarryoverService(db, assignmentRepo, policyRepo, ledgerRepo, snapshotRepo,
		balanceSvc, auditRecorder, publisher, log)

	scheduler := service.NewScheduler(accrualSvc, carryoverSvc, cfg.Worker.Interval, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler.Start(ctx, cfg.Worker.RunOnStart)

	// When the broker is enabled, completed payroll runs also arrive as
	// events and drive hours-worked accrual the same way the webhook does.
	if cfg.RabbitMQ.Enabled {
		if err := startPayrollConsumer(ctx, rmq, accrualSvc, log); err != nil {
			log.Fatal().Err(err).Msg("failed to start payroll consumer")
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")
	cancel()
	scheduler.Stop()
	log.Info().Msg("worker stopped")
}

// startPayrollConsumer binds a queue to the payroll system's exchange and
// feeds completed runs into the hours-worked accrual engine.
func startPayrollConsumer(ctx context.Context, rmq *messaging.RabbitMQ, accruals *service.AccrualService, log *logger.Logger) error {
	consumer, err := messaging.NewConsumer(rmq, messaging.QueuePayrollRuns, log)
	if err != nil {
		return err
	}

	if err := consumer.Subscribe(messaging.ExchangePayrollEvents, messaging.EventPayrollRunCompleted); err != nil {
		return err
	}

	consumer.RegisterHandler(messaging.EventPayrollRunCompleted, func(ctx context.Context, event *messaging.Event) error {
		var payload service.PayrollProcessedPayload
		if err := event.UnmarshalData(&payload); err != nil {
			return fmt.Errorf("failed to decode payroll run event: %w", err)
		}
		_, err := accruals.ProcessPayroll(ctx, payload)
		return err
	})

	return consumer.Start(ctx)
}
