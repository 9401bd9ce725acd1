package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/leaveledger/leaveledger-backend/internal/directory"
	"github.com/leaveledger/leaveledger-backend/internal/timeoff/events"
	"github.com/leaveledger/leaveledger-backend/internal/timeoff/handler"
	"github.com/leaveledger/leaveledger-backend/internal/timeoff/repository"
	"github.com/leaveledger/leaveledger-backend/internal/timeoff/service"
	"github.com/leaveledger/leaveledger-backend/pkg/config"
	"github.com/leaveledger/leaveledger-backend/pkg/database"
	"github.com/leaveledger/leaveledger-backend/pkg/logger"
	"github.com/leaveledger/leaveledger-backend/pkg/messaging"
)

func main() {
	cfg, err := config.LoadWithValidation("timeoff-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("timeoff-service", cfg.Server.Environment)
	log.Info().Msg("starting time-off service")

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := repository.EnsureSchema(context.Background(), db); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure database schema")
	}

	// Event publishing is optional: without a broker the service runs
	// with a no-op publisher.
	var publisher events.Publisher = events.NewNoopPublisher()
	if cfg.RabbitMQ.Enabled {
		rmq, err := messaging.New(&cfg.RabbitMQ, log)
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
	requestRepo := repository.NewRequestRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	snapshotRepo := repository.NewSnapshotRepository(db)
	holidayRepo := repository.NewHolidayRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	employeeDir := directory.NewInMemoryDirectory()

	auditRecorder := service.NewAuditRecorder(auditRepo)
	balanceSvc := service.NewBalanceService(db, snapshotRepo, ledgerRepo, policyRepo, assignmentRepo, auditRecorder, log)
	durationSvc := service.NewDurationService(employeeDir, holidayRepo)
	policySvc := service.NewPolicyService(db, policyRepo, auditRecorder, log)
	assignmentSvc := service.NewAssignmentService(db, assignmentRepo, policyRepo, auditRecorder, log)
	requestSvc := service.NewRequestService(db, requestRepo, policyRepo, ledgerRepo, snapshotRepo,
		assignmentSvc, balanceSvc, durationSvc, auditRecorder, publisher, log)
	accrualSvc := service.NewAccrualService(db, assignmentRepo, policyRepo, ledgerRepo, snapshotRepo,
		balanceSvc, employeeDir, auditRecorder, publisher, log)
	carryoverSvc := service.NewCarryoverService(db, assignmentRepo, policyRepo, ledgerRepo, snapshotRepo,
		balanceSvc, auditRecorder, publisher, log)
	holidaySvc := service.NewHolidayService(db, holidayRepo, auditRecorder, log)
	reportSvc := service.NewReportService(db, snapshotRepo, ledgerRepo, policyRepo, auditRepo)

	router := handler.NewRouter(handler.Handlers{
		Policies:    handler.NewPolicyHandler(policySvc, log),
		Assignments: handler.NewAssignmentHandler(assignmentSvc, log),
		Requests:    handler.NewRequestHandler(requestSvc, log),
		Balances:    handler.NewBalanceHandler(balanceSvc, log),
		Holidays:    handler.NewHolidayHandler(holidaySvc, log),
		Employees:   handler.NewEmployeeHandler(employeeDir, log),
		Engines:     handler.NewEngineHandler(accrualSvc, carryoverSvc, log),
		Reports:     handler.NewReportHandler(reportSvc, log),
	}, db, log)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
