package service

import (
	"context"
	"sync"
	"time"

	"github.com/leaveledger/leaveledger-backend/pkg/logger"
)

// Scheduler drives the daily engines: time-based accrual, year-end
// carryover and expiration, in that order. Each engine run is its own
// transaction; a failed engine is logged and the loop keeps going.
type Scheduler struct {
	accruals  *AccrualService
	carryover *CarryoverService
	interval  time.Duration
	logger    *logger.Logger

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewScheduler creates a new scheduler.
func NewScheduler(accruals *AccrualService, carryover *CarryoverService, interval time.Duration, log *logger.Logger) *Scheduler {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Scheduler{
		accruals:  accruals,
		carryover: carryover,
		interval:  interval,
		logger:    log,
		stop:      make(chan struct{}),
	}
}

// Start launches the scheduler loop. runOnStart triggers an immediate
// run before the first tick.
func (s *Scheduler) Start(ctx context.Context, runOnStart bool) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if runOnStart {
			s.RunOnce(ctx, time.Now().UTC())
		}

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.RunOnce(ctx, time.Now().UTC())
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop signals the loop to exit and waits for the in-flight run.
func (s *Scheduler) Stop() {
	close(s.stop)
	s.wg.Wait()
}

// RunOnce runs all engines for the target date across all companies.
func (s *Scheduler) RunOnce(ctx context.Context, targetDate time.Time) {
	targetDate = midnightUTC(targetDate)
	s.logger.Info().Str("target_date", targetDate.Format("2006-01-02")).Msg("engine run starting")

	if _, err := s.accruals.RunTimeBased(ctx, targetDate, nil); err != nil {
		s.logger.Error().Err(err).Msg("accrual engine failed")
	}
	if _, err := s.carryover.RunCarryover(ctx, targetDate, nil); err != nil {
		s.logger.Error().Err(err).Msg("carryover engine failed")
	}
	if _, err := s.carryover.RunExpiration(ctx, targetDate, nil); err != nil {
		s.logger.Error().Err(err).Msg("expiration engine failed")
	}
}
