package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/devricklin/feedback-monitor/internal/biz/domain"
	"github.com/devricklin/feedback-monitor/internal/biz/usecase"
)

// DigestScheduler fires the daily digest at a fixed local hour
type DigestScheduler struct {
	digestUC *usecase.DigestUsecase
	hour     int
	loc      *time.Location
	log      zerolog.Logger

	// Now is replaceable in tests
	Now func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDigestScheduler creates a new digest scheduler
func NewDigestScheduler(digestUC *usecase.DigestUsecase, hour int, loc *time.Location, logger zerolog.Logger) *DigestScheduler {
	return &DigestScheduler{
		digestUC: digestUC,
		hour:     hour,
		loc:      loc,
		log:      logger.With().Str("component", "scheduler").Logger(),
		Now:      time.Now,
	}
}

// NextRun returns the next occurrence of hour:00 in loc strictly after now
func NextRun(now time.Time, hour int, loc *time.Location) time.Time {
	local := now.In(loc)
	target := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, loc)
	if !target.After(local) {
		target = time.Date(local.Year(), local.Month(), local.Day()+1, hour, 0, 0, 0, loc)
	}
	return target
}

// Start starts the scheduler
func (s *DigestScheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.loop()

	s.log.Info().Int("hour", s.hour).Str("timezone", s.loc.String()).Msg("started")
}

// Stop stops the scheduler
func (s *DigestScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.log.Info().Msg("stopped")
}

func (s *DigestScheduler) loop() {
	defer s.wg.Done()

	for {
		next := NextRun(s.Now(), s.hour, s.loc)
		wait := next.Sub(s.Now())
		s.log.Info().Time("next_run", next).Dur("wait", wait).Msg("next digest scheduled")

		timer := time.NewTimer(wait)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.RunScheduled(s.ctx)
		}
	}
}

// RunScheduled runs one scheduled digest and delivers it to the current destination.
// It returns nil without running when no destination is configured.
func (s *DigestScheduler) RunScheduled(ctx context.Context) *domain.DigestRun {
	dest := s.digestUC.Destination(ctx)
	if dest == "" {
		s.log.Warn().Msg("no summary channel configured, skipping scheduled digest")
		return nil
	}

	_, run, err := s.digestUC.Run(ctx, domain.TriggerScheduled, dest)
	if err != nil {
		s.log.Error().Err(err).Str("channel", dest).Msg("scheduled digest failed")
	}
	return run
}
