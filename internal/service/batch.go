package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/devricklin/feedback-monitor/internal/biz/usecase"
)

// BatchProcessor drains the capture queue on a fixed interval
type BatchProcessor struct {
	batchUC  *usecase.BatchUsecase
	interval time.Duration
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(batchUC *usecase.BatchUsecase, interval time.Duration, logger zerolog.Logger) *BatchProcessor {
	return &BatchProcessor{
		batchUC:  batchUC,
		interval: interval,
		log:      logger.With().Str("component", "batch").Logger(),
	}
}

// Start starts the drain loop
func (p *BatchProcessor) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.loop()

	p.log.Info().Dur("interval", p.interval).Msg("started")
}

// Stop stops the drain loop and waits for an in-flight drain to finish
func (p *BatchProcessor) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.log.Info().Msg("stopped")
}

func (p *BatchProcessor) loop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.RunOnce(p.ctx)
		}
	}
}

// RunOnce performs a single drain and logs its outcome
func (p *BatchProcessor) RunOnce(ctx context.Context) usecase.BatchResult {
	result, err := p.batchUC.ProcessOnce(ctx)
	if err != nil {
		p.log.Error().Err(err).Str("outcome", result.Outcome).Msg("batch failed")
		return result
	}
	if result.Outcome == usecase.BatchIdle {
		p.log.Debug().Msg("queue empty")
		return result
	}

	p.log.Info().
		Str("outcome", result.Outcome).
		Int("drained", result.Drained).
		Int("stored", result.Stored).
		Int("dropped", result.Dropped).
		Int("requeued", result.Requeued).
		Dur("backoff", result.Backoff).
		Msg("batch processed")
	return result
}
