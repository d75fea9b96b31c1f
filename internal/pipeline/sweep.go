package pipeline

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/bluebrook/enroll-scheduler/internal/observability"
	"github.com/bluebrook/enroll-scheduler/internal/tracking"
)

// Sweeper periodically retries failed rows and refreshes stale delivery
// statuses across a fixed list of batches, the way the domain-manager
// service's DNSMonitor drives a cron.Cron against a repeated check
// rather than a one-shot CLI invocation.
type Sweeper struct {
	pipeline *Pipeline
	store    tracking.Store
	cron     *cron.Cron
	logger   zerolog.Logger
}

// NewSweeper builds a Sweeper bound to p.
func NewSweeper(p *Pipeline, store tracking.Store, logger zerolog.Logger) *Sweeper {
	return &Sweeper{pipeline: p, store: store, cron: cron.New(), logger: logger}
}

// Start schedules the retry and delivery-status sweeps at the given
// cron expressions (standard five-field syntax) and begins running
// them in the background. batchIDs is the fixed set of batches to
// sweep; a longer-lived daemon would instead list in-flight batches
// from the store on each tick.
func (s *Sweeper) Start(retrySchedule, statusSchedule string, batchIDs []string, chunkSize int) error {
	if _, err := s.cron.AddFunc(retrySchedule, func() {
		for _, batchID := range batchIDs {
			n, err := s.pipeline.RetryFailed(context.Background(), batchID, chunkSize)
			if err != nil {
				s.logger.Warn().Err(err).Str("batch_id", batchID).Msg("sweep: retry failed")
				continue
			}
			if n > 0 {
				s.logger.Info().Str("batch_id", batchID).Int("count", n).Msg("sweep: retried rows")
			}
		}
	}); err != nil {
		return err
	}

	if _, err := s.cron.AddFunc(statusSchedule, func() {
		for _, batchID := range batchIDs {
			n, err := s.pipeline.UpdateDeliveryStatus(context.Background(), batchID)
			if err != nil {
				s.logger.Warn().Err(err).Str("batch_id", batchID).Msg("sweep: status update failed")
				continue
			}
			if n > 0 {
				s.logger.Info().Str("batch_id", batchID).Int("count", n).Msg("sweep: updated delivery status")
			}
			if agg, err := s.store.GetBatch(context.Background(), batchID); err == nil {
				observability.BatchPendingGauge.WithLabelValues(batchID).Set(float64(agg.Pending))
			}
		}
	}); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop halts the cron scheduler, waiting for any in-flight job to
// finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}
