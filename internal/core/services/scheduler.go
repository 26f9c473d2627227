package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/poyrazK/batchdns/internal/core/domain"
	"github.com/poyrazK/batchdns/internal/core/ports"
)

// Scheduler releases due scheduled batches for execution. The
// Scheduled->Pending compare-and-swap lets multiple nodes poll the same
// store without double-processing.
type Scheduler struct {
	store    ports.BatchStore
	batches  ports.BatchService
	interval time.Duration
	logger   *slog.Logger
}

func NewScheduler(store ports.BatchStore, batches ports.BatchService, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{store: store, batches: batches, interval: interval, logger: logger}
}

// Run polls until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick releases every batch whose scheduled time has passed.
func (s *Scheduler) Tick(ctx context.Context) {
	ids, err := s.store.ListDueScheduled(ctx, time.Now())
	if err != nil {
		s.logger.Error("scheduled batch poll failed", "error", err)
		return
	}
	for _, id := range ids {
		if err := s.store.TransitionStatus(ctx, id, domain.BatchScheduled, domain.BatchPending); err != nil {
			// Another node claimed it first.
			continue
		}
		s.logger.Info("releasing scheduled batch", "batch_id", id)
		if err := s.batches.Process(ctx, id); err != nil {
			s.logger.Error("scheduled batch processing failed", "batch_id", id, "error", err)
		}
	}
}
