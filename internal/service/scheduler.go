package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler drives the aggregation cycle on a fixed interval. One cycle in
// flight at a time; a slow cycle delays the next tick rather than stacking.
type Scheduler struct {
	aggregator *Aggregator
	interval   time.Duration
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

func NewScheduler(aggregator *Aggregator, interval time.Duration) *Scheduler {
	return &Scheduler{aggregator: aggregator, interval: interval}
}

// Start runs one refresh immediately, then ticks until the context is
// cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.aggregator.Refresh(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Price aggregation loop panic recovered", slog.Any("panic", r))
			}
		}()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				slog.Info("Price aggregation loop stopped")
				return
			case <-ticker.C:
				s.aggregator.Refresh(ctx)
			}
		}
	}()

	slog.Info("Price aggregation scheduler started", slog.Duration("interval", s.interval))
}

// Stop cancels the loop and waits for an in-flight cycle to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
		s.wg.Wait()
	}
}
