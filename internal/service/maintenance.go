package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"crypto_trade/internal/infra/storage"
)

// MaintenanceService periodically removes data that has aged out: expired
// idempotency records and price history older than the retention window.
// Trades and wallets are never touched.
type MaintenanceService struct {
	store     *storage.Storage
	interval  time.Duration
	retention time.Duration
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewMaintenanceService(store *storage.Storage, interval, retention time.Duration) *MaintenanceService {
	return &MaintenanceService{store: store, interval: interval, retention: retention}
}

// Start runs one sweep immediately, then repeats on the interval until the
// context is cancelled or Stop is called.
func (m *MaintenanceService) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)

	m.Sweep()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Maintenance loop panic recovered", slog.Any("panic", r))
			}
		}()

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				slog.Info("Maintenance loop stopped")
				return
			case <-ticker.C:
				m.Sweep()
			}
		}
	}()

	slog.Info("Maintenance scheduler started",
		slog.Duration("interval", m.interval),
		slog.Duration("retention", m.retention),
	)
}

// Sweep performs one purge pass. Each purge is independent; a failure in one
// is logged and does not block the other.
func (m *MaintenanceService) Sweep() {
	now := time.Now()

	historyDeleted, err := m.store.PurgePriceHistoryBefore(now.Add(-m.retention))
	if err != nil {
		slog.Error("Price history purge failed", slog.Any("error", err))
	}

	idemDeleted, err := m.store.PurgeExpiredIdempotency(now)
	if err != nil {
		slog.Error("Idempotency purge failed", slog.Any("error", err))
	}

	slog.Info("Maintenance sweep completed",
		slog.Int64("price_history_deleted", historyDeleted),
		slog.Int64("idempotency_deleted", idemDeleted),
	)
}

func (m *MaintenanceService) Stop() {
	if m.cancel != nil {
		m.cancel()
		m.wg.Wait()
	}
}
