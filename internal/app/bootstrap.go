package app

import (
	"log/slog"

	"crypto_trade/internal/infra"
	"crypto_trade/internal/infra/storage"
	"crypto_trade/internal/service"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config  *infra.Config
	Storage *storage.Storage
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization (config, logging, DB)
func (b *Bootstrap) Initialize() error {
	slog.Info("🚀 Bootstrapping Crypto Trade...")

	// 1. Load Config
	cfg, err := infra.LoadConfig("configs/config.yaml")
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Initialize Storage (DB)
	store, err := storage.NewStorage(cfg.Database.Path)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("✅ Database initialized", slog.String("path", cfg.Database.Path))

	return nil
}

// SeedDemoUser creates the demo account with funded wallets on first start.
// Subsequent starts find it already registered and do nothing.
func (b *Bootstrap) SeedDemoUser(users *service.UserService) {
	existing, err := b.Storage.GetUserByUsername(demoUsername)
	if err != nil {
		slog.Error("Demo user lookup failed", slog.Any("error", err))
		return
	}
	if existing != nil {
		return
	}

	user, err := users.Register(demoUsername, "demo@example.com")
	if err != nil {
		slog.Error("Demo user seeding failed", slog.Any("error", err))
		return
	}
	slog.Info("✅ Demo user seeded", slog.Uint64("user_id", uint64(user.ID)))
}

const demoUsername = "demo"
