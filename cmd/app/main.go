package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crypto_trade/internal/app"
	"crypto_trade/internal/domain"
	"crypto_trade/internal/infra"
	"crypto_trade/internal/infra/okx"
	"crypto_trade/internal/server"
	"crypto_trade/internal/service"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}

	// 2. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := bootstrap.Config
	store := bootstrap.Storage

	// 3. Price Providers (Modular Gateways)
	var providers []domain.PriceProvider

	if cfg.Providers.Binance.Enabled {
		p := infra.NewBinanceProvider(cfg.Providers.Binance.URL, cfg.Providers.Binance.RatePerSec, cfg.Providers.Binance.RateBurst)
		providers = append(providers, p)
		slog.InfoContext(ctx, "✅ Binance provider enabled")
	}
	if cfg.Providers.Huobi.Enabled {
		p := infra.NewHuobiProvider(cfg.Providers.Huobi.URL, cfg.Providers.Huobi.RatePerSec, cfg.Providers.Huobi.RateBurst)
		providers = append(providers, p)
		slog.InfoContext(ctx, "✅ Huobi provider enabled")
	}
	if cfg.Providers.OKX.Enabled {
		worker := okx.NewProvider(cfg.Providers.OKX.WSURL)
		if err := worker.Connect(ctx); err != nil {
			slog.Error("Failed to connect OKX", slog.Any("error", err))
		}
		defer worker.Disconnect()
		providers = append(providers, worker)
		slog.InfoContext(ctx, "✅ OKX worker started")
	}

	// 4. Core Services
	aggregator := service.NewAggregator(store, cfg.FetchTimeout(), providers...)
	ledger := service.NewLedger(store)
	prices := service.NewPriceService(store)
	idempotency := service.NewIdempotencyResolver(store)
	trades := service.NewTradeService(store, ledger, prices, idempotency)
	users := service.NewUserService(store)
	bootstrap.SeedDemoUser(users)

	// 5. Background Loops
	scheduler := service.NewScheduler(aggregator, cfg.AggregationInterval())
	scheduler.Start(ctx)
	defer scheduler.Stop()

	maintenance := service.NewMaintenanceService(store, cfg.MaintenanceInterval(), cfg.HistoryRetention())
	maintenance.Start(ctx)
	defer maintenance.Stop()

	// 6. HTTP Server
	gin.SetMode(gin.ReleaseMode)
	router := server.NewRouter(&server.Handlers{
		Trades:  server.NewTradeHandler(trades),
		Prices:  server.NewPriceHandler(prices),
		Wallets: server.NewWalletHandler(ledger),
		Users:   server.NewUserHandler(users),
		Health:  server.NewHealthHandler(aggregator.Providers()),
	})

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		slog.Info("✅ HTTP server started", slog.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("🛑 Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown failed", slog.Any("error", err))
	}

	slog.Info("👋 Crypto Trade stopped")
}
