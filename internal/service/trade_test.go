package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"crypto_trade/internal/domain"

	"github.com/shopspring/decimal"
)

// newTradeRig assembles the full execution stack over one store and seeds
// the market with a BTCUSDT book of bid 49990 / ask 50000.
func newTradeRig(t *testing.T) (*TradeService, *Aggregator, uint) {
	t.Helper()
	store := newTestStore(t)

	a := NewAggregator(store, time.Second,
		&fakeProvider{source: domain.SourceBinance, quotes: map[string]domain.Quote{
			"BTCUSDT": quote(domain.SourceBinance, "49990", "50000"),
		}},
	)
	a.Refresh(context.Background())

	userID := seedUser(t, store, map[domain.Currency]string{
		domain.USDT: "1000",
		domain.BTC:  "0.5",
		domain.ETH:  "0",
	})

	ledger := NewLedger(store)
	prices := NewPriceService(store)
	idempotency := NewIdempotencyResolver(store)
	return NewTradeService(store, ledger, prices, idempotency), a, userID
}

func TestExecuteBuy(t *testing.T) {
	trades, a, userID := newTradeRig(t)

	trade, err := trades.Execute(userID, TradeRequest{
		Pair:           "BTCUSDT",
		Side:           "BUY",
		Quantity:       decimal.RequireFromString("0.01"),
		IdempotencyKey: "buy-1",
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if trade.Status != domain.StatusCompleted {
		t.Errorf("expected COMPLETED, got %s", trade.Status)
	}
	// BUY executes at the best ask.
	if !trade.Price.Equal(decimal.RequireFromString("50000")) {
		t.Errorf("expected price 50000, got %s", trade.Price)
	}
	if !trade.TotalAmount.Equal(decimal.RequireFromString("500")) {
		t.Errorf("expected notional 500, got %s", trade.TotalAmount)
	}
	if trade.ExecutedAt == nil {
		t.Error("expected ExecutedAt to be set")
	}

	if got := mustBalance(t, a.store, userID, domain.USDT); !got.Equal(decimal.NewFromInt(500)) {
		t.Errorf("expected USDT 500, got %s", got)
	}
	if got := mustBalance(t, a.store, userID, domain.BTC); !got.Equal(decimal.RequireFromString("0.51")) {
		t.Errorf("expected BTC 0.51, got %s", got)
	}
}

func TestExecuteSell(t *testing.T) {
	trades, a, userID := newTradeRig(t)

	trade, err := trades.Execute(userID, TradeRequest{
		Pair:     "BTCUSDT",
		Side:     "SELL",
		Quantity: decimal.RequireFromString("0.1"),
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	// SELL executes at the best bid.
	if !trade.Price.Equal(decimal.RequireFromString("49990")) {
		t.Errorf("expected price 49990, got %s", trade.Price)
	}

	if got := mustBalance(t, a.store, userID, domain.BTC); !got.Equal(decimal.RequireFromString("0.4")) {
		t.Errorf("expected BTC 0.4, got %s", got)
	}
	if got := mustBalance(t, a.store, userID, domain.USDT); !got.Equal(decimal.RequireFromString("5999")) {
		t.Errorf("expected USDT 5999, got %s", got)
	}
}

// Static validation failures are rejected before anything touches the store:
// no trade row, no idempotency record.
func TestExecuteValidationPersistsNothing(t *testing.T) {
	trades, a, userID := newTradeRig(t)

	cases := []struct {
		name string
		req  TradeRequest
	}{
		{"unsupported pair", TradeRequest{Pair: "DOGEUSDT", Side: "BUY", Quantity: decimal.NewFromInt(1)}},
		{"bad side", TradeRequest{Pair: "BTCUSDT", Side: "HOLD", Quantity: decimal.NewFromInt(1)}},
		{"zero quantity", TradeRequest{Pair: "BTCUSDT", Side: "BUY", Quantity: decimal.Zero}},
		{"negative quantity", TradeRequest{Pair: "BTCUSDT", Side: "BUY", Quantity: decimal.NewFromInt(-1)}},
		{"too precise", TradeRequest{Pair: "BTCUSDT", Side: "BUY", Quantity: decimal.RequireFromString("0.000000001")}},
		{"below minimum", TradeRequest{Pair: "BTCUSDT", Side: "BUY", Quantity: decimal.RequireFromString("0.000001")}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.req.IdempotencyKey = "key-" + tc.name
			trade, err := trades.Execute(userID, tc.req)
			var validation *domain.ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if trade != nil {
				t.Error("validation failure must not produce a trade")
			}
		})
	}

	_, total, err := a.store.ListUserTrades(userID, 10, 0)
	if err != nil {
		t.Fatalf("ListUserTrades failed: %v", err)
	}
	if total != 0 {
		t.Errorf("expected no persisted trades, got %d", total)
	}
}

// An insufficient balance is a business failure: the trade is persisted as
// FAILED with the reason, and the wallets stay untouched.
func TestExecuteInsufficientBalancePersistsFailedTrade(t *testing.T) {
	trades, a, userID := newTradeRig(t)

	trade, err := trades.Execute(userID, TradeRequest{
		Pair:     "BTCUSDT",
		Side:     "SELL",
		Quantity: decimal.NewFromInt(2), // only 0.5 BTC held
	})
	var insufficient *domain.InsufficientBalanceError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientBalanceError, got %v", err)
	}
	if trade == nil || trade.Status != domain.StatusFailed {
		t.Fatalf("expected persisted FAILED trade, got %+v", trade)
	}
	if trade.FailureReason == "" {
		t.Error("expected a failure reason")
	}

	if got := mustBalance(t, a.store, userID, domain.BTC); !got.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("failed trade must not move BTC, got %s", got)
	}
	if got := mustBalance(t, a.store, userID, domain.USDT); !got.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("failed trade must not move USDT, got %s", got)
	}
}

// No admitted price for the requested side fails the trade terminally.
func TestExecutePriceUnavailable(t *testing.T) {
	trades, _, userID := newTradeRig(t)

	// ETHUSDT has no book in the rig.
	trade, err := trades.Execute(userID, TradeRequest{
		Pair:     "ETHUSDT",
		Side:     "BUY",
		Quantity: decimal.NewFromInt(1),
	})
	if !errors.Is(err, domain.ErrPriceUnavailable) {
		t.Fatalf("expected ErrPriceUnavailable, got %v", err)
	}
	if trade == nil || trade.Status != domain.StatusFailed {
		t.Errorf("expected persisted FAILED trade, got %+v", trade)
	}
}

func TestExecuteUnknownUser(t *testing.T) {
	trades, _, _ := newTradeRig(t)

	trade, err := trades.Execute(9999, TradeRequest{
		Pair:     "BTCUSDT",
		Side:     "BUY",
		Quantity: decimal.RequireFromString("0.01"),
	})
	var notFound *domain.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if trade == nil || trade.Status != domain.StatusFailed {
		t.Errorf("expected persisted FAILED trade, got %+v", trade)
	}
}

// A retried identical request replays the original outcome instead of
// executing twice. Balances move exactly once.
func TestExecuteIdempotentRetry(t *testing.T) {
	trades, a, userID := newTradeRig(t)

	req := TradeRequest{
		Pair:           "BTCUSDT",
		Side:           "BUY",
		Quantity:       decimal.RequireFromString("0.01"),
		IdempotencyKey: "retry-1",
	}

	first, err := trades.Execute(userID, req)
	if err != nil {
		t.Fatalf("first Execute failed: %v", err)
	}

	second, err := trades.Execute(userID, req)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("retry must replay trade %d, got %d", first.ID, second.ID)
	}

	if got := mustBalance(t, a.store, userID, domain.USDT); !got.Equal(decimal.NewFromInt(500)) {
		t.Errorf("retry must not move funds twice, got %s", got)
	}

	_, total, _ := a.store.ListUserTrades(userID, 10, 0)
	if total != 1 {
		t.Errorf("expected exactly 1 trade, got %d", total)
	}
}

// Reusing a key with a different payload is rejected without executing.
func TestExecuteKeyReuseConflict(t *testing.T) {
	trades, a, userID := newTradeRig(t)

	req := TradeRequest{
		Pair:           "BTCUSDT",
		Side:           "BUY",
		Quantity:       decimal.RequireFromString("0.01"),
		IdempotencyKey: "conflict-1",
	}
	if _, err := trades.Execute(userID, req); err != nil {
		t.Fatalf("first Execute failed: %v", err)
	}

	req.Quantity = decimal.RequireFromString("0.02")
	_, err := trades.Execute(userID, req)
	var dup *domain.DuplicateRequestError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateRequestError, got %v", err)
	}

	_, total, _ := a.store.ListUserTrades(userID, 10, 0)
	if total != 1 {
		t.Errorf("conflicting reuse must not execute, got %d trades", total)
	}
}

// A replayed failure surfaces as a failure again, not as a success.
func TestExecuteReplaysFailure(t *testing.T) {
	trades, _, userID := newTradeRig(t)

	req := TradeRequest{
		Pair:           "BTCUSDT",
		Side:           "SELL",
		Quantity:       decimal.NewFromInt(2),
		IdempotencyKey: "fail-replay",
	}

	first, err := trades.Execute(userID, req)
	if err == nil {
		t.Fatal("expected first attempt to fail")
	}

	second, err2 := trades.Execute(userID, req)
	if err2 == nil {
		t.Fatal("replayed failure must return an error")
	}
	if second == nil || second.ID != first.ID {
		t.Errorf("expected replay of failed trade %d, got %+v", first.ID, second)
	}
}

func TestHistoryPagination(t *testing.T) {
	trades, _, userID := newTradeRig(t)

	for i := 0; i < 3; i++ {
		if _, err := trades.Execute(userID, TradeRequest{
			Pair:     "BTCUSDT",
			Side:     "BUY",
			Quantity: decimal.RequireFromString("0.001"),
		}); err != nil {
			t.Fatalf("Execute %d failed: %v", i, err)
		}
	}

	page, total, err := trades.History(userID, 0, 2)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if total != 3 {
		t.Errorf("expected total 3, got %d", total)
	}
	if len(page) != 2 {
		t.Errorf("expected page of 2, got %d", len(page))
	}

	_, _, err = trades.History(9999, 0, 10)
	var notFound *domain.NotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("expected NotFoundError for unknown user, got %v", err)
	}
}
