package service

import (
	"fmt"
	"log/slog"
	"time"

	"crypto_trade/internal/domain"
	"crypto_trade/internal/infra/storage"

	"github.com/shopspring/decimal"
)

// TradeRequest is one settlement request as received from the caller.
type TradeRequest struct {
	Pair           string
	Side           string
	Quantity       decimal.Decimal
	IdempotencyKey string
}

// TradeService is the state machine that executes one trade end to end:
// idempotency check, validation, price resolution, atomic two-leg transfer,
// terminal persistence. A trade is PENDING only in memory; every persisted
// trade is terminal and immutable.
type TradeService struct {
	store       *storage.Storage
	ledger      *Ledger
	prices      *PriceService
	idempotency *IdempotencyResolver
}

// NewTradeService wires the orchestrator to its collaborators.
func NewTradeService(store *storage.Storage, ledger *Ledger, prices *PriceService, idempotency *IdempotencyResolver) *TradeService {
	return &TradeService{
		store:       store,
		ledger:      ledger,
		prices:      prices,
		idempotency: idempotency,
	}
}

// Execute settles one trade request for the given user. On failure past the
// payer check a FAILED trade is persisted carrying the reason, the
// idempotency outcome is recorded against it, and both the trade and the
// typed error are returned - an identical retried request replays the same
// failure rather than re-attempting.
func (s *TradeService) Execute(userID uint, req TradeRequest) (*domain.Trade, error) {
	slog.Info("executing trade",
		slog.Uint64("user_id", uint64(userID)),
		slog.String("pair", req.Pair),
		slog.String("side", req.Side),
		slog.String("quantity", req.Quantity.String()),
	)

	fingerprint := ""
	if req.IdempotencyKey != "" {
		fingerprint = Fingerprint(req.Pair, req.Side, req.Quantity)
	}

	// Fast-path replay. May race with an identical concurrent request; the
	// Record insert below is the authoritative guard.
	prior, err := s.idempotency.Resolve(userID, req.IdempotencyKey, fingerprint)
	if err != nil {
		return nil, err
	}
	if prior != nil {
		slog.Info("replaying prior trade outcome",
			slog.Uint64("user_id", uint64(userID)), slog.Uint64("trade_id", uint64(prior.ID)))
		return prior, priorError(prior)
	}

	pair, side, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	exists, err := s.store.UserExists(userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		nf := &domain.NotFoundError{Resource: "user", Key: fmt.Sprintf("%d", userID)}
		return s.fail(userID, pair, side, req, fingerprint, nf)
	}

	price, err := s.prices.ExecutionPrice(pair, side)
	if err != nil {
		if !domain.IsRecoverable(err) {
			return nil, err
		}
		return s.fail(userID, pair, side, req, fingerprint, err)
	}

	trade := domain.NewTrade(userID, pair, side, req.Quantity, price)

	if err := s.ledger.Transfer(transferLegs(userID, pair, side, req.Quantity, trade.TotalAmount)); err != nil {
		if !domain.IsRecoverable(err) {
			// Infrastructure failure, not a business outcome: no terminal
			// record, a retry may succeed.
			return nil, err
		}
		return s.fail(userID, pair, side, req, fingerprint, err)
	}

	trade.MarkCompleted(time.Now())
	if err := s.store.SaveTrade(trade); err != nil {
		return nil, fmt.Errorf("failed to persist trade: %w", err)
	}

	winner, err := s.idempotency.Record(userID, req.IdempotencyKey, fingerprint, trade.ID)
	if err != nil {
		return nil, err
	}
	if winner != nil {
		return winner, priorError(winner)
	}

	slog.Info("trade completed",
		slog.Uint64("user_id", uint64(userID)),
		slog.Uint64("trade_id", uint64(trade.ID)),
		slog.String("price", price.String()),
	)
	return trade, nil
}

// History returns one page of the user's trades, newest first.
func (s *TradeService) History(userID uint, page, size int) ([]domain.Trade, int64, error) {
	exists, err := s.store.UserExists(userID)
	if err != nil {
		return nil, 0, err
	}
	if !exists {
		return nil, 0, &domain.NotFoundError{Resource: "user", Key: fmt.Sprintf("%d", userID)}
	}

	if size <= 0 || size > 100 {
		size = 20
	}
	if page < 0 {
		page = 0
	}
	return s.store.ListUserTrades(userID, size, page*size)
}

// validate applies the static rules: supported pair, valid side, positive
// quantity within the declared precision and above the pair minimum.
// Validation failures are rejected outright; nothing is persisted for them.
func (s *TradeService) validate(req TradeRequest) (domain.TradingPair, domain.TradeSide, error) {
	pair, err := domain.PairFromSymbol(req.Pair)
	if err != nil {
		return domain.TradingPair{}, "", err
	}

	side, err := domain.SideFromString(req.Side)
	if err != nil {
		return domain.TradingPair{}, "", err
	}

	if !req.Quantity.IsPositive() {
		return domain.TradingPair{}, "", &domain.ValidationError{Msg: "quantity must be positive"}
	}
	if req.Quantity.Exponent() < -domain.BalanceScale {
		return domain.TradingPair{}, "", &domain.ValidationError{
			Msg: fmt.Sprintf("quantity precision exceeds %d decimal places", domain.BalanceScale)}
	}
	if req.Quantity.LessThan(pair.MinQuantity) {
		return domain.TradingPair{}, "", &domain.ValidationError{
			Msg: fmt.Sprintf("quantity below minimum %s for %s", pair.MinQuantity.String(), pair.Symbol)}
	}
	if len(req.IdempotencyKey) > 64 {
		return domain.TradingPair{}, "", &domain.ValidationError{Msg: "idempotency key must not exceed 64 characters"}
	}

	return pair, side, nil
}

// fail persists the FAILED terminal record and its idempotency outcome, then
// returns the trade alongside the original typed error. Failures are
// auditable data, never just an in-memory error.
func (s *TradeService) fail(userID uint, pair domain.TradingPair, side domain.TradeSide, req TradeRequest, fingerprint string, cause error) (*domain.Trade, error) {
	slog.Warn("trade failed",
		slog.Uint64("user_id", uint64(userID)),
		slog.String("pair", pair.Symbol),
		slog.Any("error", cause),
	)

	trade := domain.NewTrade(userID, pair, side, req.Quantity, decimal.Zero)
	trade.MarkFailed(time.Now(), cause.Error())
	if err := s.store.SaveTrade(trade); err != nil {
		slog.Error("failed to persist failed trade", slog.Any("error", err))
		return nil, cause
	}

	winner, err := s.idempotency.Record(userID, req.IdempotencyKey, fingerprint, trade.ID)
	if err != nil {
		slog.Error("failed to record idempotency outcome", slog.Any("error", err))
		return trade, cause
	}
	if winner != nil {
		return winner, priorError(winner)
	}
	return trade, cause
}

// priorError reconstructs the caller-facing error for a replayed FAILED
// trade, so a retry surfaces the identical failure.
func priorError(trade *domain.Trade) error {
	if trade.Status != domain.StatusFailed {
		return nil
	}
	return &domain.ValidationError{Msg: trade.FailureReason}
}

// transferLegs maps a trade onto its two wallet legs: a BUY debits the quote
// currency by the notional and credits the base by the quantity; a SELL is
// the reverse.
func transferLegs(userID uint, pair domain.TradingPair, side domain.TradeSide, quantity, notional decimal.Decimal) (Leg, Leg) {
	if side == domain.SideBuy {
		return Leg{UserID: userID, Currency: pair.Quote, Amount: notional},
			Leg{UserID: userID, Currency: pair.Base, Amount: quantity}
	}
	return Leg{UserID: userID, Currency: pair.Base, Amount: quantity},
		Leg{UserID: userID, Currency: pair.Quote, Amount: notional}
}
