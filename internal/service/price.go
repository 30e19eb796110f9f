package service

import (
	"fmt"

	"crypto_trade/internal/domain"
	"crypto_trade/internal/infra/storage"

	"github.com/shopspring/decimal"
)

// PriceService answers read queries against the persisted best prices. Reads
// are never blocked by aggregation writes; a caller may observe a value that
// is superseded moments later.
type PriceService struct {
	store *storage.Storage
}

// NewPriceService creates a price query service.
func NewPriceService(store *storage.Storage) *PriceService {
	return &PriceService{store: store}
}

// LatestPrice returns the current best price record for one pair.
func (s *PriceService) LatestPrice(symbol string) (*domain.BestPrice, error) {
	pair, err := domain.PairFromSymbol(symbol)
	if err != nil {
		return nil, err
	}

	bp, err := s.store.GetBestPrice(pair.Symbol)
	if err != nil {
		return nil, err
	}
	if bp == nil {
		return nil, &domain.NotFoundError{Resource: "price", Key: pair.Symbol}
	}
	return bp, nil
}

// AllLatestPrices returns the best price for every pair that has one.
func (s *PriceService) AllLatestPrices() ([]domain.BestPrice, error) {
	return s.store.ListBestPrices()
}

// ExecutionPrice resolves the price a trade executes at: the best ask for a
// BUY, the best bid for a SELL. Missing or non-positive sides are reported as
// price-unavailable.
func (s *PriceService) ExecutionPrice(pair domain.TradingPair, side domain.TradeSide) (decimal.Decimal, error) {
	bp, err := s.store.GetBestPrice(pair.Symbol)
	if err != nil {
		return decimal.Zero, err
	}
	if bp == nil {
		return decimal.Zero, fmt.Errorf("%w for %s", domain.ErrPriceUnavailable, pair.Symbol)
	}

	px, err := bp.ExecutionPrice(side)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w for %s", err, pair.Symbol)
	}
	return px, nil
}
