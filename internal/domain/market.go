package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// PriceSource identifies a market-data provider.
type PriceSource string

const (
	SourceBinance PriceSource = "BINANCE"
	SourceHuobi   PriceSource = "HUOBI"
	SourceOKX     PriceSource = "OKX"
)

// Quote is a single provider's bid/ask for one pair in one refresh round.
type Quote struct {
	Bid    decimal.Decimal
	Ask    decimal.Decimal
	Source PriceSource
}

// Valid reports whether the quote is admissible: both sides positive and
// not crossed.
func (q Quote) Valid() bool {
	return q.Bid.IsPositive() && q.Ask.IsPositive() && q.Bid.LessThan(q.Ask)
}

// PriceProvider is the capability contract every market-data source implements.
// New providers register with the aggregator without touching its logic.
type PriceProvider interface {
	// Source returns the provider's identity tag.
	Source() PriceSource
	// FetchQuotes returns the provider's current bid/ask per pair symbol.
	// Implementations pre-filter crossed or one-sided quotes.
	FetchQuotes(ctx context.Context) (map[string]Quote, error)
	// Healthy reports whether the provider is currently reachable.
	Healthy(ctx context.Context) bool
}
