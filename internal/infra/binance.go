package infra

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"crypto_trade/internal/domain"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// binanceBookTicker is one symbol's top-of-book from the Binance REST API.
// Prices arrive as strings.
type binanceBookTicker struct {
	Symbol   string `json:"symbol"`
	BidPrice string `json:"bidPrice"`
	AskPrice string `json:"askPrice"`
}

// BinanceProvider polls the Binance book-ticker endpoint.
type BinanceProvider struct {
	url     string
	client  *resty.Client
	limiter *rate.Limiter
}

// NewBinanceProvider creates a Binance REST provider. ratePerSec bounds the
// outbound request rate so a tight refresh interval cannot trip the API limits.
func NewBinanceProvider(url string, ratePerSec float64, burst int) *BinanceProvider {
	if ratePerSec <= 0 {
		ratePerSec = 5
	}
	if burst <= 0 {
		burst = 1
	}
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetHeader("User-Agent", DefaultUserAgent)

	return &BinanceProvider{
		url:     url,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst),
	}
}

// Source returns the provider identity tag.
func (p *BinanceProvider) Source() domain.PriceSource {
	return domain.SourceBinance
}

// FetchQuotes returns the current bid/ask for every supported pair Binance
// quotes. Crossed or one-sided quotes are dropped before return.
func (p *BinanceProvider) FetchQuotes(ctx context.Context) (map[string]domain.Quote, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var tickers []binanceBookTicker
	resp, err := p.client.R().
		SetContext(ctx).
		SetResult(&tickers).
		Get(p.url)
	if err != nil {
		return nil, fmt.Errorf("binance fetch failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("binance returned status %d", resp.StatusCode())
	}

	quotes := make(map[string]domain.Quote)
	for _, t := range tickers {
		if _, err := domain.PairFromSymbol(t.Symbol); err != nil {
			continue
		}
		bid, errBid := decimal.NewFromString(t.BidPrice)
		ask, errAsk := decimal.NewFromString(t.AskPrice)
		if errBid != nil || errAsk != nil {
			slog.Warn("Binance quote unparseable", slog.String("symbol", t.Symbol))
			continue
		}
		q := domain.Quote{Bid: bid, Ask: ask, Source: domain.SourceBinance}
		if !q.Valid() {
			continue
		}
		quotes[t.Symbol] = q
	}
	return quotes, nil
}

// Healthy reports whether the endpoint currently answers with usable data.
func (p *BinanceProvider) Healthy(ctx context.Context) bool {
	quotes, err := p.FetchQuotes(ctx)
	return err == nil && len(quotes) > 0
}
