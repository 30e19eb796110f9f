package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"crypto_trade/internal/domain"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// huobiTickersResponse is the Huobi market/tickers envelope. Unlike Binance,
// prices arrive as JSON numbers and symbols are lowercase.
type huobiTickersResponse struct {
	Status string        `json:"status"`
	Data   []huobiTicker `json:"data"`
}

type huobiTicker struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
}

// HuobiProvider polls the Huobi market tickers endpoint.
type HuobiProvider struct {
	url     string
	client  *resty.Client
	limiter *rate.Limiter
}

// NewHuobiProvider creates a Huobi REST provider.
func NewHuobiProvider(url string, ratePerSec float64, burst int) *HuobiProvider {
	if ratePerSec <= 0 {
		ratePerSec = 5
	}
	if burst <= 0 {
		burst = 1
	}
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetHeader("User-Agent", DefaultUserAgent)

	return &HuobiProvider{
		url:     url,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst),
	}
}

// Source returns the provider identity tag.
func (p *HuobiProvider) Source() domain.PriceSource {
	return domain.SourceHuobi
}

// FetchQuotes returns the current bid/ask for every supported pair Huobi
// quotes. Crossed or one-sided quotes are dropped before return.
func (p *HuobiProvider) FetchQuotes(ctx context.Context) (map[string]domain.Quote, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var body huobiTickersResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetResult(&body).
		Get(p.url)
	if err != nil {
		return nil, fmt.Errorf("huobi fetch failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("huobi returned status %d", resp.StatusCode())
	}
	if body.Status != "ok" {
		return nil, fmt.Errorf("huobi returned status %q", body.Status)
	}

	quotes := make(map[string]domain.Quote)
	for _, t := range body.Data {
		symbol := strings.ToUpper(t.Symbol)
		if _, err := domain.PairFromSymbol(symbol); err != nil {
			continue
		}
		q := domain.Quote{
			Bid:    decimal.NewFromFloat(t.Bid),
			Ask:    decimal.NewFromFloat(t.Ask),
			Source: domain.SourceHuobi,
		}
		if !q.Valid() {
			continue
		}
		quotes[symbol] = q
	}
	return quotes, nil
}

// Healthy reports whether the endpoint currently answers with usable data.
func (p *HuobiProvider) Healthy(ctx context.Context) bool {
	quotes, err := p.FetchQuotes(ctx)
	return err == nil && len(quotes) > 0
}
