package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"crypto_trade/internal/domain"
	"crypto_trade/internal/infra/storage"

	"github.com/shopspring/decimal"
)

const (
	// Optimistic-lock retry policy for one pair's best-price write.
	maxUpdateAttempts = 3
	updateBackoffBase = 100 * time.Millisecond
)

// providerQuotes is one provider's admitted quotes for one refresh round.
type providerQuotes struct {
	source domain.PriceSource
	quotes map[string]domain.Quote
}

// pairBest is the round's candidate winner per side for one pair. Sides are
// independent; bid and ask may come from different providers.
type pairBest struct {
	bid *domain.Quote
	ask *domain.Quote
}

// Aggregator polls every registered provider, arbitrates the best bid/ask per
// pair, and persists the result under optimistic concurrency. It is driven by
// the background scheduler, never by request traffic.
type Aggregator struct {
	providers    []domain.PriceProvider
	store        *storage.Storage
	fetchTimeout time.Duration
}

// NewAggregator creates an aggregator over the given provider set.
func NewAggregator(store *storage.Storage, fetchTimeout time.Duration, providers ...domain.PriceProvider) *Aggregator {
	return &Aggregator{
		providers:    providers,
		store:        store,
		fetchTimeout: fetchTimeout,
	}
}

// Providers returns the registered provider set.
func (a *Aggregator) Providers() []domain.PriceProvider {
	return a.providers
}

// Refresh runs one aggregation round. It never panics out and never returns
// an error: partial provider failure, unparseable quotes and lock-retry
// exhaustion all degrade to log lines, because the scheduled cycle must
// survive indefinitely.
func (a *Aggregator) Refresh(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("price aggregation panic recovered", slog.Any("panic", r))
		}
	}()

	rounds := a.fetchAll(ctx)
	if len(rounds) == 0 {
		slog.Warn("no price data available from any provider")
		return
	}

	best := arbitrate(rounds)
	updated := 0
	for symbol, candidate := range best {
		if a.updateWithRetry(ctx, symbol, candidate) {
			updated++
		}
	}

	a.appendHistory(rounds)

	slog.Debug("price aggregation round finished",
		slog.Int("providers", len(rounds)),
		slog.Int("pairs", len(best)),
		slog.Int("updated", updated),
	)
}

// fetchAll queries every provider concurrently, each under its own timeout.
// A provider that errors or times out contributes nothing to the round.
func (a *Aggregator) fetchAll(ctx context.Context) []providerQuotes {
	results := make([]providerQuotes, len(a.providers))

	var wg sync.WaitGroup
	for i, provider := range a.providers {
		wg.Add(1)
		go func(i int, p domain.PriceProvider) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					slog.Error("provider fetch panic recovered",
						slog.String("source", string(p.Source())), slog.Any("panic", r))
				}
			}()

			fetchCtx, cancel := context.WithTimeout(ctx, a.fetchTimeout)
			defer cancel()

			quotes, err := p.FetchQuotes(fetchCtx)
			if err != nil {
				slog.Warn("provider fetch failed",
					slog.String("source", string(p.Source())), slog.Any("error", err))
				return
			}

			admitted := make(map[string]domain.Quote, len(quotes))
			for symbol, q := range quotes {
				if q.Valid() {
					admitted[symbol] = q
				}
			}
			results[i] = providerQuotes{source: p.Source(), quotes: admitted}
		}(i, provider)
	}
	wg.Wait()

	nonEmpty := results[:0]
	for _, r := range results {
		if len(r.quotes) > 0 {
			nonEmpty = append(nonEmpty, r)
		}
	}
	return nonEmpty
}

// arbitrate selects, per pair and per side independently, the round's best
// candidate: highest bid, lowest ask.
func arbitrate(rounds []providerQuotes) map[string]pairBest {
	best := make(map[string]pairBest)
	for _, round := range rounds {
		for symbol, quote := range round.quotes {
			q := quote
			b := best[symbol]
			if b.bid == nil || q.Bid.GreaterThan(b.bid.Bid) {
				b.bid = &q
			}
			if b.ask == nil || q.Ask.LessThan(b.ask.Ask) {
				b.ask = &q
			}
			best[symbol] = b
		}
	}
	return best
}

// updateWithRetry persists one pair's candidate under the ratchet rule with a
// bounded optimistic-lock retry. Exhaustion skips the pair for this round;
// other pairs are unaffected.
func (a *Aggregator) updateWithRetry(ctx context.Context, symbol string, candidate pairBest) bool {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		if attempt > 0 {
			delay := updateBackoffBase << (attempt - 1)
			select {
			case <-ctx.Done():
				return false
			case <-time.After(delay):
			}
		}

		applied, err := a.tryUpdate(symbol, candidate)
		if err == nil {
			return applied
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			slog.Error("best price update failed",
				slog.String("pair", symbol), slog.Any("error", err))
			return false
		}
		slog.Warn("optimistic lock conflict on best price, retrying",
			slog.String("pair", symbol), slog.Int("attempt", attempt+1))
	}

	slog.Warn("best price update abandoned after retries", slog.String("pair", symbol))
	return false
}

// tryUpdate reads the current record and applies the ratchet: a side is
// overwritten only when nothing is stored for it yet, or the candidate is
// strictly better (higher bid, lower ask). The stored value never reverts to
// something worse.
func (a *Aggregator) tryUpdate(symbol string, candidate pairBest) (bool, error) {
	bp, err := a.store.GetBestPrice(symbol)
	if err != nil {
		return false, err
	}

	if bp == nil {
		bp = &domain.BestPrice{Pair: symbol}
		applyCandidate(bp, candidate)
		if !bp.BestBid.Valid && !bp.BestAsk.Valid {
			return false, nil
		}
		return true, a.store.InsertBestPrice(bp)
	}

	if !applyCandidate(bp, candidate) {
		slog.Debug("no better price this round", slog.String("pair", symbol))
		return false, nil
	}
	return true, a.store.UpdateBestPrice(bp)
}

// applyCandidate mutates bp per the ratchet rule and reports whether any side
// changed.
func applyCandidate(bp *domain.BestPrice, candidate pairBest) bool {
	changed := false

	if candidate.bid != nil {
		if !bp.BestBid.Valid || candidate.bid.Bid.GreaterThan(bp.BestBid.Decimal) {
			bp.BestBid = decimal.NewNullDecimal(candidate.bid.Bid)
			bp.BidSource = candidate.bid.Source
			changed = true
		}
	}
	if candidate.ask != nil {
		if !bp.BestAsk.Valid || candidate.ask.Ask.LessThan(bp.BestAsk.Decimal) {
			bp.BestAsk = decimal.NewNullDecimal(candidate.ask.Ask)
			bp.AskSource = candidate.ask.Source
			changed = true
		}
	}
	return changed
}

// appendHistory records every admitted quote from every provider, winning or
// not. The audit trail is append-only; a write failure costs history, never
// correctness.
func (a *Aggregator) appendHistory(rounds []providerQuotes) {
	now := time.Now()
	var records []domain.PriceHistory
	for _, round := range rounds {
		for symbol, q := range round.quotes {
			records = append(records, domain.PriceHistory{
				Pair:      symbol,
				Source:    q.Source,
				Bid:       q.Bid,
				Ask:       q.Ask,
				Timestamp: now,
			})
		}
	}

	if err := a.store.AppendPriceHistory(records); err != nil {
		slog.Error("failed to append price history", slog.Any("error", err))
	}
}
