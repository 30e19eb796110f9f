package okx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"crypto_trade/internal/domain"
	"crypto_trade/internal/infra"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const (
	maxRetries   = 10
	pingInterval = 20 * time.Second
	readTimeout  = 60 * time.Second

	// staleAfter bounds how old a cached tick may be before FetchQuotes stops
	// serving it. A dead stream must not keep feeding the aggregator.
	staleAfter = 30 * time.Second
)

// tickerMessage is an OKX tickers-channel push. Prices arrive as strings.
type tickerMessage struct {
	Arg struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Data []struct {
		InstID string `json:"instId"`
		BidPx  string `json:"bidPx"`
		AskPx  string `json:"askPx"`
	} `json:"data"`
}

type cachedQuote struct {
	quote domain.Quote
	at    time.Time
}

// Provider keeps a live OKX tickers subscription and serves the last seen
// bid/ask per pair from an in-process cache. Unlike the REST providers it does
// no network round-trip at fetch time.
type Provider struct {
	wsURL     string
	conn      *websocket.Conn
	mu        sync.RWMutex
	writeMu   sync.Mutex
	connected bool
	quotes    map[string]cachedQuote // keyed by pair symbol
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewProvider creates an OKX streaming provider.
func NewProvider(wsURL string) *Provider {
	return &Provider{
		wsURL:  wsURL,
		quotes: make(map[string]cachedQuote),
	}
}

// Source returns the provider identity tag.
func (p *Provider) Source() domain.PriceSource {
	return domain.SourceOKX
}

// Connect starts the WebSocket connection with automatic reconnection.
func (p *Provider) Connect(ctx context.Context) error {
	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.connectionLoop(ctx)
	return nil
}

func (p *Provider) connectionLoop(ctx context.Context) {
	defer p.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("OKX worker panic recovered", slog.Any("panic", r))
		}
	}()

	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			slog.Info("OKX connection loop stopped")
			return
		default:
		}

		if err := p.connect(ctx); err != nil {
			slog.Warn("OKX connection failed",
				slog.Any("error", err),
				slog.Int("retry", retryCount),
			)

			delay := infra.CalculateBackoff(retryCount)
			retryCount++
			if retryCount > maxRetries {
				retryCount = 0
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		retryCount = 0
		p.readLoop(ctx)
	}
}

func (p *Provider) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	header := make(http.Header)
	header.Add("User-Agent", infra.DefaultUserAgent)

	conn, _, err := dialer.DialContext(ctx, p.wsURL, header)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	p.mu.Lock()
	p.conn = conn
	p.connected = true
	p.mu.Unlock()

	if err := p.subscribe(); err != nil {
		p.closeConnection()
		return fmt.Errorf("subscribe failed: %w", err)
	}

	go p.pingLoop(ctx)

	slog.Info("OKX WebSocket connected")
	return nil
}

func (p *Provider) subscribe() error {
	args := make([]map[string]string, 0, len(domain.AllPairs()))
	for _, pair := range domain.AllPairs() {
		args = append(args, map[string]string{
			"channel": "tickers",
			"instId":  instID(pair),
		})
	}
	msg := map[string]interface{}{"op": "subscribe", "args": args}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.threadSafeWrite(websocket.TextMessage, b)
}

func (p *Provider) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.IsConnected() {
				return
			}
			if err := p.threadSafeWrite(websocket.TextMessage, []byte("ping")); err != nil {
				slog.Warn("OKX ping failed", slog.Any("error", err))
				return
			}
		}
	}
}

func (p *Provider) threadSafeWrite(msgType int, data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.conn == nil {
		return fmt.Errorf("no conn")
	}
	return p.conn.WriteMessage(msgType, data)
}

func (p *Provider) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		p.mu.RLock()
		if p.conn == nil {
			p.mu.RUnlock()
			return
		}
		p.conn.SetReadDeadline(time.Now().Add(readTimeout))
		p.mu.RUnlock()

		_, msg, err := p.conn.ReadMessage()
		if err != nil {
			p.closeConnection()
			return
		}
		p.handleMessage(msg)
	}
}

func (p *Provider) handleMessage(msg []byte) {
	if string(msg) == "pong" {
		return
	}

	var tick tickerMessage
	if json.Unmarshal(msg, &tick) != nil || tick.Arg.Channel != "tickers" {
		return
	}

	now := time.Now()
	for _, d := range tick.Data {
		symbol := strings.ReplaceAll(d.InstID, "-", "")
		if _, err := domain.PairFromSymbol(symbol); err != nil {
			continue
		}
		bid, errBid := decimal.NewFromString(d.BidPx)
		ask, errAsk := decimal.NewFromString(d.AskPx)
		if errBid != nil || errAsk != nil {
			continue
		}
		q := domain.Quote{Bid: bid, Ask: ask, Source: domain.SourceOKX}
		if !q.Valid() {
			continue
		}

		p.mu.Lock()
		p.quotes[symbol] = cachedQuote{quote: q, at: now}
		p.mu.Unlock()
	}
}

// FetchQuotes serves the cached top-of-book. Entries older than staleAfter are
// withheld; an empty cache on a dead connection reports an error so the
// aggregator treats the round as a provider failure.
func (p *Provider) FetchQuotes(ctx context.Context) (map[string]domain.Quote, error) {
	cutoff := time.Now().Add(-staleAfter)

	p.mu.RLock()
	defer p.mu.RUnlock()

	quotes := make(map[string]domain.Quote)
	for symbol, c := range p.quotes {
		if c.at.After(cutoff) {
			quotes[symbol] = c.quote
		}
	}
	if len(quotes) == 0 && !p.connected {
		return nil, fmt.Errorf("okx stream disconnected")
	}
	return quotes, nil
}

// Healthy reports whether the stream is connected.
func (p *Provider) Healthy(ctx context.Context) bool {
	return p.IsConnected()
}

// IsConnected reports the current connection state.
func (p *Provider) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

func (p *Provider) closeConnection() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
	p.connected = false
}

// Disconnect stops the worker and closes the connection.
func (p *Provider) Disconnect() {
	if p.cancel != nil {
		p.cancel()
	}
	p.closeConnection()
	p.wg.Wait()
}

func instID(pair domain.TradingPair) string {
	return string(pair.Base) + "-" + string(pair.Quote)
}
