package infra

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"crypto_trade/internal/domain"

	"github.com/shopspring/decimal"
)

func TestHuobiFetchQuotes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","data":[
			{"symbol":"btcusdt","bid":50005.5,"ask":50008.25},
			{"symbol":"adausdt","bid":0.4,"ask":0.41}
		]}`))
	}))
	defer server.Close()

	p := NewHuobiProvider(server.URL, 100, 10)

	quotes, err := p.FetchQuotes(context.Background())
	if err != nil {
		t.Fatalf("FetchQuotes failed: %v", err)
	}
	if len(quotes) != 1 {
		t.Fatalf("expected 1 quote, got %d", len(quotes))
	}

	// Lowercase Huobi symbols map onto the canonical uppercase form.
	btc, ok := quotes["BTCUSDT"]
	if !ok {
		t.Fatal("missing BTCUSDT quote")
	}
	if !btc.Bid.Equal(decimal.RequireFromString("50005.5")) {
		t.Errorf("unexpected bid: %s", btc.Bid)
	}
	if btc.Source != domain.SourceHuobi {
		t.Errorf("unexpected source: %s", btc.Source)
	}
}

func TestHuobiBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"error","data":[]}`))
	}))
	defer server.Close()

	p := NewHuobiProvider(server.URL, 100, 10)

	if _, err := p.FetchQuotes(context.Background()); err == nil {
		t.Error("expected error on non-ok status")
	}
}
