package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"crypto_trade/internal/domain"
	"crypto_trade/internal/infra/storage"

	"github.com/shopspring/decimal"
)

func newTestStore(t *testing.T) *storage.Storage {
	s, err := storage.NewStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	return s
}

// seedUser creates a user with one wallet per currency at the given balances.
func seedUser(t *testing.T, s *storage.Storage, balances map[domain.Currency]string) uint {
	t.Helper()
	user := &domain.User{Username: "trader", Email: "trader@example.com"}
	if err := s.CreateUser(user); err != nil {
		t.Fatalf("seed user failed: %v", err)
	}
	for currency, balance := range balances {
		w := &domain.Wallet{UserID: user.ID, Currency: currency, Balance: decimal.RequireFromString(balance)}
		if err := s.CreateWallet(w); err != nil {
			t.Fatalf("seed wallet failed: %v", err)
		}
	}
	return user.ID
}

func mustBalance(t *testing.T, s *storage.Storage, userID uint, currency domain.Currency) decimal.Decimal {
	t.Helper()
	w, err := s.GetWallet(userID, currency)
	if err != nil {
		t.Fatalf("get wallet failed: %v", err)
	}
	if w == nil {
		t.Fatalf("wallet %d/%s missing", userID, currency)
	}
	return w.Balance
}

// fakeProvider returns a fixed quote set, or an error, on every fetch.
type fakeProvider struct {
	source domain.PriceSource
	quotes map[string]domain.Quote
	err    error
}

func (f *fakeProvider) Source() domain.PriceSource { return f.source }

func (f *fakeProvider) FetchQuotes(ctx context.Context) (map[string]domain.Quote, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.quotes, nil
}

func (f *fakeProvider) Healthy(ctx context.Context) bool { return f.err == nil }

func quote(source domain.PriceSource, bid, ask string) domain.Quote {
	return domain.Quote{
		Bid:    decimal.RequireFromString(bid),
		Ask:    decimal.RequireFromString(ask),
		Source: source,
	}
}

var errProviderDown = errors.New("provider unreachable")
