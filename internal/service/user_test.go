package service

import (
	"errors"
	"testing"

	"crypto_trade/internal/domain"

	"github.com/shopspring/decimal"
)

func TestRegisterSeedsWallets(t *testing.T) {
	store := newTestStore(t)
	users := NewUserService(store)

	user, err := users.Register("alice", "alice@example.com")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	wallets, err := store.GetUserWallets(user.ID)
	if err != nil {
		t.Fatalf("GetUserWallets failed: %v", err)
	}
	if len(wallets) != len(domain.AllCurrencies()) {
		t.Fatalf("expected %d wallets, got %d", len(domain.AllCurrencies()), len(wallets))
	}

	for _, w := range wallets {
		want := decimal.Zero
		if w.Currency == domain.USDT {
			want = decimal.NewFromInt(50000)
		}
		if !w.Balance.Equal(want) {
			t.Errorf("%s: expected %s, got %s", w.Currency, want, w.Balance)
		}
	}
}

func TestRegisterDuplicate(t *testing.T) {
	store := newTestStore(t)
	users := NewUserService(store)

	if _, err := users.Register("bob", "bob@example.com"); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}

	var validation *domain.ValidationError
	if _, err := users.Register("bob", "bob2@example.com"); !errors.As(err, &validation) {
		t.Errorf("expected ValidationError on duplicate username, got %v", err)
	}
	if _, err := users.Register("bob2", "bob@example.com"); !errors.As(err, &validation) {
		t.Errorf("expected ValidationError on duplicate email, got %v", err)
	}
}

func TestRegisterRequiresFields(t *testing.T) {
	store := newTestStore(t)
	users := NewUserService(store)

	var validation *domain.ValidationError
	if _, err := users.Register("", "x@example.com"); !errors.As(err, &validation) {
		t.Errorf("expected ValidationError for empty username, got %v", err)
	}
	if _, err := users.Register("x", ""); !errors.As(err, &validation) {
		t.Errorf("expected ValidationError for empty email, got %v", err)
	}
}

func TestGetUser(t *testing.T) {
	store := newTestStore(t)
	users := NewUserService(store)

	created, _ := users.Register("carol", "carol@example.com")

	fetched, err := users.Get(created.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched.Username != "carol" {
		t.Errorf("unexpected user: %+v", fetched)
	}

	var notFound *domain.NotFoundError
	if _, err := users.Get(9999); !errors.As(err, &notFound) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}
