package service

import (
	"fmt"
	"sort"
	"sync"

	"crypto_trade/internal/domain"
	"crypto_trade/internal/infra/storage"

	"github.com/shopspring/decimal"
)

// Leg is one side of a transfer: an amount applied to one (user, currency)
// wallet.
type Leg struct {
	UserID   uint
	Currency domain.Currency
	Amount   decimal.Decimal
}

func (l Leg) lockKey() string {
	return fmt.Sprintf("%d:%s", l.UserID, l.Currency)
}

// Ledger owns all wallet balance mutations. Every mutation runs under an
// exclusive lock scoped to the (user, currency) tuple, so concurrent trades
// on the same wallet serialize while distinct wallets never contend. Reads
// for display skip the lock and may observe a balance about to change.
type Ledger struct {
	store *storage.Storage
	locks sync.Map // lock key -> *sync.Mutex
}

// NewLedger creates a ledger over the durable store.
func NewLedger(store *storage.Storage) *Ledger {
	return &Ledger{store: store}
}

func (l *Ledger) lockFor(key string) *sync.Mutex {
	mu, _ := l.locks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// roundBalance fixes every stored balance at 8 fractional digits, rounded
// half-up, so repeated mutations cannot accumulate drift.
func roundBalance(d decimal.Decimal) decimal.Decimal {
	return d.Round(domain.BalanceScale)
}

// Credit adds a strictly positive amount to the wallet.
func (l *Ledger) Credit(userID uint, currency domain.Currency, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return &domain.ValidationError{Msg: "credit amount must be positive"}
	}

	leg := Leg{UserID: userID, Currency: currency, Amount: amount}
	mu := l.lockFor(leg.lockKey())
	mu.Lock()
	defer mu.Unlock()

	return l.applyCredit(l.store, leg)
}

// Debit removes a strictly positive amount from the wallet. When the balance
// is insufficient the wallet is left unchanged and an
// InsufficientBalanceError is returned.
func (l *Ledger) Debit(userID uint, currency domain.Currency, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return &domain.ValidationError{Msg: "debit amount must be positive"}
	}

	leg := Leg{UserID: userID, Currency: currency, Amount: amount}
	mu := l.lockFor(leg.lockKey())
	mu.Lock()
	defer mu.Unlock()

	return l.applyDebit(l.store, leg)
}

// Transfer applies a debit leg and a credit leg atomically: both locks are
// held for the duration and both writes run in one store transaction, so a
// failure of either leg leaves no observable effect. Locks are acquired in
// deterministic key order to rule out deadlock between concurrent transfers.
func (l *Ledger) Transfer(debit, credit Leg) error {
	if !debit.Amount.IsPositive() || !credit.Amount.IsPositive() {
		return &domain.ValidationError{Msg: "transfer amounts must be positive"}
	}

	keys := []string{debit.lockKey(), credit.lockKey()}
	sort.Strings(keys)
	for _, key := range keys {
		mu := l.lockFor(key)
		mu.Lock()
		defer mu.Unlock()
	}

	return l.store.WithTx(func(tx *storage.Storage) error {
		if err := l.applyDebit(tx, debit); err != nil {
			return err
		}
		return l.applyCredit(tx, credit)
	})
}

// Balance returns the wallet's current balance without taking the lock.
func (l *Ledger) Balance(userID uint, currency domain.Currency) (*domain.Wallet, error) {
	wallet, err := l.store.GetWallet(userID, currency)
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		return nil, &domain.NotFoundError{
			Resource: "wallet",
			Key:      fmt.Sprintf("user %d currency %s", userID, currency),
		}
	}
	return wallet, nil
}

// Balances returns all of a user's wallets without taking any lock.
func (l *Ledger) Balances(userID uint) ([]domain.Wallet, error) {
	return l.store.GetUserWallets(userID)
}

func (l *Ledger) applyCredit(store *storage.Storage, leg Leg) error {
	wallet, err := l.fetchWallet(store, leg)
	if err != nil {
		return err
	}
	newBalance := roundBalance(wallet.Balance.Add(leg.Amount))
	return store.UpdateWalletBalance(wallet.ID, newBalance)
}

func (l *Ledger) applyDebit(store *storage.Storage, leg Leg) error {
	wallet, err := l.fetchWallet(store, leg)
	if err != nil {
		return err
	}
	if wallet.Balance.LessThan(leg.Amount) {
		return &domain.InsufficientBalanceError{
			Currency:  leg.Currency,
			Required:  leg.Amount,
			Available: wallet.Balance,
		}
	}
	newBalance := roundBalance(wallet.Balance.Sub(leg.Amount))
	return store.UpdateWalletBalance(wallet.ID, newBalance)
}

func (l *Ledger) fetchWallet(store *storage.Storage, leg Leg) (*domain.Wallet, error) {
	wallet, err := store.GetWallet(leg.UserID, leg.Currency)
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		return nil, &domain.NotFoundError{
			Resource: "wallet",
			Key:      fmt.Sprintf("user %d currency %s", leg.UserID, leg.Currency),
		}
	}
	return wallet, nil
}
