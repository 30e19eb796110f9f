package service

import (
	"errors"
	"fmt"
	"log/slog"

	"crypto_trade/internal/domain"
	"crypto_trade/internal/infra/storage"

	"github.com/shopspring/decimal"
)

// initialUSDTBalance is what every new account starts trading with.
var initialUSDTBalance = decimal.NewFromInt(50000)

type UserService struct {
	store *storage.Storage
}

func NewUserService(store *storage.Storage) *UserService {
	return &UserService{store: store}
}

// Register creates a user and seeds one wallet per supported currency:
// the quote currency funded with the initial balance, the rest at zero.
func (s *UserService) Register(username, email string) (*domain.User, error) {
	if username == "" {
		return nil, &domain.ValidationError{Msg: "username must not be empty"}
	}
	if email == "" {
		return nil, &domain.ValidationError{Msg: "email must not be empty"}
	}

	user := &domain.User{Username: username, Email: email}
	if err := s.store.CreateUser(user); err != nil {
		if errors.Is(err, domain.ErrDuplicateKey) {
			return nil, &domain.ValidationError{Msg: "username or email already exists"}
		}
		return nil, err
	}

	for _, info := range domain.AllCurrencies() {
		balance := decimal.Zero
		if info.Code == domain.USDT {
			balance = initialUSDTBalance
		}
		wallet := &domain.Wallet{UserID: user.ID, Currency: info.Code, Balance: balance}
		if err := s.store.CreateWallet(wallet); err != nil {
			return nil, fmt.Errorf("failed to seed %s wallet: %w", info.Code, err)
		}
	}

	slog.Info("user registered", slog.Uint64("user_id", uint64(user.ID)), slog.String("username", username))
	return user, nil
}

func (s *UserService) Get(userID uint) (*domain.User, error) {
	user, err := s.store.GetUser(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, &domain.NotFoundError{Resource: "user", Key: fmt.Sprintf("%d", userID)}
	}
	return user, nil
}
