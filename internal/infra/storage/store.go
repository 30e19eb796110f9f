package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"crypto_trade/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Storage is the single authoritative durable store. It provides the three
// primitives the engine relies on: versioned writes for best prices, a
// uniqueness constraint for idempotency records, and transactional wallet
// updates.
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (or creates) the SQLite database at path and migrates the
// schema.
func NewStorage(path string) (*Storage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.User{},
		&domain.Wallet{},
		&domain.BestPrice{},
		&domain.PriceHistory{},
		&domain.IdempotencyRecord{},
		&domain.Trade{},
	)
}

// WithTx runs fn inside one database transaction. Any error from fn rolls the
// whole transaction back.
func (s *Storage) WithTx(fn func(tx *Storage) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&Storage{db: tx})
	})
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ======================================================================================
// User Operations
// ======================================================================================

// CreateUser inserts a new user. Returns domain.ErrDuplicateKey when the
// username or email is already taken.
func (s *Storage) CreateUser(user *domain.User) error {
	if err := s.db.Create(user).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateKey
		}
		return err
	}
	return nil
}

// GetUser retrieves a user by ID. Returns nil, nil when absent.
func (s *Storage) GetUser(id uint) (*domain.User, error) {
	var user domain.User
	err := s.db.First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByUsername retrieves a user by username. Returns nil, nil when absent.
func (s *Storage) GetUserByUsername(username string) (*domain.User, error) {
	var user domain.User
	err := s.db.Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UserExists reports whether a user row exists.
func (s *Storage) UserExists(id uint) (bool, error) {
	var count int64
	err := s.db.Model(&domain.User{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

// ======================================================================================
// Wallet Operations
// ======================================================================================

// CreateWallet inserts a new wallet row. Returns domain.ErrDuplicateKey when
// the (user, currency) wallet already exists.
func (s *Storage) CreateWallet(wallet *domain.Wallet) error {
	if err := s.db.Create(wallet).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateKey
		}
		return err
	}
	return nil
}

// GetWallet retrieves one (user, currency) wallet. Returns nil, nil when absent.
func (s *Storage) GetWallet(userID uint, currency domain.Currency) (*domain.Wallet, error) {
	var wallet domain.Wallet
	err := s.db.First(&wallet, "user_id = ? AND currency = ?", userID, currency).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// GetUserWallets retrieves all wallets for a user, sorted by currency.
func (s *Storage) GetUserWallets(userID uint) ([]domain.Wallet, error) {
	var wallets []domain.Wallet
	err := s.db.Where("user_id = ?", userID).Order("currency").Find(&wallets).Error
	return wallets, err
}

// UpdateWalletBalance persists a new balance for an existing wallet row.
// Callers must hold the ledger lock for the wallet's (user, currency) tuple.
func (s *Storage) UpdateWalletBalance(walletID uint, balance decimal.Decimal) error {
	result := s.db.Model(&domain.Wallet{}).
		Where("id = ?", walletID).
		Updates(map[string]interface{}{
			"balance":    balance,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return &domain.NotFoundError{Resource: "wallet", Key: fmt.Sprintf("%d", walletID)}
	}
	return nil
}

// ======================================================================================
// Best Price Operations
// ======================================================================================

// GetBestPrice retrieves the best price record for a pair. Returns nil, nil
// when no quote has ever been admitted for it.
func (s *Storage) GetBestPrice(pair string) (*domain.BestPrice, error) {
	var bp domain.BestPrice
	err := s.db.First(&bp, "pair = ?", pair).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &bp, nil
}

// ListBestPrices retrieves every best price record, sorted by pair.
func (s *Storage) ListBestPrices() ([]domain.BestPrice, error) {
	var prices []domain.BestPrice
	err := s.db.Order("pair").Find(&prices).Error
	return prices, err
}

// InsertBestPrice creates the first record for a pair at version 1. A
// concurrent first-writer race surfaces as domain.ErrVersionConflict so the
// caller re-reads and retries like any other conflict.
func (s *Storage) InsertBestPrice(bp *domain.BestPrice) error {
	bp.Version = 1
	bp.UpdatedAt = time.Now()
	if err := s.db.Create(bp).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrVersionConflict
		}
		return err
	}
	return nil
}

// UpdateBestPrice writes the record with an optimistic version check: the row
// is only touched when its stored version still matches bp.Version. On a
// mismatch it returns domain.ErrVersionConflict and writes nothing.
func (s *Storage) UpdateBestPrice(bp *domain.BestPrice) error {
	result := s.db.Model(&domain.BestPrice{}).
		Where("id = ? AND version = ?", bp.ID, bp.Version).
		Updates(map[string]interface{}{
			"best_bid":   bp.BestBid,
			"best_ask":   bp.BestAsk,
			"bid_source": bp.BidSource,
			"ask_source": bp.AskSource,
			"version":    bp.Version + 1,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrVersionConflict
	}
	bp.Version++
	return nil
}

// ======================================================================================
// Price History Operations
// ======================================================================================

// AppendPriceHistory appends one batch of admitted quotes. Append-only.
func (s *Storage) AppendPriceHistory(records []domain.PriceHistory) error {
	if len(records) == 0 {
		return nil
	}
	return s.db.Create(&records).Error
}

// PurgePriceHistoryBefore deletes quotes older than cutoff. Housekeeping only;
// engine correctness never depends on this.
func (s *Storage) PurgePriceHistoryBefore(cutoff time.Time) (int64, error) {
	result := s.db.Where("timestamp < ?", cutoff).Delete(&domain.PriceHistory{})
	return result.RowsAffected, result.Error
}

// ======================================================================================
// Idempotency Operations
// ======================================================================================

// GetIdempotencyRecord retrieves the record for (key, user). Returns nil, nil
// on a miss.
func (s *Storage) GetIdempotencyRecord(key string, userID uint) (*domain.IdempotencyRecord, error) {
	var rec domain.IdempotencyRecord
	err := s.db.First(&rec, "idempotency_key = ? AND user_id = ?", key, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// InsertIdempotencyRecord inserts the record. The (key, user) uniqueness
// constraint is the authoritative dedup guard: a concurrent duplicate makes
// this return domain.ErrDuplicateKey, and the caller must replay the winner's
// outcome instead of treating the trade as its own.
func (s *Storage) InsertIdempotencyRecord(rec *domain.IdempotencyRecord) error {
	if err := s.db.Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateKey
		}
		return err
	}
	return nil
}

// PurgeExpiredIdempotency deletes records whose TTL passed before now.
func (s *Storage) PurgeExpiredIdempotency(now time.Time) (int64, error) {
	result := s.db.Where("expires_at < ?", now).Delete(&domain.IdempotencyRecord{})
	return result.RowsAffected, result.Error
}

// ======================================================================================
// Trade Operations
// ======================================================================================

// SaveTrade inserts a terminal trade record. Persisted trades are immutable;
// there is no update path.
func (s *Storage) SaveTrade(trade *domain.Trade) error {
	return s.db.Create(trade).Error
}

// GetTrade retrieves a trade by ID. Returns nil, nil when absent.
func (s *Storage) GetTrade(id uint) (*domain.Trade, error) {
	var trade domain.Trade
	err := s.db.First(&trade, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &trade, nil
}

// ListUserTrades retrieves one page of a user's trades, newest first, along
// with the total count.
func (s *Storage) ListUserTrades(userID uint, limit, offset int) ([]domain.Trade, int64, error) {
	var total int64
	if err := s.db.Model(&domain.Trade{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var trades []domain.Trade
	err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&trades).Error
	return trades, total, err
}
