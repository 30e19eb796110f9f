package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is an account holder. New users receive seeded wallets.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"size:50;uniqueIndex;not null" json:"username"`
	Email     string    `gorm:"size:100;uniqueIndex;not null" json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Wallet holds one user's balance in one currency. Unique per (user, currency),
// never deleted. Balance must stay non-negative; it is mutated only through the
// ledger's locked credit/debit paths.
type Wallet struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	UserID    uint            `gorm:"uniqueIndex:idx_wallet_user_currency;index;not null" json:"user_id"`
	Currency  Currency        `gorm:"size:10;uniqueIndex:idx_wallet_user_currency;not null" json:"currency"`
	Balance   decimal.Decimal `gorm:"type:decimal(18,8);not null" json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// BestPrice is the aggregated best bid/ask for one pair. One row per pair,
// created on the first admitted quote, updated under an optimistic version
// check, never deleted. A side is null until some provider has quoted it.
type BestPrice struct {
	ID        uint                `gorm:"primaryKey" json:"id"`
	Pair      string              `gorm:"size:20;uniqueIndex;not null" json:"pair"`
	BestBid   decimal.NullDecimal `gorm:"type:decimal(18,8)" json:"best_bid"`
	BestAsk   decimal.NullDecimal `gorm:"type:decimal(18,8)" json:"best_ask"`
	BidSource PriceSource         `gorm:"size:20" json:"bid_source"`
	AskSource PriceSource         `gorm:"size:20" json:"ask_source"`
	Version   int64               `gorm:"not null" json:"version"`
	UpdatedAt time.Time           `gorm:"index" json:"updated_at"`
}

// ExecutionPrice returns the side-appropriate price: ask for BUY, bid for SELL.
// Returns ErrPriceUnavailable when the side is missing or non-positive.
func (bp *BestPrice) ExecutionPrice(side TradeSide) (decimal.Decimal, error) {
	var px decimal.NullDecimal
	if side == SideBuy {
		px = bp.BestAsk
	} else {
		px = bp.BestBid
	}
	if !px.Valid || !px.Decimal.IsPositive() {
		return decimal.Zero, ErrPriceUnavailable
	}
	return px.Decimal, nil
}

// PriceHistory is one admitted per-provider quote. Append-only; purged only by
// the maintenance sweep.
type PriceHistory struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	Pair      string          `gorm:"size:20;index:idx_history_pair_ts;not null" json:"pair"`
	Source    PriceSource     `gorm:"size:20;not null" json:"source"`
	Bid       decimal.Decimal `gorm:"type:decimal(18,8)" json:"bid"`
	Ask       decimal.Decimal `gorm:"type:decimal(18,8)" json:"ask"`
	Timestamp time.Time       `gorm:"index:idx_history_pair_ts;index;not null" json:"timestamp"`
}

// IdempotencyRecord maps a (key, user) pair to the trade it produced. Inserted
// at most once; the composite uniqueness constraint is the authoritative
// dedup guard. Rows are never updated, only purged after expiry.
type IdempotencyRecord struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Key         string    `gorm:"column:idempotency_key;size:64;uniqueIndex:idx_idem_key_user;not null" json:"idempotency_key"`
	UserID      uint      `gorm:"uniqueIndex:idx_idem_key_user;not null" json:"user_id"`
	Fingerprint string    `gorm:"size:64;not null" json:"fingerprint"`
	TradeID     uint      `json:"trade_id"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `gorm:"index;not null" json:"expires_at"`
}

// Expired reports whether the record's TTL has passed.
func (r *IdempotencyRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// TradeSide is the direction of a trade.
type TradeSide string

const (
	SideBuy  TradeSide = "BUY"
	SideSell TradeSide = "SELL"
)

// SideFromString validates and normalizes a trade side.
func SideFromString(s string) (TradeSide, error) {
	switch TradeSide(s) {
	case SideBuy, SideSell:
		return TradeSide(s), nil
	default:
		return "", &ValidationError{Msg: "side must be BUY or SELL"}
	}
}

// TradeStatus is the lifecycle state. PENDING exists only in memory during
// execution; every persisted trade is terminal and immutable.
type TradeStatus string

const (
	StatusPending   TradeStatus = "PENDING"
	StatusCompleted TradeStatus = "COMPLETED"
	StatusFailed    TradeStatus = "FAILED"
)

// Terminal reports whether the status is final.
func (s TradeStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Trade is one settlement attempt, successful or not.
type Trade struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	UserID        uint            `gorm:"index:idx_trade_user_created;not null" json:"user_id"`
	Pair          string          `gorm:"size:20;index;not null" json:"pair"`
	Side          TradeSide       `gorm:"size:4;not null" json:"side"`
	Quantity      decimal.Decimal `gorm:"type:decimal(18,8);not null" json:"quantity"`
	Price         decimal.Decimal `gorm:"type:decimal(18,8);not null" json:"price"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(18,8);not null" json:"total_amount"`
	Status        TradeStatus     `gorm:"size:10;index;not null" json:"status"`
	CreatedAt     time.Time       `gorm:"index:idx_trade_user_created;index" json:"created_at"`
	ExecutedAt    *time.Time      `json:"executed_at,omitempty"`
	FailureReason string          `gorm:"size:500" json:"failure_reason,omitempty"`
}

// NewTrade builds an in-memory PENDING trade for one execution attempt.
func NewTrade(userID uint, pair TradingPair, side TradeSide, quantity, price decimal.Decimal) *Trade {
	return &Trade{
		UserID:      userID,
		Pair:        pair.Symbol,
		Side:        side,
		Quantity:    quantity,
		Price:       price,
		TotalAmount: quantity.Mul(price).Round(BalanceScale),
		Status:      StatusPending,
	}
}

// MarkCompleted transitions the trade to its successful terminal state.
func (t *Trade) MarkCompleted(now time.Time) {
	t.Status = StatusCompleted
	t.ExecutedAt = &now
}

// MarkFailed transitions the trade to its failed terminal state with a
// human-readable reason.
func (t *Trade) MarkFailed(now time.Time, reason string) {
	t.Status = StatusFailed
	t.FailureReason = reason
	t.ExecutedAt = &now
}
