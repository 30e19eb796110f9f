package service

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"crypto_trade/internal/domain"
	"crypto_trade/internal/infra/storage"

	"github.com/shopspring/decimal"
)

// idempotencyTTL is the fixed lifetime of a recorded key. An expired key can
// never be resurrected, even when the same key string is reused after purge.
const idempotencyTTL = 24 * time.Hour

// Fingerprint hashes the caller-controlled parts of a trade request:
// pair, side and quantity. Execution price and time are server-determined and
// deliberately excluded, so a retry fingerprints identically no matter how
// the market moved in between.
func Fingerprint(pair string, side string, quantity decimal.Decimal) string {
	content := fmt.Sprintf("%s-%s-%s", pair, side, quantity.String())
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// IdempotencyResolver maps (user, key) to a previously produced trade outcome
// and detects conflicting or expired key reuse.
type IdempotencyResolver struct {
	store *storage.Storage
}

// NewIdempotencyResolver creates a resolver over the durable store.
func NewIdempotencyResolver(store *storage.Storage) *IdempotencyResolver {
	return &IdempotencyResolver{store: store}
}

// Resolve returns the prior trade for (user, key) when one exists and the
// fingerprint matches. A nil trade with nil error means: proceed to execute.
// This pre-check is a fast path only; the authoritative dedup guard is the
// uniqueness constraint enforced by Record.
func (r *IdempotencyResolver) Resolve(userID uint, key, fingerprint string) (*domain.Trade, error) {
	if key == "" {
		return nil, nil
	}

	rec, err := r.store.GetIdempotencyRecord(key, userID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}

	if rec.Expired(time.Now()) {
		slog.Warn("expired idempotency key reused",
			slog.String("key", key), slog.Uint64("user_id", uint64(userID)))
		return nil, &domain.DuplicateRequestError{Reason: "idempotency key has expired"}
	}

	if rec.Fingerprint != fingerprint {
		slog.Warn("idempotency key reused with different request content",
			slog.String("key", key), slog.Uint64("user_id", uint64(userID)))
		return nil, &domain.DuplicateRequestError{Reason: "idempotency key already used with different request content"}
	}

	trade, err := r.store.GetTrade(rec.TradeID)
	if err != nil {
		return nil, err
	}
	// A record without a surviving trade row cannot be replayed; execute anew.
	return trade, nil
}

// Record persists the outcome for (user, key). On a uniqueness-constraint
// violation a concurrent duplicate request inserted first; the caller lost
// the race and must present the winner's trade as the request's outcome.
// The returned trade is non-nil exactly in that replay case.
func (r *IdempotencyResolver) Record(userID uint, key, fingerprint string, tradeID uint) (*domain.Trade, error) {
	if key == "" {
		return nil, nil
	}

	now := time.Now()
	rec := &domain.IdempotencyRecord{
		Key:         key,
		UserID:      userID,
		Fingerprint: fingerprint,
		TradeID:     tradeID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(idempotencyTTL),
	}

	err := r.store.InsertIdempotencyRecord(rec)
	if err == nil {
		return nil, nil
	}
	if !errors.Is(err, domain.ErrDuplicateKey) {
		return nil, err
	}

	winner, err := r.store.GetIdempotencyRecord(key, userID)
	if err != nil {
		return nil, err
	}
	if winner == nil {
		// Inserted row vanished between the conflict and the re-read; treat
		// our own outcome as authoritative.
		return nil, nil
	}
	if winner.Fingerprint != fingerprint {
		return nil, &domain.DuplicateRequestError{Reason: "idempotency key already used with different request content"}
	}

	slog.Info("lost idempotency insert race, replaying winner's outcome",
		slog.String("key", key), slog.Uint64("user_id", uint64(userID)))
	return r.store.GetTrade(winner.TradeID)
}
