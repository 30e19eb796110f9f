package service

import (
	"errors"
	"testing"
	"time"

	"crypto_trade/internal/domain"

	"github.com/shopspring/decimal"
)

func TestFingerprintStability(t *testing.T) {
	a := Fingerprint("BTCUSDT", "BUY", decimal.RequireFromString("0.01"))
	b := Fingerprint("BTCUSDT", "BUY", decimal.RequireFromString("0.01"))
	if a != b {
		t.Error("identical requests must fingerprint identically")
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}

	if a == Fingerprint("BTCUSDT", "SELL", decimal.RequireFromString("0.01")) {
		t.Error("different side must change the fingerprint")
	}
	if a == Fingerprint("BTCUSDT", "BUY", decimal.RequireFromString("0.02")) {
		t.Error("different quantity must change the fingerprint")
	}
}

func TestResolveMissReturnsNil(t *testing.T) {
	store := newTestStore(t)
	r := NewIdempotencyResolver(store)

	trade, err := r.Resolve(1, "unseen-key", "fp")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if trade != nil {
		t.Error("expected nil trade for unseen key")
	}
}

func TestResolveEmptyKeyIsNoop(t *testing.T) {
	store := newTestStore(t)
	r := NewIdempotencyResolver(store)

	trade, err := r.Resolve(1, "", "")
	if trade != nil || err != nil {
		t.Errorf("empty key must be a no-op, got %v, %v", trade, err)
	}
}

func TestRecordThenResolveReplays(t *testing.T) {
	store := newTestStore(t)
	r := NewIdempotencyResolver(store)

	orig := &domain.Trade{UserID: 1, Pair: "BTCUSDT", Side: domain.SideBuy, Quantity: decimal.NewFromInt(1), Status: domain.StatusCompleted}
	if err := store.SaveTrade(orig); err != nil {
		t.Fatalf("SaveTrade failed: %v", err)
	}

	fp := Fingerprint("BTCUSDT", "BUY", decimal.NewFromInt(1))
	if winner, err := r.Record(1, "key-1", fp, orig.ID); err != nil || winner != nil {
		t.Fatalf("Record failed: %v, %v", winner, err)
	}

	replayed, err := r.Resolve(1, "key-1", fp)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if replayed == nil || replayed.ID != orig.ID {
		t.Errorf("expected replay of trade %d, got %+v", orig.ID, replayed)
	}
}

func TestResolveFingerprintMismatch(t *testing.T) {
	store := newTestStore(t)
	r := NewIdempotencyResolver(store)

	fp := Fingerprint("BTCUSDT", "BUY", decimal.NewFromInt(1))
	if _, err := r.Record(1, "key-1", fp, 1); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	other := Fingerprint("ETHUSDT", "SELL", decimal.NewFromInt(2))
	_, err := r.Resolve(1, "key-1", other)
	var dup *domain.DuplicateRequestError
	if !errors.As(err, &dup) {
		t.Errorf("expected DuplicateRequestError, got %v", err)
	}
}

func TestResolveExpiredKey(t *testing.T) {
	store := newTestStore(t)
	r := NewIdempotencyResolver(store)

	rec := &domain.IdempotencyRecord{
		Key:         "stale",
		UserID:      1,
		Fingerprint: "fp",
		TradeID:     1,
		ExpiresAt:   time.Now().Add(-time.Minute),
	}
	if err := store.InsertIdempotencyRecord(rec); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	_, err := r.Resolve(1, "stale", "fp")
	var dup *domain.DuplicateRequestError
	if !errors.As(err, &dup) {
		t.Errorf("expected DuplicateRequestError for expired key, got %v", err)
	}
}

// Keys are scoped per user: the same key string used by two users refers to
// two independent records.
func TestKeysScopedPerUser(t *testing.T) {
	store := newTestStore(t)
	r := NewIdempotencyResolver(store)

	fp := Fingerprint("BTCUSDT", "BUY", decimal.NewFromInt(1))
	if _, err := r.Record(1, "shared", fp, 1); err != nil {
		t.Fatalf("Record for user 1 failed: %v", err)
	}

	trade, err := r.Resolve(2, "shared", fp)
	if err != nil {
		t.Fatalf("Resolve for user 2 failed: %v", err)
	}
	if trade != nil {
		t.Error("user 2 must not see user 1's record")
	}
}

// Losing the insert race replays the winner's trade when the fingerprints
// match, and rejects the request when they differ.
func TestRecordLosesRace(t *testing.T) {
	store := newTestStore(t)
	r := NewIdempotencyResolver(store)

	winner := &domain.Trade{UserID: 1, Pair: "BTCUSDT", Side: domain.SideBuy, Quantity: decimal.NewFromInt(1), Status: domain.StatusCompleted}
	store.SaveTrade(winner)
	loser := &domain.Trade{UserID: 1, Pair: "BTCUSDT", Side: domain.SideBuy, Quantity: decimal.NewFromInt(1), Status: domain.StatusCompleted}
	store.SaveTrade(loser)

	fp := Fingerprint("BTCUSDT", "BUY", decimal.NewFromInt(1))
	if _, err := r.Record(1, "race", fp, winner.ID); err != nil {
		t.Fatalf("winner Record failed: %v", err)
	}

	replayed, err := r.Record(1, "race", fp, loser.ID)
	if err != nil {
		t.Fatalf("loser Record failed: %v", err)
	}
	if replayed == nil || replayed.ID != winner.ID {
		t.Errorf("loser must surface the winner's trade %d, got %+v", winner.ID, replayed)
	}

	_, err = r.Record(1, "race", "different-fp", loser.ID)
	var dup *domain.DuplicateRequestError
	if !errors.As(err, &dup) {
		t.Errorf("expected DuplicateRequestError on fingerprint mismatch, got %v", err)
	}
}
