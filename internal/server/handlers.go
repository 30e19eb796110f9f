package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"crypto_trade/internal/domain"
	"crypto_trade/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// =====================================================================
// Trades
// =====================================================================

type TradeHandler struct {
	trades *service.TradeService
}

func NewTradeHandler(trades *service.TradeService) *TradeHandler {
	return &TradeHandler{trades: trades}
}

type tradeRequest struct {
	Pair     string `json:"pair" binding:"required"`
	Side     string `json:"side" binding:"required"`
	Quantity string `json:"quantity" binding:"required"`
}

func (h *TradeHandler) Execute(c *gin.Context) {
	userID, err := callerID(c)
	if err != nil {
		writeError(c, err)
		return
	}

	var body tradeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, &domain.ValidationError{Msg: "pair, side and quantity are required"})
		return
	}

	quantity, err := decimal.NewFromString(body.Quantity)
	if err != nil {
		writeError(c, &domain.ValidationError{Msg: "quantity must be a decimal number"})
		return
	}

	trade, err := h.trades.Execute(userID, service.TradeRequest{
		Pair:           body.Pair,
		Side:           body.Side,
		Quantity:       quantity,
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
	})
	if err != nil {
		if trade != nil {
			// Terminal failure with an audit record: surface both.
			c.JSON(statusFor(err), gin.H{"error": err.Error(), "trade": trade})
			return
		}
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, trade)
}

func (h *TradeHandler) History(c *gin.Context) {
	userID, err := callerID(c)
	if err != nil {
		writeError(c, err)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "0"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	trades, total, err := h.trades.History(userID, page, size)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"trades": trades,
		"total":  total,
		"page":   page,
		"size":   size,
	})
}

// =====================================================================
// Prices
// =====================================================================

type PriceHandler struct {
	prices *service.PriceService
}

func NewPriceHandler(prices *service.PriceService) *PriceHandler {
	return &PriceHandler{prices: prices}
}

func (h *PriceHandler) List(c *gin.Context) {
	all, err := h.prices.AllLatestPrices()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, all)
}

func (h *PriceHandler) Get(c *gin.Context) {
	price, err := h.prices.LatestPrice(c.Param("pair"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, price)
}

// =====================================================================
// Wallets
// =====================================================================

type WalletHandler struct {
	ledger *service.Ledger
}

func NewWalletHandler(ledger *service.Ledger) *WalletHandler {
	return &WalletHandler{ledger: ledger}
}

func (h *WalletHandler) List(c *gin.Context) {
	userID, err := callerID(c)
	if err != nil {
		writeError(c, err)
		return
	}

	wallets, err := h.ledger.Balances(userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, wallets)
}

func (h *WalletHandler) Get(c *gin.Context) {
	userID, err := callerID(c)
	if err != nil {
		writeError(c, err)
		return
	}

	info, err := domain.CurrencyFromCode(c.Param("currency"))
	if err != nil {
		writeError(c, err)
		return
	}

	wallet, err := h.ledger.Balance(userID, info.Code)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, wallet)
}

// =====================================================================
// Users
// =====================================================================

type UserHandler struct {
	users *service.UserService
}

func NewUserHandler(users *service.UserService) *UserHandler {
	return &UserHandler{users: users}
}

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
}

func (h *UserHandler) Register(c *gin.Context) {
	var body registerRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, &domain.ValidationError{Msg: "username and email are required"})
		return
	}

	user, err := h.users.Register(body.Username, body.Email)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *UserHandler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		writeError(c, &domain.ValidationError{Msg: "user id must be a positive integer"})
		return
	}

	user, err := h.users.Get(uint(id))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// =====================================================================
// Health
// =====================================================================

type HealthHandler struct {
	providers []domain.PriceProvider
}

func NewHealthHandler(providers []domain.PriceProvider) *HealthHandler {
	return &HealthHandler{providers: providers}
}

// Check reports per-provider connectivity. The service itself is up as long
// as it can answer; degraded providers only affect price freshness.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	providers := make(map[string]bool, len(h.providers))
	for _, p := range h.providers {
		providers[string(p.Source())] = p.Healthy(ctx)
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "UP",
		"providers": providers,
	})
}
