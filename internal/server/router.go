package server

import (
	"github.com/gin-gonic/gin"
)

// Handlers groups everything the router needs.
type Handlers struct {
	Trades  *TradeHandler
	Prices  *PriceHandler
	Wallets *WalletHandler
	Users   *UserHandler
	Health  *HealthHandler
}

// NewRouter builds the HTTP surface. Trade and wallet routes identify the
// caller via the X-User-Id header.
func NewRouter(h *Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	api := router.Group("/api/v1")
	{
		api.POST("/trades", h.Trades.Execute)
		api.GET("/trades", h.Trades.History)

		api.GET("/prices", h.Prices.List)
		api.GET("/prices/:pair", h.Prices.Get)

		api.GET("/wallets", h.Wallets.List)
		api.GET("/wallets/:currency", h.Wallets.Get)

		api.POST("/users", h.Users.Register)
		api.GET("/users/:id", h.Users.Get)

		api.GET("/health", h.Health.Check)
	}

	return router
}
