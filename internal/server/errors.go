package server

import (
	"errors"
	"log/slog"
	"net/http"

	"crypto_trade/internal/domain"

	"github.com/gin-gonic/gin"
)

// statusFor maps domain errors onto HTTP statuses. Unrecognized errors
// surface as 500.
func statusFor(err error) int {
	var (
		validation *domain.ValidationError
		notFound   *domain.NotFoundError
		balance    *domain.InsufficientBalanceError
		duplicate  *domain.DuplicateRequestError
	)

	switch {
	case errors.As(err, &validation), errors.As(err, &balance):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &duplicate):
		return http.StatusConflict
	case errors.Is(err, domain.ErrPriceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError responds with the mapped status. Internals never leak: a 500
// carries an opaque message and logs the cause.
func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", slog.String("path", c.Request.URL.Path), slog.Any("error", err))
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
