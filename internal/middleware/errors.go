package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AgusMolinaCode/bitlab/internal/logger"
	"github.com/AgusMolinaCode/bitlab/internal/portfolio"
	"github.com/AgusMolinaCode/bitlab/internal/repository"
	"github.com/AgusMolinaCode/bitlab/internal/services"
)

// statusClientClosedRequest is nginx's code for a request the client gave up on.
const statusClientClosedRequest = 499

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, portfolio.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, portfolio.ErrInsufficientQuantity):
		return http.StatusUnprocessableEntity
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, repository.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrAborted), errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	case errors.Is(err, repository.ErrStoreUnavailable), errors.Is(err, services.ErrPriceFeed),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error": msg}. Server side failures are
// logged and their details kept out of the response.
func respondError(c *gin.Context, err error, msg string) {
	status := statusOf(err)
	log := logger.FromContext(c.Request.Context())

	switch {
	case status == statusClientClosedRequest:
		log.Warn("request aborted", "error", err)
		c.AbortWithStatus(status)
		return
	case status >= http.StatusInternalServerError:
		log.Error(msg, "error", err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
