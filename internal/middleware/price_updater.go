package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AgusMolinaCode/bitlab/internal/services"
)

// SyncPrices refreshes the user's coin prices from the feed. A partial feed
// failure still answers 200 with a warning: the coins it could not price
// keep their last known price.
func (h *Handler) SyncPrices(c *gin.Context) {
	updated, err := h.portfolio.SyncPrices(c.Request.Context(), c.GetString("userId"))
	if err != nil && !errors.Is(err, services.ErrPriceFeed) {
		respondError(c, err, "failed to sync prices")
		return
	}

	resp := gin.H{"message": "prices synced", "updated": updated, "currency": h.portfolio.Currency()}
	if err != nil {
		resp["warning"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// PriceStatus reports the state of the background price updater.
func (h *Handler) PriceStatus(c *gin.Context) {
	if h.updater == nil {
		c.JSON(http.StatusOK, gin.H{"running": false})
		return
	}
	resp := gin.H{
		"running":      h.updater.IsRunning(),
		"last_updated": h.updater.GetLastUpdated(),
	}
	if err := h.updater.LastError(); err != nil {
		resp["last_error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}
