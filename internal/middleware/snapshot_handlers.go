package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetHistory returns the daily portfolio snapshots of ?period= (24h, 7d,
// 30d, 90d, 1y or all; 7d by default) ready for charting.
func (h *Handler) GetHistory(c *gin.Context) {
	period := c.DefaultQuery("period", "7d")
	chart, snaps, err := h.portfolio.History(c.Request.Context(), c.GetString("userId"), period)
	if err != nil {
		respondError(c, err, "failed to load history")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"period":    period,
		"chart":     chart,
		"snapshots": snaps,
	})
}

// TakeSnapshot records today's valuation now instead of waiting for the
// next price sync.
func (h *Handler) TakeSnapshot(c *gin.Context) {
	if err := h.portfolio.Snapshot(c.Request.Context(), c.GetString("userId")); err != nil {
		respondError(c, err, "failed to save snapshot")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "snapshot saved"})
}
