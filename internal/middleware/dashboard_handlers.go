package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/AgusMolinaCode/bitlab/internal/models"
	"github.com/AgusMolinaCode/bitlab/internal/portfolio"
)

// GetDashboard values the user's holdings at the stored coin prices.
func (h *Handler) GetDashboard(c *gin.Context) {
	d, err := h.portfolio.Dashboard(c.Request.Context(), c.GetString("userId"))
	if err != nil {
		respondError(c, err, "failed to compute dashboard")
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) GetRealized(c *gin.Context) {
	view, err := h.portfolio.Realized(c.Request.Context(), c.GetString("userId"))
	if err != nil {
		respondError(c, err, "failed to compute realized profit")
		return
	}
	c.JSON(http.StatusOK, view)
}

// GetStats lists the stored per coin aggregates; ?held=true drops coins
// no longer held.
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.stats.List(c.Request.Context(), c.GetString("userId"), c.Query("held") == "true")
	if err != nil {
		respondError(c, err, "failed to list stats")
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// GetRebalance plans trades toward the stored targets. ?injection= adds
// (or, when negative, withdraws) cash before planning.
func (h *Handler) GetRebalance(c *gin.Context) {
	injection := decimal.Zero
	if v := c.Query("injection"); v != "" {
		d, err := portfolio.ParseDecimal(v)
		if err != nil {
			respondError(c, err, "invalid injection")
			return
		}
		injection = d
	}

	view, err := h.portfolio.Rebalance(c.Request.Context(), c.GetString("userId"), injection)
	if err != nil {
		respondError(c, err, "failed to compute rebalance")
		return
	}
	c.JSON(http.StatusOK, view)
}

// SetTarget stores the target allocation of a coin, 0 to 100.
func (h *Handler) SetTarget(c *gin.Context) {
	var req models.SetTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.stats.SetTarget(c.Request.Context(), c.GetString("userId"), c.Param("coinId"), req.TargetPct); err != nil {
		respondError(c, err, "failed to set target")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "target updated", "coin_id": c.Param("coinId"), "target_pct": req.TargetPct})
}
