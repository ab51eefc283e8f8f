package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AgusMolinaCode/bitlab/internal/models"
)

func (h *Handler) ListCoins(c *gin.Context) {
	coins, err := h.coins.List(c.Request.Context(), c.GetString("userId"))
	if err != nil {
		respondError(c, err, "failed to list coins")
		return
	}
	c.JSON(http.StatusOK, gin.H{"coins": coins})
}

func (h *Handler) CreateCoin(c *gin.Context) {
	var req models.CreateCoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	coin := &models.Coin{
		UserID:        c.GetString("userId"),
		Symbol:        req.Symbol,
		Name:          req.Name,
		CoinGeckoID:   req.CoinGeckoID,
		WalletAddress: req.WalletAddress,
		CurrentPrice:  req.CurrentPrice,
	}
	if err := h.coins.Create(c.Request.Context(), coin); err != nil {
		respondError(c, err, "failed to create coin")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "coin created", "coin": coin})
}

// DeleteCoin removes the coin together with its transactions and stats.
func (h *Handler) DeleteCoin(c *gin.Context) {
	if err := h.coins.Delete(c.Request.Context(), c.GetString("userId"), c.Param("id")); err != nil {
		respondError(c, err, "failed to delete coin")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "coin deleted"})
}
