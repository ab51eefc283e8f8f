package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AgusMolinaCode/bitlab/internal/models"
	"github.com/AgusMolinaCode/bitlab/internal/repository"
)

// CreateTransaction records a buy or a sell. Sells that exceed the held
// quantity are rejected with 422 and nothing is stored.
func (h *Handler) CreateTransaction(c *gin.Context) {
	var req models.CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tx := &models.Transaction{
		UserID:      c.GetString("userId"),
		CoinID:      req.CoinID,
		Kind:        req.Kind,
		Amount:      req.Amount,
		PriceAtDate: req.PriceAtDate,
		PriceAtSale: req.PriceAtSale,
		Note:        req.Note,
	}
	if err := h.txs.Create(c.Request.Context(), tx); err != nil {
		respondError(c, err, "failed to create transaction")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "transaction created", "transaction": tx})
}

// ListTransactions returns the history newest first. Query parameters:
// from and to (RFC3339 or YYYY-MM-DD), period=month for the current
// calendar month, coin_id and limit.
func (h *Handler) ListTransactions(c *gin.Context) {
	rng, err := parseRange(c, time.Now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	txs, err := h.txs.List(c.Request.Context(), c.GetString("userId"), rng)
	if err != nil {
		respondError(c, err, "failed to list transactions")
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

func parseRange(c *gin.Context, now time.Time) (repository.Range, error) {
	rng := repository.Range{CoinID: c.Query("coin_id")}

	if c.Query("period") == "month" {
		now = now.UTC()
		rng.From = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		rng.To = rng.From.AddDate(0, 1, 0)
	}
	for key, dst := range map[string]*time.Time{"from": &rng.From, "to": &rng.To} {
		v := c.Query(key)
		if v == "" {
			continue
		}
		t, err := parseTime(v)
		if err != nil {
			return rng, fmt.Errorf("invalid %s: %q", key, v)
		}
		*dst = t
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return rng, fmt.Errorf("invalid limit: %q", v)
		}
		rng.Limit = n
	}
	return rng, nil
}

func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, v)
}

func (h *Handler) GetTransactionDetails(c *gin.Context) {
	details, err := h.portfolio.TransactionDetails(c.Request.Context(), c.GetString("userId"), c.Param("id"))
	if err != nil {
		respondError(c, err, "failed to get transaction")
		return
	}
	c.JSON(http.StatusOK, details)
}

// DeleteTransaction removes a transaction and reverses its effect on the
// coin's stats. It is refused with 422 when a later sell would no longer be
// covered.
func (h *Handler) DeleteTransaction(c *gin.Context) {
	if err := h.txs.Delete(c.Request.Context(), c.GetString("userId"), c.Param("id")); err != nil {
		respondError(c, err, "failed to delete transaction")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "transaction deleted"})
}

// RebuildStats recomputes a coin's stats from its transaction log.
func (h *Handler) RebuildStats(c *gin.Context) {
	res, err := h.txs.Rebuild(c.Request.Context(), c.GetString("userId"), c.Param("coinId"))
	if err != nil {
		respondError(c, err, "failed to rebuild stats")
		return
	}
	c.JSON(http.StatusOK, res)
}
