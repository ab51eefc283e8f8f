package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AgusMolinaCode/bitlab/internal/models"
	"github.com/AgusMolinaCode/bitlab/internal/portfolio"
)

func TestTransactionRepository_BuySellAndDeleteSell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "ana@example.com")
	btc := f.coin(t, u.ID, "BTC", "1000000000")

	f.buy(t, u.ID, btc.ID, "0.01", "900000000")
	s := f.stat(t, u.ID, btc.ID)
	requireDecimal(t, "0.01", s.TotalQty)
	requireDecimal(t, "9000000", s.TotalCost)
	requireDecimal(t, "900000000", s.AvgBuyPrice)

	sell := f.sell(t, u.ID, btc.ID, "0.005", "1000000000")
	requireDecimal(t, "500000", sell.RealizedPnl)
	require.True(t, sell.AvgCostAtSale.Valid)
	requireDecimal(t, "900000000", sell.AvgCostAtSale.Decimal)

	s = f.stat(t, u.ID, btc.ID)
	requireDecimal(t, "0.005", s.TotalQty)
	requireDecimal(t, "4500000", s.TotalCost)

	stored, err := f.txs.Get(ctx, u.ID, sell.ID)
	require.NoError(t, err)
	requireDecimal(t, "500000", stored.RealizedPnl)
	assert.Equal(t, "BTC", stored.Symbol)

	require.NoError(t, f.txs.Delete(ctx, u.ID, sell.ID))
	s = f.stat(t, u.ID, btc.ID)
	requireDecimal(t, "0.01", s.TotalQty)
	requireDecimal(t, "9000000", s.TotalCost)

	_, err = f.txs.Get(ctx, u.ID, sell.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransactionRepository_InsufficientSellIsNotRecorded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "ana@example.com")
	btc := f.coin(t, u.ID, "BTC", "100")
	f.buy(t, u.ID, btc.ID, "1", "100")

	err := f.txs.Create(ctx, &models.Transaction{
		UserID:      u.ID,
		CoinID:      btc.ID,
		Kind:        "sell",
		Amount:      decimal.RequireFromString("1.5"),
		PriceAtDate: decimal.RequireFromString("120"),
	})
	require.ErrorIs(t, err, portfolio.ErrInsufficientQuantity)

	all, err := f.txs.Log(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	requireDecimal(t, "1", f.stat(t, u.ID, btc.ID).TotalQty)

	// selling exactly what is held is fine
	f.sell(t, u.ID, btc.ID, "1", "120")
	requireDecimal(t, "0", f.stat(t, u.ID, btc.ID).TotalQty)
}

func TestTransactionRepository_InvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "ana@example.com")
	btc := f.coin(t, u.ID, "BTC", "100")

	testCases := []struct {
		name string
		tx   models.Transaction
	}{
		{"zero amount", models.Transaction{Kind: "buy", Amount: decimal.Zero, PriceAtDate: decimal.NewFromInt(1)}},
		{"negative price", models.Transaction{Kind: "buy", Amount: decimal.NewFromInt(1), PriceAtDate: decimal.NewFromInt(-1)}},
		{"unknown kind", models.Transaction{Kind: "swap", Amount: decimal.NewFromInt(1), PriceAtDate: decimal.NewFromInt(1)}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tx := tc.tx
			tx.UserID, tx.CoinID = u.ID, btc.ID
			assert.ErrorIs(t, f.txs.Create(ctx, &tx), portfolio.ErrInvalidInput)
		})
	}
}

func TestTransactionRepository_OtherUsersCoin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "owner@example.com")
	other := f.user(t, "other@example.com")
	btc := f.coin(t, owner.ID, "BTC", "100")
	buy := f.buy(t, owner.ID, btc.ID, "1", "100")

	err := f.txs.Create(ctx, &models.Transaction{
		UserID: other.ID, CoinID: btc.ID, Kind: "buy",
		Amount: decimal.NewFromInt(1), PriceAtDate: decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, f.txs.Delete(ctx, other.ID, buy.ID), ErrForbidden)
}

func TestTransactionRepository_DeleteOlderBuyReplaysLaterSells(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "ana@example.com")
	eth := f.coin(t, u.ID, "ETH", "300")

	first := f.buy(t, u.ID, eth.ID, "1", "100")
	f.buy(t, u.ID, eth.ID, "1", "200")
	sell := f.sell(t, u.ID, eth.ID, "1", "300")
	requireDecimal(t, "150", sell.RealizedPnl)

	require.NoError(t, f.txs.Delete(ctx, u.ID, first.ID))

	s := f.stat(t, u.ID, eth.ID)
	requireDecimal(t, "0", s.TotalQty)
	requireDecimal(t, "0", s.TotalCost)

	updated, err := f.txs.Get(ctx, u.ID, sell.ID)
	require.NoError(t, err)
	requireDecimal(t, "100", updated.RealizedPnl)
	requireDecimal(t, "200", updated.AvgCostAtSale.Decimal)
}

func TestTransactionRepository_DeleteBuyNeededByLaterSellIsRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "ana@example.com")
	eth := f.coin(t, u.ID, "ETH", "300")

	first := f.buy(t, u.ID, eth.ID, "1", "100")
	f.sell(t, u.ID, eth.ID, "1", "150")
	f.buy(t, u.ID, eth.ID, "1", "120")

	err := f.txs.Delete(ctx, u.ID, first.ID)
	require.ErrorIs(t, err, portfolio.ErrInsufficientQuantity)

	_, err = f.txs.Get(ctx, u.ID, first.ID)
	require.NoError(t, err, "refused delete must roll back")
	requireDecimal(t, "1", f.stat(t, u.ID, eth.ID).TotalQty)
}

func TestTransactionRepository_RebuildDetectsDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "ana@example.com")
	sol := f.coin(t, u.ID, "SOL", "20")

	f.buy(t, u.ID, sol.ID, "3", "10")
	f.buy(t, u.ID, sol.ID, "7", "13.37")
	f.sell(t, u.ID, sol.ID, "4.2", "20")
	want := f.stat(t, u.ID, sol.ID)

	res, err := f.txs.Rebuild(ctx, u.ID, sol.ID)
	require.NoError(t, err)
	assert.False(t, res.Drifted, "incremental updates and replay must agree")

	_, err = f.db.Exec(`UPDATE asset_stats SET total_qty = '99', total_cost = '1' WHERE coin_id = $1`, sol.ID)
	require.NoError(t, err)

	res, err = f.txs.Rebuild(ctx, u.ID, sol.ID)
	require.NoError(t, err)
	assert.True(t, res.Drifted)
	requireDecimal(t, "99", res.Before.TotalQty)

	got := f.stat(t, u.ID, sol.ID)
	assert.True(t, want.TotalQty.Equal(got.TotalQty))
	assert.True(t, want.TotalCost.Equal(got.TotalCost))
}

func TestTransactionRepository_ListRangeAndLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "ana@example.com")
	btc := f.coin(t, u.ID, "BTC", "100")
	eth := f.coin(t, u.ID, "ETH", "10")

	f.buy(t, u.ID, btc.ID, "1", "100")
	f.buy(t, u.ID, eth.ID, "2", "10")
	last := f.buy(t, u.ID, btc.ID, "0.5", "110")

	all, err := f.txs.List(ctx, u.ID, Range{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, last.ID, all[0].ID, "newest first")

	one, err := f.txs.List(ctx, u.ID, Range{Limit: 1})
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, last.ID, one[0].ID)

	onlyETH, err := f.txs.List(ctx, u.ID, Range{CoinID: eth.ID})
	require.NoError(t, err)
	require.Len(t, onlyETH, 1)
	assert.Equal(t, "ETH", onlyETH[0].Symbol)

	future, err := f.txs.List(ctx, u.ID, Range{From: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, future)

	window, err := f.txs.List(ctx, u.ID, Range{From: time.Now().Add(-time.Hour), To: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	assert.Len(t, window, 3)
}

func TestTransactionRepository_PublishesChanges(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "ana@example.com")
	btc := f.coin(t, u.ID, "BTC", "100")
	f.buy(t, u.ID, btc.ID, "1", "100")

	assert.Equal(t, []string{
		models.CollectionUsers,
		models.CollectionCoins,
		models.CollectionTransactions,
		models.CollectionStats,
	}, f.notifier.collections())
}

func TestTransactionRepository_ConcurrentSellsOnlyOneCovered(t *testing.T) {
	concurrentSells(t, newFixture(t))
}

func TestTransactionRepository_ConcurrentSellsOnlyOneCovered_Postgres(t *testing.T) {
	concurrentSells(t, newPostgresFixture(t))
}

func concurrentSells(t *testing.T, f *fixture) {
	ctx := context.Background()
	u := f.user(t, uuid.NewString()+"@example.com")
	t.Cleanup(func() { _ = f.users.DeleteUser(context.Background(), u.ID) })
	coin := f.coin(t, u.ID, "BTC", "100")
	buy := f.buy(t, u.ID, coin.ID, "1", "100")

	const sellers = 8
	errs := make(chan error, sellers)
	var wg sync.WaitGroup
	for i := 0; i < sellers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.txs.Create(ctx, &models.Transaction{
				UserID:      u.ID,
				CoinID:      coin.ID,
				Kind:        "sell",
				Amount:      decimal.NewFromInt(1),
				PriceAtDate: decimal.NewFromInt(120),
			})
		}()
	}
	wg.Wait()
	close(errs)

	recorded := 0
	for err := range errs {
		if err == nil {
			recorded++
			continue
		}
		assert.ErrorIs(t, err, portfolio.ErrInsufficientQuantity)
	}
	assert.Equal(t, 1, recorded, "exactly one sell is covered")
	requireDecimal(t, "0", f.stat(t, u.ID, coin.ID).TotalQty)

	log, err := f.txs.Log(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, log, 2)

	res, err := f.txs.Rebuild(ctx, u.ID, coin.ID)
	require.NoError(t, err, "the log must still replay")
	assert.False(t, res.Drifted)

	// the buy is no longer the latest and the sell depends on it
	assert.ErrorIs(t, f.txs.Delete(ctx, u.ID, buy.ID), portfolio.ErrInsufficientQuantity)
}

func TestTransactionRepository_DeleteClosingSellRestoresExactCost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "erin@example.com")
	eth := f.coin(t, u.ID, "ETH", "5")
	f.buy(t, u.ID, eth.ID, "1", "1")
	f.buy(t, u.ID, eth.ID, "1", "2")
	f.buy(t, u.ID, eth.ID, "1", "4")

	sell := f.sell(t, u.ID, eth.ID, "3", "5")
	require.True(t, sell.CostAtSale.Valid)
	requireDecimal(t, "7", sell.CostAtSale.Decimal)

	stat := f.stat(t, u.ID, eth.ID)
	requireDecimal(t, "0", stat.TotalQty)
	requireDecimal(t, "0", stat.TotalCost)

	require.NoError(t, f.txs.Delete(ctx, u.ID, sell.ID))
	stat = f.stat(t, u.ID, eth.ID)
	requireDecimal(t, "3", stat.TotalQty)
	requireDecimal(t, "7", stat.TotalCost)

	res, err := f.txs.Rebuild(ctx, u.ID, eth.ID)
	require.NoError(t, err)
	assert.False(t, res.Drifted)
}

func TestTransactionRepository_DeleteTwiceIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "finn@example.com")
	btc := f.coin(t, u.ID, "BTC", "100")
	tx := f.buy(t, u.ID, btc.ID, "1", "100")

	require.NoError(t, f.txs.Delete(ctx, u.ID, tx.ID))
	assert.ErrorIs(t, f.txs.Delete(ctx, u.ID, tx.ID), ErrNotFound)
	requireDecimal(t, "0", f.stat(t, u.ID, btc.ID).TotalQty)
}
