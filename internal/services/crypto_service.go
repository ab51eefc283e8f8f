package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/AgusMolinaCode/bitlab/internal/logger"
	"github.com/AgusMolinaCode/bitlab/internal/models"
	"github.com/AgusMolinaCode/bitlab/internal/portfolio"
	"github.com/AgusMolinaCode/bitlab/internal/repository"
)

// PortfolioService computes the read models of a user from scratch out of
// the store. Every computation reads the full current state, so running one
// twice or out of order gives the same result.
type PortfolioService struct {
	coins    *repository.CoinRepository
	txs      *repository.TransactionRepository
	stats    *repository.StatsRepository
	snaps    *repository.SnapshotRepository
	feed     PriceFeed
	currency string
	now      func() time.Time
}

func NewPortfolioService(
	coins *repository.CoinRepository,
	txs *repository.TransactionRepository,
	stats *repository.StatsRepository,
	snaps *repository.SnapshotRepository,
	feed PriceFeed,
	currency string,
) *PortfolioService {
	return &PortfolioService{
		coins:    coins,
		txs:      txs,
		stats:    stats,
		snaps:    snaps,
		feed:     feed,
		currency: currency,
		now:      time.Now,
	}
}

func (s *PortfolioService) Currency() string { return s.currency }

// checkAborted turns a cancelled context into ErrAborted. err is returned
// unchanged otherwise.
func checkAborted(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %v", ErrAborted, ctxErr)
	}
	return err
}

// Dashboard replays the user's log against current coin prices and projects
// the result.
func (s *PortfolioService) Dashboard(ctx context.Context, userID string) (*models.Dashboard, error) {
	coins, err := s.coins.List(ctx, userID)
	if err != nil {
		return nil, checkAborted(ctx, err)
	}
	log, err := s.txs.Log(ctx, userID)
	if err != nil {
		return nil, checkAborted(ctx, err)
	}

	byID := make(map[string]*models.Coin, len(coins))
	for i := range coins {
		byID[coins[i].ID] = &coins[i]
	}
	entries := make([]portfolio.Entry, 0, len(log))
	for _, t := range log {
		coin, ok := byID[t.CoinID]
		if !ok {
			continue
		}
		entries = append(entries, portfolio.Entry{
			Symbol:      coin.Symbol,
			Kind:        portfolio.Kind(t.Kind),
			Amount:      t.Amount,
			Price:       t.PriceAtDate,
			PriceAtSale: t.PriceAtSale,
			LivePrice:   coin.CurrentPrice,
		})
	}

	book, err := portfolio.Replay(entries)
	if err != nil {
		return nil, fmt.Errorf("replay log of user %s: %w", userID, err)
	}
	if err := checkAborted(ctx, nil); err != nil {
		return nil, err
	}

	valuation := portfolio.Project(book.List())
	return &models.Dashboard{
		Valuation:     valuation,
		Currency:      s.currency,
		TotalRealized: book.Realized(),
		Performance:   performanceOf(valuation.Rows),
		Coins:         coins,
		Display: map[string]string{
			"total_value":    portfolio.FormatMoney(valuation.TotalValue, s.currency),
			"total_cost":     portfolio.FormatMoney(valuation.TotalCost, s.currency),
			"total_pnl":      portfolio.FormatMoney(valuation.TotalPnl, s.currency),
			"total_realized": portfolio.FormatMoney(book.Realized(), s.currency),
		},
		ComputedAt: s.now().UTC(),
	}, nil
}

func performanceOf(rows []portfolio.Row) *models.Performance {
	if len(rows) == 0 {
		return nil
	}
	best, worst := rows[0], rows[0]
	for _, r := range rows[1:] {
		if r.UnrealizedPnlPct.GreaterThan(best.UnrealizedPnlPct) {
			best = r
		}
		if r.UnrealizedPnlPct.LessThan(worst.UnrealizedPnlPct) {
			worst = r
		}
	}
	return &models.Performance{
		TopGainer: models.PerformanceDetail{Symbol: best.Symbol, UnrealizedPct: best.UnrealizedPnlPct, UnrealizedPnl: best.UnrealizedPnl},
		TopLoser:  models.PerformanceDetail{Symbol: worst.Symbol, UnrealizedPct: worst.UnrealizedPnlPct, UnrealizedPnl: worst.UnrealizedPnl},
	}
}

// Rebalance plans buys and sells toward the stored targets after adding
// injection, which may be negative for a withdrawal.
func (s *PortfolioService) Rebalance(ctx context.Context, userID string, injection decimal.Decimal) (*models.RebalanceView, error) {
	coins, err := s.coins.List(ctx, userID)
	if err != nil {
		return nil, checkAborted(ctx, err)
	}
	stats, err := s.stats.List(ctx, userID, false)
	if err != nil {
		return nil, checkAborted(ctx, err)
	}

	prices := make(map[string]decimal.Decimal, len(coins))
	for _, c := range coins {
		prices[c.ID] = c.CurrentPrice
	}

	targets := make([]portfolio.Target, 0, len(stats))
	for _, st := range stats {
		held := st.TotalQty.GreaterThan(portfolio.Epsilon)
		if !held && st.TargetPct.IsZero() {
			continue
		}
		qty := decimal.Zero
		if held {
			qty = st.TotalQty
		}
		live := prices[st.CoinID]
		targets = append(targets, portfolio.Target{
			Symbol:       st.Symbol,
			TargetPct:    st.TargetPct,
			CurrentValue: qty.Mul(live),
			LivePrice:    live,
		})
	}

	if err := checkAborted(ctx, nil); err != nil {
		return nil, err
	}
	return &models.RebalanceView{
		Plan:       portfolio.Recommend(targets, injection),
		Currency:   s.currency,
		ComputedAt: s.now().UTC(),
	}, nil
}

// Realized lists the user's sells with their realized P&L. Sells of coins
// no longer held still count.
func (s *PortfolioService) Realized(ctx context.Context, userID string) (*models.RealizedView, error) {
	log, err := s.txs.Log(ctx, userID)
	if err != nil {
		return nil, checkAborted(ctx, err)
	}
	view := &models.RealizedView{Sales: []models.Transaction{}, Currency: s.currency}
	sales := make([]portfolio.Sale, 0)
	for _, t := range log {
		if t.Kind != string(portfolio.KindSell) {
			continue
		}
		view.Sales = append(view.Sales, t)
		sales = append(sales, portfolio.Sale{Symbol: t.Symbol, Amount: t.Amount, RealizedPnl: t.RealizedPnl})
	}
	view.Total = portfolio.TotalRealized(sales)
	return view, nil
}

// TransactionDetails values one transaction at the coin's current price.
func (s *PortfolioService) TransactionDetails(ctx context.Context, userID, id string) (*models.TransactionDetails, error) {
	tx, err := s.txs.Get(ctx, userID, id)
	if err != nil {
		return nil, checkAborted(ctx, err)
	}
	coin, err := s.coins.Get(ctx, userID, tx.CoinID)
	if err != nil {
		return nil, checkAborted(ctx, err)
	}

	d := &models.TransactionDetails{
		Transaction:  *tx,
		CurrentPrice: coin.CurrentPrice,
		CurrentValue: tx.Amount.Mul(coin.CurrentPrice),
	}
	if tx.Kind == string(portfolio.KindBuy) {
		total := tx.Total()
		d.GainLoss = d.CurrentValue.Sub(total)
		if total.IsPositive() {
			d.GainLossPercent = d.GainLoss.Div(total).Mul(decimal.NewFromInt(100))
		}
	} else {
		d.GainLoss = tx.RealizedPnl
	}
	return d, nil
}

// SyncPrices refreshes the prices of the user's coins. Coins the feed could
// not price keep their last stored price; the feed error is still returned
// so callers can surface it.
func (s *PortfolioService) SyncPrices(ctx context.Context, userID string) (int, error) {
	coins, err := s.coins.List(ctx, userID)
	if err != nil {
		return 0, checkAborted(ctx, err)
	}
	return s.syncCoins(ctx, coins)
}

// SyncAllPrices refreshes every coin of every user in one feed call.
func (s *PortfolioService) SyncAllPrices(ctx context.Context) (int, error) {
	coins, err := s.coins.ListAll(ctx)
	if err != nil {
		return 0, checkAborted(ctx, err)
	}
	return s.syncCoins(ctx, coins)
}

func (s *PortfolioService) syncCoins(ctx context.Context, coins []models.Coin) (int, error) {
	if len(coins) == 0 {
		return 0, nil
	}
	ids := make([]string, 0, len(coins))
	for _, c := range coins {
		ids = append(ids, s.feed.IDOf(c))
	}

	prices, feedErr := s.feed.GetPrices(ctx, ids)
	if errors.Is(feedErr, ErrAborted) {
		return 0, feedErr
	}
	if err := checkAborted(ctx, nil); err != nil {
		return 0, err
	}

	at := s.now()
	updated := 0
	for _, c := range coins {
		price, ok := prices[s.feed.IDOf(c)]
		if !ok || price.Equal(c.CurrentPrice) {
			continue
		}
		if err := s.coins.UpdatePrice(ctx, c, price, at); err != nil {
			return updated, checkAborted(ctx, err)
		}
		updated++
	}

	if feedErr != nil {
		logger.FromContext(ctx).Warn("price sync incomplete, keeping last known prices",
			"feed", s.feed.Name(), "error", feedErr)
	}
	return updated, feedErr
}

// Snapshot records today's valuation of the user.
func (s *PortfolioService) Snapshot(ctx context.Context, userID string) error {
	d, err := s.Dashboard(ctx, userID)
	if err != nil {
		return err
	}
	return s.snaps.Save(ctx, userID, d.Valuation, s.now())
}

// History returns the daily snapshots of the last period (24h, 7d, 30d,
// 90d, 1y or all) as chart data.
func (s *PortfolioService) History(ctx context.Context, userID, period string) (*models.PortfolioChartData, []models.PortfolioSnapshot, error) {
	since, err := periodStart(s.now(), period)
	if err != nil {
		return nil, nil, err
	}
	snaps, err := s.snaps.List(ctx, userID, since)
	if err != nil {
		return nil, nil, checkAborted(ctx, err)
	}

	chart := &models.PortfolioChartData{Labels: []string{}, Values: []decimal.Decimal{}}
	for i, sn := range snaps {
		chart.Labels = append(chart.Labels, sn.Day)
		chart.Values = append(chart.Values, sn.TotalValue)
		if i == 0 || sn.MaxValue.GreaterThan(chart.High) {
			chart.High = sn.MaxValue
		}
		if i == 0 || sn.MinValue.LessThan(chart.Low) {
			chart.Low = sn.MinValue
		}
	}
	return chart, snaps, nil
}

func periodStart(now time.Time, period string) (time.Time, error) {
	switch period {
	case "24h", "1d":
		return now.AddDate(0, 0, -1), nil
	case "7d", "":
		return now.AddDate(0, 0, -7), nil
	case "30d":
		return now.AddDate(0, 0, -30), nil
	case "90d":
		return now.AddDate(0, 0, -90), nil
	case "1y":
		return now.AddDate(-1, 0, 0), nil
	case "all":
		return time.Time{}, nil
	default:
		return time.Time{}, fmt.Errorf("%w: unknown period %q", portfolio.ErrInvalidInput, period)
	}
}
