package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/AgusMolinaCode/bitlab/internal/models"
	"github.com/AgusMolinaCode/bitlab/internal/portfolio"
)

var hundred = decimal.NewFromInt(100)

// StatsRepository reads the per-coin aggregates and edits rebalance targets.
type StatsRepository struct {
	db       *sql.DB
	notifier Notifier
}

func NewStatsRepository(db *sql.DB, notifier Notifier) *StatsRepository {
	return &StatsRepository{db: db, notifier: notifierOrNop(notifier)}
}

// List returns one stat per registered coin of the user, zero for coins
// without transactions. With onlyHeld, positions at or below
// portfolio.Epsilon are left out.
func (r *StatsRepository) List(ctx context.Context, userID string, onlyHeld bool) ([]models.AssetStat, error) {
	query := `
		SELECT c.id, c.user_id, c.symbol,
			COALESCE(s.total_qty, '0'), COALESCE(s.total_cost, '0'),
			COALESCE(s.avg_buy_price, '0'), COALESCE(s.target_pct, '0'),
			s.updated_at, c.created_at
		FROM coins c
		LEFT JOIN asset_stats s ON s.coin_id = c.id
		WHERE c.user_id = $1
		ORDER BY c.symbol`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, storeErr("list stats", err)
	}
	defer rows.Close()

	stats := []models.AssetStat{}
	for rows.Next() {
		var (
			s         models.AssetStat
			updatedAt sql.NullTime
			createdAt time.Time
		)
		err := rows.Scan(
			&s.CoinID,
			&s.UserID,
			&s.Symbol,
			&s.TotalQty,
			&s.TotalCost,
			&s.AvgBuyPrice,
			&s.TargetPct,
			&updatedAt,
			&createdAt,
		)
		if err != nil {
			return nil, storeErr("scan stat", err)
		}
		s.UpdatedAt = createdAt
		if updatedAt.Valid {
			s.UpdatedAt = updatedAt.Time
		}
		if onlyHeld && !s.TotalQty.GreaterThan(portfolio.Epsilon) {
			continue
		}
		stats = append(stats, s)
	}
	return stats, storeErr("list stats", rows.Err())
}

// SetTarget stores the rebalance target of a coin, 0 to 100.
func (r *StatsRepository) SetTarget(ctx context.Context, userID, coinID string, pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return fmt.Errorf("%w: target_pct must be between 0 and 100", portfolio.ErrInvalidInput)
	}

	coin, err := getCoin(ctx, r.db, userID, coinID)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO asset_stats (coin_id, user_id, target_pct, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (coin_id) DO UPDATE SET target_pct = excluded.target_pct, updated_at = excluded.updated_at`

	if _, err := r.db.ExecContext(ctx, query, coin.ID, userID, pct, time.Now().UTC()); err != nil {
		return storeErr("set target", err)
	}
	r.notifier.Publish(models.ChangeEvent{UserID: userID, Collection: models.CollectionStats})
	return nil
}

// loadStat returns the stored aggregate of coin, or a zero one.
func loadStat(ctx context.Context, q querier, coin *models.Coin) (models.AssetStat, error) {
	s := models.AssetStat{CoinID: coin.ID, UserID: coin.UserID, Symbol: coin.Symbol}
	err := q.QueryRowContext(ctx, `
		SELECT total_qty, total_cost, avg_buy_price, target_pct, updated_at
		FROM asset_stats WHERE coin_id = $1`, coin.ID,
	).Scan(&s.TotalQty, &s.TotalCost, &s.AvgBuyPrice, &s.TargetPct, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, nil
	}
	if err != nil {
		return s, storeErr("load stat", err)
	}
	return s, nil
}

// saveStat upserts the aggregate of coin from pos, keeping its target.
func saveStat(ctx context.Context, q querier, coin *models.Coin, pos portfolio.Position) error {
	query := `
		INSERT INTO asset_stats (coin_id, user_id, total_qty, total_cost, avg_buy_price, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (coin_id) DO UPDATE SET
			total_qty = excluded.total_qty,
			total_cost = excluded.total_cost,
			avg_buy_price = excluded.avg_buy_price,
			updated_at = excluded.updated_at`

	_, err := q.ExecContext(ctx, query,
		coin.ID,
		coin.UserID,
		pos.Quantity,
		pos.CostBasis,
		pos.AverageCost(),
		time.Now().UTC(),
	)
	return storeErr("save stat", err)
}

func positionOf(s models.AssetStat, coin *models.Coin) portfolio.Position {
	return portfolio.Position{
		Symbol:    coin.Symbol,
		Quantity:  s.TotalQty,
		CostBasis: s.TotalCost,
		LivePrice: coin.CurrentPrice,
	}
}
