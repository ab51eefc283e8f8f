package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/AgusMolinaCode/bitlab/internal/logger"
	"github.com/AgusMolinaCode/bitlab/internal/models"
	"github.com/AgusMolinaCode/bitlab/internal/portfolio"
)

const dayLayout = "2006-01-02"

// SnapshotRepository keeps one portfolio snapshot per user per UTC day.
type SnapshotRepository struct {
	db *sql.DB
}

func NewSnapshotRepository(db *sql.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Save records v as the user's snapshot for the day of at. A later save on
// the same day replaces the figures and widens MaxValue/MinValue. Empty
// portfolios are not recorded.
func (r *SnapshotRepository) Save(ctx context.Context, userID string, v portfolio.Valuation, at time.Time) error {
	if !v.TotalValue.IsPositive() {
		return nil
	}
	day := at.UTC().Format(dayLayout)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin", err)
	}
	defer rollback(tx)

	snap := models.PortfolioSnapshot{
		UserID:     userID,
		Day:        day,
		TotalValue: v.TotalValue,
		TotalCost:  v.TotalCost,
		Pnl:        v.TotalPnl,
		PnlPct:     v.TotalPnlPct,
		MaxValue:   v.TotalValue,
		MinValue:   v.TotalValue,
		CreatedAt:  at.UTC(),
	}

	err = tx.QueryRowContext(ctx,
		`SELECT id, max_value, min_value FROM portfolio_snapshots WHERE user_id = $1 AND day = $2`,
		userID, day,
	).Scan(&snap.ID, &snap.MaxValue, &snap.MinValue)

	switch {
	case err == sql.ErrNoRows:
		snap.ID = uuid.NewString()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO portfolio_snapshots (id, user_id, day, total_value, total_cost, pnl, pnl_pct, max_value, min_value, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			snap.ID, snap.UserID, snap.Day, snap.TotalValue, snap.TotalCost,
			snap.Pnl, snap.PnlPct, snap.MaxValue, snap.MinValue, snap.CreatedAt)
	case err == nil:
		if v.TotalValue.GreaterThan(snap.MaxValue) {
			snap.MaxValue = v.TotalValue
		}
		if v.TotalValue.LessThan(snap.MinValue) {
			snap.MinValue = v.TotalValue
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE portfolio_snapshots
			SET total_value = $1, total_cost = $2, pnl = $3, pnl_pct = $4, max_value = $5, min_value = $6
			WHERE id = $7`,
			snap.TotalValue, snap.TotalCost, snap.Pnl, snap.PnlPct, snap.MaxValue, snap.MinValue, snap.ID)
	}
	if err != nil {
		return storeErr("save snapshot", err)
	}
	if err := tx.Commit(); err != nil {
		return storeErr("commit", err)
	}

	logger.FromContext(ctx).Debug("snapshot saved", "userID", userID, "day", day, "value", snap.TotalValue.String())
	return nil
}

// List returns the user's snapshots from since onwards, oldest first.
func (r *SnapshotRepository) List(ctx context.Context, userID string, since time.Time) ([]models.PortfolioSnapshot, error) {
	query := `
		SELECT id, user_id, day, total_value, total_cost, pnl, pnl_pct, max_value, min_value, created_at
		FROM portfolio_snapshots
		WHERE user_id = $1 AND day >= $2
		ORDER BY day ASC`

	rows, err := r.db.QueryContext(ctx, query, userID, since.UTC().Format(dayLayout))
	if err != nil {
		return nil, storeErr("list snapshots", err)
	}
	defer rows.Close()

	snapshots := []models.PortfolioSnapshot{}
	for rows.Next() {
		var s models.PortfolioSnapshot
		err := rows.Scan(
			&s.ID,
			&s.UserID,
			&s.Day,
			&s.TotalValue,
			&s.TotalCost,
			&s.Pnl,
			&s.PnlPct,
			&s.MaxValue,
			&s.MinValue,
			&s.CreatedAt,
		)
		if err != nil {
			return nil, storeErr("scan snapshot", err)
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, storeErr("list snapshots", rows.Err())
}
