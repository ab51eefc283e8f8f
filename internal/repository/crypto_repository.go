package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/AgusMolinaCode/bitlab/internal/models"
	"github.com/AgusMolinaCode/bitlab/internal/portfolio"
)

// DefaultListLimit caps transaction history pages.
const DefaultListLimit = 50

// TransactionRepository owns the transaction log and keeps each coin's
// AssetStat in step with it through the ledger functions.
type TransactionRepository struct {
	db       *sql.DB
	notifier Notifier
}

func NewTransactionRepository(db *sql.DB, notifier Notifier) *TransactionRepository {
	return &TransactionRepository{db: db, notifier: notifierOrNop(notifier)}
}

// Range filters transaction history. Zero values mean unbounded; a zero
// Limit means DefaultListLimit.
type Range struct {
	From   time.Time
	To     time.Time
	CoinID string
	Limit  int
}

const txColumns = `t.id, t.user_id, t.coin_id, c.symbol, t.kind, t.amount, t.price_at_date,
	t.price_at_sale, t.realized_pnl, t.avg_cost_at_sale, t.cost_at_sale, t.note, t.created_at`

func scanTransaction(row interface{ Scan(...any) error }) (models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.CoinID,
		&t.Symbol,
		&t.Kind,
		&t.Amount,
		&t.PriceAtDate,
		&t.PriceAtSale,
		&t.RealizedPnl,
		&t.AvgCostAtSale,
		&t.CostAtSale,
		&t.Note,
		&t.CreatedAt,
	)
	return t, err
}

// Create records tx and applies it to the coin's stat in one database
// transaction holding the coin's lock. A sell larger than the held quantity
// is rejected with portfolio.ErrInsufficientQuantity and nothing is written.
func (r *TransactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	kind, err := portfolio.ParseKind(tx.Kind)
	if err != nil {
		return err
	}
	if err := portfolio.Validate(kind, tx.Amount, tx.PriceAtDate); err != nil {
		return err
	}
	if kind == portfolio.KindBuy {
		tx.PriceAtSale = decimal.NullDecimal{}
	} else if tx.PriceAtSale.Valid && tx.PriceAtSale.Decimal.IsNegative() {
		return fmt.Errorf("%w: price at sale must not be negative", portfolio.ErrInvalidInput)
	}

	dbtx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin", err)
	}
	defer rollback(dbtx)

	coin, err := lockCoin(ctx, dbtx, tx.UserID, tx.CoinID)
	if err != nil {
		return err
	}
	stat, err := loadStat(ctx, dbtx, coin)
	if err != nil {
		return err
	}

	pos := positionOf(stat, coin)
	entry := entryOf(*tx, coin)
	tx.Kind = string(kind)
	tx.RealizedPnl = decimal.Zero
	tx.AvgCostAtSale = decimal.NullDecimal{}
	tx.CostAtSale = decimal.NullDecimal{}

	switch kind {
	case portfolio.KindBuy:
		portfolio.ApplyBuy(&pos, tx.Amount, tx.PriceAtDate)
	case portfolio.KindSell:
		sale, err := portfolio.ApplySell(&pos, tx.Amount, entry.SalePrice())
		if err != nil {
			return err
		}
		tx.RealizedPnl = sale.RealizedPnl
		tx.AvgCostAtSale = decimal.NewNullDecimal(sale.AvgCost)
		tx.CostAtSale = decimal.NewNullDecimal(sale.CostSold)
	}

	tx.ID = uuid.NewString()
	tx.Symbol = coin.Symbol
	tx.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO transactions (id, user_id, coin_id, kind, amount, price_at_date, price_at_sale,
			realized_pnl, avg_cost_at_sale, cost_at_sale, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = dbtx.ExecContext(ctx, query,
		tx.ID,
		tx.UserID,
		tx.CoinID,
		tx.Kind,
		tx.Amount,
		tx.PriceAtDate,
		tx.PriceAtSale,
		tx.RealizedPnl,
		tx.AvgCostAtSale,
		tx.CostAtSale,
		tx.Note,
		tx.CreatedAt,
	)
	if err != nil {
		return storeErr("insert transaction", err)
	}
	if err := saveStat(ctx, dbtx, coin, pos); err != nil {
		return err
	}
	if err := dbtx.Commit(); err != nil {
		return storeErr("commit", err)
	}

	r.publish(tx.UserID)
	return nil
}

// Delete removes a transaction and updates the coin's stat. Removing the
// latest transaction of a coin is reversed in place, a sell using the average
// cost recorded when it was applied. Removing an older one replays the rest of
// the coin's log, which also refreshes the realized P&L of later sells; if a
// later sell would no longer be covered the delete is refused with
// portfolio.ErrInsufficientQuantity.
func (r *TransactionRepository) Delete(ctx context.Context, userID, id string) error {
	dbtx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin", err)
	}
	defer rollback(dbtx)

	tx, err := getTransaction(ctx, dbtx, userID, id)
	if err != nil {
		return err
	}
	coin, err := lockCoin(ctx, dbtx, userID, tx.CoinID)
	if err != nil {
		return err
	}

	var latestID string
	err = dbtx.QueryRowContext(ctx,
		`SELECT id FROM transactions WHERE coin_id = $1 ORDER BY seq DESC LIMIT 1`, coin.ID,
	).Scan(&latestID)
	if err != nil {
		return storeErr("find latest transaction", err)
	}

	// a concurrent delete of the same transaction may have won the lock
	res, err := dbtx.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, tx.ID)
	if err := affectedOne("delete transaction", res, err); err != nil {
		return err
	}

	if latestID == tx.ID && (tx.Kind == string(portfolio.KindBuy) || tx.AvgCostAtSale.Valid) {
		stat, err := loadStat(ctx, dbtx, coin)
		if err != nil {
			return err
		}
		pos := positionOf(stat, coin)
		if tx.Kind == string(portfolio.KindBuy) {
			if err := portfolio.ReverseBuy(&pos, tx.Amount, tx.PriceAtDate); err != nil {
				return err
			}
		} else {
			reverseSell(&pos, tx)
		}
		if err := saveStat(ctx, dbtx, coin, pos); err != nil {
			return err
		}
	} else if _, err := replayCoin(ctx, dbtx, coin); err != nil {
		if errors.Is(err, portfolio.ErrInsufficientQuantity) {
			return fmt.Errorf("cannot delete transaction %s: %w", id, err)
		}
		return err
	}

	if err := dbtx.Commit(); err != nil {
		return storeErr("commit", err)
	}
	r.publish(userID)
	return nil
}

// Rebuild recomputes a coin's stat from its log and reports whether the stored
// aggregate had drifted from it.
func (r *TransactionRepository) Rebuild(ctx context.Context, userID, coinID string) (*models.RebuildResult, error) {
	dbtx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("begin", err)
	}
	defer rollback(dbtx)

	coin, err := lockCoin(ctx, dbtx, userID, coinID)
	if err != nil {
		return nil, err
	}
	before, err := loadStat(ctx, dbtx, coin)
	if err != nil {
		return nil, err
	}
	after, err := replayCoin(ctx, dbtx, coin)
	if err != nil {
		return nil, err
	}
	if err := dbtx.Commit(); err != nil {
		return nil, storeErr("commit", err)
	}

	drifted := !before.TotalQty.Equal(after.TotalQty) || !before.TotalCost.Equal(after.TotalCost)
	result := &models.RebuildResult{Before: before, After: after, Drifted: drifted}
	if result.Drifted {
		r.publish(userID)
	}
	return result, nil
}

// replayCoin runs portfolio.Replay over the coin's full log, rewrites sells
// whose recorded figures differ from the replay and saves the stat.
func replayCoin(ctx context.Context, q querier, coin *models.Coin) (models.AssetStat, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+txColumns+`
		FROM transactions t JOIN coins c ON c.id = t.coin_id
		WHERE t.coin_id = $1
		ORDER BY t.seq`, coin.ID)
	if err != nil {
		return models.AssetStat{}, storeErr("load log", err)
	}
	var (
		entries []portfolio.Entry
		sellIDs []string
		sells   []models.Transaction
	)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			rows.Close()
			return models.AssetStat{}, storeErr("scan transaction", err)
		}
		entries = append(entries, entryOf(t, coin))
		if t.Kind == string(portfolio.KindSell) {
			sellIDs = append(sellIDs, t.ID)
			sells = append(sells, t)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return models.AssetStat{}, storeErr("load log", err)
	}

	book, err := portfolio.Replay(entries)
	if err != nil {
		return models.AssetStat{}, err
	}

	for i, sale := range book.Sales {
		old := sells[i]
		if old.RealizedPnl.Equal(sale.RealizedPnl) && sameDecimal(old.AvgCostAtSale, sale.AvgCost) &&
			sameDecimal(old.CostAtSale, sale.CostSold) {
			continue
		}
		_, err := q.ExecContext(ctx,
			`UPDATE transactions SET realized_pnl = $1, avg_cost_at_sale = $2, cost_at_sale = $3 WHERE id = $4`,
			sale.RealizedPnl, decimal.NewNullDecimal(sale.AvgCost), decimal.NewNullDecimal(sale.CostSold), sellIDs[i])
		if err != nil {
			return models.AssetStat{}, storeErr("update sell", err)
		}
	}

	pos := portfolio.Position{Symbol: coin.Symbol, LivePrice: coin.CurrentPrice}
	if p, ok := book.Positions[coin.Symbol]; ok {
		pos = *p
	}
	if err := saveStat(ctx, q, coin, pos); err != nil {
		return models.AssetStat{}, err
	}
	return loadStat(ctx, q, coin)
}

// Get returns one of the user's transactions.
func (r *TransactionRepository) Get(ctx context.Context, userID, id string) (*models.Transaction, error) {
	return getTransaction(ctx, r.db, userID, id)
}

func getTransaction(ctx context.Context, q querier, userID, id string) (*models.Transaction, error) {
	t, err := scanTransaction(q.QueryRowContext(ctx, `
		SELECT `+txColumns+`
		FROM transactions t JOIN coins c ON c.id = t.coin_id
		WHERE t.id = $1`, id))
	if err != nil {
		return nil, storeErr("get transaction", err)
	}
	if t.UserID != userID {
		return nil, fmt.Errorf("transaction %s: %w", id, ErrForbidden)
	}
	return &t, nil
}

// List returns the user's history, newest first.
func (r *TransactionRepository) List(ctx context.Context, userID string, rng Range) ([]models.Transaction, error) {
	query := `
		SELECT ` + txColumns + `
		FROM transactions t JOIN coins c ON c.id = t.coin_id
		WHERE t.user_id = $1`
	args := []any{userID}

	if !rng.From.IsZero() {
		args = append(args, rng.From.UTC())
		query += fmt.Sprintf(" AND t.created_at >= $%d", len(args))
	}
	if !rng.To.IsZero() {
		args = append(args, rng.To.UTC())
		query += fmt.Sprintf(" AND t.created_at < $%d", len(args))
	}
	if rng.CoinID != "" {
		args = append(args, rng.CoinID)
		query += fmt.Sprintf(" AND t.coin_id = $%d", len(args))
	}
	limit := rng.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY t.seq DESC LIMIT $%d", len(args))

	return r.query(ctx, query, args...)
}

// Log returns the user's complete log in the order it was recorded.
func (r *TransactionRepository) Log(ctx context.Context, userID string) ([]models.Transaction, error) {
	return r.query(ctx, `
		SELECT `+txColumns+`
		FROM transactions t JOIN coins c ON c.id = t.coin_id
		WHERE t.user_id = $1
		ORDER BY t.seq`, userID)
}

func (r *TransactionRepository) query(ctx context.Context, query string, args ...any) ([]models.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list transactions", err)
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, storeErr("scan transaction", err)
		}
		transactions = append(transactions, t)
	}
	return transactions, storeErr("list transactions", rows.Err())
}

func (r *TransactionRepository) publish(userID string) {
	r.notifier.Publish(models.ChangeEvent{UserID: userID, Collection: models.CollectionTransactions})
	r.notifier.Publish(models.ChangeEvent{UserID: userID, Collection: models.CollectionStats})
}

// entryOf converts a stored transaction into a ledger entry.
func entryOf(t models.Transaction, coin *models.Coin) portfolio.Entry {
	return portfolio.Entry{
		Symbol:      coin.Symbol,
		Kind:        portfolio.Kind(t.Kind),
		Amount:      t.Amount,
		Price:       t.PriceAtDate,
		PriceAtSale: t.PriceAtSale,
		LivePrice:   coin.CurrentPrice,
	}
}

// reverseSell undoes a stored sell on pos. Sells recorded before cost_at_sale
// existed fall back to the average cost.
func reverseSell(pos *portfolio.Position, tx *models.Transaction) {
	if tx.CostAtSale.Valid {
		portfolio.ReverseSale(pos, portfolio.Sale{Amount: tx.Amount, CostSold: tx.CostAtSale.Decimal})
		return
	}
	portfolio.ReverseSell(pos, tx.Amount, tx.AvgCostAtSale.Decimal)
}

func sameDecimal(n decimal.NullDecimal, d decimal.Decimal) bool {
	return n.Valid && n.Decimal.Equal(d)
}
