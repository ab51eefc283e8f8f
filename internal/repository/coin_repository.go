package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/AgusMolinaCode/bitlab/internal/models"
	"github.com/AgusMolinaCode/bitlab/internal/portfolio"
)

type CoinRepository struct {
	db       *sql.DB
	notifier Notifier
}

func NewCoinRepository(db *sql.DB, notifier Notifier) *CoinRepository {
	return &CoinRepository{db: db, notifier: notifierOrNop(notifier)}
}

const coinColumns = `id, user_id, symbol, name, coingecko_id, wallet_address, current_price, price_updated_at, created_at`

func scanCoin(row interface{ Scan(...any) error }) (models.Coin, error) {
	var (
		c         models.Coin
		updatedAt sql.NullTime
	)
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.Symbol,
		&c.Name,
		&c.CoinGeckoID,
		&c.WalletAddress,
		&c.CurrentPrice,
		&updatedAt,
		&c.CreatedAt,
	)
	if updatedAt.Valid {
		c.PriceUpdatedAt = &updatedAt.Time
	}
	return c, err
}

// Create registers a coin for coin.UserID. Symbols are stored upper case and
// are unique per user.
func (r *CoinRepository) Create(ctx context.Context, coin *models.Coin) error {
	coin.Symbol = strings.ToUpper(strings.TrimSpace(coin.Symbol))
	coin.CoinGeckoID = strings.ToLower(strings.TrimSpace(coin.CoinGeckoID))
	if coin.Symbol == "" || coin.CoinGeckoID == "" {
		return fmt.Errorf("%w: symbol and coingecko_id are required", portfolio.ErrInvalidInput)
	}
	if coin.CurrentPrice.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", portfolio.ErrInvalidInput)
	}
	if coin.Name == "" {
		coin.Name = coin.CoinGeckoID
	}
	coin.ID = uuid.NewString()
	coin.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO coins (` + coinColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.ExecContext(ctx, query,
		coin.ID,
		coin.UserID,
		coin.Symbol,
		coin.Name,
		coin.CoinGeckoID,
		coin.WalletAddress,
		coin.CurrentPrice,
		coin.PriceUpdatedAt,
		coin.CreatedAt,
	)
	if err != nil {
		return storeErr("create coin", err)
	}
	r.notifier.Publish(models.ChangeEvent{UserID: coin.UserID, Collection: models.CollectionCoins})
	return nil
}

// List returns the user's coins ordered by symbol.
func (r *CoinRepository) List(ctx context.Context, userID string) ([]models.Coin, error) {
	return r.query(ctx, `SELECT `+coinColumns+` FROM coins WHERE user_id = $1 ORDER BY symbol`, userID)
}

// ListAll returns every coin of every user, for the background price sync.
func (r *CoinRepository) ListAll(ctx context.Context) ([]models.Coin, error) {
	return r.query(ctx, `SELECT `+coinColumns+` FROM coins ORDER BY user_id, symbol`)
}

func (r *CoinRepository) query(ctx context.Context, query string, args ...any) ([]models.Coin, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list coins", err)
	}
	defer rows.Close()

	coins := []models.Coin{}
	for rows.Next() {
		c, err := scanCoin(rows)
		if err != nil {
			return nil, storeErr("scan coin", err)
		}
		coins = append(coins, c)
	}
	return coins, storeErr("list coins", rows.Err())
}

// Get returns one coin, ErrForbidden when it belongs to someone else.
func (r *CoinRepository) Get(ctx context.Context, userID, id string) (*models.Coin, error) {
	return getCoin(ctx, r.db, userID, id)
}

func getCoin(ctx context.Context, q querier, userID, id string) (*models.Coin, error) {
	c, err := scanCoin(q.QueryRowContext(ctx, `SELECT `+coinColumns+` FROM coins WHERE id = $1`, id))
	if err != nil {
		return nil, storeErr("get coin", err)
	}
	if c.UserID != userID {
		return nil, fmt.Errorf("coin %s: %w", id, ErrForbidden)
	}
	return &c, nil
}

// lockCoin returns the user's coin with its row write-locked until q ends.
// Writers of one coin's log and stat go through it so they run one at a
// time; the no-op UPDATE takes the lock on postgres and sqlite alike.
func lockCoin(ctx context.Context, q querier, userID, id string) (*models.Coin, error) {
	if _, err := q.ExecContext(ctx, `UPDATE coins SET name = name WHERE id = $1`, id); err != nil {
		return nil, storeErr("lock coin", err)
	}
	return getCoin(ctx, q, userID, id)
}

// Delete removes the coin together with its transactions and stat.
func (r *CoinRepository) Delete(ctx context.Context, userID, id string) error {
	if _, err := r.Get(ctx, userID, id); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM coins WHERE id = $1 AND user_id = $2`, id, userID)
	if err := affectedOne("delete coin", res, err); err != nil {
		return err
	}
	r.notifier.Publish(models.ChangeEvent{UserID: userID, Collection: models.CollectionCoins})
	r.notifier.Publish(models.ChangeEvent{UserID: userID, Collection: models.CollectionTransactions})
	return nil
}

// UpdatePrice stores the latest market price of a coin.
func (r *CoinRepository) UpdatePrice(ctx context.Context, coin models.Coin, price decimal.Decimal, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE coins SET current_price = $1, price_updated_at = $2 WHERE id = $3`,
		price, at.UTC(), coin.ID)
	if err := affectedOne("update price", res, err); err != nil {
		return err
	}
	r.notifier.Publish(models.ChangeEvent{UserID: coin.UserID, Collection: models.CollectionCoins})
	return nil
}
