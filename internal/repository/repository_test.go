package repository

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/AgusMolinaCode/bitlab/internal/database"
	"github.com/AgusMolinaCode/bitlab/internal/models"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []models.ChangeEvent
}

func (n *recordingNotifier) Publish(e models.ChangeEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) collections() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Collection)
	}
	return out
}

type fixture struct {
	db       *sql.DB
	notifier *recordingNotifier
	users    *UserRepository
	coins    *CoinRepository
	txs      *TransactionRepository
	stats    *StatsRepository
	snaps    *SnapshotRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, database.DriverSQLite, ":memory:")
}

// newPostgresFixture runs against the server in BITLAB_TEST_POSTGRES_URL and
// skips when it is unset. Tests sharing it must use unique emails.
func newPostgresFixture(t *testing.T) *fixture {
	t.Helper()
	url := os.Getenv("BITLAB_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("BITLAB_TEST_POSTGRES_URL not set")
	}
	return newFixtureWith(t, database.DriverPostgres, url)
}

func newFixtureWith(t *testing.T, driver, url string) *fixture {
	t.Helper()
	db, err := database.Open(context.Background(), driver, url)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db, driver))

	n := &recordingNotifier{}
	return &fixture{
		db:       db,
		notifier: n,
		users:    NewUserRepository(db, n),
		coins:    NewCoinRepository(db, n),
		txs:      NewTransactionRepository(db, n),
		stats:    NewStatsRepository(db, n),
		snaps:    NewSnapshotRepository(db),
	}
}

func (f *fixture) user(t *testing.T, email string) *models.User {
	t.Helper()
	u := &models.User{Email: email, Password: "secret123", Name: "Test"}
	require.NoError(t, f.users.CreateUser(context.Background(), u))
	return u
}

func (f *fixture) coin(t *testing.T, userID, symbol, price string) *models.Coin {
	t.Helper()
	c := &models.Coin{
		UserID:       userID,
		Symbol:       symbol,
		CoinGeckoID:  symbol + "-id",
		CurrentPrice: decimal.RequireFromString(price),
	}
	require.NoError(t, f.coins.Create(context.Background(), c))
	return c
}

func (f *fixture) buy(t *testing.T, userID, coinID, amount, price string) *models.Transaction {
	t.Helper()
	tx := &models.Transaction{
		UserID:      userID,
		CoinID:      coinID,
		Kind:        "buy",
		Amount:      decimal.RequireFromString(amount),
		PriceAtDate: decimal.RequireFromString(price),
	}
	require.NoError(t, f.txs.Create(context.Background(), tx))
	return tx
}

func (f *fixture) sell(t *testing.T, userID, coinID, amount, price string) *models.Transaction {
	t.Helper()
	tx := &models.Transaction{
		UserID:      userID,
		CoinID:      coinID,
		Kind:        "sell",
		Amount:      decimal.RequireFromString(amount),
		PriceAtDate: decimal.RequireFromString(price),
		PriceAtSale: decimal.NewNullDecimal(decimal.RequireFromString(price)),
	}
	require.NoError(t, f.txs.Create(context.Background(), tx))
	return tx
}

func (f *fixture) stat(t *testing.T, userID, coinID string) models.AssetStat {
	t.Helper()
	stats, err := f.stats.List(context.Background(), userID, false)
	require.NoError(t, err)
	for _, s := range stats {
		if s.CoinID == coinID {
			return s
		}
	}
	t.Fatalf("no stat for coin %s", coinID)
	return models.AssetStat{}
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got.String())
}
