package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/AgusMolinaCode/bitlab/internal/config"
	"github.com/AgusMolinaCode/bitlab/internal/database"
	"github.com/AgusMolinaCode/bitlab/internal/models"
	"github.com/AgusMolinaCode/bitlab/internal/realtime"
	"github.com/AgusMolinaCode/bitlab/internal/repository"
	"github.com/AgusMolinaCode/bitlab/internal/services"
)

const testWebhookSecret = "whsec_MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw"

type stubFeed struct {
	prices map[string]decimal.Decimal
	err    error
}

func (f *stubFeed) Name() string { return "stub" }

func (f *stubFeed) IDOf(c models.Coin) string { return c.CoinGeckoID }

func (f *stubFeed) GetPrices(ctx context.Context, ids []string) (map[string]decimal.Decimal, error) {
	out := map[string]decimal.Decimal{}
	for _, id := range ids {
		if p, ok := f.prices[id]; ok {
			out[id] = p
		}
	}
	return out, f.err
}

type stubMailer struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (m *stubMailer) SendPasswordReset(email, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[email] = token
	return nil
}

type testAPI struct {
	router *gin.Engine
	h      *Handler
	hub    *realtime.Hub
	users  *repository.UserRepository
	coins  *repository.CoinRepository
	feed   *stubFeed
	mailer *stubMailer
}

func newTestAPI(t *testing.T, mutate func(*config.Config)) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(context.Background(), database.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db, database.DriverSQLite))

	cfg := &config.Config{
		JWTSecret:          "test-secret",
		TokenExpiry:        time.Hour,
		AdminSecretKey:     "admin-key",
		AllowedOrigins:     []string{"http://localhost:3000"},
		Currency:           "usd",
		ClerkWebhookSecret: testWebhookSecret,
	}
	if mutate != nil {
		mutate(cfg)
	}

	hub := realtime.NewHub()
	t.Cleanup(hub.Close)
	api := &testAPI{
		hub:    hub,
		users:  repository.NewUserRepository(db, hub),
		coins:  repository.NewCoinRepository(db, hub),
		feed:   &stubFeed{prices: map[string]decimal.Decimal{}},
		mailer: &stubMailer{tokens: map[string]string{}},
	}
	txs := repository.NewTransactionRepository(db, hub)
	stats := repository.NewStatsRepository(db, hub)
	svc := services.NewPortfolioService(api.coins, txs, stats, repository.NewSnapshotRepository(db), api.feed, cfg.Currency)

	api.h = NewHandler(Deps{
		Config:    cfg,
		Users:     api.users,
		Coins:     api.coins,
		Txs:       txs,
		Stats:     stats,
		Portfolio: svc,
		Mailer:    api.mailer,
		Hub:       hub,
	})
	api.router = gin.New()
	api.router.Use(RequestLogger())
	registerTestRoutes(api.router, api.h)
	return api
}

// registerTestRoutes mirrors the server routes; the server package cannot
// be imported from here.
func registerTestRoutes(r *gin.Engine, h *Handler) {
	r.POST("/signup", h.Signup)
	r.POST("/login", h.Login)
	r.POST("/logout", h.AuthMiddleware(), h.Logout)
	r.POST("/request-reset-password", h.RequestResetPassword)
	r.POST("/reset-password", h.ResetPassword)
	r.POST("/webhooks/clerk", h.ClerkWebhookHandler)

	p := r.Group("/", h.AuthMiddleware())
	p.GET("/users/me", h.GetCurrentUser)
	p.PUT("/users", h.UpdateUser)
	p.GET("/coins", h.ListCoins)
	p.POST("/coins", h.CreateCoin)
	p.DELETE("/coins/:id", h.DeleteCoin)
	p.POST("/transactions", h.CreateTransaction)
	p.GET("/transactions", h.ListTransactions)
	p.GET("/transactions/:id", h.GetTransactionDetails)
	p.DELETE("/transactions/:id", h.DeleteTransaction)
	p.POST("/transactions/rebuild/:coinId", h.RebuildStats)
	p.GET("/dashboard", h.GetDashboard)
	p.GET("/realized", h.GetRealized)
	p.GET("/stats", h.GetStats)
	p.GET("/rebalance", h.GetRebalance)
	p.PUT("/rebalance/:coinId", h.SetTarget)
	p.POST("/prices/sync", h.SyncPrices)
	p.GET("/prices/status", h.PriceStatus)
	p.GET("/history", h.GetHistory)
	p.POST("/history/snapshot", h.TakeSnapshot)
	r.GET("/realtime", h.SocketAuthMiddleware(), h.Realtime)

	a := r.Group("/admin", h.AdminAuth())
	a.GET("/users", h.GetUsers)
	a.GET("/users/:id", h.GetUser)
	a.DELETE("/users/:id", h.DeleteUserByAdmin)
	a.GET("/users/email/:email", h.GetUserByEmail)
}

func (api *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	return w
}

// signup registers a user and returns its token and id.
func (api *testAPI) signup(t *testing.T, email string) (string, string) {
	t.Helper()
	w := api.do(t, http.MethodPost, "/signup", "", gin.H{"email": email, "password": "secret123", "name": "Test"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		Token string `json:"token"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	decode(t, w, &resp)
	return resp.Token, resp.User.ID
}

func (api *testAPI) createCoin(t *testing.T, token, symbol, price string) string {
	t.Helper()
	w := api.do(t, http.MethodPost, "/coins", token, gin.H{"symbol": symbol, "coingecko_id": symbol, "current_price": price})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		Coin models.Coin `json:"coin"`
	}
	decode(t, w, &resp)
	return resp.Coin.ID
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got.String())
}

func newRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

func serve(api *testAPI, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, r)
	return w
}
