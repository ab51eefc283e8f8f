package middleware

import (
	"time"

	"github.com/clerk/clerk-sdk-go/v2"
	"github.com/patrickmn/go-cache"

	"github.com/AgusMolinaCode/bitlab/internal/config"
	"github.com/AgusMolinaCode/bitlab/internal/logger"
	"github.com/AgusMolinaCode/bitlab/internal/realtime"
	"github.com/AgusMolinaCode/bitlab/internal/repository"
	"github.com/AgusMolinaCode/bitlab/internal/services"
)

// Deps are the collaborators of the HTTP handlers.
type Deps struct {
	Config    *config.Config
	Users     *repository.UserRepository
	Coins     *repository.CoinRepository
	Txs       *repository.TransactionRepository
	Stats     *repository.StatsRepository
	Portfolio *services.PortfolioService
	Updater   *services.PriceUpdater
	Mailer    services.Mailer
	Hub       *realtime.Hub
}

// Handler serves the HTTP API. Build it with NewHandler.
type Handler struct {
	users     *repository.UserRepository
	coins     *repository.CoinRepository
	txs       *repository.TransactionRepository
	stats     *repository.StatsRepository
	portfolio *services.PortfolioService
	updater   *services.PriceUpdater
	mailer    services.Mailer
	hub       *realtime.Hub

	jwtSecret     []byte
	tokenExpiry   time.Duration
	adminKey      string
	clerkEnabled  bool
	webhookSecret string
	origins       []string

	// revoked holds logged out tokens until they would have expired anyway.
	revoked *cache.Cache
}

func NewHandler(d Deps) *Handler {
	h := &Handler{
		users:         d.Users,
		coins:         d.Coins,
		txs:           d.Txs,
		stats:         d.Stats,
		portfolio:     d.Portfolio,
		updater:       d.Updater,
		mailer:        d.Mailer,
		hub:           d.Hub,
		jwtSecret:     []byte(d.Config.JWTSecret),
		tokenExpiry:   d.Config.TokenExpiry,
		adminKey:      d.Config.AdminSecretKey,
		clerkEnabled:  d.Config.ClerkEnabled(),
		webhookSecret: d.Config.ClerkWebhookSecret,
		origins:       d.Config.AllowedOrigins,
		revoked:       cache.New(d.Config.TokenExpiry, time.Hour),
	}
	if h.tokenExpiry <= 0 {
		h.tokenExpiry = 24 * time.Hour
	}
	if h.clerkEnabled {
		clerk.SetKey(d.Config.ClerkSecretKey)
		logger.L.Info("clerk authentication enabled")
	}
	return h
}
