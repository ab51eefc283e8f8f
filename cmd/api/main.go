package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/AgusMolinaCode/bitlab/internal/config"
	"github.com/AgusMolinaCode/bitlab/internal/database"
	"github.com/AgusMolinaCode/bitlab/internal/logger"
	"github.com/AgusMolinaCode/bitlab/internal/middleware"
	"github.com/AgusMolinaCode/bitlab/internal/realtime"
	"github.com/AgusMolinaCode/bitlab/internal/repository"
	routes "github.com/AgusMolinaCode/bitlab/internal/server"
	"github.com/AgusMolinaCode/bitlab/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.L.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger.InitLogger(cfg.LogLevel)

	if err := run(cfg); err != nil {
		logger.L.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func newPriceFeed(cfg *config.Config) services.PriceFeed {
	if cfg.PriceProvider == "binance" {
		return services.NewBinanceFeed(cfg.BinanceQuoteAsset, "")
	}
	return services.NewCoinGeckoFeed(services.CoinGeckoConfig{
		BaseURL:       cfg.CoinGeckoBaseURL,
		APIKey:        cfg.CoinGeckoAPIKey,
		Currency:      cfg.Currency,
		RatePerSecond: cfg.PriceRatePerSecond,
		CacheTTL:      cfg.PriceCacheTTL,
	})
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(db, cfg.DatabaseDriver); err != nil {
		return err
	}

	hub := realtime.NewHub()
	defer hub.Close()

	users := repository.NewUserRepository(db, hub)
	coins := repository.NewCoinRepository(db, hub)
	txs := repository.NewTransactionRepository(db, hub)
	stats := repository.NewStatsRepository(db, hub)
	snaps := repository.NewSnapshotRepository(db)

	feed := newPriceFeed(cfg)
	portfolioSvc := services.NewPortfolioService(coins, txs, stats, snaps, feed, cfg.Currency)

	priceUpdater := services.NewPriceUpdater(cfg.PriceSyncInterval, portfolioSvc, users)
	priceUpdater.Start()
	defer priceUpdater.Stop()

	handler := middleware.NewHandler(middleware.Deps{
		Config:    cfg,
		Users:     users,
		Coins:     coins,
		Txs:       txs,
		Stats:     stats,
		Portfolio: portfolioSvc,
		Updater:   priceUpdater,
		Mailer:    services.NewEmailService(cfg),
		Hub:       hub,
	})

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "Admin-Key"}
	corsConfig.AllowCredentials = true
	corsConfig.ExposeHeaders = []string{"Content-Length", "X-Request-ID"}
	router.Use(cors.New(corsConfig))

	routes.RegisterRoutes(router, handler)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.L.Info("server listening",
			"port", cfg.Port, "driver", cfg.DatabaseDriver, "priceFeed", feed.Name(), "currency", cfg.Currency)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.L.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
