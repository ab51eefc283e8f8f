package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application settings read from the environment.
type Config struct {
	Port     string
	LogLevel string

	DatabaseDriver string // sqlite or postgres
	DatabaseURL    string

	JWTSecret      string
	TokenExpiry    time.Duration
	AdminSecretKey string
	AllowedOrigins []string

	// Fiat currency prices and values are expressed in.
	Currency           string
	PriceProvider      string // coingecko or binance
	CoinGeckoBaseURL   string
	CoinGeckoAPIKey    string
	PriceRatePerSecond float64
	PriceCacheTTL      time.Duration
	PriceSyncInterval  time.Duration
	BinanceQuoteAsset  string

	ClerkSecretKey     string
	ClerkWebhookSecret string

	SMTPHost  string
	SMTPPort  string
	SMTPUser  string
	SMTPPass  string
	FromEmail string
	ResetURL  string
}

// Load reads .env from the working directory or its parent, then the OS
// environment. Only JWT_SECRET is required.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if err = godotenv.Load("../.env"); err != nil && !os.IsNotExist(err) {
			slog.Warn("error loading .env file, relying on OS environment", "error", err)
		}
	}

	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseDriver: strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DatabaseURL:    getEnv("DATABASE_URL", "./bitlab.db"),

		JWTSecret:      getEnv("JWT_SECRET", ""),
		TokenExpiry:    getEnvAsDuration("TOKEN_EXPIRY", 24*time.Hour),
		AdminSecretKey: getEnv("ADMIN_SECRET_KEY", ""),
		AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),

		Currency:           strings.ToLower(getEnv("CURRENCY", "idr")),
		PriceProvider:      strings.ToLower(getEnv("PRICE_PROVIDER", "coingecko")),
		CoinGeckoBaseURL:   getEnv("COINGECKO_BASE_URL", "https://api.coingecko.com/api/v3"),
		CoinGeckoAPIKey:    getEnv("CRYPTO_API_KEY", ""),
		PriceRatePerSecond: getEnvAsFloat("PRICE_RATE_PER_SECOND", 0.5),
		PriceCacheTTL:      getEnvAsDuration("PRICE_CACHE_TTL", 30*time.Minute),
		PriceSyncInterval:  getEnvAsDuration("PRICE_SYNC_INTERVAL", 5*time.Minute),
		BinanceQuoteAsset:  strings.ToUpper(getEnv("BINANCE_QUOTE_ASSET", "USDT")),

		ClerkSecretKey:     getEnv("CLERK_SECRET_KEY", ""),
		ClerkWebhookSecret: getEnv("CLERK_WEBHOOK_SECRET", ""),

		SMTPHost:  getEnv("SMTP_HOST", ""),
		SMTPPort:  getEnv("SMTP_PORT", "587"),
		SMTPUser:  getEnv("SMTP_USER", ""),
		SMTPPass:  getEnv("SMTP_PASS", ""),
		FromEmail: getEnv("FROM_EMAIL", "noreply@bitlab.local"),
		ResetURL:  getEnv("RESET_PASSWORD_URL", "http://localhost:3000/reset-password"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER %q is not supported", c.DatabaseDriver))
	}
	switch c.PriceProvider {
	case "coingecko", "binance":
	default:
		errs = append(errs, fmt.Errorf("PRICE_PROVIDER %q is not supported", c.PriceProvider))
	}
	if c.PriceRatePerSecond <= 0 {
		errs = append(errs, errors.New("PRICE_RATE_PER_SECOND must be positive"))
	}
	return errors.Join(errs...)
}

// ClerkEnabled reports whether hosted authentication is configured.
func (c *Config) ClerkEnabled() bool {
	return c.ClerkSecretKey != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	slog.Warn("invalid duration, using default", "key", key, "value", valueStr, "default", fallback.String())
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	slog.Warn("invalid number, using default", "key", key, "value", valueStr, "default", fallback)
	return fallback
}

// getEnvAsList splits a comma separated variable, dropping empty items.
func getEnvAsList(key string, fallback []string) []string {
	valueStr := getEnv(key, "")
	if strings.TrimSpace(valueStr) == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
