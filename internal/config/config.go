package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	apperrors "github.com/tropicaldog17/networth/internal/errors"
)

// Config holds every runtime setting of the service.
type Config struct {
	ServerPort string

	Database DatabaseConfig

	RedisURL string

	PriceCacheTTL     time.Duration
	PriceStaleTTL     time.Duration
	PriceBatchDelay   time.Duration
	PriceFetchTimeout time.Duration

	SettlementCurrency string
	FXSymbol           string
	FXFallbackRate     decimal.Decimal
	FXAPIURL           string

	CoinGeckoAPIURL string
	CoinGeckoAPIKey string
	TWSEAPIURL      string

	SchedulerEnabled     bool
	PriceRefreshSchedule string
	SnapshotSchedule     string
}

// DatabaseConfig selects and configures the gorm dialect.
type DatabaseConfig struct {
	Driver     string
	Host       string
	Port       string
	User       string
	Password   string
	Name       string
	SSLMode    string
	SQLitePath string
}

// Load reads an optional .env file and then the process environment.
// Values already present in the environment win over the .env file.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			if err := godotenv.Load(f); err != nil {
				return nil, &apperrors.ErrValidation{Field: "env_file", Message: err.Error()}
			}
		}
	}

	cfg := &Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),
		Database: DatabaseConfig{
			Driver:     strings.ToLower(getEnv("DB_DRIVER", "postgres")),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnv("DB_PORT", "5432"),
			User:       getEnv("DB_USER", "networth"),
			Password:   getEnv("DB_PASSWORD", "networth"),
			Name:       getEnv("DB_NAME", "networth"),
			SSLMode:    getEnv("DB_SSLMODE", "disable"),
			SQLitePath: getEnv("SQLITE_PATH", "networth.db"),
		},
		RedisURL:             os.Getenv("REDIS_URL"),
		SettlementCurrency:   strings.ToUpper(getEnv("SETTLEMENT_CURRENCY", "TWD")),
		FXSymbol:             getEnv("FX_SYMBOL", "TWD=X"),
		FXAPIURL:             os.Getenv("FX_API_URL"),
		CoinGeckoAPIURL:      getEnv("COINGECKO_API_URL", "https://api.coingecko.com/api/v3"),
		CoinGeckoAPIKey:      os.Getenv("COINGECKO_API_KEY"),
		TWSEAPIURL:           getEnv("TWSE_API_URL", "https://mis.twse.com.tw/stock/api"),
		PriceRefreshSchedule: getEnv("PRICE_REFRESH_SCHEDULE", "@every 1m"),
		SnapshotSchedule:     getEnv("SNAPSHOT_SCHEDULE", "@every 1h"),
	}

	var err error
	if cfg.PriceCacheTTL, err = getDuration("PRICE_CACHE_TTL", 300*time.Second); err != nil {
		return nil, err
	}
	if cfg.PriceStaleTTL, err = getDuration("PRICE_STALE_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.PriceBatchDelay, err = getDuration("PRICE_BATCH_DELAY", 500*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.PriceFetchTimeout, err = getDuration("PRICE_FETCH_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.SchedulerEnabled, err = getBool("SCHEDULER_ENABLED", true); err != nil {
		return nil, err
	}

	rate := getEnv("FX_FALLBACK_RATE", "32.0")
	cfg.FXFallbackRate, err = decimal.NewFromString(rate)
	if err != nil || !cfg.FXFallbackRate.IsPositive() {
		return nil, &apperrors.ErrValidation{Field: "FX_FALLBACK_RATE", Message: "must be a positive number"}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return &apperrors.ErrValidation{Field: "DB_DRIVER", Message: "must be postgres or sqlite"}
	}
	if c.PriceStaleTTL < c.PriceCacheTTL {
		return &apperrors.ErrValidation{Field: "PRICE_STALE_TTL", Message: "must not be shorter than PRICE_CACHE_TTL"}
	}
	if c.PriceCacheTTL <= 0 {
		return &apperrors.ErrValidation{Field: "PRICE_CACHE_TTL", Message: "must be positive"}
	}
	if c.PriceBatchDelay < 0 {
		return &apperrors.ErrValidation{Field: "PRICE_BATCH_DELAY", Message: "must not be negative"}
	}
	if len(c.SettlementCurrency) != 3 {
		return &apperrors.ErrValidation{Field: "SETTLEMENT_CURRENCY", Message: "must be a 3-letter currency code"}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDuration accepts Go durations ("5m") or a bare number of seconds ("300").
func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, &apperrors.ErrValidation{Field: key, Message: "invalid duration " + strconv.Quote(raw)}
	}
	return d, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &apperrors.ErrValidation{Field: key, Message: "invalid boolean " + strconv.Quote(raw)}
	}
	return b, nil
}
