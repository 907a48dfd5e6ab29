package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds every tunable named in the external interfaces surface:
// trading mode, risk/exposure/breaker thresholds, executor tunables, and
// the ambient notification/persistence settings.
type Config struct {
	Debug bool

	// Trading mode
	TradingMode    string // "paper" or "live"
	InitialBalance decimal.Decimal
	MarketSlugs    []string

	// Risk & sizing
	KellyFraction  decimal.Decimal
	MinEdge        decimal.Decimal
	MinTradeSize   decimal.Decimal
	MaxPositionPct decimal.Decimal

	// Exposure limits
	MaxPositionPerMarket    decimal.Decimal
	MaxPortfolioExposure    decimal.Decimal
	MaxPortfolioExposurePct decimal.Decimal
	MaxCorrelatedExposure   decimal.Decimal
	MaxPositions            int

	// Circuit breaker
	MaxDailyLoss                     decimal.Decimal
	MaxDrawdownPct                   decimal.Decimal
	MaxTotalPnLDrawdownPctForNewBuys decimal.Decimal

	// Executor tunables
	CashBuffer          decimal.Decimal
	TakerFeeBps         int64
	MakerFillFraction   decimal.Decimal
	LiquidationDiscount decimal.Decimal
	ReconcileInterval   time.Duration

	// Feed / scheduling
	FeedStaleAfter     time.Duration
	AllowInGameTrading bool
	TickInterval       time.Duration
	HealthPort         int

	// Exchange connectivity
	ExchangeAPIURL    string
	ExchangeWSURL     string
	ExchangeKeyID     string
	ExchangeAPISecret string
	DryRun            bool

	// Ambient persistence/notification (§2b) — never read back into core state
	DatabaseURL    string
	TelegramToken  string
	TelegramChatID int64
}

func Load() (*Config, error) {
	cfg := &Config{
		Debug: getEnvBool("DEBUG", false),

		TradingMode:    getEnv("TRADING_MODE", "paper"),
		InitialBalance: getEnvDecimal("INITIAL_BALANCE", decimal.NewFromInt(1000)),
		MarketSlugs:    getEnvList("MARKET_SLUGS", nil),

		KellyFraction:  getEnvDecimal("KELLY_FRACTION", decimal.NewFromFloat(0.25)),
		MinEdge:        getEnvDecimal("MIN_EDGE", decimal.NewFromFloat(0.03)),
		MinTradeSize:   getEnvDecimal("MIN_TRADE_SIZE", decimal.NewFromInt(1)),
		MaxPositionPct: getEnvDecimal("MAX_POSITION_PCT", decimal.NewFromFloat(0.10)),

		MaxPositionPerMarket:    getEnvDecimal("MAX_POSITION_PER_MARKET", decimal.NewFromInt(200)),
		MaxPortfolioExposure:    getEnvDecimal("MAX_PORTFOLIO_EXPOSURE", decimal.NewFromInt(1000)),
		MaxPortfolioExposurePct: getEnvDecimal("MAX_PORTFOLIO_EXPOSURE_PCT", decimal.NewFromFloat(0.75)),
		MaxCorrelatedExposure:   getEnvDecimal("MAX_CORRELATED_EXPOSURE", decimal.NewFromInt(400)),
		MaxPositions:            getEnvInt("MAX_POSITIONS", 20),

		MaxDailyLoss:                     getEnvDecimal("MAX_DAILY_LOSS", decimal.NewFromInt(100)),
		MaxDrawdownPct:                   getEnvDecimal("MAX_DRAWDOWN_PCT", decimal.NewFromFloat(0.20)),
		MaxTotalPnLDrawdownPctForNewBuys: getEnvDecimal("MAX_TOTAL_PNL_DRAWDOWN_PCT_FOR_NEW_BUYS", decimal.NewFromFloat(0.30)),

		CashBuffer:          getEnvDecimal("CASH_BUFFER", decimal.NewFromFloat(0.98)),
		TakerFeeBps:         int64(getEnvInt("TAKER_FEE_BPS", 10)),
		MakerFillFraction:   getEnvDecimal("MAKER_FILL_FRACTION", decimal.NewFromFloat(0.02)),
		LiquidationDiscount: getEnvDecimal("LIQUIDATION_DISCOUNT", decimal.NewFromFloat(0.9)),
		ReconcileInterval:   getEnvDuration("RECONCILE_INTERVAL", time.Second),

		FeedStaleAfter:     getEnvDuration("FEED_STALE_AFTER", 30*time.Second),
		AllowInGameTrading: getEnvBool("ALLOW_IN_GAME_TRADING", false),
		TickInterval:       getEnvDuration("TICK_INTERVAL", time.Second),
		HealthPort:         getEnvInt("HEALTH_PORT", 9090),

		ExchangeAPIURL:    getEnv("EXCHANGE_API_URL", ""),
		ExchangeWSURL:     getEnv("EXCHANGE_WS_URL", ""),
		ExchangeKeyID:     os.Getenv("EXCHANGE_KEY_ID"),
		ExchangeAPISecret: os.Getenv("EXCHANGE_API_SECRET"),
		DryRun:            getEnvBool("DRY_RUN", false),

		DatabaseURL:   getEnv("DATABASE_URL", "data/sportsbook.db"),
		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
	}

	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	if cfg.TradingMode != "paper" && cfg.TradingMode != "live" {
		return nil, fmt.Errorf("invalid TRADING_MODE %q: must be paper or live", cfg.TradingMode)
	}
	if cfg.TradingMode == "live" && (cfg.ExchangeAPIURL == "" || cfg.ExchangeKeyID == "" || cfg.ExchangeAPISecret == "") {
		return nil, fmt.Errorf("EXCHANGE_API_URL, EXCHANGE_KEY_ID, and EXCHANGE_API_SECRET are required in live trading mode")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
