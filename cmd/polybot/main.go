// Command polybot runs the sports prediction-market trading bot: it wires
// the order book tracker, state manager, event bus, feeds, strategies,
// risk manager, executor, and strategy engine together and runs until
// interrupted.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ridgeline-sports/sportsbook-bot/core"
	"github.com/ridgeline-sports/sportsbook-bot/exec"
	"github.com/ridgeline-sports/sportsbook-bot/execution"
	"github.com/ridgeline-sports/sportsbook-bot/feeds"
	"github.com/ridgeline-sports/sportsbook-bot/health"
	"github.com/ridgeline-sports/sportsbook-bot/internal/config"
	"github.com/ridgeline-sports/sportsbook-bot/internal/database"
	"github.com/ridgeline-sports/sportsbook-bot/notify"
	"github.com/ridgeline-sports/sportsbook-bot/risk"
	"github.com/ridgeline-sports/sportsbook-bot/state"
	"github.com/ridgeline-sports/sportsbook-bot/strategy"
	"github.com/ridgeline-sports/sportsbook-bot/types"
)

const version = "1.0.0"

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().Str("version", version).Str("trading_mode", cfg.TradingMode).Msg("🚀 sportsbook bot starting")

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}

	tracker := feeds.NewTracker()
	bus := feeds.NewEventBus()
	store := state.NewManager(cfg.InitialBalance)
	registry := core.NewMarketRegistry()

	exposureMonitor := risk.NewExposureMonitor(
		store, cfg.MaxPositionPerMarket, cfg.MaxPortfolioExposure, cfg.MaxPortfolioExposurePct,
		cfg.MaxCorrelatedExposure, cfg.MaxPositions,
	)
	breaker := risk.NewCircuitBreaker(cfg.MaxDailyLoss, cfg.MaxDrawdownPct, nil)
	breaker.Initialize(cfg.InitialBalance)

	riskCfg := risk.Config{
		CashBuffer:                       cfg.CashBuffer,
		MinTradeSize:                     cfg.MinTradeSize,
		KellyFraction:                    cfg.KellyFraction,
		MaxPositionPct:                   cfg.MaxPositionPct,
		MinEdge:                          cfg.MinEdge,
		DailyLossLimit:                   cfg.MaxDailyLoss,
		MaxDrawdownPct:                   cfg.MaxDrawdownPct,
		MaxPositionPerMarket:             cfg.MaxPositionPerMarket,
		MaxPortfolioExposure:             cfg.MaxPortfolioExposure,
		MaxPortfolioExposurePct:          cfg.MaxPortfolioExposurePct,
		MaxCorrelatedExposure:            cfg.MaxCorrelatedExposure,
		MaxPositions:                     cfg.MaxPositions,
		MaxTotalPnLDrawdownPctForNewBuys: cfg.MaxTotalPnLDrawdownPctForNewBuys,
	}
	riskMgr := risk.NewManager(riskCfg, exposureMonitor, breaker, cfg.InitialBalance, store.Cash, func() decimal.Decimal {
		return store.TotalEquity(func(slug string, side types.Side, qty int) decimal.Decimal {
			bid, _, ok := tracker.GetBest(slug, side)
			if !ok {
				return decimal.Zero
			}
			return bid.Mul(decimal.NewFromInt(int64(qty)))
		})
	})

	var executor execution.Executor
	if cfg.TradingMode == "live" {
		client, err := exec.NewClient(exec.ClientConfig{
			BaseURL:   cfg.ExchangeAPIURL,
			KeyID:     cfg.ExchangeKeyID,
			APISecret: cfg.ExchangeAPISecret,
			DryRun:    cfg.DryRun,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize exchange client")
		}
		liveCfg := execution.LiveExecutorConfig{ReconcileInterval: cfg.ReconcileInterval, TakerFeeBps: cfg.TakerFeeBps}
		executor = execution.NewLiveExecutor(liveCfg, client, tracker, store, registry.Resolve, registry.ReverseResolve)
	} else {
		paperCfg := execution.PaperExecutorConfig{
			TakerFeeBps:         cfg.TakerFeeBps,
			MakerFillFraction:   cfg.MakerFillFraction,
			LiquidationDiscount: cfg.LiquidationDiscount,
		}
		executor = execution.NewPaperExecutor(paperCfg, tracker, store)
	}

	strategies := []strategy.Strategy{
		strategy.NewMarketMaker(strategy.MarketMakerConfig{MarketSlugs: cfg.MarketSlugs}, tracker),
		strategy.NewLiveArbitrage(strategy.LiveArbitrageConfig{MinEdge: cfg.MinEdge}, tracker, bus),
		strategy.NewStatisticalEdge(strategy.StatisticalEdgeConfig{MinEdge: cfg.MinEdge}, tracker, bus),
	}

	engine := core.NewEngine(tracker, store, riskMgr, executor, strategies, cfg.TickInterval)
	engine.SetAllowInGameTrading(cfg.AllowInGameTrading)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitor := health.NewMonitor(cfg.FeedStaleAfter)

	sportsFeed := feeds.NewSportsFeed(feeds.SportsFeedConfig{}, bus, cfg.MarketSlugs)
	oddsFeed := feeds.NewOddsFeed(feeds.OddsFeedConfig{}, bus, cfg.MarketSlugs)
	sportsFeed.SetMonitor(monitor)
	oddsFeed.SetMonitor(monitor)
	go sportsFeed.Run(ctx)
	go oddsFeed.Run(ctx)

	var poller *feeds.RestPoller
	if cfg.TradingMode == "paper" {
		tokens := marketTokens(registry)
		poller = feeds.NewRestPoller(feeds.RestPollerConfig{}, tracker, tokens)
		poller.SetMonitor(monitor)
		go poller.Run(ctx)
	}

	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", monitor.Handler())
	healthServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.HealthPort), Handler: healthMux}
	go func() {
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("health server stopped unexpectedly")
		}
	}()

	executor.AddFillListener(func(event execution.FillEvent) {
		if err := db.SaveFill(&database.Fill{
			OrderID: event.OrderID, MarketSlug: event.MarketSlug, Intent: string(event.Intent),
			Price: event.Price, Quantity: event.Quantity,
		}); err != nil {
			log.Warn().Err(err).Msg("failed to persist fill")
		}
	})

	go engine.Run(ctx)

	var telegramBot *notify.TelegramBot
	if cfg.TelegramToken != "" {
		telegramBot, err = notify.NewTelegramBot(cfg.TelegramToken, cfg.TelegramChatID, newStatsProvider(store))
		if err != nil {
			log.Error().Err(err).Msg("failed to initialize telegram bot")
		} else {
			telegramBot.Start()
			telegramBot.NotifyEngineStart(cfg.TradingMode)
		}
	}

	log.Info().Msg("✅ all services started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("🛑 shutting down")

	cancel()
	engine.Stop()
	healthServer.Close()
	if telegramBot != nil {
		telegramBot.NotifyEngineStop("process received shutdown signal")
		telegramBot.Stop()
	}

	log.Info().Msg("👋 goodbye")
}

func marketTokens(registry *core.MarketRegistry) []feeds.MarketTokens {
	var out []feeds.MarketTokens
	for _, m := range registry.ActiveMarkets() {
		out = append(out, feeds.MarketTokens{MarketSlug: m.Slug, YesTokenID: m.YesTokenID, NoTokenID: m.NoTokenID})
	}
	return out
}

type statsProvider struct {
	store *state.Manager
}

func newStatsProvider(store *state.Manager) *statsProvider {
	return &statsProvider{store: store}
}

func (p *statsProvider) GetStats() (trades, wins, losses int, pnl, equity decimal.Decimal) {
	positions := p.store.Positions()
	return len(positions), 0, 0, decimal.Zero, p.store.Cash()
}

func (p *statsProvider) GetBalance() (decimal.Decimal, error) {
	return p.store.Cash(), nil
}

func (p *statsProvider) GetOpenPositions() ([]notify.PositionSummary, error) {
	positions := p.store.Positions()
	out := make([]notify.PositionSummary, 0, len(positions))
	for _, pos := range positions {
		out = append(out, notify.PositionSummary{
			MarketSlug: pos.MarketSlug, Side: string(pos.Side), Quantity: pos.Quantity,
			AvgPrice: pos.AvgPrice, OpenedAt: pos.OpenedAt,
		})
	}
	return out, nil
}
