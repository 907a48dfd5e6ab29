// Package core contains the Strategy Engine: the single-goroutine
// orchestrator that drives the tick loop and sequences signal
// aggregation, risk evaluation, and order submission.
package core

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ridgeline-sports/sportsbook-bot/execution"
	"github.com/ridgeline-sports/sportsbook-bot/feeds"
	"github.com/ridgeline-sports/sportsbook-bot/risk"
	"github.com/ridgeline-sports/sportsbook-bot/state"
	"github.com/ridgeline-sports/sportsbook-bot/strategy"
	"github.com/ridgeline-sports/sportsbook-bot/types"
)

// Engine drives the tick loop and fans work across registered strategies
// (§4.4). One goroutine calls Run; feed goroutines and the event bus run
// concurrently and touch shared state only through their own mutexes.
type Engine struct {
	mu sync.Mutex

	tracker    *feeds.Tracker
	store      *state.Manager
	riskMgr    *risk.Manager
	executor   execution.Executor
	strategies []strategy.Strategy

	tickInterval       time.Duration
	updatedMarkets     map[string]bool
	router             *MarketRouter
	allowInGameTrading bool

	running bool
	stopCh  chan struct{}
}

// SetAllowInGameTrading controls whether today-dated market slugs are
// tradable (§6 slug tradability filter).
func (e *Engine) SetAllowInGameTrading(allow bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.allowInGameTrading = allow
}

// SetRouter narrows on_market_update dispatch (§4.4 step 3) to only the
// strategies registered on the market that changed, instead of sweeping
// every strategy on every updated market. Optional; a nil router (the
// default) preserves the broadcast-to-all behavior.
func (e *Engine) SetRouter(router *MarketRouter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.router = router
}

// NewEngine wires the engine's dependencies. Strategies are registered in
// the order they should execute within a tick.
func NewEngine(tracker *feeds.Tracker, store *state.Manager, riskMgr *risk.Manager, executor execution.Executor, strategies []strategy.Strategy, tickInterval time.Duration) *Engine {
	if tickInterval <= 0 {
		tickInterval = time.Second
	}
	e := &Engine{
		tracker:        tracker,
		store:          store,
		riskMgr:        riskMgr,
		executor:       executor,
		strategies:     strategies,
		tickInterval:   tickInterval,
		updatedMarkets: make(map[string]bool),
		stopCh:         make(chan struct{}),
	}
	executor.AddFillListener(e.onFill)
	return e
}

// onFill invalidates any strategy-cached quote state for the fill's
// market so the next tick re-quotes (§4.4 fill-driven invalidation).
func (e *Engine) onFill(event execution.FillEvent) {
	for _, s := range e.strategies {
		s.OnFill(event.MarketSlug)
	}
	e.mu.Lock()
	e.updatedMarkets[event.MarketSlug] = true
	e.mu.Unlock()
}

// NotifyMarketUpdate marks a market as updated since the prior tick. Feed
// producers call this when they refresh a market's book or game state.
func (e *Engine) NotifyMarketUpdate(marketSlug string) {
	e.mu.Lock()
	e.updatedMarkets[marketSlug] = true
	e.mu.Unlock()
}

// Run executes the tick loop until ctx is cancelled (§5: one goroutine
// drives the engine; feed goroutines never share a lock with it directly).
func (e *Engine) Run(ctx context.Context) {
	log.Info().Dur("tick_interval", e.tickInterval).Msg("⚡ strategy engine started")
	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("strategy engine stopped")
			return
		case <-e.stopCh:
			log.Info().Msg("strategy engine stopped")
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// Stop signals Run to exit. Safe to call once.
func (e *Engine) Stop() {
	close(e.stopCh)
}

// tick runs the full 8-step sequence (§4.4).
func (e *Engine) tick(ctx context.Context) {
	// 2. on_tick for every strategy.
	var signals []strategy.Signal
	for _, s := range e.strategies {
		if !s.Enabled() {
			continue
		}
		signals = append(signals, s.OnTick()...)
	}

	// 3. on_market_update for markets touched since the prior tick.
	e.mu.Lock()
	updated := make([]string, 0, len(e.updatedMarkets))
	for slug := range e.updatedMarkets {
		updated = append(updated, slug)
	}
	e.updatedMarkets = make(map[string]bool)
	e.mu.Unlock()

	sort.Strings(updated)
	for _, slug := range updated {
		for _, s := range e.strategiesFor(slug) {
			if !s.Enabled() {
				continue
			}
			signals = append(signals, s.OnMarketUpdate(slug)...)
		}
	}

	// 4. aggregate and resolve collisions.
	resolved := aggregateSignals(signals)

	// 5-6. evaluate each surviving signal in deterministic order, submit approved ones.
	sort.Slice(resolved, func(i, j int) bool {
		if resolved[i].MarketSlug != resolved[j].MarketSlug {
			return resolved[i].MarketSlug < resolved[j].MarketSlug
		}
		return resolved[i].Strategy < resolved[j].Strategy
	})

	e.mu.Lock()
	allowInGame := e.allowInGameTrading
	e.mu.Unlock()

	for _, sig := range resolved {
		if sig.IsBuy() && !IsTradeableSlug(sig.MarketSlug, allowInGame, time.Now()) {
			log.Debug().Str("market_slug", sig.MarketSlug).Msg("signal rejected: market slug not tradeable")
			continue
		}
		decision := e.riskMgr.Evaluate(sig)
		if !decision.Approved {
			log.Debug().Str("market_slug", sig.MarketSlug).Str("strategy", sig.Strategy).Str("reason", decision.Reason).Msg("signal rejected by risk manager")
			continue
		}
		e.submit(ctx, decision.Signal)
	}

	// 7. advance resting orders.
	if err := e.executor.CheckRestingOrders(ctx); err != nil {
		log.Warn().Err(err).Msg("check resting orders failed")
	}

	// 8. update circuit breaker with post-tick equity.
	equity := e.store.TotalEquity(e.markPosition)
	e.riskMgr.Breaker().Update(equity)
}

// strategiesFor returns the strategies that should see an update for slug:
// every registered strategy if no router is set, or the router's narrower
// subscription list otherwise.
func (e *Engine) strategiesFor(slug string) []strategy.Strategy {
	e.mu.Lock()
	router := e.router
	e.mu.Unlock()
	if router == nil {
		return e.strategies
	}
	return router.StrategiesFor(slug)
}

func (e *Engine) markPosition(slug string, side types.Side, quantity int) decimal.Decimal {
	bid, _, ok := e.tracker.GetBest(slug, side)
	if !ok {
		return decimal.Zero
	}
	return bid.Mul(decimal.NewFromInt(int64(quantity)))
}

func (e *Engine) submit(ctx context.Context, sig strategy.Signal) {
	if sig.IsCancel() {
		if err := e.executor.CancelAllOrders(ctx, sig.MarketSlug); err != nil {
			log.Warn().Err(err).Str("market_slug", sig.MarketSlug).Msg("cancel failed")
		}
		return
	}

	req := execution.OrderRequest{
		MarketSlug: sig.MarketSlug,
		Intent:     sig.Intent(),
		Type:       types.OrderTypeLimit,
		Price:      sig.Price,
		Quantity:   sig.Quantity,
		Strategy:   sig.Strategy,
	}

	result, err := e.executor.ExecuteOrder(ctx, req)
	if err != nil {
		log.Error().Err(err).Str("market_slug", sig.MarketSlug).Msg("order submission failed")
		return
	}
	if result.Status == types.StatusRejected {
		log.Warn().Str("market_slug", sig.MarketSlug).Str("reason", result.RejectReason).Msg("order rejected")
		return
	}
	log.Info().Str("market_slug", sig.MarketSlug).Str("strategy", sig.Strategy).Str("status", string(result.Status)).Int("filled", result.FilledQuantity).Msg("order submitted")
}

// aggregateSignals resolves collisions within one tick (§4.4): duplicate
// (market, action) pairs keep the higher urgency then higher confidence
// signal; once each action is reduced to one signal, opposing actions
// remaining on the same market (a BUY against a SELL, or BUY_YES against
// BUY_NO) keep only the highest-confidence survivor.
func aggregateSignals(signals []strategy.Signal) []strategy.Signal {
	type actionKey struct {
		slug   string
		action types.SignalAction
	}
	byAction := make(map[actionKey]strategy.Signal)
	var cancels []strategy.Signal

	for _, sig := range signals {
		if !sig.Validate() {
			continue
		}
		if sig.IsCancel() {
			cancels = append(cancels, sig)
			continue
		}
		k := actionKey{slug: sig.MarketSlug, action: sig.Action}
		existing, ok := byAction[k]
		if !ok {
			byAction[k] = sig
			continue
		}
		if sig.Urgency != existing.Urgency {
			if sig.Urgency > existing.Urgency {
				byAction[k] = sig
			}
			continue
		}
		if sig.Confidence.GreaterThan(existing.Confidence) {
			byAction[k] = sig
		}
	}

	bySlug := make(map[string][]strategy.Signal)
	for _, sig := range byAction {
		bySlug[sig.MarketSlug] = append(bySlug[sig.MarketSlug], sig)
	}

	out := make([]strategy.Signal, 0, len(byAction))
	for _, sigs := range bySlug {
		if len(sigs) == 1 {
			out = append(out, sigs[0])
			continue
		}
		winner := sigs[0]
		for _, s := range sigs[1:] {
			if s.Confidence.GreaterThan(winner.Confidence) {
				winner = s
			}
		}
		out = append(out, winner)
	}
	out = append(out, cancels...)
	return out
}
