package risk

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ridgeline-sports/sportsbook-bot/strategy"
)

// Config bundles every tunable the risk manager enforces.
type Config struct {
	CashBuffer                       decimal.Decimal // e.g. 0.98
	MinTradeSize                     decimal.Decimal
	KellyFraction                    decimal.Decimal
	MaxPositionPct                   decimal.Decimal
	MinEdge                          decimal.Decimal
	DailyLossLimit                   decimal.Decimal
	MaxDrawdownPct                   decimal.Decimal
	MaxPositionPerMarket             decimal.Decimal
	MaxPortfolioExposure             decimal.Decimal
	MaxPortfolioExposurePct          decimal.Decimal
	MaxCorrelatedExposure            decimal.Decimal
	MaxPositions                     int
	MaxTotalPnLDrawdownPctForNewBuys decimal.Decimal
}

// RiskDecision is the outcome of evaluating one signal: whether it is
// approved, possibly with a resized quantity, and why.
type RiskDecision struct {
	Approved bool
	Signal   strategy.Signal
	Reason   string
	Resized  bool
}

// Manager is the gatekeeper between strategy signals and the executor. It
// composes the Kelly sizer, the exposure monitor, and the circuit
// breaker, and runs the 8-step evaluation pipeline (§4.5).
type Manager struct {
	mu sync.Mutex

	cfg      Config
	sizer    *KellySizer
	exposure *ExposureMonitor
	breaker  *CircuitBreaker

	startingEquity decimal.Decimal
	cashFn         func() decimal.Decimal
	equityFn       func() decimal.Decimal
}

// NewManager creates a risk manager. cashFn and equityFn are read-through
// accessors onto the state manager's current cash balance and
// mark-to-market total equity.
func NewManager(cfg Config, exposure *ExposureMonitor, breaker *CircuitBreaker, startingEquity decimal.Decimal, cashFn, equityFn func() decimal.Decimal) *Manager {
	return &Manager{
		cfg:            cfg,
		sizer:          NewKellySizer(cfg.KellyFraction, cfg.MaxPositionPct, cfg.MinEdge),
		exposure:       exposure,
		breaker:        breaker,
		startingEquity: startingEquity,
		cashFn:         cashFn,
		equityFn:       equityFn,
	}
}

// Evaluate runs the 8-step pipeline against one signal (§4.5).
func (m *Manager) Evaluate(sig strategy.Signal) RiskDecision {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Step 1: cancels always approved.
	if sig.IsCancel() {
		return RiskDecision{Approved: true, Signal: sig, Reason: "cancel"}
	}

	equity := m.equityFn()

	// Step 2: update breaker, reject BUYs while tripped (SELLs pass through).
	m.breaker.Update(equity)
	if sig.IsBuy() {
		if ok, reason := m.breaker.CanTrade(); !ok {
			return RiskDecision{Approved: false, Signal: sig, Reason: "circuit breaker tripped: " + reason}
		}
	}

	if !sig.IsBuy() {
		return RiskDecision{Approved: true, Signal: sig, Reason: "sell/exit always permitted"}
	}

	resized := false
	working := sig

	// Step 3: cap quantity by affordable cash.
	cash := m.cashFn()
	affordableCash := cash.Mul(m.cfg.CashBuffer)
	maxAffordableQty := affordableCash.Div(working.Price).IntPart()
	if int64(working.Quantity) > maxAffordableQty {
		working.Quantity = int(maxAffordableQty)
		resized = true
	}
	if decimal.NewFromInt(int64(working.Quantity)).Mul(working.Price).LessThan(m.cfg.MinTradeSize) {
		return RiskDecision{Approved: false, Signal: sig, Reason: "insufficient affordable cash"}
	}

	// Step 4: Kelly sizing, only when a true-probability hint is present.
	if working.Hint.HasTrueProbability {
		result := m.sizer.Size(equity, working.Price, working.Hint.TrueProbability, working.Confidence)
		if !result.Ok {
			return RiskDecision{Approved: false, Signal: sig, Reason: "no edge under Kelly sizing"}
		}
		if result.Contracts < working.Quantity {
			working.Quantity = result.Contracts
			resized = true
		}
	}

	// Step 5: drawdown-from-startup gate on new BUYs.
	if !m.startingEquity.IsZero() {
		drawdown := m.startingEquity.Sub(equity).Div(m.startingEquity)
		if drawdown.GreaterThan(m.cfg.MaxTotalPnLDrawdownPctForNewBuys) {
			return RiskDecision{Approved: false, Signal: sig, Reason: "startup drawdown limit blocks new buys"}
		}
	}

	// Step 6: exposure check, reduce to largest quantity that fits.
	requestedNotional := decimal.NewFromInt(int64(working.Quantity)).Mul(working.Price)
	allowedNotional := m.exposure.CanAddExposure(working.MarketSlug, requestedNotional, equity)
	if allowedNotional.LessThan(requestedNotional) {
		allowedQty := allowedNotional.Div(working.Price).IntPart()
		if int64(working.Quantity) != allowedQty {
			working.Quantity = int(allowedQty)
			resized = true
		}
	}
	if working.Quantity <= 0 {
		return RiskDecision{Approved: false, Signal: sig, Reason: "no exposure room available"}
	}

	// Step 7: re-check min trade size after resizing.
	finalNotional := decimal.NewFromInt(int64(working.Quantity)).Mul(working.Price)
	if finalNotional.LessThan(m.cfg.MinTradeSize) {
		return RiskDecision{Approved: false, Signal: sig, Reason: "resized notional below minimum trade size"}
	}

	// Step 8: emit decision.
	decision := RiskDecision{Approved: true, Signal: working, Resized: resized, Reason: "approved"}
	if resized {
		log.Info().Str("market_slug", working.MarketSlug).Int("original_qty", sig.Quantity).Int("final_qty", working.Quantity).Msg("signal resized by risk manager")
	}
	return decision
}

// Breaker exposes the circuit breaker for operator-triggered emergency
// stop/reset and for the engine's post-tick equity update.
func (m *Manager) Breaker() *CircuitBreaker {
	return m.breaker
}

// Exposure exposes the exposure monitor so correlation groups can be
// registered at startup.
func (m *Manager) Exposure() *ExposureMonitor {
	return m.exposure
}
