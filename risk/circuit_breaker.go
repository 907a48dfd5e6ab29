package risk

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// CircuitBreaker halts new BUYs once daily loss or drawdown limits are
// breached. Unlike a cooldown-based breaker, it clears only on a manual
// Reset (EmergencyStop trips it): tripping is a deliberate decision point the
// operator confirms, not something that clears itself after a timer.
type CircuitBreaker struct {
	mu sync.Mutex

	dailyLossLimit decimal.Decimal
	maxDrawdownPct decimal.Decimal
	now            func() time.Time

	day            string
	dayStartEquity decimal.Decimal
	dailyPnL       decimal.Decimal
	highWaterMark  decimal.Decimal
	tripped        bool
	reason         string
}

// NewCircuitBreaker creates a breaker with the given daily loss and
// drawdown limits. nowFn defaults to time.Now; tests may inject a fixed
// clock to exercise day-rollover behavior deterministically.
func NewCircuitBreaker(dailyLossLimit, maxDrawdownPct decimal.Decimal, nowFn func() time.Time) *CircuitBreaker {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &CircuitBreaker{
		dailyLossLimit: dailyLossLimit,
		maxDrawdownPct: maxDrawdownPct,
		now:            nowFn,
	}
}

// Initialize sets the starting equity baseline for day-start tracking and
// the initial high-water mark. Call once at startup before Update.
func (cb *CircuitBreaker) Initialize(startingEquity decimal.Decimal) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.day = cb.now().UTC().Format("2006-01-02")
	cb.dayStartEquity = startingEquity
	cb.dailyPnL = decimal.Zero
	cb.highWaterMark = startingEquity
}

// Update recomputes daily PnL and drawdown against current equity, rolls
// the day-start baseline over on UTC date change, and trips the breaker
// if a limit is breached. A negative equity reading is logged and
// ignored rather than trusted (it almost always indicates a bad mark).
func (cb *CircuitBreaker) Update(currentEquity decimal.Decimal) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if currentEquity.LessThan(decimal.Zero) {
		log.Error().Str("equity", currentEquity.String()).Msg("negative equity reading, skipping circuit breaker update")
		return
	}

	today := cb.now().UTC().Format("2006-01-02")
	if today != cb.day {
		cb.day = today
		cb.dayStartEquity = currentEquity
		cb.dailyPnL = decimal.Zero
	}

	if currentEquity.GreaterThan(cb.highWaterMark) {
		cb.highWaterMark = currentEquity
	}

	cb.dailyPnL = currentEquity.Sub(cb.dayStartEquity)

	if cb.tripped {
		return // trips only once; manual reset required to re-arm
	}

	if cb.dailyPnL.LessThan(cb.dailyLossLimit.Neg()) {
		cb.trip("daily loss limit exceeded")
		return
	}

	if !cb.highWaterMark.IsZero() {
		drawdownPct := cb.highWaterMark.Sub(currentEquity).Div(cb.highWaterMark)
		if drawdownPct.GreaterThan(cb.maxDrawdownPct) {
			cb.trip("max drawdown exceeded")
		}
	}
}

func (cb *CircuitBreaker) trip(reason string) {
	cb.tripped = true
	cb.reason = reason
	log.Warn().
		Str("reason", reason).
		Str("daily_pnl", cb.dailyPnL.String()).
		Str("high_water_mark", cb.highWaterMark.String()).
		Msg("🚨 circuit breaker tripped")
}

// CanTrade reports whether BUY signals are currently permitted, and why
// not when they aren't.
func (cb *CircuitBreaker) CanTrade() (bool, string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.tripped {
		return false, cb.reason
	}
	return true, ""
}

// EmergencyStop trips the breaker immediately regardless of PnL, e.g. on
// operator command or an upstream health check failure.
func (cb *CircuitBreaker) EmergencyStop(reason string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.trip(reason)
}

// Reset manually clears a trip. There is no automatic cooldown; this is
// the only way to re-arm the breaker.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.tripped = false
	cb.reason = ""
	log.Info().Msg("circuit breaker manually reset")
}

// Snapshot returns the breaker's current bookkeeping for logging/reporting.
func (cb *CircuitBreaker) Snapshot() (dailyPnL, highWaterMark decimal.Decimal, tripped bool, reason string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.dailyPnL, cb.highWaterMark, cb.tripped, cb.reason
}
