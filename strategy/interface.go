// Package strategy defines the plug-in contract every trading strategy
// implements plus the concrete strategies that satisfy it.
package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ridgeline-sports/sportsbook-bot/types"
)

// Strategy is the interface every trading strategy implements. The engine
// calls OnTick once per tick and OnMarketUpdate for markets it is
// registered to that changed since the last tick.
type Strategy interface {
	Name() string
	Enabled() bool
	OnTick() []Signal
	OnMarketUpdate(marketSlug string) []Signal
	// OnFill invalidates any strategy-cached quote state for a market,
	// called by the engine after a fill commits (§4.4 fill-driven invalidation).
	OnFill(marketSlug string)
}

// Signal is an immutable value describing a requested trading action. It
// is passed by copy between strategy, engine, risk manager, and executor.
type Signal struct {
	MarketSlug string
	Action     types.SignalAction
	Price      decimal.Decimal
	Quantity   int
	Urgency    types.Urgency
	Confidence decimal.Decimal // 0-1
	Strategy   string
	Hint       types.SignalHint
	CreatedAt  time.Time
}

// Intent maps this signal's action onto the order intent it submits as.
func (s Signal) Intent() types.OrderIntent {
	return s.Action.Intent()
}

// IsCancel reports whether the signal is a cancel rather than a trade.
func (s Signal) IsCancel() bool {
	return s.Action == types.ActionCancel
}

// IsBuy reports whether the signal adds exposure.
func (s Signal) IsBuy() bool {
	return s.Action == types.ActionBuyYes || s.Action == types.ActionBuyNo
}

// Validate reports whether the signal is well-formed (§3: BUY actions
// require price > 0).
func (s Signal) Validate() bool {
	if s.MarketSlug == "" || s.Strategy == "" {
		return false
	}
	if s.IsCancel() {
		return true
	}
	if s.Quantity <= 0 {
		return false
	}
	if s.IsBuy() && s.Price.LessThanOrEqual(decimal.Zero) {
		return false
	}
	return true
}

// SignalBuilder constructs signals with a fluent interface, matching the
// builder pattern used elsewhere for order/request construction.
type SignalBuilder struct {
	signal Signal
}

// NewSignal starts a new signal builder.
func NewSignal(strategyName string) *SignalBuilder {
	return &SignalBuilder{
		signal: Signal{
			Strategy:   strategyName,
			Confidence: decimal.NewFromFloat(0.5),
			Urgency:    types.UrgencyMedium,
			CreatedAt:  time.Now(),
		},
	}
}

func (b *SignalBuilder) Market(slug string) *SignalBuilder {
	b.signal.MarketSlug = slug
	return b
}

func (b *SignalBuilder) Action(action types.SignalAction) *SignalBuilder {
	b.signal.Action = action
	return b
}

func (b *SignalBuilder) Price(price decimal.Decimal) *SignalBuilder {
	b.signal.Price = price
	return b
}

func (b *SignalBuilder) Quantity(qty int) *SignalBuilder {
	b.signal.Quantity = qty
	return b
}

func (b *SignalBuilder) Urgency(u types.Urgency) *SignalBuilder {
	b.signal.Urgency = u
	return b
}

func (b *SignalBuilder) Confidence(c decimal.Decimal) *SignalBuilder {
	b.signal.Confidence = c
	return b
}

func (b *SignalBuilder) Hint(h types.SignalHint) *SignalBuilder {
	b.signal.Hint = h
	return b
}

func (b *SignalBuilder) Build() Signal {
	return b.signal
}
