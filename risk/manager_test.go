package risk

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/ridgeline-sports/sportsbook-bot/strategy"
	"github.com/ridgeline-sports/sportsbook-bot/types"
)

func testManager(t *testing.T, cash, equity decimal.Decimal) *Manager {
	t.Helper()
	q := newFakeQuery()
	exposure := NewExposureMonitor(q, dec("1000"), dec("5000"), dec("0.9"), dec("1000"), 20)
	breaker := NewCircuitBreaker(dec("1000000"), dec("0.99"), nil)
	breaker.Initialize(equity)

	cfg := Config{
		CashBuffer:                       dec("0.98"),
		MinTradeSize:                     dec("1"),
		KellyFraction:                    dec("0.25"),
		MaxPositionPct:                   dec("0.5"),
		MinEdge:                          dec("0.03"),
		MaxTotalPnLDrawdownPctForNewBuys: dec("0.9"),
	}
	return NewManager(cfg, exposure, breaker, equity, func() decimal.Decimal { return cash }, func() decimal.Decimal { return equity })
}

func buySignal(price decimal.Decimal, qty int) strategy.Signal {
	return strategy.NewSignal("test").Market("game-a").Action(types.ActionBuyYes).
		Price(price).Quantity(qty).Confidence(dec("1")).Build()
}

func TestRiskManagerApprovesCancelUnconditionally(t *testing.T) {
	m := testManager(t, dec("1000"), dec("1000"))
	sig := strategy.NewSignal("test").Market("game-a").Action(types.ActionCancel).Build()

	decision := m.Evaluate(sig)
	if !decision.Approved {
		t.Errorf("cancels should always be approved, got %+v", decision)
	}
}

func TestRiskManagerBlocksBuyWhileBreakerTripped(t *testing.T) {
	m := testManager(t, dec("1000"), dec("1000"))
	m.Breaker().EmergencyStop("test halt")

	decision := m.Evaluate(buySignal(dec("0.5"), 10))
	if decision.Approved {
		t.Error("buy should be rejected while the circuit breaker is tripped")
	}
}

func TestRiskManagerPassesSellThroughEvenWhenTripped(t *testing.T) {
	m := testManager(t, dec("1000"), dec("1000"))
	m.Breaker().EmergencyStop("test halt")

	sell := strategy.NewSignal("test").Market("game-a").Action(types.ActionSellYes).
		Price(dec("0.6")).Quantity(5).Build()
	decision := m.Evaluate(sell)
	if !decision.Approved {
		t.Error("sells/exits should pass through even while the breaker is tripped")
	}
}

func TestRiskManagerResizesToAffordableCash(t *testing.T) {
	m := testManager(t, dec("50"), dec("1000"))

	decision := m.Evaluate(buySignal(dec("0.5"), 1000))
	if !decision.Approved {
		t.Fatalf("expected an approved, resized order, got %+v", decision)
	}
	if !decision.Resized {
		t.Error("expected the order to be flagged as resized")
	}
	maxAffordable := int(dec("50").Mul(dec("0.98")).Div(dec("0.5")).IntPart())
	if decision.Signal.Quantity > maxAffordable {
		t.Errorf("quantity %d exceeds what cash can afford (%d)", decision.Signal.Quantity, maxAffordable)
	}
}

func TestRiskManagerRejectsWhenCashCannotCoverMinTradeSize(t *testing.T) {
	m := testManager(t, dec("0.5"), dec("1000"))

	decision := m.Evaluate(buySignal(dec("0.5"), 10))
	if decision.Approved {
		t.Error("expected rejection when affordable cash can't clear the minimum trade size")
	}
}

func TestRiskManagerAppliesKellySizingWhenHintPresent(t *testing.T) {
	m := testManager(t, dec("1000"), dec("1000"))
	sig := strategy.NewSignal("test").Market("game-a").Action(types.ActionBuyYes).
		Price(dec("0.40")).Quantity(10000).Confidence(dec("1")).
		Hint(types.SignalHint{HasTrueProbability: true, TrueProbability: dec("0.70")}).Build()

	decision := m.Evaluate(sig)
	if !decision.Approved {
		t.Fatalf("expected an approved Kelly-sized order, got %+v", decision)
	}
	if decision.Signal.Quantity >= 10000 {
		t.Error("Kelly sizing should have reduced the requested quantity")
	}
}

func TestRiskManagerRejectsNoEdgeUnderKelly(t *testing.T) {
	m := testManager(t, dec("1000"), dec("1000"))
	sig := strategy.NewSignal("test").Market("game-a").Action(types.ActionBuyYes).
		Price(dec("0.50")).Quantity(10).Confidence(dec("1")).
		Hint(types.SignalHint{HasTrueProbability: true, TrueProbability: dec("0.505")}).Build()

	decision := m.Evaluate(sig)
	if decision.Approved {
		t.Error("expected rejection when the Kelly-implied edge is below minEdge")
	}
}

func TestRiskManagerBlocksNewBuysPastStartupDrawdown(t *testing.T) {
	q := newFakeQuery()
	exposure := NewExposureMonitor(q, dec("1000"), dec("5000"), dec("0.9"), dec("1000"), 20)
	breaker := NewCircuitBreaker(dec("1000000"), dec("0.99"), nil)
	breaker.Initialize(dec("1000"))
	cfg := Config{
		CashBuffer:                       dec("0.98"),
		MinTradeSize:                     dec("1"),
		KellyFraction:                    dec("0.25"),
		MaxPositionPct:                   dec("0.5"),
		MinEdge:                          dec("0.03"),
		MaxTotalPnLDrawdownPctForNewBuys: dec("0.1"),
	}
	// equity has dropped 50% from the 1000 starting point, past the 10% gate.
	m := NewManager(cfg, exposure, breaker, dec("1000"), func() decimal.Decimal { return dec("500") }, func() decimal.Decimal { return dec("500") })

	decision := m.Evaluate(buySignal(dec("0.5"), 10))
	if decision.Approved {
		t.Error("expected new buys to be blocked past the startup drawdown gate")
	}
}

func TestRiskManagerClampsToExposureRoom(t *testing.T) {
	q := newFakeQuery()
	q.marketExposure["game-a"] = dec("95")
	exposure := NewExposureMonitor(q, dec("100"), dec("5000"), dec("0.9"), dec("1000"), 20)
	breaker := NewCircuitBreaker(dec("1000000"), dec("0.99"), nil)
	breaker.Initialize(dec("1000"))
	cfg := Config{
		CashBuffer:                       dec("1"),
		MinTradeSize:                     dec("1"),
		KellyFraction:                    dec("1"),
		MaxPositionPct:                   dec("1"),
		MinEdge:                          dec("0.01"),
		MaxTotalPnLDrawdownPctForNewBuys: dec("0.9"),
	}
	m := NewManager(cfg, exposure, breaker, dec("1000"), func() decimal.Decimal { return dec("1000") }, func() decimal.Decimal { return dec("1000") })

	decision := m.Evaluate(buySignal(dec("0.5"), 20)) // wants $10 notional, only $5 of market room left
	if !decision.Approved {
		t.Fatalf("expected an approved, exposure-clamped order, got %+v", decision)
	}
	if decision.Signal.Quantity > 10 {
		t.Errorf("quantity %d exceeds the $5-of-room limit at $0.50/contract", decision.Signal.Quantity)
	}
}
