package state

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/ridgeline-sports/sportsbook-bot/types"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestApplyFillOpensPosition(t *testing.T) {
	m := NewManager(dec("1000"))

	m.ApplyFill("game-a", types.IntentBuyLong, dec("0.40"), 10, dec("0.10"))

	pos, ok := m.Position("game-a", types.SideYes)
	if !ok {
		t.Fatal("expected an open YES position after a buy fill")
	}
	if pos.Quantity != 10 {
		t.Errorf("quantity = %d, want 10", pos.Quantity)
	}
	if !pos.AvgPrice.Equal(dec("0.40")) {
		t.Errorf("avg price = %s, want 0.40", pos.AvgPrice)
	}

	wantCash := dec("1000").Sub(dec("4")).Sub(dec("0.10"))
	if !m.Cash().Equal(wantCash) {
		t.Errorf("cash = %s, want %s", m.Cash(), wantCash)
	}
}

func TestApplyFillAveragesIntoExistingPosition(t *testing.T) {
	m := NewManager(dec("1000"))
	m.ApplyFill("game-a", types.IntentBuyLong, dec("0.40"), 10, decimal.Zero)
	m.ApplyFill("game-a", types.IntentBuyLong, dec("0.60"), 10, decimal.Zero)

	pos, ok := m.Position("game-a", types.SideYes)
	if !ok {
		t.Fatal("expected a position after two buy fills")
	}
	if pos.Quantity != 20 {
		t.Errorf("quantity = %d, want 20", pos.Quantity)
	}
	if !pos.AvgPrice.Equal(dec("0.50")) {
		t.Errorf("avg price = %s, want 0.50", pos.AvgPrice)
	}
}

func TestApplyFillClosesPositionAndRealizesPnL(t *testing.T) {
	m := NewManager(dec("1000"))
	m.ApplyFill("game-a", types.IntentBuyLong, dec("0.40"), 10, decimal.Zero)

	result := m.ApplyFill("game-a", types.IntentSellLong, dec("0.70"), 10, decimal.Zero)

	if !result.ClosedSide {
		t.Error("expected the side to be fully closed")
	}
	wantPnL := dec("0.30").Mul(dec("10"))
	if !result.RealizedPnL.Equal(wantPnL) {
		t.Errorf("realized pnl = %s, want %s", result.RealizedPnL, wantPnL)
	}
	if _, ok := m.Position("game-a", types.SideYes); ok {
		t.Error("position should no longer exist after being fully closed")
	}
}

func TestApplyFillPartialSellKeepsRemainder(t *testing.T) {
	m := NewManager(dec("1000"))
	m.ApplyFill("game-a", types.IntentBuyLong, dec("0.40"), 10, decimal.Zero)
	m.ApplyFill("game-a", types.IntentSellLong, dec("0.60"), 4, decimal.Zero)

	pos, ok := m.Position("game-a", types.SideYes)
	if !ok {
		t.Fatal("expected a remaining position after a partial close")
	}
	if pos.Quantity != 6 {
		t.Errorf("quantity = %d, want 6", pos.Quantity)
	}
}

func TestApplyFillNotifiesListenersAfterUnlock(t *testing.T) {
	m := NewManager(dec("1000"))
	var notified string
	m.AddFillListener(func(slug string) { notified = slug })

	m.ApplyFill("game-a", types.IntentBuyLong, dec("0.40"), 1, decimal.Zero)

	if notified != "game-a" {
		t.Errorf("listener saw slug %q, want game-a", notified)
	}
}

func TestTotalMarketExposureSumsBothSides(t *testing.T) {
	m := NewManager(dec("1000"))
	m.ApplyFill("game-a", types.IntentBuyLong, dec("0.40"), 10, decimal.Zero)
	m.ApplyFill("game-a", types.IntentBuyShort, dec("0.30"), 5, decimal.Zero)

	total := m.TotalMarketExposure("game-a")
	want := dec("0.40").Mul(dec("10")).Add(dec("0.30").Mul(dec("5")))
	if !total.Equal(want) {
		t.Errorf("total exposure = %s, want %s", total, want)
	}
}

func TestHasAnyPositionAndOpenPositionCount(t *testing.T) {
	m := NewManager(dec("1000"))
	if m.HasAnyPosition("game-a") {
		t.Error("should have no position before any fill")
	}

	m.ApplyFill("game-a", types.IntentBuyLong, dec("0.40"), 10, decimal.Zero)
	if !m.HasAnyPosition("game-a") {
		t.Error("should have a position after a buy fill")
	}
	if m.OpenPositionCount() != 1 {
		t.Errorf("open position count = %d, want 1", m.OpenPositionCount())
	}
}

func TestTotalEquityAddsMarkedPositions(t *testing.T) {
	m := NewManager(dec("1000"))
	m.ApplyFill("game-a", types.IntentBuyLong, dec("0.40"), 10, decimal.Zero)

	pricer := func(slug string, side types.Side, qty int) decimal.Decimal {
		return dec("0.55").Mul(decimal.NewFromInt(int64(qty)))
	}
	equity := m.TotalEquity(pricer)

	wantCash := dec("1000").Sub(dec("4"))
	want := wantCash.Add(dec("5.5"))
	if !equity.Equal(want) {
		t.Errorf("equity = %s, want %s", equity, want)
	}
}

func TestPutOrderDropsTerminalOrders(t *testing.T) {
	m := NewManager(dec("1000"))
	m.PutOrder(OrderState{ID: "o1", MarketSlug: "game-a", Status: types.StatusFilled})

	if _, ok := m.Order("o1"); ok {
		t.Error("a terminal order should not be tracked")
	}
}

func TestReconcileFromExchangeOverwritesState(t *testing.T) {
	m := NewManager(dec("1000"))
	m.ApplyFill("game-a", types.IntentBuyLong, dec("0.40"), 10, decimal.Zero)

	m.ReconcileFromExchange(
		[]PositionState{{MarketSlug: "game-b", Side: types.SideNo, Quantity: 3, AvgPrice: dec("0.20")}},
		nil,
		dec("777"),
	)

	if !m.Cash().Equal(dec("777")) {
		t.Errorf("cash = %s, want 777 after reconcile", m.Cash())
	}
	if _, ok := m.Position("game-a", types.SideYes); ok {
		t.Error("stale local position should be replaced by the exchange snapshot")
	}
	if _, ok := m.Position("game-b", types.SideNo); !ok {
		t.Error("expected the reconciled position to be present")
	}
}
