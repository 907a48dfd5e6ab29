package risk

import (
	"testing"

	"github.com/shopspring/decimal"
)

// fakeExposureQuery lets tests control exposure inputs without a state.Manager.
type fakeExposureQuery struct {
	marketExposure    map[string]decimal.Decimal
	portfolioExposure decimal.Decimal
	positionCount     int
	hasPosition       map[string]bool
}

func (f *fakeExposureQuery) TotalMarketExposure(slug string) decimal.Decimal {
	return f.marketExposure[slug]
}

func (f *fakeExposureQuery) TotalPortfolioExposure() decimal.Decimal {
	return f.portfolioExposure
}

func (f *fakeExposureQuery) OpenPositionCount() int {
	return f.positionCount
}

func (f *fakeExposureQuery) HasAnyPosition(slug string) bool {
	return f.hasPosition[slug]
}

func newFakeQuery() *fakeExposureQuery {
	return &fakeExposureQuery{
		marketExposure: make(map[string]decimal.Decimal),
		hasPosition:    make(map[string]bool),
	}
}

func TestExposureMonitorAllowsFullAmountUnderAllLimits(t *testing.T) {
	q := newFakeQuery()
	m := NewExposureMonitor(q, dec("200"), dec("1000"), dec("0.75"), dec("400"), 20)

	room := m.CanAddExposure("game-a", dec("100"), dec("1000"))
	if !room.Equal(dec("100")) {
		t.Errorf("room = %s, want 100 (no constraint binding)", room)
	}
}

func TestExposureMonitorClampsToPerMarketCap(t *testing.T) {
	q := newFakeQuery()
	q.marketExposure["game-a"] = dec("150")
	m := NewExposureMonitor(q, dec("200"), dec("1000"), dec("0.75"), dec("400"), 20)

	room := m.CanAddExposure("game-a", dec("100"), dec("1000"))
	if !room.Equal(dec("50")) {
		t.Errorf("room = %s, want 50 (200 cap - 150 existing)", room)
	}
}

func TestExposureMonitorBlocksNewMarketAtPositionCountLimit(t *testing.T) {
	q := newFakeQuery()
	q.positionCount = 20
	m := NewExposureMonitor(q, dec("200"), dec("1000"), dec("0.75"), dec("400"), 20)

	room := m.CanAddExposure("brand-new-market", dec("100"), dec("1000"))
	if !room.IsZero() {
		t.Errorf("room = %s, want 0 at the max position count with no existing position", room)
	}
}

func TestExposureMonitorAllowsAddingToExistingPositionAtCountLimit(t *testing.T) {
	q := newFakeQuery()
	q.positionCount = 20
	q.hasPosition["game-a"] = true
	m := NewExposureMonitor(q, dec("200"), dec("1000"), dec("0.75"), dec("400"), 20)

	room := m.CanAddExposure("game-a", dec("50"), dec("1000"))
	if room.IsZero() {
		t.Error("adding to an already-open market should not be blocked by the position count cap")
	}
}

func TestExposureMonitorClampsToPortfolioPctCap(t *testing.T) {
	q := newFakeQuery()
	q.portfolioExposure = dec("700")
	m := NewExposureMonitor(q, dec("1000"), dec("5000"), dec("0.75"), dec("400"), 20)

	// 75% of 1000 equity = 750 cap; 700 already used leaves 50 of room.
	room := m.CanAddExposure("game-a", dec("200"), dec("1000"))
	if !room.Equal(dec("50")) {
		t.Errorf("room = %s, want 50 (pct cap binding)", room)
	}
}

func TestExposureMonitorEnforcesCorrelationGroupCap(t *testing.T) {
	q := newFakeQuery()
	q.marketExposure["game-a-moneyline"] = dec("300")
	q.marketExposure["game-a-spread"] = dec("300")
	m := NewExposureMonitor(q, dec("1000"), dec("5000"), dec("0.9"), dec("400"), 20)
	m.SetCorrelationGroup("game-a", []string{"game-a-moneyline", "game-a-spread"})

	// group already holds 600 of a 400 cap: no further room.
	room := m.CanAddExposure("game-a-spread", dec("100"), dec("10000"))
	if !room.IsZero() {
		t.Errorf("room = %s, want 0 once the correlated group is over its cap", room)
	}
}

func TestExposureMonitorNeverReturnsNegativeRoom(t *testing.T) {
	q := newFakeQuery()
	q.marketExposure["game-a"] = dec("500")
	m := NewExposureMonitor(q, dec("200"), dec("1000"), dec("0.75"), dec("400"), 20)

	room := m.CanAddExposure("game-a", dec("50"), dec("1000"))
	if room.IsNegative() {
		t.Errorf("room should never go negative, got %s", room)
	}
}
