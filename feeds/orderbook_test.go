package feeds

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/ridgeline-sports/sportsbook-bot/types"
)

func lvl(price, qty string) RawLevel {
	return RawLevel{Price: price, Quantity: qty}
}

func TestTrackerUpdateSortsLevelsCorrectly(t *testing.T) {
	tr := NewTracker()
	tr.Update("game-a", Frame{
		Yes: SideFrame{
			Bids: []RawLevel{lvl("0.40", "10"), lvl("0.45", "5")},
			Asks: []RawLevel{lvl("0.55", "8"), lvl("0.50", "3")},
		},
	})

	book, ok := tr.Get("game-a")
	if !ok {
		t.Fatal("expected a book after Update")
	}
	if !book.Yes.Bids[0].Price.Equal(decimal.RequireFromString("0.45")) {
		t.Errorf("best bid = %s, want 0.45 (descending sort)", book.Yes.Bids[0].Price)
	}
	if !book.Yes.Asks[0].Price.Equal(decimal.RequireFromString("0.50")) {
		t.Errorf("best ask = %s, want 0.50 (ascending sort)", book.Yes.Asks[0].Price)
	}
}

func TestTrackerUpdatePrunesZeroAndNegativeQuantity(t *testing.T) {
	tr := NewTracker()
	tr.Update("game-a", Frame{
		Yes: SideFrame{Bids: []RawLevel{lvl("0.40", "0"), lvl("0.30", "-1"), lvl("0.35", "2")}},
	})

	book, _ := tr.Get("game-a")
	if len(book.Yes.Bids) != 1 {
		t.Fatalf("expected exactly one surviving bid level, got %d", len(book.Yes.Bids))
	}
	if !book.Yes.Bids[0].Price.Equal(decimal.RequireFromString("0.35")) {
		t.Errorf("surviving bid price = %s, want 0.35", book.Yes.Bids[0].Price)
	}
}

func TestTrackerUpdateIsIdempotent(t *testing.T) {
	tr := NewTracker()
	frame := Frame{Yes: SideFrame{Bids: []RawLevel{lvl("0.40", "10")}, Asks: []RawLevel{lvl("0.50", "10")}}}

	tr.Update("game-a", frame)
	first, _ := tr.Get("game-a")
	tr.Update("game-a", frame)
	second, _ := tr.Get("game-a")

	if !first.Yes.Bids[0].Price.Equal(second.Yes.Bids[0].Price) {
		t.Error("applying the same frame twice should yield the same book")
	}
}

func TestTrackerGetReturnsDefensiveCopy(t *testing.T) {
	tr := NewTracker()
	tr.Update("game-a", Frame{Yes: SideFrame{Bids: []RawLevel{lvl("0.40", "10")}}})

	book, _ := tr.Get("game-a")
	book.Yes.Bids[0].Price = decimal.NewFromInt(99)

	fresh, _ := tr.Get("game-a")
	if fresh.Yes.Bids[0].Price.Equal(decimal.NewFromInt(99)) {
		t.Error("mutating a returned book should not affect the tracker's internal state")
	}
}

func TestTrackerGetBestReportsNoDataForUnknownMarket(t *testing.T) {
	tr := NewTracker()
	_, _, ok := tr.GetBest("missing", types.SideYes)
	if ok {
		t.Error("expected ok=false for a market with no frame yet")
	}
}

func TestTrackerWalkAchievesPartialFillOnThinBook(t *testing.T) {
	tr := NewTracker()
	tr.Update("game-a", Frame{Yes: SideFrame{
		Asks: []RawLevel{lvl("0.50", "5"), lvl("0.55", "5")},
	}})

	result := tr.Walk("game-a", types.SideYes, DirectionBuy, decimal.NewFromInt(20))
	if !result.Filled.Equal(decimal.NewFromInt(10)) {
		t.Errorf("filled = %s, want 10 (total available depth)", result.Filled)
	}
	wantVWAP := decimal.RequireFromString("0.50").Mul(decimal.NewFromInt(5)).
		Add(decimal.RequireFromString("0.55").Mul(decimal.NewFromInt(5))).
		Div(decimal.NewFromInt(10))
	if !result.VWAP.Equal(wantVWAP) {
		t.Errorf("vwap = %s, want %s", result.VWAP, wantVWAP)
	}
}

func TestTrackerWalkSellUsesBidsDescending(t *testing.T) {
	tr := NewTracker()
	tr.Update("game-a", Frame{Yes: SideFrame{
		Bids: []RawLevel{lvl("0.40", "5"), lvl("0.45", "5")},
	}})

	result := tr.Walk("game-a", types.SideYes, DirectionSell, decimal.NewFromInt(5))
	if !result.VWAP.Equal(decimal.RequireFromString("0.45")) {
		t.Errorf("vwap = %s, want 0.45 (best bid consumed first)", result.VWAP)
	}
}

func TestTrackerWalkUnknownMarketReturnsZeroResult(t *testing.T) {
	tr := NewTracker()
	result := tr.Walk("missing", types.SideYes, DirectionBuy, decimal.NewFromInt(10))
	if !result.Filled.IsZero() {
		t.Errorf("filled = %s, want 0 for an untracked market", result.Filled)
	}
}

func TestTrackerWalkLimitStopsAtUnacceptablePrice(t *testing.T) {
	tr := NewTracker()
	tr.Update("game-a", Frame{Yes: SideFrame{
		Asks: []RawLevel{lvl("0.49", "10"), lvl("0.51", "10")},
	}})

	result := tr.WalkLimit("game-a", types.SideYes, DirectionBuy, decimal.NewFromInt(15), decimal.RequireFromString("0.50"))
	if !result.Filled.Equal(decimal.NewFromInt(10)) {
		t.Errorf("filled = %s, want 10 (only the 0.49 level is at or below the 0.50 limit)", result.Filled)
	}
	if !result.VWAP.Equal(decimal.RequireFromString("0.49")) {
		t.Errorf("vwap = %s, want 0.49", result.VWAP)
	}
}

func TestTrackerWalkLimitSellStopsAtUnacceptablePrice(t *testing.T) {
	tr := NewTracker()
	tr.Update("game-a", Frame{Yes: SideFrame{
		Bids: []RawLevel{lvl("0.52", "10"), lvl("0.48", "10")},
	}})

	result := tr.WalkLimit("game-a", types.SideYes, DirectionSell, decimal.NewFromInt(15), decimal.RequireFromString("0.50"))
	if !result.Filled.Equal(decimal.NewFromInt(10)) {
		t.Errorf("filled = %s, want 10 (only the 0.52 level is at or above the 0.50 limit)", result.Filled)
	}
}

func TestTrackerWalkLimitUnknownMarketReturnsZeroResult(t *testing.T) {
	tr := NewTracker()
	result := tr.WalkLimit("missing", types.SideYes, DirectionBuy, decimal.NewFromInt(10), decimal.RequireFromString("0.50"))
	if !result.Filled.IsZero() {
		t.Errorf("filled = %s, want 0 for an untracked market", result.Filled)
	}
}
