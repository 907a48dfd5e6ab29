package strategy

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/ridgeline-sports/sportsbook-bot/feeds"
	"github.com/ridgeline-sports/sportsbook-bot/types"
)

func seedBook(tr *feeds.Tracker, slug string, bid, ask string) {
	tr.Update(slug, feeds.Frame{
		Yes: feeds.SideFrame{
			Bids: []feeds.RawLevel{{Price: bid, Quantity: "100"}},
			Asks: []feeds.RawLevel{{Price: ask, Quantity: "100"}},
		},
	})
}

func TestMarketMakerQuotesBothSides(t *testing.T) {
	tr := feeds.NewTracker()
	seedBook(tr, "game-a", "0.48", "0.52")

	mm := NewMarketMaker(MarketMakerConfig{MarketSlugs: []string{"game-a"}}, tr)
	signals := mm.OnMarketUpdate("game-a")

	var sawBuyYes, sawBuyNo, sawCancel bool
	for _, s := range signals {
		switch s.Action {
		case types.ActionBuyYes:
			sawBuyYes = true
		case types.ActionBuyNo:
			sawBuyNo = true
		case types.ActionCancel:
			sawCancel = true
		}
	}
	if !sawBuyYes || !sawBuyNo || !sawCancel {
		t.Errorf("expected a cancel plus both YES and NO quotes, got %+v", signals)
	}
}

func TestMarketMakerNeverAttachesATrueProbabilityHint(t *testing.T) {
	tr := feeds.NewTracker()
	seedBook(tr, "game-a", "0.48", "0.52")

	mm := NewMarketMaker(MarketMakerConfig{MarketSlugs: []string{"game-a"}}, tr)
	for _, s := range mm.OnMarketUpdate("game-a") {
		if s.Hint.HasTrueProbability {
			t.Error("market maker signals should never carry a true-probability hint")
		}
	}
}

func TestMarketMakerSkipsRequoteBelowThreshold(t *testing.T) {
	tr := feeds.NewTracker()
	seedBook(tr, "game-a", "0.48", "0.52")
	mm := NewMarketMaker(MarketMakerConfig{MarketSlugs: []string{"game-a"}, RequoteThreshold: decimal.NewFromFloat(0.05)}, tr)

	first := mm.OnMarketUpdate("game-a")
	if len(first) == 0 {
		t.Fatal("expected an initial quote")
	}

	seedBook(tr, "game-a", "0.485", "0.515") // mid barely moved
	second := mm.OnMarketUpdate("game-a")
	if len(second) != 0 {
		t.Errorf("expected no re-quote for a sub-threshold mid move, got %+v", second)
	}
}

func TestMarketMakerRequotesOnFill(t *testing.T) {
	tr := feeds.NewTracker()
	seedBook(tr, "game-a", "0.48", "0.52")
	mm := NewMarketMaker(MarketMakerConfig{MarketSlugs: []string{"game-a"}, RequoteThreshold: decimal.NewFromFloat(0.05)}, tr)

	mm.OnMarketUpdate("game-a")
	mm.OnFill("game-a")

	second := mm.OnMarketUpdate("game-a")
	if len(second) == 0 {
		t.Error("expected a re-quote immediately after a fill invalidates the cached mid")
	}
}

func TestMarketMakerSkipsQuoteOnUntrackedMarket(t *testing.T) {
	tr := feeds.NewTracker()
	mm := NewMarketMaker(MarketMakerConfig{MarketSlugs: []string{"unknown"}}, tr)

	signals := mm.OnMarketUpdate("unknown")
	if signals != nil {
		t.Errorf("expected no signals for a market with no book, got %+v", signals)
	}
}

func TestMarketMakerRespectsSetEnabled(t *testing.T) {
	tr := feeds.NewTracker()
	mm := NewMarketMaker(MarketMakerConfig{}, tr)

	mm.SetEnabled(false)
	if mm.Enabled() {
		t.Error("expected Enabled() to reflect SetEnabled(false)")
	}
}
