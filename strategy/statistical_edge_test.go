package strategy

import (
	"testing"
	"time"

	"github.com/ridgeline-sports/sportsbook-bot/feeds"
	"github.com/ridgeline-sports/sportsbook-bot/types"
)

func waitForLatestGameState(t *testing.T, s *StatisticalEdge, slug string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		_, ok := s.latest[slug]
		s.mu.Unlock()
		if ok {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for game state to be consumed off the bus")
}

func TestStatisticalEdgeSignalsBuyYesOnStrongHomeLead(t *testing.T) {
	tr := feeds.NewTracker()
	seedBook(tr, "game-a", "0.49", "0.51")
	bus := feeds.NewEventBus()

	se := NewStatisticalEdge(StatisticalEdgeConfig{}, tr, bus)
	defer se.Close()

	bus.Publish(feeds.TopicGameState, feeds.GameState{MarketSlug: "game-a", HomeScore: 21, AwayScore: 0, Period: "Q2"})
	waitForLatestGameState(t, se, "game-a")

	signals := se.OnMarketUpdate("game-a")
	if len(signals) != 1 || signals[0].Action != types.ActionBuyYes {
		t.Fatalf("expected a single BuyYes signal for a big home lead, got %+v", signals)
	}
}

func TestStatisticalEdgeSignalsBuyNoOnStrongAwayLead(t *testing.T) {
	tr := feeds.NewTracker()
	seedBook(tr, "game-a", "0.49", "0.51")
	bus := feeds.NewEventBus()

	se := NewStatisticalEdge(StatisticalEdgeConfig{}, tr, bus)
	defer se.Close()

	bus.Publish(feeds.TopicGameState, feeds.GameState{MarketSlug: "game-a", HomeScore: 0, AwayScore: 21, Period: "Q2"})
	waitForLatestGameState(t, se, "game-a")

	signals := se.OnMarketUpdate("game-a")
	if len(signals) != 1 || signals[0].Action != types.ActionBuyNo {
		t.Fatalf("expected a single BuyNo signal for a big away lead, got %+v", signals)
	}
}

func TestStatisticalEdgeSkipsFinalGames(t *testing.T) {
	tr := feeds.NewTracker()
	seedBook(tr, "game-a", "0.49", "0.51")
	bus := feeds.NewEventBus()

	se := NewStatisticalEdge(StatisticalEdgeConfig{}, tr, bus)
	defer se.Close()

	bus.Publish(feeds.TopicGameState, feeds.GameState{MarketSlug: "game-a", HomeScore: 21, AwayScore: 0, Final: true})
	waitForLatestGameState(t, se, "game-a")

	signals := se.OnMarketUpdate("game-a")
	if signals != nil {
		t.Errorf("expected no signal for a finished game, got %+v", signals)
	}
}

func TestStatisticalEdgeSkipsTiedScore(t *testing.T) {
	tr := feeds.NewTracker()
	seedBook(tr, "game-a", "0.49", "0.51")
	bus := feeds.NewEventBus()

	se := NewStatisticalEdge(StatisticalEdgeConfig{}, tr, bus)
	defer se.Close()

	bus.Publish(feeds.TopicGameState, feeds.GameState{MarketSlug: "game-a", HomeScore: 10, AwayScore: 10, Period: "Q2"})
	waitForLatestGameState(t, se, "game-a")

	signals := se.OnMarketUpdate("game-a")
	if signals != nil {
		t.Errorf("expected no signal for a tied game priced fairly, got %+v", signals)
	}
}

func TestParsePeriodNumberHandlesNonNumericLabel(t *testing.T) {
	if got := parsePeriodNumber("OT", 4); got != 4 {
		t.Errorf("parsePeriodNumber(OT, 4) = %d, want 4 (treated as final period)", got)
	}
	if got := parsePeriodNumber("3rd", 4); got != 3 {
		t.Errorf("parsePeriodNumber(3rd, 4) = %d, want 3", got)
	}
	if got := parsePeriodNumber("", 4); got != 4 {
		t.Errorf("parsePeriodNumber(\"\", 4) = %d, want 4", got)
	}
}

func TestStatisticalEdgeLeadLateInGameProducesHigherWinProbabilityThanEarly(t *testing.T) {
	tr := feeds.NewTracker()
	seedBook(tr, "game-a", "0.49", "0.51")
	bus := feeds.NewEventBus()

	se := NewStatisticalEdge(StatisticalEdgeConfig{TotalPeriods: 4}, tr, bus)
	defer se.Close()

	early := se.winProbability(feeds.GameState{HomeScore: 7, AwayScore: 0, Period: "1"})
	late := se.winProbability(feeds.GameState{HomeScore: 7, AwayScore: 0, Period: "4"})

	if !late.GreaterThan(early) {
		t.Errorf("late-game win prob %s should exceed early-game win prob %s for the same lead", late, early)
	}
}
