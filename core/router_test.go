package core

import (
	"testing"

	"github.com/ridgeline-sports/sportsbook-bot/strategy"
)

type fakeStrategy struct {
	name string
}

func (f *fakeStrategy) Name() string    { return f.name }
func (f *fakeStrategy) Enabled() bool   { return true }
func (f *fakeStrategy) OnTick() []strategy.Signal { return nil }
func (f *fakeStrategy) OnMarketUpdate(marketSlug string) []strategy.Signal { return nil }
func (f *fakeStrategy) OnFill(marketSlug string) {}

func TestMarketRouterReturnsOnlySubscribedStrategies(t *testing.T) {
	r := NewMarketRouter()
	a := &fakeStrategy{name: "a"}
	b := &fakeStrategy{name: "b"}

	r.Subscribe("game-1", a)
	r.Subscribe("game-2", b)

	got := r.StrategiesFor("game-1")
	if len(got) != 1 || got[0].Name() != "a" {
		t.Errorf("StrategiesFor(game-1) = %+v, want only strategy a", got)
	}
}

func TestMarketRouterSupportsMultipleSubscribersPerMarket(t *testing.T) {
	r := NewMarketRouter()
	a := &fakeStrategy{name: "a"}
	b := &fakeStrategy{name: "b"}

	r.Subscribe("game-1", a)
	r.Subscribe("game-1", b)

	got := r.StrategiesFor("game-1")
	if len(got) != 2 {
		t.Fatalf("expected 2 subscribers, got %d", len(got))
	}
}

func TestMarketRouterUnknownMarketReturnsEmpty(t *testing.T) {
	r := NewMarketRouter()
	got := r.StrategiesFor("unknown")
	if len(got) != 0 {
		t.Errorf("expected no strategies for an unsubscribed market, got %d", len(got))
	}
}

func TestMarketRouterStrategiesForReturnsDefensiveCopy(t *testing.T) {
	r := NewMarketRouter()
	r.Subscribe("game-1", &fakeStrategy{name: "a"})

	got := r.StrategiesFor("game-1")
	got[0] = &fakeStrategy{name: "mutated"}

	fresh := r.StrategiesFor("game-1")
	if fresh[0].Name() != "a" {
		t.Error("mutating a returned slice should not affect the router's internal state")
	}
}
