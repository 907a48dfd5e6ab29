package core

import (
	"sync"

	"github.com/ridgeline-sports/sportsbook-bot/strategy"
)

// MarketRouter tracks which strategies care about which markets, so
// on_market_update (§4.4 step 3) only reaches strategies actually
// registered to the market that changed.
type MarketRouter struct {
	mu            sync.RWMutex
	subscriptions map[string][]strategy.Strategy
}

// NewMarketRouter creates an empty router.
func NewMarketRouter() *MarketRouter {
	return &MarketRouter{subscriptions: make(map[string][]strategy.Strategy)}
}

// Subscribe registers a strategy for updates on a market.
func (r *MarketRouter) Subscribe(marketSlug string, s strategy.Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscriptions[marketSlug] = append(r.subscriptions[marketSlug], s)
}

// StrategiesFor returns the strategies registered to a market.
func (r *MarketRouter) StrategiesFor(marketSlug string) []strategy.Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]strategy.Strategy(nil), r.subscriptions[marketSlug]...)
}
