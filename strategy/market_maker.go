package strategy

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ridgeline-sports/sportsbook-bot/feeds"
	"github.com/ridgeline-sports/sportsbook-bot/types"
)

// MarketMakerConfig bundles MarketMaker's tunables.
type MarketMakerConfig struct {
	MarketSlugs      []string
	HalfSpread       decimal.Decimal // distance from mid quoted on each side
	QuoteSize        int
	RequoteThreshold decimal.Decimal // minimum mid move before re-quoting
}

// MarketMaker quotes both sides of a market's book around its mid price,
// re-quoting when the mid moves enough or a fill changes the book. It
// never carries a true-probability hint — sizing for its signals comes
// from QuoteSize alone (§3: an absent hint means "size from requested
// quantity only, skip Kelly").
type MarketMaker struct {
	mu sync.Mutex

	cfg     MarketMakerConfig
	tracker *feeds.Tracker

	enabled      bool
	lastQuoteMid map[string]decimal.Decimal
}

// NewMarketMaker creates a market maker quoting the given markets.
func NewMarketMaker(cfg MarketMakerConfig, tracker *feeds.Tracker) *MarketMaker {
	if cfg.HalfSpread.IsZero() {
		cfg.HalfSpread = decimal.NewFromFloat(0.02)
	}
	if cfg.QuoteSize <= 0 {
		cfg.QuoteSize = 10
	}
	if cfg.RequoteThreshold.IsZero() {
		cfg.RequoteThreshold = decimal.NewFromFloat(0.01)
	}
	return &MarketMaker{
		cfg:          cfg,
		tracker:      tracker,
		enabled:      true,
		lastQuoteMid: make(map[string]decimal.Decimal),
	}
}

func (m *MarketMaker) Name() string { return "market_maker" }

func (m *MarketMaker) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// SetEnabled toggles quoting, e.g. in response to a circuit breaker trip.
func (m *MarketMaker) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
}

func (m *MarketMaker) OnTick() []Signal {
	var signals []Signal
	for _, slug := range m.cfg.MarketSlugs {
		signals = append(signals, m.quote(slug)...)
	}
	return signals
}

func (m *MarketMaker) OnMarketUpdate(marketSlug string) []Signal {
	return m.quote(marketSlug)
}

// OnFill forces a re-quote on the next tick for the filled market.
func (m *MarketMaker) OnFill(marketSlug string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.lastQuoteMid, marketSlug)
}

func (m *MarketMaker) quote(marketSlug string) []Signal {
	book, ok := m.tracker.Get(marketSlug)
	if !ok {
		return nil
	}
	bid, hasBid := book.BestBid(types.SideYes)
	ask, hasAsk := book.BestAsk(types.SideYes)
	if !hasBid || !hasAsk {
		return nil
	}
	mid := bid.Add(ask).Div(decimal.NewFromInt(2))

	m.mu.Lock()
	last, seen := m.lastQuoteMid[marketSlug]
	if seen && mid.Sub(last).Abs().LessThan(m.cfg.RequoteThreshold) {
		m.mu.Unlock()
		return nil
	}
	m.lastQuoteMid[marketSlug] = mid
	m.mu.Unlock()

	yesBid := mid.Sub(m.cfg.HalfSpread)
	noMid := decimal.NewFromInt(1).Sub(mid)
	noBid := noMid.Sub(m.cfg.HalfSpread)

	if yesBid.LessThanOrEqual(decimal.Zero) || noBid.LessThanOrEqual(decimal.Zero) {
		log.Warn().Str("market_slug", marketSlug).Msg("market maker skipped quote: spread would cross zero")
		return nil
	}

	return []Signal{
		{MarketSlug: marketSlug, Action: types.ActionCancel, Strategy: m.Name()},
		NewSignal(m.Name()).Market(marketSlug).Action(types.ActionBuyYes).Price(yesBid).Quantity(m.cfg.QuoteSize).Urgency(types.UrgencyLow).Confidence(decimal.NewFromFloat(0.5)).Build(),
		NewSignal(m.Name()).Market(marketSlug).Action(types.ActionBuyNo).Price(noBid).Quantity(m.cfg.QuoteSize).Urgency(types.UrgencyLow).Confidence(decimal.NewFromFloat(0.5)).Build(),
	}
}
