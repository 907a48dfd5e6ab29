package strategy

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ridgeline-sports/sportsbook-bot/feeds"
	"github.com/ridgeline-sports/sportsbook-bot/types"
)

// LiveArbitrageConfig bundles LiveArbitrage's tunables.
type LiveArbitrageConfig struct {
	MinEdge    decimal.Decimal // minimum |external_prob - market_price| to act
	Quantity   int
	Confidence decimal.Decimal
}

// LiveArbitrage compares the market's own best prices against an external
// odds feed's implied probability (§4.4's notion of a true-probability
// source) and signals a BUY when the two disagree by more than MinEdge. A
// small goroutine drains its OddsSnapshot bus subscription into a cache so
// OnTick/OnMarketUpdate never block on the bus (§9 design note on async
// strategy feed consumers).
type LiveArbitrage struct {
	mu sync.Mutex

	cfg     LiveArbitrageConfig
	tracker *feeds.Tracker
	sub     *feeds.Subscription

	enabled bool
	latest  map[string]feeds.OddsSnapshot
	stopCh  chan struct{}
}

// NewLiveArbitrage creates the strategy and starts its bus consumer.
func NewLiveArbitrage(cfg LiveArbitrageConfig, tracker *feeds.Tracker, bus *feeds.EventBus) *LiveArbitrage {
	if cfg.MinEdge.IsZero() {
		cfg.MinEdge = decimal.NewFromFloat(0.05)
	}
	if cfg.Quantity <= 0 {
		cfg.Quantity = 10
	}
	if cfg.Confidence.IsZero() {
		cfg.Confidence = decimal.NewFromFloat(0.65)
	}
	s := &LiveArbitrage{
		cfg:     cfg,
		tracker: tracker,
		sub:     bus.Subscribe(feeds.TopicOddsSnapshot),
		enabled: true,
		latest:  make(map[string]feeds.OddsSnapshot),
		stopCh:  make(chan struct{}),
	}
	go s.consume()
	return s
}

// Close stops the bus consumer goroutine. Safe to call once.
func (s *LiveArbitrage) Close() {
	close(s.stopCh)
	s.sub.Unsubscribe()
}

func (s *LiveArbitrage) consume() {
	for {
		select {
		case <-s.stopCh:
			return
		case event := <-s.sub.Chan():
			snap, ok := event.(feeds.OddsSnapshot)
			if !ok {
				continue
			}
			s.mu.Lock()
			s.latest[snap.MarketSlug] = snap
			s.mu.Unlock()
		}
	}
}

func (s *LiveArbitrage) Name() string { return "live_arbitrage" }

func (s *LiveArbitrage) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// SetEnabled toggles signal generation.
func (s *LiveArbitrage) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

func (s *LiveArbitrage) OnTick() []Signal {
	s.mu.Lock()
	slugs := make([]string, 0, len(s.latest))
	for slug := range s.latest {
		slugs = append(slugs, slug)
	}
	s.mu.Unlock()

	var signals []Signal
	for _, slug := range slugs {
		if sig, ok := s.evaluate(slug); ok {
			signals = append(signals, sig)
		}
	}
	return signals
}

func (s *LiveArbitrage) OnMarketUpdate(marketSlug string) []Signal {
	if sig, ok := s.evaluate(marketSlug); ok {
		return []Signal{sig}
	}
	return nil
}

func (s *LiveArbitrage) OnFill(marketSlug string) {}

func (s *LiveArbitrage) evaluate(marketSlug string) (Signal, bool) {
	s.mu.Lock()
	snap, ok := s.latest[marketSlug]
	s.mu.Unlock()
	if !ok {
		return Signal{}, false
	}

	book, ok := s.tracker.Get(marketSlug)
	if !ok {
		return Signal{}, false
	}

	yesAsk, hasAsk := book.BestAsk(types.SideYes)
	yesBid, hasBid := book.BestBid(types.SideYes)
	if !hasAsk || !hasBid {
		return Signal{}, false
	}
	marketMid := yesBid.Add(yesAsk).Div(decimal.NewFromInt(2))

	trueProb := decimal.NewFromFloat(snap.ImpliedProb)
	edge := trueProb.Sub(marketMid)

	if edge.Abs().LessThan(s.cfg.MinEdge) {
		return Signal{}, false
	}

	action := types.ActionBuyYes
	price := yesAsk
	hintProb := trueProb
	if edge.IsNegative() {
		action = types.ActionBuyNo
		price = decimal.NewFromInt(1).Sub(yesBid)
		hintProb = decimal.NewFromInt(1).Sub(trueProb)
	}

	log.Debug().Str("market_slug", marketSlug).Str("edge", edge.StringFixed(4)).Str("source", snap.Source).Msg("live arbitrage edge detected")

	return NewSignal(s.Name()).
		Market(marketSlug).
		Action(action).
		Price(price).
		Quantity(s.cfg.Quantity).
		Urgency(types.UrgencyHigh).
		Confidence(s.cfg.Confidence).
		Hint(types.SignalHint{HasTrueProbability: true, TrueProbability: hintProb}).
		Build(), true
}
