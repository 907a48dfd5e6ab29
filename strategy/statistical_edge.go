package strategy

import (
	"math"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/ridgeline-sports/sportsbook-bot/feeds"
	"github.com/ridgeline-sports/sportsbook-bot/types"
)

// parsePeriodNumber extracts the leading digits of a period label like
// "Q2" or "3rd" (upstream feeds are not consistent about format). Labels
// with no leading digit (e.g. "OT") are treated as the final period.
func parsePeriodNumber(period string, totalPeriods int) int {
	end := 0
	for end < len(period) && period[end] >= '0' && period[end] <= '9' {
		end++
	}
	if end == 0 {
		return totalPeriods
	}
	n, err := strconv.Atoi(period[:end])
	if err != nil {
		return totalPeriods
	}
	return n
}

// StatisticalEdgeConfig bundles StatisticalEdge's tunables.
type StatisticalEdgeConfig struct {
	MinEdge         decimal.Decimal
	Quantity        int
	Confidence      decimal.Decimal
	PointsPerPeriod decimal.Decimal // assumed average remaining scoring, used to decay a lead's significance
	TotalPeriods    int
}

// StatisticalEdge estimates a simple win probability from in-game score
// and clock state (a logistic function of the score differential scaled
// by time remaining) and compares it against the market's own price,
// mirroring LiveArbitrage's edge test but sourced from game state rather
// than an external odds provider.
type StatisticalEdge struct {
	mu sync.Mutex

	cfg     StatisticalEdgeConfig
	tracker *feeds.Tracker
	sub     *feeds.Subscription

	enabled bool
	latest  map[string]feeds.GameState
	stopCh  chan struct{}
}

// NewStatisticalEdge creates the strategy and starts its bus consumer.
func NewStatisticalEdge(cfg StatisticalEdgeConfig, tracker *feeds.Tracker, bus *feeds.EventBus) *StatisticalEdge {
	if cfg.MinEdge.IsZero() {
		cfg.MinEdge = decimal.NewFromFloat(0.08)
	}
	if cfg.Quantity <= 0 {
		cfg.Quantity = 5
	}
	if cfg.Confidence.IsZero() {
		cfg.Confidence = decimal.NewFromFloat(0.6)
	}
	if cfg.PointsPerPeriod.IsZero() {
		cfg.PointsPerPeriod = decimal.NewFromInt(7)
	}
	if cfg.TotalPeriods <= 0 {
		cfg.TotalPeriods = 4
	}
	s := &StatisticalEdge{
		cfg:     cfg,
		tracker: tracker,
		sub:     bus.Subscribe(feeds.TopicGameState),
		enabled: true,
		latest:  make(map[string]feeds.GameState),
		stopCh:  make(chan struct{}),
	}
	go s.consume()
	return s
}

// Close stops the bus consumer goroutine. Safe to call once.
func (s *StatisticalEdge) Close() {
	close(s.stopCh)
	s.sub.Unsubscribe()
}

func (s *StatisticalEdge) consume() {
	for {
		select {
		case <-s.stopCh:
			return
		case event := <-s.sub.Chan():
			gs, ok := event.(feeds.GameState)
			if !ok {
				continue
			}
			s.mu.Lock()
			s.latest[gs.MarketSlug] = gs
			s.mu.Unlock()
		}
	}
}

func (s *StatisticalEdge) Name() string { return "statistical_edge" }

func (s *StatisticalEdge) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// SetEnabled toggles signal generation.
func (s *StatisticalEdge) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

func (s *StatisticalEdge) OnTick() []Signal {
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

func (s *StatisticalEdge) OnMarketUpdate(marketSlug string) []Signal {
	if sig, ok := s.evaluate(marketSlug); ok {
		return []Signal{sig}
	}
	return nil
}

func (s *StatisticalEdge) OnFill(marketSlug string) {}

// winProbability converts a score differential and periods remaining into
// a probability via a logistic curve: the lead is divided by the
// assumed points still available and scaled by 4, then squashed
// through 1/(1+e^-x).
func (s *StatisticalEdge) winProbability(gs feeds.GameState) decimal.Decimal {
	if gs.Final {
		if gs.HomeScore > gs.AwayScore {
			return decimal.NewFromInt(1)
		}
		return decimal.Zero
	}

	currentPeriod := parsePeriodNumber(gs.Period, s.cfg.TotalPeriods)
	periodsLeft := decimal.NewFromInt(int64(s.cfg.TotalPeriods - currentPeriod + 1))
	if periodsLeft.LessThanOrEqual(decimal.Zero) {
		periodsLeft = decimal.NewFromFloat(0.25)
	}
	pointsRemaining := s.cfg.PointsPerPeriod.Mul(periodsLeft)
	if pointsRemaining.LessThanOrEqual(decimal.Zero) {
		pointsRemaining = decimal.NewFromInt(1)
	}

	diff := decimal.NewFromInt(int64(gs.HomeScore - gs.AwayScore))
	x := diff.Div(pointsRemaining).Mul(decimal.NewFromInt(4)).InexactFloat64()

	return decimal.NewFromFloat(1 / (1 + math.Exp(-x)))
}

func (s *StatisticalEdge) evaluate(marketSlug string) (Signal, bool) {
	s.mu.Lock()
	gs, ok := s.latest[marketSlug]
	s.mu.Unlock()
	if !ok || gs.Final {
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

	homeWinProb := s.winProbability(gs)
	// home_is_yes is assumed true for this market's slug convention (§6);
	// markets where NO represents the home side are out of scope here.
	edge := homeWinProb.Sub(marketMid)
	if edge.Abs().LessThan(s.cfg.MinEdge) {
		return Signal{}, false
	}

	action := types.ActionBuyYes
	price := yesAsk
	hintProb := homeWinProb
	if edge.IsNegative() {
		action = types.ActionBuyNo
		price = decimal.NewFromInt(1).Sub(yesBid)
		hintProb = decimal.NewFromInt(1).Sub(homeWinProb)
	}

	return NewSignal(s.Name()).
		Market(marketSlug).
		Action(action).
		Price(price).
		Quantity(s.cfg.Quantity).
		Urgency(types.UrgencyMedium).
		Confidence(s.cfg.Confidence).
		Hint(types.SignalHint{HasTrueProbability: true, TrueProbability: hintProb}).
		Build(), true
}
