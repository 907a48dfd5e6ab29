package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ridgeline-sports/sportsbook-bot/health"
)

// OddsFeedConfig controls how the external-sportsbook-line poller talks to
// its upstream odds provider.
type OddsFeedConfig struct {
	BaseURL      string
	PollInterval time.Duration
	Timeout      time.Duration
	SourceName   string
}

type oddsPayload struct {
	MarketSlug  string  `json:"market_slug"`
	ImpliedProb float64 `json:"implied_prob"`
}

// OddsFeed polls an external sportsbook for the consensus line on each
// watched market and republishes it as an OddsSnapshot. Strategies compare
// this to the prediction-market price to estimate edge.
type OddsFeed struct {
	cfg        OddsFeedConfig
	bus        *EventBus
	httpClient *http.Client
	slugs      []string
	monitor    *health.Monitor
}

// SetMonitor registers a health monitor to heartbeat on every successful
// poll round. Optional; a nil monitor (the default) disables reporting.
func (f *OddsFeed) SetMonitor(m *health.Monitor) {
	f.monitor = m
}

// NewOddsFeed creates a poller for the given market slugs.
func NewOddsFeed(cfg OddsFeedConfig, bus *EventBus, slugs []string) *OddsFeed {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.SourceName == "" {
		cfg.SourceName = "external"
	}
	return &OddsFeed{
		cfg:        cfg,
		bus:        bus,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		slugs:      slugs,
	}
}

// Run polls on cfg.PollInterval until ctx is cancelled.
func (f *OddsFeed) Run(ctx context.Context) {
	log.Info().Str("source", f.cfg.SourceName).Int("markets", len(f.slugs)).Msg("📊 odds feed started")
	ticker := time.NewTicker(f.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("odds feed stopped")
			return
		case <-ticker.C:
			f.pollAll(ctx)
		}
	}
}

func (f *OddsFeed) pollAll(ctx context.Context) {
	for _, slug := range f.slugs {
		snap, err := f.fetchOdds(ctx, slug)
		if err != nil {
			log.Warn().Err(err).Str("market_slug", slug).Msg("failed to fetch odds snapshot")
			continue
		}
		f.bus.Publish(TopicOddsSnapshot, *snap)
		if f.monitor != nil {
			f.monitor.Heartbeat("odds_feed")
		}
	}
}

func (f *OddsFeed) fetchOdds(ctx context.Context, slug string) (*OddsSnapshot, error) {
	url := fmt.Sprintf("%s/odds/%s", f.cfg.BaseURL, slug)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching odds: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("odds feed returned status %d", resp.StatusCode)
	}

	var payload oddsPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding odds: %w", err)
	}

	return &OddsSnapshot{
		MarketSlug:  payload.MarketSlug,
		ImpliedProb: payload.ImpliedProb,
		Source:      f.cfg.SourceName,
	}, nil
}
