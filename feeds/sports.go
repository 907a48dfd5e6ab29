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

// SportsFeedConfig controls how the game-state poller talks to the
// upstream scores provider.
type SportsFeedConfig struct {
	BaseURL      string
	PollInterval time.Duration
	Timeout      time.Duration
}

// gameStatePayload is the upstream wire shape for a single game.
type gameStatePayload struct {
	MarketSlug string `json:"market_slug"`
	HomeScore  int    `json:"home_score"`
	AwayScore  int    `json:"away_score"`
	Period     string `json:"period"`
	ClockLeft  string `json:"clock_left"`
	Final      bool   `json:"final"`
}

// SportsFeed polls an upstream live-scores endpoint and republishes each
// game's state onto the event bus. One feed instance tracks one set of
// watched markets; Run blocks until its context is cancelled.
type SportsFeed struct {
	cfg        SportsFeedConfig
	bus        *EventBus
	httpClient *http.Client
	slugs      []string
	monitor    *health.Monitor
}

// SetMonitor registers a health monitor to heartbeat on every successful
// poll round. Optional; a nil monitor (the default) disables reporting.
func (f *SportsFeed) SetMonitor(m *health.Monitor) {
	f.monitor = m
}

// NewSportsFeed creates a poller for the given market slugs.
func NewSportsFeed(cfg SportsFeedConfig, bus *EventBus, slugs []string) *SportsFeed {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &SportsFeed{
		cfg:        cfg,
		bus:        bus,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		slugs:      slugs,
	}
}

// Run polls on cfg.PollInterval until ctx is cancelled.
func (f *SportsFeed) Run(ctx context.Context) {
	log.Info().Int("markets", len(f.slugs)).Msg("🏈 sports feed started")
	ticker := time.NewTicker(f.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("sports feed stopped")
			return
		case <-ticker.C:
			f.pollAll(ctx)
		}
	}
}

func (f *SportsFeed) pollAll(ctx context.Context) {
	for _, slug := range f.slugs {
		state, err := f.fetchGameState(ctx, slug)
		if err != nil {
			log.Warn().Err(err).Str("market_slug", slug).Msg("failed to fetch game state")
			continue
		}
		f.bus.Publish(TopicGameState, *state)
		if f.monitor != nil {
			f.monitor.Heartbeat("sports_feed")
		}
	}
}

func (f *SportsFeed) fetchGameState(ctx context.Context, slug string) (*GameState, error) {
	url := fmt.Sprintf("%s/games/%s", f.cfg.BaseURL, slug)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching game state: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sports feed returned status %d", resp.StatusCode)
	}

	var payload gameStatePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding game state: %w", err)
	}

	return &GameState{
		MarketSlug: payload.MarketSlug,
		HomeScore:  payload.HomeScore,
		AwayScore:  payload.AwayScore,
		Period:     payload.Period,
		ClockLeft:  payload.ClockLeft,
		Final:      payload.Final,
	}, nil
}
