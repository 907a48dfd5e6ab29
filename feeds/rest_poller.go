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

// clobBookEntry is a single [price, size] rung as returned by the CLOB
// REST book endpoint.
type clobBookEntry struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// clobBook is the REST shape of one token's order book.
type clobBook struct {
	Bids []clobBookEntry `json:"bids"`
	Asks []clobBookEntry `json:"asks"`
}

// RestPollerConfig controls the REST order book poller. The poller runs on
// its interval independently of the websocket feed; it is not switched on
// or off by feed staleness.
type RestPollerConfig struct {
	BaseURL      string
	PollInterval time.Duration
	Timeout      time.Duration
}

// MarketTokens maps a market slug to its two outcome token IDs.
type MarketTokens struct {
	MarketSlug string
	YesTokenID string
	NoTokenID  string
}

// RestPoller periodically fetches both outcome books for each watched
// market over REST and feeds them into a Tracker as snapshot frames. It
// exists as a fallback data path independent of the websocket feed.
type RestPoller struct {
	cfg        RestPollerConfig
	tracker    *Tracker
	httpClient *http.Client
	markets    []MarketTokens
	monitor    *health.Monitor
}

// SetMonitor registers a health monitor to heartbeat on every successful
// poll round. Optional; a nil monitor (the default) disables reporting.
func (p *RestPoller) SetMonitor(m *health.Monitor) {
	p.monitor = m
}

// NewRestPoller creates a poller for the given markets.
func NewRestPoller(cfg RestPollerConfig, tracker *Tracker, markets []MarketTokens) *RestPoller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &RestPoller{
		cfg:        cfg,
		tracker:    tracker,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		markets:    markets,
	}
}

// Run polls on cfg.PollInterval until ctx is cancelled.
func (p *RestPoller) Run(ctx context.Context) {
	log.Info().Int("markets", len(p.markets)).Msg("📡 REST order book poller started")
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("REST order book poller stopped")
			return
		case <-ticker.C:
			p.pollAll(ctx)
		}
	}
}

func (p *RestPoller) pollAll(ctx context.Context) {
	for _, m := range p.markets {
		frame, err := p.fetchFrame(ctx, m)
		if err != nil {
			log.Warn().Err(err).Str("market_slug", m.MarketSlug).Msg("REST order book fetch failed")
			continue
		}
		p.tracker.Update(m.MarketSlug, *frame)
		if p.monitor != nil {
			p.monitor.Heartbeat("rest_poller")
		}
	}
}

func (p *RestPoller) fetchFrame(ctx context.Context, m MarketTokens) (*Frame, error) {
	yes, err := p.fetchSide(ctx, m.YesTokenID)
	if err != nil {
		return nil, fmt.Errorf("yes side: %w", err)
	}
	no, err := p.fetchSide(ctx, m.NoTokenID)
	if err != nil {
		return nil, fmt.Errorf("no side: %w", err)
	}
	return &Frame{Yes: *yes, No: *no}, nil
}

func (p *RestPoller) fetchSide(ctx context.Context, tokenID string) (*SideFrame, error) {
	url := fmt.Sprintf("%s/book?token_id=%s", p.cfg.BaseURL, tokenID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("book endpoint returned status %d", resp.StatusCode)
	}

	var book clobBook
	if err := json.NewDecoder(resp.Body).Decode(&book); err != nil {
		return nil, err
	}

	frame := SideFrame{
		Bids: make([]RawLevel, 0, len(book.Bids)),
		Asks: make([]RawLevel, 0, len(book.Asks)),
	}
	for _, b := range book.Bids {
		frame.Bids = append(frame.Bids, RawLevel{Price: b.Price, Quantity: b.Size})
	}
	for _, a := range book.Asks {
		frame.Asks = append(frame.Asks, RawLevel{Price: a.Price, Quantity: a.Size})
	}
	return &frame, nil
}
