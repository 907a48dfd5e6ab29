package core

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ridgeline-sports/sportsbook-bot/types"
)

// slugDateLayout matches the trailing YYYY-MM-DD a sports market slug
// carries, e.g. "nfl-chiefs-bills-2026-01-25".
const slugDateLayout = "2006-01-02"

// IsTradeableSlug implements the market-slug tradability filter (§6): a
// past-dated slug is blocked, a slug dated today is tradable only with
// in-game trading enabled, and a future-dated slug is always tradable.
// A slug with no parseable trailing date is tradable (fail open).
func IsTradeableSlug(slug string, allowInGameTrading bool, now time.Time) bool {
	date, ok := parseTrailingDate(slug)
	if !ok {
		return true
	}
	today := now.UTC().Truncate(24 * time.Hour)
	switch {
	case date.Before(today):
		return false
	case date.Equal(today):
		return allowInGameTrading
	default:
		return true
	}
}

func parseTrailingDate(slug string) (time.Time, bool) {
	if len(slug) < len(slugDateLayout) {
		return time.Time{}, false
	}
	tail := slug[len(slug)-len(slugDateLayout):]
	t, err := time.Parse(slugDateLayout, tail)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ═══════════════════════════════════════════════════════════════════════════════
// SYMBOLS - Market metadata management
// ═══════════════════════════════════════════════════════════════════════════════

// Market describes one tradeable prediction market's static metadata.
type Market struct {
	Slug         string
	Question     string
	YesTokenID   string
	NoTokenID    string
	Active       bool
	EndDate      int64
	MinTickSize  decimal.Decimal
	MinOrderSize decimal.Decimal
	Volume24h    decimal.Decimal
}

// MarketRegistry manages market metadata and provides the token-id
// resolution LiveExecutor needs to place orders and to map exchange order
// snapshots back to a market slug and side during reconciliation.
type MarketRegistry struct {
	mu      sync.RWMutex
	markets map[string]*Market
}

// NewMarketRegistry creates an empty registry.
func NewMarketRegistry() *MarketRegistry {
	return &MarketRegistry{markets: make(map[string]*Market)}
}

// Add adds or updates a market.
func (r *MarketRegistry) Add(m *Market) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markets[m.Slug] = m
}

// Get retrieves a market by slug.
func (r *MarketRegistry) Get(slug string) *Market {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.markets[slug]
}

// GetByTokenID finds a market by its YES or NO token id.
func (r *MarketRegistry) GetByTokenID(tokenID string) *Market {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.markets {
		if m.YesTokenID == tokenID || m.NoTokenID == tokenID {
			return m
		}
	}
	return nil
}

// Resolve implements the tokenResolver signature execution.LiveExecutor
// needs: market slug + side -> exchange token id.
func (r *MarketRegistry) Resolve(slug string, side types.Side) (string, bool) {
	m := r.Get(slug)
	if m == nil {
		return "", false
	}
	if side == types.SideYes {
		return m.YesTokenID, m.YesTokenID != ""
	}
	return m.NoTokenID, m.NoTokenID != ""
}

// ReverseResolve implements the tokenReverseResolver signature
// execution.LiveExecutor needs: exchange token id -> market slug + side.
func (r *MarketRegistry) ReverseResolve(tokenID string) (string, types.Side, bool) {
	m := r.GetByTokenID(tokenID)
	if m == nil {
		return "", "", false
	}
	if m.YesTokenID == tokenID {
		return m.Slug, types.SideYes, true
	}
	return m.Slug, types.SideNo, true
}

// ActiveMarkets returns all active markets.
func (r *MarketRegistry) ActiveMarkets() []*Market {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var active []*Market
	for _, m := range r.markets {
		if m.Active {
			active = append(active, m)
		}
	}
	return active
}

// Count returns the total number of registered markets.
func (r *MarketRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.markets)
}
