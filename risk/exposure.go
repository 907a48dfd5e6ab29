package risk

import (
	"sync"

	"github.com/shopspring/decimal"
)

// ExposureQuery is the subset of state.Manager the exposure monitor
// needs, kept narrow to avoid an import cycle between risk and state.
type ExposureQuery interface {
	TotalMarketExposure(slug string) decimal.Decimal
	TotalPortfolioExposure() decimal.Decimal
	OpenPositionCount() int
	HasAnyPosition(slug string) bool
}

// ExposureMonitor enforces portfolio-level position limits: per-market,
// absolute and percent-of-equity portfolio caps, per correlation-group
// caps, and a hard count on distinct open positions.
type ExposureMonitor struct {
	mu sync.RWMutex

	query ExposureQuery

	maxPositionPerMarket    decimal.Decimal
	maxPortfolioExposure    decimal.Decimal
	maxPortfolioExposurePct decimal.Decimal
	maxCorrelatedExposure   decimal.Decimal
	maxPositions            int

	groups         map[string]map[string]bool // group name -> set of market slugs
	marketToGroups map[string]map[string]bool // slug -> set of group names
}

// NewExposureMonitor creates a monitor backed by the given state query.
func NewExposureMonitor(query ExposureQuery, maxPositionPerMarket, maxPortfolioExposure, maxPortfolioExposurePct, maxCorrelatedExposure decimal.Decimal, maxPositions int) *ExposureMonitor {
	return &ExposureMonitor{
		query:                   query,
		maxPositionPerMarket:    maxPositionPerMarket,
		maxPortfolioExposure:    maxPortfolioExposure,
		maxPortfolioExposurePct: maxPortfolioExposurePct,
		maxCorrelatedExposure:   maxCorrelatedExposure,
		maxPositions:            maxPositions,
		groups:                  make(map[string]map[string]bool),
		marketToGroups:          make(map[string]map[string]bool),
	}
}

// SetCorrelationGroup registers (or replaces) a named bucket of market
// slugs treated as one exposure group, e.g. every market on the same
// live game. Construction of the groups themselves is left to the caller.
func (m *ExposureMonitor) SetCorrelationGroup(name string, slugs []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.groups[name]; ok {
		for slug := range old {
			if set := m.marketToGroups[slug]; set != nil {
				delete(set, name)
			}
		}
	}

	set := make(map[string]bool, len(slugs))
	for _, slug := range slugs {
		set[slug] = true
		if m.marketToGroups[slug] == nil {
			m.marketToGroups[slug] = make(map[string]bool)
		}
		m.marketToGroups[slug][name] = true
	}
	m.groups[name] = set
}

func (m *ExposureMonitor) correlatedExposure(slug string) decimal.Decimal {
	groups := m.marketToGroups[slug]
	if len(groups) == 0 {
		return decimal.Zero
	}
	total := decimal.Zero
	for group := range groups {
		for member := range m.groups[group] {
			total = total.Add(m.query.TotalMarketExposure(member))
		}
	}
	return total
}

// CanAddExposure returns the tightest binding constraint on adding
// `additional` notional exposure to a market: the largest amount that can
// actually be added without breaching any limit. A non-positive result
// means no additional exposure is possible.
func (m *ExposureMonitor) CanAddExposure(slug string, additional, equity decimal.Decimal) decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.query.HasAnyPosition(slug) && m.query.OpenPositionCount() >= m.maxPositions {
		return decimal.Zero
	}

	marketRoom := m.maxPositionPerMarket.Sub(m.query.TotalMarketExposure(slug))

	portfolioTotal := m.query.TotalPortfolioExposure()
	absoluteRoom := m.maxPortfolioExposure.Sub(portfolioTotal)
	pctCap := equity.Mul(m.maxPortfolioExposurePct)
	pctRoom := pctCap.Sub(portfolioTotal)
	portfolioRoom := decimal.Min(absoluteRoom, pctRoom)

	tightest := decimal.Min(marketRoom, portfolioRoom)

	if groups := m.marketToGroups[slug]; len(groups) > 0 {
		groupRoom := m.maxCorrelatedExposure.Sub(m.correlatedExposure(slug))
		tightest = decimal.Min(tightest, groupRoom)
	}

	if tightest.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	if tightest.LessThan(additional) {
		return tightest
	}
	return additional
}
