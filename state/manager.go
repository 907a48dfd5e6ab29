// Package state owns the single source of truth for markets, open
// positions, open orders, and cash balance. Every other package reads it
// through accessor methods; nothing outside this package mutates it.
package state

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ridgeline-sports/sportsbook-bot/types"
)

// MarketState is the latest known top-of-book for one market's two sides.
type MarketState struct {
	Slug       string
	YesBid     decimal.Decimal
	YesAsk     decimal.Decimal
	NoBid      decimal.Decimal
	NoAsk      decimal.Decimal
	LastUpdate time.Time
}

// PositionState is an open holding in one side of one market.
type PositionState struct {
	MarketSlug string
	Side       types.Side
	Quantity   int
	AvgPrice   decimal.Decimal
	Strategy   string
	OpenedAt   time.Time
}

// OrderState is a submitted order tracked until it reaches a terminal
// status.
type OrderState struct {
	ID        string
	MarketSlug string
	Intent    types.OrderIntent
	Type      types.OrderType
	Price     decimal.Decimal
	Quantity  int
	Filled    int
	Status    types.OrderStatus
	Strategy  string
	CreatedAt time.Time
}

// Remaining is the unfilled quantity on the order.
func (o OrderState) Remaining() int {
	return o.Quantity - o.Filled
}

// FillListener is notified after a fill has committed to state, outside
// the manager's lock (§5).
type FillListener func(marketSlug string)

// Manager is the centralized, thread-safe state container (§4.2). All
// three maps and the cash balance share one mutex; fill notifications fire
// after the lock is released so listeners can safely call back into the
// manager.
type Manager struct {
	mu sync.Mutex

	markets   map[string]*MarketState
	positions map[string]*PositionState // key: slug+":"+side
	orders    map[string]*OrderState
	cash      decimal.Decimal

	listeners []FillListener
}

// NewManager creates a state manager seeded with a starting cash balance.
func NewManager(startingCash decimal.Decimal) *Manager {
	return &Manager{
		markets:   make(map[string]*MarketState),
		positions: make(map[string]*PositionState),
		orders:    make(map[string]*OrderState),
		cash:      startingCash,
	}
}

func positionKey(slug string, side types.Side) string {
	return slug + ":" + string(side)
}

// AddFillListener registers a callback invoked after every committed fill.
func (m *Manager) AddFillListener(l FillListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// UpdateMarket records the latest top-of-book for a market.
func (m *Manager) UpdateMarket(slug string, yesBid, yesAsk, noBid, noAsk decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markets[slug] = &MarketState{
		Slug: slug, YesBid: yesBid, YesAsk: yesAsk, NoBid: noBid, NoAsk: noAsk,
		LastUpdate: time.Now(),
	}
}

// Market returns the current state for a market.
func (m *Manager) Market(slug string) (MarketState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mkt, ok := m.markets[slug]
	if !ok {
		return MarketState{}, false
	}
	return *mkt, true
}

// Cash returns the current cash balance.
func (m *Manager) Cash() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cash
}

// AdjustCash applies a delta (positive credits, negative debits) to cash.
func (m *Manager) AdjustCash(delta decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cash = m.cash.Add(delta)
}

// Position returns the open position for a market/side, if any.
func (m *Manager) Position(slug string, side types.Side) (PositionState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[positionKey(slug, side)]
	if !ok {
		return PositionState{}, false
	}
	return *p, true
}

// Positions returns a snapshot of every open position.
func (m *Manager) Positions() []PositionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PositionState, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, *p)
	}
	return out
}

// Exposure returns the cost basis of a market/side position (§4.2).
func (m *Manager) Exposure(slug string, side types.Side) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[positionKey(slug, side)]
	if !ok {
		return decimal.Zero
	}
	return p.AvgPrice.Mul(decimal.NewFromInt(int64(p.Quantity)))
}

// TotalMarketExposure sums exposure across both sides of a market.
func (m *Manager) TotalMarketExposure(slug string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	for _, side := range []types.Side{types.SideYes, types.SideNo} {
		if p, ok := m.positions[positionKey(slug, side)]; ok {
			total = total.Add(p.AvgPrice.Mul(decimal.NewFromInt(int64(p.Quantity))))
		}
	}
	return total
}

// TotalPortfolioExposure sums cost basis across every open position.
func (m *Manager) TotalPortfolioExposure() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	for _, p := range m.positions {
		total = total.Add(p.AvgPrice.Mul(decimal.NewFromInt(int64(p.Quantity))))
	}
	return total
}

// OpenPositionCount returns how many distinct market/side positions are open.
func (m *Manager) OpenPositionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.positions)
}

// HasAnyPosition reports whether a market has an open position on either side.
func (m *Manager) HasAnyPosition(slug string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, yes := m.positions[positionKey(slug, types.SideYes)]
	_, no := m.positions[positionKey(slug, types.SideNo)]
	return yes || no
}

// Order returns a tracked order by id.
func (m *Manager) Order(id string) (OrderState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return OrderState{}, false
	}
	return *o, true
}

// OpenOrders returns a snapshot of every non-terminal order.
func (m *Manager) OpenOrders() []OrderState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OrderState, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, *o)
	}
	return out
}

// OpenOrdersExposure sums price × remaining_quantity across open orders
// for a market/side (§4.2).
func (m *Manager) OpenOrdersExposure(slug string, side types.Side) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	for _, o := range m.orders {
		if o.MarketSlug != slug || o.Intent.Side() != side || o.Status.IsTerminal() {
			continue
		}
		total = total.Add(o.Price.Mul(decimal.NewFromInt(int64(o.Remaining()))))
	}
	return total
}

// PutOrder inserts or replaces a tracked order.
func (m *Manager) PutOrder(o OrderState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.Status.IsTerminal() {
		delete(m.orders, o.ID)
		return
	}
	m.orders[o.ID] = &o
}

// RemoveOrder drops an order from tracking regardless of status.
func (m *Manager) RemoveOrder(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.orders, id)
}

// FillResult describes the position/cash effect of applying a fill.
type FillResult struct {
	RealizedPnL decimal.Decimal
	ClosedSide  bool
}

// ApplyFill updates cash and position state for a fill of the given
// intent/price/quantity, then notifies fill listeners outside the lock
// (§4.2, §5). feeValue is the fee charged (debited for buys, deducted
// from proceeds for sells); it has already been computed by the caller.
func (m *Manager) ApplyFill(marketSlug string, intent types.OrderIntent, price decimal.Decimal, quantity int, feeValue decimal.Decimal) FillResult {
	side := intent.Side()
	qty := decimal.NewFromInt(int64(quantity))
	notional := price.Mul(qty)

	m.mu.Lock()
	result := FillResult{}

	if intent.IsBuy() {
		m.cash = m.cash.Sub(notional).Sub(feeValue)
		key := positionKey(marketSlug, side)
		existing, ok := m.positions[key]
		if !ok {
			m.positions[key] = &PositionState{
				MarketSlug: marketSlug, Side: side, Quantity: quantity,
				AvgPrice: price, OpenedAt: time.Now(),
			}
		} else {
			totalQty := existing.Quantity + quantity
			totalCost := existing.AvgPrice.Mul(decimal.NewFromInt(int64(existing.Quantity))).Add(notional)
			existing.AvgPrice = totalCost.Div(decimal.NewFromInt(int64(totalQty)))
			existing.Quantity = totalQty
		}
	} else {
		m.cash = m.cash.Add(notional).Sub(feeValue)
		key := positionKey(marketSlug, side)
		existing, ok := m.positions[key]
		if ok {
			closedQty := quantity
			if closedQty > existing.Quantity {
				closedQty = existing.Quantity
			}
			result.RealizedPnL = price.Sub(existing.AvgPrice).Mul(decimal.NewFromInt(int64(closedQty)))
			existing.Quantity -= closedQty
			if existing.Quantity <= 0 {
				delete(m.positions, key)
				result.ClosedSide = true
			}
		}
	}
	listeners := append([]FillListener(nil), m.listeners...)
	m.mu.Unlock()

	for _, l := range listeners {
		l(marketSlug)
	}
	return result
}

// TotalEquity is cash plus mark-to-market of every open position, valued
// by the supplied pricer (best-bid or liquidation value per §4.5/§4.6).
func (m *Manager) TotalEquity(pricer func(slug string, side types.Side, quantity int) decimal.Decimal) decimal.Decimal {
	m.mu.Lock()
	positions := make([]PositionState, 0, len(m.positions))
	for _, p := range m.positions {
		positions = append(positions, *p)
	}
	cash := m.cash
	m.mu.Unlock()

	total := cash
	for _, p := range positions {
		total = total.Add(pricer(p.MarketSlug, p.Side, p.Quantity))
	}
	return total
}

// ReconcileFromExchange overwrites positions, orders, and cash with an
// authoritative snapshot fetched from the exchange (live executor
// reconciliation, §4.7). It logs any discrepancy from the locally tracked
// state before overwriting.
func (m *Manager) ReconcileFromExchange(positions []PositionState, orders []OrderState, cash decimal.Decimal) {
	m.mu.Lock()
	if !m.cash.Equal(cash) {
		log.Warn().Str("local_cash", m.cash.String()).Str("exchange_cash", cash.String()).Msg("cash drifted from exchange, reconciling")
	}
	m.cash = cash

	newPositions := make(map[string]*PositionState, len(positions))
	for i := range positions {
		p := positions[i]
		newPositions[positionKey(p.MarketSlug, p.Side)] = &p
	}
	m.positions = newPositions

	newOrders := make(map[string]*OrderState, len(orders))
	for i := range orders {
		o := orders[i]
		if o.Status.IsTerminal() {
			continue
		}
		newOrders[o.ID] = &o
	}
	m.orders = newOrders
	m.mu.Unlock()
}
