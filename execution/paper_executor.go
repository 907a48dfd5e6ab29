package execution

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ridgeline-sports/sportsbook-bot/feeds"
	"github.com/ridgeline-sports/sportsbook-bot/state"
	"github.com/ridgeline-sports/sportsbook-bot/types"
)

// PaperExecutorConfig bundles the tunables governing simulated fills.
type PaperExecutorConfig struct {
	TakerFeeBps         int64
	MakerFillFraction   decimal.Decimal // default 0.02
	LiquidationDiscount decimal.Decimal // default 0.9, applied to residual beyond depth
}

// DefaultPaperExecutorConfig returns the documented defaults (§4.6, §9).
func DefaultPaperExecutorConfig() PaperExecutorConfig {
	return PaperExecutorConfig{
		TakerFeeBps:         10,
		MakerFillFraction:   decimal.NewFromFloat(0.02),
		LiquidationDiscount: decimal.NewFromFloat(0.9),
	}
}

type restingOrder struct {
	id         string
	marketSlug string
	intent     types.OrderIntent
	price      decimal.Decimal
	quantity   int
	filled     int
	strategy   string
}

// PaperExecutor simulates fills deterministically against the local
// OrderBook tracker and state manager, with no exchange round trip.
type PaperExecutor struct {
	mu sync.Mutex

	cfg     PaperExecutorConfig
	tracker *feeds.Tracker
	store   *state.Manager

	resting map[string]*restingOrder
	nextID  uint64

	listeners   map[ListenerHandle]FillListener
	nextHandle  ListenerHandle

	stats PerformanceStats
}

// NewPaperExecutor creates a paper executor backed by the given order
// book tracker and state manager.
func NewPaperExecutor(cfg PaperExecutorConfig, tracker *feeds.Tracker, store *state.Manager) *PaperExecutor {
	return &PaperExecutor{
		cfg:       cfg,
		tracker:   tracker,
		store:     store,
		resting:   make(map[string]*restingOrder),
		listeners: make(map[ListenerHandle]FillListener),
	}
}

func (e *PaperExecutor) nextOrderID() string {
	e.nextID++
	return fmt.Sprintf("PAPER-%d", e.nextID)
}

func direction(intent types.OrderIntent) feeds.Direction {
	if intent.IsBuy() {
		return feeds.DirectionBuy
	}
	return feeds.DirectionSell
}

// ExecuteOrder submits a new order. MARKET orders always take immediately
// and never rest; LIMIT orders take what crosses the book and rest any
// remainder at the limit price (§4.6).
func (e *PaperExecutor) ExecuteOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	e.mu.Lock()
	e.stats.TotalOrders++
	e.mu.Unlock()

	opposite, rewritten := e.normalizeSell(req)
	if rewritten {
		req = opposite
	}

	if flipped := e.closeOppositeSideIfNeeded(req); flipped {
		log.Info().Str("market_slug", req.MarketSlug).Msg("closed opposite-side position before opening new side")
	}

	side := req.Intent.Side()
	walkQty := decimal.NewFromInt(int64(req.Quantity))
	var result types.WalkResult
	if req.Type == types.OrderTypeMarket {
		result = e.tracker.Walk(req.MarketSlug, side, direction(req.Intent), walkQty)
	} else {
		result = e.tracker.WalkLimit(req.MarketSlug, side, direction(req.Intent), walkQty, req.Price)
	}

	filled := int(result.Filled.IntPart())

	e.mu.Lock()
	id := e.nextOrderID()
	e.mu.Unlock()

	if req.Type == types.OrderTypeMarket {
		if filled > 0 {
			e.commitFill(id, req, filled, result.VWAP)
		}
		status := types.StatusFilled
		if filled < req.Quantity {
			status = types.StatusPartiallyFilled
		}
		return OrderResult{OrderID: id, MarketSlug: req.MarketSlug, Status: status, FilledQuantity: filled, AvgFillPrice: result.VWAP}, nil
	}

	// LIMIT: take what crosses, rest the remainder.
	if filled > 0 {
		e.commitFill(id, req, filled, result.VWAP)
	}
	remaining := req.Quantity - filled
	if remaining <= 0 {
		return OrderResult{OrderID: id, MarketSlug: req.MarketSlug, Status: types.StatusFilled, FilledQuantity: filled, AvgFillPrice: result.VWAP}, nil
	}

	e.mu.Lock()
	e.resting[id] = &restingOrder{
		id: id, marketSlug: req.MarketSlug, intent: req.Intent,
		price: req.Price, quantity: req.Quantity, filled: filled, strategy: req.Strategy,
	}
	e.mu.Unlock()

	status := types.StatusOpen
	if filled > 0 {
		status = types.StatusPartiallyFilled
	}
	return OrderResult{OrderID: id, MarketSlug: req.MarketSlug, Status: status, FilledQuantity: filled, AvgFillPrice: result.VWAP}, nil
}

// normalizeSell rewrites a SELL with no matching position into the
// equivalent BUY on the opposite side at complement price (§3).
func (e *PaperExecutor) normalizeSell(req OrderRequest) (OrderRequest, bool) {
	if !req.Intent.IsSell() {
		return req, false
	}
	side := req.Intent.Side()
	if _, ok := e.store.Position(req.MarketSlug, side); ok {
		return req, false
	}

	opposite := req
	opposite.Price = decimal.NewFromInt(1).Sub(req.Price)
	if side == types.SideYes {
		opposite.Intent = types.IntentBuyShort
	} else {
		opposite.Intent = types.IntentBuyLong
	}
	return opposite, true
}

// closeOppositeSideIfNeeded liquidates an existing opposite-side position
// before a BUY opens the new side (§4.6 side-flip close).
func (e *PaperExecutor) closeOppositeSideIfNeeded(req OrderRequest) bool {
	if !req.Intent.IsBuy() {
		return false
	}
	side := req.Intent.Side()
	opp := side.Opposite()
	pos, ok := e.store.Position(req.MarketSlug, opp)
	if !ok || pos.Quantity <= 0 {
		return false
	}

	liqValue := e.LiquidationValue(req.MarketSlug, opp, pos.Quantity)
	avgClosePrice := decimal.Zero
	if pos.Quantity > 0 {
		avgClosePrice = liqValue.Div(decimal.NewFromInt(int64(pos.Quantity)))
	}

	closeIntent := types.IntentSellLong
	if opp == types.SideNo {
		closeIntent = types.IntentSellShort
	}
	fee := e.fee(avgClosePrice, pos.Quantity)
	e.store.ApplyFill(req.MarketSlug, closeIntent, avgClosePrice, pos.Quantity, fee)
	e.recordFill(pos.Quantity, avgClosePrice, fee)
	e.notify(FillEvent{OrderID: "LIQUIDATION", MarketSlug: req.MarketSlug, Intent: closeIntent, Price: avgClosePrice, Quantity: pos.Quantity, Timestamp: time.Now()})
	return true
}

// LiquidationValue walks the full book for quantity and applies the
// conservative discount to any residual beyond visible depth (§4.6).
func (e *PaperExecutor) LiquidationValue(marketSlug string, side types.Side, quantity int) decimal.Decimal {
	qty := decimal.NewFromInt(int64(quantity))
	result := e.tracker.Walk(marketSlug, side, feeds.DirectionSell, qty)

	value := result.Filled.Mul(result.VWAP)
	residual := qty.Sub(result.Filled)
	if residual.GreaterThan(decimal.Zero) {
		levels := e.tracker.WalkLevels(marketSlug, side, feeds.DirectionSell)
		worstPrice := decimal.Zero
		if len(levels) > 0 {
			worstPrice = levels[len(levels)-1].Price
		}
		value = value.Add(residual.Mul(worstPrice).Mul(e.cfg.LiquidationDiscount))
	}
	return value
}

func (e *PaperExecutor) fee(price decimal.Decimal, quantity int) decimal.Decimal {
	notional := price.Mul(decimal.NewFromInt(int64(quantity)))
	return notional.Mul(decimal.NewFromInt(e.cfg.TakerFeeBps)).Div(decimal.NewFromInt(10000))
}

func (e *PaperExecutor) commitFill(orderID string, req OrderRequest, quantity int, price decimal.Decimal) {
	fee := e.fee(price, quantity)
	e.store.ApplyFill(req.MarketSlug, req.Intent, price, quantity, fee)
	e.recordFill(quantity, price, fee)
	e.notify(FillEvent{OrderID: orderID, MarketSlug: req.MarketSlug, Intent: req.Intent, Price: price, Quantity: quantity, Timestamp: time.Now()})
}

func (e *PaperExecutor) recordFill(quantity int, price, fee decimal.Decimal) {
	e.mu.Lock()
	e.stats.FilledOrders++
	e.stats.TotalVolume = e.stats.TotalVolume.Add(price.Mul(decimal.NewFromInt(int64(quantity))))
	e.stats.TotalFees = e.stats.TotalFees.Add(fee)
	e.mu.Unlock()
}

// CancelOrder removes a resting order.
func (e *PaperExecutor) CancelOrder(ctx context.Context, orderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.resting[orderID]; !ok {
		return fmt.Errorf("no resting order %s", orderID)
	}
	delete(e.resting, orderID)
	return nil
}

// CancelAllOrders removes every resting order for a market.
func (e *PaperExecutor) CancelAllOrders(ctx context.Context, marketSlug string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, o := range e.resting {
		if o.marketSlug == marketSlug {
			delete(e.resting, id)
		}
	}
	return nil
}

// CheckRestingOrders advances every resting maker order one tick: any
// order whose price now crosses the opposing top-of-book fills
// max(1, ceil(remaining*fraction)) contracts, capped by opposite-side
// depth and, for SELLs, by current inventory (§4.6).
func (e *PaperExecutor) CheckRestingOrders(ctx context.Context) error {
	e.mu.Lock()
	orders := make([]*restingOrder, 0, len(e.resting))
	for _, o := range e.resting {
		orders = append(orders, o)
	}
	e.mu.Unlock()

	for _, o := range orders {
		e.advanceRestingOrder(o)
	}
	return nil
}

func (e *PaperExecutor) advanceRestingOrder(o *restingOrder) {
	side := o.intent.Side()
	crosses := e.crossesTopOfBook(o.marketSlug, side, o.intent, o.price)
	if !crosses {
		return
	}

	remaining := o.quantity - o.filled
	if remaining <= 0 {
		return
	}

	fillQty := int(math.Ceil(float64(remaining) * toFloat(e.cfg.MakerFillFraction)))
	if fillQty < 1 {
		fillQty = 1
	}

	depthAvailable := e.tracker.WalkLimit(o.marketSlug, side, direction(o.intent), decimal.NewFromInt(int64(fillQty)), o.price).Filled
	capped := int(depthAvailable.IntPart())
	if capped < fillQty {
		fillQty = capped
	}

	if o.intent.IsSell() {
		if pos, ok := e.store.Position(o.marketSlug, side); ok {
			if fillQty > pos.Quantity {
				fillQty = pos.Quantity
			}
		} else {
			fillQty = 0
		}
	}

	if fillQty <= 0 {
		return
	}

	fee := e.fee(o.price, fillQty)
	e.store.ApplyFill(o.marketSlug, o.intent, o.price, fillQty, fee)
	e.recordFill(fillQty, o.price, fee)

	e.mu.Lock()
	o.filled += fillQty
	done := o.filled >= o.quantity
	if done {
		delete(e.resting, o.id)
	}
	e.mu.Unlock()

	e.notify(FillEvent{OrderID: o.id, MarketSlug: o.marketSlug, Intent: o.intent, Price: o.price, Quantity: fillQty, Timestamp: time.Now()})
}

func (e *PaperExecutor) crossesTopOfBook(marketSlug string, side types.Side, intent types.OrderIntent, price decimal.Decimal) bool {
	book, ok := e.tracker.Get(marketSlug)
	if !ok {
		return false
	}
	if intent.IsBuy() {
		ask, hasAsk := book.BestAsk(side)
		return hasAsk && price.GreaterThanOrEqual(ask)
	}
	bid, hasBid := book.BestBid(side)
	return hasBid && price.LessThanOrEqual(bid)
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// AddFillListener registers a callback invoked on every committed fill.
func (e *PaperExecutor) AddFillListener(l FillListener) ListenerHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextHandle++
	h := e.nextHandle
	e.listeners[h] = l
	return h
}

// RemoveFillListener unregisters a previously added listener.
func (e *PaperExecutor) RemoveFillListener(h ListenerHandle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.listeners, h)
}

func (e *PaperExecutor) notify(event FillEvent) {
	e.mu.Lock()
	listeners := make([]FillListener, 0, len(e.listeners))
	for _, l := range e.listeners {
		listeners = append(listeners, l)
	}
	e.mu.Unlock()

	for _, l := range listeners {
		l(event)
	}
}

// GetPerformance returns cumulative paper-trading stats.
func (e *PaperExecutor) GetPerformance() PerformanceStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}
