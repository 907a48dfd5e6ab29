package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ridgeline-sports/sportsbook-bot/exec"
	"github.com/ridgeline-sports/sportsbook-bot/feeds"
	"github.com/ridgeline-sports/sportsbook-bot/state"
	"github.com/ridgeline-sports/sportsbook-bot/types"
)

// LiveExecutorConfig bundles the tunables for the exchange-backed executor.
type LiveExecutorConfig struct {
	ReconcileInterval time.Duration // minimum cadence between REST reconciliation passes
	TakerFeeBps       int64
}

// DefaultLiveExecutorConfig returns the documented defaults (§4.7, §6).
func DefaultLiveExecutorConfig() LiveExecutorConfig {
	return LiveExecutorConfig{ReconcileInterval: time.Second, TakerFeeBps: 10}
}

// tokenResolver maps a market slug/side pair to the exchange token id the
// client needs to place orders. Wiring it is outside this package's scope.
type tokenResolver func(marketSlug string, side types.Side) (tokenID string, ok bool)

// tokenReverseResolver maps an exchange token id back to the market slug
// and side it represents, used when reconciling exchange order snapshots.
type tokenReverseResolver func(tokenID string) (marketSlug string, side types.Side, ok bool)

// LiveExecutor submits real orders through the exchange client and keeps
// local state synchronized via a throttled REST reconciliation pass and
// (in a full deployment) a private order/position/balance update stream.
// It implements the same Executor contract as PaperExecutor (§4.7).
type LiveExecutor struct {
	mu sync.Mutex

	cfg            LiveExecutorConfig
	client         *exec.Client
	tracker        *feeds.Tracker
	store          *state.Manager
	resolve        tokenResolver
	reverseResolve tokenReverseResolver

	lastReconcile time.Time

	listeners  map[ListenerHandle]FillListener
	nextHandle ListenerHandle

	stats PerformanceStats
}

// NewLiveExecutor creates a live executor against the given exchange client.
func NewLiveExecutor(cfg LiveExecutorConfig, client *exec.Client, tracker *feeds.Tracker, store *state.Manager, resolve tokenResolver, reverseResolve tokenReverseResolver) *LiveExecutor {
	return &LiveExecutor{
		cfg:            cfg,
		client:         client,
		tracker:        tracker,
		store:          store,
		resolve:        resolve,
		reverseResolve: reverseResolve,
		listeners:      make(map[ListenerHandle]FillListener),
	}
}

// ExecuteOrder submits an order to the exchange. A SELL on a side with no
// local position is rewritten to the equivalent BUY at complement price
// before submission (§3). A BUY opposite an existing position side
// closes that position through the exchange first; failure there is
// surfaced as REJECTED rather than attempted locally (§4.7).
func (e *LiveExecutor) ExecuteOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	e.mu.Lock()
	e.stats.TotalOrders++
	e.mu.Unlock()

	req = e.normalizeSell(req)

	if req.Intent.IsBuy() {
		side := req.Intent.Side()
		if opp, ok := e.store.Position(req.MarketSlug, side.Opposite()); ok && opp.Quantity > 0 {
			if err := e.closeOppositeSide(req.MarketSlug, side.Opposite()); err != nil {
				e.mu.Lock()
				e.stats.RejectedOrders++
				e.mu.Unlock()
				return OrderResult{MarketSlug: req.MarketSlug, Status: types.StatusRejected, RejectReason: err.Error()}, nil
			}
			e.reconcile(ctx)
		}
	}

	tokenID, ok := e.resolve(req.MarketSlug, req.Intent.Side())
	if !ok {
		return OrderResult{MarketSlug: req.MarketSlug, Status: types.StatusRejected, RejectReason: "unresolvable token id"}, nil
	}

	price := req.Price
	if req.Type == types.OrderTypeLimit {
		price = e.postOnlyPrice(req.MarketSlug, req.Intent, req.Price)
	}

	side := "BUY"
	if req.Intent.IsSell() {
		side = "SELL"
	}

	orderID, err := e.client.PlaceOrder(tokenID, price, decimal.NewFromInt(int64(req.Quantity)), side)
	if err != nil {
		e.mu.Lock()
		e.stats.RejectedOrders++
		e.mu.Unlock()
		return OrderResult{MarketSlug: req.MarketSlug, Status: types.StatusRejected, RejectReason: err.Error()}, nil
	}

	e.store.PutOrder(state.OrderState{
		ID: orderID, MarketSlug: req.MarketSlug, Intent: req.Intent, Type: req.Type,
		Price: price, Quantity: req.Quantity, Status: types.StatusOpen, Strategy: req.Strategy,
		CreatedAt: time.Now(),
	})

	return OrderResult{OrderID: orderID, MarketSlug: req.MarketSlug, Status: types.StatusOpen}, nil
}

// normalizeSell mirrors PaperExecutor's SELL-with-no-position rewrite (§3).
func (e *LiveExecutor) normalizeSell(req OrderRequest) OrderRequest {
	if !req.Intent.IsSell() {
		return req
	}
	side := req.Intent.Side()
	if _, ok := e.store.Position(req.MarketSlug, side); ok {
		return req
	}
	rewritten := req
	rewritten.Price = decimal.NewFromInt(1).Sub(req.Price)
	if side == types.SideYes {
		rewritten.Intent = types.IntentBuyShort
	} else {
		rewritten.Intent = types.IntentBuyLong
	}
	return rewritten
}

// closeOppositeSide sends a SELL for the full opposite-side position
// through the exchange client (best-effort; the caller treats failure as
// a rejection of the whole request rather than simulating the close).
func (e *LiveExecutor) closeOppositeSide(marketSlug string, side types.Side) error {
	pos, ok := e.store.Position(marketSlug, side)
	if !ok || pos.Quantity <= 0 {
		return nil
	}
	tokenID, ok := e.resolve(marketSlug, side)
	if !ok {
		return fmt.Errorf("unresolvable token id for close")
	}
	_, err := e.client.PlaceMarketOrder(tokenID, pos.AvgPrice, decimal.NewFromInt(int64(pos.Quantity)), "SELL")
	return err
}

// postOnlyPrice approximates post-only by clamping the limit price to the
// opposite top-of-book so the order never crosses on submission (§4.7).
func (e *LiveExecutor) postOnlyPrice(marketSlug string, intent types.OrderIntent, price decimal.Decimal) decimal.Decimal {
	side := intent.Side()
	book, ok := e.tracker.Get(marketSlug)
	if !ok {
		return price
	}
	if intent.IsBuy() {
		if bid, hasBid := book.BestBid(side); hasBid && price.GreaterThan(bid) {
			return bid
		}
	} else {
		if ask, hasAsk := book.BestAsk(side); hasAsk && price.LessThan(ask) {
			return ask
		}
	}
	return price
}

// CancelOrder cancels a single order through the exchange client.
func (e *LiveExecutor) CancelOrder(ctx context.Context, orderID string) error {
	if err := e.client.CancelOrder(orderID); err != nil {
		return err
	}
	e.store.RemoveOrder(orderID)
	return nil
}

// CancelAllOrders cancels resting orders through the exchange client's
// cancel-all, which is scoped to marketSlug (account-wide when empty),
// and drops local open orders whose market equals marketSlug (none when
// marketSlug is empty).
func (e *LiveExecutor) CancelAllOrders(ctx context.Context, marketSlug string) error {
	if err := e.client.CancelAllOrders(marketSlug); err != nil {
		return err
	}
	for _, o := range e.store.OpenOrders() {
		if o.MarketSlug == marketSlug {
			e.store.RemoveOrder(o.ID)
		}
	}
	return nil
}

// CheckRestingOrders runs a throttled REST reconciliation pass: fetching
// open orders and balance and reconciling into the state manager. Fills
// that happened since the last pass surface as the difference in
// remaining quantity on each order (§4.7).
func (e *LiveExecutor) CheckRestingOrders(ctx context.Context) error {
	return e.reconcile(ctx)
}

func (e *LiveExecutor) reconcile(ctx context.Context) error {
	e.mu.Lock()
	if time.Since(e.lastReconcile) < e.cfg.ReconcileInterval {
		e.mu.Unlock()
		return nil
	}
	e.lastReconcile = time.Now()
	e.mu.Unlock()

	balance, err := e.client.GetBalance()
	if err != nil {
		log.Warn().Err(err).Msg("reconciliation balance fetch failed")
		return err
	}

	exchangeOrders, err := e.client.GetOpenOrders()
	if err != nil {
		log.Warn().Err(err).Msg("reconciliation open-orders fetch failed")
		return err
	}

	exchangePositions, err := e.client.GetPositions()
	if err != nil {
		log.Warn().Err(err).Msg("reconciliation positions fetch failed")
		return err
	}

	before := e.store.OpenOrders()
	beforeByID := make(map[string]state.OrderState, len(before))
	for _, o := range before {
		beforeByID[o.ID] = o
	}

	e.store.ReconcileFromExchange(e.convertExchangePositions(exchangePositions), e.convertExchangeOrders(exchangeOrders), balance)

	for id, prior := range beforeByID {
		after, stillOpen := e.store.Order(id)
		if !stillOpen || after.Filled > prior.Filled {
			fillQty := prior.Remaining()
			if stillOpen {
				fillQty = after.Filled - prior.Filled
			}
			if fillQty > 0 {
				e.notify(FillEvent{OrderID: id, MarketSlug: prior.MarketSlug, Intent: prior.Intent, Price: prior.Price, Quantity: fillQty, Timestamp: time.Now()})
			}
		}
	}
	return nil
}

func (e *LiveExecutor) convertExchangePositions(positions []exec.Position) []state.PositionState {
	out := make([]state.PositionState, 0, len(positions))
	for _, p := range positions {
		side := types.SideYes
		if p.Side == "NO" {
			side = types.SideNo
		}
		out = append(out, state.PositionState{
			MarketSlug: p.MarketSlug, Side: side,
			Quantity: int(p.Quantity.IntPart()), AvgPrice: p.AvgPrice,
		})
	}
	return out
}

func (e *LiveExecutor) convertExchangeOrders(orders []exec.Order) []state.OrderState {
	out := make([]state.OrderState, 0, len(orders))
	for _, o := range orders {
		slug, side, ok := e.reverseResolve(o.TokenID)
		if !ok {
			continue
		}
		intent := types.IntentBuyLong
		if side == types.SideNo {
			intent = types.IntentBuyShort
		}
		if o.Side == "SELL" {
			if side == types.SideYes {
				intent = types.IntentSellLong
			} else {
				intent = types.IntentSellShort
			}
		}
		out = append(out, state.OrderState{
			ID: o.ID, MarketSlug: slug, Intent: intent, Price: o.Price, Quantity: int(o.Size.IntPart()),
			Filled: int(o.Filled.IntPart()), Status: types.StatusOpen, CreatedAt: o.CreatedAt,
		})
	}
	return out
}

// AddFillListener registers a callback invoked on every reconciled fill.
func (e *LiveExecutor) AddFillListener(l FillListener) ListenerHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextHandle++
	h := e.nextHandle
	e.listeners[h] = l
	return h
}

// RemoveFillListener unregisters a previously added listener.
func (e *LiveExecutor) RemoveFillListener(h ListenerHandle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.listeners, h)
}

func (e *LiveExecutor) notify(event FillEvent) {
	e.mu.Lock()
	listeners := make([]FillListener, 0, len(e.listeners))
	for _, l := range e.listeners {
		listeners = append(listeners, l)
	}
	e.stats.FilledOrders++
	e.stats.TotalVolume = e.stats.TotalVolume.Add(event.Price.Mul(decimal.NewFromInt(int64(event.Quantity))))
	e.mu.Unlock()

	for _, l := range listeners {
		l(event)
	}
}

// GetPerformance returns cumulative live-trading stats.
func (e *LiveExecutor) GetPerformance() PerformanceStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}
