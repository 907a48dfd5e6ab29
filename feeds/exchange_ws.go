package feeds

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ridgeline-sports/sportsbook-bot/health"
	"github.com/ridgeline-sports/sportsbook-bot/state"
	"github.com/ridgeline-sports/sportsbook-bot/types"
)

const (
	wsReconnectDelay = 5 * time.Second
	wsPingInterval   = 30 * time.Second
)

// ExchangeWSConfig bundles the exchange WebSocket client's tunables.
type ExchangeWSConfig struct {
	URL            string
	ReconnectDelay time.Duration
	PingInterval   time.Duration
}

func (c ExchangeWSConfig) withDefaults() ExchangeWSConfig {
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = wsReconnectDelay
	}
	if c.PingInterval <= 0 {
		c.PingInterval = wsPingInterval
	}
	return c
}

// wsFrame is the envelope every exchange WebSocket message arrives in.
type wsFrame struct {
	EventType string          `json:"event_type"`
	TokenID   string          `json:"asset_id"`
	Bids      []RawLevel      `json:"bids"`
	Asks      []RawLevel      `json:"asks"`
	OrderID   string          `json:"order_id"`
	Filled    string          `json:"filled"`
	Status    string          `json:"status"`
	Cash      string          `json:"cash"`
}

// ExchangeWS maintains the exchange's public MARKET_DATA and private
// ORDER_UPDATE/POSITION_UPDATE/ACCOUNT_BALANCE_UPDATE stream, feeding the
// former into a Tracker and the latter into a state.Manager. Handlers are
// idempotent against replays: an order update is only applied if it
// reports strictly more filled quantity than what is already recorded.
type ExchangeWS struct {
	mu sync.RWMutex

	cfg     ExchangeWSConfig
	conn    *websocket.Conn
	running bool
	stopCh  chan struct{}

	tracker *Tracker
	store   *state.Manager
	markets []MarketTokens
	monitor *health.Monitor

	tokenToMarket map[string]MarketTokens
}

// SetMonitor registers a health monitor to heartbeat on every message
// received. Optional; a nil monitor (the default) disables reporting.
func (w *ExchangeWS) SetMonitor(m *health.Monitor) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.monitor = m
}

// NewExchangeWS creates a client bound to the given tracker/state pair.
func NewExchangeWS(cfg ExchangeWSConfig, tracker *Tracker, store *state.Manager, markets []MarketTokens) *ExchangeWS {
	tokenToMarket := make(map[string]MarketTokens, len(markets)*2)
	for _, m := range markets {
		tokenToMarket[m.YesTokenID] = m
		tokenToMarket[m.NoTokenID] = m
	}
	return &ExchangeWS{
		cfg:           cfg.withDefaults(),
		tracker:       tracker,
		store:         store,
		markets:       markets,
		tokenToMarket: tokenToMarket,
		stopCh:        make(chan struct{}),
	}
}

// Start connects and begins processing in the background.
func (w *ExchangeWS) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	go w.connectionLoop()
	log.Info().Str("url", w.cfg.URL).Msg("📡 exchange websocket feed started")
}

// Stop closes the connection.
func (w *ExchangeWS) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.running = false
	close(w.stopCh)
	if w.conn != nil {
		w.conn.Close()
	}
	log.Info().Msg("exchange websocket feed stopped")
}

func (w *ExchangeWS) connectionLoop() {
	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		if err := w.connect(); err != nil {
			log.Error().Err(err).Msg("exchange websocket connection failed, retrying")
			time.Sleep(w.cfg.ReconnectDelay)
			continue
		}

		w.readLoop()
		time.Sleep(w.cfg.ReconnectDelay)
	}
}

func (w *ExchangeWS) connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(w.cfg.URL, nil)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	log.Info().Msg("🔌 exchange websocket connected")
	go w.pingLoop()
	return nil
}

func (w *ExchangeWS) pingLoop() {
	ticker := time.NewTicker(w.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.mu.RLock()
			conn := w.conn
			w.mu.RUnlock()
			if conn != nil {
				conn.WriteMessage(websocket.PingMessage, nil)
			}
		}
	}
}

func (w *ExchangeWS) readLoop() {
	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warn().Err(err).Msg("exchange websocket read error")
			return
		}
		w.processMessage(message)

		w.mu.RLock()
		monitor := w.monitor
		w.mu.RUnlock()
		if monitor != nil {
			monitor.Heartbeat("exchange_ws")
		}
	}
}

func (w *ExchangeWS) processMessage(data []byte) {
	var frames []wsFrame
	if err := json.Unmarshal(data, &frames); err != nil {
		var single wsFrame
		if err := json.Unmarshal(data, &single); err != nil {
			log.Warn().Err(err).Msg("unparseable exchange websocket frame")
			return
		}
		frames = []wsFrame{single}
	}

	for _, f := range frames {
		switch f.EventType {
		case "MARKET_DATA":
			w.handleMarketData(f)
		case "ORDER_UPDATE":
			w.handleOrderUpdate(f)
		case "POSITION_UPDATE":
			w.handlePositionUpdate(f)
		case "ACCOUNT_BALANCE_UPDATE":
			w.handleBalanceUpdate(f)
		}
	}
}

func (w *ExchangeWS) handleMarketData(f wsFrame) {
	m, ok := w.tokenToMarket[f.TokenID]
	if !ok {
		return
	}
	side := types.SideYes
	if f.TokenID == m.NoTokenID {
		side = types.SideNo
	}

	book, _ := w.tracker.Get(m.MarketSlug)
	frame := Frame{}
	if book != nil {
		frame.Yes = SideFrame{Bids: levelsToRaw(book.Yes.Bids), Asks: levelsToRaw(book.Yes.Asks)}
		frame.No = SideFrame{Bids: levelsToRaw(book.No.Bids), Asks: levelsToRaw(book.No.Asks)}
	}
	if side == types.SideYes {
		frame.Yes = SideFrame{Bids: f.Bids, Asks: f.Asks}
	} else {
		frame.No = SideFrame{Bids: f.Bids, Asks: f.Asks}
	}
	w.tracker.Update(m.MarketSlug, frame)
}

// handleOrderUpdate applies a fill delta idempotently: only the portion of
// Filled beyond what is already recorded locally is ever re-applied.
func (w *ExchangeWS) handleOrderUpdate(f wsFrame) {
	order, ok := w.store.Order(f.OrderID)
	if !ok {
		return
	}
	filled, err := decimal.NewFromString(f.Filled)
	if err != nil {
		return
	}
	newFilled := int(filled.IntPart())
	if newFilled <= order.Filled {
		return
	}
	delta := newFilled - order.Filled
	order.Filled = newFilled
	if f.Status != "" {
		order.Status = types.OrderStatus(f.Status)
	}
	w.store.PutOrder(order)
	w.store.ApplyFill(order.MarketSlug, order.Intent, order.Price, delta, decimal.Zero)
}

func (w *ExchangeWS) handlePositionUpdate(f wsFrame) {
	// Positions are reconciled authoritatively through the live executor's
	// throttled REST pass; the private stream frame only confirms liveness.
}

func (w *ExchangeWS) handleBalanceUpdate(f wsFrame) {
	cash, err := decimal.NewFromString(f.Cash)
	if err != nil {
		return
	}
	current := w.store.Cash()
	w.store.AdjustCash(cash.Sub(current))
}

func levelsToRaw(levels []types.PriceLevel) []RawLevel {
	out := make([]RawLevel, 0, len(levels))
	for _, l := range levels {
		out = append(out, RawLevel{Price: l.Price.String(), Quantity: l.Quantity.String()})
	}
	return out
}
