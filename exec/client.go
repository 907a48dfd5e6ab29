package exec

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ridgeline-sports/sportsbook-bot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// EXCHANGE EXECUTION CLIENT
// ═══════════════════════════════════════════════════════════════════════════════
//
// Binds the REST surface a live LiveExecutor drives (§6): order placement
// and cancellation, open-order/position/balance lookups, and market
// metadata. Authentication is a key id plus a millisecond timestamp plus
// an HMAC-SHA256 signature over timestamp||method||path — there is no
// on-chain settlement or order signing involved.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Order sides, as sent in the order payload and echoed back by the API.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Client talks to the exchange's REST API on behalf of a LiveExecutor.
type Client struct {
	baseURL    string
	keyID      string
	apiSecret  string
	dryRun     bool
	httpClient *http.Client
}

// ClientConfig carries the connection and credential parameters for a
// Client. BaseURL and the key pair come from Config's exchange
// connectivity section (§6 configuration surface).
type ClientConfig struct {
	BaseURL   string
	KeyID     string
	APISecret string
	DryRun    bool
	Timeout   time.Duration
}

// NewClient creates an execution client against the given exchange
// connection parameters.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("exchange base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	client := &Client{
		baseURL:    cfg.BaseURL,
		keyID:      cfg.KeyID,
		apiSecret:  cfg.APISecret,
		dryRun:     cfg.DryRun,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}

	mode := "DRY RUN"
	if !cfg.DryRun {
		mode = "LIVE"
	}
	log.Info().Str("mode", mode).Str("base_url", cfg.BaseURL).Str("key_id", cfg.KeyID).Msg("🚀 execution client initialized")

	return client, nil
}

// IsDryRun returns true if in dry run mode.
func (c *Client) IsDryRun() bool {
	return c.dryRun
}

// ═══════════════════════════════════════════════════════════════════════════════
// ORDER TYPES & STRUCTURES
// ═══════════════════════════════════════════════════════════════════════════════

// orderPayload is the POST /orders request body. outcomeID identifies one
// outcome of one market (resolved by the caller, e.g. core.MarketRegistry);
// the exchange itself addresses markets by slug (§6) but still needs a
// per-outcome instrument to route the order to.
type orderPayload struct {
	OutcomeID string          `json:"outcomeId"`
	Side      string          `json:"side"`
	OrderType types.OrderType `json:"orderType"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// Order represents an order as returned by GET /orders and GET /orders/{id}.
type Order struct {
	ID        string          `json:"id"`
	TokenID   string          `json:"outcomeId"`
	Price     decimal.Decimal `json:"price"`
	Size      decimal.Decimal `json:"quantity"`
	Filled    decimal.Decimal `json:"filledQuantity"`
	Side      string          `json:"side"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Position represents a holding as returned by GET /positions.
type Position struct {
	MarketSlug string          `json:"marketSlug"`
	Side       string          `json:"side"`
	Quantity   decimal.Decimal `json:"quantity"`
	AvgPrice   decimal.Decimal `json:"avgPrice"`
}

// Market represents one entry of GET /markets.
type Market struct {
	Slug         string `json:"slug"`
	Active       bool   `json:"active"`
	YesOutcomeID string `json:"yesOutcomeId"`
	NoOutcomeID  string `json:"noOutcomeId"`
}

// MarketSides is the GET /market/{slug}/sides depth snapshot for both
// outcomes of a market.
type MarketSides struct {
	Yes SideBook `json:"yes"`
	No  SideBook `json:"no"`
}

// SideBook is one outcome's bid/ask ladder as returned by the depth
// snapshot endpoint.
type SideBook struct {
	Bids []LevelQuote `json:"bids"`
	Asks []LevelQuote `json:"asks"`
}

// LevelQuote is a single [price, quantity] rung of a depth snapshot.
type LevelQuote struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
}

// ═══════════════════════════════════════════════════════════════════════════════
// ORDER PLACEMENT
// ═══════════════════════════════════════════════════════════════════════════════

// PlaceOrder submits a resting limit order.
func (c *Client) PlaceOrder(outcomeID string, price, size decimal.Decimal, side string) (string, error) {
	return c.placeOrder(outcomeID, price, size, side, types.OrderTypeLimit)
}

// PlaceMarketOrder submits a marketable order that takes available depth
// immediately rather than resting.
func (c *Client) PlaceMarketOrder(outcomeID string, price, size decimal.Decimal, side string) (string, error) {
	return c.placeOrder(outcomeID, price, size, side, types.OrderTypeMarket)
}

func (c *Client) placeOrder(outcomeID string, price, size decimal.Decimal, side string, orderType types.OrderType) (string, error) {
	if c.dryRun {
		orderID := fmt.Sprintf("DRY_%d", time.Now().UnixNano())
		log.Info().
			Str("order_id", orderID).
			Str("outcome_id", truncateID(outcomeID)).
			Str("side", side).
			Str("price", price.StringFixed(2)).
			Str("size", size.StringFixed(2)).
			Str("type", string(orderType)).
			Msg("📝 DRY RUN: order would be placed")
		return orderID, nil
	}

	payload := orderPayload{OutcomeID: outcomeID, Side: side, OrderType: orderType, Price: price, Quantity: size}
	resp, err := c.post("/orders", payload)
	if err != nil {
		return "", err
	}

	var result struct {
		ID       string `json:"id"`
		Status   string `json:"status"`
		ErrorMsg string `json:"error"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if result.ErrorMsg != "" {
		return "", fmt.Errorf("exchange error: %s", result.ErrorMsg)
	}

	log.Info().Str("order_id", result.ID).Str("status", result.Status).Str("type", string(orderType)).Msg("✅ order placed")
	return result.ID, nil
}

// truncateID truncates an outcome id for logging.
func truncateID(id string) string {
	if len(id) > 16 {
		return id[:16] + "..."
	}
	return id
}

// CancelOrder cancels a single order.
func (c *Client) CancelOrder(orderID string) error {
	if c.dryRun {
		log.Info().Str("order_id", orderID).Msg("📝 DRY RUN: order would be cancelled")
		return nil
	}
	if _, err := c.delete("/orders/" + url.PathEscape(orderID)); err != nil {
		return fmt.Errorf("cancel order failed: %w", err)
	}
	log.Info().Str("order_id", orderID).Msg("🗑️ order cancelled")
	return nil
}

// CancelAllOrders cancels every resting order, optionally scoped to a
// single market slug (§6 "DELETE /orders (optional market filter)"). An
// empty marketFilter cancels account-wide.
func (c *Client) CancelAllOrders(marketFilter string) error {
	if c.dryRun {
		log.Info().Str("market_slug", marketFilter).Msg("📝 DRY RUN: orders would be cancelled")
		return nil
	}
	path := "/orders"
	if marketFilter != "" {
		path += "?market=" + url.QueryEscape(marketFilter)
	}
	if _, err := c.delete(path); err != nil {
		return fmt.Errorf("cancel all orders failed: %w", err)
	}
	log.Info().Str("market_slug", marketFilter).Msg("🗑️ orders cancelled")
	return nil
}

// GetBalance returns the account's available cash balance.
func (c *Client) GetBalance() (decimal.Decimal, error) {
	if c.dryRun {
		return decimal.NewFromFloat(100), nil
	}

	resp, err := c.get("/balances")
	if err != nil {
		return decimal.Zero, err
	}
	var result struct {
		Available decimal.Decimal `json:"available"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return decimal.Zero, fmt.Errorf("parse balance response: %w", err)
	}
	return result.Available, nil
}

// GetOpenOrders returns every currently resting order.
func (c *Client) GetOpenOrders() ([]Order, error) {
	resp, err := c.get("/orders")
	if err != nil {
		return nil, err
	}
	var orders []Order
	if err := json.Unmarshal(resp, &orders); err != nil {
		return nil, fmt.Errorf("parse orders response: %w", err)
	}
	return orders, nil
}

// GetOrder fetches a single order by id.
func (c *Client) GetOrder(orderID string) (Order, error) {
	resp, err := c.get("/orders/" + url.PathEscape(orderID))
	if err != nil {
		return Order{}, err
	}
	var order Order
	if err := json.Unmarshal(resp, &order); err != nil {
		return Order{}, fmt.Errorf("parse order response: %w", err)
	}
	return order, nil
}

// GetPositions returns every open position across all markets.
func (c *Client) GetPositions() ([]Position, error) {
	resp, err := c.get("/positions")
	if err != nil {
		return nil, err
	}
	var positions []Position
	if err := json.Unmarshal(resp, &positions); err != nil {
		return nil, fmt.Errorf("parse positions response: %w", err)
	}
	return positions, nil
}

// GetMarkets lists every market the exchange currently offers.
func (c *Client) GetMarkets() ([]Market, error) {
	resp, err := c.get("/markets")
	if err != nil {
		return nil, err
	}
	var markets []Market
	if err := json.Unmarshal(resp, &markets); err != nil {
		return nil, fmt.Errorf("parse markets response: %w", err)
	}
	return markets, nil
}

// GetMarketSides fetches the depth snapshot for one market's two outcomes.
func (c *Client) GetMarketSides(marketSlug string) (MarketSides, error) {
	resp, err := c.get("/market/" + url.PathEscape(marketSlug) + "/sides")
	if err != nil {
		return MarketSides{}, err
	}
	var sides MarketSides
	if err := json.Unmarshal(resp, &sides); err != nil {
		return MarketSides{}, fmt.Errorf("parse market sides response: %w", err)
	}
	return sides, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// HTTP HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

func (c *Client) get(path string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	c.addHeaders(req, path)
	return c.doRequest(req)
}

func (c *Client) post(path string, body interface{}) ([]byte, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.addHeaders(req, path)
	return c.doRequest(req)
}

func (c *Client) delete(path string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	c.addHeaders(req, path)
	return c.doRequest(req)
}

// addHeaders attaches the key id, millisecond timestamp, and HMAC-SHA256
// signature over timestamp||method||requestPath (§6). requestPath
// excludes the query string, matching the path the exchange signs
// against on its side.
func (c *Client) addHeaders(req *http.Request, requestPath string) {
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)

	req.Header.Set("X-API-KEY-ID", c.keyID)
	req.Header.Set("X-API-TIMESTAMP", timestamp)

	if u, err := url.Parse(requestPath); err == nil {
		requestPath = u.EscapedPath()
	}

	if c.apiSecret != "" {
		message := timestamp + req.Method + requestPath
		req.Header.Set("X-API-SIGNATURE", c.hmacSign(message))
	}
}

func (c *Client) doRequest(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// hmacSign signs message with the account's API secret, base64-url
// encoded the way the exchange expects it to be supplied.
func (c *Client) hmacSign(message string) string {
	key, err := base64.URLEncoding.DecodeString(c.apiSecret)
	if err != nil {
		key, err = base64.StdEncoding.DecodeString(c.apiSecret)
		if err != nil {
			key = []byte(c.apiSecret)
		}
	}
	h := hmac.New(sha256.New, key)
	h.Write([]byte(message))
	return base64.URLEncoding.EncodeToString(h.Sum(nil))
}
