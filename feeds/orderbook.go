// Package feeds contains the components that turn external market data
// into typed snapshots consumed by the rest of the bot: the order book
// tracker, the event bus, and the sports/odds/REST-poll feed producers.
package feeds

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ridgeline-sports/sportsbook-bot/types"
)

// RawLevel is a single [price, quantity] pair as received from a market
// data frame, before it has been parsed into a types.PriceLevel.
type RawLevel struct {
	Price    string
	Quantity string
}

// SideFrame carries one side's full ladder (snapshot, not a delta).
type SideFrame struct {
	Bids []RawLevel
	Asks []RawLevel
}

// Frame is a full market-data snapshot for both outcomes of a market.
type Frame struct {
	Yes SideFrame
	No  SideFrame
}

// BookSide holds one side of one outcome's ladder, sorted per its
// direction: bids descending by price, asks ascending by price.
type BookSide struct {
	Bids []types.PriceLevel
	Asks []types.PriceLevel
}

func (s *BookSide) bestBid() (decimal.Decimal, bool) {
	if len(s.Bids) == 0 {
		return decimal.Zero, false
	}
	return s.Bids[0].Price, true
}

func (s *BookSide) bestAsk() (decimal.Decimal, bool) {
	if len(s.Asks) == 0 {
		return decimal.Zero, false
	}
	return s.Asks[0].Price, true
}

// walk consumes levels in book order (already sorted correctly for the
// trade direction) and returns the achievable quantity and its VWAP.
func walk(levels []types.PriceLevel, quantity decimal.Decimal) types.WalkResult {
	remaining := quantity
	filled := decimal.Zero
	notional := decimal.Zero

	for _, lvl := range levels {
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}
		take := decimal.Min(remaining, lvl.Quantity)
		if take.LessThanOrEqual(decimal.Zero) {
			continue
		}
		notional = notional.Add(take.Mul(lvl.Price))
		filled = filled.Add(take)
		remaining = remaining.Sub(take)
	}

	if filled.IsZero() {
		return types.WalkResult{Filled: decimal.Zero, VWAP: decimal.Zero}
	}
	return types.WalkResult{Filled: filled, VWAP: notional.Div(filled)}
}

// Book is the reconstructed YES/NO order book for one market.
type Book struct {
	MarketSlug string
	Yes        BookSide
	No         BookSide
	UpdatedAt  time.Time
}

// Side returns the requested outcome's side ladder.
func (b *Book) Side(side types.Side) *BookSide {
	if side == types.SideYes {
		return &b.Yes
	}
	return &b.No
}

// BestBid returns the best bid for the given side, if any.
func (b *Book) BestBid(side types.Side) (decimal.Decimal, bool) {
	return b.Side(side).bestBid()
}

// BestAsk returns the best ask for the given side, if any.
func (b *Book) BestAsk(side types.Side) (decimal.Decimal, bool) {
	return b.Side(side).bestAsk()
}

// Tracker maintains per-market YES/NO order books reconstructed from
// snapshot frames. Every mutating and reading operation is serialized by
// a single mutex (§4.1): critical sections never suspend, so this is safe
// to call from any goroutine without risking lock contention stalls.
type Tracker struct {
	mu    sync.Mutex
	books map[string]*Book
}

// NewTracker creates an empty order book tracker.
func NewTracker() *Tracker {
	return &Tracker{books: make(map[string]*Book)}
}

func parseLevels(raw []RawLevel, descending bool) []types.PriceLevel {
	levels := make([]types.PriceLevel, 0, len(raw))
	for _, r := range raw {
		price, err := decimal.NewFromString(r.Price)
		if err != nil {
			continue
		}
		qty, err := decimal.NewFromString(r.Quantity)
		if err != nil {
			continue
		}
		if qty.LessThanOrEqual(decimal.Zero) {
			continue // zero/negative quantity levels are pruned, never stored
		}
		levels = append(levels, types.PriceLevel{Price: price, Quantity: qty})
	}
	sort.Slice(levels, func(i, j int) bool {
		if descending {
			return levels[i].Price.GreaterThan(levels[j].Price)
		}
		return levels[i].Price.LessThan(levels[j].Price)
	})
	return levels
}

func sideFromFrame(f SideFrame) BookSide {
	return BookSide{
		Bids: parseLevels(f.Bids, true),
		Asks: parseLevels(f.Asks, false),
	}
}

// Update replaces the full ladder for both sides of a market (snapshot
// semantics, not incremental deltas). Applying the same frame twice
// yields the same book (idempotent).
func (t *Tracker) Update(marketSlug string, frame Frame) {
	yes := sideFromFrame(frame.Yes)
	no := sideFromFrame(frame.No)

	t.mu.Lock()
	defer t.mu.Unlock()

	book, ok := t.books[marketSlug]
	if !ok {
		book = &Book{MarketSlug: marketSlug}
		t.books[marketSlug] = book
	}
	book.Yes = yes
	book.No = no
	book.UpdatedAt = time.Now()

	if yesBid, ok := book.BestBid(types.SideYes); ok {
		if yesAsk, ok := book.BestAsk(types.SideYes); ok && yesAsk.LessThanOrEqual(yesBid) {
			log.Warn().Str("market_slug", marketSlug).Msg("crossed YES book after update")
		}
	}
}

// Get returns the current book for a market, or false if no frame has
// arrived for it yet.
func (t *Tracker) Get(marketSlug string) (*Book, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	book, ok := t.books[marketSlug]
	if !ok {
		return nil, false
	}
	cp := *book
	cp.Yes = BookSide{Bids: append([]types.PriceLevel(nil), book.Yes.Bids...), Asks: append([]types.PriceLevel(nil), book.Yes.Asks...)}
	cp.No = BookSide{Bids: append([]types.PriceLevel(nil), book.No.Bids...), Asks: append([]types.PriceLevel(nil), book.No.Asks...)}
	return &cp, true
}

// GetBest returns the best bid/ask for one side of a market.
func (t *Tracker) GetBest(marketSlug string, side types.Side) (bid, ask decimal.Decimal, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	book, exists := t.books[marketSlug]
	if !exists {
		return decimal.Zero, decimal.Zero, false
	}
	bidVal, hasBid := book.BestBid(side)
	askVal, hasAsk := book.BestAsk(side)
	return bidVal, askVal, hasBid || hasAsk
}

// Direction selects which ladder a walk consumes.
type Direction int

const (
	// DirectionBuy walks asks ascending (taker buying).
	DirectionBuy Direction = iota
	// DirectionSell walks bids descending (taker selling/liquidating).
	DirectionSell
)

// Walk consumes price levels in the direction of trade and returns the
// achievable filled quantity and its volume-weighted average price. If
// the requested quantity exceeds available depth, the caller receives
// the achievable (partial) fill; it decides how to handle the remainder.
func (t *Tracker) Walk(marketSlug string, side types.Side, direction Direction, quantity decimal.Decimal) types.WalkResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	book, ok := t.books[marketSlug]
	if !ok {
		return types.WalkResult{}
	}
	bookSide := book.Side(side)
	if direction == DirectionBuy {
		return walk(bookSide.Asks, quantity)
	}
	return walk(bookSide.Bids, quantity)
}

// WalkLimit is like Walk but only consumes levels priced acceptably
// relative to limitPrice: asks at or below limitPrice for a buy, bids at
// or above limitPrice for a sell (§4.6 "depth at acceptable prices").
// Levels beyond the limit are left untouched for the caller to rest
// against instead of filling.
func (t *Tracker) WalkLimit(marketSlug string, side types.Side, direction Direction, quantity, limitPrice decimal.Decimal) types.WalkResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	book, ok := t.books[marketSlug]
	if !ok {
		return types.WalkResult{}
	}
	bookSide := book.Side(side)
	levels := bookSide.Asks
	if direction == DirectionSell {
		levels = bookSide.Bids
	}

	acceptable := make([]types.PriceLevel, 0, len(levels))
	for _, lvl := range levels {
		if direction == DirectionBuy && lvl.Price.GreaterThan(limitPrice) {
			break // asks ascending: once above the limit, no further level qualifies
		}
		if direction == DirectionSell && lvl.Price.LessThan(limitPrice) {
			break // bids descending: once below the limit, no further level qualifies
		}
		acceptable = append(acceptable, lvl)
	}
	return walk(acceptable, quantity)
}

// WalkLevels returns a copy of the whole ladder a walk in the given
// direction would consume, in walk order (asks for a buy, bids for a
// sell); it takes no target quantity and computes no fill or VWAP.
// It does not mutate the tracker; depth reduction after a simulated fill
// is the caller's responsibility (the tracker only reflects externally
// observed frames, per snapshot semantics).
func (t *Tracker) WalkLevels(marketSlug string, side types.Side, direction Direction) []types.PriceLevel {
	t.mu.Lock()
	defer t.mu.Unlock()

	book, ok := t.books[marketSlug]
	if !ok {
		return nil
	}
	bookSide := book.Side(side)
	if direction == DirectionBuy {
		return append([]types.PriceLevel(nil), bookSide.Asks...)
	}
	return append([]types.PriceLevel(nil), bookSide.Bids...)
}
