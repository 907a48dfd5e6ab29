// Package execution implements the paper and live order executors that
// share one async contract, plus the live reconciliation loop.
package execution

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ridgeline-sports/sportsbook-bot/types"
)

// OrderRequest is what a strategy (via the risk manager) asks an executor
// to do.
type OrderRequest struct {
	MarketSlug string
	Intent     types.OrderIntent
	Type       types.OrderType
	Price      decimal.Decimal // ignored for MARKET
	Quantity   int
	Strategy   string
}

// OrderResult is the immediate outcome of submitting an order. For a
// resting LIMIT order, FilledQuantity may be less than Quantity and
// Status will be OPEN or PARTIALLY_FILLED; further fills arrive through
// fill listeners as CheckRestingOrders (paper) or the private stream
// (live) progresses the order.
type OrderResult struct {
	OrderID        string
	MarketSlug     string
	Status         types.OrderStatus
	FilledQuantity int
	AvgFillPrice   decimal.Decimal
	RejectReason   string
}

// FillEvent describes one incremental fill against a tracked order.
type FillEvent struct {
	OrderID    string
	MarketSlug string
	Intent     types.OrderIntent
	Price      decimal.Decimal
	Quantity   int
	Timestamp  time.Time
}

// PerformanceStats summarizes executor activity for reporting.
type PerformanceStats struct {
	TotalOrders    int
	FilledOrders   int
	RejectedOrders int
	TotalVolume    decimal.Decimal
	TotalFees      decimal.Decimal
}

// FillListener is notified after a fill commits.
type FillListener func(event FillEvent)

// ListenerHandle identifies a registered fill listener for removal.
type ListenerHandle uint64

// Executor is the async contract both the paper and live executors
// satisfy (§4.6/§4.7).
type Executor interface {
	ExecuteOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) error
	CancelAllOrders(ctx context.Context, marketSlug string) error
	CheckRestingOrders(ctx context.Context) error
	AddFillListener(l FillListener) ListenerHandle
	RemoveFillListener(h ListenerHandle)
	GetPerformance() PerformanceStats
}
