package sale

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Event types published by the controller.
const (
	EventSaleCreated   = "SALE_CREATED"
	EventTradeExecuted = "TRADE_EXECUTED"
	EventSaleLaunched  = "SALE_LAUNCHED"
	EventSaleFailed    = "SALE_FAILED"
	EventRefundClaimed = "REFUND_CLAIMED"
)

// Trade sides.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Event is the controller's outward notification of a state change. Amounts
// are base units; Price is the post-trade spot price in whole quote per
// whole token.
type Event struct {
	Type        string
	SaleID      string
	Participant string          // empty for lifecycle-only events
	Side        string          // buy | sell, trade events only
	TokenAmount *big.Int        // nil when not applicable
	QuoteAmount *big.Int        // nil when not applicable
	FeeAmount   *big.Int        // nil when not applicable
	Price       decimal.Decimal // zero when not applicable
	SoldAmount  *big.Int        // cumulative sold after the event
	RefundRate  *big.Int        // failure events only
	Status      string          // lifecycle status after the event
	Timestamp   int64           // unix seconds
}

// EventSink consumes controller events. Publish must not block the caller
// for long: it runs while the sale lock is held.
type EventSink interface {
	Publish(ev Event)
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(ev Event)

// Publish implements EventSink.
func (f EventSinkFunc) Publish(ev Event) { f(ev) }
