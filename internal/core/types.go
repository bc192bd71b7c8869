package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side identifies an order book side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the other book side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// DiffKind identifies the mutation carried by a book diff event.
type DiffKind string

const (
	DiffNew     DiffKind = "NEW"
	DiffRemoved DiffKind = "REMOVED"
	DiffUpdated DiffKind = "UPDATED"
)

// PriceLevel is one resting order on a book side.
type PriceLevel struct {
	ID       string
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// DiffEvent is an incremental order book mutation. Price and Quantity are
// optional on UPDATED events; the venue may send either or both.
type DiffEvent struct {
	Side     Side
	Kind     DiffKind
	ID       string
	Price    *decimal.Decimal
	Quantity *decimal.Decimal
}

// BookSnapshot is the full two-sided book delivered on (re)subscription.
type BookSnapshot struct {
	Bids []PriceLevel
	Asks []PriceLevel
}

// BookMessage is one message from the streaming orderbook channel. Exactly
// one of Snapshot or Updates is populated.
type BookMessage struct {
	MessageID int64
	Snapshot  *BookSnapshot
	Updates   []DiffEvent
}

// OrderStatus is the lifecycle state of an order. All transitions are
// venue-reported except StatusError, which marks a local submission failure.
type OrderStatus string

const (
	StatusSubmitted OrderStatus = "SUBMITTED"
	StatusFilled    OrderStatus = "FILLED"
	StatusCanceled  OrderStatus = "CANCELED"
	StatusError     OrderStatus = "ERROR"
)

// Terminal reports whether the status ends the order's lifecycle.
func (s OrderStatus) Terminal() bool {
	return s == StatusFilled || s == StatusCanceled || s == StatusError
}

// Order is a single venue order.
type Order struct {
	ID            string
	ClientOrderID string
	Pair          string
	Side          Side
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	Status        OrderStatus
	CreatedAt     time.Time
}

// PlaceOrderRequest describes an order to be submitted to the venue.
type PlaceOrderRequest struct {
	Pair          string
	Side          Side
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	PostOnly      bool
	ClientOrderID string
}

// CreditQuote is the margin credit picture derived from fresh balances and
// oracle prices. It is recomputed each cycle and never cached.
type CreditQuote struct {
	AccountValue    decimal.Decimal
	MarginLimit     decimal.Decimal
	CreditLimit     decimal.Decimal
	Liabilities     decimal.Decimal
	AvailableCredit decimal.Decimal
}

// Position is the single open position managed by the strategy.
type Position struct {
	EntryPrice decimal.Decimal
	Quantity   decimal.Decimal
	Leverage   decimal.Decimal
	OpenedAt   time.Time
}

// Trade is a completed execution recorded to the trade journal.
type Trade struct {
	CycleID     string
	OrderID     string
	Pair        string
	Side        Side
	Price       decimal.Decimal
	Quantity    decimal.Decimal
	RealizedPnL decimal.Decimal
	ExecutedAt  time.Time
}
