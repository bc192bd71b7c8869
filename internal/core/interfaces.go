// Package core defines the shared types and interfaces of the liquidity agent.
package core

import (
	"context"

	"github.com/shopspring/decimal"
)

// IExchange is the venue REST surface the engine consumes. Implementations
// own transport and authentication; the engine treats every call as a fresh
// read or a fire-once mutation.
type IExchange interface {
	GetName() string
	GetOrderBook(ctx context.Context, pair string) (*BookSnapshot, error)
	PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	GetBalances(ctx context.Context) (map[string]decimal.Decimal, error)
	GetOraclePrice(ctx context.Context, asset string) (decimal.Decimal, error)
	GetTickSize(ctx context.Context, pair string) (decimal.Decimal, error)
}

// IBookStream is one live orderbook channel subscription. Messages carries a
// snapshot on every (re)subscription followed by incremental diffs.
// Unsubscribe sends the venue unsubscribe request; Close tears the socket
// down and must be called on every exit path.
type IBookStream interface {
	Messages() <-chan BookMessage
	Unsubscribe(ctx context.Context) error
	Close()
}

// IBookStreamDialer opens orderbook channel subscriptions.
type IBookStreamDialer interface {
	OpenBookStream(ctx context.Context, pair string) (IBookStream, error)
}

// INotifier delivers operator notifications. Delivery is fire-and-forget:
// implementations must never block the trading path or surface errors into it.
type INotifier interface {
	Notify(ctx context.Context, title, message string, fields map[string]string)
	Critical(ctx context.Context, title, message string, fields map[string]string)
}

// ITradeStore journals completed executions.
type ITradeStore interface {
	RecordTrade(ctx context.Context, trade *Trade) error
	Close() error
}

// ILogger defines the interface for logging
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}
