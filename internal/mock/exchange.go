package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"margin_maker/internal/core"
	apperrors "margin_maker/pkg/errors"

	"github.com/shopspring/decimal"
)

// MockExchange implements core.IExchange for testing. Order outcomes can be
// scripted per placement: each placed order consumes the next entry of the
// outcome queue and reports it from GetOrder after the configured number of
// polls.
type MockExchange struct {
	mu sync.RWMutex

	name           string
	orders         map[string]*core.Order
	pollsLeft      map[string]int
	outcomes       map[string]core.OrderStatus
	orderIDCounter int64

	outcomeQueue []scriptedOutcome
	placed       []*core.PlaceOrderRequest
	canceled     []string

	balances     map[string]decimal.Decimal
	oraclePrices map[string]decimal.Decimal
	tickSizes    map[string]decimal.Decimal
	book         *core.BookSnapshot

	placeErr     error
	placeErrSkip int
	cancelErr    error
}

type scriptedOutcome struct {
	status core.OrderStatus
	polls  int
}

func NewMockExchange(name string) *MockExchange {
	return &MockExchange{
		name:           name,
		orders:         make(map[string]*core.Order),
		pollsLeft:      make(map[string]int),
		outcomes:       make(map[string]core.OrderStatus),
		orderIDCounter: 1000,
		balances:       make(map[string]decimal.Decimal),
		oraclePrices:   make(map[string]decimal.Decimal),
		tickSizes:      make(map[string]decimal.Decimal),
	}
}

// ScriptOutcome queues a terminal status for the next placed order, reached
// after the given number of GetOrder polls.
func (m *MockExchange) ScriptOutcome(status core.OrderStatus, polls int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomeQueue = append(m.outcomeQueue, scriptedOutcome{status: status, polls: polls})
}

func (m *MockExchange) SetBalance(asset string, amount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[asset] = amount
}

func (m *MockExchange) SetOraclePrice(asset string, price decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.oraclePrices[asset] = price
}

func (m *MockExchange) SetTickSize(pair string, tick decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickSizes[pair] = tick
}

func (m *MockExchange) SetOrderBook(book *core.BookSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.book = book
}

func (m *MockExchange) SetPlaceError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.placeErr = err
	m.placeErrSkip = 0
}

// SetPlaceErrorAfter arms a placement failure that kicks in only after the
// next n placements succeed.
func (m *MockExchange) SetPlaceErrorAfter(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.placeErr = err
	m.placeErrSkip = n
}

func (m *MockExchange) SetCancelError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelErr = err
}

// PlacedRequests returns every placement seen, in order.
func (m *MockExchange) PlacedRequests() []*core.PlaceOrderRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*core.PlaceOrderRequest, len(m.placed))
	copy(out, m.placed)
	return out
}

// CanceledOrders returns every order ID passed to CancelOrder.
func (m *MockExchange) CanceledOrders() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.canceled))
	copy(out, m.canceled)
	return out
}

func (m *MockExchange) GetName() string { return m.name }

func (m *MockExchange) GetOrderBook(ctx context.Context, pair string) (*core.BookSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.book == nil {
		return nil, apperrors.ErrEmptyBook
	}
	snap := *m.book
	return &snap, nil
}

func (m *MockExchange) PlaceOrder(ctx context.Context, req *core.PlaceOrderRequest) (*core.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.placeErr != nil {
		if m.placeErrSkip == 0 {
			return nil, m.placeErr
		}
		m.placeErrSkip--
	}

	m.orderIDCounter++
	order := &core.Order{
		ID:            fmt.Sprintf("%d", m.orderIDCounter),
		ClientOrderID: req.ClientOrderID,
		Pair:          req.Pair,
		Side:          req.Side,
		Price:         req.Price,
		Quantity:      req.Quantity,
		Status:        core.StatusSubmitted,
		CreatedAt:     time.Now(),
	}
	m.orders[order.ID] = order

	reqCopy := *req
	m.placed = append(m.placed, &reqCopy)

	if len(m.outcomeQueue) > 0 {
		next := m.outcomeQueue[0]
		m.outcomeQueue = m.outcomeQueue[1:]
		m.outcomes[order.ID] = next.status
		m.pollsLeft[order.ID] = next.polls
	}

	out := *order
	return &out, nil
}

func (m *MockExchange) CancelOrder(ctx context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancelErr != nil {
		return m.cancelErr
	}

	order, ok := m.orders[orderID]
	if !ok {
		return apperrors.ErrOrderNotFound
	}
	m.canceled = append(m.canceled, orderID)
	if !order.Status.Terminal() {
		order.Status = core.StatusCanceled
	}
	return nil
}

func (m *MockExchange) GetOrder(ctx context.Context, orderID string) (*core.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[orderID]
	if !ok {
		return nil, apperrors.ErrOrderNotFound
	}

	if outcome, scripted := m.outcomes[orderID]; scripted && !order.Status.Terminal() {
		if m.pollsLeft[orderID] > 0 {
			m.pollsLeft[orderID]--
		}
		if m.pollsLeft[orderID] == 0 {
			order.Status = outcome
			delete(m.outcomes, orderID)
		}
	}

	out := *order
	return &out, nil
}

func (m *MockExchange) GetBalances(ctx context.Context) (map[string]decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(m.balances))
	for k, v := range m.balances {
		out[k] = v
	}
	return out, nil
}

func (m *MockExchange) GetOraclePrice(ctx context.Context, asset string) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	price, ok := m.oraclePrices[asset]
	if !ok {
		return decimal.Zero, fmt.Errorf("no oracle price for %s", asset)
	}
	return price, nil
}

func (m *MockExchange) GetTickSize(ctx context.Context, pair string) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tick, ok := m.tickSizes[pair]
	if !ok {
		return decimal.RequireFromString("0.01"), nil
	}
	return tick, nil
}
