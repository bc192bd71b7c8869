// Package order owns the submit / await / cancel lifecycle of venue orders.
package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"margin_maker/internal/core"
	apperrors "margin_maker/pkg/errors"
	"margin_maker/pkg/retry"
	"margin_maker/pkg/telemetry"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"
)

const defaultPollInterval = 5 * time.Second

// Controller drives single orders through their lifecycle. All venue calls
// pass through one rate limiter, and every submission and cancellation is
// reported to the notifier and the audit log.
type Controller struct {
	exchange     core.IExchange
	clock        core.IClock
	notifier     core.INotifier
	logger       core.ILogger
	limiter      *rate.Limiter
	pair         string
	pollInterval time.Duration

	tick         decimal.Decimal
	fallbackTick decimal.Decimal

	restingMu sync.Mutex
	resting   map[string]struct{}
}

// NewController creates an order lifecycle controller for one pair.
func NewController(exchange core.IExchange, pair string, clock core.IClock, notifier core.INotifier, rateLimitRPS int, logger core.ILogger) *Controller {
	if rateLimitRPS <= 0 {
		rateLimitRPS = 5
	}
	return &Controller{
		exchange:     exchange,
		clock:        clock,
		notifier:     notifier,
		logger:       logger.WithField("component", "order_controller"),
		limiter:      rate.NewLimiter(rate.Limit(rateLimitRPS), rateLimitRPS),
		pair:         pair,
		pollInterval: defaultPollInterval,
		resting:      make(map[string]struct{}),
	}
}

// SetPollInterval overrides the status polling cadence.
func (c *Controller) SetPollInterval(d time.Duration) {
	c.pollInterval = d
}

// SetFallbackTick sets the tick size used when the venue does not report one.
func (c *Controller) SetFallbackTick(tick decimal.Decimal) {
	c.fallbackTick = tick
}

// TickSize returns the instrument tick size, fetched once and cached. When
// the venue cannot provide a usable value the configured fallback applies.
func (c *Controller) TickSize(ctx context.Context) (decimal.Decimal, error) {
	if !c.tick.IsZero() {
		return c.tick, nil
	}
	tick, err := c.exchange.GetTickSize(ctx, c.pair)
	if err != nil || !tick.IsPositive() {
		if c.fallbackTick.IsPositive() {
			c.logger.Warn("Venue tick size unavailable, using configured fallback",
				"fallback", c.fallbackTick.String(), "error", err)
			c.tick = c.fallbackTick
			return c.tick, nil
		}
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to fetch tick size: %w", err)
		}
		return decimal.Zero, fmt.Errorf("venue reported non-positive tick size %s", tick)
	}
	c.tick = tick
	return tick, nil
}

// RoundToTick rounds a price down to the nearest tick multiple.
func RoundToTick(price, tick decimal.Decimal) decimal.Decimal {
	return price.Div(tick).Floor().Mul(tick)
}

// Submit places an order after rounding its price to the tick size. A venue
// rejection is wrapped in ErrSubmission; the caller decides whether the cycle
// survives it.
func (c *Controller) Submit(ctx context.Context, side core.Side, price, quantity decimal.Decimal, postOnly bool) (*core.Order, error) {
	tick, err := c.TickSize(ctx)
	if err != nil {
		return nil, err
	}
	price = RoundToTick(price, tick)

	req := &core.PlaceOrderRequest{
		Pair:          c.pair,
		Side:          side,
		Price:         price,
		Quantity:      quantity,
		PostOnly:      postOnly,
		ClientOrderID: uuid.NewString(),
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	placed, err := c.exchange.PlaceOrder(ctx, req)
	if err != nil {
		c.logger.Error("Order submission failed",
			"side", side,
			"price", price.String(),
			"quantity", quantity.String(),
			"error", err)
		c.notifier.Critical(ctx, "Order submission failed",
			fmt.Sprintf("%s %s %s @ %s rejected: %v", side, quantity, c.pair, price, err),
			map[string]string{"pair": c.pair, "side": string(side)})
		return nil, fmt.Errorf("%w: %v", apperrors.ErrSubmission, err)
	}

	c.logger.Info("Order submitted",
		"order_id", placed.ID,
		"client_order_id", placed.ClientOrderID,
		"side", side,
		"price", price.String(),
		"quantity", quantity.String(),
		"post_only", postOnly)
	telemetry.GetGlobalMetrics().OrdersPlacedTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("pair", c.pair),
			attribute.String("side", string(side)),
		))
	c.notifier.Notify(ctx, "Order placed",
		fmt.Sprintf("%s %s %s @ %s", side, quantity, c.pair, price),
		map[string]string{"pair": c.pair, "order_id": placed.ID})

	c.restingMu.Lock()
	c.resting[placed.ID] = struct{}{}
	c.restingMu.Unlock()

	return placed, nil
}

// AwaitTerminal polls the order at the configured cadence until it reaches a
// terminal status. onPoll, if non-nil, runs before each status read; an error
// from it aborts the wait and is returned unwrapped, letting the caller react
// (e.g. a breached stop threshold) while the order still rests.
func (c *Controller) AwaitTerminal(ctx context.Context, orderID string, onPoll func(context.Context) error) (*core.Order, error) {
	ticker := c.clock.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C():
		}

		if onPoll != nil {
			if err := onPoll(ctx); err != nil {
				return nil, err
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		current, err := c.exchange.GetOrder(ctx, orderID)
		if err != nil {
			c.logger.Warn("Order status poll failed", "order_id", orderID, "error", err)
			continue
		}
		if !current.Status.Terminal() {
			continue
		}

		c.logger.Info("Order reached terminal status",
			"order_id", orderID,
			"status", string(current.Status))
		attrs := metric.WithAttributes(attribute.String("pair", c.pair))
		switch current.Status {
		case core.StatusFilled:
			telemetry.GetGlobalMetrics().OrdersFilledTotal.Add(ctx, 1, attrs)
		case core.StatusCanceled:
			telemetry.GetGlobalMetrics().OrdersCanceledTotal.Add(ctx, 1, attrs)
		}
		c.forget(orderID)
		return current, nil
	}
}

// Cancel withdraws a resting order. Transient venue errors are retried; an
// order the venue no longer knows is treated as already gone. Used ahead of a
// protective order so the two never rest at the same time.
func (c *Controller) Cancel(ctx context.Context, orderID string) error {
	isTransient := func(err error) bool {
		return errors.Is(err, apperrors.ErrNetwork) || errors.Is(err, apperrors.ErrRateLimitExceeded)
	}

	policy := retry.DefaultPolicy
	policy.OnRetry = func(attempt int, err error) {
		c.logger.Warn("Retrying order cancellation", "order_id", orderID, "attempt", attempt, "error", err)
	}

	err := retry.Do(ctx, policy, isTransient, func() error {
		if werr := c.limiter.Wait(ctx); werr != nil {
			return werr
		}
		return c.exchange.CancelOrder(ctx, orderID)
	})
	if errors.Is(err, apperrors.ErrOrderNotFound) {
		c.logger.Debug("Cancel target already gone", "order_id", orderID)
		err = nil
	}
	if err != nil {
		c.logger.Error("Order cancellation failed", "order_id", orderID, "error", err)
		return fmt.Errorf("failed to cancel order %s: %w", orderID, err)
	}

	c.forget(orderID)
	c.logger.Info("Order canceled", "order_id", orderID)
	c.notifier.Notify(ctx, "Order canceled",
		fmt.Sprintf("Canceled resting order %s on %s", orderID, c.pair),
		map[string]string{"pair": c.pair, "order_id": orderID})
	return nil
}

// CancelOpen withdraws every order this controller placed that has not been
// seen reaching a terminal status. Used on shutdown so no quote keeps resting
// with nobody watching it.
func (c *Controller) CancelOpen(ctx context.Context) error {
	c.restingMu.Lock()
	ids := make([]string, 0, len(c.resting))
	for id := range c.resting {
		ids = append(ids, id)
	}
	c.restingMu.Unlock()

	var firstErr error
	for _, id := range ids {
		if err := c.Cancel(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *Controller) forget(orderID string) {
	c.restingMu.Lock()
	delete(c.resting, orderID)
	c.restingMu.Unlock()
}
