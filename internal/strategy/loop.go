// Package strategy orchestrates the accumulation cycle: entry trigger, bid,
// exit trigger, ask or stop, settlement.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"margin_maker/internal/core"
	"margin_maker/internal/credit"
	"margin_maker/internal/order"
	"margin_maker/internal/trigger"
	apperrors "margin_maker/pkg/errors"
	"margin_maker/pkg/telemetry"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrStopLossHalt is returned by Run when a cycle closed at a loss and the
// strategy is configured to stand down rather than re-enter.
var ErrStopLossHalt = errors.New("strategy halted after stop-loss exit")

// errStopBreached aborts the exit-fill wait when the best bid crosses the
// stop threshold while the profitable ask still rests.
var errStopBreached = errors.New("stop threshold breached")

// errSkipCycle ends the current cycle without ending the program.
var errSkipCycle = errors.New("cycle abandoned")

// Params are the tuning knobs of one strategy instance.
type Params struct {
	Pair              string
	Leverage          decimal.Decimal
	RequiredReturn    decimal.Decimal // fractional, e.g. 0.02
	LossTolerance     decimal.Decimal // fractional adverse trail and stop distance
	EntryDepreciation decimal.Decimal // fractional drop that arms the entry
	MinOrderSize      decimal.Decimal
	MaxRequotes       int
	Cooldown          time.Duration
	SettlementDelay   time.Duration
	HaltOnStopLoss    bool
	WithdrawEnabled   bool
	WithdrawMin       decimal.Decimal
	QuoteAsset        string
}

// SettlementHook runs after the settlement delay when the quote balance
// clears the withdrawal minimum. Implementations move funds off the venue.
type SettlementHook func(ctx context.Context, balances map[string]decimal.Decimal) error

// Loop drives full cycles until its context ends or a halt condition is hit.
// Control is single-threaded: each step owns the book, the band and the
// position exclusively while it runs.
type Loop struct {
	exchange core.IExchange
	monitor  *trigger.Monitor
	sizer    *credit.Sizer
	orders   *order.Controller
	store    core.ITradeStore
	notifier core.INotifier
	clock    core.IClock
	logger   core.ILogger
	params   Params
	settle   SettlementHook
}

// NewLoop assembles the strategy from its collaborators.
func NewLoop(
	exchange core.IExchange,
	monitor *trigger.Monitor,
	sizer *credit.Sizer,
	orders *order.Controller,
	store core.ITradeStore,
	notifier core.INotifier,
	clock core.IClock,
	params Params,
	settle SettlementHook,
	logger core.ILogger,
) *Loop {
	return &Loop{
		exchange: exchange,
		monitor:  monitor,
		sizer:    sizer,
		orders:   orders,
		store:    store,
		notifier: notifier,
		clock:    clock,
		params:   params,
		settle:   settle,
		logger:   logger.WithField("component", "strategy"),
	}
}

// Run executes cycles back to back. It returns on context cancellation, on a
// fatal error, or with ErrStopLossHalt when configured to stand down after a
// realized loss.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := l.runCycle(ctx)
		switch {
		case err == nil:
		case errors.Is(err, errSkipCycle):
			l.logger.Info("Cycle abandoned, starting over")
		default:
			return err
		}
	}
}

func (l *Loop) runCycle(ctx context.Context) error {
	cycleID := uuid.NewString()
	logger := l.logger.WithField("cycle_id", cycleID)
	logger.Info("Starting cycle", "pair", l.params.Pair)

	// Step 1: wait for the ask side to retrace by the entry depreciation.
	entryTrigger, err := l.monitor.Await(ctx, core.SideSell, trigger.BandParams{
		Depreciation: l.params.EntryDepreciation,
	})
	if err != nil {
		return err
	}
	logger.Info("Entry trigger fired", "price", entryTrigger.String())

	// Step 2: size the bid from the credit line at the trigger price.
	// Inconsistent balance or price reads cool the cycle down instead of
	// killing the process.
	quote, err := l.sizer.Available(ctx, l.params.Leverage)
	if err != nil {
		if errors.Is(err, apperrors.ErrStaleBalance) {
			logger.Warn("Credit inputs inconsistent, cooling down", "error", err)
			l.notifier.Critical(ctx, "Credit sizing failed",
				fmt.Sprintf("Balance or price reads for %s were inconsistent: %v", l.params.Pair, err),
				map[string]string{"pair": l.params.Pair})
			if serr := l.clock.Sleep(ctx, l.params.Cooldown); serr != nil {
				return serr
			}
			return errSkipCycle
		}
		return fmt.Errorf("failed to size credit: %w", err)
	}
	quantity := quote.AvailableCredit.Div(entryTrigger)
	if quantity.LessThan(l.params.MinOrderSize) {
		sizeErr := fmt.Errorf("%w: %s below venue minimum %s",
			apperrors.ErrInsufficientSize, quantity, l.params.MinOrderSize)
		logger.Warn("Bid size below venue minimum, cooling down",
			"error", sizeErr,
			"cooldown", l.params.Cooldown.String())
		l.notifier.Critical(ctx, "Insufficient credit to quote",
			fmt.Sprintf("Computed bid of %s %s is below the venue minimum %s; sleeping %s.",
				quantity, l.params.Pair, l.params.MinOrderSize, l.params.Cooldown),
			map[string]string{"pair": l.params.Pair, "available_credit": quote.AvailableCredit.String()})
		if serr := l.clock.Sleep(ctx, l.params.Cooldown); serr != nil {
			return serr
		}
		return errSkipCycle
	}

	tick, err := l.orders.TickSize(ctx)
	if err != nil {
		return err
	}

	// Step 3: bid one tick inside the trigger and chase cancellations. The
	// reference price the bid was derived from anchors the exit math; a
	// requote re-anchors it to the ask the new bid undercut and re-sizes
	// the bid so the notional stays inside the credit line.
	entryFill, reference, err := l.placeEntry(ctx, entryTrigger, tick, quote.AvailableCredit, logger)
	if err != nil {
		// A burned requote budget abandons the cycle; a rejected submission
		// is fatal (the controller has already alerted).
		if errors.Is(err, apperrors.ErrRequoteExhausted) {
			l.notifier.Critical(ctx, "Entry abandoned",
				fmt.Sprintf("Could not establish the %s position: %v", l.params.Pair, err),
				map[string]string{"pair": l.params.Pair})
			return errSkipCycle
		}
		return err
	}

	position := &core.Position{
		EntryPrice: reference,
		Quantity:   entryFill.Quantity,
		Leverage:   l.params.Leverage,
		OpenedAt:   l.clock.Now(),
	}
	qty, _ := position.Quantity.Float64()
	telemetry.GetGlobalMetrics().SetPositionSize(l.params.Pair, qty)
	logger.Info("Position opened",
		"entry_price", position.EntryPrice.String(),
		"fill_price", entryFill.Price.String(),
		"quantity", position.Quantity.String())
	l.notifier.Notify(ctx, "Position opened",
		fmt.Sprintf("Bought %s %s at %s", position.Quantity, l.params.Pair, entryFill.Price),
		map[string]string{"pair": l.params.Pair})

	if err := l.recordTrade(ctx, cycleID, entryFill, decimal.Zero); err != nil {
		logger.Error("Failed to journal entry fill", "error", err)
	}

	// Step 4: the exit floor is the entry marked up by the required return;
	// the loss tolerance doubles as the adverse trail.
	one := decimal.NewFromInt(1)
	exitFloor := position.EntryPrice.Mul(one.Add(l.params.RequiredReturn))
	exitTrigger, err := l.monitor.Await(ctx, core.SideBuy, trigger.BandParams{
		InitialFloor: exitFloor,
		Depreciation: l.params.LossTolerance,
	})
	if err != nil {
		return err
	}
	logger.Info("Exit trigger fired", "price", exitTrigger.String(), "floor", exitFloor.String())

	// Steps 5-6: rest the ask one tick inside the trigger, guarded by the
	// stop threshold; a breach cancels the ask before any stop is placed.
	exitFill, err := l.placeExit(ctx, position, exitTrigger.Sub(tick), tick, logger)
	if err != nil {
		return err
	}

	pnl := exitFill.Price.Sub(position.EntryPrice).Mul(position.Quantity)
	telemetry.GetGlobalMetrics().SetPositionSize(l.params.Pair, 0)
	pnlF, _ := pnl.Float64()
	volF, _ := position.Quantity.Float64()
	attrs := metric.WithAttributes(attribute.String("pair", l.params.Pair))
	telemetry.GetGlobalMetrics().PnLRealizedTotal.Add(ctx, pnlF, attrs)
	telemetry.GetGlobalMetrics().VolumeTotal.Add(ctx, volF, attrs)

	logger.Info("Position closed",
		"exit_price", exitFill.Price.String(),
		"realized_pnl", pnl.String())
	l.notifier.Notify(ctx, "Position closed",
		fmt.Sprintf("Sold %s %s at %s for a realized P&L of %s", position.Quantity, l.params.Pair, exitFill.Price, pnl),
		map[string]string{"pair": l.params.Pair, "realized_pnl": pnl.String()})

	if err := l.recordTrade(ctx, cycleID, exitFill, pnl); err != nil {
		logger.Error("Failed to journal exit fill", "error", err)
	}

	// Step 7: give the settlement layer time before touching the balance.
	if err := l.clock.Sleep(ctx, l.params.SettlementDelay); err != nil {
		return err
	}
	l.maybeSettle(ctx, logger)

	if pnl.IsNegative() && l.params.HaltOnStopLoss {
		l.notifier.Critical(ctx, "Strategy halted",
			fmt.Sprintf("The %s cycle closed at a loss of %s; standing down.", l.params.Pair, pnl),
			map[string]string{"pair": l.params.Pair})
		return ErrStopLossHalt
	}
	return nil
}

// placeEntry rests a post-only bid one tick inside the reference price and
// chases venue cancellations with fresh quotes, up to the requote budget.
// Each attempt sizes the bid from the credit line at its own reference, so a
// requote against a higher ask shrinks the quantity rather than overdrawing.
// It returns the fill together with the reference the final bid was derived
// from.
func (l *Loop) placeEntry(ctx context.Context, reference, tick, creditLine decimal.Decimal, logger core.ILogger) (*core.Order, decimal.Decimal, error) {
	for attempt := 0; attempt <= l.params.MaxRequotes; attempt++ {
		quantity := creditLine.Div(reference)
		placed, err := l.orders.Submit(ctx, core.SideBuy, reference.Sub(tick), quantity, true)
		if err != nil {
			return nil, decimal.Zero, err
		}

		final, err := l.orders.AwaitTerminal(ctx, placed.ID, nil)
		if err != nil {
			return nil, decimal.Zero, err
		}

		switch final.Status {
		case core.StatusFilled:
			return final, reference, nil
		case core.StatusCanceled:
			bestAsk, err := l.bestPrice(ctx, core.SideSell)
			if err != nil {
				return nil, decimal.Zero, err
			}
			reference = bestAsk
			logger.Warn("Entry bid canceled by venue, requoting",
				"attempt", attempt+1,
				"new_price", reference.Sub(tick).String())
		default:
			return nil, decimal.Zero, fmt.Errorf("entry order %s ended in %s", final.ID, final.Status)
		}
	}
	return nil, decimal.Zero, fmt.Errorf("%w: entry bid canceled %d times", apperrors.ErrRequoteExhausted, l.params.MaxRequotes+1)
}

// placeExit rests the profitable ask and watches the stop threshold while it
// rests. On a breach the resting ask is canceled first, then a marketable
// stop ask goes in at one tick inside the best ask.
func (l *Loop) placeExit(ctx context.Context, position *core.Position, price, tick decimal.Decimal, logger core.ILogger) (*core.Order, error) {
	one := decimal.NewFromInt(1)
	stopThreshold := position.EntryPrice.Mul(one.Sub(l.params.LossTolerance))

	stopCheck := func(ctx context.Context) error {
		bestBid, err := l.bestPrice(ctx, core.SideBuy)
		if err != nil {
			// An empty or unreadable book is no reason to dump the position.
			return nil
		}
		if bestBid.LessThan(stopThreshold) {
			logger.Warn("Best bid fell through the stop threshold",
				"best_bid", bestBid.String(),
				"stop_threshold", stopThreshold.String())
			return errStopBreached
		}
		return nil
	}

	postOnly := true
	protective := false
	requotes := 0

	for {
		placed, err := l.orders.Submit(ctx, core.SideSell, price, position.Quantity, postOnly)
		if err != nil {
			// The position is open; a rejected exit is not survivable.
			return nil, fmt.Errorf("exit submission failed with position open: %w", err)
		}

		var onPoll func(context.Context) error
		if !protective {
			onPoll = stopCheck
		}

		final, err := l.orders.AwaitTerminal(ctx, placed.ID, onPoll)
		if errors.Is(err, errStopBreached) {
			// Cancel before the protective ask so the two never rest together.
			if cerr := l.orders.Cancel(ctx, placed.ID); cerr != nil {
				return nil, fmt.Errorf("failed to cancel resting ask after stop breach: %w", cerr)
			}
			bestAsk, perr := l.bestPrice(ctx, core.SideSell)
			if perr != nil {
				return nil, perr
			}
			price = bestAsk.Sub(tick)
			postOnly = false
			protective = true
			l.notifier.Critical(ctx, "Stop triggered",
				fmt.Sprintf("Replacing the resting %s ask with a stop ask at %s.", l.params.Pair, price),
				map[string]string{"pair": l.params.Pair, "stop_price": price.String()})
			continue
		}
		if err != nil {
			return nil, err
		}

		switch final.Status {
		case core.StatusFilled:
			return final, nil
		case core.StatusCanceled:
			requotes++
			if requotes > l.params.MaxRequotes {
				return nil, fmt.Errorf("%w: exit ask canceled %d times with position open", apperrors.ErrRequoteExhausted, requotes)
			}
			bestAsk, perr := l.bestPrice(ctx, core.SideSell)
			if perr != nil {
				return nil, perr
			}
			price = bestAsk.Sub(tick)
			logger.Warn("Exit ask canceled by venue, requoting",
				"attempt", requotes,
				"new_price", price.String())
		default:
			return nil, fmt.Errorf("exit order %s ended in %s", final.ID, final.Status)
		}
	}
}

// bestPrice reads the top of one book side from a fresh REST snapshot.
func (l *Loop) bestPrice(ctx context.Context, side core.Side) (decimal.Decimal, error) {
	snap, err := l.exchange.GetOrderBook(ctx, l.params.Pair)
	if err != nil {
		return decimal.Zero, err
	}

	levels := snap.Bids
	if side == core.SideSell {
		levels = snap.Asks
	}
	if len(levels) == 0 {
		return decimal.Zero, apperrors.ErrEmptyBook
	}

	best := levels[0].Price
	for _, lvl := range levels[1:] {
		if side == core.SideBuy && lvl.Price.GreaterThan(best) {
			best = lvl.Price
		}
		if side == core.SideSell && lvl.Price.LessThan(best) {
			best = lvl.Price
		}
	}
	return best, nil
}

func (l *Loop) recordTrade(ctx context.Context, cycleID string, fill *core.Order, pnl decimal.Decimal) error {
	if l.store == nil {
		return nil
	}
	return l.store.RecordTrade(ctx, &core.Trade{
		CycleID:     cycleID,
		OrderID:     fill.ID,
		Pair:        fill.Pair,
		Side:        fill.Side,
		Price:       fill.Price,
		Quantity:    fill.Quantity,
		RealizedPnL: pnl,
		ExecutedAt:  l.clock.Now(),
	})
}

// maybeSettle hands the quote balance to the withdrawal hook when it clears
// the configured minimum. Settlement failures alert but never kill the loop.
func (l *Loop) maybeSettle(ctx context.Context, logger core.ILogger) {
	if !l.params.WithdrawEnabled || l.settle == nil {
		return
	}

	balances, err := l.exchange.GetBalances(ctx)
	if err != nil {
		logger.Error("Failed to read balances for settlement", "error", err)
		return
	}

	quoteBalance := balances[l.params.QuoteAsset]
	if !quoteBalance.GreaterThan(l.params.WithdrawMin) {
		logger.Debug("Quote balance below withdrawal minimum",
			"balance", quoteBalance.String(),
			"min", l.params.WithdrawMin.String())
		return
	}

	logger.Info("Handing balance to settlement hook", "balance", quoteBalance.String())
	if err := l.settle(ctx, balances); err != nil {
		logger.Error("Settlement hook failed", "error", err)
		l.notifier.Critical(ctx, "Settlement failed",
			fmt.Sprintf("Withdrawing %s %s failed: %v", quoteBalance, l.params.QuoteAsset, err),
			map[string]string{"pair": l.params.Pair})
		return
	}
	l.notifier.Notify(ctx, "Balance withdrawn",
		fmt.Sprintf("Swept %s %s after settlement.", quoteBalance, l.params.QuoteAsset),
		map[string]string{"pair": l.params.Pair})
}
