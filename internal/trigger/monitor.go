package trigger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"margin_maker/internal/book"
	"margin_maker/internal/core"
	apperrors "margin_maker/pkg/errors"
	"margin_maker/pkg/telemetry"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	initialRedialWait = 1 * time.Second
	maxRedialWait     = 30 * time.Second
)

// Monitor runs trigger sessions: it subscribes to the orderbook channel,
// replays the book locally, feeds best-price observations through a Band and
// returns the observed price once the band fires.
type Monitor struct {
	dialer   core.IBookStreamDialer
	pair     string
	clock    core.IClock
	notifier core.INotifier
	logger   core.ILogger
}

// NewMonitor creates a trigger monitor for one pair.
func NewMonitor(dialer core.IBookStreamDialer, pair string, clock core.IClock, notifier core.INotifier, logger core.ILogger) *Monitor {
	return &Monitor{
		dialer:   dialer,
		pair:     pair,
		clock:    clock,
		notifier: notifier,
		logger:   logger.WithField("component", "trigger_monitor"),
	}
}

// Await blocks until the band fires and returns the best price observed at
// that moment. On feed loss it alerts the operator and redials with bounded
// backoff; the book replica and the ratchet restart from the new snapshot.
func (m *Monitor) Await(ctx context.Context, side core.Side, params BandParams) (decimal.Decimal, error) {
	band := NewBand(params)
	redialWait := initialRedialWait

	for {
		stream, err := m.dialer.OpenBookStream(ctx, m.pair)
		if err != nil {
			m.logger.Warn("Failed to open orderbook stream", "error", err)
			if serr := m.clock.Sleep(ctx, redialWait); serr != nil {
				return decimal.Zero, serr
			}
			redialWait = nextRedialWait(redialWait)
			continue
		}
		redialWait = initialRedialWait

		price, err := m.runSession(ctx, stream, side, band)
		if err == nil {
			return price, nil
		}
		if ctx.Err() != nil {
			return decimal.Zero, ctx.Err()
		}
		if !errors.Is(err, apperrors.ErrStreamClosed) {
			return decimal.Zero, err
		}

		m.logger.Warn("Orderbook stream dropped, redialing", "pair", m.pair)
		m.notifier.Critical(ctx, "Orderbook feed dropped",
			fmt.Sprintf("The %s orderbook stream disconnected; reconnecting.", m.pair),
			map[string]string{"pair": m.pair})

		if serr := m.clock.Sleep(ctx, redialWait); serr != nil {
			return decimal.Zero, serr
		}
		redialWait = nextRedialWait(redialWait)
	}
}

// runSession consumes one stream until the band fires or the stream ends.
// The band resets on every snapshot: the ratchet is scoped to the price
// history of a single subscription.
func (m *Monitor) runSession(ctx context.Context, stream core.IBookStream, side core.Side, band *Band) (decimal.Decimal, error) {
	defer stream.Close()

	tracker := book.NewTracker(m.logger)
	band.Reset()

	for {
		select {
		case <-ctx.Done():
			return decimal.Zero, ctx.Err()

		case msg, ok := <-stream.Messages():
			if !ok {
				return decimal.Zero, apperrors.ErrStreamClosed
			}

			if msg.Snapshot != nil {
				tracker.ApplySnapshot(*msg.Snapshot)
				band.Reset()
				if best, err := tracker.Best(side); err == nil {
					m.logger.Debug("Trigger session seeded",
						"side", side,
						"best", best.String(),
						"message_id", msg.MessageID)
				}
				continue
			}

			for _, ev := range msg.Updates {
				if ev.Side != side {
					continue
				}
				tracker.ApplyUpdate(ev)

				best, err := tracker.Best(side)
				if err != nil {
					continue
				}

				if band.Observe(best) {
					m.logger.Info("Price trigger fired",
						"pair", m.pair,
						"side", side,
						"price", best.String())
					telemetry.GetGlobalMetrics().TriggerFiredTotal.Add(ctx, 1,
						metric.WithAttributes(
							attribute.String("pair", m.pair),
							attribute.String("side", string(side)),
						))

					if err := stream.Unsubscribe(ctx); err != nil {
						m.logger.Warn("Failed to unsubscribe cleanly", "error", err)
					}
					return best, nil
				}
			}
		}
	}
}

func nextRedialWait(cur time.Duration) time.Duration {
	next := cur * 2
	if next > maxRedialWait {
		return maxRedialWait
	}
	return next
}
