package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricOrdersPlacedTotal   = "margin_maker_orders_placed_total"
	MetricOrdersFilledTotal   = "margin_maker_orders_filled_total"
	MetricOrdersCanceledTotal = "margin_maker_orders_canceled_total"
	MetricPnLRealizedTotal    = "margin_maker_pnl_realized_total"
	MetricVolumeTotal         = "margin_maker_volume_total"
	MetricTriggerFiredTotal   = "margin_maker_trigger_fired_total"
	MetricWSReconnectsTotal   = "margin_maker_ws_reconnects_total"
	MetricPositionSize        = "margin_maker_position_size"
	MetricAvailableCredit     = "margin_maker_available_credit"
)

// MetricsHolder holds initialized instruments.
type MetricsHolder struct {
	OrdersPlacedTotal   metric.Int64Counter
	OrdersFilledTotal   metric.Int64Counter
	OrdersCanceledTotal metric.Int64Counter
	PnLRealizedTotal    metric.Float64UpDownCounter
	VolumeTotal         metric.Float64Counter
	TriggerFiredTotal   metric.Int64Counter
	WSReconnectsTotal   metric.Int64Counter
	PositionSize        metric.Float64ObservableGauge
	AvailableCredit     metric.Float64ObservableGauge

	mu              sync.RWMutex
	positionSizeMap map[string]float64
	availCreditMap  map[string]float64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder.
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			positionSizeMap: make(map[string]float64),
			availCreditMap:  make(map[string]float64),
		}
		// Instruments start against the default (no-op) meter provider so
		// they are always safe to use; Setup re-initializes them against
		// the real provider.
		_ = globalMetrics.InitMetrics(GetMeter("margin_maker_core"))
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter.
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.OrdersPlacedTotal, err = meter.Int64Counter(MetricOrdersPlacedTotal, metric.WithDescription("Total orders placed"))
	if err != nil {
		return err
	}
	m.OrdersFilledTotal, err = meter.Int64Counter(MetricOrdersFilledTotal, metric.WithDescription("Total orders filled"))
	if err != nil {
		return err
	}
	m.OrdersCanceledTotal, err = meter.Int64Counter(MetricOrdersCanceledTotal, metric.WithDescription("Total orders canceled by the venue"))
	if err != nil {
		return err
	}
	m.PnLRealizedTotal, err = meter.Float64UpDownCounter(MetricPnLRealizedTotal, metric.WithDescription("Cumulative realized profit/loss in quote asset"))
	if err != nil {
		return err
	}
	m.VolumeTotal, err = meter.Float64Counter(MetricVolumeTotal, metric.WithDescription("Total traded volume in base asset"))
	if err != nil {
		return err
	}
	m.TriggerFiredTotal, err = meter.Int64Counter(MetricTriggerFiredTotal, metric.WithDescription("Total price trigger sessions that fired"))
	if err != nil {
		return err
	}
	m.WSReconnectsTotal, err = meter.Int64Counter(MetricWSReconnectsTotal, metric.WithDescription("Total websocket reconnections"))
	if err != nil {
		return err
	}

	m.PositionSize, err = meter.Float64ObservableGauge(MetricPositionSize, metric.WithDescription("Current open position size in base asset"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for pair, val := range m.positionSizeMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("pair", pair)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.AvailableCredit, err = meter.Float64ObservableGauge(MetricAvailableCredit, metric.WithDescription("Available margin credit in quote asset"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for pair, val := range m.availCreditMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("pair", pair)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

// SetPositionSize updates the observable position gauge.
func (m *MetricsHolder) SetPositionSize(pair string, size float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positionSizeMap[pair] = size
}

// SetAvailableCredit updates the observable credit gauge.
func (m *MetricsHolder) SetAvailableCredit(pair string, credit float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.availCreditMap[pair] = credit
}
