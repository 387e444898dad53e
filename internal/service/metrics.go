package service

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "quant-pipeline"

// Metrics 汇总管道中的计数器。未注册 MeterProvider 时为 no-op。
// 所有方法都允许 nil 接收者。
type Metrics struct {
	decodeFailures metric.Int64Counter
	busDrops       metric.Int64Counter
	signalsEmitted metric.Int64Counter
	tradesExecuted metric.Int64Counter
	tradesRejected metric.Int64Counter
	windowRefusals metric.Int64Counter
	storeFailures  metric.Int64Counter
}

// NewMetrics 使用全局 MeterProvider 创建计数器
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}

	var err error
	if m.decodeFailures, err = meter.Int64Counter("bus.decode_failure_total",
		metric.WithDescription("Messages skipped because they failed to decode"),
		metric.WithUnit("{message}")); err != nil {
		return nil, err
	}
	if m.busDrops, err = meter.Int64Counter("bus.dropped_total",
		metric.WithDescription("Messages dropped by a full subscriber buffer"),
		metric.WithUnit("{message}")); err != nil {
		return nil, err
	}
	if m.signalsEmitted, err = meter.Int64Counter("strategy.signals_total",
		metric.WithDescription("Signals emitted by strategy evaluators"),
		metric.WithUnit("{signal}")); err != nil {
		return nil, err
	}
	if m.tradesExecuted, err = meter.Int64Counter("executor.trades_total",
		metric.WithDescription("Accepted simulated trades"),
		metric.WithUnit("{trade}")); err != nil {
		return nil, err
	}
	if m.tradesRejected, err = meter.Int64Counter("executor.rejections_total",
		metric.WithDescription("Signals rejected by the portfolio rules"),
		metric.WithUnit("{signal}")); err != nil {
		return nil, err
	}
	if m.windowRefusals, err = meter.Int64Counter("window.key_refused_total",
		metric.WithDescription("Pushes refused because the window store key limit was reached"),
		metric.WithUnit("{push}")); err != nil {
		return nil, err
	}
	if m.storeFailures, err = meter.Int64Counter("store.failure_total",
		metric.WithDescription("Durable list store operations that failed"),
		metric.WithUnit("{operation}")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) DecodeFailure(ctx context.Context, channel string) {
	if m == nil {
		return
	}
	m.decodeFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", channel)))
}

func (m *Metrics) BusDrop(ctx context.Context, channel string) {
	if m == nil {
		return
	}
	m.busDrops.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", channel)))
}

func (m *Metrics) SignalEmitted(ctx context.Context, strategy, action string) {
	if m == nil {
		return
	}
	m.signalsEmitted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.String("action", action),
	))
}

func (m *Metrics) TradeExecuted(ctx context.Context, symbol, action string) {
	if m == nil {
		return
	}
	m.tradesExecuted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("symbol", symbol),
		attribute.String("action", action),
	))
}

func (m *Metrics) TradeRejected(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.tradesRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) WindowRefused(ctx context.Context, component string) {
	if m == nil {
		return
	}
	m.windowRefusals.Add(ctx, 1, metric.WithAttributes(attribute.String("component", component)))
}

func (m *Metrics) StoreFailure(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.storeFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}
