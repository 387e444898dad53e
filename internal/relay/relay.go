package relay

import (
	"context"
	"fmt"

	"quant-pipeline/internal/bus"
	"quant-pipeline/internal/model"
	"quant-pipeline/internal/service"

	"go.uber.org/zap"
)

// Relay 把策略信号原样转发到聚合信号 channel。
// 单策略部署时代替外部聚合服务，DropHold 时不转发 HOLD。
type Relay struct {
	bus      bus.Bus
	from, to string
	dropHold bool
	logger   *zap.Logger
	metrics  *service.Metrics
}

func New(b bus.Bus, channels service.ChannelConfig, cfg service.RelayConfig, logger *zap.Logger, metrics *service.Metrics) *Relay {
	return &Relay{
		bus:      b,
		from:     channels.Signals,
		to:       channels.Aggregated,
		dropHold: cfg.DropHold,
		logger:   logger,
		metrics:  metrics,
	}
}

func (r *Relay) Run(ctx context.Context) error {
	sub, err := r.bus.Subscribe(ctx, r.from)
	if err != nil {
		return fmt.Errorf("relay subscribe: %w", err)
	}
	r.logger.Info("Signal relay started",
		zap.String("From", r.from),
		zap.String("To", r.to),
		zap.Bool("DropHold", r.dropHold),
	)
	return bus.Consume(ctx, sub, r.logger, r.metrics, r.forward)
}

func (r *Relay) forward(ctx context.Context, msg bus.Message) error {
	signal, err := model.DecodeTradeSignal(msg.Payload)
	if err != nil {
		return err
	}
	if r.dropHold && signal.Action == model.ActionHold {
		return nil
	}
	return bus.PublishJSON(ctx, r.bus, r.to, model.AggregatedSignal(signal))
}
