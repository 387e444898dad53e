package strategy

import (
	"context"
	"fmt"

	"quant-pipeline/internal/bus"
	"quant-pipeline/internal/model"
	"quant-pipeline/internal/service"

	"go.uber.org/zap"
)

// Service 订阅行情，把策略信号发布到信号 channel
type Service struct {
	eval     *MeanReversion
	bus      bus.Bus
	channels service.ChannelConfig
	logger   *zap.Logger
	metrics  *service.Metrics
}

func NewService(eval *MeanReversion, b bus.Bus, channels service.ChannelConfig, logger *zap.Logger, metrics *service.Metrics) *Service {
	return &Service{
		eval:     eval,
		bus:      b,
		channels: channels,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run 阻塞直到 ctx 结束或订阅断开
func (s *Service) Run(ctx context.Context) error {
	sub, err := s.bus.Subscribe(ctx, s.channels.Prices)
	if err != nil {
		return fmt.Errorf("strategy subscribe: %w", err)
	}
	s.logger.Info("Strategy service started",
		zap.String("Strategy", s.eval.Name()),
		zap.String("Input", s.channels.Prices),
		zap.String("Output", s.channels.Signals),
	)
	return bus.Consume(ctx, sub, s.logger, s.metrics, s.handleTick)
}

func (s *Service) handleTick(ctx context.Context, msg bus.Message) error {
	tick, err := model.DecodePriceTick(msg.Payload)
	if err != nil {
		return err
	}
	signal, ok := s.eval.Evaluate(ctx, tick)
	if !ok {
		return nil
	}
	if err := bus.PublishJSON(ctx, s.bus, s.channels.Signals, signal); err != nil {
		return err
	}
	s.metrics.SignalEmitted(ctx, signal.Strategy, signal.Action.String())
	return nil
}
