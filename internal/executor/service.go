package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"quant-pipeline/internal/bus"
	"quant-pipeline/internal/model"
	"quant-pipeline/internal/service"
	"quant-pipeline/internal/store"

	"go.uber.org/zap"
)

// ServiceConfig 执行服务的 channel、列表 key 和裁剪参数
type ServiceConfig struct {
	Channels      service.ChannelConfig
	Keys          service.KeyConfig
	HistoryLimit  int
	RecordReturns bool
	ReturnsLimit  int
}

// ServiceConfigFrom 从全局配置中提取执行服务配置
func ServiceConfigFrom(cfg *service.Config) ServiceConfig {
	return ServiceConfig{
		Channels:      cfg.Channels,
		Keys:          cfg.Keys,
		HistoryLimit:  cfg.Executor.HistoryLimit,
		RecordReturns: cfg.Executor.RecordReturns,
		ReturnsLimit:  cfg.Executor.ReturnsLimit,
	}
}

// Service 消费价格和聚合信号，驱动执行器并发布账户状态。
// 每条消息处理完成后才读取下一条，所以信号按到达顺序逐个执行。
type Service struct {
	exec    Executor
	bus     bus.Bus
	store   store.ListStore
	cfg     ServiceConfig
	logger  *zap.Logger
	metrics *service.Metrics
}

func NewService(exec Executor, b bus.Bus, lists store.ListStore, cfg ServiceConfig, logger *zap.Logger, metrics *service.Metrics) *Service {
	return &Service{
		exec:    exec,
		bus:     b,
		store:   lists,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
	}
}

func (s *Service) Run(ctx context.Context) error {
	sub, err := s.bus.Subscribe(ctx, s.cfg.Channels.Aggregated, s.cfg.Channels.Prices)
	if err != nil {
		return fmt.Errorf("executor subscribe: %w", err)
	}
	s.logger.Info("Executor subscribed to channels",
		zap.String("Signals", s.cfg.Channels.Aggregated),
		zap.String("Prices", s.cfg.Channels.Prices),
	)
	return bus.Consume(ctx, sub, s.logger, s.metrics, s.handle)
}

func (s *Service) handle(ctx context.Context, msg bus.Message) error {
	switch msg.Channel {
	case s.cfg.Channels.Prices:
		tick, err := model.DecodePriceTick(msg.Payload)
		if err != nil {
			return err
		}
		s.exec.UpdatePrice(tick)
		return nil

	case s.cfg.Channels.Aggregated:
		agg, err := model.DecodeAggregatedSignal(msg.Payload)
		if err != nil {
			return err
		}
		return s.execute(ctx, agg.Signal())
	}
	return nil
}

func (s *Service) execute(ctx context.Context, signal model.TradeSignal) error {
	exec, err := s.exec.ExecuteSignal(ctx, signal)
	if err != nil {
		if errors.Is(err, ErrRejected) {
			reason := RejectReason(err)
			s.metrics.TradeRejected(ctx, reason)
			s.logger.Warn("Signal ignored",
				zap.String("Symbol", signal.Symbol),
				zap.String("Signal", signal.Action.String()),
				zap.String("Reason", reason),
			)
			return nil
		}
		return err
	}
	s.metrics.TradeExecuted(ctx, signal.Symbol, signal.Action.String())

	// 状态已经提交，发布失败时仍然写入持久化记录
	publishErr := bus.PublishJSON(ctx, s.bus, s.cfg.Channels.PnL, exec.State)
	if err := errors.Join(publishErr, s.persist(ctx, exec)); err != nil {
		return err
	}

	s.logger.Debug("Published executor state",
		zap.String("TradeID", exec.Record.ID),
		zap.Float64("Cash", exec.State.Cash),
		zap.Int("Position", exec.State.Position),
		zap.Float64("PnL", exec.State.RealizedPnL),
	)
	return nil
}

// persist 追加成交记录，平仓时追加收益率
func (s *Service) persist(ctx context.Context, exec Execution) error {
	record, err := json.Marshal(exec.Record)
	if err != nil {
		return fmt.Errorf("encode trade record: %w", err)
	}
	if err := s.store.AppendTrimmed(ctx, s.cfg.Keys.TradeHistory, string(record), s.cfg.HistoryLimit); err != nil {
		s.metrics.StoreFailure(ctx, "append_trade")
		return err
	}

	if s.cfg.RecordReturns && exec.Realized {
		value := strconv.FormatFloat(exec.Return, 'g', -1, 64)
		if err := s.store.AppendTrimmed(ctx, s.cfg.Keys.Returns, value, s.cfg.ReturnsLimit); err != nil {
			s.metrics.StoreFailure(ctx, "append_return")
			return err
		}
	}
	return nil
}
