package strategy

import (
	"context"

	"quant-pipeline/internal/model"
	"quant-pipeline/internal/service"
	"quant-pipeline/pkg/ta"
	"quant-pipeline/pkg/window"

	"go.uber.org/zap"
)

// MeanReversion 按标的维护收盘价窗口，价格偏离窗口均值超过阈值时发出反向信号。
// 窗口只由消费 goroutine 访问。
type MeanReversion struct {
	cfg     Config
	windows *window.Store[string, float64]
	state   *StateMachine
	logger  *zap.Logger
	metrics *service.Metrics
}

// NewMeanReversion 初始化均值回归策略
func NewMeanReversion(cfg Config, logger *zap.Logger, metrics *service.Metrics) *MeanReversion {
	if cfg.Name == "" {
		cfg.Name = "meanrev"
	}
	return &MeanReversion{
		cfg:     cfg,
		windows: window.NewStore[string, float64](cfg.Window, cfg.MaxSymbols),
		state:   NewStateMachine(cfg.Window, logger),
		logger:  logger,
		metrics: metrics,
	}
}

func (m *MeanReversion) Name() string { return m.cfg.Name }

// State 供外部查询标的预热状态
func (m *MeanReversion) State(symbol string) SymbolState {
	return m.state.State(symbol)
}

// Evaluate 把 tick 推入窗口并给出信号。窗口未满或标的被拒绝时 ok 为 false
func (m *MeanReversion) Evaluate(ctx context.Context, tick model.PriceTick) (signal model.TradeSignal, ok bool) {
	if err := m.windows.Push(tick.Symbol, tick.Close); err != nil {
		m.metrics.WindowRefused(ctx, "strategy")
		m.logger.Warn("Refusing new symbol", zap.String("Symbol", tick.Symbol), zap.Error(err))
		return model.TradeSignal{}, false
	}

	prices := m.windows.Window(tick.Symbol)
	if m.state.Observe(tick.Symbol, prices.Len()) != StateWarm {
		return model.TradeSignal{}, false
	}

	mean := ta.Mean(prices.Values())
	action := model.ActionHold
	switch ta.Deviation(tick.Close, mean, m.cfg.Threshold) {
	case -1:
		action = model.ActionBuy
	case 1:
		action = model.ActionSell
	}

	m.logger.Debug("Evaluated tick",
		zap.String("Symbol", tick.Symbol),
		zap.Float64("Price", tick.Close),
		zap.Float64("Mean", mean),
		zap.String("Signal", action.String()),
	)
	return model.TradeSignal{
		Strategy:   m.cfg.Name,
		Symbol:     tick.Symbol,
		Action:     action,
		Confidence: 1.0,
	}, true
}
