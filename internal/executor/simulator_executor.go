package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"quant-pipeline/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SimulatorConfig 模拟器配置
type SimulatorConfig struct {
	InitialCash  float64 // 初始资金
	HistoryLimit int     // 状态中保留的成交记录条数
}

// SimulatorExecutor 单位仓位的模拟执行器。
// 每个 BUY 买入一个单位并覆盖开仓价，每个 SELL 卖出一个单位并按最近一次开仓价结算。
type SimulatorExecutor struct {
	cfg    SimulatorConfig
	logger *zap.Logger
	now    func() time.Time

	mu sync.RWMutex // 保护账户状态

	cash        decimal.Decimal
	position    int
	entryPrice  decimal.NullDecimal
	realizedPnL decimal.Decimal
	maxDrawdown decimal.Decimal // 最差的已实现盈亏，始终 <= 0

	history    []model.TradeRecord
	lastPrices map[string]float64 // 按标的记录最新收盘价
}

// NewSimulatorExecutor 构造函数
func NewSimulatorExecutor(cfg SimulatorConfig, logger *zap.Logger) *SimulatorExecutor {
	if cfg.HistoryLimit < 1 {
		cfg.HistoryLimit = 100
	}
	return &SimulatorExecutor{
		cfg:        cfg,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		cash:       decimal.NewFromFloat(cfg.InitialCash),
		lastPrices: make(map[string]float64),
	}
}

// UpdatePrice 只更新价格，不触发任何交易
func (e *SimulatorExecutor) UpdatePrice(tick model.PriceTick) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastPrices[tick.Symbol] = tick.Close
}

// LastPrice 返回标的的最新价格
func (e *SimulatorExecutor) LastPrice(symbol string) (float64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.lastPrices[symbol]
	return p, ok
}

// ExecuteSignal 以标的的最新价格模拟成交
func (e *SimulatorExecutor) ExecuteSignal(ctx context.Context, signal model.TradeSignal) (Execution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	last, ok := e.lastPrices[signal.Symbol]
	if !ok {
		return Execution{}, fmt.Errorf("%w: %w: %s", ErrRejected, ErrNoPrice, signal.Symbol)
	}
	price := decimal.NewFromFloat(last)

	var exec Execution
	switch signal.Action {
	case model.ActionBuy:
		if e.cash.LessThan(price) {
			return Execution{}, fmt.Errorf("%w: %w: need %s, have %s", ErrRejected, ErrInsufficientCash, price, e.cash)
		}
		e.position++
		e.cash = e.cash.Sub(price)
		e.entryPrice = decimal.NewNullDecimal(price)

		e.logger.Info("Sim ORDER FILLED (BUY)",
			zap.String("Symbol", signal.Symbol),
			zap.String("Price", price.String()),
			zap.Int("Position", e.position),
			zap.String("Cash", e.cash.String()),
		)

	case model.ActionSell:
		if e.position <= 0 || !e.entryPrice.Valid {
			return Execution{}, fmt.Errorf("%w: %w: %s", ErrRejected, ErrNoPosition, signal.Symbol)
		}
		entry := e.entryPrice.Decimal
		pnl := price.Sub(entry)

		e.position--
		e.cash = e.cash.Add(price)
		e.realizedPnL = e.realizedPnL.Add(pnl)
		e.entryPrice = decimal.NullDecimal{}

		if entry.IsPositive() {
			exec.Return = pnl.Div(entry).InexactFloat64()
			exec.Realized = true
		}

		e.logger.Info("Sim POSITION CLOSED (SELL)",
			zap.String("Symbol", signal.Symbol),
			zap.String("Price", price.String()),
			zap.String("PnL", pnl.String()),
			zap.String("Cash", e.cash.String()),
		)

	default:
		return Execution{}, fmt.Errorf("%w: %w: %s", ErrRejected, ErrHold, signal.Symbol)
	}

	e.updateDrawdown()

	exec.Record = model.TradeRecord{
		ID:     uuid.NewString(),
		Symbol: signal.Symbol,
		Action: signal.Action,
		Time:   e.now(),
		Price:  last,
	}
	e.history = append(e.history, exec.Record)
	if len(e.history) > e.cfg.HistoryLimit {
		e.history = append([]model.TradeRecord(nil), e.history[len(e.history)-e.cfg.HistoryLimit:]...)
	}
	exec.State = e.snapshot()
	return exec, nil
}

// updateDrawdown 回撤只跟踪已实现盈亏
func (e *SimulatorExecutor) updateDrawdown() {
	worst := decimal.Min(e.realizedPnL, decimal.Zero)
	e.maxDrawdown = decimal.Min(e.maxDrawdown, worst)
}

// State 返回账户状态的深拷贝
func (e *SimulatorExecutor) State() model.PortfolioState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot()
}

func (e *SimulatorExecutor) snapshot() model.PortfolioState {
	state := model.PortfolioState{
		Cash:        e.cash.InexactFloat64(),
		Position:    e.position,
		RealizedPnL: e.realizedPnL.InexactFloat64(),
		MaxDrawdown: e.maxDrawdown.InexactFloat64(),
		History:     make([]model.TradeRecord, len(e.history)),
	}
	copy(state.History, e.history)
	if e.entryPrice.Valid {
		v := e.entryPrice.Decimal.InexactFloat64()
		state.EntryPrice = &v
	}
	return state
}
