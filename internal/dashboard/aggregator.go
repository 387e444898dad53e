package dashboard

import (
	"context"
	"fmt"
	"sync"

	"quant-pipeline/internal/bus"
	"quant-pipeline/internal/model"
	"quant-pipeline/internal/service"
	"quant-pipeline/internal/store"
	"quant-pipeline/pkg/ta"
	"quant-pipeline/pkg/window"

	"go.uber.org/zap"
)

// Snapshot 看板渲染所需的全部数据，是一份深拷贝
type Snapshot struct {
	RecentPrices     []model.PriceTick     `json:"recent_prices"`  // 最新在前
	RecentSignals    []model.TradeSignal   `json:"recent_signals"` // 最新在前
	LatestState      *model.PortfolioState `json:"latest_state"`
	TradeHistoryTail []model.TradeRecord   `json:"trade_history_tail"`
	SharpeRatio      float64               `json:"sharpe_ratio"`
	PerSymbolSeries  map[string][]float64  `json:"per_symbol_series"` // 最旧在前
}

// Aggregator 订阅价格、信号和账户状态三个流，维护看板视图。
// 写入只发生在消费 goroutine，读取通过 Snapshot 在读锁下完成。
type Aggregator struct {
	cfg      service.DashboardConfig
	channels service.ChannelConfig
	keys     service.KeyConfig
	store    store.ListStore
	logger   *zap.Logger
	metrics  *service.Metrics

	mu      sync.RWMutex
	prices  *window.Window[model.PriceTick]
	signals *window.Window[model.TradeSignal]
	series  *window.Store[string, float64]
	latest  *model.PortfolioState
	tail    []model.TradeRecord
	sharpe  float64
}

func NewAggregator(cfg service.DashboardConfig, channels service.ChannelConfig, keys service.KeyConfig,
	lists store.ListStore, logger *zap.Logger, metrics *service.Metrics) *Aggregator {
	return &Aggregator{
		cfg:      cfg,
		channels: channels,
		keys:     keys,
		store:    lists,
		logger:   logger,
		metrics:  metrics,
		prices:   window.New[model.PriceTick](cfg.RecentLimit),
		signals:  window.New[model.TradeSignal](cfg.RecentLimit),
		series:   window.NewStore[string, float64](cfg.SeriesLimit, cfg.MaxSymbols),
	}
}

// Run 订阅三个 channel 直到 ctx 结束
func (a *Aggregator) Run(ctx context.Context, b bus.Subscriber) error {
	sub, err := b.Subscribe(ctx, a.channels.Prices, a.channels.Signals, a.channels.PnL)
	if err != nil {
		return fmt.Errorf("dashboard subscribe: %w", err)
	}
	a.logger.Info("Dashboard aggregator started",
		zap.Strings("Channels", []string{a.channels.Prices, a.channels.Signals, a.channels.PnL}))
	return bus.Consume(ctx, sub, a.logger, a.metrics, a.Handle)
}

// Handle 按 channel 分发一条消息
func (a *Aggregator) Handle(ctx context.Context, msg bus.Message) error {
	switch msg.Channel {
	case a.channels.Prices:
		tick, err := model.DecodePriceTick(msg.Payload)
		if err != nil {
			return err
		}
		a.onPrice(ctx, tick)
	case a.channels.Signals:
		signal, err := model.DecodeTradeSignal(msg.Payload)
		if err != nil {
			return err
		}
		a.mu.Lock()
		a.signals.Push(signal)
		a.mu.Unlock()
	case a.channels.PnL:
		state, err := model.DecodePortfolioState(msg.Payload)
		if err != nil {
			return err
		}
		return a.onState(ctx, state)
	}
	return nil
}

func (a *Aggregator) onPrice(ctx context.Context, tick model.PriceTick) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.prices.Push(tick)
	if err := a.series.Push(tick.Symbol, tick.Close); err != nil {
		a.metrics.WindowRefused(ctx, "dashboard")
		a.logger.Warn("Refusing new symbol series", zap.String("Symbol", tick.Symbol), zap.Error(err))
	}
}

// onState 替换最新状态，并从持久化列表重新读取交易记录和收益序列
func (a *Aggregator) onState(ctx context.Context, state model.PortfolioState) error {
	tail, tailErr := a.readTail(ctx)
	if tailErr != nil {
		a.metrics.StoreFailure(ctx, "range_trades")
		a.logger.Error("Failed to read trade history", zap.Error(tailErr))
	}
	returns, retErr := a.store.Range(ctx, a.keys.Returns, 0, -1)
	if retErr != nil {
		a.metrics.StoreFailure(ctx, "range_returns")
		a.logger.Error("Failed to read returns", zap.Error(retErr))
	}

	// 读取失败时保留上一次的值
	a.mu.Lock()
	defer a.mu.Unlock()
	a.latest = &state
	if tailErr == nil {
		a.tail = tail
	}
	if retErr == nil {
		a.sharpe = ta.Sharpe(service.ParseFloats(returns))
	}
	return nil
}

func (a *Aggregator) readTail(ctx context.Context) ([]model.TradeRecord, error) {
	raw, err := a.store.Range(ctx, a.keys.TradeHistory, -a.cfg.HistoryTail, -1)
	if err != nil {
		return nil, err
	}
	records := make([]model.TradeRecord, 0, len(raw))
	for _, entry := range raw {
		record, err := model.DecodeTradeRecord([]byte(entry))
		if err != nil {
			a.logger.Warn("Skipping malformed trade history entry", zap.Error(err))
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// Snapshot 返回当前视图的深拷贝，没有数据时各字段为空值而不是 nil
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	snap := Snapshot{
		RecentPrices:     a.prices.NewestFirst(),
		RecentSignals:    a.signals.NewestFirst(),
		TradeHistoryTail: make([]model.TradeRecord, len(a.tail)),
		SharpeRatio:      a.sharpe,
		PerSymbolSeries:  make(map[string][]float64, a.series.Len()),
	}
	copy(snap.TradeHistoryTail, a.tail)
	if a.latest != nil {
		state := a.latest.Clone()
		snap.LatestState = &state
	}
	for _, symbol := range a.series.Keys() {
		snap.PerSymbolSeries[symbol] = a.series.Snapshot(symbol)
	}
	return snap
}
