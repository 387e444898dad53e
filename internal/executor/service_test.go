package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"quant-pipeline/internal/bus"
	"quant-pipeline/internal/model"
	"quant-pipeline/internal/service"
	"quant-pipeline/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type countingStore struct {
	*store.MemoryStore
	mu      sync.Mutex
	appends map[string]int
}

func (s *countingStore) AppendTrimmed(ctx context.Context, key, value string, keep int) error {
	s.mu.Lock()
	s.appends[key]++
	s.mu.Unlock()
	return s.MemoryStore.AppendTrimmed(ctx, key, value, keep)
}

func (s *countingStore) count(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appends[key]
}

// downBus 在 channel 上发布时总是返回传输错误
type downBus struct {
	*bus.MemoryBus
	channel string
}

func (b *downBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if channel == b.channel {
		return fmt.Errorf("%w: publish %s: connection refused", bus.ErrTransport, channel)
	}
	return b.MemoryBus.Publish(ctx, channel, payload)
}

type harness struct {
	bus    *bus.MemoryBus
	store  *countingStore
	exec   *SimulatorExecutor
	states bus.Subscription
	cfg    ServiceConfig
	cancel context.CancelFunc
	done   chan error
}

func startService(t *testing.T) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	h := &harness{
		bus:   bus.NewMemoryBus(256, logger, nil),
		store: &countingStore{MemoryStore: store.NewMemoryStore(), appends: map[string]int{}},
		exec:  NewSimulatorExecutor(SimulatorConfig{InitialCash: 100000, HistoryLimit: 100}, logger),
		cfg: ServiceConfig{
			Channels: service.ChannelConfig{
				Prices:     "price_updates",
				Signals:    "trade_signals",
				Aggregated: "aggregated_signals",
				PnL:        "executor_pnl",
			},
			Keys:          service.KeyConfig{TradeHistory: "trade_history", Returns: "returns"},
			HistoryLimit:  100,
			RecordReturns: true,
			ReturnsLimit:  1000,
		},
		done: make(chan error, 1),
	}
	t.Cleanup(func() { h.bus.Close() })

	var ctx context.Context
	ctx, h.cancel = context.WithCancel(t.Context())

	var err error
	h.states, err = h.bus.Subscribe(ctx, h.cfg.Channels.PnL)
	require.NoError(t, err)

	svc := NewService(h.exec, h.bus, h.store, h.cfg, logger, nil)
	go func() { h.done <- svc.Run(ctx) }()
	require.Eventually(t, func() bool {
		return h.bus.Subscribers(h.cfg.Channels.Aggregated) == 1
	}, 2*time.Second, 10*time.Millisecond)
	return h
}

func (h *harness) price(t *testing.T, symbol string, price float64) {
	require.NoError(t, bus.PublishJSON(t.Context(), h.bus, h.cfg.Channels.Prices, model.PriceTick{Symbol: symbol, Close: price}))
}

func (h *harness) signal(t *testing.T, symbol string, action model.Action) {
	require.NoError(t, bus.PublishJSON(t.Context(), h.bus, h.cfg.Channels.Aggregated,
		model.AggregatedSignal{Strategy: "meanrev", Symbol: symbol, Action: action, Confidence: 1}))
}

func (h *harness) nextState(t *testing.T) model.PortfolioState {
	t.Helper()
	select {
	case msg := <-h.states.Messages():
		state, err := model.DecodePortfolioState(msg.Payload)
		require.NoError(t, err)
		return state
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for executor state")
	}
	return model.PortfolioState{}
}

func (h *harness) noState(t *testing.T) {
	t.Helper()
	select {
	case msg := <-h.states.Messages():
		t.Fatalf("unexpected state %s", msg.Payload)
	case <-time.After(100 * time.Millisecond):
	}
}

func (h *harness) stop(t *testing.T) {
	h.cancel()
	select {
	case err := <-h.done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("executor service did not stop")
	}
}

func TestServiceOnePublishAndAppendPerTrade(t *testing.T) {
	h := startService(t)
	defer h.stop(t)

	h.price(t, "AAPL", 100)
	h.signal(t, "AAPL", model.ActionBuy)
	state := h.nextState(t)
	assert.Equal(t, 99900.0, state.Cash)
	assert.Equal(t, 1, state.Position)

	h.price(t, "AAPL", 110)
	h.signal(t, "AAPL", model.ActionSell)
	state = h.nextState(t)
	assert.Equal(t, 10.0, state.RealizedPnL)
	assert.Nil(t, state.EntryPrice)

	h.noState(t)
	assert.Equal(t, 2, h.store.count("trade_history"))
	assert.Equal(t, 1, h.store.count("returns"))

	entries, err := h.store.Range(t.Context(), "trade_history", 0, -1)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	var record model.TradeRecord
	require.NoError(t, json.Unmarshal([]byte(entries[1]), &record))
	assert.Equal(t, model.ActionSell, record.Action)
	assert.Equal(t, 110.0, record.Price)

	returns, err := h.store.Range(t.Context(), "returns", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"0.1"}, returns)
}

func TestServiceRejectionsPublishNothing(t *testing.T) {
	h := startService(t)
	defer h.stop(t)

	// 没有价格的信号被丢弃
	h.signal(t, "AAPL", model.ActionBuy)
	h.price(t, "AAPL", 100)
	h.signal(t, "AAPL", model.ActionSell)
	h.signal(t, "AAPL", model.ActionHold)

	h.noState(t)
	assert.Equal(t, 0, h.store.count("trade_history"))
	assert.Equal(t, 100000.0, h.exec.State().Cash)
}

func TestServiceSurvivesMalformedMessages(t *testing.T) {
	h := startService(t)
	defer h.stop(t)

	ctx := t.Context()
	require.NoError(t, h.bus.Publish(ctx, h.cfg.Channels.Prices, []byte(`{"s":"AAPL","c":"abc"}`)))
	require.NoError(t, h.bus.Publish(ctx, h.cfg.Channels.Aggregated, []byte(`{"symbol":"AAPL","signal":"MOON"}`)))
	require.NoError(t, h.bus.Publish(ctx, h.cfg.Channels.Aggregated, []byte(`garbage`)))

	h.price(t, "AAPL", 100)
	h.signal(t, "AAPL", model.ActionBuy)
	state := h.nextState(t)
	assert.Equal(t, 1, state.Position)
}

func TestServiceTrimsTradeHistory(t *testing.T) {
	h := startService(t)
	defer h.stop(t)

	h.price(t, "AAPL", 1)
	for i := 0; i < 120; i++ {
		h.signal(t, "AAPL", model.ActionBuy)
		h.nextState(t)
	}
	entries, err := h.store.Range(t.Context(), "trade_history", 0, -1)
	require.NoError(t, err)
	assert.Len(t, entries, 100)
	assert.Len(t, h.exec.State().History, 100)
}

func TestServicePersistsTradeWhenPublishFails(t *testing.T) {
	logger := zaptest.NewLogger(t)
	mem := bus.NewMemoryBus(16, logger, nil)
	t.Cleanup(func() { mem.Close() })
	lists := store.NewMemoryStore()
	exec := NewSimulatorExecutor(SimulatorConfig{InitialCash: 1000, HistoryLimit: 100}, logger)
	cfg := ServiceConfig{
		Channels: service.ChannelConfig{
			Prices:     "price_updates",
			Aggregated: "aggregated_signals",
			PnL:        "executor_pnl",
		},
		Keys:         service.KeyConfig{TradeHistory: "trade_history", Returns: "returns"},
		HistoryLimit: 100,
	}

	done := make(chan error, 1)
	svc := NewService(exec, &downBus{MemoryBus: mem, channel: cfg.Channels.PnL}, lists, cfg, logger, nil)
	go func() { done <- svc.Run(t.Context()) }()
	require.Eventually(t, func() bool {
		return mem.Subscribers(cfg.Channels.Aggregated) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, bus.PublishJSON(t.Context(), mem, cfg.Channels.Prices, model.PriceTick{Symbol: "AAPL", Close: 100}))
	require.NoError(t, bus.PublishJSON(t.Context(), mem, cfg.Channels.Aggregated,
		model.AggregatedSignal{Strategy: "meanrev", Symbol: "AAPL", Action: model.ActionBuy, Confidence: 1}))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, bus.ErrTransport)
	case <-time.After(2 * time.Second):
		t.Fatal("executor service kept running after transport failure")
	}

	entries, err := lists.Range(t.Context(), cfg.Keys.TradeHistory, 0, -1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, 1, exec.State().Position)
	assert.Equal(t, 900.0, exec.State().Cash)
}
