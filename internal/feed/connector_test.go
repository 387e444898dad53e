package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"quant-pipeline/internal/bus"
	"quant-pipeline/internal/model"
	"quant-pipeline/internal/service"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestDecodeFrame(t *testing.T) {
	ticks, err := decodeFrame([]byte(`{"s":"AAPL","c":100,"v":5}`))
	require.NoError(t, err)
	assert.Equal(t, []model.PriceTick{{Symbol: "AAPL", Close: 100, Volume: 5}}, ticks)

	ticks, err = decodeFrame([]byte(`[{"s":"AAPL","c":1},{"s":"MSFT","c":2}]`))
	require.NoError(t, err)
	assert.Len(t, ticks, 2)

	ticks, err = decodeFrame([]byte(`{"data":[{"s":"TSLA","c":3}]}`))
	require.NoError(t, err)
	assert.Equal(t, "TSLA", ticks[0].Symbol)

	ticks, err = decodeFrame([]byte(`{"event":"subscribe","data":"ok"}`))
	require.NoError(t, err)
	assert.Empty(t, ticks)

	for _, frame := range []string{``, `nope`, `[{"s":"AAPL","c":1},{"c":2}]`, `{"s":"AAPL","c":-1}`} {
		_, err := decodeFrame([]byte(frame))
		assert.ErrorIs(t, err, model.ErrDecode, frame)
	}
}

func TestConnectorPublishesAndReconnects(t *testing.T) {
	var sessions atomic.Int32
	subscribed := make(chan []string, 4)
	upgrader := websocket.Upgrader{}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req struct {
			Op   string   `json:"op"`
			Args []string `json:"args"`
		}
		if err := conn.ReadJSON(&req); err == nil && req.Op == "subscribe" {
			subscribed <- req.Args
		}

		n := sessions.Add(1)
		if n == 1 {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"subscribe"}`))
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"s":"AAPL","c":100}`))
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`garbage`))
			// 直接断开，触发重连
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`[{"s":"AAPL","c":101},{"s":"MSFT","c":300}]`))
		// 保持连接直到客户端关闭
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer ts.Close()

	logger := zaptest.NewLogger(t)
	b := bus.NewMemoryBus(16, logger, nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	out, err := b.Subscribe(ctx, "price_updates")
	require.NoError(t, err)

	cfg := service.FeedConfig{
		WSURL:             "ws" + strings.TrimPrefix(ts.URL, "http"),
		Symbols:           []string{"AAPL", "MSFT"},
		ReconnectDelay:    10 * time.Millisecond,
		MaxReconnectDelay: 50 * time.Millisecond,
	}
	c := NewConnector(cfg, "price_updates", b, logger, nil)
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	var got []model.PriceTick
	for len(got) < 3 {
		select {
		case msg := <-out.Messages():
			tick, err := model.DecodePriceTick(msg.Payload)
			require.NoError(t, err)
			got = append(got, tick)
		case <-time.After(3 * time.Second):
			t.Fatalf("received %d ticks, want 3", len(got))
		}
	}
	assert.Equal(t, 100.0, got[0].Close)
	assert.Equal(t, 101.0, got[1].Close)
	assert.Equal(t, "MSFT", got[2].Symbol)
	assert.GreaterOrEqual(t, sessions.Load(), int32(2))
	assert.Equal(t, []string{"AAPL", "MSFT"}, <-subscribed)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("connector did not stop")
	}
}

func TestConnectorRetriesUnreachableFeed(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	ts.Close()

	logger := zaptest.NewLogger(t)
	b := bus.NewMemoryBus(4, logger, nil)
	defer b.Close()

	c := NewConnector(service.FeedConfig{WSURL: url, ReconnectDelay: 5 * time.Millisecond, MaxReconnectDelay: 20 * time.Millisecond},
		"price_updates", b, logger, nil)

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()
	assert.NoError(t, c.Run(ctx))
}
