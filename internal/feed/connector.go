package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"quant-pipeline/internal/bus"
	"quant-pipeline/internal/model"
	"quant-pipeline/internal/service"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// wsEnvelope 带外层包装的行情帧，event 不为空时是订阅确认等控制消息
type wsEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"` // 单个 PriceTick 或数组，延迟解析
}

// Connector 连接外部行情 WebSocket，把 PriceTick 转发到价格 channel
type Connector struct {
	cfg     service.FeedConfig
	channel string
	pub     bus.Publisher
	dialer  *websocket.Dialer
	logger  *zap.Logger
	metrics *service.Metrics
}

func NewConnector(cfg service.FeedConfig, channel string, pub bus.Publisher, logger *zap.Logger, metrics *service.Metrics) *Connector {
	logger.Info("Connector initialized", zap.String("URL", cfg.WSURL), zap.Strings("Symbols", cfg.Symbols))
	return &Connector{
		cfg:     cfg,
		channel: channel,
		pub:     pub,
		dialer:  websocket.DefaultDialer,
		logger:  logger,
		metrics: metrics,
	}
}

// Run 保持连接直到 ctx 结束。断线后按指数退避重连，成功连上后退避时间复位
func (c *Connector) Run(ctx context.Context) error {
	delay := c.cfg.ReconnectDelay
	for {
		connected, err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			delay = c.cfg.ReconnectDelay
		}
		c.logger.Error("Feed connection lost, attempting to reconnect...",
			zap.Duration("Delay", delay), zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		delay = min(delay*2, c.cfg.MaxReconnectDelay)
	}
}

// session 建立一次连接并读取到出错为止
func (c *Connector) session(ctx context.Context) (connected bool, err error) {
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.WSURL, nil)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", c.cfg.WSURL, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if len(c.cfg.Symbols) > 0 {
		subscribe := map[string]any{"op": "subscribe", "args": c.cfg.Symbols}
		if err := conn.WriteJSON(subscribe); err != nil {
			return true, fmt.Errorf("send subscription: %w", err)
		}
	}
	c.logger.Info("Feed connected", zap.String("URL", c.cfg.WSURL))

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		ticks, err := decodeFrame(frame)
		if err != nil {
			c.metrics.DecodeFailure(ctx, "feed")
			c.logger.Warn("Dropping malformed feed frame", zap.Error(err))
			continue
		}
		for _, tick := range ticks {
			if err := bus.PublishJSON(ctx, c.pub, c.channel, tick); err != nil {
				if errors.Is(err, bus.ErrTransport) || errors.Is(err, bus.ErrClosed) {
					return true, err
				}
				c.logger.Error("Failed to publish tick", zap.String("Symbol", tick.Symbol), zap.Error(err))
			}
		}
	}
}

// decodeFrame 支持三种格式: 单个 tick、tick 数组、{"data": ...} 包装。
// 控制消息返回空切片
func decodeFrame(frame []byte) ([]model.PriceTick, error) {
	frame = bytes.TrimSpace(frame)
	if len(frame) == 0 {
		return nil, fmt.Errorf("%w: empty frame", model.ErrDecode)
	}

	if frame[0] == '{' {
		var env wsEnvelope
		if err := json.Unmarshal(frame, &env); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrDecode, err)
		}
		if env.Event != "" {
			return nil, nil
		}
		if len(env.Data) > 0 {
			return decodeFrame(env.Data)
		}
		tick, err := model.DecodePriceTick(frame)
		if err != nil {
			return nil, err
		}
		return []model.PriceTick{tick}, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(frame, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDecode, err)
	}
	ticks := make([]model.PriceTick, 0, len(raw))
	for _, item := range raw {
		tick, err := model.DecodePriceTick(item)
		if err != nil {
			return nil, err
		}
		ticks = append(ticks, tick)
	}
	return ticks, nil
}
