package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrTransport 总线不可达或订阅意外断开，属于致命错误
	ErrTransport = errors.New("bus transport failure")
	// ErrClosed 总线已关闭
	ErrClosed = errors.New("bus closed")
)

// Message 从某个 channel 收到的一条原始消息
type Message struct {
	Channel string
	Payload []byte
}

// Publisher 发布消息 (fire-and-forget，不保证送达)
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Subscription 一个惰性、无限、不可重启的消息序列
type Subscription interface {
	Messages() <-chan Message
	Close() error
}

// Subscriber 订阅一个或多个 channel
type Subscriber interface {
	Subscribe(ctx context.Context, channels ...string) (Subscription, error)
}

// Bus 是所有服务共享的发布/订阅总线
type Bus interface {
	Publisher
	Subscriber
	Ping(ctx context.Context) error
	Close() error
}

// PublishJSON 编码为 JSON 后发布
func PublishJSON(ctx context.Context, p Publisher, channel string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", channel, err)
	}
	return p.Publish(ctx, channel, payload)
}
