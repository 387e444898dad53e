package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBus 基于 Redis PUBLISH/SUBSCRIBE 的总线，多进程部署时使用
type RedisBus struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisBus 包装一个已创建的 redis 客户端，关闭总线时同时关闭客户端
func NewRedisBus(client *redis.Client, logger *zap.Logger) *RedisBus {
	return &RedisBus{client: client, logger: logger}
}

// Client 返回底层客户端，供持久化列表共用同一连接池
func (b *RedisBus) Client() *redis.Client {
	return b.client
}

func (b *RedisBus) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping %s: %v", ErrTransport, b.client.Options().Addr, err)
	}
	return nil
}

func (b *RedisBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("%w: publish %s: %v", ErrTransport, channel, err)
	}
	return nil
}

// Subscribe 等待订阅确认后返回，确认失败视为传输错误
func (b *RedisBus) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	ps := b.client.Subscribe(ctx, channels...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("%w: subscribe %v: %v", ErrTransport, channels, err)
	}
	b.logger.Info("Subscribed to redis channels", zap.Strings("Channels", channels))

	sub := &redisSubscription{
		ps:   ps,
		ch:   make(chan Message),
		done: make(chan struct{}),
	}
	go sub.pump(ctx)
	return sub, nil
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}

type redisSubscription struct {
	ps   *redis.PubSub
	ch   chan Message
	done chan struct{}
	once sync.Once
}

// pump 把 go-redis 的消息转换成 Message，直到订阅关闭
func (s *redisSubscription) pump(ctx context.Context) {
	defer close(s.ch)
	in := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			s.Close()
			return
		case <-s.done:
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			select {
			case s.ch <- Message{Channel: m.Channel, Payload: []byte(m.Payload)}:
			case <-ctx.Done():
				s.Close()
				return
			case <-s.done:
				return
			}
		}
	}
}

func (s *redisSubscription) Messages() <-chan Message {
	return s.ch
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}
