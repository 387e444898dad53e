package bus

import (
	"context"
	"sync"

	"quant-pipeline/internal/service"

	"go.uber.org/zap"
)

// MemoryBus 单进程内的 channel 总线。
// 每个订阅有独立的缓冲区，缓冲区满时丢弃消息 (at-most-once)，不会阻塞发布者。
type MemoryBus struct {
	mu      sync.RWMutex
	subs    map[string]map[*memorySubscription]struct{}
	buffer  int
	closed  bool
	logger  *zap.Logger
	metrics *service.Metrics
}

// NewMemoryBus 创建内存总线，buffer 为每个订阅的缓冲区大小
func NewMemoryBus(buffer int, logger *zap.Logger, metrics *service.Metrics) *MemoryBus {
	if buffer < 1 {
		buffer = 1
	}
	return &MemoryBus{
		subs:    make(map[string]map[*memorySubscription]struct{}),
		buffer:  buffer,
		logger:  logger,
		metrics: metrics,
	}
}

func (b *MemoryBus) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

// Publish 把消息扇出给该 channel 的所有订阅
func (b *MemoryBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	data := make([]byte, len(payload))
	copy(data, payload)
	msg := Message{Channel: channel, Payload: data}

	for sub := range b.subs[channel] {
		select {
		case sub.ch <- msg:
		default:
			b.logger.Warn("Subscriber buffer full! Dropping message.", zap.String("Channel", channel))
			b.metrics.BusDrop(ctx, channel)
		}
	}
	return nil
}

// Subscribe 订阅 channels，ctx 结束或调用 Close 时订阅关闭
func (b *MemoryBus) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	sub := &memorySubscription{
		bus:      b,
		channels: channels,
		ch:       make(chan Message, b.buffer),
		done:     make(chan struct{}),
	}
	for _, channel := range channels {
		set, ok := b.subs[channel]
		if !ok {
			set = make(map[*memorySubscription]struct{})
			b.subs[channel] = set
		}
		set[sub] = struct{}{}
	}

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

// Close 关闭总线和所有订阅
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var all []*memorySubscription
	seen := make(map[*memorySubscription]struct{})
	for _, set := range b.subs {
		for sub := range set {
			if _, ok := seen[sub]; !ok {
				seen[sub] = struct{}{}
				all = append(all, sub)
			}
		}
	}
	b.mu.Unlock()

	for _, sub := range all {
		sub.Close()
	}
	return nil
}

// Subscribers 返回 channel 当前的订阅数
func (b *MemoryBus) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}

func (b *MemoryBus) remove(sub *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, channel := range sub.channels {
		if set, ok := b.subs[channel]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(b.subs, channel)
			}
		}
	}
}

type memorySubscription struct {
	bus      *MemoryBus
	channels []string
	ch       chan Message
	done     chan struct{}
	once     sync.Once
}

func (s *memorySubscription) Messages() <-chan Message {
	return s.ch
}

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		// 先从总线移除，保证之后不会再有发布者写入 s.ch
		s.bus.remove(s)
		close(s.done)
		close(s.ch)
	})
	return nil
}
