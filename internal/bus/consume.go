package bus

import (
	"context"
	"errors"
	"fmt"

	"quant-pipeline/internal/model"
	"quant-pipeline/internal/service"

	"go.uber.org/zap"
)

// Handler 处理一条消息。除 ErrTransport/ErrClosed 外，返回的错误只会被记录，不会中断订阅循环
type Handler func(ctx context.Context, msg Message) error

// Consume 逐条处理订阅中的消息，直到 ctx 结束 (返回 nil)、订阅意外关闭或 handler 遇到总线故障
// (返回 ErrTransport/ErrClosed)。解析失败的消息会被记录并跳过。
func Consume(ctx context.Context, sub Subscription, logger *zap.Logger, metrics *service.Metrics, handle Handler) error {
	defer sub.Close()
	msgs := sub.Messages()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("%w: subscription closed", ErrTransport)
			}
			if err := safeHandle(ctx, handle, msg); err != nil {
				if errors.Is(err, ErrTransport) || errors.Is(err, ErrClosed) {
					if ctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("%s: %w", msg.Channel, err)
				}
				if errors.Is(err, model.ErrDecode) {
					metrics.DecodeFailure(ctx, msg.Channel)
					logger.Warn("Dropping malformed message",
						zap.String("Channel", msg.Channel), zap.Error(err))
					continue
				}
				logger.Error("Message handler failed",
					zap.String("Channel", msg.Channel), zap.Error(err))
			}
		}
	}
}

func safeHandle(ctx context.Context, handle Handler, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handle(ctx, msg)
}
