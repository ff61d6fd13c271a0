package realtime

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultJoinTimeout 默认订阅握手超时
const DefaultJoinTimeout = 5 * time.Second

// Publisher 向 realtime channel 推送消息
// 每次 Publish 走完整的 join → send → cleanup 流程；
// cleanup（unsubscribe + remove）在所有退出路径上都会执行
type Publisher struct {
	broker      Broker
	logger      *zap.Logger
	joinTimeout time.Duration
}

// NewPublisher 创建 Publisher；joinTimeout <= 0 时取默认值
func NewPublisher(broker Broker, logger *zap.Logger, joinTimeout time.Duration) *Publisher {
	if joinTimeout <= 0 {
		joinTimeout = DefaultJoinTimeout
	}
	return &Publisher{broker: broker, logger: logger, joinTimeout: joinTimeout}
}

// Publish 推送一条消息到 topic
// broker 返回 "timed out"（还没有订阅者）视为成功，只记警告；
// 其余非 ok 状态返回错误
func (p *Publisher) Publish(ctx context.Context, topic string, msg Message) error {
	sub, err := p.broker.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("realtime channel %s subscribe failed: %w", topic, err)
	}

	defer func() {
		// 清理阶段的错误只在这里吞掉
		if err := sub.Unsubscribe(ctx); err != nil {
			p.logger.Debug("realtime unsubscribe failed",
				zap.String("topic", topic),
				zap.Error(err),
			)
		}
		if err := sub.Remove(ctx); err != nil {
			p.logger.Debug("realtime channel remove failed",
				zap.String("topic", topic),
				zap.Error(err),
			)
		}
	}()

	if err := p.join(ctx, topic, sub); err != nil {
		return err
	}

	result, err := p.broker.Send(ctx, topic, Normalize(msg))
	if err != nil {
		return fmt.Errorf("realtime push to %s failed: %w", topic, err)
	}
	switch result {
	case SendOK:
		return nil
	case SendTimedOut:
		p.logger.Warn("realtime push timed out (no subscribers yet?)",
			zap.String("topic", topic),
		)
		return nil
	default:
		return fmt.Errorf("realtime push to %s failed with status %q", topic, string(result))
	}
}

func (p *Publisher) join(ctx context.Context, topic string, sub Subscription) error {
	timer := time.NewTimer(p.joinTimeout)
	defer timer.Stop()

	select {
	case status := <-sub.Status():
		switch status {
		case StatusSubscribed:
			return nil
		case StatusChannelError:
			return fmt.Errorf("realtime channel %s returned CHANNEL_ERROR", topic)
		case StatusTimedOut:
			return fmt.Errorf("realtime channel %s subscription timed out", topic)
		case StatusClosed:
			return fmt.Errorf("realtime channel %s closed before subscribing", topic)
		default:
			return fmt.Errorf("realtime channel %s returned unexpected status %s", topic, status)
		}
	case <-timer.C:
		return fmt.Errorf("realtime channel %s timed out while subscribing after %s", topic, p.joinTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
