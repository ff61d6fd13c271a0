package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisBroker 基于 Redis Pub/Sub 的 broker 实现
// PUBLISH 的返回值是收到消息的订阅者数量：0 映射为 "timed out"
// （与没有订阅者时的 realtime 语义一致），>0 映射为 "ok"
type RedisBroker struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisBroker 创建 Redis broker
func NewRedisBroker(client *redis.Client, logger *zap.Logger) *RedisBroker {
	return &RedisBroker{client: client, logger: logger}
}

// Subscribe 订阅 topic，握手状态通过 Subscription.Status() 推送
func (b *RedisBroker) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	pubsub := b.client.Subscribe(ctx, topic)
	status := make(chan SubscribeStatus, 1)

	go func() {
		// Receive 等待 Redis 的订阅确认帧
		if _, err := pubsub.Receive(ctx); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				status <- StatusTimedOut
			} else if errors.Is(err, redis.ErrClosed) {
				status <- StatusClosed
			} else {
				b.logger.Warn("redis subscribe confirmation failed",
					zap.String("topic", topic),
					zap.Error(err),
				)
				status <- StatusChannelError
			}
			return
		}
		status <- StatusSubscribed
	}()

	return &redisSubscription{pubsub: pubsub, topic: topic, status: status}, nil
}

// Send 发布消息（JSON 编码）
func (b *RedisBroker) Send(ctx context.Context, topic string, msg Message) (SendResult, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal realtime message: %w", err)
	}

	receivers, err := b.client.Publish(ctx, topic, payload).Result()
	if err != nil {
		return "", err
	}
	if receivers == 0 {
		return SendTimedOut, nil
	}
	return SendOK, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	topic  string
	status chan SubscribeStatus
}

func (s *redisSubscription) Status() <-chan SubscribeStatus {
	return s.status
}

func (s *redisSubscription) Unsubscribe(ctx context.Context) error {
	return s.pubsub.Unsubscribe(ctx, s.topic)
}

func (s *redisSubscription) Remove(_ context.Context) error {
	return s.pubsub.Close()
}
