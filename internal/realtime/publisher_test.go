package realtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSubscription struct {
	status       chan SubscribeStatus
	unsubscribes int
	removes      int
}

func (s *fakeSubscription) Status() <-chan SubscribeStatus { return s.status }

func (s *fakeSubscription) Unsubscribe(context.Context) error {
	s.unsubscribes++
	return nil
}

func (s *fakeSubscription) Remove(context.Context) error {
	s.removes++
	return nil
}

type fakeBroker struct {
	joinStatus   SubscribeStatus
	joinSilent   bool // 不推送任何握手状态（模拟 join 超时）
	subscribeErr error
	sendResult   SendResult
	sendErr      error
	sub          *fakeSubscription
	sent         []Message
	sentTopics   []string
}

func (b *fakeBroker) Subscribe(_ context.Context, topic string) (Subscription, error) {
	if b.subscribeErr != nil {
		return nil, b.subscribeErr
	}
	b.sub = &fakeSubscription{status: make(chan SubscribeStatus, 1)}
	if !b.joinSilent {
		b.sub.status <- b.joinStatus
	}
	return b.sub, nil
}

func (b *fakeBroker) Send(_ context.Context, topic string, msg Message) (SendResult, error) {
	b.sent = append(b.sent, msg)
	b.sentTopics = append(b.sentTopics, topic)
	if b.sendErr != nil {
		return "", b.sendErr
	}
	return b.sendResult, nil
}

func TestPublish_Success(t *testing.T) {
	broker := &fakeBroker{joinStatus: StatusSubscribed, sendResult: SendOK}
	p := NewPublisher(broker, zap.NewNop(), time.Second)

	err := p.Publish(context.Background(), "realtime:device:pig-cam-01", Message{
		Type:    "alert",
		Payload: map[string]any{"id": int64(42)},
	})
	require.NoError(t, err)

	require.Len(t, broker.sent, 1)
	assert.Equal(t, TypeBroadcast, broker.sent[0].Type)
	assert.Equal(t, "alert", broker.sent[0].Event)
	assert.Equal(t, "realtime:device:pig-cam-01", broker.sentTopics[0])

	// cleanup 恰好执行一次
	assert.Equal(t, 1, broker.sub.unsubscribes)
	assert.Equal(t, 1, broker.sub.removes)
}

func TestPublish_TimedOutResultTreatedAsSuccess(t *testing.T) {
	broker := &fakeBroker{joinStatus: StatusSubscribed, sendResult: SendTimedOut}
	p := NewPublisher(broker, zap.NewNop(), time.Second)

	err := p.Publish(context.Background(), "realtime:device:x", Message{Type: "alert"})
	require.NoError(t, err)

	assert.Equal(t, 1, broker.sub.unsubscribes)
	assert.Equal(t, 1, broker.sub.removes)
}

func TestPublish_UnexpectedResultFails(t *testing.T) {
	broker := &fakeBroker{joinStatus: StatusSubscribed, sendResult: SendResult("rate limited")}
	p := NewPublisher(broker, zap.NewNop(), time.Second)

	err := p.Publish(context.Background(), "realtime:device:x", Message{Type: "alert"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "realtime:device:x")
	assert.Contains(t, err.Error(), "rate limited")

	assert.Equal(t, 1, broker.sub.unsubscribes)
	assert.Equal(t, 1, broker.sub.removes)
}

func TestPublish_JoinChannelError(t *testing.T) {
	broker := &fakeBroker{joinStatus: StatusChannelError}
	p := NewPublisher(broker, zap.NewNop(), time.Second)

	err := p.Publish(context.Background(), "realtime:device:x", Message{Type: "alert"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CHANNEL_ERROR")
	assert.Empty(t, broker.sent)

	// 握手失败也要清理
	assert.Equal(t, 1, broker.sub.unsubscribes)
	assert.Equal(t, 1, broker.sub.removes)
}

func TestPublish_JoinTimerExpiry(t *testing.T) {
	broker := &fakeBroker{joinSilent: true}
	p := NewPublisher(broker, zap.NewNop(), 20*time.Millisecond)

	err := p.Publish(context.Background(), "realtime:device:x", Message{Type: "alert"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out while subscribing")
	assert.Empty(t, broker.sent)
	assert.Equal(t, 1, broker.sub.unsubscribes)
	assert.Equal(t, 1, broker.sub.removes)
}

func TestPublish_SendError(t *testing.T) {
	broker := &fakeBroker{joinStatus: StatusSubscribed, sendErr: errors.New("broker down")}
	p := NewPublisher(broker, zap.NewNop(), time.Second)

	err := p.Publish(context.Background(), "realtime:device:x", Message{Type: "alert"})
	require.Error(t, err)
	assert.Equal(t, 1, broker.sub.unsubscribes)
	assert.Equal(t, 1, broker.sub.removes)
}

func TestPublish_SubscribeError(t *testing.T) {
	broker := &fakeBroker{subscribeErr: errors.New("dial failed")}
	p := NewPublisher(broker, zap.NewNop(), time.Second)

	err := p.Publish(context.Background(), "realtime:device:x", Message{Type: "alert"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subscribe failed")
}

func TestNormalize(t *testing.T) {
	t.Run("structural types pass through", func(t *testing.T) {
		m := Message{Type: TypeBroadcast, Event: "custom", Payload: "x"}
		assert.Equal(t, m, Normalize(m))

		m = Message{Type: TypePresence}
		assert.Equal(t, m, Normalize(m))

		m = Message{Type: TypeChangeFeed}
		assert.Equal(t, m, Normalize(m))
	})

	t.Run("legacy event wrapped as broadcast", func(t *testing.T) {
		got := Normalize(Message{Type: "alert", Payload: map[string]any{"id": 1}})
		assert.Equal(t, TypeBroadcast, got.Type)
		assert.Equal(t, "alert", got.Event)
		assert.Equal(t, map[string]any{"id": 1}, got.Payload)
	})

	t.Run("legacy event without payload uses extra fields", func(t *testing.T) {
		got := Normalize(Message{Type: "alert", Extra: map[string]any{"id": 7}})
		assert.Equal(t, TypeBroadcast, got.Type)
		assert.Equal(t, map[string]any{"id": 7}, got.Payload)
	})

	t.Run("legacy event with nothing has null payload", func(t *testing.T) {
		got := Normalize(Message{Type: "ping"})
		assert.Equal(t, TypeBroadcast, got.Type)
		assert.Equal(t, "ping", got.Event)
		assert.Nil(t, got.Payload)
	})
}
