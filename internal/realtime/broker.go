package realtime

import "context"

// SubscribeStatus channel 订阅握手状态
type SubscribeStatus int

const (
	StatusSubscribed SubscribeStatus = iota
	StatusChannelError
	StatusTimedOut
	StatusClosed
)

func (s SubscribeStatus) String() string {
	switch s {
	case StatusSubscribed:
		return "SUBSCRIBED"
	case StatusChannelError:
		return "CHANNEL_ERROR"
	case StatusTimedOut:
		return "TIMED_OUT"
	case StatusClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// SendResult broker 发送结果状态
type SendResult string

const (
	SendOK       SendResult = "ok"
	SendTimedOut SendResult = "timed out"
)

// Subscription 一次 channel 订阅的句柄
// Unsubscribe 和 Remove 都是 best-effort 清理，由 Publisher 保证调用
type Subscription interface {
	// Status 返回握手状态流；至少会推送一个状态
	Status() <-chan SubscribeStatus
	Unsubscribe(ctx context.Context) error
	Remove(ctx context.Context) error
}

// Broker pub/sub broker 抽象（Redis Pub/Sub 或 MQTT）
type Broker interface {
	Subscribe(ctx context.Context, topic string) (Subscription, error)
	Send(ctx context.Context, topic string, msg Message) (SendResult, error)
}
