package realtime

// broker 的结构化消息类别
const (
	TypeBroadcast  = "broadcast"
	TypePresence   = "presence"
	TypeChangeFeed = "postgres_changes"
)

// Message 发往 realtime channel 的消息（显式 tagged variant，
// 取代按运行时形状猜测的旧逻辑）
type Message struct {
	Type    string         `json:"type"`
	Event   string         `json:"event,omitempty"`
	Payload any            `json:"payload,omitempty"`
	Extra   map[string]any `json:"-"`
}

// Normalize 归一化消息：
// 结构化类别（broadcast/presence/change-feed）原样透传；
// 旧式事件包装为 broadcast，event 取原 type，payload 优先取显式
// payload 字段，否则取剩余字段，都没有则为 null
func Normalize(m Message) Message {
	switch m.Type {
	case TypeBroadcast, TypePresence, TypeChangeFeed:
		return m
	}

	payload := m.Payload
	if payload == nil && len(m.Extra) > 0 {
		payload = m.Extra
	}

	return Message{
		Type:    TypeBroadcast,
		Event:   m.Type,
		Payload: payload,
	}
}
