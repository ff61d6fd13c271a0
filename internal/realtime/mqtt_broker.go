package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/klienn/swinetrack/internal/config"
)

// MQTTBroker 基于 MQTT 的 broker 实现（可选，部署在已有 MQTT 基础设施上时使用）
// MQTT 没有订阅者计数，发布成功一律映射为 "ok"
type MQTTBroker struct {
	client mqtt.Client
	qos    byte
	logger *zap.Logger
}

// NewMQTTBroker 连接 MQTT broker
func NewMQTTBroker(cfg *config.MQTTConfig, logger *zap.Logger) (*MQTTBroker, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &MQTTBroker{client: client, qos: cfg.QoS, logger: logger}, nil
}

// Subscribe 订阅 topic；订阅回执通过状态流推送
func (b *MQTTBroker) Subscribe(_ context.Context, topic string) (Subscription, error) {
	status := make(chan SubscribeStatus, 1)

	go func() {
		token := b.client.Subscribe(topic, b.qos, func(_ mqtt.Client, _ mqtt.Message) {
			// Publisher 只负责广播，收到的消息直接丢弃
		})
		token.Wait()
		if err := token.Error(); err != nil {
			b.logger.Warn("mqtt subscribe failed",
				zap.String("topic", topic),
				zap.Error(err),
			)
			status <- StatusChannelError
			return
		}
		status <- StatusSubscribed
	}()

	return &mqttSubscription{client: b.client, topic: topic, status: status}, nil
}

// Send 发布消息（JSON 编码，不保留）
func (b *MQTTBroker) Send(_ context.Context, topic string, msg Message) (SendResult, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal realtime message: %w", err)
	}

	token := b.client.Publish(topic, b.qos, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return "", err
	}
	return SendOK, nil
}

// Disconnect 断开连接
func (b *MQTTBroker) Disconnect() {
	b.client.Disconnect(250)
}

type mqttSubscription struct {
	client mqtt.Client
	topic  string
	status chan SubscribeStatus
}

func (s *mqttSubscription) Status() <-chan SubscribeStatus {
	return s.status
}

func (s *mqttSubscription) Unsubscribe(_ context.Context) error {
	token := s.client.Unsubscribe(s.topic)
	token.Wait()
	return token.Error()
}

func (s *mqttSubscription) Remove(_ context.Context) error {
	// MQTT 没有独立的 channel 句柄需要释放
	return nil
}
