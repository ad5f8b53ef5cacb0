package rabbitmq

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

type IPublisher interface {
	PublishTo(topic string, qos byte, retained bool, payload []byte) error
	Close()
}

type Publisher struct {
	client  mqtt.Client
	timeout time.Duration
	log     *zap.Logger
}

func NewPublisher(client mqtt.Client, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{client: client, timeout: 10 * time.Second, log: log}
}

// PublishTo waits for the broker ack (QoS ≥ 1) up to the publisher timeout.
func (p *Publisher) PublishTo(topic string, qos byte, retained bool, payload []byte) error {
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("publish %s: timeout after %s", topic, p.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	p.log.Debug("message published",
		zap.String("topic", topic),
		zap.Uint8("qos", qos),
		zap.Int("bytes", len(payload)))
	return nil
}

func (p *Publisher) Close() {
	CloseRabbitMQConn(p.client, p.log)
}
