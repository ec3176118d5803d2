package mq

import (
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// 业务事件走 events，处理失败的消息转到 events.dlq，两者都是 topic exchange
const (
	ExchangeName    = "events"
	DLQExchangeName = "events.dlq"
)

// Routing keys，payload 定义在 contracts/mq
const (
	RoutingKeyAlertCreated       = "alert.created"
	RoutingKeyNotificationFanout = "notification.fanout"
)

const heartbeat = 10 * time.Second

// NewConnection 建立连接；name 会显示在 RabbitMQ 管理界面
func NewConnection(url, name string) (*amqp091.Connection, error) {
	props := amqp091.NewConnectionProperties()
	props.SetClientConnectionName(name)

	conn, err := amqp091.DialConfig(url, amqp091.Config{
		Heartbeat:  heartbeat,
		Properties: props,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

// DeclareExchanges 声明业务 exchange 和死信 exchange，重复声明是幂等的
func DeclareExchanges(ch *amqp091.Channel) error {
	for _, name := range []string{ExchangeName, DLQExchangeName} {
		if err := ch.ExchangeDeclare(
			name,
			"topic",
			true,  // durable
			false, // auto-deleted
			false, // internal
			false, // no-wait
			nil,
		); err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", name, err)
		}
	}
	return nil
}
