package mq

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// DLQ 消息头
const (
	HeaderOriginalError      = "x-original-error"
	HeaderOriginalRoutingKey = "x-original-routing-key"
	HeaderFailedAt           = "x-failed-at"
)

// DLQName alert.created -> alert.created.dlq
func DLQName(routingKey string) string {
	return routingKey + ".dlq"
}

// DeclareDLQQueue 为 routingKey 声明死信队列并绑定到 events.dlq
func DeclareDLQQueue(ch *amqp091.Channel, routingKey string) (amqp091.Queue, error) {
	q, err := ch.QueueDeclare(DLQName(routingKey), true, false, false, false, nil)
	if err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to declare DLQ queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, routingKey, DLQExchangeName, false, nil); err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to bind DLQ queue: %w", err)
	}
	return q, nil
}

// PublishToDLQ 原样转发失败的消息体，失败原因放在消息头里，方便人工重放
func (p *Publisher) PublishToDLQ(ctx context.Context, routingKey string, payload []byte, originalError string) error {
	now := time.Now().UTC()
	msg := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         payload,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    now,
		Headers: amqp091.Table{
			HeaderOriginalError:      originalError,
			HeaderOriginalRoutingKey: routingKey,
			HeaderFailedAt:           now.Format(time.RFC3339),
		},
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.channel.PublishWithContext(ctx, DLQExchangeName, routingKey, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", DLQName(routingKey), err)
	}
	return nil
}
