package alerting

import (
	"context"

	mqcontracts "luxuryestates/contracts/mq"
	"luxuryestates/pkg/mq"
	"luxuryestates/pkg/outbox"
)

const (
	aggregateAlert    = "alert"
	aggregateProperty = "property"
)

// OutboxQueue 把任务写入 outbox，由 Dispatcher 发布到 MQ
type OutboxQueue struct {
	repo *outbox.Repository
}

func NewOutboxQueue(repo *outbox.Repository) *OutboxQueue {
	return &OutboxQueue{repo: repo}
}

func (q *OutboxQueue) EnqueueWelcome(ctx context.Context, payload mqcontracts.AlertCreatedPayload) error {
	_, err := q.repo.Enqueue(ctx, outbox.Message{
		AggregateType: aggregateAlert,
		AggregateID:   payload.AlertID,
		RoutingKey:    mq.RoutingKeyAlertCreated,
		Payload:       payload,
	})
	return err
}

func (q *OutboxQueue) EnqueueFanout(ctx context.Context, payload mqcontracts.NotificationFanoutPayload) error {
	_, err := q.repo.Enqueue(ctx, outbox.Message{
		AggregateType: aggregateProperty,
		AggregateID:   payload.PropertyID,
		RoutingKey:    mq.RoutingKeyNotificationFanout,
		Payload:       payload,
	})
	return err
}
