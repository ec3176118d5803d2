package outbox

import (
	"context"
	"encoding/json"
	"fmt"
)

// Message 待写入 outbox 的一条任务
type Message struct {
	AggregateType string
	AggregateID   int64
	RoutingKey    string
	Payload       any
}

// Enqueue 把 msg 写入 outbox（默认使用连接池，不在事务里）
func (r *Repository) Enqueue(ctx context.Context, msg Message) (*Event, error) {
	return r.EnqueueWith(ctx, r.db, msg)
}

// EnqueueWith 同 Enqueue，q 可以是业务事务
func (r *Repository) EnqueueWith(ctx context.Context, q Querier, msg Message) (*Event, error) {
	if msg.RoutingKey == "" {
		return nil, fmt.Errorf("outbox message for %s#%d has no routing key", msg.AggregateType, msg.AggregateID)
	}

	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msg.RoutingKey, err)
	}

	id := msg.AggregateID
	event := &Event{
		AggregateType: msg.AggregateType,
		AggregateID:   &id,
		RoutingKey:    msg.RoutingKey,
		Payload:       raw,
		Status:        StatusPending,
	}
	if err := r.InsertEvent(ctx, q, event); err != nil {
		return nil, err
	}
	return event, nil
}
