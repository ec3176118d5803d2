package mqhandler

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	mqcontracts "luxuryestates/contracts/mq"
	"luxuryestates/internal/model"
	"luxuryestates/pkg/logger"
	"luxuryestates/pkg/mq"
)

type FanoutRunner interface {
	FanOut(ctx context.Context, job mqcontracts.NotificationFanoutPayload) model.BatchResult
}

// NotificationFanoutHandler 消费 notification.fanout。
// 单个收件人失败只记录在结果里，消息总是 ack，重投由去重跳过已处理的收件人
type NotificationFanoutHandler struct {
	runner FanoutRunner
	policy *failurePolicy
	logger *zap.Logger
}

func NewNotificationFanoutHandler(runner FanoutRunner, retries RetryTracker, dlq DeadLetterPublisher, logger *zap.Logger) *NotificationFanoutHandler {
	return &NotificationFanoutHandler{
		runner: runner,
		policy: &failurePolicy{
			routingKey: mq.RoutingKeyNotificationFanout,
			retries:    retries,
			dlq:        dlq,
			logger:     logger,
		},
		logger: logger,
	}
}

func (h *NotificationFanoutHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var job mqcontracts.NotificationFanoutPayload
	if err := json.Unmarshal(raw, &job); err != nil {
		return h.policy.fail(ctx, "", raw, err)
	}
	if job.JobID == "" {
		return h.policy.fail(ctx, "", raw, errors.New("fanout job without job_id"))
	}
	if !model.Category(job.Category).Valid() {
		return h.policy.fail(ctx, "", raw, model.NewValidationError("category", "unknown category "+job.Category))
	}

	log := logger.WithTrace(ctx, h.logger).With(
		zap.String("job_id", job.JobID),
		zap.Int64("property_id", job.PropertyID),
	)
	log.Info("Handling notification.fanout event", zap.Int("destinations", len(job.Destinations)))

	result := h.runner.FanOut(ctx, job)
	log.Info("Fan-out finished",
		zap.Int("sent", result.Sent()),
		zap.Int("failed", result.Failed()),
		zap.Int("skipped", result.Skipped()),
	)
	return nil
}
