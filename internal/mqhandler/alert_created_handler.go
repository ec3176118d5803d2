package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	mqcontracts "luxuryestates/contracts/mq"
	"luxuryestates/internal/model"
	"luxuryestates/pkg/logger"
	"luxuryestates/pkg/mq"
	"luxuryestates/pkg/util"
)

type WelcomeSender interface {
	SendWelcome(ctx context.Context, alert model.Alert) (model.BatchResult, error)
}

// AlertCreatedHandler 消费 alert.created，给新订阅者发欢迎邮件
type AlertCreatedHandler struct {
	sender WelcomeSender
	policy *failurePolicy
	logger *zap.Logger
}

func NewAlertCreatedHandler(sender WelcomeSender, retries RetryTracker, dlq DeadLetterPublisher, maxRetries int, logger *zap.Logger) *AlertCreatedHandler {
	return &AlertCreatedHandler{
		sender: sender,
		policy: &failurePolicy{
			routingKey: mq.RoutingKeyAlertCreated,
			retries:    retries,
			dlq:        dlq,
			maxRetries: int64(maxRetries),
			logger:     logger,
		},
		logger: logger,
	}
}

func (h *AlertCreatedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.AlertCreatedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return h.policy.fail(ctx, "", raw, err)
	}

	category, err := model.ParseCategory(p.PropertyType)
	if err != nil {
		return h.policy.fail(ctx, "", raw, fmt.Errorf("alert %d: %w", p.AlertID, err))
	}

	log := logger.WithTrace(ctx, h.logger).With(zap.Int64("alert_id", p.AlertID))
	log.Info("Handling alert.created event", zap.String("category", string(category)))

	retryKey := util.FormatRetryKey("alert_created", strconv.FormatInt(p.AlertID, 10))
	result, err := h.sender.SendWelcome(ctx, model.Alert{
		ID:           p.AlertID,
		Email:        p.Email,
		PropertyType: category,
		CreatedAt:    p.CreatedAt,
	})
	if err != nil {
		return h.policy.fail(ctx, retryKey, raw, err)
	}

	h.policy.succeed(ctx, retryKey)
	log.Info("Welcome notification processed",
		zap.Int("sent", result.Sent()),
		zap.Int("failed", result.Failed()),
		zap.Int("skipped", result.Skipped()),
	)
	return nil
}
