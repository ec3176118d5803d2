package mqhandler

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"luxuryestates/pkg/logger"
	"luxuryestates/pkg/util"
)

type RetryTracker interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, routingKey string, payload []byte, originalError string) error
}

// failurePolicy 统一处理 handler 的失败：
// 不可重试 -> DLQ 后 ack；可重试 -> nack，超过 maxRetries 后 DLQ
type failurePolicy struct {
	routingKey string
	retries    RetryTracker
	dlq        DeadLetterPublisher
	maxRetries int64
	logger     *zap.Logger
}

func (p *failurePolicy) fail(ctx context.Context, retryKey string, raw json.RawMessage, err error) error {
	log := logger.WithTrace(ctx, p.logger).With(zap.String("routing_key", p.routingKey))
	retryable, errType := util.IsRetryableError(err)

	if retryable && retryKey != "" {
		count, cerr := p.retries.IncrementAndGet(ctx, retryKey)
		if cerr != nil {
			// 计数不可用时继续重试
			log.Warn("Retry counter unavailable", zap.Error(cerr))
			return err
		}
		if util.ShouldRetry(count, p.maxRetries, true) {
			log.Warn("Retryable failure, message will be redelivered",
				zap.String("error_type", errType),
				zap.Int64("retry", count),
				zap.Error(err),
			)
			return err
		}
		log.Error("Max retries exceeded", zap.Int64("retry", count), zap.Error(err))
	}

	if dlqErr := p.dlq.PublishToDLQ(ctx, p.routingKey, raw, errType+": "+err.Error()); dlqErr != nil {
		log.Error("Failed to publish to DLQ, requeueing", zap.Error(dlqErr))
		return err
	}
	if retryKey != "" {
		_ = p.retries.Reset(ctx, retryKey)
	}
	log.Error("Message moved to DLQ",
		zap.String("error_type", errType),
		zap.Bool("retryable", retryable),
		zap.Error(err),
	)
	return nil
}

func (p *failurePolicy) succeed(ctx context.Context, retryKey string) {
	if err := p.retries.Reset(ctx, retryKey); err != nil {
		logger.WithTrace(ctx, p.logger).Debug("Failed to reset retry counter", zap.Error(err))
	}
}
