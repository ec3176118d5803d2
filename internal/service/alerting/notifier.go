package alerting

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"luxuryestates/internal/model"
	"luxuryestates/pkg/logger"
	"luxuryestates/pkg/mailer"
	"luxuryestates/pkg/metrics"
)

// Notification 一次投递的输入；Destination 已经过校验
type Notification struct {
	Kind        model.NotificationKind
	Destination string
	AlertID     int64
	Category    model.Category
	Properties  []model.PropertySnapshot
}

type Notifier struct {
	sender   mailer.Sender
	renderer *Renderer
	logger   *zap.Logger
	now      func() time.Time
}

func NewNotifier(sender mailer.Sender, renderer *Renderer, logger *zap.Logger) *Notifier {
	return &Notifier{
		sender:   sender,
		renderer: renderer,
		logger:   logger,
		now:      time.Now,
	}
}

// Notify 只尝试发送一次，失败记录在返回值里，不会返回 error 也不会 panic
func (n *Notifier) Notify(ctx context.Context, note Notification) (outcome model.DeliveryOutcome) {
	outcome = model.DeliveryOutcome{
		Destination: note.Destination,
		AlertID:     note.AlertID,
		AttemptedAt: n.now(),
	}
	log := logger.WithTrace(ctx, n.logger).With(
		zap.String("kind", string(note.Kind)),
		zap.String("destination", note.Destination),
		zap.Int64("alert_id", note.AlertID),
	)

	defer func() {
		if r := recover(); r != nil {
			outcome.Status = model.DeliveryFailed
			outcome.Error = fmt.Sprintf("panic: %v", r)
			log.Error("Notification send panicked", zap.Any("panic", r))
		}
		metrics.IncrementNotificationDelivery(string(note.Kind), string(outcome.Status))
	}()

	html, err := n.renderer.Render(note.Kind, note.Category, note.Properties)
	if err != nil {
		outcome.Status = model.DeliveryFailed
		outcome.Error = err.Error()
		log.Error("Failed to render notification", zap.Error(err))
		return outcome
	}

	err = n.sender.Send(ctx, mailer.Message{
		To:      note.Destination,
		Subject: Subject(note.Kind, note.Category),
		HTML:    html,
	})
	if err != nil {
		outcome.Status = model.DeliveryFailed
		outcome.Error = err.Error()
		log.Warn("Notification delivery failed", zap.Error(err))
		return outcome
	}

	outcome.Status = model.DeliverySent
	log.Info("Notification sent", zap.Int("properties", len(note.Properties)))
	return outcome
}
