package mailer

import (
	"context"

	"go.uber.org/zap"

	"luxuryestates/pkg/circuitbreaker"
)

// BreakerSender 在传输连续失败后短路，避免 SMTP 故障时每个收件人都等到超时。
// 收件人被拒不算传输失败，不会让其他收件人被短路
type BreakerSender struct {
	next Sender
	cb   *circuitbreaker.CircuitBreaker
}

func NewBreakerSender(next Sender, cfg circuitbreaker.Config, logger *zap.Logger) *BreakerSender {
	if cfg.OnStateChange == nil && logger != nil {
		cfg.OnStateChange = func(from, to circuitbreaker.State) {
			logger.Warn("Mail transport circuit state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		}
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return !IsRecipientError(err) }
	}
	return &BreakerSender{next: next, cb: circuitbreaker.NewCircuitBreaker(cfg)}
}

func (b *BreakerSender) Send(ctx context.Context, msg Message) error {
	return b.cb.Execute(func() error {
		return b.next.Send(ctx, msg)
	})
}

// State 返回当前熔断状态，/readyz 会带上它
func (b *BreakerSender) State() circuitbreaker.State {
	return b.cb.GetState()
}
