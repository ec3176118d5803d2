package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"

	"luxuryestates/pkg/circuitbreaker"
	"luxuryestates/pkg/config"
)

const eventCheckoutCompleted = "checkout.session.completed"

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrNotConfigured    = errors.New("stripe is not configured")
)

// StripeGateway 通过 Stripe Checkout 收款
type StripeGateway struct {
	sessions      *session.Client
	webhookSecret string
	currency      string
	cb            *circuitbreaker.CircuitBreaker
}

func NewStripeGateway(cfg config.StripeConfig, logger *zap.Logger) *StripeGateway {
	cbCfg := circuitbreaker.DefaultConfig()
	cbCfg.OnStateChange = func(from, to circuitbreaker.State) {
		logger.Warn("Stripe circuit state changed",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}

	g := &StripeGateway{
		webhookSecret: cfg.WebhookSecret,
		currency:      cfg.Currency,
		cb:            circuitbreaker.NewCircuitBreaker(cbCfg),
	}
	if cfg.SecretKey != "" {
		g.sessions = &session.Client{B: stripe.GetBackend(stripe.APIBackend), Key: cfg.SecretKey}
	}
	if g.currency == "" {
		g.currency = string(stripe.CurrencyUSD)
	}
	return g
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if g.sessions == nil {
		return nil, ErrNotConfigured
	}

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(g.currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.ProductName),
				},
				UnitAmount: stripe.Int64(req.Amount),
			},
			Quantity: stripe.Int64(1),
		}},
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	var s *stripe.CheckoutSession
	err := g.cb.Execute(func() error {
		var err error
		s, err = g.sessions.New(params)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

// ParseWebhook 校验签名；非 checkout.session.completed 事件返回 nil
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*CompletedCheckout, error) {
	if g.webhookSecret == "" {
		return nil, ErrNotConfigured
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if string(event.Type) != eventCheckoutCompleted {
		return nil, nil
	}

	var s stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}

	guests, _ := strconv.Atoi(s.Metadata["guests"])
	return &CompletedCheckout{
		SessionID:     s.ID,
		AmountTotal:   s.AmountTotal,
		Currency:      string(s.Currency),
		PaymentStatus: string(s.PaymentStatus),
		PropertyID:    s.Metadata["propertyId"],
		UserID:        s.Metadata["userId"],
		Checkin:       s.Metadata["checkin"],
		Checkout:      s.Metadata["checkout"],
		Guests:        guests,
	}, nil
}
