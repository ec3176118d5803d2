package booking

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"luxuryestates/internal/model"
	"luxuryestates/pkg/logger"
)

const dateLayout = "2006-01-02"

type CheckoutRequest struct {
	ProductName string
	Amount      int64
	SuccessURL  string
	CancelURL   string
	Metadata    map[string]string
}

type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CompletedCheckout 从 webhook 中取出的支付结果，metadata 保持原始字符串
type CompletedCheckout struct {
	SessionID     string
	AmountTotal   int64
	Currency      string
	PaymentStatus string
	PropertyID    string
	UserID        string
	Checkin       string
	Checkout      string
	Guests        int
}

// Gateway 支付渠道
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	ParseWebhook(payload []byte, signature string) (*CompletedCheckout, error)
}

type Store interface {
	Create(ctx context.Context, b *model.Booking) (bool, error)
}

type PropertyGetter interface {
	GetByID(ctx context.Context, id int64) (*model.Property, error)
}

type CheckoutInput struct {
	PropertyID int64  `json:"propertyId" validate:"required,gt=0"`
	Checkin    string `json:"checkin" validate:"required,datetime=2006-01-02"`
	Checkout   string `json:"checkout" validate:"required,datetime=2006-01-02"`
	Guests     int    `json:"guests" validate:"required,gte=1,lte=20"`
	// Amount 最小货币单位（分）
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

type Service struct {
	gateway    Gateway
	store      Store
	properties PropertyGetter
	clientURL  string
	logger     *zap.Logger
}

func NewService(gateway Gateway, store Store, properties PropertyGetter, clientURL string, logger *zap.Logger) *Service {
	return &Service{
		gateway:    gateway,
		store:      store,
		properties: properties,
		clientURL:  strings.TrimRight(clientURL, "/"),
		logger:     logger,
	}
}

// Checkout 创建支付会话；origin 为空时使用配置的前端地址
func (s *Service) Checkout(ctx context.Context, userID int64, in CheckoutInput, origin string) (*CheckoutSession, error) {
	if err := model.Validate(in); err != nil {
		return nil, err
	}
	checkin, _ := time.Parse(dateLayout, in.Checkin)
	checkout, _ := time.Parse(dateLayout, in.Checkout)
	if !checkout.After(checkin) {
		return nil, model.NewValidationError("checkout", "must be after checkin")
	}

	if _, err := s.properties.GetByID(ctx, in.PropertyID); err != nil {
		return nil, model.Persistence("get property", err)
	}

	base := strings.TrimRight(origin, "/")
	if base == "" {
		base = s.clientURL
	}

	propertyID := strconv.FormatInt(in.PropertyID, 10)
	sess, err := s.gateway.CreateCheckoutSession(ctx, CheckoutRequest{
		ProductName: "Booking Payment for Property " + propertyID,
		Amount:      in.Amount,
		SuccessURL:  base + "/booking-success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:   base + "/booking-cancelled",
		Metadata: map[string]string{
			"propertyId": propertyID,
			"userId":     strconv.FormatInt(userID, 10),
			"checkin":    in.Checkin,
			"checkout":   in.Checkout,
			"guests":     strconv.Itoa(in.Guests),
			"amount":     strconv.FormatInt(in.Amount, 10),
		},
	})
	if err != nil {
		return nil, err
	}

	logger.WithTrace(ctx, s.logger).Info("Checkout session created",
		zap.String("session_id", sess.ID),
		zap.Int64("property_id", in.PropertyID),
		zap.Int64("amount", in.Amount),
	)
	return sess, nil
}

// HandleWebhook 记录已完成的支付。重复投递的事件按 session id 去重
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	done, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		return err
	}
	if done == nil {
		return nil
	}

	b, err := toBooking(done)
	if err != nil {
		return err
	}

	created, err := s.store.Create(ctx, b)
	if err != nil {
		return model.Persistence("create booking", err)
	}

	log := logger.WithTrace(ctx, s.logger).With(zap.String("session_id", done.SessionID))
	if !created {
		log.Info("Duplicate checkout webhook ignored")
		return nil
	}
	log.Info("Booking saved",
		zap.Int64("booking_id", b.ID),
		zap.Int64("amount", b.Amount),
		zap.String("payment_status", b.PaymentStatus),
	)
	return nil
}

func toBooking(c *CompletedCheckout) (*model.Booking, error) {
	propertyID, err := strconv.ParseInt(c.PropertyID, 10, 64)
	if err != nil {
		return nil, model.NewValidationError("propertyId", fmt.Sprintf("invalid metadata %q", c.PropertyID))
	}
	checkin, err := time.Parse(dateLayout, c.Checkin)
	if err != nil {
		return nil, model.NewValidationError("checkin", "invalid metadata")
	}
	checkout, err := time.Parse(dateLayout, c.Checkout)
	if err != nil {
		return nil, model.NewValidationError("checkout", "invalid metadata")
	}

	b := &model.Booking{
		PropertyID:      propertyID,
		Checkin:         checkin,
		Checkout:        checkout,
		Guests:          c.Guests,
		Amount:          c.AmountTotal,
		Currency:        c.Currency,
		StripeSessionID: c.SessionID,
		PaymentStatus:   c.PaymentStatus,
	}
	if uid, err := strconv.ParseInt(c.UserID, 10, 64); err == nil && uid > 0 {
		b.UserID = &uid
	}
	return b, nil
}
