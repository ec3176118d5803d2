package booking

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"luxuryestates/internal/model"
	"luxuryestates/pkg/config"
)

type fakeGateway struct {
	requests  []CheckoutRequest
	completed *CompletedCheckout
	parseErr  error
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	g.requests = append(g.requests, req)
	return &CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/cs_test_1"}, nil
}

func (g *fakeGateway) ParseWebhook([]byte, string) (*CompletedCheckout, error) {
	return g.completed, g.parseErr
}

type memBookings struct {
	bookings map[string]*model.Booking
}

func (m *memBookings) Create(_ context.Context, b *model.Booking) (bool, error) {
	if _, ok := m.bookings[b.StripeSessionID]; ok {
		return false, nil
	}
	b.ID = int64(len(m.bookings) + 1)
	m.bookings[b.StripeSessionID] = b
	return true, nil
}

type properties map[int64]bool

func (p properties) GetByID(_ context.Context, id int64) (*model.Property, error) {
	if !p[id] {
		return nil, model.ErrNotFound
	}
	return &model.Property{ID: id}, nil
}

func newBookingService(g Gateway) (*Service, *memBookings) {
	store := &memBookings{bookings: map[string]*model.Booking{}}
	return NewService(g, store, properties{7: true}, "https://luxury.example/", zap.NewNop()), store
}

func validCheckout() CheckoutInput {
	return CheckoutInput{PropertyID: 7, Checkin: "2024-07-01", Checkout: "2024-07-05", Guests: 2, Amount: 125000}
}

func TestCheckoutCreatesSessionWithMetadata(t *testing.T) {
	g := &fakeGateway{}
	svc, _ := newBookingService(g)

	sess, err := svc.Checkout(context.Background(), 42, validCheckout(), "")
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", sess.ID)

	require.Len(t, g.requests, 1)
	req := g.requests[0]
	assert.Equal(t, "Booking Payment for Property 7", req.ProductName)
	assert.Equal(t, int64(125000), req.Amount)
	assert.Equal(t, "https://luxury.example/booking-success?session_id={CHECKOUT_SESSION_ID}", req.SuccessURL)
	assert.Equal(t, "https://luxury.example/booking-cancelled", req.CancelURL)
	assert.Equal(t, map[string]string{
		"propertyId": "7",
		"userId":     "42",
		"checkin":    "2024-07-01",
		"checkout":   "2024-07-05",
		"guests":     "2",
		"amount":     "125000",
	}, req.Metadata)
}

func TestCheckoutPrefersRequestOrigin(t *testing.T) {
	g := &fakeGateway{}
	svc, _ := newBookingService(g)

	_, err := svc.Checkout(context.Background(), 42, validCheckout(), "http://localhost:3000")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000/booking-cancelled", g.requests[0].CancelURL)
}

func TestCheckoutValidation(t *testing.T) {
	cases := map[string]func(*CheckoutInput){
		"propertyId": func(in *CheckoutInput) { in.PropertyID = 0 },
		"checkin":    func(in *CheckoutInput) { in.Checkin = "07/01/2024" },
		"guests":     func(in *CheckoutInput) { in.Guests = 0 },
		"amount":     func(in *CheckoutInput) { in.Amount = -5 },
		"checkout":   func(in *CheckoutInput) { in.Checkout = "2024-06-30" },
	}
	for field, mutate := range cases {
		t.Run(field, func(t *testing.T) {
			g := &fakeGateway{}
			svc, _ := newBookingService(g)
			in := validCheckout()
			mutate(&in)

			_, err := svc.Checkout(context.Background(), 42, in, "")
			var verr *model.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, field, verr.Field)
			assert.Empty(t, g.requests)
		})
	}
}

func TestCheckoutUnknownProperty(t *testing.T) {
	svc, _ := newBookingService(&fakeGateway{})
	in := validCheckout()
	in.PropertyID = 99

	_, err := svc.Checkout(context.Background(), 42, in, "")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestHandleWebhookStoresBookingOnce(t *testing.T) {
	g := &fakeGateway{completed: &CompletedCheckout{
		SessionID: "cs_test_1", AmountTotal: 125000, Currency: "usd", PaymentStatus: "paid",
		PropertyID: "7", UserID: "42", Checkin: "2024-07-01", Checkout: "2024-07-05", Guests: 2,
	}}
	svc, store := newBookingService(g)

	require.NoError(t, svc.HandleWebhook(context.Background(), []byte("{}"), "sig"))
	require.NoError(t, svc.HandleWebhook(context.Background(), []byte("{}"), "sig"))

	require.Len(t, store.bookings, 1)
	b := store.bookings["cs_test_1"]
	assert.Equal(t, int64(7), b.PropertyID)
	assert.Equal(t, int64(125000), b.Amount)
	assert.Equal(t, "paid", b.PaymentStatus)
	require.NotNil(t, b.UserID)
	assert.Equal(t, int64(42), *b.UserID)
	assert.Equal(t, time.Date(2024, 7, 5, 0, 0, 0, 0, time.UTC), b.Checkout)
}

func TestHandleWebhookIgnoresOtherEvents(t *testing.T) {
	svc, store := newBookingService(&fakeGateway{})

	require.NoError(t, svc.HandleWebhook(context.Background(), []byte("{}"), "sig"))
	assert.Empty(t, store.bookings)
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	svc, _ := newBookingService(&fakeGateway{parseErr: ErrInvalidSignature})

	err := svc.HandleWebhook(context.Background(), []byte("{}"), "sig")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func sign(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

const completedEvent = `{
  "id": "evt_1",
  "object": "event",
  "api_version": "2020-08-27",
  "type": "checkout.session.completed",
  "data": {
    "object": {
      "id": "cs_test_9",
      "object": "checkout.session",
      "amount_total": 99000,
      "currency": "usd",
      "payment_status": "paid",
      "metadata": {"propertyId": "7", "checkin": "2024-07-01", "checkout": "2024-07-03", "guests": "3"}
    }
  }
}`

func TestStripeGatewayParsesSignedWebhook(t *testing.T) {
	g := NewStripeGateway(config.StripeConfig{WebhookSecret: "whsec_test"}, zap.NewNop())
	payload := []byte(completedEvent)

	done, err := g.ParseWebhook(payload, sign(payload, "whsec_test", time.Now()))
	require.NoError(t, err)
	require.NotNil(t, done)
	assert.Equal(t, "cs_test_9", done.SessionID)
	assert.Equal(t, int64(99000), done.AmountTotal)
	assert.Equal(t, "paid", done.PaymentStatus)
	assert.Equal(t, "7", done.PropertyID)
	assert.Equal(t, 3, done.Guests)

	_, err = g.ParseWebhook(payload, sign(payload, "whsec_other", time.Now()))
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestStripeGatewayRequiresKeys(t *testing.T) {
	g := NewStripeGateway(config.StripeConfig{}, zap.NewNop())

	_, err := g.CreateCheckoutSession(context.Background(), CheckoutRequest{})
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = g.ParseWebhook([]byte("{}"), "")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
