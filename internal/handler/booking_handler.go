package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"luxuryestates/internal/service/booking"
)

// Stripe 建议的 webhook body 上限
const maxWebhookBody = 65536

type BookingService interface {
	Checkout(ctx context.Context, userID int64, in booking.CheckoutInput, origin string) (*booking.CheckoutSession, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

type BookingHandler struct {
	bookings BookingService
	logger   *zap.Logger
}

func NewBookingHandler(bookings BookingService, logger *zap.Logger) *BookingHandler {
	return &BookingHandler{bookings: bookings, logger: logger}
}

// Checkout POST /bookings/checkout
func (h *BookingHandler) Checkout(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}

	var req booking.CheckoutInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	sess, err := h.bookings.Checkout(c.Request.Context(), userID, req, c.GetHeader("Origin"))
	if err != nil {
		respondError(c, h.logger, "failed to create checkout session", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": sess.ID, "url": sess.URL})
}

// Webhook POST /bookings/webhook，签名校验需要原始 body
func (h *BookingHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "failed to read body"})
		return
	}

	if err := h.bookings.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
		respondError(c, h.logger, "failed to process webhook", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
