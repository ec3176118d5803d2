package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"luxuryestates/internal/model"
	"luxuryestates/internal/service/contact"
)

type ContactSender interface {
	Send(ctx context.Context, userEmail string, in contact.Input) error
}

type UserLookup interface {
	Me(ctx context.Context, userID int64) (*model.User, error)
}

type ContactHandler struct {
	contact ContactSender
	users   UserLookup
	logger  *zap.Logger
}

func NewContactHandler(contact ContactSender, users UserLookup, logger *zap.Logger) *ContactHandler {
	return &ContactHandler{contact: contact, users: users, logger: logger}
}

// Send POST /contact-agent，回复地址取登录用户的邮箱
func (h *ContactHandler) Send(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}

	var req contact.Input
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	user, err := h.users.Me(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, "failed to load user", err)
		return
	}

	if err := h.contact.Send(c.Request.Context(), user.Email, req); err != nil {
		respondError(c, h.logger, "Failed to send message. Please try again.", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Message sent successfully!"})
}
