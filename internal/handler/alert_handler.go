package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"luxuryestates/internal/model"
)

type AlertCreator interface {
	CreateAlert(ctx context.Context, email, propertyType string) (*model.Alert, error)
}

type AlertHandler struct {
	alerts AlertCreator
	logger *zap.Logger
}

func NewAlertHandler(alerts AlertCreator, logger *zap.Logger) *AlertHandler {
	return &AlertHandler{alerts: alerts, logger: logger}
}

// Create POST /alerts，不需要登录
func (h *AlertHandler) Create(c *gin.Context) {
	var req struct {
		Email        string `json:"email"`
		PropertyType string `json:"propertyType"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	alert, err := h.alerts.CreateAlert(c.Request.Context(), req.Email, req.PropertyType)
	if err != nil {
		respondError(c, h.logger, "Failed to create alert. Please try again.", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Alert created! Check your email for confirmation.",
		"alert":   alert,
	})
}
