package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"luxuryestates/internal/model"
	"luxuryestates/internal/service/booking"
	"luxuryestates/internal/service/contact"
	"luxuryestates/pkg/logger"
	"luxuryestates/pkg/storage"
)

// AuthMiddleware 写入 gin.Context 的身份字段
const (
	ContextUserID = "user_id"
	ContextRole   = "role"
)

// statusFor 把领域错误映射成 HTTP 状态码
func statusFor(err error) int {
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, model.ErrEmailExists):
		return http.StatusConflict
	case errors.Is(err, model.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, booking.ErrInvalidSignature):
		return http.StatusBadRequest
	case errors.Is(err, booking.ErrNotConfigured),
		errors.Is(err, storage.ErrNotConfigured),
		errors.Is(err, contact.ErrNoInbox):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError 5xx 只返回通用信息，细节写日志
func respondError(c *gin.Context, log *zap.Logger, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.WithTrace(c.Request.Context(), log).Error(msg,
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	body := gin.H{"error": err.Error()}
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		body["error"] = ve.Message
		if ve.Field != "" {
			body["field"] = ve.Field
		}
	}
	c.JSON(status, body)
}

// currentUser 读取 AuthMiddleware 写入的身份
func currentUser(c *gin.Context) (int64, string, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return 0, "", false
	}
	userID, ok := v.(int64)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid user_id"})
		return 0, "", false
	}
	return userID, c.GetString(ContextRole), true
}
