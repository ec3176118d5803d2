package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"luxuryestates/internal/model"
	"luxuryestates/internal/service/review"
)

type ReviewService interface {
	Create(ctx context.Context, userID, propertyID int64, in review.CreateInput) (*model.Review, error)
	Delete(ctx context.Context, userID int64, role string, propertyID, reviewID int64) error
}

type ReviewHandler struct {
	reviews ReviewService
	logger  *zap.Logger
}

func NewReviewHandler(reviews ReviewService, logger *zap.Logger) *ReviewHandler {
	return &ReviewHandler{reviews: reviews, logger: logger}
}

// Create POST /properties/:id/reviews
func (h *ReviewHandler) Create(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}
	propertyID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req review.CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	r, err := h.reviews.Create(c.Request.Context(), userID, propertyID, req)
	if err != nil {
		respondError(c, h.logger, "failed to create review", err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

// Delete DELETE /properties/:id/reviews/:reviewId
func (h *ReviewHandler) Delete(c *gin.Context) {
	userID, role, ok := currentUser(c)
	if !ok {
		return
	}
	propertyID, ok := pathID(c, "id")
	if !ok {
		return
	}
	reviewID, ok := pathID(c, "reviewId")
	if !ok {
		return
	}

	if err := h.reviews.Delete(c.Request.Context(), userID, role, propertyID, reviewID); err != nil {
		respondError(c, h.logger, "failed to delete review", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
