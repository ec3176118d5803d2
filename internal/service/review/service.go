package review

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"luxuryestates/internal/model"
	"luxuryestates/pkg/logger"
	"luxuryestates/pkg/rbac"
)

type Store interface {
	Create(ctx context.Context, rv *model.Review) error
	GetByID(ctx context.Context, id int64) (*model.Review, error)
	Delete(ctx context.Context, id int64) error
}

type CreateInput struct {
	Rating  int    `json:"rating" validate:"required,gte=1,lte=5"`
	Comment string `json:"comment" validate:"required,max=2000"`
}

type Service struct {
	store  Store
	logger *zap.Logger
}

func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Create 不存在的房源返回 ErrNotFound
func (s *Service) Create(ctx context.Context, userID, propertyID int64, in CreateInput) (*model.Review, error) {
	in.Comment = strings.TrimSpace(in.Comment)
	if err := model.Validate(in); err != nil {
		return nil, err
	}

	rv := &model.Review{
		PropertyID: propertyID,
		UserID:     userID,
		Rating:     in.Rating,
		Comment:    in.Comment,
	}
	if err := s.store.Create(ctx, rv); err != nil {
		return nil, model.Persistence("create review", err)
	}

	logger.WithTrace(ctx, s.logger).Info("Review created",
		zap.Int64("review_id", rv.ID),
		zap.Int64("property_id", propertyID),
		zap.Int("rating", rv.Rating),
	)
	return rv, nil
}

// Delete 作者或管理员可以删除；reviewID 必须属于 propertyID
func (s *Service) Delete(ctx context.Context, userID int64, role string, propertyID, reviewID int64) error {
	rv, err := s.store.GetByID(ctx, reviewID)
	if err != nil {
		return model.Persistence("get review", err)
	}
	if rv.PropertyID != propertyID {
		return model.ErrNotFound
	}
	if !rbac.CanModify(userID, role, rv.UserID, rbac.PermissionDeleteAnyReview) {
		return model.ErrForbidden
	}
	if err := s.store.Delete(ctx, reviewID); err != nil {
		return model.Persistence("delete review", err)
	}
	return nil
}
