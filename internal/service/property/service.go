package property

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"luxuryestates/internal/model"
	"luxuryestates/internal/service/alerting"
	"luxuryestates/pkg/logger"
	"luxuryestates/pkg/metrics"
	"luxuryestates/pkg/rbac"
	"luxuryestates/pkg/storage"
)

const (
	imageFolder = "properties"
	tourFolder  = "virtual-tours"
)

type Store interface {
	GetByID(ctx context.Context, id int64) (*model.Property, error)
	Update(ctx context.Context, p *model.Property) error
	Delete(ctx context.Context, id int64) ([]model.Image, error)
	Search(ctx context.Context, filter model.PropertyFilter) ([]model.Property, error)
}

// Creator 持久化新房源并触发通知
type Creator interface {
	CreateProperty(ctx context.Context, p *model.Property) (alerting.Dispatch, error)
}

type ReviewLister interface {
	ListByProperty(ctx context.Context, propertyID int64) ([]model.Review, error)
}

type ImageStore interface {
	Upload(ctx context.Context, folder, filename, contentType string, body io.Reader) (storage.Object, error)
	Destroy(ctx context.Context, storageID string) error
}

type SearchCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
	Generation(ctx context.Context) (int64, error)
	Bump(ctx context.Context) error
}

// Actor 当前登录用户
type Actor struct {
	UserID int64
	Role   string
}

// File 一个待上传的文件
type File struct {
	Name        string
	ContentType string
	Body        io.Reader
}

type CreateInput struct {
	Title       string `json:"title" validate:"required,max=200"`
	Price       int64  `json:"price" validate:"gte=0"`
	Description string `json:"description" validate:"max=5000"`
	Location    string `json:"location" validate:"max=200"`
	Bedrooms    int    `json:"bedrooms" validate:"gte=0,lte=100"`
	Bathrooms   int    `json:"bathrooms" validate:"gte=0,lte=100"`
	Sqft        int    `json:"sqft" validate:"gte=0"`
	Category    string `json:"category" validate:"required,category"`
	Link        string `json:"link" validate:"omitempty,url"`
}

// UpdateInput 只覆盖非 nil 字段
type UpdateInput struct {
	Title       *string `json:"title" validate:"omitempty,min=1,max=200"`
	Price       *int64  `json:"price" validate:"omitempty,gte=0"`
	Description *string `json:"description" validate:"omitempty,max=5000"`
	Location    *string `json:"location" validate:"omitempty,max=200"`
	Bedrooms    *int    `json:"bedrooms" validate:"omitempty,gte=0,lte=100"`
	Bathrooms   *int    `json:"bathrooms" validate:"omitempty,gte=0,lte=100"`
	Sqft        *int    `json:"sqft" validate:"omitempty,gte=0"`
	Category    *string `json:"category" validate:"omitempty,category"`
}

type Service struct {
	store   Store
	creator Creator
	reviews ReviewLister
	images  ImageStore
	cache   SearchCache
	logger  *zap.Logger
}

func NewService(store Store, creator Creator, reviews ReviewLister, images ImageStore, logger *zap.Logger) *Service {
	return &Service{
		store:   store,
		creator: creator,
		reviews: reviews,
		images:  images,
		logger:  logger,
	}
}

// WithCache 开启搜索结果缓存
func (s *Service) WithCache(cache SearchCache) *Service {
	s.cache = cache
	return s
}

// Create 上传图片后创建房源。必须正好 3 张或 5 张图片；持久化失败时删除已上传的图片
func (s *Service) Create(ctx context.Context, actor Actor, in CreateInput, files []File) (*model.Property, alerting.Dispatch, error) {
	if err := model.Validate(in); err != nil {
		return nil, alerting.Dispatch{}, err
	}
	if len(files) != 3 && len(files) != 5 {
		return nil, alerting.Dispatch{}, model.NewValidationError("images", "please upload exactly 3 or 5 images")
	}

	uploaded, err := s.uploadAll(ctx, imageFolder, files)
	if err != nil {
		return nil, alerting.Dispatch{}, err
	}

	p := &model.Property{
		Title:       strings.TrimSpace(in.Title),
		Price:       in.Price,
		Description: in.Description,
		Location:    in.Location,
		Bedrooms:    in.Bedrooms,
		Bathrooms:   in.Bathrooms,
		Sqft:        in.Sqft,
		Category:    model.Category(in.Category),
		Link:        in.Link,
		Images:      uploaded,
		OwnerID:     actor.UserID,
	}

	dispatch, err := s.creator.CreateProperty(ctx, p)
	if err != nil {
		s.destroyAll(ctx, uploaded)
		return nil, alerting.Dispatch{}, err
	}

	s.invalidate(ctx)
	return p, dispatch, nil
}

// Get 返回房源及其评论
func (s *Service) Get(ctx context.Context, id int64) (*model.Property, error) {
	p, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, model.Persistence("get property", err)
	}
	reviews, err := s.reviews.ListByProperty(ctx, id)
	if err != nil {
		return nil, model.Persistence("list reviews", err)
	}
	p.Reviews = reviews
	return p, nil
}

// Update 覆盖给定字段，追加新图片；tour 非 nil 时替换 virtual tour
func (s *Service) Update(ctx context.Context, actor Actor, id int64, in UpdateInput, files []File, tour *File) (*model.Property, error) {
	if err := model.Validate(in); err != nil {
		return nil, err
	}

	p, err := s.loadForModify(ctx, actor, id, rbac.PermissionUpdateAnyProperty)
	if err != nil {
		return nil, err
	}
	applyUpdate(p, in)

	uploaded, err := s.uploadAll(ctx, imageFolder, files)
	if err != nil {
		return nil, err
	}
	p.Images = append(p.Images, uploaded...)

	var oldTour *model.Image
	if tour != nil {
		obj, err := s.upload(ctx, tourFolder, *tour)
		if err != nil {
			s.destroyAll(ctx, uploaded)
			return nil, err
		}
		uploaded = append(uploaded, obj)
		oldTour = p.VirtualTour
		p.VirtualTour = &obj
	}

	if err := s.store.Update(ctx, p); err != nil {
		s.destroyAll(ctx, uploaded)
		metrics.IncrementPropertyMutation("update", "error")
		return nil, model.Persistence("update property", err)
	}
	metrics.IncrementPropertyMutation("update", "ok")

	if oldTour != nil {
		s.destroyAll(ctx, []model.Image{*oldTour})
	}
	s.invalidate(ctx)
	return p, nil
}

// DeleteImage 删除第 index 张图片
func (s *Service) DeleteImage(ctx context.Context, actor Actor, id int64, index int) error {
	p, err := s.loadForModify(ctx, actor, id, rbac.PermissionUpdateAnyProperty)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(p.Images) {
		return model.NewValidationError("index", "invalid image index")
	}

	removed := p.Images[index]
	p.Images = append(p.Images[:index:index], p.Images[index+1:]...)
	if err := s.store.Update(ctx, p); err != nil {
		return model.Persistence("delete image", err)
	}

	s.destroyAll(ctx, []model.Image{removed})
	s.invalidate(ctx)
	return nil
}

func (s *Service) DeleteVirtualTour(ctx context.Context, actor Actor, id int64) error {
	p, err := s.loadForModify(ctx, actor, id, rbac.PermissionUpdateAnyProperty)
	if err != nil {
		return err
	}
	if p.VirtualTour == nil {
		return model.NewValidationError("virtualTour", "no virtual tour found")
	}

	removed := *p.VirtualTour
	p.VirtualTour = nil
	if err := s.store.Update(ctx, p); err != nil {
		return model.Persistence("delete virtual tour", err)
	}

	s.destroyAll(ctx, []model.Image{removed})
	s.invalidate(ctx)
	return nil
}

// Delete 删除房源，评论随外键级联删除；存储中的文件尽力删除
func (s *Service) Delete(ctx context.Context, actor Actor, id int64) error {
	if _, err := s.loadForModify(ctx, actor, id, rbac.PermissionDeleteAnyProperty); err != nil {
		return err
	}

	files, err := s.store.Delete(ctx, id)
	if err != nil {
		metrics.IncrementPropertyMutation("delete", "error")
		return model.Persistence("delete property", err)
	}
	metrics.IncrementPropertyMutation("delete", "ok")

	s.destroyAll(ctx, files)
	s.invalidate(ctx)
	return nil
}

// Search 按地点、分类和价格区间搜索，新房源在前
func (s *Service) Search(ctx context.Context, filter model.PropertyFilter) ([]model.Property, error) {
	if filter.Category != "" && !filter.Category.Valid() {
		return nil, model.NewValidationError("category", "unknown category")
	}
	if filter.PriceRange != "" {
		if _, _, ok := filter.PriceRange.Bounds(); !ok {
			return nil, model.NewValidationError("priceRange", "must be one of 1-3, 3-5, 5+")
		}
	}
	filter.Location = strings.TrimSpace(filter.Location)

	log := logger.WithTrace(ctx, s.logger)
	key := ""
	if s.cache != nil {
		gen, err := s.cache.Generation(ctx)
		if err == nil {
			key = searchKey(gen, filter)
			var cached []model.Property
			hit, err := s.cache.Get(ctx, key, &cached)
			if err == nil && hit {
				return cached, nil
			}
			if err != nil {
				log.Warn("Search cache read failed", zap.Error(err))
			}
		} else {
			log.Warn("Search cache generation unavailable", zap.Error(err))
		}
	}

	properties, err := s.store.Search(ctx, filter)
	if err != nil {
		return nil, model.Persistence("search properties", err)
	}
	if properties == nil {
		properties = []model.Property{}
	}

	if key != "" {
		if err := s.cache.Set(ctx, key, properties); err != nil {
			log.Warn("Search cache write failed", zap.Error(err))
		}
	}
	return properties, nil
}

func (s *Service) loadForModify(ctx context.Context, actor Actor, id int64, permission string) (*model.Property, error) {
	p, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, model.Persistence("get property", err)
	}
	if !rbac.CanModify(actor.UserID, actor.Role, p.OwnerID, permission) {
		return nil, model.ErrForbidden
	}
	return p, nil
}

func applyUpdate(p *model.Property, in UpdateInput) {
	if in.Title != nil {
		p.Title = strings.TrimSpace(*in.Title)
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Location != nil {
		p.Location = *in.Location
	}
	if in.Bedrooms != nil {
		p.Bedrooms = *in.Bedrooms
	}
	if in.Bathrooms != nil {
		p.Bathrooms = *in.Bathrooms
	}
	if in.Sqft != nil {
		p.Sqft = *in.Sqft
	}
	if in.Category != nil {
		p.Category = model.Category(*in.Category)
	}
}

// uploadAll 并发上传；任一失败时删除已成功的部分
func (s *Service) uploadAll(ctx context.Context, folder string, files []File) ([]model.Image, error) {
	if len(files) == 0 {
		return nil, nil
	}

	results := make([]model.Image, len(files))
	done := make([]bool, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			img, err := s.upload(gctx, folder, f)
			if err != nil {
				return err
			}
			results[i] = img
			done[i] = true
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		var ok []model.Image
		for i, d := range done {
			if d {
				ok = append(ok, results[i])
			}
		}
		s.destroyAll(ctx, ok)
		return nil, err
	}
	return results, nil
}

func (s *Service) upload(ctx context.Context, folder string, f File) (model.Image, error) {
	obj, err := s.images.Upload(ctx, folder, f.Name, f.ContentType, f.Body)
	if err != nil {
		return model.Image{}, fmt.Errorf("upload %s: %w", f.Name, err)
	}
	return model.Image{URL: obj.URL, StorageID: obj.StorageID}, nil
}

// destroyAll 尽力删除，失败只记录日志
func (s *Service) destroyAll(ctx context.Context, images []model.Image) {
	ctx = context.WithoutCancel(ctx)
	for _, img := range images {
		if err := s.images.Destroy(ctx, img.StorageID); err != nil {
			logger.WithTrace(ctx, s.logger).Warn("Failed to destroy stored file",
				zap.String("storage_id", img.StorageID),
				zap.Error(err),
			)
		}
	}
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		logger.WithTrace(ctx, s.logger).Warn("Failed to invalidate search cache", zap.Error(err))
	}
}

func searchKey(gen int64, f model.PropertyFilter) string {
	return fmt.Sprintf("v%d:%s:%s:%s:%d", gen, strings.ToLower(f.Location), f.Category, f.PriceRange, f.Limit)
}
