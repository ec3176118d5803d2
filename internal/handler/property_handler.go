package handler

import (
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"luxuryestates/internal/model"
	"luxuryestates/internal/service/alerting"
	"luxuryestates/internal/service/property"
)

type PropertyService interface {
	Create(ctx context.Context, actor property.Actor, in property.CreateInput, files []property.File) (*model.Property, alerting.Dispatch, error)
	Get(ctx context.Context, id int64) (*model.Property, error)
	Update(ctx context.Context, actor property.Actor, id int64, in property.UpdateInput, files []property.File, tour *property.File) (*model.Property, error)
	DeleteImage(ctx context.Context, actor property.Actor, id int64, index int) error
	DeleteVirtualTour(ctx context.Context, actor property.Actor, id int64) error
	Delete(ctx context.Context, actor property.Actor, id int64) error
	Search(ctx context.Context, filter model.PropertyFilter) ([]model.Property, error)
}

type PropertyHandler struct {
	properties PropertyService
	logger     *zap.Logger
}

func NewPropertyHandler(properties PropertyService, logger *zap.Logger) *PropertyHandler {
	return &PropertyHandler{properties: properties, logger: logger}
}

// Search GET /properties?location=&category=&priceRange=&limit=
func (h *PropertyHandler) Search(c *gin.Context) {
	filter := model.PropertyFilter{
		Location:   c.Query("location"),
		Category:   model.Category(c.Query("category")),
		PriceRange: model.PriceRange(c.Query("priceRange")),
	}
	if s := c.Query("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit parameter"})
			return
		}
		filter.Limit = limit
	}

	results, err := h.properties.Search(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, "failed to search properties", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"properties": results, "count": len(results)})
}

// Get GET /properties/:id
func (h *PropertyHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	p, err := h.properties.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, "failed to load property", err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Create POST /properties (multipart: 字段 + images)
func (h *PropertyHandler) Create(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form required"})
		return
	}

	in := property.CreateInput{
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		Location:    c.PostForm("location"),
		Category:    c.PostForm("category"),
		Link:        c.PostForm("link"),
	}
	if err := parseInts(c, map[string]any{
		"price":     &in.Price,
		"bedrooms":  &in.Bedrooms,
		"bathrooms": &in.Bathrooms,
		"sqft":      &in.Sqft,
	}); err != nil {
		respondError(c, h.logger, "invalid property", err)
		return
	}

	files, closeAll, err := openFiles(form.File["images"])
	if err != nil {
		respondError(c, h.logger, "failed to read uploaded files", err)
		return
	}
	defer closeAll()

	p, dispatch, err := h.properties.Create(c.Request.Context(), actor, in, files)
	if err != nil {
		respondError(c, h.logger, "Failed to add property", err)
		return
	}

	verb := "sent"
	if dispatch.Async {
		verb = "queued"
	}
	resp := gin.H{
		"message":         fmt.Sprintf("Property added and %d notifications %s", dispatch.Count, verb),
		"dispatchedCount": dispatch.Count,
		"property":        p,
	}
	if dispatch.JobID != "" {
		resp["jobId"] = dispatch.JobID
		resp["async"] = dispatch.Async
	}
	c.JSON(http.StatusCreated, resp)
}

// Update PUT /properties/:id (multipart，空字段不修改)
func (h *PropertyHandler) Update(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form required"})
		return
	}

	in, err := parseUpdate(c)
	if err != nil {
		respondError(c, h.logger, "invalid property", err)
		return
	}

	files, closeImages, err := openFiles(form.File["images"])
	if err != nil {
		respondError(c, h.logger, "failed to read uploaded files", err)
		return
	}
	defer closeImages()

	var tour *property.File
	if headers := form.File["virtualTour"]; len(headers) > 0 {
		tours, closeTour, err := openFiles(headers[:1])
		if err != nil {
			respondError(c, h.logger, "failed to read uploaded files", err)
			return
		}
		defer closeTour()
		tour = &tours[0]
	}

	p, err := h.properties.Update(c.Request.Context(), actor, id, in, files, tour)
	if err != nil {
		respondError(c, h.logger, "failed to update property", err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Delete DELETE /properties/:id
func (h *PropertyHandler) Delete(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.properties.Delete(c.Request.Context(), actor, id); err != nil {
		respondError(c, h.logger, "failed to delete property", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DeleteImage DELETE /properties/:id/images/:index
func (h *PropertyHandler) DeleteImage(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid image index"})
		return
	}

	if err := h.properties.DeleteImage(c.Request.Context(), actor, id, index); err != nil {
		respondError(c, h.logger, "failed to delete image", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DeleteVirtualTour DELETE /properties/:id/virtual-tour
func (h *PropertyHandler) DeleteVirtualTour(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.properties.DeleteVirtualTour(c.Request.Context(), actor, id); err != nil {
		respondError(c, h.logger, "failed to delete virtual tour", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *PropertyHandler) actor(c *gin.Context) (property.Actor, bool) {
	userID, role, ok := currentUser(c)
	if !ok {
		return property.Actor{}, false
	}
	return property.Actor{UserID: userID, Role: role}, true
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name + " parameter"})
		return 0, false
	}
	return id, true
}

// parseInts 空字段保持零值
func parseInts(c *gin.Context, fields map[string]any) error {
	for name, dst := range fields {
		raw := c.PostForm(name)
		if raw == "" {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return model.NewValidationError(name, "must be a number")
		}
		switch d := dst.(type) {
		case *int64:
			*d = n
		case *int:
			*d = int(n)
		}
	}
	return nil
}

func parseUpdate(c *gin.Context) (property.UpdateInput, error) {
	in := property.UpdateInput{
		Title:       optionalString(c, "title"),
		Description: optionalString(c, "description"),
		Location:    optionalString(c, "location"),
		Category:    optionalString(c, "category"),
	}
	var err error
	if in.Price, err = optionalInt[int64](c, "price"); err != nil {
		return in, err
	}
	if in.Bedrooms, err = optionalInt[int](c, "bedrooms"); err != nil {
		return in, err
	}
	if in.Bathrooms, err = optionalInt[int](c, "bathrooms"); err != nil {
		return in, err
	}
	if in.Sqft, err = optionalInt[int](c, "sqft"); err != nil {
		return in, err
	}
	return in, nil
}

func optionalString(c *gin.Context, name string) *string {
	v := c.PostForm(name)
	if v == "" {
		return nil
	}
	return &v
}

func optionalInt[T int | int64](c *gin.Context, name string) (*T, error) {
	raw := c.PostForm(name)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, model.NewValidationError(name, "must be a number")
	}
	v := T(n)
	return &v, nil
}

// openFiles 打开上传的文件，调用方负责 closeAll
func openFiles(headers []*multipart.FileHeader) ([]property.File, func(), error) {
	files := make([]property.File, 0, len(headers))
	opened := make([]multipart.File, 0, len(headers))
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}

	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("open %s: %w", fh.Filename, err)
		}
		opened = append(opened, f)
		files = append(files, property.File{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Body:        f,
		})
	}
	return files, closeAll, nil
}
