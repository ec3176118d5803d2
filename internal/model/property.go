package model

import "time"

// Image 已上传到对象存储的文件
type Image struct {
	URL       string `json:"url"`
	StorageID string `json:"storageId"`
}

type Property struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Price       int64     `json:"price"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Bedrooms    int       `json:"bedrooms"`
	Bathrooms   int       `json:"bathrooms"`
	Sqft        int       `json:"sqft"`
	Category    Category  `json:"category"`
	Link        string    `json:"link,omitempty"`
	Images      []Image   `json:"images"`
	VirtualTour *Image    `json:"virtualTour,omitempty"`
	OwnerID     int64     `json:"ownerId"`
	OwnerName   string    `json:"ownerName,omitempty"`
	Reviews     []Review  `json:"reviews,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// PropertySnapshot 通知里嵌入的房源只读快照，准备通知时生成
type PropertySnapshot struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Price     int64     `json:"price"`
	Bedrooms  int       `json:"bedrooms"`
	Location  string    `json:"location"`
	Category  Category  `json:"category"`
	ImageURL  string    `json:"image_url,omitempty"`
	Link      string    `json:"link,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (p *Property) Snapshot() PropertySnapshot {
	s := PropertySnapshot{
		ID:        p.ID,
		Title:     p.Title,
		Price:     p.Price,
		Bedrooms:  p.Bedrooms,
		Location:  p.Location,
		Category:  p.Category,
		Link:      p.Link,
		CreatedAt: p.CreatedAt,
	}
	if len(p.Images) > 0 {
		s.ImageURL = p.Images[0].URL
	}
	return s
}

// Snapshots 保持输入顺序
func Snapshots(properties []Property) []PropertySnapshot {
	out := make([]PropertySnapshot, 0, len(properties))
	for i := range properties {
		out = append(out, properties[i].Snapshot())
	}
	return out
}

// PriceRange 搜索用的价格区间（单位：百万）
type PriceRange string

const (
	PriceRange1To3  PriceRange = "1-3"
	PriceRange3To5  PriceRange = "3-5"
	PriceRangeAbove PriceRange = "5+"
)

// Bounds 返回闭区间 [min, max]，相邻区间在边界价格上重叠；max 为 0 表示无上限
func (r PriceRange) Bounds() (min, max int64, ok bool) {
	const million = 1_000_000
	switch r {
	case PriceRange1To3:
		return 1 * million, 3 * million, true
	case PriceRange3To5:
		return 3 * million, 5 * million, true
	case PriceRangeAbove:
		return 5 * million, 0, true
	default:
		return 0, 0, false
	}
}

// PropertyFilter 搜索条件，零值字段不参与过滤
type PropertyFilter struct {
	Location   string     `json:"location,omitempty"`
	Category   Category   `json:"category,omitempty"`
	PriceRange PriceRange `json:"priceRange,omitempty"`
	Limit      int        `json:"limit,omitempty"`
}
