package model

import "strings"

// Category 是 Alert 与 Property 共用的分类，匹配时按值精确比较
type Category string

const (
	CategoryVilla     Category = "Villa"
	CategoryApartment Category = "Apartment"
	CategoryMansion   Category = "Mansion"
	CategoryPenthouse Category = "Penthouse"
)

// Categories 按展示顺序列出全部分类
var Categories = []Category{
	CategoryVilla,
	CategoryApartment,
	CategoryMansion,
	CategoryPenthouse,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

func (c Category) String() string {
	return string(c)
}

// ParseCategory 区分大小写，"villa" 不是合法分类
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", &ValidationError{
			Field:   "propertyType",
			Message: categoryMessage(),
		}
	}
	return c, nil
}

func categoryMessage() string {
	names := make([]string, len(Categories))
	for i, known := range Categories {
		names[i] = string(known)
	}
	return "must be one of " + strings.Join(names, ", ")
}
