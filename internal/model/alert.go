package model

import (
	"regexp"
	"strings"
	"time"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Alert 订阅者对某一分类新房源的订阅。创建后不再修改
type Alert struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PropertyType Category  `json:"propertyType"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ValidateEmail 只做基本语法检查
func ValidateEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return NewValidationError("email", "valid email is required")
	}
	if !emailPattern.MatchString(email) {
		return NewValidationError("email", "invalid email format")
	}
	return nil
}
