package model

import "time"

type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Review struct {
	ID         int64     `json:"id"`
	PropertyID int64     `json:"propertyId"`
	UserID     int64     `json:"userId"`
	UserName   string    `json:"userName,omitempty"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Booking 支付完成后由 webhook 写入
type Booking struct {
	ID              int64     `json:"id"`
	PropertyID      int64     `json:"propertyId"`
	UserID          *int64    `json:"userId,omitempty"`
	Checkin         time.Time `json:"checkin"`
	Checkout        time.Time `json:"checkout"`
	Guests          int       `json:"guests"`
	Amount          int64     `json:"amount"` // 最小货币单位（分）
	Currency        string    `json:"currency"`
	StripeSessionID string    `json:"stripeSessionId"`
	PaymentStatus   string    `json:"paymentStatus"`
	CreatedAt       time.Time `json:"createdAt"`
}
