package model

import "time"

// NotificationKind 通知类型
type NotificationKind string

const (
	// 订阅成功后发给新订阅者
	KindWelcome NotificationKind = "welcome"
	// 新房源发给匹配的订阅者
	KindNewListing NotificationKind = "new_listing"
)

// DeliveryStatus 单个收件人的投递结果
type DeliveryStatus string

const (
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
	DeliverySkipped DeliveryStatus = "skipped"
)

type DeliveryOutcome struct {
	Destination string         `json:"destination"`
	AlertID     int64          `json:"alertId"`
	Status      DeliveryStatus `json:"status"`
	Error       string         `json:"error,omitempty"`
	AttemptedAt time.Time      `json:"attemptedAt"`
}

// BatchResult 一次触发对应的全部投递结果，顺序与收件人顺序一致
type BatchResult struct {
	JobID    string            `json:"jobId"`
	Kind     NotificationKind  `json:"kind"`
	Outcomes []DeliveryOutcome `json:"outcomes"`
}

func (r BatchResult) count(status DeliveryStatus) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

func (r BatchResult) Sent() int    { return r.count(DeliverySent) }
func (r BatchResult) Failed() int  { return r.count(DeliveryFailed) }
func (r BatchResult) Skipped() int { return r.count(DeliverySkipped) }

// NotificationLog notification_logs 表中的一行
type NotificationLog struct {
	ID          int64
	JobID       string
	AlertID     int64
	PropertyID  *int64
	Destination string
	Kind        NotificationKind
	Status      DeliveryStatus
	Error       string
	CreatedAt   time.Time
}
