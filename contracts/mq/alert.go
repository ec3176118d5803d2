package mq

import "time"

// AlertCreatedPayload alert.created 事件：新订阅者需要一封欢迎邮件
type AlertCreatedPayload struct {
	AlertID      int64     `json:"alert_id"`
	Email        string    `json:"email"`
	PropertyType string    `json:"property_type"`
	CreatedAt    time.Time `json:"created_at"`
	TraceID      string    `json:"trace_id,omitempty"`
}
